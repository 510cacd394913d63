// Package receiver accepts log records from logpush clients over HTTP and
// UDP and writes them to the record store.
//
// HTTP ingest takes either the compressed envelope ({"log": base64(zlib(json))})
// or the raw record JSON. UDP ingest takes one zlib-compressed record per
// datagram. Both paths decode with fastjson and reject records that lack any
// of the fixed record keys, so a client that drops a key is caught here.
package receiver
