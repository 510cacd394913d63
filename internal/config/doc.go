// Package config loads and caches the client transport configuration
// (LogConfig.json).
//
// Top-level types:
//   - Config — server_url, udp_host, udp_port, app_id, push_type, debug,
//     http_compress; immutable once returned by a Store
//   - Store — lazy-once cache around Load; the first successful Resolve wins
//     and later calls never touch the file again
//   - MissingFieldError — names the required key absent from the file
//
// Load(path) reads the file, parses it with fastjson, checks the required keys
// (ServerUrl, UdpServerHost, Port, app_id, push_type) and enum values, then
// applies defaults (debug=false, http_compress=true). Failures wrap one of
// ErrNotFound, ErrParse or ErrInvalid, or are a *MissingFieldError.
//
// Watch(ctx, path, onResult) uses fsnotify to re-run Load each time the file
// changes and reports every outcome. It is tooling for operators editing the
// file; it never feeds a Store.
package config
