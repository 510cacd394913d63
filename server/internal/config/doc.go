// Package config loads the collector configuration from the `collector:`
// section of a YAML file.
//
// Config fields:
//   - HTTPPort       — port for HTTP ingest and the read API (default 8000)
//   - UDPPort        — port for UDP ingest; 0 disables it (default 9502)
//   - IngestPath     — HTTP path records are POSTed to (default "/logs")
//   - UDPAck         — reply "ok" to every accepted datagram
//   - Auth.Mode      — "apikey" or "none"; guards the read API only
//   - Auth.KeyEnv    — environment variable holding the expected API key
//   - Auth.Header    — HTTP header name (default "x-api-key")
//   - Store.TTL      — how long a received record stays queryable (default 15m)
//   - Store.Capacity — maximum records held; oldest are dropped (default 10000)
//
// Load(path) applies defaults before unmarshalling, then validates.
// Default() returns the same defaults for running without a file.
package config
