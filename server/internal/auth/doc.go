// Package auth provides API key middleware for the collector's read API.
//
// APIKey(mode, header, key) wraps an http.Handler. When mode != "apikey" or
// key == "", every request passes through (local development with auth
// disabled). Otherwise a missing or wrong key gets 401 before the wrapped
// handler runs.
package auth
