// Package api serves plugins and the sound library over HTTP.
//
// # Routes
//
//	GET    /api/status             preflight results
//	GET    /api/plugins            every plugin descriptor
//	GET    /api/plugins/{key}      one descriptor
//	POST   /api/plugins/{key}      run a plugin in the api context
//	GET    /api/sounds             search the record store
//	POST   /api/sounds             import sounds (PUT is accepted too)
//	GET    /api/sounds/{uid}       one stored sound
//	GET    /api/sounds/{uid}/file  the stored content as an attachment
//	DELETE /api/sounds/{uid}       remove from both stores
//
// # Requests
//
// Plugin options come from the query string. Values are passed as strings
// except null tokens and inline JSON, so `?formats=["wav"]` is a list. Data
// comes from the body: a JSON array or object, NDJSON, a form with `data`
// fields, or a multipart upload whose files are saved to the temp directory
// for the duration of the request.
//
// # Responses
//
// Every response is JSON, wrapped as `callback(...)` when a valid `callback`
// parameter is present. Errors carry `{"error": ..., "kind": ...}` with the
// status derived from the error kind. Streams report item failures in an
// `errors` array next to the produced sounds rather than failing the request.
package api
