// Package main hosts the bnpl CLI entrypoint and command graph.
//
// The Cobra-based command tree runs plugins in the cli context, reading
// newline-delimited JSON from stdin and writing results to stdout, and exposes
// the storage maintenance operations (get, search, rm, check, repair, fetch),
// preflight checks and configuration scaffolding. Logs go to stderr so stdout
// can be piped into the next `bnpl run`.
//
// Exit status is 0 on success, 2 when interrupted and 1 for anything else,
// including unknown plugins and item failures.
package main
