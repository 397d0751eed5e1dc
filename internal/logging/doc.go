// Package logging assembles structured slog loggers used across bnpl.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so plugin and storage code can
// tag log lines with plugin keys, sound identifiers, and correlation IDs.
// Output defaults to stderr because the CLI reserves stdout for results.
package logging
