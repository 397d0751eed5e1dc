// Package cliargs adapts command-line invocations to plugins.
//
// Parse turns `--name=value`, `--name value`, `--flag`, `--no-flag` and
// `-a value` tokens into raw options. Values are passed through as strings
// for the option layer to coerce, except null tokens (which become nil),
// inline JSON or YAML documents, and paths to .json/.yml/.yaml files, which
// are loaded. Source reads newline-delimited JSON data from stdin; Sink writes
// results to stdout the same way.
package cliargs
