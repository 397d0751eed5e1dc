// Package option declares typed plugin options and validates raw input
// against them.
//
// Coerce and Sniff convert loosely typed values (CLI tokens, query strings,
// decoded JSON) into a closed set of kinds. A Set groups options, resolves
// aliases and defaults, and reports every invalid or missing option in one
// ValidationError so callers can fix all problems in a single pass.
package option
