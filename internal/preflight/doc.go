// Package preflight provides readiness checks for the directories, storage
// backends and external tools bnpl depends on.
//
// The CLI "bnpl preflight" command prints every result; bnpld runs the same
// checks at startup and refuses to serve when a required one fails. Optional
// tools that are missing only disable the plugins that need them.
package preflight
