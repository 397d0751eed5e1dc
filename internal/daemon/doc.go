// Package daemon runs the long-lived bnpl process that serves the HTTP API.
//
// A Daemon holds a flock on LogDir/bnpld.lock so only one instance serves a
// given configuration, runs the preflight checks before it starts listening,
// and shuts the listener down when its context ends or Stop is called.
// Request handling lives in internal/api; this package owns only startup,
// shutdown and status.
package daemon
