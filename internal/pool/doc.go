// Package pool provides the bounded fan-out primitives used by bulk storage
// calls, importers and pipelines.
//
// Map is created per call, not shared: each bulk operation gets its own set of
// workers sized by the caller. There is no priority, no queueing beyond the
// worker count, and no timeout; a hung worker blocks completion.
package pool
