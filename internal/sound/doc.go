// Package sound defines the Sound entity and the pure functions that derive
// its identity and storage keys.
//
// Identifiers are content-addressed (SHA-1 of a fingerprint, truncated) or
// random when no fingerprint exists. Slugs, filenames and blob keys are
// computed from a Naming value built from configuration; requesting a blob key
// for a sound without a uid fails with ErrMissingUID.
package sound
