// Package services defines shared utilities consumed by plugins, storage
// backends and the CLI/API surfaces.
//
// Key responsibilities:
//   - Context helpers that stamp plugin keys, sound identifiers, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so failures can be
//     classified consistently (validation vs not found vs storage vs external
//     tool) regardless of which layer raised them.
//
// Use these helpers when wiring new plugins so operational behaviour (error
// classification, observability) stays uniform across the pipeline.
package services
