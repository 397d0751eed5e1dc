// Package storage persists sounds in two places: a blob store holding the
// file content under a key derived from the sound, and a record store holding
// a searchable metadata document.
//
// Library writes to both concurrently. There is no transaction spanning the
// two backends; one-sided writes surface as *PartialWriteError and can be
// reconciled later with Library.Check and Library.Repair. Every backend call
// goes through a RetryPolicy that retries transient failures with
// multiplicative backoff and logs each failed attempt.
package storage
