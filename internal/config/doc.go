// Package config loads, normalizes, and validates bnpl configuration files.
//
// It exposes the strongly typed Config struct along with helpers that expand
// user paths, apply environment fallbacks (bucket, region, API token), and
// create the directories the CLI and daemon depend on. Components receive the
// Config (or a section of it) explicitly; nothing in the module reads global
// configuration.
package config
