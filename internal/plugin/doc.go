// Package plugin defines the plugin contract, the registry that indexes
// plugins by "{module}.{name}", and the Invocation that runs one plugin once.
//
// A plugin declares one capability. The capability decides how input reaches
// it (nothing, one sound at a time, the whole stream, or a collected slice)
// and what comes back (a sound stream, exporter locations, a single mixed
// sound, or a pipeline result). The call context decides where options and
// data come from: in-process callers pass them directly, while the cli and
// api contexts read them from a Source and write the output to a Sink.
//
// Options are validated before any data is read. When the help option is set
// the invocation returns the plugin descriptor without dispatching.
package plugin
