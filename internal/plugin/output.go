package plugin

import (
	"errors"
	"iter"

	"bnpl/internal/pool"
	"bnpl/internal/sound"
)

// Output is the result of one invocation. Exactly one of the shapes is set:
// a help descriptor, a single mixed sound, exporter locations, or a sound
// stream. Pipelines may carry both a stream and locations.
type Output struct {
	Key        string
	Capability Capability
	Help       *Descriptor
	Sound      *sound.Sound
	Locations  []string
	stream     iter.Seq2[*sound.Sound, error]
}

// NewStreamOutput wraps a sound stream.
func NewStreamOutput(c Capability, stream iter.Seq2[*sound.Sound, error]) *Output {
	return &Output{Capability: c, stream: stream}
}

// Stream yields every produced sound, or per-item failures as (nil, err).
// Streams backed by a worker pool can be consumed once.
func (o *Output) Stream() iter.Seq2[*sound.Sound, error] {
	switch {
	case o.stream != nil:
		return o.stream
	case o.Sound != nil:
		s := o.Sound
		return func(yield func(*sound.Sound, error) bool) { yield(s, nil) }
	default:
		return func(func(*sound.Sound, error) bool) {}
	}
}

// Sounds drains the stream. It returns every successful sound and every
// failure joined; a non-nil error does not mean the slice is empty.
func (o *Output) Sounds() ([]*sound.Sound, error) {
	return pool.Collect(o.Stream())
}

// Value returns the output as plain data: the descriptor, the sound, the
// location list, or the collected sounds.
func (o *Output) Value() (any, error) {
	switch {
	case o.Help != nil:
		return *o.Help, nil
	case o.Capability == CapMixer:
		return o.Sound, nil
	case o.Capability == CapExporter:
		return o.Locations, nil
	}
	return o.Sounds()
}

// IsHelp reports whether dispatch was bypassed by the help option.
func (o *Output) IsHelp() bool { return o.Help != nil }

// itemError ties a per-item failure to the sound it concerns.
type itemError struct {
	key string
	ref string
	err error
}

func (e *itemError) Error() string {
	if e.ref == "" {
		return e.key + ": " + e.err.Error()
	}
	return e.key + ": " + e.ref + ": " + e.err.Error()
}

func (e *itemError) Unwrap() error { return e.err }

func wrapItem(key string, s *sound.Sound, err error) error {
	if err == nil {
		return nil
	}
	var existing *itemError
	if errors.As(err, &existing) {
		return err
	}
	ref := ""
	if s != nil {
		ref = s.UID
		if ref == "" {
			ref = s.Path
		}
	}
	return &itemError{key: key, ref: ref, err: err}
}
