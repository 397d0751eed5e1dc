package cliargs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"bnpl/internal/logging"
	"bnpl/internal/plugin"
	"bnpl/internal/sound"
)

// Sink writes invocation output as newline-delimited JSON.
type Sink struct {
	w      io.Writer
	naming sound.Naming
	logger *slog.Logger

	// Written and Failed count stream items after Write returns.
	Written int
	Failed  int
}

// NewSink builds a Sink writing to w.
func NewSink(w io.Writer, naming sound.Naming, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Sink{w: w, naming: naming, logger: logger}
}

// Write renders out. Help is printed as one indented document; every other
// shape as one record per line. Item failures are logged as they arrive and
// returned joined once the stream is drained.
func (s *Sink) Write(ctx context.Context, out *plugin.Output) error {
	if out == nil {
		return nil
	}
	if out.IsHelp() {
		encoder := json.NewEncoder(s.w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(out.Help)
	}

	encoder := json.NewEncoder(s.w)
	if out.Capability == plugin.CapMixer {
		if out.Sound == nil {
			return nil
		}
		s.Written++
		return encoder.Encode(s.naming.ToMap(out.Sound))
	}

	var errs []error
	if out.Capability != plugin.CapExporter {
		for item, err := range out.Stream() {
			if err != nil {
				s.Failed++
				logging.WithContext(ctx, s.logger).ErrorContext(ctx, "item failed", logging.Error(err))
				errs = append(errs, err)
				continue
			}
			s.Written++
			if err := encoder.Encode(s.naming.ToMap(item)); err != nil {
				return err
			}
		}
	}
	for _, location := range out.Locations {
		if err := encoder.Encode(map[string]any{"location": location}); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
