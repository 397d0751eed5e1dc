package plugins

import (
	"context"
	"iter"

	"bnpl/internal/logging"
	"bnpl/internal/plugin"
	"bnpl/internal/sound"
)

// Importer stores sounds in both the blob store and the record store.
type Importer struct {
	plugin.Base
}

// NewImporter returns the core.importer plugin.
func NewImporter() *Importer {
	return &Importer{Base: plugin.NewBase("importer", plugin.CapImporter,
		"Store one or more sounds. Returns them with created and updated timestamps.",
		plugin.PoolSizeOption(),
	)}
}

// Import puts every sound on pool_size workers. Results arrive in completion
// order. A sound that reached only one store is reported with a
// *storage.PartialWriteError.
func (i *Importer) Import(ctx context.Context, call *plugin.Call, sounds iter.Seq[*sound.Sound]) iter.Seq2[*sound.Sound, error] {
	lib, err := call.Library()
	if err != nil {
		return func(yield func(*sound.Sound, error) bool) { yield(nil, err) }
	}
	size := call.PoolSize()
	logger := call.Log()
	return func(yield func(*sound.Sound, error) bool) {
		stored, failed := 0, 0
		defer func() {
			logger.DebugContext(ctx, "import finished",
				logging.Int("stored", stored),
				logging.Int("failed", failed),
				logging.Int("pool_size", size))
		}()
		for result, err := range lib.Bulk(ctx, withUIDs(call, sounds), size) {
			if err != nil {
				failed++
				if !yield(nil, err) {
					return
				}
				continue
			}
			stored++
			if !yield(result.Sound, nil) {
				return
			}
		}
	}
}

// withUIDs gives sounds without an identifier a random one so they can be
// stored.
func withUIDs(call *plugin.Call, sounds iter.Seq[*sound.Sound]) iter.Seq[*sound.Sound] {
	naming := call.Naming()
	return func(yield func(*sound.Sound) bool) {
		for s := range sounds {
			if s.UID == "" {
				s = s.Clone()
				s.UID = naming.UID("")
			}
			if !yield(s) {
				return
			}
		}
	}
}
