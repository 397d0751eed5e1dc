package plugin

import (
	"fmt"
	"iter"

	"bnpl/internal/services"
	"bnpl/internal/sound"
)

func empty() iter.Seq2[*sound.Sound, error] {
	return func(func(*sound.Sound, error) bool) {}
}

func single(s *sound.Sound, err error) iter.Seq2[*sound.Sound, error] {
	return func(yield func(*sound.Sound, error) bool) { yield(s, err) }
}

// normalize turns caller-supplied data into a lazy sound stream. Sounds pass
// through, maps are promoted with sound.FromMap, strings are local paths, and
// a single item is treated as a one-element sequence. Items that cannot be
// converted become per-item errors.
func normalize(raw any) iter.Seq2[*sound.Sound, error] {
	switch v := raw.(type) {
	case nil:
		return empty()
	case *Output:
		return v.Stream()
	case iter.Seq2[*sound.Sound, error]:
		return v
	case iter.Seq[*sound.Sound]:
		return func(yield func(*sound.Sound, error) bool) {
			for s := range v {
				if !yield(toSound(s)) {
					return
				}
			}
		}
	case iter.Seq2[any, error]:
		return func(yield func(*sound.Sound, error) bool) {
			for item, err := range v {
				if err != nil {
					if !yield(nil, err) {
						return
					}
					continue
				}
				if !yield(toSound(item)) {
					return
				}
			}
		}
	case []*sound.Sound:
		return each(v)
	case []map[string]any:
		return each(v)
	case []string:
		return each(v)
	case []any:
		return each(v)
	default:
		return single(toSound(raw))
	}
}

func each[T any](items []T) iter.Seq2[*sound.Sound, error] {
	return func(yield func(*sound.Sound, error) bool) {
		for _, item := range items {
			if !yield(toSound(item)) {
				return
			}
		}
	}
}

func toSound(item any) (*sound.Sound, error) {
	switch v := item.(type) {
	case *sound.Sound:
		if v == nil {
			return nil, services.Wrap(services.ErrValidation, "plugin", "data", "nil sound", nil)
		}
		return v, nil
	case sound.Sound:
		return &v, nil
	case map[string]any:
		return sound.FromMap(v)
	case string:
		return sound.New(v), nil
	}
	return nil, services.Wrap(services.ErrValidation, "plugin", "data", fmt.Sprintf("cannot load a sound from %T", item), nil)
}
