package cliargs

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"

	"bnpl/internal/services"
)

// maxLine bounds one NDJSON record.
const maxLine = 4 << 20

// Source feeds a cli invocation from its arguments and, optionally, stdin.
type Source struct {
	args  []string
	input io.Reader
}

// NewSource builds a Source. A nil input means no data is piped in.
func NewSource(args []string, input io.Reader) *Source {
	return &Source{args: args, input: input}
}

// Options parses the plugin arguments.
func (s *Source) Options(context.Context) (map[string]any, error) {
	return Parse(s.args)
}

// Data yields one item per non-blank input line. A JSON object becomes a
// sound map and a JSON string or bare text a local path. Lines are read only
// as the sequence is consumed.
func (s *Source) Data(ctx context.Context) (iter.Seq2[any, error], error) {
	if s.input == nil {
		return nil, nil
	}
	input := s.input
	return func(yield func(any, error) bool) {
		scanner := bufio.NewScanner(input)
		scanner.Buffer(make([]byte, 0, 64<<10), maxLine)
		line := 0
		for scanner.Scan() {
			line++
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			text := bytes.TrimSpace(scanner.Bytes())
			if len(text) == 0 {
				continue
			}
			item, err := decodeLine(text)
			if err != nil {
				err = services.Wrap(services.ErrValidation, "cli", "stdin", fmt.Sprintf("line %d", line), err)
			}
			if !yield(item, err) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(nil, services.Wrap(services.ErrValidation, "cli", "stdin", "read input", err))
		}
	}, nil
}

func decodeLine(text []byte) (any, error) {
	switch text[0] {
	case '{', '"':
	case '[':
		return nil, fmt.Errorf("expected an object or a path, got a list")
	default:
		if !json.Valid(text) {
			return string(text), nil
		}
		return nil, fmt.Errorf("expected an object or a path, got %s", text)
	}
	var item any
	if err := json.Unmarshal(text, &item); err != nil {
		return nil, err
	}
	return item, nil
}
