package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"maps"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"bnpl/internal/cliargs"
	"bnpl/internal/services"
)

const (
	callbackParam = "callback"
	downloadParam = "download"

	maxBodyBytes       = 512 << 20
	maxMultipartMemory = 32 << 20
)

// reserved query parameters are consumed by the transport, not plugins.
var reserved = []string{callbackParam, downloadParam}

// requestSource feeds an api invocation from an HTTP request.
type requestSource struct {
	r       *http.Request
	tmpDir  string
	uploads []string
}

func newRequestSource(r *http.Request, tmpDir string) *requestSource {
	return &requestSource{r: r, tmpDir: tmpDir}
}

// Options returns the query parameters as raw options.
func (s *requestSource) Options(context.Context) (map[string]any, error) {
	return queryOptions(s.r.URL.Query())
}

func queryOptions(values url.Values) (map[string]any, error) {
	out := make(map[string]any, len(values))
	for name, raw := range values {
		if slices.Contains(reserved, name) {
			continue
		}
		parsed := make([]any, 0, len(raw))
		for _, v := range raw {
			lit, err := cliargs.Literal(v)
			if err != nil {
				return nil, fmt.Errorf("query parameter %s: %w", name, err)
			}
			parsed = append(parsed, lit)
		}
		key := strings.ReplaceAll(name, "-", "_")
		if len(parsed) == 1 {
			out[key] = parsed[0]
		} else {
			out[key] = parsed
		}
	}
	return out, nil
}

// Data decodes the body according to its content type. An empty body is no
// data.
func (s *requestSource) Data(ctx context.Context) (iter.Seq2[any, error], error) {
	r := s.r
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	mediaType := "application/json"
	if ct := r.Header.Get("Content-Type"); ct != "" {
		parsed, _, err := mime.ParseMediaType(ct)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "api", "body", "invalid content type", err)
		}
		mediaType = parsed
	}

	switch mediaType {
	case "application/json":
		return decodeJSONBody(r.Body)
	case "application/x-ndjson", "application/jsonl", "text/plain":
		return cliargs.NewSource(nil, r.Body).Data(ctx)
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, services.Wrap(services.ErrValidation, "api", "body", "parse form", err)
		}
		return literalItems(r.PostForm["data"]), nil
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			return nil, services.Wrap(services.ErrValidation, "api", "body", "parse multipart form", err)
		}
		return s.multipartItems(r.MultipartForm)
	default:
		return nil, services.Wrap(services.ErrValidation, "api", "body", fmt.Sprintf("unsupported content type %q", mediaType), nil)
	}
}

func decodeJSONBody(body io.Reader) (iter.Seq2[any, error], error) {
	var doc any
	if err := json.NewDecoder(body).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, services.Wrap(services.ErrValidation, "api", "body", "decode json", err)
	}
	switch v := doc.(type) {
	case nil:
		return nil, nil
	case []any:
		return items(v), nil
	case map[string]any, string:
		return items([]any{v}), nil
	default:
		return nil, services.Wrap(services.ErrValidation, "api", "body", fmt.Sprintf("expected a sound, a path or a list, got %T", doc), nil)
	}
}

func items(values []any) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		for _, v := range values {
			if !yield(v, nil) {
				return
			}
		}
	}
}

func literalItems(values []string) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		for _, raw := range values {
			v, err := cliargs.Literal(raw)
			if err != nil {
				err = services.Wrap(services.ErrValidation, "api", "form", "data", err)
			}
			if !yield(v, err) {
				return
			}
		}
	}
}

// multipartItems saves every uploaded file below the temp directory and
// yields its path, followed by any `data` fields.
func (s *requestSource) multipartItems(form *multipart.Form) (iter.Seq2[any, error], error) {
	var paths []any
	for _, field := range slices.Sorted(maps.Keys(form.File)) {
		for _, header := range form.File[field] {
			path, err := s.save(header)
			if err != nil {
				return nil, err
			}
			paths = append(paths, path)
		}
	}
	data := literalItems(form.Value["data"])
	return func(yield func(any, error) bool) {
		for _, p := range paths {
			if !yield(p, nil) {
				return
			}
		}
		for v, err := range data {
			if !yield(v, err) {
				return
			}
		}
	}, nil
}

func (s *requestSource) save(header *multipart.FileHeader) (string, error) {
	name := filepath.Base(filepath.Clean("/" + header.Filename))
	if name == "/" || name == "." {
		return "", services.Wrap(services.ErrValidation, "api", "upload", "file has no name", nil)
	}
	if err := os.MkdirAll(s.tmpDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "api", "upload", "create temp dir", err)
	}
	dir, err := os.MkdirTemp(s.tmpDir, "upload-*")
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "api", "upload", "create upload dir", err)
	}
	s.uploads = append(s.uploads, dir)

	src, err := header.Open()
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "api", "upload", name, err)
	}
	defer src.Close()
	path := filepath.Join(dir, name)
	dst, err := os.Create(path)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "api", "upload", name, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return "", services.Wrap(services.ErrValidation, "api", "upload", name, err)
	}
	if err := dst.Close(); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "api", "upload", name, err)
	}
	return path, nil
}

// Close removes uploaded files and multipart spill files.
func (s *requestSource) Close() {
	for _, dir := range s.uploads {
		_ = os.RemoveAll(dir)
	}
	if s.r.MultipartForm != nil {
		_ = s.r.MultipartForm.RemoveAll()
	}
}
