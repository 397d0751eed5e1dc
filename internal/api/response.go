package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"regexp"

	"bnpl/internal/logging"
	"bnpl/internal/option"
	"bnpl/internal/plugin"
	"bnpl/internal/services"
	"bnpl/internal/sound"
)

var callbackPattern = regexp.MustCompile(`^[A-Za-z_$][0-9A-Za-z_$.]*$`)

// responseSink renders invocation output as a single JSON document.
type responseSink struct {
	w       http.ResponseWriter
	r       *http.Request
	naming  sound.Naming
	logger  *slog.Logger
	written bool
}

func newResponseSink(w http.ResponseWriter, r *http.Request, naming sound.Naming, logger *slog.Logger) *responseSink {
	return &responseSink{w: w, r: r, naming: naming, logger: logger}
}

// Write drains out and answers the request. Item failures are reported in the
// body next to the successful items; the request itself succeeds.
func (s *responseSink) Write(ctx context.Context, out *plugin.Output) error {
	if out == nil {
		return nil
	}
	s.written = true
	switch {
	case out.IsHelp():
		writeJSON(s.w, s.r, http.StatusOK, out.Help)
	case out.Capability == plugin.CapMixer:
		if s.download() && out.Sound != nil && out.Sound.Path != "" {
			writeAttachment(s.w, s.r, s.naming, out.Sound, s.logger)
			return nil
		}
		var body MixResponse
		if out.Sound != nil {
			body.Sound = s.naming.ToMap(out.Sound)
		}
		writeJSON(s.w, s.r, http.StatusOK, body)
	case out.Capability == plugin.CapExporter:
		writeJSON(s.w, s.r, http.StatusOK, ExportResponse{Locations: nonNil(out.Locations)})
	default:
		body := StreamResponse{Sounds: []map[string]any{}, Locations: out.Locations}
		for item, err := range out.Stream() {
			if err != nil {
				logging.WithContext(ctx, s.logger).WarnContext(ctx, "item failed", logging.Error(err))
				body.Errors = append(body.Errors, ItemError{Error: err.Error(), Kind: services.Kind(err)})
				continue
			}
			body.Sounds = append(body.Sounds, s.naming.ToMap(item))
		}
		if err := ctx.Err(); err != nil {
			s.written = false
			return err
		}
		writeJSON(s.w, s.r, http.StatusOK, body)
	}
	return nil
}

func (s *responseSink) download() bool {
	raw := s.r.URL.Query().Get(downloadParam)
	if raw == "" {
		return false
	}
	v, err := option.Coerce(raw, option.KindBoolean)
	return err == nil && v == true
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// writeJSON encodes payload, wrapping it in the callback named by the
// `callback` query parameter when one is given.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	callback := ""
	if r != nil {
		callback = r.URL.Query().Get(callbackParam)
	}
	if callback != "" && callbackPattern.MatchString(callback) {
		w.Header().Set("Content-Type", "application/javascript")
		w.WriteHeader(status)
		_, _ = w.Write([]byte("/**/" + callback + "("))
		_, _ = w.Write(data)
		_, _ = w.Write([]byte(");"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
	_, _ = w.Write([]byte("\n"))
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeJSON(w, r, StatusFor(err), ErrorBody{Error: err.Error(), Kind: services.Kind(err)})
}

// writeAttachment streams a local sound file.
func writeAttachment(w http.ResponseWriter, r *http.Request, naming sound.Naming, s *sound.Sound, logger *slog.Logger) {
	f, err := os.Open(s.Path)
	if err != nil {
		writeError(w, r, services.Wrap(services.ErrNotFound, "api", "download", s.Path, err))
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		writeError(w, r, services.Wrap(services.ErrStorage, "api", "download", s.Path, err))
		return
	}
	setAttachmentHeaders(w, naming, s)
	http.ServeContent(w, r, naming.Filename(s), info.ModTime(), f)
	if logger != nil {
		logger.DebugContext(r.Context(), "served attachment", logging.String("path", s.Path), logging.Int("bytes", int(info.Size())))
	}
}

func setAttachmentHeaders(w http.ResponseWriter, naming sound.Naming, s *sound.Sound) {
	w.Header().Set("Content-Type", naming.MimeType(s))
	if disposition := mime.FormatMediaType("attachment", map[string]string{"filename": naming.Filename(s)}); disposition != "" {
		w.Header().Set("Content-Disposition", disposition)
	}
}
