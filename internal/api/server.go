package api

import (
	"context"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"bnpl/internal/cliargs"
	"bnpl/internal/config"
	"bnpl/internal/logging"
	"bnpl/internal/plugin"
	"bnpl/internal/preflight"
	"bnpl/internal/services"
	"bnpl/internal/sound"
	"bnpl/internal/storage"
)

const (
	searchPlugin = "core.search"
	importPlugin = "core.importer"
)

// Server exposes a plugin registry and a sound library over HTTP.
type Server struct {
	cfg    *config.Config
	lib    *storage.Library
	reg    *plugin.Registry
	logger *slog.Logger
}

// New builds a Server. lib may be nil, in which case storage routes fail
// with a configuration error.
func New(cfg *config.Config, lib *storage.Library, reg *plugin.Registry, logger *slog.Logger) *Server {
	if cfg == nil {
		defaults := config.Default()
		cfg = &defaults
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Server{
		cfg:    cfg,
		lib:    lib,
		reg:    reg,
		logger: logging.NewComponentLogger(logger, "api"),
	}
}

// Handler returns the routed handler with request ids, access logging and
// bearer authentication applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/plugins", s.handlePlugins)
	mux.HandleFunc("GET /api/plugins/{key}", s.handlePlugin)
	mux.HandleFunc("POST /api/plugins/{key}", s.handleRun)
	mux.HandleFunc("GET /api/sounds", s.handleSearch)
	mux.HandleFunc("POST /api/sounds", s.handleImport)
	mux.HandleFunc("PUT /api/sounds", s.handleImport)
	mux.HandleFunc("GET /api/sounds/{uid}", s.handleSound)
	mux.HandleFunc("GET /api/sounds/{uid}/file", s.handleFile)
	mux.HandleFunc("DELETE /api/sounds/{uid}", s.handleDelete)

	var handler http.Handler = mux
	handler = authMiddleware(s.cfg.API.Token, handler)
	handler = logMiddleware(s.logger, handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	results := preflight.RunAll(r.Context(), s.cfg, nil)
	body := StatusResponse{Ready: len(preflight.Failed(results)) == 0, Checks: make([]CheckResult, 0, len(results))}
	for _, res := range results {
		body.Checks = append(body.Checks, CheckResult{
			Name:     res.Name,
			Passed:   res.Passed,
			Optional: res.Optional,
			Detail:   res.Detail,
		})
	}
	writeJSON(w, r, http.StatusOK, body)
}

func (s *Server) handlePlugins(w http.ResponseWriter, r *http.Request) {
	filter := strings.TrimSpace(r.URL.Query().Get("type"))
	var capability plugin.Capability
	if filter != "" {
		parsed, err := plugin.ParseCapability(filter)
		if err != nil {
			writeError(w, r, services.Wrap(services.ErrValidation, "api", "plugins", "type", err))
			return
		}
		capability = parsed
	}
	descriptors := make([]plugin.Descriptor, 0)
	for _, d := range s.reg.Describe() {
		if filter != "" && d.Type != capability {
			continue
		}
		descriptors = append(descriptors, d)
	}
	writeJSON(w, r, http.StatusOK, descriptors)
}

func (s *Server) handlePlugin(w http.ResponseWriter, r *http.Request) {
	d, err := s.reg.Descriptor(r.PathValue("key"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, d)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	src := newRequestSource(r, s.cfg.Paths.TmpDir)
	defer src.Close()
	s.run(w, r, key, src)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if s.lib == nil {
		writeError(w, r, errNoLibrary())
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	src := newRequestSource(r, s.cfg.Paths.TmpDir)
	defer src.Close()
	s.run(w, r, importPlugin, src)
}

// handleSearch maps text, q, limit and offset onto the query and every other
// parameter onto an exact match.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.lib == nil {
		writeError(w, r, errNoLibrary())
		return
	}
	doc, err := searchDocument(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.run(w, r, searchPlugin, fixedSource{options: map[string]any{"query": doc}})
}

func searchDocument(r *http.Request) (map[string]any, error) {
	doc := map[string]any{}
	match := map[string]any{}
	for name, values := range r.URL.Query() {
		if len(values) == 0 {
			continue
		}
		raw := values[len(values)-1]
		switch name {
		case callbackParam, downloadParam:
		case "text", "q":
			doc["text"] = raw
		case "limit", "offset":
			n, err := strconv.Atoi(strings.TrimSpace(raw))
			if err != nil {
				return nil, services.Wrap(services.ErrValidation, "api", "search", name+" must be an integer", err)
			}
			doc[name] = n
		default:
			v, err := cliargs.Literal(raw)
			if err != nil {
				return nil, services.Wrap(services.ErrValidation, "api", "search", name, err)
			}
			match[name] = v
		}
	}
	if len(match) > 0 {
		doc["match"] = match
	}
	if _, err := storage.QueryFromMap(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Server) handleSound(w http.ResponseWriter, r *http.Request) {
	if s.lib == nil {
		writeError(w, r, errNoLibrary())
		return
	}
	snd, err := s.lib.Get(r.Context(), r.PathValue("uid"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, s.lib.Naming().ToMap(snd))
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	if s.lib == nil {
		writeError(w, r, errNoLibrary())
		return
	}
	snd, body, err := s.lib.Read(r.Context(), r.PathValue("uid"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer body.Close()
	setAttachmentHeaders(w, s.lib.Naming(), snd)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		logging.WithContext(r.Context(), s.logger).WarnContext(r.Context(), "file transfer interrupted",
			logging.String(logging.FieldSoundUID, snd.UID),
			logging.Error(err))
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if s.lib == nil {
		writeError(w, r, errNoLibrary())
		return
	}
	uid := r.PathValue("uid")
	if err := s.lib.Rm(r.Context(), uid); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, DeleteResponse{Deleted: uid})
}

// run invokes key in the api context and answers through a responseSink.
func (s *Server) run(w http.ResponseWriter, r *http.Request, key string, src plugin.Source) {
	ctx := services.WithPlugin(r.Context(), key)
	env := &plugin.Env{Config: s.cfg, Library: s.lib, Registry: s.reg, Logger: s.logger}
	sink := newResponseSink(w, r, s.naming(), s.logger)
	_, err := s.reg.Run(ctx, key, plugin.ContextAPI,
		plugin.WithEnv(env),
		plugin.WithSource(src),
		plugin.WithSink(sink),
	)
	if err != nil && !sink.written {
		logging.WithContext(ctx, s.logger).DebugContext(ctx, "plugin run failed",
			logging.String("kind", services.Kind(err)),
			logging.Error(err))
		writeError(w, r, err)
	}
}

func (s *Server) naming() sound.Naming {
	if s.lib != nil {
		return s.lib.Naming()
	}
	return sound.NewNaming(s.cfg)
}

func errNoLibrary() error {
	return services.Wrap(services.ErrConfiguration, "api", "library", "sound library not available", nil)
}

// fixedSource supplies options built by the server itself.
type fixedSource struct {
	options map[string]any
}

func (f fixedSource) Options(context.Context) (map[string]any, error) { return f.options, nil }

func (fixedSource) Data(context.Context) (iter.Seq2[any, error], error) { return nil, nil }
