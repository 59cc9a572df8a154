package http

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/svoctor/lisper-go"
	"github.com/svoctor/lisper-go/internal/logging"
	"github.com/svoctor/lisper-go/pkg/domain"
	"github.com/svoctor/lisper-go/pkg/highlight"
	"github.com/svoctor/lisper-go/pkg/sanitize"
	"github.com/svoctor/lisper-go/pkg/session"
)

//go:embed static/index.html
var indexHTML []byte

// Sessions is the part of session.Manager the server drives.
type Sessions interface {
	Open(ctx context.Context, sessionID string) (*session.Session, error)
	Resume(ctx context.Context, sessionID string) (*session.Session, error)
	Delete(ctx context.Context, sessionID string) error
	List(ctx context.Context) ([]string, error)
}

// LoaderInfo reports the evaluator loader state on /info.
type LoaderInfo interface {
	Provider() string
	Status() domain.LoaderStatus
}

// Server exposes the playground over HTTP.
type Server struct {
	sessions       Sessions
	highlighter    *highlight.Highlighter
	renderer       *highlight.Renderer
	loader         LoaderInfo
	gatherer       prometheus.Gatherer
	maxSourceBytes int
	logger         *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithHighlighter sets the highlighter used by /highlight.
func WithHighlighter(h *highlight.Highlighter) Option {
	return func(s *Server) {
		s.highlighter = h
	}
}

// WithRenderer sets the renderer used for highlighted HTML and theme stylesheets.
func WithRenderer(r *highlight.Renderer) Option {
	return func(s *Server) {
		s.renderer = r
	}
}

// WithLoaderInfo exposes the evaluator loader state on /info.
func WithLoaderInfo(l LoaderInfo) Option {
	return func(s *Server) {
		s.loader = l
	}
}

// WithMetrics serves the given gatherer on /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithMaxSourceBytes bounds the size of submitted source text.
func WithMaxSourceBytes(n int) Option {
	return func(s *Server) {
		s.maxSourceBytes = n
	}
}

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewHandler creates a new HTTP handler for the playground.
func NewHandler(sessions Sessions, opts ...Option) http.Handler {
	s := &Server{
		sessions:       sessions,
		highlighter:    highlight.New(),
		renderer:       highlight.NewRenderer("", ""),
		maxSourceBytes: sanitize.DefaultMaxSourceBytes,
		logger:         logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Get("/", s.Index)
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/theme.css", s.GetThemeCSS)
	r.Post("/highlight", s.Highlight)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.ListSessions)
		r.Post("/", s.CreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetSession)
			r.Delete("/", s.DeleteSession)
			r.Put("/source", s.UpdateSource)
			r.Post("/theme", s.ToggleTheme)
			r.Get("/events", s.SubscribeEvents)
		})
	})

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HighlightRequest is the body of POST /highlight.
type HighlightRequest struct {
	Source string `json:"source"`
}

// HighlightResponse carries highlighted HTML and the markup tree.
type HighlightResponse struct {
	HTML     string            `json:"html"`
	Balanced bool              `json:"balanced"`
	Plain    bool              `json:"plain,omitempty"`
	Markup   *highlight.Markup `json:"markup,omitempty"`
}

// SourceRequest is the body of PUT /sessions/{id}/source.
type SourceRequest struct {
	Source string `json:"source"`
}

// EvaluationResponse describes an accepted evaluate call.
type EvaluationResponse struct {
	Seq       uint64                  `json:"seq"`
	Completed bool                    `json:"completed"`
	Committed bool                    `json:"committed"`
	Output    string                  `json:"output,omitempty"`
	Status    domain.EvaluationStatus `json:"status,omitempty"`
	Snapshot  domain.Snapshot         `json:"snapshot"`
}

// Index serves the editor page.
func (s *Server) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"app":     "lisper-http",
		"version": lisper.Version,
		"lexer":   s.highlighter.Lexer(),
	}
	if s.loader != nil {
		resp["provider"] = s.loader.Provider()
		resp["loader"] = s.loader.Status()
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetThemeCSS serves the stylesheet for the theme given by the "theme" query parameter.
func (s *Server) GetThemeCSS(w http.ResponseWriter, r *http.Request) {
	theme, err := domain.ParseTheme(r.URL.Query().Get("theme"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	css, err := s.renderer.CSS(theme)
	if err != nil {
		http.Error(w, fmt.Sprintf("Stylesheet error: %v", err), http.StatusInternalServerError)
		s.logger.Error("Failed to render stylesheet", "theme", theme, "err", err)
		return
	}
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	_, _ = w.Write([]byte(css))
}

// Highlight handles the POST /highlight request.
func (s *Server) Highlight(w http.ResponseWriter, r *http.Request) {
	var body HighlightRequest
	if !s.decode(w, r, &body) {
		return
	}
	source, ok := s.sanitize(w, body.Source)
	if !ok {
		return
	}

	m := s.highlighter.Highlight(source)
	resp := HighlightResponse{
		HTML:     s.renderer.HTML(m),
		Balanced: m.Balanced,
		Plain:    m.Plain,
	}
	if r.URL.Query().Get("tree") == "true" {
		resp.Markup = m
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListSessions handles the GET /sessions request.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.sessions.List(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("List error: %v", err), http.StatusInternalServerError)
		s.logger.Error("Failed to list sessions", "err", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"sessions": ids})
}

// CreateSession handles the POST /sessions request. The new session starts from the
// sample program, which is evaluated right away.
func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	sess, err := s.sessions.Open(r.Context(), id)
	if err != nil {
		http.Error(w, fmt.Sprintf("Session error: %v", err), http.StatusInternalServerError)
		s.logger.Error("Failed to create session", "session_id", id, "err", err)
		return
	}
	w.Header().Set("Location", "/sessions/"+id)
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

// GetSession handles the GET /sessions/{id} request.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.resume(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// DeleteSession handles the DELETE /sessions/{id} request.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.sessions.Delete(r.Context(), id); err != nil {
		http.Error(w, fmt.Sprintf("Delete error: %v", err), http.StatusInternalServerError)
		s.logger.Error("Failed to delete session", "session_id", id, "err", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateSource handles the PUT /sessions/{id}/source request. The source is visible in the
// session before the response is written. With ?wait=true the response is delayed until the
// evaluation completes.
func (s *Server) UpdateSource(w http.ResponseWriter, r *http.Request) {
	var body SourceRequest
	if !s.decode(w, r, &body) {
		return
	}
	source, ok := s.sanitize(w, body.Source)
	if !ok {
		return
	}
	sess, ok := s.resume(w, r)
	if !ok {
		return
	}

	call := sess.Evaluate(source)
	status := http.StatusAccepted
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		if err := call.Wait(r.Context()); err != nil {
			// The client went away; the evaluation itself carries on.
			s.logger.Debug("Client stopped waiting for evaluation", "session_id", sess.ID, "seq", call.Seq, "err", err)
			return
		}
		status = http.StatusOK
	}

	resp := EvaluationResponse{
		Seq:      call.Seq,
		Snapshot: sess.Snapshot(),
	}
	select {
	case <-call.Done():
		resp.Completed = true
		resp.Committed = call.Committed()
		resp.Output = call.Output()
		resp.Status = call.Status()
	default:
	}
	writeJSON(w, status, resp)
}

// ToggleTheme handles the POST /sessions/{id}/theme request.
func (s *Server) ToggleTheme(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.resume(w, r)
	if !ok {
		return
	}
	sess.ToggleTheme()
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// SubscribeEvents handles the GET /sessions/{id}/events request (SSE).
// The first event carries the whole snapshot; later events carry only changed fields.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}
	sess, ok := s.resume(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	s.logger.Info("SSE: Subscribing to Session Updates", "session_id", sess.ID)
	ch, cancel := sess.Store.Subscribe()
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	var prev *domain.Snapshot
	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE Client Disconnected", "session_id", sess.ID)
			return
		case snap, ok := <-ch:
			if !ok {
				// Session closed.
				fmt.Fprintf(w, "event: closed\ndata: %s\n\n", sess.ID)
				flusher.Flush()
				return
			}
			diff := domain.Diff(prev, &snap)
			prev = &snap
			if diff == nil {
				continue
			}
			payload, err := json.Marshal(diff)
			if err != nil {
				s.logger.Error("SSE: Failed to encode diff", "session_id", sess.ID, "err", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

// -- Helpers --

func (s *Server) resume(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := chi.URLParam(r, "id")
	sess, err := s.sessions.Resume(r.Context(), id)
	if errors.Is(err, domain.ErrSessionNotFound) {
		http.Error(w, fmt.Sprintf("Session %q not found", id), http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("Session error: %v", err), http.StatusInternalServerError)
		s.logger.Error("Failed to resume session", "session_id", id, "err", err)
		return nil, false
	}
	return sess, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.maxSourceBytes)*4+1024)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("Invalid request body", "path", r.URL.Path, "err", err)
		return false
	}
	return true
}

func (s *Server) sanitize(w http.ResponseWriter, source string) (string, bool) {
	clean, err := sanitize.Source(source, s.maxSourceBytes)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, sanitize.ErrSourceTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		http.Error(w, fmt.Sprintf("Invalid source: %v", err), status)
		s.logger.Warn("Source rejected", "err", err, "size", len(source))
		return "", false
	}
	return clean, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
