// Package web serves the browser practice surface: a small JSON API, the
// websocket practice channel, health and metrics endpoints, and a front end
// at /. The embedded page is served unless a static directory replaces it.
//
// Each websocket connection gets its own [speech.Controller]. Speech runs
// either on the server (a tts/stt provider streaming PCM over the socket) or
// in the browser, in which case the server drives the browser's own speech
// APIs through protocol messages.
package web

import (
	"embed"
	"encoding/json"
	"io/fs"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/cantomaster/internal/health"
	"github.com/MrWong99/cantomaster/internal/observe"
	"github.com/MrWong99/cantomaster/internal/scoring"
	"github.com/MrWong99/cantomaster/internal/sentence"
	"github.com/MrWong99/cantomaster/internal/speech"
	"github.com/MrWong99/cantomaster/pkg/provider/stt"
	"github.com/MrWong99/cantomaster/pkg/provider/tts"
)

// Settings are the per-connection defaults a new practice session starts
// with. They may be replaced at runtime with [Server.SetSettings].
type Settings struct {
	Locale        string
	Rate          float64
	VoiceHints    []string
	AutoPlay      bool
	AutoPlayNext  bool
	AutoNextDelay time.Duration
}

// DefaultSettings matches the practice defaults: zh-HK at 0.9× rate,
// auto-play on, auto-next off, one second between sentences.
func DefaultSettings() Settings {
	return Settings{
		Locale:        speech.DefaultLocale,
		Rate:          speech.DefaultRate,
		VoiceHints:    speech.DefaultVoiceHints,
		AutoPlay:      true,
		AutoNextDelay: time.Second,
	}
}

// SpeechMode selects where synthesis or recognition runs.
type SpeechMode int

const (
	// ModeNone disables the capability.
	ModeNone SpeechMode = iota
	// ModeServer uses a server-side provider.
	ModeServer
	// ModeClient delegates to the browser's speech APIs.
	ModeClient
)

// String returns the mode name.
func (m SpeechMode) String() string {
	switch m {
	case ModeServer:
		return "server"
	case ModeClient:
		return "client"
	default:
		return "none"
	}
}

// Option configures a [Server].
type Option func(*Server)

// WithSTT recognises speech server-side with p.
func WithSTT(p stt.Provider) Option {
	return func(s *Server) {
		s.stt = p
		s.sttMode = ModeServer
	}
}

// WithTTS synthesizes speech server-side with p and streams PCM to the browser.
func WithTTS(p tts.Provider) Option {
	return func(s *Server) {
		s.tts = p
		s.ttsMode = ModeServer
	}
}

// WithClientSTT delegates recognition to the browser.
func WithClientSTT() Option {
	return func(s *Server) { s.sttMode = ModeClient }
}

// WithClientTTS delegates synthesis to the browser.
func WithClientTTS() Option {
	return func(s *Server) { s.ttsMode = ModeClient }
}

// WithSettings sets the initial per-connection defaults.
func WithSettings(st Settings) Option {
	return func(s *Server) { s.settings.Store(&st) }
}

// WithMetrics records to m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHealth serves h on /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithStaticDir serves the files in dir under / instead of the built-in page.
func WithStaticDir(dir string) Option {
	return func(s *Server) { s.staticDir = dir }
}

// WithAllowedOrigins permits websocket connections from the given origin
// host patterns in addition to same-origin requests.
func WithAllowedOrigins(patterns ...string) Option {
	return func(s *Server) { s.origins = patterns }
}

// Server is the HTTP surface of the practice service.
type Server struct {
	catalog   *sentence.Catalog
	stt       stt.Provider
	tts       tts.Provider
	sttMode   SpeechMode
	ttsMode   SpeechMode
	metrics   *observe.Metrics
	health    *health.Handler
	staticDir string
	origins   []string

	settings atomic.Pointer[Settings]
	sessions atomic.Int64
}

// New returns a Server drawing sentences from catalog.
func New(catalog *sentence.Catalog, opts ...Option) *Server {
	s := &Server{catalog: catalog}
	def := DefaultSettings()
	s.settings.Store(&def)
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.health == nil {
		s.health = health.New()
	}
	return s
}

// Settings returns the defaults applied to new connections.
func (s *Server) Settings() Settings { return *s.settings.Load() }

// SetSettings replaces the defaults applied to new connections. Open
// connections keep the settings they started with.
func (s *Server) SetSettings(st Settings) { s.settings.Store(&st) }

// Modes reports where synthesis and recognition run.
func (s *Server) Modes() (synthesis, recognition SpeechMode) { return s.ttsMode, s.sttMode }

// Sessions returns the number of open practice connections.
func (s *Server) Sessions() int { return int(s.sessions.Load()) }

// Handler returns the routed, instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/sentence", s.handleSentence)
	mux.HandleFunc("GET /api/sentences", s.handleSentences)
	mux.HandleFunc("GET /api/sentences/{id}", s.handleSentenceByID)
	mux.HandleFunc("POST /api/score", s.handleScore)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.Handle("GET /metrics", observe.MetricsHandler())
	s.health.Register(mux)
	mux.Handle("GET /", http.FileServer(s.frontEnd()))
	return observe.Middleware(s.metrics)(mux)
}

//go:embed page
var page embed.FS

// frontEnd is the static directory if one is configured, else the built-in
// page, which speaks the full websocket protocol including client speech.
func (s *Server) frontEnd() http.FileSystem {
	if s.staticDir != "" {
		return http.Dir(s.staticDir)
	}
	sub, err := fs.Sub(page, "page")
	if err != nil {
		panic(err)
	}
	return http.FS(sub)
}

// handleSentence returns a random sentence, avoiding ?exclude= when the bank
// has more than one.
func (s *Server) handleSentence(w http.ResponseWriter, r *http.Request) {
	st := s.catalog.Bank().Next(r.URL.Query().Get("exclude"))
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSentences(w http.ResponseWriter, _ *http.Request) {
	b := s.catalog.Bank()
	writeJSON(w, http.StatusOK, map[string]any{
		"count": b.Len(),
		"ids":   b.IDs(),
	})
}

func (s *Server) handleSentenceByID(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, ok := s.catalog.Bank().Get(id)
	if !ok {
		http.Error(w, "sentence not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Target == "" {
		http.Error(w, "target is required", http.StatusBadRequest)
		return
	}
	res := scoring.Evaluate(req.Target, req.Transcript)
	s.metrics.RecordScore(r.Context(), res.Score)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.origins,
	})
	if err != nil {
		observe.Logger(r.Context()).Warn("web: websocket accept failed", "err", err)
		return
	}
	conn.SetReadLimit(1 << 20)

	sess := newSession(s, conn)
	s.sessions.Add(1)
	s.metrics.ActiveConnections.Add(r.Context(), 1)
	defer func() {
		s.sessions.Add(-1)
		s.metrics.ActiveConnections.Add(r.Context(), -1)
	}()

	err = sess.serve(r.Context())
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		conn.Close(websocket.StatusNormalClosure, "")
	default:
		if err != nil {
			slog.Debug("web: session ended", "session", sess.id, "err", err)
		}
		conn.Close(websocket.StatusInternalError, "session ended")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("web: write response", "err", err)
	}
}
