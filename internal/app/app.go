// Package app wires the cantomaster subsystems into a running server.
//
// The App struct owns the full lifecycle: New loads the sentence bank and
// builds the HTTP surface, Run serves until the context is cancelled, and
// Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithCatalog,
// WithListener, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/cantomaster/internal/config"
	"github.com/MrWong99/cantomaster/internal/health"
	"github.com/MrWong99/cantomaster/internal/observe"
	"github.com/MrWong99/cantomaster/internal/sentence"
	"github.com/MrWong99/cantomaster/internal/speech"
	"github.com/MrWong99/cantomaster/internal/web"
	"github.com/MrWong99/cantomaster/pkg/provider/stt"
	"github.com/MrWong99/cantomaster/pkg/provider/tts"
)

// Providers holds one interface value per speech stage. Nil means the stage
// runs in the browser or is unavailable. Populated by main.go via the config
// registry.
type Providers struct {
	STT stt.Provider
	TTS tts.Provider
}

// App owns all subsystem lifetimes of the practice server.
type App struct {
	cfg        *config.Config
	providers  *Providers
	configPath string
	interval   time.Duration
	level      *slog.LevelVar

	// Subsystems, initialised in New and torn down in Shutdown.
	catalog  *sentence.Catalog
	metrics  *observe.Metrics
	health   *health.Handler
	web      *web.Server
	server   *http.Server
	listener net.Listener

	mu            sync.Mutex
	bankWatcher   *config.Watcher[*sentence.Bank]
	configWatcher *config.Watcher[*config.Config]

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithCatalog injects a sentence catalog instead of loading one from config.
func WithCatalog(c *sentence.Catalog) Option {
	return func(a *App) { a.catalog = c }
}

// WithMetrics injects metrics instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithListener serves on ln instead of listening on cfg.Server.ListenAddr.
func WithListener(ln net.Listener) Option {
	return func(a *App) { a.listener = ln }
}

// WithConfigPath hot-reloads the config file at path while running.
func WithConfigPath(path string) Option {
	return func(a *App) { a.configPath = path }
}

// WithLogLevel lets config reloads adjust the log level through lv.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithWatchInterval sets how often watched files are polled.
func WithWatchInterval(d time.Duration) Option {
	return func(a *App) { a.interval = d }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		interval:  5 * time.Second,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Sentence bank ─────────────────────────────────────────────────
	if err := a.initCatalog(); err != nil {
		return nil, fmt.Errorf("app: init sentences: %w", err)
	}

	// ── 2. Health checks ─────────────────────────────────────────────────
	a.initHealth()

	// ── 3. HTTP surface ──────────────────────────────────────────────────
	a.initWeb()

	// ── 4. Config hot reload ─────────────────────────────────────────────
	if err := a.initConfigWatcher(); err != nil {
		return nil, fmt.Errorf("app: init config watcher: %w", err)
	}

	slog.Info("app initialised",
		"sentences", a.catalog.Bank().Len(),
		"synthesis", a.cfg.Providers.TTS.Name,
		"recognition", a.cfg.Providers.STT.Name,
	)
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initCatalog loads the configured sentence file, watching it for changes,
// or falls back to the built-in bank.
func (a *App) initCatalog() error {
	if a.catalog != nil {
		return nil
	}
	path := a.cfg.Practice.SentencesFile
	if path == "" {
		a.catalog = sentence.NewCatalog(sentence.Default())
		return nil
	}
	a.catalog = sentence.NewCatalog(nil)
	return a.watchSentences(path)
}

// watchSentences replaces the catalog's bank with the file at path and keeps
// it current. A previous sentence watcher is stopped.
func (a *App) watchSentences(path string) error {
	w, err := config.Watch(path, loadBank, func(_, b *sentence.Bank) {
		a.catalog.Replace(b)
		slog.Info("sentence bank reloaded", "path", path, "sentences", b.Len())
	}, config.WithInterval(a.interval))
	if err != nil {
		return fmt.Errorf("load %q: %w", path, err)
	}
	a.catalog.Replace(w.Current())

	a.mu.Lock()
	prev := a.bankWatcher
	a.bankWatcher = w
	a.mu.Unlock()
	if prev != nil {
		prev.Stop()
	}
	slog.Info("loaded sentence bank", "path", path, "sentences", w.Current().Len())
	return nil
}

func loadBank(r io.Reader) (*sentence.Bank, error) {
	return sentence.LoadFromReader(r)
}

// initHealth registers readiness checks for the bank and for every HTTP
// provider endpoint that is configured.
func (a *App) initHealth() {
	a.health = health.New(health.Checker{
		Name: "sentences",
		Check: func(context.Context) error {
			if b := a.catalog.Bank(); b == nil || b.Len() == 0 {
				return errors.New("sentence bank is empty")
			}
			return nil
		},
	})
	client := &http.Client{Timeout: 3 * time.Second}
	for _, e := range []struct {
		kind  string
		entry config.ProviderEntry
	}{
		{"stt", a.cfg.Providers.STT},
		{"tts", a.cfg.Providers.TTS},
	} {
		if e.entry.BaseURL == "" || e.entry.Name == config.ClientProvider {
			continue
		}
		a.health.Add(health.Reachable(e.kind+":"+e.entry.Name, e.entry.BaseURL, client))
	}
}

func (a *App) initWeb() {
	opts := []web.Option{
		web.WithSettings(settingsFrom(a.cfg)),
		web.WithMetrics(a.metrics),
		web.WithHealth(a.health),
		web.WithStaticDir(a.cfg.Server.StaticDir),
		web.WithAllowedOrigins(a.cfg.Server.AllowedOrigins...),
	}
	switch {
	case a.cfg.Providers.STT.Name == config.ClientProvider:
		opts = append(opts, web.WithClientSTT())
	case a.providers.STT != nil:
		opts = append(opts, web.WithSTT(a.providers.STT))
	}
	switch {
	case a.cfg.Providers.TTS.Name == config.ClientProvider:
		opts = append(opts, web.WithClientTTS())
	case a.providers.TTS != nil:
		opts = append(opts, web.WithTTS(a.providers.TTS))
	}
	a.web = web.New(a.catalog, opts...)
	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.web.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (a *App) initConfigWatcher() error {
	if a.configPath == "" {
		return nil
	}
	w, err := config.NewWatcher(a.configPath, a.applyConfig, config.WithInterval(a.interval))
	if err != nil {
		return err
	}
	a.configWatcher = w
	return nil
}

// applyConfig hot-applies the parts of a changed config that allow it.
func (a *App) applyConfig(old, cfg *config.Config) {
	d := config.Diff(old, cfg)
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.SlogLevel())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.SpeechChanged || d.PracticeChanged {
		a.web.SetSettings(settingsFrom(cfg))
		slog.Info("practice settings updated; new connections use them")
	}
	if d.SentencesChanged {
		a.reloadSentences(cfg.Practice.SentencesFile)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "settings", d.RestartRequired)
	}
}

func (a *App) reloadSentences(path string) {
	if path == "" {
		a.mu.Lock()
		prev := a.bankWatcher
		a.bankWatcher = nil
		a.mu.Unlock()
		if prev != nil {
			prev.Stop()
		}
		a.catalog.Replace(sentence.Default())
		slog.Info("sentence bank reset to built-in set")
		return
	}
	if err := a.watchSentences(path); err != nil {
		slog.Warn("sentence bank reload failed; keeping current bank", "path", path, "err", err)
	}
}

// settingsFrom derives per-connection practice defaults from cfg.
func settingsFrom(cfg *config.Config) web.Settings {
	st := web.DefaultSettings()
	if cfg.Speech.Locale != "" {
		st.Locale = cfg.Speech.Locale
	}
	if cfg.Speech.Rate != 0 {
		st.Rate = cfg.Speech.Rate
	}
	if len(cfg.Speech.VoiceHints) > 0 {
		st.VoiceHints = cfg.Speech.VoiceHints
	} else {
		st.VoiceHints = speech.DefaultVoiceHints
	}
	st.AutoPlay = cfg.Practice.AutoPlayEnabled()
	st.AutoPlayNext = cfg.Practice.AutoPlayNext
	if cfg.Practice.AutoNextDelay > 0 {
		st.AutoNextDelay = cfg.Practice.AutoNextDelay
	}
	return st
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Catalog returns the live sentence catalog.
func (a *App) Catalog() *sentence.Catalog { return a.catalog }

// Web returns the HTTP surface.
func (a *App) Web() *web.Server { return a.web }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and blocks until ctx is cancelled or the server fails.
// When ctx is done, Run returns context.Canceled (or the underlying cause).
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		switch {
		case a.listener != nil && a.cfg.Server.TLS != nil:
			err = a.server.ServeTLS(a.listener, a.cfg.Server.TLS.CertFile, a.cfg.Server.TLS.KeyFile)
		case a.listener != nil:
			err = a.server.Serve(a.listener)
		case a.cfg.Server.TLS != nil:
			err = a.server.ListenAndServeTLS(a.cfg.Server.TLS.CertFile, a.cfg.Server.TLS.KeyFile)
		default:
			err = a.server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve http: %w", err)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	slog.Info("app running", "addr", a.addr())
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (a *App) addr() string {
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return a.cfg.Server.ListenAddr
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.configWatcher != nil {
			a.configWatcher.Stop()
		}
		a.mu.Lock()
		if a.bankWatcher != nil {
			a.bankWatcher.Stop()
		}
		a.mu.Unlock()

		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown error", "err", err)
		}

		for _, p := range []any{a.providers.STT, a.providers.TTS} {
			if c, ok := p.(io.Closer); ok {
				a.closers = append(a.closers, c.Close)
			}
		}

		// Run closers in order.
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
