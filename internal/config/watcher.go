package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher polls a file and keeps the last value that parsed cleanly. Both
// the server config and the sentence bank are reloaded through it.
//
// A change is noticed by modification time and confirmed by content hash,
// so touching a file without editing it does not fire onChange. Content
// that fails to parse is logged and ignored until the file changes again.
type Watcher[T any] struct {
	path     string
	parse    func(io.Reader) (T, error)
	onChange func(old, new T)
	every    time.Duration

	mu      sync.Mutex
	current T
	seen    fileState

	quit     chan struct{}
	quitOnce sync.Once
}

type fileState struct {
	modTime time.Time
	sum     [sha256.Size]byte
}

type watchSettings struct {
	interval time.Duration
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*watchSettings)

// WithInterval sets how often the file is polled. Default: 5s.
func WithInterval(d time.Duration) WatcherOption {
	return func(s *watchSettings) {
		if d > 0 {
			s.interval = d
		}
	}
}

// NewWatcher watches the YAML config at path.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher[*Config], error) {
	return Watch(path, LoadFromReader, onChange, opts...)
}

// Watch parses path once and then polls it in the background until Stop.
// It fails if the first parse fails.
func Watch[T any](path string, parse func(io.Reader) (T, error), onChange func(old, new T), opts ...WatcherOption) (*Watcher[T], error) {
	s := watchSettings{interval: 5 * time.Second}
	for _, opt := range opts {
		opt(&s)
	}

	w := &Watcher[T]{
		path:     path,
		parse:    parse,
		onChange: onChange,
		every:    s.interval,
		quit:     make(chan struct{}),
	}
	v, st, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	w.current, w.seen = v, st

	go w.loop()
	return w, nil
}

// Current returns the last value that parsed.
func (w *Watcher[T]) Current() T {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends polling. It is safe to call more than once.
func (w *Watcher[T]) Stop() {
	w.quitOnce.Do(func() { close(w.quit) })
}

func (w *Watcher[T]) loop() {
	t := time.NewTicker(w.every)
	defer t.Stop()
	for {
		select {
		case <-w.quit:
			return
		case <-t.C:
			w.refresh()
		}
	}
}

func (w *Watcher[T]) refresh() {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("watch: stat failed", "path", w.path, "err", err)
		return
	}
	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.seen.modTime)
	w.mu.Unlock()
	if unchanged {
		return
	}

	v, st, err := w.read()
	if err != nil {
		slog.Warn("watch: keeping previous value", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	edited := st.sum != w.seen.sum
	w.seen = st
	old := w.current
	if edited {
		w.current = v
	}
	w.mu.Unlock()

	if !edited {
		return
	}
	slog.Info("watch: reloaded", "path", w.path)
	// Called unlocked so the callback may use Current.
	if w.onChange != nil {
		w.onChange(old, v)
	}
}

func (w *Watcher[T]) read() (T, fileState, error) {
	var zero T
	f, err := os.Open(w.path)
	if err != nil {
		return zero, fileState{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return zero, fileState{}, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return zero, fileState{}, err
	}
	v, err := w.parse(bytes.NewReader(data))
	if err != nil {
		return zero, fileState{}, err
	}
	return v, fileState{modTime: info.ModTime(), sum: sha256.Sum256(data)}, nil
}
