package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/cantomaster/pkg/provider/stt"
	"github.com/MrWong99/cantomaster/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned when no factory matches a
// [ProviderEntry]'s name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider from its config entry.
type Factory[P any] func(ProviderEntry) (P, error)

// Registry resolves provider names from the config file to speech engines.
// It is safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	stt map[string]Factory[stt.Provider]
	tts map[string]Factory[tts.Provider]
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt: map[string]Factory[stt.Provider]{},
		tts: map[string]Factory[tts.Provider]{},
	}
}

// RegisterSTT adds a recognizer factory. A later call with the same name
// replaces it.
func (r *Registry) RegisterSTT(name string, f Factory[stt.Provider]) {
	r.mu.Lock()
	r.stt[name] = f
	r.mu.Unlock()
}

// RegisterTTS adds a synthesizer factory. A later call with the same name
// replaces it.
func (r *Registry) RegisterTTS(name string, f Factory[tts.Provider]) {
	r.mu.Lock()
	r.tts[name] = f
	r.mu.Unlock()
}

// CreateSTT builds the recognizer named by entry.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	f := r.stt[entry.Name]
	r.mu.RUnlock()
	return build(f, "stt", entry)
}

// CreateTTS builds the synthesizer named by entry.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	f := r.tts[entry.Name]
	r.mu.RUnlock()
	return build(f, "tts", entry)
}

// Names lists the registered names for kind ("stt" or "tts") in sorted
// order. Any other kind yields nil.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch kind {
	case "stt":
		return sortedKeys(r.stt)
	case "tts":
		return sortedKeys(r.tts)
	}
	return nil
}

func build[P any](f Factory[P], kind string, entry ProviderEntry) (P, error) {
	if f == nil {
		var zero P
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, entry.Name)
	}
	p, err := f(entry)
	if err != nil {
		var zero P
		return zero, fmt.Errorf("config: create %s %q: %w", kind, entry.Name, err)
	}
	return p, nil
}

func sortedKeys[V any](m map[string]V) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
