// Package sentence provides the bank of practice sentences.
//
// A [Bank] is immutable once built. The default bank is embedded in the
// binary; [Load] reads a replacement from a YAML file of the form:
//
//	sentences:
//	  - id: s001
//	    text: 你好
//	    jyutping: nei5 hou2
//	    meaning: Hello
//
// [Catalog] holds the current bank for servers that reload it at runtime.
package sentence

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/cantomaster/internal/scoring"
)

//go:embed sentences.yaml
var defaultBank []byte

// Sentence is one practice item.
type Sentence struct {
	// ID is unique within a bank.
	ID string `yaml:"id" json:"id"`

	// Text is the written Cantonese target.
	Text string `yaml:"text" json:"text"`

	// Romanization is the Jyutping reading of Text.
	Romanization string `yaml:"jyutping" json:"jyutping,omitempty"`

	// Meaning is an English gloss.
	Meaning string `yaml:"meaning" json:"meaning,omitempty"`
}

type file struct {
	Sentences []Sentence `yaml:"sentences"`
}

// Bank is an immutable, ordered set of sentences. It is safe for
// concurrent use.
type Bank struct {
	sentences []Sentence
	index     map[string]int

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a [Bank].
type Option func(*Bank)

// WithRand sets the random source used by Random and Next.
func WithRand(r *rand.Rand) Option {
	return func(b *Bank) {
		if r != nil {
			b.rng = r
		}
	}
}

// New builds a bank from sentences. IDs must be unique and non-empty, and
// every text must contain at least one Chinese ideograph.
func New(sentences []Sentence, opts ...Option) (*Bank, error) {
	if len(sentences) == 0 {
		return nil, errors.New("sentence: bank is empty")
	}
	b := &Bank{
		sentences: append([]Sentence(nil), sentences...),
		index:     make(map[string]int, len(sentences)),
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	var errs []error
	for i, s := range b.sentences {
		switch {
		case s.ID == "":
			errs = append(errs, fmt.Errorf("sentences[%d].id is required", i))
		case s.Text == "":
			errs = append(errs, fmt.Errorf("sentences[%d] (%s): text is required", i, s.ID))
		case scoring.Normalize(s.Text) == "":
			errs = append(errs, fmt.Errorf("sentences[%d] (%s): text %q has no Chinese characters to score", i, s.ID, s.Text))
		}
		if s.ID == "" {
			continue
		}
		if prev, ok := b.index[s.ID]; ok {
			errs = append(errs, fmt.Errorf("sentences[%d].id %q is a duplicate of sentences[%d]", i, s.ID, prev))
			continue
		}
		b.index[s.ID] = i
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("sentence: invalid bank: %w", err)
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Default returns the embedded bank.
func Default(opts ...Option) *Bank {
	b, err := LoadFromReader(bytes.NewReader(defaultBank), opts...)
	if err != nil {
		panic(fmt.Sprintf("sentence: embedded bank: %v", err))
	}
	return b
}

// Load reads a bank from the YAML file at path.
func Load(path string, opts ...Option) (*Bank, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sentence: open %q: %w", path, err)
	}
	defer f.Close()

	b, err := LoadFromReader(f, opts...)
	if err != nil {
		return nil, fmt.Errorf("sentence: parse %q: %w", path, err)
	}
	return b, nil
}

// LoadFromReader decodes a YAML bank from r. Unknown keys are rejected.
func LoadFromReader(r io.Reader, opts ...Option) (*Bank, error) {
	var f file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("sentence: decode yaml: %w", err)
	}
	return New(f.Sentences, opts...)
}

// Len returns the number of sentences.
func (b *Bank) Len() int { return len(b.sentences) }

// All returns a copy of the sentences in file order.
func (b *Bank) All() []Sentence {
	return append([]Sentence(nil), b.sentences...)
}

// IDs returns every sentence ID in file order.
func (b *Bank) IDs() []string {
	ids := make([]string, len(b.sentences))
	for i, s := range b.sentences {
		ids[i] = s.ID
	}
	return ids
}

// Get returns the sentence with the given ID.
func (b *Bank) Get(id string) (Sentence, bool) {
	i, ok := b.index[id]
	if !ok {
		return Sentence{}, false
	}
	return b.sentences[i], true
}

// Random returns a uniformly chosen sentence.
func (b *Bank) Random() Sentence {
	return b.sentences[b.intN(len(b.sentences))]
}

// Next returns a random sentence other than excludeID. A single-sentence
// bank returns its only sentence; an unknown excludeID behaves like Random.
func (b *Bank) Next(excludeID string) Sentence {
	skip, ok := b.index[excludeID]
	if !ok || len(b.sentences) == 1 {
		return b.Random()
	}
	i := b.intN(len(b.sentences) - 1)
	if i >= skip {
		i++
	}
	return b.sentences[i]
}

func (b *Bank) intN(n int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rng.IntN(n)
}

// Catalog holds the current bank and lets it be swapped while readers are
// active.
type Catalog struct {
	bank atomic.Pointer[Bank]
}

// NewCatalog returns a catalog serving b.
func NewCatalog(b *Bank) *Catalog {
	c := &Catalog{}
	c.bank.Store(b)
	return c
}

// Bank returns the current bank.
func (c *Catalog) Bank() *Bank { return c.bank.Load() }

// Replace installs b and returns the previous bank.
func (c *Catalog) Replace(b *Bank) *Bank { return c.bank.Swap(b) }
