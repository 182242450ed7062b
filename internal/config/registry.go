package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/livescribe/pkg/provider/embeddings"
	"github.com/MrWong99/livescribe/pkg/provider/stt"
	"github.com/MrWong99/livescribe/pkg/provider/translate"
)

// ErrProviderNotRegistered is returned by the Create methods when no
// factory has been registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider from its configuration entry.
type Factory[T any] func(ProviderEntry) (T, error)

// factories is one kind's name-to-factory table.
type factories[T any] struct {
	kind string
	m    map[string]Factory[T]
}

func newFactories[T any](kind string) factories[T] {
	return factories[T]{kind: kind, m: make(map[string]Factory[T])}
}

// lookup returns the factory for entry.Name. Factories run after the
// registry lock is released.
func (f factories[T]) lookup(entry ProviderEntry) (Factory[T], error) {
	factory, ok := f.m[entry.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, entry.Name)
	}
	return factory, nil
}

func create[T any](r *Registry, f *factories[T], entry ProviderEntry) (T, error) {
	r.mu.RLock()
	factory, err := f.lookup(entry)
	r.mu.RUnlock()
	if err != nil {
		var zero T
		return zero, err
	}
	return factory(entry)
}

func (f factories[T]) names() []string {
	out := make([]string, 0, len(f.m))
	for name := range f.m {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Registry maps provider names to constructors for each provider kind. It
// is safe for concurrent use. Registering a name twice replaces the earlier
// factory.
type Registry struct {
	mu         sync.RWMutex
	stt        factories[stt.Transcriber]
	translate  factories[translate.Translator]
	embeddings factories[embeddings.Provider]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:        newFactories[stt.Transcriber]("stt"),
		translate:  newFactories[translate.Translator]("translate"),
		embeddings: newFactories[embeddings.Provider]("embeddings"),
	}
}

// RegisterSTT registers a transcriber factory under name.
func (r *Registry) RegisterSTT(name string, f Factory[stt.Transcriber]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt.m[name] = f
}

// RegisterTranslator registers a translator factory under name.
func (r *Registry) RegisterTranslator(name string, f Factory[translate.Translator]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.translate.m[name] = f
}

// RegisterEmbeddings registers an embeddings factory under name.
func (r *Registry) RegisterEmbeddings(name string, f Factory[embeddings.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embeddings.m[name] = f
}

// CreateSTT instantiates the transcriber registered under entry.Name.
// Returns [ErrProviderNotRegistered] if there is none.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Transcriber, error) {
	return create(r, &r.stt, entry)
}

// CreateTranslator instantiates the translator registered under entry.Name.
func (r *Registry) CreateTranslator(entry ProviderEntry) (translate.Translator, error) {
	return create(r, &r.translate, entry)
}

// CreateEmbeddings instantiates the embeddings provider registered under
// entry.Name.
func (r *Registry) CreateEmbeddings(entry ProviderEntry) (embeddings.Provider, error) {
	return create(r, &r.embeddings, entry)
}

// Names returns the sorted registered names for kind ("stt", "translate"
// or "embeddings").
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch kind {
	case "stt":
		return r.stt.names()
	case "translate":
		return r.translate.names()
	case "embeddings":
		return r.embeddings.names()
	}
	return nil
}
