// Package embedding provides text embedding generation with swappable
// providers. The rest of the system treats a provider as a pure function
// from text to a fixed-length dense vector.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrUnavailable marks failures where the embedding provider cannot be
// reached or did not produce a usable vector. Callers surface these as an
// embedding-unavailable condition and do not retry automatically.
var ErrUnavailable = errors.New("embedding provider unavailable")

// Model represents a text embedding provider.
type Model interface {
	// Name returns the human-readable provider name.
	Name() string

	// Version returns a short version string for config selection.
	Version() string

	// Dimensions returns the embedding vector size.
	Dimensions() int

	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Close releases provider resources.
	Close() error
}

// ModelMetadata describes an embedding provider for config.
type ModelMetadata struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Dimensions  int    `json:"dimensions"`
	Description string `json:"description"`
	Default     bool   `json:"default"`
}

// ModelFactory creates a new instance of an embedding provider.
type ModelFactory func() (Model, error)

// ModelRegistry provides provider lookup by version.
type ModelRegistry struct {
	mu           sync.RWMutex
	models       map[string]ModelFactory
	metadata     map[string]ModelMetadata
	defaultModel string
}

// NewModelRegistry creates a new model registry.
func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{
		models:   make(map[string]ModelFactory),
		metadata: make(map[string]ModelMetadata),
	}
}

// Register adds a provider factory to the registry.
func (r *ModelRegistry) Register(meta ModelMetadata, factory ModelFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.models[meta.Version] = factory
	r.metadata[meta.Version] = meta

	if meta.Default {
		r.defaultModel = meta.Version
	}
}

// Get creates a new instance of the provider with the given version.
func (r *ModelRegistry) Get(version string) (Model, error) {
	r.mu.RLock()
	factory, ok := r.models[version]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown embedding provider: %s", version)
	}

	return factory()
}

// Default returns the default provider version.
func (r *ModelRegistry) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultModel
}

// List returns metadata for all registered providers.
func (r *ModelRegistry) List() []ModelMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ModelMetadata, 0, len(r.metadata))
	for _, m := range r.metadata {
		out = append(out, m)
	}
	return out
}

// defaultRegistry is the package-level registry providers register into.
var defaultRegistry = NewModelRegistry()

// RegisterModel registers a provider with the default registry.
func RegisterModel(meta ModelMetadata, factory ModelFactory) {
	defaultRegistry.Register(meta, factory)
}

// GetModel creates a provider instance from the default registry.
func GetModel(version string) (Model, error) {
	if version == "" {
		version = defaultRegistry.Default()
	}
	return defaultRegistry.Get(version)
}
