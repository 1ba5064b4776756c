package extractor

import (
	"fmt"

	"github.com/pkemkes/the-gist-of-it-sec-sub001/internal/domain"
)

// Factory builds an extractor from per-feed options (e.g. a CSS selector).
type Factory func(options map[string]string) (domain.TextExtractor, error)

// Registry keeps a mapping from extractor names to their factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register adds or replaces a factory.
func (r *Registry) Register(name string, factory Factory) {
	if r.factories == nil {
		r.factories = map[string]Factory{}
	}
	r.factories[name] = factory
}

// Resolve builds the named extractor or returns an error if it is absent.
func (r *Registry) Resolve(name string, options map[string]string) (domain.TextExtractor, error) {
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("extractor %s is not registered", name)
	}
	return factory(options)
}
