// Registry manages factory registration and lookup.
//
// DESIGN: Thread-safe map of provider name → Factory. Built-in factories
// are registered at construction.
package adapters

import (
	"sync"
)

// Registry manages provider factory registration.
type Registry struct {
	factories map[string]*Factory
	mu        sync.RWMutex
}

// NewRegistry creates a registry with all built-in provider factories.
func NewRegistry() *Registry {
	r := &Registry{
		factories: make(map[string]*Factory),
	}

	r.Register(newOpenAIFactory())
	r.Register(newVLLMFactory())
	r.Register(newOllamaFactory())
	r.Register(newMiniMaxFactory())
	r.Register(newAnthropicFactory())
	r.Register(newGeminiFactory())
	r.Register(newBedrockFactory())

	return r
}

// Register adds a factory to the registry.
func (r *Registry) Register(f *Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[f.Provider] = f
}

// Get returns a factory by provider name, nil when unknown.
func (r *Registry) Get(provider string) *Factory {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.factories[provider]
}

// Providers returns the registered provider names.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}
