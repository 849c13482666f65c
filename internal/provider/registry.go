package provider

import (
	"sort"
	"sync"

	"server/internal/domain"
)

// Registry maps provider names to generation backends. Registration happens
// at startup but the registry stays safe for concurrent use so credentials
// rotation can invalidate or replace providers at runtime. In-flight tasks
// keep the Generator instance they already resolved.
type Registry struct {
	mu          sync.RWMutex
	providers   map[string]Generator
	defaultName string
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Generator)}
}

// Register inserts or overwrites a provider under its name. The first
// provider ever registered becomes the default unless a later registration
// explicitly claims it.
func (r *Registry) Register(g Generator, isDefault bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[g.Name()] = g
	if isDefault || r.defaultName == "" {
		r.defaultName = g.Name()
	}
}

// Get resolves a provider by name.
func (r *Registry) Get(name string) (Generator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.providers[name]
	if !ok {
		return nil, &NotFoundError{Name: name, Available: r.namesLocked()}
	}
	return g, nil
}

// Default returns the default provider.
func (r *Registry) Default() (Generator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.defaultName == "" {
		return nil, domain.NewConfigurationError("no default provider registered")
	}
	return r.providers[r.defaultName], nil
}

// Invalidate drops any cached session or credentials held by the named
// provider's adapter without removing its registration. Used when API keys
// are rotated at runtime. Providers without cached state are a no-op.
func (r *Registry) Invalidate(name string) error {
	r.mu.RLock()
	g, ok := r.providers[name]
	available := r.namesLocked()
	r.mu.RUnlock()
	if !ok {
		return &NotFoundError{Name: name, Available: available}
	}
	if inv, ok := g.(Invalidator); ok {
		inv.Invalidate()
	}
	return nil
}

// Names lists registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
