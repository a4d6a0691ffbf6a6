package provider

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"bookforge-gateway/internal/models"
)

// ErrUnknownProvider indicates the requested provider is not registered.
var ErrUnknownProvider = errors.New("unknown provider")

// ErrDuplicateProvider indicates an attempt to register the same provider twice.
var ErrDuplicateProvider = errors.New("provider already registered")

// ErrNoCapability indicates an adapter implements neither Streamer nor Completer.
var ErrNoCapability = errors.New("adapter implements no generation capability")

// Registry maps provider names to adapters. It is filled once at startup and
// only read afterwards.
type Registry struct {
	mu       sync.RWMutex
	adapters map[models.Provider]Adapter
}

// NewRegistry constructs an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[models.Provider]Adapter),
	}
}

// Register adds an adapter under its own name.
func (r *Registry) Register(a Adapter) error {
	if a == nil {
		return errors.New("adapter must not be nil")
	}
	switch a.(type) {
	case Streamer, Completer:
	default:
		return fmt.Errorf("%w: %s", ErrNoCapability, a.Name())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[a.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateProvider, a.Name())
	}
	r.adapters[a.Name()] = a
	return nil
}

// Lookup returns the adapter registered for name.
func (r *Registry) Lookup(name models.Provider) (Adapter, error) {
	key := models.Provider(strings.ToLower(strings.TrimSpace(string(name))))

	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return a, nil
}

// Names lists the registered providers in sorted order.
func (r *Registry) Names() []models.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]models.Provider, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
