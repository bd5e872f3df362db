// Package drivers maps driver names from the configuration to sdfat.Driver
// constructors.
package drivers

import (
	"fmt"
	"sync"

	"github.com/brettbedarf/sdfat"
	"github.com/brettbedarf/sdfat/config"
)

// Factory creates a driver for cfg.
type Factory func(cfg *config.Config) (sdfat.Driver, error)

// Registry holds named driver factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register ties a factory to a driver name. The first registration of a
// name wins.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return
	}
	r.factories[name] = f
}

// GetFactory returns the factory registered under name.
func (r *Registry) GetFactory(name string) (Factory, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no driver registered as %q", name)
	}
	return f, nil
}

// Names returns the registered driver names in no particular order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// NewDriver builds the driver named by cfg.Driver.
func (r *Registry) NewDriver(cfg *config.Config) (sdfat.Driver, error) {
	f, err := r.GetFactory(cfg.Driver)
	if err != nil {
		return nil, err
	}
	return f(cfg)
}
