package store

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/tablewriter/pkg/errors"
	"github.com/ajitpratap0/tablewriter/pkg/logger"
)

// Registry maps driver names to dialers.
type Registry struct {
	dialers map[string]Dialer
	mu      sync.RWMutex
	logger  *zap.Logger
}

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		dialers: make(map[string]Dialer),
		logger:  logger.Component(nil, "store_registry"),
	}
}

// Register adds a dialer under name.
func (r *Registry) Register(name string, d Dialer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.dialers[name]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("store driver %s already registered", name))
	}
	r.dialers[name] = d
	r.logger.Debug("store driver registered", zap.String("name", name))
	return nil
}

// Lookup returns the dialer registered under name.
func (r *Registry) Lookup(name string) (Dialer, error) {
	r.mu.RLock()
	d, exists := r.dialers[name]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("store driver %s not found", name))
	}
	return d, nil
}

// Drivers returns the registered driver names in sorted order.
func (r *Registry) Drivers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.dialers))
	for name := range r.dialers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Register adds a dialer to the global registry.
func Register(name string, d Dialer) error {
	return globalRegistry.Register(name, d)
}

// MustRegister is Register for driver init functions.
func MustRegister(name string, d Dialer) {
	if err := Register(name, d); err != nil {
		panic(err)
	}
}

// Lookup returns a dialer from the global registry.
func Lookup(name string) (Dialer, error) {
	return globalRegistry.Lookup(name)
}

// Drivers lists the drivers of the global registry.
func Drivers() []string {
	return globalRegistry.Drivers()
}
