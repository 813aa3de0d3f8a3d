package output

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/leapstack-labs/galotfa/pkg/core"
)

// BackendFactory builds a backend instance. A nil logger means discard.
type BackendFactory func(*slog.Logger) core.Backend

var (
	registryMu sync.RWMutex
	registry   = make(map[string]BackendFactory)
)

// RegisterBackend adds a backend factory to the registry.
// Called by backend implementations in their init() functions.
func RegisterBackend(name string, factory BackendFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// GetBackend retrieves a backend factory by name.
func GetBackend(name string) (BackendFactory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// NewBackend creates a backend instance by registered name.
func NewBackend(name string, logger *slog.Logger) (core.Backend, error) {
	if name == "" {
		return nil, fmt.Errorf("backend type not specified")
	}

	factory, ok := GetBackend(name)
	if !ok {
		return nil, &UnknownBackendError{
			Type:      name,
			Available: ListBackends(),
		}
	}
	return factory(logger), nil
}

// ListBackends returns all registered backend names (sorted).
func ListBackends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered checks if a backend type is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[name]
	return ok
}

// UnknownBackendError is returned when an unknown backend type is requested.
type UnknownBackendError struct {
	Type      string
	Available []string
}

func (e *UnknownBackendError) Error() string {
	hint := "Check output.backend in galotfa.yaml"
	if e.Type == "hdf5" {
		hint = HDF5BuildHint
	}
	return fmt.Sprintf("unknown output backend %q\nAvailable backends: %v\nHint: %s", e.Type, e.Available, hint)
}

// HDF5BuildHint explains how to get the hdf5 backend, which needs cgo and
// libhdf5 and is left out of default builds.
const HDF5BuildHint = "the hdf5 backend is only compiled in with cgo and libhdf5: go build -tags hdf5 ./cmd/galotfa"
