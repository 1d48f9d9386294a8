// Package metrics defines the observability surface for the RPC runtime:
// an interface describing what gets measured, and a registry helper for
// wiring a Prometheus implementation behind it with zero overhead when
// disabled.
package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu       sync.Mutex
	registry *prometheus.Registry
	enabled  atomic.Bool
)

// InitRegistry creates and installs the process-wide Prometheus registry.
// Call this once, before constructing any metrics implementation, to turn
// metrics collection on. Subsequent calls replace the existing registry.
func InitRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()

	registry = prometheus.NewRegistry()
	enabled.Store(true)
	return registry
}

// GetRegistry returns the active registry, or nil if InitRegistry hasn't
// been called.
func GetRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	return registry
}

// IsEnabled reports whether metrics collection is active.
func IsEnabled() bool {
	return enabled.Load()
}

// Reset clears the registry, primarily for test isolation.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	registry = nil
	enabled.Store(false)
}
