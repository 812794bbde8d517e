// Package observability exposes Prometheus metrics and Kubernetes-style probes
// on a dedicated admin port.
package observability

import "context"

// Checker defines the contract for any component that needs to report its health status.
// Implementations must be thread-safe and respect the context deadline.
type Checker interface {
	// Name returns the unique identifier of the component (e.g., "postgres", "redis", "rules").
	Name() string
	// Check returns nil if healthy, or an error describing the failure.
	Check(ctx context.Context) error
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc struct {
	ComponentName string
	Fn            func(ctx context.Context) error
}

// Name returns the component name.
func (c CheckerFunc) Name() string { return c.ComponentName }

// Check calls Fn.
func (c CheckerFunc) Check(ctx context.Context) error { return c.Fn(ctx) }
