// Package validation holds the constructor guards shared by PhishGuard packages.
// The guards panic: a missing dependency is a wiring bug, not a runtime condition.
package validation

import "fmt"

// AssertNotNil panics with "<pkg>: <name> cannot be nil" if ptr is nil.
//
// Usage:
//
//	validation.AssertNotNil(pool, "store", "database pool")
func AssertNotNil[T any](ptr *T, pkg, name string) {
	if ptr == nil {
		panic(fmt.Sprintf("%s: %s cannot be nil", pkg, name))
	}
}

// AssertPositive panics if n < 1. Capacities and limits use it.
func AssertPositive(n int, pkg, name string) {
	if n < 1 {
		panic(fmt.Sprintf("%s: %s must be >= 1, got %d", pkg, name, n))
	}
}
