package ruleengine

import (
	"fmt"
	"sync/atomic"
)

// Registry holds the active RuleSet per candidate kind.
// Replacement is an atomic pointer swap: in-flight evaluations keep the
// snapshot they loaded and never observe a partially updated set.
type Registry struct {
	url   atomic.Pointer[RuleSet]
	email atomic.Pointer[RuleSet]
}

// NewRegistry returns a Registry whose sets are all empty.
func NewRegistry() *Registry {
	r := &Registry{}
	r.url.Store(Empty())
	r.email.Store(Empty())
	return r
}

// Load returns the current snapshot for kind. It never returns nil for a valid kind.
func (r *Registry) Load(kind Kind) *RuleSet {
	slot, err := r.slot(kind)
	if err != nil {
		return Empty()
	}
	return slot.Load()
}

// Store swaps in rs for kind and returns the previous snapshot.
// A nil rs is stored as an empty set.
func (r *Registry) Store(kind Kind, rs *RuleSet) (*RuleSet, error) {
	slot, err := r.slot(kind)
	if err != nil {
		return nil, err
	}
	if rs == nil {
		rs = Empty()
	}
	return slot.Swap(rs), nil
}

func (r *Registry) slot(kind Kind) (*atomic.Pointer[RuleSet], error) {
	switch kind {
	case KindURL:
		return &r.url, nil
	case KindEmail:
		return &r.email, nil
	default:
		return nil, fmt.Errorf("unknown candidate kind %q", kind)
	}
}
