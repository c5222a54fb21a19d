package handler

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// table is an immutable snapshot once published through Registry.current.
type table struct {
	order []*Definition
	index map[string]*Definition
}

func newTable(capacity int) *table {
	return &table{
		order: make([]*Definition, 0, capacity),
		index: make(map[string]*Definition, capacity),
	}
}

func (t *table) insert(def *Definition) error {
	if _, exists := t.index[def.Identifier]; exists {
		return fmt.Errorf("%s: %w", def.Identifier, ErrDuplicateIdentifier)
	}
	t.order = append(t.order, def)
	t.index[def.Identifier] = def
	return nil
}

func (t *table) clone() *table {
	next := newTable(len(t.order) + 1)
	for _, def := range t.order {
		next.order = append(next.order, def)
		next.index[def.Identifier] = def
	}
	return next
}

// Registry maps identifiers to definitions of one kind. Lookups read an
// atomically published table; writers build a new table and swap it in, so a
// dispatch never observes a half-cleared map.
type Registry struct {
	kind    Kind
	mu      sync.Mutex
	current atomic.Pointer[table]
}

func NewRegistry(kind Kind) *Registry {
	r := &Registry{kind: kind}
	r.current.Store(newTable(0))
	return r
}

func (r *Registry) Kind() Kind {
	return r.kind
}

// Set inserts def. An existing identifier is kept and ErrDuplicateIdentifier
// is returned.
func (r *Registry) Set(def *Definition) error {
	if def == nil || def.Identifier == "" {
		return fmt.Errorf("%w: missing identifier", ErrValidation)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.current.Load().clone()
	if err := next.insert(def); err != nil {
		return err
	}
	r.current.Store(next)
	return nil
}

func (r *Registry) Get(identifier string) (*Definition, bool) {
	def, ok := r.current.Load().index[identifier]
	return def, ok
}

func (r *Registry) Has(identifier string) bool {
	_, ok := r.Get(identifier)
	return ok
}

// All returns the definitions in insertion order.
func (r *Registry) All() []*Definition {
	order := r.current.Load().order
	out := make([]*Definition, len(order))
	copy(out, order)
	return out
}

func (r *Registry) Len() int {
	return len(r.current.Load().order)
}

func (r *Registry) Clear() {
	r.swap(newTable(0))
}

func (r *Registry) swap(next *table) {
	r.mu.Lock()
	r.current.Store(next)
	r.mu.Unlock()
}
