// Package registry owns all mutable per-order state. Every status or escrow
// transition for an order runs under that order's own lock, which is what
// upholds "escrow detection wins" and "reveal at most once" under concurrent
// ticks. Chain queries must never run inside Update.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/lzmrd/EthXlmAtomic/internal/model"
)

// ErrDuplicateOrder is returned when an order id is registered twice.
var ErrDuplicateOrder = errors.New("order already registered")

// State is the mutable record for one order. Mutators receive it inside
// Update with the order lock held; snapshots handed out elsewhere are copies.
type State struct {
	Public *model.PublicOrder
	Escrow *model.EscrowStatus
}

type entry struct {
	mu sync.Mutex
	st State
}

// Registry is the map of live orders keyed by order id.
type Registry struct {
	mu     sync.RWMutex
	orders map[string]*entry
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{orders: make(map[string]*entry)}
}

// Add registers a new order. The registry takes ownership of both records.
func (r *Registry) Add(pub *model.PublicOrder, es *model.EscrowStatus) error {
	if pub == nil || pub.ID == "" {
		return errors.New("public order with id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[pub.ID]; ok {
		return fmt.Errorf("order %s: %w", pub.ID, ErrDuplicateOrder)
	}
	r.orders[pub.ID] = &entry{st: State{Public: pub, Escrow: es}}
	return nil
}

// Update runs fn with the order's lock held. It returns false for unknown
// orders. fn must not block on I/O.
func (r *Registry) Update(orderID string, fn func(*State)) bool {
	r.mu.RLock()
	e, ok := r.orders[orderID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.st)
	return true
}

// Snapshot returns copies of the order's records.
func (r *Registry) Snapshot(orderID string) (*model.PublicOrder, *model.EscrowStatus, bool) {
	r.mu.RLock()
	e, ok := r.orders[orderID]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st.Public.Clone(), e.st.Escrow.Clone(), true
}

// List returns snapshots of every order.
func (r *Registry) List() []*model.PublicOrder {
	return r.collect(func(*model.PublicOrder) bool { return true })
}

// Active returns snapshots of orders that have not reached a terminal status.
func (r *Registry) Active() []*model.PublicOrder {
	return r.collect(func(p *model.PublicOrder) bool { return !p.Status.Terminal() })
}

// Counts tallies orders per status for the health endpoint.
func (r *Registry) Counts() map[model.OrderStatus]int {
	counts := make(map[model.OrderStatus]int)
	for _, p := range r.List() {
		counts[p.Status]++
	}
	return counts
}

func (r *Registry) collect(keep func(*model.PublicOrder) bool) []*model.PublicOrder {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.orders))
	for _, e := range r.orders {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]*model.PublicOrder, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		p := e.st.Public.Clone()
		e.mu.Unlock()
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}
