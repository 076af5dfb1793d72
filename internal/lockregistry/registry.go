// Package lockregistry implements C5: a per-table mutual-exclusion registry
// modeled directly on the teacher's CircuitBreakerManager map-of-mutexes
// idiom (risk/circuit_breaker.go).
package lockregistry

import (
	"sync"
	"time"

	"github.com/sqlflowx/transformengine/internal/model"
)

// entry tracks one table's lock state alongside its mutex.
type entry struct {
	mu       sync.Mutex
	held     bool
	holderID string
	since    time.Time
}

// Registry is a process-local, per-table advisory lock. Each table name
// maps to its own entry so unrelated tables never contend.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewRegistry creates an empty lock registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

func (r *Registry) entryFor(table string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[table]
	if !ok {
		e = &entry{}
		r.entries[table] = e
	}
	return e
}

// Lease represents a held lock; Release is idempotent and safe to defer.
type Lease struct {
	table    string
	e        *entry
	released bool
	mu       sync.Mutex
}

// Release frees the lock. Calling it more than once is a no-op.
func (l *Lease) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return
	}
	l.released = true

	l.e.mu.Lock()
	l.e.held = false
	l.e.holderID = ""
	l.e.mu.Unlock()
}

// TryAcquire attempts to take the per-table lock, returning a TABLE_BUSY
// *model.TransformError (model.TableBusyError) immediately (never blocking)
// if it is already held (spec.md §4.5).
func (r *Registry) TryAcquire(table, holderID string) (*Lease, error) {
	e := r.entryFor(table)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.held {
		return nil, model.TableBusyError(table)
	}

	e.held = true
	e.holderID = holderID
	e.since = time.Now()

	return &Lease{table: table, e: e}, nil
}

// IsLocked reports whether table is currently held, for diagnostics.
func (r *Registry) IsLocked(table string) bool {
	e := r.entryFor(table)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.held
}
