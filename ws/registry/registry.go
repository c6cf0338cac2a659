package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bhoriuchi/graphql-ws-client/ws/protocol"
)

var (
	ErrOperationExists = errors.New("operation already exists")
	ErrNoOperationID   = errors.New("operation has no id")
)

// Observer receives the events of a single operation. Every callback is
// optional.
type Observer struct {
	Next     func(result *protocol.ExecutionResult)
	Error    func(err error)
	Complete func()
}

// Operation is one logical subscription multiplexed over the connection
type Operation struct {
	ID           string
	Params       protocol.Params
	Observer     Observer
	Started      bool
	Acknowledged bool
}

// Registry holds the registered operations keyed by operation id and
// remembers the order they were added in so replays are deterministic
type Registry struct {
	mx         sync.RWMutex
	operations map[string]*Operation
	order      []string
}

func New() *Registry {
	return &Registry{
		operations: map[string]*Operation{},
	}
}

// Count returns the number of registered operations, can be used for
// diagnostics
func (r *Registry) Count() int {
	r.mx.RLock()
	defer r.mx.RUnlock()
	return len(r.operations)
}

// Has returns true if the operation exists
func (r *Registry) Has(id string) bool {
	r.mx.RLock()
	defer r.mx.RUnlock()

	_, ok := r.operations[id]
	return ok
}

// Get returns a copy of the operation
func (r *Registry) Get(id string) (Operation, bool) {
	r.mx.RLock()
	defer r.mx.RUnlock()

	op, ok := r.operations[id]
	if !ok {
		return Operation{}, false
	}
	return *op, true
}

// Add registers a new operation. Ids must be unique among the registered
// operations.
func (r *Registry) Add(op Operation) error {
	if op.ID == "" {
		return ErrNoOperationID
	}

	r.mx.Lock()
	defer r.mx.Unlock()

	if _, ok := r.operations[op.ID]; ok {
		return fmt.Errorf("%w: %q", ErrOperationExists, op.ID)
	}

	r.operations[op.ID] = &op
	r.order = append(r.order, op.ID)
	return nil
}

// Remove removes a single operation and returns it
func (r *Registry) Remove(id string) (Operation, bool) {
	r.mx.Lock()
	defer r.mx.Unlock()

	op, ok := r.operations[id]
	if !ok {
		return Operation{}, false
	}

	delete(r.operations, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	return *op, true
}

// RemoveAll removes every operation and returns them in registration order
func (r *Registry) RemoveAll() []Operation {
	r.mx.Lock()
	defer r.mx.Unlock()

	ops := make([]Operation, 0, len(r.order))
	for _, id := range r.order {
		ops = append(ops, *r.operations[id])
	}

	r.operations = map[string]*Operation{}
	r.order = nil
	return ops
}

// IDs returns the registered operation ids in registration order
func (r *Registry) IDs() []string {
	r.mx.RLock()
	defer r.mx.RUnlock()

	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}

// MarkStarted flags the operation as started and returns true if it
// existed and was not started yet
func (r *Registry) MarkStarted(id string) bool {
	r.mx.Lock()
	defer r.mx.Unlock()

	op, ok := r.operations[id]
	if !ok || op.Started {
		return false
	}

	op.Started = true
	return true
}

// MarkAcknowledged flags the operation as acknowledged and returns false
// if it does not exist
func (r *Registry) MarkAcknowledged(id string) bool {
	r.mx.Lock()
	defer r.mx.Unlock()

	op, ok := r.operations[id]
	if !ok {
		return false
	}

	op.Acknowledged = true
	return true
}

// ResetAll marks every operation unstarted and unacknowledged so they are
// started again on the next connection
func (r *Registry) ResetAll() {
	r.mx.Lock()
	defer r.mx.Unlock()

	for _, op := range r.operations {
		op.Started = false
		op.Acknowledged = false
	}
}
