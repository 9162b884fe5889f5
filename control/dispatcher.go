package control

import (
	"sync"

	"github.com/google/uuid"
)

// Resource is anything a Dispatcher can own the lifecycle of: analyzer
// sinks, capture sinks, and generator sources all satisfy this with
// their existing start/stop operations.
type Resource interface {
	Start() error
	Stop() error
}

// Dispatcher implements the list/create/delete/get/start/stop verb set,
// generic over one subsystem's resource type so the analyzer, capture
// and generator subsystems each get their own typed Dispatcher instead
// of duplicating this bookkeeping three times.
type Dispatcher[T Resource] struct {
	mu    sync.Mutex
	items map[uuid.UUID]T
}

// NewDispatcher returns an empty Dispatcher.
func NewDispatcher[T Resource]() *Dispatcher[T] {
	return &Dispatcher[T]{items: make(map[uuid.UUID]T)}
}

// Create registers item under id, failing with AlreadyExists if id is
// already in use.
func (d *Dispatcher[T]) Create(id uuid.UUID, item T) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.items[id]; ok {
		return Errorf(AlreadyExists, "resource %s already exists", id)
	}
	d.items[id] = item
	return nil
}

// Get returns the resource registered under id.
func (d *Dispatcher[T]) Get(id uuid.UUID) (T, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	item, ok := d.items[id]
	if !ok {
		var zero T
		return zero, Errorf(NotFound, "no resource with id %s", id)
	}
	return item, nil
}

// List returns every registered id, in no particular order.
func (d *Dispatcher[T]) List() []uuid.UUID {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(d.items))
	for id := range d.items {
		ids = append(ids, id)
	}
	return ids
}

// Delete stops (best-effort) and removes the resource registered under
// id.
func (d *Dispatcher[T]) Delete(id uuid.UUID) error {
	d.mu.Lock()
	item, ok := d.items[id]
	if ok {
		delete(d.items, id)
	}
	d.mu.Unlock()
	if !ok {
		return Errorf(NotFound, "no resource with id %s", id)
	}
	return item.Stop()
}

// Start looks up id and calls its Start method.
func (d *Dispatcher[T]) Start(id uuid.UUID) error {
	item, err := d.Get(id)
	if err != nil {
		return err
	}
	if err := item.Start(); err != nil {
		return Wrap(FailedPrecondition, err, "start failed")
	}
	return nil
}

// Stop looks up id and calls its Stop method.
func (d *Dispatcher[T]) Stop(id uuid.UUID) error {
	item, err := d.Get(id)
	if err != nil {
		return err
	}
	if err := item.Stop(); err != nil {
		return Wrap(FailedPrecondition, err, "stop failed")
	}
	return nil
}
