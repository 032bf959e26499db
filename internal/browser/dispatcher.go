// internal/browser/dispatcher.go
package browser

import (
	"fmt"
	"sync"

	"github.com/xkilldash9x/actionwatch/api/schemas"
)

// Dispatcher fans events out to the handlers subscribed to their kind.
// Publish delivers synchronously, in subscription order, on the caller's goroutine.
type Dispatcher struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[schemas.EventKind][]entry
	closed bool
}

type entry struct {
	id uint64
	h  Handler
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{subs: make(map[schemas.EventKind][]entry)}
}

func knownKind(kind schemas.EventKind) bool {
	for _, k := range schemas.EventKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Subscribe registers h for events of kind.
func (d *Dispatcher) Subscribe(kind schemas.EventKind, h Handler) (Subscription, error) {
	if !knownKind(kind) {
		return Subscription{}, fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
	}
	if h == nil {
		return Subscription{}, fmt.Errorf("nil handler for %q", kind)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return Subscription{}, ErrPageClosed
	}
	d.nextID++
	d.subs[kind] = append(d.subs[kind], entry{id: d.nextID, h: h})
	return Subscription{ID: d.nextID, Kind: kind}, nil
}

// Unsubscribe removes a registration. Removing twice returns ErrUnknownSubscription.
func (d *Dispatcher) Unsubscribe(sub Subscription) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	list := d.subs[sub.Kind]
	for i, e := range list {
		if e.id == sub.ID {
			// Copy so a concurrent Publish holding the old slice is unaffected.
			next := make([]entry, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			d.subs[sub.Kind] = next
			return nil
		}
	}
	return fmt.Errorf("%w: %d (%s)", ErrUnknownSubscription, sub.ID, sub.Kind)
}

// Publish delivers ev to every handler subscribed to ev.Kind.
func (d *Dispatcher) Publish(ev schemas.Event) {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return
	}
	handlers := d.subs[ev.Kind]
	d.mu.RUnlock()

	for _, e := range handlers {
		e.h(ev)
	}
}

// Count reports how many handlers are registered for kind.
func (d *Dispatcher) Count(kind schemas.EventKind) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs[kind])
}

// Close drops every subscription and rejects new ones.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.subs = make(map[schemas.EventKind][]entry)
}
