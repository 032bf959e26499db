// internal/browser/page.go
package browser

import (
	"context"
	"errors"
	"time"

	"github.com/xkilldash9x/actionwatch/api/schemas"
)

var (
	// ErrPageClosed is returned by operations on a page whose tab has gone away.
	ErrPageClosed = errors.New("page is closed")
	// ErrUnknownSubscription is returned when unsubscribing something that is not registered.
	ErrUnknownSubscription = errors.New("unknown subscription")
	// ErrUnsupportedKind is returned when subscribing to an event kind the page does not emit.
	ErrUnsupportedKind = errors.New("unsupported event kind")
)

// Handler receives raw page events. Handlers run on the page's dispatch
// goroutine and must not block.
type Handler func(schemas.Event)

// Subscription identifies one registered handler.
type Subscription struct {
	ID   uint64
	Kind schemas.EventKind
}

// Page is the control surface the monitor drives. It evaluates script in the
// document, polls predicates from the host side and delivers side-channel events.
type Page interface {
	// Evaluate runs expression in the page, awaiting a returned promise, and
	// decodes the JSON value into out. out may be nil.
	Evaluate(ctx context.Context, expression string, out any) error
	// WaitForCondition polls predicate until it is truthy or timeout elapses.
	// A timeout is reported as (false, nil); context cancellation as (false, ctx.Err()).
	WaitForCondition(ctx context.Context, predicate string, timeout time.Duration) (bool, error)
	Subscribe(kind schemas.EventKind, h Handler) (Subscription, error)
	Unsubscribe(sub Subscription) error
}

// NetworkActivity is implemented by pages that can report in-flight requests.
type NetworkActivity interface {
	InflightRequests() int
}
