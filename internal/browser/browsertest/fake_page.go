// Package browsertest provides an in-memory browser.Page for tests.
package browsertest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/actionwatch/api/schemas"
	"github.com/xkilldash9x/actionwatch/internal/browser"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// EvaluateFunc scripts the page's response to an evaluation. The returned
// value is round-tripped through JSON into the caller's destination.
type EvaluateFunc func(ctx context.Context, expression string) (any, error)

// FakePage is a scriptable browser.Page. The zero value is not usable; call New.
type FakePage struct {
	// PollInterval is used by WaitForCondition.
	PollInterval time.Duration

	mu           sync.Mutex
	evaluate     EvaluateFunc
	evaluated    []string
	subscribeErr map[schemas.EventKind]error
	subscribed   map[schemas.EventKind]int

	dispatcher *browser.Dispatcher
	inflight   atomic.Int64
}

var (
	_ browser.Page            = (*FakePage)(nil)
	_ browser.NetworkActivity = (*FakePage)(nil)
)

// New returns a page whose evaluations all yield null.
func New() *FakePage {
	return &FakePage{
		PollInterval: 5 * time.Millisecond,
		subscribeErr: make(map[schemas.EventKind]error),
		subscribed:   make(map[schemas.EventKind]int),
		dispatcher:   browser.NewDispatcher(),
	}
}

// OnEvaluate replaces the evaluation script.
func (f *FakePage) OnEvaluate(fn EvaluateFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evaluate = fn
}

// FailSubscribe makes subscriptions to kind fail with err.
func (f *FakePage) FailSubscribe(kind schemas.EventKind, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribeErr[kind] = err
}

// Evaluate implements browser.Page.
func (f *FakePage) Evaluate(ctx context.Context, expression string, out any) error {
	f.mu.Lock()
	f.evaluated = append(f.evaluated, expression)
	fn := f.evaluate
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if fn == nil {
		return nil
	}
	v, err := fn(ctx, expression)
	if err != nil {
		return err
	}
	if out == nil || v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("fake page: encode result: %w", err)
	}
	return json.Unmarshal(raw, out)
}

// WaitForCondition implements browser.Page by polling Evaluate.
func (f *FakePage) WaitForCondition(ctx context.Context, predicate string, timeout time.Duration) (bool, error) {
	expr := browser.TruthyExpression(predicate)
	return browser.PollCondition(ctx, timeout, f.PollInterval, func(c context.Context) (bool, error) {
		var ok bool
		err := f.Evaluate(c, expr, &ok)
		return ok, err
	})
}

// Subscribe implements browser.Page.
func (f *FakePage) Subscribe(kind schemas.EventKind, h browser.Handler) (browser.Subscription, error) {
	f.mu.Lock()
	err := f.subscribeErr[kind]
	if err == nil {
		f.subscribed[kind]++
	}
	f.mu.Unlock()
	if err != nil {
		return browser.Subscription{}, err
	}
	return f.dispatcher.Subscribe(kind, h)
}

// Unsubscribe implements browser.Page.
func (f *FakePage) Unsubscribe(sub browser.Subscription) error {
	return f.dispatcher.Unsubscribe(sub)
}

// InflightRequests implements browser.NetworkActivity.
func (f *FakePage) InflightRequests() int { return int(f.inflight.Load()) }

// SetInflight sets the reported number of in-flight requests.
func (f *FakePage) SetInflight(n int) { f.inflight.Store(int64(n)) }

// Emit delivers ev to current subscribers, stamping it with the current time if unset.
func (f *FakePage) Emit(ev schemas.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	f.dispatcher.Publish(ev)
}

// Subscribers reports the live handlers for kind.
func (f *FakePage) Subscribers(kind schemas.EventKind) int {
	return f.dispatcher.Count(kind)
}

// SubscribeCalls reports how many successful Subscribe calls were made for kind.
func (f *FakePage) SubscribeCalls(kind schemas.EventKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribed[kind]
}

// TotalSubscribers reports the live handlers across every kind.
func (f *FakePage) TotalSubscribers() int {
	total := 0
	for _, k := range schemas.EventKinds {
		total += f.dispatcher.Count(k)
	}
	return total
}

// Evaluated returns every expression passed to Evaluate, in order.
func (f *FakePage) Evaluated() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.evaluated))
	copy(out, f.evaluated)
	return out
}

// EvaluatedContaining counts evaluated expressions containing substr.
func (f *FakePage) EvaluatedContaining(substr string) int {
	n := 0
	for _, e := range f.Evaluated() {
		if strings.Contains(e, substr) {
			n++
		}
	}
	return n
}

// Console builds a console event.
func Console(level, text string) schemas.Event {
	return schemas.Event{Kind: schemas.EventConsole, Console: &schemas.ConsoleEvent{Level: level, Text: text}}
}

// Navigation builds a navigation event.
func Navigation(url string, mainFrame bool) schemas.Event {
	return schemas.Event{Kind: schemas.EventNavigation, Navigation: &schemas.NavigationEvent{URL: url, MainFrame: mainFrame}}
}

// PageError builds an uncaught-exception event.
func PageError(message string) schemas.Event {
	return schemas.Event{Kind: schemas.EventPageError, PageError: &schemas.PageErrorEvent{Message: message}}
}

// Response builds a network response event.
func Response(method, url string, status int, resourceType string) schemas.Event {
	return schemas.Event{Kind: schemas.EventResponse, Response: &schemas.ResponseEvent{
		URL: url, Method: method, Status: status, ResourceType: resourceType,
	}}
}

// Dialog builds a dialog event answered by r.
func Dialog(dialogType, message string, r schemas.DialogResponder) schemas.Event {
	return schemas.Event{Kind: schemas.EventDialog, Dialog: &schemas.DialogEvent{Type: dialogType, Message: message, Responder: r}}
}

// Responder records how a dialog was answered.
type Responder struct {
	mu       sync.Mutex
	accepted []string
	dismiss  int
	// Delay, if set, is waited out (or ctx) before answering.
	Delay time.Duration
}

// Accept implements schemas.DialogResponder.
func (r *Responder) Accept(ctx context.Context, promptText string) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accepted = append(r.accepted, promptText)
	return nil
}

// Dismiss implements schemas.DialogResponder.
func (r *Responder) Dismiss(ctx context.Context) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dismiss++
	return nil
}

func (r *Responder) wait(ctx context.Context) error {
	if r.Delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(r.Delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Accepted returns the prompt texts of accepted dialogs.
func (r *Responder) Accepted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.accepted...)
}

// Dismissed reports how many dialogs were dismissed.
func (r *Responder) Dismissed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dismiss
}
