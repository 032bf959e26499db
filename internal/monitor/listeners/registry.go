// internal/monitor/listeners/registry.go
package listeners

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/actionwatch/api/schemas"
	"github.com/xkilldash9x/actionwatch/internal/browser"
	"github.com/xkilldash9x/actionwatch/internal/config"
)

// ErrAttachFailed wraps a subscription that could not be made. Attach logs it
// and carries on with the remaining observers.
var ErrAttachFailed = errors.New("listener attach failed")

const defaultDialogResponseTimeout = 2 * time.Second

// Handle is one attached set of observers. It is the only way to detach them.
type Handle struct {
	page   browser.Page
	sink   Sink
	opts   config.ListenerConfig
	logger *zap.Logger

	markers []string
	subs    []browser.Subscription

	// mu orders handler delivery against Detach: once Detach holds the write
	// lock and flips detached, no handler can record anything.
	mu       sync.RWMutex
	detached bool

	dialogs       sync.WaitGroup
	dialogCtx     context.Context
	cancelDialogs context.CancelFunc
	detachOnce    sync.Once

	sometimes rate.Sometimes
}

// Attach subscribes the five observers to page. Each subscription stands on
// its own; a failure is logged and the others still attach.
func Attach(page browser.Page, sink Sink, opts config.ListenerConfig, logger *zap.Logger) *Handle {
	if opts.DialogPolicy == "" {
		opts.DialogPolicy = config.DialogAccept
	}
	if opts.DialogResponseTimeout <= 0 {
		opts.DialogResponseTimeout = defaultDialogResponseTimeout
	}

	h := &Handle{
		page:      page,
		sink:      sink,
		opts:      opts,
		logger:    logger.Named("listeners"),
		sometimes: rate.Sometimes{First: 20, Interval: time.Second},
	}
	for _, m := range opts.ConsoleMarkers {
		if m = strings.TrimSpace(m); m != "" {
			h.markers = append(h.markers, m)
		}
	}
	h.dialogCtx, h.cancelDialogs = context.WithCancel(context.Background())

	handlers := map[schemas.EventKind]func(schemas.Event){
		schemas.EventConsole:    h.onConsole,
		schemas.EventDialog:     h.onDialog,
		schemas.EventNavigation: h.onNavigation,
		schemas.EventPageError:  h.onPageError,
		schemas.EventResponse:   h.onResponse,
	}
	for _, kind := range schemas.EventKinds {
		sub, err := page.Subscribe(kind, h.guard(handlers[kind]))
		if err != nil {
			h.logger.Warn("Observer not attached.",
				zap.String("kind", string(kind)),
				zap.Error(fmt.Errorf("%w: %s: %w", ErrAttachFailed, kind, err)))
			continue
		}
		h.subs = append(h.subs, sub)
	}
	h.logger.Debug("Observers attached.", zap.Int("count", len(h.subs)))
	return h
}

// Attached reports how many observers are live.
func (h *Handle) Attached() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.detached {
		return 0
	}
	return len(h.subs)
}

// guard drops events after Detach and logs every accepted event to the sink.
func (h *Handle) guard(classify func(schemas.Event)) browser.Handler {
	return func(ev schemas.Event) {
		h.mu.RLock()
		defer h.mu.RUnlock()
		if h.detached {
			return
		}
		if ev.Timestamp.IsZero() {
			ev.Timestamp = time.Now()
		}
		h.sink.RecordEvent(ev)
		classify(ev)
	}
}

// Detach removes every observer, waits a bounded time for pending dialog
// answers and disables the handle. Calling it again does nothing.
func (h *Handle) Detach() {
	h.detachOnce.Do(func() {
		h.mu.Lock()
		h.detached = true
		h.mu.Unlock()

		for _, sub := range h.subs {
			if err := h.page.Unsubscribe(sub); err != nil {
				h.logger.Debug("Observer removal failed.", zap.String("kind", string(sub.Kind)), zap.Error(err))
			}
		}

		done := make(chan struct{})
		go func() {
			h.dialogs.Wait()
			close(done)
		}()
		timer := time.NewTimer(h.opts.DialogResponseTimeout)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			h.logger.Warn("Gave up waiting for dialog responses.", zap.Duration("timeout", h.opts.DialogResponseTimeout))
		}
		h.cancelDialogs()
		<-done
	})
}

func (h *Handle) onConsole(ev schemas.Event) {
	c := ev.Console
	if c == nil {
		return
	}
	marker := h.matchMarker(c.Text)
	if marker == "" {
		h.sometimes.Do(func() {
			h.logger.Debug("Console message without marker.", zap.String("level", c.Level))
		})
		return
	}
	h.sink.RecordChange(schemas.NewChange(
		schemas.ConsoleChange{Level: c.Level, Text: c.Text, Marker: marker},
		fmt.Sprintf("Console %s: %s", c.Level, c.Text),
		ev.Timestamp,
	))
}

// matchMarker returns the first configured marker contained in text, ignoring case.
func (h *Handle) matchMarker(text string) string {
	lower := strings.ToLower(text)
	for _, m := range h.markers {
		if strings.Contains(lower, strings.ToLower(m)) {
			return m
		}
	}
	return ""
}

func (h *Handle) onDialog(ev schemas.Event) {
	d := ev.Dialog
	if d == nil {
		return
	}
	h.sink.RecordChange(schemas.NewChange(
		schemas.DialogChange{DialogType: d.Type, Message: d.Message, Handling: h.opts.DialogPolicy},
		fmt.Sprintf("Dialog (%s): %q", d.Type, d.Message),
		ev.Timestamp,
	))

	if h.opts.DialogPolicy == config.DialogIgnore || d.Responder == nil {
		return
	}

	// The answer goes back over the same connection that delivered this
	// event, so it cannot be sent from the handler itself.
	h.dialogs.Add(1)
	go func(r schemas.DialogResponder, dialogType string) {
		defer h.dialogs.Done()
		ctx, cancel := context.WithTimeout(h.dialogCtx, h.opts.DialogResponseTimeout)
		defer cancel()

		var err error
		if h.opts.DialogPolicy == config.DialogDismiss {
			err = r.Dismiss(ctx)
		} else {
			err = r.Accept(ctx, h.opts.DialogPromptText)
		}
		if err != nil {
			h.logger.Warn("Failed to answer dialog.", zap.String("type", dialogType), zap.String("policy", h.opts.DialogPolicy), zap.Error(err))
		}
	}(d.Responder, d.Type)
}

func (h *Handle) onNavigation(ev schemas.Event) {
	n := ev.Navigation
	if n == nil || !n.MainFrame {
		return
	}
	h.sink.RecordChange(schemas.NewChange(
		schemas.NavigationChange{To: n.URL, Source: schemas.SourceListener},
		fmt.Sprintf("Navigated to %s", n.URL),
		ev.Timestamp,
	))
}

func (h *Handle) onPageError(ev schemas.Event) {
	e := ev.PageError
	if e == nil {
		return
	}
	h.sink.RecordChange(schemas.NewChange(
		schemas.ErrorChange{Message: e.Message, Stack: e.Stack, Source: schemas.SourcePage},
		fmt.Sprintf("Page error: %s", e.Message),
		ev.Timestamp,
	))
}

// Resource types whose responses count as network changes.
const (
	resourceXHR   = "XHR"
	resourceFetch = "Fetch"
)

func (h *Handle) onResponse(ev schemas.Event) {
	r := ev.Response
	if r == nil {
		return
	}
	if !strings.EqualFold(r.ResourceType, resourceXHR) && !strings.EqualFold(r.ResourceType, resourceFetch) {
		return
	}
	h.sink.RecordChange(schemas.NewChange(
		schemas.NetworkChange{URL: r.URL, Method: r.Method, Status: r.Status, ResourceType: r.ResourceType, MimeType: r.MimeType},
		fmt.Sprintf("%s %s %s (%d)", r.ResourceType, methodOrGET(r.Method), r.URL, r.Status),
		ev.Timestamp,
	))
}

func methodOrGET(m string) string {
	if m == "" {
		return "GET"
	}
	return m
}
