// internal/monitor/stabilize/heuristics.go
package stabilize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/actionwatch/api/schemas"
	"github.com/xkilldash9x/actionwatch/internal/browser"
)

var (
	errNotLoaded        = errors.New("document did not finish loading")
	errObserverLost     = errors.New("mutation observer is gone from the page")
	errLoadingPersisted = errors.New("loading indicators still present at ceiling")
	errNoLoadingMarkers = errors.New("no loading selectors configured")
)

// heuristic is one racer. stop runs its teardown at most once no matter
// how many times it is called.
type heuristic struct {
	name     string
	run      func(ctx context.Context) (bool, error)
	teardown func()
	once     sync.Once
}

func (h *heuristic) stop() {
	h.once.Do(func() {
		if h.teardown != nil {
			h.teardown()
		}
	})
}

// navigationQuiescence resolves after a main-frame navigation has fully
// loaded and, when the page reports network activity, the network has been
// idle for NetworkQuiet.
func (w *Waiter) navigationQuiescence() *heuristic {
	h := &heuristic{name: WinnerNavigation}
	navigated := make(chan struct{}, 1)
	var (
		sub        browser.Subscription
		subscribed bool
	)

	h.run = func(ctx context.Context) (bool, error) {
		s, err := w.page.Subscribe(schemas.EventNavigation, func(ev schemas.Event) {
			if ev.Navigation == nil || !ev.Navigation.MainFrame {
				return
			}
			select {
			case navigated <- struct{}{}:
			default:
			}
		})
		if err != nil {
			return false, fmt.Errorf("subscribe to navigation: %w", err)
		}
		sub, subscribed = s, true

		select {
		case <-navigated:
		case <-ctx.Done():
			return false, ctx.Err()
		}

		loaded, err := w.page.WaitForCondition(ctx, `document.readyState === "complete"`, w.cfg.Timeout)
		if err != nil {
			return false, err
		}
		if !loaded {
			return false, errNotLoaded
		}

		if na, ok := w.page.(browser.NetworkActivity); ok {
			if err := w.waitNetworkQuiet(ctx, na); err != nil {
				return false, err
			}
		}
		return true, nil
	}

	// Teardown only ever runs after run has returned.
	h.teardown = func() {
		if !subscribed {
			return
		}
		if err := w.page.Unsubscribe(sub); err != nil {
			w.logger.Debug("Navigation observer removal failed.", zap.Error(err))
		}
	}
	return h
}

// waitNetworkQuiet returns once no request has been in flight for NetworkQuiet.
func (w *Waiter) waitNetworkQuiet(ctx context.Context, na browser.NetworkActivity) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	lastActivity := time.Now()
	for {
		if n := na.InflightRequests(); n > 0 {
			lastActivity = time.Now()
		} else if time.Since(lastActivity) >= w.cfg.NetworkQuiet {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// mutationQuiescence installs a MutationObserver under a per-run global and
// polls it from the host. It resolves once Debounce passes without
// mutations, or at Ceiling regardless.
func (w *Waiter) mutationQuiescence() *heuristic {
	h := &heuristic{name: WinnerMutation}
	key := observerKey()
	var (
		installed bool
		parent    context.Context
	)

	h.run = func(ctx context.Context) (bool, error) {
		parent = ctx
		// Marked before the attempt: a failed install may still have run in the page.
		installed = true
		if err := w.page.Evaluate(ctx, installObserverScript(key), nil); err != nil {
			return false, fmt.Errorf("install mutation observer: %w", err)
		}

		ceiling := time.NewTimer(w.cfg.Ceiling)
		defer ceiling.Stop()
		ticker := time.NewTicker(w.cfg.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-ceiling.C:
				return true, nil
			case <-ticker.C:
			}

			var idleMs float64
			if err := w.page.Evaluate(ctx, idleScript(key), &idleMs); err != nil {
				continue
			}
			if idleMs < 0 {
				return false, errObserverLost
			}
			if time.Duration(idleMs)*time.Millisecond >= w.cfg.Debounce {
				return true, nil
			}
		}
	}

	// The run context is usually canceled by now, so removal runs on a
	// detached context that still carries the page's values.
	h.teardown = func() {
		if !installed {
			return
		}
		ctx, cancel := context.WithTimeout(browser.Detach(parent), w.cfg.CleanupTimeout)
		defer cancel()
		if err := w.page.Evaluate(ctx, removeObserverScript(key), nil); err != nil {
			w.logger.Debug("Mutation observer removal failed.", zap.String("key", key), zap.Error(err))
		}
	}
	return h
}

// loadingAbsence resolves as soon as no loading indicator is present, and
// gives up at Ceiling.
func (w *Waiter) loadingAbsence() *heuristic {
	h := &heuristic{name: WinnerLoading}
	h.run = func(ctx context.Context) (bool, error) {
		if len(w.cfg.LoadingSelectors) == 0 {
			return false, errNoLoadingMarkers
		}
		absent, err := w.page.WaitForCondition(ctx, loadingAbsentScript(w.cfg.LoadingSelectors), w.cfg.Ceiling)
		if err != nil {
			return false, err
		}
		if !absent {
			return false, errLoadingPersisted
		}
		return true, nil
	}
	return h
}

func observerKey() string {
	return "__actionwatch_mo_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func installObserverScript(key string) string {
	return fmt.Sprintf(`(() => {
  const key = %s;
  const state = { last: Date.now(), observer: null };
  state.observer = new MutationObserver(() => { state.last = Date.now(); });
  state.observer.observe(document.documentElement || document, { childList: true, subtree: true, attributes: true, characterData: true });
  window[key] = state;
  return true;
})()`, jsString(key))
}

func idleScript(key string) string {
	return fmt.Sprintf(`(() => {
  const state = window[%s];
  return state ? Date.now() - state.last : -1;
})()`, jsString(key))
}

func removeObserverScript(key string) string {
	return fmt.Sprintf(`(() => {
  const key = %s;
  const state = window[key];
  if (state) { state.observer.disconnect(); delete window[key]; }
  return true;
})()`, jsString(key))
}

// loadingAbsentScript checks each selector on its own so one invalid
// selector cannot mask the rest.
func loadingAbsentScript(selectors []string) string {
	b, err := json.Marshal(selectors)
	if err != nil {
		b = []byte("[]")
	}
	return fmt.Sprintf(`%s.every((s) => { try { return document.querySelector(s) === null; } catch (e) { return true; } })`, b)
}
