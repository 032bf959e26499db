// internal/monitor/stabilize/waiter.go
package stabilize

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/actionwatch/api/schemas"
	"github.com/xkilldash9x/actionwatch/internal/browser"
	"github.com/xkilldash9x/actionwatch/internal/config"
)

// State is the waiter's lifecycle position.
type State string

const (
	Idle      State = "idle"
	Racing    State = "racing"
	Waiting   State = "waiting"
	Settled   State = "settled"
	TimedOut  State = "timed_out"
	Cancelled State = "cancelled"
)

// Winner names what ended the wait.
const (
	WinnerCondition  = "condition"
	WinnerNavigation = "navigation"
	WinnerMutation   = "mutation"
	WinnerLoading    = "loading-indicator"
)

// ErrAlreadyRun is reported by a second Wait on the same waiter.
var ErrAlreadyRun = errors.New("stabilization wait already ran")

// errResolved is returned by the winning heuristic to cancel the others.
var errResolved = errors.New("stabilization resolved")

// Result is the outcome of a wait. A timeout is an outcome, not an error.
type Result struct {
	State   State
	Winner  string
	Elapsed time.Duration
	Err     error
}

// Stabilized reports whether any resolver fired.
func (r Result) Stabilized() bool { return r.State == Settled }

// Report converts r for the monitored action result.
func (r Result) Report() schemas.StabilizationReport {
	return schemas.StabilizationReport{
		Stabilized: r.Stabilized(),
		State:      string(r.State),
		Winner:     r.Winner,
		ElapsedMs:  r.Elapsed.Milliseconds(),
	}
}

// Waiter decides when a page has gone quiet after an action. It runs once.
type Waiter struct {
	page   browser.Page
	cfg    config.StabilizationConfig
	logger *zap.Logger

	mu    sync.Mutex
	state State
	ran   bool
}

// New returns an idle waiter. Zero durations in cfg, other than SettleDelay,
// take the configured defaults.
func New(page browser.Page, cfg config.StabilizationConfig, logger *zap.Logger) *Waiter {
	return &Waiter{
		page:   page,
		cfg:    withDefaults(cfg),
		logger: logger.Named("stabilize"),
		state:  Idle,
	}
}

func withDefaults(cfg config.StabilizationConfig) config.StabilizationConfig {
	d := config.NewDefaultConfig().Monitor().Stabilization
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = d.Debounce
	}
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = d.Ceiling
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	if cfg.NetworkQuiet <= 0 {
		cfg.NetworkQuiet = d.NetworkQuiet
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = d.PollInterval
	}
	if cfg.CleanupTimeout <= 0 {
		cfg.CleanupTimeout = d.CleanupTimeout
	}
	if cfg.LoadingSelectors == nil {
		cfg.LoadingSelectors = d.LoadingSelectors
	}
	return cfg
}

// State returns the current lifecycle state.
func (w *Waiter) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Waiter) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// Wait blocks until the page settles, the configured timeout passes or ctx
// is done. With a non-zero cond only that condition is polled; otherwise the
// navigation, mutation and loading-indicator heuristics race and the first
// to resolve wins. Every heuristic is torn down before Wait returns. A
// resolved wait is followed by the settle delay.
func (w *Waiter) Wait(ctx context.Context, cond Condition) Result {
	w.mu.Lock()
	if w.ran {
		w.mu.Unlock()
		return Result{State: Cancelled, Err: ErrAlreadyRun}
	}
	w.ran = true
	w.mu.Unlock()

	start := time.Now()
	waitCtx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()

	var (
		winner   string
		resolved bool
	)
	if !cond.IsZero() {
		w.setState(Waiting)
		winner = WinnerCondition
		resolved = w.waitCondition(waitCtx, cond)
	} else {
		w.setState(Racing)
		winner, resolved = w.race(waitCtx)
	}

	res := Result{}
	switch {
	case resolved:
		if err := sleep(ctx, w.cfg.SettleDelay); err != nil {
			res.State, res.Err = Cancelled, err
		} else {
			res.State, res.Winner = Settled, winner
		}
	case ctx.Err() != nil:
		res.State, res.Err = Cancelled, ctx.Err()
	default:
		res.State = TimedOut
	}
	res.Elapsed = time.Since(start)
	w.setState(res.State)

	w.logger.Debug("Stabilization wait finished.",
		zap.String("state", string(res.State)),
		zap.String("winner", res.Winner),
		zap.Duration("elapsed", res.Elapsed))
	return res
}

func (w *Waiter) waitCondition(ctx context.Context, cond Condition) bool {
	ok, err := w.page.WaitForCondition(ctx, cond.Expression(), w.cfg.Timeout)
	if err != nil && ctx.Err() == nil {
		w.logger.Debug("Condition wait failed.", zap.Error(err))
	}
	return ok
}

// race runs every heuristic under one errgroup. The winner returns
// errResolved, which cancels the group context for the rest; a heuristic
// that fails drops out quietly so the others keep going.
func (w *Waiter) race(ctx context.Context) (string, bool) {
	g, gctx := errgroup.WithContext(ctx)

	heuristics := []*heuristic{
		w.navigationQuiescence(),
		w.mutationQuiescence(),
		w.loadingAbsence(),
	}

	var (
		winner  string
		winOnce sync.Once
	)
	for _, h := range heuristics {
		h := h
		g.Go(func() error {
			defer h.stop()
			ok, err := h.run(gctx)
			if err != nil {
				if gctx.Err() == nil {
					w.logger.Debug("Heuristic dropped out.", zap.String("heuristic", h.name), zap.Error(err))
				}
				return nil
			}
			if !ok {
				return nil
			}
			winOnce.Do(func() { winner = h.name })
			return errResolved
		})
	}

	err := g.Wait()
	for _, h := range heuristics {
		h.stop()
	}
	if errors.Is(err, errResolved) {
		return winner, true
	}
	return "", false
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
