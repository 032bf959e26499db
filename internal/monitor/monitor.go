// internal/monitor/monitor.go
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/actionwatch/api/schemas"
	"github.com/xkilldash9x/actionwatch/internal/browser"
	"github.com/xkilldash9x/actionwatch/internal/config"
	"github.com/xkilldash9x/actionwatch/internal/monitor/capture"
	"github.com/xkilldash9x/actionwatch/internal/monitor/diff"
	"github.com/xkilldash9x/actionwatch/internal/monitor/listeners"
	"github.com/xkilldash9x/actionwatch/internal/monitor/stabilize"
)

// ErrActionFailed wraps an error returned (or a panic raised) by the action.
// It is recorded as an error change, never returned.
var ErrActionFailed = errors.New("action failed")

// ActionFunc performs the action being monitored.
type ActionFunc func(ctx context.Context) error

// Options tunes one monitored action. At most one wait condition is honoured,
// in the order selector, text, condition; without one the stabilization
// heuristics race.
type Options struct {
	// Timeout overrides the stabilization timeout.
	Timeout          time.Duration
	WaitForSelector  string
	WaitForText      string
	WaitForCondition string
	// DebounceMs overrides the mutation debounce window.
	DebounceMs int
}

// Monitor runs monitored actions against one page, one at a time.
type Monitor struct {
	page   browser.Page
	cfg    config.MonitorConfig
	logger *zap.Logger

	mu sync.Mutex
}

// New returns a monitor for page.
func New(page browser.Page, cfg config.MonitorConfig, logger *zap.Logger) *Monitor {
	return &Monitor{
		page:   page,
		cfg:    cfg,
		logger: logger.Named("monitor"),
	}
}

// MonitorAction captures the page, runs action with every observer attached,
// waits for the page to settle, captures again and returns what changed.
// Only a failed start capture is an error; a failed end capture yields a
// result with a degraded end state.
func (m *Monitor) MonitorAction(ctx context.Context, label string, action ActionFunc, opts Options) (*schemas.MonitoredActionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	runID := uuid.NewString()
	logger := m.logger.With(zap.String("run_id", runID), zap.String("action", label))
	started := time.Now()

	captureOpts := capture.Options{MaxElements: m.cfg.Capture.MaxElements, Timeout: m.cfg.Capture.Timeout}
	startState, err := capture.Capture(ctx, m.page, captureOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to capture start state: %w", err)
	}

	rec := listeners.NewRecorder()
	handle := listeners.Attach(m.page, rec, m.cfg.Listeners, logger)
	defer handle.Detach()

	if err := m.runAction(ctx, action); err != nil {
		logger.Warn("Monitored action failed.", zap.Error(err))
		rec.RecordChange(schemas.NewChange(
			schemas.ErrorChange{Message: err.Error(), Source: schemas.SourceAction},
			fmt.Sprintf("Action error: %v", err),
			time.Now(),
		))
	}

	pause(ctx, m.cfg.ActionWindow)

	waiter := stabilize.New(m.page, m.stabilizationConfig(opts), logger)
	stab := waiter.Wait(ctx, stabilize.Condition{
		Selector:  opts.WaitForSelector,
		Text:      opts.WaitForText,
		Predicate: opts.WaitForCondition,
	})
	handle.Detach()

	result := &schemas.MonitoredActionResult{
		ID:            runID,
		ActionLabel:   label,
		StartState:    startState,
		Stabilization: stab.Report(),
	}

	endState, err := capture.Capture(ctx, m.page, captureOpts)
	if err != nil {
		logger.Warn("End state capture failed; continuing with a degraded end state.", zap.Error(err))
		endState = schemas.EmptyPageState(time.Now())
		result.EndStateError = err.Error()
	}
	result.EndState = endState

	result.Changes = append(rec.Changes(), diff.Diff(startState, endState)...)
	result.RawEvents = rec.Events()
	result.DurationMs = time.Since(started).Milliseconds()

	logger.Info("Monitored action complete.",
		zap.Int("changes", len(result.Changes)),
		zap.String("stabilization", result.Stabilization.State),
		zap.Int64("duration_ms", result.DurationMs))
	return result, nil
}

// runAction invokes action under the action timeout and turns a panic into
// an error.
func (m *Monitor) runAction(ctx context.Context, action ActionFunc) (err error) {
	if action == nil {
		return nil
	}
	if m.cfg.ActionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.ActionTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrActionFailed, r)
		}
	}()
	if err := action(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrActionFailed, err)
	}
	return nil
}

func (m *Monitor) stabilizationConfig(opts Options) config.StabilizationConfig {
	cfg := m.cfg.Stabilization
	if opts.Timeout > 0 {
		cfg.Timeout = opts.Timeout
	}
	if opts.DebounceMs > 0 {
		cfg.Debounce = time.Duration(opts.DebounceMs) * time.Millisecond
	}
	if cfg.Ceiling < cfg.Debounce {
		cfg.Ceiling = cfg.Debounce
	}
	return cfg
}

func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
