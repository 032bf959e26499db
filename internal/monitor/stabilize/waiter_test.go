// internal/monitor/stabilize/waiter_test.go
package stabilize

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/actionwatch/api/schemas"
	"github.com/xkilldash9x/actionwatch/internal/browser/browsertest"
	"github.com/xkilldash9x/actionwatch/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// pageScript answers the waiter's scripts from a few switches.
type pageScript struct {
	loading    atomic.Bool
	idleMs     atomic.Int64
	notReady   atomic.Bool
	conditions atomic.Int32
	meetAfter  int32
}

func (s *pageScript) evaluate(_ context.Context, expr string) (any, error) {
	switch {
	case strings.Contains(expr, "new MutationObserver"), strings.Contains(expr, "disconnect()"):
		return true, nil
	case strings.Contains(expr, "Date.now() - state.last"):
		return s.idleMs.Load(), nil
	case strings.Contains(expr, "document.readyState"):
		return !s.notReady.Load(), nil
	case strings.Contains(expr, ".every("):
		return !s.loading.Load(), nil
	case strings.Contains(expr, "#done"):
		n := s.conditions.Add(1)
		return s.meetAfter > 0 && n >= s.meetAfter, nil
	}
	return nil, nil
}

func testConfig() config.StabilizationConfig {
	return config.StabilizationConfig{
		Timeout:          2 * time.Second,
		Debounce:         40 * time.Millisecond,
		Ceiling:          time.Second,
		SettleDelay:      10 * time.Millisecond,
		NetworkQuiet:     30 * time.Millisecond,
		PollInterval:     5 * time.Millisecond,
		CleanupTimeout:   200 * time.Millisecond,
		LoadingSelectors: []string{".spinner", `[aria-busy="true"]`},
	}
}

func setup(t *testing.T, cfg config.StabilizationConfig) (*browsertest.FakePage, *pageScript, *Waiter) {
	t.Helper()
	page := browsertest.New()
	s := &pageScript{}
	page.OnEvaluate(s.evaluate)
	return page, s, New(page, cfg, zaptest.NewLogger(t))
}

// assertTornDown checks that nothing the race installed survives it.
func assertTornDown(t *testing.T, page *browsertest.FakePage) {
	t.Helper()
	assert.Equal(t, 0, page.TotalSubscribers(), "navigation observer removed")
	assert.Equal(t, page.EvaluatedContaining("new MutationObserver"), page.EvaluatedContaining("disconnect()"),
		"every installed observer is removed exactly once")
}

func TestWait_MutationQuiescenceWins(t *testing.T) {
	page, s, w := setup(t, testConfig())
	s.loading.Store(true)
	s.idleMs.Store(1000)

	res := w.Wait(context.Background(), Condition{})

	assert.Equal(t, Settled, res.State)
	assert.Equal(t, WinnerMutation, res.Winner)
	assert.True(t, res.Stabilized())
	assert.NoError(t, res.Err)
	assert.Equal(t, Settled, w.State())
	assert.Equal(t, 1, page.EvaluatedContaining("disconnect()"))
	assertTornDown(t, page)
}

func TestWait_LoadingAbsenceWins(t *testing.T) {
	page, s, w := setup(t, testConfig())
	s.idleMs.Store(0)

	res := w.Wait(context.Background(), Condition{})

	assert.Equal(t, Settled, res.State)
	assert.Equal(t, WinnerLoading, res.Winner)
	assert.Equal(t, 1, page.EvaluatedContaining("disconnect()"), "the losing observer is removed")
	assertTornDown(t, page)
}

func TestWait_NavigationQuiescenceWins(t *testing.T) {
	cfg := testConfig()
	cfg.Ceiling = 3 * time.Second
	cfg.Timeout = 4 * time.Second
	page, s, w := setup(t, cfg)
	s.loading.Store(true)

	done := make(chan Result, 1)
	go func() { done <- w.Wait(context.Background(), Condition{}) }()

	require.Eventually(t, func() bool { return page.Subscribers(schemas.EventNavigation) == 1 }, time.Second, 2*time.Millisecond)
	assert.Equal(t, Racing, w.State())

	page.Emit(browsertest.Navigation("https://ads.example/frame", false))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, Racing, w.State(), "sub-frame navigations do not count")

	page.SetInflight(2)
	page.Emit(browsertest.Navigation("https://example.com/b", true))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, Racing, w.State(), "in-flight requests hold the heuristic open")
	page.SetInflight(0)

	var res Result
	select {
	case res = <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("wait did not finish")
	}
	assert.Equal(t, Settled, res.State)
	assert.Equal(t, WinnerNavigation, res.Winner)
	assertTornDown(t, page)
}

func TestWait_CeilingForcesResolution(t *testing.T) {
	cfg := testConfig()
	cfg.Ceiling = 60 * time.Millisecond
	page, s, w := setup(t, cfg)
	s.loading.Store(true)
	s.idleMs.Store(0)

	res := w.Wait(context.Background(), Condition{})

	assert.Equal(t, Settled, res.State)
	assert.Equal(t, WinnerMutation, res.Winner)
	assert.GreaterOrEqual(t, res.Elapsed, 60*time.Millisecond)
	assertTornDown(t, page)
}

func TestWait_TimesOut(t *testing.T) {
	cfg := testConfig()
	cfg.Timeout = 80 * time.Millisecond
	page, s, w := setup(t, cfg)
	s.loading.Store(true)

	res := w.Wait(context.Background(), Condition{})

	assert.Equal(t, TimedOut, res.State)
	assert.False(t, res.Stabilized())
	assert.Empty(t, res.Winner)
	assert.NoError(t, res.Err)
	assert.Equal(t, TimedOut, w.State())
	assert.Equal(t, 1, page.EvaluatedContaining("disconnect()"))
	assertTornDown(t, page)
}

func TestWait_CallerCancellation(t *testing.T) {
	page, s, w := setup(t, testConfig())
	s.loading.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	res := w.Wait(ctx, Condition{})

	assert.Equal(t, Cancelled, res.State)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assertTornDown(t, page)
}

func TestWait_RunsOnce(t *testing.T) {
	_, s, w := setup(t, testConfig())
	s.idleMs.Store(1000)

	first := w.Wait(context.Background(), Condition{})
	require.Equal(t, Settled, first.State)

	second := w.Wait(context.Background(), Condition{})
	assert.Equal(t, Cancelled, second.State)
	assert.ErrorIs(t, second.Err, ErrAlreadyRun)
	assert.Equal(t, Settled, w.State())
}

func TestWait_SettleDelayApplied(t *testing.T) {
	cfg := testConfig()
	cfg.SettleDelay = 80 * time.Millisecond
	_, _, w := setup(t, cfg)

	res := w.Wait(context.Background(), Condition{})

	assert.Equal(t, Settled, res.State)
	assert.GreaterOrEqual(t, res.Elapsed, 80*time.Millisecond)
}

func TestWait_ExplicitConditionSkipsHeuristics(t *testing.T) {
	page, s, w := setup(t, testConfig())
	s.meetAfter = 3

	res := w.Wait(context.Background(), Condition{Selector: "#done"})

	assert.Equal(t, Settled, res.State)
	assert.Equal(t, WinnerCondition, res.Winner)
	assert.GreaterOrEqual(t, s.conditions.Load(), int32(3))
	assert.Zero(t, page.SubscribeCalls(schemas.EventNavigation))
	assert.Zero(t, page.EvaluatedContaining("MutationObserver"))
	assert.Zero(t, page.EvaluatedContaining(".every("))
}

func TestWait_ExplicitConditionTimesOut(t *testing.T) {
	cfg := testConfig()
	cfg.Timeout = 50 * time.Millisecond
	_, _, w := setup(t, cfg)

	res := w.Wait(context.Background(), Condition{Selector: "#done"})

	assert.Equal(t, TimedOut, res.State)
	assert.False(t, res.Stabilized())
	assert.NoError(t, res.Err)
}

func TestWait_DefaultsFillZeroConfig(t *testing.T) {
	w := New(browsertest.New(), config.StabilizationConfig{}, zaptest.NewLogger(t))
	d := config.NewDefaultConfig().Monitor().Stabilization

	assert.Equal(t, d.Timeout, w.cfg.Timeout)
	assert.Equal(t, d.Debounce, w.cfg.Debounce)
	assert.Equal(t, d.Ceiling, w.cfg.Ceiling)
	assert.Equal(t, d.LoadingSelectors, w.cfg.LoadingSelectors)
	assert.Zero(t, w.cfg.SettleDelay)
	assert.Equal(t, Idle, w.State())
}

func TestHeuristic_StopRunsTeardownOnce(t *testing.T) {
	calls := 0
	h := &heuristic{name: "test", teardown: func() { calls++ }}
	h.stop()
	h.stop()
	assert.Equal(t, 1, calls)
}

func TestResult_Report(t *testing.T) {
	r := Result{State: Settled, Winner: WinnerLoading, Elapsed: 1500 * time.Millisecond}
	assert.Equal(t, schemas.StabilizationReport{Stabilized: true, State: "settled", Winner: WinnerLoading, ElapsedMs: 1500}, r.Report())

	r = Result{State: TimedOut, Elapsed: 10 * time.Second}
	assert.Equal(t, schemas.StabilizationReport{Stabilized: false, State: "timed_out", ElapsedMs: 10000}, r.Report())
}
