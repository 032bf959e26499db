// internal/browser/cdp_page.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/actionwatch/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// CDPPage drives one Chrome tab over the DevTools protocol.
type CDPPage struct {
	logger *zap.Logger

	// tabCtx carries the chromedp target. Every command is derived from it.
	tabCtx    context.Context
	cancelTab context.CancelFunc
	// listenCtx scopes the ListenTarget callback so Close can stop it first.
	listenCtx    context.Context
	cancelListen context.CancelFunc

	dispatcher   *Dispatcher
	network      *NetworkLog
	pollInterval time.Duration
	navTimeout   time.Duration

	closeOnce sync.Once
	onClose   func()
}

var (
	_ Page            = (*CDPPage)(nil)
	_ NetworkActivity = (*CDPPage)(nil)
)

func newCDPPage(tabCtx context.Context, cancelTab context.CancelFunc, logger *zap.Logger, pollInterval, navTimeout time.Duration) *CDPPage {
	return &CDPPage{
		logger:       logger.Named("page"),
		tabCtx:       tabCtx,
		cancelTab:    cancelTab,
		dispatcher:   NewDispatcher(),
		network:      NewNetworkLog(logger),
		pollInterval: pollInterval,
		navTimeout:   navTimeout,
	}
}

// start registers the event callback and enables the domains it depends on.
func (p *CDPPage) start() error {
	p.listenCtx, p.cancelListen = context.WithCancel(p.tabCtx)
	chromedp.ListenTarget(p.listenCtx, p.onEvent)

	if err := chromedp.Run(p.tabCtx,
		page.Enable(),
		runtime.Enable(),
		network.Enable(),
	); err != nil {
		p.cancelListen()
		return fmt.Errorf("failed to enable CDP domains: %w", err)
	}
	p.logger.Debug("Page attached and listening for events.")
	return nil
}

// onEvent runs on chromedp's event goroutine. Anything that sends a command
// back to the browser must be done on another goroutine.
func (p *CDPPage) onEvent(ev interface{}) {
	p.network.Handle(ev)
	if out, ok := convertEvent(ev, time.Now(), p.network.Method, dialogResponder{p: p}); ok {
		p.dispatcher.Publish(out)
	}
}

// convertEvent maps a CDP event onto the event model. It reports false for
// events that are not one of the observed kinds.
func convertEvent(ev interface{}, now time.Time, methodOf func(network.RequestID) string, responder schemas.DialogResponder) (schemas.Event, bool) {
	switch e := ev.(type) {
	case *runtime.EventConsoleAPICalled:
		return schemas.Event{
			Kind:      schemas.EventConsole,
			Timestamp: now,
			Console:   &schemas.ConsoleEvent{Level: string(e.Type), Text: consoleText(e.Args)},
		}, true

	case *runtime.EventExceptionThrown:
		if e.ExceptionDetails == nil {
			return schemas.Event{}, false
		}
		return schemas.Event{
			Kind:      schemas.EventPageError,
			Timestamp: now,
			PageError: pageErrorFrom(e.ExceptionDetails),
		}, true

	case *page.EventJavascriptDialogOpening:
		return schemas.Event{
			Kind:      schemas.EventDialog,
			Timestamp: now,
			Dialog: &schemas.DialogEvent{
				Type:          string(e.Type),
				Message:       e.Message,
				URL:           e.URL,
				DefaultPrompt: e.DefaultPrompt,
				Responder:     responder,
			},
		}, true

	case *page.EventFrameNavigated:
		if e.Frame == nil {
			return schemas.Event{}, false
		}
		return schemas.Event{
			Kind:      schemas.EventNavigation,
			Timestamp: now,
			Navigation: &schemas.NavigationEvent{
				URL:       e.Frame.URL,
				FrameID:   string(e.Frame.ID),
				MainFrame: e.Frame.ParentID == "",
			},
		}, true

	case *network.EventResponseReceived:
		if e.Response == nil {
			return schemas.Event{}, false
		}
		method := ""
		if methodOf != nil {
			method = methodOf(e.RequestID)
		}
		return schemas.Event{
			Kind:      schemas.EventResponse,
			Timestamp: now,
			Response: &schemas.ResponseEvent{
				URL:          e.Response.URL,
				Method:       method,
				Status:       int(e.Response.Status),
				StatusText:   e.Response.StatusText,
				MimeType:     e.Response.MimeType,
				ResourceType: string(e.Type),
			},
		}, true
	}
	return schemas.Event{}, false
}

// consoleText renders console arguments the way DevTools prints them.
func consoleText(args []*runtime.RemoteObject) string {
	var b strings.Builder
	for i, arg := range args {
		if i > 0 {
			b.WriteString(" ")
		}
		var val interface{}
		switch {
		case len(arg.Value) > 0 && json.Unmarshal(arg.Value, &val) == nil:
			b.WriteString(fmt.Sprint(val))
		case arg.Description != "":
			b.WriteString(arg.Description)
		default:
			b.WriteString("[" + string(arg.Type) + "]")
		}
	}
	return b.String()
}

func pageErrorFrom(d *runtime.ExceptionDetails) *schemas.PageErrorEvent {
	out := &schemas.PageErrorEvent{
		Message: d.Text,
		URL:     d.URL,
		Line:    d.LineNumber,
	}
	if d.Exception != nil && d.Exception.Description != "" {
		// The description usually carries "Name: message" followed by the stack.
		desc := d.Exception.Description
		out.Message, _, _ = strings.Cut(desc, "\n")
	}
	if d.StackTrace != nil {
		frames := make([]string, 0, len(d.StackTrace.CallFrames))
		for _, f := range d.StackTrace.CallFrames {
			name := f.FunctionName
			if name == "" {
				name = "<anonymous>"
			}
			frames = append(frames, fmt.Sprintf("at %s (%s:%d:%d)", name, f.URL, f.LineNumber+1, f.ColumnNumber+1))
		}
		out.Stack = strings.Join(frames, "\n")
	}
	return out
}

// Evaluate implements Page.
func (p *CDPPage) Evaluate(ctx context.Context, expression string, out any) error {
	runCtx, cancel := CombineContext(p.tabCtx, ctx)
	defer cancel()

	var raw []byte
	err := chromedp.Run(runCtx, chromedp.Evaluate(expression, &raw, func(ep *runtime.EvaluateParams) *runtime.EvaluateParams {
		return ep.WithAwaitPromise(true)
	}))
	if err != nil {
		if p.tabCtx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrPageClosed, err)
		}
		return fmt.Errorf("evaluation failed: %w", err)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode evaluation result: %w", err)
	}
	return nil
}

// WaitForCondition implements Page. Polling happens on the host so nothing
// is left running in the document when the caller gives up.
func (p *CDPPage) WaitForCondition(ctx context.Context, predicate string, timeout time.Duration) (bool, error) {
	expr := TruthyExpression(predicate)
	return PollCondition(ctx, timeout, p.pollInterval, func(c context.Context) (bool, error) {
		var ok bool
		err := p.Evaluate(c, expr, &ok)
		return ok, err
	})
}

// TruthyExpression wraps a predicate so it evaluates to a boolean, awaiting
// it first if it yields a promise.
func TruthyExpression(predicate string) string {
	predicate = strings.TrimRight(strings.TrimSpace(predicate), ";")
	return fmt.Sprintf("Promise.resolve((%s)).then(v => !!v)", predicate)
}

// Subscribe implements Page.
func (p *CDPPage) Subscribe(kind schemas.EventKind, h Handler) (Subscription, error) {
	if p.tabCtx.Err() != nil {
		return Subscription{}, ErrPageClosed
	}
	return p.dispatcher.Subscribe(kind, h)
}

// Unsubscribe implements Page.
func (p *CDPPage) Unsubscribe(sub Subscription) error {
	return p.dispatcher.Unsubscribe(sub)
}

// InflightRequests implements NetworkActivity.
func (p *CDPPage) InflightRequests() int {
	return p.network.InflightRequests()
}

// NetworkLog exposes the tab's network log.
func (p *CDPPage) NetworkLog() *NetworkLog {
	return p.network
}

// Navigate loads url and waits for the load event, bounded by the navigation timeout.
func (p *CDPPage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, p.navTimeout, chromedp.Navigate(url))
}

// Click clicks the first element matching selector once it is visible.
func (p *CDPPage) Click(ctx context.Context, selector string) error {
	return p.run(ctx, 0, chromedp.Click(selector, chromedp.ByQuery))
}

// Type focuses the first element matching selector and sends text as key events.
func (p *CDPPage) Type(ctx context.Context, selector, text string) error {
	return p.run(ctx, 0, chromedp.SendKeys(selector, text, chromedp.ByQuery))
}

func (p *CDPPage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(p.tabCtx, ctx)
	defer cancel()
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, timeout)
		defer cancelTimeout()
	}
	return chromedp.Run(runCtx, actions...)
}

// Close stops event delivery and closes the tab.
func (p *CDPPage) Close() {
	p.closeOnce.Do(func() {
		p.dispatcher.Close()
		if p.cancelListen != nil {
			p.cancelListen()
		}
		p.cancelTab()
		if p.onClose != nil {
			p.onClose()
		}
	})
}

// dialogResponder answers the dialog currently open in the tab.
type dialogResponder struct {
	p *CDPPage
}

func (r dialogResponder) Accept(ctx context.Context, promptText string) error {
	action := page.HandleJavaScriptDialog(true)
	if promptText != "" {
		action = action.WithPromptText(promptText)
	}
	return r.p.run(ctx, 0, action)
}

func (r dialogResponder) Dismiss(ctx context.Context) error {
	return r.p.run(ctx, 0, page.HandleJavaScriptDialog(false))
}
