// internal/browser/cdp_page_test.go
package browser

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/actionwatch/api/schemas"
)

type nopResponder struct{}

func (nopResponder) Accept(context.Context, string) error { return nil }
func (nopResponder) Dismiss(context.Context) error        { return nil }

func TestConvertEvent(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	methodOf := func(id network.RequestID) string {
		if id == "7" {
			return "POST"
		}
		return ""
	}

	tests := []struct {
		name string
		in   interface{}
		want schemas.Event
	}{
		{
			name: "console call joins arguments",
			in: &runtime.EventConsoleAPICalled{
				Type: "log",
				Args: []*runtime.RemoteObject{
					{Type: "string", Value: []byte(`"[BRIDGE] ready"`)},
					{Type: "number", Value: []byte(`42`)},
					{Type: "object", Description: "Window"},
					{Type: "undefined"},
				},
			},
			want: schemas.Event{Kind: schemas.EventConsole, Timestamp: now, Console: &schemas.ConsoleEvent{
				Level: "log", Text: "[BRIDGE] ready 42 Window [undefined]",
			}},
		},
		{
			name: "main frame navigation",
			in:   &page.EventFrameNavigated{Frame: &cdp.Frame{ID: "F1", URL: "https://example.com/b"}},
			want: schemas.Event{Kind: schemas.EventNavigation, Timestamp: now, Navigation: &schemas.NavigationEvent{
				URL: "https://example.com/b", FrameID: "F1", MainFrame: true,
			}},
		},
		{
			name: "sub frame navigation",
			in:   &page.EventFrameNavigated{Frame: &cdp.Frame{ID: "F2", ParentID: "F1", URL: "https://ads.example/"}},
			want: schemas.Event{Kind: schemas.EventNavigation, Timestamp: now, Navigation: &schemas.NavigationEvent{
				URL: "https://ads.example/", FrameID: "F2", MainFrame: false,
			}},
		},
		{
			name: "uncaught exception prefers the description headline",
			in: &runtime.EventExceptionThrown{ExceptionDetails: &runtime.ExceptionDetails{
				Text:       "Uncaught",
				URL:        "https://example.com/app.js",
				LineNumber: 3,
				Exception:  &runtime.RemoteObject{Description: "TypeError: x is undefined\n    at foo (app.js:4:10)"},
				StackTrace: &runtime.StackTrace{CallFrames: []*runtime.CallFrame{
					{FunctionName: "foo", URL: "app.js", LineNumber: 3, ColumnNumber: 9},
					{URL: "app.js", LineNumber: 10, ColumnNumber: 0},
				}},
			}},
			want: schemas.Event{Kind: schemas.EventPageError, Timestamp: now, PageError: &schemas.PageErrorEvent{
				Message: "TypeError: x is undefined",
				Stack:   "at foo (app.js:4:10)\nat <anonymous> (app.js:11:1)",
				URL:     "https://example.com/app.js",
				Line:    3,
			}},
		},
		{
			name: "fetch response picks up the request method",
			in: &network.EventResponseReceived{
				RequestID: "7",
				Type:      network.ResourceTypeFetch,
				Response:  &network.Response{URL: "https://example.com/api", Status: 201, StatusText: "Created", MimeType: "application/json"},
			},
			want: schemas.Event{Kind: schemas.EventResponse, Timestamp: now, Response: &schemas.ResponseEvent{
				URL: "https://example.com/api", Method: "POST", Status: 201, StatusText: "Created",
				MimeType: "application/json", ResourceType: "Fetch",
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := convertEvent(tt.in, now, methodOf, nopResponder{})
			require.True(t, ok)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("convertEvent() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestConvertEvent_Dialog(t *testing.T) {
	now := time.Now()
	got, ok := convertEvent(&page.EventJavascriptDialogOpening{
		URL: "https://example.com/", Message: "Are you sure?", Type: "confirm",
	}, now, nil, nopResponder{})
	require.True(t, ok)
	require.NotNil(t, got.Dialog)

	want := &schemas.DialogEvent{Type: "confirm", Message: "Are you sure?", URL: "https://example.com/"}
	if diff := cmp.Diff(want, got.Dialog, cmpopts.IgnoreFields(schemas.DialogEvent{}, "Responder")); diff != "" {
		t.Errorf("dialog mismatch (-want +got):\n%s", diff)
	}
	assert.NotNil(t, got.Dialog.Responder)
}

func TestConvertEvent_IgnoresOtherEvents(t *testing.T) {
	for _, ev := range []interface{}{
		&network.EventLoadingFinished{RequestID: "1"},
		&page.EventFrameNavigated{},
		&runtime.EventExceptionThrown{},
		&network.EventResponseReceived{RequestID: "1"},
	} {
		_, ok := convertEvent(ev, time.Now(), nil, nopResponder{})
		assert.False(t, ok, "%T", ev)
	}
}

func TestTruthyExpression(t *testing.T) {
	assert.Equal(t, "Promise.resolve((window.ready === true)).then(v => !!v)", TruthyExpression(" window.ready === true; "))
}
