// api/schemas/events.go
package schemas

import (
	"context"
	"time"
)

// EventKind is one of the five side channels observed during an action.
type EventKind string

const (
	EventConsole    EventKind = "console"
	EventDialog     EventKind = "dialog"
	EventNavigation EventKind = "navigation"
	EventPageError  EventKind = "pageError"
	EventResponse   EventKind = "response"
)

// EventKinds lists every observed kind in attach order.
var EventKinds = []EventKind{EventConsole, EventDialog, EventNavigation, EventPageError, EventResponse}

// Event is a raw side-channel event. Exactly one payload matching Kind is set.
type Event struct {
	Kind       EventKind        `json:"kind"`
	Timestamp  time.Time        `json:"timestamp"`
	Console    *ConsoleEvent    `json:"console,omitempty"`
	Dialog     *DialogEvent     `json:"dialog,omitempty"`
	Navigation *NavigationEvent `json:"navigation,omitempty"`
	PageError  *PageErrorEvent  `json:"page_error,omitempty"`
	Response   *ResponseEvent   `json:"response,omitempty"`
}

// ConsoleEvent is a console API call.
type ConsoleEvent struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

// DialogResponder answers a native dialog.
type DialogResponder interface {
	Accept(ctx context.Context, promptText string) error
	Dismiss(ctx context.Context) error
}

// DialogEvent is an alert, confirm, prompt or beforeunload dialog.
type DialogEvent struct {
	Type          string          `json:"type"`
	Message       string          `json:"message"`
	URL           string          `json:"url,omitempty"`
	DefaultPrompt string          `json:"default_prompt,omitempty"`
	Responder     DialogResponder `json:"-"`
}

// NavigationEvent is a committed frame navigation.
type NavigationEvent struct {
	URL       string `json:"url"`
	FrameID   string `json:"frame_id,omitempty"`
	MainFrame bool   `json:"main_frame"`
}

// PageErrorEvent is an uncaught exception in the page.
type PageErrorEvent struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
	URL     string `json:"url,omitempty"`
	Line    int64  `json:"line,omitempty"`
}

// ResponseEvent is a received network response.
type ResponseEvent struct {
	URL          string `json:"url"`
	Method       string `json:"method,omitempty"`
	Status       int    `json:"status"`
	StatusText   string `json:"status_text,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
	ResourceType string `json:"resource_type"`
}
