// api/schemas/state.go
package schemas

import "time"

// MaxElementText bounds the text captured for a single element.
const MaxElementText = 100

// PageState is a structural summary of a live document taken in a single
// evaluation pass. Once produced it is never mutated.
type PageState struct {
	URL       string                     `json:"url"`
	Title     string                     `json:"title"`
	Elements  map[string]ElementSnapshot `json:"elements"`
	Forms     map[string]FormSnapshot    `json:"forms"`
	Timestamp time.Time                  `json:"timestamp"`
	// Degraded marks a placeholder state produced when capture failed.
	Degraded bool `json:"degraded,omitempty"`
}

// ElementSnapshot is the observable state of one interactive element.
//
// Visible is approximated by "has a non-null offsetParent". Fixed-position
// elements and the body report as invisible under this test, and elements
// scrolled out of view report as visible. It is not a pixel test.
type ElementSnapshot struct {
	Tag      string `json:"tag"`
	Visible  bool   `json:"visible"`
	Text     string `json:"text"`
	Value    string `json:"value,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
	Href     string `json:"href,omitempty"`
}

// FormSnapshot captures a form and the current state of its fields.
type FormSnapshot struct {
	ID     string                   `json:"id"`
	Action string                   `json:"action,omitempty"`
	Method string                   `json:"method,omitempty"`
	Fields map[string]FieldSnapshot `json:"fields"`
}

// FieldSnapshot is the state of one form control.
type FieldSnapshot struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Disabled bool   `json:"disabled,omitempty"`
	Required bool   `json:"required,omitempty"`
}

// EmptyPageState returns a degraded placeholder stamped with ts.
func EmptyPageState(ts time.Time) *PageState {
	return &PageState{
		Elements:  map[string]ElementSnapshot{},
		Forms:     map[string]FormSnapshot{},
		Timestamp: ts,
		Degraded:  true,
	}
}
