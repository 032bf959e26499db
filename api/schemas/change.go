// api/schemas/change.go
package schemas

import "time"

// ChangeType classifies a detected side effect.
type ChangeType string

const (
	ChangeNavigation ChangeType = "navigation"
	ChangeDOM        ChangeType = "dom"
	ChangeConsole    ChangeType = "console"
	ChangeError      ChangeType = "error"
	ChangeDialog     ChangeType = "dialog"
	ChangeForm       ChangeType = "form"
	ChangeNetwork    ChangeType = "network"
)

// Change is one typed, timestamped record of a detected difference or event.
type Change struct {
	Type        ChangeType `json:"type"`
	Description string     `json:"description"`
	Timestamp   time.Time  `json:"timestamp"`
	Data        ChangeData `json:"data"`
}

// ChangeData is the closed set of change payloads. Each payload reports the
// change type it belongs to.
type ChangeData interface {
	ChangeType() ChangeType
	sealed()
}

// Sources distinguish how a change was detected.
const (
	SourceDiff     = "diff"
	SourceListener = "listener"
	SourceAction   = "action"
	SourcePage     = "page"
)

// NavigationChange records a URL transition.
type NavigationChange struct {
	From   string `json:"from,omitempty"`
	To     string `json:"to"`
	Source string `json:"source"`
}

// DOMChangeKind says which element property changed.
type DOMChangeKind string

const (
	DOMVisibility DOMChangeKind = "visibility"
	DOMText       DOMChangeKind = "text"
	DOMAdded      DOMChangeKind = "added"
)

// DOMChange records a visibility flip, a text change, or a new element.
type DOMChange struct {
	ElementID string        `json:"element_id"`
	Kind      DOMChangeKind `json:"kind"`
	Tag       string        `json:"tag"`
	From      string        `json:"from,omitempty"`
	To        string        `json:"to,omitempty"`
}

// FormChange records a single field value change.
type FormChange struct {
	FormID string `json:"form_id"`
	Field  string `json:"field"`
	From   string `json:"from"`
	To     string `json:"to"`
}

// ConsoleChange records a console message that carried a structural marker.
type ConsoleChange struct {
	Level  string `json:"level"`
	Text   string `json:"text"`
	Marker string `json:"marker"`
}

// ErrorChange records an uncaught page error or a failed action.
type ErrorChange struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
	Source  string `json:"source"`
}

// DialogChange records a native dialog and how it was answered.
type DialogChange struct {
	DialogType string `json:"dialog_type"`
	Message    string `json:"message"`
	Handling   string `json:"handling"`
}

// NetworkChange records an XHR or fetch response.
type NetworkChange struct {
	URL          string `json:"url"`
	Method       string `json:"method,omitempty"`
	Status       int    `json:"status"`
	ResourceType string `json:"resource_type"`
	MimeType     string `json:"mime_type,omitempty"`
}

func (NavigationChange) ChangeType() ChangeType { return ChangeNavigation }
func (DOMChange) ChangeType() ChangeType        { return ChangeDOM }
func (FormChange) ChangeType() ChangeType       { return ChangeForm }
func (ConsoleChange) ChangeType() ChangeType    { return ChangeConsole }
func (ErrorChange) ChangeType() ChangeType      { return ChangeError }
func (DialogChange) ChangeType() ChangeType     { return ChangeDialog }
func (NetworkChange) ChangeType() ChangeType    { return ChangeNetwork }

func (NavigationChange) sealed() {}
func (DOMChange) sealed()        {}
func (FormChange) sealed()       {}
func (ConsoleChange) sealed()    {}
func (ErrorChange) sealed()      {}
func (DialogChange) sealed()     {}
func (NetworkChange) sealed()    {}

// NewChange builds a Change whose Type always agrees with its payload.
func NewChange(data ChangeData, description string, ts time.Time) Change {
	return Change{
		Type:        data.ChangeType(),
		Description: description,
		Timestamp:   ts,
		Data:        data,
	}
}
