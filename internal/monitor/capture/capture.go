// internal/monitor/capture/capture.go
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xkilldash9x/actionwatch/api/schemas"
	"github.com/xkilldash9x/actionwatch/internal/browser"
)

// ErrCaptureFailed matches every snapshot failure.
var ErrCaptureFailed = errors.New("snapshot capture failed")

// DefaultMaxElements caps element discovery when Options leaves it unset.
const DefaultMaxElements = 500

// CaptureError reports why a snapshot could not be taken.
type CaptureError struct {
	Reason string
	Err    error
}

func (e *CaptureError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrCaptureFailed, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", ErrCaptureFailed, e.Reason, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrCaptureFailed) hold for any *CaptureError.
func (e *CaptureError) Is(target error) bool { return target == ErrCaptureFailed }

// Options bounds one capture.
type Options struct {
	MaxElements int
	// Timeout bounds the evaluation. Zero means only ctx applies.
	Timeout time.Duration
}

// payload mirrors the object returned by the capture script.
type payload struct {
	URL      string                             `json:"url"`
	Title    string                             `json:"title"`
	Elements map[string]schemas.ElementSnapshot `json:"elements"`
	Forms    map[string]schemas.FormSnapshot    `json:"forms"`
}

// Capture takes a snapshot of page in a single evaluation so the fields
// cannot tear against each other. The result is stamped with host time.
func Capture(ctx context.Context, page browser.Page, opts Options) (*schemas.PageState, error) {
	if opts.MaxElements <= 0 {
		opts.MaxElements = DefaultMaxElements
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	var p *payload
	if err := page.Evaluate(ctx, Script(opts.MaxElements), &p); err != nil {
		return nil, &CaptureError{Reason: "evaluation failed", Err: err}
	}
	if p == nil {
		return nil, &CaptureError{Reason: "script returned no state"}
	}

	state := &schemas.PageState{
		URL:       p.URL,
		Title:     p.Title,
		Elements:  p.Elements,
		Forms:     p.Forms,
		Timestamp: time.Now(),
	}
	if state.Elements == nil {
		state.Elements = map[string]schemas.ElementSnapshot{}
	}
	if state.Forms == nil {
		state.Forms = map[string]schemas.FormSnapshot{}
	}
	for id, f := range state.Forms {
		if f.Fields == nil {
			f.Fields = map[string]schemas.FieldSnapshot{}
			state.Forms[id] = f
		}
	}
	return state, nil
}
