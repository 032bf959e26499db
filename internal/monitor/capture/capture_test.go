// internal/monitor/capture/capture_test.go
package capture

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/actionwatch/api/schemas"
	"github.com/xkilldash9x/actionwatch/internal/browser/browsertest"
)

func samplePayload() map[string]any {
	return map[string]any{
		"url":   "https://example.com/a",
		"title": "Sign up",
		"elements": map[string]any{
			"submit": map[string]any{"tag": "button", "visible": true, "text": "Send"},
			"a-0":    map[string]any{"tag": "a", "visible": true, "text": "Home", "href": "https://example.com/"},
		},
		"forms": map[string]any{
			"f1": map[string]any{
				"id":     "f1",
				"method": "post",
				"fields": map[string]any{
					"name": map[string]any{"type": "text", "value": ""},
				},
			},
		},
	}
}

func TestCapture_DecodesSnapshot(t *testing.T) {
	page := browsertest.New()
	page.OnEvaluate(func(ctx context.Context, expr string) (any, error) {
		return samplePayload(), nil
	})

	before := time.Now()
	state, err := Capture(context.Background(), page, Options{})
	require.NoError(t, err)

	want := &schemas.PageState{
		URL:   "https://example.com/a",
		Title: "Sign up",
		Elements: map[string]schemas.ElementSnapshot{
			"submit": {Tag: "button", Visible: true, Text: "Send"},
			"a-0":    {Tag: "a", Visible: true, Text: "Home", Href: "https://example.com/"},
		},
		Forms: map[string]schemas.FormSnapshot{
			"f1": {ID: "f1", Method: "post", Fields: map[string]schemas.FieldSnapshot{
				"name": {Type: "text", Value: ""},
			}},
		},
	}
	if diff := cmp.Diff(want, state, cmpopts.IgnoreFields(schemas.PageState{}, "Timestamp")); diff != "" {
		t.Errorf("Capture() mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, state.Timestamp.Before(before), "timestamp is taken on the host after evaluation")
	assert.False(t, state.Degraded)
}

func TestCapture_SingleEvaluation(t *testing.T) {
	page := browsertest.New()
	page.OnEvaluate(func(ctx context.Context, expr string) (any, error) {
		return samplePayload(), nil
	})

	_, err := Capture(context.Background(), page, Options{MaxElements: 25})
	require.NoError(t, err)

	evaluated := page.Evaluated()
	require.Len(t, evaluated, 1)
	assert.Contains(t, evaluated[0], "const maxElements = 25;")
	assert.Contains(t, evaluated[0], "const maxText = 100;")
	assert.Contains(t, evaluated[0], `"a, button, input, select, textarea, [id], [data-agent-id]"`)
}

func TestCapture_DefaultsMissingMaps(t *testing.T) {
	page := browsertest.New()
	page.OnEvaluate(func(ctx context.Context, expr string) (any, error) {
		return map[string]any{
			"url":   "about:blank",
			"forms": map[string]any{"form-0": map[string]any{"id": "form-0"}},
		}, nil
	})

	state, err := Capture(context.Background(), page, Options{})
	require.NoError(t, err)
	assert.NotNil(t, state.Elements)
	require.Contains(t, state.Forms, "form-0")
	assert.NotNil(t, state.Forms["form-0"].Fields)
}

func TestCapture_Failures(t *testing.T) {
	t.Run("EvaluationError", func(t *testing.T) {
		page := browsertest.New()
		boom := errors.New("Execution context was destroyed")
		page.OnEvaluate(func(ctx context.Context, expr string) (any, error) {
			return nil, boom
		})

		state, err := Capture(context.Background(), page, Options{})
		assert.Nil(t, state)
		assert.ErrorIs(t, err, ErrCaptureFailed)
		assert.ErrorIs(t, err, boom)

		var ce *CaptureError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "evaluation failed", ce.Reason)
	})

	t.Run("NullResult", func(t *testing.T) {
		page := browsertest.New()
		state, err := Capture(context.Background(), page, Options{})
		assert.Nil(t, state)
		assert.ErrorIs(t, err, ErrCaptureFailed)
		assert.True(t, strings.Contains(err.Error(), "no state"))
	})

	t.Run("Timeout", func(t *testing.T) {
		page := browsertest.New()
		page.OnEvaluate(func(ctx context.Context, expr string) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
		_, err := Capture(context.Background(), page, Options{Timeout: 20 * time.Millisecond})
		assert.ErrorIs(t, err, ErrCaptureFailed)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
