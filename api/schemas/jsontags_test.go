package schemas_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/actionwatch/api/schemas"
)

// TestStructJSONTags pins the JSON field names of the result contract.
func TestStructJSONTags(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name         string
		structRef    interface{}
		expectedTags map[string]string
	}{
		{
			name:      "Change",
			structRef: schemas.Change{},
			expectedTags: map[string]string{
				"Type":        "type",
				"Description": "description",
				"Timestamp":   "timestamp",
				"Data":        "data",
			},
		},
		{
			name:      "PageState",
			structRef: schemas.PageState{},
			expectedTags: map[string]string{
				"URL":       "url",
				"Title":     "title",
				"Elements":  "elements",
				"Forms":     "forms",
				"Timestamp": "timestamp",
				"Degraded":  "degraded,omitempty",
			},
		},
		{
			name:      "MonitoredActionResult",
			structRef: schemas.MonitoredActionResult{},
			expectedTags: map[string]string{
				"ID":            "id",
				"ActionLabel":   "action_label",
				"StartState":    "start_state",
				"EndState":      "end_state",
				"Changes":       "changes",
				"RawEvents":     "raw_events",
				"DurationMs":    "duration_ms",
				"Stabilization": "stabilization",
				"EndStateError": "end_state_error,omitempty",
			},
		},
		{
			name:      "DialogEvent",
			structRef: schemas.DialogEvent{},
			expectedTags: map[string]string{
				"Type":          "type",
				"Message":       "message",
				"URL":           "url,omitempty",
				"DefaultPrompt": "default_prompt,omitempty",
				"Responder":     "-",
			},
		},
	}

	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			structType := reflect.TypeOf(tt.structRef)
			actualTags := make(map[string]string)

			for i := 0; i < structType.NumField(); i++ {
				field := structType.Field(i)
				jsonTag := field.Tag.Get("json")
				if jsonTag != "" {
					actualTags[field.Name] = jsonTag
				}
			}

			assert.Equal(t, tt.expectedTags, actualTags, "JSON tags for struct %s do not match expectations", tt.name)
		})
	}
}
