package schemas_test

import (
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/actionwatch/api/schemas"
)

// getTestTime provides a fixed, reproducible timestamp for consistent test results.
func getTestTime(t *testing.T) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, "2025-10-26T10:00:00.123456789Z")
	require.NoError(t, err, "Test setup failed: unable to parse fixed timestamp")
	return ts
}

func TestNewChange_TypeFollowsPayload(t *testing.T) {
	ts := getTestTime(t)
	payloads := map[schemas.ChangeType]schemas.ChangeData{
		schemas.ChangeNavigation: schemas.NavigationChange{From: "/a", To: "/b", Source: schemas.SourceDiff},
		schemas.ChangeDOM:        schemas.DOMChange{ElementID: "btn", Kind: schemas.DOMText},
		schemas.ChangeForm:       schemas.FormChange{FormID: "f1", Field: "name"},
		schemas.ChangeConsole:    schemas.ConsoleChange{Level: "log", Text: "[BRIDGE] hi"},
		schemas.ChangeError:      schemas.ErrorChange{Message: "boom", Source: schemas.SourcePage},
		schemas.ChangeDialog:     schemas.DialogChange{DialogType: "alert"},
		schemas.ChangeNetwork:    schemas.NetworkChange{URL: "/api", Status: 200},
	}

	for want, data := range payloads {
		c := schemas.NewChange(data, "desc", ts)
		assert.Equal(t, want, c.Type)
		assert.Equal(t, ts, c.Timestamp)
	}
}

func TestChange_MarshalIncludesPayload(t *testing.T) {
	c := schemas.NewChange(schemas.FormChange{FormID: "f1", Field: "name", From: "", To: "x"}, "name changed", getTestTime(t))

	raw, err := json.Marshal(c)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "form", decoded["type"])
	data, ok := decoded["data"].(map[string]interface{})
	require.True(t, ok, "payload should serialize as an object")
	assert.Equal(t, "f1", data["form_id"])
	assert.Equal(t, "x", data["to"])
}

func TestEmptyPageState(t *testing.T) {
	ts := getTestTime(t)
	s := schemas.EmptyPageState(ts)
	assert.True(t, s.Degraded)
	assert.Empty(t, s.Elements)
	assert.Empty(t, s.Forms)
	assert.NotNil(t, s.Elements, "maps must be non-nil so callers can range safely")
	assert.Equal(t, ts, s.Timestamp)
}
