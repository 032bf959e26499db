// api/schemas/result.go
package schemas

// MonitoredActionResult is produced once per monitored action and owned by
// the caller.
type MonitoredActionResult struct {
	ID          string     `json:"id"`
	ActionLabel string     `json:"action_label"`
	StartState  *PageState `json:"start_state"`
	EndState    *PageState `json:"end_state"`
	// Changes holds listener changes in arrival order followed by the diff
	// batch. Array order is not timestamp order.
	Changes       []Change            `json:"changes"`
	RawEvents     []Event             `json:"raw_events"`
	DurationMs    int64               `json:"duration_ms"`
	Stabilization StabilizationReport `json:"stabilization"`
	// EndStateError is set when end capture failed and EndState is degraded.
	EndStateError string `json:"end_state_error,omitempty"`
}

// StabilizationReport is the outcome of the post-action wait.
type StabilizationReport struct {
	Stabilized bool   `json:"stabilized"`
	State      string `json:"state"`
	Winner     string `json:"winner,omitempty"`
	ElapsedMs  int64  `json:"elapsed_ms"`
}
