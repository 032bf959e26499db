// internal/monitor/summary/summary.go
package summary

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/actionwatch/api/schemas"
)

// NoChanges is the line rendered when a run detected nothing.
const NoChanges = "No changes detected"

// Summarize renders result as a plain-text report. Changes are grouped by
// type in the order each type first appears; within a group they keep
// result order. The output depends only on result.
func Summarize(result *schemas.MonitoredActionResult) string {
	if result == nil {
		return NoChanges + "\n"
	}

	var b strings.Builder
	if result.ActionLabel != "" {
		fmt.Fprintf(&b, "Action: %s\n", result.ActionLabel)
	}

	stab := result.Stabilization
	status := stab.State
	if status == "" {
		status = "unknown"
	}
	if stab.Winner != "" {
		status = fmt.Sprintf("%s (%s)", status, stab.Winner)
	}
	fmt.Fprintf(&b, "Duration: %dms, stabilization: %s\n", result.DurationMs, status)

	if result.EndStateError != "" {
		fmt.Fprintf(&b, "End state unavailable: %s\n", result.EndStateError)
	}

	if len(result.Changes) == 0 {
		b.WriteString(NoChanges + "\n")
		return b.String()
	}

	fmt.Fprintf(&b, "Changes: %d\n", len(result.Changes))
	order, groups := group(result.Changes)
	for _, t := range order {
		fmt.Fprintf(&b, "\n%s (%d):\n", t, len(groups[t]))
		for _, c := range groups[t] {
			fmt.Fprintf(&b, "  - %s\n", c.Description)
		}
	}
	return b.String()
}

func group(changes []schemas.Change) ([]schemas.ChangeType, map[schemas.ChangeType][]schemas.Change) {
	var order []schemas.ChangeType
	groups := make(map[schemas.ChangeType][]schemas.Change)
	for _, c := range changes {
		if _, seen := groups[c.Type]; !seen {
			order = append(order, c.Type)
		}
		groups[c.Type] = append(groups[c.Type], c)
	}
	return order, groups
}
