// internal/monitor/diff/diff.go
package diff

import (
	"fmt"
	"sort"

	"github.com/xkilldash9x/actionwatch/api/schemas"
)

// Diff derives the structural changes between two snapshots. It is pure and
// deterministic: keys are visited in sorted order and the batch is emitted as
// navigation, then form fields, then visibility/text, then new elements.
// Every change is stamped with end.Timestamp. A nil or degraded snapshot on
// either side yields no changes.
//
// Element identity is whatever key capture produced. Positional keys
// ("button-3") shift when siblings are inserted, which surfaces here as
// spurious text or added changes.
func Diff(start, end *schemas.PageState) []schemas.Change {
	if start == nil || end == nil || start.Degraded || end.Degraded {
		return nil
	}
	var changes []schemas.Change

	if start.URL != end.URL {
		changes = append(changes, schemas.NewChange(
			schemas.NavigationChange{From: start.URL, To: end.URL, Source: schemas.SourceDiff},
			fmt.Sprintf("Navigated from %s to %s", start.URL, end.URL),
			end.Timestamp,
		))
	}

	changes = append(changes, formChanges(start, end)...)
	changes = append(changes, elementChanges(start, end)...)
	changes = append(changes, addedElements(start, end)...)
	return changes
}

func formChanges(start, end *schemas.PageState) []schemas.Change {
	var out []schemas.Change
	for _, formID := range sortedKeys(start.Forms) {
		endForm, ok := end.Forms[formID]
		if !ok {
			continue
		}
		startForm := start.Forms[formID]
		for _, field := range sortedKeys(startForm.Fields) {
			after, ok := endForm.Fields[field]
			if !ok {
				continue
			}
			before := startForm.Fields[field]
			if before.Value == after.Value {
				continue
			}
			out = append(out, schemas.NewChange(
				schemas.FormChange{FormID: formID, Field: field, From: before.Value, To: after.Value},
				fmt.Sprintf("Form %q field %q changed from %q to %q", formID, field, before.Value, after.Value),
				end.Timestamp,
			))
		}
	}
	return out
}

func elementChanges(start, end *schemas.PageState) []schemas.Change {
	var out []schemas.Change
	for _, id := range sortedKeys(start.Elements) {
		after, ok := end.Elements[id]
		if !ok {
			continue
		}
		before := start.Elements[id]

		if before.Visible != after.Visible {
			verb := "hidden"
			if after.Visible {
				verb = "visible"
			}
			out = append(out, schemas.NewChange(
				schemas.DOMChange{
					ElementID: id,
					Kind:      schemas.DOMVisibility,
					Tag:       after.Tag,
					From:      visibility(before.Visible),
					To:        visibility(after.Visible),
				},
				fmt.Sprintf("Element %q (<%s>) became %s", id, after.Tag, verb),
				end.Timestamp,
			))
		}

		if before.Text != after.Text && after.Text != "" {
			out = append(out, schemas.NewChange(
				schemas.DOMChange{ElementID: id, Kind: schemas.DOMText, Tag: after.Tag, From: before.Text, To: after.Text},
				fmt.Sprintf("Element %q (<%s>) text changed to %q", id, after.Tag, after.Text),
				end.Timestamp,
			))
		}
	}
	return out
}

func addedElements(start, end *schemas.PageState) []schemas.Change {
	var out []schemas.Change
	for _, id := range sortedKeys(end.Elements) {
		if _, existed := start.Elements[id]; existed {
			continue
		}
		el := end.Elements[id]
		if !el.Visible {
			continue
		}
		out = append(out, schemas.NewChange(
			schemas.DOMChange{ElementID: id, Kind: schemas.DOMAdded, Tag: el.Tag, To: el.Text},
			fmt.Sprintf("New element %q (<%s>) appeared", id, el.Tag),
			end.Timestamp,
		))
	}
	return out
}

func visibility(v bool) string {
	if v {
		return "visible"
	}
	return "hidden"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
