// internal/monitor/stabilize/condition.go
package stabilize

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Condition is an explicit wait target. At most one field is used, checked
// in the order Selector, Text, Predicate.
type Condition struct {
	// Selector waits for an element matching a CSS selector.
	Selector string
	// Text waits for the page's rendered text to contain a substring.
	Text string
	// Predicate waits for a script expression to become truthy.
	Predicate string
}

// IsZero reports whether no condition was given.
func (c Condition) IsZero() bool {
	return c.Selector == "" && c.Text == "" && c.Predicate == ""
}

// Expression returns the script polled for c.
func (c Condition) Expression() string {
	switch {
	case c.Selector != "":
		return fmt.Sprintf("document.querySelector(%s) !== null", jsString(c.Selector))
	case c.Text != "":
		return fmt.Sprintf("!!document.body && String(document.body.innerText || '').includes(%s)", jsString(c.Text))
	default:
		return c.Predicate
	}
}

// jsString renders s as a JavaScript string literal.
func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}
