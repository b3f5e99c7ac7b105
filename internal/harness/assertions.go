package harness

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/skirmish/internal/model"
)

// AssertionError is returned when an assertion fails.
// It includes the full trace to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, ev := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %s round %d -> %s\n", ev.Step, ev.Author, ev.Kind, ev.Round, ev.Outcome())
	}
	return buf.String()
}

// matchStep reports whether a trace event passes the assertion's filters.
func matchStep(ev TraceEvent, a Assertion) bool {
	if a.Author != "" && string(ev.Author) != a.Author {
		return false
	}
	if a.Kind != "" && string(ev.Kind) != a.Kind {
		return false
	}
	if a.Reason != "" && ev.Outcome() != a.Reason {
		return false
	}
	return true
}

func describeFilter(a Assertion) string {
	var parts []string
	if a.Author != "" {
		parts = append(parts, "author="+a.Author)
	}
	if a.Kind != "" {
		parts = append(parts, "kind="+a.Kind)
	}
	if a.Reason != "" {
		parts = append(parts, "reason="+a.Reason)
	}
	if len(parts) == 0 {
		return "any step"
	}
	return strings.Join(parts, " ")
}

func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if matchStep(ev, a) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: describeFilter(a),
		Actual:   "no matching step",
		Trace:    trace,
	}
}

func assertTraceCount(trace []TraceEvent, a Assertion) error {
	n := 0
	for _, ev := range trace {
		if matchStep(ev, a) {
			n++
		}
	}
	if n == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceCount,
		Expected: fmt.Sprintf("%d x %s", a.Count, describeFilter(a)),
		Actual:   fmt.Sprintf("%d matching steps", n),
		Trace:    trace,
	}
}

func assertFinalState(final model.GameSession, trace []TraceEvent, a Assertion) error {
	keys := make([]string, 0, len(a.Expect))
	for k := range a.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var mismatches []string
	for _, k := range keys {
		actual, ok := sessionField(final, k)
		if !ok {
			return fmt.Errorf("final_state: unknown field %q", k)
		}
		if !valuesEqual(actual, a.Expect[k]) {
			mismatches = append(mismatches, fmt.Sprintf("%s=%v (want %v)", k, actual, a.Expect[k]))
		}
	}
	if len(mismatches) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertFinalState,
		Expected: formatExpect(a.Expect, keys),
		Actual:   strings.Join(mismatches, ", "),
		Trace:    trace,
	}
}

// sessionField resolves a final_state key against a session.
func sessionField(s model.GameSession, key string) (any, bool) {
	if player, ok := strings.CutPrefix(key, "score."); ok {
		score, seated := s.Scores[model.PlayerID(player)]
		return score, seated
	}
	switch key {
	case "status":
		return string(s.Status), true
	case "round":
		return s.Round, true
	case "winner":
		return string(s.Winner), true
	case "abandoned_by":
		return string(s.AbandonedBy), true
	case "last_seq":
		return s.LastSeq, true
	case "rounds":
		return len(s.History), true
	default:
		return nil, false
	}
}

func formatExpect(expect map[string]any, keys []string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, expect[k])
	}
	return strings.Join(parts, ", ")
}

// valuesEqual compares a session field with a YAML value. Numbers of any
// width and their decimal strings compare equal; a YAML null matches an
// empty string.
func valuesEqual(actual, expected any) bool {
	if expected == nil {
		return actual == ""
	}
	return fmt.Sprint(actual) == fmt.Sprint(expected)
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			err = assertFinalState(result.Final, result.Trace, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
