package harness

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/skirmish/internal/model"
)

// FormatTrace renders a scenario run as stable text: the steps with the
// channel's answers, the converged session and its round outcomes. Payloads
// are printed in canonical JSON.
func FormatTrace(scenario *Scenario, result *Result) ([]byte, error) {
	var buf bytes.Buffer
	set := scenario.RuleSet()

	fmt.Fprintf(&buf, "scenario: %s\n", scenario.Name)
	fmt.Fprintf(&buf, "session: %s rules=%s threshold=%d max_rounds=%d\n",
		scenario.SessionID(), set.Kind, set.Threshold, set.MaxRounds)

	buf.WriteString("steps:\n")
	for _, ev := range result.Trace {
		fmt.Fprintf(&buf, "  %d %s %s r%d", ev.Step, ev.Author, ev.Kind, ev.Round)
		if len(ev.Payload) > 0 {
			p, err := model.MarshalCanonical(ev.Payload)
			if err != nil {
				return nil, fmt.Errorf("step %d payload: %w", ev.Step, err)
			}
			fmt.Fprintf(&buf, " %s", p)
		}
		if ev.Reason == "" {
			fmt.Fprintf(&buf, " -> seq %d\n", ev.Seq)
		} else {
			fmt.Fprintf(&buf, " -> %s\n", ev.Reason)
		}
	}

	s := result.Final
	fmt.Fprintf(&buf, "final: status=%s round=%d score=%s winner=%s abandoned_by=%s last_seq=%d\n",
		s.Status, s.Round, formatScores(s, s.Scores), orDash(s.Winner), orDash(s.AbandonedBy), s.LastSeq)

	if len(s.History) > 0 {
		buf.WriteString("outcomes:\n")
	}
	for _, o := range s.History {
		fmt.Fprintf(&buf, "  r%d", o.Round)
		for _, p := range s.Participants {
			m, err := model.MarshalCanonical(o.Moves[p.ID])
			if err != nil {
				return nil, fmt.Errorf("round %d move: %w", o.Round, err)
			}
			fmt.Fprintf(&buf, " %s=%s", p.ID, m)
		}
		fmt.Fprintf(&buf, " delta=%s\n", formatScores(s, o.Delta))
	}

	state := "converged"
	if !result.Converged() {
		state = "diverged"
	}
	fmt.Fprintf(&buf, "devices: %d %s\n", len(result.Devices), state)
	return buf.Bytes(), nil
}

func formatScores(s model.GameSession, scores map[model.PlayerID]int) string {
	parts := make([]string, len(s.Participants))
	for i, p := range s.Participants {
		parts[i] = fmt.Sprintf("%s:%d", p.ID, scores[p.ID])
	}
	return strings.Join(parts, ",")
}

func orDash(id model.PlayerID) string {
	if id == "" {
		return "-"
	}
	return string(id)
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can make further checks.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result's trace against the golden file
// named after the scenario.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) error {
	t.Helper()

	trace, err := FormatTrace(scenario, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, trace)
	return nil
}
