package harness

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/skirmish/internal/model"
)

func TestScenarios_Golden(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.True(t, result.Converged())
		})
	}
}

func clashScenario(steps ...Step) *Scenario {
	return &Scenario{
		Name:        "inline",
		Description: "inline scenario",
		Players:     []Player{{ID: "A", Name: "Ana"}, {ID: "B", Name: "Beto"}},
		Rules:       RuleSpec{Kind: "clash", Threshold: 3, MaxRounds: 30},
		Steps:       steps,
		Assertions:  []Assertion{{Type: AssertTraceCount, Count: len(steps)}},
	}
}

func move(author, hand string) Step {
	return Step{Author: author, Kind: "move", Payload: map[string]any{"hand": hand}}
}

func TestRun_UnexpectedOutcomeFails(t *testing.T) {
	s := clashScenario(
		Step{Author: "A", Kind: "join"},
		Step{Author: "A", Kind: "move", Payload: map[string]any{"hand": "rock"}, Expect: Accepted},
	)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected accepted, got NOT_ACTIVE")
}

func TestRun_DeliveryOrdersConverge(t *testing.T) {
	s := clashScenario(
		Step{Author: "A", Kind: "join"},
		Step{Author: "B", Kind: "join"},
		move("A", "rock"),
		move("B", "paper"),
		move("B", "rock"),
		move("A", "rock"),
	)
	s.Deliveries = [][]int64{
		{6, 5, 4, 3, 2, 1},
		{3, 3, 1, 6, 2, 5, 4},
		{2},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Devices, 3)
	assert.True(t, result.Converged())

	assert.Equal(t, model.StatusActive, result.Final.Status)
	assert.Equal(t, 3, result.Final.Round)
	assert.Equal(t, 1, result.Final.Scores["B"])
	assert.Equal(t, int64(6), result.Final.LastSeq)
}

func TestRun_UnknownDeliverySeq(t *testing.T) {
	s := clashScenario(Step{Author: "A", Kind: "join"})
	s.Deliveries = [][]int64{{7}}

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no accepted event with seq 7")
}

func TestRun_FinalStateAssertion(t *testing.T) {
	s := clashScenario(
		Step{Author: "A", Kind: "join"},
		Step{Author: "B", Kind: "join"},
		Step{Author: "B", Kind: "abandon"},
	)
	s.Assertions = []Assertion{{
		Type:   AssertFinalState,
		Expect: map[string]any{"status": "abandoned", "winner": "B", "abandoned_by": "B"},
	}}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "winner=A (want B)")
}

func TestFormatTrace_ReportsDivergence(t *testing.T) {
	s := clashScenario(Step{Author: "A", Kind: "join"})
	result := NewResult()
	result.Trace = []TraceEvent{{Step: 1, Author: "A", Kind: model.KindJoin, Round: 1, Seq: 1}}
	result.Final = model.NewSession(DefaultSession, model.PlayerIdentity{ID: "A"}, model.PlayerIdentity{ID: "B"}, s.RuleSet(), time.Time{})
	result.Devices = []Device{{Digest: "x"}, {Digest: "y"}}

	out, err := FormatTrace(s, result)
	require.NoError(t, err)
	assert.Contains(t, string(out), "  1 A join r1 -> seq 1\n")
	assert.Contains(t, string(out), "devices: 2 diverged\n")
	assert.NotContains(t, string(out), "outcomes:")
}
