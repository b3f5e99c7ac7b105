package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/skirmish/internal/model"
	"github.com/roach88/skirmish/internal/rules"
)

// Scenario is a scripted session between two players.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Session is the room code. Defaults to DefaultSession.
	Session string `yaml:"session,omitempty"`

	// Players are the two participants in seat order.
	Players []Player `yaml:"players"`

	// Rules is the inline rule set. Ignored when RulesFile is set.
	Rules RuleSpec `yaml:"rules,omitempty"`

	// RulesFile is a CUE rule file, relative to the scenario file.
	RulesFile string `yaml:"rules_file,omitempty"`

	// Steps are appended to the channel in order.
	Steps []Step `yaml:"steps"`

	// Deliveries lists the delivery orders of simulated devices, as
	// sequence numbers. With none, a single in-order device is used.
	Deliveries [][]int64 `yaml:"deliveries,omitempty"`

	// Assertions validate the trace and the converged session.
	Assertions []Assertion `yaml:"assertions"`
}

// Player is a participant.
type Player struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// RuleSpec is the inline form of a rule set.
type RuleSpec struct {
	Kind      string `yaml:"kind"`
	Threshold int    `yaml:"threshold"`
	MaxRounds int    `yaml:"max_rounds"`
}

// Step is one event submitted to the channel.
type Step struct {
	Author  string         `yaml:"author"`
	Kind    string         `yaml:"kind"`
	Round   int            `yaml:"round,omitempty"`
	Payload map[string]any `yaml:"payload,omitempty"`

	// Forfeit names the idle opponent of an abandon claim.
	Forfeit string `yaml:"forfeit,omitempty"`

	// Expect is "accepted" or a rejection reason.
	Expect string `yaml:"expect,omitempty"`
}

// Assertion validates the trace or the final session.
type Assertion struct {
	// Type is one of trace_contains, trace_count, final_state.
	Type string `yaml:"type"`

	// Author, Kind and Reason filter trace steps. Empty matches anything.
	// Reason "accepted" matches accepted steps.
	Author string `yaml:"author,omitempty"`
	Kind   string `yaml:"kind,omitempty"`
	Reason string `yaml:"reason,omitempty"`

	// Count is the expected number of matching steps (trace_count).
	Count int `yaml:"count,omitempty"`

	// Expect lists session fields (final_state): status, round, winner,
	// abandoned_by, last_seq, rounds and score.<player>.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// DefaultSession is the room code used when a scenario names none.
const DefaultSession = "SCN001"

// Accepted is the expect value of a step the channel must accept.
const Accepted = "accepted"

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected, and a rules_file is resolved relative to the
// scenario and loaded.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.RulesFile != "" {
		rulesPath := scenario.RulesFile
		if !filepath.IsAbs(rulesPath) {
			rulesPath = filepath.Join(filepath.Dir(path), rulesPath)
		}
		set, err := rules.Load(rulesPath)
		if err != nil {
			return nil, fmt.Errorf("invalid scenario: %w", err)
		}
		scenario.Rules = RuleSpec{Kind: set.Kind, Threshold: set.Threshold, MaxRounds: set.MaxRounds}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// RuleSet returns the scenario's rule set.
func (s *Scenario) RuleSet() model.RuleSet {
	return model.RuleSet{Kind: s.Rules.Kind, Threshold: s.Rules.Threshold, MaxRounds: s.Rules.MaxRounds}
}

// SessionID returns the scenario's room code.
func (s *Scenario) SessionID() model.SessionID {
	if s.Session == "" {
		return DefaultSession
	}
	return model.SessionID(s.Session)
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Players) != 2 {
		return fmt.Errorf("exactly two players are required, got %d", len(s.Players))
	}
	seated := map[string]bool{}
	for i, p := range s.Players {
		if p.ID == "" {
			return fmt.Errorf("players[%d]: id is required", i)
		}
		if seated[p.ID] {
			return fmt.Errorf("players[%d]: duplicate id %q", i, p.ID)
		}
		seated[p.ID] = true
	}
	if _, err := rules.New(s.RuleSet()); err != nil {
		return fmt.Errorf("rules: %w", err)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Author == "" {
			return fmt.Errorf("steps[%d]: author is required", i)
		}
		switch model.EventKind(step.Kind) {
		case model.KindJoin, model.KindMove, model.KindAbandon:
		default:
			return fmt.Errorf("steps[%d]: unknown kind %q", i, step.Kind)
		}
		if step.Kind == string(model.KindMove) && step.Payload == nil {
			return fmt.Errorf("steps[%d]: payload is required for move", i)
		}
	}

	for i, order := range s.Deliveries {
		if len(order) == 0 {
			return fmt.Errorf("deliveries[%d]: empty delivery order", i)
		}
		for _, seq := range order {
			if seq < 1 {
				return fmt.Errorf("deliveries[%d]: sequence numbers start at 1", i)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains:
		if a.Author == "" && a.Kind == "" && a.Reason == "" {
			return fmt.Errorf("assertions[%d]: trace_contains needs author, kind or reason", index)
		}
	case AssertTraceCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
