package rules

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/skirmish/internal/model"
)

func choice(n int64) model.Object {
	return model.NewObject(model.F("choice", model.Int(n)))
}

func hand(h string) model.Object {
	return model.NewObject(model.F("hand", model.String(h)))
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		set     model.RuleSet
		wantErr bool
	}{
		{"duel", model.RuleSet{Kind: KindDuel, Threshold: 3}, false},
		{"clash", model.RuleSet{Kind: KindClash, MaxRounds: 5}, false},
		{"default", Default(), false},
		{"unknown kind", model.RuleSet{Kind: "chess", Threshold: 3}, true},
		{"unbounded", model.RuleSet{Kind: KindDuel}, true},
		{"negative", model.RuleSet{Kind: KindDuel, Threshold: -1, MaxRounds: 3}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(tt.set)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.set, r.Set())
		})
	}
}

func TestDuel_Validate(t *testing.T) {
	d := MustNew(model.RuleSet{Kind: KindDuel, Threshold: 3})

	assert.NoError(t, d.Validate(1, 0, choice(1)))
	assert.NoError(t, d.Validate(2, 1, choice(4)))

	for _, bad := range []model.Object{choice(0), choice(5), hand("rock"), nil} {
		err := d.Validate(1, 0, bad)
		assert.True(t, errors.Is(err, ErrInvalidMove), "payload %v", bad)
	}
}

func TestDuel_Outcome(t *testing.T) {
	d := Duel{set: model.RuleSet{Kind: KindDuel, Threshold: 3}}

	// Round 1: seat 0 attacks.
	assert.Equal(t, [2]int{1, 0}, d.Outcome(1, [2]model.Object{choice(2), choice(2)}))
	assert.Equal(t, [2]int{0, 0}, d.Outcome(1, [2]model.Object{choice(2), choice(3)}))

	// Round 2: seat 1 attacks.
	assert.Equal(t, [2]int{0, 1}, d.Outcome(2, [2]model.Object{choice(4), choice(4)}))
	assert.Equal(t, 1, d.Attacker(4))
	assert.Equal(t, 0, d.Attacker(5))
}

func TestClash_Outcome(t *testing.T) {
	c := MustNew(model.RuleSet{Kind: KindClash, Threshold: 3})

	tests := []struct {
		a, b string
		want [2]int
	}{
		{"rock", "scissors", [2]int{1, 0}},
		{"rock", "paper", [2]int{0, 1}},
		{"paper", "paper", [2]int{0, 0}},
		{"scissors", "paper", [2]int{1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Outcome(1, [2]model.Object{hand(tt.a), hand(tt.b)}))
		})
	}

	assert.Error(t, c.Validate(1, 0, hand("lizard")))
	assert.Error(t, c.Validate(1, 0, choice(1)))
}

func TestDone(t *testing.T) {
	a := model.PlayerIdentity{ID: "a"}
	b := model.PlayerIdentity{ID: "b"}
	set := model.RuleSet{Kind: KindDuel, Threshold: 3, MaxRounds: 4}
	r := MustNew(set)
	s := model.NewSession("ROOM01", a, b, set, time.Unix(0, 0))

	over, _ := r.Done(s)
	assert.False(t, over)

	s.Scores["a"] = 3
	over, winner := r.Done(s)
	assert.True(t, over)
	assert.Equal(t, model.PlayerID("a"), winner)

	s.Scores["a"] = 1
	s.Scores["b"] = 1
	s.History = make([]model.RoundOutcome, 4)
	over, winner = r.Done(s)
	assert.True(t, over)
	assert.Empty(t, winner, "equal scores at the round limit are a draw")
}

func TestParse(t *testing.T) {
	set, err := Parse([]byte(`rules: {
	kind:      "clash"
	threshold: 3
}`), "clash.cue")
	require.NoError(t, err)
	assert.Equal(t, model.RuleSet{Kind: KindClash, Threshold: 3, MaxRounds: DefaultMaxRounds}, set)
}

func TestParse_Defaults(t *testing.T) {
	set, err := Parse([]byte(`rules: kind: "duel"`), "duel.cue")
	require.NoError(t, err)
	assert.Equal(t, Default(), set)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"unknown kind", `rules: kind: "chess"`},
		{"negative threshold", `rules: {kind: "duel", threshold: -1}`},
		{"unknown field", `rules: {kind: "duel", speed: 2}`},
		{"missing kind", `rules: threshold: 2`},
		{"unbounded", `rules: {kind: "duel", threshold: 0, max_rounds: 0}`},
		{"syntax", `rules: {`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), tt.name+".cue")
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.cue")
	require.NoError(t, os.WriteFile(path, []byte(`rules: {kind: "duel", threshold: 3, max_rounds: 10}`), 0o644))

	set, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, model.RuleSet{Kind: KindDuel, Threshold: 3, MaxRounds: 10}, set)

	_, err = Load(filepath.Join(t.TempDir(), "missing.cue"))
	assert.Error(t, err)
}
