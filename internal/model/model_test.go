package model

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_SortsKeysAndSkipsHTMLEscaping(t *testing.T) {
	obj := NewObject(
		F("zeta", Int(1)),
		F("alpha", String("<a&b>")),
		F("list", Array{Bool(true), Int(-3)}),
	)

	got, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":"<a&b>","list":[true,-3],"zeta":1}`, string(got))
}

func TestMarshalCanonical_EscapesControlCharacters(t *testing.T) {
	got, err := MarshalCanonical(String("a\"b\\c\n\x01"))
	require.NoError(t, err)
	assert.Equal(t, `"a\"b\\c\n\u0001"`, string(got))
}

func TestMarshalCanonical_NormalizesToNFC(t *testing.T) {
	composed, err := MarshalCanonical(String("caf\u00e9"))
	require.NoError(t, err)
	decomposed, err := MarshalCanonical(String("cafe\u0301"))
	require.NoError(t, err)
	assert.Equal(t, composed, decomposed)
}

func TestMarshalCanonical_RejectsNil(t *testing.T) {
	_, err := MarshalCanonical(Object{"x": nil})
	assert.Error(t, err)
}

func TestEqual(t *testing.T) {
	a := NewObject(F("choice", Int(3)), F("tag", String("x")))
	b := NewObject(F("tag", String("x")), F("choice", Int(3)))
	c := NewObject(F("choice", Int(4)))

	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, c))
}

func TestParseObject(t *testing.T) {
	obj, err := ParseObject([]byte(`{"choice": 3, "hand": "rock", "big": 9007199254740993}`))
	require.NoError(t, err)

	n, ok := obj.Int("choice")
	assert.True(t, ok)
	assert.Equal(t, int64(3), n)

	big, ok := obj.Int("big")
	assert.True(t, ok)
	assert.Equal(t, int64(9007199254740993), big)

	s, ok := obj.Str("hand")
	assert.True(t, ok)
	assert.Equal(t, "rock", s)
}

func TestParseObject_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"float", `{"x": 1.5}`},
		{"null value", `{"x": null}`},
		{"not an object", `[1, 2]`},
		{"null", `null`},
		{"integer overflow", `{"x": 9223372036854775808}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseObject([]byte(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestFromAny_Integers(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want Value
	}{
		{"int", 7, Int(7)},
		{"int64", int64(-3), Int(-3)},
		{"uint64", uint64(12), Int(12)},
		{"uint64 at limit", uint64(math.MaxInt64), Int(math.MaxInt64)},
		{"json number", json.Number("42"), Int(42)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromAny(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := FromAny(uint64(math.MaxInt64) + 1)
	assert.ErrorContains(t, err, "overflows int64")

	_, err = FromAny(map[string]any{"big": []any{uint64(math.MaxUint64)}})
	assert.Error(t, err)
}

func testSession() GameSession {
	a := PlayerIdentity{ID: "alice", DisplayName: "Alice"}
	b := PlayerIdentity{ID: "bob", DisplayName: "Bob"}
	return NewSession("ROOM42", a, b, RuleSet{Kind: "duel", Threshold: 3, MaxRounds: 30}, time.Date(2026, 10, 1, 12, 0, 0, 123456789, time.UTC))
}

func TestNewSession(t *testing.T) {
	s := testSession()

	assert.Equal(t, StatusPending, s.Status)
	assert.Equal(t, 1, s.Round)
	assert.Equal(t, map[PlayerID]int{"alice": 0, "bob": 0}, s.Scores)
	assert.Equal(t, 123000000, s.CreatedAt.Nanosecond())

	seat, ok := s.Seat("bob")
	assert.True(t, ok)
	assert.Equal(t, 1, seat)
	assert.Equal(t, PlayerID("alice"), s.Opponent("bob").ID)
	_, ok = s.Seat("mallory")
	assert.False(t, ok)
}

func TestSessionDigest_SurvivesEncodeDecode(t *testing.T) {
	s := testSession()
	s.Status = StatusActive
	s.Joined = []PlayerID{"alice", "bob"}
	s.Pending["alice"] = NewObject(F("choice", Int(2)))
	s.History = append(s.History, RoundOutcome{
		Round: 1,
		Moves: map[PlayerID]Object{"alice": NewObject(F("choice", Int(1))), "bob": NewObject(F("choice", Int(1)))},
		Delta: map[PlayerID]int{"alice": 1, "bob": 0},
	})
	s.LastSeq = 4

	data, err := Encode(s)
	require.NoError(t, err)

	var decoded GameSession
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, MustSessionDigest(s), MustSessionDigest(decoded))
	assert.Equal(t, MustSessionDigest(s), MustSessionDigest(s.Clone()))
}

func TestClone_IsDeep(t *testing.T) {
	s := testSession()
	s.Pending["alice"] = NewObject(F("choice", Int(2)))

	c := s.Clone()
	c.Scores["alice"] = 9
	c.Pending["alice"]["choice"] = Int(4)
	c.Joined = append(c.Joined, "alice")

	assert.Equal(t, 0, s.Scores["alice"])
	assert.Equal(t, Int(2), s.Pending["alice"]["choice"])
	assert.Empty(t, s.Joined)
}

func TestHeader_DropsAppliedState(t *testing.T) {
	s := testSession()
	s.Status = StatusActive
	s.Round = 3
	s.LastSeq = 7

	h := s.Header()
	assert.Equal(t, StatusPending, h.Status)
	assert.Equal(t, 1, h.Round)
	assert.Zero(t, h.LastSeq)
	assert.Equal(t, s.CreatedAt, h.CreatedAt)
}

func TestNewRoomCode(t *testing.T) {
	seen := map[SessionID]bool{}
	for i := 0; i < 50; i++ {
		code := NewRoomCode()
		assert.True(t, ValidRoomCode(code), "invalid code %q", code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 1)
	assert.False(t, ValidRoomCode("abc"))
	assert.False(t, ValidRoomCode("abcdef"))
}

func TestNewEventID(t *testing.T) {
	a, b := NewEventID(), NewEventID()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
