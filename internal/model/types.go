package model

import (
	"slices"
	"time"
)

// PlayerID is the opaque, stable identifier issued by the authentication collaborator.
type PlayerID string

// PlayerIdentity is an authenticated player. Immutable once issued.
type PlayerIdentity struct {
	ID          PlayerID `json:"id"`
	DisplayName string   `json:"display_name"`
}

// SessionID identifies a game session. Sessions are addressed by room code.
type SessionID string

// Status is the lifecycle state of a session.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusAbandoned Status = "abandoned"
)

// Terminal reports whether no further events can be accepted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

// EventKind distinguishes the events that can be appended to a session log.
type EventKind string

const (
	// KindJoin acknowledges a participant's presence. Two joins activate a session.
	KindJoin EventKind = "join"
	// KindMove submits a participant's choice for a round.
	KindMove EventKind = "move"
	// KindAbandon closes the session on behalf of its author, or of the
	// opponent named under ForfeitKey in the payload.
	KindAbandon EventKind = "abandon"
)

// NameKey carries the author's display name in a join payload. An accepted
// join replaces the display name the session creator recorded for that seat.
const NameKey = "name"

// ForfeitKey names the idle opponent in an abandon payload. Such a claim is
// only valid while the author has moved in the current round and the named
// opponent has not.
const ForfeitKey = "forfeit"

// MoveEvent is a single entry of a session log.
//
// Clock is the author's logical timestamp and is informational only.
// Seq is assigned by the channel on acceptance and is zero before that.
type MoveEvent struct {
	ID        string    `json:"id"`
	SessionID SessionID `json:"session_id"`
	Author    PlayerID  `json:"author"`
	Kind      EventKind `json:"kind"`
	Round     int       `json:"round"`
	Payload   Object    `json:"payload,omitempty"`
	Clock     int64     `json:"clock"`
	Seq       int64     `json:"seq"`
}

// Accepted reports whether the channel has assigned a sequence number.
func (e MoveEvent) Accepted() bool {
	return e.Seq > 0
}

// RoundOutcome is derived once both moves of a round are accepted.
type RoundOutcome struct {
	Round int                 `json:"round"`
	Moves map[PlayerID]Object `json:"moves"`
	Delta map[PlayerID]int    `json:"delta"`
}

// RuleSet names the rules a session is played under and the parameters of its
// termination predicate. Zero Threshold or MaxRounds disables that bound.
type RuleSet struct {
	Kind      string `json:"kind"`
	Threshold int    `json:"threshold"`
	MaxRounds int    `json:"max_rounds"`
}

// GameSession is a device's view of one game.
//
// Pending holds the moves recorded for the current round until both
// participants have moved. LastSeq is the sequence number of the last
// accepted event folded into this state.
type GameSession struct {
	ID           SessionID           `json:"id"`
	Participants [2]PlayerIdentity   `json:"participants"`
	Rules        RuleSet             `json:"rules"`
	Status       Status              `json:"status"`
	Round        int                 `json:"round"`
	Scores       map[PlayerID]int    `json:"scores"`
	Joined       []PlayerID          `json:"joined"`
	Pending      map[PlayerID]Object `json:"pending"`
	History      []RoundOutcome      `json:"history"`
	Winner       PlayerID            `json:"winner,omitempty"`
	AbandonedBy  PlayerID            `json:"abandoned_by,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	LastSeq      int64               `json:"last_seq"`
}

// NewSession creates a Pending session at round 1.
// CreatedAt is truncated to milliseconds in UTC so every device encodes it identically.
func NewSession(id SessionID, a, b PlayerIdentity, rules RuleSet, createdAt time.Time) GameSession {
	return GameSession{
		ID:           id,
		Participants: [2]PlayerIdentity{a, b},
		Rules:        rules,
		Status:       StatusPending,
		Round:        1,
		Scores:       map[PlayerID]int{a.ID: 0, b.ID: 0},
		Joined:       []PlayerID{},
		Pending:      map[PlayerID]Object{},
		History:      []RoundOutcome{},
		CreatedAt:    createdAt.UTC().Truncate(time.Millisecond),
	}
}

// Seat returns the participant index of a player.
func (s GameSession) Seat(id PlayerID) (int, bool) {
	for i, p := range s.Participants {
		if p.ID == id {
			return i, true
		}
	}
	return -1, false
}

// Opponent returns the other participant.
func (s GameSession) Opponent(id PlayerID) PlayerIdentity {
	if s.Participants[0].ID == id {
		return s.Participants[1]
	}
	return s.Participants[0]
}

// HasJoined reports whether the player's join event has been accepted.
func (s GameSession) HasJoined(id PlayerID) bool {
	return slices.Contains(s.Joined, id)
}

// Header returns the creation-time view of the session: identity,
// participants, rules and timestamp, with no accepted events applied.
func (s GameSession) Header() GameSession {
	return NewSession(s.ID, s.Participants[0], s.Participants[1], s.Rules, s.CreatedAt)
}

// Clone returns a deep copy. Snapshots handed to presentation are clones.
func (s GameSession) Clone() GameSession {
	out := s
	out.Scores = make(map[PlayerID]int, len(s.Scores))
	for k, v := range s.Scores {
		out.Scores[k] = v
	}
	out.Joined = slices.Clone(s.Joined)
	if out.Joined == nil {
		out.Joined = []PlayerID{}
	}
	out.Pending = make(map[PlayerID]Object, len(s.Pending))
	for k, v := range s.Pending {
		out.Pending[k] = v.Clone()
	}
	out.History = make([]RoundOutcome, len(s.History))
	for i, o := range s.History {
		out.History[i] = o.Clone()
	}
	return out
}

// Clone returns a deep copy of the outcome.
func (o RoundOutcome) Clone() RoundOutcome {
	out := RoundOutcome{
		Round: o.Round,
		Moves: make(map[PlayerID]Object, len(o.Moves)),
		Delta: make(map[PlayerID]int, len(o.Delta)),
	}
	for k, v := range o.Moves {
		out.Moves[k] = v.Clone()
	}
	for k, v := range o.Delta {
		out.Delta[k] = v
	}
	return out
}

// StatisticsSnapshot aggregates a player's completed sessions.
// It is always derived by folding history, never edited directly.
type StatisticsSnapshot struct {
	Player       PlayerID `json:"player"`
	Games        int      `json:"games"`
	Wins         int      `json:"wins"`
	Losses       int      `json:"losses"`
	Draws        int      `json:"draws"`
	RoundsPlayed int      `json:"rounds_played"`
	RoundsWon    int      `json:"rounds_won"`
	Streak       int      `json:"streak"`
	BestStreak   int      `json:"best_streak"`
	FastestWin   int      `json:"fastest_win"`
}
