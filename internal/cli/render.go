package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/roach88/skirmish/internal/model"
)

// SessionView is the JSON shape of a session in command output.
type SessionView struct {
	Code        string        `json:"code"`
	Status      string        `json:"status"`
	Round       int           `json:"round"`
	Rules       model.RuleSet `json:"rules"`
	Players     []PlayerView  `json:"players"`
	Rounds      int           `json:"rounds"`
	Winner      string        `json:"winner,omitempty"`
	AbandonedBy string        `json:"abandoned_by,omitempty"`
	LastSeq     int64         `json:"last_seq"`
	Notice      string        `json:"notice,omitempty"`
}

// PlayerView is one participant of a SessionView.
type PlayerView struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Score  int    `json:"score"`
	Joined bool   `json:"joined"`
	You    bool   `json:"you,omitempty"`
}

func viewSession(s model.GameSession, me model.PlayerID, notice string) SessionView {
	v := SessionView{
		Code:        string(s.ID),
		Status:      string(s.Status),
		Round:       s.Round,
		Rules:       s.Rules,
		Rounds:      len(s.History),
		Winner:      string(s.Winner),
		AbandonedBy: string(s.AbandonedBy),
		LastSeq:     s.LastSeq,
		Notice:      notice,
	}
	for _, p := range s.Participants {
		v.Players = append(v.Players, PlayerView{
			ID:     string(p.ID),
			Name:   p.DisplayName,
			Score:  s.Scores[p.ID],
			Joined: s.HasJoined(p.ID),
			You:    p.ID == me,
		})
	}
	return v
}

// writeSession prints a session for humans.
func writeSession(w io.Writer, s model.GameSession, me model.PlayerID, notice string) {
	fmt.Fprintf(w, "Session %s (%s)\n", s.ID, describeRules(s.Rules))
	fmt.Fprintf(w, "  %s, round %d\n", s.Status, s.Round)

	for _, p := range s.Participants {
		var tags []string
		if p.ID == me {
			tags = append(tags, "you")
		}
		if !s.HasJoined(p.ID) {
			tags = append(tags, "not joined")
		} else if _, moved := s.Pending[p.ID]; moved && !s.Status.Terminal() {
			tags = append(tags, "moved")
		}
		line := fmt.Sprintf("  %-24s %3d", displayName(p), s.Scores[p.ID])
		if len(tags) > 0 {
			line += "  (" + strings.Join(tags, ", ") + ")"
		}
		fmt.Fprintln(w, line)
	}

	if n := len(s.History); n > 0 {
		last := s.History[n-1]
		fmt.Fprintf(w, "  last round %d:", last.Round)
		for _, p := range s.Participants {
			move, err := model.MarshalCanonical(last.Moves[p.ID])
			if err != nil {
				move = []byte("?")
			}
			fmt.Fprintf(w, " %s=%s (+%d)", displayName(p), move, last.Delta[p.ID])
		}
		fmt.Fprintln(w)
	}

	switch s.Status {
	case model.StatusCompleted:
		if s.Winner == "" {
			fmt.Fprintln(w, "  Draw.")
		} else {
			fmt.Fprintf(w, "  Winner: %s\n", displayName(s.Participants[seatOf(s, s.Winner)]))
		}
	case model.StatusAbandoned:
		fmt.Fprintf(w, "  Abandoned by %s; winner: %s\n",
			displayName(s.Participants[seatOf(s, s.AbandonedBy)]),
			displayName(s.Participants[seatOf(s, s.Winner)]))
	}
	if notice != "" {
		fmt.Fprintf(w, "  [%s]\n", notice)
	}
}

func describeRules(r model.RuleSet) string {
	parts := []string{r.Kind}
	if r.Threshold > 0 {
		parts = append(parts, fmt.Sprintf("first to %d", r.Threshold))
	}
	if r.MaxRounds > 0 {
		parts = append(parts, fmt.Sprintf("max %d rounds", r.MaxRounds))
	}
	return strings.Join(parts, ", ")
}

func displayName(p model.PlayerIdentity) string {
	if p.DisplayName == "" {
		return string(p.ID)
	}
	return p.DisplayName
}

func seatOf(s model.GameSession, id model.PlayerID) int {
	seat, _ := s.Seat(id)
	return seat
}
