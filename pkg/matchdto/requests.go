package matchdto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type CreateMatchRequest struct {
	PlayerName   string `json:"playerName"`
	ClockSeconds *int   `json:"clockSeconds,omitempty"`
	Color        string `json:"color,omitempty"`
}

type CreateMatchResponse struct {
	MatchID  string `json:"matchId"`
	PlayerID string `json:"playerId"`
	Color    string `json:"color"`
	State    *State `json:"state"`
}

type JoinRequest struct {
	PlayerName string `json:"playerName"`
	PlayerID   string `json:"playerId,omitempty"`
	Color      string `json:"color,omitempty"`
}

type JoinResponse struct {
	PlayerID string `json:"playerId"`
	Color    string `json:"color"`
	State    *State `json:"state"`
}

// MoveRequest names a move either by squares or by SAN text in Move.
type MoveRequest struct {
	PlayerID  string     `json:"playerId"`
	From      *SquareRef `json:"from,omitempty"`
	To        *SquareRef `json:"to,omitempty"`
	Move      string     `json:"move,omitempty"`
	Promotion string     `json:"promotion,omitempty"`
}

type MoveResponse struct {
	Accepted   bool         `json:"accepted"`
	MoveRecord *MoveRecord  `json:"moveRecord,omitempty"`
	State      *State       `json:"state"`
	Error      *DomainError `json:"error,omitempty"`
}

// ActionRequest serves undo, reset, resign, leave, pause, resume and draw offers.
type ActionRequest struct {
	PlayerID string `json:"playerId"`
}

type DrawResponseRequest struct {
	PlayerID string `json:"playerId"`
	Accept   bool   `json:"accept"`
}

// Reply is the envelope of every state-changing call.
type Reply struct {
	OK    bool         `json:"ok"`
	Error *DomainError `json:"error,omitempty"`
	State *State       `json:"state,omitempty"`
}

type ListResponse struct {
	Matches []Summary `json:"matches"`
}

// SquareRef decodes either "e2" or {"row":6,"col":4}.
type SquareRef struct {
	Row int
	Col int
}

func (s *SquareRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var name string
		if err := json.Unmarshal(b, &name); err != nil {
			return err
		}
		sq, err := ParseAlgebraic(name)
		if err != nil {
			return err
		}
		*s = sq
		return nil
	}
	var raw struct {
		Row *int `json:"row"`
		Col *int `json:"col"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("square: %w", err)
	}
	if raw.Row == nil || raw.Col == nil {
		return fmt.Errorf("square: row and col are required")
	}
	s.Row, s.Col = *raw.Row, *raw.Col
	return nil
}

func (s SquareRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(Square{Row: s.Row, Col: s.Col})
}

// ParseAlgebraic converts "e2" to row/col with row 0 on rank 8.
func ParseAlgebraic(name string) (SquareRef, error) {
	v := strings.ToLower(strings.TrimSpace(name))
	if len(v) != 2 || v[0] < 'a' || v[0] > 'h' || v[1] < '1' || v[1] > '8' {
		return SquareRef{}, fmt.Errorf("invalid square %q", name)
	}
	return SquareRef{Row: 8 - int(v[1]-'0'), Col: int(v[0] - 'a')}, nil
}

// LegalMovesResponse lists destination squares in algebraic form.
type LegalMovesResponse struct {
	From string   `json:"from"`
	To   []string `json:"to"`
}
