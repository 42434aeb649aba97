package matchdto

import "time"

type Piece struct {
	Type     string `json:"type"`
	Color    string `json:"color"`
	HasMoved bool   `json:"hasMoved"`
}

type Square struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

type SideRights struct {
	Kingside  bool `json:"kingside"`
	Queenside bool `json:"queenside"`
}

type CastlingRights struct {
	White SideRights `json:"white"`
	Black SideRights `json:"black"`
}

type CastlingDetail struct {
	Kingside bool   `json:"isKingside"`
	RookFrom Square `json:"rookFrom"`
	RookTo   Square `json:"rookTo"`
}

type EnPassantDetail struct {
	CapturedAt Square `json:"capturedAt"`
}

// MoveRecord is one applied ply.
type MoveRecord struct {
	From             Square           `json:"from"`
	To               Square           `json:"to"`
	Piece            Piece            `json:"piece"`
	Captured         *Piece           `json:"capturedPiece,omitempty"`
	Timestamp        time.Time        `json:"timestamp"`
	PrevEnPassant    *Square          `json:"enPassantTarget,omitempty"`
	PrevRights       CastlingRights   `json:"castlingRights"`
	Promotion        string           `json:"promotion,omitempty"`
	Castling         *CastlingDetail  `json:"castling,omitempty"`
	EnPassantCapture *EnPassantDetail `json:"enPassantCapture,omitempty"`
	SAN              string           `json:"san,omitempty"`
	UCI              string           `json:"uci"`
}

type PlayerInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Players struct {
	White *PlayerInfo `json:"white"`
	Black *PlayerInfo `json:"black"`
}

type CapturedPieces struct {
	White []Piece `json:"white"`
	Black []Piece `json:"black"`
}

type TimeLeft struct {
	White int `json:"white"`
	Black int `json:"black"`
}

type DrawOffer struct {
	Active    bool      `json:"active"`
	OfferedBy string    `json:"offeredBy"`
	OfferedTo string    `json:"offeredTo"`
	Timestamp time.Time `json:"timestamp"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// State is the full snapshot of one match.
type State struct {
	MatchID           string         `json:"matchId"`
	Board             [8][8]*Piece   `json:"board"`
	CurrentPlayer     string         `json:"currentPlayer"`
	Status            string         `json:"status"`
	Phase             string         `json:"phase"`
	GameOver          bool           `json:"gameOver"`
	TerminationReason string         `json:"terminationReason"`
	DrawKind          string         `json:"drawKind,omitempty"`
	Winner            string         `json:"winner,omitempty"`
	Players           Players        `json:"players"`
	Spectators        []PlayerInfo   `json:"spectators"`
	MoveHistory       []MoveRecord   `json:"moveHistory"`
	CapturedPieces    CapturedPieces `json:"capturedPieces"`
	EnPassantTarget   *Square        `json:"enPassantTarget"`
	CastlingRights    CastlingRights `json:"castlingRights"`
	TimeLeft          TimeLeft       `json:"timeLeft"`
	ClockSeconds      int            `json:"clockSeconds"`
	TimerActive       bool           `json:"timerActive"`
	TimerPaused       bool           `json:"timerPaused"`
	DrawOffer         *DrawOffer     `json:"drawOffer"`
	HalfmoveClock     int            `json:"halfmoveClock"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

// Summary condenses the snapshot into a listing row.
func (s *State) Summary() Summary {
	out := Summary{
		MatchID:       s.MatchID,
		Spectators:    len(s.Spectators),
		CurrentPlayer: s.CurrentPlayer,
		Phase:         s.Phase,
		GameOver:      s.GameOver,
		Moves:         len(s.MoveHistory),
		ClockSeconds:  s.ClockSeconds,
		CreatedAt:     s.CreatedAt,
		LastActivity:  s.UpdatedAt,
	}
	if p := s.Players.White; p != nil {
		out.White = p.Name
	}
	if p := s.Players.Black; p != nil {
		out.Black = p.Name
	}
	return out
}

// Summary is one row of the match listing.
type Summary struct {
	MatchID       string    `json:"matchId"`
	White         string    `json:"white,omitempty"`
	Black         string    `json:"black,omitempty"`
	Spectators    int       `json:"spectators"`
	CurrentPlayer string    `json:"currentPlayer"`
	Phase         string    `json:"phase"`
	GameOver      bool      `json:"gameOver"`
	Moves         int       `json:"moves"`
	ClockSeconds  int       `json:"clockSeconds"`
	CreatedAt     time.Time `json:"createdAt"`
	LastActivity  time.Time `json:"lastActivity"`
}

// Event is a broadcast notification; State is the snapshot after the change.
type Event struct {
	Kind    string    `json:"kind"`
	MatchID string    `json:"matchId"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload,omitempty"`
	State   *State    `json:"state,omitempty"`
}
