package match

import (
	"time"

	"github.com/park285/netchess/internal/board"
)

// Reason is why a match ended.
type Reason string

const (
	ReasonNone        Reason = "none"
	ReasonCheckmate   Reason = "checkmate"
	ReasonStalemate   Reason = "stalemate"
	ReasonDraw        Reason = "draw"
	ReasonTimeout     Reason = "timeout"
	ReasonResignation Reason = "resignation"
	ReasonAbandoned   Reason = "abandoned"
)

// DrawKind details a ReasonDraw ending.
type DrawKind string

const (
	DrawAgreement            DrawKind = "agreement"
	DrawInsufficientMaterial DrawKind = "insufficient_material"
	DrawFiftyMove            DrawKind = "fifty_move"
	DrawThreefold            DrawKind = "threefold_repetition"
)

// Status is the derived board status reported to clients.
type Status string

const (
	StatusNormal    Status = "normal"
	StatusCheck     Status = "check"
	StatusCheckmate Status = "checkmate"
	StatusStalemate Status = "stalemate"
	StatusDraw      Status = "draw"
	StatusTimeout   Status = "timeout"
	StatusResigned  Status = "resigned"
)

// Phase is the lifecycle state of a match.
type Phase string

const (
	PhaseSetup    Phase = "setup"
	PhaseActive   Phase = "active"
	PhasePaused   Phase = "paused"
	PhaseTerminal Phase = "terminal"
)

// Role is the outcome of joining: a color or spectator.
type Role string

const (
	RoleWhite     Role = "white"
	RoleBlack     Role = "black"
	RoleSpectator Role = "spectator"
)

func roleOf(c board.Color) Role { return Role(c) }

type Player struct {
	ID   string
	Name string
}

type DrawOffer struct {
	OfferedBy string
	OfferedTo string
	Timestamp time.Time
}

type CastlingDetail struct {
	Kingside bool
	RookFrom board.Square
	RookTo   board.Square
}

type EnPassantDetail struct {
	CapturedAt board.Square
}

// MoveRecord snapshots everything needed to reverse one ply.
type MoveRecord struct {
	From             board.Square
	To               board.Square
	Piece            board.Piece
	Captured         *board.Piece
	Timestamp        time.Time
	PrevEnPassant    *board.Square
	PrevRights       board.CastlingRights
	Promotion        board.PieceType
	Castling         *CastlingDetail
	EnPassantCapture *EnPassantDetail
	SAN              string
	UCI              string

	prevHalfmove int
	positionKey  string
}

// Captured holds pieces taken from each color.
type Captured struct {
	White []board.Piece
	Black []board.Piece
}

func (c *Captured) add(p board.Piece) {
	if p.Color == board.White {
		c.White = append(c.White, p)
	} else {
		c.Black = append(c.Black, p)
	}
}

// removeLast pops the most recent capture from color.
func (c *Captured) removeLast(color board.Color) {
	if color == board.White && len(c.White) > 0 {
		c.White = c.White[:len(c.White)-1]
	} else if color == board.Black && len(c.Black) > 0 {
		c.Black = c.Black[:len(c.Black)-1]
	}
}

// RemoveResult reports what RemovePlayer vacated.
type RemoveResult struct {
	Role               Role
	DrawOfferCancelled bool
}
