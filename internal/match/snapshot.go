package match

import (
	"github.com/park285/netchess/internal/board"
	"github.com/park285/netchess/internal/notation"
	"github.com/park285/netchess/pkg/matchdto"
)

// Snapshot returns the full serializable state.
func (m *Match) Snapshot() *matchdto.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Match) snapshotLocked() *matchdto.State {
	st := &matchdto.State{
		MatchID:           m.id,
		CurrentPlayer:     string(m.turn),
		Status:            string(m.statusLocked()),
		Phase:             string(m.phaseLocked()),
		GameOver:          m.over,
		TerminationReason: string(m.reason),
		DrawKind:          string(m.drawKind),
		Winner:            string(m.winner),
		Players:           matchdto.Players{White: playerDTO(m.white), Black: playerDTO(m.black)},
		Spectators:        make([]matchdto.PlayerInfo, 0, len(m.spectators)),
		MoveHistory:       make([]matchdto.MoveRecord, 0, len(m.history)),
		CapturedPieces:    matchdto.CapturedPieces{White: piecesDTO(m.captured.White), Black: piecesDTO(m.captured.Black)},
		EnPassantTarget:   squarePtrDTO(m.enPassant),
		CastlingRights:    rightsDTO(m.rights),
		TimeLeft:          m.timeLeftLocked(),
		ClockSeconds:      m.clock.Duration,
		TimerActive:       m.clock.Active && !m.over,
		TimerPaused:       m.paused,
		HalfmoveClock:     m.halfmove,
		CreatedAt:         m.createdAt,
		UpdatedAt:         m.lastActivity,
	}
	for r := 0; r < board.Size; r++ {
		for c := 0; c < board.Size; c++ {
			if p := m.board[r][c]; p != nil {
				dto := pieceDTO(*p)
				st.Board[r][c] = &dto
			}
		}
	}
	for _, s := range m.spectators {
		st.Spectators = append(st.Spectators, matchdto.PlayerInfo{ID: s.ID, Name: s.Name})
	}
	for _, rec := range m.history {
		st.MoveHistory = append(st.MoveHistory, recordDTO(rec))
	}
	if o := m.drawOffer; o != nil {
		st.DrawOffer = &matchdto.DrawOffer{
			Active:    true,
			OfferedBy: o.OfferedBy,
			OfferedTo: o.OfferedTo,
			Timestamp: o.Timestamp,
		}
		if m.drawTTL > 0 {
			st.DrawOffer.ExpiresAt = o.Timestamp.Add(m.drawTTL)
		}
	}
	return st
}

// Summary is the listing row for this match.
func (m *Match) Summary() matchdto.Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked().Summary()
}

// PGN exports the moves played so far.
func (m *Match) PGN() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := notation.Game{
		MatchID:      m.id,
		Date:         m.createdAt,
		ClockSeconds: m.clock.Duration,
		Winner:       string(m.winner),
		Reason:       string(m.reason),
	}
	if m.white != nil {
		g.White = m.white.Name
	}
	if m.black != nil {
		g.Black = m.black.Name
	}
	for _, rec := range m.history {
		mv := rec.SAN
		if mv == "" {
			mv = rec.UCI
		}
		g.Moves = append(g.Moves, mv)
	}
	return notation.PGN(g)
}

func (m *Match) timeLeftLocked() matchdto.TimeLeft {
	return matchdto.TimeLeft{White: m.clock.White, Black: m.clock.Black}
}

func playerDTO(p *Player) *matchdto.PlayerInfo {
	if p == nil {
		return nil
	}
	return &matchdto.PlayerInfo{ID: p.ID, Name: p.Name}
}

func pieceDTO(p board.Piece) matchdto.Piece {
	return matchdto.Piece{Type: string(p.Type), Color: string(p.Color), HasMoved: p.HasMoved}
}

func piecesDTO(ps []board.Piece) []matchdto.Piece {
	out := make([]matchdto.Piece, 0, len(ps))
	for _, p := range ps {
		out = append(out, pieceDTO(p))
	}
	return out
}

func squareDTO(sq board.Square) matchdto.Square {
	return matchdto.Square{Row: sq.Row, Col: sq.Col}
}

func squarePtrDTO(sq *board.Square) *matchdto.Square {
	if sq == nil {
		return nil
	}
	dto := squareDTO(*sq)
	return &dto
}

func rightsDTO(r board.CastlingRights) matchdto.CastlingRights {
	return matchdto.CastlingRights{
		White: matchdto.SideRights{Kingside: r.White.Kingside, Queenside: r.White.Queenside},
		Black: matchdto.SideRights{Kingside: r.Black.Kingside, Queenside: r.Black.Queenside},
	}
}

func recordDTO(rec MoveRecord) matchdto.MoveRecord {
	out := matchdto.MoveRecord{
		From:          squareDTO(rec.From),
		To:            squareDTO(rec.To),
		Piece:         pieceDTO(rec.Piece),
		Timestamp:     rec.Timestamp,
		PrevEnPassant: squarePtrDTO(rec.PrevEnPassant),
		PrevRights:    rightsDTO(rec.PrevRights),
		Promotion:     string(rec.Promotion),
		SAN:           rec.SAN,
		UCI:           rec.UCI,
	}
	if rec.Captured != nil {
		p := pieceDTO(*rec.Captured)
		out.Captured = &p
	}
	if c := rec.Castling; c != nil {
		out.Castling = &matchdto.CastlingDetail{Kingside: c.Kingside, RookFrom: squareDTO(c.RookFrom), RookTo: squareDTO(c.RookTo)}
	}
	if e := rec.EnPassantCapture; e != nil {
		out.EnPassantCapture = &matchdto.EnPassantDetail{CapturedAt: squareDTO(e.CapturedAt)}
	}
	return out
}

// RecordDTO converts a MoveRecord to its wire form.
func RecordDTO(rec MoveRecord) matchdto.MoveRecord { return recordDTO(rec) }
