package match

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/park285/netchess/internal/board"
	"github.com/park285/netchess/internal/notation"
	"github.com/park285/netchess/internal/obslog"
	"github.com/park285/netchess/internal/rules"
)

// Move validates and applies playerID's move. promotion may be empty, in
// which case a pawn reaching the last rank becomes a queen.
func (m *Match) Move(playerID string, from, to board.Square, promotion string) (MoveRecord, error) {
	m.mu.Lock()
	defer m.unlockAndDispatch()
	return m.moveLocked(playerID, from, to, promotion)
}

// MoveSAN applies a move written in SAN, e.g. "Nf3" or "exd8=N".
func (m *Match) MoveSAN(playerID, san string) (MoveRecord, error) {
	m.mu.Lock()
	defer m.unlockAndDispatch()

	if err := m.canMoveLocked(playerID); err != nil {
		return MoveRecord{}, err
	}
	from, to, promo, err := m.line.Resolve(san)
	if err != nil {
		return MoveRecord{}, fmt.Errorf("%w: %v", ErrInvalidMove, err)
	}
	return m.moveLocked(playerID, from, to, string(promo))
}

func (m *Match) canMoveLocked(playerID string) error {
	color, ok := m.seatOf(playerID)
	switch {
	case !ok:
		return ErrNotAPlayer
	case m.over:
		return ErrGameOver
	case !m.started:
		return ErrWaitingForOpponent
	case m.paused || !m.bothSeated():
		return ErrPaused
	case color != m.turn:
		return ErrNotYourTurn
	}
	return nil
}

func (m *Match) moveLocked(playerID string, from, to board.Square, promotion string) (MoveRecord, error) {
	if err := m.canMoveLocked(playerID); err != nil {
		return MoveRecord{}, err
	}
	var promo board.PieceType
	if promotion != "" {
		p, ok := board.ParsePromotion(promotion)
		if !ok {
			return MoveRecord{}, fmt.Errorf("%w: %q", ErrPromotionInvalid, promotion)
		}
		promo = p
	}
	mover := m.turn
	if !rules.IsLegal(m.position(), from, to, mover) {
		return MoveRecord{}, fmt.Errorf("%w: %s-%s", ErrInvalidMove, from, to)
	}

	rec := m.applyMoveLocked(from, to, promo)
	m.touch()
	m.emit(EventMoveApplied, recordDTO(rec))
	obslog.L().Info("match_move",
		zap.String("match_id", m.id),
		zap.String("player_id", playerID),
		zap.String("color", string(mover)),
		zap.String("uci", rec.UCI),
		zap.String("san", rec.SAN),
	)
	m.checkTerminalLocked(mover)
	return rec, nil
}

// applyMoveLocked mutates the match for a move already known to be legal
// for the side to move.
func (m *Match) applyMoveLocked(from, to board.Square, promo board.PieceType) MoveRecord {
	b := m.board
	piece := b.At(from)
	rec := MoveRecord{
		From:          from,
		To:            to,
		Piece:         *piece,
		Timestamp:     m.now(),
		PrevEnPassant: copySquare(m.enPassant),
		PrevRights:    m.rights,
		prevHalfmove:  m.halfmove,
	}
	m.enPassant = nil

	if piece.Type == board.Pawn && from.Col != to.Col && b.At(to) == nil {
		at := board.Square{Row: from.Row, Col: to.Col}
		victim := b.At(at)
		rec.Captured = victim.Copy()
		rec.EnPassantCapture = &EnPassantDetail{CapturedAt: at}
		m.captured.add(*victim)
		b.Set(at, nil)
	}
	if piece.Type == board.King && absInt(to.Col-from.Col) == 2 {
		rf, rt := rules.CastleRookSquares(from, to)
		rook := b.At(rf)
		rec.Castling = &CastlingDetail{Kingside: to.Col > from.Col, RookFrom: rf, RookTo: rt}
		b.Set(rt, rook)
		b.Set(rf, nil)
		rook.HasMoved = true
	}
	if target := b.At(to); target != nil {
		rec.Captured = target.Copy()
		m.captured.add(*target)
	}

	b.Set(to, piece)
	b.Set(from, nil)
	piece.HasMoved = true

	if piece.Type == board.Pawn && absInt(to.Row-from.Row) == 2 {
		m.enPassant = &board.Square{Row: (from.Row + to.Row) / 2, Col: from.Col}
	}

	if piece.Type == board.King {
		side := m.rights.Side(piece.Color)
		side.Kingside, side.Queenside = false, false
	}
	if piece.Type == board.Rook && from.Row == board.HomeRow(piece.Color) {
		m.rights.RevokeRookSide(piece.Color, from.Col)
	}
	if c := rec.Captured; c != nil && c.Type == board.Rook && rec.EnPassantCapture == nil && to.Row == board.HomeRow(c.Color) {
		m.rights.RevokeRookSide(c.Color, to.Col)
	}

	if piece.Type == board.Pawn && to.Row == board.HomeRow(piece.Color.Opponent()) {
		if promo == "" {
			promo = board.Queen
		}
		piece.Type = promo
		rec.Promotion = promo
	}

	if rec.Piece.Type == board.Pawn || rec.Captured != nil {
		m.halfmove = 0
	} else {
		m.halfmove++
	}
	m.turn = m.turn.Opponent()

	rec.UCI = notation.UCI(from, to, rec.Promotion)
	san, err := m.line.Push(rec.UCI)
	if err != nil {
		obslog.L().Warn("match_san_failed", zap.String("match_id", m.id), zap.String("uci", rec.UCI), zap.Error(err))
	}
	rec.SAN = san

	rec.positionKey = rules.PositionKey(m.position(), m.turn)
	m.repetition[rec.positionKey]++
	m.history = append(m.history, rec)
	return rec
}

func (m *Match) checkTerminalLocked(mover board.Color) {
	pos := m.position()
	switch {
	case rules.IsCheckmate(pos, m.turn):
		m.finishLocked(ReasonCheckmate, mover, "")
	case rules.IsStalemate(pos, m.turn):
		m.finishLocked(ReasonStalemate, "", "")
	case rules.InsufficientMaterial(m.board):
		m.finishLocked(ReasonDraw, "", DrawInsufficientMaterial)
	case m.halfmove >= 100:
		m.finishLocked(ReasonDraw, "", DrawFiftyMove)
	case m.repetition[rules.PositionKey(pos, m.turn)] >= 3:
		m.finishLocked(ReasonDraw, "", DrawThreefold)
	}
}

// Undo reverses the last ply. Any seated player may request it, including
// after the match ended; the match leaves Terminal.
func (m *Match) Undo(playerID string) (MoveRecord, error) {
	m.mu.Lock()
	defer m.unlockAndDispatch()

	if _, ok := m.seatOf(playerID); !ok {
		return MoveRecord{}, ErrNotAPlayer
	}
	wasOver := m.over
	rec, ok := m.undoMoveLocked()
	if !ok {
		return MoveRecord{}, ErrNoMoves
	}
	if wasOver && m.started {
		m.clock.start()
	}
	m.touch()
	m.emit(EventMoveUndone, recordDTO(rec))
	obslog.L().Info("match_undo", zap.String("match_id", m.id), zap.String("player_id", playerID), zap.String("uci", rec.UCI))
	return rec, nil
}

// undoMoveLocked pops the last record and reverses every effect it captured.
func (m *Match) undoMoveLocked() (MoveRecord, bool) {
	n := len(m.history)
	if n == 0 {
		return MoveRecord{}, false
	}
	rec := m.history[n-1]
	m.history = m.history[:n-1]

	if k := rec.positionKey; k != "" {
		if m.repetition[k]--; m.repetition[k] <= 0 {
			delete(m.repetition, k)
		}
	}

	b := m.board
	moved := rec.Piece
	b.Set(rec.From, &moved)
	b.Set(rec.To, nil)

	if c := rec.Castling; c != nil {
		rook := b.At(c.RookTo)
		b.Set(c.RookTo, nil)
		if rook != nil {
			rook.HasMoved = false
			b.Set(c.RookFrom, rook)
		}
	}
	if rec.Captured != nil {
		at := rec.To
		if rec.EnPassantCapture != nil {
			at = rec.EnPassantCapture.CapturedAt
		}
		captured := *rec.Captured
		b.Set(at, &captured)
		m.captured.removeLast(captured.Color)
	}

	m.rights = rec.PrevRights
	m.enPassant = copySquare(rec.PrevEnPassant)
	m.halfmove = rec.prevHalfmove
	m.turn = moved.Color
	if err := m.line.Pop(); err != nil {
		obslog.L().Warn("match_san_pop_failed", zap.String("match_id", m.id), zap.Error(err))
	}

	m.over = false
	m.reason = ReasonNone
	m.winner = ""
	m.drawKind = ""
	return rec, true
}

// ComputeStatus derives the board status; a terminal reason is sticky.
func (m *Match) ComputeStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

func (m *Match) statusLocked() Status {
	if m.over {
		switch m.reason {
		case ReasonCheckmate:
			return StatusCheckmate
		case ReasonStalemate:
			return StatusStalemate
		case ReasonTimeout:
			return StatusTimeout
		case ReasonResignation, ReasonAbandoned:
			return StatusResigned
		default:
			return StatusDraw
		}
	}
	pos := m.position()
	switch {
	case rules.IsCheckmate(pos, m.turn):
		return StatusCheckmate
	case rules.IsStalemate(pos, m.turn):
		return StatusStalemate
	case rules.InCheck(m.board, m.turn):
		return StatusCheck
	default:
		return StatusNormal
	}
}

// LegalMoves lists the destinations available from sq for the side to move.
func (m *Match) LegalMoves(sq board.Square) []board.Square {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.over {
		return nil
	}
	return rules.LegalMovesFrom(m.position(), sq, m.turn)
}

func copySquare(sq *board.Square) *board.Square {
	if sq == nil {
		return nil
	}
	cp := *sq
	return &cp
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
