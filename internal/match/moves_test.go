package match

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/netchess/internal/board"
	"github.com/park285/netchess/internal/rules"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time          { return f.t }
func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

// newActive returns a started match with "w" seated white and "b" black.
func newActive(t *testing.T, clockSeconds int, opts ...Option) *Match {
	t.Helper()
	m := New("T1", clockSeconds, opts...)
	role, err := m.AddPlayer("w", "white player", "")
	require.NoError(t, err)
	require.Equal(t, RoleWhite, role)
	role, err = m.AddPlayer("b", "black player", "")
	require.NoError(t, err)
	require.Equal(t, RoleBlack, role)
	require.Equal(t, PhaseActive, m.Phase())
	return m
}

func sq(t *testing.T, name string) board.Square {
	t.Helper()
	s, err := board.ParseSquare(name)
	require.NoError(t, err)
	return s
}

// play applies UCI-style "e2e4" moves alternating between the two seats.
func play(t *testing.T, m *Match, moves ...string) {
	t.Helper()
	for _, mv := range moves {
		m.mu.Lock()
		id := "w"
		if m.turn == board.Black {
			id = "b"
		}
		m.mu.Unlock()
		promo := ""
		if len(mv) == 5 {
			promo = mv[4:]
		}
		_, err := m.Move(id, sq(t, mv[0:2]), sq(t, mv[2:4]), promo)
		require.NoError(t, err, mv)
	}
}

// setPosition replaces the board; castling rights are cleared.
func setPosition(t *testing.T, m *Match, placement string, turn board.Color) {
	t.Helper()
	b, err := board.ParsePlacement(placement)
	require.NoError(t, err)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.board = b
	m.turn = turn
	m.rights = board.CastlingRights{}
	m.enPassant = nil
	m.repetition = map[string]int{rules.PositionKey(m.position(), turn): 1}
}

type frozen struct {
	Board     *board.Board
	Rights    board.CastlingRights
	EnPassant *board.Square
	Captured  Captured
	Turn      board.Color
	Halfmove  int
	Plies     int
}

func freeze(m *Match) frozen {
	m.mu.Lock()
	defer m.mu.Unlock()
	return frozen{
		Board:     m.board.Clone(),
		Rights:    m.rights,
		EnPassant: copySquare(m.enPassant),
		Captured:  Captured{White: append([]board.Piece(nil), m.captured.White...), Black: append([]board.Piece(nil), m.captured.Black...)},
		Turn:      m.turn,
		Halfmove:  m.halfmove,
		Plies:     len(m.history),
	}
}

func TestEnPassantTargetLivesOnePly(t *testing.T) {
	m := newActive(t, 0)
	play(t, m, "e2e4")
	st := m.Snapshot()
	require.NotNil(t, st.EnPassantTarget)
	assert.Equal(t, 5, st.EnPassantTarget.Row)
	assert.Equal(t, 4, st.EnPassantTarget.Col)

	play(t, m, "a7a6")
	assert.Nil(t, m.Snapshot().EnPassantTarget)
}

func TestKingsideCastle(t *testing.T) {
	m := newActive(t, 0)
	play(t, m, "e2e4", "e7e5", "g1f3", "b8c6", "f1c4", "g8f6", "e1g1")

	st := m.Snapshot()
	assert.Equal(t, "king", st.Board[7][6].Type)
	assert.Equal(t, "rook", st.Board[7][5].Type)
	assert.Nil(t, st.Board[7][4])
	assert.Nil(t, st.Board[7][7])
	assert.False(t, st.CastlingRights.White.Kingside)
	assert.False(t, st.CastlingRights.White.Queenside)
	assert.True(t, st.CastlingRights.Black.Kingside)

	last := st.MoveHistory[len(st.MoveHistory)-1]
	require.NotNil(t, last.Castling)
	assert.True(t, last.Castling.Kingside)
	assert.Equal(t, "O-O", last.SAN)
}

func TestApplyUndoRoundTrip(t *testing.T) {
	cases := []struct {
		name  string
		setup []string
		move  string
	}{
		{"pawn double step", nil, "e2e4"},
		{"capture", []string{"e2e4", "d7d5"}, "e4d5"},
		{"kingside castle", []string{"e2e4", "e7e5", "g1f3", "b8c6", "f1c4", "g8f6"}, "e1g1"},
		{"queenside castle", []string{"d2d4", "d7d5", "b1c3", "b8c6", "c1f4", "c8f5", "d1d2", "d8d7"}, "e1c1"},
		{"en passant", []string{"e2e4", "a7a6", "e4e5", "d7d5"}, "e5d6"},
		{"rook leaves home", []string{"h2h4", "a7a5"}, "h1h3"},
		{"promotion", []string{"b2b4", "a7a5", "b4a5", "b7b6", "a5b6", "h7h6", "b6c7", "h6h5"}, "c7b8n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := newActive(t, 0)
			play(t, m, tc.setup...)
			before := freeze(m)
			play(t, m, tc.move)
			assert.NotEqual(t, before, freeze(m))

			_, err := m.Undo("w")
			require.NoError(t, err)
			assert.Equal(t, before, freeze(m))
		})
	}
}

func TestPromotionDefaultsToQueen(t *testing.T) {
	m := newActive(t, 0)
	play(t, m, "b2b4", "a7a5", "b4a5", "b7b6", "a5b6", "h7h6", "b6c7", "h6h5", "c7b8")
	st := m.Snapshot()
	assert.Equal(t, "queen", st.Board[0][1].Type)
	assert.Equal(t, "white", st.Board[0][1].Color)
	last := st.MoveHistory[len(st.MoveHistory)-1]
	assert.Equal(t, "queen", last.Promotion)
	assert.Equal(t, "c7b8q", last.UCI)
	assert.Equal(t, "knight", last.Captured.Type)

	_, err := m.Undo("b")
	require.NoError(t, err)
	assert.Equal(t, "pawn", m.Snapshot().Board[1][2].Type)
}

func TestCapturingRookOnHomeSquareRevokesRight(t *testing.T) {
	m := newActive(t, 0)
	// the g2 pawn walks to h8 and takes the rook there
	play(t, m, "g2g4", "h7h5", "g4h5", "g7g6", "h5g6", "a7a6", "g6g7", "a6a5", "g7h8q")
	st := m.Snapshot()
	assert.False(t, st.CastlingRights.Black.Kingside)
	assert.True(t, st.CastlingRights.Black.Queenside)
}

func TestMoveRejections(t *testing.T) {
	m := New("T2", 0)
	_, err := m.AddPlayer("w", "", "")
	require.NoError(t, err)

	_, err = m.Move("w", sq(t, "e2"), sq(t, "e4"), "")
	assert.ErrorIs(t, err, ErrWaitingForOpponent)

	_, err = m.AddPlayer("b", "", "")
	require.NoError(t, err)

	_, err = m.Move("x", sq(t, "e2"), sq(t, "e4"), "")
	assert.ErrorIs(t, err, ErrNotAPlayer)
	_, err = m.Move("b", sq(t, "e7"), sq(t, "e5"), "")
	assert.ErrorIs(t, err, ErrNotYourTurn)
	_, err = m.Move("w", sq(t, "e2"), sq(t, "e5"), "")
	assert.ErrorIs(t, err, ErrInvalidMove)
	_, err = m.Move("w", sq(t, "e2"), sq(t, "e4"), "king")
	assert.ErrorIs(t, err, ErrPromotionInvalid)

	before := freeze(m)
	_, err = m.Move("w", sq(t, "e1"), sq(t, "e2"), "")
	assert.ErrorIs(t, err, ErrInvalidMove)
	assert.Equal(t, before, freeze(m), "rejected move leaves state untouched")

	require.NoError(t, m.Pause("b"))
	_, err = m.Move("w", sq(t, "e2"), sq(t, "e4"), "")
	assert.ErrorIs(t, err, ErrPaused)
}

func TestMoveSAN(t *testing.T) {
	m := newActive(t, 0)
	rec, err := m.MoveSAN("w", "Nf3")
	require.NoError(t, err)
	assert.Equal(t, "g1", rec.From.String())
	assert.Equal(t, "f3", rec.To.String())
	assert.Equal(t, "Nf3", rec.SAN)

	_, err = m.MoveSAN("b", "Nf3")
	assert.ErrorIs(t, err, ErrInvalidMove)
	_, err = m.MoveSAN("w", "e5")
	assert.ErrorIs(t, err, ErrNotYourTurn)
}

func TestFoolsMate(t *testing.T) {
	m := newActive(t, 0)
	play(t, m, "f2f3", "e7e5", "g2g4", "d8h4")

	assert.Equal(t, StatusCheckmate, m.ComputeStatus())
	assert.Equal(t, StatusCheckmate, m.ComputeStatus())
	st := m.Snapshot()
	assert.True(t, st.GameOver)
	assert.Equal(t, "checkmate", st.TerminationReason)
	assert.Equal(t, "black", st.Winner)
	assert.Equal(t, "terminal", st.Phase)
	assert.Equal(t, "Qh4#", st.MoveHistory[3].SAN)

	_, err := m.Move("w", sq(t, "a2"), sq(t, "a3"), "")
	assert.ErrorIs(t, err, ErrGameOver)

	_, err = m.Undo("w")
	require.NoError(t, err)
	st = m.Snapshot()
	assert.False(t, st.GameOver)
	assert.Equal(t, "none", st.TerminationReason)
	assert.Equal(t, "black", st.CurrentPlayer)
	assert.Equal(t, StatusNormal, m.ComputeStatus())
}

func TestBackRankMate(t *testing.T) {
	m := newActive(t, 0)
	setPosition(t, m, "6k1/5ppp/8/8/8/8/8/R5K1", board.White)
	play(t, m, "a1a8")
	assert.Equal(t, StatusCheckmate, m.ComputeStatus())
	assert.Equal(t, "white", m.Snapshot().Winner)

	_, err := m.Move("b", sq(t, "g8"), sq(t, "h8"), "")
	assert.ErrorIs(t, err, ErrGameOver)
}

func TestStalemate(t *testing.T) {
	m := newActive(t, 0)
	setPosition(t, m, "7k/5K2/8/6Q1/8/8/8/8", board.White)
	play(t, m, "g5g6")
	assert.Equal(t, StatusStalemate, m.ComputeStatus())
	st := m.Snapshot()
	assert.True(t, st.GameOver)
	assert.Empty(t, st.Winner)
}

func TestThreefoldRepetition(t *testing.T) {
	m := newActive(t, 0)
	play(t, m, "g1f3", "g8f6", "f3g1", "f6g8", "g1f3", "g8f6", "f3g1")
	assert.False(t, m.Snapshot().GameOver)
	play(t, m, "f6g8")
	st := m.Snapshot()
	assert.True(t, st.GameOver)
	assert.Equal(t, "draw", st.TerminationReason)
	assert.Equal(t, string(DrawThreefold), st.DrawKind)

	_, err := m.Undo("w")
	require.NoError(t, err)
	assert.False(t, m.Snapshot().GameOver)
}

func TestFiftyMoveRule(t *testing.T) {
	m := newActive(t, 0)
	m.mu.Lock()
	m.halfmove = 99
	m.mu.Unlock()
	play(t, m, "g1f3")
	st := m.Snapshot()
	assert.True(t, st.GameOver)
	assert.Equal(t, string(DrawFiftyMove), st.DrawKind)

	_, err := m.Undo("b")
	require.NoError(t, err)
	assert.Equal(t, 99, m.Snapshot().HalfmoveClock)
}

func TestInsufficientMaterialDraw(t *testing.T) {
	m := newActive(t, 0)
	setPosition(t, m, "4k3/8/8/8/8/8/3q4/4K3", board.White)
	play(t, m, "e1d2")
	st := m.Snapshot()
	assert.True(t, st.GameOver)
	assert.Equal(t, string(DrawInsufficientMaterial), st.DrawKind)
	assert.Len(t, st.CapturedPieces.Black, 1)
}

// TestRandomPlayoutInvariants plays seeded random games checking that piece
// counts never grow, each side keeps one king, and apply/undo round-trips.
func TestRandomPlayoutInvariants(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		rng := rand.New(rand.NewSource(seed))
		m := newActive(t, 0)
		prevWhite, prevBlack := 16, 16
		for ply := 0; ply < 120; ply++ {
			m.mu.Lock()
			moves := rules.LegalMoves(m.position(), m.turn)
			turn := m.turn
			m.mu.Unlock()
			if len(moves) == 0 || m.Snapshot().GameOver {
				break
			}
			mv := moves[rng.Intn(len(moves))]
			id := "w"
			if turn == board.Black {
				id = "b"
			}

			before := freeze(m)
			_, err := m.Move(id, mv.From, mv.To, "")
			require.NoError(t, err)
			_, err = m.Undo(id)
			require.NoError(t, err)
			require.Equal(t, before, freeze(m), "seed %d ply %d", seed, ply)
			_, err = m.Move(id, mv.From, mv.To, "")
			require.NoError(t, err)

			after := freeze(m)
			w, b := after.Board.Count(board.White), after.Board.Count(board.Black)
			require.LessOrEqual(t, w, prevWhite)
			require.LessOrEqual(t, b, prevBlack)
			prevWhite, prevBlack = w, b
			_, ok := after.Board.FindKing(board.White)
			require.True(t, ok)
			_, ok = after.Board.FindKing(board.Black)
			require.True(t, ok)
		}
	}
}
