package match

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/netchess/internal/board"
)

type recorder struct{ events []Event }

func (r *recorder) OnEvent(ev Event) { r.events = append(r.events, ev) }

func (r *recorder) kinds() []EventKind {
	out := make([]EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func TestSeatingAndStart(t *testing.T) {
	m := New("S1", 300)
	rec := &recorder{}
	cancel := m.Subscribe(rec)
	defer cancel()

	assert.Equal(t, PhaseSetup, m.Phase())

	role, err := m.AddPlayer("p1", "alice", board.Black)
	require.NoError(t, err)
	assert.Equal(t, RoleBlack, role)
	assert.Equal(t, PhaseSetup, m.Phase())

	role, err = m.AddPlayer("p2", "bob", board.Black)
	require.NoError(t, err)
	assert.Equal(t, RoleWhite, role, "taken color falls back to the free seat")

	role, err = m.AddPlayer("p3", "carol", "")
	require.NoError(t, err)
	assert.Equal(t, RoleSpectator, role)

	role, err = m.AddPlayer("p1", "alice", board.White)
	require.NoError(t, err)
	assert.Equal(t, RoleBlack, role, "rejoining keeps the current seat")

	_, err = m.AddPlayer("  ", "", "")
	assert.ErrorIs(t, err, ErrInvalidPlayer)

	assert.Equal(t, PhaseActive, m.Phase())
	assert.Equal(t, 3, m.Occupants())

	st := m.Snapshot()
	assert.True(t, st.TimerActive)
	assert.Equal(t, 300, st.TimeLeft.White)
	require.NotNil(t, st.Players.White)
	assert.Equal(t, "bob", st.Players.White.Name)
	assert.Len(t, st.Spectators, 1)

	assert.Equal(t, []EventKind{EventPlayerJoined, EventPlayerJoined, EventGameStarted, EventPlayerJoined}, rec.kinds())
	for _, ev := range rec.events {
		require.NotNil(t, ev.State)
		assert.Equal(t, "S1", ev.MatchID)
	}
}

func TestEventsCarryPostChangeState(t *testing.T) {
	m := newActive(t, 0)
	rec := &recorder{}
	m.Subscribe(rec)

	play(t, m, "e2e4")
	require.Len(t, rec.events, 1)
	ev := rec.events[0]
	assert.Equal(t, EventMoveApplied, ev.Kind)
	assert.Equal(t, "black", ev.State.CurrentPlayer)
	assert.Len(t, ev.State.MoveHistory, 1)
}

func TestSubscribeCancel(t *testing.T) {
	m := newActive(t, 0)
	rec := &recorder{}
	cancel := m.Subscribe(rec)
	play(t, m, "e2e4")
	cancel()
	play(t, m, "e7e5")
	assert.Len(t, rec.events, 1)
}

func TestClockTimeout(t *testing.T) {
	m := newActive(t, 60)
	rec := &recorder{}
	m.Subscribe(rec)

	for i := 0; i < 59; i++ {
		m.Tick()
	}
	st := m.Snapshot()
	assert.False(t, st.GameOver)
	assert.Equal(t, 1, st.TimeLeft.White)
	assert.Equal(t, 60, st.TimeLeft.Black)

	m.Tick()
	st = m.Snapshot()
	assert.True(t, st.GameOver)
	assert.Equal(t, 0, st.TimeLeft.White)
	assert.Equal(t, "timeout", st.TerminationReason)
	assert.Equal(t, "black", st.Winner)
	assert.False(t, st.TimerActive)
	assert.Equal(t, StatusTimeout, m.ComputeStatus())

	last := rec.events[len(rec.events)-1]
	assert.Equal(t, EventGameEnded, last.Kind)
	assert.Equal(t, GameEndedPayload{Reason: ReasonTimeout, Winner: "black"}, last.Payload)

	m.Tick()
	assert.Equal(t, 0, m.Snapshot().TimeLeft.White)
}

func TestClockChargesSideToMove(t *testing.T) {
	m := newActive(t, 60)
	m.Tick()
	play(t, m, "e2e4")
	m.Tick()
	m.Tick()
	tl := m.Snapshot().TimeLeft
	assert.Equal(t, 59, tl.White)
	assert.Equal(t, 58, tl.Black)
}

func TestClockIdleWithoutClockOrWhilePaused(t *testing.T) {
	m := newActive(t, 0)
	rec := &recorder{}
	m.Subscribe(rec)
	m.Tick()
	assert.Empty(t, rec.events)

	m = newActive(t, 60)
	require.NoError(t, m.Pause("w"))
	m.Tick()
	assert.Equal(t, 60, m.Snapshot().TimeLeft.White)
	assert.Equal(t, PhasePaused, m.Phase())

	require.NoError(t, m.Resume("b"))
	m.Tick()
	assert.Equal(t, 59, m.Snapshot().TimeLeft.White)
}

func TestDrawOfferDeclineAndAccept(t *testing.T) {
	m := newActive(t, 0)

	require.NoError(t, m.OfferDraw("w"))
	st := m.Snapshot()
	require.NotNil(t, st.DrawOffer)
	assert.Equal(t, "w", st.DrawOffer.OfferedBy)
	assert.Equal(t, "b", st.DrawOffer.OfferedTo)

	assert.ErrorIs(t, m.OfferDraw("b"), ErrDrawOfferConflict)
	assert.ErrorIs(t, m.RespondDraw("w", true), ErrInvalidDrawResponse)
	assert.ErrorIs(t, m.OfferDraw("nobody"), ErrNotAPlayer)

	require.NoError(t, m.RespondDraw("b", false))
	st = m.Snapshot()
	assert.Nil(t, st.DrawOffer)
	assert.False(t, st.GameOver)
	assert.ErrorIs(t, m.RespondDraw("b", true), ErrInvalidDrawResponse)

	require.NoError(t, m.OfferDraw("b"))
	require.NoError(t, m.RespondDraw("w", true))
	st = m.Snapshot()
	assert.True(t, st.GameOver)
	assert.Equal(t, "draw", st.TerminationReason)
	assert.Equal(t, string(DrawAgreement), st.DrawKind)
	assert.Empty(t, st.Winner)

	assert.ErrorIs(t, m.OfferDraw("w"), ErrGameOver)
}

func TestDrawOfferNeedsOpponent(t *testing.T) {
	m := New("D1", 0)
	_, err := m.AddPlayer("w", "", "")
	require.NoError(t, err)
	assert.ErrorIs(t, m.OfferDraw("w"), ErrDrawOfferConflict)
}

func TestDrawOfferExpires(t *testing.T) {
	fc := &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	m := newActive(t, 0, WithNow(fc.Now), WithDrawOfferTTL(time.Minute))
	rec := &recorder{}
	m.Subscribe(rec)

	require.NoError(t, m.OfferDraw("w"))
	assert.Equal(t, fc.t.Add(time.Minute), m.Snapshot().DrawOffer.ExpiresAt)

	fc.Advance(59 * time.Second)
	m.Tick()
	assert.NotNil(t, m.Snapshot().DrawOffer)

	fc.Advance(time.Second)
	m.Tick()
	assert.Nil(t, m.Snapshot().DrawOffer)
	assert.Equal(t, []EventKind{EventDrawOffered, EventDrawExpired}, rec.kinds())
	assert.ErrorIs(t, m.RespondDraw("b", true), ErrInvalidDrawResponse)
}

func TestDisconnectPausesAndReconnectResumes(t *testing.T) {
	m := newActive(t, 60)
	require.NoError(t, m.OfferDraw("b"))

	res, err := m.RemovePlayer("w")
	require.NoError(t, err)
	assert.Equal(t, RoleWhite, res.Role)
	assert.True(t, res.DrawOfferCancelled)
	assert.Equal(t, PhasePaused, m.Phase())
	assert.Nil(t, m.Snapshot().DrawOffer)

	m.Tick()
	assert.Equal(t, 60, m.Snapshot().TimeLeft.White)
	_, err = m.Move("b", sq(t, "e7"), sq(t, "e5"), "")
	assert.ErrorIs(t, err, ErrPaused)

	role, err := m.AddPlayer("w", "white again", "")
	require.NoError(t, err)
	assert.Equal(t, RoleWhite, role)
	assert.Equal(t, PhaseActive, m.Phase())
	play(t, m, "e2e4")
}

func TestSeatRefilledByNewcomer(t *testing.T) {
	m := newActive(t, 0)
	_, err := m.RemovePlayer("b")
	require.NoError(t, err)
	_, err = m.Move("w", sq(t, "e2"), sq(t, "e4"), "")
	assert.ErrorIs(t, err, ErrPaused)

	role, err := m.AddPlayer("b2", "", "")
	require.NoError(t, err)
	assert.Equal(t, RoleBlack, role)
	play(t, m, "e2e4")
}

func TestRemoveUnknownPlayer(t *testing.T) {
	m := newActive(t, 0)
	_, err := m.RemovePlayer("ghost")
	assert.ErrorIs(t, err, ErrNotAPlayer)
}

func TestLeaveForfeits(t *testing.T) {
	m := newActive(t, 0)
	play(t, m, "e2e4")
	_, err := m.Leave("b")
	require.NoError(t, err)
	st := m.Snapshot()
	assert.True(t, st.GameOver)
	assert.Equal(t, "abandoned", st.TerminationReason)
	assert.Equal(t, "white", st.Winner)
	assert.Nil(t, st.Players.Black)
	assert.Equal(t, StatusResigned, m.ComputeStatus())
}

func TestLeaveBeforeStartDoesNotForfeit(t *testing.T) {
	m := New("L1", 0)
	_, err := m.AddPlayer("w", "", "")
	require.NoError(t, err)
	_, err = m.Leave("w")
	require.NoError(t, err)
	assert.False(t, m.Snapshot().GameOver)
	assert.Equal(t, 0, m.Occupants())
}

func TestResign(t *testing.T) {
	m := newActive(t, 0)
	require.NoError(t, m.Resign("w"))
	st := m.Snapshot()
	assert.Equal(t, "resignation", st.TerminationReason)
	assert.Equal(t, "black", st.Winner)
	assert.ErrorIs(t, m.Resign("b"), ErrGameOver)
}

func TestResetKeepsPlayers(t *testing.T) {
	m := newActive(t, 30)
	play(t, m, "e2e4", "e7e5")
	m.Tick()
	require.NoError(t, m.Resign("b"))

	require.NoError(t, m.Reset("w"))
	st := m.Snapshot()
	assert.False(t, st.GameOver)
	assert.Empty(t, st.MoveHistory)
	assert.Equal(t, "white", st.CurrentPlayer)
	assert.Equal(t, 30, st.TimeLeft.White)
	assert.True(t, st.TimerActive)
	assert.Equal(t, "w", st.Players.White.ID)
	assert.Equal(t, "b", st.Players.Black.ID)
	assert.Equal(t, "pawn", st.Board[6][4].Type)
	assert.ErrorIs(t, m.Reset("ghost"), ErrNotAPlayer)
}

func TestUndoPermissions(t *testing.T) {
	m := newActive(t, 0)
	_, err := m.Undo("w")
	assert.ErrorIs(t, err, ErrNoMoves)

	_, err = m.AddPlayer("viewer", "", "")
	require.NoError(t, err)
	play(t, m, "e2e4")
	_, err = m.Undo("viewer")
	assert.ErrorIs(t, err, ErrNotAPlayer)
}

func TestUndoAfterTimeoutRestartsClock(t *testing.T) {
	m := newActive(t, 2)
	play(t, m, "e2e4")
	m.Tick()
	m.Tick()
	require.True(t, m.Snapshot().GameOver)

	_, err := m.Undo("w")
	require.NoError(t, err)
	st := m.Snapshot()
	assert.False(t, st.GameOver)
	assert.True(t, st.TimerActive)
	assert.Equal(t, "white", st.CurrentPlayer)
}

func TestSummaryAndPGN(t *testing.T) {
	m := newActive(t, 0)
	play(t, m, "f2f3", "e7e5", "g2g4", "d8h4")

	s := m.Summary()
	assert.Equal(t, "white player", s.White)
	assert.Equal(t, "black player", s.Black)
	assert.Equal(t, 4, s.Moves)
	assert.True(t, s.GameOver)

	pgn := m.PGN()
	assert.Contains(t, pgn, `[Result "0-1"]`)
	assert.True(t, strings.Contains(pgn, "1. f3 e5 2. g4 Qh4#"), pgn)
}

func TestLegalMovesQuery(t *testing.T) {
	m := newActive(t, 0)
	moves := m.LegalMoves(sq(t, "g1"))
	assert.ElementsMatch(t, []board.Square{sq(t, "f3"), sq(t, "h3")}, moves)
	assert.Empty(t, m.LegalMoves(sq(t, "g8")))
}
