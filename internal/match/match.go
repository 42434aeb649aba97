// Package match owns the authoritative state of a single chess match. A
// Match is a single-writer state machine: every exported method takes the
// match mutex, so operations on one match are serialized while different
// matches run independently.
package match

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/netchess/internal/board"
	"github.com/park285/netchess/internal/notation"
	"github.com/park285/netchess/internal/obslog"
	"github.com/park285/netchess/internal/rules"
)

// DefaultDrawOfferTTL is how long an unanswered draw offer stays open.
const DefaultDrawOfferTTL = 60 * time.Second

type observerEntry struct {
	id       int
	observer Observer
}

type Match struct {
	mu sync.Mutex

	id  string
	now func() time.Time

	board      *board.Board
	turn       board.Color
	rights     board.CastlingRights
	enPassant  *board.Square
	history    []MoveRecord
	captured   Captured
	halfmove   int
	repetition map[string]int
	line       *notation.Line

	clock     Clock
	drawOffer *DrawOffer
	drawTTL   time.Duration

	white, black *Player
	spectators   []Player
	lastColor    map[string]board.Color

	started            bool
	paused             bool
	pausedByDisconnect bool
	over               bool
	reason             Reason
	winner             board.Color
	drawKind           DrawKind

	createdAt    time.Time
	lastActivity time.Time

	observers []observerEntry
	nextObsID int
	pending   []Event
}

type Option func(*Match)

// WithNow replaces the wall clock, mainly for tests.
func WithNow(now func() time.Time) Option {
	return func(m *Match) { m.now = now }
}

// WithDrawOfferTTL sets the server-side draw offer expiry; zero disables it.
func WithDrawOfferTTL(d time.Duration) Option {
	return func(m *Match) { m.drawTTL = d }
}

// New creates a match in the Setup phase. clockSeconds of zero means no clock.
func New(id string, clockSeconds int, opts ...Option) *Match {
	m := &Match{
		id:        id,
		now:       time.Now,
		drawTTL:   DefaultDrawOfferTTL,
		clock:     newClock(clockSeconds),
		lastColor: make(map[string]board.Color),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.createdAt = m.now()
	m.lastActivity = m.createdAt
	m.resetBoardLocked()
	return m
}

func (m *Match) ID() string { return m.id }

// Subscribe registers o for every future event and returns its cancel func.
func (m *Match) Subscribe(o Observer) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextObsID++
	id := m.nextObsID
	m.observers = append(m.observers, observerEntry{id: id, observer: o})
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, e := range m.observers {
			if e.id == id {
				m.observers = append(m.observers[:i], m.observers[i+1:]...)
				return
			}
		}
	}
}

// AddPlayer seats playerID in desired if free, else the color it last held,
// else white then black; with both seats taken it joins as a spectator. A
// player already in the match keeps its role.
func (m *Match) AddPlayer(playerID, name string, desired board.Color) (Role, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return "", ErrInvalidPlayer
	}
	m.mu.Lock()
	defer m.unlockAndDispatch()
	m.touch()

	if c, ok := m.seatOf(playerID); ok {
		return roleOf(c), nil
	}
	if m.spectatorIndex(playerID) >= 0 {
		return RoleSpectator, nil
	}

	p := &Player{ID: playerID, Name: strings.TrimSpace(name)}
	color, ok := m.pickSeat(playerID, desired)
	if !ok {
		m.spectators = append(m.spectators, *p)
		m.emit(EventPlayerJoined, PlayerPayload{PlayerID: p.ID, Name: p.Name, Role: RoleSpectator})
		return RoleSpectator, nil
	}
	m.setSeat(color, p)
	m.lastColor[playerID] = color
	m.emit(EventPlayerJoined, PlayerPayload{PlayerID: p.ID, Name: p.Name, Role: roleOf(color)})

	if m.bothSeated() {
		switch {
		case !m.started && !m.over:
			m.started = true
			m.paused = false
			m.clock.start()
			m.emit(EventGameStarted, nil)
			obslog.L().Info("match_start", zap.String("match_id", m.id), zap.Int("clock_seconds", m.clock.Duration))
		case m.paused && m.pausedByDisconnect:
			m.paused = false
			m.pausedByDisconnect = false
			m.emit(EventClockResumed, PausePayload{PlayerID: playerID, Cause: "reconnect"})
		}
	}
	return roleOf(color), nil
}

func (m *Match) pickSeat(playerID string, desired board.Color) (board.Color, bool) {
	if desired.Valid() && m.seat(desired) == nil {
		return desired, true
	}
	if prev, ok := m.lastColor[playerID]; ok && m.seat(prev) == nil {
		return prev, true
	}
	if m.white == nil {
		return board.White, true
	}
	if m.black == nil {
		return board.Black, true
	}
	return "", false
}

// RemovePlayer vacates playerID's seat or spectator slot. Losing a seat in a
// running match pauses it and cancels any draw offer involving the player.
func (m *Match) RemovePlayer(playerID string) (RemoveResult, error) {
	m.mu.Lock()
	defer m.unlockAndDispatch()
	return m.removeLocked(playerID)
}

func (m *Match) removeLocked(playerID string) (RemoveResult, error) {
	if i := m.spectatorIndex(playerID); i >= 0 {
		p := m.spectators[i]
		m.spectators = append(m.spectators[:i], m.spectators[i+1:]...)
		m.touch()
		m.emit(EventPlayerLeft, PlayerPayload{PlayerID: p.ID, Name: p.Name, Role: RoleSpectator})
		return RemoveResult{Role: RoleSpectator}, nil
	}
	color, ok := m.seatOf(playerID)
	if !ok {
		return RemoveResult{}, ErrNotAPlayer
	}
	p := m.seat(color)
	m.setSeat(color, nil)
	m.touch()

	res := RemoveResult{Role: roleOf(color)}
	if o := m.drawOffer; o != nil && (o.OfferedBy == playerID || o.OfferedTo == playerID) {
		m.drawOffer = nil
		res.DrawOfferCancelled = true
		m.emit(EventDrawCancelled, DrawPayload{OfferedBy: o.OfferedBy, OfferedTo: o.OfferedTo})
	}
	m.emit(EventPlayerLeft, PlayerPayload{PlayerID: p.ID, Name: p.Name, Role: res.Role, DrawOfferCancelled: res.DrawOfferCancelled})
	if m.started && !m.over && !m.paused {
		m.paused = true
		m.pausedByDisconnect = true
		m.emit(EventClockPaused, PausePayload{PlayerID: playerID, Cause: "disconnect"})
	}
	return res, nil
}

// Leave removes playerID; a seated player leaving a running match forfeits
// to a seated opponent.
func (m *Match) Leave(playerID string) (RemoveResult, error) {
	m.mu.Lock()
	defer m.unlockAndDispatch()

	if color, ok := m.seatOf(playerID); ok && m.started && !m.over && m.seat(color.Opponent()) != nil {
		m.finishLocked(ReasonAbandoned, color.Opponent(), "")
	}
	return m.removeLocked(playerID)
}

// Resign ends the match in the opponent's favour.
func (m *Match) Resign(playerID string) error {
	m.mu.Lock()
	defer m.unlockAndDispatch()

	color, ok := m.seatOf(playerID)
	if !ok {
		return ErrNotAPlayer
	}
	if m.over {
		return ErrGameOver
	}
	if !m.started {
		return ErrWaitingForOpponent
	}
	m.touch()
	m.finishLocked(ReasonResignation, color.Opponent(), "")
	return nil
}

// Reset restores the initial position while keeping seated players; the
// clock restarts when both seats are filled.
func (m *Match) Reset(playerID string) error {
	m.mu.Lock()
	defer m.unlockAndDispatch()

	if _, ok := m.seatOf(playerID); !ok {
		return ErrNotAPlayer
	}
	m.touch()
	m.resetBoardLocked()
	m.started = m.bothSeated()
	if m.started {
		m.clock.start()
	}
	m.emit(EventGameReset, nil)
	obslog.L().Info("match_reset", zap.String("match_id", m.id), zap.String("player_id", playerID))
	return nil
}

func (m *Match) resetBoardLocked() {
	m.board = board.New()
	m.turn = board.White
	m.rights = board.InitialRights()
	m.enPassant = nil
	m.history = nil
	m.captured = Captured{}
	m.halfmove = 0
	m.drawOffer = nil
	m.clock.reset()
	m.paused = false
	m.pausedByDisconnect = false
	m.over = false
	m.reason = ReasonNone
	m.winner = ""
	m.drawKind = ""
	if m.line == nil {
		m.line = notation.NewLine()
	} else {
		m.line.Reset()
	}
	m.repetition = map[string]int{rules.PositionKey(m.position(), m.turn): 1}
}

func (m *Match) finishLocked(reason Reason, winner board.Color, kind DrawKind) {
	m.over = true
	m.reason = reason
	m.winner = winner
	m.drawKind = kind
	m.drawOffer = nil
	m.clock.stop()
	m.emit(EventGameEnded, GameEndedPayload{Reason: reason, Winner: string(winner), DrawKind: kind})
	obslog.L().Info("match_end",
		zap.String("match_id", m.id),
		zap.String("reason", string(reason)),
		zap.String("winner", string(winner)),
		zap.String("draw_kind", string(kind)),
		zap.Int("plies", len(m.history)),
	)
}

// Occupants counts seated players and spectators.
func (m *Match) Occupants() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.spectators)
	if m.white != nil {
		n++
	}
	if m.black != nil {
		n++
	}
	return n
}

func (m *Match) LastActivity() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastActivity
}

// RoleOf reports playerID's current role, if any.
func (m *Match) RoleOf(playerID string) (Role, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.seatOf(playerID); ok {
		return roleOf(c), true
	}
	if m.spectatorIndex(playerID) >= 0 {
		return RoleSpectator, true
	}
	return "", false
}

func (m *Match) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phaseLocked()
}

func (m *Match) phaseLocked() Phase {
	switch {
	case m.over:
		return PhaseTerminal
	case !m.started:
		return PhaseSetup
	case m.paused || !m.bothSeated():
		return PhasePaused
	default:
		return PhaseActive
	}
}

func (m *Match) touch() { m.lastActivity = m.now() }

func (m *Match) seat(c board.Color) *Player {
	if c == board.White {
		return m.white
	}
	return m.black
}

func (m *Match) setSeat(c board.Color, p *Player) {
	if c == board.White {
		m.white = p
	} else {
		m.black = p
	}
}

func (m *Match) seatOf(playerID string) (board.Color, bool) {
	if playerID == "" {
		return "", false
	}
	if m.white != nil && m.white.ID == playerID {
		return board.White, true
	}
	if m.black != nil && m.black.ID == playerID {
		return board.Black, true
	}
	return "", false
}

func (m *Match) spectatorIndex(playerID string) int {
	for i, s := range m.spectators {
		if s.ID == playerID {
			return i
		}
	}
	return -1
}

func (m *Match) bothSeated() bool { return m.white != nil && m.black != nil }

func (m *Match) position() rules.Position {
	return rules.Position{Board: m.board, Rights: m.rights, EnPassant: m.enPassant}
}

func (m *Match) emit(kind EventKind, payload any) {
	m.pending = append(m.pending, Event{Kind: kind, MatchID: m.id, At: m.now(), Payload: payload})
}

// unlockAndDispatch delivers queued events with the post-change snapshot and
// releases the match. Observers run under the match lock.
func (m *Match) unlockAndDispatch() {
	defer m.mu.Unlock()
	if len(m.pending) == 0 {
		return
	}
	pending := m.pending
	m.pending = nil
	state := m.snapshotLocked()
	for _, ev := range pending {
		ev.State = state
		for _, e := range m.observers {
			e.observer.OnEvent(ev)
		}
	}
}
