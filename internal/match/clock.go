package match

import (
	"go.uber.org/zap"

	"github.com/park285/netchess/internal/board"
	"github.com/park285/netchess/internal/obslog"
)

// Clock is a symmetric per-color countdown in whole seconds. A zero
// Duration disables it.
type Clock struct {
	Duration int
	White    int
	Black    int
	Active   bool
}

func newClock(seconds int) Clock {
	if seconds < 0 {
		seconds = 0
	}
	return Clock{Duration: seconds, White: seconds, Black: seconds}
}

func (c *Clock) Enabled() bool { return c.Duration > 0 }

func (c *Clock) start() { c.Active = c.Enabled() }

func (c *Clock) stop() { c.Active = false }

func (c *Clock) reset() {
	c.White, c.Black = c.Duration, c.Duration
	c.Active = false
}

func (c *Clock) left(side board.Color) *int {
	if side == board.White {
		return &c.White
	}
	return &c.Black
}

// decrement takes one second from side and reports whether it flagged.
func (c *Clock) decrement(side board.Color) bool {
	p := c.left(side)
	*p--
	if *p <= 0 {
		*p = 0
		return true
	}
	return false
}

// Tick advances the match by one second: the side to move loses a second
// while the match is Active, and a stale draw offer expires. Registry drives
// it from a per-match ticker.
func (m *Match) Tick() {
	m.mu.Lock()
	defer m.unlockAndDispatch()

	now := m.now()
	if m.drawOffer != nil && m.drawTTL > 0 && now.Sub(m.drawOffer.Timestamp) >= m.drawTTL {
		offer := m.drawOffer
		m.drawOffer = nil
		m.emit(EventDrawExpired, DrawPayload{OfferedBy: offer.OfferedBy, OfferedTo: offer.OfferedTo})
	}

	if !m.clockRunningLocked() {
		return
	}
	side := m.turn
	if !m.clock.decrement(side) {
		m.emit(EventClockTick, m.timeLeftLocked())
		return
	}
	m.clock.stop()
	m.finishLocked(ReasonTimeout, side.Opponent(), "")
	obslog.L().Info("match_timeout",
		zap.String("match_id", m.id),
		zap.String("flagged", string(side)),
	)
}

// Pause freezes the clock at a seated player's request.
func (m *Match) Pause(playerID string) error {
	m.mu.Lock()
	defer m.unlockAndDispatch()

	if _, ok := m.seatOf(playerID); !ok {
		return ErrNotAPlayer
	}
	if m.over {
		return ErrGameOver
	}
	if !m.started {
		return ErrWaitingForOpponent
	}
	if m.paused {
		return nil
	}
	m.paused = true
	m.pausedByDisconnect = false
	m.emit(EventClockPaused, PausePayload{PlayerID: playerID, Cause: "request"})
	return nil
}

// Resume restarts the clock; both seats must be filled.
func (m *Match) Resume(playerID string) error {
	m.mu.Lock()
	defer m.unlockAndDispatch()

	if _, ok := m.seatOf(playerID); !ok {
		return ErrNotAPlayer
	}
	if m.over {
		return ErrGameOver
	}
	if !m.bothSeated() {
		return ErrWaitingForOpponent
	}
	if !m.paused {
		return nil
	}
	m.paused = false
	m.pausedByDisconnect = false
	m.emit(EventClockResumed, PausePayload{PlayerID: playerID, Cause: "request"})
	return nil
}

func (m *Match) clockRunningLocked() bool {
	return m.clock.Active && m.started && !m.paused && !m.over && m.bothSeated()
}
