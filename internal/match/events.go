package match

import (
	"time"

	"github.com/park285/netchess/pkg/matchdto"
)

// EventKind names a state change broadcast to subscribers.
type EventKind string

const (
	EventPlayerJoined  EventKind = "player_joined"
	EventPlayerLeft    EventKind = "player_left"
	EventGameStarted   EventKind = "game_started"
	EventMoveApplied   EventKind = "move_applied"
	EventMoveUndone    EventKind = "move_undone"
	EventGameReset     EventKind = "game_reset"
	EventGameEnded     EventKind = "game_ended"
	EventDrawOffered   EventKind = "draw_offered"
	EventDrawDeclined  EventKind = "draw_declined"
	EventDrawExpired   EventKind = "draw_expired"
	EventDrawCancelled EventKind = "draw_cancelled"
	EventClockPaused   EventKind = "clock_paused"
	EventClockResumed  EventKind = "clock_resumed"
	EventClockTick     EventKind = "clock_tick"
)

// Event carries the snapshot taken right after the change.
type Event struct {
	Kind    EventKind
	MatchID string
	At      time.Time
	Payload any
	State   *matchdto.State
}

// DTO converts the event to its wire form.
func (e Event) DTO() matchdto.Event {
	return matchdto.Event{Kind: string(e.Kind), MatchID: e.MatchID, At: e.At, Payload: e.Payload, State: e.State}
}

// Observer receives match events in the order they happened. OnEvent must
// not call mutating Match methods synchronously.
type Observer interface {
	OnEvent(ev Event)
}

type ObserverFunc func(ev Event)

func (f ObserverFunc) OnEvent(ev Event) { f(ev) }

type PlayerPayload struct {
	PlayerID           string `json:"playerId"`
	Name               string `json:"name"`
	Role               Role   `json:"role"`
	DrawOfferCancelled bool   `json:"drawOfferCancelled,omitempty"`
}

type GameEndedPayload struct {
	Reason   Reason   `json:"reason"`
	Winner   string   `json:"winner,omitempty"`
	DrawKind DrawKind `json:"drawKind,omitempty"`
}

type DrawPayload struct {
	OfferedBy string `json:"offeredBy"`
	OfferedTo string `json:"offeredTo"`
}

type PausePayload struct {
	PlayerID string `json:"playerId,omitempty"`
	Cause    string `json:"cause"`
}
