// Package events fans match events out to subscribers: an in-process Hub,
// a Redis pub/sub bus for multi-instance deployments and a Redis index of
// live matches.
package events

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/park285/netchess/internal/match"
	"github.com/park285/netchess/internal/obslog"
	"github.com/park285/netchess/pkg/matchdto"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 64

// Source hands out event streams for one match. cancel releases the
// stream; the channel is closed afterwards, when the match goes away or
// when the subscriber falls too far behind.
type Source interface {
	Subscribe(ctx context.Context, matchID string) (events <-chan matchdto.Event, cancel func(), err error)
}

type subscriber struct {
	ch     chan matchdto.Event
	closed bool
}

// Hub is a match.Observer relaying events to local subscribers. Sends never
// block: a subscriber whose buffer is full is evicted and its stream closed,
// so it never silently misses an event such as game_ended.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*subscriber]struct{}
	buffer int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{subs: make(map[string]map[*subscriber]struct{}), buffer: buffer}
}

// OnEvent implements match.Observer.
func (h *Hub) OnEvent(ev match.Event) {
	dto := ev.DTO()
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[ev.MatchID]
	for s := range set {
		select {
		case s.ch <- dto:
		default:
			obslog.L().Warn("hub_evict", zap.String("match_id", ev.MatchID), zap.String("kind", dto.Kind))
			delete(set, s)
			h.closeLocked(s)
		}
	}
	if set != nil && len(set) == 0 {
		delete(h.subs, ev.MatchID)
	}
}

// Subscribe implements Source.
func (h *Hub) Subscribe(_ context.Context, matchID string) (<-chan matchdto.Event, func(), error) {
	s := &subscriber{ch: make(chan matchdto.Event, h.buffer)}
	h.mu.Lock()
	set, ok := h.subs[matchID]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[matchID] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[matchID]; ok {
				delete(set, s)
				if len(set) == 0 {
					delete(h.subs, matchID)
				}
			}
			h.closeLocked(s)
		})
	}
	return s.ch, cancel, nil
}

// CloseMatch ends every stream of matchID, e.g. when the match is reclaimed.
func (h *Hub) CloseMatch(matchID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs[matchID] {
		h.closeLocked(s)
	}
	delete(h.subs, matchID)
}

// Subscribers counts open streams for matchID.
func (h *Hub) Subscribers(matchID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[matchID])
}

func (h *Hub) closeLocked(s *subscriber) {
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
