package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/netchess/internal/match"
	"github.com/park285/netchess/internal/obslog"
	"github.com/park285/netchess/pkg/matchdto"
)

// EventState is the kind of the snapshot sent when a stream opens.
const EventState = "state"

// presence counts open streams per player or spectator so that only the last
// socket to close takes them off the roster.
type presence struct {
	mu    sync.Mutex
	conns map[string]int
}

func (p *presence) enter(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conns == nil {
		p.conns = make(map[string]int)
	}
	p.conns[key]++
}

// leave reports whether key has no streams left.
func (p *presence) leave(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conns[key]--
	if p.conns[key] > 0 {
		return false
	}
	delete(p.conns, key)
	return true
}

func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	m, err := s.Registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	playerID := strings.TrimSpace(r.URL.Query().Get("playerId"))

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  s.AllowedOrigins,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_failed", zap.String("match_id", m.ID()), zap.Error(err))
		return
	}
	defer conn.CloseNow()

	// nothing is read from clients; CloseRead handles control frames and
	// cancels ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	stream, unsubscribe, err := s.Events.Subscribe(ctx, m.ID())
	if err != nil {
		obslog.L().Error("ws_subscribe_failed", zap.String("match_id", m.ID()), zap.Error(err))
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	defer unsubscribe()

	// the last stream of a known player or spectator takes them off the
	// roster, so an abandoned match empties and can be reclaimed.
	role, known := m.RoleOf(playerID)
	seated := known && role != match.RoleSpectator
	if known {
		key := m.ID() + "/" + playerID
		s.presence.enter(key)
		defer func() {
			if !s.presence.leave(key) {
				return
			}
			if _, err := m.RemovePlayer(playerID); err != nil && !errors.Is(err, match.ErrNotAPlayer) {
				obslog.L().Warn("ws_remove_failed", zap.String("match_id", m.ID()), zap.Error(err))
			}
		}()
	}
	obslog.L().Info("ws_open", zap.String("match_id", m.ID()), zap.String("player_id", playerID), zap.Bool("seated", seated))
	defer obslog.L().Info("ws_close", zap.String("match_id", m.ID()), zap.String("player_id", playerID))

	initial := matchdto.Event{Kind: EventState, MatchID: m.ID(), At: time.Now(), State: m.Snapshot()}
	if err := s.send(ctx, conn, initial); err != nil {
		return
	}

	ping := time.NewTicker(s.pingInterval())
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-stream:
			if !ok {
				if _, err := s.Registry.Get(m.ID()); err == nil {
					// the source dropped a lagging stream; the client resubscribes
					_ = conn.Close(websocket.StatusTryAgainLater, "stream lagged")
					return
				}
				_ = conn.Close(websocket.StatusGoingAway, "match closed")
				return
			}
			if err := s.send(ctx, conn, ev); err != nil {
				return
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, s.writeTimeout())
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (s *Server) send(ctx context.Context, conn *websocket.Conn, ev matchdto.Event) error {
	wctx, cancel := context.WithTimeout(ctx, s.writeTimeout())
	defer cancel()
	if err := wsjson.Write(wctx, conn, ev); err != nil {
		obslog.L().Debug("ws_write_failed", zap.String("match_id", ev.MatchID), zap.Error(err))
		return err
	}
	return nil
}
