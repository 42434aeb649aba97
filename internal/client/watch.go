package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/netchess/pkg/matchdto"
)

// ErrMatchClosed is returned by Watcher.Run when the server ends the stream
// because the match is gone.
var ErrMatchClosed = errors.New("match closed")

type WatchState string

const (
	WatchConnecting   WatchState = "connecting"
	WatchConnected    WatchState = "connected"
	WatchReconnecting WatchState = "reconnecting"
	WatchClosed       WatchState = "closed"
	WatchFailed       WatchState = "failed"
)

type (
	EventHandler func(ev matchdto.Event)
	StateHandler func(state WatchState, err error)
)

// Watcher follows one match's event stream, redialing with backoff when the
// connection drops. A watcher for a seated player reclaims the seat before
// each redial, since the server vacates it when the old socket closes.
type Watcher struct {
	client     *Client
	matchID    string
	playerID   string
	playerName string

	maxReconnectAttempts int
	pingInterval         time.Duration
	onEvent              EventHandler
	onState              StateHandler

	stateM sync.RWMutex
	state  WatchState
}

type WatchOption func(*Watcher)

func WithReconnect(max int) WatchOption {
	return func(w *Watcher) { w.maxReconnectAttempts = max }
}

func WithPingInterval(d time.Duration) WatchOption {
	return func(w *Watcher) { w.pingInterval = d }
}

func WithPlayerName(name string) WatchOption {
	return func(w *Watcher) { w.playerName = name }
}

func OnEvent(h EventHandler) WatchOption {
	return func(w *Watcher) { w.onEvent = h }
}

func OnState(h StateHandler) WatchOption {
	return func(w *Watcher) { w.onState = h }
}

// Watch prepares a watcher; playerID may be empty for spectators.
func (c *Client) Watch(matchID, playerID string, opts ...WatchOption) *Watcher {
	w := &Watcher{
		client:               c,
		matchID:              strings.TrimSpace(matchID),
		playerID:             strings.TrimSpace(playerID),
		maxReconnectAttempts: 5,
		pingInterval:         30 * time.Second,
		state:                WatchClosed,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Watcher) State() WatchState {
	w.stateM.RLock()
	defer w.stateM.RUnlock()
	return w.state
}

// Run streams events to the handler until ctx ends (nil), the match goes
// away (ErrMatchClosed) or reconnecting gives up.
func (w *Watcher) Run(ctx context.Context) error {
	failures := 0
	for {
		if failures == 0 {
			w.setState(WatchConnecting, nil)
		} else {
			w.setState(WatchReconnecting, nil)
		}
		conn, err := w.dial(ctx)
		if err == nil {
			failures = 0
			w.setState(WatchConnected, nil)
			err = w.stream(ctx, conn)
		}

		if ctx.Err() != nil {
			w.setState(WatchClosed, nil)
			return nil
		}
		if errors.Is(err, ErrMatchClosed) || ErrorCode(err) == matchdto.CodeMatchNotFound {
			w.setState(WatchClosed, err)
			return err
		}
		failures++
		if failures > w.maxReconnectAttempts {
			w.setState(WatchFailed, err)
			return fmt.Errorf("watch %s: %w", w.matchID, err)
		}
		if sleepErr := w.client.sleepWithContext(ctx, backoffDuration(failures)); sleepErr != nil {
			w.setState(WatchClosed, nil)
			return nil
		}
		if w.playerID == "" {
			continue
		}
		if _, err := w.client.Join(ctx, w.matchID, matchdto.JoinRequest{PlayerID: w.playerID, PlayerName: w.playerName}); err != nil {
			if ErrorCode(err) == matchdto.CodeMatchNotFound {
				w.setState(WatchClosed, err)
				return err
			}
			// without the seat the next stream is a spectator's
			w.setState(WatchReconnecting, fmt.Errorf("reclaim seat: %w", err))
		}
	}
}

func (w *Watcher) wsURL() string {
	base := w.client.baseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	u := base + "/ws/matches/" + url.PathEscape(w.matchID)
	if w.playerID != "" {
		u += "?playerId=" + url.QueryEscape(w.playerID)
	}
	return u
}

func (w *Watcher) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, resp, err := websocket.Dial(dialCtx, w.wsURL(), &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      w.buildHeaders(),
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, &APIError{Status: resp.StatusCode, Domain: &matchdto.DomainError{Code: matchdto.CodeMatchNotFound}}
		}
		return nil, err
	}
	return conn, nil
}

func (w *Watcher) stream(ctx context.Context, conn *websocket.Conn) error {
	defer conn.CloseNow()
	streamCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.pingLoop(streamCtx, cancel, conn)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	for {
		var ev matchdto.Event
		if err := wsjson.Read(streamCtx, conn, &ev); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusGoingAway {
				return ErrMatchClosed
			}
			if ctx.Err() != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "bye")
			}
			return err
		}
		if w.onEvent != nil {
			w.onEvent(ev)
		}
	}
}

// pingLoop cancels the stream after two consecutive failed pings.
func (w *Watcher) pingLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) {
	t := time.NewTicker(w.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, done := context.WithTimeout(ctx, 3*time.Second)
			err := conn.Ping(pctx)
			done()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				cancel()
				return
			}
		}
	}
}

func (w *Watcher) setState(state WatchState, err error) {
	w.stateM.Lock()
	w.state = state
	w.stateM.Unlock()
	if w.onState != nil {
		w.onState(state, err)
	}
}

func (w *Watcher) buildHeaders() http.Header {
	hdr := http.Header{}
	if w.client.headers == nil {
		return hdr
	}
	for k, v := range w.client.headers() {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		hdr.Set(k, v)
	}
	return hdr
}
