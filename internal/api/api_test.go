package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/netchess/internal/events"
	"github.com/park285/netchess/internal/match"
	"github.com/park285/netchess/internal/msgcat"
	"github.com/park285/netchess/internal/registry"
	"github.com/park285/netchess/pkg/matchdto"
)

type harness struct {
	t   *testing.T
	ts  *httptest.Server
	reg *registry.Registry
	srv *Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	hub := events.NewHub(0)
	reg := registry.New(registry.Options{}, registry.Hooks{Removed: hub.CloseMatch}, hub)
	t.Cleanup(reg.Close)
	srv := &Server{Registry: reg, Events: hub, Messages: msgcat.MustDefault(), PingInterval: time.Hour}
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return &harness{t: t, ts: ts, reg: reg, srv: srv}
}

// call sends body as JSON and decodes the response into out when non-nil.
func (h *harness) call(method, path string, body any, out any) int {
	h.t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, h.ts.URL+path, rd)
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.ts.Client().Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(h.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// seated creates a match for alice (white) and seats bob (black).
func (h *harness) seated() (id, white, black string) {
	h.t.Helper()
	var created matchdto.CreateMatchResponse
	require.Equal(h.t, http.StatusCreated, h.call(http.MethodPost, "/api/matches", map[string]any{"playerName": "alice", "color": "white"}, &created))
	var joined matchdto.JoinResponse
	require.Equal(h.t, http.StatusOK, h.call(http.MethodPost, "/api/matches/"+created.MatchID+"/join", map[string]any{"playerName": "bob"}, &joined))
	require.Equal(h.t, "black", joined.Color)
	return created.MatchID, created.PlayerID, joined.PlayerID
}

func TestCreateJoinAndMove(t *testing.T) {
	h := newHarness(t)

	var created matchdto.CreateMatchResponse
	status := h.call(http.MethodPost, "/api/matches", map[string]any{"playerName": "alice", "clockSeconds": 0}, &created)
	require.Equal(t, http.StatusCreated, status)
	assert.Len(t, created.MatchID, 6)
	assert.NotEmpty(t, created.PlayerID)
	assert.Equal(t, "white", created.Color)
	require.NotNil(t, created.State)
	assert.Equal(t, "setup", created.State.Phase)

	var joined matchdto.JoinResponse
	status = h.call(http.MethodPost, "/api/matches/"+strings.ToLower(created.MatchID)+"/join", map[string]any{"playerName": "bob"}, &joined)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "black", joined.Color)
	assert.Equal(t, "active", joined.State.Phase)

	var moved matchdto.MoveResponse
	status = h.call(http.MethodPost, "/api/matches/"+created.MatchID+"/moves",
		map[string]any{"playerId": created.PlayerID, "from": "e2", "to": map[string]int{"row": 4, "col": 4}}, &moved)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, moved.Accepted)
	require.NotNil(t, moved.MoveRecord)
	assert.Equal(t, "e4", moved.MoveRecord.SAN)
	assert.Equal(t, "black", moved.State.CurrentPlayer)
	assert.Equal(t, &matchdto.Square{Row: 5, Col: 4}, moved.State.EnPassantTarget)

	status = h.call(http.MethodPost, "/api/matches/"+created.MatchID+"/moves",
		map[string]any{"playerId": joined.PlayerID, "move": "e5"}, &moved)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "e5", moved.MoveRecord.SAN)
	assert.Len(t, moved.State.MoveHistory, 2)

	var third matchdto.JoinResponse
	require.Equal(t, http.StatusOK, h.call(http.MethodPost, "/api/matches/"+created.MatchID+"/join", map[string]any{}, &third))
	assert.Equal(t, "spectator", third.Color)
	require.Len(t, third.State.Spectators, 1)
	assert.NotEmpty(t, third.State.Spectators[0].Name, "anonymous players get a generated name")
}

func TestMoveRejectionsCarryState(t *testing.T) {
	h := newHarness(t)
	id, white, black := h.seated()
	path := "/api/matches/" + id + "/moves"

	tests := []struct {
		name      string
		body      map[string]any
		status    int
		code      string
		retryable bool
	}{
		{"not your turn", map[string]any{"playerId": black, "from": "e7", "to": "e5"}, http.StatusConflict, matchdto.CodeNotYourTurn, true},
		{"illegal", map[string]any{"playerId": white, "from": "e2", "to": "e5"}, http.StatusBadRequest, matchdto.CodeInvalidMove, false},
		{"bad san", map[string]any{"playerId": white, "move": "Ke4"}, http.StatusBadRequest, matchdto.CodeInvalidMove, false},
		{"bad promotion", map[string]any{"playerId": white, "from": "e2", "to": "e4", "promotion": "x"}, http.StatusBadRequest, matchdto.CodePromotionInvalid, false},
		{"missing player", map[string]any{"from": "e2", "to": "e4"}, http.StatusBadRequest, matchdto.CodeBadRequest, false},
		{"missing squares", map[string]any{"playerId": white}, http.StatusBadRequest, matchdto.CodeBadRequest, false},
		{"bad square", map[string]any{"playerId": white, "from": "z9", "to": "e4"}, http.StatusBadRequest, matchdto.CodeBadRequest, false},
		{"stranger", map[string]any{"playerId": "nobody", "from": "e2", "to": "e4"}, http.StatusForbidden, matchdto.CodeNotAPlayer, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var resp matchdto.MoveResponse
			status := h.call(http.MethodPost, path, tc.body, &resp)
			assert.Equal(t, tc.status, status)
			assert.False(t, resp.Accepted)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tc.code, resp.Error.Code)
			assert.NotEmpty(t, resp.Error.Message)
			assert.Equal(t, tc.retryable, resp.Error.Retryable)
			require.NotNil(t, resp.State)
			assert.Empty(t, resp.State.MoveHistory)
			assert.Equal(t, "white", resp.State.CurrentPlayer)
		})
	}

	var resp matchdto.MoveResponse
	assert.Equal(t, http.StatusNotFound, h.call(http.MethodPost, "/api/matches/NOPE00/moves", map[string]any{"playerId": white, "move": "e4"}, &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, matchdto.CodeMatchNotFound, resp.Error.Code)
	assert.Nil(t, resp.State)
}

func TestCreateRejectsBadInput(t *testing.T) {
	h := newHarness(t)
	var reply matchdto.Reply
	assert.Equal(t, http.StatusBadRequest, h.call(http.MethodPost, "/api/matches", map[string]any{"clockSeconds": -5}, &reply))
	assert.Equal(t, matchdto.CodeBadRequest, reply.Error.Code)

	assert.Equal(t, http.StatusBadRequest, h.call(http.MethodPost, "/api/matches", map[string]any{"color": "purple"}, &reply))
	assert.Contains(t, reply.Error.Message, "purple")

	req, err := http.NewRequest(http.MethodPost, h.ts.URL+"/api/matches", strings.NewReader("{not json"))
	require.NoError(t, err)
	resp, err := h.ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestDrawAndActions(t *testing.T) {
	h := newHarness(t)
	id, white, black := h.seated()
	base := "/api/matches/" + id

	var reply matchdto.Reply
	require.Equal(t, http.StatusOK, h.call(http.MethodPost, base+"/draw/offer", matchdto.ActionRequest{PlayerID: white}, &reply))
	assert.True(t, reply.OK)
	require.NotNil(t, reply.State.DrawOffer)
	assert.Equal(t, white, reply.State.DrawOffer.OfferedBy)

	assert.Equal(t, http.StatusConflict, h.call(http.MethodPost, base+"/draw/offer", matchdto.ActionRequest{PlayerID: black}, &reply))
	assert.Equal(t, matchdto.CodeDrawOfferConflict, reply.Error.Code)

	assert.Equal(t, http.StatusConflict, h.call(http.MethodPost, base+"/draw/respond", matchdto.DrawResponseRequest{PlayerID: white, Accept: true}, &reply))
	assert.Equal(t, matchdto.CodeInvalidDrawResponse, reply.Error.Code)
	require.NotNil(t, reply.State, "rejections carry the unchanged state")
	assert.NotNil(t, reply.State.DrawOffer)

	reply = matchdto.Reply{}
	require.Equal(t, http.StatusOK, h.call(http.MethodPost, base+"/draw/respond", matchdto.DrawResponseRequest{PlayerID: black, Accept: false}, &reply))
	assert.Nil(t, reply.State.DrawOffer)
	assert.False(t, reply.State.GameOver)

	assert.Equal(t, http.StatusConflict, h.call(http.MethodPost, base+"/undo", matchdto.ActionRequest{PlayerID: white}, &reply))
	assert.Equal(t, matchdto.CodeNoMoves, reply.Error.Code)

	require.Equal(t, http.StatusOK, h.call(http.MethodPost, base+"/pause", matchdto.ActionRequest{PlayerID: black}, &reply))
	assert.Equal(t, "paused", reply.State.Phase)
	assert.Equal(t, http.StatusConflict, h.call(http.MethodPost, base+"/moves", map[string]any{"playerId": white, "move": "d4"}, &reply))
	assert.Equal(t, matchdto.CodePaused, reply.Error.Code)
	require.Equal(t, http.StatusOK, h.call(http.MethodPost, base+"/resume", matchdto.ActionRequest{PlayerID: white}, &reply))
	assert.Equal(t, "active", reply.State.Phase)

	require.Equal(t, http.StatusOK, h.call(http.MethodPost, base+"/draw/offer", matchdto.ActionRequest{PlayerID: black}, &reply))
	require.Equal(t, http.StatusOK, h.call(http.MethodPost, base+"/draw/respond", matchdto.DrawResponseRequest{PlayerID: white, Accept: true}, &reply))
	assert.True(t, reply.State.GameOver)
	assert.Equal(t, "draw", reply.State.TerminationReason)
	assert.Equal(t, "agreement", reply.State.DrawKind)

	assert.Equal(t, http.StatusConflict, h.call(http.MethodPost, base+"/resign", matchdto.ActionRequest{PlayerID: white}, &reply))
	assert.Equal(t, matchdto.CodeGameOver, reply.Error.Code)

	require.Equal(t, http.StatusOK, h.call(http.MethodPost, base+"/reset", matchdto.ActionRequest{PlayerID: white}, &reply))
	assert.False(t, reply.State.GameOver)
	assert.Equal(t, "active", reply.State.Phase)
}

func TestResignLeaveAndSpectators(t *testing.T) {
	h := newHarness(t)
	id, _, black := h.seated()
	base := "/api/matches/" + id

	var joined matchdto.JoinResponse
	require.Equal(t, http.StatusOK, h.call(http.MethodPost, base+"/join", map[string]any{"playerName": "carol"}, &joined))
	var reply matchdto.Reply
	assert.Equal(t, http.StatusForbidden, h.call(http.MethodPost, base+"/reset", matchdto.ActionRequest{PlayerID: joined.PlayerID}, &reply))
	assert.Equal(t, matchdto.CodeNotAPlayer, reply.Error.Code)
	assert.Equal(t, http.StatusBadRequest, h.call(http.MethodPost, base+"/undo", matchdto.ActionRequest{}, &reply))

	require.Equal(t, http.StatusOK, h.call(http.MethodPost, base+"/leave", matchdto.ActionRequest{PlayerID: black}, &reply))
	assert.True(t, reply.State.GameOver)
	assert.Equal(t, "abandoned", reply.State.TerminationReason)
	assert.Equal(t, "white", reply.State.Winner)
	assert.Nil(t, reply.State.Players.Black)

	id2, white2, _ := h.seated()
	require.Equal(t, http.StatusOK, h.call(http.MethodPost, "/api/matches/"+id2+"/resign", matchdto.ActionRequest{PlayerID: white2}, &reply))
	assert.Equal(t, "resignation", reply.State.TerminationReason)
	assert.Equal(t, "black", reply.State.Winner)
}

func TestQueriesListPGNLegalAndBoard(t *testing.T) {
	h := newHarness(t)
	id, white, black := h.seated()
	for _, mv := range []struct{ player, san string }{{white, "f3"}, {black, "e5"}, {white, "g4"}, {black, "Qh4#"}} {
		var resp matchdto.MoveResponse
		require.Equal(t, http.StatusOK, h.call(http.MethodPost, "/api/matches/"+id+"/moves", map[string]any{"playerId": mv.player, "move": mv.san}, &resp))
	}

	var st matchdto.State
	require.Equal(t, http.StatusOK, h.call(http.MethodGet, "/api/matches/"+id, nil, &st))
	assert.Equal(t, "checkmate", st.TerminationReason)
	assert.Equal(t, "black", st.Winner)

	var list matchdto.ListResponse
	require.Equal(t, http.StatusOK, h.call(http.MethodGet, "/api/matches", nil, &list))
	require.Len(t, list.Matches, 1)
	assert.Equal(t, id, list.Matches[0].MatchID)
	assert.Equal(t, 4, list.Matches[0].Moves)
	assert.True(t, list.Matches[0].GameOver)

	resp, err := h.ts.Client().Get(h.ts.URL + "/api/matches/" + id + "/pgn")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, resp.Header.Get("Content-Type"), "chess-pgn")
	assert.Contains(t, string(body), "1. f3 e5 2. g4 Qh4# 0-1")

	resp, err = h.ts.Client().Get(h.ts.URL + "/api/matches/" + id + "/board.png?flip=1")
	require.NoError(t, err)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	_, err = png.Decode(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	id2, _, _ := h.seated()
	var legal matchdto.LegalMovesResponse
	require.Equal(t, http.StatusOK, h.call(http.MethodGet, "/api/matches/"+id2+"/legal?from=e2", nil, &legal))
	assert.ElementsMatch(t, []string{"e3", "e4"}, legal.To)
	var reply matchdto.Reply
	assert.Equal(t, http.StatusBadRequest, h.call(http.MethodGet, "/api/matches/"+id2+"/legal?from=", nil, &reply))
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	h.seated()
	var body map[string]any
	require.Equal(t, http.StatusOK, h.call(http.MethodGet, "/healthz", nil, &body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 1, body["matches"])
}

func wsURL(h *harness, id, playerID string) string {
	return "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/ws/matches/" + id + "?playerId=" + playerID
}

func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn) matchdto.Event {
	t.Helper()
	var ev matchdto.Event
	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	return ev
}

func TestWebSocketStreamsEventsAndPausesOnClose(t *testing.T) {
	h := newHarness(t)
	id, white, _ := h.seated()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(h, id, white), nil)
	require.NoError(t, err)

	first := readEvent(t, ctx, conn)
	assert.Equal(t, EventState, first.Kind)
	require.NotNil(t, first.State)
	assert.Equal(t, "active", first.State.Phase)

	var moved matchdto.MoveResponse
	require.Equal(t, http.StatusOK, h.call(http.MethodPost, "/api/matches/"+id+"/moves", map[string]any{"playerId": white, "move": "Nf3"}, &moved))
	ev := readEvent(t, ctx, conn)
	assert.Equal(t, string(match.EventMoveApplied), ev.Kind)
	assert.Equal(t, id, ev.MatchID)
	require.NotNil(t, ev.State)
	assert.Equal(t, "black", ev.State.CurrentPlayer)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))

	m, err := h.reg.Get(id)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return m.Phase() == match.PhasePaused }, 2*time.Second, 10*time.Millisecond)
	_, ok := m.RoleOf(white)
	assert.False(t, ok, "closing a seated player's socket vacates the seat")

	var rejoined matchdto.JoinResponse
	require.Equal(t, http.StatusOK, h.call(http.MethodPost, "/api/matches/"+id+"/join", map[string]any{"playerId": white}, &rejoined))
	assert.Equal(t, "white", rejoined.Color)
	assert.Equal(t, "active", rejoined.State.Phase)
}

func TestWebSocketSpectatorCloseKeepsSeats(t *testing.T) {
	h := newHarness(t)
	id, _, _ := h.seated()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(h, id, ""), nil)
	require.NoError(t, err)
	assert.Equal(t, EventState, readEvent(t, ctx, conn).Kind)
	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))

	m, err := h.reg.Get(id)
	require.NoError(t, err)
	assert.Never(t, func() bool { return m.Phase() != match.PhaseActive }, 200*time.Millisecond, 20*time.Millisecond)
}

func TestWebSocketClosingEveryStreamEmptiesMatch(t *testing.T) {
	h := newHarness(t)
	id, white, black := h.seated()
	var watcher matchdto.JoinResponse
	require.Equal(t, http.StatusOK, h.call(http.MethodPost, "/api/matches/"+id+"/join", map[string]any{"playerName": "carol"}, &watcher))
	require.Equal(t, "spectator", watcher.Color)

	m, err := h.reg.Get(id)
	require.NoError(t, err)
	require.Equal(t, 3, m.Occupants())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, pid := range []string{white, black, watcher.PlayerID} {
		conn, _, err := websocket.Dial(ctx, wsURL(h, id, pid), nil)
		require.NoError(t, err)
		assert.Equal(t, EventState, readEvent(t, ctx, conn).Kind)
		require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
	}

	require.Eventually(t, func() bool { return m.Occupants() == 0 }, 2*time.Second, 10*time.Millisecond)
	_, ok := m.RoleOf(watcher.PlayerID)
	assert.False(t, ok, "spectator leaves the roster with its last stream")
}

func TestWebSocketStreamEndsWhenMatchRemoved(t *testing.T) {
	h := newHarness(t)
	id, _, _ := h.seated()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(h, id, ""), nil)
	require.NoError(t, err)
	defer conn.CloseNow()
	readEvent(t, ctx, conn)

	require.True(t, h.reg.Remove(id))
	var ev matchdto.Event
	err = wsjson.Read(ctx, conn, &ev)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}

type manualSource struct{ ch chan matchdto.Event }

func (f *manualSource) Subscribe(context.Context, string) (<-chan matchdto.Event, func(), error) {
	return f.ch, func() {}, nil
}

func TestWebSocketLaggedStreamAsksClientToRetry(t *testing.T) {
	h := newHarness(t)
	id, _, _ := h.seated()
	src := &manualSource{ch: make(chan matchdto.Event)}
	srv := &Server{Registry: h.reg, Events: src, Messages: msgcat.MustDefault(), PingInterval: time.Hour}
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/matches/"+id, nil)
	require.NoError(t, err)
	defer conn.CloseNow()
	assert.Equal(t, EventState, readEvent(t, ctx, conn).Kind)

	close(src.ch)
	var ev matchdto.Event
	err = wsjson.Read(ctx, conn, &ev)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusTryAgainLater, websocket.CloseStatus(err))
}

func TestWebSocketUnknownMatch(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, wsURL(h, "NOPE00", ""), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRecoveryMiddleware(t *testing.T) {
	srv := &Server{Messages: msgcat.MustDefault()}
	handler := loggingMiddleware(srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var reply matchdto.Reply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.Equal(t, matchdto.CodeInternal, reply.Error.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestClassify(t *testing.T) {
	code, status := classify(registry.ErrMatchNotFound)
	assert.Equal(t, matchdto.CodeMatchNotFound, code)
	assert.Equal(t, http.StatusNotFound, status)

	code, status = classify(io.ErrUnexpectedEOF)
	assert.Equal(t, matchdto.CodeInternal, code)
	assert.Equal(t, http.StatusInternalServerError, status)

	srv := &Server{}
	de := srv.domainError(matchdto.CodeNotYourTurn)
	assert.True(t, de.Retryable)
	assert.Equal(t, matchdto.CodeNotYourTurn, de.Message, "a nil catalog falls back to the code")
}
