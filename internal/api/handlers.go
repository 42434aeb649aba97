package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/park285/netchess/internal/board"
	"github.com/park285/netchess/internal/match"
	"github.com/park285/netchess/internal/obslog"
	"github.com/park285/netchess/internal/render"
	"github.com/park285/netchess/pkg/matchdto"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "matches": s.Registry.Len()})
}

func (s *Server) lookup(r *http.Request) (*match.Match, error) {
	return s.Registry.Get(chi.URLParam(r, "id"))
}

// parseColor accepts an empty string as "no preference".
func parseColor(v string) (board.Color, error) {
	if strings.TrimSpace(v) == "" {
		return "", nil
	}
	c, ok := board.ParseColor(v)
	if !ok {
		return "", fmt.Errorf("%w: unknown color %q", errBadRequest, v)
	}
	return c, nil
}

func requirePlayer(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: playerId is required", errBadRequest)
	}
	return nil
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req matchdto.CreateMatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	color, err := parseColor(req.Color)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	created, err := s.Registry.Create(req.PlayerName, req.ClockSeconds, color)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	s.writeJSON(w, http.StatusCreated, matchdto.CreateMatchResponse{
		MatchID:  created.Match.ID(),
		PlayerID: created.PlayerID,
		Color:    string(created.Role),
		State:    created.Match.Snapshot(),
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("scope") == "cluster" && s.Live != nil {
		list, err := s.Live.List(r.Context())
		if err != nil {
			s.fail(w, r, err, nil)
			return
		}
		s.writeJSON(w, http.StatusOK, matchdto.ListResponse{Matches: list})
		return
	}
	s.writeJSON(w, http.StatusOK, matchdto.ListResponse{Matches: s.Registry.List()})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	m, err := s.lookup(r)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	s.writeJSON(w, http.StatusOK, m.Snapshot())
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req matchdto.JoinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	color, err := parseColor(req.Color)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	joined, err := s.Registry.Join(chi.URLParam(r, "id"), req.PlayerID, req.PlayerName, color)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	s.writeJSON(w, http.StatusOK, matchdto.JoinResponse{
		PlayerID: joined.PlayerID,
		Color:    string(joined.Role),
		State:    joined.Match.Snapshot(),
	})
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	m, err := s.lookup(r)
	if err != nil {
		status, de := s.reject(r, err)
		s.writeJSON(w, status, matchdto.MoveResponse{Error: de})
		return
	}
	var req matchdto.MoveRequest
	if err = decodeJSON(w, r, &req); err == nil {
		err = requirePlayer(req.PlayerID)
	}

	var rec match.MoveRecord
	if err == nil {
		switch {
		case strings.TrimSpace(req.Move) != "":
			rec, err = m.MoveSAN(req.PlayerID, req.Move)
		case req.From != nil && req.To != nil:
			from := board.Square{Row: req.From.Row, Col: req.From.Col}
			to := board.Square{Row: req.To.Row, Col: req.To.Col}
			rec, err = m.Move(req.PlayerID, from, to, req.Promotion)
		default:
			err = fmt.Errorf("%w: from and to, or move, are required", errBadRequest)
		}
	}
	if err != nil {
		status, de := s.reject(r, err)
		s.writeJSON(w, status, matchdto.MoveResponse{Accepted: false, Error: de, State: m.Snapshot()})
		return
	}
	dto := match.RecordDTO(rec)
	s.writeJSON(w, http.StatusOK, matchdto.MoveResponse{Accepted: true, MoveRecord: &dto, State: m.Snapshot()})
}

func (s *Server) handleLegal(w http.ResponseWriter, r *http.Request) {
	m, err := s.lookup(r)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	from, err := board.ParseSquare(r.URL.Query().Get("from"))
	if err != nil {
		s.fail(w, r, fmt.Errorf("%w: %v", errBadRequest, err), nil)
		return
	}
	resp := matchdto.LegalMovesResponse{From: from.String(), To: []string{}}
	for _, sq := range m.LegalMoves(from) {
		resp.To = append(resp.To, sq.String())
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// actionFunc runs one player-initiated operation that needs only the
// player id.
type actionFunc func(m *match.Match, playerID string) error

func undo(m *match.Match, playerID string) error {
	_, err := m.Undo(playerID)
	return err
}

func leave(m *match.Match, playerID string) error {
	_, err := m.Leave(playerID)
	return err
}

func reset(m *match.Match, playerID string) error     { return m.Reset(playerID) }
func resign(m *match.Match, playerID string) error    { return m.Resign(playerID) }
func pause(m *match.Match, playerID string) error     { return m.Pause(playerID) }
func resume(m *match.Match, playerID string) error    { return m.Resume(playerID) }
func offerDraw(m *match.Match, playerID string) error { return m.OfferDraw(playerID) }

func (s *Server) action(fn actionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := s.lookup(r)
		if err != nil {
			s.fail(w, r, err, nil)
			return
		}
		var req matchdto.ActionRequest
		if err = decodeJSON(w, r, &req); err == nil {
			err = requirePlayer(req.PlayerID)
		}
		if err == nil {
			err = fn(m, req.PlayerID)
		}
		if err != nil {
			s.fail(w, r, err, m.Snapshot())
			return
		}
		s.writeJSON(w, http.StatusOK, matchdto.Reply{OK: true, State: m.Snapshot()})
	}
}

func (s *Server) handleDrawRespond(w http.ResponseWriter, r *http.Request) {
	m, err := s.lookup(r)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	var req matchdto.DrawResponseRequest
	if err = decodeJSON(w, r, &req); err == nil {
		err = requirePlayer(req.PlayerID)
	}
	if err == nil {
		err = m.RespondDraw(req.PlayerID, req.Accept)
	}
	if err != nil {
		s.fail(w, r, err, m.Snapshot())
		return
	}
	s.writeJSON(w, http.StatusOK, matchdto.Reply{OK: true, State: m.Snapshot()})
}

func (s *Server) handlePGN(w http.ResponseWriter, r *http.Request) {
	m, err := s.lookup(r)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	w.Header().Set("Content-Type", "application/x-chess-pgn; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", m.ID()+".pgn"))
	_, _ = w.Write([]byte(m.PGN()))
}

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	m, err := s.lookup(r)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	q := r.URL.Query()
	flip, _ := strconv.ParseBool(q.Get("flip"))
	if side, ok := board.ParseColor(q.Get("perspective")); ok {
		flip = side == board.Black
	}
	data, err := render.PNG(r.Context(), m.Snapshot(), render.Options{Flip: flip, NoHighlight: q.Get("highlight") == "0"})
	if err != nil {
		obslog.L().Warn("board_render_failed", zap.String("match_id", m.ID()), zap.Error(err))
		s.fail(w, r, err, nil)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}
