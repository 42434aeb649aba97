package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/park285/netchess/internal/match"
	"github.com/park285/netchess/internal/obslog"
	"github.com/park285/netchess/internal/registry"
	"github.com/park285/netchess/pkg/matchdto"
)

var errBadRequest = errors.New("bad request")

type errorMapping struct {
	target error
	code   string
	status int
}

var errorTable = []errorMapping{
	{match.ErrInvalidMove, matchdto.CodeInvalidMove, http.StatusBadRequest},
	{match.ErrPromotionInvalid, matchdto.CodePromotionInvalid, http.StatusBadRequest},
	{match.ErrInvalidPlayer, matchdto.CodeBadRequest, http.StatusBadRequest},
	{registry.ErrInvalidClock, matchdto.CodeBadRequest, http.StatusBadRequest},
	{errBadRequest, matchdto.CodeBadRequest, http.StatusBadRequest},
	{registry.ErrMatchNotFound, matchdto.CodeMatchNotFound, http.StatusNotFound},
	{match.ErrNotAPlayer, matchdto.CodeNotAPlayer, http.StatusForbidden},
	{match.ErrNotYourTurn, matchdto.CodeNotYourTurn, http.StatusConflict},
	{match.ErrGameOver, matchdto.CodeGameOver, http.StatusConflict},
	{match.ErrDrawOfferConflict, matchdto.CodeDrawOfferConflict, http.StatusConflict},
	{match.ErrInvalidDrawResponse, matchdto.CodeInvalidDrawResponse, http.StatusConflict},
	{match.ErrNoMoves, matchdto.CodeNoMoves, http.StatusConflict},
	{match.ErrPaused, matchdto.CodePaused, http.StatusConflict},
	{match.ErrWaitingForOpponent, matchdto.CodeWaitingForOpponent, http.StatusConflict},
	{registry.ErrClosed, matchdto.CodeInternal, http.StatusServiceUnavailable},
}

var retryable = map[string]bool{
	matchdto.CodeNotYourTurn:        true,
	matchdto.CodePaused:             true,
	matchdto.CodeWaitingForOpponent: true,
}

func classify(err error) (string, int) {
	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			return m.code, m.status
		}
	}
	return matchdto.CodeInternal, http.StatusInternalServerError
}

// domainError builds the wire error for code with its catalog message.
func (s *Server) domainError(code string) *matchdto.DomainError {
	return &matchdto.DomainError{
		Code:      code,
		Message:   s.Messages.Text("errors."+code, nil, code),
		Retryable: retryable[code],
	}
}

// reject maps err to a status and wire error, logging server-side faults.
func (s *Server) reject(r *http.Request, err error) (int, *matchdto.DomainError) {
	code, status := classify(err)
	if status >= 500 {
		obslog.L().Error("request_failed", zap.String("path", r.URL.Path), zap.Error(err))
	} else {
		obslog.L().Debug("request_rejected", zap.String("path", r.URL.Path), zap.String("code", code), zap.Error(err))
	}
	de := s.domainError(code)
	if code == matchdto.CodeBadRequest && errors.Is(err, errBadRequest) {
		de.Message = de.Message + " " + err.Error()
	}
	return status, de
}

// fail writes a rejected Reply carrying st, the unchanged snapshot.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, st *matchdto.State) {
	status, de := s.reject(r, err)
	s.writeJSON(w, status, matchdto.Reply{OK: false, Error: de, State: st})
}
