// Package api binds match operations to a JSON REST API and a websocket
// event stream.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/park285/netchess/internal/events"
	"github.com/park285/netchess/internal/msgcat"
	"github.com/park285/netchess/internal/obslog"
	"github.com/park285/netchess/internal/registry"
)

const maxBodyBytes = 64 << 10

type Server struct {
	Registry *registry.Registry
	Events   events.Source
	// Live, when set, serves cluster-wide listings.
	Live     *events.LiveIndex
	Messages *msgcat.Catalog
	// AllowedOrigins are websocket origin patterns besides the request host.
	AllowedOrigins []string
	PingInterval   time.Duration
	WriteTimeout   time.Duration

	presence presence
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/matches", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Get("/", s.handleList)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Post("/join", s.handleJoin)
			r.Post("/moves", s.handleMove)
			r.Get("/legal", s.handleLegal)
			r.Post("/undo", s.action(undo))
			r.Post("/reset", s.action(reset))
			r.Post("/resign", s.action(resign))
			r.Post("/leave", s.action(leave))
			r.Post("/pause", s.action(pause))
			r.Post("/resume", s.action(resume))
			r.Post("/draw/offer", s.action(offerDraw))
			r.Post("/draw/respond", s.handleDrawRespond)
			r.Get("/pgn", s.handlePGN)
			r.Get("/board.png", s.handleBoard)
		})
	})
	r.Get("/ws/matches/{id}", s.handleWatch)
	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		obslog.L().Warn("response_encode_failed", zap.Error(err))
	}
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func (s *Server) pingInterval() time.Duration {
	if s.PingInterval > 0 {
		return s.PingInterval
	}
	return 30 * time.Second
}

func (s *Server) writeTimeout() time.Duration {
	if s.WriteTimeout > 0 {
		return s.WriteTimeout
	}
	return 5 * time.Second
}
