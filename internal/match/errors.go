package match

import "errors"

var (
	ErrInvalidMove         = errors.New("invalid move")
	ErrNotYourTurn         = errors.New("not your turn")
	ErrGameOver            = errors.New("game is over")
	ErrNotAPlayer          = errors.New("not a seated player")
	ErrDrawOfferConflict   = errors.New("draw offer conflict")
	ErrInvalidDrawResponse = errors.New("invalid draw response")
	ErrPaused              = errors.New("match is paused")
	ErrWaitingForOpponent  = errors.New("waiting for opponent")
	ErrPromotionInvalid    = errors.New("invalid promotion choice")
	ErrNoMoves             = errors.New("no moves to undo")
	ErrInvalidPlayer       = errors.New("player id required")
)
