package matchdto

// Stable error codes carried by DomainError.
const (
	CodeInvalidMove         = "INVALID_MOVE"
	CodeNotYourTurn         = "NOT_YOUR_TURN"
	CodeGameOver            = "GAME_OVER"
	CodeMatchNotFound       = "MATCH_NOT_FOUND"
	CodeNotAPlayer          = "NOT_A_PLAYER"
	CodeDrawOfferConflict   = "DRAW_OFFER_CONFLICT"
	CodeInvalidDrawResponse = "INVALID_DRAW_RESPONSE"
	CodePaused              = "PAUSED"
	CodeWaitingForOpponent  = "WAITING_FOR_OPPONENT"
	CodePromotionInvalid    = "PROMOTION_INVALID"
	CodeNoMoves             = "NO_MOVES"
	CodeBadRequest          = "BAD_REQUEST"
	CodeInternal            = "INTERNAL"
)

type DomainError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "match service error"
}
