package match

import (
	"go.uber.org/zap"

	"github.com/park285/netchess/internal/obslog"
)

// OfferDraw opens a draw offer from a seated player to the seated opponent.
func (m *Match) OfferDraw(playerID string) error {
	m.mu.Lock()
	defer m.unlockAndDispatch()

	color, ok := m.seatOf(playerID)
	if !ok {
		return ErrNotAPlayer
	}
	if m.over {
		return ErrGameOver
	}
	if m.drawOffer != nil {
		return ErrDrawOfferConflict
	}
	opponent := m.seat(color.Opponent())
	if opponent == nil {
		return ErrDrawOfferConflict
	}
	m.drawOffer = &DrawOffer{OfferedBy: playerID, OfferedTo: opponent.ID, Timestamp: m.now()}
	m.touch()
	m.emit(EventDrawOffered, DrawPayload{OfferedBy: playerID, OfferedTo: opponent.ID})
	obslog.L().Info("draw_offer", zap.String("match_id", m.id), zap.String("offered_by", playerID))
	return nil
}

// RespondDraw answers the open offer. Only the player it was offered to may
// respond; the offer is cleared either way.
func (m *Match) RespondDraw(playerID string, accept bool) error {
	m.mu.Lock()
	defer m.unlockAndDispatch()

	offer := m.drawOffer
	if offer == nil || offer.OfferedTo != playerID {
		return ErrInvalidDrawResponse
	}
	if m.over {
		m.drawOffer = nil
		return ErrGameOver
	}
	m.drawOffer = nil
	m.touch()
	if accept {
		m.finishLocked(ReasonDraw, "", DrawAgreement)
		return nil
	}
	m.emit(EventDrawDeclined, DrawPayload{OfferedBy: offer.OfferedBy, OfferedTo: offer.OfferedTo})
	obslog.L().Info("draw_declined", zap.String("match_id", m.id), zap.String("player_id", playerID))
	return nil
}
