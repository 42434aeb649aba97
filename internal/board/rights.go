package board

// SideRights holds one color's castling flags.
type SideRights struct {
	Kingside  bool `json:"kingside"`
	Queenside bool `json:"queenside"`
}

// CastlingRights is keyed by color. It is a value type, so assignment is a deep copy.
type CastlingRights struct {
	White SideRights `json:"white"`
	Black SideRights `json:"black"`
}

// InitialRights grants every castling right.
func InitialRights() CastlingRights {
	return CastlingRights{
		White: SideRights{Kingside: true, Queenside: true},
		Black: SideRights{Kingside: true, Queenside: true},
	}
}

// For returns color's rights.
func (r CastlingRights) For(color Color) SideRights {
	if color == White {
		return r.White
	}
	return r.Black
}

// Side returns a pointer to color's rights for in-place revocation.
func (r *CastlingRights) Side(color Color) *SideRights {
	if color == White {
		return &r.White
	}
	return &r.Black
}

// RevokeRookSide clears the right belonging to the rook home column col.
func (r *CastlingRights) RevokeRookSide(color Color, col int) {
	s := r.Side(color)
	switch col {
	case 0:
		s.Queenside = false
	case Size - 1:
		s.Kingside = false
	}
}

// FEN renders the rights in FEN form ("KQkq", "-").
func (r CastlingRights) FEN() string {
	out := ""
	if r.White.Kingside {
		out += "K"
	}
	if r.White.Queenside {
		out += "Q"
	}
	if r.Black.Kingside {
		out += "k"
	}
	if r.Black.Queenside {
		out += "q"
	}
	if out == "" {
		return "-"
	}
	return out
}
