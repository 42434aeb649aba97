// Package presenter turns match snapshots and events into terminal text for
// the command-line client.
package presenter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/park285/netchess/internal/msgcat"
	"github.com/park285/netchess/pkg/matchdto"
)

const recentMovesLimit = 6

// Formatter renders DTOs with catalog messages. Colored output uses ANSI
// backgrounds and unicode pieces; plain output uses FEN letters.
type Formatter struct {
	cat     *msgcat.Catalog
	colored bool

	light    *color.Color
	dark     *color.Color
	lastMove *color.Color
	alert    *color.Color
	notice   *color.Color
}

func NewFormatter(cat *msgcat.Catalog, colored bool) *Formatter {
	return &Formatter{
		cat:      cat,
		colored:  colored,
		light:    newColor(colored, color.BgHiWhite, color.FgBlack),
		dark:     newColor(colored, color.BgGreen, color.FgBlack),
		lastMove: newColor(colored, color.BgHiYellow, color.FgBlack),
		alert:    newColor(colored, color.FgRed, color.Bold),
		notice:   newColor(colored, color.FgCyan),
	}
}

func (f *Formatter) Created(resp *matchdto.CreateMatchResponse) string {
	data := map[string]any{"matchId": resp.MatchID, "color": resp.Color, "playerId": resp.PlayerID}
	return f.cat.Text("cli.created", data, fmt.Sprintf("Match %s created.", resp.MatchID))
}

func (f *Formatter) Joined(matchID string, resp *matchdto.JoinResponse) string {
	data := map[string]any{"matchId": matchID, "role": resp.Color, "playerId": resp.PlayerID}
	return f.cat.Text("cli.joined", data, fmt.Sprintf("Joined match %s.", matchID))
}

func (f *Formatter) Rejected(de *matchdto.DomainError) string {
	if de == nil {
		return ""
	}
	msg := de.Error()
	return f.alert.Sprint(f.cat.Text("cli.rejected", map[string]any{"message": msg}, "Rejected: "+msg))
}

// Status is the board followed by turn, clock, recent moves, captures and
// any pending draw offer.
func (f *Formatter) Status(st *matchdto.State, flip bool) string {
	if st == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s  %s vs %s", st.MatchID, playerName(st.Players.White), playerName(st.Players.Black)))
	if n := len(st.Spectators); n > 0 {
		sb.WriteString(fmt.Sprintf("  (+%d watching)", n))
	}
	sb.WriteString("\n")
	sb.WriteString(f.Board(st, flip))
	sb.WriteString("\n")
	sb.WriteString(f.turnLine(st))
	sb.WriteString("\n")

	if st.ClockSeconds > 0 {
		sb.WriteString(f.cat.Text("cli.clock", map[string]any{
			"white": formatClock(st.TimeLeft.White),
			"black": formatClock(st.TimeLeft.Black),
		}, ""))
		sb.WriteString("\n")
	}
	if len(st.MoveHistory) > 0 {
		sb.WriteString(f.cat.Text("cli.moves", map[string]any{"moves": formatRecentMoves(st.MoveHistory)}, ""))
		sb.WriteString("\n")
	}
	if line := f.capturedLine(st.CapturedPieces); line != "" {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	if o := st.DrawOffer; o != nil && o.Active && !st.GameOver {
		sb.WriteString(f.notice.Sprint(f.cat.Text("cli.draw_offer", map[string]any{"color": seatColor(st, o.OfferedBy)}, "Draw offered.")))
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (f *Formatter) turnLine(st *matchdto.State) string {
	switch {
	case st.GameOver:
		return f.alert.Sprint(f.Outcome(st))
	case st.Phase == "setup":
		return f.cat.Text("cli.waiting", nil, "Waiting for an opponent.")
	case st.Phase == "paused":
		return f.notice.Sprint(f.cat.Text("cli.paused", nil, "Paused."))
	}
	line := f.cat.Text("cli.turn", map[string]any{"color": st.CurrentPlayer, "check": st.Status == "check"}, st.CurrentPlayer+" to move.")
	if st.Status == "check" {
		return f.alert.Sprint(line)
	}
	return line
}

// Outcome describes how a finished match ended.
func (f *Formatter) Outcome(st *matchdto.State) string {
	reason := st.TerminationReason
	if st.DrawKind != "" && st.DrawKind != "agreement" {
		reason = st.DrawKind
	}
	reason = strings.ReplaceAll(reason, "_", " ")
	return f.cat.Text("events.game_ended", map[string]any{"reason": reason, "winner": st.Winner}, "Game over: "+reason)
}

// Event renders one stream event as a notification line; ticks and the
// initial snapshot produce "".
func (f *Formatter) Event(ev matchdto.Event) string {
	switch ev.Kind {
	case "", "state", "clock_tick":
		return ""
	}
	data := eventData(ev.Payload)
	if ev.Kind == "game_ended" && ev.State != nil {
		return f.alert.Sprint(f.Outcome(ev.State))
	}
	return f.cat.Text("events."+ev.Kind, data, ev.Kind)
}

// eventData flattens a payload into the fields the event templates use.
// Payloads arrive either typed or as decoded JSON; both go through JSON.
func eventData(payload any) map[string]any {
	data := map[string]any{"name": "", "role": "", "color": "", "san": "", "reason": "", "winner": "", "cause": ""}
	if payload == nil {
		return data
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return data
	}
	var p struct {
		Name   string `json:"name"`
		Role   string `json:"role"`
		SAN    string `json:"san"`
		UCI    string `json:"uci"`
		Reason string `json:"reason"`
		Winner string `json:"winner"`
		Cause  string `json:"cause"`
		Piece  struct {
			Color string `json:"color"`
		} `json:"piece"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return data
	}
	data["name"] = firstNonEmpty(p.Name, "someone")
	data["role"] = p.Role
	data["color"] = p.Piece.Color
	data["san"] = firstNonEmpty(p.SAN, p.UCI)
	data["reason"] = p.Reason
	data["winner"] = p.Winner
	data["cause"] = p.Cause
	return data
}

func (f *Formatter) capturedLine(c matchdto.CapturedPieces) string {
	white, black := formatCaptured(c.White), formatCaptured(c.Black)
	if white == "" && black == "" {
		return ""
	}
	return f.cat.Text("cli.captured", map[string]any{"white": firstNonEmpty(white, "-"), "black": firstNonEmpty(black, "-")}, "")
}

func formatCaptured(pieces []matchdto.Piece) string {
	tokens := make([]string, 0, len(pieces))
	for _, p := range pieces {
		if l := letters[p.Type]; l != "" {
			tokens = append(tokens, strings.ToUpper(l))
		}
	}
	return strings.Join(tokens, " ")
}

// formatRecentMoves numbers the last few plies, e.g. "… 3. Bc4 Nf6 4. Ng5".
func formatRecentMoves(history []matchdto.MoveRecord) string {
	start := 0
	if len(history) > recentMovesLimit {
		start = len(history) - recentMovesLimit
		if start%2 == 1 {
			start++
		}
	}
	var parts []string
	if start > 0 {
		parts = append(parts, "…")
	}
	for i := start; i < len(history); i++ {
		san := firstNonEmpty(history[i].SAN, history[i].UCI)
		if i%2 == 0 {
			parts = append(parts, fmt.Sprintf("%d. %s", i/2+1, san))
		} else {
			parts = append(parts, san)
		}
	}
	return strings.Join(parts, " ")
}

func formatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

func seatColor(st *matchdto.State, playerID string) string {
	switch {
	case st.Players.White != nil && st.Players.White.ID == playerID:
		return "white"
	case st.Players.Black != nil && st.Players.Black.ID == playerID:
		return "black"
	default:
		return "someone"
	}
}

func playerName(p *matchdto.PlayerInfo) string {
	if p == nil || p.Name == "" {
		return "(empty)"
	}
	return p.Name
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
