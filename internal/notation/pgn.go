package notation

import (
	"fmt"
	"strings"
	"time"
)

// Game is what a PGN export needs to know about a match.
type Game struct {
	MatchID      string
	White        string
	Black        string
	Date         time.Time
	ClockSeconds int
	Winner       string // "white", "black" or "" for no winner
	Reason       string // termination reason, "" while in progress
	Moves        []string
}

// ResultToken maps the outcome to a PGN result.
func ResultToken(winner, reason string) string {
	switch strings.ToLower(strings.TrimSpace(winner)) {
	case "white":
		return "1-0"
	case "black":
		return "0-1"
	}
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case "draw", "stalemate":
		return "1/2-1/2"
	default:
		return "*"
	}
}

// PGN renders g with a seven tag roster plus termination details.
func PGN(g Game) string {
	result := ResultToken(g.Winner, g.Reason)
	date := g.Date
	if date.IsZero() {
		date = time.Now()
	}

	var b strings.Builder
	b.WriteString("[Event \"netchess match\"]\n")
	b.WriteString(fmt.Sprintf("[Site \"%s\"]\n", sanitizePGN(g.MatchID)))
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString("[Round \"-\"]\n")
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", nameOrUnknown(g.White)))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", nameOrUnknown(g.Black)))
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n", result))
	if g.ClockSeconds > 0 {
		b.WriteString(fmt.Sprintf("[TimeControl \"%d\"]\n", g.ClockSeconds))
	} else {
		b.WriteString("[TimeControl \"-\"]\n")
	}
	if t := termination(g.Reason); t != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", t))
	}
	b.WriteString("\n")

	for i := 0; i < len(g.Moves); i += 2 {
		b.WriteString(fmt.Sprintf("%d. %s", i/2+1, strings.TrimSpace(g.Moves[i])))
		if i+1 < len(g.Moves) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(g.Moves[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(result)
	b.WriteString("\n")
	return b.String()
}

func termination(reason string) string {
	switch reason {
	case "", "none":
		return ""
	case "timeout":
		return "time forfeit"
	case "abandoned":
		return "abandoned"
	default:
		return "normal"
	}
}

func nameOrUnknown(s string) string {
	if v := sanitizePGN(s); v != "" {
		return v
	}
	return "?"
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
