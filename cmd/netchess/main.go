package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/park285/netchess/internal/client"
	"github.com/park285/netchess/internal/config"
	"github.com/park285/netchess/internal/msgcat"
	"github.com/park285/netchess/internal/presenter"
	"github.com/park285/netchess/pkg/matchdto"
)

type app struct {
	client   *client.Client
	view     *presenter.Formatter
	out      io.Writer
	playerID string
	name     string
	flip     bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg := config.LoadClient()

	fs := flag.NewFlagSet("netchess", flag.ContinueOnError)
	fs.SetOutput(stderr)
	server := fs.String("server", cfg.ServerURL, "server base URL")
	playerID := fs.String("player", cfg.PlayerID, "player id returned by create or join")
	name := fs.String("name", cfg.PlayerName, "display name")
	flip := fs.Bool("flip", false, "draw the board from black's side")
	noColor := fs.Bool("no-color", color.NoColor, "disable ANSI colors")
	fs.Usage = func() { fmt.Fprint(stderr, helpText) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprint(stderr, helpText)
		return 2
	}

	a := &app{
		client:   client.New(*server, client.WithTimeout(cfg.Timeout), client.WithRetry(2)),
		view:     presenter.NewFormatter(msgcat.MustDefault(), !*noColor),
		out:      stdout,
		playerID: strings.TrimSpace(*playerID),
		name:     strings.TrimSpace(*name),
		flip:     *flip,
	}
	if err := a.dispatch(ctx, fs.Arg(0), fs.Args()[1:]); err != nil {
		a.report(stderr, err)
		return 1
	}
	return 0
}

var errUsage = errors.New("usage")

func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "create":
		return a.create(ctx, args)
	case "join":
		return a.join(ctx, args)
	case "move", "mv":
		return a.move(ctx, args)
	case "legal":
		if len(args) != 2 {
			return errUsage
		}
		to, err := a.client.LegalMoves(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s: %s\n", strings.ToLower(args[1]), strings.Join(to, " "))
		return nil
	case "undo", "reset", "resign", "leave", "pause", "resume":
		if len(args) != 1 {
			return errUsage
		}
		return a.action(ctx, args[0], cmd)
	case "draw":
		return a.draw(ctx, args)
	case "state", "show":
		if len(args) != 1 {
			return errUsage
		}
		st, err := a.client.State(ctx, args[0])
		if err != nil {
			return err
		}
		a.printState(st)
		return nil
	case "list", "ls":
		return a.list(ctx, args)
	case "pgn":
		if len(args) != 1 {
			return errUsage
		}
		pgn, err := a.client.PGN(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprint(a.out, pgn)
		return nil
	case "board":
		return a.board(ctx, args)
	case "watch":
		if len(args) != 1 {
			return errUsage
		}
		return a.watch(ctx, args[0])
	case "help":
		fmt.Fprint(a.out, helpText)
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

// create [clockSeconds] [white|black]
func (a *app) create(ctx context.Context, args []string) error {
	req := matchdto.CreateMatchRequest{PlayerName: a.name}
	for _, arg := range args {
		if n, err := strconv.Atoi(arg); err == nil {
			req.ClockSeconds = &n
			continue
		}
		req.Color = strings.ToLower(arg)
	}
	resp, err := a.client.CreateMatch(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, a.view.Created(resp))
	a.playerID = resp.PlayerID
	a.printState(resp.State)
	return nil
}

// join <match> [white|black]
func (a *app) join(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errUsage
	}
	req := matchdto.JoinRequest{PlayerName: a.name, PlayerID: a.playerID}
	if len(args) == 2 {
		req.Color = strings.ToLower(args[1])
	}
	resp, err := a.client.Join(ctx, args[0], req)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, a.view.Joined(args[0], resp))
	a.playerID = resp.PlayerID
	a.printState(resp.State)
	return nil
}

// move <match> <san> | <match> <from> <to> [promotion]
func (a *app) move(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	req, err := parseMove(args[1:])
	if err != nil {
		return err
	}
	req.PlayerID = a.playerID
	resp, err := a.client.Move(ctx, args[0], req)
	if err != nil {
		return err
	}
	a.printState(resp.State)
	return nil
}

func parseMove(args []string) (matchdto.MoveRequest, error) {
	switch len(args) {
	case 1:
		arg := strings.TrimSpace(args[0])
		// "e2e4" and "e7e8q" are coordinate moves; anything else is SAN.
		if len(arg) == 4 || len(arg) == 5 {
			from, ferr := matchdto.ParseAlgebraic(arg[:2])
			to, terr := matchdto.ParseAlgebraic(arg[2:4])
			if ferr == nil && terr == nil {
				return matchdto.MoveRequest{From: &from, To: &to, Promotion: arg[4:]}, nil
			}
		}
		return matchdto.MoveRequest{Move: arg}, nil
	case 2, 3:
		from, err := matchdto.ParseAlgebraic(args[0])
		if err != nil {
			return matchdto.MoveRequest{}, err
		}
		to, err := matchdto.ParseAlgebraic(args[1])
		if err != nil {
			return matchdto.MoveRequest{}, err
		}
		req := matchdto.MoveRequest{From: &from, To: &to}
		if len(args) == 3 {
			req.Promotion = args[2]
		}
		return req, nil
	default:
		return matchdto.MoveRequest{}, errUsage
	}
}

func (a *app) action(ctx context.Context, matchID, action string) error {
	st, err := a.client.Action(ctx, matchID, action, a.playerID)
	if err != nil {
		return err
	}
	a.printState(st)
	return nil
}

// draw offer|accept|decline <match>
func (a *app) draw(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	var (
		st  *matchdto.State
		err error
	)
	switch args[0] {
	case "offer":
		st, err = a.client.OfferDraw(ctx, args[1], a.playerID)
	case "accept", "decline":
		st, err = a.client.RespondDraw(ctx, args[1], a.playerID, args[0] == "accept")
	default:
		return errUsage
	}
	if err != nil {
		return err
	}
	a.printState(st)
	return nil
}

func (a *app) list(ctx context.Context, args []string) error {
	cluster := len(args) == 1 && args[0] == "--cluster"
	if len(args) > 0 && !cluster {
		return errUsage
	}
	matches, err := a.client.List(ctx, cluster)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		fmt.Fprintln(a.out, "no matches")
		return nil
	}
	for _, m := range matches {
		fmt.Fprintf(a.out, "%-8s %-10s %-12s vs %-12s moves=%d\n", m.MatchID, m.Phase, orDash(m.White), orDash(m.Black), m.Moves)
	}
	return nil
}

// board <match> <file.png>
func (a *app) board(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	data, err := a.client.BoardPNG(ctx, args[0], a.flip)
	if err != nil {
		return err
	}
	if err := os.WriteFile(args[1], data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", args[1], err)
	}
	fmt.Fprintf(a.out, "wrote %s (%d bytes)\n", args[1], len(data))
	return nil
}

func (a *app) watch(ctx context.Context, matchID string) error {
	w := a.client.Watch(matchID, a.playerID,
		client.WithPlayerName(a.name),
		client.OnEvent(func(ev matchdto.Event) {
			if line := a.view.Event(ev); line != "" {
				fmt.Fprintln(a.out, line)
			}
			if ev.State != nil && redraws(ev.Kind) {
				a.printState(ev.State)
			}
		}),
		client.OnState(func(state client.WatchState, err error) {
			if state == client.WatchReconnecting && err != nil {
				fmt.Fprintf(a.out, "connection lost (%v), reconnecting\n", err)
			}
		}),
	)
	err := w.Run(ctx)
	if errors.Is(err, client.ErrMatchClosed) {
		fmt.Fprintln(a.out, "match closed")
		return nil
	}
	return err
}

func redraws(kind string) bool {
	switch kind {
	case "state", "move_applied", "move_undone", "game_reset", "game_started":
		return true
	}
	return false
}

func (a *app) printState(st *matchdto.State) { a.printStateTo(a.out, st) }

func (a *app) printStateTo(w io.Writer, st *matchdto.State) {
	if st == nil {
		return
	}
	flip := a.flip
	if st.Players.Black != nil && st.Players.Black.ID == a.playerID && a.playerID != "" {
		flip = !flip
	}
	fmt.Fprintln(w, a.view.Status(st, flip))
}

func (a *app) report(w io.Writer, err error) {
	if errors.Is(err, errUsage) {
		fmt.Fprintln(w, err)
		fmt.Fprint(w, helpText)
		return
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Domain != nil {
		fmt.Fprintln(w, a.view.Rejected(apiErr.Domain))
		a.printStateTo(w, apiErr.State)
		return
	}
	fmt.Fprintf(w, "error: %v\n", err)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

const helpText = `usage: netchess [flags] <command> [args]

commands:
  create [clockSeconds] [white|black]   start a match
  join <match> [white|black]            take a seat or spectate
  move <match> <e2e4|Nf3|e2 e4 [q]>     play a move
  legal <match> <square>                list destinations from square
  undo|reset|resign|leave <match>
  pause|resume <match>
  draw offer|accept|decline <match>
  state <match>                         show the board
  list [--cluster]                      list matches
  pgn <match>                           print the game record
  board <match> <file.png>              save the board image
  watch <match>                         follow events live

flags:
  -server URL   (NETCHESS_SERVER)
  -player ID    (NETCHESS_PLAYER)
  -name NAME    (NETCHESS_NAME)
  -flip
  -no-color
`
