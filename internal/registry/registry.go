// Package registry maps match ids to live matches, drives their clocks and
// reclaims matches that have been empty or idle for too long.
package registry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/netchess/internal/board"
	"github.com/park285/netchess/internal/match"
	"github.com/park285/netchess/internal/obslog"
	"github.com/park285/netchess/pkg/matchdto"
)

var (
	ErrMatchNotFound = errors.New("match not found")
	ErrInvalidClock  = errors.New("clock seconds must be >= 0")
	ErrClosed        = errors.New("registry closed")
)

const maxIDAttempts = 8

type Options struct {
	DefaultClockSeconds int
	EmptyGrace          time.Duration
	IdleTimeout         time.Duration
	DrawOfferTTL        time.Duration
	// TickInterval drives each match clock; zero leaves ticking to the caller.
	TickInterval time.Duration
	Now          func() time.Time
}

func (o Options) withDefaults() Options {
	if o.EmptyGrace <= 0 {
		o.EmptyGrace = 5 * time.Minute
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = time.Hour
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Hooks are notified when matches enter or leave the registry. Both run
// outside any match lock.
type Hooks struct {
	Created func(m *match.Match)
	Removed func(id string)
}

type entry struct {
	m           *match.Match
	stopTicker  context.CancelFunc
	unsubscribe []func()
	// emptySince is unix nanos of the moment the match lost its last
	// occupant; zero while anyone is present.
	emptySince atomic.Int64
}

type Registry struct {
	mu        sync.RWMutex
	matches   map[string]*entry
	opts      Options
	observers []match.Observer
	hooks     Hooks
	closed    bool

	wg sync.WaitGroup
}

// New creates an empty registry. observers are attached to every match it
// creates.
func New(opts Options, hooks Hooks, observers ...match.Observer) *Registry {
	return &Registry{
		matches:   make(map[string]*entry),
		opts:      opts.withDefaults(),
		observers: observers,
		hooks:     hooks,
	}
}

// Created describes a freshly created or joined seat.
type Created struct {
	Match    *match.Match
	PlayerID string
	Name     string
	Role     match.Role
}

// Create opens a new match and seats its creator. clockSeconds nil selects
// the configured default; zero disables the clock.
func (r *Registry) Create(playerName string, clockSeconds *int, color board.Color) (Created, error) {
	secs := r.opts.DefaultClockSeconds
	if clockSeconds != nil {
		secs = *clockSeconds
	}
	if secs < 0 {
		return Created{}, fmt.Errorf("%w: %d", ErrInvalidClock, secs)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Created{}, ErrClosed
	}
	id, err := r.newIDLocked()
	if err != nil {
		r.mu.Unlock()
		return Created{}, err
	}
	m := match.New(id, secs, match.WithNow(r.opts.Now), match.WithDrawOfferTTL(r.opts.DrawOfferTTL))
	e := &entry{m: m}
	for _, o := range r.observers {
		e.unsubscribe = append(e.unsubscribe, m.Subscribe(o))
	}
	e.unsubscribe = append(e.unsubscribe, m.Subscribe(r.occupancyObserver(e)))
	r.matches[id] = e
	r.startTickerLocked(e)
	r.mu.Unlock()

	if r.hooks.Created != nil {
		r.hooks.Created(m)
	}

	playerID := uuid.NewString()
	name := displayName(playerName)
	role, err := m.AddPlayer(playerID, name, color)
	if err != nil {
		r.Remove(id)
		return Created{}, err
	}
	obslog.L().Info("match_create",
		zap.String("match_id", id),
		zap.String("player_id", playerID),
		zap.String("role", string(role)),
		zap.Int("clock_seconds", secs),
	)
	return Created{Match: m, PlayerID: playerID, Name: name, Role: role}, nil
}

// Join seats playerID (a new id when empty) in match id.
func (r *Registry) Join(id, playerID, playerName string, color board.Color) (Created, error) {
	m, err := r.Get(id)
	if err != nil {
		return Created{}, err
	}
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		playerID = uuid.NewString()
	}
	name := displayName(playerName)
	role, err := m.AddPlayer(playerID, name, color)
	if err != nil {
		return Created{}, err
	}
	obslog.L().Info("match_join",
		zap.String("match_id", m.ID()),
		zap.String("player_id", playerID),
		zap.String("role", string(role)),
	)
	return Created{Match: m, PlayerID: playerID, Name: name, Role: role}, nil
}

// Get looks a match up by id; ids are case-insensitive.
func (r *Registry) Get(id string) (*match.Match, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.matches[normalizeID(id)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, id)
	}
	return e.m, nil
}

// List summarizes every live match, oldest first.
func (r *Registry) List() []matchdto.Summary {
	r.mu.RLock()
	ms := make([]*match.Match, 0, len(r.matches))
	for _, e := range r.matches {
		ms = append(ms, e.m)
	}
	r.mu.RUnlock()

	out := make([]matchdto.Summary, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Summary())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].MatchID < out[j].MatchID
	})
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.matches)
}

// Remove drops a match and stops its clock. It reports whether id existed.
func (r *Registry) Remove(id string) bool {
	id = normalizeID(id)
	r.mu.Lock()
	e, ok := r.matches[id]
	if ok {
		delete(r.matches, id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	r.release(id, e)
	return true
}

func (r *Registry) release(id string, e *entry) {
	if e.stopTicker != nil {
		e.stopTicker()
	}
	for _, cancel := range e.unsubscribe {
		cancel()
	}
	if r.hooks.Removed != nil {
		r.hooks.Removed(id)
	}
}

// Sweep reclaims matches empty for longer than EmptyGrace or idle for
// longer than IdleTimeout, returning the reclaimed ids.
func (r *Registry) Sweep() []string {
	now := r.opts.Now()

	r.mu.RLock()
	candidates := make(map[string]*entry, len(r.matches))
	for id, e := range r.matches {
		candidates[id] = e
	}
	r.mu.RUnlock()

	var reclaimed []string
	for id, e := range candidates {
		reason := ""
		if since := e.emptySince.Load(); since != 0 && now.Sub(time.Unix(0, since)) >= r.opts.EmptyGrace {
			reason = "empty"
		} else if now.Sub(e.m.LastActivity()) >= r.opts.IdleTimeout {
			reason = "idle"
		}
		if reason == "" {
			continue
		}
		r.mu.Lock()
		cur, ok := r.matches[id]
		if ok && cur == e {
			delete(r.matches, id)
		}
		r.mu.Unlock()
		if !ok || cur != e {
			continue
		}
		r.release(id, e)
		reclaimed = append(reclaimed, id)
		obslog.L().Info("match_reclaim", zap.String("match_id", id), zap.String("reason", reason))
	}
	sort.Strings(reclaimed)
	return reclaimed
}

// RunJanitor sweeps every interval until ctx is done.
func (r *Registry) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				r.Sweep()
			}
		}
	}()
}

// Close stops every ticker and drops all matches, then waits for the
// registry's goroutines. Cancel the janitor's context before calling it.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	all := r.matches
	r.matches = make(map[string]*entry)
	r.mu.Unlock()

	for id, e := range all {
		r.release(id, e)
	}
	r.wg.Wait()
}

func (r *Registry) startTickerLocked(e *entry) {
	if r.opts.TickInterval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.stopTicker = cancel
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		t := time.NewTicker(r.opts.TickInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				e.m.Tick()
			}
		}
	}()
}

// occupancyObserver tracks when e's match becomes empty. It runs under the
// match lock and only touches e.
func (r *Registry) occupancyObserver(e *entry) match.Observer {
	return match.ObserverFunc(func(ev match.Event) {
		if ev.State == nil {
			return
		}
		if occupants(ev.State) > 0 {
			e.emptySince.Store(0)
			return
		}
		e.emptySince.CompareAndSwap(0, ev.At.UnixNano())
	})
}

func occupants(st *matchdto.State) int {
	n := len(st.Spectators)
	if st.Players.White != nil {
		n++
	}
	if st.Players.Black != nil {
		n++
	}
	return n
}

func (r *Registry) newIDLocked() (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id, err := codeGen()
		if err != nil {
			return "", fmt.Errorf("generate match id: %w", err)
		}
		if _, taken := r.matches[id]; !taken {
			return id, nil
		}
	}
	return "", errors.New("generate match id: too many collisions")
}

const (
	codeLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength  = 6
)

// codeByteLimit is the largest multiple of len(codeLetters) below 256;
// bytes at or above it are discarded so every letter is equally likely.
const codeByteLimit = 256 - 256%len(codeLetters)

// codeGen returns 6 upper-case alphanumerics, uniformly distributed.
func codeGen() (string, error) {
	return codeFrom(rand.Reader)
}

func codeFrom(src io.Reader) (string, error) {
	out := make([]byte, 0, codeLength)
	buf := make([]byte, codeLength*2)
	for len(out) < codeLength {
		if _, err := io.ReadFull(src, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= codeByteLimit {
				continue
			}
			out = append(out, codeLetters[int(b)%len(codeLetters)])
			if len(out) == codeLength {
				break
			}
		}
	}
	return string(out), nil
}

func normalizeID(id string) string { return strings.ToUpper(strings.TrimSpace(id)) }

func displayName(name string) string {
	if s := strings.TrimSpace(name); s != "" {
		return s
	}
	return petname.Generate(2, "-")
}
