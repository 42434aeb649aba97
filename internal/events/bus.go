package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/netchess/internal/match"
	"github.com/park285/netchess/internal/obslog"
	"github.com/park285/netchess/pkg/matchdto"
)

// kindClosed marks the last message on a match channel.
const kindClosed = "match_closed"

// Channel is the pub/sub channel carrying matchID's events.
func Channel(matchID string) string { return KeyPrefix + "match:" + matchID }

// RedisBus mirrors match events to Redis pub/sub and serves subscriptions
// from it, so every instance sees every match's events.
type RedisBus struct {
	rdb *redis.Client
	q   *queue
}

func NewRedisBus(rdb *redis.Client, queueSize int) *RedisBus {
	return &RedisBus{rdb: rdb, q: newQueue("redis_bus", queueSize, 0)}
}

// OnEvent implements match.Observer.
func (b *RedisBus) OnEvent(ev match.Event) {
	raw, err := json.Marshal(ev.DTO())
	if err != nil {
		obslog.L().Error("bus_encode_failed", zap.String("match_id", ev.MatchID), zap.Error(err))
		return
	}
	channel := Channel(ev.MatchID)
	b.q.submit(job{name: string(ev.Kind), run: func(ctx context.Context) error {
		return b.rdb.Publish(ctx, channel, raw).Err()
	}})
}

// Subscribe implements Source. The subscription is confirmed before it
// returns, so events published afterwards are delivered.
func (b *RedisBus) Subscribe(ctx context.Context, matchID string) (<-chan matchdto.Event, func(), error) {
	ps := b.rdb.Subscribe(ctx, Channel(matchID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", matchID, err)
	}

	out := make(chan matchdto.Event, DefaultBuffer)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(out)
		msgs := ps.Channel()
		for {
			select {
			case <-stop:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev matchdto.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					obslog.L().Warn("bus_decode_failed", zap.String("match_id", matchID), zap.Error(err))
					continue
				}
				if ev.Kind == kindClosed {
					return
				}
				select {
				case out <- ev:
				case <-stop:
					return
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(stop)
			_ = ps.Close()
			<-done
		})
	}
	return out, cancel, nil
}

// CloseMatch ends every subscription to matchID on every instance.
func (b *RedisBus) CloseMatch(matchID string) {
	raw, _ := json.Marshal(matchdto.Event{Kind: kindClosed, MatchID: matchID})
	channel := Channel(matchID)
	b.q.submit(job{name: kindClosed, run: func(ctx context.Context) error {
		return b.rdb.Publish(ctx, channel, raw).Err()
	}})
}

// Close flushes queued publishes.
func (b *RedisBus) Close() { b.q.close() }
