package events

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/netchess/internal/match"
	"github.com/park285/netchess/pkg/matchdto"
)

const defaultLiveTTL = 2 * time.Hour

// LiveIndex keeps a TTL'd summary per live match in Redis plus a set of
// their ids, so any instance can list matches hosted anywhere.
type LiveIndex struct {
	rdb *redis.Client
	ttl time.Duration
	q   *queue
}

func NewLiveIndex(rdb *redis.Client, ttl time.Duration) *LiveIndex {
	if ttl <= 0 {
		ttl = defaultLiveTTL
	}
	return &LiveIndex{rdb: rdb, ttl: ttl, q: newQueue("live_index", 0, 0)}
}

func (x *LiveIndex) keySummary(id string) string { return KeyPrefix + "live:" + strings.TrimSpace(id) }
func (x *LiveIndex) keySet() string              { return KeyPrefix + "live" }

// Put stores s and refreshes its TTL.
func (x *LiveIndex) Put(ctx context.Context, s matchdto.Summary) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	pipe := x.rdb.TxPipeline()
	pipe.Set(ctx, x.keySummary(s.MatchID), raw, x.ttl)
	pipe.SAdd(ctx, x.keySet(), s.MatchID)
	pipe.Expire(ctx, x.keySet(), x.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (x *LiveIndex) Delete(ctx context.Context, id string) error {
	pipe := x.rdb.TxPipeline()
	pipe.Del(ctx, x.keySummary(id))
	pipe.SRem(ctx, x.keySet(), id)
	_, err := pipe.Exec(ctx)
	return err
}

// Get returns nil when id is not indexed.
func (x *LiveIndex) Get(ctx context.Context, id string) (*matchdto.Summary, error) {
	raw, err := x.rdb.Get(ctx, x.keySummary(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s matchdto.Summary
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// List returns every indexed match, oldest first, pruning ids whose summary
// has expired.
func (x *LiveIndex) List(ctx context.Context) ([]matchdto.Summary, error) {
	ids, err := x.rdb.SMembers(ctx, x.keySet()).Result()
	if err != nil {
		return nil, err
	}
	out := make([]matchdto.Summary, 0, len(ids))
	for _, id := range ids {
		s, err := x.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if s == nil {
			_ = x.rdb.SRem(ctx, x.keySet(), id).Err()
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].MatchID < out[j].MatchID
	})
	return out, nil
}

// OnEvent implements match.Observer; clock ticks are skipped.
func (x *LiveIndex) OnEvent(ev match.Event) {
	if ev.State == nil || ev.Kind == match.EventClockTick {
		return
	}
	s := ev.State.Summary()
	x.q.submit(job{name: "put", run: func(ctx context.Context) error { return x.Put(ctx, s) }})
}

// Forget asynchronously removes id; used when the registry reclaims a match.
func (x *LiveIndex) Forget(id string) {
	x.q.submit(job{name: "delete", run: func(ctx context.Context) error { return x.Delete(ctx, id) }})
}

// Close flushes pending writes.
func (x *LiveIndex) Close() { x.q.close() }
