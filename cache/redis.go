/*
Package cache provides the Redis-backed leaderboard read cache and the
optional cross-instance aggregation lock.

LEADERBOARD SNAPSHOT:
  After each successful cycle the aggregator publishes every entry into a
  staging hash and RENAMEs it over the live key inside one MULTI/EXEC, so
  readers see either the previous snapshot or the new one, never a mix.
  The cache is advisory: reads fall back to the document store on a miss
  or error.

CYCLE GUARD:
  RedisGuard wraps bsm/redislock. Aggregation does not require it; it only
  stops several instances from recomputing the same snapshot at once.
*/
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/warp/performance-engine/scoring"
)

// Connect opens a client and pings it.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return rdb, nil
}

// =============================================================================
// LEADERBOARD CACHE
// =============================================================================

// LeaderboardCache stores the latest leaderboard snapshot.
type LeaderboardCache struct {
	rdb    *redis.Client
	prefix string
}

var _ scoring.SnapshotPublisher = (*LeaderboardCache)(nil)

func NewLeaderboardCache(rdb *redis.Client, prefix string) *LeaderboardCache {
	return &LeaderboardCache{rdb: rdb, prefix: prefix}
}

func (c *LeaderboardCache) liveKey() string    { return c.prefix + ":leaderboard" }
func (c *LeaderboardCache) stagingKey() string { return c.prefix + ":leaderboard:staging" }

// PublishLeaderboard replaces the snapshot.
func (c *LeaderboardCache) PublishLeaderboard(ctx context.Context, entries []scoring.LeaderboardEntry) error {
	if len(entries) == 0 {
		return c.rdb.Del(ctx, c.liveKey()).Err()
	}

	fields := make(map[string]any, len(entries))
	for _, e := range entries {
		doc, err := json.Marshal(e)
		if err != nil {
			return err
		}
		fields[string(e.UserID)] = doc
	}

	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, c.stagingKey())
		pipe.HSet(ctx, c.stagingKey(), fields)
		pipe.Rename(ctx, c.stagingKey(), c.liveKey())
		return nil
	})
	return err
}

// Entries returns the cached snapshot ordered by user ID. ok is false when
// no snapshot has been published.
func (c *LeaderboardCache) Entries(ctx context.Context) (entries []scoring.LeaderboardEntry, ok bool, err error) {
	docs, err := c.rdb.HGetAll(ctx, c.liveKey()).Result()
	if err != nil {
		return nil, false, err
	}
	if len(docs) == 0 {
		return nil, false, nil
	}

	entries = make([]scoring.LeaderboardEntry, 0, len(docs))
	for userID, doc := range docs {
		var e scoring.LeaderboardEntry
		if err := json.Unmarshal([]byte(doc), &e); err != nil {
			return nil, false, fmt.Errorf("cached entry %s: %w", userID, err)
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].UserID < entries[j].UserID })
	return entries, true, nil
}

// Entry returns one user's cached entry.
func (c *LeaderboardCache) Entry(ctx context.Context, userID scoring.UserID) (scoring.LeaderboardEntry, bool, error) {
	doc, err := c.rdb.HGet(ctx, c.liveKey(), string(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return scoring.LeaderboardEntry{}, false, nil
	}
	if err != nil {
		return scoring.LeaderboardEntry{}, false, err
	}

	var e scoring.LeaderboardEntry
	if err := json.Unmarshal([]byte(doc), &e); err != nil {
		return scoring.LeaderboardEntry{}, false, err
	}
	return e, true, nil
}

// =============================================================================
// CYCLE GUARD
// =============================================================================

// RedisGuard lets one instance at a time run an aggregation cycle.
type RedisGuard struct {
	locker *redislock.Client
	key    string
	ttl    time.Duration
}

var _ scoring.CycleGuard = (*RedisGuard)(nil)

func NewRedisGuard(rdb *redis.Client, prefix string, ttl time.Duration) *RedisGuard {
	return &RedisGuard{
		locker: redislock.New(rdb),
		key:    prefix + ":lock:aggregator",
		ttl:    ttl,
	}
}

// Acquire obtains the lock without waiting.
func (g *RedisGuard) Acquire(ctx context.Context) (func(context.Context), bool, error) {
	lock, err := g.locker.Obtain(ctx, g.key, g.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return func(ctx context.Context) { _ = lock.Release(ctx) }, true, nil
}
