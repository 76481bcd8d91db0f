package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const leaderboardKey = "leaderboard:points"

// RedisStore handles Redis operations: the points leaderboard and the
// counters behind the rate limiter. Everything here is a cache over state the
// SQL store owns, so Redis being down never loses data.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client exposes the underlying client for the rate limiter middleware.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// LeaderboardEntry is one row of the points leaderboard.
type LeaderboardEntry struct {
	UserID uuid.UUID
	Points int64
}

// SetLeaderboardScore records a user's current points total.
func (s *RedisStore) SetLeaderboardScore(ctx context.Context, userID uuid.UUID, points int64) error {
	return s.client.ZAdd(ctx, leaderboardKey, redis.Z{
		Score:  float64(points),
		Member: userID.String(),
	}).Err()
}

// TopLeaderboard returns the highest-scoring users, best first.
func (s *RedisStore) TopLeaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	results, err := s.client.ZRevRangeWithScores(ctx, leaderboardKey, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, 0, len(results))
	for _, z := range results {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		id, err := uuid.Parse(member)
		if err != nil {
			continue
		}
		entries = append(entries, LeaderboardEntry{
			UserID: id,
			Points: int64(z.Score),
		})
	}
	return entries, nil
}

// LeaderboardRank returns a user's 1-based rank, or 0 if unranked.
func (s *RedisStore) LeaderboardRank(ctx context.Context, userID uuid.UUID) (int64, error) {
	rank, err := s.client.ZRevRank(ctx, leaderboardKey, userID.String()).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, err
	}
	return rank + 1, nil
}
