package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rampline/progression/internal/config"
	"github.com/rampline/progression/internal/domain"
	"github.com/redis/go-redis/v9"
)

// boardKey is the sorted set holding every skater's absolute XP total
const boardKey = "progression:xp:board"

// Board provides the Redis-backed XP leaderboard
type Board struct {
	client *redis.Client
	logger *slog.Logger
}

// NewBoard creates a new Redis XP leaderboard
func NewBoard(cfg *config.RedisConfig, logger *slog.Logger) (*Board, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Board{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (b *Board) Close() error {
	return b.client.Close()
}

// Client returns the underlying Redis client
func (b *Board) Client() *redis.Client {
	return b.client
}

// SetXP mirrors a skater's absolute XP total onto the board. Totals are set,
// not incremented, so replays and rebuilds cannot drift from Postgres.
func (b *Board) SetXP(ctx context.Context, skaterID string, xp int64) error {
	err := b.client.ZAdd(ctx, boardKey, redis.Z{
		Score:  float64(xp),
		Member: skaterID,
	}).Err()
	if err != nil {
		return fmt.Errorf("setting xp: %w", err)
	}
	return nil
}

// RemoveSkater removes a skater from the board
func (b *Board) RemoveSkater(ctx context.Context, skaterID string) error {
	err := b.client.ZRem(ctx, boardKey, skaterID).Err()
	if err != nil {
		return fmt.Errorf("removing skater: %w", err)
	}
	return nil
}

// GetTopN returns the top N skaters by XP
func (b *Board) GetTopN(ctx context.Context, n int) ([]domain.RankEntry, error) {
	results, err := b.client.ZRevRangeWithScores(ctx, boardKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting top n: %w", err)
	}

	entries := make([]domain.RankEntry, len(results))
	for i, result := range results {
		entries[i] = domain.RankEntry{
			Rank:     int64(i + 1),
			SkaterID: result.Member.(string),
			XP:       int64(result.Score),
		}
	}
	return entries, nil
}

// GetSkaterRank returns a skater's rank and XP
func (b *Board) GetSkaterRank(ctx context.Context, skaterID string) (*domain.RankEntry, error) {
	// Use pipeline to get both rank and score
	pipe := b.client.Pipeline()
	rankCmd := pipe.ZRevRank(ctx, boardKey, skaterID)
	scoreCmd := pipe.ZScore(ctx, boardKey, skaterID)
	_, err := pipe.Exec(ctx)

	if err != nil {
		if err == redis.Nil {
			return nil, domain.ErrSkaterNotFound
		}
		return nil, fmt.Errorf("getting skater rank: %w", err)
	}

	rank, err := rankCmd.Result()
	if err != nil {
		if err == redis.Nil {
			return nil, domain.ErrSkaterNotFound
		}
		return nil, fmt.Errorf("getting rank result: %w", err)
	}

	xp, err := scoreCmd.Result()
	if err != nil {
		return nil, fmt.Errorf("getting xp result: %w", err)
	}

	return &domain.RankEntry{
		Rank:     rank + 1, // Convert 0-indexed to 1-indexed
		SkaterID: skaterID,
		XP:       int64(xp),
	}, nil
}

// GetAroundSkater returns skaters ranked around a specific skater
func (b *Board) GetAroundSkater(ctx context.Context, skaterID string, count int) ([]domain.RankEntry, error) {
	entry, err := b.GetSkaterRank(ctx, skaterID)
	if err != nil {
		return nil, err
	}

	start := entry.Rank - int64(count) - 1 // -1 because rank is 1-indexed
	if start < 0 {
		start = 0
	}
	end := entry.Rank + int64(count) - 1

	return b.GetRange(ctx, int(start), int(end))
}

// GetRange returns skaters within a specific rank range (0-indexed)
func (b *Board) GetRange(ctx context.Context, start, end int) ([]domain.RankEntry, error) {
	results, err := b.client.ZRevRangeWithScores(ctx, boardKey, int64(start), int64(end)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting range: %w", err)
	}

	entries := make([]domain.RankEntry, len(results))
	for i, result := range results {
		entries[i] = domain.RankEntry{
			Rank:     int64(start + i + 1), // Convert to 1-indexed rank
			SkaterID: result.Member.(string),
			XP:       int64(result.Score),
		}
	}
	return entries, nil
}

// GetCount returns the number of skaters on the board
func (b *Board) GetCount(ctx context.Context) (int64, error) {
	count, err := b.client.ZCard(ctx, boardKey).Result()
	if err != nil {
		return 0, fmt.Errorf("getting count: %w", err)
	}
	return count, nil
}

// BatchSetXP sets multiple XP totals using pipelining
func (b *Board) BatchSetXP(ctx context.Context, totals map[string]int64) error {
	if len(totals) == 0 {
		return nil
	}

	pipe := b.client.Pipeline()
	for skaterID, xp := range totals {
		pipe.ZAdd(ctx, boardKey, redis.Z{
			Score:  float64(xp),
			Member: skaterID,
		})
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("batch setting xp: %w", err)
	}
	return nil
}
