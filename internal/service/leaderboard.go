package service

import (
	"context"
	"fmt"

	"github.com/rampline/progression/internal/domain"
)

// GetTopN returns the top N skaters by XP
func (s *ProgressionService) GetTopN(ctx context.Context, n int) ([]domain.RankEntry, error) {
	// Validate limit
	if n <= 0 {
		n = s.config.DefaultLimit
	}
	if n > s.config.MaxLimit {
		n = s.config.MaxLimit
	}

	entries, err := s.board.GetTopN(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("getting top n from board: %w", err)
	}
	return entries, nil
}

// GetSkaterRank returns a skater's leaderboard rank and XP
func (s *ProgressionService) GetSkaterRank(ctx context.Context, skaterID string) (*domain.RankEntry, error) {
	entry, err := s.board.GetSkaterRank(ctx, skaterID)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// GetAroundSkater returns skaters ranked around a specific skater
func (s *ProgressionService) GetAroundSkater(ctx context.Context, skaterID string, count int) ([]domain.RankEntry, error) {
	if count <= 0 {
		count = 5
	}
	if count > 50 {
		count = 50
	}

	entries, err := s.board.GetAroundSkater(ctx, skaterID, count)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// GetRange returns skaters within a specific rank range
func (s *ProgressionService) GetRange(ctx context.Context, start, end int) ([]domain.RankEntry, error) {
	// Validate range
	if start < 0 {
		start = 0
	}
	if end < start {
		end = start
	}
	if end-start > s.config.MaxLimit {
		end = start + s.config.MaxLimit
	}

	entries, err := s.board.GetRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("getting range from board: %w", err)
	}
	return entries, nil
}

// GetBoardStats returns statistics about the XP leaderboard
func (s *ProgressionService) GetBoardStats(ctx context.Context) (*domain.BoardStats, error) {
	count, err := s.board.GetCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting count: %w", err)
	}

	stats := &domain.BoardStats{
		TotalSkaters: count,
	}

	// Get top XP
	top, err := s.board.GetTopN(ctx, 1)
	if err == nil && len(top) > 0 {
		stats.TopXP = top[0].XP
	}

	return stats, nil
}
