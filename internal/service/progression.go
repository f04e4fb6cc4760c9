package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rampline/progression/internal/config"
	"github.com/rampline/progression/internal/domain"
)

// Store is the persistence boundary the progression logic works through
type Store interface {
	CreateSkater(ctx context.Context, req domain.CreateSkaterRequest) (*domain.Skater, error)
	GetSkater(ctx context.Context, skaterID string) (*domain.Skater, error)
	AddXP(ctx context.Context, skaterID string, delta int64) (*domain.Skater, error)
	RecordVisit(ctx context.Context, skaterID string, rules domain.StreakRules, now time.Time, loc *time.Location) (*domain.Skater, *domain.StreakResult, error)
	RecordAction(ctx context.Context, event domain.ActionEvent) error
	CountActions(ctx context.Context, skaterID string, kind domain.ActionKind) (int64, error)
	CreateBadge(ctx context.Context, badge domain.Badge) error
	ListBadges(ctx context.Context) ([]domain.Badge, error)
	ListSkaterBadgeIDs(ctx context.Context, skaterID string) (map[string]bool, error)
	ListSkaterBadges(ctx context.Context, skaterID string) ([]domain.EarnedBadge, error)
	AwardBadge(ctx context.Context, skaterID, badgeID string, earnedAt time.Time) (bool, error)
}

// RankBoard is the leaderboard view XP totals are mirrored into
type RankBoard interface {
	SetXP(ctx context.Context, skaterID string, xp int64) error
	GetTopN(ctx context.Context, n int) ([]domain.RankEntry, error)
	GetRange(ctx context.Context, start, end int) ([]domain.RankEntry, error)
	GetAroundSkater(ctx context.Context, skaterID string, count int) ([]domain.RankEntry, error)
	GetSkaterRank(ctx context.Context, skaterID string) (*domain.RankEntry, error)
	GetCount(ctx context.Context) (int64, error)
}

// Broadcaster pushes live progression updates to connected clients
type Broadcaster interface {
	BroadcastProgress(skaterID string, xp int64, progress domain.LevelProgress)
	BroadcastLevelUp(skaterID string, level int)
	BroadcastBadge(skaterID string, badge domain.Badge)
}

// ProgressionService owns XP accrual, streak tracking and badge awarding
type ProgressionService struct {
	store  Store
	board  RankBoard
	config *config.ProgressionConfig
	rules  domain.StreakRules
	loc    *time.Location
	hub    Broadcaster
	logger *slog.Logger
	now    func() time.Time
}

// NewProgressionService creates a new progression service
func NewProgressionService(
	store Store,
	board RankBoard,
	cfg *config.ProgressionConfig,
	loc *time.Location,
	logger *slog.Logger,
) *ProgressionService {
	if loc == nil {
		loc = time.UTC
	}
	return &ProgressionService{
		store:  store,
		board:  board,
		config: cfg,
		rules: domain.StreakRules{
			FirstOfDayXP:   cfg.FirstOfDayXP,
			DailyBonusXP:   cfg.DailyStreakBonusXP,
			WeeklyBonusXP:  cfg.WeeklyStreakBonusXP,
			MonthlyBonusXP: cfg.MonthlyStreakBonusXP,
		},
		loc:    loc,
		logger: logger,
		now:    time.Now,
	}
}

// SetHub attaches the broadcaster used for live updates
func (s *ProgressionService) SetHub(hub Broadcaster) {
	s.hub = hub
}

// CreateSkater registers a skater and seeds them onto the leaderboard
func (s *ProgressionService) CreateSkater(ctx context.Context, req domain.CreateSkaterRequest) (*domain.Skater, error) {
	if req.ID == "" || req.Username == "" {
		return nil, domain.ErrInvalidRequest
	}

	skater, err := s.store.CreateSkater(ctx, req)
	if err != nil {
		return nil, err
	}

	if s.board != nil {
		if err := s.board.SetXP(ctx, skater.ID, skater.XP); err != nil {
			s.logger.Warn("failed to seed skater onto leaderboard", "skater_id", skater.ID, "error", err)
		}
	}
	return skater, nil
}

// GetSkater returns a skater by ID
func (s *ProgressionService) GetSkater(ctx context.Context, skaterID string) (*domain.Skater, error) {
	return s.store.GetSkater(ctx, skaterID)
}

// GetProgress returns a skater together with their position in the current
// level band
func (s *ProgressionService) GetProgress(ctx context.Context, skaterID string) (*domain.Skater, domain.LevelProgress, error) {
	skater, err := s.store.GetSkater(ctx, skaterID)
	if err != nil {
		return nil, domain.LevelProgress{}, err
	}
	return skater, domain.XPProgress(skater.XP), nil
}

// AddXP applies an XP delta to a skater. The store recomputes the level from
// the new total in the same update; negative deltas are admin corrections
// and pass through unclamped.
func (s *ProgressionService) AddXP(ctx context.Context, skaterID string, delta int64) (*domain.Skater, error) {
	skater, err := s.store.AddXP(ctx, skaterID, delta)
	if err != nil {
		return nil, fmt.Errorf("adding xp: %w", err)
	}

	s.publishProgress(ctx, skater, delta)
	return skater, nil
}

// RecordVisit runs the streak state machine for a visit happening now. A
// same-day revisit returns the skater unchanged with a zero bonus.
func (s *ProgressionService) RecordVisit(ctx context.Context, skaterID string) (*domain.Skater, *domain.StreakResult, error) {
	skater, result, err := s.store.RecordVisit(ctx, skaterID, s.rules, s.now(), s.loc)
	if err != nil {
		return nil, nil, fmt.Errorf("recording visit: %w", err)
	}

	if result.Advanced {
		s.publishProgress(ctx, skater, result.BonusXP)
	}
	return skater, result, nil
}

// ProcessAction routes a park action through the streak tracker or the XP
// accrual, records the audit event, and runs the per-action badge check.
// Badge evaluation is best effort and never fails the action.
func (s *ProgressionService) ProcessAction(ctx context.Context, sub domain.ActionSubmission) (*domain.ActionResult, error) {
	if sub.SkaterID == "" {
		return nil, domain.ErrInvalidRequest
	}
	if !sub.Kind.Valid() {
		return nil, domain.ErrInvalidAction
	}

	var skater *domain.Skater
	var awarded int64
	var err error

	switch sub.Kind {
	case domain.ActionVisit:
		var result *domain.StreakResult
		skater, result, err = s.RecordVisit(ctx, sub.SkaterID)
		if err != nil {
			return nil, err
		}
		if result.Advanced {
			awarded = result.BonusXP
		}
	default:
		awarded = s.awardFor(sub.Kind)
		skater, err = s.AddXP(ctx, sub.SkaterID, awarded)
		if err != nil {
			return nil, err
		}
	}

	event := domain.ActionEvent{
		SkaterID:  sub.SkaterID,
		Kind:      sub.Kind,
		RefID:     sub.RefID,
		XP:        awarded,
		Timestamp: s.now(),
		Metadata:  sub.Metadata,
	}
	if err := s.store.RecordAction(ctx, event); err != nil {
		s.logger.Warn("failed to record action event", "skater_id", sub.SkaterID, "kind", sub.Kind, "error", err)
		// Don't fail the action if audit recording fails
	}

	result := &domain.ActionResult{
		Skater:    skater,
		XPAwarded: awarded,
		LeveledUp: awarded > 0 && skater.Level > domain.CalculateLevel(skater.XP-awarded),
	}

	newBadges, err := s.CheckBadgesForAction(ctx, sub.SkaterID, sub.Kind)
	if err != nil {
		s.logger.Warn("badge check failed after action", "skater_id", sub.SkaterID, "kind", sub.Kind, "error", err)
	} else {
		result.NewBadges = newBadges
	}

	return result, nil
}

// ProcessActionBatch processes multiple actions, continuing past failures
func (s *ProgressionService) ProcessActionBatch(ctx context.Context, batch domain.BatchActionSubmission) error {
	for _, sub := range batch.Actions {
		if _, err := s.ProcessAction(ctx, sub); err != nil {
			s.logger.Error("failed to process action in batch",
				"skater_id", sub.SkaterID,
				"kind", sub.Kind,
				"error", err,
			)
			// Continue processing other actions
		}
	}
	return nil
}

// awardFor returns the configured XP award for a non-visit action kind
func (s *ProgressionService) awardFor(kind domain.ActionKind) int64 {
	switch kind {
	case domain.ActionChallengeApproved:
		return s.config.ChallengeApprovedXP
	case domain.ActionEventAttended:
		return s.config.EventAttendedXP
	case domain.ActionSaleCompleted:
		return s.config.SaleCompletedXP
	}
	return 0
}

// SkaterStats gathers the aggregates badge criteria are evaluated against
func (s *ProgressionService) SkaterStats(ctx context.Context, skater *domain.Skater) (domain.SkaterStats, error) {
	stats := domain.SkaterStats{
		StreakDays: skater.Streak,
		JoinedAt:   skater.CreatedAt,
	}

	counts := []struct {
		kind domain.ActionKind
		dest *int64
	}{
		{domain.ActionVisit, &stats.Visits},
		{domain.ActionChallengeApproved, &stats.ApprovedChallenges},
		{domain.ActionEventAttended, &stats.EventAttendances},
		{domain.ActionSaleCompleted, &stats.CompletedSales},
	}
	for _, c := range counts {
		count, err := s.store.CountActions(ctx, skater.ID, c.kind)
		if err != nil {
			return domain.SkaterStats{}, fmt.Errorf("counting %s actions: %w", c.kind, err)
		}
		*c.dest = count
	}
	return stats, nil
}

// CheckAndAwardBadges evaluates every not-yet-earned catalog badge against
// the skater's current stats and awards the qualifying ones. Returns only
// badges actually awarded by this call.
func (s *ProgressionService) CheckAndAwardBadges(ctx context.Context, skaterID string) ([]domain.Badge, error) {
	return s.evaluateBadges(ctx, skaterID, nil)
}

// CheckBadgesForAction restricts evaluation to the criteria kinds the
// triggering action can affect. Awards the same set as the full evaluator
// restricted to those kinds.
func (s *ProgressionService) CheckBadgesForAction(ctx context.Context, skaterID string, kind domain.ActionKind) ([]domain.Badge, error) {
	relevant := kind.RelevantCriteria()
	if len(relevant) == 0 {
		return nil, nil
	}
	allowed := make(map[domain.CriteriaKind]bool, len(relevant))
	for _, ck := range relevant {
		allowed[ck] = true
	}
	return s.evaluateBadges(ctx, skaterID, allowed)
}

// evaluateBadges runs the evaluator, optionally restricted to a set of
// criteria kinds. Unsupported criteria kinds are skipped with a warning
// rather than treated as a failed predicate.
func (s *ProgressionService) evaluateBadges(ctx context.Context, skaterID string, allowed map[domain.CriteriaKind]bool) ([]domain.Badge, error) {
	skater, err := s.store.GetSkater(ctx, skaterID)
	if err != nil {
		return nil, err
	}

	stats, err := s.SkaterStats(ctx, skater)
	if err != nil {
		return nil, err
	}

	earned, err := s.store.ListSkaterBadgeIDs(ctx, skaterID)
	if err != nil {
		return nil, fmt.Errorf("listing earned badges: %w", err)
	}

	catalog, err := s.store.ListBadges(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing badge catalog: %w", err)
	}

	var awarded []domain.Badge
	for _, badge := range catalog {
		if earned[badge.ID] {
			continue
		}
		if allowed != nil && !allowed[badge.Criteria.Kind] {
			continue
		}

		met, supported := badge.Criteria.Satisfied(stats)
		if !supported {
			s.logger.Warn("skipping badge criteria kind with no backing data",
				"badge_id", badge.ID,
				"criteria_kind", badge.Criteria.Kind,
			)
			continue
		}
		if !met {
			continue
		}

		inserted, err := s.store.AwardBadge(ctx, skaterID, badge.ID, s.now())
		if err != nil {
			return awarded, fmt.Errorf("awarding badge %s: %w", badge.ID, err)
		}
		if !inserted {
			// Lost the insert race to a concurrent evaluation; already held
			continue
		}

		awarded = append(awarded, badge)
		if s.hub != nil {
			s.hub.BroadcastBadge(skaterID, badge)
		}
	}
	return awarded, nil
}

// CreateBadge validates and adds a badge definition to the catalog
func (s *ProgressionService) CreateBadge(ctx context.Context, req domain.CreateBadgeRequest) (*domain.Badge, error) {
	if req.ID == "" || req.Name == "" || req.Criteria.Kind == "" {
		return nil, domain.ErrInvalidBadge
	}
	if req.Criteria.Kind == domain.CriteriaJoinDateBefore && req.Criteria.Cutoff == nil {
		return nil, domain.ErrInvalidBadge
	}

	badge := req.ToBadge()
	if err := s.store.CreateBadge(ctx, badge); err != nil {
		return nil, err
	}
	return &badge, nil
}

// ListBadges returns the badge catalog
func (s *ProgressionService) ListBadges(ctx context.Context) ([]domain.Badge, error) {
	return s.store.ListBadges(ctx)
}

// ListSkaterBadges returns a skater's earned badges
func (s *ProgressionService) ListSkaterBadges(ctx context.Context, skaterID string) ([]domain.EarnedBadge, error) {
	if _, err := s.store.GetSkater(ctx, skaterID); err != nil {
		return nil, err
	}
	return s.store.ListSkaterBadges(ctx, skaterID)
}

// publishProgress mirrors the new total onto the leaderboard and notifies
// subscribers. Both are best effort.
func (s *ProgressionService) publishProgress(ctx context.Context, skater *domain.Skater, delta int64) {
	if s.board != nil {
		if err := s.board.SetXP(ctx, skater.ID, skater.XP); err != nil {
			s.logger.Warn("failed to mirror xp onto leaderboard", "skater_id", skater.ID, "error", err)
		}
	}

	if s.hub == nil {
		return
	}
	s.hub.BroadcastProgress(skater.ID, skater.XP, domain.XPProgress(skater.XP))
	if delta > 0 && skater.Level > domain.CalculateLevel(skater.XP-delta) {
		s.hub.BroadcastLevelUp(skater.ID, skater.Level)
	}
}
