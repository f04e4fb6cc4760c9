package domain

import "time"

// Rarity represents the tier of a badge
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// CriteriaKind identifies the stat a badge predicate is evaluated against
type CriteriaKind string

const (
	CriteriaVisitCount      CriteriaKind = "visit_count"
	CriteriaStreakDays      CriteriaKind = "streak_days"
	CriteriaChallengeCount  CriteriaKind = "challenge_count"
	CriteriaEventCount      CriteriaKind = "event_count"
	CriteriaSaleCount       CriteriaKind = "sale_count"
	CriteriaCompetitionWins CriteriaKind = "competition_wins"
	CriteriaJoinDateBefore  CriteriaKind = "join_date_before"
)

// Criteria is a typed, parameterized predicate over a skater's stats.
// Threshold carries the count for count-style kinds; Cutoff carries the
// timestamp for join-date criteria.
type Criteria struct {
	Kind      CriteriaKind `json:"kind"`
	Threshold int64        `json:"threshold,omitempty"`
	Cutoff    *time.Time   `json:"cutoff,omitempty"`
}

// SkaterStats are the aggregates badge criteria are evaluated against,
// computed on demand from the action log and the skater row
type SkaterStats struct {
	Visits             int64     `json:"visits"`
	StreakDays         int       `json:"streak_days"`
	ApprovedChallenges int64     `json:"approved_challenges"`
	EventAttendances   int64     `json:"event_attendances"`
	CompletedSales     int64     `json:"completed_sales"`
	JoinedAt           time.Time `json:"joined_at"`
}

// Satisfied evaluates the predicate against stats. supported is false for
// kinds that have no backing data (competition wins have no result entity
// anywhere in the platform); callers must skip those rather than treat
// them as a failed predicate.
func (c Criteria) Satisfied(stats SkaterStats) (met bool, supported bool) {
	switch c.Kind {
	case CriteriaVisitCount:
		return stats.Visits >= c.Threshold, true
	case CriteriaStreakDays:
		return int64(stats.StreakDays) >= c.Threshold, true
	case CriteriaChallengeCount:
		return stats.ApprovedChallenges >= c.Threshold, true
	case CriteriaEventCount:
		return stats.EventAttendances >= c.Threshold, true
	case CriteriaSaleCount:
		return stats.CompletedSales >= c.Threshold, true
	case CriteriaJoinDateBefore:
		return c.Cutoff != nil && stats.JoinedAt.Before(*c.Cutoff), true
	default:
		return false, false
	}
}

// Badge is a catalog entry. Immutable once created.
type Badge struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Rarity      Rarity    `json:"rarity"`
	Criteria    Criteria  `json:"criteria"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserBadge joins a skater to an earned badge
type UserBadge struct {
	SkaterID string    `json:"skater_id"`
	BadgeID  string    `json:"badge_id"`
	EarnedAt time.Time `json:"earned_at"`
}

// EarnedBadge is a badge together with when the skater earned it
type EarnedBadge struct {
	Badge
	EarnedAt time.Time `json:"earned_at"`
}

// CreateBadgeRequest represents a request to add a badge to the catalog
type CreateBadgeRequest struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Rarity      Rarity   `json:"rarity,omitempty"`
	Criteria    Criteria `json:"criteria"`
}

// ToBadge converts a CreateBadgeRequest to a Badge with defaults
func (r *CreateBadgeRequest) ToBadge() Badge {
	badge := Badge{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Rarity:      r.Rarity,
		Criteria:    r.Criteria,
		CreatedAt:   time.Now(),
	}
	if badge.Rarity == "" {
		badge.Rarity = RarityCommon
	}
	return badge
}
