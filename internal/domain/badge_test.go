package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCriteriaSatisfied(t *testing.T) {
	cutoff := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	stats := SkaterStats{
		Visits:             10,
		StreakDays:         5,
		ApprovedChallenges: 3,
		EventAttendances:   2,
		CompletedSales:     1,
		JoinedAt:           time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name      string
		criteria  Criteria
		met       bool
		supported bool
	}{
		{"visit count met", Criteria{Kind: CriteriaVisitCount, Threshold: 10}, true, true},
		{"visit count not met", Criteria{Kind: CriteriaVisitCount, Threshold: 11}, false, true},
		{"streak met", Criteria{Kind: CriteriaStreakDays, Threshold: 5}, true, true},
		{"streak not met", Criteria{Kind: CriteriaStreakDays, Threshold: 6}, false, true},
		{"challenge count met", Criteria{Kind: CriteriaChallengeCount, Threshold: 3}, true, true},
		{"event count met", Criteria{Kind: CriteriaEventCount, Threshold: 2}, true, true},
		{"sale count not met", Criteria{Kind: CriteriaSaleCount, Threshold: 2}, false, true},
		{"joined before cutoff", Criteria{Kind: CriteriaJoinDateBefore, Cutoff: &cutoff}, true, true},
		{"join date without cutoff", Criteria{Kind: CriteriaJoinDateBefore}, false, true},
		{"competition wins unsupported", Criteria{Kind: CriteriaCompetitionWins, Threshold: 1}, false, false},
		{"unknown kind unsupported", Criteria{Kind: "trick_count", Threshold: 1}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			met, supported := tt.criteria.Satisfied(stats)
			assert.Equal(t, tt.met, met)
			assert.Equal(t, tt.supported, supported)
		})
	}
}

func TestCriteriaJoinDateAfterCutoff(t *testing.T) {
	cutoff := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	stats := SkaterStats{JoinedAt: time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC)}

	met, supported := Criteria{Kind: CriteriaJoinDateBefore, Cutoff: &cutoff}.Satisfied(stats)

	assert.True(t, supported)
	assert.False(t, met)
}

func TestToBadgeDefaultsRarity(t *testing.T) {
	req := CreateBadgeRequest{
		ID:       "regular",
		Name:     "Park Regular",
		Criteria: Criteria{Kind: CriteriaVisitCount, Threshold: 10},
	}

	badge := req.ToBadge()

	assert.Equal(t, RarityCommon, badge.Rarity)
	assert.False(t, badge.CreatedAt.IsZero())
}

func TestToBadgeKeepsRarity(t *testing.T) {
	req := CreateBadgeRequest{
		ID:       "iron-legs",
		Name:     "Iron Legs",
		Rarity:   RarityLegendary,
		Criteria: Criteria{Kind: CriteriaStreakDays, Threshold: 30},
	}

	assert.Equal(t, RarityLegendary, req.ToBadge().Rarity)
}

func TestRelevantCriteria(t *testing.T) {
	assert.ElementsMatch(t,
		[]CriteriaKind{CriteriaVisitCount, CriteriaStreakDays},
		ActionVisit.RelevantCriteria())
	assert.Equal(t, []CriteriaKind{CriteriaChallengeCount}, ActionChallengeApproved.RelevantCriteria())
	assert.Equal(t, []CriteriaKind{CriteriaEventCount}, ActionEventAttended.RelevantCriteria())
	assert.Equal(t, []CriteriaKind{CriteriaSaleCount}, ActionSaleCompleted.RelevantCriteria())
	assert.Nil(t, ActionKind("bogus").RelevantCriteria())
}
