package domain

import "time"

// ActionKind identifies the park activity that produced an event
type ActionKind string

const (
	ActionVisit             ActionKind = "visit"
	ActionChallengeApproved ActionKind = "challenge_approved"
	ActionEventAttended     ActionKind = "event_attended"
	ActionSaleCompleted     ActionKind = "sale_completed"
)

// Valid reports whether the kind is one the pipeline accepts
func (k ActionKind) Valid() bool {
	switch k {
	case ActionVisit, ActionChallengeApproved, ActionEventAttended, ActionSaleCompleted:
		return true
	}
	return false
}

// RelevantCriteria returns the badge criteria kinds an action of this kind
// can newly satisfy. A visit moves both the visit count and the streak.
func (k ActionKind) RelevantCriteria() []CriteriaKind {
	switch k {
	case ActionVisit:
		return []CriteriaKind{CriteriaVisitCount, CriteriaStreakDays}
	case ActionChallengeApproved:
		return []CriteriaKind{CriteriaChallengeCount}
	case ActionEventAttended:
		return []CriteriaKind{CriteriaEventCount}
	case ActionSaleCompleted:
		return []CriteriaKind{CriteriaSaleCount}
	}
	return nil
}

// ActionSubmission represents a request to record a park action
type ActionSubmission struct {
	SkaterID string                 `json:"skater_id"`
	Kind     ActionKind             `json:"kind"`
	RefID    string                 `json:"ref_id,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// BatchActionSubmission represents multiple action submissions
type BatchActionSubmission struct {
	Actions []ActionSubmission `json:"actions"`
}

// ActionEvent is the audit record of a processed action
type ActionEvent struct {
	SkaterID  string                 `json:"skater_id"`
	Kind      ActionKind             `json:"kind"`
	RefID     string                 `json:"ref_id,omitempty"`
	XP        int64                  `json:"xp"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// ActionResult describes what processing an action changed
type ActionResult struct {
	Skater    *Skater `json:"skater"`
	XPAwarded int64   `json:"xp_awarded"`
	LeveledUp bool    `json:"leveled_up"`
	NewBadges []Badge `json:"new_badges,omitempty"`
}
