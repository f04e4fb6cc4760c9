package domain

import (
	"math"
	"time"
)

// StreakRules holds the bonus XP amounts applied by the streak tracker
type StreakRules struct {
	FirstOfDayXP   int64
	DailyBonusXP   int64
	WeeklyBonusXP  int64
	MonthlyBonusXP int64
}

// StreakResult is the outcome of advancing a skater's streak for a visit
type StreakResult struct {
	Streak   int
	BonusXP  int64
	Advanced bool
}

// Advance applies the visit state machine at calendar-day granularity in loc:
// no prior visit starts a streak at 1, a same-day revisit is a no-op, a visit
// exactly one day after the last extends the streak, and a gap of two or more
// days resets it to 1. Weekly and monthly bonuses are independent additions;
// a streak length divisible by both 7 and 30 earns both.
func (r StreakRules) Advance(lastVisit *time.Time, streak int, now time.Time, loc *time.Location) StreakResult {
	if lastVisit == nil {
		return StreakResult{Streak: 1, BonusXP: r.FirstOfDayXP, Advanced: true}
	}

	today := dayOf(now, loc)
	last := dayOf(*lastVisit, loc)
	gap := int(math.Round(today.Sub(last).Hours() / 24))

	switch {
	case gap <= 0:
		return StreakResult{Streak: streak, Advanced: false}
	case gap == 1:
		next := streak + 1
		bonus := r.FirstOfDayXP + r.DailyBonusXP*int64(next)
		if next%7 == 0 {
			bonus += r.WeeklyBonusXP
		}
		if next%30 == 0 {
			bonus += r.MonthlyBonusXP
		}
		return StreakResult{Streak: next, BonusXP: bonus, Advanced: true}
	default:
		return StreakResult{Streak: 1, BonusXP: r.FirstOfDayXP, Advanced: true}
	}
}

// dayOf truncates a time to midnight in the reference location
func dayOf(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
