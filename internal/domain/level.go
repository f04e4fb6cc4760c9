package domain

// Thresholds maps level number to the cumulative XP required to reach it.
// Index 0 corresponds to level 1. The sequence must be strictly increasing
// and start at 0.
var Thresholds = []int64{
	0,     // level 1
	100,   // level 2
	300,   // level 3
	600,   // level 4
	1000,  // level 5
	1500,  // level 6
	2100,  // level 7
	2800,  // level 8
	3600,  // level 9
	4500,  // level 10
	5500,  // level 11
	6600,  // level 12
	7800,  // level 13
	9100,  // level 14
	10500, // level 15
}

// CalculateLevel returns the level for an XP amount: the largest 1-indexed i
// such that Thresholds[i-1] <= xp. XP below the first threshold maps to
// level 1. Monotonic non-decreasing in xp.
func CalculateLevel(xp int64) int {
	level := 1
	for i, threshold := range Thresholds {
		if xp < threshold {
			break
		}
		level = i + 1
	}
	return level
}

// LevelProgress describes progress within the current level band
type LevelProgress struct {
	Level           int   `json:"level"`
	Current         int64 `json:"current"`
	Required        int64 `json:"required"`
	ProgressPercent int   `json:"progress_percent"`
}

// XPProgress returns the skater's position within their current level band.
// At the final defined level the required distance degenerates to the width
// of the last band and progress reports 100.
func XPProgress(xp int64) LevelProgress {
	level := CalculateLevel(xp)
	base := Thresholds[level-1]

	var required int64
	if level < len(Thresholds) {
		required = Thresholds[level] - base
	} else {
		required = base - Thresholds[level-2]
	}

	current := xp - base
	percent := int(current * 100 / required)
	if percent > 100 {
		percent = 100
	}

	return LevelProgress{
		Level:           level,
		Current:         current,
		Required:        required,
		ProgressPercent: percent,
	}
}
