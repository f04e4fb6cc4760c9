package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateLevel(t *testing.T) {
	tests := []struct {
		name  string
		xp    int64
		level int
	}{
		{"zero xp", 0, 1},
		{"just below level 2", 99, 1},
		{"exactly at level 2", 100, 2},
		{"inside level 2 band", 250, 2},
		{"exactly at level 3", 300, 3},
		{"exactly at level 5", 1000, 5},
		{"top threshold", 10500, 15},
		{"beyond top threshold", 1_000_000, 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.level, CalculateLevel(tt.xp))
		})
	}
}

func TestCalculateLevelMonotonic(t *testing.T) {
	prev := 0
	for xp := int64(0); xp <= 12000; xp += 17 {
		level := CalculateLevel(xp)
		require.GreaterOrEqual(t, level, prev, "level dropped at xp=%d", xp)
		prev = level
	}
}

func TestThresholdsStrictlyIncreasing(t *testing.T) {
	require.Equal(t, int64(0), Thresholds[0])
	for i := 1; i < len(Thresholds); i++ {
		require.Greater(t, Thresholds[i], Thresholds[i-1], "threshold %d", i)
	}
}

func TestXPProgress(t *testing.T) {
	tests := []struct {
		name     string
		xp       int64
		level    int
		current  int64
		required int64
		percent  int
	}{
		{"fresh skater", 0, 1, 0, 100, 0},
		{"halfway to level 2", 50, 1, 50, 100, 50},
		{"zero at boundary", 100, 2, 0, 200, 0},
		{"inside level 2 band", 250, 2, 150, 200, 75},
		{"top level caps at 100", 50000, 15, 39500, 1400, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := XPProgress(tt.xp)
			assert.Equal(t, tt.level, p.Level)
			assert.Equal(t, tt.current, p.Current)
			assert.Equal(t, tt.required, p.Required)
			assert.Equal(t, tt.percent, p.ProgressPercent)
		})
	}
}

func TestXPProgressPercentBounds(t *testing.T) {
	for xp := int64(0); xp <= 15000; xp += 37 {
		p := XPProgress(xp)
		require.GreaterOrEqual(t, p.ProgressPercent, 0, "xp=%d", xp)
		require.LessOrEqual(t, p.ProgressPercent, 100, "xp=%d", xp)
		require.GreaterOrEqual(t, p.Current, int64(0), "xp=%d", xp)
		require.Positive(t, p.Required, "xp=%d", xp)
	}
}
