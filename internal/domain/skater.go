package domain

import "time"

// Skater represents a park member tracked by the progression system
type Skater struct {
	ID            string     `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email,omitempty"`
	AvatarURL     string     `json:"avatar_url,omitempty"`
	XP            int64      `json:"xp"`
	Level         int        `json:"level"`
	Streak        int        `json:"streak"`
	LastVisitDate *time.Time `json:"last_visit_date,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// CreateSkaterRequest represents a request to register a skater
type CreateSkaterRequest struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// RankEntry represents a single entry in the XP leaderboard
type RankEntry struct {
	Rank     int64  `json:"rank"`
	SkaterID string `json:"skater_id"`
	XP       int64  `json:"xp"`
	Username string `json:"username,omitempty"`
}

// BoardStats contains statistics about the XP leaderboard
type BoardStats struct {
	TotalSkaters int64 `json:"total_skaters"`
	TopXP        int64 `json:"top_xp,omitempty"`
}
