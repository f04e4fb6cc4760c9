package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rampline/progression/internal/config"
	"github.com/rampline/progression/internal/domain"
)

const uniqueViolation = "23505"

// Repository provides PostgreSQL-based data access
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Pool returns the underlying connection pool
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS skaters (
			id VARCHAR(64) PRIMARY KEY,
			username VARCHAR(64) NOT NULL UNIQUE,
			email VARCHAR(255),
			avatar_url TEXT,
			xp BIGINT NOT NULL DEFAULT 0 CHECK (xp >= 0),
			level INT NOT NULL DEFAULT 1 CHECK (level >= 1),
			streak INT NOT NULL DEFAULT 0 CHECK (streak >= 0),
			last_visit_date DATE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS badges (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			description TEXT,
			rarity VARCHAR(20) NOT NULL DEFAULT 'common',
			criteria_kind VARCHAR(32) NOT NULL,
			criteria_threshold BIGINT NOT NULL DEFAULT 0,
			criteria_cutoff TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS user_badges (
			skater_id VARCHAR(64) NOT NULL REFERENCES skaters(id) ON DELETE CASCADE,
			badge_id VARCHAR(64) NOT NULL REFERENCES badges(id) ON DELETE CASCADE,
			earned_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (skater_id, badge_id)
		)`,
		`CREATE TABLE IF NOT EXISTS action_events (
			id BIGSERIAL PRIMARY KEY,
			skater_id VARCHAR(64) NOT NULL,
			kind VARCHAR(32) NOT NULL,
			ref_id VARCHAR(64),
			xp BIGINT NOT NULL DEFAULT 0,
			metadata JSONB,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_action_events_skater_kind ON action_events(skater_id, kind)`,
		`CREATE INDEX IF NOT EXISTS idx_action_events_created ON action_events(skater_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_skaters_xp ON skaters(xp DESC)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

const skaterColumns = `id, username, email, avatar_url, xp, level, streak, last_visit_date, created_at, updated_at`

func scanSkater(row pgx.Row) (*domain.Skater, error) {
	var s domain.Skater
	var email, avatarURL *string
	err := row.Scan(
		&s.ID,
		&s.Username,
		&email,
		&avatarURL,
		&s.XP,
		&s.Level,
		&s.Streak,
		&s.LastVisitDate,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if email != nil {
		s.Email = *email
	}
	if avatarURL != nil {
		s.AvatarURL = *avatarURL
	}
	return &s, nil
}

// CreateSkater registers a new skater with zeroed progression state
func (r *Repository) CreateSkater(ctx context.Context, req domain.CreateSkaterRequest) (*domain.Skater, error) {
	query := `
		INSERT INTO skaters (id, username, email, avatar_url, xp, level, streak, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), 0, 1, 0, $5, $5)
		RETURNING ` + skaterColumns
	now := time.Now()
	skater, err := scanSkater(r.pool.QueryRow(ctx, query, req.ID, req.Username, req.Email, req.AvatarURL, now))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, domain.ErrSkaterExists
		}
		return nil, fmt.Errorf("creating skater: %w", err)
	}
	return skater, nil
}

// GetSkater retrieves a skater by ID
func (r *Repository) GetSkater(ctx context.Context, skaterID string) (*domain.Skater, error) {
	query := `SELECT ` + skaterColumns + ` FROM skaters WHERE id = $1`
	skater, err := scanSkater(r.pool.QueryRow(ctx, query, skaterID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSkaterNotFound
		}
		return nil, fmt.Errorf("getting skater: %w", err)
	}
	return skater, nil
}

// AddXP applies an XP delta inside a single transaction and recomputes the
// level from the new total, so xp and level are never written independently.
// The stored total is floored at zero when a correction would underflow.
func (r *Repository) AddXP(ctx context.Context, skaterID string, delta int64) (*domain.Skater, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var xp int64
	err = tx.QueryRow(ctx, `SELECT xp FROM skaters WHERE id = $1 FOR UPDATE`, skaterID).Scan(&xp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSkaterNotFound
		}
		return nil, fmt.Errorf("locking skater: %w", err)
	}

	newXP := xp + delta
	if newXP < 0 {
		newXP = 0
	}
	newLevel := domain.CalculateLevel(newXP)

	query := `
		UPDATE skaters SET xp = $2, level = $3, updated_at = $4
		WHERE id = $1
		RETURNING ` + skaterColumns
	skater, err := scanSkater(tx.QueryRow(ctx, query, skaterID, newXP, newLevel, time.Now()))
	if err != nil {
		return nil, fmt.Errorf("updating xp: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing xp update: %w", err)
	}
	return skater, nil
}

// RecordVisit advances the skater's streak for a visit at now and applies the
// bonus XP. Streak, last visit date, xp and level are written in one
// transaction; a same-day revisit commits nothing and returns the skater
// unchanged.
func (r *Repository) RecordVisit(ctx context.Context, skaterID string, rules domain.StreakRules, now time.Time, loc *time.Location) (*domain.Skater, *domain.StreakResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	lockQuery := `SELECT ` + skaterColumns + ` FROM skaters WHERE id = $1 FOR UPDATE`
	skater, err := scanSkater(tx.QueryRow(ctx, lockQuery, skaterID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, domain.ErrSkaterNotFound
		}
		return nil, nil, fmt.Errorf("locking skater: %w", err)
	}

	result := rules.Advance(skater.LastVisitDate, skater.Streak, now, loc)
	if !result.Advanced {
		return skater, &result, nil
	}

	newXP := skater.XP + result.BonusXP
	newLevel := domain.CalculateLevel(newXP)

	query := `
		UPDATE skaters SET xp = $2, level = $3, streak = $4, last_visit_date = $5, updated_at = $6
		WHERE id = $1
		RETURNING ` + skaterColumns
	updated, err := scanSkater(tx.QueryRow(ctx, query, skaterID, newXP, newLevel, result.Streak, now.In(loc), time.Now()))
	if err != nil {
		return nil, nil, fmt.Errorf("updating streak: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("committing visit: %w", err)
	}
	return updated, &result, nil
}

// RecordAction appends an action event to the audit log
func (r *Repository) RecordAction(ctx context.Context, event domain.ActionEvent) error {
	var metadataJSON []byte
	var err error
	if event.Metadata != nil {
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata: %w", err)
		}
	}

	query := `
		INSERT INTO action_events (skater_id, kind, ref_id, xp, metadata, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)
	`
	_, err = r.pool.Exec(ctx, query,
		event.SkaterID,
		string(event.Kind),
		event.RefID,
		event.XP,
		metadataJSON,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("recording action event: %w", err)
	}
	return nil
}

// CountActions counts recorded events of a kind for a skater. Visit counts,
// approved challenge counts, event attendances and completed sales are all
// derived this way rather than stored.
func (r *Repository) CountActions(ctx context.Context, skaterID string, kind domain.ActionKind) (int64, error) {
	query := `SELECT COUNT(*) FROM action_events WHERE skater_id = $1 AND kind = $2`
	var count int64
	err := r.pool.QueryRow(ctx, query, skaterID, string(kind)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting actions: %w", err)
	}
	return count, nil
}

// CreateBadge adds a badge definition to the catalog
func (r *Repository) CreateBadge(ctx context.Context, badge domain.Badge) error {
	query := `
		INSERT INTO badges (id, name, description, rarity, criteria_kind, criteria_threshold, criteria_cutoff, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		badge.ID,
		badge.Name,
		badge.Description,
		string(badge.Rarity),
		string(badge.Criteria.Kind),
		badge.Criteria.Threshold,
		badge.Criteria.Cutoff,
		badge.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrBadgeExists
		}
		return fmt.Errorf("creating badge: %w", err)
	}
	return nil
}

const badgeColumns = `id, name, description, rarity, criteria_kind, criteria_threshold, criteria_cutoff, created_at`

func scanBadge(row pgx.Row) (*domain.Badge, error) {
	var b domain.Badge
	var description *string
	err := row.Scan(
		&b.ID,
		&b.Name,
		&description,
		&b.Rarity,
		&b.Criteria.Kind,
		&b.Criteria.Threshold,
		&b.Criteria.Cutoff,
		&b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if description != nil {
		b.Description = *description
	}
	return &b, nil
}

// GetBadge retrieves a badge by ID
func (r *Repository) GetBadge(ctx context.Context, badgeID string) (*domain.Badge, error) {
	query := `SELECT ` + badgeColumns + ` FROM badges WHERE id = $1`
	badge, err := scanBadge(r.pool.QueryRow(ctx, query, badgeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBadgeNotFound
		}
		return nil, fmt.Errorf("getting badge: %w", err)
	}
	return badge, nil
}

// ListBadges retrieves the full badge catalog
func (r *Repository) ListBadges(ctx context.Context) ([]domain.Badge, error) {
	query := `SELECT ` + badgeColumns + ` FROM badges ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing badges: %w", err)
	}
	defer rows.Close()

	var badges []domain.Badge
	for rows.Next() {
		badge, err := scanBadge(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning badge: %w", err)
		}
		badges = append(badges, *badge)
	}
	return badges, nil
}

// ListSkaterBadgeIDs returns the set of badge ids already earned by a skater
func (r *Repository) ListSkaterBadgeIDs(ctx context.Context, skaterID string) (map[string]bool, error) {
	query := `SELECT badge_id FROM user_badges WHERE skater_id = $1`
	rows, err := r.pool.Query(ctx, query, skaterID)
	if err != nil {
		return nil, fmt.Errorf("listing earned badge ids: %w", err)
	}
	defer rows.Close()

	earned := make(map[string]bool)
	for rows.Next() {
		var badgeID string
		if err := rows.Scan(&badgeID); err != nil {
			return nil, fmt.Errorf("scanning badge id: %w", err)
		}
		earned[badgeID] = true
	}
	return earned, nil
}

// ListSkaterBadges returns a skater's earned badges with catalog details
func (r *Repository) ListSkaterBadges(ctx context.Context, skaterID string) ([]domain.EarnedBadge, error) {
	query := `
		SELECT b.id, b.name, b.description, b.rarity, b.criteria_kind, b.criteria_threshold, b.criteria_cutoff, b.created_at, ub.earned_at
		FROM user_badges ub
		JOIN badges b ON b.id = ub.badge_id
		WHERE ub.skater_id = $1
		ORDER BY ub.earned_at
	`
	rows, err := r.pool.Query(ctx, query, skaterID)
	if err != nil {
		return nil, fmt.Errorf("listing earned badges: %w", err)
	}
	defer rows.Close()

	var earned []domain.EarnedBadge
	for rows.Next() {
		var eb domain.EarnedBadge
		var description *string
		err := rows.Scan(
			&eb.ID,
			&eb.Name,
			&description,
			&eb.Rarity,
			&eb.Criteria.Kind,
			&eb.Criteria.Threshold,
			&eb.Criteria.Cutoff,
			&eb.CreatedAt,
			&eb.EarnedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning earned badge: %w", err)
		}
		if description != nil {
			eb.Description = *description
		}
		earned = append(earned, eb)
	}
	return earned, nil
}

// AwardBadge grants a badge to a skater. The composite primary key makes the
// insert idempotent: a duplicate award affects zero rows and is reported as
// already held, never as an error.
func (r *Repository) AwardBadge(ctx context.Context, skaterID, badgeID string, earnedAt time.Time) (bool, error) {
	query := `
		INSERT INTO user_badges (skater_id, badge_id, earned_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (skater_id, badge_id) DO NOTHING
	`
	result, err := r.pool.Exec(ctx, query, skaterID, badgeID, earnedAt)
	if err != nil {
		return false, fmt.Errorf("awarding badge: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// AllSkaterXP retrieves every skater's XP total (for leaderboard rebuilds)
func (r *Repository) AllSkaterXP(ctx context.Context) (map[string]int64, error) {
	query := `SELECT id, xp FROM skaters`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("getting all xp totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]int64)
	for rows.Next() {
		var skaterID string
		var xp int64
		if err := rows.Scan(&skaterID, &xp); err != nil {
			return nil, fmt.Errorf("scanning xp total: %w", err)
		}
		totals[skaterID] = xp
	}
	return totals, nil
}

// SkaterCount returns the total number of registered skaters
func (r *Repository) SkaterCount(ctx context.Context) (int64, error) {
	query := `SELECT COUNT(*) FROM skaters`
	var count int64
	err := r.pool.QueryRow(ctx, query).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting skaters: %w", err)
	}
	return count, nil
}
