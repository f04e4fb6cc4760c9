package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "localhost", cfg.Postgres.Host)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, "park-actions", cfg.Kafka.Topic)
	assert.Equal(t, "progression-consumer", cfg.Kafka.GroupID)
	assert.True(t, cfg.Rebuild.Enabled)
	assert.Equal(t, 30*time.Minute, cfg.Rebuild.Interval)

	assert.Equal(t, int64(10), cfg.Progression.FirstOfDayXP)
	assert.Equal(t, int64(5), cfg.Progression.DailyStreakBonusXP)
	assert.Equal(t, int64(50), cfg.Progression.WeeklyStreakBonusXP)
	assert.Equal(t, int64(200), cfg.Progression.MonthlyStreakBonusXP)
	assert.Equal(t, int64(25), cfg.Progression.ChallengeApprovedXP)
	assert.Equal(t, int64(30), cfg.Progression.EventAttendedXP)
	assert.Equal(t, int64(15), cfg.Progression.SaleCompletedXP)
	assert.Equal(t, 100, cfg.Progression.DefaultLimit)
	assert.Equal(t, 1000, cfg.Progression.MaxLimit)
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
progression:
  first_of_day_xp: 20
  timezone: America/New_York
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, int64(20), cfg.Progression.FirstOfDayXP)
	assert.Equal(t, int64(5), cfg.Progression.DailyStreakBonusXP)
	assert.Equal(t, "park-actions", cfg.Kafka.Topic)

	loc, err := cfg.Progression.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", loc.String())
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("PROGRESSION_TEST_PG_PASSWORD", "s3cret")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
postgres:
  password: ${PROGRESSION_TEST_PG_PASSWORD}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Postgres.Password)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLocationDefaultsToUTC(t *testing.T) {
	cfg := ProgressionConfig{}

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLocationRejectsBogusZone(t *testing.T) {
	cfg := ProgressionConfig{Timezone: "Mars/Olympus_Mons"}

	_, err := cfg.Location()
	assert.Error(t, err)
}

func TestConnectionString(t *testing.T) {
	cfg := PostgresConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "progression",
		Password: "pw",
		Database: "park",
	}

	assert.Equal(t,
		"postgres://progression:pw@db.internal:5433/park?sslmode=disable",
		cfg.ConnectionString())
}
