package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	cfg := fromViper(v)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 7, cfg.Audits.UpcomingWindowDays)
	assert.InDelta(t, 0.5, cfg.Audits.ScoreThreshold, 0.0001)
	assert.Equal(t, "medium", cfg.Audits.DefaultSeverity)
	assert.Equal(t, "audit.events", cfg.Notifications.Channel)
	assert.Equal(t, 2*time.Second, cfg.Notifications.RetryDelay)
	assert.Equal(t, 10*time.Minute, cfg.Archives.StatsCacheTTL)
}

func TestOutOfRangeThresholdFallsBack(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("AUDIT_SCORE_THRESHOLD", 4.2)
	v.Set("AUDIT_UPCOMING_WINDOW_DAYS", -1)
	v.Set("ARCHIVE_STATS_CACHE_TTL", "soon")
	cfg := fromViper(v)

	assert.InDelta(t, 0.5, cfg.Audits.ScoreThreshold, 0.0001)
	assert.Equal(t, 7, cfg.Audits.UpcomingWindowDays)
	assert.Equal(t, 10*time.Minute, cfg.Archives.StatsCacheTTL)
}

func TestSplitAndTrim(t *testing.T) {
	assert.Nil(t, splitAndTrim(""))
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, splitAndTrim(" https://a.test, ,https://b.test "))
}
