package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, "auth_token", cfg.Session.CookieName)
	assert.Equal(t, 7*24*time.Hour, cfg.Session.TokenTTL)
	assert.Equal(t, time.Hour, cfg.Reset.TokenTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.Retention.TrashTTL)
	assert.Equal(t, 24*time.Hour, cfg.Retention.SweepInterval)
	assert.False(t, cfg.Session.CookieSecure)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("ENV", "prod")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SESSION_TTL", "48h")
	t.Setenv("TRASH_TTL", "168h")
	t.Setenv("DB_USE_SSL", "true")

	cfg := LoadConfig()

	assert.Equal(t, 9090, cfg.ServerPort)
	assert.Equal(t, 48*time.Hour, cfg.Session.TokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Retention.TrashTTL)
	assert.True(t, cfg.Database.UseSSL)
	assert.True(t, cfg.Session.CookieSecure, "prod sessions use secure cookies")
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("FLAG", "yes")
	assert.True(t, getEnvBool("FLAG", false))

	t.Setenv("FLAG", "0")
	assert.False(t, getEnvBool("FLAG", true))

	t.Setenv("FLAG", "garbage")
	assert.True(t, getEnvBool("FLAG", true))
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TTL", "90m")
	assert.Equal(t, 90*time.Minute, getEnvDuration("TTL", time.Hour))

	t.Setenv("TTL", "not-a-duration")
	assert.Equal(t, time.Hour, getEnvDuration("TTL", time.Hour))
}
