package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o644))
	return dir
}

func clearEnv(t *testing.T) {
	for _, k := range []string{"PORT", "SERVER_MODE", "JWT_SECRET", "DATABASE_DRIVER", "SQLITE_PATH", "REDIS_ENABLED"} {
		t.Setenv(k, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)
	dir := writeConfig(t, `
jwt:
  secret: test-secret
database:
  sqlite_path: ":memory:"
`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 7*24*time.Hour, cfg.JWT.ExpireTime)
	assert.Equal(t, 2*time.Second, cfg.Game.Cooldown())
	assert.Equal(t, 15*time.Second, cfg.Game.SessionTTL())
	assert.Equal(t, 90, cfg.Game.MinReactionMs)
	assert.Equal(t, 5000, cfg.Game.MaxReactionMs)
	assert.Equal(t, "memory", cfg.Game.LimiterBackend)
	assert.Equal(t, "logs/app.log", cfg.Log.File)
	assert.Equal(t, filepath.Join(dir, "config.yaml"), cfg.Path)
}

func TestLoadConfigOverrides(t *testing.T) {
	clearEnv(t)
	dir := writeConfig(t, `
server:
  port: "8080"
jwt:
  secret: test-secret
  expire_hours: 2
database:
  sqlite_path: ":memory:"
game:
  cooldown_ms: 500
  history_limit: 7
`)
	t.Setenv("PORT", "9090")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 2*time.Hour, cfg.JWT.ExpireTime)
	assert.Equal(t, 500*time.Millisecond, cfg.Game.Cooldown())
	assert.Equal(t, 7, cfg.Game.HistoryLimit)
}

func TestLoadConfigRejectsMissingSecret(t *testing.T) {
	clearEnv(t)
	dir := writeConfig(t, `
database:
  sqlite_path: ":memory:"
`)
	_, err := LoadConfig(dir)
	assert.Error(t, err)
}

func validConfig() *Config {
	return &Config{
		Server:   ServerConfig{Mode: "debug"},
		Database: DatabaseConfig{Driver: "sqlite"},
		JWT:      JWTConfig{Secret: "short"},
		Game: GameConfig{
			CooldownMs:     2000,
			MinReactionMs:  90,
			MaxReactionMs:  5000,
			SessionTTLMs:   15000,
			LimiterBackend: "memory",
		},
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	cases := map[string]func(c *Config){
		"short secret in release": func(c *Config) { c.Server.Mode = "release" },
		"zero cooldown":           func(c *Config) { c.Game.CooldownMs = 0 },
		"inverted bounds":         func(c *Config) { c.Game.MaxReactionMs = 80 },
		"ttl below max reaction":  func(c *Config) { c.Game.SessionTTLMs = 4000 },
		"redis limiter off":       func(c *Config) { c.Game.LimiterBackend = "redis" },
		"unknown limiter":         func(c *Config) { c.Game.LimiterBackend = "etcd" },
		"unknown driver":          func(c *Config) { c.Database.Driver = "oracle" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := validConfig()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}

	c := validConfig()
	c.Game.LimiterBackend = "redis"
	c.Redis.Enabled = true
	assert.NoError(t, c.Validate())
}
