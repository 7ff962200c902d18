package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Redis     RedisConfig
	Tracing   TracingConfig   `mapstructure:"tracing"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Game      GameConfig      `mapstructure:"game"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Log       LogConfig       `mapstructure:"log"`

	// Runtime flags, set from the command line rather than the config file.
	MigrateOnly bool   `mapstructure:"-"`
	Path        string `mapstructure:"-"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// RateLimitConfig is the coarse per-IP request throttle applied to every route.
type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Driver     string `mapstructure:"driver"`
	Host       string
	Port       int
	User       string
	Password   string
	DBName     string `mapstructure:"dbname"`
	Charset    string
	ParseTime  bool   `mapstructure:"parse_time"`
	SSLMode    string `mapstructure:"sslmode"`
	SQLitePath string `mapstructure:"sqlite_path"`
	LogSQL     bool   `mapstructure:"log_sql"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

// GameConfig holds the timing rules of the reaction challenge.
type GameConfig struct {
	CooldownMs       int    `mapstructure:"cooldown_ms"`
	MinReactionMs    int    `mapstructure:"min_reaction_ms"`
	MaxReactionMs    int    `mapstructure:"max_reaction_ms"`
	SessionTTLMs     int    `mapstructure:"session_ttl_ms"`
	LeaderboardLimit int    `mapstructure:"leaderboard_limit"`
	HistoryLimit     int    `mapstructure:"history_limit"`
	LimiterBackend   string `mapstructure:"limiter_backend"`
}

func (g GameConfig) Cooldown() time.Duration {
	return time.Duration(g.CooldownMs) * time.Millisecond
}

func (g GameConfig) SessionTTL() time.Duration {
	return time.Duration(g.SessionTTLMs) * time.Millisecond
}

// LogConfig selects the log level and rotated log file. An empty level
// follows the server mode; an empty file logs to the console only.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type AuditConfig struct {
	NATSEnabled bool   `mapstructure:"nats_enabled"`
	NATSURL     string `mapstructure:"nats_url"`
	NATSSubject string `mapstructure:"nats_subject"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.mode", "debug")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.sqlite_path", "data/reaction_timer.db")
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.parse_time", true)
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("jwt.expire_hours", 24*7)

	v.SetDefault("redis.port", 6379)

	v.SetDefault("rate_limit.max_requests", 600)
	v.SetDefault("rate_limit.window_minutes", 1)

	v.SetDefault("game.cooldown_ms", 2000)
	v.SetDefault("game.min_reaction_ms", 90)
	v.SetDefault("game.max_reaction_ms", 5000)
	v.SetDefault("game.session_ttl_ms", 15000)
	v.SetDefault("game.leaderboard_limit", 5)
	v.SetDefault("game.history_limit", 10)
	v.SetDefault("game.limiter_backend", "memory")

	v.SetDefault("log.file", "logs/app.log")

	v.SetDefault("audit.nats_url", "nats://127.0.0.1:4222")
	v.SetDefault("audit.nats_subject", "reaction.audit")
}

func LoadConfig(path string) (*Config, error) {
	// A local .env is optional; real environment variables win over it.
	_ = godotenv.Load(filepath.Join(path, "..", ".env"))

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("REACTION_TIMER")
	v.AutomaticEnv()

	setDefaults(v)

	// Database
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "DATABASE_NAME")
	v.BindEnv("database.sqlite_path", "SQLITE_PATH")

	// JWT
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.mode", "SERVER_MODE")

	// Tracing
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	// Log
	v.BindEnv("log.level", "LOG_LEVEL")

	// Audit
	v.BindEnv("audit.nats_enabled", "AUDIT_NATS_ENABLED")
	v.BindEnv("audit.nats_url", "NATS_URL")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour
	cfg.Path = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Database.Driver == "sqlite" && cfg.Database.SQLitePath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.SQLitePath), 0755); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

// Validate rejects configurations the game rules cannot run with.
func (c *Config) Validate() error {
	if c.Server.Mode == "release" && len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(c.JWT.Secret))
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret must be set")
	}

	g := c.Game
	if g.CooldownMs <= 0 {
		return fmt.Errorf("game.cooldown_ms must be positive, got %d", g.CooldownMs)
	}
	if g.MinReactionMs < 0 || g.MaxReactionMs <= g.MinReactionMs {
		return fmt.Errorf("game reaction bounds are invalid: [%d, %d]", g.MinReactionMs, g.MaxReactionMs)
	}
	if g.SessionTTLMs <= g.MaxReactionMs {
		return fmt.Errorf("game.session_ttl_ms (%d) must exceed game.max_reaction_ms (%d)", g.SessionTTLMs, g.MaxReactionMs)
	}
	switch g.LimiterBackend {
	case "memory":
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("game.limiter_backend is redis but redis.enabled is false")
		}
	default:
		return fmt.Errorf("unknown game.limiter_backend %q", g.LimiterBackend)
	}

	switch c.Database.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	return nil
}
