package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
	Redis     RedisConfig     `yaml:"redis" envPrefix:"REDIS_"`
	Postgres  PostgresConfig  `yaml:"postgres" envPrefix:"POSTGRES_"`
	NATS      NATSConfig      `yaml:"nats" envPrefix:"NATS_"`
	Questions QuestionsConfig `yaml:"questions" envPrefix:"QUESTIONS_"`
	Feed      FeedConfig      `yaml:"feed" envPrefix:"FEED_"`
	Duel      DuelConfig      `yaml:"duel" envPrefix:"DUEL_"`
}

type ServerConfig struct {
	Port        string   `yaml:"port" env:"PORT"`
	CORSOrigins []string `yaml:"cors_origins" env:"CORS_ORIGINS"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Pretty bool   `yaml:"pretty" env:"PRETTY"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
}

type PostgresConfig struct {
	URL string `yaml:"url" env:"URL"`
}

type NATSConfig struct {
	URL string `yaml:"url" env:"URL"`
}

type QuestionsConfig struct {
	TTL string `yaml:"ttl" env:"TTL"`
}

// FeedConfig picks the change feed: memory, redis, postgres or nats.
type FeedConfig struct {
	Driver  string `yaml:"driver" env:"DRIVER"`
	Channel string `yaml:"channel" env:"CHANNEL"`
}

type DuelConfig struct {
	RevealDelay        string `yaml:"reveal_delay" env:"REVEAL_DELAY"`
	Draw               string `yaml:"draw" env:"DRAW"`
	MaxConflictRetries int    `yaml:"max_conflict_retries" env:"MAX_CONFLICT_RETRIES"`
	LockTTL            string `yaml:"lock_ttl" env:"LOCK_TTL"`
	RoundTTL           string `yaml:"round_ttl" env:"ROUND_TTL"`
}

// Load reads YAML config from path, then applies environment overrides.
// A missing file leaves the YAML layer empty.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, err
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// FeedDriver returns the configured driver, defaulting to memory.
func (c Config) FeedDriver() string {
	if c.Feed.Driver == "" {
		return "memory"
	}
	return c.Feed.Driver
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
