// Package config loads service configuration from an optional YAML file and
// the environment. Environment keys are the config keys upper-cased with "."
// replaced by "_" (SERVER_ADDR, SESSION_BACKEND, REDIS_ADDRESS, ...).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/whisper/roomchat/internal/logging"
)

// Session backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Config struct {
	Server     ServerConfig
	Room       RoomConfig
	Session    SessionConfig
	Redis      RedisConfig
	NATS       NATSConfig      `mapstructure:"nats"`
	RateLimit  RateLimitConfig `mapstructure:"ratelimit"`
	Moderation ModerationConfig
	Log        logging.Config
}

type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type RoomConfig struct {
	Capacity int
}

type SessionConfig struct {
	Backend string
	TTL     time.Duration `mapstructure:"ttl"`
	Cookie  string
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int `mapstructure:"db"`
}

type NATSConfig struct {
	Enabled bool
	URL     string `mapstructure:"url"`
	Name    string
}

type RateLimitConfig struct {
	Enabled bool
	Login   RuleConfig
	Send    RuleConfig
}

// RuleConfig is one operation's allowance: Limit calls per Window.
type RuleConfig struct {
	Limit  int
	Window time.Duration
}

type ModerationConfig struct {
	Terms []string
}

// Load reads configuration. A non-empty path must name a readable file;
// otherwise config.yaml is looked up in "." and "./config" and may be absent.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: read: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("room.capacity", 1000)
	v.SetDefault("session.backend", BackendMemory)
	v.SetDefault("session.ttl", time.Hour)
	v.SetDefault("session.cookie", "CHATSESSION")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.name", "roomchat")
	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.login.limit", 10)
	v.SetDefault("ratelimit.login.window", time.Minute)
	v.SetDefault("ratelimit.send.limit", 5)
	v.SetDefault("ratelimit.send.window", 10*time.Second)
	v.SetDefault("moderation.terms", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.service_name", "")
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	switch c.Session.Backend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("config: session.backend must be %q or %q, got %q", BackendMemory, BackendRedis, c.Session.Backend)
	}
	if c.Session.Cookie == "" {
		return errors.New("config: session.cookie must not be empty")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("config: session.ttl must be positive, got %s", c.Session.TTL)
	}
	if c.Server.Addr == "" {
		return errors.New("config: server.addr must not be empty")
	}
	if c.RateLimit.Enabled && c.Session.Backend != BackendRedis {
		return errors.New("config: ratelimit.enabled requires session.backend=redis")
	}
	return nil
}
