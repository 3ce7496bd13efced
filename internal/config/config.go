// Package config loads runtime configuration from environment variables,
// with an optional YAML overlay file for dashboard tuning.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration values.
type Config struct {
	// Backend API
	APIURL string
	UserID string

	// Display
	AppTitle string

	// Logging
	LogFile  string
	LogLevel slog.Level

	// Simulation vs. live backend
	Simulate bool

	// Timers and simulation policy
	StageTickInterval  time.Duration
	HealthTickInterval time.Duration
	RefreshLatency     time.Duration
	ReplyDelay         time.Duration
	MaxStageStep       int
	PromoteChance      float64
	LatencyJitter      float64
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		APIURL:   getEnv("PRODSCOPE_API_URL", "http://localhost:8000"),
		UserID:   getEnv("PRODSCOPE_USER_ID", "default"),
		AppTitle: getEnv("PRODSCOPE_APP_TITLE", "ProdScope"),

		LogFile:  getEnv("PRODSCOPE_LOG_FILE", "/tmp/prodscope.log"),
		LogLevel: parseLogLevel(getEnv("PRODSCOPE_LOG_LEVEL", "INFO")),

		Simulate: getEnv("PRODSCOPE_SIMULATE", "true") == "true",

		StageTickInterval:  getDuration("PRODSCOPE_STAGE_TICK", 800*time.Millisecond),
		HealthTickInterval: getDuration("PRODSCOPE_HEALTH_TICK", 3*time.Second),
		RefreshLatency:     getDuration("PRODSCOPE_REFRESH_LATENCY", 1500*time.Millisecond),
		ReplyDelay:         getDuration("PRODSCOPE_REPLY_DELAY", 1200*time.Millisecond),
		MaxStageStep:       getInt("PRODSCOPE_MAX_STAGE_STEP", 15),
		PromoteChance:      getFloat("PRODSCOPE_PROMOTE_CHANCE", 0.3),
		LatencyJitter:      getFloat("PRODSCOPE_LATENCY_JITTER", 0.15),
	}
}

// fileConfig is the YAML overlay shape. Pointer fields so absent keys leave
// the env-derived value alone.
type fileConfig struct {
	APIURL             *string  `yaml:"api_url"`
	UserID             *string  `yaml:"user_id"`
	AppTitle           *string  `yaml:"app_title"`
	LogFile            *string  `yaml:"log_file"`
	LogLevel           *string  `yaml:"log_level"`
	Simulate           *bool    `yaml:"simulate"`
	StageTickInterval  *string  `yaml:"stage_tick_interval"`
	HealthTickInterval *string  `yaml:"health_tick_interval"`
	RefreshLatency     *string  `yaml:"refresh_latency"`
	ReplyDelay         *string  `yaml:"reply_delay"`
	MaxStageStep       *int     `yaml:"max_stage_step"`
	PromoteChance      *float64 `yaml:"promote_chance"`
	LatencyJitter      *float64 `yaml:"latency_jitter"`
}

// LoadWithFile loads from the environment, then overlays values present in
// the given YAML file. An empty path skips the overlay.
func LoadWithFile(path string) (Config, error) {
	cfg := Load()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}

	if fc.APIURL != nil {
		cfg.APIURL = *fc.APIURL
	}
	if fc.UserID != nil {
		cfg.UserID = *fc.UserID
	}
	if fc.AppTitle != nil {
		cfg.AppTitle = *fc.AppTitle
	}
	if fc.LogFile != nil {
		cfg.LogFile = *fc.LogFile
	}
	if fc.LogLevel != nil {
		cfg.LogLevel = parseLogLevel(*fc.LogLevel)
	}
	if fc.Simulate != nil {
		cfg.Simulate = *fc.Simulate
	}
	if fc.MaxStageStep != nil {
		cfg.MaxStageStep = *fc.MaxStageStep
	}
	if fc.PromoteChance != nil {
		cfg.PromoteChance = *fc.PromoteChance
	}
	if fc.LatencyJitter != nil {
		cfg.LatencyJitter = *fc.LatencyJitter
	}
	for _, d := range []struct {
		src *string
		dst *time.Duration
	}{
		{fc.StageTickInterval, &cfg.StageTickInterval},
		{fc.HealthTickInterval, &cfg.HealthTickInterval},
		{fc.RefreshLatency, &cfg.RefreshLatency},
		{fc.ReplyDelay, &cfg.ReplyDelay},
	} {
		if d.src == nil {
			continue
		}
		parsed, err := time.ParseDuration(*d.src)
		if err != nil {
			return cfg, fmt.Errorf("parse duration %q: %w", *d.src, err)
		}
		*d.dst = parsed
	}
	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
