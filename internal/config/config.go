package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the YAML leaves a knob unset.
const (
	DefaultSchedulerInterval = 40 * time.Second
	DefaultSchedulerBatch    = 50
	DefaultComputableCap     = 5
	DefaultGradingTimeout    = 5 * time.Second
	DefaultStandingsTTL      = 30 * time.Second
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Scheduler struct {
		Interval  string `yaml:"interval"`
		BatchSize int    `yaml:"batch_size"`
	} `yaml:"scheduler"`
	Scoring struct {
		ComputableCap int `yaml:"computable_cap"`
	} `yaml:"scoring"`
	Grading struct {
		BaseURL string `yaml:"base_url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"grading"`
	Standings struct {
		TTL string `yaml:"ttl"`
	} `yaml:"standings"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// SchedulerInterval returns the scan interval, falling back to the default.
func (c Config) SchedulerInterval() time.Duration {
	return duration(c.Scheduler.Interval, DefaultSchedulerInterval)
}

// SchedulerBatchSize returns how many due quizzes one scan may claim.
func (c Config) SchedulerBatchSize() int {
	if c.Scheduler.BatchSize <= 0 {
		return DefaultSchedulerBatch
	}
	return c.Scheduler.BatchSize
}

// ComputableCap returns how many quizzes may count toward a competition total.
func (c Config) ComputableCap() int {
	if c.Scoring.ComputableCap <= 0 {
		return DefaultComputableCap
	}
	return c.Scoring.ComputableCap
}

// GradingTimeout returns the grading HTTP client timeout.
func (c Config) GradingTimeout() time.Duration {
	return duration(c.Grading.Timeout, DefaultGradingTimeout)
}

// StandingsTTL returns how long cached standings stay fresh.
func (c Config) StandingsTTL() time.Duration {
	return duration(c.Standings.TTL, DefaultStandingsTTL)
}

// duration parses a duration string or returns the fallback if empty/invalid.
func duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
