package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Session struct {
		// TTL bounds cache mirrors and join-code reservations.
		TTL string `yaml:"ttl"`
	} `yaml:"session"`
	Quiz struct {
		// TTL for cached quiz content.
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	RateLimit struct {
		JoinLimit  int    `yaml:"joinLimit"`
		JoinWindow string `yaml:"joinWindow"`
	} `yaml:"ratelimit"`
	Auth struct {
		Secret   string `yaml:"secret"`
		TokenTTL string `yaml:"tokenTtl"`
	} `yaml:"auth"`
	Scoring struct {
		StreakBonusStep      int     `yaml:"streakBonusStep"`
		PartialCreditPenalty float64 `yaml:"partialCreditPenalty"`
	} `yaml:"scoring"`
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
