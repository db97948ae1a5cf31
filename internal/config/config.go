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
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Questions struct {
		TTL string `yaml:"ttl"`
	} `yaml:"questions"`
	Duel struct {
		// Countdown budgets in time units; one tick interval equals one unit.
		SelectionBudget        int    `yaml:"selection_budget"`
		AnswerBudget           int    `yaml:"answer_budget"`
		StandaloneAnswerBudget int    `yaml:"standalone_answer_budget"`
		FeedbackBudget         int    `yaml:"feedback_budget"`
		TickInterval           string `yaml:"tick_interval"`
	} `yaml:"duel"`
	// Troops maps troop type names to category slugs; empty means the
	// built-in catalog.
	Troops map[string]string `yaml:"troops"`
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

// Budget returns a countdown budget or the fallback if unset.
func Budget(raw, fallback int) int {
	if raw <= 0 {
		return fallback
	}
	return raw
}
