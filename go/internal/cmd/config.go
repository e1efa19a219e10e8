package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the server configuration. Values from the YAML file can be
// overridden by environment variables in loadConfig.
type Config struct {
	Quiz struct {
		PerQuestionSec int `yaml:"per_question_sec"`
	} `yaml:"quiz"`
	TTS struct {
		CacheDir string `yaml:"cache_dir"`
		Endpoint string `yaml:"endpoint"`
	} `yaml:"tts"`
	NATS struct {
		URL string `yaml:"url"`
	} `yaml:"nats"`
}

func defaultConfig() *Config {
	var cfg Config
	cfg.Quiz.PerQuestionSec = 20
	cfg.TTS.CacheDir = "/tmp/tts-cache"
	return &cfg
}

// loadConfig reads the YAML config at path (optional) and applies
// environment overrides.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.Quiz.PerQuestionSec = getEnvAsInt("QUIZ_PER_QUESTION_SEC", cfg.Quiz.PerQuestionSec)
	cfg.TTS.CacheDir = getEnv("TTS_CACHE_DIR", cfg.TTS.CacheDir)
	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)

	if cfg.Quiz.PerQuestionSec < 1 {
		return nil, fmt.Errorf("per_question_sec must be at least 1, got %d", cfg.Quiz.PerQuestionSec)
	}

	return cfg, nil
}

// PerQuestion returns the question deadline as a duration.
func (c *Config) PerQuestion() time.Duration {
	return time.Duration(c.Quiz.PerQuestionSec) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
