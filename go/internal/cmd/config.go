package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the tickdownd server configuration.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Countdowns []CountdownConfig `yaml:"countdowns"`

	Broadcast struct {
		Interval Duration `yaml:"interval"`
	} `yaml:"broadcast"`
}

// Duration parses yaml duration strings like "5s" or "2m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// CountdownConfig declares one served countdown.
type CountdownConfig struct {
	Key      string    `yaml:"key"`
	Deadline time.Time `yaml:"deadline"`
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if len(config.Countdowns) == 0 {
		return nil, fmt.Errorf("config declares no countdowns")
	}
	for _, c := range config.Countdowns {
		if c.Key == "" || c.Deadline.IsZero() {
			return nil, fmt.Errorf("countdown entries need both key and deadline")
		}
	}

	return &config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
