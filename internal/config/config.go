// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Log       LogConfig
	Search    SearchConfig
	Analytics AnalyticsConfig
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Port int `env:"PORT" envDefault:"8080"`
}

// RedisConfig holds the connection settings for the shared store backing
// the result cache, the quota counter and the refresh markers.
type RedisConfig struct {
	URL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Pretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

// SearchConfig holds the search provider settings.
type SearchConfig struct {
	APIKey     string `env:"SEARCH_API_KEY"`
	EngineID   string `env:"SEARCH_ENGINE_ID"`
	BaseURL    string `env:"SEARCH_BASE_URL"`
	DailyQuota int64  `env:"SEARCH_DAILY_QUOTA" envDefault:"100"`
}

// AnalyticsConfig holds the reporting provider credential and endpoints.
// PrivateKey accepts literal "\n" sequences so the PEM block can be passed
// through a single-line environment variable.
type AnalyticsConfig struct {
	ClientEmail string `env:"ANALYTICS_CLIENT_EMAIL"`
	PrivateKey  string `env:"ANALYTICS_PRIVATE_KEY"`
	TokenURL    string `env:"ANALYTICS_TOKEN_URL" envDefault:"https://oauth2.googleapis.com/token"`
	Scope       string `env:"ANALYTICS_SCOPE" envDefault:"https://www.googleapis.com/auth/analytics.readonly"`
	PropertyID  string `env:"ANALYTICS_PROPERTY_ID"`
	BaseURL     string `env:"ANALYTICS_BASE_URL"`
}

// Load reads configuration from the process environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	cfg.Analytics.PrivateKey = strings.ReplaceAll(cfg.Analytics.PrivateKey, `\n`, "\n")

	return cfg, nil
}

// HasSearch returns true if the search provider configuration is complete.
func (c *Config) HasSearch() bool {
	return c.Search.APIKey != "" && c.Search.EngineID != ""
}

// HasAnalytics returns true if the reporting provider configuration is
// complete.
func (c *Config) HasAnalytics() bool {
	return c.Analytics.ClientEmail != "" && c.Analytics.PrivateKey != "" && c.Analytics.PropertyID != ""
}

// Validate ensures at least the search provider is configured.
func (c *Config) Validate() error {
	if !c.HasSearch() {
		return fmt.Errorf("SEARCH_API_KEY and SEARCH_ENGINE_ID are required")
	}
	if c.Search.DailyQuota <= 0 {
		return fmt.Errorf("SEARCH_DAILY_QUOTA must be positive, got %d", c.Search.DailyQuota)
	}
	return nil
}
