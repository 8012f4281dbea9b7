// Package config loads service configuration from environment variables.
package config

import (
	"fmt"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds the application configuration loaded from environment
// variables. Field tags name the exact variable.
type Config struct {
	// Port is the HTTP listen port for the API server.
	Port string `koanf:"SUBTRACKR_PORT"`

	// APIKey guards the API when set; empty disables auth (local dev).
	APIKey string `koanf:"SUBTRACKR_API_KEY"`

	// ServicesTable optionally overrides the embedded curated service table
	// with a JSON file on disk.
	ServicesTable string `koanf:"SUBTRACKR_SERVICES_TABLE"`

	// MinOccurrences overrides the detector's minimum group size when > 0.
	MinOccurrences int `koanf:"SUBTRACKR_MIN_OCCURRENCES"`

	// GCSBucket receives exported subscription reports.
	GCSBucket string `koanf:"GCS_BUCKET"`

	// BoltPath is the BoltDB file holding banking items and sync cursors.
	BoltPath string `koanf:"SUBTRACKR_BOLT_PATH"`

	// RoastModel is the Gemini model used for roast generation.
	RoastModel string `koanf:"SUBTRACKR_ROAST_MODEL"`

	Plaid PlaidConfig `koanf:"-"`
}

// PlaidConfig holds banking-aggregator credentials, read from PLAID_BASE_URL,
// PLAID_CLIENT_ID and PLAID_SECRET.
type PlaidConfig struct {
	BaseURL  string
	ClientID string
	Secret   string
}

// Load reads the configuration from the environment and applies defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(env.Provider("", ".", nil), nil); err != nil {
		return nil, fmt.Errorf("loading config from environment: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// The provider credentials sit under their own prefix; read them directly
	// rather than fighting nested-struct path mapping.
	cfg.Plaid = PlaidConfig{
		BaseURL:  k.String("PLAID_BASE_URL"),
		ClientID: k.String("PLAID_CLIENT_ID"),
		Secret:   k.String("PLAID_SECRET"),
	}

	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.BoltPath == "" {
		cfg.BoltPath = "subtrackr.db"
	}
	if cfg.RoastModel == "" {
		cfg.RoastModel = "gemini-2.5-flash"
	}
	if cfg.Plaid.BaseURL == "" {
		cfg.Plaid.BaseURL = "https://sandbox.plaid.com"
	}

	return &cfg, nil
}
