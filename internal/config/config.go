package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Environment variable names for the API credentials.
const (
	CompaniesHouseKeyEnv    = "COMPANIES_HOUSE_KEY"
	CharityCommissionKeyEnv = "CHARITY_COMMISSION_KEY"

	// DefaultKeyFilePath is shown in credential error messages so the
	// user knows where keys are normally read from.
	DefaultKeyFilePath = ".env"
)

// Config holds all runtime configuration parameters
type Config struct {
	CompaniesHouseKey    string `json:"-"`
	CharityCommissionKey string `json:"-"`

	CompaniesHouseURL    string `json:"companies_house_url"`
	CharityCommissionURL string `json:"charity_commission_url"`

	Branches         int    `json:"branches"`
	MaxTrials        int    `json:"max_trials"`
	RetrySleepSec    int    `json:"retry_sleep_sec"`
	RequestTimeoutMs int    `json:"request_timeout_ms"`
	RateLimitMs      int    `json:"rate_limit_ms"`
	DBPath           string `json:"db_path"`
	MetricsPath      string `json:"metrics_path"`
	JSONDataPath     string `json:"json_data_path"`
}

// LoadConfig reads and validates configuration from a JSON file, then overlays
// API credentials from the environment (loading .env first, when present).
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer file.Close()

		decoder := json.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	loadCredentials(&cfg)

	return &cfg, nil
}

// loadCredentials reads API keys from .env (ignored if absent) and the process
// environment. Missing keys are logged, not fatal: credential failures surface
// as permission errors on the first query instead.
func loadCredentials(cfg *Config) {
	if err := godotenv.Load(); err != nil {
		log.Debugf("No .env file loaded: %v", err)
	}

	cfg.CompaniesHouseKey = os.Getenv(CompaniesHouseKeyEnv)
	if cfg.CompaniesHouseKey == "" {
		log.Warnf("%s is not set", CompaniesHouseKeyEnv)
	}
	cfg.CharityCommissionKey = os.Getenv(CharityCommissionKeyEnv)
	if cfg.CharityCommissionKey == "" {
		log.Warnf("%s is not set", CharityCommissionKeyEnv)
	}
}

// applyDefaults sets default values for unspecified fields
func applyDefaults(cfg *Config) {
	if cfg.CompaniesHouseURL == "" {
		cfg.CompaniesHouseURL = "https://api.companieshouse.gov.uk"
	}
	if cfg.CharityCommissionURL == "" {
		cfg.CharityCommissionURL = "https://apps.charitycommission.gov.uk/Showcharity/API/SearchCharitiesV1/SearchCharitiesV1.asmx"
	}
	if cfg.MaxTrials == 0 {
		cfg.MaxTrials = 6
	}
	if cfg.RetrySleepSec == 0 {
		cfg.RetrySleepSec = 60
	}
	if cfg.RequestTimeoutMs == 0 {
		cfg.RequestTimeoutMs = 30000
	}
	if cfg.RateLimitMs == 0 {
		cfg.RateLimitMs = 500
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "ukboards.db"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "metrics.json"
	}
	if cfg.JSONDataPath == "" {
		cfg.JSONDataPath = "network.json"
	}
}

// validate checks that values are sensible
func validate(cfg *Config) error {
	if cfg.Branches < 0 {
		return fmt.Errorf("branches must be >= 0")
	}
	if cfg.MaxTrials < 1 {
		return fmt.Errorf("max_trials must be >= 1")
	}
	if cfg.RetrySleepSec < 1 {
		return fmt.Errorf("retry_sleep_sec must be >= 1")
	}
	if cfg.RequestTimeoutMs < 1000 {
		return fmt.Errorf("request_timeout_ms must be >= 1000")
	}
	return nil
}
