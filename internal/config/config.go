// Package config loads budgetctl settings from a YAML file, an optional .env
// file and BUDGETCTL_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultBaseURL is the public API endpoint.
	DefaultBaseURL = "https://api.ynab.com/v1"

	// DefaultBudgetID lets the service pick the most recently used budget.
	DefaultBudgetID = "last-used"

	// DefaultLeaseDuration is how long a printed reference stays typable.
	DefaultLeaseDuration = 8 * time.Hour

	// DefaultRefChunkSize matches refs.DefaultChunkSize.
	DefaultRefChunkSize = 250
)

// Environment variable names.
const (
	EnvTokens          = "BUDGETCTL_TOKENS"
	EnvBudgetID        = "BUDGETCTL_BUDGET_ID"
	EnvDataDir         = "BUDGETCTL_DATA_DIR"
	EnvLogLevel        = "BUDGETCTL_LOG_LEVEL"
	EnvBaseURL         = "BUDGETCTL_BASE_URL"
	EnvLeaseDuration   = "BUDGETCTL_LEASE_DURATION"
	EnvArchiveBucket   = "BUDGETCTL_ARCHIVE_BUCKET"
	EnvGCPCredentials  = "BUDGETCTL_GCP_CREDENTIALS"
	EnvRefChunkSize    = "BUDGETCTL_REF_CHUNK_SIZE"
	defaultConfigName  = "config.yaml"
	defaultAppDirName  = "budgetctl"
	tokenListSeparator = ","
)

// ErrNoTokens is returned by RequireTokens when no API token is configured.
var ErrNoTokens = errors.New("no API tokens configured; set tokens in the config file or " + EnvTokens)

// Config holds every setting of the CLI.
type Config struct {
	Tokens        []string      `yaml:"tokens" validate:"omitempty,dive,required"`
	BudgetID      string        `yaml:"budget_id" validate:"required"`
	BaseURL       string        `yaml:"base_url" validate:"required,url"`
	DataDir       string        `yaml:"data_dir" validate:"required"`
	LeaseDuration time.Duration `yaml:"lease_duration" validate:"gt=0"`
	RefChunkSize  int           `yaml:"ref_chunk_size" validate:"gte=1"`
	LogLevel      string        `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn warning error disabled off"`
	Archive       Archive       `yaml:"archive"`
}

// Archive configures history exports to Cloud Storage.
type Archive struct {
	Bucket          string `yaml:"bucket"`
	CredentialsFile string `yaml:"credentials_file"`
}

var validate = validator.New()

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		BudgetID:      DefaultBudgetID,
		BaseURL:       DefaultBaseURL,
		DataDir:       defaultDataDir(),
		LeaseDuration: DefaultLeaseDuration,
		RefChunkSize:  DefaultRefChunkSize,
		LogLevel:      "info",
	}
}

// DefaultPath returns ~/.config/budgetctl/config.yaml.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", defaultConfigName)
	}
	return filepath.Join(dir, defaultAppDirName, defaultConfigName)
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "."+defaultAppDirName)
	}
	return filepath.Join(home, ".local", "share", defaultAppDirName)
}

// Load reads the configuration. An empty path means DefaultPath, which may be
// missing; an explicit path must exist. A .env file in the working directory
// is loaded first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("Load: reading .env: %w", err)
	}

	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("Load: parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("Load: reading %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv(EnvTokens); ok {
		c.Tokens = SplitTokens(v)
	}
	if v := os.Getenv(EnvBudgetID); v != "" {
		c.BudgetID = v
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvBaseURL); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv(EnvArchiveBucket); v != "" {
		c.Archive.Bucket = v
	}
	if v := os.Getenv(EnvGCPCredentials); v != "" {
		c.Archive.CredentialsFile = v
	}
	if v := os.Getenv(EnvLeaseDuration); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvLeaseDuration, err)
		}
		c.LeaseDuration = d
	}
	if v := os.Getenv(EnvRefChunkSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRefChunkSize, err)
		}
		c.RefChunkSize = n
	}
	return nil
}

// SplitTokens parses a comma separated token list, dropping blanks.
func SplitTokens(s string) []string {
	var out []string
	for _, tok := range strings.Split(s, tokenListSeparator) {
		if tok = strings.TrimSpace(tok); tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

// Validate checks the configuration against its struct rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// RequireTokens fails when no API token is configured.
func (c *Config) RequireTokens() error {
	if len(c.Tokens) == 0 {
		return ErrNoTokens
	}
	return nil
}

// RequireArchive fails when no export bucket is configured.
func (c *Config) RequireArchive() error {
	if c.Archive.Bucket == "" {
		return fmt.Errorf("no archive bucket configured; set archive.bucket or %s", EnvArchiveBucket)
	}
	return nil
}
