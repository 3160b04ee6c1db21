// Package config loads litrec configuration from a YAML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigDir is the directory name under XDG_CONFIG_HOME.
	ConfigDir = "litrec"
	// ConfigFile is the config file name.
	ConfigFile = "config.yml"
	// EnvPrefix prefixes every environment override, e.g. LITREC_DATABASE_DSN.
	EnvPrefix = "LITREC"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full litrec configuration.
type Config struct {
	Database      Database   `yaml:"database" envconfig:"DATABASE"`
	Actor         string     `yaml:"actor" envconfig:"ACTOR"`
	CuriePrefix   string     `yaml:"curie_prefix" envconfig:"CURIE_PREFIX"`
	BatchSize     int        `yaml:"batch_size" envconfig:"BATCH_SIZE"`
	LogLevel      string     `yaml:"log_level" envconfig:"LOG_LEVEL"`
	IndexProvider string     `yaml:"index_provider" envconfig:"INDEX_PROVIDER"`
	Providers     []Provider `yaml:"providers" ignored:"true"`
	Fetch         Fetch      `yaml:"fetch" envconfig:"FETCH"`
	S3            S3         `yaml:"s3" envconfig:"S3"`
	Schedule      Schedule   `yaml:"schedule" envconfig:"SCHEDULE"`
}

// Database selects the store.
type Database struct {
	Driver string `yaml:"driver" envconfig:"DRIVER"` // sqlite or pgx
	DSN    string `yaml:"dsn" envconfig:"DSN"`
}

// Provider is one submitting organization.
type Provider struct {
	Name    string `yaml:"name"`
	Prefix  string `yaml:"prefix"`
	FeedURL string `yaml:"feed_url"`
}

// Fetch tunes the feed client.
type Fetch struct {
	RatePerSecond  float64       `yaml:"rate_per_second" envconfig:"RATE_PER_SECOND"`
	MaxAttempts    int           `yaml:"max_attempts" envconfig:"MAX_ATTEMPTS"`
	InitialBackoff time.Duration `yaml:"initial_backoff" envconfig:"INITIAL_BACKOFF"`
	Timeout        time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	Token          string        `yaml:"-" envconfig:"TOKEN"`
}

// S3 locates the content-hash snapshot bucket.
type S3 struct {
	Bucket          string `yaml:"bucket" envconfig:"BUCKET"`
	Region          string `yaml:"region" envconfig:"REGION"`
	Endpoint        string `yaml:"endpoint" envconfig:"ENDPOINT"`
	Prefix          string `yaml:"prefix" envconfig:"PREFIX"`
	AccessKeyID     string `yaml:"-" envconfig:"ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"-" envconfig:"SECRET_ACCESS_KEY"`
}

// Schedule configures the long-running scheduler.
type Schedule struct {
	Cron   string `yaml:"cron" envconfig:"CRON"`
	Listen string `yaml:"listen" envconfig:"LISTEN"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Database:      Database{Driver: "sqlite", DSN: "litrec.db"},
		CuriePrefix:   "AGR",
		BatchSize:     250,
		LogLevel:      "info",
		IndexProvider: "PubMed",
		Fetch: Fetch{
			RatePerSecond:  2,
			MaxAttempts:    4,
			InitialBackoff: time.Second,
			Timeout:        5 * time.Minute,
		},
		Schedule: Schedule{Cron: "0 3 * * *", Listen: ":8080"},
	}
}

// DefaultPath returns the path to the config file.
// Respects XDG_CONFIG_HOME, defaults to ~/.config/litrec/config.yml.
func DefaultPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, ConfigDir, ConfigFile)
}

// Load reads the config file at path, or the default path when path is empty,
// then applies .env and LITREC_* environment overrides. A missing default
// file is not an error; a missing explicit file is.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("%w: parsing %s: %v", ErrInvalid, path, err)
			}
		case os.IsNotExist(err) && !explicit:
		default:
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	_ = godotenv.Load()
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = ExpandPath(cfg.Database.DSN)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later in a run.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "pgx":
	default:
		return fmt.Errorf("%w: database.driver %q (valid: sqlite, pgx)", ErrInvalid, c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("%w: database.dsn is empty", ErrInvalid)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch_size must be positive", ErrInvalid)
	}
	seen := make(map[string]bool)
	for i, p := range c.Providers {
		if p.Name == "" || p.Prefix == "" {
			return fmt.Errorf("%w: providers[%d] needs name and prefix", ErrInvalid, i)
		}
		k := strings.ToLower(p.Name)
		if seen[k] {
			return fmt.Errorf("%w: provider %s listed twice", ErrInvalid, p.Name)
		}
		seen[k] = true
	}
	return nil
}

// Provider looks up a configured provider by name, case-insensitively.
func (c *Config) Provider(name string) (Provider, bool) {
	for _, p := range c.Providers {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Provider{}, false
}

// ExpandPath expands ~ to the user's home directory.
// Returns the original path unchanged if it doesn't start with ~.
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, path[1:])
}

// HelpfulConfigMessage returns a starter config for users without one.
func HelpfulConfigMessage() string {
	configPath := DefaultPath()
	return fmt.Sprintf(`Tip: create %s, for example:

  database:
    driver: sqlite
    dsn: ~/litrec.db
  actor: your-name
  providers:
    - name: WB
      prefix: WB
      feed_url: https://example.org/wb/references.json`, configPath)
}
