// Package config loads cardvault configuration with the usual layering:
// built-in defaults, then an optional YAML file, then CARDVAULT_*
// environment variables, then explicitly set command-line flags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// envPrefix is stripped from environment variables; "__" separates key
// segments so single underscores survive inside a segment, e.g.
// CARDVAULT_CATALOG__API_KEY -> catalog.api_key.
const envPrefix = "CARDVAULT_"

// Config is the full runtime configuration.
type Config struct {
	Catalog  CatalogConfig  `koanf:"catalog"`
	Database DatabaseConfig `koanf:"database"`
	Ingest   IngestConfig   `koanf:"ingest"`
	Identify IdentifyConfig `koanf:"identify"`
	Serve    ServeConfig    `koanf:"serve"`
}

// CatalogConfig configures the remote catalog API client.
type CatalogConfig struct {
	BaseURL   string        `koanf:"base_url" validate:"required,url"`
	APIKey    string        `koanf:"api_key" validate:"required"`
	TeamID    string        `koanf:"team_id"`
	PageSize  int           `koanf:"page_size" validate:"gt=0,lte=250"`
	PageDelay time.Duration `koanf:"page_delay" validate:"gte=0"`
	Retries   int           `koanf:"retries" validate:"gte=1"`
	RetryWait time.Duration `koanf:"retry_wait" validate:"gte=0"`
}

// DatabaseConfig locates the SQLite database file.
type DatabaseConfig struct {
	Path string `koanf:"path" validate:"required"`
}

// IngestConfig tunes the run controller and persister.
type IngestConfig struct {
	PaceEvery   int           `koanf:"pace_every" validate:"gte=0"`
	PaceDelay   time.Duration `koanf:"pace_delay" validate:"gte=0"`
	Workers     int           `koanf:"workers" validate:"gte=1"`
	WritePolicy string        `koanf:"write_policy" validate:"oneof=insert upsert"`
}

// IdentifyConfig points at the external card-identification service.
// BaseURL may be empty when the web surface is not served.
type IdentifyConfig struct {
	BaseURL string        `koanf:"base_url" validate:"omitempty,url"`
	Timeout time.Duration `koanf:"timeout" validate:"gte=0"`
}

// ServeConfig controls the optional HTTP surface.
type ServeConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr" validate:"required"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Catalog: CatalogConfig{
			BaseURL:   "https://api.pokemontcg.io/v2",
			PageSize:  250,
			PageDelay: 500 * time.Millisecond,
			Retries:   6,
			RetryWait: 3 * time.Second,
		},
		Database: DatabaseConfig{Path: "cardvault.db"},
		Ingest: IngestConfig{
			PaceEvery:   50,
			PaceDelay:   250 * time.Millisecond,
			Workers:     1,
			WritePolicy: "insert",
		},
		Identify: IdentifyConfig{Timeout: 30 * time.Second},
		Serve:    ServeConfig{Addr: ":8080"},
	}
}

// Load layers the configuration sources over the defaults and validates
// the result. path may be empty; flags may be nil.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load environment: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.ReplaceAll(s, "__", ".")
}
