// Package config loads the botflowd daemon configuration.
//
// Loading runs in a fixed order: dotenv files are loaded into the process
// environment (existing variables win), struct defaults are applied, the YAML
// file is expanded with ${VAR} references and decoded on top, and the result
// is validated.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/petrijr/botflow/internal/persistence"
)

var validate = validator.New()

// Config is the root of the daemon configuration file.
type Config struct {
	Log        LogConfig        `yaml:"log"`
	Store      StoreConfig      `yaml:"store"`
	Tokens     TokensConfig     `yaml:"tokens"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Metrics    MetricsConfig    `yaml:"metrics"`

	// Bots lists the bot ids started by "botflowd run".
	Bots []string `yaml:"bots" validate:"dive,required"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"text" validate:"oneof=text json"`
}

type StoreConfig struct {
	Driver     string `yaml:"driver" default:"file" validate:"oneof=memory file sqlite postgres redis mongo"`
	DSN        string `yaml:"dsn"`
	Dir        string `yaml:"dir" default:"flows"`
	Prefix     string `yaml:"prefix" default:"botflow:"`
	Database   string `yaml:"database" default:"botflow"`
	Collection string `yaml:"collection" default:"flows"`
	EventLimit int    `yaml:"event_limit" default:"1000" validate:"min=0"`
}

type TokensConfig struct {
	EnvPrefix   string            `yaml:"env_prefix" default:"BOTFLOW_TOKEN_"`
	DotenvFiles []string          `yaml:"dotenv_files"`
	Static      map[string]string `yaml:"static"`
}

type SupervisorConfig struct {
	StopTimeout     time.Duration `yaml:"stop_timeout" default:"15s" validate:"gt=0"`
	ConflictRetries int           `yaml:"conflict_retries" default:"3" validate:"min=0"`
	ConflictBackoff time.Duration `yaml:"conflict_backoff" default:"5s" validate:"gte=0"`
	ErrorBackoff    time.Duration `yaml:"error_backoff" default:"3s" validate:"gte=0"`
	HistoryDepth    int           `yaml:"history_depth" default:"10" validate:"min=1"`
	MaxChain        int           `yaml:"max_chain" default:"100" validate:"min=1"`
}

type TelegramConfig struct {
	BaseURL        string        `yaml:"base_url" default:"https://api.telegram.org" validate:"url"`
	PollTimeout    time.Duration `yaml:"poll_timeout" default:"25s" validate:"gte=0"`
	RequestTimeout time.Duration `yaml:"request_timeout" default:"10s" validate:"gt=0"`
	RateLimit      float64       `yaml:"rate_limit" default:"25" validate:"gt=0"`
	RateBurst      int           `yaml:"rate_burst" default:"5" validate:"min=1"`
}

type MetricsConfig struct {
	// Listen is the address of the /metrics endpoint; empty disables it.
	Listen string `yaml:"listen" default:":9090"`
}

// Default returns a configuration with every default applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply default values: %w", err)
	}
	return cfg, nil
}

// Load reads the YAML file at path. An empty path yields the defaults.
func Load(path string, dotenvFiles ...string) (*Config, error) {
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg, err := Default()
	if err != nil {
		return nil, err
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := decode(raw, cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader([]byte(os.ExpandEnv(string(raw)))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks field rules and the store driver's required settings.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("field '%s' failed validation (rule: %s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("config validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
		}
		return fmt.Errorf("config validation failed: %w", err)
	}
	switch c.Store.Driver {
	case persistence.DriverSQLite, persistence.DriverPostgres, persistence.DriverRedis, persistence.DriverMongo:
		if c.Store.DSN == "" {
			return fmt.Errorf("config validation failed: store.dsn is required for driver %q", c.Store.Driver)
		}
	case persistence.DriverFile:
		if c.Store.Dir == "" {
			return errors.New("config validation failed: store.dir is required for driver \"file\"")
		}
	}
	return nil
}

// StoreOptions maps the store section onto persistence options.
func (c *Config) StoreOptions() persistence.Options {
	return persistence.Options{
		Driver:     c.Store.Driver,
		DSN:        c.Store.DSN,
		Dir:        c.Store.Dir,
		Prefix:     c.Store.Prefix,
		Database:   c.Store.Database,
		Collection: c.Store.Collection,
		EventLimit: c.Store.EventLimit,
	}
}

// NewLogger builds the daemon logger described by the log section.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	_ = level.UnmarshalText([]byte(c.Level))
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
