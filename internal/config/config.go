// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Supported backend names.
const (
	FetchModeColly    = "colly"
	FetchModeHeadless = "headless"

	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
	StoreDriverMemory   = "memory"

	BackendNone   = "none"
	BackendLocal  = "local"
	BackendGCS    = "gcs"
	BackendMemory = "memory"
	BackendPubSub = "pubsub"

	TraceExporterNone   = "none"
	TraceExporterStdout = "stdout"
)

// DefaultLetters is the full listing sweep.
const DefaultLetters = "abcdefghijklmnopqrstuvwxyz"

// EnvFiles are loaded, when present, before the environment is read.
var EnvFiles = []string{".env", ".env.local"}

// Config captures all crawler configuration knobs loaded via Viper.
type Config struct {
	Site      SiteConfig      `mapstructure:"site"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Store     StoreConfig     `mapstructure:"store"`
	Images    ImagesConfig    `mapstructure:"images"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// SiteConfig identifies the catalogue being crawled.
type SiteConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Letters string `mapstructure:"letters"`
}

// FetchConfig configures throttling, retries and the transport.
type FetchConfig struct {
	Mode              string        `mapstructure:"mode"`
	MinDelay          time.Duration `mapstructure:"min_delay"`
	MaxDelay          time.Duration `mapstructure:"max_delay"`
	MaxRetries        int           `mapstructure:"max_retries"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRPS            float64       `mapstructure:"max_rps"`
	Burst             int           `mapstructure:"burst"`
	UserAgent         string        `mapstructure:"user_agent"`
	RespectRobots     bool          `mapstructure:"respect_robots"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
}

// PipelineConfig controls pacing between listing letters.
type PipelineConfig struct {
	LetterPauseMin time.Duration `mapstructure:"letter_pause_min"`
	LetterPauseMax time.Duration `mapstructure:"letter_pause_max"`
}

// StoreConfig selects and configures the record store.
type StoreConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	Path     string `mapstructure:"path"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ImagesConfig selects where product images are written.
type ImagesConfig struct {
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// PublisherConfig holds new-record notification settings.
type PublisherConfig struct {
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// TracingConfig selects where finished spans are exported. "stdout" writes
// them as JSON to standard output.
type TracingConfig struct {
	Exporter string `mapstructure:"exporter"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Verbose     bool   `mapstructure:"verbose"`
	File        string `mapstructure:"file"`
}

// Load builds a Config from env files, the environment and an optional file.
func Load(path string) (Config, error) {
	if _, err := LoadEnvFiles(EnvFiles...); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadEnvFiles loads each existing file into the process environment without
// overriding variables that are already set. It returns the files it loaded.
func LoadEnvFiles(files ...string) ([]string, error) {
	loaded := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return loaded, fmt.Errorf("stat %s: %w", file, err)
		}
		if err := godotenv.Load(file); err != nil {
			return loaded, fmt.Errorf("load %s: %w", file, err)
		}
		loaded = append(loaded, file)
	}
	return loaded, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("site.base_url", "https://dawaai.pk")
	v.SetDefault("site.letters", DefaultLetters)
	v.SetDefault("fetch.mode", FetchModeColly)
	v.SetDefault("fetch.min_delay", 2*time.Second)
	v.SetDefault("fetch.max_delay", 5*time.Second)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.max_rps", 0)
	v.SetDefault("fetch.burst", 1)
	v.SetDefault("fetch.user_agent", "")
	v.SetDefault("fetch.respect_robots", false)
	v.SetDefault("fetch.navigation_timeout", 30*time.Second)
	v.SetDefault("pipeline.letter_pause_min", 5*time.Second)
	v.SetDefault("pipeline.letter_pause_max", 10*time.Second)
	v.SetDefault("store.driver", StoreDriverSQLite)
	v.SetDefault("store.path", "data/medicines.db")
	v.SetDefault("store.table", "medicines")
	v.SetDefault("store.max_conns", 1)
	v.SetDefault("images.backend", BackendLocal)
	v.SetDefault("images.dir", "data/images")
	v.SetDefault("images.prefix", "images")
	v.SetDefault("publisher.backend", BackendNone)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("tracing.exporter", TraceExporterNone)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.verbose", false)
	v.SetDefault("logging.file", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	u, err := url.Parse(c.Site.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("site.base_url must be an absolute http(s) URL")
	}
	if c.Site.Letters == "" {
		return fmt.Errorf("site.letters must not be empty")
	}
	for _, r := range c.Site.Letters {
		if r < 'a' || r > 'z' {
			return fmt.Errorf("site.letters must contain only a-z, got %q", r)
		}
	}

	switch c.Fetch.Mode {
	case FetchModeColly, FetchModeHeadless:
	default:
		return fmt.Errorf("fetch.mode must be %q or %q", FetchModeColly, FetchModeHeadless)
	}
	if c.Fetch.MinDelay < 0 || c.Fetch.MaxDelay < c.Fetch.MinDelay {
		return fmt.Errorf("fetch.max_delay must be >= fetch.min_delay >= 0")
	}
	if c.Fetch.MaxRetries <= 0 {
		return fmt.Errorf("fetch.max_retries must be > 0")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be > 0")
	}
	if c.Fetch.MaxRPS < 0 {
		return fmt.Errorf("fetch.max_rps must be >= 0")
	}
	if c.Pipeline.LetterPauseMin < 0 || c.Pipeline.LetterPauseMax < c.Pipeline.LetterPauseMin {
		return fmt.Errorf("pipeline.letter_pause_max must be >= pipeline.letter_pause_min >= 0")
	}

	switch c.Store.Driver {
	case StoreDriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres driver")
		}
	case StoreDriverSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite driver")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("store.driver %q is not supported", c.Store.Driver)
	}

	switch c.Images.Backend {
	case BackendLocal:
		if c.Images.Dir == "" {
			return fmt.Errorf("images.dir is required for the local backend")
		}
	case BackendGCS:
		if c.Images.Bucket == "" {
			return fmt.Errorf("images.bucket is required for the gcs backend")
		}
	case BackendMemory, BackendNone:
	default:
		return fmt.Errorf("images.backend %q is not supported", c.Images.Backend)
	}

	switch c.Publisher.Backend {
	case BackendPubSub:
		if c.Publisher.ProjectID == "" || c.Publisher.Topic == "" {
			return fmt.Errorf("publisher.project_id and publisher.topic are required for pubsub")
		}
	case BackendMemory, BackendNone, "":
	default:
		return fmt.Errorf("publisher.backend %q is not supported", c.Publisher.Backend)
	}

	switch c.Tracing.Exporter {
	case TraceExporterNone, TraceExporterStdout, "":
	default:
		return fmt.Errorf("tracing.exporter %q is not supported", c.Tracing.Exporter)
	}
	return nil
}

// Letters returns the configured sweep as runes.
func (c Config) Letters() []rune {
	return []rune(c.Site.Letters)
}
