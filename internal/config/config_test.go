package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Site.BaseURL != "https://dawaai.pk" {
		t.Fatalf("unexpected base url %q", cfg.Site.BaseURL)
	}
	if got := len(cfg.Letters()); got != 26 {
		t.Fatalf("expected 26 letters, got %d", got)
	}
	if cfg.Fetch.MinDelay != 2*time.Second || cfg.Fetch.MaxDelay != 5*time.Second {
		t.Fatalf("unexpected delay window %v-%v", cfg.Fetch.MinDelay, cfg.Fetch.MaxDelay)
	}
	if cfg.Fetch.MaxRetries != 3 || cfg.Fetch.Timeout != 30*time.Second {
		t.Fatalf("unexpected retry defaults: %+v", cfg.Fetch)
	}
	if cfg.Pipeline.LetterPauseMin != 5*time.Second || cfg.Pipeline.LetterPauseMax != 10*time.Second {
		t.Fatalf("unexpected letter pause defaults: %+v", cfg.Pipeline)
	}
	if cfg.Store.Driver != StoreDriverSQLite || cfg.Store.MaxConns != 1 {
		t.Fatalf("unexpected store defaults: %+v", cfg.Store)
	}
	if cfg.Images.Backend != BackendLocal || cfg.Publisher.Backend != BackendNone {
		t.Fatalf("unexpected backend defaults: %+v %+v", cfg.Images, cfg.Publisher)
	}
	if cfg.Tracing.Exporter != TraceExporterNone {
		t.Fatalf("unexpected trace exporter %q", cfg.Tracing.Exporter)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
site:
  base_url: https://staging.dawaai.pk
  letters: abc
fetch:
  mode: headless
  min_delay: 1s
  max_delay: 1500ms
  max_retries: 5
  timeout: 45s
  max_rps: 0.5
store:
  driver: postgres
  dsn: postgres://crawler@localhost/medicines
  max_conns: 2
images:
  backend: gcs
  bucket: pharma-images
publisher:
  backend: pubsub
  project_id: proj
  topic: medicines
metrics:
  addr: ":9090"
logging:
  development: false
  file: logs/scraper.log
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if string(cfg.Letters()) != "abc" {
		t.Fatalf("expected letters abc, got %q", string(cfg.Letters()))
	}
	if cfg.Fetch.Mode != FetchModeHeadless || cfg.Fetch.MaxDelay != 1500*time.Millisecond {
		t.Fatalf("expected fetch overrides to apply: %+v", cfg.Fetch)
	}
	if cfg.Fetch.MaxRetries != 5 || cfg.Fetch.Timeout != 45*time.Second || cfg.Fetch.MaxRPS != 0.5 {
		t.Fatalf("expected retry overrides to apply: %+v", cfg.Fetch)
	}
	if cfg.Store.Driver != StoreDriverPostgres || cfg.Store.MaxConns != 2 {
		t.Fatalf("expected store overrides to apply: %+v", cfg.Store)
	}
	if cfg.Images.Bucket != "pharma-images" || cfg.Publisher.Topic != "medicines" {
		t.Fatalf("expected backend overrides: %+v %+v", cfg.Images, cfg.Publisher)
	}
	if cfg.Metrics.Addr != ":9090" || cfg.Logging.File != "logs/scraper.log" || cfg.Logging.Development {
		t.Fatalf("expected ambient overrides: %+v %+v", cfg.Metrics, cfg.Logging)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("CRAWLER_TEST_ENV_FILE=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("CRAWLER_TEST_ENV_FILE") })

	loaded, err := LoadEnvFiles(envPath, filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatalf("LoadEnvFiles() error = %v", err)
	}
	if len(loaded) != 1 || loaded[0] != envPath {
		t.Fatalf("unexpected loaded files %v", loaded)
	}
	if got := os.Getenv("CRAWLER_TEST_ENV_FILE"); got != "from-file" {
		t.Fatalf("expected env var from file, got %q", got)
	}
}

func TestEnvOverridesDefaults(t *testing.T) {
	t.Setenv("CRAWLER_FETCH_MAX_RETRIES", "7")
	t.Setenv("CRAWLER_STORE_DRIVER", "memory")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Fetch.MaxRetries != 7 {
		t.Fatalf("expected env max_retries 7, got %d", cfg.Fetch.MaxRetries)
	}
	if cfg.Store.Driver != StoreDriverMemory {
		t.Fatalf("expected env store driver, got %q", cfg.Store.Driver)
	}
}

func validConfig() Config {
	return Config{
		Site:     SiteConfig{BaseURL: "https://dawaai.pk", Letters: DefaultLetters},
		Fetch:    FetchConfig{Mode: FetchModeColly, MinDelay: 2 * time.Second, MaxDelay: 5 * time.Second, MaxRetries: 3, Timeout: 30 * time.Second},
		Pipeline: PipelineConfig{LetterPauseMin: 5 * time.Second, LetterPauseMax: 10 * time.Second},
		Store:    StoreConfig{Driver: StoreDriverMemory},
		Images:   ImagesConfig{Backend: BackendNone},
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "relative base url", mutate: func(c *Config) { c.Site.BaseURL = "/all-medicines" }, want: "site.base_url"},
		{name: "upper-case letter", mutate: func(c *Config) { c.Site.Letters = "aB" }, want: "site.letters"},
		{name: "empty letters", mutate: func(c *Config) { c.Site.Letters = "" }, want: "site.letters"},
		{name: "unknown mode", mutate: func(c *Config) { c.Fetch.Mode = "curl" }, want: "fetch.mode"},
		{name: "inverted delays", mutate: func(c *Config) { c.Fetch.MaxDelay = time.Second }, want: "fetch.max_delay"},
		{name: "no retries", mutate: func(c *Config) { c.Fetch.MaxRetries = 0 }, want: "fetch.max_retries"},
		{name: "no timeout", mutate: func(c *Config) { c.Fetch.Timeout = 0 }, want: "fetch.timeout"},
		{name: "negative rps", mutate: func(c *Config) { c.Fetch.MaxRPS = -1 }, want: "fetch.max_rps"},
		{name: "inverted letter pause", mutate: func(c *Config) { c.Pipeline.LetterPauseMin = time.Minute }, want: "pipeline.letter_pause_max"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Store.Driver = StoreDriverPostgres }, want: "store.dsn"},
		{name: "sqlite without path", mutate: func(c *Config) { c.Store.Driver = StoreDriverSQLite }, want: "store.path"},
		{name: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "mssql" }, want: "store.driver"},
		{name: "local images without dir", mutate: func(c *Config) { c.Images.Backend = BackendLocal }, want: "images.dir"},
		{name: "gcs without bucket", mutate: func(c *Config) { c.Images.Backend = BackendGCS }, want: "images.bucket"},
		{name: "pubsub without topic", mutate: func(c *Config) { c.Publisher.Backend = BackendPubSub }, want: "publisher.project_id"},
		{name: "unknown trace exporter", mutate: func(c *Config) { c.Tracing.Exporter = "jaeger" }, want: "tracing.exporter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
