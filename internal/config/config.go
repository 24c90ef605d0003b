// Package config handles loading and resolving epiflux configuration.
// Resolution order (first non-empty value wins):
//  1. CLI flag
//  2. Environment variable
//  3. config.json in the current working directory
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	DefaultConfigFile  = "config.json"
	DefaultTimeout     = 30 * time.Second
	DefaultConcurrency = 8
	DefaultRate        = 20.0
	DefaultPrecision   = "s"
	DefaultDatabase    = "epiflux"
	EnvTSDBURL         = "INFLUXDB_URL"
	EnvTSDBUser        = "INFLUXDB_USER"
	EnvTSDBPassword    = "INFLUXDB_PASSWORD"
	EnvStorePath       = "EPIFLUX_STORE_PATH"
	EnvCalendarStart   = "EPIFLUX_CALENDAR_START"
)

// File is the on-disk representation of config.json.
type File struct {
	TSDBURL      string  `json:"tsdb_url"`
	TSDBUser     string  `json:"tsdb_user"`
	TSDBPassword string  `json:"tsdb_password"`
	Database     string  `json:"database"`
	Precision    string  `json:"precision"`
	Timeout      string  `json:"timeout"`
	Concurrency  int     `json:"concurrency"`
	Rate         float64 `json:"rate"`
	StorePath    string  `json:"store_path"`
}

// Config is the fully-resolved runtime configuration. All callers use this
// struct; the File is only read during loading.
type Config struct {
	TSDBURL      string
	TSDBUser     string
	TSDBPassword string
	Database     string
	Precision    string
	Timeout      time.Duration
	Concurrency  int
	Rate         float64
	StorePath    string
	ConfigPath   string // path of the config.json that was loaded (empty if none found)

	// CalendarStart overrides the engine's epoch day (calendar.GlobalStart)
	// when set, letting a deployment built on a differently-dated feed avoid
	// recompiling. Zero value means "use the built-in default".
	CalendarStart time.Time

	// Runtime overrides set from CLI flags after Load()
	DryRun  bool
	Quiet   bool
	Verbose bool
	Debug   bool
}

// Flags carries the subset of resolved values a CLI flag can override.
type Flags struct {
	TSDBURL  string
	Database string
}

// Load resolves configuration from all sources.
func Load(flags Flags) (*Config, error) {
	cfg := &Config{
		Database:    DefaultDatabase,
		Precision:   DefaultPrecision,
		Timeout:     DefaultTimeout,
		Concurrency: DefaultConcurrency,
		Rate:        DefaultRate,
		TSDBURL:     "http://127.0.0.1:8086",
	}

	// Layer 1: config.json (lowest priority)
	if f, path, err := loadFile(); err == nil {
		applyFile(cfg, f, path)
	}

	// Layer 2: environment variables
	if v := os.Getenv(EnvTSDBURL); v != "" {
		cfg.TSDBURL = v
	}
	if v := os.Getenv(EnvTSDBUser); v != "" {
		cfg.TSDBUser = v
	}
	if v := os.Getenv(EnvTSDBPassword); v != "" {
		cfg.TSDBPassword = v
	}
	if v := os.Getenv(EnvStorePath); v != "" {
		cfg.StorePath = v
	}
	if v := os.Getenv(EnvCalendarStart); v != "" {
		d, err := time.Parse("2006-01-02", v)
		if err != nil {
			return nil, fmt.Errorf("%s=%q: %w", EnvCalendarStart, v, err)
		}
		cfg.CalendarStart = d
	}

	// Layer 3: CLI flags (highest priority)
	if flags.TSDBURL != "" {
		cfg.TSDBURL = flags.TSDBURL
	}
	if flags.Database != "" {
		cfg.Database = flags.Database
	}

	if cfg.StorePath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			cfg.StorePath = filepath.Join(home, ".epiflux", "epiflux.db")
		}
	}

	return cfg, nil
}

// Validate returns an error if the credential pair is only half-set (exactly
// one of user and password is given; both or neither is accepted): a lone username or
// password is almost certainly a misconfiguration, not an intentional
// anonymous write.
func (c *Config) Validate() error {
	if (c.TSDBUser == "") != (c.TSDBPassword == "") {
		return errors.New(
			"tsdb credentials incomplete: set both INFLUXDB_USER and " +
				"INFLUXDB_PASSWORD, or neither",
		)
	}
	return nil
}

// RedactedPassword returns the password with most characters replaced by
// asterisks. Safe for logging and display.
func (c *Config) RedactedPassword() string {
	if len(c.TSDBPassword) <= 4 {
		return "****"
	}
	return c.TSDBPassword[:2] + "****" + c.TSDBPassword[len(c.TSDBPassword)-2:]
}

// loadFile attempts to read config.json from the current working directory.
func loadFile() (*File, string, error) {
	path, err := filepath.Abs(DefaultConfigFile)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("config.json not found at %s", path)
		}
		return nil, "", fmt.Errorf("reading config.json: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, "", fmt.Errorf("parsing config.json: %w", err)
	}
	return &f, path, nil
}

// applyFile copies values from a parsed File into cfg, skipping any fields
// that are zero/empty.
func applyFile(cfg *Config, f *File, path string) {
	cfg.ConfigPath = path
	if f.TSDBURL != "" {
		cfg.TSDBURL = f.TSDBURL
	}
	if f.TSDBUser != "" {
		cfg.TSDBUser = f.TSDBUser
	}
	if f.TSDBPassword != "" {
		cfg.TSDBPassword = f.TSDBPassword
	}
	if f.Database != "" {
		cfg.Database = f.Database
	}
	if f.Precision != "" {
		cfg.Precision = f.Precision
	}
	if f.Timeout != "" {
		if d, err := time.ParseDuration(f.Timeout); err == nil {
			cfg.Timeout = d
		}
	}
	if f.Concurrency > 0 {
		cfg.Concurrency = f.Concurrency
	}
	if f.Rate > 0 {
		cfg.Rate = f.Rate
	}
	if f.StorePath != "" {
		cfg.StorePath = f.StorePath
	}
}

// Template returns a File populated with sensible defaults, suitable for
// writing an initial config.json via `epiflux config init`.
func Template() File {
	return File{
		TSDBURL:     "http://127.0.0.1:8086",
		Database:    DefaultDatabase,
		Precision:   DefaultPrecision,
		Timeout:     "30s",
		Concurrency: DefaultConcurrency,
		Rate:        DefaultRate,
	}
}

// WriteFile serialises a File to the given path.
func WriteFile(path string, f File) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0600)
}
