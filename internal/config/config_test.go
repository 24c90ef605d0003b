package config_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dheyman/epiflux/internal/config"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

func writeConfig(t *testing.T, dir string, f config.File) {
	t.Helper()
	path := filepath.Join(dir, "config.json")
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	orig, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(orig) })
}

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv(config.EnvTSDBURL, "")
	t.Setenv(config.EnvTSDBUser, "")
	t.Setenv(config.EnvTSDBPassword, "")
	t.Setenv(config.EnvStorePath, "")
}

// ─── Defaults ─────────────────────────────────────────────────────────────────

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	clearEnv(t)
	orig, _ := os.Getwd()
	_ = os.Chdir(dir)
	t.Cleanup(func() { _ = os.Chdir(orig) })

	cfg, err := config.Load(config.Flags{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Database != config.DefaultDatabase {
		t.Errorf("Database: expected %q, got %q", config.DefaultDatabase, cfg.Database)
	}
	if cfg.Precision != config.DefaultPrecision {
		t.Errorf("Precision: expected %q, got %q", config.DefaultPrecision, cfg.Precision)
	}
	if cfg.Timeout != config.DefaultTimeout {
		t.Errorf("Timeout: expected %v, got %v", config.DefaultTimeout, cfg.Timeout)
	}
	if cfg.Concurrency != config.DefaultConcurrency {
		t.Errorf("Concurrency: expected %d, got %d", config.DefaultConcurrency, cfg.Concurrency)
	}
	if cfg.Rate != config.DefaultRate {
		t.Errorf("Rate: expected %g, got %g", config.DefaultRate, cfg.Rate)
	}
	if cfg.TSDBURL == "" {
		t.Error("TSDBURL should have a default value")
	}
	if cfg.StorePath == "" {
		t.Error("StorePath should have a default (home dir based) value")
	}
}

// ─── Config file loading ──────────────────────────────────────────────────────

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	clearEnv(t)
	writeConfig(t, dir, config.File{
		TSDBURL:     "https://custom.example.com/",
		Database:    "epi_test",
		Precision:   "ms",
		Timeout:     "60s",
		Concurrency: 4,
		Rate:        2.5,
		StorePath:   "/tmp/test.db",
	})

	cfg, err := config.Load(config.Flags{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.TSDBURL != "https://custom.example.com/" {
		t.Errorf("TSDBURL: expected custom URL, got %q", cfg.TSDBURL)
	}
	if cfg.Database != "epi_test" {
		t.Errorf("Database: expected epi_test, got %q", cfg.Database)
	}
	if cfg.Precision != "ms" {
		t.Errorf("Precision: expected ms, got %q", cfg.Precision)
	}
	if cfg.Timeout.String() != "1m0s" {
		t.Errorf("Timeout: expected 1m0s, got %q", cfg.Timeout.String())
	}
	if cfg.Concurrency != 4 {
		t.Errorf("Concurrency: expected 4, got %d", cfg.Concurrency)
	}
	if cfg.Rate != 2.5 {
		t.Errorf("Rate: expected 2.5, got %g", cfg.Rate)
	}
	if cfg.StorePath != "/tmp/test.db" {
		t.Errorf("StorePath: expected /tmp/test.db, got %q", cfg.StorePath)
	}
}

func TestLoadConfigPathRecorded(t *testing.T) {
	dir := t.TempDir()
	clearEnv(t)
	writeConfig(t, dir, config.File{Database: "epi_test"})

	cfg, err := config.Load(config.Flags{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ConfigPath == "" {
		t.Error("ConfigPath should be set when config.json is found")
	}
	if !strings.Contains(cfg.ConfigPath, "config.json") {
		t.Errorf("ConfigPath should contain config.json, got %q", cfg.ConfigPath)
	}
}

func TestLoadNoConfigFile(t *testing.T) {
	dir := t.TempDir()
	clearEnv(t)
	orig, _ := os.Getwd()
	_ = os.Chdir(dir)
	t.Cleanup(func() { _ = os.Chdir(orig) })

	cfg, err := config.Load(config.Flags{})
	if err != nil {
		t.Fatalf("Load without config.json should not error: %v", err)
	}
	if cfg.ConfigPath != "" {
		t.Errorf("ConfigPath should be empty when no file found, got %q", cfg.ConfigPath)
	}
}

func TestLoadInvalidTimeoutIgnored(t *testing.T) {
	dir := t.TempDir()
	clearEnv(t)
	writeConfig(t, dir, config.File{
		Database: "epi_test",
		Timeout:  "not-a-duration",
	})

	cfg, err := config.Load(config.Flags{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Timeout != config.DefaultTimeout {
		t.Errorf("invalid timeout should use default %v, got %v", config.DefaultTimeout, cfg.Timeout)
	}
}

// ─── Environment variable priority ───────────────────────────────────────────

func TestLoadEnvURLOverridesFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, config.File{TSDBURL: "https://file.example.com/"})
	t.Setenv(config.EnvTSDBURL, "https://env.example.com/")
	t.Setenv(config.EnvTSDBUser, "")
	t.Setenv(config.EnvTSDBPassword, "")
	t.Setenv(config.EnvStorePath, "")

	cfg, err := config.Load(config.Flags{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TSDBURL != "https://env.example.com/" {
		t.Errorf("env INFLUXDB_URL should override file: got %q", cfg.TSDBURL)
	}
}

func TestLoadEnvStorePath(t *testing.T) {
	dir := t.TempDir()
	clearEnv(t)
	orig, _ := os.Getwd()
	_ = os.Chdir(dir)
	t.Cleanup(func() { _ = os.Chdir(orig) })
	t.Setenv(config.EnvStorePath, "/custom/path/epiflux.db")

	cfg, err := config.Load(config.Flags{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StorePath != "/custom/path/epiflux.db" {
		t.Errorf("EPIFLUX_STORE_PATH: expected /custom/path/epiflux.db, got %q", cfg.StorePath)
	}
}

// ─── CLI flag priority ────────────────────────────────────────────────────────

func TestLoadFlagOverridesEnvAndFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, config.File{Database: "file_db"})
	t.Setenv(config.EnvTSDBURL, "")
	t.Setenv(config.EnvTSDBUser, "")
	t.Setenv(config.EnvTSDBPassword, "")
	t.Setenv(config.EnvStorePath, "")

	cfg, err := config.Load(config.Flags{Database: "flag_db"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database != "flag_db" {
		t.Errorf("flag --database should override env and file: expected flag_db, got %q", cfg.Database)
	}
}

func TestLoadFlagEmptyDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	clearEnv(t)
	writeConfig(t, dir, config.File{Database: "file_db"})

	cfg, err := config.Load(config.Flags{}) // empty flags = not set
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database != "file_db" {
		t.Errorf("empty flag should not override file value: expected file_db, got %q", cfg.Database)
	}
}

// ─── Validate ─────────────────────────────────────────────────────────────────

func TestValidateNeitherCredentialSet(t *testing.T) {
	cfg := &config.Config{}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate with neither credential set should not error: %v", err)
	}
}

func TestValidateBothCredentialsSet(t *testing.T) {
	cfg := &config.Config{TSDBUser: "u", TSDBPassword: "p"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate with both credentials set should not error: %v", err)
	}
}

func TestValidateOnlyUserSet(t *testing.T) {
	cfg := &config.Config{TSDBUser: "u"}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate with only user set should return error")
	}
}

func TestValidateOnlyPasswordSet(t *testing.T) {
	cfg := &config.Config{TSDBPassword: "p"}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate with only password set should return error")
	}
}

// ─── RedactedPassword ─────────────────────────────────────────────────────────

func TestRedactedPasswordNormal(t *testing.T) {
	cfg := &config.Config{TSDBPassword: "abcdefghij"}
	redacted := cfg.RedactedPassword()

	if !strings.HasPrefix(redacted, "ab") {
		t.Errorf("redacted password should start with 'ab', got %q", redacted)
	}
	if !strings.HasSuffix(redacted, "ij") {
		t.Errorf("redacted password should end with 'ij', got %q", redacted)
	}
	if !strings.Contains(redacted, "****") {
		t.Errorf("redacted password should contain '****', got %q", redacted)
	}
}

func TestRedactedPasswordShort(t *testing.T) {
	for _, pw := range []string{"", "a", "ab", "abc", "abcd"} {
		cfg := &config.Config{TSDBPassword: pw}
		if cfg.RedactedPassword() != "****" {
			t.Errorf("short password %q should redact to '****', got %q", pw, cfg.RedactedPassword())
		}
	}
}

func TestRedactedPasswordNotPlaintext(t *testing.T) {
	cfg := &config.Config{TSDBPassword: "supersecretkey123"}
	redacted := cfg.RedactedPassword()
	if redacted == cfg.TSDBPassword {
		t.Error("redacted password should not equal the original")
	}
}

// ─── WriteFile / Template ─────────────────────────────────────────────────────

func TestWriteFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	f := config.File{
		TSDBURL:     "https://api.example.com/",
		Database:    "epi_test",
		Precision:   "ms",
		Timeout:     "45s",
		Concurrency: 6,
		Rate:        3.0,
		StorePath:   "/data/epiflux.db",
	}

	if err := config.WriteFile(path, f); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var got config.File
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}

	if got.TSDBURL != f.TSDBURL {
		t.Errorf("TSDBURL: expected %q, got %q", f.TSDBURL, got.TSDBURL)
	}
	if got.Database != f.Database {
		t.Errorf("Database: expected %q, got %q", f.Database, got.Database)
	}
	if got.Timeout != f.Timeout {
		t.Errorf("Timeout: expected %q, got %q", f.Timeout, got.Timeout)
	}
	if got.Concurrency != f.Concurrency {
		t.Errorf("Concurrency: expected %d, got %d", f.Concurrency, got.Concurrency)
	}
	if got.Rate != f.Rate {
		t.Errorf("Rate: expected %g, got %g", f.Rate, got.Rate)
	}
	if got.StorePath != f.StorePath {
		t.Errorf("StorePath: expected %q, got %q", f.StorePath, got.StorePath)
	}
}

func TestWriteFilePermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	if err := config.WriteFile(path, config.File{Database: "k"}); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("file permissions: expected 0600, got %04o", info.Mode().Perm())
	}
}

func TestWriteFileIsValidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	if err := config.WriteFile(path, config.Template()); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, _ := os.ReadFile(path)

	var f config.File
	if err := json.Unmarshal(data, &f); err != nil {
		t.Errorf("WriteFile produced invalid JSON: %v", err)
	}
}

func TestTemplateDefaults(t *testing.T) {
	tmpl := config.Template()

	if tmpl.Database != config.DefaultDatabase {
		t.Errorf("Template.Database: expected %q, got %q", config.DefaultDatabase, tmpl.Database)
	}
	if tmpl.Timeout != "30s" {
		t.Errorf("Template.Timeout: expected 30s, got %q", tmpl.Timeout)
	}
	if tmpl.Concurrency != config.DefaultConcurrency {
		t.Errorf("Template.Concurrency: expected %d, got %d", config.DefaultConcurrency, tmpl.Concurrency)
	}
	if tmpl.Rate != config.DefaultRate {
		t.Errorf("Template.Rate: expected %g, got %g", config.DefaultRate, tmpl.Rate)
	}
	if tmpl.TSDBPassword != "" {
		t.Errorf("Template.TSDBPassword should be empty (user fills it in), got %q", tmpl.TSDBPassword)
	}
}

func TestTemplateURL(t *testing.T) {
	tmpl := config.Template()
	if !strings.HasPrefix(tmpl.TSDBURL, "http://") && !strings.HasPrefix(tmpl.TSDBURL, "https://") {
		t.Errorf("Template.TSDBURL should be an http(s) URL, got %q", tmpl.TSDBURL)
	}
}
