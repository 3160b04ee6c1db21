package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	if got, want := DefaultPath(), "/custom/config/litrec/config.yml"; got != want {
		t.Errorf("DefaultPath() = %q, want %q", got, want)
	}
}

func TestLoad_MissingDefaultFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("Load() without a file differs from Default() (-want +got):\n%s", diff)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
		t.Error("Load() of a missing explicit file succeeded")
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: pgx
  dsn: postgres://litrec@localhost/litrec
actor: nightly
batch_size: 100
providers:
  - name: WB
    prefix: WB
    feed_url: https://example.org/wb.json
  - name: ZFIN
    prefix: ZFIN
fetch:
  max_attempts: 6
  initial_backoff: 2s
s3:
  bucket: litrec-backups
schedule:
  cron: "0 1 * * *"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := Default()
	want.Database = Database{Driver: "pgx", DSN: "postgres://litrec@localhost/litrec"}
	want.Actor = "nightly"
	want.BatchSize = 100
	want.Providers = []Provider{
		{Name: "WB", Prefix: "WB", FeedURL: "https://example.org/wb.json"},
		{Name: "ZFIN", Prefix: "ZFIN"},
	}
	want.Fetch.MaxAttempts = 6
	want.Fetch.InitialBackoff = 2 * time.Second
	want.S3.Bucket = "litrec-backups"
	want.Schedule.Cron = "0 1 * * *"
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}

	p, ok := cfg.Provider("zfin")
	if !ok || p.Prefix != "ZFIN" {
		t.Errorf("Provider(zfin) = %+v, %v", p, ok)
	}
	if _, ok := cfg.Provider("SGD"); ok {
		t.Error("Provider(SGD) found an unconfigured provider")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "actor: from-file\nbatch_size: 10\n")
	t.Setenv("LITREC_ACTOR", "from-env")
	t.Setenv("LITREC_DATABASE_DSN", "/tmp/env.db")
	t.Setenv("LITREC_FETCH_TIMEOUT", "30s")
	t.Setenv("LITREC_S3_SECRET_ACCESS_KEY", "shh")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Actor != "from-env" {
		t.Errorf("Actor = %q, want env override", cfg.Actor)
	}
	if cfg.BatchSize != 10 {
		t.Errorf("BatchSize = %d, want file value kept", cfg.BatchSize)
	}
	if cfg.Database.DSN != "/tmp/env.db" {
		t.Errorf("Database.DSN = %q", cfg.Database.DSN)
	}
	if cfg.Fetch.Timeout != 30*time.Second {
		t.Errorf("Fetch.Timeout = %v", cfg.Fetch.Timeout)
	}
	if cfg.S3.SecretAccessKey != "shh" {
		t.Errorf("S3.SecretAccessKey not read from env")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad yaml", "database: [unclosed"},
		{"unknown driver", "database:\n  driver: mysql\n"},
		{"zero batch", "batch_size: -1\n"},
		{"provider without prefix", "providers:\n  - name: WB\n"},
		{"duplicate provider", "providers:\n  - {name: WB, prefix: WB}\n  - {name: wb, prefix: WB}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("Load() error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("Cannot get home directory")
	}
	tests := []struct {
		in, want string
	}{
		{"~/litrec.db", filepath.Join(home, "litrec.db")},
		{"/abs/litrec.db", "/abs/litrec.db"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ExpandPath(tt.in); got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
