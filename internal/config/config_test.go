package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty http addr", func(c *Config) { c.HTTP.Addr = " " }},
		{"bad directory mode", func(c *Config) { c.Directory.Mode = "ldap" }},
		{"http mode without url", func(c *Config) { c.Directory.Mode = "http"; c.Directory.URL = "" }},
		{"sqlite mode without data dir", func(c *Config) { c.Directory.DataDir = "" }},
		{"broker not a websocket url", func(c *Config) { c.Broker.URL = "http://broker.local" }},
		{"script url scheme", func(c *Config) { c.Provider.ScriptURL = "ftp://x/y.js" }},
		{"negative grace", func(c *Config) { c.Gate.GraceMinutes = -1 }},
		{"unknown log level", func(c *Config) { c.Log.Level = "loud" }},
		{"unknown subsystem level", func(c *Config) { c.Log.Subsystems = map[string]string{"api": "shout"} }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestEnsureCreatesAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg, created, err := Ensure(path)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if !created {
		t.Fatalf("expected a fresh config file")
	}
	if cfg.Gate.GraceMinutes != 5 {
		t.Fatalf("grace = %d", cfg.Gate.GraceMinutes)
	}

	cfg2, created, err := Ensure(path)
	if err != nil {
		t.Fatalf("second Ensure: %v", err)
	}
	if created {
		t.Fatalf("second Ensure must load, not create")
	}
	if cfg2.HTTP.Addr != cfg.HTTP.Addr {
		t.Fatalf("reload drifted: %q vs %q", cfg2.HTTP.Addr, cfg.HTTP.Addr)
	}
}

func TestLoadEnvironmentOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := Save(path, Default()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	t.Setenv("SESSIOND_HTTP_ADDR", "0.0.0.0:9000")
	t.Setenv("SESSIOND_GATE_GRACE_MINUTES", "10")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != "0.0.0.0:9000" {
		t.Fatalf("env addr not applied: %q", cfg.HTTP.Addr)
	}
	if cfg.Gate.GraceMinutes != 10 {
		t.Fatalf("env grace not applied: %d", cfg.Gate.GraceMinutes)
	}
}

func TestLoadStripsBOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := append([]byte{0xEF, 0xBB, 0xBF}, []byte(`{"http":{"addr":"127.0.0.1:7000"}}`)...)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != "127.0.0.1:7000" {
		t.Fatalf("addr = %q", cfg.HTTP.Addr)
	}
	// Unset fields keep their defaults.
	if cfg.Broker.URL == "" {
		t.Fatalf("defaults lost on partial file")
	}
}
