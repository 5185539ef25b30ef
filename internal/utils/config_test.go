package utils

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadFrom_Valid(t *testing.T) {
	p := writeConfig(t, `server:
  port: ":9000"
cache:
  image_ttl: 30m
fetch:
  min_interval: 100ms
layout:
  rows: 2
  cols: 4
  line_color: "#ff0000"
  bleed: 0
`)
	cfg := LoadFrom(p)
	assert.Equal(t, ":9000", cfg.Server.Port)
	assert.Equal(t, 30*time.Minute, cfg.Cache.ImageTTL)
	assert.Equal(t, 100*time.Millisecond, cfg.Fetch.MinInterval)

	layout := cfg.Layout.Domain()
	assert.Equal(t, 2, layout.Rows)
	assert.Equal(t, 4, layout.Cols)
	assert.Equal(t, 0, layout.Bleed)
	assert.Equal(t, color.NRGBA{R: 0xff, A: 0xff}, layout.LineColor)
	// untouched values keep their defaults
	assert.Equal(t, 40, layout.LineLen)
	assert.Equal(t, 595, layout.PageWidth)
	assert.Equal(t, time.Second, cfg.Cache.PruneInterval)
	assert.Equal(t, cfg, GetConfig())
}

func TestLoadFrom_MissingFileUsesDefaults(t *testing.T) {
	cfg := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, "https://api.scryfall.com", cfg.Fetch.BaseURL)
	assert.Equal(t, 50*time.Millisecond, cfg.Fetch.MinInterval)
	assert.Equal(t, time.Hour, cfg.Cache.ImageTTL)
}

func TestLoadFrom_PanicsOnInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yml  string
	}{
		{name: "zero ttl", yml: "cache:\n  image_ttl: 0s\n"},
		{name: "negative user limit", yml: "rate_limiter:\n  user_limit: -1\n"},
		{name: "bad color", yml: "layout:\n  line_color: 'grey'\n"},
		{name: "bleed wider than guides", yml: "layout:\n  line_len: 4\n  bleed: 8\n"},
		{name: "zero rows", yml: "layout:\n  rows: 0\n"},
		{name: "compression out of range", yml: "render:\n  compression_level: 12\n"},
		{name: "zero job timeout", yml: "render:\n  job_timeout: 0s\n"},
		{name: "negative key limit", yml: "auth:\n  api_keys:\n    k1: -5\n"},
		{name: "empty key", yml: "auth:\n  api_keys:\n    '': 3\n"},
		{name: "postgres without refresh", yml: "auth:\n  postgres:\n    host: db\n  refresh_interval: 0s\n"},
		{name: "not yaml", yml: "server: [unclosed\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := writeConfig(t, tc.yml)
			defer func() {
				if recover() == nil {
					t.Fatalf("expected panic")
				}
			}()
			_ = LoadFrom(p)
		})
	}
}

func TestLoadFrom_AuthSection(t *testing.T) {
	p := writeConfig(t, `auth:
  api_keys:
    alpha: 10
    beta: 0
  postgres:
    host: db.internal
    port: 6543
    database: keys
    user: svc
    sslmode: disable
  refresh_interval: 30s
`)
	cfg := LoadFrom(p)
	assert.Equal(t, map[string]int{"alpha": 10, "beta": 0}, cfg.Auth.APIKeys)
	assert.Equal(t, PostgresConfig{
		Host:     "db.internal",
		Port:     6543,
		Database: "keys",
		User:     "svc",
		SSLMode:  "disable",
	}, cfg.Auth.Postgres)
	assert.Equal(t, 30*time.Second, cfg.Auth.RefreshInterval)

	def := DefaultConfig()
	assert.Equal(t, time.Minute, def.Auth.RefreshInterval)
	assert.Empty(t, def.Auth.Postgres.Host)
}

func TestLoadConfig_UsesConfigPathEnv(t *testing.T) {
	p := writeConfig(t, "limits:\n  max_cards: 12\n")
	t.Setenv("CONFIG_PATH", p)
	cfg := LoadConfig()
	if cfg.Limits.MaxCards != 12 {
		t.Fatalf("expected CONFIG_PATH to be used")
	}
}

func TestParseHexColor(t *testing.T) {
	c, err := ParseHexColor("#7f7f7fff")
	assert.NoError(t, err)
	assert.Equal(t, HexColor{R: 0x7f, G: 0x7f, B: 0x7f, A: 0xff}, c)
	assert.Equal(t, "#7f7f7fff", c.String())

	c, err = ParseHexColor("102030")
	assert.NoError(t, err)
	assert.Equal(t, HexColor{R: 0x10, G: 0x20, B: 0x30, A: 0xff}, c)

	// alpha is kept beside the unscaled color channels
	c, err = ParseHexColor("#ff000080")
	assert.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 0xff, A: 0x80}, color.NRGBA(c))
	layout := LayoutSection{LineColor: c}.Domain()
	assert.Equal(t, color.NRGBA{R: 0xff, A: 0x80}, layout.LineColor)

	for _, bad := range []string{"", "#12345", "#gggggg", "#1234567890"} {
		if _, err := ParseHexColor(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
