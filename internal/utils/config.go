package utils

import (
	"errors"
	"fmt"
	"image/color"
	"io/fs"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"proxysheet/internal/domain"
)

// Config is the complete service configuration.
type Config struct {
	Server struct {
		Host    string `yaml:"host"`
		Port    string `yaml:"port"`
		Prefork bool   `yaml:"prefork"`
	} `yaml:"server"`

	Logger struct {
		File       string `yaml:"file"`
		Level      string `yaml:"level"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logger"`

	Cache struct {
		ImageTTL      time.Duration `yaml:"image_ttl"`
		PruneInterval time.Duration `yaml:"prune_interval"`
		RedisHost     string        `yaml:"redis_host"`
		RateLimitDB   int           `yaml:"rate_limit_db"`
	} `yaml:"cache"`

	RateLimiter struct {
		Interval          time.Duration `yaml:"interval"`
		UserLimit         int           `yaml:"user_limit"`
		EnableUserLimiter bool          `yaml:"enable_user_limiter"`
	} `yaml:"rate_limiter"`

	Limits struct {
		MaxCards     int `yaml:"max_cards"`
		MaxBodyBytes int `yaml:"max_body_bytes"`
	} `yaml:"limits"`

	Fetch struct {
		BaseURL       string        `yaml:"base_url"`
		UserAgent     string        `yaml:"user_agent"`
		MinInterval   time.Duration `yaml:"min_interval"`
		Timeout       time.Duration `yaml:"timeout"`
		MaxImageBytes int64         `yaml:"max_image_bytes"`
	} `yaml:"fetch"`

	Render struct {
		Workers          int           `yaml:"workers"`
		CompressionLevel int           `yaml:"compression_level"`
		JobTimeout       time.Duration `yaml:"job_timeout"`
	} `yaml:"render"`

	Auth struct {
		// APIKeys maps static keys to their per-interval request limit.
		APIKeys         map[string]int `yaml:"api_keys"`
		Postgres        PostgresConfig `yaml:"postgres"`
		RefreshInterval time.Duration  `yaml:"refresh_interval"`
	} `yaml:"auth"`

	Layout LayoutSection `yaml:"layout"`
}

// PostgresConfig locates the API key table. An empty Host disables it.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// LayoutSection is the YAML form of domain.LayoutConfig.
type LayoutSection struct {
	Rows       int      `yaml:"rows"`
	Cols       int      `yaml:"cols"`
	LineLen    int      `yaml:"line_len"`
	LineWidth  int      `yaml:"line_width"`
	LineColor  HexColor `yaml:"line_color"`
	Bleed      int      `yaml:"bleed"`
	PageWidth  int      `yaml:"page_width"`
	PageHeight int      `yaml:"page_height"`
}

// Domain converts the section to a layout.
func (l LayoutSection) Domain() domain.LayoutConfig {
	return domain.LayoutConfig{
		Rows:       l.Rows,
		Cols:       l.Cols,
		LineLen:    l.LineLen,
		LineWidth:  l.LineWidth,
		LineColor:  color.NRGBA(l.LineColor),
		Bleed:      l.Bleed,
		PageWidth:  l.PageWidth,
		PageHeight: l.PageHeight,
	}
}

// HexColor is a non-premultiplied color written as #rrggbb or #rrggbbaa.
type HexColor color.NRGBA

// ParseHexColor parses #rrggbb or #rrggbbaa.
func ParseHexColor(s string) (HexColor, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return HexColor{}, fmt.Errorf("invalid color %q: want #rrggbb or #rrggbbaa", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return HexColor{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return HexColor{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *HexColor) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseHexColor(node.Value)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (c HexColor) MarshalYAML() (interface{}, error) {
	return c.String(), nil
}

func (c HexColor) String() string {
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}

// DefaultConfigPath is used when CONFIG_PATH is unset.
const DefaultConfigPath = "config.yaml"

var (
	// AppConfig holds the most recently loaded configuration.
	AppConfig = DefaultConfig()
	configMu  sync.RWMutex
)

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	var cfg Config
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = ":8080"

	cfg.Logger.Level = "info"
	cfg.Logger.MaxSizeMB = 10
	cfg.Logger.MaxBackups = 3
	cfg.Logger.MaxAgeDays = 7

	cfg.Cache.ImageTTL = time.Hour
	cfg.Cache.PruneInterval = time.Second

	cfg.RateLimiter.Interval = time.Minute
	cfg.RateLimiter.UserLimit = 0

	cfg.Limits.MaxCards = 900
	cfg.Limits.MaxBodyBytes = 1 << 20

	cfg.Fetch.BaseURL = "https://api.scryfall.com"
	cfg.Fetch.UserAgent = "proxysheet/1.0"
	cfg.Fetch.MinInterval = 50 * time.Millisecond
	cfg.Fetch.Timeout = 30 * time.Second
	cfg.Fetch.MaxImageBytes = 16 << 20

	cfg.Render.Workers = runtime.NumCPU()
	cfg.Render.CompressionLevel = 6
	cfg.Render.JobTimeout = 5 * time.Minute

	cfg.Auth.RefreshInterval = time.Minute

	d := domain.DefaultLayout
	cfg.Layout = LayoutSection{
		Rows:       d.Rows,
		Cols:       d.Cols,
		LineLen:    d.LineLen,
		LineWidth:  d.LineWidth,
		LineColor:  HexColor(d.LineColor),
		Bleed:      d.Bleed,
		PageWidth:  d.PageWidth,
		PageHeight: d.PageHeight,
	}
	return cfg
}

// LoadConfig loads the configuration from CONFIG_PATH, or config.yaml when
// unset, and stores it in AppConfig.
func LoadConfig() Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = DefaultConfigPath
	}
	return LoadFrom(path)
}

// LoadFrom reads path over the defaults. A missing file yields the defaults.
// It panics on unreadable YAML or invalid values.
func LoadFrom(path string) Config {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		Warn("Config file not found, using defaults", "path", path)
	case err != nil:
		panic(fmt.Sprintf("read config %s: %v", path, err))
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			panic(fmt.Sprintf("parse config %s: %v", path, err))
		}
	}

	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("invalid config %s: %v", path, err))
	}

	configMu.Lock()
	AppConfig = cfg
	configMu.Unlock()
	return cfg
}

// GetConfig returns the most recently loaded configuration.
func GetConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return AppConfig
}

// Validate reports the first invalid value.
func (c Config) Validate() error {
	switch {
	case c.Cache.ImageTTL <= 0:
		return errors.New("cache.image_ttl must be positive")
	case c.Cache.PruneInterval <= 0:
		return errors.New("cache.prune_interval must be positive")
	case c.RateLimiter.Interval <= 0:
		return errors.New("rate_limiter.interval must be positive")
	case c.RateLimiter.UserLimit < 0:
		return errors.New("rate_limiter.user_limit must not be negative")
	case c.Limits.MaxCards <= 0:
		return errors.New("limits.max_cards must be positive")
	case c.Fetch.BaseURL == "":
		return errors.New("fetch.base_url is empty")
	case c.Fetch.MinInterval < 0:
		return errors.New("fetch.min_interval must not be negative")
	case c.Fetch.Timeout <= 0:
		return errors.New("fetch.timeout must be positive")
	case c.Render.CompressionLevel < -1 || c.Render.CompressionLevel > 9:
		return errors.New("render.compression_level must be between -1 and 9")
	case c.Render.JobTimeout <= 0:
		return errors.New("render.job_timeout must be positive")
	case c.Auth.Postgres.Host != "" && c.Auth.RefreshInterval <= 0:
		return errors.New("auth.refresh_interval must be positive when auth.postgres is set")
	}
	for key, limit := range c.Auth.APIKeys {
		if key == "" || limit < 0 {
			return fmt.Errorf("auth.api_keys: invalid entry %q: %d", key, limit)
		}
	}
	return c.Layout.Domain().Validate()
}
