// Package config holds the runtime settings of gitk-compare.
//
// Values are layered: built-in defaults, then an optional YAML file, then the
// PORT environment variable, then command line flags (applied by the caller).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/thiagokokada/gitk-compare/internal/git"
	gitbackend "github.com/thiagokokada/gitk-compare/internal/git/backend"
)

const (
	DefaultPort        = "3001"
	DefaultRecentLimit = 10
	maxConfigFileBytes = 1 << 20
)

// Duration is a time.Duration written as a Go duration string ("30s",
// "720h") in YAML.
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

type Config struct {
	Addr           string   `yaml:"addr"`
	Backend        string   `yaml:"backend"`
	QueryTimeout   Duration `yaml:"query_timeout"`
	Retries        int      `yaml:"retries"`
	MaxConcurrency int      `yaml:"max_concurrency"`
	RecencyWindow  Duration `yaml:"recency_window"`
	StatsCacheSize int      `yaml:"stats_cache_size"`
	StatsCacheTTL  Duration `yaml:"stats_cache_ttl"`
	RecentFile     string   `yaml:"recent_file"`
	RecentLimit    int      `yaml:"recent_limit"`
	CORSOrigin     string   `yaml:"cors_origin"`
	LogLevel       string   `yaml:"log_level"`
	LogFormat      string   `yaml:"log_format"`
}

func Default() Config {
	return Config{
		Addr:           net.JoinHostPort("localhost", DefaultPort),
		Backend:        string(gitbackend.KindCLI),
		QueryTimeout:   Duration(30 * time.Second),
		Retries:        1,
		MaxConcurrency: git.DefaultMaxConcurrency,
		RecencyWindow:  Duration(git.DefaultRecencyWindow),
		StatsCacheSize: 4096,
		StatsCacheTTL:  Duration(time.Hour),
		RecentFile:     DefaultRecentFile(),
		RecentLimit:    DefaultRecentLimit,
		CORSOrigin:     "*",
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// DefaultRecentFile is recent.yaml under the user configuration directory,
// or empty when that directory cannot be determined.
func DefaultRecentFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "gitk-compare", "recent.yaml")
}

// Load returns the defaults overlaid with the YAML file at path (skipped when
// path is empty) and the environment read through getenv.
func Load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		if err := cfg.decode(f); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if getenv != nil {
		cfg.applyEnv(getenv)
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	raw, err := io.ReadAll(io.LimitReader(r, maxConfigFileBytes+1))
	if err != nil {
		return err
	}
	if len(raw) > maxConfigFileBytes {
		return fmt.Errorf("config file exceeds %d bytes", maxConfigFileBytes)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnv honours PORT by replacing the port of Addr.
func (c *Config) applyEnv(getenv func(string) string) {
	port := strings.TrimSpace(getenv("PORT"))
	if port == "" {
		return
	}
	host, _, err := net.SplitHostPort(c.Addr)
	if err != nil {
		host = ""
	}
	c.Addr = net.JoinHostPort(host, port)
}

func (c Config) Validate() error {
	var errs []error
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		errs = append(errs, fmt.Errorf("addr %q: %w", c.Addr, err))
	}
	if _, err := gitbackend.ParseKind(c.Backend); err != nil {
		errs = append(errs, err)
	}
	if c.QueryTimeout < 0 {
		errs = append(errs, fmt.Errorf("query_timeout must not be negative, got %s", c.QueryTimeout))
	}
	if c.Retries < 0 {
		errs = append(errs, fmt.Errorf("retries must not be negative, got %d", c.Retries))
	}
	if c.MaxConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("max_concurrency must be positive, got %d", c.MaxConcurrency))
	}
	if c.RecencyWindow <= 0 {
		errs = append(errs, fmt.Errorf("recency_window must be positive, got %s", c.RecencyWindow))
	}
	if c.StatsCacheSize < 0 {
		errs = append(errs, fmt.Errorf("stats_cache_size must not be negative, got %d", c.StatsCacheSize))
	}
	if c.RecentLimit <= 0 {
		errs = append(errs, fmt.Errorf("recent_limit must be positive, got %d", c.RecentLimit))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// NewLogger builds the process logger described by LogLevel and LogFormat.
func (c Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := c.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// GitOptions maps the settings onto the comparison service.
func (c Config) GitOptions(cache *git.StatsCache) git.Options {
	kind, _ := gitbackend.ParseKind(c.Backend)
	return git.Options{
		Backend: kind,
		Query: gitbackend.Options{
			Timeout: time.Duration(c.QueryTimeout),
			Retries: c.Retries,
		},
		MaxConcurrency: c.MaxConcurrency,
		RecencyWindow:  time.Duration(c.RecencyWindow),
		Cache:          cache,
	}
}

// NewStatsCache returns the cache sized by StatsCacheSize, nil when disabled.
func (c Config) NewStatsCache() *git.StatsCache {
	return git.NewStatsCache(c.StatsCacheSize, time.Duration(c.StatsCacheTTL))
}
