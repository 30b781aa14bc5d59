// Package config loads tab-switcher configuration from file and environment.
//
// Precedence (highest to lowest):
//  1. Command-line flags (applied by cmd)
//  2. Environment variables (TAB_SWITCHER_*)
//  3. Config file
//  4. Built-in defaults
//
// Config file search order:
//  1. the path given with --config
//  2. .tab-switcher.yaml in current directory
//  3. ~/.config/tab-switcher/config.yaml
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Modifier probe kinds.
const (
	ProbeLinger = "linger"
	ProbeSocket = "socket"
)

// Config holds all tab-switcher configuration.
type Config struct {
	// Multiplexer: "tmux", "kitty" or empty for auto-detection.
	Mux string `yaml:"mux"`

	// Preview bounds
	PreviewCols int `yaml:"preview_cols"`
	PreviewRows int `yaml:"preview_rows"`
	MaxVisible  int `yaml:"max_visible"`
	Neighbors   int `yaml:"neighbors"`

	// Fetch budgets (Go duration strings, e.g. "500ms")
	StaleAfter   string `yaml:"stale_after"`
	FetchSpacing string `yaml:"fetch_spacing"`

	// Poll loop
	PollFast      string `yaml:"poll_fast"`
	PollIdle      string `yaml:"poll_idle"`
	IdleAfter     string `yaml:"idle_after"`
	ReleaseGrace  string `yaml:"release_grace"`
	ReleaseStreak int    `yaml:"release_streak"`

	// Modifier detection: "linger" (key-repeat driven) or "socket" (hold/release commands).
	ModifierProbe string `yaml:"modifier_probe"`
	Linger        string `yaml:"linger"`

	// CacheDir holds one state file per scope. Empty means $XDG_CACHE_HOME/tab-switcher.
	CacheDir string `yaml:"cache_dir"`
	Theme    string `yaml:"theme"`

	// OTEL
	OTELEndpoint string `yaml:"otel_endpoint"`
	OTELHeaders  string `yaml:"otel_headers"` // Comma-separated key=value pairs

	// Parsed durations (not from YAML, set after loading)
	StaleAfterDuration   time.Duration `yaml:"-"`
	FetchSpacingDuration time.Duration `yaml:"-"`
	PollFastDuration     time.Duration `yaml:"-"`
	PollIdleDuration     time.Duration `yaml:"-"`
	IdleAfterDuration    time.Duration `yaml:"-"`
	ReleaseGraceDuration time.Duration `yaml:"-"`
	LingerDuration       time.Duration `yaml:"-"`

	// ConfigFile is the path to the config file that was loaded (empty if none).
	ConfigFile string `yaml:"-"`
}

// Defaults returns a Config with all default values.
func Defaults() *Config {
	return &Config{
		PreviewCols:   40,
		PreviewRows:   12,
		MaxVisible:    7,
		Neighbors:     1,
		StaleAfter:    "500ms",
		FetchSpacing:  "50ms",
		PollFast:      "50ms",
		PollIdle:      "250ms",
		IdleAfter:     "300ms",
		ReleaseGrace:  "200ms",
		ReleaseStreak: 2,
		ModifierProbe: ProbeLinger,
		Linger:        "600ms",
		Theme:         "dark",
	}
}

// Load reads configuration from file and environment variables.
// Environment variables always override file values. An explicit path that
// cannot be read is an error; a missing default file is not.
func Load(explicit string) (*Config, error) {
	cfg := Defaults()

	path, data, err := findConfigFile(explicit)
	switch {
	case err == nil:
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
		cfg.ConfigFile = path
		mergeFile(cfg, &fileCfg)
	case explicit != "":
		return nil, err
	}

	// Environment variables override everything
	if err := mergeEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.ParseDurations(); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return cfg, nil
}

// ParseDurations fills the *Duration fields from their string forms.
func (c *Config) ParseDurations() error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"stale_after", c.StaleAfter, &c.StaleAfterDuration},
		{"fetch_spacing", c.FetchSpacing, &c.FetchSpacingDuration},
		{"poll_fast", c.PollFast, &c.PollFastDuration},
		{"poll_idle", c.PollIdle, &c.PollIdleDuration},
		{"idle_after", c.IdleAfter, &c.IdleAfterDuration},
		{"release_grace", c.ReleaseGrace, &c.ReleaseGraceDuration},
		{"linger", c.Linger, &c.LingerDuration},
	}
	for _, f := range fields {
		d, err := parseDurationOrDisable(f.raw, 0)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

// Normalize clamps every value to a safe minimum so the switcher cannot be
// configured into a busy loop or a zero-sized preview.
func (c *Config) Normalize() {
	c.Mux = strings.ToLower(strings.TrimSpace(c.Mux))
	c.PreviewCols = atLeast(c.PreviewCols, 8)
	c.PreviewRows = atLeast(c.PreviewRows, 1)
	c.MaxVisible = atLeast(c.MaxVisible, 1)
	if c.Neighbors < 0 {
		c.Neighbors = 0
	}
	c.ReleaseStreak = atLeast(c.ReleaseStreak, 1)

	c.PollFastDuration = atLeastDuration(c.PollFastDuration, 10*time.Millisecond)
	c.PollIdleDuration = atLeastDuration(c.PollIdleDuration, c.PollFastDuration)
	c.IdleAfterDuration = atLeastDuration(c.IdleAfterDuration, c.PollFastDuration)
	c.FetchSpacingDuration = atLeastDuration(c.FetchSpacingDuration, 10*time.Millisecond)
	c.LingerDuration = atLeastDuration(c.LingerDuration, 2*c.PollFastDuration)
	if c.StaleAfterDuration < 0 {
		c.StaleAfterDuration = 0
	}
	if c.ReleaseGraceDuration < 0 {
		c.ReleaseGraceDuration = 0
	}

	switch strings.ToLower(strings.TrimSpace(c.ModifierProbe)) {
	case ProbeSocket:
		c.ModifierProbe = ProbeSocket
	default:
		c.ModifierProbe = ProbeLinger
		// A linger probe reports a release once the linger window passes
		// without activity; the slow poll must start well before that.
		if limit := c.LingerDuration / 2; c.IdleAfterDuration > limit {
			c.IdleAfterDuration = limit
		}
	}
	if c.Theme == "" {
		c.Theme = "dark"
	}
}

// findConfigFile searches for a config file and returns its path and contents.
func findConfigFile(explicit string) (string, []byte, error) {
	if explicit != "" {
		data, err := os.ReadFile(explicit)
		if err != nil {
			return "", nil, fmt.Errorf("reading config file %s: %w", explicit, err)
		}
		return explicit, data, nil
	}

	// 1. Current directory
	if data, err := os.ReadFile(".tab-switcher.yaml"); err == nil {
		return ".tab-switcher.yaml", data, nil
	}

	// 2. XDG config dir / ~/.config
	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, ".config", "tab-switcher", "config.yaml")
		if data, err := os.ReadFile(path); err == nil {
			return path, data, nil
		}
	}

	return "", nil, fmt.Errorf("no config file found")
}

// mergeFile applies non-zero file values onto cfg.
func mergeFile(cfg *Config, file *Config) {
	setString(&cfg.Mux, file.Mux)
	setInt(&cfg.PreviewCols, file.PreviewCols)
	setInt(&cfg.PreviewRows, file.PreviewRows)
	setInt(&cfg.MaxVisible, file.MaxVisible)
	if file.Neighbors != 0 {
		cfg.Neighbors = file.Neighbors
	}
	setString(&cfg.StaleAfter, file.StaleAfter)
	setString(&cfg.FetchSpacing, file.FetchSpacing)
	setString(&cfg.PollFast, file.PollFast)
	setString(&cfg.PollIdle, file.PollIdle)
	setString(&cfg.IdleAfter, file.IdleAfter)
	setString(&cfg.ReleaseGrace, file.ReleaseGrace)
	setInt(&cfg.ReleaseStreak, file.ReleaseStreak)
	setString(&cfg.ModifierProbe, file.ModifierProbe)
	setString(&cfg.Linger, file.Linger)
	setString(&cfg.CacheDir, file.CacheDir)
	setString(&cfg.Theme, file.Theme)
	setString(&cfg.OTELEndpoint, file.OTELEndpoint)
	setString(&cfg.OTELHeaders, file.OTELHeaders)
}

// mergeEnv applies environment variables onto cfg. Env always wins.
func mergeEnv(cfg *Config) error {
	strs := map[string]*string{
		"TAB_SWITCHER_MUX":            &cfg.Mux,
		"TAB_SWITCHER_STALE_AFTER":    &cfg.StaleAfter,
		"TAB_SWITCHER_FETCH_SPACING":  &cfg.FetchSpacing,
		"TAB_SWITCHER_POLL_FAST":      &cfg.PollFast,
		"TAB_SWITCHER_POLL_IDLE":      &cfg.PollIdle,
		"TAB_SWITCHER_IDLE_AFTER":     &cfg.IdleAfter,
		"TAB_SWITCHER_RELEASE_GRACE":  &cfg.ReleaseGrace,
		"TAB_SWITCHER_MODIFIER_PROBE": &cfg.ModifierProbe,
		"TAB_SWITCHER_LINGER":         &cfg.Linger,
		"TAB_SWITCHER_CACHE_DIR":      &cfg.CacheDir,
		"TAB_SWITCHER_THEME":          &cfg.Theme,
		"OTEL_EXPORTER_OTLP_ENDPOINT": &cfg.OTELEndpoint,
		"OTEL_EXPORTER_OTLP_HEADERS":  &cfg.OTELHeaders,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"TAB_SWITCHER_PREVIEW_COLS":   &cfg.PreviewCols,
		"TAB_SWITCHER_PREVIEW_ROWS":   &cfg.PreviewRows,
		"TAB_SWITCHER_MAX_VISIBLE":    &cfg.MaxVisible,
		"TAB_SWITCHER_NEIGHBORS":      &cfg.Neighbors,
		"TAB_SWITCHER_RELEASE_STREAK": &cfg.ReleaseStreak,
	}
	for key, dst := range ints {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		*dst = n
	}
	return nil
}

// parseDurationOrDisable parses a duration string. "0", "off", "disable" return 0.
// Empty string returns the fallback value.
func parseDurationOrDisable(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	if s == "0" || s == "off" || s == "disable" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func atLeast(v, min int) int {
	if v < min {
		return min
	}
	return v
}

func atLeastDuration(v, min time.Duration) time.Duration {
	if v < min {
		return min
	}
	return v
}
