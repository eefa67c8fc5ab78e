// Package config loads runtime settings from the environment, an optional .env
// file and an optional agenda.yaml overlay in the state directory.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const overlayFilename = "agenda.yaml"

// Calendar backends
const (
	BackendNone   = "none"
	BackendGoogle = "google"
	BackendCalDAV = "caldav"
)

// Config holds everything the binaries need to wire the engine together
type Config struct {
	StatePath string `yaml:"state_path"`
	Timezone  string `yaml:"timezone"`
	Debug     bool   `yaml:"debug"`
	Profile   string `yaml:"profile"` // off, minimal or detailed

	Discord DiscordConfig `yaml:"discord"`

	ScanInterval  time.Duration `yaml:"scan_interval"`
	SyncInterval  time.Duration `yaml:"sync_interval"`
	SyncTimeout   time.Duration `yaml:"sync_timeout"`
	EventWindow   time.Duration `yaml:"event_window"`
	EventDuration time.Duration `yaml:"event_duration"`

	Resolver ResolverConfig `yaml:"resolver"`
	QATopN   int            `yaml:"qa_top_n"`

	RulesFile string `yaml:"rules_file"`

	Calendar CalendarConfig `yaml:"calendar"`
}

// DiscordConfig configures the chat transport
type DiscordConfig struct {
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id"` // optional: only listen on this channel
	OwnerID   string `yaml:"owner_id"`   // user whose remote calendar events get imported
}

// ResolverConfig tunes fuzzy reference matching
type ResolverConfig struct {
	Threshold float64 `yaml:"threshold"`
	Margin    float64 `yaml:"margin"`
}

// CalendarConfig selects and configures the remote calendar
type CalendarConfig struct {
	Backend string `yaml:"backend"`

	// Google
	CredentialsFile string `yaml:"credentials_file"` // service account key or OAuth client secret
	TokenFile       string `yaml:"token_file"`       // OAuth token; empty means service account
	CalendarID      string `yaml:"calendar_id"`

	// CalDAV
	URL          string `yaml:"url"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	CalendarName string `yaml:"calendar_name"`
}

// Default returns the built-in settings
func Default() Config {
	return Config{
		StatePath:     "state",
		Timezone:      "UTC",
		ScanInterval:  30 * time.Second,
		SyncInterval:  5 * time.Minute,
		SyncTimeout:   10 * time.Second,
		EventWindow:   30 * 24 * time.Hour,
		EventDuration: time.Hour,
		Resolver:      ResolverConfig{Threshold: 0.5, Margin: 0.1},
		QATopN:        5,
		Calendar:      CalendarConfig{Backend: BackendNone, CalendarID: "primary"},
	}
}

// Load reads .env (if present), then the YAML overlay, then the environment.
// Environment variables win over the overlay.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, using environment variables")
	} else {
		log.Println("[config] Loaded .env file")
	}

	cfg := Default()
	if p := os.Getenv("STATE_PATH"); p != "" {
		cfg.StatePath = p
	}
	if err := cfg.loadOverlay(filepath.Join(cfg.StatePath, overlayFilename)); err != nil {
		return cfg, err
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	if cfg.RulesFile == "" {
		cfg.RulesFile = filepath.Join(cfg.StatePath, "rules.yaml")
	}
	return cfg, cfg.Validate()
}

func (c *Config) loadOverlay(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	log.Printf("[config] Loaded overlay %s", path)
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v := getenv(key)
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = d
		return nil
	}
	num := func(key string, dst *float64) error {
		v := getenv(key)
		if v == "" {
			return nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = f
		return nil
	}

	str("TIMEZONE", &c.Timezone)
	str("DISCORD_TOKEN", &c.Discord.Token)
	str("DISCORD_CHANNEL_ID", &c.Discord.ChannelID)
	str("DISCORD_OWNER_ID", &c.Discord.OwnerID)
	str("RULES_FILE", &c.RulesFile)
	str("PROFILE", &c.Profile)
	str("CALENDAR_BACKEND", &c.Calendar.Backend)
	str("GOOGLE_CREDENTIALS_FILE", &c.Calendar.CredentialsFile)
	str("GOOGLE_TOKEN_FILE", &c.Calendar.TokenFile)
	str("GOOGLE_CALENDAR_ID", &c.Calendar.CalendarID)
	str("CALDAV_URL", &c.Calendar.URL)
	str("CALDAV_USERNAME", &c.Calendar.Username)
	str("CALDAV_PASSWORD", &c.Calendar.Password)
	str("CALDAV_CALENDAR", &c.Calendar.CalendarName)

	if getenv("DEBUG") == "true" {
		c.Debug = true
	}

	for key, dst := range map[string]*time.Duration{
		"SCAN_INTERVAL":  &c.ScanInterval,
		"SYNC_INTERVAL":  &c.SyncInterval,
		"SYNC_TIMEOUT":   &c.SyncTimeout,
		"EVENT_WINDOW":   &c.EventWindow,
		"EVENT_DURATION": &c.EventDuration,
	} {
		if err := dur(key, dst); err != nil {
			return err
		}
	}
	if err := num("RESOLVER_THRESHOLD", &c.Resolver.Threshold); err != nil {
		return err
	}
	if err := num("RESOLVER_MARGIN", &c.Resolver.Margin); err != nil {
		return err
	}
	if v := getenv("QA_TOP_N"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid QA_TOP_N: %w", err)
		}
		c.QATopN = n
	}
	return nil
}

// Validate checks values that would otherwise fail far from their source
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.ScanInterval <= 0 {
		return fmt.Errorf("scan interval must be positive, got %s", c.ScanInterval)
	}
	if c.SyncTimeout <= 0 {
		return fmt.Errorf("sync timeout must be positive, got %s", c.SyncTimeout)
	}
	if c.QATopN <= 0 {
		return fmt.Errorf("qa_top_n must be positive, got %d", c.QATopN)
	}
	switch c.Calendar.Backend {
	case BackendNone, "":
		c.Calendar.Backend = BackendNone
	case BackendGoogle:
		if c.Calendar.CredentialsFile == "" {
			return fmt.Errorf("google backend requires GOOGLE_CREDENTIALS_FILE")
		}
	case BackendCalDAV:
		if c.Calendar.URL == "" || c.Calendar.CalendarName == "" {
			return fmt.Errorf("caldav backend requires CALDAV_URL and CALDAV_CALENDAR")
		}
	default:
		return fmt.Errorf("unknown calendar backend %q", c.Calendar.Backend)
	}
	return nil
}

// Location returns the configured time zone
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
