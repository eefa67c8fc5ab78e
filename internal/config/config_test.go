package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.ScanInterval != 30*time.Second {
		t.Errorf("scan interval = %s, want 30s", cfg.ScanInterval)
	}
	if cfg.Resolver.Threshold != 0.5 || cfg.Resolver.Margin != 0.1 {
		t.Errorf("resolver = %+v", cfg.Resolver)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(envMap(map[string]string{
		"TIMEZONE":           "Europe/Berlin",
		"SCAN_INTERVAL":      "5s",
		"RESOLVER_THRESHOLD": "0.7",
		"QA_TOP_N":           "3",
		"CALENDAR_BACKEND":   "caldav",
		"CALDAV_URL":         "https://dav.example.com/",
		"CALDAV_CALENDAR":    "Home",
		"DEBUG":              "true",
	}))
	if err != nil {
		t.Fatalf("applyEnv: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.ScanInterval != 5*time.Second || cfg.Resolver.Threshold != 0.7 || cfg.QATopN != 3 {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if !cfg.Debug {
		t.Error("expected debug on")
	}
	loc, _ := cfg.Location()
	if loc.String() != "Europe/Berlin" {
		t.Errorf("location = %s", loc)
	}
}

func TestApplyEnvInvalid(t *testing.T) {
	cfg := Default()
	if err := cfg.applyEnv(envMap(map[string]string{"SYNC_TIMEOUT": "soon"})); err == nil {
		t.Error("expected error for bad duration")
	}
	cfg = Default()
	if err := cfg.applyEnv(envMap(map[string]string{"QA_TOP_N": "many"})); err == nil {
		t.Error("expected error for bad integer")
	}
}

func TestValidateBackends(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"none", func(c *Config) { c.Calendar.Backend = "" }, false},
		{"google without creds", func(c *Config) { c.Calendar.Backend = BackendGoogle }, true},
		{"google with creds", func(c *Config) {
			c.Calendar.Backend = BackendGoogle
			c.Calendar.CredentialsFile = "sa.json"
		}, false},
		{"caldav without url", func(c *Config) { c.Calendar.Backend = BackendCalDAV }, true},
		{"unknown", func(c *Config) { c.Calendar.Backend = "outlook" }, true},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, true},
		{"zero scan", func(c *Config) { c.ScanInterval = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadOverlay(t *testing.T) {
	dir := t.TempDir()
	overlay := []byte("timezone: America/New_York\nscan_interval: 10s\nresolver:\n  threshold: 0.6\n  margin: 0.2\n")
	path := filepath.Join(dir, overlayFilename)
	if err := os.WriteFile(path, overlay, 0644); err != nil {
		t.Fatal(err)
	}

	cfg := Default()
	if err := cfg.loadOverlay(path); err != nil {
		t.Fatalf("loadOverlay: %v", err)
	}
	if cfg.Timezone != "America/New_York" || cfg.ScanInterval != 10*time.Second {
		t.Errorf("overlay not applied: %+v", cfg)
	}
	if cfg.Resolver.Threshold != 0.6 || cfg.Resolver.Margin != 0.2 {
		t.Errorf("resolver overlay not applied: %+v", cfg.Resolver)
	}

	// Missing overlay is not an error
	if err := cfg.loadOverlay(filepath.Join(dir, "missing.yaml")); err != nil {
		t.Errorf("missing overlay: %v", err)
	}
}
