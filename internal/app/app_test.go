package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vthunder/agenda/internal/bot"
	"github.com/vthunder/agenda/internal/config"
	"github.com/vthunder/agenda/internal/store"
)

func testConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.StatePath = t.TempDir()
	cfg.RulesFile = filepath.Join(cfg.StatePath, "rules.yaml")
	return cfg
}

func TestBuildWiresEngine(t *testing.T) {
	cfg := testConfig(t)
	cfg.Profile = "minimal"
	a, err := Build(context.Background(), cfg, store.WithDriver("sqlite"))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := a.Start(); err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	resp := a.Bot.Handle(context.Background(), bot.Message{
		ID: "m1", OwnerID: "u1", Content: "remind me to water plants in 2 hours", At: time.Now(),
	})
	if resp.Err != nil || !strings.Contains(resp.Text, "Reminder set") {
		t.Fatalf("reply = %q (%v)", resp.Text, resp.Err)
	}

	resp = a.Bot.Handle(context.Background(), bot.Message{ID: "m2", OwnerID: "u1", Content: "/debugaccount"})
	for _, want := range []string{"Backend: memory", "Process:", "Scheduler:", "Sync:"} {
		if !strings.Contains(resp.Text, want) {
			t.Errorf("debug reply missing %q:\n%s", want, resp.Text)
		}
	}

	if _, err := os.Stat(filepath.Join(cfg.StatePath, store.DBFilename)); err != nil {
		t.Errorf("database not created: %v", err)
	}
}

func TestBuildBadRules(t *testing.T) {
	cfg := testConfig(t)
	if err := os.WriteFile(cfg.RulesFile, []byte("rules: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Build(context.Background(), cfg, store.WithDriver("sqlite")); err == nil {
		t.Fatal("expected error for malformed rules file")
	}
}

func TestNewAdapterDefaultsToMemory(t *testing.T) {
	a, err := NewAdapter(context.Background(), config.Default())
	if err != nil {
		t.Fatal(err)
	}
	id, _ := a.Identity(context.Background())
	if id.Backend != "memory" {
		t.Errorf("backend = %q", id.Backend)
	}
}
