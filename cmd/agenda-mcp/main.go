package main

import (
	"context"
	"log"
	"os"

	_ "modernc.org/sqlite"

	"github.com/vthunder/agenda/internal/app"
	"github.com/vthunder/agenda/internal/config"
	"github.com/vthunder/agenda/internal/mcp"
	"github.com/vthunder/agenda/internal/store"
)

func main() {
	// Log to stderr so stdout is clean for JSON-RPC
	log.SetOutput(os.Stderr)
	log.SetPrefix("[agenda-mcp] ")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	log.Println("Starting agenda MCP server...")

	// pure-Go driver so the server runs without cgo
	a, err := app.Build(context.Background(), cfg, store.WithDriver("sqlite"))
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer a.Close()
	if err := a.Start(); err != nil {
		log.Fatalf("Failed to start background loops: %v", err)
	}

	owner := os.Getenv("AGENDA_MCP_OWNER")
	if owner == "" {
		owner = cfg.Discord.OwnerID
	}

	s := mcp.NewServer(mcp.Dependencies{
		Handler:      a.Bot,
		Outbox:       a.Store,
		DefaultOwner: owner,
	})
	if err := mcp.ServeStdio(s); err != nil {
		log.Printf("Server error: %v", err)
	}
}
