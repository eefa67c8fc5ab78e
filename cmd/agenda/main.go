package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vthunder/agenda/internal/activity"
	"github.com/vthunder/agenda/internal/app"
	"github.com/vthunder/agenda/internal/bot"
	"github.com/vthunder/agenda/internal/config"
	"github.com/vthunder/agenda/internal/effectors"
	"github.com/vthunder/agenda/internal/logging"
	"github.com/vthunder/agenda/internal/senses"
	"github.com/vthunder/agenda/internal/types"
)

func main() {
	log.Println("agenda - reminders and calendar over chat")
	log.Println("=========================================")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.Discord.Token == "" {
		log.Println("[main] DISCORD_TOKEN not set; replies go to the file outbox")
	}

	ctx := context.Background()
	a, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	audit, err := activity.New(cfg.StatePath)
	if err != nil {
		log.Fatalf("Failed to open activity log: %v", err)
	}

	a.Scheduler.SetOnFire(func(r types.Reminder) {
		logging.Info("main", "Fired reminder %d for %s: %s", r.ID, r.OwnerID, logging.Truncate(r.Text, 50))
		audit.LogFired(r.OwnerID, r.ID, r.Text, r.DueAt)
	})
	if err := a.Start(); err != nil {
		log.Fatalf("Failed to start background loops: %v", err)
	}

	var (
		sense    *senses.DiscordSense
		effector *effectors.DiscordEffector
	)
	if cfg.Discord.Token != "" {
		sense, err = senses.NewDiscordSense(senses.DiscordConfig{
			Token:     cfg.Discord.Token,
			ChannelID: cfg.Discord.ChannelID,
		}, a.Bot, a.Store)
		if err != nil {
			log.Fatalf("Failed to create Discord sense: %v", err)
		}
		sense.SetProfiler(a.Profiler)
		sense.SetOnMessage(func(msg bot.Message, resp bot.Response) {
			logging.Debug("main", "%s -> %s", msg.ID, resp.Action)
			audit.LogCommand(msg.OwnerID, string(resp.Action), msg.Content, resp.Text, resp.Err)
		})
		if err := sense.Start(); err != nil {
			log.Fatalf("Failed to start Discord sense: %v", err)
		}
		effector = effectors.NewDiscordEffector(func() effectors.Sender {
			return effectors.SessionSender{Session: sense.Session()}
		}, a.Store)
	} else {
		fs, err := effectors.NewFileSender(cfg.StatePath)
		if err != nil {
			log.Fatalf("Failed to create file outbox: %v", err)
		}
		log.Printf("[main] Writing deliveries to %s", fs.Path())
		effector = effectors.NewDiscordEffector(func() effectors.Sender { return fs }, a.Store)
	}
	effector.SetProfiler(a.Profiler)
	effector.SetOnError(func(id int64, kind, errMsg string) {
		log.Printf("[main] Delivery %d (%s) failed: %s", id, kind, errMsg)
		audit.LogDelivery(id, kind, errMsg)
	})
	effector.Start()

	log.Println("[main] All subsystems started. Press Ctrl+C to stop.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("[main] Shutting down...")

	if sense != nil {
		sense.Stop()
	}
	effector.Stop()
	if err := a.Close(); err != nil {
		log.Printf("Warning: failed to close store: %v", err)
	}

	log.Println("[main] Goodbye!")
}
