package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
	_ "modernc.org/sqlite"

	"github.com/vthunder/agenda/internal/activity"
	"github.com/vthunder/agenda/internal/config"
	"github.com/vthunder/agenda/internal/extract"
	"github.com/vthunder/agenda/internal/ics"
	"github.com/vthunder/agenda/internal/integrations/calendar"
	"github.com/vthunder/agenda/internal/intent"
	"github.com/vthunder/agenda/internal/store"
)

func main() {
	app := &cli.App{
		Name:  "agenda-state",
		Usage: "Inspect and manage the agenda database.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "owner", Usage: "User id to inspect (default: DISCORD_OWNER_ID)"},
		},
		Commands: []*cli.Command{
			statsCommand(),
			remindersCommand(),
			eventsCommand(),
			syncCommand(),
			exportCommand(),
			deliveriesCommand(),
			activityCommand(),
			rulesCommand(),
			authCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// env is what every command needs
type env struct {
	cfg   config.Config
	loc   *time.Location
	store *store.Store
	owner string
}

func open(c *cli.Context) (*env, error) {
	log.SetOutput(os.Stderr)
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	loc, _ := cfg.Location()
	st, err := store.OpenDir(cfg.StatePath, store.WithDriver("sqlite"), store.WithLocation(loc))
	if err != nil {
		return nil, err
	}
	owner := c.String("owner")
	if owner == "" {
		owner = cfg.Discord.OwnerID
	}
	return &env{cfg: cfg, loc: loc, store: st, owner: owner}, nil
}

func (e *env) requireOwner() error {
	if e.owner == "" {
		return fmt.Errorf("no owner: pass --owner or set DISCORD_OWNER_ID")
	}
	return nil
}

// withEnv opens the store around a command action
func withEnv(fn func(c *cli.Context, e *env) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		e, err := open(c)
		if err != nil {
			return err
		}
		defer e.store.Close()
		return fn(c, e)
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Counts per user.",
		Action: withEnv(func(c *cli.Context, e *env) error {
			ctx := c.Context
			owners := []string{e.owner}
			if e.owner == "" {
				var err error
				if owners, err = e.store.Owners(ctx); err != nil {
					return err
				}
			}
			fmt.Printf("Database: %s\n\n", e.store.Path())
			if len(owners) == 0 {
				fmt.Println("No data yet.")
				return nil
			}
			for _, o := range owners {
				s, err := e.store.Stats(ctx, o)
				if err != nil {
					return err
				}
				fmt.Printf("%s\n", o)
				fmt.Printf("  Reminders:  %d scheduled, %d fired\n", s.RemindersScheduled, s.RemindersFired)
				fmt.Printf("  Events:     %d live, %d unsynced\n", s.EventsLive, s.EventsUnsynced)
				fmt.Printf("  Deliveries: %d pending\n", s.DeliveriesPending)
				fmt.Printf("  Tombstones: %d\n", s.Tombstones)
			}
			return nil
		}),
	}
}

func remindersCommand() *cli.Command {
	return &cli.Command{
		Name:  "reminders",
		Usage: "List a user's reminders.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "all", Usage: "Include fired reminders."},
		},
		Action: withEnv(func(c *cli.Context, e *env) error {
			if err := e.requireOwner(); err != nil {
				return err
			}
			rs, err := e.store.ListReminders(c.Context, e.owner, c.Bool("all"))
			if err != nil {
				return err
			}
			if len(rs) == 0 {
				fmt.Println("No reminders.")
				return nil
			}
			for i, r := range rs {
				fmt.Printf("%3d. [%s] %s  %s (%s)\n", i+1, r.Status, r.Text,
					r.DueAt.In(e.loc).Format("2006-01-02 15:04"), humanize.Time(r.DueAt))
			}
			return nil
		}),
	}
}

func eventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "List a user's events.",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "within", Usage: "Only events starting within this duration from now."},
		},
		Action: withEnv(func(c *cli.Context, e *env) error {
			if err := e.requireOwner(); err != nil {
				return err
			}
			var from, to time.Time
			if d := c.Duration("within"); d > 0 {
				from = time.Now()
				to = from.Add(d)
			}
			events, err := e.store.ListEvents(c.Context, e.owner, from, to)
			if err != nil {
				return err
			}
			if len(events) == 0 {
				fmt.Println("No events.")
				return nil
			}
			for i, ev := range events {
				when := ev.Start.In(e.loc).Format("2006-01-02 15:04")
				if ev.AllDay {
					when = ev.Start.In(e.loc).Format("2006-01-02") + " (all day)"
				}
				ref := ev.ExternalRef
				if ref == "" {
					ref = "-"
				}
				fmt.Printf("%3d. [%s] %s  %s  remote=%s\n", i+1, ev.Status, ev.Title, when, ref)
			}
			return nil
		}),
	}
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Show events waiting to sync and remote deletes still owed.",
		Action: withEnv(func(c *cli.Context, e *env) error {
			ctx := c.Context
			pending, err := e.store.PendingSync(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Pending sync: %d\n", len(pending))
			for _, ev := range pending {
				msg, _ := e.store.SyncError(ctx, ev.OwnerID, ev.ID)
				if msg == "" {
					msg = "not tried yet"
				}
				fmt.Printf("  %s #%d %s [%s]: %s\n", ev.OwnerID, ev.ID, ev.Title, ev.Status, msg)
			}

			tombs, err := e.store.Tombstones(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Tombstones: %d\n", len(tombs))
			for _, t := range tombs {
				fmt.Printf("  %s %s (since %s)\n", t.OwnerID, t.ExternalRef, humanize.Time(t.CreatedAt))
			}
			return nil
		}),
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export-ics",
		Usage: "Write a user's events and upcoming reminders as an .ics file.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output path (default: stdout)"},
		},
		Action: withEnv(func(c *cli.Context, e *env) error {
			if err := e.requireOwner(); err != nil {
				return err
			}
			ctx := c.Context
			events, err := e.store.ListEvents(ctx, e.owner, time.Time{}, time.Time{})
			if err != nil {
				return err
			}
			reminders, err := e.store.ListReminders(ctx, e.owner, false)
			if err != nil {
				return err
			}
			data, err := ics.Export(events, reminders, time.Now())
			if err != nil {
				return err
			}
			out := c.String("out")
			if out == "" {
				_, err = os.Stdout.Write(data)
				return err
			}
			if err := os.WriteFile(out, data, 0644); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Wrote %d event(s), %d reminder(s) to %s (%s)\n",
				len(events), len(reminders), out, humanize.Bytes(uint64(len(data))))
			return nil
		}),
	}
}

func deliveriesCommand() *cli.Command {
	return &cli.Command{
		Name:  "deliveries",
		Usage: "Show or prune the outbound message queue.",
		Action: withEnv(func(c *cli.Context, e *env) error {
			pending, err := e.store.PendingDeliveries(c.Context, 100)
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				fmt.Println("Outbox empty.")
				return nil
			}
			for _, d := range pending {
				fmt.Printf("%5d %-8s %s attempts=%d queued %s: %s\n", d.ID, d.Kind, d.OwnerID, d.Attempts,
					humanize.Time(d.CreatedAt), truncate(d.Content, 50))
			}
			return nil
		}),
		Subcommands: []*cli.Command{
			{
				Name:  "cleanup",
				Usage: "Delete sent and failed deliveries older than a duration.",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "older-than", Value: 7 * 24 * time.Hour},
				},
				Action: withEnv(func(c *cli.Context, e *env) error {
					n, err := e.store.CleanupDeliveries(c.Context, time.Now().Add(-c.Duration("older-than")))
					if err != nil {
						return err
					}
					fmt.Printf("Removed %d deliveries.\n", n)
					return nil
				}),
			},
		},
	}
}

func activityCommand() *cli.Command {
	return &cli.Command{
		Name:  "activity",
		Usage: "Show the audit trail, optionally filtered.",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "n", Value: 20, Usage: "Number of entries."},
			&cli.StringFlag{Name: "search", Usage: "Only entries mentioning this text."},
			&cli.IntFlag{Name: "truncate", Usage: "Keep only the last N entries and exit."},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			audit, err := activity.New(cfg.StatePath)
			if err != nil {
				return err
			}
			if n := c.Int("truncate"); n > 0 {
				removed, err := audit.Truncate(n)
				if err != nil {
					return err
				}
				fmt.Printf("Removed %d entries.\n", removed)
				return nil
			}

			var entries []activity.Entry
			switch owner := c.String("owner"); {
			case c.String("search") != "":
				entries, err = audit.Search(c.String("search"), c.Int("n"))
			case owner != "":
				entries, err = audit.ByOwner(owner, c.Int("n"))
			default:
				entries, err = audit.Recent(c.Int("n"))
			}
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Printf("%s %-8s %-10s %-16s %s\n", e.Timestamp.Format("2006-01-02 15:04:05"), e.Type, e.Owner,
					e.Action, truncate(e.Summary, 60))
			}
			return nil
		},
	}
}

func rulesCommand() *cli.Command {
	return &cli.Command{
		Name:  "rules",
		Usage: "Write the effective intent rules as YAML, as a starting point for rules.yaml.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Required: true},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			classifier := intent.New(extract.New(nil))
			if err := classifier.LoadFile(cfg.RulesFile); err != nil {
				return err
			}
			rules := classifier.Rules()
			if err := intent.SaveFile(c.String("out"), rules); err != nil {
				return err
			}
			fmt.Printf("Wrote %d rules to %s\n", len(rules), c.String("out"))
			return nil
		},
	}
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authorize Google Calendar access and save the OAuth token.",
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Calendar.CredentialsFile == "" || cfg.Calendar.TokenFile == "" {
				return fmt.Errorf("set GOOGLE_CREDENTIALS_FILE and GOOGLE_TOKEN_FILE first")
			}
			oauthCfg, err := calendar.OAuthConfig(cfg.Calendar.CredentialsFile)
			if err != nil {
				return err
			}

			fmt.Printf("Go to the following link in your browser then type the "+
				"authorization code: \n%v\n", calendar.AuthURL(oauthCfg))
			fmt.Print("Enter Authorization Code: ")
			code, _ := bufio.NewReader(os.Stdin).ReadString('\n')

			ctx, cancel := context.WithTimeout(c.Context, 30*time.Second)
			defer cancel()
			token, err := calendar.TokenFromCode(ctx, oauthCfg, strings.TrimSpace(code))
			if err != nil {
				return fmt.Errorf("unable to retrieve token: %w", err)
			}
			if err := calendar.SaveToken(cfg.Calendar.TokenFile, token); err != nil {
				return err
			}
			fmt.Printf("Saved token to %s\n", cfg.Calendar.TokenFile)
			return nil
		},
	}
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
