// Package mcp exposes the agenda operations as MCP tools. Every tool runs
// through the same dispatcher as chat messages, so replies and validation
// match the Discord bot exactly.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vthunder/agenda/internal/bot"
	"github.com/vthunder/agenda/internal/types"
)

// Version is reported to MCP clients
const Version = "1.0.0"

// Handler is the dispatcher the tools call
type Handler interface {
	Handle(ctx context.Context, msg bot.Message) bot.Response
}

// Outbox is read by the notifications tool
type Outbox interface {
	PendingDeliveries(ctx context.Context, limit int) ([]types.Delivery, error)
	MarkDelivered(ctx context.Context, id int64, at time.Time) error
}

// Dependencies holds what the tools need. Outbox may be nil.
type Dependencies struct {
	Handler      Handler
	Outbox       Outbox
	DefaultOwner string // used when a call names no owner
	Now          func() time.Time
}

// Tools implements the tool handlers
type Tools struct {
	deps Dependencies
}

// NewTools creates the handlers
func NewTools(deps Dependencies) *Tools {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.DefaultOwner == "" {
		deps.DefaultOwner = "local"
	}
	return &Tools{deps: deps}
}

// NewServer creates an MCP server with every tool registered
func NewServer(deps Dependencies) *server.MCPServer {
	s := server.NewMCPServer("agenda", Version, server.WithToolCapabilities(true))
	t := NewTools(deps)
	t.Register(s)
	return s
}

// ServeStdio runs the server on stdin/stdout
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

// command maps a tool to the chat command it runs
type command struct {
	name        string
	slash       string
	arg         string
	argDesc     string
	required    bool
	description string
}

var commandTools = []command{
	{"add_reminder", "remindme", "text", "What and when, e.g. \"call the dentist tomorrow at 3pm\"", true,
		"Set a one-shot reminder. The text must contain a time."},
	{"list_reminders", "listreminders", "filter", "\"all\" to include reminders that already fired", false,
		"List the upcoming reminders, numbered for use with delete_reminder."},
	{"delete_reminder", "deletereminder", "ref", "The number from list_reminders or words from the reminder", true,
		"Delete a reminder by number or by description."},
	{"add_event", "addevent", "text", "What and when, optionally #place, !notes and r<minutes> for an alert", true,
		"Add a calendar event. A date without a time makes an all-day event."},
	{"edit_event", "editevent", "text", "\"<which event> to <new details>\", e.g. \"standup to friday at 10am\"", true,
		"Change an event's time, title, place, notes or alert."},
	{"delete_event", "deleteevent", "ref", "The number from list_events or words from the event", true,
		"Delete an event here and on the connected calendar."},
	{"list_events", "events", "", "", false,
		"List events in the coming weeks, numbered for use with edit_event and delete_event."},
	{"ask", "ask", "question", "A question about your reminders and events", true,
		"Answer a question from the stored reminders and events only."},
	{"debug_account", "debugaccount", "", "", false,
		"Show the connected calendar account and process health."},
}

// Register adds the tools to s
func (t *Tools) Register(s *server.MCPServer) {
	for _, c := range commandTools {
		opts := []mcpgo.ToolOption{
			mcpgo.WithDescription(c.description),
			mcpgo.WithString("owner", mcpgo.Description("User the records belong to. Default: the configured owner")),
		}
		if c.arg != "" {
			argOpts := []mcpgo.PropertyOption{mcpgo.Description(c.argDesc)}
			if c.required {
				argOpts = append(argOpts, mcpgo.Required())
			}
			opts = append(opts, mcpgo.WithString(c.arg, argOpts...))
		}
		s.AddTool(mcpgo.NewTool(c.name, opts...), t.commandHandler(c))
	}

	s.AddTool(mcpgo.NewTool("message",
		mcpgo.WithDescription("Send a free-text message as if typed in chat, e.g. \"remind me to stretch in 20 minutes\"."),
		mcpgo.WithString("text", mcpgo.Required(), mcpgo.Description("The message")),
		mcpgo.WithString("owner", mcpgo.Description("User the records belong to. Default: the configured owner")),
	), t.HandleMessage)

	s.AddTool(mcpgo.NewTool("export_ics",
		mcpgo.WithDescription("Export events and upcoming reminders as an iCalendar file."),
		mcpgo.WithString("path", mcpgo.Description("Where to write the .ics file. Default: return the content")),
		mcpgo.WithString("owner", mcpgo.Description("User the records belong to. Default: the configured owner")),
	), t.HandleExport)

	if t.deps.Outbox != nil {
		s.AddTool(mcpgo.NewTool("notifications",
			mcpgo.WithDescription("Return reminders that fired since the last call and mark them delivered."),
			mcpgo.WithString("owner", mcpgo.Description("User the records belong to. Default: the configured owner")),
		), t.HandleNotifications)
	}
}

func (t *Tools) owner(args map[string]any) string {
	if o, _ := args["owner"].(string); strings.TrimSpace(o) != "" {
		return strings.TrimSpace(o)
	}
	return t.deps.DefaultOwner
}

func (t *Tools) run(ctx context.Context, owner, content string) bot.Response {
	return t.deps.Handler.Handle(ctx, bot.Message{
		ID:        fmt.Sprintf("mcp-%d", t.deps.Now().UnixNano()),
		OwnerID:   owner,
		ChannelID: "",
		Content:   content,
		At:        t.deps.Now(),
	})
}

// result turns a dispatcher reply into a tool result. A sync failure still
// saved the change, so it is not reported as a tool error.
func result(resp bot.Response) *mcpgo.CallToolResult {
	var syncErr *bot.SyncError
	if resp.Err != nil && !errors.As(resp.Err, &syncErr) {
		return mcpgo.NewToolResultError(resp.Text)
	}
	return mcpgo.NewToolResultText(resp.Text)
}

func (t *Tools) commandHandler(c command) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		args, _ := req.Params.Arguments.(map[string]any)
		content := "/" + c.slash
		if c.arg != "" {
			v, _ := args[c.arg].(string)
			v = strings.TrimSpace(v)
			if v == "" && c.required {
				return mcpgo.NewToolResultError(c.arg + " is required"), nil
			}
			if v != "" {
				content += " " + v
			}
		}
		log.Printf("[mcp] %s: %s", c.name, content)
		return result(t.run(ctx, t.owner(args), content)), nil
	}
}

// HandleMessage classifies free text like a chat message
func (t *Tools) HandleMessage(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	text, _ := args["text"].(string)
	if strings.TrimSpace(text) == "" {
		return mcpgo.NewToolResultError("text is required"), nil
	}
	return result(t.run(ctx, t.owner(args), text)), nil
}

// HandleExport writes or returns the calendar file
func (t *Tools) HandleExport(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	resp := t.run(ctx, t.owner(args), "/exportics")
	if resp.Err != nil || resp.File == nil {
		return result(resp), nil
	}

	path, _ := args["path"].(string)
	if path == "" {
		return mcpgo.NewToolResultText(string(resp.File.Data)), nil
	}
	if err := os.WriteFile(path, resp.File.Data, 0644); err != nil {
		return mcpgo.NewToolResultError(fmt.Sprintf("failed to write %s: %v", path, err)), nil
	}
	return mcpgo.NewToolResultText(fmt.Sprintf("%s\n\nWritten to %s (%d bytes)", resp.Text, path, len(resp.File.Data))), nil
}

// HandleNotifications drains fired reminders for the owner
func (t *Tools) HandleNotifications(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	owner := t.owner(args)

	pending, err := t.deps.Outbox.PendingDeliveries(ctx, 200)
	if err != nil {
		return mcpgo.NewToolResultError(fmt.Sprintf("failed to read notifications: %v", err)), nil
	}
	var lines []string
	for _, d := range pending {
		if d.OwnerID != owner || d.Kind != types.DeliveryReminder {
			continue
		}
		if err := t.deps.Outbox.MarkDelivered(ctx, d.ID, t.deps.Now()); err != nil {
			return mcpgo.NewToolResultError(fmt.Sprintf("failed to mark notification %d: %v", d.ID, err)), nil
		}
		lines = append(lines, d.Content)
	}
	if len(lines) == 0 {
		return mcpgo.NewToolResultText("📭 No new notifications."), nil
	}
	return mcpgo.NewToolResultText(strings.Join(lines, "\n\n")), nil
}
