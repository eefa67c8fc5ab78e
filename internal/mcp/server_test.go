package mcp

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	_ "modernc.org/sqlite"

	"github.com/vthunder/agenda/internal/bot"
	"github.com/vthunder/agenda/internal/store"
	"github.com/vthunder/agenda/internal/types"
)

var t0 = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*Tools, *store.Store) {
	t.Helper()
	now := func() time.Time { return t0 }
	st, err := store.Open(filepath.Join(t.TempDir(), "agenda.db"), store.WithDriver("sqlite"), store.WithClock(now))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	b := bot.New(st, bot.Config{Now: now})
	return NewTools(Dependencies{Handler: b, Outbox: st, DefaultOwner: "alice", Now: now}), st
}

func call(t *testing.T, h func(context.Context, mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error), args map[string]any) (string, bool) {
	t.Helper()
	req := mcpgo.CallToolRequest{}
	req.Params.Arguments = args
	res, err := h(context.Background(), req)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if len(res.Content) == 0 {
		t.Fatal("empty result")
	}
	text, ok := res.Content[0].(mcpgo.TextContent)
	if !ok {
		t.Fatalf("content = %T", res.Content[0])
	}
	return text.Text, res.IsError
}

func tool(name string) command {
	for _, c := range commandTools {
		if c.name == name {
			return c
		}
	}
	panic("no tool " + name)
}

func TestAddAndListReminders(t *testing.T) {
	tools, _ := setup(t)
	text, isErr := call(t, tools.commandHandler(tool("add_reminder")), map[string]any{"text": "call the dentist tomorrow at 3pm"})
	if isErr || !strings.Contains(text, "Reminder set") {
		t.Fatalf("add = %q (error %v)", text, isErr)
	}

	text, _ = call(t, tools.commandHandler(tool("list_reminders")), nil)
	if !strings.Contains(text, "1. call the dentist") {
		t.Errorf("list = %q", text)
	}

	// another owner sees nothing
	text, _ = call(t, tools.commandHandler(tool("list_reminders")), map[string]any{"owner": "bob"})
	if !strings.Contains(text, "no upcoming reminders") {
		t.Errorf("bob's list = %q", text)
	}
}

func TestRequiredArgument(t *testing.T) {
	tools, _ := setup(t)
	text, isErr := call(t, tools.commandHandler(tool("delete_event")), map[string]any{})
	if !isErr || !strings.Contains(text, "ref is required") {
		t.Errorf("got %q (error %v)", text, isErr)
	}
}

func TestUserErrorsAreToolErrors(t *testing.T) {
	tools, _ := setup(t)
	text, isErr := call(t, tools.commandHandler(tool("delete_reminder")), map[string]any{"ref": "yoga"})
	if !isErr || !strings.Contains(text, "Couldn't find") {
		t.Errorf("got %q (error %v)", text, isErr)
	}
}

func TestMessage(t *testing.T) {
	tools, st := setup(t)
	text, isErr := call(t, tools.HandleMessage, map[string]any{"text": "schedule standup friday at 10am"})
	if isErr || !strings.Contains(text, "Event added") {
		t.Fatalf("message = %q (error %v)", text, isErr)
	}
	events, _ := st.ListEvents(context.Background(), "alice", time.Time{}, time.Time{})
	if len(events) != 1 || events[0].Title != "standup" {
		t.Errorf("events = %+v", events)
	}
}

func TestExport(t *testing.T) {
	tools, _ := setup(t)
	call(t, tools.commandHandler(tool("add_event")), map[string]any{"text": "Standup friday at 10am"})

	text, _ := call(t, tools.HandleExport, nil)
	if !strings.Contains(text, "BEGIN:VCALENDAR") {
		t.Errorf("inline export = %q", text)
	}

	path := filepath.Join(t.TempDir(), "out.ics")
	text, isErr := call(t, tools.HandleExport, map[string]any{"path": path})
	if isErr || !strings.Contains(text, "Written to") {
		t.Fatalf("export = %q", text)
	}
	data, err := os.ReadFile(path)
	if err != nil || !strings.Contains(string(data), "SUMMARY:Standup") {
		t.Errorf("file = %q, %v", data, err)
	}
}

func TestNotifications(t *testing.T) {
	tools, st := setup(t)
	ctx := context.Background()
	st.Enqueue(ctx, &types.Delivery{OwnerID: "alice", Kind: types.DeliveryReminder, Content: "🔔 stretch"})
	st.Enqueue(ctx, &types.Delivery{OwnerID: "bob", Kind: types.DeliveryReminder, Content: "🔔 bob's"})
	st.Enqueue(ctx, &types.Delivery{OwnerID: "alice", Kind: types.DeliveryReply, Content: "a reply"})

	text, _ := call(t, tools.HandleNotifications, nil)
	if text != "🔔 stretch" {
		t.Errorf("notifications = %q", text)
	}
	text, _ = call(t, tools.HandleNotifications, nil)
	if !strings.Contains(text, "No new notifications") {
		t.Errorf("second call = %q", text)
	}

	pending, _ := st.PendingDeliveries(ctx, 10)
	if len(pending) != 2 {
		t.Errorf("other deliveries should stay queued, got %d", len(pending))
	}
}

func TestNewServerRegistersTools(t *testing.T) {
	_, st := setup(t)
	s := NewServer(Dependencies{Handler: bot.New(st, bot.Config{}), Outbox: st})
	if s == nil {
		t.Fatal("nil server")
	}
}
