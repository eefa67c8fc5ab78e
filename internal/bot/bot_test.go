package bot

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vthunder/agenda/internal/calsync"
	"github.com/vthunder/agenda/internal/extract"
	"github.com/vthunder/agenda/internal/intent"
	"github.com/vthunder/agenda/internal/store"
	"github.com/vthunder/agenda/internal/types"
)

// Wednesday
var t0 = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

type fixture struct {
	bot *Bot
	st  *store.Store
	mem *calsync.Memory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := func() time.Time { return t0 }
	st, err := store.Open(filepath.Join(t.TempDir(), "agenda.db"), store.WithDriver("sqlite"), store.WithClock(now))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	mem := calsync.NewMemory()
	syncer := calsync.New(mem, st, calsync.Config{Timeout: time.Second, Now: now})
	return &fixture{
		bot: New(st, Config{Syncer: syncer, Now: now}),
		st:  st,
		mem: mem,
	}
}

func (f *fixture) say(t *testing.T, content string) Response {
	t.Helper()
	return f.bot.Handle(context.Background(), Message{ID: "m", OwnerID: "alice", ChannelID: "c1", Content: content, At: t0})
}

func mustContain(t *testing.T, text string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(text, w) {
			t.Errorf("reply missing %q:\n%s", w, text)
		}
	}
}

func TestRemindMe(t *testing.T) {
	f := newFixture(t)
	resp := f.say(t, "/remindme Call dentist tomorrow at 3 PM")
	if resp.Err != nil {
		t.Fatalf("unexpected error: %v", resp.Err)
	}
	mustContain(t, resp.Text, "Reminder set", "Call dentist", "January 16 at 03:00 PM")

	reminders, _ := f.st.ListReminders(context.Background(), "alice", false)
	if len(reminders) != 1 || reminders[0].ChannelID != "c1" {
		t.Fatalf("reminders = %+v", reminders)
	}
}

func TestRemindMeNaturalLanguage(t *testing.T) {
	f := newFixture(t)
	resp := f.say(t, "remind me to call mom tomorrow at 5 pm")
	if resp.Action != types.ActionAddReminder {
		t.Fatalf("action = %s", resp.Action)
	}
	mustContain(t, resp.Text, "call mom", "January 16 at 05:00 PM")
}

func TestRemindMeRejectsPast(t *testing.T) {
	f := newFixture(t)
	resp := f.say(t, "/remindme pay rent 2025-01-10 09:00")
	var pe *ParseError
	if !errors.As(resp.Err, &pe) {
		t.Fatalf("err = %v, want ParseError", resp.Err)
	}
	mustContain(t, resp.Text, "already passed")

	reminders, _ := f.st.ListReminders(context.Background(), "alice", true)
	if len(reminders) != 0 {
		t.Errorf("past reminder stored: %+v", reminders)
	}
}

func TestRemindMeNeedsTime(t *testing.T) {
	f := newFixture(t)
	resp := f.say(t, "/remindme buy milk")
	mustContain(t, resp.Text, "Please specify a time", "Example:")
}

func TestListThenDeleteByIndex(t *testing.T) {
	f := newFixture(t)
	// created later-due first, so ids and list positions disagree
	f.say(t, "/remindme water plants friday at 10am")
	f.say(t, "/remindme call mom tomorrow at 9am")

	list := f.say(t, "/listreminders")
	mustContain(t, list.Text, "1. call mom", "2. water plants")

	resp := f.say(t, "/deletereminder 2")
	mustContain(t, resp.Text, "Deleted reminder", "water plants")

	left, _ := f.st.ListReminders(context.Background(), "alice", false)
	if len(left) != 1 || left[0].Text != "call mom" {
		t.Errorf("left = %+v", left)
	}
}

func TestReminderSentenceWithDeleteVerb(t *testing.T) {
	f := newFixture(t)
	f.say(t, "/remindme drop off the car friday at 10am")

	resp := f.say(t, "reminder to drop off the car friday at 10am")
	if resp.Action != types.ActionAddReminder {
		t.Fatalf("action = %s, want add_reminder", resp.Action)
	}
	resp = f.say(t, "reminder: cancel gym membership tomorrow at 9am")
	if resp.Action != types.ActionAddReminder {
		t.Fatalf("action = %s, want add_reminder", resp.Action)
	}
	mustContain(t, resp.Text, "Reminder set", "cancel gym membership")

	left, _ := f.st.ListReminders(context.Background(), "alice", false)
	if len(left) != 3 {
		t.Errorf("reminders = %+v, want 3", left)
	}
}

func TestUntypedDeleteFindsReminder(t *testing.T) {
	f := newFixture(t)
	f.say(t, "/remindme Dentist at 6pm")
	f.say(t, "/remindme Team sync tomorrow at 9am")

	resp := f.say(t, "delete the dentist one")
	if resp.Err != nil {
		t.Fatalf("unexpected error: %v\n%s", resp.Err, resp.Text)
	}
	mustContain(t, resp.Text, "Deleted reminder", "Dentist")

	left, _ := f.st.ListReminders(context.Background(), "alice", false)
	if len(left) != 1 || left[0].Text != "Team sync" {
		t.Errorf("left = %+v", left)
	}
}

func TestUntypedDeleteFindsEvent(t *testing.T) {
	f := newFixture(t)
	f.say(t, "/addevent Standup friday at 10am")
	f.say(t, "/remindme call mom tomorrow at 9am")

	resp := f.say(t, "delete standup")
	mustContain(t, resp.Text, "Deleted event", "Standup")
	if _, _, deletes := f.mem.Calls(); deletes != 1 {
		t.Errorf("remote deletes = %d", deletes)
	}
	left, _ := f.st.ListReminders(context.Background(), "alice", false)
	if len(left) != 1 {
		t.Errorf("reminder touched: %+v", left)
	}
}

func TestUntypedDeleteAcrossKindsIsAmbiguous(t *testing.T) {
	f := newFixture(t)
	f.say(t, "/addevent Dentist friday at 3pm")
	f.say(t, "/remindme Dentist tomorrow at 9am")

	resp := f.say(t, "remove dentist")
	var amb *AmbiguousReferenceError
	if !errors.As(resp.Err, &amb) || amb.Kind != kindAny {
		t.Fatalf("err = %v, want cross-kind AmbiguousReferenceError", resp.Err)
	}
	mustContain(t, resp.Text, "both events and reminders", "event or the reminder")

	events, _ := f.st.ListEvents(context.Background(), "alice", time.Time{}, time.Time{})
	reminders, _ := f.st.ListReminders(context.Background(), "alice", false)
	if len(events) != 1 || len(reminders) != 1 {
		t.Errorf("ambiguous delete changed the store: %d events, %d reminders", len(events), len(reminders))
	}
}

func TestUntypedDeleteNotFound(t *testing.T) {
	f := newFixture(t)
	f.say(t, "/remindme call mom tomorrow at 9am")
	resp := f.say(t, "delete yoga")
	var nf *NotFoundError
	if !errors.As(resp.Err, &nf) {
		t.Fatalf("err = %v, want NotFoundError", resp.Err)
	}
	mustContain(t, resp.Text, "Couldn't find any event or reminder matching: yoga")
}

func TestUntypedDeleteIndexUsesLastListing(t *testing.T) {
	f := newFixture(t)
	f.say(t, "/addevent Standup friday at 10am")
	f.say(t, "/remindme water plants friday at 10am")
	f.say(t, "/remindme call mom tomorrow at 9am")

	f.say(t, "/events")
	f.say(t, "/listreminders")
	resp := f.say(t, "delete 2")
	mustContain(t, resp.Text, "Deleted reminder", "water plants")

	events, _ := f.st.ListEvents(context.Background(), "alice", time.Time{}, time.Time{})
	if len(events) != 1 {
		t.Errorf("events = %+v", events)
	}
}

func TestDeleteReminderNotFound(t *testing.T) {
	f := newFixture(t)
	f.say(t, "/remindme call mom tomorrow at 9am")
	resp := f.say(t, "/deletereminder yoga")
	var nf *NotFoundError
	if !errors.As(resp.Err, &nf) {
		t.Fatalf("err = %v, want NotFoundError", resp.Err)
	}
	mustContain(t, resp.Text, "Couldn't find any reminder matching: yoga", "/listreminders")

	left, _ := f.st.ListReminders(context.Background(), "alice", false)
	if len(left) != 1 {
		t.Error("not-found delete changed the store")
	}
}

func TestAmbiguousThenPickByNumber(t *testing.T) {
	f := newFixture(t)
	f.say(t, "/addevent Dentist checkup tomorrow at 9am")
	f.say(t, "/addevent Dentist cleaning friday at 9am")

	resp := f.say(t, "/deleteevent dentist")
	var amb *AmbiguousReferenceError
	if !errors.As(resp.Err, &amb) {
		t.Fatalf("err = %v, want AmbiguousReferenceError", resp.Err)
	}
	mustContain(t, resp.Text, "1. Dentist checkup", "2. Dentist cleaning")

	events, _ := f.st.ListEvents(context.Background(), "alice", time.Time{}, time.Time{})
	if len(events) != 2 {
		t.Fatal("ambiguous delete changed the store")
	}

	resp = f.say(t, "/deleteevent 2")
	mustContain(t, resp.Text, "Deleted event", "Dentist cleaning")
	events, _ = f.st.ListEvents(context.Background(), "alice", time.Time{}, time.Time{})
	if len(events) != 1 || events[0].Title != "Dentist checkup" {
		t.Errorf("events = %+v", events)
	}
}

func TestAddEventSyncs(t *testing.T) {
	f := newFixture(t)
	resp := f.say(t, "/addevent Lunch #Cafe Roma tomorrow at 1pm r15")
	if resp.Err != nil {
		t.Fatal(resp.Err)
	}
	mustContain(t, resp.Text, "Event added", "Lunch", "January 16 at 01:00 PM", "Cafe Roma", "15 min")

	e, err := f.st.GetEvent(context.Background(), "alice", 1)
	if err != nil {
		t.Fatal(err)
	}
	if e.Status != types.EventSynced || e.ExternalRef == "" {
		t.Errorf("event = %+v", e)
	}
	if e.End == nil || !e.End.Equal(e.Start.Add(time.Hour)) {
		t.Errorf("default end = %v", e.End)
	}
	if remote, ok := f.mem.Get(e.ExternalRef); !ok || remote.Alarm != 15 {
		t.Errorf("remote = %+v, %v", remote, ok)
	}
}

func TestAddEventDateOnlyIsAllDay(t *testing.T) {
	f := newFixture(t)
	f.say(t, "/addevent Graduation jan 20")
	e, err := f.st.GetEvent(context.Background(), "alice", 1)
	if err != nil {
		t.Fatal(err)
	}
	if !e.AllDay || e.End != nil {
		t.Errorf("event = %+v", e)
	}
}

func TestAddEventSyncFailureKeepsLocal(t *testing.T) {
	f := newFixture(t)
	f.mem.FailWith(errors.New("calendar down"))
	resp := f.say(t, "/addevent Standup friday at 10am")

	var se *SyncError
	if !errors.As(resp.Err, &se) {
		t.Fatalf("err = %v, want SyncError", resp.Err)
	}
	mustContain(t, resp.Text, "Event added", "didn't accept")

	e, _ := f.st.GetEvent(context.Background(), "alice", 1)
	if e == nil || e.Status != types.EventDraft {
		t.Errorf("event = %+v", e)
	}
}

func TestEditEvent(t *testing.T) {
	f := newFixture(t)
	f.say(t, "/addevent Team lunch friday at 11am")

	resp := f.say(t, "/editevent team lunch to saturday at 1pm")
	if resp.Err != nil {
		t.Fatal(resp.Err)
	}
	mustContain(t, resp.Text, "Event updated", "Team lunch", "January 18 at 01:00 PM")

	e, _ := f.st.GetEvent(context.Background(), "alice", 1)
	want := time.Date(2025, 1, 18, 13, 0, 0, 0, time.UTC)
	if !e.Start.Equal(want) || e.End == nil || !e.End.Equal(want.Add(time.Hour)) {
		t.Errorf("event = %v - %v", e.Start, e.End)
	}
	if _, updates, _ := f.mem.Calls(); updates != 1 {
		t.Errorf("remote updates = %d", updates)
	}
	if remote, _ := f.mem.Get(e.ExternalRef); !remote.Start.Equal(want) {
		t.Errorf("remote start = %v", remote.Start)
	}
}

// placeExtractor stands in for a tagger that recognises "in Paris"
type placeExtractor struct {
	inner intent.Extractor
	calls []string
}

func (p *placeExtractor) Extract(text string, ref time.Time) types.Fields {
	p.calls = append(p.calls, text)
	place := ""
	if i := strings.Index(text, " in Paris"); i >= 0 {
		text, place = text[:i]+text[i+len(" in Paris"):], "Paris"
	}
	f := p.inner.Extract(text, ref)
	if place != "" {
		f.Location = place
	}
	return f
}

func TestEditEventUsesClassifierExtractor(t *testing.T) {
	f := newFixture(t)
	ex := &placeExtractor{inner: extract.New(nil)}
	f.bot = New(f.st, Config{Classifier: intent.New(ex), Now: func() time.Time { return t0 }})

	f.say(t, "/addevent Team lunch friday at 11am")
	ex.calls = nil
	resp := f.say(t, "/editevent team lunch to saturday at 1pm in Paris")
	if resp.Err != nil {
		t.Fatal(resp.Err)
	}

	e, _ := f.st.GetEvent(context.Background(), "alice", 1)
	if e.Location != "Paris" || e.Title != "Team lunch" {
		t.Errorf("event = %q at %q", e.Title, e.Location)
	}
	found := false
	for _, c := range ex.calls {
		if c == "saturday at 1pm in Paris" {
			found = true
		}
	}
	if !found {
		t.Errorf("edit details not extracted by the configured extractor: %q", ex.calls)
	}
}

func TestEditEventNewDayKeepsTime(t *testing.T) {
	f := newFixture(t)
	f.say(t, "/addevent Standup friday at 10am")
	f.say(t, "/editevent standup to jan 20")

	e, _ := f.st.GetEvent(context.Background(), "alice", 1)
	if want := time.Date(2025, 1, 20, 10, 0, 0, 0, time.UTC); !e.Start.Equal(want) || e.AllDay {
		t.Errorf("start = %v allDay = %v", e.Start, e.AllDay)
	}
}

func TestEditEventRename(t *testing.T) {
	f := newFixture(t)
	f.say(t, "/addevent Standup friday at 10am")
	resp := f.say(t, "/editevent standup to Daily sync")
	mustContain(t, resp.Text, "Daily sync")

	e, _ := f.st.GetEvent(context.Background(), "alice", 1)
	if e.Title != "Daily sync" {
		t.Errorf("title = %q", e.Title)
	}
}

func TestEditEventNothingToChange(t *testing.T) {
	f := newFixture(t)
	f.say(t, "/addevent Standup friday at 10am")
	resp := f.say(t, "/editevent standup to event")
	var pe *ParseError
	if !errors.As(resp.Err, &pe) {
		t.Fatalf("err = %v, want ParseError", resp.Err)
	}
}

func TestDeleteEventRemovesRemote(t *testing.T) {
	f := newFixture(t)
	f.say(t, "/addevent Standup friday at 10am")
	e, _ := f.st.GetEvent(context.Background(), "alice", 1)
	ref := e.ExternalRef

	resp := f.say(t, "/deleteevent 1")
	mustContain(t, resp.Text, "Deleted event", "Standup")
	if _, ok := f.mem.Get(ref); ok {
		t.Error("remote copy still present")
	}
	if _, err := f.st.GetEvent(context.Background(), "alice", 1); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetEvent after delete = %v", err)
	}
}

func TestDeleteEventRemoteFailureTombstones(t *testing.T) {
	f := newFixture(t)
	f.say(t, "/addevent Standup friday at 10am")
	f.mem.FailWith(errors.New("calendar down"))

	resp := f.say(t, "/deleteevent standup")
	mustContain(t, resp.Text, "Deleted event", "didn't accept")
	tombs, _ := f.st.Tombstones(context.Background())
	if len(tombs) != 1 {
		t.Errorf("tombstones = %+v", tombs)
	}
}

func TestListEvents(t *testing.T) {
	f := newFixture(t)
	resp := f.say(t, "/events")
	mustContain(t, resp.Text, "No upcoming events in the next 30 days")

	// the window runs to 2025-02-14 10:00
	f.say(t, "/addevent Last inside 2025-02-14 09:00")
	f.say(t, "/addevent Just past 2025-02-14 11:00")
	f.say(t, "/addevent Forty days out 2025-02-24 10:00")
	f.say(t, "/addevent Three days out 2025-01-18 10:00")
	resp = f.say(t, "show my events")
	mustContain(t, resp.Text, "Upcoming Events", "1. **Three days out**", "2. **Last inside**")
	for _, title := range []string{"Just past", "Forty days out"} {
		if strings.Contains(resp.Text, title) {
			t.Errorf("%q is outside the window but was listed", title)
		}
	}
}

func TestAsk(t *testing.T) {
	f := newFixture(t)
	f.say(t, "/remindme call dentist tomorrow at 3pm")
	f.say(t, "/addevent Standup friday at 10am")

	resp := f.say(t, "/ask when is the dentist?")
	mustContain(t, resp.Text, "call dentist")
	if strings.Contains(resp.Text, "Standup") {
		t.Error("unrelated event in answer")
	}

	resp = f.say(t, "/ask anything about skydiving?")
	mustContain(t, resp.Text, "couldn't find anything")
}

func TestExport(t *testing.T) {
	f := newFixture(t)
	resp := f.say(t, "/exportics")
	if resp.File != nil {
		t.Fatal("empty export sent a file")
	}

	f.say(t, "/addevent Standup friday at 10am")
	f.say(t, "/remindme call mom tomorrow at 9am")
	resp = f.say(t, "/exportics")
	if resp.File == nil {
		t.Fatalf("no file: %s", resp.Text)
	}
	if resp.File.Name != "agenda.ics" || resp.File.ContentType != "text/calendar" {
		t.Errorf("file = %s %s", resp.File.Name, resp.File.ContentType)
	}
	mustContain(t, string(resp.File.Data), "BEGIN:VCALENDAR", "SUMMARY:Standup", "call mom")
}

func TestDebugAccount(t *testing.T) {
	f := newFixture(t)
	f.say(t, "/addevent Standup friday at 10am")
	resp := f.say(t, "/debugaccount")
	mustContain(t, resp.Text, "Backend: memory", "1 event(s)")
}

func TestHelpAndGreeting(t *testing.T) {
	f := newFixture(t)
	if resp := f.say(t, "/hi"); resp.Text != GreetingText {
		t.Errorf("/hi = %q", resp.Text)
	}
	if resp := f.say(t, "hello"); resp.Text != GreetingText {
		t.Errorf("hello = %q", resp.Text)
	}
	if resp := f.say(t, "/help"); resp.Text != HelpText {
		t.Errorf("/help = %q", resp.Text)
	}
}

func TestUnknown(t *testing.T) {
	f := newFixture(t)
	mustContain(t, f.say(t, "/frobnicate now").Text, "Unknown command /frobnicate")
	if resp := f.say(t, "blah blah"); resp.Text != UnknownText {
		t.Errorf("reply = %q", resp.Text)
	}
}

func TestOwnersAreIsolated(t *testing.T) {
	f := newFixture(t)
	f.say(t, "/remindme call mom tomorrow at 9am")
	resp := f.bot.Handle(context.Background(), Message{OwnerID: "bob", Content: "/listreminders", At: t0})
	mustContain(t, resp.Text, "no upcoming reminders")
}

type panickyStore struct {
	*store.Store
}

func (p panickyStore) ListReminders(ctx context.Context, owner string, includeFired bool) ([]types.Reminder, error) {
	panic("boom")
}

func TestHandleRecoversPanic(t *testing.T) {
	f := newFixture(t)
	b := New(panickyStore{f.st}, Config{Now: func() time.Time { return t0 }})
	resp := b.Handle(context.Background(), Message{OwnerID: "alice", Content: "/listreminders", At: t0})
	if resp.Err == nil {
		t.Fatal("expected error from panic")
	}
	mustContain(t, resp.Text, "Something went wrong")

	// the bot keeps working
	resp = b.Handle(context.Background(), Message{OwnerID: "alice", Content: "/help", At: t0})
	if resp.Text != HelpText {
		t.Errorf("after panic: %q", resp.Text)
	}
}

func TestCutTo(t *testing.T) {
	tests := []struct {
		in, which, details string
		ok                 bool
	}{
		{"standup to friday", "standup", "friday", true},
		{"trip To saturday at 3pm", "trip", "saturday at 3pm", true},
		{"standup", "standup", "", false},
		{" to friday", " to friday", "", false},
	}
	for _, tt := range tests {
		which, details, ok := cutTo(tt.in)
		if ok != tt.ok || (ok && (which != tt.which || details != tt.details)) {
			t.Errorf("cutTo(%q) = %q, %q, %v", tt.in, which, details, ok)
		}
	}
}
