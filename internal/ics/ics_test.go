package ics

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/vthunder/agenda/internal/types"
)

var stamp = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

func TestExportContainsAlarms(t *testing.T) {
	events := []types.Event{
		{ID: 1, OwnerID: "alice", Title: "Team Sync", Start: stamp.Add(24 * time.Hour), Location: "Office", Alarm: 15, SyncKey: "k1"},
		{ID: 2, OwnerID: "alice", Title: "Holiday", Start: time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC), AllDay: true, SyncKey: "k2"},
	}
	reminders := []types.Reminder{
		{ID: 1, OwnerID: "alice", Text: "call mom", DueAt: stamp.Add(time.Hour), Status: types.ReminderScheduled},
		{ID: 2, OwnerID: "alice", Text: "stale errand", DueAt: stamp.Add(-time.Hour), Status: types.ReminderFired},
	}
	data, err := Export(events, reminders, stamp)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{"BEGIN:VCALENDAR", "PRODID:" + ProductID, "SUMMARY:Team Sync", "TRIGGER:-PT15M",
		"DTSTART;VALUE=DATE:20250120", "LOCATION:Office", "SUMMARY:🔔 call mom"} {
		if !strings.Contains(text, want) {
			t.Errorf("export missing %q", want)
		}
	}
	if strings.Contains(text, "stale errand") {
		t.Error("fired reminder exported")
	}
}

func TestDecodeRemoteEvents(t *testing.T) {
	e := types.Event{Title: "Dinner", Start: stamp, Description: "bring wine", Alarm: 30, SyncKey: "uid-1"}
	cal := NewCalendar()
	cal.Children = append(cal.Children, EventComponent(e, stamp))
	var buf bytes.Buffer
	if err := Encode(&buf, cal); err != nil {
		t.Fatal(err)
	}

	decoded, err := Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	got := RemoteEvents(decoded, "", time.UTC)
	if len(got) != 1 {
		t.Fatalf("events = %d", len(got))
	}
	ev := got[0]
	if ev.Ref != "uid-1" || ev.SyncKey != "uid-1" || ev.Title != "Dinner" || ev.Description != "bring wine" {
		t.Errorf("event = %+v", ev)
	}
	if !ev.Start.Equal(stamp) || !ev.End.Equal(stamp.Add(time.Hour)) || ev.Alarm != 30 || ev.AllDay {
		t.Errorf("times = %v %v alarm %d", ev.Start, ev.End, ev.Alarm)
	}
}

func TestParseTrigger(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"-PT15M", 15, true},
		{"-PT1H30M", 90, true},
		{"-P1D", 1440, true},
		{"-P1W", 10080, true},
		{"-PT0M", 0, true},
		{"PT15M", 0, false},
		{"19980101T050000Z", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseTrigger(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseTrigger(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFilename(t *testing.T) {
	if got := Filename("Team Sync / Q1"); got != "Team_Sync__Q1.ics" {
		t.Errorf("Filename = %q", got)
	}
	if got := Filename("   "); got != "agenda.ics" {
		t.Errorf("Filename(blank) = %q", got)
	}
}
