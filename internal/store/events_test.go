package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vthunder/agenda/internal/types"
)

func TestEventSyncLifecycle(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	e := &types.Event{OwnerID: "alice", Title: "dentist", Start: t0.Add(24 * time.Hour)}
	if err := s.AddEvent(ctx, e); err != nil {
		t.Fatal(err)
	}
	if e.Status != types.EventDraft || e.ExternalRef != "" || e.SyncKey == "" {
		t.Fatalf("new event = %+v", e)
	}

	orphaned, err := s.MarkSynced(ctx, "alice", e.ID, "remote-1", e.UpdatedAt)
	if err != nil || orphaned {
		t.Fatalf("MarkSynced: %v %v", orphaned, err)
	}
	got, _ := s.GetEvent(ctx, "alice", e.ID)
	if got.Status != types.EventSynced || got.ExternalRef != "remote-1" {
		t.Errorf("after sync = %+v", got)
	}

	got.Title = "dentist (moved)"
	if err := s.UpdateEvent(ctx, got); err != nil {
		t.Fatal(err)
	}
	if got.Status != types.EventModified {
		t.Errorf("status after edit = %s, want modified", got.Status)
	}
	if got.ExternalRef != "remote-1" {
		t.Errorf("edit dropped external ref")
	}

	if _, err := s.MarkSynced(ctx, "alice", e.ID, "remote-1", got.UpdatedAt); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetEvent(ctx, "alice", e.ID)
	if got.Status != types.EventSynced || got.Title != "dentist (moved)" {
		t.Errorf("after resync = %+v", got)
	}
}

func TestMarkSyncedStaleVersion(t *testing.T) {
	now := t0
	s := openTest(t)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	e := &types.Event{OwnerID: "alice", Title: "standup", Start: t0.Add(time.Hour)}
	s.AddEvent(ctx, e)
	version := e.UpdatedAt

	// edited while the create call was in flight
	now = t0.Add(time.Second)
	e.Title = "standup v2"
	s.UpdateEvent(ctx, e)

	if _, err := s.MarkSynced(ctx, "alice", e.ID, "remote-9", version); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetEvent(ctx, "alice", e.ID)
	if got.Status != types.EventModified || got.ExternalRef != "remote-9" {
		t.Errorf("stale sync = %+v, want modified with ref", got)
	}
}

func TestDeleteEvent(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	e := &types.Event{OwnerID: "alice", Title: "lunch", Start: t0.Add(time.Hour)}
	s.AddEvent(ctx, e)
	s.MarkSynced(ctx, "alice", e.ID, "remote-2", e.UpdatedAt)

	prev, changed, err := s.DeleteEvent(ctx, "alice", e.ID)
	if err != nil || !changed {
		t.Fatalf("delete: %v %v", changed, err)
	}
	if prev.ExternalRef != "remote-2" {
		t.Errorf("prev ref = %q", prev.ExternalRef)
	}
	if _, err := s.GetEvent(ctx, "alice", e.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted event still visible: %v", err)
	}

	_, changed, err = s.DeleteEvent(ctx, "alice", e.ID)
	if err != nil || changed {
		t.Errorf("second delete: %v %v", changed, err)
	}
	if _, _, err := s.DeleteEvent(ctx, "alice", 42); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing delete: %v", err)
	}
	if err := s.UpdateEvent(ctx, e); !errors.Is(err, ErrNotFound) {
		t.Errorf("update of deleted event: %v", err)
	}
}

func TestMarkSyncedAfterDeleteLeavesTombstone(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	e := &types.Event{OwnerID: "alice", Title: "gone", Start: t0.Add(time.Hour)}
	s.AddEvent(ctx, e)
	s.DeleteEvent(ctx, "alice", e.ID)

	orphaned, err := s.MarkSynced(ctx, "alice", e.ID, "remote-3", e.UpdatedAt)
	if err != nil || !orphaned {
		t.Fatalf("orphaned=%v err=%v", orphaned, err)
	}
	ts, _ := s.Tombstones(ctx)
	if len(ts) != 1 || ts[0].ExternalRef != "remote-3" {
		t.Fatalf("tombstones = %+v", ts)
	}
	if err := s.RemoveTombstone(ctx, "alice", "remote-3"); err != nil {
		t.Fatal(err)
	}
	ts, _ = s.Tombstones(ctx)
	if len(ts) != 0 {
		t.Errorf("tombstone not removed")
	}
}

func TestListEventsWindowAndOrder(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	add := func(title string, start time.Time) {
		if err := s.AddEvent(ctx, &types.Event{OwnerID: "alice", Title: title, Start: start}); err != nil {
			t.Fatal(err)
		}
	}
	add("far", t0.Add(40*24*time.Hour))
	add("b", t0.Add(2*time.Hour))
	add("a", t0.Add(time.Hour))
	add("a2", t0.Add(time.Hour))
	add("past", t0.Add(-time.Hour))

	list, err := s.ListEvents(ctx, "alice", t0, t0.Add(30*24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a", "a2", "b"}
	if len(list) != len(want) {
		t.Fatalf("got %d events, want %d", len(list), len(want))
	}
	for i, w := range want {
		if list[i].Title != w {
			t.Errorf("position %d = %q, want %q", i, list[i].Title, w)
		}
	}

	all, _ := s.ListEvents(ctx, "alice", time.Time{}, time.Time{})
	if len(all) != 5 {
		t.Errorf("unbounded list = %d, want 5", len(all))
	}
}

func TestEventFieldsRoundTrip(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	end := t0.Add(2 * time.Hour)
	e := &types.Event{
		OwnerID: "alice", Title: "offsite", Start: t0.Add(time.Hour), End: &end,
		Location: "HQ", Description: "bring slides", Alarm: 15,
	}
	s.AddEvent(ctx, e)
	got, err := s.GetEvent(ctx, "alice", e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.End == nil || !got.End.Equal(end) || got.Location != "HQ" || got.Description != "bring slides" || got.Alarm != 15 {
		t.Errorf("round trip = %+v", got)
	}

	allDay := &types.Event{OwnerID: "alice", Title: "holiday", Start: t0, AllDay: true}
	s.AddEvent(ctx, allDay)
	got, _ = s.GetEvent(ctx, "alice", allDay.ID)
	if !got.AllDay || got.End != nil {
		t.Errorf("all-day round trip = %+v", got)
	}
}

func TestImportedEventStartsSynced(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	e := &types.Event{OwnerID: "alice", Title: "from remote", Start: t0, ExternalRef: "ext-1"}
	s.AddEvent(ctx, e)
	if e.Status != types.EventSynced {
		t.Errorf("imported status = %s", e.Status)
	}
	found, err := s.FindEventByRef(ctx, "alice", "ext-1")
	if err != nil || found.ID != e.ID {
		t.Errorf("FindEventByRef: %+v %v", found, err)
	}
	pending, _ := s.PendingSync(ctx)
	if len(pending) != 0 {
		t.Errorf("imported event pending sync: %+v", pending)
	}
}

func TestDeliveries(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	d := &types.Delivery{OwnerID: "alice", ChannelID: "c1", Kind: types.DeliveryReply, Content: "hi"}
	if err := s.Enqueue(ctx, d); err != nil {
		t.Fatal(err)
	}
	f := &types.Delivery{OwnerID: "alice", ChannelID: "c1", Kind: types.DeliveryFile, Content: "your calendar",
		Filename: "agenda.ics", Attachment: []byte("BEGIN:VCALENDAR")}
	s.Enqueue(ctx, f)

	pending, err := s.PendingDeliveries(ctx, 10)
	if err != nil || len(pending) != 2 {
		t.Fatalf("pending = %+v %v", pending, err)
	}
	if string(pending[1].Attachment) != "BEGIN:VCALENDAR" || pending[1].Filename != "agenda.ics" {
		t.Errorf("file delivery = %+v", pending[1])
	}

	s.MarkDelivered(ctx, d.ID, t0)
	s.MarkDeliveryFailed(ctx, f.ID, "boom", false)
	pending, _ = s.PendingDeliveries(ctx, 10)
	if len(pending) != 1 || pending[0].ID != f.ID || pending[0].Attempts != 1 {
		t.Fatalf("after retryable failure = %+v", pending)
	}

	s.MarkDeliveryFailed(ctx, f.ID, "forbidden", true)
	pending, _ = s.PendingDeliveries(ctx, 10)
	if len(pending) != 0 {
		t.Errorf("permanent failure still pending")
	}

	n, err := s.CleanupDeliveries(ctx, t0.Add(time.Hour))
	if err != nil || n != 2 {
		t.Errorf("cleanup removed %d (%v), want 2", n, err)
	}
}

func TestMarkSyncFailed(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	e := &types.Event{OwnerID: "alice", Title: "standup", Start: t0.Add(time.Hour)}
	s.AddEvent(ctx, e)
	if err := s.MarkSyncFailed(ctx, "alice", e.ID, "timeout"); err != nil {
		t.Fatal(err)
	}
	msg, err := s.SyncError(ctx, "alice", e.ID)
	if err != nil || msg != "timeout" {
		t.Errorf("SyncError = %q, %v", msg, err)
	}
	pending, _ := s.PendingSync(ctx)
	if len(pending) != 1 {
		t.Errorf("failed event should stay pending, got %d", len(pending))
	}

	s.MarkSynced(ctx, "alice", e.ID, "r1", e.UpdatedAt)
	msg, _ = s.SyncError(ctx, "alice", e.ID)
	if msg != "" {
		t.Errorf("sync error not cleared: %q", msg)
	}
	if _, err := s.SyncError(ctx, "alice", 99); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing event err = %v", err)
	}
}
