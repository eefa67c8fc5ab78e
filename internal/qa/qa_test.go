package qa

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vthunder/agenda/internal/types"
)

// Wednesday
var ref = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

type fakeStore struct {
	reminders []types.Reminder
	events    []types.Event
	err       error
}

func (f *fakeStore) ListReminders(ctx context.Context, owner string, includeFired bool) ([]types.Reminder, error) {
	var out []types.Reminder
	for _, r := range f.reminders {
		if r.OwnerID == owner {
			out = append(out, r)
		}
	}
	return out, f.err
}

func (f *fakeStore) ListEvents(ctx context.Context, owner string, from, to time.Time) ([]types.Event, error) {
	var out []types.Event
	for _, e := range f.events {
		if e.OwnerID == owner {
			out = append(out, e)
		}
	}
	return out, nil
}

func fixture() *fakeStore {
	return &fakeStore{
		reminders: []types.Reminder{
			{ID: 1, OwnerID: "alice", Text: "call the dentist", DueAt: ref.Add(26 * time.Hour), CreatedAt: ref.Add(-time.Hour)},
			{ID: 2, OwnerID: "alice", Text: "buy milk", DueAt: ref.Add(3 * time.Hour), CreatedAt: ref.Add(-time.Hour)},
			{ID: 1, OwnerID: "bob", Text: "dentist appointment", DueAt: ref.Add(time.Hour), CreatedAt: ref},
		},
		events: []types.Event{
			{ID: 1, OwnerID: "alice", Title: "Team meeting", Start: ref.Add(2 * 24 * time.Hour), Location: "Room 4", CreatedAt: ref},
			{ID: 2, OwnerID: "alice", Title: "Dinner with Zahra", Start: ref.Add(9 * time.Hour), Description: "bring wine", CreatedAt: ref},
			{ID: 3, OwnerID: "alice", Title: "Design meeting", Start: ref.Add(30 * 24 * time.Hour), CreatedAt: ref},
		},
	}
}

func TestRetrieveByTitle(t *testing.T) {
	a := New(fixture(), 5)
	hits, err := a.Retrieve(context.Background(), "when is my dentist appointment?", "alice", ref)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Kind != KindReminder || hits[0].ID != 1 {
		t.Fatalf("hits = %+v", hits)
	}
}

func TestRetrieveScopedToOwner(t *testing.T) {
	a := New(fixture(), 5)
	hits, _ := a.Retrieve(context.Background(), "dentist", "bob", ref)
	for _, h := range hits {
		if h.Title == "call the dentist" {
			t.Errorf("bob saw alice's reminder")
		}
	}
	if len(hits) != 1 {
		t.Errorf("bob hits = %d, want 1", len(hits))
	}
}

func TestRetrieveDateTokens(t *testing.T) {
	a := New(fixture(), 5)
	hits, _ := a.Retrieve(context.Background(), "what do I have tomorrow?", "alice", ref)
	if len(hits) != 1 || hits[0].Title != "call the dentist" {
		t.Errorf("tomorrow hits = %+v", hits)
	}

	hits, _ = a.Retrieve(context.Background(), "anything tonight?", "alice", ref)
	if len(hits) != 1 || hits[0].Title != "Dinner with Zahra" {
		t.Errorf("tonight hits = %+v", hits)
	}
}

func TestTiebreakByCloseness(t *testing.T) {
	a := New(fixture(), 5)
	hits, _ := a.Retrieve(context.Background(), "meetings", "alice", ref)
	if len(hits) != 2 {
		t.Fatalf("hits = %d, want 2", len(hits))
	}
	if hits[0].Title != "Team meeting" {
		t.Errorf("closer meeting should rank first, got %q", hits[0].Title)
	}
}

func TestTopN(t *testing.T) {
	a := New(fixture(), 1)
	hits, _ := a.Retrieve(context.Background(), "meeting", "alice", ref)
	if len(hits) != 1 {
		t.Errorf("topN not applied: %d", len(hits))
	}
}

func TestAnswerNothingFound(t *testing.T) {
	a := New(fixture(), 5)
	for _, q := range []string{"capital of France", "", "what?"} {
		resp, err := a.Answer(context.Background(), q, "alice", ref)
		if err != nil {
			t.Fatal(err)
		}
		if resp.Text != NothingFound || len(resp.Hits) != 0 {
			t.Errorf("Answer(%q) = %q", q, resp.Text)
		}
	}
}

func TestAnswerGrounded(t *testing.T) {
	a := New(fixture(), 5)
	resp, _ := a.Answer(context.Background(), "dinner with zahra", "alice", ref)
	if !strings.Contains(resp.Text, "Dinner with Zahra") || !strings.Contains(resp.Text, "bring wine") {
		t.Errorf("answer = %q", resp.Text)
	}
	if strings.Contains(resp.Text, "milk") {
		t.Errorf("answer mentions unrelated record: %q", resp.Text)
	}
}

func TestRetrieveError(t *testing.T) {
	f := fixture()
	f.err = errors.New("disk gone")
	_, err := New(f, 5).Answer(context.Background(), "dentist", "alice", ref)
	if err == nil {
		t.Error("expected error")
	}
}

func TestQuestionTokens(t *testing.T) {
	got := QuestionTokens("What's on my calendar for Fridays?")
	want := []string{"calendar", "friday"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("QuestionTokens = %v, want %v", got, want)
	}
}
