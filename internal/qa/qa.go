// Package qa answers free-text questions from the user's own reminders and
// events. It retrieves by lexical overlap and only ever quotes stored fields.
package qa

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/vthunder/agenda/internal/resolve"
	"github.com/vthunder/agenda/internal/types"
)

// DefaultTopN is how many records an answer lists at most
const DefaultTopN = 5

// NothingFound is the reply when no record is relevant
const NothingFound = "🔍 I couldn't find anything in your reminders or events that matches that."

// Store is the read side QA needs
type Store interface {
	ListReminders(ctx context.Context, owner string, includeFired bool) ([]types.Reminder, error)
	ListEvents(ctx context.Context, owner string, from, to time.Time) ([]types.Event, error)
}

// Kind says which record type a hit came from
type Kind string

const (
	KindReminder Kind = "reminder"
	KindEvent    Kind = "event"
)

// Hit is one retrieved record
type Hit struct {
	Kind      Kind
	ID        int64
	Title     string
	When      time.Time
	AllDay    bool
	Location  string
	Body      string
	Status    string
	CreatedAt time.Time
	Score     float64
	Matched   []string
}

// Response is a grounded answer and the records it was built from
type Response struct {
	Text string
	Hits []Hit
}

// Answerer retrieves records relevant to a question
type Answerer struct {
	store Store
	topN  int
}

// New creates an answerer; topN <= 0 uses DefaultTopN
func New(store Store, topN int) *Answerer {
	if topN <= 0 {
		topN = DefaultTopN
	}
	return &Answerer{store: store, topN: topN}
}

// question words that say nothing about which record is meant
var questionWords = map[string]bool{
	"what": true, "whats": true, "when": true, "where": true, "which": true, "who": true,
	"do": true, "does": true, "did": true, "i": true, "have": true, "has": true, "any": true,
	"are": true, "there": true, "was": true, "will": true, "be": true, "am": true, "we": true,
	"scheduled": true, "planned": true, "coming": true, "up": true, "upcoming": true,
	"show": true, "tell": true, "know": true, "anything": true, "something": true,
	"got": true, "time": true, "day": true, "date": true, "ask": true, "remind": true,
}

// Answer retrieves the top records for question and composes the reply
func (a *Answerer) Answer(ctx context.Context, question, owner string, ref time.Time) (Response, error) {
	hits, err := a.Retrieve(ctx, question, owner, ref)
	if err != nil {
		return Response{}, err
	}
	if len(hits) == 0 {
		return Response{Text: NothingFound}, nil
	}
	return Response{Text: Compose(hits), Hits: hits}, nil
}

// Retrieve scores every live reminder and event of owner against question
// and returns the best topN with a non-zero score
func (a *Answerer) Retrieve(ctx context.Context, question, owner string, ref time.Time) ([]Hit, error) {
	qTokens := QuestionTokens(question)
	if len(qTokens) == 0 {
		return nil, nil
	}

	reminders, err := a.store.ListReminders(ctx, owner, true)
	if err != nil {
		return nil, fmt.Errorf("failed to read reminders: %w", err)
	}
	events, err := a.store.ListEvents(ctx, owner, time.Time{}, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	var hits []Hit
	for _, r := range reminders {
		h := Hit{Kind: KindReminder, ID: r.ID, Title: r.Text, When: r.DueAt, Status: string(r.Status), CreatedAt: r.CreatedAt}
		if score(&h, qTokens, ref) {
			hits = append(hits, h)
		}
	}
	for _, e := range events {
		h := Hit{Kind: KindEvent, ID: e.ID, Title: e.Title, When: e.Start, AllDay: e.AllDay, Location: e.Location,
			Body: e.Description, Status: string(e.Status), CreatedAt: e.CreatedAt}
		if score(&h, qTokens, ref) {
			hits = append(hits, h)
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		di, dj := absDuration(hits[i].When.Sub(ref)), absDuration(hits[j].When.Sub(ref))
		if di != dj {
			return di < dj
		}
		return hits[i].CreatedAt.After(hits[j].CreatedAt)
	})
	if len(hits) > a.topN {
		hits = hits[:a.topN]
	}
	return hits, nil
}

// score fills h.Score with the fraction of question tokens found in the
// record; it reports false when nothing overlaps
func score(h *Hit, qTokens []string, ref time.Time) bool {
	doc := make(map[string]bool)
	for _, field := range []string{h.Title, h.Body, h.Location} {
		for _, t := range resolve.Tokens(field) {
			doc[stem(t)] = true
		}
	}
	for _, t := range DateTokens(h.When, ref) {
		doc[t] = true
	}

	h.Matched = nil
	for _, q := range qTokens {
		if doc[q] {
			h.Matched = append(h.Matched, q)
		}
	}
	if len(h.Matched) == 0 {
		return false
	}
	h.Score = float64(len(h.Matched)) / float64(len(qTokens))
	return true
}

// QuestionTokens are the content words of a question, stemmed and deduplicated
func QuestionTokens(q string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range resolve.Tokens(strings.ReplaceAll(q, "'", "")) {
		if questionWords[t] {
			continue
		}
		t = stem(t)
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// DateTokens describe when t is: weekday, month and, relative to ref,
// today/tomorrow/yesterday/tonight
func DateTokens(t, ref time.Time) []string {
	if t.IsZero() {
		return nil
	}
	t = t.In(ref.Location())
	toks := []string{
		strings.ToLower(t.Weekday().String()),
		strings.ToLower(t.Month().String()),
	}
	switch dayDiff(ref, t) {
	case 0:
		toks = append(toks, "today")
		if t.Hour() >= 17 {
			toks = append(toks, "tonight")
		}
	case 1:
		toks = append(toks, "tomorrow")
	case -1:
		toks = append(toks, "yesterday")
	}
	if d := dayDiff(ref, t); d >= 0 && d < 7 {
		toks = append(toks, "week")
	}
	return toks
}

func dayDiff(from, to time.Time) int {
	a := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// stem folds simple plurals so "meetings" finds "meeting"
func stem(t string) string {
	switch {
	case len(t) > 4 && strings.HasSuffix(t, "ies"):
		return t[:len(t)-3] + "y"
	case len(t) > 3 && strings.HasSuffix(t, "s") && !strings.HasSuffix(t, "ss"):
		return t[:len(t)-1]
	}
	return t
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// Compose renders hits as a reply. Only stored fields appear in it.
func Compose(hits []Hit) string {
	var sb strings.Builder
	sb.WriteString("🔍 **Here's what I found:**\n\n")
	for _, h := range hits {
		icon := "📅"
		if h.Kind == KindReminder {
			icon = "🔔"
		}
		when := h.When.Format(types.WhenLayout)
		if h.AllDay {
			when = h.When.Format("January 02") + " (All day)"
		}
		fmt.Fprintf(&sb, "• %s **%s**\n  🕒 %s", icon, h.Title, when)
		if h.Kind == KindReminder && h.Status == string(types.ReminderFired) {
			sb.WriteString(" (done)")
		}
		sb.WriteString("\n")
		if h.Location != "" {
			fmt.Fprintf(&sb, "  📍 %s\n", h.Location)
		}
		if h.Body != "" {
			fmt.Fprintf(&sb, "  📝 %s\n", h.Body)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
