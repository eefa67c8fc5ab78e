// Package bot turns one inbound chat message into one reply. It classifies
// the message, resolves references, applies the change to the store under
// the user's lock and pushes event changes to the calendar.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vthunder/agenda/internal/calsync"
	"github.com/vthunder/agenda/internal/intent"
	"github.com/vthunder/agenda/internal/logging"
	"github.com/vthunder/agenda/internal/qa"
	"github.com/vthunder/agenda/internal/resolve"
	"github.com/vthunder/agenda/internal/store"
	"github.com/vthunder/agenda/internal/types"
)

// listingCacheSize bounds how many per-user listing snapshots are remembered
const listingCacheSize = 1024

// kindAny tags lookups that span events and reminders
const kindAny = "event or reminder"

// reEventNoun marks a delete that is explicitly about an event
var reEventNoun = regexp.MustCompile(`(?i)\b(events?|meetings?|appointments?|calendar)\b`)

// Store is the persistence the dispatcher needs
type Store interface {
	AddReminder(ctx context.Context, r *types.Reminder) error
	ListReminders(ctx context.Context, owner string, includeFired bool) ([]types.Reminder, error)
	DeleteReminder(ctx context.Context, owner string, id int64) (bool, error)
	AddEvent(ctx context.Context, e *types.Event) error
	GetEvent(ctx context.Context, owner string, id int64) (*types.Event, error)
	ListEvents(ctx context.Context, owner string, from, to time.Time) ([]types.Event, error)
	UpdateEvent(ctx context.Context, e *types.Event) error
	DeleteEvent(ctx context.Context, owner string, id int64) (*types.Event, bool, error)
	LockUser(owner string) func()
	Stats(ctx context.Context, owner string) (store.Stats, error)
}

// Syncer is the calendar side of event mutations
type Syncer interface {
	Push(ctx context.Context, e types.Event) error
	Remove(ctx context.Context, owner, ref string) error
	Identity(ctx context.Context) (calsync.Identity, error)
}

// Message is one inbound chat message
type Message struct {
	ID        string
	OwnerID   string
	ChannelID string
	Content   string
	At        time.Time // receipt time; the anchor for relative dates
}

// Attachment is a file sent with a reply
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Response is the reply to a message
type Response struct {
	Text   string
	File   *Attachment
	Action types.Action
	Err    error // the error behind an error reply, for logging
}

// Config wires the dispatcher's collaborators
type Config struct {
	Classifier    *intent.Classifier
	Resolver      *resolve.Resolver
	QA            *qa.Answerer
	Syncer        Syncer // nil disables calendar sync
	Diagnostics   func(ctx context.Context) string
	Location      *time.Location
	EventWindow   time.Duration // how far ahead /events looks
	EventDuration time.Duration // default length of a timed event
	Now           func() time.Time
}

// listing is what a user was last shown, in display order
type listing struct {
	candidates []resolve.Candidate
	at         time.Time
	seq        uint64 // orders snapshots across kinds
}

// Bot dispatches messages
type Bot struct {
	store      Store
	classifier *intent.Classifier
	resolver   *resolve.Resolver
	qa         *qa.Answerer
	syncer     Syncer
	diag       func(ctx context.Context) string
	loc        *time.Location
	window     time.Duration
	duration   time.Duration
	now        func() time.Time
	listings   *lru.Cache[string, listing]
	seq        atomic.Uint64
}

// New creates a dispatcher
func New(st Store, cfg Config) *Bot {
	if cfg.Classifier == nil {
		cfg.Classifier = intent.New(nil)
	}
	if cfg.Resolver == nil {
		cfg.Resolver = resolve.New(0, 0)
	}
	if cfg.QA == nil {
		cfg.QA = qa.New(st, 0)
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.EventWindow <= 0 {
		cfg.EventWindow = 30 * 24 * time.Hour
	}
	if cfg.EventDuration <= 0 {
		cfg.EventDuration = time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cache, _ := lru.New[string, listing](listingCacheSize)
	return &Bot{
		store:      st,
		classifier: cfg.Classifier,
		resolver:   cfg.Resolver,
		qa:         cfg.QA,
		syncer:     cfg.Syncer,
		diag:       cfg.Diagnostics,
		loc:        cfg.Location,
		window:     cfg.EventWindow,
		duration:   cfg.EventDuration,
		now:        cfg.Now,
		listings:   cache,
	}
}

// Handle processes one message. It never panics; a panic in a handler is
// logged and answered with a generic error so other users are unaffected.
func (b *Bot) Handle(ctx context.Context, msg Message) (resp Response) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("[bot] Panic handling message from %s: %v\n%s", msg.OwnerID, p, debug.Stack())
			resp = Response{Text: "❌ Something went wrong handling that. Please try again.", Action: types.ActionUnknown,
				Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	ref := msg.At
	if ref.IsZero() {
		ref = b.now()
	}
	ref = ref.In(b.loc)

	command, text := intent.ParseCommand(msg.Content)
	pi := b.classifier.Classify(text, command, ref)
	logging.Debug("bot", "%s: %q -> %s (rule %s, conf %.2f)", msg.OwnerID, logging.Truncate(msg.Content, 60),
		pi.Action, pi.Rule, pi.Confidence)

	resp, err := b.dispatch(ctx, msg, pi, command, ref)
	resp.Action = pi.Action
	if err != nil {
		resp.Err = err
		var syncErr *SyncError
		if errors.As(err, &syncErr) && resp.Text != "" {
			// the change itself succeeded; add the warning under it
			resp.Text += "\n\n" + ErrorReply(err)
		} else {
			resp.Text = ErrorReply(err)
		}
		logging.Info("bot", "%s %s: %v", msg.OwnerID, pi.Action, err)
	}
	return resp
}

func (b *Bot) dispatch(ctx context.Context, msg Message, pi types.ParsedIntent, command string, ref time.Time) (Response, error) {
	switch pi.Action {
	case types.ActionAddReminder:
		return b.addReminder(ctx, msg, pi, ref)
	case types.ActionDeleteReminder:
		return b.deleteReminder(ctx, msg.OwnerID, pi, ref)
	case types.ActionListReminders:
		return b.listReminders(ctx, msg.OwnerID, pi, ref)
	case types.ActionAddEvent:
		return b.addEvent(ctx, msg.OwnerID, pi, ref)
	case types.ActionEditEvent:
		return b.editEvent(ctx, msg.OwnerID, pi, ref)
	case types.ActionDeleteEvent:
		if command == "" && !reEventNoun.MatchString(msg.Content) {
			return b.deleteAny(ctx, msg.OwnerID, pi, ref)
		}
		return b.deleteEvent(ctx, msg.OwnerID, pi, ref)
	case types.ActionListEvents:
		return b.listEvents(ctx, msg.OwnerID, ref)
	case types.ActionQuery:
		return b.ask(ctx, msg.OwnerID, pi, ref)
	case types.ActionHelp:
		if command == "hi" || (pi.Rule == "greeting" && !strings.Contains(strings.ToLower(msg.Content), "help")) {
			return Response{Text: GreetingText}, nil
		}
		return Response{Text: HelpText}, nil
	case types.ActionDebugAccount:
		return b.debugAccount(ctx, msg.OwnerID)
	case types.ActionExportCalendar:
		return b.exportCalendar(ctx, msg.OwnerID, ref)
	}
	if command != "" {
		return Response{Text: fmt.Sprintf("❓ Unknown command /%s. Use /help to see what I can do.", command)}, nil
	}
	return Response{Text: UnknownText}, nil
}

func listingKey(owner, kind string) string {
	return owner + "\x00" + kind
}

func (b *Bot) remember(owner, kind string, cands []resolve.Candidate) {
	b.listings.Add(listingKey(owner, kind), listing{candidates: cands, at: b.now(), seq: b.seq.Add(1)})
}

// lastShown is whichever of events and reminders owner was shown most
// recently; "event" when neither was
func (b *Bot) lastShown(owner string) string {
	ev, _ := b.listings.Peek(listingKey(owner, "event"))
	rem, ok := b.listings.Peek(listingKey(owner, "reminder"))
	if ok && rem.seq > ev.seq {
		return "reminder"
	}
	return "event"
}

// snapshot returns what owner was last shown for kind
func (b *Bot) snapshot(owner, kind string) ([]resolve.Candidate, bool) {
	l, ok := b.listings.Get(listingKey(owner, kind))
	return l.candidates, ok
}

// resolveRef finds the record ref points at. Index references use the
// user's last listing (or fresh when there is none); text references search
// the full fresh listing. An ambiguous result becomes the new snapshot so a
// follow-up index picks from the candidates just shown. Callers hold the
// user's lock.
func (b *Bot) resolveRef(owner, kind string, ref resolve.Reference, fresh func() ([]resolve.Candidate, error)) (resolve.Scored, error) {
	var cands []resolve.Candidate
	if ref.Index > 0 {
		cands, _ = b.snapshot(owner, kind)
	}
	if cands == nil {
		var err error
		if cands, err = fresh(); err != nil {
			return resolve.Scored{}, err
		}
	}

	res := b.resolver.Resolve(ref, cands)
	switch res.Kind {
	case resolve.Match:
		return res.Best, nil
	case resolve.Ambiguous:
		shown := make([]resolve.Candidate, len(res.Candidates))
		for i, c := range res.Candidates {
			shown[i] = c.Candidate
		}
		b.remember(owner, kind, shown)
		return resolve.Scored{}, &AmbiguousReferenceError{Kind: kind, Query: refText(ref), Candidates: res.Candidates}
	default:
		return resolve.Scored{}, &NotFoundError{Kind: kind, Query: refText(ref)}
	}
}

func refText(ref resolve.Reference) string {
	if ref.Index > 0 {
		return fmt.Sprintf("#%d", ref.Index)
	}
	return ref.Text
}

// push sends an event change to the calendar, reporting failure as SyncError
func (b *Bot) push(ctx context.Context, e types.Event, op string) error {
	if b.syncer == nil {
		return nil
	}
	if err := b.syncer.Push(ctx, e); err != nil {
		return &SyncError{EventID: e.ID, Op: op, Err: err}
	}
	return nil
}

func (b *Bot) ask(ctx context.Context, owner string, pi types.ParsedIntent, ref time.Time) (Response, error) {
	if strings.TrimSpace(pi.Text) == "" {
		return Response{}, &ParseError{Action: pi.Action, Problem: "Please ask a question!",
			Example: "/ask when is my dentist appointment?"}
	}
	ans, err := b.qa.Answer(ctx, pi.Text, owner, ref)
	if err != nil {
		return Response{}, err
	}
	return Response{Text: ans.Text}, nil
}

func (b *Bot) debugAccount(ctx context.Context, owner string) (Response, error) {
	var sb strings.Builder
	if b.syncer == nil {
		sb.WriteString("⚠️ No calendar connected. Events are kept locally.\n")
	} else if id, err := b.syncer.Identity(ctx); err != nil {
		fmt.Fprintf(&sb, "❌ Error checking account: %v\n", err)
	} else {
		fmt.Fprintf(&sb, "✅ **Connected Account:**\n\n📧 Account: %s\n📅 Calendar: %s\n🕒 Timezone: %s\n🔌 Backend: %s\n",
			orUnknown(id.Account), orUnknown(id.Calendar), orUnknown(id.Timezone), id.Backend)
	}

	if st, err := b.store.Stats(ctx, owner); err == nil {
		fmt.Fprintf(&sb, "\n📊 **Your data:** %d scheduled reminder(s), %d fired, %d event(s), %d waiting to sync\n",
			st.RemindersScheduled, st.RemindersFired, st.EventsLive, st.EventsUnsynced)
	}
	if b.diag != nil {
		sb.WriteString("\n" + b.diag(ctx))
	}
	return Response{Text: strings.TrimRight(sb.String(), "\n")}, nil
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
