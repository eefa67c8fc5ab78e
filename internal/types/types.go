package types

import "time"

// ReminderStatus is the lifecycle state of a reminder
type ReminderStatus string

const (
	ReminderScheduled ReminderStatus = "scheduled"
	ReminderFired     ReminderStatus = "fired"
	ReminderDeleted   ReminderStatus = "deleted"
)

// Reminder is a one-shot notification owned by a single user
type Reminder struct {
	ID        int64          `json:"id"`
	OwnerID   string         `json:"owner_id"`
	ChannelID string         `json:"channel_id,omitempty"` // where the fired reminder is delivered
	Text      string         `json:"text"`
	DueAt     time.Time      `json:"due_at"`
	Status    ReminderStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	FiredAt   *time.Time     `json:"fired_at,omitempty"`
}

// EventStatus tracks an event's sync state against the remote calendar
type EventStatus string

const (
	EventDraft    EventStatus = "draft"    // local only, never confirmed remotely
	EventSynced   EventStatus = "synced"   // remote copy matches
	EventModified EventStatus = "modified" // local edit not yet pushed
	EventDeleted  EventStatus = "deleted"
)

// Event is a calendar entry owned by a single user
type Event struct {
	ID          int64       `json:"id"`
	OwnerID     string      `json:"owner_id"`
	Title       string      `json:"title"`
	Start       time.Time   `json:"start"`
	End         *time.Time  `json:"end,omitempty"`
	AllDay      bool        `json:"all_day,omitempty"`
	Location    string      `json:"location,omitempty"`
	Description string      `json:"description,omitempty"`
	Alarm       int         `json:"alarm,omitempty"`        // minutes before start, 0 = none
	ExternalRef string      `json:"external_ref,omitempty"` // remote id, empty until synced
	SyncKey     string      `json:"sync_key"`               // idempotency key for remote create
	Status      EventStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// EndOrDefault returns the explicit end, or start plus d (one day for all-day events)
func (e *Event) EndOrDefault(d time.Duration) time.Time {
	if e.End != nil {
		return *e.End
	}
	if e.AllDay {
		return e.Start.AddDate(0, 0, 1)
	}
	return e.Start.Add(d)
}

// WhenLayout is how timestamps are shown to users
const WhenLayout = "January 02 at 03:04 PM"

// FormatWhen renders the event start the way replies show it
func (e *Event) FormatWhen() string {
	if e.AllDay {
		return e.Start.Format("January 02") + " (All day)"
	}
	return e.Start.Format(WhenLayout)
}

// FormatWhen renders the due time the way replies show it
func (r *Reminder) FormatWhen() string {
	return r.DueAt.Format(WhenLayout)
}

// Action is one of the fixed intents the engine understands
type Action string

const (
	ActionAddReminder    Action = "add_reminder"
	ActionAddEvent       Action = "add_event"
	ActionEditEvent      Action = "edit_event"
	ActionDeleteEvent    Action = "delete_event"
	ActionDeleteReminder Action = "delete_reminder"
	ActionListEvents     Action = "list_events"
	ActionListReminders  Action = "list_reminders"
	ActionQuery          Action = "query"
	ActionHelp           Action = "help"
	ActionDebugAccount   Action = "debug_account"
	ActionExportCalendar Action = "export_calendar"
	ActionUnknown        Action = "unknown"
)

// ParsedIntent is the transient result of classifying one utterance
type ParsedIntent struct {
	Action     Action
	Text       string // utterance with the trigger phrase removed
	Fields     Fields
	Confidence float64
	Rule       string // name of the rule that decided the action
}

// TimeState says how much of a date/time the extractor found
type TimeState int

const (
	TimeMissing  TimeState = iota // nothing usable found
	TimeDateOnly                  // a day but no clock time
	TimeFound                     // a full absolute timestamp
)

// Fields are the slots extracted from free text
type Fields struct {
	Title       string
	Description string
	Location    string
	People      []string
	Start       time.Time
	End         *time.Time
	Time        TimeState
	Alarm       int // minutes before start from an r<mins> token, 0 if none
	Index       int // 1-based listing index, 0 if none
}

// HasTime reports whether a full timestamp was extracted
func (f Fields) HasTime() bool { return f.Time == TimeFound }

// HasDate reports whether at least a day was extracted
func (f Fields) HasDate() bool { return f.Time != TimeMissing }

// DeliveryKind distinguishes outbox entries
type DeliveryKind string

const (
	DeliveryReply    DeliveryKind = "reply"
	DeliveryReminder DeliveryKind = "reminder"
	DeliveryFile     DeliveryKind = "file"
)

// DeliveryStatus is the outbox state of a delivery
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// Delivery is an outbound message waiting in the outbox
type Delivery struct {
	ID         int64          `json:"id"`
	OwnerID    string         `json:"owner_id"`
	ChannelID  string         `json:"channel_id"`
	Kind       DeliveryKind   `json:"kind"`
	Content    string         `json:"content"`
	Filename   string         `json:"filename,omitempty"`
	Attachment []byte         `json:"-"`
	ReminderID int64          `json:"reminder_id,omitempty"`
	Status     DeliveryStatus `json:"status"`
	Attempts   int            `json:"attempts"`
	CreatedAt  time.Time      `json:"created_at"`
	SentAt     *time.Time     `json:"sent_at,omitempty"`
}

// Tombstone records a remote delete that still has to reach the calendar
type Tombstone struct {
	OwnerID     string    `json:"owner_id"`
	ExternalRef string    `json:"external_ref"`
	CreatedAt   time.Time `json:"created_at"`
}
