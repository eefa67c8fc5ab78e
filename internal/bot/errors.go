package bot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vthunder/agenda/internal/resolve"
	"github.com/vthunder/agenda/internal/types"
)

// ParseError means the message lacked something the action needs
type ParseError struct {
	Action  types.Action
	Problem string // what is missing or wrong
	Example string // an example the user can copy
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Action, e.Problem)
}

// AmbiguousReferenceError means several records matched a reference equally well
type AmbiguousReferenceError struct {
	Kind       string // "event", "reminder" or kindAny
	Query      string
	Candidates []resolve.Scored
}

func (e *AmbiguousReferenceError) Error() string {
	return fmt.Sprintf("%q matches %d %ss", e.Query, len(e.Candidates), e.Kind)
}

// NotFoundError means nothing matched a reference; nothing was changed
type NotFoundError struct {
	Kind  string
	Query string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no %s matching %q", e.Kind, e.Query)
}

// SyncError means the local change is saved but the calendar call failed
type SyncError struct {
	EventID int64
	Op      string
	Err     error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("calendar %s for event %d failed: %v", e.Op, e.EventID, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// ErrorReply turns an error into the message shown to the user
func ErrorReply(err error) string {
	var (
		parseErr *ParseError
		ambErr   *AmbiguousReferenceError
		nfErr    *NotFoundError
		syncErr  *SyncError
	)
	switch {
	case errors.As(err, &parseErr):
		msg := "❌ " + parseErr.Problem
		if parseErr.Example != "" {
			msg += "\n\nExample: " + parseErr.Example
		}
		return msg
	case errors.As(err, &ambErr):
		var sb strings.Builder
		if ambErr.Kind == kindAny {
			fmt.Fprintf(&sb, "🤔 I found both events and reminders matching \"%s\":\n\n", ambErr.Query)
		} else {
			fmt.Fprintf(&sb, "🤔 I found several %ss matching \"%s\":\n\n", ambErr.Kind, ambErr.Query)
		}
		for i, c := range ambErr.Candidates {
			fmt.Fprintf(&sb, "%d. %s (%s)\n", i+1, c.Text, c.When.Format(types.WhenLayout))
		}
		if ambErr.Kind == kindAny {
			sb.WriteString("\nSay whether you mean the event or the reminder.")
		} else {
			sb.WriteString("\nPlease be more specific, or use its number from this list.")
		}
		return sb.String()
	case errors.As(err, &nfErr):
		list := "/events"
		switch nfErr.Kind {
		case "reminder":
			list = "/listreminders"
		case kindAny:
			list = "/events or /listreminders"
		}
		if nfErr.Query == "" {
			return fmt.Sprintf("❌ Couldn't find that %s.\n\nUse %s to see them.", nfErr.Kind, list)
		}
		return fmt.Sprintf("❌ Couldn't find any %s matching: %s\n\nUse %s to see them.", nfErr.Kind, nfErr.Query, list)
	case errors.As(err, &syncErr):
		return "⚠️ Saved here, but the calendar didn't accept the change yet. I'll keep retrying."
	default:
		return "❌ Something went wrong: " + err.Error()
	}
}
