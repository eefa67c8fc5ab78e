package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vthunder/agenda/internal/ics"
	"github.com/vthunder/agenda/internal/logging"
	"github.com/vthunder/agenda/internal/resolve"
	"github.com/vthunder/agenda/internal/store"
	"github.com/vthunder/agenda/internal/types"
)

const (
	eventExample = "/addevent Dinner with Zahra tomorrow at 9 pm"
	editExample  = "/editevent graduation to next Friday at 3 PM"
)

// genericTitles are what is left of a message that names no event
var genericTitles = map[string]bool{"event": true, "meeting": true, "appointment": true, "it": true, "that": true}

func (b *Bot) addEvent(ctx context.Context, owner string, pi types.ParsedIntent, ref time.Time) (Response, error) {
	if pi.Text == "" {
		return Response{}, &ParseError{Action: pi.Action, Problem: "Please provide event details!", Example: eventExample}
	}
	f := pi.Fields
	if !f.HasDate() {
		return Response{}, &ParseError{Action: pi.Action, Problem: "Please include when the event is (a date, a time, or both).",
			Example: eventExample}
	}
	title := f.Title
	if title == "" {
		title = "Event"
	}

	e := &types.Event{
		OwnerID:     owner,
		Title:       title,
		Start:       f.Start,
		End:         f.End,
		AllDay:      f.Time == types.TimeDateOnly,
		Location:    f.Location,
		Description: f.Description,
		Alarm:       f.Alarm,
	}
	if e.End == nil && !e.AllDay {
		end := e.Start.Add(b.duration)
		e.End = &end
	}

	unlock := b.store.LockUser(owner)
	err := b.store.AddEvent(ctx, e)
	unlock()
	if err != nil {
		return Response{}, err
	}

	resp := Response{Text: fmt.Sprintf("✅ **Event added!**\n\n%s", b.describeEvent(e))}
	return resp, b.push(ctx, *e, "create")
}

func (b *Bot) listEvents(ctx context.Context, owner string, ref time.Time) (Response, error) {
	events, err := b.upcoming(ctx, owner, ref)
	if err != nil {
		return Response{}, err
	}
	b.remember(owner, "event", eventCandidates(events))
	days := int(b.window.Hours() / 24)
	if len(events) == 0 {
		return Response{Text: fmt.Sprintf("📭 No upcoming events in the next %d days.", days)}, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📅 **Your Upcoming Events (Next %d Days):**\n\n", days)
	for i, e := range events {
		fmt.Fprintf(&sb, "%d. **%s**\n   📅 %s", i+1, e.Title, b.when(&e))
		if e.Location != "" {
			fmt.Fprintf(&sb, "\n   📍 %s", e.Location)
		}
		sb.WriteString("\n\n")
	}
	return Response{Text: strings.TrimRight(sb.String(), "\n")}, nil
}

// upcoming lists events from the start of today to the end of the window
func (b *Bot) upcoming(ctx context.Context, owner string, ref time.Time) ([]types.Event, error) {
	day := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, ref.Location())
	return b.store.ListEvents(ctx, owner, day, ref.Add(b.window))
}

func (b *Bot) allEvents(ctx context.Context, owner string) ([]resolve.Candidate, error) {
	events, err := b.store.ListEvents(ctx, owner, time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}
	return eventCandidates(events), nil
}

func (b *Bot) deleteEvent(ctx context.Context, owner string, pi types.ParsedIntent, ref time.Time) (Response, error) {
	target := resolve.Reference{Index: pi.Fields.Index, Text: pi.Text}
	if target.Index == 0 && strings.TrimSpace(target.Text) == "" {
		return Response{}, &ParseError{Action: pi.Action, Problem: "Please specify which event to delete!",
			Example: "/deleteevent graduation day"}
	}

	unlock := b.store.LockUser(owner)
	hit, err := b.resolveRef(owner, "event", target, func() ([]resolve.Candidate, error) {
		if target.Index > 0 {
			events, err := b.upcoming(ctx, owner, ref)
			return eventCandidates(events), err
		}
		return b.allEvents(ctx, owner)
	})
	if err != nil {
		unlock()
		return Response{}, err
	}
	prev, changed, err := b.store.DeleteEvent(ctx, owner, hit.ID)
	unlock()
	return b.eventDeleted(ctx, owner, target, prev, changed, err)
}

// deleteAny handles a free-text delete that names neither an event nor a
// reminder. Both listings are searched together; a best match in one kind
// deletes it and a close call across kinds is ambiguous. An index picks from
// whichever listing the user saw last.
func (b *Bot) deleteAny(ctx context.Context, owner string, pi types.ParsedIntent, ref time.Time) (Response, error) {
	target := resolve.Reference{Index: pi.Fields.Index, Text: pi.Text}
	if target.Index > 0 && b.lastShown(owner) == "reminder" {
		return b.deleteReminder(ctx, owner, pi, ref)
	}
	if target.Index > 0 || strings.TrimSpace(target.Text) == "" {
		return b.deleteEvent(ctx, owner, pi, ref)
	}

	unlock := b.store.LockUser(owner)
	events, err := b.allEvents(ctx, owner)
	if err != nil {
		unlock()
		return Response{}, err
	}
	reminders, err := b.store.ListReminders(ctx, owner, false)
	if err != nil {
		unlock()
		return Response{}, err
	}
	cands := append(append([]resolve.Candidate{}, events...), reminderCandidates(reminders)...)
	isEvent := func(s resolve.Scored) bool { return s.Index <= len(events) }

	res := b.resolver.Resolve(target, cands)
	switch res.Kind {
	case resolve.None:
		unlock()
		return Response{}, &NotFoundError{Kind: kindAny, Query: target.Text}
	case resolve.Ambiguous:
		defer unlock()
		kind := ""
		for _, c := range res.Candidates {
			k := "reminder"
			if isEvent(c) {
				k = "event"
			}
			if kind != "" && kind != k {
				return Response{}, &AmbiguousReferenceError{Kind: kindAny, Query: target.Text, Candidates: res.Candidates}
			}
			kind = k
		}
		shown := make([]resolve.Candidate, len(res.Candidates))
		for i, c := range res.Candidates {
			shown[i] = c.Candidate
		}
		b.remember(owner, kind, shown)
		return Response{}, &AmbiguousReferenceError{Kind: kind, Query: target.Text, Candidates: res.Candidates}
	}

	hit := res.Best
	if !isEvent(hit) {
		changed, err := b.store.DeleteReminder(ctx, owner, hit.ID)
		unlock()
		return reminderDeleted(target, hit, changed, err)
	}
	prev, changed, err := b.store.DeleteEvent(ctx, owner, hit.ID)
	unlock()
	return b.eventDeleted(ctx, owner, target, prev, changed, err)
}

// eventDeleted reports a delete and removes the event from the calendar.
// Callers have released the user's lock.
func (b *Bot) eventDeleted(ctx context.Context, owner string, target resolve.Reference, prev *types.Event, changed bool, err error) (Response, error) {
	if errors.Is(err, store.ErrNotFound) {
		return Response{}, &NotFoundError{Kind: "event", Query: refText(target)}
	}
	if err != nil {
		return Response{}, err
	}
	if !changed {
		return Response{Text: fmt.Sprintf("ℹ️ Event **%s** was already deleted.", prev.Title)}, nil
	}

	resp := Response{Text: fmt.Sprintf("✅ Deleted event: **%s**", prev.Title)}
	if b.syncer != nil && prev.ExternalRef != "" {
		if err := b.syncer.Remove(ctx, owner, prev.ExternalRef); err != nil {
			return resp, &SyncError{EventID: prev.ID, Op: "delete", Err: err}
		}
	}
	return resp, nil
}

// editEvent handles "<which event> to <new details>". Without " to " the
// extracted time is the new time and the rest of the text names the event.
func (b *Bot) editEvent(ctx context.Context, owner string, pi types.ParsedIntent, ref time.Time) (Response, error) {
	if pi.Text == "" {
		return Response{}, &ParseError{Action: pi.Action, Problem: "Please provide event details!", Example: editExample}
	}

	var (
		target resolve.Reference
		change types.Fields
		rename bool
	)
	if which, details, ok := cutTo(pi.Text); ok {
		tf := b.classifier.Extract(which, ref)
		target = resolve.Reference{Index: tf.Index, Text: which}
		change = b.classifier.Extract(details, ref)
		rename = change.Title != "" && !genericTitles[strings.ToLower(change.Title)]
	} else {
		target = resolve.Reference{Index: pi.Fields.Index, Text: pi.Fields.Title}
		change = pi.Fields
	}
	if target.Index == 0 && strings.TrimSpace(target.Text) == "" {
		return Response{}, &ParseError{Action: pi.Action, Problem: "Please specify which event to edit.", Example: editExample}
	}

	unlock := b.store.LockUser(owner)
	hit, err := b.resolveRef(owner, "event", target, func() ([]resolve.Candidate, error) {
		if target.Index > 0 {
			events, err := b.upcoming(ctx, owner, ref)
			return eventCandidates(events), err
		}
		return b.allEvents(ctx, owner)
	})
	if err != nil {
		unlock()
		return Response{}, err
	}
	e, err := b.store.GetEvent(ctx, owner, hit.ID)
	if errors.Is(err, store.ErrNotFound) {
		unlock()
		return Response{}, &NotFoundError{Kind: "event", Query: refText(target)}
	}
	if err != nil {
		unlock()
		return Response{}, err
	}

	if !b.applyChange(e, change, rename) {
		unlock()
		return Response{}, &ParseError{Action: pi.Action,
			Problem: fmt.Sprintf("What should change about **%s**? Give a new time, date or title.", e.Title),
			Example: editExample}
	}
	err = b.store.UpdateEvent(ctx, e)
	unlock()
	if err != nil {
		return Response{}, err
	}

	resp := Response{Text: fmt.Sprintf("✅ **Event updated!**\n\n%s", b.describeEvent(e))}
	return resp, b.push(ctx, *e, "update")
}

// applyChange copies the fields present in change onto e and reports
// whether anything changed
func (b *Bot) applyChange(e *types.Event, change types.Fields, rename bool) bool {
	changed := false
	if change.HasDate() {
		oldLen := e.EndOrDefault(b.duration).Sub(e.Start)
		switch {
		case change.HasTime():
			e.Start = change.Start
			e.AllDay = false
		case e.AllDay:
			e.Start = change.Start
		default:
			// a new day for a timed event keeps its clock time
			s := change.Start.In(e.Start.Location())
			e.Start = time.Date(s.Year(), s.Month(), s.Day(), e.Start.Hour(), e.Start.Minute(), 0, 0, e.Start.Location())
		}
		if change.End != nil {
			e.End = change.End
		} else if e.AllDay {
			e.End = nil
		} else {
			end := e.Start.Add(oldLen)
			e.End = &end
		}
		changed = true
	} else if change.End != nil {
		e.End = change.End
		changed = true
	}
	if rename {
		e.Title = change.Title
		changed = true
	}
	if change.Location != "" {
		e.Location = change.Location
		changed = true
	}
	if change.Description != "" {
		e.Description = change.Description
		changed = true
	}
	if change.Alarm > 0 {
		e.Alarm = change.Alarm
		changed = true
	}
	return changed
}

// cutTo splits "<which> to <details>" at the first " to "
func cutTo(s string) (string, string, bool) {
	i := strings.Index(strings.ToLower(s), " to ")
	if i < 0 {
		return s, "", false
	}
	which, details := strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+4:])
	if which == "" || details == "" {
		return s, "", false
	}
	return which, details, true
}

func (b *Bot) exportCalendar(ctx context.Context, owner string, ref time.Time) (Response, error) {
	events, err := b.store.ListEvents(ctx, owner, time.Time{}, time.Time{})
	if err != nil {
		return Response{}, err
	}
	reminders, err := b.store.ListReminders(ctx, owner, false)
	if err != nil {
		return Response{}, err
	}
	if len(events) == 0 && len(reminders) == 0 {
		return Response{Text: "📭 Nothing to export yet."}, nil
	}
	data, err := ics.Export(events, reminders, ref)
	if err != nil {
		return Response{}, err
	}
	logging.Debug("bot", "Exported %d event(s), %d reminder(s) for %s", len(events), len(reminders), owner)
	return Response{
		Text: fmt.Sprintf("📎 Your calendar: %d event(s) and %d reminder(s). Open the file to import it.", len(events), len(reminders)),
		File: &Attachment{Name: ics.Filename("agenda"), ContentType: "text/calendar", Data: data},
	}, nil
}

func (b *Bot) when(e *types.Event) string {
	local := *e
	local.Start = e.Start.In(b.loc)
	return local.FormatWhen()
}

func (b *Bot) describeEvent(e *types.Event) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📅 %s\n🕒 %s", e.Title, b.when(e))
	if e.End != nil && !e.AllDay {
		fmt.Fprintf(&sb, " to %s", e.End.In(b.loc).Format("03:04 PM"))
	}
	if e.Location != "" {
		fmt.Fprintf(&sb, "\n📍 %s", e.Location)
	}
	if e.Description != "" {
		fmt.Fprintf(&sb, "\n📝 %s", e.Description)
	}
	if e.Alarm > 0 {
		fmt.Fprintf(&sb, "\n⏰ Alert %d min before", e.Alarm)
	}
	return sb.String()
}

func eventCandidates(events []types.Event) []resolve.Candidate {
	out := make([]resolve.Candidate, len(events))
	for i, e := range events {
		text := e.Title
		if e.Location != "" {
			text += " " + e.Location
		}
		out[i] = resolve.Candidate{ID: e.ID, Text: text, When: e.Start}
	}
	return out
}
