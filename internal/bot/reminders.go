package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vthunder/agenda/internal/resolve"
	"github.com/vthunder/agenda/internal/store"
	"github.com/vthunder/agenda/internal/types"
)

const reminderExample = "/remindme Call dentist on the 19th at 6:30 PM"

func (b *Bot) addReminder(ctx context.Context, msg Message, pi types.ParsedIntent, ref time.Time) (Response, error) {
	if pi.Text == "" {
		return Response{}, &ParseError{Action: pi.Action, Problem: "Please provide reminder details!", Example: reminderExample}
	}
	if !pi.Fields.HasTime() {
		return Response{}, &ParseError{Action: pi.Action, Problem: "Please specify a time for the reminder!", Example: reminderExample}
	}
	title := pi.Fields.Title
	if title == "" {
		title = "Reminder"
	}

	r := &types.Reminder{
		OwnerID:   msg.OwnerID,
		ChannelID: msg.ChannelID,
		Text:      title,
		DueAt:     pi.Fields.Start,
		CreatedAt: ref,
	}
	unlock := b.store.LockUser(msg.OwnerID)
	err := b.store.AddReminder(ctx, r)
	unlock()
	if errors.Is(err, store.ErrPastDue) {
		return Response{}, &ParseError{Action: pi.Action,
			Problem: fmt.Sprintf("%s has already passed. Please pick a time in the future.", r.DueAt.In(b.loc).Format(types.WhenLayout)),
			Example: reminderExample}
	}
	if err != nil {
		return Response{}, err
	}

	return Response{Text: fmt.Sprintf("✅ **Reminder set!**\n\n🔔 %s\n📅 %s\n\nI'll remind you here at that time.",
		r.Text, r.DueAt.In(b.loc).Format(types.WhenLayout))}, nil
}

func (b *Bot) listReminders(ctx context.Context, owner string, pi types.ParsedIntent, ref time.Time) (Response, error) {
	all := strings.EqualFold(strings.TrimSpace(pi.Text), "all")
	reminders, err := b.store.ListReminders(ctx, owner, all)
	if err != nil {
		return Response{}, err
	}
	b.remember(owner, "reminder", reminderCandidates(reminders))
	if len(reminders) == 0 {
		return Response{Text: "📭 You have no upcoming reminders."}, nil
	}

	var sb strings.Builder
	sb.WriteString("🔔 **Your Reminders:**\n\n")
	for i, r := range reminders {
		fmt.Fprintf(&sb, "%d. %s\n   📅 %s", i+1, r.Text, r.DueAt.In(b.loc).Format(types.WhenLayout))
		if r.Status == types.ReminderFired {
			sb.WriteString(" ✓")
		}
		sb.WriteString("\n")
	}
	return Response{Text: strings.TrimRight(sb.String(), "\n")}, nil
}

func (b *Bot) deleteReminder(ctx context.Context, owner string, pi types.ParsedIntent, ref time.Time) (Response, error) {
	target := resolve.Reference{Index: pi.Fields.Index, Text: pi.Text}
	if target.Index == 0 && strings.TrimSpace(target.Text) == "" {
		return Response{}, &ParseError{Action: pi.Action, Problem: "Please specify which reminder to delete!",
			Example: "/deletereminder dentist"}
	}

	unlock := b.store.LockUser(owner)
	defer unlock()

	hit, err := b.resolveRef(owner, "reminder", target, func() ([]resolve.Candidate, error) {
		reminders, err := b.store.ListReminders(ctx, owner, false)
		if err != nil {
			return nil, err
		}
		return reminderCandidates(reminders), nil
	})
	if err != nil {
		return Response{}, err
	}

	changed, err := b.store.DeleteReminder(ctx, owner, hit.ID)
	return reminderDeleted(target, hit, changed, err)
}

func reminderDeleted(target resolve.Reference, hit resolve.Scored, changed bool, err error) (Response, error) {
	if errors.Is(err, store.ErrNotFound) {
		return Response{}, &NotFoundError{Kind: "reminder", Query: refText(target)}
	}
	if err != nil {
		return Response{}, err
	}
	if !changed {
		return Response{Text: fmt.Sprintf("ℹ️ Reminder **%s** was already deleted.", hit.Text)}, nil
	}
	return Response{Text: fmt.Sprintf("✅ Deleted reminder: **%s**", hit.Text)}, nil
}

func reminderCandidates(reminders []types.Reminder) []resolve.Candidate {
	out := make([]resolve.Candidate, len(reminders))
	for i, r := range reminders {
		out[i] = resolve.Candidate{ID: r.ID, Text: r.Text, When: r.DueAt}
	}
	return out
}
