package intent

import "github.com/vthunder/agenda/internal/types"

// Built-in rules. Priorities encode the tie-break order:
// delete > edit > list > query > add reminder > add event > help.
func builtinRules() []Rule {
	return []Rule{
		{
			Name:     "delete-reminder",
			Action:   types.ActionDeleteReminder,
			Priority: 101,
			Trigger: Trigger{
				Pattern: `^\s*(please\s+|can you\s+|could you\s+)?(delete|remove|cancel|drop|forget|clear)\b.*\breminders?\b|^\s*reminders?\s+(delete|remove|cancel)\b`,
				Strip:   `^\s*(please\s+|can you\s+|could you\s+)?(delete|remove|cancel|drop|forget|clear)\s+(the\s+|my\s+|that\s+)?(reminders?\s*(about|for|to|of)?\s*)?|^\s*reminders?\s+(delete|remove|cancel)\s*`,
			},
		},
		{
			Name:     "delete-event",
			Action:   types.ActionDeleteEvent,
			Priority: 100,
			Trigger: Trigger{
				Pattern: `^\s*(please\s+|can you\s+|could you\s+)?(delete|remove|cancel|drop|scrap|call off)\b`,
				Strip:   `^\s*(please\s+|can you\s+|could you\s+)?(delete|remove|cancel|drop|scrap|call off)\s+(the\s+|my\s+|that\s+)?((event|meeting|appointment)\s*(about|for|called|named)?\s*)?`,
			},
		},
		{
			Name:     "edit-event",
			Action:   types.ActionEditEvent,
			Priority: 90,
			Trigger: Trigger{
				Pattern: `^\s*(please\s+|can you\s+|could you\s+)?(edit|change|move|reschedule|update|rename|postpone|push back)\b`,
				Strip:   `^\s*(please\s+|can you\s+|could you\s+)?(edit|change|move|reschedule|update|rename|postpone|push back)\s+(the\s+|my\s+)?((event|meeting|appointment)\s*)?`,
			},
		},
		{
			Name:     "list-reminders",
			Action:   types.ActionListReminders,
			Priority: 81,
			Trigger: Trigger{
				Pattern: `\b(list|show|see|view|display)\b.*\breminders\b|^\s*(my\s+)?reminders\s*\??\s*$`,
			},
		},
		{
			Name:     "list-events",
			Action:   types.ActionListEvents,
			Priority: 80,
			Trigger: Trigger{
				Pattern: `\b(list|show|see|view|display)\b.*\b(events|calendar|schedule|agenda)\b|^\s*(my\s+)?(events|calendar|schedule|agenda)\s*\??\s*$`,
			},
		},
		{
			Name:     "question",
			Action:   types.ActionQuery,
			Priority: 70,
			Trigger: Trigger{
				Pattern: `^\s*(what|when|where|who|which|do i|am i|is there|are there|have i|how many|did i)\b|\?\s*$`,
			},
		},
		{
			Name:     "add-reminder",
			Action:   types.ActionAddReminder,
			Priority: 60,
			Trigger: Trigger{
				Pattern: `\bremind\b|\breminder\b`,
				Strip:   `^\s*(please\s+)?(remind\s+me\s+(to\s+|about\s+|that\s+|of\s+)?|(set|add|create|make)\s+(a\s+|me\s+a\s+)?reminder\s+(to\s+|for\s+|about\s+)?|reminder\s*:?\s*)`,
			},
		},
		{
			Name:     "add-event",
			Action:   types.ActionAddEvent,
			Priority: 50,
			Trigger: Trigger{
				Pattern: `^\s*(please\s+)?(add|schedule|create|book|plan|put)\b|\b(new|add)\s+(event|meeting|appointment)\b`,
				Strip:   `^\s*(please\s+)?(add|schedule|create|book|plan|put)\s+(an?\s+)?(new\s+)?((event|meeting|appointment)\s*(:|for|called|named)?\s*)?`,
			},
		},
		{
			Name:     "greeting",
			Action:   types.ActionHelp,
			Priority: 40,
			Trigger: Trigger{
				Pattern: `^\s*(hi|hello|hey|help|start|yo|howdy|good (morning|afternoon|evening))\b|^\s*\?\s*$`,
			},
		},
		{
			Name:       "timed-text",
			Action:     types.ActionAddEvent,
			Priority:   10,
			Confidence: 0.5,
			Trigger: Trigger{
				Pattern:  `\S`,
				NeedTime: true,
			},
		},
	}
}

// commands maps slash commands (and their aliases) to actions
var commands = map[string]types.Action{
	"addevent":       types.ActionAddEvent,
	"editevent":      types.ActionEditEvent,
	"deleteevent":    types.ActionDeleteEvent,
	"events":         types.ActionListEvents,
	"remindme":       types.ActionAddReminder,
	"listreminders":  types.ActionListReminders,
	"reminders":      types.ActionListReminders,
	"deletereminder": types.ActionDeleteReminder,
	"ask":            types.ActionQuery,
	"debugaccount":   types.ActionDebugAccount,
	"account":        types.ActionDebugAccount,
	"hi":             types.ActionHelp,
	"help":           types.ActionHelp,
	"start":          types.ActionHelp,
	"exportics":      types.ActionExportCalendar,
}
