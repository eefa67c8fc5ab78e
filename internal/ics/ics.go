// Package ics converts events and reminders to and from iCalendar. It builds
// the /exportics attachment and the objects the CalDAV backend stores.
package ics

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"

	"github.com/vthunder/agenda/internal/calsync"
	"github.com/vthunder/agenda/internal/types"
)

// ProductID identifies calendars written by this package
const ProductID = "-//agenda//EN"

// DefaultDuration is used for events without an end
const DefaultDuration = time.Hour

const dateLayout = "20060102"

// NewCalendar returns an empty VCALENDAR with the required header properties
func NewCalendar() *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, ProductID)
	cal.Props.SetText(ical.PropCalendarScale, "GREGORIAN")
	cal.Props.SetText(ical.PropMethod, "PUBLISH")
	return cal
}

// EventComponent renders e as a VEVENT. The UID is the event's sync key so
// the same event always maps to the same calendar object.
func EventComponent(e types.Event, stamp time.Time) *ical.Component {
	ve := ical.NewComponent(ical.CompEvent)
	uid := e.SyncKey
	if uid == "" {
		uid = uuid.NewString()
	}
	ve.Props.SetText(ical.PropUID, uid)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
	ve.Props.SetText(ical.PropSummary, e.Title)

	end := e.EndOrDefault(DefaultDuration)
	if !end.After(e.Start) {
		end = e.Start.Add(DefaultDuration)
	}
	if e.AllDay {
		ve.Props.Set(dateProp(ical.PropDateTimeStart, e.Start))
		ve.Props.Set(dateProp(ical.PropDateTimeEnd, end))
	} else {
		ve.Props.SetDateTime(ical.PropDateTimeStart, e.Start.UTC())
		ve.Props.SetDateTime(ical.PropDateTimeEnd, end.UTC())
	}

	if e.Location != "" {
		ve.Props.SetText(ical.PropLocation, e.Location)
	}
	if e.Description != "" {
		ve.Props.SetText(ical.PropDescription, e.Description)
	}
	if e.Alarm > 0 {
		ve.Children = append(ve.Children, Alarm(e.Title, e.Alarm))
	}
	return ve
}

// ReminderComponent renders a reminder as a zero-length VEVENT with an
// alarm at its due time
func ReminderComponent(r types.Reminder, stamp time.Time) *ical.Component {
	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, fmt.Sprintf("reminder-%s-%d@agenda", r.OwnerID, r.ID))
	ve.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
	ve.Props.SetText(ical.PropSummary, "🔔 "+r.Text)
	ve.Props.SetDateTime(ical.PropDateTimeStart, r.DueAt.UTC())
	ve.Props.SetDateTime(ical.PropDateTimeEnd, r.DueAt.UTC())
	ve.Children = append(ve.Children, Alarm(r.Text, 0))
	return ve
}

// Alarm builds a DISPLAY VALARM firing minutes before the start
func Alarm(title string, minutes int) *ical.Component {
	va := ical.NewComponent(ical.CompAlarm)
	va.Props.SetText(ical.PropAction, "DISPLAY")
	va.Props.SetText(ical.PropDescription, "Reminder: "+title)
	va.Props.Set(&ical.Prop{Name: ical.PropTrigger, Params: make(ical.Params), Value: fmt.Sprintf("-PT%dM", minutes)})
	return va
}

func dateProp(name string, t time.Time) *ical.Prop {
	p := ical.NewProp(name)
	p.Params.Set(ical.ParamValue, "DATE")
	p.Value = t.Format(dateLayout)
	return p
}

// Encode writes cal to w
func Encode(w io.Writer, cal *ical.Calendar) error {
	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("failed to encode calendar: %w", err)
	}
	return nil
}

// Export renders events and scheduled reminders as one .ics document
func Export(events []types.Event, reminders []types.Reminder, stamp time.Time) ([]byte, error) {
	cal := NewCalendar()
	for _, e := range events {
		cal.Children = append(cal.Children, EventComponent(e, stamp))
	}
	for _, r := range reminders {
		if r.Status != types.ReminderScheduled {
			continue
		}
		cal.Children = append(cal.Children, ReminderComponent(r, stamp))
	}
	var buf bytes.Buffer
	if err := Encode(&buf, cal); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Filename derives an attachment name from a title
func Filename(title string) string {
	name := unsafeName.ReplaceAllString(strings.ReplaceAll(strings.TrimSpace(title), " ", "_"), "")
	if name == "" {
		name = "agenda"
	}
	return name + ".ics"
}

// Decode parses one iCalendar document
func Decode(r io.Reader) (*ical.Calendar, error) {
	cal, err := ical.NewDecoder(r).Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode calendar: %w", err)
	}
	return cal, nil
}

// RemoteEvents extracts every VEVENT of cal; ref is the object name for
// the first event, matching how the CalDAV backend stores one event per object
func RemoteEvents(cal *ical.Calendar, ref string, loc *time.Location) []calsync.RemoteEvent {
	var out []calsync.RemoteEvent
	for _, child := range cal.Children {
		if child.Name != ical.CompEvent {
			continue
		}
		ev, err := FromComponent(child, loc)
		if err != nil {
			continue
		}
		if ref != "" {
			ev.Ref = ref
		}
		out = append(out, ev)
	}
	return out
}

// FromComponent reads a VEVENT. The Ref and SyncKey are both its UID.
func FromComponent(comp *ical.Component, loc *time.Location) (calsync.RemoteEvent, error) {
	if loc == nil {
		loc = time.UTC
	}
	var ev calsync.RemoteEvent
	uid, _ := comp.Props.Text(ical.PropUID)
	ev.Ref, ev.SyncKey = uid, uid
	ev.Title, _ = comp.Props.Text(ical.PropSummary)
	ev.Description, _ = comp.Props.Text(ical.PropDescription)
	ev.Location, _ = comp.Props.Text(ical.PropLocation)
	if status, err := comp.Props.Text(ical.PropStatus); err == nil && status != "" {
		ev.Status = strings.ToLower(status)
	}

	startProp := comp.Props.Get(ical.PropDateTimeStart)
	if startProp == nil {
		return ev, fmt.Errorf("event %s has no DTSTART", uid)
	}
	start, err := startProp.DateTime(loc)
	if err != nil {
		return ev, fmt.Errorf("event %s: %w", uid, err)
	}
	ev.Start = start
	ev.AllDay = len(startProp.Value) == len(dateLayout)
	if endProp := comp.Props.Get(ical.PropDateTimeEnd); endProp != nil {
		if end, err := endProp.DateTime(loc); err == nil {
			ev.End = end
		}
	}

	for _, child := range comp.Children {
		if child.Name != ical.CompAlarm {
			continue
		}
		if trig := child.Props.Get(ical.PropTrigger); trig != nil {
			if mins, ok := ParseTrigger(trig.Value); ok {
				ev.Alarm = mins
				break
			}
		}
	}
	return ev, nil
}

var triggerRe = regexp.MustCompile(`^-P(?:(\d+)W)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseTrigger reads a relative "before start" TRIGGER like -PT15M or -P1D
// as minutes. Absolute or after-start triggers are not understood.
func ParseTrigger(v string) (int, bool) {
	m := triggerRe.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(v)))
	if m == nil || v == "-P" {
		return 0, false
	}
	num := func(s string) int {
		n, _ := strconv.Atoi(s)
		return n
	}
	mins := num(m[1])*7*24*60 + num(m[2])*24*60 + num(m[3])*60 + num(m[4]) + num(m[5])/60
	return mins, true
}
