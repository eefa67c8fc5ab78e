// Package extract pulls titles, dates, times and a few entity slots out of
// free-form text. Everything is anchored on a caller-supplied reference time,
// so the same input always yields the same output.
package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/vthunder/agenda/internal/types"
)

// MaxAlarmMinutes bounds the r<mins> alarm token (one week)
const MaxAlarmMinutes = 10080

var (
	reDescription = regexp.MustCompile(`(?is)(?:^|\s)!\s*(\S.*)$`)
	reAlarm       = regexp.MustCompile(`(?i)\br(\d{1,5})\b`)
	reIndex       = regexp.MustCompile(`(?i)^\s*(?:no\.?\s*|number\s+|item\s+)?(\d{1,3})\s*$`)

	reISODate   = regexp.MustCompile(`(?i)\b(?:on\s+)?(\d{4})-(\d{1,2})-(\d{1,2})(?:[ t](\d{1,2}):(\d{2}))?\b`)
	reSlashDate = regexp.MustCompile(`(?i)\b(?:on\s+)?(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?\b`)

	monthNames    = `(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec)\.?`
	reMonthFirst  = regexp.MustCompile(`(?i)\b(?:on\s+)?` + monthNames + `\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?\b`)
	reDayFirst    = regexp.MustCompile(`(?i)\b(?:on\s+)?(?:the\s+)?(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?` + monthNames + `(?:,?\s+(\d{4}))?\b`)
	reOrdinalDay  = regexp.MustCompile(`(?i)\b(?:on\s+)?(?:the\s+)?(\d{1,3})(st|nd|rd|th)\b`)
	reOnTheDay    = regexp.MustCompile(`(?i)\bon\s+the\s+(\d{1,3})\b`)
	reRelative    = regexp.MustCompile(`(?i)\bin\s+(\d+|an?|one|two|three|four|five|six|seven|eight|nine|ten|fifteen|twenty|thirty|half\s+an?)\s*(minutes?|mins?|hours?|hrs?|days?|weeks?)\b`)
	reDuration    = regexp.MustCompile(`(?i)\bfor\s+(\d+(?:\.\d+)?|an?|one|two|three|four|five|six|seven|eight|nine|ten|fifteen|twenty|thirty|half\s+an?)\s*(minutes?|mins?|hours?|hrs?|h)\b`)
	meridiem      = `(a\.m\.|p\.m\.|am\b|pm\b)`
	reRange       = regexp.MustCompile(`(?i)\b(?:(?:at|from)\s+)?(\d{1,2})(?::(\d{2}))?\s*` + meridiem + `?\s*(?:-|–|\bto\b|\buntil\b|\btill\b)\s*(\d{1,2})(?::(\d{2}))?\s*` + meridiem + `?`)
	reEndOnly     = regexp.MustCompile(`(?i)\b(?:to|until|till)\s+(\d{1,2})(?::(\d{2}))?\s*` + meridiem + `?`)
	reClock12     = regexp.MustCompile(`(?i)\b(?:(?:at|by|@)\s*)?(\d{1,2})(?::(\d{2}))?\s*` + meridiem)
	reClock24     = regexp.MustCompile(`(?i)(?:\b(?:at|by)\s+|@\s*|\b)(\d{1,2}):(\d{2})\b`)
	reClockAt     = regexp.MustCompile(`(?i)\b(?:at|by)\s+(\d{1,2})\b`)
	reNoon        = regexp.MustCompile(`(?i)\b(?:at\s+)?(noon|midday|midnight)\b`)
	reDayPart     = regexp.MustCompile(`(?i)\b(?:this\s+|in\s+the\s+)?(morning|afternoon|evening)\b`)
	reTonight     = regexp.MustCompile(`(?i)\btonight\b`)
	reDayWord     = regexp.MustCompile(`(?i)\b(?:(?:on|by)\s+)?(?:the\s+)?(day\s+after\s+tomorrow|today|tomorrow|tmrw|tmr)\b`)
	reWeekday     = regexp.MustCompile(`(?i)\b(?:(on|by)\s+)?(?:(next|this|coming)\s+)?(monday|tuesday|wednesday|thursday|friday|saturday|sunday|mon|tues|tue|weds|wed|thurs|thur|thu|fri|sat|sun)\b`)
	reNextPeriod  = regexp.MustCompile(`(?i)\bnext\s+(week|month)\b`)
	reWhitespaces = regexp.MustCompile(`\s+`)
)

var numberWords = map[string]float64{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10, "fifteen": 15,
	"twenty": 20, "thirty": 30,
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday, "weds": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "sept": time.September, "oct": time.October,
	"nov": time.November, "dec": time.December,
}

// edgeWords are trimmed from both ends of a title
var edgeWords = map[string]bool{
	"on": true, "at": true, "for": true, "by": true, "in": true, "to": true,
	"from": true, "until": true, "till": true, "and": true, "@": true,
}

// Extract parses text against ref. It uses ref's location for calendar math.
func Extract(text string, ref time.Time) types.Fields {
	return defaultExtractor.Extract(text, ref)
}

var defaultExtractor = &Extractor{}

// Extractor runs the span scanner and, when NER is enabled, the prose entity pass
type Extractor struct {
	ner *ProseTagger
}

// New returns an Extractor; a nil tagger disables people/place detection
func New(ner *ProseTagger) *Extractor {
	return &Extractor{ner: ner}
}

// Extract parses text against ref and never panics
func (e *Extractor) Extract(text string, ref time.Time) (f types.Fields) {
	defer func() {
		if r := recover(); r != nil {
			f = types.Fields{Title: cleanTitle(text), Time: types.TimeMissing}
		}
	}()

	if m := reIndex.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		return types.Fields{Index: n, Time: types.TimeMissing}
	}

	s := newScanner(text, ref)
	s.run()

	f = types.Fields{
		Description: s.description,
		Location:    s.location,
		Alarm:       s.alarm,
	}
	f.Start, f.End, f.Time = s.resolve()

	if e.ner != nil {
		people, place := e.ner.Tag(s.remaining())
		f.People = people
		if f.Location == "" && place != "" {
			f.Location = place
			s.takeWord(place)
		}
	}
	f.Title = cleanTitle(s.remaining())
	return f
}

// civil is a calendar date without a location
type civil struct {
	year  int
	month time.Month
	day   int
}

type clock struct {
	hour, min int
	meridiem  string // "", "am" or "pm"
	bare      bool   // a lone "at 7" with no minutes or meridiem
}

type scanner struct {
	text  string
	ref   time.Time
	taken []bool

	description string
	location    string
	alarm       int

	date        *civil
	dateFromDOM bool // day-of-month without month: roll forward by month
	dateFromMD  bool // month/day without year: roll forward by year
	clock       *clock
	endClock    *clock
	dayPart     string
	relative    *time.Time
	duration    time.Duration
	invalid     bool
}

func newScanner(text string, ref time.Time) *scanner {
	return &scanner{text: text, ref: ref, taken: make([]bool, len(text))}
}

// matches returns submatch indexes for re that do not overlap taken bytes
func (s *scanner) matches(re *regexp.Regexp) [][]int {
	var out [][]int
	for _, m := range re.FindAllStringSubmatchIndex(s.text, -1) {
		if !s.free(m[0], m[1]) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (s *scanner) free(start, end int) bool {
	for i := start; i < end; i++ {
		if s.taken[i] {
			return false
		}
	}
	return true
}

func (s *scanner) take(start, end int) {
	for i := start; i < end; i++ {
		s.taken[i] = true
	}
}

func (s *scanner) group(m []int, n int) string {
	if m[2*n] < 0 {
		return ""
	}
	return s.text[m[2*n]:m[2*n+1]]
}

// takeWord marks the first free occurrence of w (and a preceding at/in) as used
func (s *scanner) takeWord(w string) {
	re, err := regexp.Compile(`(?i)\b(?:(?:at|in)\s+(?:the\s+)?)?` + regexp.QuoteMeta(w) + `\b`)
	if err != nil {
		return
	}
	if ms := s.matches(re); len(ms) > 0 {
		s.take(ms[0][0], ms[0][1])
	}
}

// remaining returns the text with every taken byte blanked out
func (s *scanner) remaining() string {
	var b strings.Builder
	for i := 0; i < len(s.text); i++ {
		if s.taken[i] {
			b.WriteByte(' ')
			continue
		}
		b.WriteByte(s.text[i])
	}
	return b.String()
}

func (s *scanner) run() {
	s.scanDescription()
	s.scanAlarm()
	s.scanDates()
	s.scanRelative()
	s.scanClocks()
	s.scanDayWords()
	s.scanLocation()
}

func (s *scanner) scanDescription() {
	if m := reDescription.FindStringSubmatchIndex(s.text); m != nil {
		s.description = strings.TrimSpace(s.group(m, 1))
		s.take(m[0], m[1])
	}
}

func (s *scanner) scanAlarm() {
	for _, m := range s.matches(reAlarm) {
		n, _ := strconv.Atoi(s.group(m, 1))
		if n > MaxAlarmMinutes {
			continue
		}
		s.alarm = n
		s.take(m[0], m[1])
		return
	}
}

func (s *scanner) setDate(c civil) {
	if s.date == nil {
		s.date = &c
	}
}

func (s *scanner) scanDates() {
	for _, m := range s.matches(reISODate) {
		y, _ := strconv.Atoi(s.group(m, 1))
		mo, _ := strconv.Atoi(s.group(m, 2))
		d, _ := strconv.Atoi(s.group(m, 3))
		s.take(m[0], m[1])
		if !validDate(y, time.Month(mo), d) {
			s.invalid = true
			return
		}
		s.setDate(civil{y, time.Month(mo), d})
		if h := s.group(m, 4); h != "" {
			hour, _ := strconv.Atoi(h)
			min, _ := strconv.Atoi(s.group(m, 5))
			s.setClock(clock{hour: hour, min: min})
		}
		break
	}

	for _, m := range s.matches(reMonthFirst) {
		s.take(m[0], m[1])
		s.monthDay(s.group(m, 1), s.group(m, 2), s.group(m, 3))
		break
	}
	for _, m := range s.matches(reDayFirst) {
		s.take(m[0], m[1])
		s.monthDay(s.group(m, 2), s.group(m, 1), s.group(m, 3))
		break
	}

	for _, m := range s.matches(reSlashDate) {
		d, _ := strconv.Atoi(s.group(m, 1))
		mo, _ := strconv.Atoi(s.group(m, 2))
		s.take(m[0], m[1])
		y := s.ref.Year()
		if ys := s.group(m, 3); ys != "" {
			y, _ = strconv.Atoi(ys)
			if y < 100 {
				y += 2000
			}
		} else {
			s.dateFromMD = true
		}
		if !validDate(y, time.Month(mo), d) {
			s.invalid = true
			return
		}
		s.setDate(civil{y, time.Month(mo), d})
		break
	}
}

func (s *scanner) monthDay(monthWord, dayStr, yearStr string) {
	mw := strings.ToLower(strings.TrimSuffix(monthWord, "."))
	mo, ok := months[mw]
	if !ok && len(mw) >= 3 {
		mo, ok = months[mw[:3]]
	}
	d, _ := strconv.Atoi(dayStr)
	y := s.ref.Year()
	if yearStr != "" {
		y, _ = strconv.Atoi(yearStr)
	} else {
		s.dateFromMD = true
	}
	if !ok || !validDate(y, mo, d) && !(yearStr == "" && validDate(y+1, mo, d)) {
		s.invalid = true
		return
	}
	s.setDate(civil{y, mo, d})
}

func (s *scanner) scanRelative() {
	for _, m := range s.matches(reRelative) {
		n := parseAmount(s.group(m, 1))
		unit := strings.ToLower(s.group(m, 2))
		var d time.Duration
		switch {
		case strings.HasPrefix(unit, "m"):
			d = time.Duration(n * float64(time.Minute))
		case strings.HasPrefix(unit, "h"):
			d = time.Duration(n * float64(time.Hour))
		case strings.HasPrefix(unit, "d"):
			d = time.Duration(n * 24 * float64(time.Hour))
		case strings.HasPrefix(unit, "w"):
			d = time.Duration(n * 7 * 24 * float64(time.Hour))
		}
		if d <= 0 {
			continue
		}
		t := s.ref.Add(d).Truncate(time.Minute)
		s.relative = &t
		s.take(m[0], m[1])
		break
	}

	for _, m := range s.matches(reDuration) {
		n := parseAmount(s.group(m, 1))
		unit := strings.ToLower(s.group(m, 2))
		d := time.Duration(n * float64(time.Hour))
		if strings.HasPrefix(unit, "m") {
			d = time.Duration(n * float64(time.Minute))
		}
		if d <= 0 {
			continue
		}
		s.duration = d
		s.take(m[0], m[1])
		break
	}
}

func (s *scanner) setClock(c clock) {
	if c.meridiem == "" && (c.hour > 23 || c.min > 59) || c.meridiem != "" && (c.hour < 1 || c.hour > 12 || c.min > 59) {
		s.invalid = true
		return
	}
	if s.clock == nil {
		s.clock = &c
	}
}

func (s *scanner) parseClock(m []int, hourGroup int) clock {
	h, _ := strconv.Atoi(s.group(m, hourGroup))
	min := 0
	if ms := s.group(m, hourGroup+1); ms != "" {
		min, _ = strconv.Atoi(ms)
	}
	return clock{hour: h, min: min, meridiem: normMeridiem(s.group(m, hourGroup+2))}
}

func (s *scanner) scanClocks() {
	for _, m := range s.matches(reRange) {
		start := s.parseClock(m, 1)
		end := s.parseClock(m, 4)
		// a bare "3-5" is more likely a date or a count than a time range
		if start.meridiem == "" && end.meridiem == "" && s.group(m, 2) == "" && s.group(m, 5) == "" {
			continue
		}
		if start.meridiem == "" && end.meridiem != "" && start.hour <= 12 {
			start.meridiem = end.meridiem
			if end.meridiem == "pm" && start.hour > end.hour && end.hour != 12 {
				start.meridiem = "am"
			}
		}
		s.take(m[0], m[1])
		s.setClock(start)
		if end.meridiem != "" && (end.hour < 1 || end.hour > 12) || end.hour > 23 || end.min > 59 {
			s.invalid = true
			return
		}
		s.endClock = &end
		break
	}

	if s.clock == nil {
		for _, m := range s.matches(reClock12) {
			s.take(m[0], m[1])
			s.setClock(s.parseClock(m, 1))
			break
		}
	}
	if s.clock == nil {
		for _, m := range s.matches(reClock24) {
			h, _ := strconv.Atoi(s.group(m, 1))
			min, _ := strconv.Atoi(s.group(m, 2))
			s.take(m[0], m[1])
			s.setClock(clock{hour: h, min: min})
			break
		}
	}
	if s.clock == nil {
		for _, m := range s.matches(reNoon) {
			s.take(m[0], m[1])
			if strings.EqualFold(s.group(m, 1), "midnight") {
				s.setClock(clock{hour: 0})
			} else {
				s.setClock(clock{hour: 12})
			}
			break
		}
	}
	if s.clock == nil {
		for _, m := range s.matches(reClockAt) {
			h, _ := strconv.Atoi(s.group(m, 1))
			s.take(m[0], m[1])
			s.setClock(clock{hour: h, bare: true})
			break
		}
	}

	if s.clock != nil && s.endClock == nil {
		for _, m := range s.matches(reEndOnly) {
			if s.group(m, 2) == "" && s.group(m, 3) == "" {
				continue
			}
			end := s.parseClock(m, 1)
			s.take(m[0], m[1])
			s.endClock = &end
			break
		}
	}
}

func (s *scanner) scanDayWords() {
	for _, m := range s.matches(reTonight) {
		s.take(m[0], m[1])
		s.setDate(dateOf(s.ref, 0))
		s.dayPart = "tonight"
		break
	}
	for _, m := range s.matches(reDayPart) {
		s.take(m[0], m[1])
		if s.dayPart == "" {
			s.dayPart = strings.ToLower(s.group(m, 1))
		}
		break
	}

	for _, m := range s.matches(reDayWord) {
		word := strings.ToLower(reWhitespaces.ReplaceAllString(s.group(m, 1), " "))
		s.take(m[0], m[1])
		switch word {
		case "today":
			s.setDate(dateOf(s.ref, 0))
		case "tomorrow", "tmrw", "tmr":
			s.setDate(dateOf(s.ref, 1))
		case "day after tomorrow":
			s.setDate(dateOf(s.ref, 2))
		}
		break
	}

	for _, m := range s.matches(reWeekday) {
		word := strings.ToLower(s.group(m, 3))
		mod := strings.ToLower(s.group(m, 2))
		abbreviated := len(word) <= 5 && !strings.HasSuffix(word, "day")
		if abbreviated && mod == "" && s.group(m, 1) == "" {
			continue
		}
		s.take(m[0], m[1])
		s.setDate(dateOf(s.ref, weekdayOffset(s.ref.Weekday(), weekdays[word], mod)))
		break
	}

	for _, m := range s.matches(reNextPeriod) {
		s.take(m[0], m[1])
		if strings.EqualFold(s.group(m, 1), "week") {
			s.setDate(dateOf(s.ref, 7))
		} else {
			t := s.ref.AddDate(0, 1, 0)
			s.setDate(civil{t.Year(), t.Month(), t.Day()})
		}
		break
	}

	ordinal := s.matches(reOrdinalDay)
	ordinal = append(ordinal, s.matches(reOnTheDay)...)
	for _, m := range ordinal {
		d, _ := strconv.Atoi(s.group(m, 1))
		s.take(m[0], m[1])
		if d < 1 || d > 31 {
			s.invalid = true
			return
		}
		if s.date == nil {
			s.date = &civil{s.ref.Year(), s.ref.Month(), d}
			s.dateFromDOM = true
		}
		break
	}
}

// scanLocation takes "#place" up to the next control token or recognised span
func (s *scanner) scanLocation() {
	for i := 0; i < len(s.text); i++ {
		if s.text[i] != '#' || s.taken[i] || (i > 0 && s.text[i-1] != ' ' && s.text[i-1] != '\t') {
			continue
		}
		j := i + 1
		for j < len(s.text) && !s.taken[j] && s.text[j] != '#' && s.text[j] != '!' {
			j++
		}
		loc := strings.TrimSpace(strings.Trim(s.text[i+1:j], ",;"))
		if loc == "" {
			continue
		}
		s.location = loc
		s.take(i, j)
		return
	}
}

// resolve turns the collected pieces into absolute times in ref's location
func (s *scanner) resolve() (time.Time, *time.Time, types.TimeState) {
	if s.invalid {
		return time.Time{}, nil, types.TimeMissing
	}
	loc := s.ref.Location()

	if s.relative != nil {
		return s.relative.In(loc), s.endFrom(*s.relative), types.TimeFound
	}

	c := s.clock
	if c == nil {
		switch s.dayPart {
		case "morning":
			c = &clock{hour: 9}
		case "afternoon":
			c = &clock{hour: 15}
		case "evening":
			c = &clock{hour: 19}
		case "tonight":
			c = &clock{hour: 20}
		}
	}
	var hour, min int
	if c != nil {
		hour, min = to24(*c, s.dayPart)
	}

	if s.date == nil {
		if c == nil {
			return time.Time{}, nil, types.TimeMissing
		}
		t := time.Date(s.ref.Year(), s.ref.Month(), s.ref.Day(), hour, min, 0, 0, loc)
		if !t.After(s.ref) {
			t = t.AddDate(0, 0, 1)
		}
		return t, s.endFrom(t), types.TimeFound
	}

	d := *s.date
	build := func(d civil) time.Time {
		return time.Date(d.year, d.month, d.day, hour, min, 0, 0, loc)
	}
	passed := func(t time.Time) bool {
		if c != nil {
			return !t.After(s.ref)
		}
		return t.Before(dayStart(s.ref))
	}

	switch {
	case s.dateFromDOM:
		found := false
		for i := 0; i < 13; i++ {
			y, m := addMonths(s.ref.Year(), s.ref.Month(), i)
			if !validDate(y, m, d.day) {
				continue
			}
			if t := build(civil{y, m, d.day}); !passed(t) {
				d = civil{y, m, d.day}
				found = true
				break
			}
		}
		if !found {
			return time.Time{}, nil, types.TimeMissing
		}
	case s.dateFromMD:
		if !validDate(d.year, d.month, d.day) || passed(build(d)) {
			d.year++
		}
		if !validDate(d.year, d.month, d.day) {
			return time.Time{}, nil, types.TimeMissing
		}
	}

	t := build(d)
	if c == nil {
		return t, nil, types.TimeDateOnly
	}
	return t, s.endFrom(t), types.TimeFound
}

func (s *scanner) endFrom(start time.Time) *time.Time {
	if s.endClock != nil {
		h, m := to24(*s.endClock, s.dayPart)
		if s.endClock.meridiem == "" && s.clock != nil && s.clock.meridiem == "pm" && h < 12 {
			h += 12
		}
		end := time.Date(start.Year(), start.Month(), start.Day(), h, m, 0, 0, start.Location())
		if !end.After(start) {
			end = end.AddDate(0, 0, 1)
		}
		return &end
	}
	if s.duration > 0 {
		end := start.Add(s.duration)
		return &end
	}
	return nil
}

func to24(c clock, dayPart string) (int, int) {
	h := c.hour
	switch c.meridiem {
	case "pm":
		if h != 12 {
			h += 12
		}
	case "am":
		if h == 12 {
			h = 0
		}
	default:
		if h < 12 && (dayPart == "afternoon" || dayPart == "evening" || dayPart == "tonight") {
			h += 12
		} else if c.bare && h >= 1 && h <= 7 && dayPart != "morning" {
			// a bare 1 to 7 is an afternoon or evening hour
			h += 12
		}
	}
	return h, c.min
}

// weekdayOffset follows the chat convention: a bare weekday is the next one
// strictly after today, "next" pushes one more week unless that already
// lands a full week out, and "this" allows today
func weekdayOffset(today, target time.Weekday, mod string) int {
	ahead := int(target) - int(today)
	if mod == "this" {
		if ahead < 0 {
			ahead += 7
		}
		return ahead
	}
	if ahead <= 0 {
		ahead += 7
	}
	if mod == "next" && ahead < 7 {
		ahead += 7
	}
	return ahead
}

func dateOf(ref time.Time, days int) civil {
	t := ref.AddDate(0, 0, days)
	return civil{t.Year(), t.Month(), t.Day()}
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func addMonths(y int, m time.Month, n int) (int, time.Month) {
	total := int(m) - 1 + n
	return y + total/12, time.Month(total%12 + 1)
}

func validDate(y int, m time.Month, d int) bool {
	if m < time.January || m > time.December || d < 1 || d > 31 {
		return false
	}
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return t.Month() == m && t.Day() == d
}

func normMeridiem(s string) string {
	s = strings.ToLower(strings.ReplaceAll(s, ".", ""))
	if s == "am" || s == "pm" {
		return s
	}
	return ""
}

func parseAmount(s string) float64 {
	s = strings.ToLower(reWhitespaces.ReplaceAllString(strings.TrimSpace(s), " "))
	if strings.HasPrefix(s, "half") {
		return 0.5
	}
	if n, ok := numberWords[s]; ok {
		return n
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// cleanTitle collapses whitespace and strips dangling prepositions and punctuation
func cleanTitle(s string) string {
	words := strings.Fields(s)
	trim := func(w string) string { return strings.Trim(w, ",;:-–.") }
	for len(words) > 0 {
		w := trim(words[0])
		if w != "" && !edgeWords[strings.ToLower(w)] {
			break
		}
		words = words[1:]
	}
	for len(words) > 0 {
		w := trim(words[len(words)-1])
		if w != "" && !edgeWords[strings.ToLower(w)] {
			break
		}
		words = words[:len(words)-1]
	}
	if len(words) == 0 {
		return ""
	}
	words[len(words)-1] = strings.TrimRight(words[len(words)-1], ",;:-–")
	return strings.Join(words, " ")
}
