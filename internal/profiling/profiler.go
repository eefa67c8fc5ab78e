// Package profiling times message handling stages. Timings are kept as
// per-stage summaries in memory and, when a log path is set, appended to a
// JSONL file.
package profiling

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level determines how detailed the profiling is
type Level string

const (
	LevelOff      Level = "off"      // nothing recorded
	LevelMinimal  Level = "minimal"  // whole-message handling only
	LevelDetailed Level = "detailed" // plus sync and delivery stages
)

// Stages
const (
	StageHandle  = "handle"
	StageSync    = "sync"
	StageDeliver = "deliver"
	StageScan    = "scan"
)

var stageLevel = map[string]Level{
	StageHandle:  LevelMinimal,
	StageScan:    LevelMinimal,
	StageSync:    LevelDetailed,
	StageDeliver: LevelDetailed,
}

// Timing is one recorded measurement
type Timing struct {
	ID         string    `json:"id"`
	Stage      string    `json:"stage"`
	StartTime  time.Time `json:"start_time"`
	DurationMs float64   `json:"duration_ms"`
	Detail     string    `json:"detail,omitempty"`
}

// Summary aggregates the timings of one stage
type Summary struct {
	Stage string
	Count int
	Total time.Duration
	Max   time.Duration
}

// Mean is the average duration
func (s Summary) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// Profiler records timings. The zero value and nil are disabled profilers.
type Profiler struct {
	level   Level
	mu      sync.Mutex
	logFile *os.File
	encoder *json.Encoder
	stages  map[string]*Summary
}

// ParseLevel maps a config string to a level; unknown values are off
func ParseLevel(s string) Level {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelMinimal:
		return LevelMinimal
	case LevelDetailed:
		return LevelDetailed
	default:
		return LevelOff
	}
}

// New creates a profiler. An empty logPath keeps timings in memory only.
func New(level Level, logPath string) (*Profiler, error) {
	p := &Profiler{level: level, stages: make(map[string]*Summary)}
	if level == LevelOff || logPath == "" {
		return p, nil
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open profiling log: %w", err)
	}
	p.logFile = f
	p.encoder = json.NewEncoder(f)
	return p, nil
}

// Close closes the log file
func (p *Profiler) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.logFile != nil {
		return p.logFile.Close()
	}
	return nil
}

// Enabled reports whether stage is recorded at the configured level
func (p *Profiler) Enabled(stage string) bool {
	if p == nil {
		return false
	}
	switch p.level {
	case LevelDetailed:
		return true
	case LevelMinimal:
		return stageLevel[stage] == LevelMinimal
	default:
		return false
	}
}

// Start begins timing a stage and returns a function to call when done
func (p *Profiler) Start(id, stage string) func() {
	if !p.Enabled(stage) {
		return func() {}
	}
	start := time.Now()
	return func() {
		p.Record(id, stage, start, time.Since(start), "")
	}
}

// Record adds one measurement
func (p *Profiler) Record(id, stage string, start time.Time, d time.Duration, detail string) {
	if !p.Enabled(stage) {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.stages[stage]
	if s == nil {
		s = &Summary{Stage: stage}
		p.stages[stage] = s
	}
	s.Count++
	s.Total += d
	if d > s.Max {
		s.Max = d
	}

	if p.encoder != nil {
		_ = p.encoder.Encode(Timing{
			ID:         id,
			Stage:      stage,
			StartTime:  start,
			DurationMs: float64(d.Nanoseconds()) / 1e6,
			Detail:     detail,
		})
	}
}

// Summaries returns the per-stage aggregates sorted by stage name
func (p *Profiler) Summaries() []Summary {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Summary, 0, len(p.stages))
	for _, s := range p.stages {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stage < out[j].Stage })
	return out
}

// Report renders the summaries as one line, empty when nothing was recorded
func (p *Profiler) Report() string {
	sums := p.Summaries()
	if len(sums) == 0 {
		return ""
	}
	parts := make([]string, len(sums))
	for i, s := range sums {
		parts[i] = fmt.Sprintf("%s %d× avg %s max %s", s.Stage, s.Count,
			s.Mean().Round(time.Microsecond), s.Max.Round(time.Microsecond))
	}
	return "⏱️ **Timings:** " + strings.Join(parts, ", ")
}
