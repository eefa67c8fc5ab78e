package profiling

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// readTimings reads all recorded timings from a file.
func readTimings(t *testing.T, path string) []Timing {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read timings: %v", err)
	}

	var timings []Timing
	dec := json.NewDecoder(strings.NewReader(string(data)))
	for dec.More() {
		var tm Timing
		if err := dec.Decode(&tm); err != nil {
			t.Fatalf("decode timing: %v", err)
		}
		timings = append(timings, tm)
	}
	return timings
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"":         LevelOff,
		"off":      LevelOff,
		"Minimal":  LevelMinimal,
		"detailed": LevelDetailed,
		"trace":    LevelOff,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEnabled(t *testing.T) {
	var nilProfiler *Profiler
	if nilProfiler.Enabled(StageHandle) {
		t.Error("nil profiler should be disabled")
	}

	off, _ := New(LevelOff, "")
	if off.Enabled(StageHandle) {
		t.Error("off should record nothing")
	}

	minimal, _ := New(LevelMinimal, "")
	if !minimal.Enabled(StageHandle) || minimal.Enabled(StageSync) {
		t.Error("minimal records handle only")
	}

	detailed, _ := New(LevelDetailed, "")
	if !detailed.Enabled(StageSync) || !detailed.Enabled(StageDeliver) {
		t.Error("detailed records every stage")
	}
}

func TestStartRecordsSummary(t *testing.T) {
	p, _ := New(LevelMinimal, "")
	done := p.Start("m1", StageHandle)
	time.Sleep(2 * time.Millisecond)
	done()
	p.Start("m2", StageHandle)()
	p.Start("m3", StageSync)() // below level

	sums := p.Summaries()
	if len(sums) != 1 {
		t.Fatalf("summaries = %+v", sums)
	}
	s := sums[0]
	if s.Stage != StageHandle || s.Count != 2 {
		t.Errorf("summary = %+v", s)
	}
	if s.Max < 2*time.Millisecond {
		t.Errorf("max = %v, want >= 2ms", s.Max)
	}
	if s.Mean() > s.Max {
		t.Errorf("mean %v > max %v", s.Mean(), s.Max)
	}
}

func TestRecordWritesLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.jsonl")
	p, err := New(LevelDetailed, path)
	if err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	p.Record("m1", StageHandle, start, 5*time.Millisecond, "")
	p.Record("e7", StageSync, start, 1500*time.Microsecond, "create")
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}

	timings := readTimings(t, path)
	if len(timings) != 2 {
		t.Fatalf("expected 2 timings, got %d", len(timings))
	}
	if timings[0].ID != "m1" || timings[0].DurationMs != 5 {
		t.Errorf("first = %+v", timings[0])
	}
	if timings[1].Detail != "create" || timings[1].DurationMs != 1.5 {
		t.Errorf("second = %+v", timings[1])
	}
}

func TestReport(t *testing.T) {
	p, _ := New(LevelMinimal, "")
	if p.Report() != "" {
		t.Error("empty profiler should report nothing")
	}
	p.Record("m1", StageHandle, time.Now(), 4*time.Millisecond, "")
	if r := p.Report(); !strings.Contains(r, "handle 1×") {
		t.Errorf("report = %q", r)
	}
}

func TestNewBadPath(t *testing.T) {
	if _, err := New(LevelMinimal, filepath.Join(t.TempDir(), "missing", "profile.jsonl")); err == nil {
		t.Error("expected error for unwritable path")
	}
}
