package diag

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"
)

func TestSnapshot(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Skipf("process inspection unavailable: %v", err)
	}
	st := r.Snapshot(context.Background())
	if st.PID != int32(os.Getpid()) {
		t.Errorf("pid = %d", st.PID)
	}
	if st.Goroutines < 1 {
		t.Errorf("goroutines = %d", st.Goroutines)
	}
}

func TestReportIncludesLines(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Skipf("process inspection unavailable: %v", err)
	}
	r.AddLine(func(context.Context) string { return "⏱️ last scan: just now" })
	r.AddLine(func(context.Context) string { return "" })

	out := r.Report(context.Background())
	if !strings.Contains(out, "pid") || !strings.Contains(out, "last scan") {
		t.Errorf("report = %q", out)
	}
	if strings.Count(out, "\n") != 1 {
		t.Errorf("empty lines should be skipped: %q", out)
	}
}

func TestSince(t *testing.T) {
	if Since(time.Time{}) != "never" {
		t.Error("zero time should be never")
	}
	if s := Since(time.Now().Add(-2 * time.Hour)); !strings.Contains(s, "ago") {
		t.Errorf("Since = %q", s)
	}
}
