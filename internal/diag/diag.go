// Package diag reports process health for /debugaccount and the state CLI.
package diag

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/process"
)

// Stats is one snapshot of the running process
type Stats struct {
	PID        int32
	RSS        uint64
	CPUPercent float64
	Threads    int32
	Goroutines int
	Uptime     time.Duration
}

// Reporter samples the current process
type Reporter struct {
	proc    *process.Process
	started time.Time

	mu    sync.Mutex
	lines []func(ctx context.Context) string
}

// New creates a reporter for this process
func New() (*Reporter, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to inspect process: %w", err)
	}
	started := time.Now()
	if ms, err := proc.CreateTime(); err == nil && ms > 0 {
		started = time.UnixMilli(ms)
	}
	return &Reporter{proc: proc, started: started}, nil
}

// AddLine registers an extra status line, e.g. the scheduler's last scan
func (r *Reporter) AddLine(fn func(ctx context.Context) string) {
	r.mu.Lock()
	r.lines = append(r.lines, fn)
	r.mu.Unlock()
}

// Snapshot samples the process. Fields that cannot be read stay zero.
func (r *Reporter) Snapshot(ctx context.Context) Stats {
	st := Stats{
		PID:        r.proc.Pid,
		Goroutines: runtime.NumGoroutine(),
		Uptime:     time.Since(r.started),
	}
	if mem, err := r.proc.MemoryInfoWithContext(ctx); err == nil {
		st.RSS = mem.RSS
	}
	if cpu, err := r.proc.CPUPercentWithContext(ctx); err == nil {
		st.CPUPercent = cpu
	}
	if n, err := r.proc.NumThreadsWithContext(ctx); err == nil {
		st.Threads = n
	}
	return st
}

// Report renders a snapshot plus the registered lines
func (r *Reporter) Report(ctx context.Context) string {
	st := r.Snapshot(ctx)
	var sb strings.Builder
	fmt.Fprintf(&sb, "🖥️ **Process:** pid %d, up %s, %s RSS, %.1f%% CPU, %d threads, %d goroutines",
		st.PID, st.Uptime.Truncate(time.Second), humanize.Bytes(st.RSS), st.CPUPercent, st.Threads, st.Goroutines)

	r.mu.Lock()
	lines := append([]func(context.Context) string(nil), r.lines...)
	r.mu.Unlock()
	for _, fn := range lines {
		if l := fn(ctx); l != "" {
			sb.WriteString("\n" + l)
		}
	}
	return sb.String()
}

// Since renders how long ago t was, or "never" for the zero time
func Since(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}
