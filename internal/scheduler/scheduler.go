// Package scheduler fires due reminders. Each scan reads a snapshot of due
// reminders and, per reminder, flips it Scheduled->Fired and queues its
// delivery in one store transaction, so a reminder fires at most once and is
// never Fired without a queued delivery.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/vthunder/agenda/internal/logging"
	"github.com/vthunder/agenda/internal/profiling"
	"github.com/vthunder/agenda/internal/types"
)

// DefaultInterval is how often the scheduler looks for due reminders
const DefaultInterval = 30 * time.Second

// Store is what the scheduler needs from persistence
type Store interface {
	DueReminders(ctx context.Context, now time.Time) ([]types.Reminder, error)
	TryLockUser(owner string) (unlock func(), ok bool)
	FireReminder(ctx context.Context, r types.Reminder, firedAt time.Time, content string) (bool, error)
}

// Config holds scheduler settings
type Config struct {
	Interval time.Duration
	Now      func() time.Time
	Format   func(r types.Reminder) string // delivery text, default "⏰ Reminder: <text>"
	Profiler *profiling.Profiler
}

// Scheduler periodically fires due reminders
type Scheduler struct {
	store    Store
	interval time.Duration
	now      func() time.Time
	format   func(types.Reminder) string
	profiler *profiling.Profiler

	mu       sync.Mutex
	onFire   func(r types.Reminder)
	lastScan time.Time
	stopChan chan struct{}
	stopped  bool
	started  bool
	done     chan struct{}
}

// New creates a scheduler
func New(store Store, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Format == nil {
		cfg.Format = FormatReminder
	}
	return &Scheduler{
		store:    store,
		interval: cfg.Interval,
		now:      cfg.Now,
		format:   cfg.Format,
		profiler: cfg.Profiler,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// FormatReminder is the default delivery text
func FormatReminder(r types.Reminder) string {
	return fmt.Sprintf("⏰ Reminder: %s", r.Text)
}

// SetOnFire registers a callback run after each successful fire
func (s *Scheduler) SetOnFire(cb func(r types.Reminder)) {
	s.mu.Lock()
	s.onFire = cb
	s.mu.Unlock()
}

// Start begins scanning. The first scan runs immediately so reminders that
// came due while the process was down fire at once.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	log.Printf("[scheduler] Starting with scan interval %v", s.interval)
	go s.loop()
	return nil
}

// Stop ends the scan loop and waits for an in-flight scan to finish
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.stopped || !s.started {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	close(s.stopChan)
	s.mu.Unlock()

	<-s.done
	log.Printf("[scheduler] Stopped")
	return nil
}

// LastScan returns when the last scan started
func (s *Scheduler) LastScan() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastScan
}

func (s *Scheduler) loop() {
	defer close(s.done)
	s.scanOnce()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.scanOnce()
		}
	}
}

func (s *Scheduler) scanOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()
	start := time.Now()
	fired, busy, err := s.Scan(ctx)
	s.profiler.Record("scan", profiling.StageScan, start, time.Since(start), fmt.Sprintf("fired=%d busy=%d", fired, busy))
	if err != nil {
		log.Printf("[scheduler] Scan failed: %v", err)
		return
	}
	if fired > 0 || busy > 0 {
		logging.Info("scheduler", "Fired %d reminder(s), %d deferred (owner busy)", fired, busy)
	}
}

// Scan fires every reminder due now. Reminders whose owner is mid-mutation are
// left for the next scan and counted in busy.
func (s *Scheduler) Scan(ctx context.Context) (fired, busy int, err error) {
	now := s.now()
	s.mu.Lock()
	s.lastScan = now
	onFire := s.onFire
	s.mu.Unlock()

	due, err := s.store.DueReminders(ctx, now)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read due reminders: %w", err)
	}

	for _, r := range due {
		if ctx.Err() != nil {
			return fired, busy, ctx.Err()
		}
		ok, deferred := s.fire(ctx, r, now)
		if deferred {
			busy++
			continue
		}
		if ok {
			fired++
			if onFire != nil {
				onFire(r)
			}
		}
	}
	return fired, busy, nil
}

// fire handles one reminder; a panic here is logged and does not stop the scan
func (s *Scheduler) fire(ctx context.Context, r types.Reminder, now time.Time) (ok, deferred bool) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("[scheduler] Panic firing reminder %s/%d: %v", r.OwnerID, r.ID, p)
			ok = false
		}
	}()

	unlock, got := s.store.TryLockUser(r.OwnerID)
	if !got {
		logging.Debug("scheduler", "Owner %s busy, deferring reminder %d", r.OwnerID, r.ID)
		return false, true
	}
	defer unlock()

	ok, err := s.store.FireReminder(ctx, r, now, s.format(r))
	if err != nil {
		log.Printf("[scheduler] Failed to fire reminder %s/%d: %v", r.OwnerID, r.ID, err)
		return false, false
	}
	if ok {
		logging.Debug("scheduler", "Fired reminder %s/%d: %s", r.OwnerID, r.ID, logging.Truncate(r.Text, 50))
	}
	return ok, false
}
