package calsync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/vthunder/agenda/internal/logging"
	"github.com/vthunder/agenda/internal/profiling"
	"github.com/vthunder/agenda/internal/types"
)

const (
	// DefaultTimeout bounds every adapter call
	DefaultTimeout = 10 * time.Second
	// DefaultInterval is how often pending events and tombstones are retried
	DefaultInterval = 5 * time.Minute
)

// Store is the persistence the syncer drives
type Store interface {
	GetEvent(ctx context.Context, owner string, id int64) (*types.Event, error)
	AddEvent(ctx context.Context, e *types.Event) error
	FindEventByRef(ctx context.Context, owner, ref string) (*types.Event, error)
	MarkSynced(ctx context.Context, owner string, id int64, ref string, version time.Time) (orphaned bool, err error)
	MarkSyncFailed(ctx context.Context, owner string, id int64, errMsg string) error
	PendingSync(ctx context.Context) ([]types.Event, error)
	AddTombstone(ctx context.Context, owner, ref string) error
	Tombstones(ctx context.Context) ([]types.Tombstone, error)
	RemoveTombstone(ctx context.Context, owner, ref string) error
}

// Config holds syncer settings
type Config struct {
	Timeout  time.Duration
	Interval time.Duration
	// ImportOwner receives remote events pulled by the loop; empty disables pulling
	ImportOwner string
	// PullWindow is how far ahead the loop pulls
	PullWindow time.Duration
	Now        func() time.Time
	Profiler   *profiling.Profiler
}

// Syncer pushes local event changes to an Adapter
type Syncer struct {
	adapter  Adapter
	store    Store
	timeout  time.Duration
	interval time.Duration
	owner    string
	window   time.Duration
	now      func() time.Time
	profiler *profiling.Profiler

	mu       sync.Mutex
	lastRun  time.Time
	lastErr  error
	stopChan chan struct{}
	stopped  bool
	done     chan struct{}
	started  bool
}

// New creates a syncer
func New(adapter Adapter, store Store, cfg Config) *Syncer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.PullWindow <= 0 {
		cfg.PullWindow = 30 * 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Syncer{
		adapter:  adapter,
		store:    store,
		timeout:  cfg.Timeout,
		interval: cfg.Interval,
		owner:    cfg.ImportOwner,
		window:   cfg.PullWindow,
		now:      cfg.Now,
		profiler: cfg.Profiler,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Adapter returns the remote calendar in use
func (s *Syncer) Adapter() Adapter {
	return s.adapter
}

// Push sends e to the remote calendar: Create when it has no ref yet,
// Update otherwise. A ref that vanished remotely is recreated. On failure the
// local record keeps its Draft/Modified status and the error is stored.
func (s *Syncer) Push(ctx context.Context, e types.Event) error {
	ref, err := s.push(ctx, e)
	if err != nil {
		if merr := s.store.MarkSyncFailed(ctx, e.OwnerID, e.ID, err.Error()); merr != nil {
			log.Printf("[calsync] Failed to record sync error for %s/%d: %v", e.OwnerID, e.ID, merr)
		}
		return fmt.Errorf("sync event %d: %w", e.ID, err)
	}

	orphaned, err := s.store.MarkSynced(ctx, e.OwnerID, e.ID, ref, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("mark event %d synced: %w", e.ID, err)
	}
	if orphaned {
		// deleted locally while the push was in flight
		logging.Debug("calsync", "Event %s/%d deleted during push, removing %s", e.OwnerID, e.ID, ref)
		if err := s.deleteRemote(ctx, ref); err == nil {
			s.store.RemoveTombstone(ctx, e.OwnerID, ref)
		}
	}
	return nil
}

func (s *Syncer) push(ctx context.Context, e types.Event) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if e.ExternalRef == "" {
		return s.adapter.Create(cctx, e)
	}
	err := s.adapter.Update(cctx, e.ExternalRef, e)
	if errors.Is(err, ErrRemoteNotFound) {
		logging.Info("calsync", "Remote copy of %s/%d is gone, recreating", e.OwnerID, e.ID)
		return s.adapter.Create(cctx, e)
	}
	if err != nil {
		return "", err
	}
	return e.ExternalRef, nil
}

// Remove deletes the remote copy of a locally deleted event. On failure a
// tombstone is recorded so the retry loop finishes the job.
func (s *Syncer) Remove(ctx context.Context, owner, ref string) error {
	if ref == "" {
		return nil
	}
	if err := s.deleteRemote(ctx, ref); err != nil {
		if terr := s.store.AddTombstone(ctx, owner, ref); terr != nil {
			log.Printf("[calsync] Failed to record tombstone %s: %v", ref, terr)
		}
		return fmt.Errorf("delete remote %s: %w", ref, err)
	}
	return nil
}

func (s *Syncer) deleteRemote(ctx context.Context, ref string) error {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	err := s.adapter.Delete(cctx, ref)
	if errors.Is(err, ErrRemoteNotFound) {
		return nil
	}
	return err
}

// Identity reports the connected account, bounded by the timeout
func (s *Syncer) Identity(ctx context.Context) (Identity, error) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.adapter.Identity(cctx)
}

// RetryPending pushes every Draft/Modified event and replays tombstones
func (s *Syncer) RetryPending(ctx context.Context) (pushed, failed int, err error) {
	pending, err := s.store.PendingSync(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, e := range pending {
		if ctx.Err() != nil {
			return pushed, failed, ctx.Err()
		}
		if err := s.Push(ctx, e); err != nil {
			logging.Debug("calsync", "Retry failed: %v", err)
			failed++
			continue
		}
		pushed++
	}

	tombs, err := s.store.Tombstones(ctx)
	if err != nil {
		return pushed, failed, err
	}
	for _, t := range tombs {
		if err := s.deleteRemote(ctx, t.ExternalRef); err != nil {
			logging.Debug("calsync", "Tombstone %s still failing: %v", t.ExternalRef, err)
			failed++
			continue
		}
		if err := s.store.RemoveTombstone(ctx, t.OwnerID, t.ExternalRef); err != nil {
			return pushed, failed, err
		}
		pushed++
	}
	return pushed, failed, nil
}

// Pull imports remote events in [from, to) that owner does not have yet.
// Events we created ourselves are recognised by ref or sync key, and refs
// with an outstanding tombstone are skipped.
func (s *Syncer) Pull(ctx context.Context, owner string, from, to time.Time) (int, error) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	remote, err := s.adapter.List(cctx, from, to)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("list remote events: %w", err)
	}

	tombs, err := s.store.Tombstones(ctx)
	if err != nil {
		return 0, err
	}
	dead := make(map[string]bool, len(tombs))
	for _, t := range tombs {
		if t.OwnerID == owner {
			dead[t.ExternalRef] = true
		}
	}

	imported := 0
	for _, r := range remote {
		if r.Status == "cancelled" || dead[r.Ref] {
			continue
		}
		if s.known(ctx, owner, r) {
			continue
		}
		e := r.ToEvent(owner)
		if err := s.store.AddEvent(ctx, &e); err != nil {
			return imported, fmt.Errorf("import %s: %w", r.Ref, err)
		}
		imported++
	}
	if imported > 0 {
		logging.Info("calsync", "Imported %d event(s) for %s", imported, owner)
	}
	return imported, nil
}

func (s *Syncer) known(ctx context.Context, owner string, r RemoteEvent) bool {
	if _, err := s.store.FindEventByRef(ctx, owner, r.Ref); err == nil {
		return true
	}
	if r.SyncKey != "" {
		if _, err := s.store.FindEventByRef(ctx, owner, r.SyncKey); err == nil {
			return true
		}
	}
	return false
}

// Start runs the retry loop. The first pass runs immediately.
func (s *Syncer) Start() error {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	log.Printf("[calsync] Starting with retry interval %v, timeout %v", s.interval, s.timeout)
	go s.loop()
	return nil
}

// Stop ends the retry loop
func (s *Syncer) Stop() error {
	s.mu.Lock()
	if s.stopped || !s.started {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	close(s.stopChan)
	s.mu.Unlock()
	<-s.done
	log.Printf("[calsync] Stopped")
	return nil
}

// LastRun returns when the loop last ran and its error
func (s *Syncer) LastRun() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastErr
}

func (s *Syncer) loop() {
	defer close(s.done)
	s.runOnce()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.runOnce()
		}
	}
}

func (s *Syncer) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()
	defer s.profiler.Start("sync-pass", profiling.StageSync)()

	pushed, failed, err := s.RetryPending(ctx)
	if err == nil && s.owner != "" {
		now := s.now()
		_, err = s.Pull(ctx, s.owner, now.Add(-24*time.Hour), now.Add(s.window))
	}

	s.mu.Lock()
	s.lastRun = s.now()
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		log.Printf("[calsync] Sync pass failed: %v", err)
	}
	if pushed > 0 || failed > 0 {
		logging.Info("calsync", "Sync pass: %d done, %d still failing", pushed, failed)
	}
}
