package calsync

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vthunder/agenda/internal/types"
)

// Memory is an in-process calendar. It backs tests and runs when no
// remote backend is configured.
type Memory struct {
	mu      sync.Mutex
	events  map[string]RemoteEvent
	byKey   map[string]string // sync key -> ref
	seq     int
	fail    error
	creates int
	updates int
	deletes int
}

// NewMemory creates an empty in-memory calendar
func NewMemory() *Memory {
	return &Memory{
		events: make(map[string]RemoteEvent),
		byKey:  make(map[string]string),
	}
}

// FailWith makes every call return err until called again with nil
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

// Calls reports how many mutating calls succeeded
func (m *Memory) Calls() (creates, updates, deletes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creates, m.updates, m.deletes
}

// Get returns a stored remote event
func (m *Memory) Get(ref string) (RemoteEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.events[ref]
	return r, ok
}

// Put inserts an event as if created by another client
func (m *Memory) Put(r RemoteEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.Ref == "" {
		m.seq++
		r.Ref = fmt.Sprintf("mem-%d", m.seq)
	}
	m.events[r.Ref] = r
}

func (m *Memory) Create(ctx context.Context, e types.Event) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return "", m.fail
	}
	if ref, ok := m.byKey[e.SyncKey]; ok && e.SyncKey != "" {
		if _, live := m.events[ref]; live {
			return ref, nil
		}
	}
	m.seq++
	ref := fmt.Sprintf("mem-%d", m.seq)
	m.events[ref] = fromEvent(ref, e)
	if e.SyncKey != "" {
		m.byKey[e.SyncKey] = ref
	}
	m.creates++
	return ref, nil
}

func (m *Memory) Update(ctx context.Context, ref string, e types.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	if _, ok := m.events[ref]; !ok {
		return ErrRemoteNotFound
	}
	m.events[ref] = fromEvent(ref, e)
	m.updates++
	return nil
}

func (m *Memory) Delete(ctx context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	if _, ok := m.events[ref]; ok {
		delete(m.events, ref)
		m.deletes++
	}
	return nil
}

func (m *Memory) List(ctx context.Context, from, to time.Time) ([]RemoteEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	var out []RemoteEvent
	for _, r := range m.events {
		if r.Start.Before(from) || !r.Start.Before(to) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (m *Memory) Identity(ctx context.Context) (Identity, error) {
	return Identity{Backend: "memory", Account: "local", Calendar: "in-memory", Timezone: time.Local.String()}, nil
}

func fromEvent(ref string, e types.Event) RemoteEvent {
	return RemoteEvent{
		Ref:         ref,
		SyncKey:     e.SyncKey,
		Title:       e.Title,
		Description: e.Description,
		Location:    e.Location,
		Start:       e.Start,
		End:         e.EndOrDefault(time.Hour),
		AllDay:      e.AllDay,
		Alarm:       e.Alarm,
		Status:      "confirmed",
	}
}
