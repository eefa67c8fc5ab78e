// Package activity keeps an append-only JSONL audit trail of what the bot
// did: commands handled, reminders fired and deliveries that failed.
package activity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Type identifies what kind of activity this is
type Type string

const (
	TypeCommand  Type = "command"  // a message was handled
	TypeFired    Type = "fired"    // a reminder came due and was queued
	TypeDelivery Type = "delivery" // an outbound message failed
	TypeError    Type = "error"    // a command was answered with an error
)

// Entry is one audit record
type Entry struct {
	Timestamp time.Time      `json:"ts"`
	Type      Type           `json:"type"`
	Owner     string         `json:"owner,omitempty"`
	Action    string         `json:"action,omitempty"`
	Summary   string         `json:"summary"`
	Data      map[string]any `json:"data,omitempty"`
}

// Log is the activity logger
type Log struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

// New creates a logger writing to <statePath>/system/activity.jsonl
func New(statePath string) (*Log, error) {
	dir := filepath.Join(statePath, "system")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create activity dir: %w", err)
	}
	return &Log{path: filepath.Join(dir, "activity.jsonl"), now: time.Now}, nil
}

// Path is the log file
func (l *Log) Path() string {
	return l.path
}

// Log appends an entry
func (l *Log) Log(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now()
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}

// LogCommand records a handled message. A non-nil err records TypeError.
func (l *Log) LogCommand(owner, action, message, reply string, err error) error {
	e := Entry{
		Type:    TypeCommand,
		Owner:   owner,
		Action:  action,
		Summary: message,
		Data:    map[string]any{"reply": reply},
	}
	if err != nil {
		e.Type = TypeError
		e.Data["error"] = err.Error()
	}
	return l.Log(e)
}

// LogFired records a reminder firing
func (l *Log) LogFired(owner string, reminderID int64, text string, due time.Time) error {
	return l.Log(Entry{
		Type:    TypeFired,
		Owner:   owner,
		Summary: text,
		Data:    map[string]any{"reminder_id": reminderID, "due_at": due.Format(time.RFC3339)},
	})
}

// LogDelivery records a failed delivery
func (l *Log) LogDelivery(deliveryID int64, kind, errMsg string) error {
	return l.Log(Entry{
		Type:    TypeDelivery,
		Summary: fmt.Sprintf("delivery %d failed", deliveryID),
		Data:    map[string]any{"kind": kind, "error": errMsg},
	})
}

// Recent returns the last n entries
func (l *Log) Recent(n int) ([]Entry, error) {
	entries, err := l.readAll()
	if err != nil {
		return nil, err
	}
	if n >= len(entries) {
		return entries, nil
	}
	return entries[len(entries)-n:], nil
}

// Search returns up to limit entries, newest first, whose summary or data
// contains query
func (l *Log) Search(query string, limit int) ([]Entry, error) {
	entries, err := l.readAll()
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(query)
	var result []Entry
	for i := len(entries) - 1; i >= 0 && len(result) < limit; i-- {
		e := entries[i]
		if strings.Contains(strings.ToLower(e.Summary), query) {
			result = append(result, e)
			continue
		}
		if e.Data != nil {
			dataJSON, _ := json.Marshal(e.Data)
			if strings.Contains(strings.ToLower(string(dataJSON)), query) {
				result = append(result, e)
			}
		}
	}
	return result, nil
}

// ByOwner returns up to limit entries for owner, newest first
func (l *Log) ByOwner(owner string, limit int) ([]Entry, error) {
	entries, err := l.readAll()
	if err != nil {
		return nil, err
	}
	var result []Entry
	for i := len(entries) - 1; i >= 0 && len(result) < limit; i-- {
		if entries[i].Owner == owner {
			result = append(result, entries[i])
		}
	}
	return result, nil
}

// Truncate keeps only the last n entries
func (l *Log) Truncate(n int) (removed int, err error) {
	entries, err := l.readAll()
	if err != nil || len(entries) <= n {
		return 0, err
	}
	keep := entries[len(entries)-n:]

	l.mu.Lock()
	defer l.mu.Unlock()
	var sb strings.Builder
	for _, e := range keep {
		data, err := json.Marshal(e)
		if err != nil {
			return 0, err
		}
		sb.Write(data)
		sb.WriteByte('\n')
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(sb.String()), 0644); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return 0, err
	}
	return len(entries) - n, nil
}

func (l *Log) readAll() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entries []Entry
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue // skip malformed entries
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
