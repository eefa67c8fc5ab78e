// Package calsync keeps local events and the remote calendar in step. The
// Adapter interface is the remote boundary; Syncer applies status
// transitions, records tombstones for failed deletes and retries both.
package calsync

import (
	"context"
	"errors"
	"time"

	"github.com/vthunder/agenda/internal/types"
)

// ErrRemoteNotFound means the remote calendar has no event with that ref
var ErrRemoteNotFound = errors.New("remote event not found")

// RemoteEvent is an event as the remote calendar reports it
type RemoteEvent struct {
	Ref         string
	SyncKey     string // set when the event was created by us
	Title       string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	AllDay      bool
	Alarm       int
	Status      string // confirmed, tentative, cancelled
}

// Identity describes the connected calendar account
type Identity struct {
	Backend  string
	Account  string
	Calendar string
	Timezone string
}

// Adapter is a remote calendar. Create must be idempotent for a given
// event SyncKey, and Delete of a ref that no longer exists must succeed.
type Adapter interface {
	Create(ctx context.Context, e types.Event) (ref string, err error)
	Update(ctx context.Context, ref string, e types.Event) error
	Delete(ctx context.Context, ref string) error
	List(ctx context.Context, from, to time.Time) ([]RemoteEvent, error)
	Identity(ctx context.Context) (Identity, error)
}

// ToEvent converts a remote event into a local record for owner
func (r RemoteEvent) ToEvent(owner string) types.Event {
	e := types.Event{
		OwnerID:     owner,
		Title:       r.Title,
		Start:       r.Start,
		AllDay:      r.AllDay,
		Location:    r.Location,
		Description: r.Description,
		Alarm:       r.Alarm,
		ExternalRef: r.Ref,
	}
	if !r.End.IsZero() {
		end := r.End
		e.End = &end
	}
	if e.Title == "" {
		e.Title = "(untitled)"
	}
	return e
}
