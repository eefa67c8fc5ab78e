// Package caldav is the CalDAV backend of calsync.Adapter (iCloud, Fastmail,
// Nextcloud, Radicale). Each event is one calendar object named after its
// sync key, so a repeated create overwrites instead of duplicating.
package caldav

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"

	"github.com/vthunder/agenda/internal/calsync"
	"github.com/vthunder/agenda/internal/ics"
	"github.com/vthunder/agenda/internal/logging"
	"github.com/vthunder/agenda/internal/types"
)

// Config holds CalDAV connection settings
type Config struct {
	URL          string // server endpoint, e.g. https://caldav.icloud.com/
	Username     string
	Password     string
	CalendarName string // display name; empty picks the first calendar
	Location     *time.Location
}

// basicAuthTransport adds Basic Auth and a user agent to each request
type basicAuthTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.Username, t.Password)
	req.Header.Set("User-Agent", "agenda/1.0")
	return t.Transport.RoundTrip(req)
}

// Client talks to one calendar collection
type Client struct {
	caldavClient *caldav.Client
	webdavClient *webdav.Client
	calendarPath string
	calendarName string
	username     string
	loc          *time.Location
}

var _ calsync.Adapter = (*Client)(nil)

// NewClient connects and discovers the configured calendar
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("CALDAV_URL not set")
	}
	c, err := newClient(cfg, "")
	if err != nil {
		return nil, err
	}

	calPath, name, err := c.findCalendar(ctx, cfg.CalendarName)
	if err != nil {
		return nil, fmt.Errorf("could not find calendar '%s': %w", cfg.CalendarName, err)
	}
	c.calendarPath, c.calendarName = calPath, name
	logging.Info("caldav", "Using calendar %q at %s", name, calPath)
	return c, nil
}

// NewClientWithPath skips discovery and uses a known collection path
func NewClientWithPath(cfg Config, calendarPath string) (*Client, error) {
	return newClient(cfg, calendarPath)
}

func newClient(cfg Config, calendarPath string) (*Client, error) {
	httpClient := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &basicAuthTransport{
			Username:  cfg.Username,
			Password:  cfg.Password,
			Transport: http.DefaultTransport,
		},
	}
	caldavClient, err := caldav.NewClient(httpClient, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}
	webdavClient, err := webdav.NewClient(httpClient, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to create webdav client: %w", err)
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Client{
		caldavClient: caldavClient,
		webdavClient: webdavClient,
		calendarPath: calendarPath,
		calendarName: cfg.CalendarName,
		username:     cfg.Username,
		loc:          loc,
	}, nil
}

// findCalendar discovers the user's calendars and returns the path of the
// one with the matching name
func (c *Client) findCalendar(ctx context.Context, name string) (string, string, error) {
	principalPath, err := c.caldavClient.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", "", fmt.Errorf("failed to find principal path: %w", err)
	}
	homeSetPath, err := c.caldavClient.FindCalendarHomeSet(ctx, principalPath)
	if err != nil {
		return "", "", fmt.Errorf("failed to find calendar home set: %w", err)
	}
	calendars, err := c.caldavClient.FindCalendars(ctx, homeSetPath)
	if err != nil {
		return "", "", fmt.Errorf("failed to find calendars: %w", err)
	}
	for _, cal := range calendars {
		if name == "" || cal.Name == name {
			return cal.Path, cal.Name, nil
		}
	}
	return "", "", fmt.Errorf("no calendar found with name '%s'", name)
}

// ObjectPath is where the event with syncKey lives in the collection
func (c *Client) ObjectPath(syncKey string) string {
	return path.Join("/", c.calendarPath, syncKey+".ics")
}

// Create writes the event object; the path is derived from the sync key
func (c *Client) Create(ctx context.Context, e types.Event) (string, error) {
	if e.SyncKey == "" {
		return "", fmt.Errorf("event %d has no sync key", e.ID)
	}
	ref := c.ObjectPath(e.SyncKey)
	if err := c.put(ctx, ref, e); err != nil {
		return "", err
	}
	return ref, nil
}

// Update overwrites the object at ref
func (c *Client) Update(ctx context.Context, ref string, e types.Event) error {
	return c.put(ctx, ref, e)
}

func (c *Client) put(ctx context.Context, ref string, e types.Event) error {
	cal := ics.NewCalendar()
	cal.Children = append(cal.Children, ics.EventComponent(e, time.Now()))

	writer, err := c.webdavClient.Create(ctx, ref)
	if err != nil {
		return fmt.Errorf("failed to create event on CalDAV server: %w", err)
	}
	if err := ics.Encode(writer, cal); err != nil {
		writer.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to upload event %s: %w", ref, err)
	}
	logging.Debug("caldav", "Stored %s: %s", ref, e.Title)
	return nil
}

// Delete removes the object; one that is already gone counts as deleted
func (c *Client) Delete(ctx context.Context, ref string) error {
	err := c.webdavClient.RemoveAll(ctx, ref)
	if err != nil && !isGone(err) {
		return fmt.Errorf("failed to delete %s: %w", ref, err)
	}
	return nil
}

// List queries VEVENTs overlapping [from, to)
func (c *Client) List(ctx context.Context, from, to time.Time) ([]calsync.RemoteEvent, error) {
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name: "VCALENDAR",
			Comps: []caldav.CalendarCompRequest{{
				Name:     "VEVENT",
				AllProps: true,
				AllComps: true,
			}},
		},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{{
				Name:  "VEVENT",
				Start: from,
				End:   to,
			}},
		},
	}
	objects, err := c.caldavClient.QueryCalendar(ctx, c.calendarPath, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query calendar: %w", err)
	}
	var out []calsync.RemoteEvent
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		for _, ev := range ics.RemoteEvents(obj.Data, obj.Path, c.loc) {
			// recurring masters outside the window come back too
			if ev.Start.Before(from) || !ev.Start.Before(to) {
				continue
			}
			out = append(out, ev)
		}
	}
	return out, nil
}

// Identity reports the account and calendar in use
func (c *Client) Identity(ctx context.Context) (calsync.Identity, error) {
	return calsync.Identity{
		Backend:  "caldav",
		Account:  c.username,
		Calendar: c.calendarName,
		Timezone: c.loc.String(),
	}, nil
}

func isGone(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "404") || strings.Contains(msg, "410")
}
