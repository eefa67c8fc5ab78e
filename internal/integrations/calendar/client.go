// Package calendar is the Google Calendar backend of calsync.Adapter
package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/vthunder/agenda/internal/calsync"
	"github.com/vthunder/agenda/internal/logging"
	"github.com/vthunder/agenda/internal/types"
)

// syncKeyProp is the private extended property holding our sync key
const syncKeyProp = "agendaSyncKey"

// Scope is the OAuth scope the client needs
const Scope = gcal.CalendarScope

// Client is a Google Calendar API client
type Client struct {
	service    *gcal.Service
	calendarID string
}

// Config holds calendar client configuration
type Config struct {
	CredentialsFile string // service account key, or OAuth client secrets
	TokenFile       string // OAuth token, required with client secrets
	CalendarID      string // usually "primary" or an email address
}

var _ calsync.Adapter = (*Client)(nil)

// NewClient creates a client. A service account key authenticates directly;
// OAuth client secrets need a token saved by SaveToken.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.CredentialsFile == "" {
		return nil, fmt.Errorf("GOOGLE_CREDENTIALS_FILE not set")
	}
	if cfg.CalendarID == "" {
		cfg.CalendarID = "primary"
	}
	data, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}

	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	var opts []option.ClientOption
	if probe.Type == "service_account" {
		jwtCfg, err := google.JWTConfigFromJSON(data, Scope)
		if err != nil {
			return nil, fmt.Errorf("parse service account key: %w", err)
		}
		opts = append(opts, option.WithHTTPClient(jwtCfg.Client(ctx)))
	} else {
		config, err := OAuthConfig(cfg.CredentialsFile)
		if err != nil {
			return nil, err
		}
		token, err := tokenFromFile(cfg.TokenFile)
		if err != nil {
			return nil, fmt.Errorf("could not load token %s: %w. Run 'agenda-state auth' first", cfg.TokenFile, err)
		}
		opts = append(opts, option.WithHTTPClient(config.Client(ctx, token)))
	}

	service, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return &Client{service: service, calendarID: cfg.CalendarID}, nil
}

// NewClientWithService wraps an existing service, for tests and custom endpoints
func NewClientWithService(service *gcal.Service, calendarID string) *Client {
	return &Client{service: service, calendarID: calendarID}
}

// CalendarID returns the configured calendar ID
func (c *Client) CalendarID() string {
	return c.calendarID
}

// Create inserts e using an event id derived from its sync key, so a retried
// create hits 409 and reuses the existing event instead of duplicating it
func (c *Client) Create(ctx context.Context, e types.Event) (string, error) {
	ev := toGoogle(e)
	ev.Id = EventID(e.SyncKey)

	created, err := c.service.Events.Insert(c.calendarID, ev).Context(ctx).Do()
	if err == nil {
		logging.Debug("gcal", "Created %s: %s", created.Id, e.Title)
		return created.Id, nil
	}
	if ev.Id == "" || statusCode(err) != http.StatusConflict {
		return "", fmt.Errorf("insert event: %w", err)
	}

	// already there; revive it if it was cancelled and bring it up to date
	ev.Status = "confirmed"
	if _, err := c.service.Events.Update(c.calendarID, ev.Id, ev).Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("update existing event %s: %w", ev.Id, err)
	}
	logging.Debug("gcal", "Reused %s for %s", ev.Id, e.Title)
	return ev.Id, nil
}

// Update overwrites the remote event
func (c *Client) Update(ctx context.Context, ref string, e types.Event) error {
	ev := toGoogle(e)
	ev.Status = "confirmed"
	_, err := c.service.Events.Update(c.calendarID, ref, ev).Context(ctx).Do()
	if gone(err) {
		return calsync.ErrRemoteNotFound
	}
	if err != nil {
		return fmt.Errorf("update event %s: %w", ref, err)
	}
	return nil
}

// Delete removes the remote event; an already deleted one is success
func (c *Client) Delete(ctx context.Context, ref string) error {
	err := c.service.Events.Delete(c.calendarID, ref).Context(ctx).Do()
	if err != nil && !gone(err) {
		return fmt.Errorf("delete event %s: %w", ref, err)
	}
	return nil
}

// List returns single (expanded) events starting in [from, to)
func (c *Client) List(ctx context.Context, from, to time.Time) ([]calsync.RemoteEvent, error) {
	var out []calsync.RemoteEvent
	call := c.service.Events.List(c.calendarID).
		ShowDeleted(false).
		SingleEvents(true).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		OrderBy("startTime").
		MaxResults(250)
	err := call.Pages(ctx, func(page *gcal.Events) error {
		for _, item := range page.Items {
			ev, err := convertEvent(item)
			if err != nil {
				continue // skip malformed events
			}
			out = append(out, ev)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve events: %w", err)
	}
	return out, nil
}

// Identity reports the calendar's summary (the account email for primary)
func (c *Client) Identity(ctx context.Context) (calsync.Identity, error) {
	entry, err := c.service.CalendarList.Get(c.calendarID).Context(ctx).Do()
	if err != nil {
		return calsync.Identity{}, fmt.Errorf("get calendar %s: %w", c.calendarID, err)
	}
	return calsync.Identity{
		Backend:  "google",
		Account:  entry.Summary,
		Calendar: entry.Id,
		Timezone: entry.TimeZone,
	}, nil
}

// EventID turns a sync key into a valid Google event id (base32hex, 5-1024 chars)
func EventID(syncKey string) string {
	id := strings.ToLower(strings.ReplaceAll(syncKey, "-", ""))
	for _, r := range id {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'v') {
			return ""
		}
	}
	if len(id) < 5 {
		return ""
	}
	return id
}

func toGoogle(e types.Event) *gcal.Event {
	ev := &gcal.Event{
		Summary:     e.Title,
		Description: e.Description,
		Location:    e.Location,
		ExtendedProperties: &gcal.EventExtendedProperties{
			Private: map[string]string{syncKeyProp: e.SyncKey},
		},
	}
	end := e.EndOrDefault(time.Hour)
	if e.AllDay {
		ev.Start = &gcal.EventDateTime{Date: e.Start.Format("2006-01-02")}
		ev.End = &gcal.EventDateTime{Date: end.Format("2006-01-02")}
	} else {
		ev.Start = &gcal.EventDateTime{DateTime: e.Start.Format(time.RFC3339), TimeZone: zoneName(e.Start)}
		ev.End = &gcal.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: zoneName(end)}
	}
	if e.Alarm > 0 {
		ev.Reminders = &gcal.EventReminders{
			UseDefault:      false,
			Overrides:       []*gcal.EventReminder{{Method: "popup", Minutes: int64(e.Alarm)}},
			ForceSendFields: []string{"UseDefault"},
		}
	}
	return ev
}

func zoneName(t time.Time) string {
	if name := t.Location().String(); name != "Local" {
		return name
	}
	return ""
}

// convertEvent converts a Google Calendar event to a calsync.RemoteEvent
func convertEvent(item *gcal.Event) (calsync.RemoteEvent, error) {
	ev := calsync.RemoteEvent{
		Ref:         item.Id,
		Title:       item.Summary,
		Description: item.Description,
		Location:    item.Location,
		Status:      item.Status,
	}
	if item.ExtendedProperties != nil {
		ev.SyncKey = item.ExtendedProperties.Private[syncKeyProp]
	}
	if item.Reminders != nil {
		for _, r := range item.Reminders.Overrides {
			if r.Method == "popup" {
				ev.Alarm = int(r.Minutes)
				break
			}
		}
	}

	start, allDay, err := parseDateTime(item.Start)
	if err != nil {
		return ev, fmt.Errorf("parse start: %w", err)
	}
	ev.Start, ev.AllDay = start, allDay
	if item.End != nil {
		if end, _, err := parseDateTime(item.End); err == nil {
			ev.End = end
		}
	}
	return ev, nil
}

func parseDateTime(dt *gcal.EventDateTime) (time.Time, bool, error) {
	if dt == nil {
		return time.Time{}, false, errors.New("missing time")
	}
	if dt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		return t, false, err
	}
	if dt.Date != "" {
		loc := time.UTC
		if dt.TimeZone != "" {
			if l, err := time.LoadLocation(dt.TimeZone); err == nil {
				loc = l
			}
		}
		t, err := time.ParseInLocation("2006-01-02", dt.Date, loc)
		return t, true, err
	}
	return time.Time{}, false, errors.New("empty time")
}

func statusCode(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}

func gone(err error) bool {
	code := statusCode(err)
	return code == http.StatusNotFound || code == http.StatusGone
}

// OAuthConfig reads OAuth client secrets for the installed-app flow
func OAuthConfig(credentialsFile string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}
	config, err := google.ConfigFromJSON(b, Scope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	config.RedirectURL = "urn:ietf:wg:oauth:2.0:oob"
	return config, nil
}

// AuthURL is where the user grants access
func AuthURL(config *oauth2.Config) string {
	return config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
}

// TokenFromCode exchanges an authorization code for a token
func TokenFromCode(ctx context.Context, config *oauth2.Config, code string) (*oauth2.Token, error) {
	return config.Exchange(ctx, code)
}

// SaveToken saves a token to a file path
func SaveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to create token file: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}
