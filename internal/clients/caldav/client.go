package caldav

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-webdav/caldav"
	"github.com/tazhate/billbot/internal/domain"
)

// DefaultiCloudURL is used when no server URL is configured.
const DefaultiCloudURL = "https://caldav.icloud.com"

// Client mirrors reminders into a CalDAV calendar as recurring events.
type Client struct {
	baseURL      string
	username     string
	password     string
	calendarPath string
	opts         Options
	now          func() time.Time

	mu     sync.Mutex
	client *caldav.Client
}

func NewClient(baseURL, username, password, calendarPath string, opts Options) *Client {
	if baseURL == "" {
		baseURL = DefaultiCloudURL
	}
	return &Client{
		baseURL:      baseURL,
		username:     username,
		password:     password,
		calendarPath: calendarPath,
		opts:         opts,
		now:          time.Now,
	}
}

func (c *Client) connect() (*caldav.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	httpClient := &http.Client{
		Transport: &basicAuthTransport{
			username: c.username,
			password: c.password,
		},
		Timeout: 30 * time.Second,
	}

	client, err := caldav.NewClient(httpClient, c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to CalDAV: %w", err)
	}

	c.client = client
	return client, nil
}

type basicAuthTransport struct {
	username string
	password string
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.username, t.password)
	return http.DefaultTransport.RoundTrip(req)
}

// DiscoverCalendars lists the calendars in the user's home set.
func (c *Client) DiscoverCalendars(ctx context.Context) ([]Calendar, error) {
	client, err := c.connect()
	if err != nil {
		return nil, err
	}

	principal, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("find principal: %w", err)
	}

	homeSet, err := client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("find home set: %w", err)
	}

	cals, err := client.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, fmt.Errorf("find calendars: %w", err)
	}

	result := make([]Calendar, 0, len(cals))
	for _, cal := range cals {
		result = append(result, Calendar{
			Path:        cal.Path,
			DisplayName: cal.Name,
			Description: cal.Description,
		})
	}
	return result, nil
}

// Publish creates or replaces the event for r.
func (c *Client) Publish(ctx context.Context, r *domain.Reminder) error {
	client, err := c.connect()
	if err != nil {
		return err
	}

	ev, err := ReminderEvent(r, c.opts, c.now())
	if err != nil {
		return fmt.Errorf("render reminder %d: %w", r.ID, err)
	}
	cal := NewCalendar()
	cal.Children = append(cal.Children, ev.Component)

	if _, err := client.PutCalendarObject(ctx, c.eventPath(r.ID), cal); err != nil {
		return fmt.Errorf("put event: %w", err)
	}
	return nil
}

// Unpublish deletes the event for r.
func (c *Client) Unpublish(ctx context.Context, r *domain.Reminder) error {
	client, err := c.connect()
	if err != nil {
		return err
	}
	if err := client.RemoveAll(ctx, c.eventPath(r.ID)); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

func (c *Client) eventPath(id int64) string {
	p := c.calendarPath
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p + EventUID(id) + ".ics"
}
