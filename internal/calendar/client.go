// Package calendar adapts the cabinet's Google Calendar to the busy
// interval and event operations the booking flow needs. Every call is
// bounded by a short timeout; callers treat failures as fail-open.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/jbarrault/cabinet-rdv/internal/availability"
)

// ErrNotConfigured is returned by write operations when no service
// account credentials were provided. Read paths report no busy
// intervals instead, mirroring the fail-open availability policy.
var ErrNotConfigured = errors.New("google calendar not configured")

const callTimeout = 5 * time.Second

// IDResolver supplies the calendar id to address, typically backed by
// the settings store so an admin change takes effect without restart.
type IDResolver interface {
	CalendarID(ctx context.Context) string
}

type StaticID string

func (s StaticID) CalendarID(context.Context) string { return string(s) }

type Client struct {
	cache      *ServiceCache
	resolver   IDResolver
	logger     *slog.Logger
	configured bool
}

// New builds a Client from a service-account JSON key. An empty key
// yields an unconfigured client whose reads are empty and whose writes
// return ErrNotConfigured.
func New(logger *slog.Logger, credentialsJSON []byte, cacheTTL time.Duration, resolver IDResolver) *Client {
	configured := len(credentialsJSON) > 0
	cache := NewServiceCache(cacheTTL, func(ctx context.Context) (*gcal.Service, error) {
		cfg, err := google.JWTConfigFromJSON(credentialsJSON, gcal.CalendarScope)
		if err != nil {
			return nil, fmt.Errorf("parse service account key: %w", err)
		}
		svc, err := gcal.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx)))
		if err != nil {
			return nil, fmt.Errorf("build calendar service: %w", err)
		}
		return svc, nil
	})
	if !configured {
		logger.Warn("google calendar credentials missing; external feed disabled")
	}
	return &Client{
		cache:      cache,
		resolver:   resolver,
		logger:     logger,
		configured: configured,
	}
}

// Cache exposes the credential cache so the settings handler can
// invalidate it after a calendar reconfiguration.
func (c *Client) Cache() *ServiceCache { return c.cache }

func (c *Client) Name() string { return "google-calendar" }

// BusyIntervals lists the calendar events overlapping [from, to) as
// busy intervals. All-day events carry no dateTime and do not block
// slots, matching how the cabinet has always used its calendar.
func (c *Client) BusyIntervals(ctx context.Context, from, to time.Time) ([]availability.Interval, error) {
	if !c.configured {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	svc, err := c.cache.Get(ctx)
	if err != nil {
		return nil, err
	}

	events, err := svc.Events.List(c.resolver.CalendarID(ctx)).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	var intervals []availability.Interval
	for _, ev := range events.Items {
		if ev.Start == nil || ev.End == nil || ev.Start.DateTime == "" || ev.End.DateTime == "" {
			continue
		}
		start, err := time.Parse(time.RFC3339, ev.Start.DateTime)
		if err != nil {
			c.logger.Warn("skipping event with bad start", "event_id", ev.Id, "err", err)
			continue
		}
		end, err := time.Parse(time.RFC3339, ev.End.DateTime)
		if err != nil {
			c.logger.Warn("skipping event with bad end", "event_id", ev.Id, "err", err)
			continue
		}
		intervals = append(intervals, availability.Interval{Start: start, End: end})
	}
	return intervals, nil
}

// CreateEvent inserts an appointment event and returns its id.
func (c *Client) CreateEvent(ctx context.Context, start, end time.Time, summary, description string) (string, error) {
	if !c.configured {
		return "", ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	svc, err := c.cache.Get(ctx)
	if err != nil {
		return "", err
	}

	ev := &gcal.Event{
		Summary:     summary,
		Description: description,
		Start:       &gcal.EventDateTime{DateTime: start.Format(time.RFC3339)},
		End:         &gcal.EventDateTime{DateTime: end.Format(time.RFC3339)},
	}
	created, err := svc.Events.Insert(c.resolver.CalendarID(ctx), ev).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("insert event: %w", err)
	}
	return created.Id, nil
}

func (c *Client) DeleteEvent(ctx context.Context, eventID string) error {
	if !c.configured {
		return ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	svc, err := c.cache.Get(ctx)
	if err != nil {
		return err
	}
	if err := svc.Events.Delete(c.resolver.CalendarID(ctx), eventID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}
