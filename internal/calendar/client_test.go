package calendar

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestUnconfiguredClient(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := New(logger, nil, time.Minute, StaticID("primary"))

	intervals, err := c.BusyIntervals(context.Background(), time.Now(), time.Now().Add(time.Hour))
	if err != nil || intervals != nil {
		t.Fatalf("unconfigured reads must be empty and error-free, got %v, %v", intervals, err)
	}

	if _, err := c.CreateEvent(context.Background(), time.Now(), time.Now().Add(time.Hour), "s", "d"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if err := c.DeleteEvent(context.Background(), "evt-1"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestStaticID(t *testing.T) {
	if got := StaticID("cabinet@group.calendar.google.com").CalendarID(context.Background()); got != "cabinet@group.calendar.google.com" {
		t.Fatalf("unexpected calendar id %q", got)
	}
}
