// Package availability computes the bookable slot starts for a
// calendar day from the working-hour configuration and the busy
// intervals reported by the configured sources.
package availability

import (
	"context"
	"log/slog"
	"time"

	"github.com/jbarrault/cabinet-rdv/internal/holiday"
)

// Interval is an occupied span with half-open [Start, End) semantics.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Source reports busy intervals overlapping [from, to). Implementations
// are the Google Calendar feed and the local appointment store.
type Source interface {
	Name() string
	BusyIntervals(ctx context.Context, from, to time.Time) ([]Interval, error)
}

// Config is the slice of the cabinet settings the allocator reads.
type Config struct {
	WorkStartHour int
	WorkEndHour   int
	SlotDuration  time.Duration
	LunchEnabled  bool
	LunchStart    string // "HH:mm"
	LunchEnd      string
}

type Allocator struct {
	sources []Source
	logger  *slog.Logger
}

func NewAllocator(logger *slog.Logger, sources ...Source) *Allocator {
	return &Allocator{sources: sources, logger: logger}
}

// DaySlots returns the free slot start times ("HH:mm", ascending) for
// the day containing `day`, which must be midnight in the cabinet's
// time zone. Weekends and public holidays are never bookable. A source
// that fails is treated as reporting no busy intervals, so the booking
// page degrades instead of going dark.
func (a *Allocator) DaySlots(ctx context.Context, day time.Time, cfg Config, now time.Time) []string {
	if cfg.SlotDuration <= 0 || cfg.WorkStartHour < 0 || cfg.WorkEndHour > 24 || cfg.WorkStartHour >= cfg.WorkEndHour {
		return nil
	}
	if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return nil
	}
	if holiday.IsHoliday(day) {
		return nil
	}

	loc := day.Location()
	windowStart := time.Date(day.Year(), day.Month(), day.Day(), cfg.WorkStartHour, 0, 0, 0, loc)
	windowEnd := time.Date(day.Year(), day.Month(), day.Day(), cfg.WorkEndHour, 0, 0, 0, loc)

	busy := a.collectBusy(ctx, windowStart, windowEnd)
	if cfg.LunchEnabled {
		if lunch, ok := lunchInterval(day, cfg.LunchStart, cfg.LunchEnd); ok {
			busy = append(busy, lunch)
		}
	}

	var slots []string
	for t := windowStart; t.Before(windowEnd); t = t.Add(cfg.SlotDuration) {
		end := t.Add(cfg.SlotDuration)
		if end.After(windowEnd) {
			// Trailing partial period stays unscheduled.
			break
		}
		if t.Before(now) {
			continue
		}
		if overlapsAny(t, end, busy) {
			continue
		}
		slots = append(slots, t.Format("15:04"))
	}
	return slots
}

func (a *Allocator) collectBusy(ctx context.Context, from, to time.Time) []Interval {
	type result struct {
		source    string
		intervals []Interval
		err       error
	}

	ch := make(chan result, len(a.sources))
	for _, src := range a.sources {
		go func(s Source) {
			intervals, err := s.BusyIntervals(ctx, from, to)
			ch <- result{source: s.Name(), intervals: intervals, err: err}
		}(src)
	}

	var busy []Interval
	for range a.sources {
		res := <-ch
		if res.err != nil {
			// Fail open: the remaining sources decide what is free.
			a.logger.Warn("busy-interval source failed", "source", res.source, "err", res.err)
			continue
		}
		busy = append(busy, res.intervals...)
	}
	return busy
}

func lunchInterval(day time.Time, startStr, endStr string) (Interval, bool) {
	start, err := time.Parse("15:04", startStr)
	if err != nil {
		return Interval{}, false
	}
	end, err := time.Parse("15:04", endStr)
	if err != nil {
		return Interval{}, false
	}
	loc := day.Location()
	iv := Interval{
		Start: time.Date(day.Year(), day.Month(), day.Day(), start.Hour(), start.Minute(), 0, 0, loc),
		End:   time.Date(day.Year(), day.Month(), day.Day(), end.Hour(), end.Minute(), 0, 0, loc),
	}
	if !iv.End.After(iv.Start) {
		return Interval{}, false
	}
	return iv, true
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		if conflicts(start, end, b) {
			return true
		}
	}
	return false
}

// conflicts reports a collision when the slot's start or end falls
// strictly inside the busy interval. A slot exactly abutting a busy
// interval (start == b.End or end == b.Start) is not a conflict.
func conflicts(start, end time.Time, b Interval) bool {
	if !start.Before(b.Start) && start.Before(b.End) {
		return true
	}
	if end.After(b.Start) && !end.After(b.End) {
		return true
	}
	return false
}
