// Package reminder sends the day-before email for confirmed
// appointments. The sweep is triggered from the HTTP cron endpoint, so
// running it twice in the same day must not double-send: the
// reminder_sent flag is flipped only after the email goes out.
package reminder

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jbarrault/cabinet-rdv/internal/model"
	"github.com/jbarrault/cabinet-rdv/internal/outbox"
)

type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	DueForReminder(ctx context.Context, dayStart, dayEnd time.Time) ([]model.Appointment, error)
	MarkReminderSent(ctx context.Context, tx pgx.Tx, id string) error
}

type EventLog interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

type Mailer interface {
	Configured() bool
	SendReminder(appt model.Appointment) error
}

// Result reports one sweep. Failed counts appointments whose email
// could not be sent; they stay unreminded and are retried on the next
// sweep.
type Result struct {
	Scanned int `json:"scanned"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}

type Sweeper struct {
	store  Store
	events EventLog
	mailer Mailer
	logger *slog.Logger
	loc    *time.Location
	clock  func() time.Time
}

func NewSweeper(store Store, events EventLog, mailer Mailer, logger *slog.Logger, loc *time.Location) *Sweeper {
	return &Sweeper{
		store:  store,
		events: events,
		mailer: mailer,
		logger: logger,
		loc:    loc,
		clock:  time.Now,
	}
}

// Run reminds every confirmed appointment scheduled tomorrow, cabinet
// local time.
func (s *Sweeper) Run(ctx context.Context) (Result, error) {
	if !s.mailer.Configured() {
		s.logger.Warn("reminder sweep skipped, mailer not configured")
		return Result{}, nil
	}

	now := s.clock().In(s.loc)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc).AddDate(0, 0, 1)
	dayEnd := dayStart.AddDate(0, 0, 1)

	due, err := s.store.DueForReminder(ctx, dayStart, dayEnd)
	if err != nil {
		return Result{}, err
	}

	res := Result{Scanned: len(due)}
	for _, appt := range due {
		if err := s.mailer.SendReminder(appt); err != nil {
			s.logger.Warn("reminder email failed", "appointment_id", appt.ID, "err", err)
			res.Failed++
			continue
		}
		if err := s.markSent(ctx, appt); err != nil {
			// Email went out but the flag did not stick; the next sweep
			// will send a duplicate, which beats a missed reminder.
			s.logger.Error("reminder flag update failed", "appointment_id", appt.ID, "err", err)
			res.Failed++
			continue
		}
		res.Sent++
	}

	s.logger.Info("reminder sweep done", "scanned", res.Scanned, "sent", res.Sent, "failed", res.Failed)
	return res, nil
}

func (s *Sweeper) markSent(ctx context.Context, appt model.Appointment) error {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.store.MarkReminderSent(ctx, tx, appt.ID); err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"start_time":     appt.StartTime,
		"patient_email":  appt.PatientEmail,
	})
	if err != nil {
		return err
	}
	evt := outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     outbox.EventReminderSent,
		Payload:       payload,
	}
	if err := s.events.Insert(ctx, tx, evt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
