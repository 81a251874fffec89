// Package booking implements the appointment lifecycle: atomic-confirm
// creation, administrative cancellation, and token-based self-service
// cancellation under the 24h notice policy.
package booking

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jbarrault/cabinet-rdv/internal/model"
	"github.com/jbarrault/cabinet-rdv/internal/outbox"
)

const (
	// NoticePeriod is the minimum lead time for self-service cancellation.
	NoticePeriod = 24 * time.Hour
	// HorizonMonths bounds how far ahead a booking may be placed.
	HorizonMonths = 3
)

type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Create(ctx context.Context, tx pgx.Tx, appt *model.Appointment) error
	GetByID(ctx context.Context, tx pgx.Tx, id string) (model.Appointment, error)
	GetByToken(ctx context.Context, tx pgx.Tx, token string) (model.Appointment, error)
	LookupByToken(ctx context.Context, token string) (model.Appointment, error)
	MarkCancelled(ctx context.Context, tx pgx.Tx, id string) error
}

type EventLog interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

// Feed is the external calendar the cabinet mirrors appointments into.
// Every call is best-effort: a failure is logged and never blocks the
// local write, which alone defines "booked".
type Feed interface {
	CreateEvent(ctx context.Context, start, end time.Time, summary, description string) (string, error)
	DeleteEvent(ctx context.Context, eventID string) error
}

type Notifier interface {
	Configured() bool
	SendConfirmation(appt model.Appointment) error
	SendCancellation(appt model.Appointment) error
	SendAdminCancellation(appt model.Appointment, adminEmail string) error
}

type SettingsSource interface {
	Get(ctx context.Context) (model.Settings, error)
}

// IsConflictFn classifies a storage error as a unique-slot violation.
type IsConflictFn func(error) bool

type IsNotFoundFn func(error) bool

type Service struct {
	store      Store
	events     EventLog
	feed       Feed
	mailer     Notifier
	settings   SettingsSource
	logger     *slog.Logger
	loc        *time.Location
	clock      func() time.Time
	isConflict IsConflictFn
	isNotFound IsNotFoundFn
}

func NewService(store Store, events EventLog, feed Feed, mailer Notifier, settings SettingsSource, logger *slog.Logger, loc *time.Location, isConflict IsConflictFn, isNotFound IsNotFoundFn) *Service {
	return &Service{
		store:      store,
		events:     events,
		feed:       feed,
		mailer:     mailer,
		settings:   settings,
		logger:     logger,
		loc:        loc,
		clock:      time.Now,
		isConflict: isConflict,
		isNotFound: isNotFound,
	}
}

type CreateRequest struct {
	PatientName  string
	PatientEmail string
	PatientPhone string
	Reason       string
	Date         string // "2006-01-02"
	Time         string // "15:04"
}

// Create books a slot. Validation runs against the current clock, not
// whatever was true when the slot list was rendered.
func (s *Service) Create(ctx context.Context, req CreateRequest) (model.Appointment, error) {
	if req.PatientName == "" || req.PatientEmail == "" || req.PatientPhone == "" {
		return model.Appointment{}, ErrMissingFields
	}

	start, err := time.ParseInLocation("2006-01-02 15:04", req.Date+" "+req.Time, s.loc)
	if err != nil {
		return model.Appointment{}, ErrInvalidDateTime
	}

	now := s.clock().In(s.loc)
	if start.Before(now) {
		return model.Appointment{}, ErrPastSlot
	}
	if !start.Before(now.AddDate(0, HorizonMonths, 0)) {
		return model.Appointment{}, ErrBeyondHorizon
	}

	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	token, err := newCancellationToken()
	if err != nil {
		return model.Appointment{}, fmt.Errorf("generate cancellation token: %w", err)
	}

	appt := model.Appointment{
		ID:                uuid.NewString(),
		StartTime:         start,
		EndTime:           start.Add(time.Duration(cfg.SlotDurationMinutes) * time.Minute),
		PatientName:       req.PatientName,
		PatientEmail:      req.PatientEmail,
		PatientPhone:      req.PatientPhone,
		Reason:            req.Reason,
		CancellationToken: token,
		Status:            model.StatusConfirmed,
	}

	// Mirror into the external calendar first so the row can carry the
	// event id. A feed failure leaves the reference null and booking
	// proceeds; the event is orphaned if the insert below fails.
	summary := fmt.Sprintf("Rendez-vous : %s", appt.PatientName)
	description := fmt.Sprintf("Motif : %s\nTéléphone : %s\nEmail : %s", appt.Reason, appt.PatientPhone, appt.PatientEmail)
	if eventID, err := s.feed.CreateEvent(ctx, appt.StartTime, appt.EndTime, summary, description); err != nil {
		s.logger.Warn("external calendar create failed; booking continues", "err", err)
	} else {
		appt.GoogleEventID = &eventID
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.store.Create(ctx, tx, &appt); err != nil {
		if s.isConflict(err) {
			return model.Appointment{}, ErrSlotTaken
		}
		return model.Appointment{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if err := s.insertEvent(ctx, tx, outbox.EventBooked, appt); err != nil {
		return model.Appointment{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	if err := s.mailer.SendConfirmation(appt); err != nil {
		s.logger.Warn("confirmation email failed", "appointment_id", appt.ID, "err", err)
	}
	return appt, nil
}

// Cancel is the administrative path: no notice-period check, past
// appointments included. Cancelling twice is a no-op.
func (s *Service) Cancel(ctx context.Context, id string) (model.Appointment, error) {
	return s.cancel(ctx, func(ctx context.Context, tx pgx.Tx) (model.Appointment, error) {
		return s.store.GetByID(ctx, tx, id)
	}, nil)
}

// CancelByToken is the patient self-service path. Rules run in order
// and the first failure wins: already cancelled, past appointment,
// then the 24h notice period.
func (s *Service) CancelByToken(ctx context.Context, token string) (model.Appointment, error) {
	return s.cancel(ctx, func(ctx context.Context, tx pgx.Tx) (model.Appointment, error) {
		return s.store.GetByToken(ctx, tx, token)
	}, func(appt model.Appointment, now time.Time) error {
		if appt.Status == model.StatusCancelled {
			return ErrAlreadyCancelled
		}
		if appt.StartTime.Before(now) {
			return ErrPastAppointment
		}
		if appt.StartTime.Sub(now) < NoticePeriod {
			return ErrNoticePeriod
		}
		return nil
	})
}

func (s *Service) cancel(
	ctx context.Context,
	load func(context.Context, pgx.Tx) (model.Appointment, error),
	check func(model.Appointment, time.Time) error,
) (model.Appointment, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := load(ctx, tx)
	if err != nil {
		if s.isNotFound(err) {
			return model.Appointment{}, ErrNotFound
		}
		return model.Appointment{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	now := s.clock().In(s.loc)
	if check != nil {
		if err := check(appt, now); err != nil {
			return model.Appointment{}, err
		}
	} else if appt.Status == model.StatusCancelled {
		return appt, nil
	}

	if appt.GoogleEventID != nil {
		if err := s.feed.DeleteEvent(ctx, *appt.GoogleEventID); err != nil {
			s.logger.Warn("external calendar delete failed", "appointment_id", appt.ID, "err", err)
		}
	}

	if err := s.store.MarkCancelled(ctx, tx, appt.ID); err != nil {
		return model.Appointment{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	appt.Status = model.StatusCancelled
	if err := s.insertEvent(ctx, tx, outbox.EventCancelled, appt); err != nil {
		return model.Appointment{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	if err := s.mailer.SendCancellation(appt); err != nil {
		s.logger.Warn("cancellation email failed", "appointment_id", appt.ID, "err", err)
	}
	if cfg, err := s.settings.Get(ctx); err == nil {
		if err := s.mailer.SendAdminCancellation(appt, cfg.AdminEmail); err != nil {
			s.logger.Warn("admin cancellation notice failed", "appointment_id", appt.ID, "err", err)
		}
	}
	return appt, nil
}

// GetByToken returns the restricted projection shown on the
// cancellation confirmation screen. The token is the sole capability:
// only an exact match resolves.
func (s *Service) GetByToken(ctx context.Context, token string) (model.Projection, error) {
	appt, err := s.store.LookupByToken(ctx, token)
	if err != nil {
		if s.isNotFound(err) {
			return model.Projection{}, ErrNotFound
		}
		return model.Projection{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return model.Projection{
		ID:           appt.ID,
		PatientName:  appt.PatientName,
		PatientEmail: appt.PatientEmail,
		StartTime:    appt.StartTime,
		EndTime:      appt.EndTime,
		Reason:       appt.Reason,
		Status:       appt.Status,
	}, nil
}

func (s *Service) insertEvent(ctx context.Context, tx pgx.Tx, eventType string, appt model.Appointment) error {
	payload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"start_time":     appt.StartTime.UTC().Format(time.RFC3339),
		"end_time":       appt.EndTime.UTC().Format(time.RFC3339),
		"reason":         appt.Reason,
		"status":         appt.Status,
	})
	if err != nil {
		return err
	}
	return s.events.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     eventType,
		Payload:       payload,
	})
}

// newCancellationToken returns 32 random bytes, hex-encoded.
func newCancellationToken() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
