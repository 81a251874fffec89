package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jbarrault/cabinet-rdv/internal/availability"
	"github.com/jbarrault/cabinet-rdv/internal/model"
	"github.com/jbarrault/cabinet-rdv/libs/db"
)

const appointmentColumns = `
	id, start_time, end_time, patient_name, patient_email, patient_phone,
	COALESCE(reason, ''), google_event_id, cancellation_token, status,
	reminder_sent, created_at`

type AppointmentRepository struct {
	pool *db.Pool
}

func NewAppointmentRepository(pool *db.Pool) *AppointmentRepository {
	return &AppointmentRepository{pool: pool}
}

func (r *AppointmentRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *AppointmentRepository) Create(ctx context.Context, tx pgx.Tx, appt *model.Appointment) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO appointments
			(id, start_time, end_time, patient_name, patient_email, patient_phone,
			 reason, google_event_id, cancellation_token, status, reminder_sent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, false)
	`, appt.ID, appt.StartTime, appt.EndTime, appt.PatientName, appt.PatientEmail,
		appt.PatientPhone, appt.Reason, appt.GoogleEventID, appt.CancellationToken, appt.Status)
	return err
}

func (r *AppointmentRepository) GetByID(ctx context.Context, tx pgx.Tx, id string) (model.Appointment, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanAppointment(row)
}

func (r *AppointmentRepository) GetByToken(ctx context.Context, tx pgx.Tx, token string) (model.Appointment, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE cancellation_token = $1
		FOR UPDATE
	`, token)
	return scanAppointment(row)
}

// LookupByToken is the read-only variant used to render the
// cancellation confirmation screen.
func (r *AppointmentRepository) LookupByToken(ctx context.Context, token string) (model.Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE cancellation_token = $1
	`, token)
	return scanAppointment(row)
}

func (r *AppointmentRepository) MarkCancelled(ctx context.Context, tx pgx.Tx, id string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = $2
		WHERE id = $1
	`, id, model.StatusCancelled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *AppointmentRepository) ListAll(ctx context.Context) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		ORDER BY start_time ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// DueForReminder selects confirmed, unreminded appointments starting in
// [dayStart, dayEnd).
func (r *AppointmentRepository) DueForReminder(ctx context.Context, dayStart, dayEnd time.Time) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = $1
			AND reminder_sent = false
			AND start_time >= $2
			AND start_time < $3
		ORDER BY start_time ASC
	`, model.StatusConfirmed, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAppointments(rows)
}

func (r *AppointmentRepository) MarkReminderSent(ctx context.Context, tx pgx.Tx, id string) error {
	_, err := tx.Exec(ctx, `
		UPDATE appointments
		SET reminder_sent = true
		WHERE id = $1
	`, id)
	return err
}

func (r *AppointmentRepository) Name() string { return "appointment-store" }

// BusyIntervals makes the repository a busy-interval source for the
// allocator: confirmed appointments intersecting [from, to).
func (r *AppointmentRepository) BusyIntervals(ctx context.Context, from, to time.Time) ([]availability.Interval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT start_time, end_time
		FROM appointments
		WHERE status = $1
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
	`, model.StatusConfirmed, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intervals []availability.Interval
	for rows.Next() {
		var iv availability.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		intervals = append(intervals, iv)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return intervals, nil
}

// IsConflict reports a unique-index violation, which here means the
// slot start was already taken by a concurrent confirmed booking.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	err := row.Scan(
		&appt.ID,
		&appt.StartTime,
		&appt.EndTime,
		&appt.PatientName,
		&appt.PatientEmail,
		&appt.PatientPhone,
		&appt.Reason,
		&appt.GoogleEventID,
		&appt.CancellationToken,
		&appt.Status,
		&appt.ReminderSent,
		&appt.CreatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func scanAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	var appts []model.Appointment
	for rows.Next() {
		var appt model.Appointment
		if err := rows.Scan(
			&appt.ID,
			&appt.StartTime,
			&appt.EndTime,
			&appt.PatientName,
			&appt.PatientEmail,
			&appt.PatientPhone,
			&appt.Reason,
			&appt.GoogleEventID,
			&appt.CancellationToken,
			&appt.Status,
			&appt.ReminderSent,
			&appt.CreatedAt,
		); err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}
