package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/jbarrault/cabinet-rdv/internal/model"
	"github.com/jbarrault/cabinet-rdv/libs/db"
)

// SettingsRepository reads and writes the single cabinet settings row.
// A missing row yields the historical defaults.
type SettingsRepository struct {
	pool *db.Pool
}

func NewSettingsRepository(pool *db.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

func (r *SettingsRepository) Get(ctx context.Context) (model.Settings, error) {
	var s model.Settings
	var reasonsJSON []byte
	err := r.pool.QueryRow(ctx, `
		SELECT id, work_start_hour, work_end_hour, slot_duration_minutes,
			lunch_break_enabled, lunch_break_start, lunch_break_end,
			COALESCE(google_calendar_id, 'primary'), COALESCE(admin_email, ''),
			appointment_reasons, updated_at
		FROM settings
		ORDER BY id
		LIMIT 1
	`).Scan(
		&s.ID,
		&s.WorkStartHour,
		&s.WorkEndHour,
		&s.SlotDurationMinutes,
		&s.LunchBreakEnabled,
		&s.LunchBreakStart,
		&s.LunchBreakEnd,
		&s.GoogleCalendarID,
		&s.AdminEmail,
		&reasonsJSON,
		&s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.DefaultSettings(), nil
	}
	if err != nil {
		return model.Settings{}, err
	}
	if len(reasonsJSON) > 0 {
		if err := json.Unmarshal(reasonsJSON, &s.AppointmentReasons); err != nil {
			s.AppointmentReasons = model.DefaultSettings().AppointmentReasons
		}
	}
	return s, nil
}

func (r *SettingsRepository) Upsert(ctx context.Context, s model.Settings) error {
	reasonsJSON, err := json.Marshal(s.AppointmentReasons)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO settings
			(id, work_start_hour, work_end_hour, slot_duration_minutes,
			 lunch_break_enabled, lunch_break_start, lunch_break_end,
			 google_calendar_id, admin_email, appointment_reasons, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (id) DO UPDATE SET
			work_start_hour = EXCLUDED.work_start_hour,
			work_end_hour = EXCLUDED.work_end_hour,
			slot_duration_minutes = EXCLUDED.slot_duration_minutes,
			lunch_break_enabled = EXCLUDED.lunch_break_enabled,
			lunch_break_start = EXCLUDED.lunch_break_start,
			lunch_break_end = EXCLUDED.lunch_break_end,
			google_calendar_id = EXCLUDED.google_calendar_id,
			admin_email = EXCLUDED.admin_email,
			appointment_reasons = EXCLUDED.appointment_reasons,
			updated_at = now()
	`, s.WorkStartHour, s.WorkEndHour, s.SlotDurationMinutes,
		s.LunchBreakEnabled, s.LunchBreakStart, s.LunchBreakEnd,
		s.GoogleCalendarID, s.AdminEmail, reasonsJSON)
	return err
}

// CalendarID implements the calendar feed's id resolver against the
// stored settings, falling back to "primary".
func (r *SettingsRepository) CalendarID(ctx context.Context) string {
	s, err := r.Get(ctx)
	if err != nil || s.GoogleCalendarID == "" {
		return "primary"
	}
	return s.GoogleCalendarID
}
