package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/jbarrault/cabinet-rdv/internal/model"
	"github.com/jbarrault/cabinet-rdv/libs/auth"
)

type AdminBookingService interface {
	Cancel(ctx context.Context, id string) (model.Appointment, error)
}

type AppointmentLister interface {
	ListAll(ctx context.Context) ([]model.Appointment, error)
}

type SettingsStore interface {
	Get(ctx context.Context) (model.Settings, error)
	Upsert(ctx context.Context, s model.Settings) error
}

// CacheInvalidator drops the cached Google Calendar client so a
// settings change takes effect on the next call.
type CacheInvalidator interface {
	Invalidate()
}

// AdminCredentials is the single operator account. PasswordHash is a
// bcrypt hash, never the raw password.
type AdminCredentials struct {
	Email        string
	PasswordHash string
}

type AdminHandler struct {
	booking  AdminBookingService
	list     AppointmentLister
	settings SettingsStore
	cache    CacheInvalidator
	creds    AdminCredentials
	secret   string
	tokenTTL time.Duration
	logger   *slog.Logger
	loc      *time.Location
	clock    func() time.Time
}

func NewAdminHandler(
	bookingSvc AdminBookingService,
	list AppointmentLister,
	settings SettingsStore,
	cache CacheInvalidator,
	creds AdminCredentials,
	secret string,
	tokenTTL time.Duration,
	logger *slog.Logger,
	loc *time.Location,
) *AdminHandler {
	return &AdminHandler{
		booking:  bookingSvc,
		list:     list,
		settings: settings,
		cache:    cache,
		creds:    creds,
		secret:   secret,
		tokenTTL: tokenTTL,
		logger:   logger,
		loc:      loc,
		clock:    time.Now,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type adminAppointmentItem struct {
	AppointmentID string `json:"appointment_id"`
	PatientName   string `json:"patient_name"`
	PatientEmail  string `json:"patient_email"`
	PatientPhone  string `json:"patient_phone"`
	Reason        string `json:"reason,omitempty"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	Status        string `json:"status"`
	ReminderSent  bool   `json:"reminder_sent"`
	CreatedAt     string `json:"created_at"`
}

type adminCancelRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type settingsPayload struct {
	WorkStartHour       int      `json:"work_start_hour"`
	WorkEndHour         int      `json:"work_end_hour"`
	SlotDurationMinutes int      `json:"slot_duration_minutes"`
	LunchBreakEnabled   bool     `json:"lunch_break_enabled"`
	LunchBreakStart     string   `json:"lunch_break_start"`
	LunchBreakEnd       string   `json:"lunch_break_end"`
	GoogleCalendarID    string   `json:"google_calendar_id"`
	AdminEmail          string   `json:"admin_email"`
	AppointmentReasons  []string `json:"appointment_reasons"`
}

func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "méthode non autorisée")
		return
	}

	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email et mot de passe requis")
		return
	}
	if !strings.EqualFold(req.Email, h.creds.Email) ||
		bcrypt.CompareHashAndPassword([]byte(h.creds.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "identifiants invalides")
		return
	}

	now := h.clock()
	token, err := auth.SignHS256(auth.Claims{
		Sub:  h.creds.Email,
		Role: "admin",
		Iat:  now.Unix(),
		Exp:  now.Add(h.tokenTTL).Unix(),
	}, h.secret)
	if err != nil {
		h.logger.Error("token signing failed", "err", err)
		writeError(w, http.StatusInternalServerError, "erreur interne")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.tokenTTL.Seconds()),
	})
}

// RequireAuth guards the admin routes with the Bearer token issued by
// Login.
func (h *AdminHandler) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "authentification requise")
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		claims, err := auth.ParseAndVerifyHS256(token, h.secret)
		if err != nil || claims.Role != "admin" {
			writeError(w, http.StatusUnauthorized, "session expirée ou invalide")
			return
		}
		next(w, r)
	}
}

func (h *AdminHandler) Appointments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "méthode non autorisée")
		return
	}

	appts, err := h.list.ListAll(r.Context())
	if err != nil {
		h.logger.Error("appointments list failed", "err", err)
		writeError(w, http.StatusInternalServerError, "erreur interne")
		return
	}

	items := make([]adminAppointmentItem, 0, len(appts))
	for _, appt := range appts {
		items = append(items, adminAppointmentItem{
			AppointmentID: appt.ID,
			PatientName:   appt.PatientName,
			PatientEmail:  appt.PatientEmail,
			PatientPhone:  appt.PatientPhone,
			Reason:        appt.Reason,
			Date:          appt.StartTime.In(h.loc).Format("2006-01-02"),
			Time:          appt.StartTime.In(h.loc).Format("15:04"),
			Status:        appt.Status,
			ReminderSent:  appt.ReminderSent,
			CreatedAt:     appt.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": items})
}

func (h *AdminHandler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "méthode non autorisée")
		return
	}

	var req adminCancelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		writeError(w, http.StatusBadRequest, "appointment_id requis")
		return
	}

	appt, err := h.booking.Cancel(r.Context(), req.AppointmentID)
	if err != nil {
		writeBookingError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"appointment_id": appt.ID,
		"status":         appt.Status,
	})
}

func (h *AdminHandler) Settings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s, err := h.settings.Get(r.Context())
		if err != nil {
			h.logger.Error("settings load failed", "err", err)
			writeError(w, http.StatusInternalServerError, "erreur interne")
			return
		}
		writeJSON(w, http.StatusOK, toSettingsPayload(s))
	case http.MethodPut:
		var req settingsPayload
		if !decodeJSON(w, r, &req) {
			return
		}
		if msg, ok := validateSettings(req); !ok {
			writeError(w, http.StatusBadRequest, msg)
			return
		}
		if err := h.settings.Upsert(r.Context(), fromSettingsPayload(req)); err != nil {
			h.logger.Error("settings save failed", "err", err)
			writeError(w, http.StatusInternalServerError, "erreur interne")
			return
		}
		if h.cache != nil {
			h.cache.Invalidate()
		}
		writeJSON(w, http.StatusOK, req)
	default:
		writeError(w, http.StatusMethodNotAllowed, "méthode non autorisée")
	}
}

func validateSettings(p settingsPayload) (string, bool) {
	if p.WorkStartHour < 0 || p.WorkEndHour > 24 || p.WorkStartHour >= p.WorkEndHour {
		return "horaires de travail invalides", false
	}
	if p.SlotDurationMinutes <= 0 || p.SlotDurationMinutes > 240 {
		return "durée de créneau invalide", false
	}
	if p.LunchBreakEnabled {
		start, err1 := time.Parse("15:04", p.LunchBreakStart)
		end, err2 := time.Parse("15:04", p.LunchBreakEnd)
		if err1 != nil || err2 != nil || !end.After(start) {
			return "pause déjeuner invalide", false
		}
	}
	return "", true
}

func toSettingsPayload(s model.Settings) settingsPayload {
	return settingsPayload{
		WorkStartHour:       s.WorkStartHour,
		WorkEndHour:         s.WorkEndHour,
		SlotDurationMinutes: s.SlotDurationMinutes,
		LunchBreakEnabled:   s.LunchBreakEnabled,
		LunchBreakStart:     s.LunchBreakStart,
		LunchBreakEnd:       s.LunchBreakEnd,
		GoogleCalendarID:    s.GoogleCalendarID,
		AdminEmail:          s.AdminEmail,
		AppointmentReasons:  s.AppointmentReasons,
	}
}

func fromSettingsPayload(p settingsPayload) model.Settings {
	return model.Settings{
		WorkStartHour:       p.WorkStartHour,
		WorkEndHour:         p.WorkEndHour,
		SlotDurationMinutes: p.SlotDurationMinutes,
		LunchBreakEnabled:   p.LunchBreakEnabled,
		LunchBreakStart:     p.LunchBreakStart,
		LunchBreakEnd:       p.LunchBreakEnd,
		GoogleCalendarID:    p.GoogleCalendarID,
		AdminEmail:          p.AdminEmail,
		AppointmentReasons:  p.AppointmentReasons,
	}
}
