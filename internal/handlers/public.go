// Package handlers exposes the booking API over plain net/http. The
// public surface is unauthenticated and patient-facing, so every error
// body carries a French message suitable for direct display.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jbarrault/cabinet-rdv/internal/availability"
	"github.com/jbarrault/cabinet-rdv/internal/booking"
	"github.com/jbarrault/cabinet-rdv/internal/model"
)

type BookingService interface {
	Create(ctx context.Context, req booking.CreateRequest) (model.Appointment, error)
	CancelByToken(ctx context.Context, token string) (model.Appointment, error)
	GetByToken(ctx context.Context, token string) (model.Projection, error)
}

type SlotLister interface {
	DaySlots(ctx context.Context, day time.Time, cfg availability.Config, now time.Time) []string
}

type SettingsReader interface {
	Get(ctx context.Context) (model.Settings, error)
}

type PublicHandler struct {
	booking  BookingService
	slots    SlotLister
	settings SettingsReader
	logger   *slog.Logger
	loc      *time.Location
	clock    func() time.Time
}

func NewPublicHandler(bookingSvc BookingService, slots SlotLister, settings SettingsReader, logger *slog.Logger, loc *time.Location) *PublicHandler {
	return &PublicHandler{
		booking:  bookingSvc,
		slots:    slots,
		settings: settings,
		logger:   logger,
		loc:      loc,
		clock:    time.Now,
	}
}

type slotsResponse struct {
	Date  string   `json:"date"`
	Slots []string `json:"slots"`
}

type bookRequest struct {
	PatientName  string `json:"patient_name"`
	PatientEmail string `json:"patient_email"`
	PatientPhone string `json:"patient_phone"`
	Reason       string `json:"reason"`
	Date         string `json:"date"`
	Time         string `json:"time"`
}

type bookResponse struct {
	AppointmentID     string `json:"appointment_id"`
	Date              string `json:"date"`
	Time              string `json:"time"`
	Status            string `json:"status"`
	CancellationToken string `json:"cancellation_token"`
}

type appointmentView struct {
	AppointmentID string `json:"appointment_id"`
	PatientName   string `json:"patient_name"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	Reason        string `json:"reason,omitempty"`
	Status        string `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

const maxBodyBytes = 1 << 20

// decodeJSON reads a bounded JSON body. On failure it writes a 400 and
// returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "corps de requête invalide")
		return false
	}
	return true
}

// Slots lists the free HH:mm starts for one day.
func (h *PublicHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "méthode non autorisée")
		return
	}

	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	day, err := time.ParseInLocation("2006-01-02", dateStr, h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date invalide, format attendu AAAA-MM-JJ")
		return
	}

	cfg, err := h.settings.Get(r.Context())
	if err != nil {
		h.logger.Error("settings load failed", "err", err)
		writeError(w, http.StatusInternalServerError, "erreur interne")
		return
	}

	slots := h.slots.DaySlots(r.Context(), day, availabilityConfig(cfg), h.clock().In(h.loc))
	if slots == nil {
		slots = []string{}
	}
	writeJSON(w, http.StatusOK, slotsResponse{Date: dateStr, Slots: slots})
}

func (h *PublicHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "méthode non autorisée")
		return
	}

	var req bookRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	appt, err := h.booking.Create(r.Context(), booking.CreateRequest{
		PatientName:  strings.TrimSpace(req.PatientName),
		PatientEmail: strings.TrimSpace(req.PatientEmail),
		PatientPhone: strings.TrimSpace(req.PatientPhone),
		Reason:       strings.TrimSpace(req.Reason),
		Date:         strings.TrimSpace(req.Date),
		Time:         strings.TrimSpace(req.Time),
	})
	if err != nil {
		writeBookingError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, bookResponse{
		AppointmentID:     appt.ID,
		Date:              appt.StartTime.In(h.loc).Format("2006-01-02"),
		Time:              appt.StartTime.In(h.loc).Format("15:04"),
		Status:            appt.Status,
		CancellationToken: appt.CancellationToken,
	})
}

// Cancel serves the token-addressed cancellation page: GET shows the
// appointment behind the token, POST cancels it.
func (h *PublicHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.URL.Path, "/api/v1/public/cancel/")
	if token == "" || strings.Contains(token, "/") {
		writeError(w, http.StatusNotFound, "rendez-vous introuvable")
		return
	}

	switch r.Method {
	case http.MethodGet:
		proj, err := h.booking.GetByToken(r.Context(), token)
		if err != nil {
			writeBookingError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, appointmentView{
			AppointmentID: proj.ID,
			PatientName:   proj.PatientName,
			Date:          proj.StartTime.In(h.loc).Format("2006-01-02"),
			Time:          proj.StartTime.In(h.loc).Format("15:04"),
			Reason:        proj.Reason,
			Status:        proj.Status,
		})
	case http.MethodPost:
		appt, err := h.booking.CancelByToken(r.Context(), token)
		if err != nil {
			writeBookingError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, appointmentView{
			AppointmentID: appt.ID,
			PatientName:   appt.PatientName,
			Date:          appt.StartTime.In(h.loc).Format("2006-01-02"),
			Time:          appt.StartTime.In(h.loc).Format("15:04"),
			Status:        appt.Status,
		})
	default:
		writeError(w, http.StatusMethodNotAllowed, "méthode non autorisée")
	}
}

func writeBookingError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, booking.ErrMissingFields):
		writeError(w, http.StatusBadRequest, "nom, email et téléphone sont obligatoires")
	case errors.Is(err, booking.ErrInvalidDateTime):
		writeError(w, http.StatusBadRequest, "date ou heure invalide")
	case errors.Is(err, booking.ErrPastSlot):
		writeError(w, http.StatusBadRequest, "ce créneau est déjà passé")
	case errors.Is(err, booking.ErrBeyondHorizon):
		writeError(w, http.StatusBadRequest, "les réservations sont ouvertes jusqu'à 3 mois à l'avance")
	case errors.Is(err, booking.ErrSlotTaken):
		writeError(w, http.StatusConflict, "ce créneau vient d'être réservé, merci d'en choisir un autre")
	case errors.Is(err, booking.ErrNotFound):
		writeError(w, http.StatusNotFound, "rendez-vous introuvable")
	case errors.Is(err, booking.ErrAlreadyCancelled):
		writeError(w, http.StatusConflict, "ce rendez-vous est déjà annulé")
	case errors.Is(err, booking.ErrPastAppointment):
		writeError(w, http.StatusBadRequest, "ce rendez-vous est déjà passé")
	case errors.Is(err, booking.ErrNoticePeriod):
		writeError(w, http.StatusBadRequest, "l'annulation en ligne n'est possible que jusqu'à 24h avant le rendez-vous, merci de contacter le cabinet")
	default:
		logger.Error("booking operation failed", "err", err)
		writeError(w, http.StatusInternalServerError, "erreur interne")
	}
}

func availabilityConfig(s model.Settings) availability.Config {
	return availability.Config{
		WorkStartHour: s.WorkStartHour,
		WorkEndHour:   s.WorkEndHour,
		SlotDuration:  time.Duration(s.SlotDurationMinutes) * time.Minute,
		LunchEnabled:  s.LunchBreakEnabled,
		LunchStart:    s.LunchBreakStart,
		LunchEnd:      s.LunchBreakEnd,
	}
}
