package handlers

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jbarrault/cabinet-rdv/internal/reminder"
)

type ReminderRunner interface {
	Run(ctx context.Context) (reminder.Result, error)
}

// CronHandler triggers scheduled jobs over HTTP. The caller (an
// external scheduler) authenticates with a shared secret; the endpoint
// is disabled when no secret is configured.
type CronHandler struct {
	reminders ReminderRunner
	secret    string
	logger    *slog.Logger
}

func NewCronHandler(reminders ReminderRunner, secret string, logger *slog.Logger) *CronHandler {
	return &CronHandler{reminders: reminders, secret: secret, logger: logger}
}

func (h *CronHandler) Reminders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "méthode non autorisée")
		return
	}
	if h.secret == "" {
		writeError(w, http.StatusNotFound, "non disponible")
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.secret)) != 1 {
		writeError(w, http.StatusUnauthorized, "authentification requise")
		return
	}

	res, err := h.reminders.Run(r.Context())
	if err != nil {
		h.logger.Error("reminder sweep failed", "err", err)
		writeError(w, http.StatusInternalServerError, "erreur interne")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
