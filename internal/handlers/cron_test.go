package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jbarrault/cabinet-rdv/internal/reminder"
)

type fakeRunner struct {
	result reminder.Result
	err    error
	runs   int
}

func (f *fakeRunner) Run(context.Context) (reminder.Result, error) {
	f.runs++
	return f.result, f.err
}

func newCronRequest(secret string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cron/reminders", nil)
	if secret != "" {
		req.Header.Set("Authorization", "Bearer "+secret)
	}
	return req
}

func TestCronReminders(t *testing.T) {
	runner := &fakeRunner{result: reminder.Result{Scanned: 3, Sent: 2, Failed: 1}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewCronHandler(runner, "cron-secret", logger)

	rw := httptest.NewRecorder()
	h.Reminders(rw, newCronRequest("cron-secret"))
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rw.Code, rw.Body)
	}
	if runner.runs != 1 {
		t.Fatalf("expected 1 run, got %d", runner.runs)
	}
	if !strings.Contains(rw.Body.String(), `"sent":2`) {
		t.Fatalf("expected sweep result in body, got %s", rw.Body)
	}
}

func TestCronReminders_WrongSecret(t *testing.T) {
	runner := &fakeRunner{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewCronHandler(runner, "cron-secret", logger)

	for _, secret := range []string{"", "wrong"} {
		rw := httptest.NewRecorder()
		h.Reminders(rw, newCronRequest(secret))
		if rw.Code != http.StatusUnauthorized {
			t.Fatalf("secret %q: expected 401, got %d", secret, rw.Code)
		}
	}
	if runner.runs != 0 {
		t.Fatal("sweep must not run without the right secret")
	}
}

func TestCronReminders_DisabledWithoutSecret(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewCronHandler(&fakeRunner{}, "", logger)

	rw := httptest.NewRecorder()
	h.Reminders(rw, newCronRequest("anything"))
	if rw.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when no secret configured, got %d", rw.Code)
	}
}

func TestCronReminders_SweepError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewCronHandler(&fakeRunner{err: errors.New("db down")}, "cron-secret", logger)

	rw := httptest.NewRecorder()
	h.Reminders(rw, newCronRequest("cron-secret"))
	if rw.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rw.Code)
	}
}

func TestCronReminders_MethodNotAllowed(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewCronHandler(&fakeRunner{}, "cron-secret", logger)

	rw := httptest.NewRecorder()
	h.Reminders(rw, httptest.NewRequest(http.MethodGet, "/api/v1/cron/reminders", nil))
	if rw.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rw.Code)
	}
}
