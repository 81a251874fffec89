package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/jbarrault/cabinet-rdv/internal/booking"
	"github.com/jbarrault/cabinet-rdv/internal/model"
	"github.com/jbarrault/cabinet-rdv/libs/auth"
)

type fakeAdminBooking struct {
	cancelErr error
	cancelled []string
}

func (f *fakeAdminBooking) Cancel(_ context.Context, id string) (model.Appointment, error) {
	if f.cancelErr != nil {
		return model.Appointment{}, f.cancelErr
	}
	f.cancelled = append(f.cancelled, id)
	appt := testAppointment()
	appt.ID = id
	appt.Status = model.StatusCancelled
	return appt, nil
}

type fakeLister struct {
	appts []model.Appointment
}

func (f *fakeLister) ListAll(context.Context) ([]model.Appointment, error) { return f.appts, nil }

type fakeSettingsStore struct {
	settings model.Settings
	saved    *model.Settings
}

func (f *fakeSettingsStore) Get(context.Context) (model.Settings, error) { return f.settings, nil }

func (f *fakeSettingsStore) Upsert(_ context.Context, s model.Settings) error {
	f.saved = &s
	return nil
}

type fakeInvalidator struct {
	calls int
}

func (f *fakeInvalidator) Invalidate() { f.calls++ }

const (
	testAdminEmail    = "dr.martin@cabinet-martin.fr"
	testAdminPassword = "s3cret-consultation"
	testSecret        = "test-signing-secret"
)

func newAdminHandler(t *testing.T, bookingSvc *fakeAdminBooking, lister *fakeLister, settings *fakeSettingsStore, cache *fakeInvalidator) *AdminHandler {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt failed: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAdminHandler(bookingSvc, lister, settings, cache,
		AdminCredentials{Email: testAdminEmail, PasswordHash: string(hash)},
		testSecret, time.Hour, logger, time.UTC)
}

func loginBody(email, password string) *strings.Reader {
	b, _ := json.Marshal(loginRequest{Email: email, Password: password})
	return strings.NewReader(string(b))
}

func TestLogin(t *testing.T) {
	h := newAdminHandler(t, &fakeAdminBooking{}, &fakeLister{}, &fakeSettingsStore{}, nil)

	rw := httptest.NewRecorder()
	h.Login(rw, httptest.NewRequest(http.MethodPost, "/api/v1/admin/login", loginBody(testAdminEmail, testAdminPassword)))
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rw.Code, rw.Body)
	}
	var resp loginResponse
	if err := json.NewDecoder(rw.Body).Decode(&resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	claims, err := auth.ParseAndVerifyHS256(resp.AccessToken, testSecret)
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if claims.Role != "admin" || claims.Sub != testAdminEmail {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestLogin_Rejections(t *testing.T) {
	h := newAdminHandler(t, &fakeAdminBooking{}, &fakeLister{}, &fakeSettingsStore{}, nil)
	cases := []struct {
		name     string
		email    string
		password string
		want     int
	}{
		{"wrong password", testAdminEmail, "nope", http.StatusUnauthorized},
		{"wrong email", "intrus@example.fr", testAdminPassword, http.StatusUnauthorized},
		{"empty", "", "", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rw := httptest.NewRecorder()
			h.Login(rw, httptest.NewRequest(http.MethodPost, "/api/v1/admin/login", loginBody(tc.email, tc.password)))
			if rw.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rw.Code)
			}
		})
	}
}

func TestRequireAuth(t *testing.T) {
	h := newAdminHandler(t, &fakeAdminBooking{}, &fakeLister{}, &fakeSettingsStore{}, nil)
	protected := h.RequireAuth(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rw := httptest.NewRecorder()
	protected(rw, httptest.NewRequest(http.MethodGet, "/api/v1/admin/appointments", nil))
	if rw.Code != http.StatusUnauthorized {
		t.Fatalf("no header: expected 401, got %d", rw.Code)
	}

	token, err := auth.SignHS256(auth.Claims{
		Sub:  testAdminEmail,
		Role: "admin",
		Iat:  time.Now().Unix(),
		Exp:  time.Now().Add(time.Hour).Unix(),
	}, testSecret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/appointments", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rw = httptest.NewRecorder()
	protected(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("valid token: expected 200, got %d", rw.Code)
	}

	expired, err := auth.SignHS256(auth.Claims{
		Sub:  testAdminEmail,
		Role: "admin",
		Iat:  time.Now().Add(-2 * time.Hour).Unix(),
		Exp:  time.Now().Add(-time.Hour).Unix(),
	}, testSecret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/v1/admin/appointments", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	rw = httptest.NewRecorder()
	protected(rw, req)
	if rw.Code != http.StatusUnauthorized {
		t.Fatalf("expired token: expected 401, got %d", rw.Code)
	}
}

func TestAppointments_List(t *testing.T) {
	appt := testAppointment()
	h := newAdminHandler(t, &fakeAdminBooking{}, &fakeLister{appts: []model.Appointment{appt}}, &fakeSettingsStore{}, nil)

	rw := httptest.NewRecorder()
	h.Appointments(rw, httptest.NewRequest(http.MethodGet, "/api/v1/admin/appointments", nil))
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	var resp struct {
		Appointments []adminAppointmentItem `json:"appointments"`
	}
	if err := json.NewDecoder(rw.Body).Decode(&resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(resp.Appointments) != 1 || resp.Appointments[0].PatientEmail != appt.PatientEmail {
		t.Fatalf("unexpected list %+v", resp.Appointments)
	}
}

func TestCancelAppointment(t *testing.T) {
	svc := &fakeAdminBooking{}
	h := newAdminHandler(t, svc, &fakeLister{}, &fakeSettingsStore{}, nil)

	rw := httptest.NewRecorder()
	h.CancelAppointment(rw, httptest.NewRequest(http.MethodPost, "/api/v1/admin/appointments/cancel",
		strings.NewReader(`{"appointment_id":"appt-7"}`)))
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rw.Code, rw.Body)
	}
	if len(svc.cancelled) != 1 || svc.cancelled[0] != "appt-7" {
		t.Fatalf("unexpected cancel calls %v", svc.cancelled)
	}
}

func TestCancelAppointment_NotFound(t *testing.T) {
	h := newAdminHandler(t, &fakeAdminBooking{cancelErr: booking.ErrNotFound}, &fakeLister{}, &fakeSettingsStore{}, nil)

	rw := httptest.NewRecorder()
	h.CancelAppointment(rw, httptest.NewRequest(http.MethodPost, "/api/v1/admin/appointments/cancel",
		strings.NewReader(`{"appointment_id":"nope"}`)))
	if rw.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rw.Code)
	}
}

func TestSettings_RoundTrip(t *testing.T) {
	store := &fakeSettingsStore{settings: model.DefaultSettings()}
	cache := &fakeInvalidator{}
	h := newAdminHandler(t, &fakeAdminBooking{}, &fakeLister{}, store, cache)

	rw := httptest.NewRecorder()
	h.Settings(rw, httptest.NewRequest(http.MethodGet, "/api/v1/admin/settings", nil))
	if rw.Code != http.StatusOK {
		t.Fatalf("GET: expected 200, got %d", rw.Code)
	}
	var payload settingsPayload
	if err := json.NewDecoder(rw.Body).Decode(&payload); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if payload.WorkStartHour != 9 || payload.LunchBreakStart != "12:00" {
		t.Fatalf("unexpected defaults %+v", payload)
	}

	payload.WorkEndHour = 18
	payload.GoogleCalendarID = "cabinet@group.calendar.google.com"
	b, _ := json.Marshal(payload)
	rw = httptest.NewRecorder()
	h.Settings(rw, httptest.NewRequest(http.MethodPut, "/api/v1/admin/settings", strings.NewReader(string(b))))
	if rw.Code != http.StatusOK {
		t.Fatalf("PUT: expected 200, got %d: %s", rw.Code, rw.Body)
	}
	if store.saved == nil || store.saved.WorkEndHour != 18 {
		t.Fatalf("settings not persisted: %+v", store.saved)
	}
	if cache.calls != 1 {
		t.Fatalf("calendar cache must be invalidated on save, got %d calls", cache.calls)
	}
}

func TestSettings_Validation(t *testing.T) {
	h := newAdminHandler(t, &fakeAdminBooking{}, &fakeLister{}, &fakeSettingsStore{}, nil)
	cases := []string{
		`{"work_start_hour":17,"work_end_hour":9,"slot_duration_minutes":30}`,
		`{"work_start_hour":9,"work_end_hour":17,"slot_duration_minutes":0}`,
		`{"work_start_hour":9,"work_end_hour":17,"slot_duration_minutes":30,"lunch_break_enabled":true,"lunch_break_start":"14:00","lunch_break_end":"12:00"}`,
		`{"work_start_hour":9,"work_end_hour":17,"slot_duration_minutes":30,"lunch_break_enabled":true,"lunch_break_start":"noon","lunch_break_end":"14:00"}`,
	}
	for _, body := range cases {
		rw := httptest.NewRecorder()
		h.Settings(rw, httptest.NewRequest(http.MethodPut, "/api/v1/admin/settings", strings.NewReader(body)))
		if rw.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, rw.Code)
		}
	}
}
