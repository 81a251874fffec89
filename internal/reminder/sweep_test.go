package reminder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jbarrault/cabinet-rdv/internal/model"
	"github.com/jbarrault/cabinet-rdv/internal/outbox"
)

type fakeTx struct {
	pgx.Tx
	commits int
}

func (t *fakeTx) Commit(context.Context) error   { t.commits++; return nil }
func (t *fakeTx) Rollback(context.Context) error { return nil }

type fakeStore struct {
	due         []model.Appointment
	dueErr      error
	marked      []string
	markErr     error
	gotDayStart time.Time
	gotDayEnd   time.Time
	tx          fakeTx
}

func (s *fakeStore) Begin(context.Context) (pgx.Tx, error) { return &s.tx, nil }

func (s *fakeStore) DueForReminder(_ context.Context, dayStart, dayEnd time.Time) ([]model.Appointment, error) {
	s.gotDayStart, s.gotDayEnd = dayStart, dayEnd
	return s.due, s.dueErr
}

func (s *fakeStore) MarkReminderSent(_ context.Context, _ pgx.Tx, id string) error {
	if s.markErr != nil {
		return s.markErr
	}
	s.marked = append(s.marked, id)
	return nil
}

type fakeEventLog struct {
	events []outbox.Event
}

func (l *fakeEventLog) Insert(_ context.Context, _ pgx.Tx, evt outbox.Event) error {
	l.events = append(l.events, evt)
	return nil
}

type fakeMailer struct {
	configured bool
	sent       []string
	failFor    map[string]error
}

func (m *fakeMailer) Configured() bool { return m.configured }

func (m *fakeMailer) SendReminder(appt model.Appointment) error {
	if err := m.failFor[appt.ID]; err != nil {
		return err
	}
	m.sent = append(m.sent, appt.ID)
	return nil
}

func appt(id string, start time.Time) model.Appointment {
	return model.Appointment{
		ID:           id,
		StartTime:    start,
		EndTime:      start.Add(30 * time.Minute),
		PatientName:  "Marie Dupont",
		PatientEmail: "marie@example.fr",
		Status:       model.StatusConfirmed,
	}
}

func newSweeper(store *fakeStore, events *fakeEventLog, mailer *fakeMailer, now time.Time) *Sweeper {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewSweeper(store, events, mailer, logger, time.UTC)
	s.clock = func() time.Time { return now }
	return s
}

func TestRun_SendsAndMarks(t *testing.T) {
	now := time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)
	tomorrow := time.Date(2026, time.March, 11, 9, 0, 0, 0, time.UTC)
	store := &fakeStore{due: []model.Appointment{appt("a1", tomorrow), appt("a2", tomorrow.Add(time.Hour))}}
	events := &fakeEventLog{}
	mailer := &fakeMailer{configured: true}

	res, err := newSweeper(store, events, mailer, now).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Scanned != 2 || res.Sent != 2 || res.Failed != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(store.marked) != 2 {
		t.Fatalf("expected 2 rows marked, got %v", store.marked)
	}
	if len(events.events) != 2 || events.events[0].EventType != outbox.EventReminderSent {
		t.Fatalf("expected reminder events, got %+v", events.events)
	}
	if store.tx.commits != 2 {
		t.Fatalf("expected one commit per appointment, got %d", store.tx.commits)
	}
}

func TestRun_WindowIsTomorrowLocalDay(t *testing.T) {
	now := time.Date(2026, time.March, 10, 23, 45, 0, 0, time.UTC)
	store := &fakeStore{}
	_, err := newSweeper(store, &fakeEventLog{}, &fakeMailer{configured: true}, now).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	wantStart := time.Date(2026, time.March, 11, 0, 0, 0, 0, time.UTC)
	if !store.gotDayStart.Equal(wantStart) || !store.gotDayEnd.Equal(wantStart.AddDate(0, 0, 1)) {
		t.Fatalf("window [%s, %s), want tomorrow", store.gotDayStart, store.gotDayEnd)
	}
}

func TestRun_UnconfiguredMailerSkips(t *testing.T) {
	now := time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)
	store := &fakeStore{due: []model.Appointment{appt("a1", now.AddDate(0, 0, 1))}}
	res, err := newSweeper(store, &fakeEventLog{}, &fakeMailer{configured: false}, now).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res != (Result{}) {
		t.Fatalf("expected empty result, got %+v", res)
	}
	if !store.gotDayStart.IsZero() {
		t.Fatal("store must not be queried when the mailer is unconfigured")
	}
}

func TestRun_EmailFailureLeavesRowUnmarked(t *testing.T) {
	now := time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)
	tomorrow := now.AddDate(0, 0, 1)
	store := &fakeStore{due: []model.Appointment{appt("a1", tomorrow), appt("a2", tomorrow)}}
	mailer := &fakeMailer{configured: true, failFor: map[string]error{"a1": errors.New("smtp down")}}

	res, err := newSweeper(store, &fakeEventLog{}, mailer, now).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Sent != 1 || res.Failed != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(store.marked) != 1 || store.marked[0] != "a2" {
		t.Fatalf("only the delivered appointment may be marked, got %v", store.marked)
	}
}

func TestRun_QueryErrorPropagates(t *testing.T) {
	now := time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)
	store := &fakeStore{dueErr: errors.New("connection refused")}
	if _, err := newSweeper(store, &fakeEventLog{}, &fakeMailer{configured: true}, now).Run(context.Background()); err == nil {
		t.Fatal("expected query error to propagate")
	}
}
