package scheduler

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tazhate/eventme/config"
	"github.com/tazhate/eventme/internal/domain"
	"github.com/tazhate/eventme/internal/notify"
	"github.com/tazhate/eventme/internal/service"
	"github.com/tazhate/eventme/internal/storage"
)

type recordingSender struct {
	mu    sync.Mutex
	texts []string
}

func (r *recordingSender) SendMessage(chatID int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return nil
}

type fakePoller struct {
	fingerprint string
	paths       []string
}

func (p *fakePoller) Fingerprint(ctx context.Context, calendarPaths ...string) (string, error) {
	p.paths = calendarPaths
	return p.fingerprint, nil
}

func newTestScheduler(t *testing.T) (*Scheduler, *service.ReminderManager) {
	t.Helper()
	ctx := context.Background()

	st, err := storage.New(filepath.Join(t.TempDir(), "eventme.db"), nil)
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	for _, typ := range []domain.EntityType{domain.EntityEvent, domain.EntityReminder} {
		if err := st.SetAccessStatus(ctx, typ, domain.StatusAuthorized); err != nil {
			t.Fatal(err)
		}
	}

	access := service.NewAccessService(st)
	opts := service.ManagerOptions{AutoCreate: true, Timezone: time.UTC}
	events := service.NewEventManager(access, st, opts)
	reminders := service.NewReminderManager(access, st, opts)
	if _, err := events.RequestAccess(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := reminders.RequestAccess(ctx); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{OwnerTelegramID: 1, Timezone: time.UTC, AlarmSchedule: "* * * * *", PollInterval: time.Minute}
	return New(cfg, events, reminders), reminders
}

func addReminder(t *testing.T, m *service.ReminderManager, title string, alarm time.Time) *domain.Reminder {
	t.Helper()
	ctx := context.Background()
	r, err := m.CreateReminder(ctx)
	if err != nil || r == nil {
		t.Fatalf("CreateReminder = %v, %v", r, err)
	}
	r.Title = title
	r.AddAlarm(alarm)
	if err := m.SaveReminder(ctx, r); err != nil {
		t.Fatalf("SaveReminder: %v", err)
	}
	return r
}

func TestCheckAlarms(t *testing.T) {
	ctx := context.Background()
	s, reminders := newTestScheduler(t)
	sender := &recordingSender{}
	s.SetSender(sender)

	now := time.Date(2024, 1, 1, 18, 0, 30, 0, time.UTC)
	s.now = func() time.Time { return now }

	addReminder(t, reminders, "Call mom", time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC))
	addReminder(t, reminders, "Later", time.Date(2024, 1, 1, 19, 0, 0, 0, time.UTC))
	done := addReminder(t, reminders, "Done already", time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC))
	if err := reminders.ToggleCompleted(ctx, done); err != nil {
		t.Fatal(err)
	}

	s.checkAlarms(ctx)
	if len(sender.texts) != 1 || !strings.Contains(sender.texts[0], "Call mom") {
		t.Fatalf("sent = %q, want only Call mom", sender.texts)
	}

	// The same alarm is not sent twice
	s.mu.Lock()
	s.lastCheck = time.Time{}
	s.mu.Unlock()
	s.checkAlarms(ctx)
	if len(sender.texts) != 1 {
		t.Errorf("sent %d messages, want 1", len(sender.texts))
	}

	now = time.Date(2024, 1, 1, 19, 0, 10, 0, time.UTC)
	s.checkAlarms(ctx)
	if len(sender.texts) != 2 || !strings.Contains(sender.texts[1], "Later") {
		t.Errorf("sent = %q", sender.texts)
	}
}

func TestCheckAlarmsWithoutSender(t *testing.T) {
	s, reminders := newTestScheduler(t)
	now := time.Date(2024, 1, 1, 18, 0, 30, 0, time.UTC)
	s.now = func() time.Time { return now }
	addReminder(t, reminders, "Call mom", time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC))

	s.checkAlarms(context.Background())
	if !s.lastCheck.IsZero() {
		t.Error("alarms consumed without a sender")
	}
}

func TestPollChanges(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t)
	changes := notify.NewCenter()
	signals, unsubscribe := changes.Subscribe()
	defer unsubscribe()

	poller := &fakePoller{fingerprint: "a"}
	s.SetPoller(poller, changes)

	s.pollChanges(ctx)
	if len(poller.paths) != 2 {
		t.Errorf("polled %v, want both calendars", poller.paths)
	}
	select {
	case <-signals:
		t.Fatal("baseline poll published a change")
	default:
	}

	s.pollChanges(ctx)
	select {
	case <-signals:
		t.Fatal("unchanged poll published a change")
	default:
	}

	poller.fingerprint = "b"
	s.pollChanges(ctx)
	select {
	case <-signals:
	default:
		t.Error("changed fingerprint did not publish")
	}
}
