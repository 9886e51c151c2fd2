package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/tazhate/eventme/internal/domain"
	"github.com/tazhate/eventme/internal/notify"
)

func newTestStorage(t *testing.T, changes *notify.Center) (*Storage, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "eventme.db")
	st, err := New(path, changes)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st, path
}

func createCalendar(t *testing.T, st *Storage, typ domain.EntityType) *domain.Calendar {
	t.Helper()
	cal := &domain.Calendar{Title: domain.DefaultCalendarTitle, Type: typ}
	if err := st.CreateCalendar(context.Background(), cal); err != nil {
		t.Fatalf("CreateCalendar: %v", err)
	}
	if cal.ID == "" {
		t.Fatal("calendar ID not assigned")
	}
	return cal
}

func TestMigrationsAreIdempotent(t *testing.T) {
	st, path := newTestStorage(t, nil)
	createCalendar(t, st, domain.EntityEvent)
	st.Close()

	again, err := New(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer again.Close()

	cals, err := again.Calendars(context.Background(), domain.EntityEvent)
	if err != nil || len(cals) != 1 {
		t.Errorf("Calendars after reopen = %v, %v", cals, err)
	}
}

func TestCalendarsByType(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStorage(t, nil)

	events := createCalendar(t, st, domain.EntityEvent)
	reminders := createCalendar(t, st, domain.EntityReminder)

	got, err := st.Calendars(ctx, domain.EntityEvent)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != events.ID || got[0].Title != domain.DefaultCalendarTitle {
		t.Errorf("event calendars = %+v", got)
	}

	got, err = st.Calendars(ctx, domain.EntityReminder)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != reminders.ID {
		t.Errorf("reminder lists = %+v", got)
	}
}

func TestEvents(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStorage(t, nil)
	cal := createCalendar(t, st, domain.EntityEvent)

	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	e := domain.NewEvent(cal.ID)
	e.Title = "Dentist"
	e.Start = day.Add(9 * time.Hour)
	e.End = day.Add(10 * time.Hour)
	if err := st.SaveEvent(ctx, e); err != nil {
		t.Fatalf("SaveEvent: %v", err)
	}
	if e.ID == "" || e.IsNew() || e.HasChanges() {
		t.Fatalf("saved event not persisted: %+v", e)
	}

	weekly := domain.NewEvent(cal.ID)
	weekly.Title = "Standup"
	weekly.Start = day.AddDate(0, 0, -14).Add(10 * time.Hour)
	weekly.End = weekly.Start.Add(15 * time.Minute)
	weekly.RRule = "FREQ=WEEKLY"
	weekly.ExDates = []time.Time{weekly.Start.AddDate(0, 0, 7)}
	if err := st.SaveEvent(ctx, weekly); err != nil {
		t.Fatal(err)
	}

	later := domain.NewEvent(cal.ID)
	later.Title = "Next month"
	later.Start = day.AddDate(0, 1, 0)
	later.End = later.Start.Add(time.Hour)
	if err := st.SaveEvent(ctx, later); err != nil {
		t.Fatal(err)
	}

	got, err := st.EventsInRange(ctx, cal.ID, day, day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("EventsInRange: %v", err)
	}
	titles := map[string]bool{}
	for _, ev := range got {
		titles[ev.Title] = true
	}
	if len(got) != 2 || !titles["Dentist"] || !titles["Standup"] {
		t.Errorf("EventsInRange titles = %v, want Dentist and the recurring master", titles)
	}

	stored, err := st.GetEvent(ctx, weekly.ID)
	if err != nil || stored == nil {
		t.Fatalf("GetEvent = %v, %v", stored, err)
	}
	if stored.RRule != "FREQ=WEEKLY" || len(stored.ExDates) != 1 || !stored.ExDates[0].Equal(weekly.ExDates[0]) {
		t.Errorf("recurrence not stored: %q %v", stored.RRule, stored.ExDates)
	}
	if !stored.Start.Equal(weekly.Start) || !stored.End.Equal(weekly.End) {
		t.Errorf("times = %v..%v", stored.Start, stored.End)
	}

	// Upsert keeps one row
	e.Title = "Dentist (moved)"
	e.Start = e.Start.Add(time.Hour)
	e.End = e.End.Add(time.Hour)
	if err := st.SaveEvent(ctx, e); err != nil {
		t.Fatal(err)
	}
	stored, err = st.GetEvent(ctx, e.ID)
	if err != nil || stored == nil || stored.Title != "Dentist (moved)" || !stored.Start.Equal(e.Start) {
		t.Errorf("updated event = %+v, %v", stored, err)
	}

	if err := st.RemoveEvent(ctx, e.ID); err != nil {
		t.Fatalf("RemoveEvent: %v", err)
	}
	if stored, err := st.GetEvent(ctx, e.ID); stored != nil || err != nil {
		t.Errorf("GetEvent after remove = %v, %v", stored, err)
	}
	if err := st.RemoveEvent(ctx, e.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second RemoveEvent err = %v, want ErrNotFound", err)
	}
}

func TestEventNeedsCalendar(t *testing.T) {
	st, _ := newTestStorage(t, nil)
	e := domain.NewEvent("missing")
	e.Start = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	e.End = e.Start.Add(time.Hour)
	if err := st.SaveEvent(context.Background(), e); err == nil {
		t.Error("SaveEvent into a missing calendar succeeded")
	}
}

func TestReminders(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStorage(t, nil)
	list := createCalendar(t, st, domain.EntityReminder)

	alarm := time.Date(2024, 5, 1, 18, 30, 0, 0, time.UTC)

	r := domain.NewReminder(list.ID)
	r.Title = "Buy milk"
	r.AddAlarm(alarm)
	if err := st.SaveReminder(ctx, r); err != nil {
		t.Fatalf("SaveReminder: %v", err)
	}
	if r.IsNew() || r.HasChanges() {
		t.Fatal("saved reminder not persisted")
	}

	plain := domain.NewReminder(list.ID)
	plain.Title = "Call back"
	if err := st.SaveReminder(ctx, plain); err != nil {
		t.Fatal(err)
	}

	got, err := st.GetReminder(ctx, r.ID)
	if err != nil || got == nil {
		t.Fatalf("GetReminder = %v, %v", got, err)
	}
	date, ok := got.AlarmDate()
	if !ok || !date.Equal(alarm) {
		t.Errorf("alarm = %v, %v", date, ok)
	}
	if got.DueDate == nil || *got.DueDate != *domain.DueDateFrom(alarm) {
		t.Errorf("due date = %+v", got.DueDate)
	}
	if got.HasChanges() {
		t.Error("loaded reminder reports changes")
	}

	all, err := st.Reminders(ctx, list.ID)
	if err != nil {
		t.Fatalf("Reminders: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Reminders = %d, want 2", len(all))
	}
	for _, rem := range all {
		if rem.ID == plain.ID && (rem.HasAlarm() || rem.DueDate != nil) {
			t.Errorf("plain reminder got an alarm: %+v", rem)
		}
		if rem.ID == r.ID && !rem.HasAlarm() {
			t.Error("alarm not loaded by Reminders")
		}
	}

	// Completing and clearing the alarm replaces the stored alarms
	now := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	got.Completed = true
	got.CompletedAt = &now
	got.Alarms = nil
	got.DueDate = nil
	if err := st.SaveReminder(ctx, got); err != nil {
		t.Fatal(err)
	}
	got, err = st.GetReminder(ctx, r.ID)
	if err != nil || got == nil {
		t.Fatal(err)
	}
	if !got.Completed || got.CompletedAt == nil || !got.CompletedAt.Equal(now) || got.HasAlarm() || got.DueDate != nil {
		t.Errorf("completed reminder = %+v", got)
	}

	if err := st.RemoveReminder(ctx, r.ID); err != nil {
		t.Fatalf("RemoveReminder: %v", err)
	}
	if got, err := st.GetReminder(ctx, r.ID); got != nil || err != nil {
		t.Errorf("GetReminder after remove = %v, %v", got, err)
	}
	if err := st.RemoveReminder(ctx, r.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second RemoveReminder err = %v", err)
	}
}

func TestAccessStatus(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStorage(t, nil)

	status, err := st.AccessStatus(ctx, domain.EntityEvent)
	if err != nil || status != domain.StatusNotDetermined {
		t.Errorf("default status = %v, %v", status, err)
	}

	if err := st.SetAccessStatus(ctx, domain.EntityEvent, domain.StatusDenied); err != nil {
		t.Fatal(err)
	}
	if err := st.SetAccessStatus(ctx, domain.EntityEvent, domain.StatusAuthorized); err != nil {
		t.Fatal(err)
	}

	if status, _ := st.AccessStatus(ctx, domain.EntityEvent); status != domain.StatusAuthorized {
		t.Errorf("event status = %v", status)
	}
	if status, _ := st.AccessStatus(ctx, domain.EntityReminder); status != domain.StatusNotDetermined {
		t.Errorf("reminder status = %v, want untouched", status)
	}
}

func TestWritesPublishChanges(t *testing.T) {
	ctx := context.Background()
	changes := notify.NewCenter()
	signals, unsubscribe := changes.Subscribe()
	defer unsubscribe()

	st, _ := newTestStorage(t, changes)

	expect := func(what string) {
		t.Helper()
		select {
		case <-signals:
		default:
			t.Errorf("%s did not publish", what)
		}
	}

	cal := createCalendar(t, st, domain.EntityReminder)
	expect("CreateCalendar")

	r := domain.NewReminder(cal.ID)
	r.Title = "x"
	if err := st.SaveReminder(ctx, r); err != nil {
		t.Fatal(err)
	}
	expect("SaveReminder")

	if err := st.RemoveReminder(ctx, r.ID); err != nil {
		t.Fatal(err)
	}
	expect("RemoveReminder")

	if err := st.SetAccessStatus(ctx, domain.EntityEvent, domain.StatusAuthorized); err != nil {
		t.Fatal(err)
	}
	select {
	case <-signals:
		t.Error("SetAccessStatus published")
	default:
	}
}
