package screen

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tazhate/eventme/internal/domain"
	"github.com/tazhate/eventme/internal/notify"
	"github.com/tazhate/eventme/internal/service"
)

var testNow = time.Date(2024, 1, 1, 12, 34, 0, 0, time.UTC)

// fakeStore is an in-memory store serving both list kinds
type fakeStore struct {
	mu        sync.Mutex
	granted   bool
	answer    bool
	requests  int
	nextID    int
	events    []*domain.Event
	reminders []*domain.Reminder
	changes   *notify.Center
	fetchGate chan struct{}
}

func newFakeStore(granted bool) *fakeStore {
	return &fakeStore{granted: granted, answer: true, changes: notify.NewCenter()}
}

func (s *fakeStore) Now() time.Time { return testNow }

func (s *fakeStore) IsAccessGranted(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.granted
}

func (s *fakeStore) RequestAccess(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	s.granted = s.answer
	return s.granted, nil
}

func (s *fakeStore) id() string {
	s.nextID++
	return fmt.Sprintf("id-%d", s.nextID)
}

func (s *fakeStore) addEvent(title string, start time.Time) {
	e := domain.NewEvent("cal")
	e.ID = s.id()
	e.Title = title
	e.Start = start
	e.End = start.Add(time.Hour)
	e.MarkPersisted()
	s.events = append(s.events, e)
}

func (s *fakeStore) addReminder(title string, completed bool) {
	r := domain.NewReminder("list")
	r.ID = s.id()
	r.Title = title
	r.Completed = completed
	r.MarkPersisted()
	s.reminders = append(s.reminders, r)
}

func (s *fakeStore) FetchEvents(ctx context.Context) ([]*domain.Event, error) {
	if s.fetchGate != nil {
		<-s.fetchGate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.granted {
		return nil, nil
	}
	var out []*domain.Event
	for _, e := range s.events {
		c := *e
		out = append(out, &c)
	}
	return out, nil
}

func (s *fakeStore) CreateEvent(ctx context.Context) (*domain.Event, error) {
	if !s.IsAccessGranted(ctx) {
		return nil, nil
	}
	return domain.NewEvent("cal"), nil
}

func (s *fakeStore) SaveEvent(ctx context.Context, e *domain.Event) error {
	s.mu.Lock()
	if !s.granted {
		s.mu.Unlock()
		return nil
	}
	if e.ID == "" {
		e.ID = s.id()
	}
	e.MarkPersisted()
	c := *e
	replaced := false
	for i, old := range s.events {
		if old.ID == e.ID {
			s.events[i] = &c
			replaced = true
		}
	}
	if !replaced {
		s.events = append(s.events, &c)
	}
	s.mu.Unlock()
	s.changes.Publish()
	return nil
}

func (s *fakeStore) RemoveEvent(ctx context.Context, e *domain.Event) error {
	s.mu.Lock()
	for i, old := range s.events {
		if old.ID == e.ID {
			s.events = append(s.events[:i], s.events[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	s.changes.Publish()
	return nil
}

func (s *fakeStore) FetchReminders(ctx context.Context) ([]*domain.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.granted {
		return nil, nil
	}
	var out []*domain.Reminder
	for _, r := range s.reminders {
		c := *r
		out = append(out, &c)
	}
	return out, nil
}

func (s *fakeStore) CreateReminder(ctx context.Context) (*domain.Reminder, error) {
	if !s.IsAccessGranted(ctx) {
		return nil, nil
	}
	return domain.NewReminder("list"), nil
}

func (s *fakeStore) SaveReminder(ctx context.Context, r *domain.Reminder) error {
	s.mu.Lock()
	if r.ID == "" {
		r.ID = s.id()
	}
	r.MarkPersisted()
	c := *r
	replaced := false
	for i, old := range s.reminders {
		if old.ID == r.ID {
			s.reminders[i] = &c
			replaced = true
		}
	}
	if !replaced {
		s.reminders = append(s.reminders, &c)
	}
	s.mu.Unlock()
	s.changes.Publish()
	return nil
}

func (s *fakeStore) RemoveReminder(ctx context.Context, r *domain.Reminder) error {
	s.mu.Lock()
	for i, old := range s.reminders {
		if old.ID == r.ID {
			s.reminders = append(s.reminders[:i], s.reminders[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	s.changes.Publish()
	return nil
}

func newQueue(t *testing.T) *Queue {
	t.Helper()
	q := NewQueue()
	t.Cleanup(q.Close)
	return q
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for rebuild")
	}
}

func TestQueueRunsInOrder(t *testing.T) {
	q := newQueue(t)
	var got []int
	for i := 0; i < 5; i++ {
		q.Post(func() { got = append(got, i) })
	}
	q.Sync(func() {})
	for i, v := range got {
		if v != i {
			t.Fatalf("got %v, want ascending order", got)
		}
	}
	q.Close()
	if q.Post(func() {}) {
		t.Error("Post after Close = true")
	}
	<-q.Done()
}

func TestEventListLoad(t *testing.T) {
	tests := []struct {
		name         string
		granted      bool
		answer       bool
		events       int
		wantState    ListState
		wantAdd      bool
		wantRequests int
	}{
		{"granted with events", true, true, 2, StateAuthorizedPopulated, true, 0},
		{"granted empty", true, true, 0, StateAuthorizedEmpty, true, 0},
		{"prompt granted", false, true, 1, StateAuthorizedPopulated, true, 1},
		{"prompt denied", false, false, 1, StateUnauthorized, false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore(tt.granted)
			store.answer = tt.answer
			for i := 0; i < tt.events; i++ {
				store.addEvent(fmt.Sprintf("event %d", i), testNow.Add(time.Duration(i)*time.Hour))
			}

			l := NewEventList(store, newQueue(t))
			if err := l.Load(context.Background()); err != nil {
				t.Fatalf("Load: %v", err)
			}
			if l.State() != tt.wantState {
				t.Errorf("State = %s, want %s", l.State(), tt.wantState)
			}
			if l.AddEnabled() != tt.wantAdd {
				t.Errorf("AddEnabled = %v, want %v", l.AddEnabled(), tt.wantAdd)
			}
			if store.requests != tt.wantRequests {
				t.Errorf("access requested %d times, want %d", store.requests, tt.wantRequests)
			}
			if tt.wantState == StateUnauthorized && l.Count() != 0 {
				t.Errorf("Count = %d without access", l.Count())
			}
		})
	}
}

func TestEventListSaveSignalFetch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newFakeStore(true)
	l := NewEventList(store, newQueue(t))
	if err := l.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if l.State() != StateAuthorizedEmpty {
		t.Fatalf("State = %s, want empty", l.State())
	}

	rebuilt := make(chan struct{}, 10)
	l.OnChange(func() { rebuilt <- struct{}{} })
	changes, unsubscribe := store.changes.Subscribe()
	defer unsubscribe()
	go l.Watch(ctx, changes)

	d, err := OpenEventDetail(ctx, store, nil)
	if err != nil {
		t.Fatalf("OpenEventDetail: %v", err)
	}
	d.SetTitle("Standup")
	if err := d.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	waitFor(t, rebuilt)

	if l.Count() != 1 {
		t.Fatalf("Count = %d, want 1", l.Count())
	}
	got := l.At(0)
	if got.Title != "Standup" || !got.Start.Equal(d.Start()) || !got.End.Equal(d.End()) || got.AllDay {
		t.Errorf("fetched %+v, want the saved fields", got)
	}
	if l.State() != StateAuthorizedPopulated {
		t.Errorf("State = %s, want populated", l.State())
	}
}

func TestEventListClosedDropsResult(t *testing.T) {
	store := newFakeStore(true)
	store.addEvent("Dentist", testNow)
	store.fetchGate = make(chan struct{})

	l := NewEventList(store, newQueue(t))
	done := make(chan error)
	go func() { done <- l.Refresh(context.Background()) }()

	l.Close()
	close(store.fetchGate)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if l.Count() != 0 || l.Generation() != 0 {
		t.Errorf("closed list rebuilt: count %d generation %d", l.Count(), l.Generation())
	}
}

func TestEventListWatchStopsOnCancel(t *testing.T) {
	store := newFakeStore(true)
	l := NewEventList(store, newQueue(t))
	changes := make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		l.Watch(ctx, changes)
		close(stopped)
	}()
	cancel()
	waitFor(t, stopped)
}

func TestEventListDeleteLeavesRows(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(true)
	store.addEvent("Dentist", testNow)
	l := NewEventList(store, newQueue(t))
	if err := l.Load(ctx); err != nil {
		t.Fatal(err)
	}

	if err := l.Delete(ctx, 0); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(store.events) != 0 {
		t.Error("event not removed from the store")
	}
	if l.Count() != 1 {
		t.Errorf("Count = %d, rows must wait for the refresh", l.Count())
	}
	if err := l.Delete(ctx, 5); !errors.Is(err, ErrNoRow) {
		t.Errorf("Delete out of range = %v, want ErrNoRow", err)
	}

	if err := l.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if l.Count() != 0 || l.State() != StateAuthorizedEmpty {
		t.Errorf("after refresh Count = %d State = %s", l.Count(), l.State())
	}
}

func TestPartition(t *testing.T) {
	mk := func(title string, done bool) *domain.Reminder {
		return &domain.Reminder{ID: title, Title: title, Completed: done}
	}
	tests := []struct {
		name           string
		in             []*domain.Reminder
		wantIncomplete string
		wantCompleted  string
	}{
		{"empty", nil, "", ""},
		{"mixed", []*domain.Reminder{mk("a", false), mk("b", true), mk("c", false), mk("d", true)}, "ac", "bd"},
		{"all done", []*domain.Reminder{mk("a", true), mk("b", true)}, "", "ab"},
	}

	join := func(rs []*domain.Reminder) string {
		s := ""
		for _, r := range rs {
			s += r.Title
		}
		return s
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inc, done := Partition(tt.in)
			if join(inc) != tt.wantIncomplete || join(done) != tt.wantCompleted {
				t.Errorf("Partition = %q / %q, want %q / %q", join(inc), join(done), tt.wantIncomplete, tt.wantCompleted)
			}
			if len(inc)+len(done) != len(tt.in) {
				t.Errorf("partitions cover %d of %d", len(inc)+len(done), len(tt.in))
			}
		})
	}
}

func TestReminderListSegmentsAndToggle(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(true)
	store.addReminder("Buy milk", false)
	store.addReminder("Call mom", true)
	store.addReminder("Pay rent", false)

	l := NewReminderList(store, newQueue(t))
	if err := l.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if l.Count() != 2 || l.At(1).Title != "Pay rent" {
		t.Fatalf("incomplete segment = %d rows", l.Count())
	}

	gen := l.Generation()
	l.SetSegment(SegmentCompleted)
	if l.Generation() == gen {
		t.Error("segment switch must invalidate row indices")
	}
	if l.Count() != 1 || l.At(0).Title != "Call mom" {
		t.Fatalf("completed segment = %d rows", l.Count())
	}

	if err := l.ToggleCompleted(ctx, 0); err != nil {
		t.Fatalf("ToggleCompleted: %v", err)
	}
	if !l.At(0).Completed {
		t.Error("cached row was modified by toggle")
	}
	if err := l.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if l.Count() != 0 {
		t.Errorf("completed segment has %d rows after uncompleting", l.Count())
	}
	l.SetSegment(SegmentIncomplete)
	if l.Count() != 3 {
		t.Errorf("incomplete segment has %d rows, want 3", l.Count())
	}
	if l.State() != StateAuthorizedPopulated {
		t.Errorf("State = %s", l.State())
	}
}

func TestReminderListDenied(t *testing.T) {
	store := newFakeStore(false)
	store.answer = false
	store.addReminder("Hidden", false)

	l := NewReminderList(store, newQueue(t))
	if err := l.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if l.State() != StateUnauthorized || l.AddEnabled() || l.Count() != 0 {
		t.Errorf("State = %s AddEnabled = %v Count = %d", l.State(), l.AddEnabled(), l.Count())
	}
}

func TestListRevokedAccess(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(true)
	store.addEvent("Dentist", testNow)
	store.addReminder("Buy milk", false)

	events := NewEventList(store, newQueue(t))
	reminders := NewReminderList(store, newQueue(t))
	if err := events.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if err := reminders.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if !events.AddEnabled() || !reminders.AddEnabled() {
		t.Fatal("add control hidden with access granted")
	}

	store.mu.Lock()
	store.granted = false
	store.mu.Unlock()

	if err := events.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if err := reminders.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if events.State() != StateUnauthorized || events.AddEnabled() || events.Count() != 0 {
		t.Errorf("events after revoke: State = %s AddEnabled = %v Count = %d", events.State(), events.AddEnabled(), events.Count())
	}
	if reminders.State() != StateUnauthorized || reminders.AddEnabled() || reminders.Count() != 0 {
		t.Errorf("reminders after revoke: State = %s AddEnabled = %v Count = %d", reminders.State(), reminders.AddEnabled(), reminders.Count())
	}

	// Granting again restores the list on the next refresh
	store.mu.Lock()
	store.granted = true
	store.mu.Unlock()
	if err := events.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if events.State() != StateAuthorizedPopulated || !events.AddEnabled() {
		t.Errorf("events after regrant: State = %s AddEnabled = %v", events.State(), events.AddEnabled())
	}
}

func TestEventDetailCanSave(t *testing.T) {
	d, err := OpenEventDetail(context.Background(), newFakeStore(true), nil)
	if err != nil {
		t.Fatal(err)
	}

	steps := []struct {
		title string
		want  bool
	}{
		{"", false},
		{"Standup", true},
		{"", false},
		{"   ", false},
	}
	for _, s := range steps {
		d.SetTitle(s.title)
		if d.CanSave() != s.want {
			t.Errorf("title %q: CanSave = %v, want %v", s.title, d.CanSave(), s.want)
		}
	}
}

func TestEventDetailCanSaveExisting(t *testing.T) {
	store := newFakeStore(true)
	store.addEvent("Dentist", testNow)
	d, _ := OpenEventDetail(context.Background(), store, store.events[0])

	if d.CanSave() {
		t.Error("unchanged event should not be savable")
	}
	d.SetTitle("Dentist!")
	if !d.CanSave() {
		t.Error("changed event should be savable")
	}
	d.SetTitle("Dentist")
	if d.CanSave() {
		t.Error("reverted event should not be savable")
	}
}

func TestEventDetailDefaults(t *testing.T) {
	d, err := OpenEventDetail(context.Background(), newFakeStore(true), nil)
	if err != nil {
		t.Fatal(err)
	}
	wantStart := time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC)
	if !d.Start().Equal(wantStart) || !d.End().Equal(wantStart.Add(time.Hour)) {
		t.Errorf("default window = %v - %v", d.Start(), d.End())
	}

	d.SetAllDay(true)
	d.SetStart(time.Date(2024, 3, 5, 7, 15, 0, 0, time.UTC))
	d.SetEnd(time.Date(2024, 3, 6, 7, 15, 0, 0, time.UTC))
	d.SetAllDay(false)
	if !d.Start().Equal(wantStart) || d.End().Sub(d.Start()) != time.Hour || d.Start().Minute() != 0 {
		t.Errorf("all-day off window = %v - %v", d.Start(), d.End())
	}
}

func TestEventDetailSaveErrors(t *testing.T) {
	ctx := context.Background()

	store := newFakeStore(false)
	if _, err := OpenEventDetail(ctx, store, nil); !errors.Is(err, ErrUnavailable) {
		t.Errorf("OpenEventDetail without access = %v, want ErrUnavailable", err)
	}

	store = newFakeStore(true)
	d, _ := OpenEventDetail(ctx, store, nil)
	if err := d.Save(ctx); !errors.Is(err, ErrCannotSave) {
		t.Errorf("Save with empty title = %v", err)
	}

	d.SetTitle("Trip")
	d.SetEnd(d.Start().Add(-time.Hour))
	if err := d.Save(ctx); !errors.Is(err, ErrEndBeforeStart) {
		t.Errorf("Save with end before start = %v", err)
	}
	d.DismissErr()
	if d.Err() != nil {
		t.Error("DismissErr did not clear the error")
	}

	d.SetEnd(d.Start().Add(time.Hour))
	store.granted = false
	if err := d.Save(ctx); !errors.Is(err, service.ErrAccessDenied) {
		t.Errorf("Save after revoke = %v, want ErrAccessDenied", err)
	}
	if !errors.Is(d.Err(), service.ErrAccessDenied) {
		t.Errorf("Err = %v", d.Err())
	}
}

func TestReminderDetailRemind(t *testing.T) {
	d, err := OpenReminderDetail(context.Background(), newFakeStore(true), nil)
	if err != nil {
		t.Fatal(err)
	}
	r := d.Reminder()
	wantDate := time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC)

	if d.Remind() || r.DueDate != nil {
		t.Fatal("new reminder should have no alarm")
	}
	d.SetAlarmDate(wantDate.Add(time.Hour))
	if d.Remind() {
		t.Fatal("moving the date control must not add an alarm")
	}

	d.SetRemind(true)
	date, ok := r.AlarmDate()
	if !ok || !date.Equal(wantDate) || r.DueDate == nil || r.DueDate.Hour != 13 {
		t.Fatalf("after remind on: alarm %v %v due %+v", date, ok, r.DueDate)
	}

	later := wantDate.Add(90 * time.Minute)
	d.SetAlarmDate(later)
	if date, _ := r.AlarmDate(); !date.Equal(later) || r.DueDate.Minute != 30 {
		t.Errorf("alarm %v due %+v, want both at %v", date, r.DueDate, later)
	}

	d.SetRemind(false)
	if r.HasAlarm() || r.DueDate != nil {
		t.Errorf("remind off left alarm %v due %+v", r.Alarms, r.DueDate)
	}
}

func TestReminderDetailSave(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(true)
	d, _ := OpenReminderDetail(ctx, store, nil)
	d.SetTitle("Water plants")
	d.SetRemind(true)
	if !d.CanSave() {
		t.Fatal("CanSave = false")
	}
	if err := d.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(store.reminders) != 1 || !store.reminders[0].HasAlarm() {
		t.Fatalf("stored reminders = %+v", store.reminders)
	}

	reopened, _ := OpenReminderDetail(ctx, store, store.reminders[0])
	if !reopened.Remind() || !reopened.AlarmDate().Equal(time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC)) {
		t.Errorf("reopened alarm date = %v", reopened.AlarmDate())
	}
	if reopened.CanSave() {
		t.Error("reopened reminder should not be savable")
	}
}

func TestEventRowDetail(t *testing.T) {
	at := func(d, h, m int) time.Time { return time.Date(2024, 1, d, h, m, 0, 0, time.UTC) }
	tests := []struct {
		name       string
		allDay     bool
		start, end time.Time
		want       string
	}{
		{"all day today", true, at(1, 0, 0), at(2, 0, 0), "Today in all day"},
		{"all day span", true, at(3, 0, 0), at(6, 0, 0), "From Jan 3, 2024 to Jan 5, 2024"},
		{"timed tomorrow", false, at(2, 9, 0), at(2, 10, 30), "Tomorrow from 09:00 to 10:30"},
		{"timed far", false, at(20, 9, 0), at(20, 10, 0), "Jan 20, 2024 from 09:00 to 10:00"},
		{"timed span", false, at(1, 22, 0), at(2, 1, 0), "From Jan 1, 2024, 22:00 to Jan 2, 2024, 01:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &domain.Event{AllDay: tt.allDay, Start: tt.start, End: tt.end}
			if got := EventRowDetail(e, testNow); got != tt.want {
				t.Errorf("EventRowDetail = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReminderRowDetail(t *testing.T) {
	r := domain.NewReminder("list")
	if got := ReminderRowDetail(r, testNow); got != "" {
		t.Errorf("without alarm = %q", got)
	}
	r.AddAlarm(time.Date(2023, 12, 31, 18, 5, 0, 0, time.UTC))
	if got := ReminderRowDetail(r, testNow); got != "Yesterday, 18:05" {
		t.Errorf("ReminderRowDetail = %q", got)
	}
}
