package screen

import (
	"context"
	"fmt"
	"time"

	"github.com/tazhate/eventme/internal/domain"
)

// ReminderStore is the reminder façade a screen works against
type ReminderStore interface {
	IsAccessGranted(ctx context.Context) bool
	RequestAccess(ctx context.Context) (bool, error)
	FetchReminders(ctx context.Context) ([]*domain.Reminder, error)
	CreateReminder(ctx context.Context) (*domain.Reminder, error)
	SaveReminder(ctx context.Context, r *domain.Reminder) error
	RemoveReminder(ctx context.Context, r *domain.Reminder) error
	Now() time.Time
}

// Segment selects which partition of the reminders is shown
type Segment int

const (
	SegmentIncomplete Segment = iota
	SegmentCompleted
)

func (s Segment) String() string {
	if s == SegmentCompleted {
		return "completed"
	}
	return "incomplete"
}

// Partition splits reminders into incomplete and completed, keeping order
func Partition(reminders []*domain.Reminder) (incomplete, completed []*domain.Reminder) {
	for _, r := range reminders {
		if r.Completed {
			completed = append(completed, r)
		} else {
			incomplete = append(incomplete, r)
		}
	}
	return incomplete, completed
}

// ReminderList is the reminders list screen with its two segments
type ReminderList struct {
	listCore
	store      ReminderStore
	segment    Segment
	incomplete []*domain.Reminder
	completed  []*domain.Reminder
}

// NewReminderList creates a reminders list delivering on queue
func NewReminderList(store ReminderStore, queue *Queue) *ReminderList {
	return &ReminderList{
		listCore: listCore{queue: queue},
		store:    store,
	}
}

// Load enables the list if access is granted, asking for it first if undecided
func (l *ReminderList) Load(ctx context.Context) error {
	ok, err := l.authorize(ctx, l.store)
	if err != nil {
		return fmt.Errorf("load reminders: %w", err)
	}
	if !ok {
		return nil
	}
	return l.Refresh(ctx)
}

// Refresh re-fetches every reminder and rebuilds both partitions
func (l *ReminderList) Refresh(ctx context.Context) error {
	granted := l.store.IsAccessGranted(ctx)
	reminders, err := l.store.FetchReminders(ctx)
	l.deliver(ctx, granted, err, func() {
		l.incomplete, l.completed = Partition(reminders)
	})
	if err != nil {
		return fmt.Errorf("refresh reminders: %w", err)
	}
	return nil
}

// Watch refreshes on every store change until ctx is cancelled
func (l *ReminderList) Watch(ctx context.Context, changes <-chan struct{}) {
	l.watch(ctx, changes, l.Refresh)
}

// State returns the reconciliation state, counting both segments
func (l *ReminderList) State() ListState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state(len(l.incomplete) + len(l.completed))
}

// Segment returns the selected segment
func (l *ReminderList) Segment() Segment {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.segment
}

// SetSegment selects the segment rows are taken from
func (l *ReminderList) SetSegment(s Segment) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.segment != s {
		l.segment = s
		l.generation++
	}
}

func (l *ReminderList) rows() []*domain.Reminder {
	if l.segment == SegmentCompleted {
		return l.completed
	}
	return l.incomplete
}

// Count returns the number of rows in the selected segment
func (l *ReminderList) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.rows())
}

// At returns the reminder of row i in the selected segment, or nil
func (l *ReminderList) At(i int) *domain.Reminder {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rows := l.rows()
	if i < 0 || i >= len(rows) {
		return nil
	}
	return rows[i]
}

// Reminders returns copies of both partitions
func (l *ReminderList) Reminders() (incomplete, completed []*domain.Reminder) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*domain.Reminder(nil), l.incomplete...), append([]*domain.Reminder(nil), l.completed...)
}

// Delete removes the reminder of row i from the store
func (l *ReminderList) Delete(ctx context.Context, i int) error {
	r := l.At(i)
	if r == nil {
		return fmt.Errorf("delete reminder row %d: %w", i, ErrNoRow)
	}
	return l.store.RemoveReminder(ctx, r)
}

// ToggleCompleted flips the completion of row i and saves it.
// The cached row is not modified.
func (l *ReminderList) ToggleCompleted(ctx context.Context, i int) error {
	r := l.At(i)
	if r == nil {
		return fmt.Errorf("toggle reminder row %d: %w", i, ErrNoRow)
	}
	changed := *r
	changed.SetCompleted(!r.Completed, l.store.Now())
	return l.store.SaveReminder(ctx, &changed)
}
