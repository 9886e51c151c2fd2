package screen

import (
	"context"
	"fmt"
	"time"

	"github.com/tazhate/eventme/internal/domain"
)

// EventStore is the event façade a screen works against
type EventStore interface {
	IsAccessGranted(ctx context.Context) bool
	RequestAccess(ctx context.Context) (bool, error)
	FetchEvents(ctx context.Context) ([]*domain.Event, error)
	CreateEvent(ctx context.Context) (*domain.Event, error)
	SaveEvent(ctx context.Context, e *domain.Event) error
	RemoveEvent(ctx context.Context, e *domain.Event) error
	Now() time.Time
}

// EventList is the events list screen. Its rows are a read-only copy of
// the last fetch, replaced wholesale on every refresh.
type EventList struct {
	listCore
	store  EventStore
	events []*domain.Event
}

// NewEventList creates an events list delivering on queue
func NewEventList(store EventStore, queue *Queue) *EventList {
	return &EventList{
		listCore: listCore{queue: queue},
		store:    store,
	}
}

// Load enables the list if access is granted, asking for it first if
// undecided. A denial leaves the list empty and the add control hidden.
func (l *EventList) Load(ctx context.Context) error {
	ok, err := l.authorize(ctx, l.store)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	if !ok {
		return nil
	}
	return l.Refresh(ctx)
}

// Refresh re-fetches every event and rebuilds the rows
func (l *EventList) Refresh(ctx context.Context) error {
	granted := l.store.IsAccessGranted(ctx)
	events, err := l.store.FetchEvents(ctx)
	l.deliver(ctx, granted, err, func() {
		l.events = events
	})
	if err != nil {
		return fmt.Errorf("refresh events: %w", err)
	}
	return nil
}

// Watch refreshes on every store change until ctx is cancelled
func (l *EventList) Watch(ctx context.Context, changes <-chan struct{}) {
	l.watch(ctx, changes, l.Refresh)
}

// State returns the reconciliation state
func (l *EventList) State() ListState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state(len(l.events))
}

// Count returns the number of rows
func (l *EventList) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// At returns the event of row i, or nil
func (l *EventList) At(i int) *domain.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i < 0 || i >= len(l.events) {
		return nil
	}
	return l.events[i]
}

// Events returns a copy of the rows
func (l *EventList) Events() []*domain.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*domain.Event(nil), l.events...)
}

// Delete removes the event of row i from the store. The rows are left
// as they are; the store change signal brings the refresh.
func (l *EventList) Delete(ctx context.Context, i int) error {
	e := l.At(i)
	if e == nil {
		return fmt.Errorf("delete event row %d: %w", i, ErrNoRow)
	}
	return l.store.RemoveEvent(ctx, e)
}
