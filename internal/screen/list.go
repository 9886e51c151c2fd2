package screen

import (
	"context"
	"errors"
	"log"
	"sync"
)

// ErrNoRow is returned for a row index outside the current list
var ErrNoRow = errors.New("no such row")

// ListState is the reconciliation state of a list screen
type ListState int

const (
	StateUnauthorized ListState = iota
	StateAuthorizedEmpty
	StateAuthorizedPopulated
)

func (s ListState) String() string {
	switch s {
	case StateUnauthorized:
		return "unauthorized"
	case StateAuthorizedEmpty:
		return "authorized_empty"
	case StateAuthorizedPopulated:
		return "authorized_populated"
	default:
		return "unknown"
	}
}

// accessGate is the access half of a store façade
type accessGate interface {
	IsAccessGranted(ctx context.Context) bool
	RequestAccess(ctx context.Context) (bool, error)
}

// listCore holds what both list screens share: access state, the add
// control, rebuild generation and delivery onto the queue.
type listCore struct {
	queue *Queue

	mu         sync.RWMutex
	authorized bool
	addEnabled bool
	generation uint64
	closed     bool
	err        error
	onChange   func()
}

// authorize asks for access if needed and reports whether the list may fetch
func (c *listCore) authorize(ctx context.Context, gate accessGate) (bool, error) {
	if !gate.IsAccessGranted(ctx) {
		ok, err := gate.RequestAccess(ctx)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	c.mu.Lock()
	c.authorized = true
	c.addEnabled = true
	c.mu.Unlock()
	return true, nil
}

// deliver runs rebuild on the queue unless the screen was closed or ctx cancelled
// in the meantime. It waits for the rebuild to finish. A successful fetch also
// records whether access was granted, so a revoked list hides its add control.
func (c *listCore) deliver(ctx context.Context, granted bool, fetchErr error, rebuild func()) {
	done := make(chan struct{})
	posted := c.queue.Post(func() {
		defer close(done)

		c.mu.Lock()
		if c.closed || ctx.Err() != nil {
			c.mu.Unlock()
			return
		}
		if fetchErr != nil {
			c.err = fetchErr
		} else {
			c.err = nil
			c.authorized = granted
			c.addEnabled = granted
			rebuild()
			c.generation++
		}
		onChange := c.onChange
		c.mu.Unlock()

		if onChange != nil {
			onChange()
		}
	})
	if !posted {
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// watch refreshes on every signal until ctx ends or the channel closes
func (c *listCore) watch(ctx context.Context, changes <-chan struct{}, refresh func(context.Context) error) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			if err := refresh(ctx); err != nil && ctx.Err() == nil {
				log.Printf("Error refreshing list: %v", err)
			}
		}
	}
}

// OnChange sets a callback run on the queue after every rebuild
func (c *listCore) OnChange(fn func()) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// AddEnabled reports whether the add control is shown
func (c *listCore) AddEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.addEnabled
}

// Generation increments on every rebuild of the cached rows
func (c *listCore) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// Err returns the last fetch failure, cleared by the next successful fetch
func (c *listCore) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Close detaches the screen. Results of fetches still in flight are dropped.
func (c *listCore) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *listCore) state(rows int) ListState {
	switch {
	case !c.authorized:
		return StateUnauthorized
	case rows == 0:
		return StateAuthorizedEmpty
	default:
		return StateAuthorizedPopulated
	}
}
