// Package notify broadcasts the payload-less "store changed" signal.
package notify

import "sync"

// Center fans a change signal out to every subscriber.
// Signals are coalesced: a subscriber that has not consumed the previous
// signal sees a single pending one.
type Center struct {
	mu   sync.RWMutex
	subs map[int]chan struct{}
	next int
}

// NewCenter creates an empty notification center
func NewCenter() *Center {
	return &Center{subs: make(map[int]chan struct{})}
}

// Subscribe returns a signal channel and a function that unsubscribes it
func (c *Center) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	c.mu.Lock()
	id := c.next
	c.next++
	c.subs[id] = ch
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// Publish signals every subscriber without blocking
func (c *Center) Publish() {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, ch := range c.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribers returns the number of active subscriptions
func (c *Center) Subscribers() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}
