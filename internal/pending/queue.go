// Package pending holds room events that arrived before their session key,
// for a bounded time, so they can be retried once the key is imported.
package pending

import (
	"sync"
	"time"

	"roomcrypt/internal/domain"
)

// Queue is a bounded, time-limited buffer of undecryptable room events.
// Safe for concurrent use.
type Queue struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	items  []item
	now    func() time.Time
}

type item struct {
	event   domain.RoomEvent
	addedAt time.Time
}

// New returns a Queue keeping events for window, at most max at a time.
func New(window time.Duration, max int) *Queue {
	if max <= 0 {
		max = 1
	}
	return &Queue{window: window, max: max, now: time.Now}
}

// Add queues ev. A duplicate of a queued event is ignored. When the queue is
// full the oldest event is dropped and returned.
func (q *Queue) Add(ev domain.RoomEvent) (dropped *domain.RoomEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, it := range q.items {
		if sameEvent(it.event, ev) {
			return nil
		}
	}
	if len(q.items) >= q.max {
		old := q.items[0].event
		dropped = &old
		q.items = q.items[1:]
	}
	q.items = append(q.items, item{event: ev, addedAt: q.now()})
	return dropped
}

// Take removes and returns the live events waiting for session id of room,
// oldest first.
func (q *Queue) Take(room domain.RoomID, id domain.SessionID) []domain.RoomEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := q.now().Add(-q.window)
	var out []domain.RoomEvent
	kept := q.items[:0]
	for _, it := range q.items {
		if it.event.RoomID == room && it.event.SessionID == id {
			if it.addedAt.After(cutoff) {
				out = append(out, it.event)
			}
			continue
		}
		kept = append(kept, it)
	}
	clearTail(q.items, len(kept))
	q.items = kept
	return out
}

// Expire removes and returns events older than the window.
func (q *Queue) Expire() []domain.RoomEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := q.now().Add(-q.window)
	var out []domain.RoomEvent
	kept := q.items[:0]
	for _, it := range q.items {
		if !it.addedAt.After(cutoff) {
			out = append(out, it.event)
			continue
		}
		kept = append(kept, it)
	}
	clearTail(q.items, len(kept))
	q.items = kept
	return out
}

// Len reports the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func sameEvent(a, b domain.RoomEvent) bool {
	return a.RoomID == b.RoomID && a.SessionID == b.SessionID &&
		a.MessageIndex == b.MessageIndex && a.Ciphertext == b.Ciphertext
}

// clearTail drops references held past n so filtered events can be collected.
func clearTail(items []item, n int) {
	for i := n; i < len(items); i++ {
		items[i] = item{}
	}
}
