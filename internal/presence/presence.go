// Package presence derives "who is online" and "who is typing" from
// heartbeat timestamps stored on the trip. Both signals are sliding-window:
// presence entries simply age out of the window, typing entries are deleted
// from the underlying map on every read so they cannot accumulate.
package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/tripchat/chat-app/internal/store"
)

const (
	// OnlineWindow is how recently a participant must have polled to count
	// as online.
	OnlineWindow = 25 * time.Second

	// WriteInterval is the minimum gap between persisted heartbeats per
	// (trip, user). The in-memory timestamp updates on every poll; the
	// document is only worth saving this often.
	WriteInterval = 10 * time.Second
)

// Tracker records presence heartbeats and debounces their persistence.
// It is goroutine-safe.
type Tracker struct {
	mu        sync.Mutex
	lastWrite map[string]time.Time // "<trip>\x00<user>" -> last persisted heartbeat
}

// NewTracker creates an empty presence tracker.
func NewTracker() *Tracker {
	return &Tracker{lastWrite: make(map[string]time.Time)}
}

// Heartbeat overwrites the user's last-seen timestamp on the trip and
// reports whether the change is due for persistence. The caller saves the
// document when this returns true; at most one save per WriteInterval per
// (trip, user) is requested.
func (t *Tracker) Heartbeat(trip *store.Trip, user string, now time.Time) bool {
	trip.Presence[user] = now.Unix()

	key := trip.Name + "\x00" + user
	t.mu.Lock()
	defer t.mu.Unlock()
	if last, ok := t.lastWrite[key]; ok && now.Sub(last) <= WriteInterval {
		return false
	}
	t.lastWrite[key] = now
	return true
}

// Online returns the sorted names of participants whose last heartbeat is
// within window of now. Stale and absent entries are never included.
func Online(trip *store.Trip, now time.Time, window time.Duration) []string {
	var users []string
	for user, ts := range trip.Presence {
		if now.Unix()-ts <= int64(window.Seconds()) {
			users = append(users, user)
		}
	}
	sort.Strings(users)
	return users
}
