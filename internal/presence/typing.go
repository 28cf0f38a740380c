package presence

import (
	"sort"
	"time"

	"github.com/tripchat/chat-app/internal/store"
)

// TypingWindow is how long a keystroke signal keeps a user in the "currently
// typing" set.
const TypingWindow = 7 * time.Second

// SetTyping records a keystroke signal for the user. Called whenever a user
// has non-empty pending input.
func SetTyping(trip *store.Trip, user string, now time.Time) {
	trip.Typing[user] = now.Unix()
}

// ClearTyping removes the user's typing entry, called when their message is
// sent.
func ClearTyping(trip *store.Trip, user string) {
	delete(trip.Typing, user)
}

// ActiveTypers returns the sorted names of users, other than viewer, whose
// last keystroke signal is younger than window. Expired entries are deleted
// from the trip's typing map, not merely filtered, so the map stays bounded.
func ActiveTypers(trip *store.Trip, viewer string, now time.Time, window time.Duration) []string {
	var typers []string
	for user, ts := range trip.Typing {
		if now.Unix()-ts >= int64(window.Seconds()) {
			delete(trip.Typing, user)
			continue
		}
		if user != viewer {
			typers = append(typers, user)
		}
	}
	sort.Strings(typers)
	return typers
}
