// Package identity generates collision-resistant identifiers for messages
// and audit log entries. Each id combines a wall-clock component with random
// bits so ids stay unique across process restarts.
package identity

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// New returns an identifier of the form "<prefix>_<time36><rand>", where
// time36 is the creation time in unix nanoseconds encoded base-36 and rand
// is the first 10 hex characters of a random UUID. No two calls in the same
// process return equal values, and collisions across restarts require both a
// nanosecond-exact clock match and a UUID prefix match.
func New(prefix string) string {
	ts := strconv.FormatInt(time.Now().UnixNano(), 36)
	r := uuid.NewString()
	// Strip dashes so the suffix is 10 contiguous hex chars.
	hex := r[0:8] + r[9:11]
	return fmt.Sprintf("%s_%s%s", prefix, ts, hex)
}
