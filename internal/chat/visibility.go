// Package chat implements the message timeline: visibility rules, read
// receipts, reactions, editing, deletion, and message submission. All
// mutations funnel through the persistent store's save-after-backup cycle.
package chat

import "github.com/tripchat/chat-app/internal/store"

// Role is a viewer's permission level within a trip.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// Visible reports whether viewer may see the message. Administrators see
// everything; public messages are visible to all; a private message is
// visible only to its sender and its one recipient. The function is pure and
// gates both display and read-marking: a message a viewer cannot see is
// never marked read by that viewer.
func Visible(msg *store.Message, viewer string, role Role) bool {
	if role == RoleAdmin {
		return true
	}
	if msg.IsPublic() {
		return true
	}
	return msg.Sender == viewer || msg.Recipient == viewer
}
