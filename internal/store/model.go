package store

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/tripchat/chat-app/internal/identity"
)

// RecipientAll is the recipient sentinel for messages addressed to every
// participant of a trip. An empty recipient is treated the same way.
const RecipientAll = "ALL"

// Document is the full application state: every trip, persisted as one JSON
// object. It is always read and written as a whole.
type Document struct {
	Trips map[string]*Trip `json:"trips"`
}

// NewDocument returns an empty document, the shape Load falls back to when
// the backing file is absent or unreadable.
func NewDocument() *Document {
	return &Document{Trips: make(map[string]*Trip)}
}

// Trip returns the named trip or nil if it does not exist.
func (d *Document) Trip(name string) *Trip {
	if d.Trips == nil {
		return nil
	}
	return d.Trips[name]
}

// EnsureTrip returns the named trip, creating an empty one if needed.
func (d *Document) EnsureTrip(name string) *Trip {
	if d.Trips == nil {
		d.Trips = make(map[string]*Trip)
	}
	t, ok := d.Trips[name]
	if !ok {
		t = &Trip{Name: name}
		t.EnsureStructures()
		d.Trips[name] = t
	}
	return t
}

// Participant is the credential record stored per participant name.
type Participant struct {
	Password string `json:"password"`
}

// LogEntry is one audit log record on a trip.
type LogEntry struct {
	ID    string `json:"id"`
	User  string `json:"user"`
	Event string `json:"event"`
	Time  string `json:"time"`
}

// Message is a single chat message within a trip.
type Message struct {
	ID             string              `json:"id"`
	Sender         string              `json:"sender"`
	Text           string              `json:"text"`
	AttachmentPath string              `json:"attachmentPath,omitempty"`
	CreatedAt      string              `json:"createdAt"`
	Recipient      string              `json:"recipient,omitempty"`
	ReadBy         []string            `json:"readBy"`
	Reactions      map[string][]string `json:"reactions,omitempty"`
}

// IsPublic reports whether the message is addressed to everyone.
func (m *Message) IsPublic() bool {
	return m.Recipient == "" || m.Recipient == RecipientAll
}

// HasRead reports whether user is already in the message's read set.
func (m *Message) HasRead(user string) bool {
	for _, u := range m.ReadBy {
		if u == user {
			return true
		}
	}
	return false
}

// MarkRead adds user to the read set. It returns true if the set changed.
// ReadBy has set semantics: a user is never appended twice.
func (m *Message) MarkRead(user string) bool {
	if m.HasRead(user) {
		return false
	}
	m.ReadBy = append(m.ReadBy, user)
	return true
}

// ReaderCount returns the number of distinct participants in the read set.
func (m *Message) ReaderCount() int {
	seen := make(map[string]bool, len(m.ReadBy))
	for _, u := range m.ReadBy {
		seen[u] = true
	}
	return len(seen)
}

// Trip is one shared workspace: participants, the ordered message timeline,
// and the typing/presence heartbeat maps. Feature data owned by other parts
// of the application (tasks, expenses, images, ...) is carried through
// load/save untouched in the extra map.
type Trip struct {
	Name         string
	Status       string
	Participants map[string]Participant
	Messages     []*Message
	Typing       map[string]int64
	Presence     map[string]int64
	Log          []LogEntry

	extra map[string]json.RawMessage
}

// EnsureStructures initializes any nil chat-owned containers. Every render
// or submit pass calls this before touching the trip.
func (t *Trip) EnsureStructures() {
	if t.Participants == nil {
		t.Participants = make(map[string]Participant)
	}
	if t.Messages == nil {
		t.Messages = []*Message{}
	}
	if t.Typing == nil {
		t.Typing = make(map[string]int64)
	}
	if t.Presence == nil {
		t.Presence = make(map[string]int64)
	}
}

// ParticipantNames returns all participant names in sorted order.
func (t *Trip) ParticipantNames() []string {
	names := make([]string, 0, len(t.Participants))
	for name := range t.Participants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TotalUsers returns the participant count, never less than 1 so that
// read-receipt math has a usable denominator.
func (t *Trip) TotalUsers() int {
	if n := len(t.Participants); n > 1 {
		return n
	}
	return 1
}

// AppendLog records an audit event on the trip.
func (t *Trip) AppendLog(user, event string) {
	t.Log = append(t.Log, LogEntry{
		ID:    identity.New("log"),
		User:  user,
		Event: event,
		Time:  time.Now().Format(time.RFC3339),
	})
}

// tripKnownKeys are the JSON keys owned by the chat layer; everything else
// belongs to other features and round-trips through extra.
var tripKnownKeys = map[string]bool{
	"name": true, "status": true, "participants": true,
	"messages": true, "typing": true, "presence": true, "log": true,
}

// UnmarshalJSON decodes a trip, tolerating older document shapes: a field
// that fails to decode is left at its zero value and repaired by
// Document.Normalize. Unknown keys are preserved verbatim.
func (t *Trip) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.extra = make(map[string]json.RawMessage)
	for key, val := range raw {
		switch key {
		case "name":
			json.Unmarshal(val, &t.Name)
		case "status":
			json.Unmarshal(val, &t.Status)
		case "participants":
			t.Participants = decodeParticipants(val)
		case "messages":
			json.Unmarshal(val, &t.Messages)
		case "typing":
			t.Typing = decodeEpochMap(val)
		case "presence":
			t.Presence = decodeEpochMap(val)
		case "log":
			json.Unmarshal(val, &t.Log)
		default:
			t.extra[key] = val
		}
	}
	return nil
}

// MarshalJSON encodes the trip, re-emitting preserved foreign keys alongside
// the chat-owned fields.
func (t *Trip) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(t.extra)+7)
	for key, val := range t.extra {
		out[key] = val
	}
	if t.Name != "" {
		out["name"] = t.Name
	}
	if t.Status != "" {
		out["status"] = t.Status
	}
	out["participants"] = t.Participants
	out["messages"] = t.Messages
	out["typing"] = t.Typing
	out["presence"] = t.Presence
	if len(t.Log) > 0 {
		out["log"] = t.Log
	}
	return json.Marshal(out)
}

// decodeParticipants accepts both document generations: the current
// name -> credential map and the legacy plain name list.
func decodeParticipants(raw json.RawMessage) map[string]Participant {
	var m map[string]Participant
	if err := json.Unmarshal(raw, &m); err == nil {
		return m
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err == nil {
		m = make(map[string]Participant, len(names))
		for _, name := range names {
			m[name] = Participant{}
		}
		return m
	}
	return nil
}

// decodeEpochMap decodes a user -> epoch-seconds map, accepting fractional
// timestamps written by older versions.
func decodeEpochMap(raw json.RawMessage) map[string]int64 {
	var f map[string]float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil
	}
	m := make(map[string]int64, len(f))
	for user, ts := range f {
		m[user] = int64(ts)
	}
	return m
}

// Normalize repairs a freshly loaded document in one pass: nil containers
// become empty, legacy messages get defaulted fields, and reaction maps are
// stripped of empty reactor sets. Load runs this once; access sites can then
// rely on the invariants holding.
func (d *Document) Normalize() {
	if d.Trips == nil {
		d.Trips = make(map[string]*Trip)
	}
	for name, trip := range d.Trips {
		if trip == nil {
			trip = &Trip{}
			d.Trips[name] = trip
		}
		if trip.Name == "" {
			trip.Name = name
		}
		trip.EnsureStructures()

		msgs := trip.Messages[:0]
		for _, m := range trip.Messages {
			if m == nil {
				continue
			}
			if m.ID == "" {
				m.ID = identity.New("msg")
			}
			if m.CreatedAt == "" {
				m.CreatedAt = time.Now().Format(time.RFC3339)
			}
			if m.ReadBy == nil {
				m.ReadBy = []string{}
			}
			for emoji, users := range m.Reactions {
				if len(users) == 0 {
					delete(m.Reactions, emoji)
				}
			}
			msgs = append(msgs, m)
		}
		trip.Messages = msgs
	}
}
