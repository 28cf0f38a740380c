package chat

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tripchat/chat-app/internal/metrics"
	"github.com/tripchat/chat-app/internal/moderation"
	"github.com/tripchat/chat-app/internal/presence"
	"github.com/tripchat/chat-app/internal/store"
)

// Sentinel errors for callers that need to distinguish failure modes.
var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("not permitted")
	ErrBlocked   = errors.New("blocked by content filter")
)

// Tick mark and color constants for read receipts.
const (
	TickSingle = "✔"
	TickDouble = "✔✔"

	TickColorNeutral = "gray"
	TickColorAll     = "blue"
)

// TickState is the read-receipt indicator for one message.
type TickState struct {
	Marks string `json:"marks"`
	Color string `json:"color"`
}

// ReactionView is one emoji with its reactor count, plus whether the viewer
// is among the reactors.
type ReactionView struct {
	Emoji   string `json:"emoji"`
	Count   int    `json:"count"`
	Reacted bool   `json:"reacted"`
}

// AttachmentView describes a message's attachment for display. Missing is
// set when the stored file no longer exists; the client renders a
// placeholder instead of a download link.
type AttachmentView struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Missing bool   `json:"missing"`
}

// MessageView is one rendered timeline entry as seen by a specific viewer.
type MessageView struct {
	ID          string          `json:"id"`
	Sender      string          `json:"sender"`
	Text        string          `json:"text"`
	Clock       string          `json:"clock"` // HH:MM display time
	CreatedAt   string          `json:"createdAt"`
	Own         bool            `json:"own"`
	Private     bool            `json:"private"`
	Recipient   string          `json:"recipient,omitempty"`
	Ticks       TickState       `json:"ticks"`
	Reactions   []ReactionView  `json:"reactions,omitempty"`
	Attachment  *AttachmentView `json:"attachment,omitempty"`
	CanModerate bool            `json:"canModerate"`
	Editing     bool            `json:"editing"`
}

// View is the result of one render pass for one viewer.
type View struct {
	Messages []MessageView `json:"messages"`
	Typing   []string      `json:"typing"`
	Online   []string      `json:"online"`
	Notify   bool          `json:"notify"`
}

// Engine orchestrates the message timeline. It reads the shared document,
// applies read-marking and legacy-text cleanup, computes the per-viewer
// view, and triggers persistence for any mutation.
type Engine struct {
	store     *store.Store
	uploadDir string
	filter    *moderation.Filter
}

// NewEngine creates an engine that persists through st and stores
// attachments under uploadDir. New messages and edits are screened with the
// default content filter.
func NewEngine(st *store.Store, uploadDir string) *Engine {
	return &Engine{store: st, uploadDir: uploadDir, filter: moderation.NewFilter()}
}

// UploadDir returns the attachment storage directory.
func (e *Engine) UploadDir() string { return e.uploadDir }

// Render produces the viewer's timeline for one poll cycle. In order it
// ensures the trip's chat structures exist, prunes expired typing entries,
// computes the new-message notification, then walks the messages in append
// order applying the visibility gate, read-marking, and legacy-text cleanup.
// If any message changed, the document is persisted once at the end of the
// pass; the returned bool reports whether a save happened.
func (e *Engine) Render(doc *store.Document, tripName string, sess *Session, now time.Time) (*View, bool, error) {
	trip := doc.Trip(tripName)
	if trip == nil {
		return nil, false, fmt.Errorf("chat: unknown trip %q: %w", tripName, ErrNotFound)
	}
	trip.EnsureStructures()

	viewer, role := sess.User, sess.Role
	view := &View{
		Typing: presence.ActiveTypers(trip, viewer, now, presence.TypingWindow),
		Online: presence.Online(trip, now, presence.OnlineWindow),
	}
	metrics.OnlineUsers.WithLabelValues(tripName).Set(float64(len(view.Online)))

	view.Notify = e.checkNotify(trip, sess)

	total := trip.TotalUsers()
	dirty := false

	for _, msg := range trip.Messages {
		if !Visible(msg, viewer, role) {
			continue
		}

		own := msg.Sender == viewer
		if !own && msg.MarkRead(viewer) {
			dirty = true
		}

		if cleaned := CleanLegacyText(msg.Text); cleaned != msg.Text {
			msg.Text = cleaned
			dirty = true
		}

		view.Messages = append(view.Messages, MessageView{
			ID:          msg.ID,
			Sender:      msg.Sender,
			Text:        msg.Text,
			Clock:       formatClock(msg.CreatedAt),
			CreatedAt:   msg.CreatedAt,
			Own:         own,
			Private:     !msg.IsPublic(),
			Recipient:   msg.Recipient,
			Ticks:       Ticks(msg, total),
			Reactions:   reactionViews(msg, viewer),
			Attachment:  e.attachmentView(msg),
			CanModerate: own || role == RoleAdmin,
			Editing:     sess.IsEditing(tripName, msg.ID),
		})
	}

	saved := false
	if dirty {
		if err := e.store.Save(doc); err != nil {
			log.Printf("chat: persist after render failed: %v", err)
		}
		saved = true
	}
	return view, saved, nil
}

// checkNotify reports whether the newest message warrants a notification for
// this session: the newest id differs from the last one the session
// observed, was not authored by the viewer, and is visible to the viewer.
// The first observation of a trip never notifies, it only records.
func (e *Engine) checkNotify(trip *store.Trip, sess *Session) bool {
	if len(trip.Messages) == 0 {
		return false
	}
	last := trip.Messages[len(trip.Messages)-1]
	prev, observed := sess.LastSeenMessage(trip.Name)
	sess.SetLastSeenMessage(trip.Name, last.ID)
	if !observed || prev == last.ID {
		return false
	}
	return last.Sender != sess.User && Visible(last, sess.User, sess.Role)
}

// Ticks computes the read-receipt indicator from the distinct reader count
// and the trip's participant total.
func Ticks(msg *store.Message, totalUsers int) TickState {
	n := msg.ReaderCount()
	switch {
	case totalUsers <= 1:
		return TickState{Marks: TickSingle, Color: TickColorNeutral}
	case n >= totalUsers:
		return TickState{Marks: TickDouble, Color: TickColorAll}
	case n > 1:
		return TickState{Marks: TickDouble, Color: TickColorNeutral}
	default:
		return TickState{Marks: TickSingle, Color: TickColorNeutral}
	}
}

// ToggleReaction adds the viewer to the emoji's reactor set if absent and
// removes them if present. An emoji with no remaining reactors is deleted
// from the map entirely. The change is persisted immediately.
func (e *Engine) ToggleReaction(doc *store.Document, tripName, msgID, emoji string, sess *Session) error {
	_, msg, err := findMessage(doc, tripName, msgID)
	if err != nil {
		return err
	}
	if !Visible(msg, sess.User, sess.Role) {
		return fmt.Errorf("chat: message %s not visible to %s: %w", msgID, sess.User, ErrForbidden)
	}

	if msg.Reactions == nil {
		msg.Reactions = make(map[string][]string)
	}
	users := msg.Reactions[emoji]
	removed := false
	for i, u := range users {
		if u == sess.User {
			users = append(users[:i], users[i+1:]...)
			removed = true
			break
		}
	}
	if removed {
		metrics.ReactionsTotal.WithLabelValues("removed").Inc()
	} else {
		users = append(users, sess.User)
		metrics.ReactionsTotal.WithLabelValues("added").Inc()
	}
	if len(users) == 0 {
		delete(msg.Reactions, emoji)
	} else {
		msg.Reactions[emoji] = users
	}

	if err := e.store.Save(doc); err != nil {
		log.Printf("chat: persist after reaction failed: %v", err)
	}
	return nil
}

// Delete removes the message from the trip's timeline and best-effort
// removes its attachment file; a file removal failure is logged, never
// fatal. Only the sender or an administrator may delete.
func (e *Engine) Delete(doc *store.Document, tripName, msgID string, sess *Session) error {
	trip, msg, err := findMessage(doc, tripName, msgID)
	if err != nil {
		return err
	}
	if msg.Sender != sess.User && sess.Role != RoleAdmin {
		return fmt.Errorf("chat: %s may not delete message %s: %w", sess.User, msgID, ErrForbidden)
	}

	kept := trip.Messages[:0]
	for _, m := range trip.Messages {
		if m.ID != msgID {
			kept = append(kept, m)
		}
	}
	trip.Messages = kept

	if msg.AttachmentPath != "" {
		if err := os.Remove(msg.AttachmentPath); err != nil && !os.IsNotExist(err) {
			log.Printf("chat: remove attachment %s failed: %v", msg.AttachmentPath, err)
		}
	}

	trip.AppendLog(sess.User, "message deleted")
	metrics.MessagesTotal.WithLabelValues("deleted").Inc()

	if err := e.store.Save(doc); err != nil {
		log.Printf("chat: persist after delete failed: %v", err)
	}
	return nil
}

// SaveEdit replaces the message text with the trimmed new text, persists,
// and clears the session's edit mode for the message. Only the sender or an
// administrator may edit.
func (e *Engine) SaveEdit(doc *store.Document, tripName, msgID, text string, sess *Session) error {
	_, msg, err := findMessage(doc, tripName, msgID)
	if err != nil {
		return err
	}
	if msg.Sender != sess.User && sess.Role != RoleAdmin {
		return fmt.Errorf("chat: %s may not edit message %s: %w", sess.User, msgID, ErrForbidden)
	}
	if err := ValidateText(text); err != nil {
		return fmt.Errorf("chat: edit rejected: %w", err)
	}
	if res := e.filter.Check(text); res.Blocked {
		return fmt.Errorf("chat: edit %s (%s): %w", res.Reason, res.Term, ErrBlocked)
	}

	msg.Text = strings.TrimSpace(text)
	sess.StopEditing(tripName, msgID)

	trip := doc.Trip(tripName)
	trip.AppendLog(sess.User, "message edited")
	metrics.MessagesTotal.WithLabelValues("edited").Inc()

	if err := e.store.Save(doc); err != nil {
		log.Printf("chat: persist after edit failed: %v", err)
	}
	return nil
}

// CountUnread returns how many messages visible to the viewer were created
// after sinceTS by someone else. Used for unread badges outside the chat tab.
func CountUnread(trip *store.Trip, viewer string, role Role, sinceTS string) int {
	n := 0
	for _, m := range trip.Messages {
		if m.Sender == viewer || !Visible(m, viewer, role) {
			continue
		}
		if m.CreatedAt > sinceTS {
			n++
		}
	}
	return n
}

// findMessage locates a message by id within a trip.
func findMessage(doc *store.Document, tripName, msgID string) (*store.Trip, *store.Message, error) {
	trip := doc.Trip(tripName)
	if trip == nil {
		return nil, nil, fmt.Errorf("chat: unknown trip %q: %w", tripName, ErrNotFound)
	}
	trip.EnsureStructures()
	for _, m := range trip.Messages {
		if m.ID == msgID {
			return trip, m, nil
		}
	}
	return nil, nil, fmt.Errorf("chat: message %s not found in trip %q: %w", msgID, tripName, ErrNotFound)
}

// reactionViews summarizes a message's reactions for the viewer, sorted by
// emoji for stable output. Empty reactor sets are never stored, so every
// exposed entry has a positive count.
func reactionViews(msg *store.Message, viewer string) []ReactionView {
	if len(msg.Reactions) == 0 {
		return nil
	}
	views := make([]ReactionView, 0, len(msg.Reactions))
	for emoji, users := range msg.Reactions {
		if len(users) == 0 {
			continue
		}
		rv := ReactionView{Emoji: emoji, Count: len(users)}
		for _, u := range users {
			if u == viewer {
				rv.Reacted = true
				break
			}
		}
		views = append(views, rv)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Emoji < views[j].Emoji })
	return views
}

// attachmentView resolves a message's attachment for display. A missing
// file degrades to a placeholder, never an error.
func (e *Engine) attachmentView(msg *store.Message) *AttachmentView {
	if msg.AttachmentPath == "" {
		return nil
	}
	av := &AttachmentView{
		Name: filepath.Base(msg.AttachmentPath),
		Path: msg.AttachmentPath,
	}
	if _, err := os.Stat(msg.AttachmentPath); err != nil {
		av.Missing = true
	}
	return av
}

// formatClock renders a stored timestamp as HH:MM for display. Inputs that
// are already HH:MM pass through; anything unparsable degrades to its first
// five characters.
func formatClock(ts string) string {
	if ts == "" {
		return ""
	}
	if len(ts) == 5 && ts[2] == ':' {
		return ts
	}
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		return t.Format("15:04")
	}
	if len(ts) > 5 {
		return ts[:5]
	}
	return ts
}
