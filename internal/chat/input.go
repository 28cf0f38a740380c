package chat

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tripchat/chat-app/internal/identity"
	"github.com/tripchat/chat-app/internal/metrics"
	"github.com/tripchat/chat-app/internal/presence"
	"github.com/tripchat/chat-app/internal/store"
)

// Upload is an attachment as received from the client.
type Upload struct {
	Name string
	Data []byte
}

// Submit accepts a new message addressed to everyone or to one recipient.
// A submission with neither text nor attachment is silently ignored (no-op,
// not an error); the first return value reports whether a message was
// appended, which also tells the caller to refresh immediately so the sender
// sees their own message without waiting for the next poll tick.
//
// On success the message is appended with the sender as its only reader, the
// sender's typing entry is cleared, their presence heartbeat is refreshed,
// and the document is persisted.
func (e *Engine) Submit(doc *store.Document, tripName, sender, text string, upload *Upload, recipient string, now time.Time) (bool, error) {
	trip := doc.Trip(tripName)
	if trip == nil {
		return false, fmt.Errorf("chat: unknown trip %q: %w", tripName, ErrNotFound)
	}
	trip.EnsureStructures()

	text = strings.TrimSpace(text)
	if text == "" && upload == nil {
		return false, nil
	}
	if err := ValidateText(text); err != nil {
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		return false, fmt.Errorf("chat: %w", err)
	}
	if res := e.filter.Check(text); res.Blocked {
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		return false, fmt.Errorf("chat: %s (%s): %w", res.Reason, res.Term, ErrBlocked)
	}

	if recipient == "" {
		recipient = store.RecipientAll
	}

	msgID := identity.New("msg")
	attachmentPath := ""
	if upload != nil {
		attachmentPath = SafeUploadPath(e.uploadDir, msgID, upload.Name)
		if err := writeUpload(attachmentPath, upload.Data); err != nil {
			metrics.MessagesTotal.WithLabelValues("rejected").Inc()
			return false, fmt.Errorf("chat: store attachment: %w", err)
		}
	}

	trip.Messages = append(trip.Messages, &store.Message{
		ID:             msgID,
		Sender:         sender,
		Text:           text,
		AttachmentPath: attachmentPath,
		CreatedAt:      now.Format(time.RFC3339),
		Recipient:      recipient,
		ReadBy:         []string{sender},
		Reactions:      map[string][]string{},
	})

	presence.ClearTyping(trip, sender)
	trip.Presence[sender] = now.Unix()

	metrics.MessagesTotal.WithLabelValues("sent").Inc()
	if err := e.store.Save(doc); err != nil {
		// The message lives on in memory for this session; surface the
		// write failure as a warning.
		log.Printf("chat: persist after submit failed: %v", err)
	}
	return true, nil
}

// writeUpload stores attachment bytes at path, creating the upload dir on
// first use.
func writeUpload(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
