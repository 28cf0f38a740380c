// Package protocol defines the JSON message types exchanged between the
// poll client and the server. Client actions share a consistent envelope
// format with a type discriminator; the payload is decoded into a concrete
// struct once the type is known.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Client -> Server action types.
const (
	TypeReact       = "react"
	TypeEditStart   = "edit_start"
	TypeEditCancel  = "edit_cancel"
	TypeEditSave    = "edit_save"
	TypeDelete      = "delete"
	TypeTyping      = "typing"
	TypeAutoRefresh = "auto_refresh"
)

// Envelope holds the action type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the full raw bytes and extracts only the "type"
// field so the rest of the payload can be decoded later.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ReactMsg toggles the sender's reaction on a message.
type ReactMsg struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

// EditStartMsg puts a message into edit mode for this session.
type EditStartMsg struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
}

// EditCancelMsg leaves edit mode without saving.
type EditCancelMsg struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
}

// EditSaveMsg replaces a message's text and leaves edit mode.
type EditSaveMsg struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	Text      string `json:"text"`
}

// DeleteMsg removes a message (and its attachment) from the timeline.
type DeleteMsg struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
}

// TypingMsg signals that the sender currently has pending input text.
type TypingMsg struct {
	Type string `json:"type"`
}

// AutoRefreshMsg toggles the session's cooperative refresh loop.
type AutoRefreshMsg struct {
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}

// LoginRequest authenticates a participant against a trip's credential
// records (or the admin password).
type LoginRequest struct {
	Trip     string `json:"trip"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// LoginResponse carries the session token for subsequent requests.
type LoginResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

// ActionResponse acknowledges a processed client action. Refresh tells the
// client to re-poll immediately instead of waiting for the next tick.
type ActionResponse struct {
	OK      bool `json:"ok"`
	Refresh bool `json:"refresh,omitempty"`
}

// ErrorResponse communicates a request failure.
type ErrorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// ParseClientAction parses raw request bytes into a typed client action. It
// returns the action type string, the decoded struct, and any error. Unknown
// types are rejected.
func ParseClientAction(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse action: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeReact:
		var m ReactMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeEditStart:
		var m EditStartMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeEditCancel:
		var m EditCancelMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeEditSave:
		var m EditSaveMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeDelete:
		var m DeleteMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeTyping:
		var m TypingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeAutoRefresh:
		var m AutoRefreshMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client action type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}
