package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/tripchat/chat-app/internal/chat"
	"github.com/tripchat/chat-app/internal/metrics"
	"github.com/tripchat/chat-app/internal/presence"
	"github.com/tripchat/chat-app/internal/protocol"
	"github.com/tripchat/chat-app/internal/store"
)

const (
	sessionHeader  = "X-Session-Token"
	maxActionBytes = 64 << 10
	maxUploadBytes = 16 << 20
)

// PollResponse is the result of one poll cycle: the rendered view plus the
// unread badge count and whether the session's refresh interval has elapsed.
type PollResponse struct {
	*chat.View
	Unread  int  `json:"unread"`
	Refresh bool `json:"refresh"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: encode response failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, protocol.ErrorResponse{Code: code, Error: msg})
}

// sessionToken extracts the token from the session header or a bearer
// Authorization header.
func sessionToken(r *http.Request) string {
	if t := r.Header.Get(sessionHeader); t != "" {
		return t
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// withSession resolves the caller's session and checks it belongs to the
// trip named in the route.
func (s *Server) withSession(next func(http.ResponseWriter, *http.Request, *Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := s.sessions.Get(sessionToken(r))
		if sess == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing or expired session")
			return
		}
		if trip, ok := mux.Vars(r)["trip"]; ok && trip != sess.Trip {
			writeError(w, http.StatusForbidden, "wrong_trip", "session belongs to another trip")
			return
		}
		next(w, r, sess)
	}
}

// handleLogin authenticates a participant against the trip's credential
// records. The admin password grants the admin role under any name.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req protocol.LoginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxActionBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid login payload")
		return
	}
	if req.Trip == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "trip and name are required")
		return
	}
	if !s.loginLimiter.Allow(req.Name) {
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many login attempts")
		return
	}

	s.mu.Lock()
	trip := s.doc.Trip(req.Trip)
	var participant store.Participant
	var isParticipant bool
	if trip != nil {
		participant, isParticipant = trip.Participants[req.Name]
	}
	s.mu.Unlock()
	if trip == nil {
		writeError(w, http.StatusNotFound, "unknown_trip", "no such trip")
		return
	}

	role := chat.RoleMember
	switch {
	case s.cfg.AdminPassword != "" && req.Password == s.cfg.AdminPassword:
		role = chat.RoleAdmin
	case isParticipant && participant.Password == req.Password:
		// member login
	default:
		writeError(w, http.StatusUnauthorized, "bad_credentials", "wrong name or password")
		return
	}

	sess := s.sessions.Create(req.Trip, req.Name, role)
	log.Printf("server: login trip=%s user=%s role=%s", req.Trip, req.Name, role)
	writeJSON(w, http.StatusOK, protocol.LoginResponse{Token: sess.Token, Role: string(role)})
}

// handlePoll runs one render pass for the viewer: presence heartbeat
// (debounced persistence), typing prune, read-marking, legacy cleanup, and
// the per-message view. The response carries the unread badge count and the
// cooperative refresh signal.
func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request, sess *Session) {
	started := time.Now()
	defer func() { metrics.PollLatency.Observe(time.Since(started).Seconds()) }()

	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	trip := s.doc.Trip(sess.Trip)
	if trip == nil {
		writeError(w, http.StatusNotFound, "unknown_trip", "no such trip")
		return
	}
	trip.EnsureStructures()

	persistDue := s.tracker.Heartbeat(trip, sess.Chat.User, now)

	view, saved, err := s.engine.Render(s.doc, sess.Trip, sess.Chat, now)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown_trip", err.Error())
		return
	}
	if persistDue && !saved {
		if err := s.store.Save(s.doc); err != nil {
			log.Printf("server: persist heartbeat failed: %v", err)
		}
	}

	unread := 0
	if since := r.URL.Query().Get("since"); since != "" {
		unread = chat.CountUnread(trip, sess.Chat.User, sess.Chat.Role, since)
	}

	writeJSON(w, http.StatusOK, PollResponse{
		View:    view,
		Unread:  unread,
		Refresh: sess.Refresh.Due(now),
	})
}

// handleSend accepts a new message as a multipart form: "text",
// "recipient", and at most one "file" part.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request, sess *Session) {
	if !s.msgLimiter.Allow(sess.Token) {
		writeError(w, http.StatusTooManyRequests, "rate_limited", "sending too fast")
		return
	}

	var (
		text      string
		recipient string
		upload    *chat.Upload
	)
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		// Bound the whole request before parsing; the slack covers the
		// text fields and multipart framing around a max-size file.
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+(1<<20))
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				writeError(w, http.StatusRequestEntityTooLarge, "attachment_too_large", "attachment exceeds the size limit")
				return
			}
			writeError(w, http.StatusBadRequest, "bad_request", "invalid multipart form")
			return
		}
		text = r.FormValue("text")
		recipient = r.FormValue("recipient")
		if file, header, err := r.FormFile("file"); err == nil {
			data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
			file.Close()
			if err != nil {
				writeError(w, http.StatusBadRequest, "bad_request", "unreadable attachment")
				return
			}
			if len(data) > maxUploadBytes {
				writeError(w, http.StatusRequestEntityTooLarge, "attachment_too_large", "attachment exceeds the size limit")
				return
			}
			upload = &chat.Upload{Name: header.Filename, Data: data}
		}
	} else {
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid form")
			return
		}
		text = r.FormValue("text")
		recipient = r.FormValue("recipient")
	}

	s.mu.Lock()
	sent, err := s.engine.Submit(s.doc, sess.Trip, sess.Chat.User, text, upload, recipient, time.Now())
	s.mu.Unlock()
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown_trip", err.Error())
			return
		}
		if errors.Is(err, chat.ErrBlocked) {
			writeError(w, http.StatusUnprocessableEntity, "blocked", err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "send_failed", "message could not be sent")
		return
	}

	writeJSON(w, http.StatusOK, protocol.ActionResponse{OK: true, Refresh: sent})
}

// handleAction dispatches a typed client action from the JSON envelope.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request, sess *Session) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxActionBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "unreadable body")
		return
	}
	_, msg, err := protocol.ParseClientAction(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	now := time.Now()
	refresh := false

	s.mu.Lock()
	switch m := msg.(type) {
	case protocol.ReactMsg:
		err = s.engine.ToggleReaction(s.doc, sess.Trip, m.MessageID, m.Emoji, sess.Chat)
		refresh = err == nil
	case protocol.EditStartMsg:
		err = s.startEdit(sess, m.MessageID)
	case protocol.EditCancelMsg:
		sess.Chat.StopEditing(sess.Trip, m.MessageID)
	case protocol.EditSaveMsg:
		err = s.engine.SaveEdit(s.doc, sess.Trip, m.MessageID, m.Text, sess.Chat)
		refresh = err == nil
	case protocol.DeleteMsg:
		err = s.engine.Delete(s.doc, sess.Trip, m.MessageID, sess.Chat)
		refresh = err == nil
	case protocol.TypingMsg:
		if trip := s.doc.Trip(sess.Trip); trip != nil {
			trip.EnsureStructures()
			presence.SetTyping(trip, sess.Chat.User, now)
		}
	case protocol.AutoRefreshMsg:
		sess.Refresh.SetEnabled(m.Enabled)
	}
	s.mu.Unlock()

	if err != nil {
		switch {
		case errors.Is(err, chat.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", err.Error())
		case errors.Is(err, chat.ErrForbidden):
			writeError(w, http.StatusForbidden, "forbidden", err.Error())
		case errors.Is(err, chat.ErrBlocked):
			writeError(w, http.StatusUnprocessableEntity, "blocked", err.Error())
		default:
			writeError(w, http.StatusBadRequest, "action_failed", err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, protocol.ActionResponse{OK: true, Refresh: refresh})
}

// startEdit flags a message as being edited, after checking the session may
// moderate it. Caller holds the document mutex.
func (s *Server) startEdit(sess *Session, msgID string) error {
	trip := s.doc.Trip(sess.Trip)
	if trip == nil {
		return chat.ErrNotFound
	}
	for _, m := range trip.Messages {
		if m.ID != msgID {
			continue
		}
		if m.Sender != sess.Chat.User && sess.Chat.Role != chat.RoleAdmin {
			return chat.ErrForbidden
		}
		sess.Chat.StartEditing(sess.Trip, msgID)
		return nil
	}
	return chat.ErrNotFound
}

// handleAttachment serves a stored attachment by filename. The file is only
// served when the session's trip has a message carrying that attachment and
// the message is visible to the caller; anything else is a 404, including a
// message whose file has gone missing (the client renders its "attachment
// not found" placeholder).
func (s *Server) handleAttachment(w http.ResponseWriter, r *http.Request, sess *Session) {
	name := filepath.Base(mux.Vars(r)["name"])

	s.mu.Lock()
	allowed := false
	if trip := s.doc.Trip(sess.Trip); trip != nil {
		for _, m := range trip.Messages {
			if m.AttachmentPath != "" && filepath.Base(m.AttachmentPath) == name {
				allowed = chat.Visible(m, sess.Chat.User, sess.Chat.Role)
				break
			}
		}
	}
	s.mu.Unlock()

	path := filepath.Join(s.engine.UploadDir(), name)
	if _, err := os.Stat(path); err != nil || !allowed {
		writeError(w, http.StatusNotFound, "attachment_missing", "attachment not found")
		return
	}
	http.ServeFile(w, r, path)
}
