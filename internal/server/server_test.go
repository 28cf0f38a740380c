package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/tripchat/chat-app/internal/chat"
	"github.com/tripchat/chat-app/internal/protocol"
	"github.com/tripchat/chat-app/internal/store"
)

// newTestServer builds a server over a temp-dir store with one trip and
// three participants.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	st := store.New(store.Config{
		Path:       filepath.Join(dir, "trips.json"),
		BackupDir:  filepath.Join(dir, "backups"),
		MaxBackups: 3,
	})
	engine := chat.NewEngine(st, filepath.Join(dir, "uploads"))
	srv := New(Config{
		ListenAddr:    ":0",
		RefreshEvery:  5 * time.Second,
		AdminPassword: "root-pw",
	}, st, engine)

	trip := srv.doc.EnsureTrip("rome")
	for _, name := range []string{"anna", "ben", "cora"} {
		trip.Participants[name] = store.Participant{Password: name + "-pw"}
	}
	return srv
}

func login(t *testing.T, srv *Server, name, password string) string {
	t.Helper()
	body, _ := json.Marshal(protocol.LoginRequest{Trip: "rome", Name: name, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: status %d: %s", name, w.Code, w.Body.String())
	}
	var resp protocol.LoginResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp.Token
}

func doJSON(t *testing.T, srv *Server, method, url, token string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, url, &body)
	if token != "" {
		req.Header.Set(sessionHeader, token)
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestLogin(t *testing.T) {
	srv := newTestServer(t)

	t.Run("member", func(t *testing.T) {
		token := login(t, srv, "anna", "anna-pw")
		if token == "" {
			t.Fatal("empty token")
		}
	})
	t.Run("admin password grants admin", func(t *testing.T) {
		body, _ := json.Marshal(protocol.LoginRequest{Trip: "rome", Name: "boss", Password: "root-pw"})
		w := httptest.NewRecorder()
		srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body)))
		if w.Code != http.StatusOK {
			t.Fatalf("status %d", w.Code)
		}
		var resp protocol.LoginResponse
		json.Unmarshal(w.Body.Bytes(), &resp)
		if resp.Role != string(chat.RoleAdmin) {
			t.Fatalf("role = %q, want admin", resp.Role)
		}
	})
	t.Run("wrong password", func(t *testing.T) {
		body, _ := json.Marshal(protocol.LoginRequest{Trip: "rome", Name: "anna", Password: "nope"})
		w := httptest.NewRecorder()
		srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body)))
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status %d, want 401", w.Code)
		}
	})
	t.Run("unknown trip", func(t *testing.T) {
		body, _ := json.Marshal(protocol.LoginRequest{Trip: "berlin", Name: "anna", Password: "anna-pw"})
		w := httptest.NewRecorder()
		srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body)))
		if w.Code != http.StatusNotFound {
			t.Fatalf("status %d, want 404", w.Code)
		}
	})
}

func TestPoll_RequiresSession(t *testing.T) {
	srv := newTestServer(t)
	w := doJSON(t, srv, http.MethodGet, "/api/trips/rome/chat", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", w.Code)
	}
}

func TestSendAndPoll(t *testing.T) {
	srv := newTestServer(t)
	anna := login(t, srv, "anna", "anna-pw")
	ben := login(t, srv, "ben", "ben-pw")

	// anna sends a public message via a plain form post.
	req := httptest.NewRequest(http.MethodPost, "/api/trips/rome/messages",
		bytes.NewBufferString("text=hello+everyone&recipient="))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(sessionHeader, anna)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("send status %d: %s", w.Code, w.Body.String())
	}
	var ar protocol.ActionResponse
	json.Unmarshal(w.Body.Bytes(), &ar)
	if !ar.OK || !ar.Refresh {
		t.Fatalf("send response = %+v, want ok+refresh", ar)
	}

	// ben polls: sees the message and gets marked as reader.
	w = doJSON(t, srv, http.MethodGet, "/api/trips/rome/chat", ben, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("poll status %d: %s", w.Code, w.Body.String())
	}
	var poll PollResponse
	if err := json.Unmarshal(w.Body.Bytes(), &poll); err != nil {
		t.Fatal(err)
	}
	if len(poll.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(poll.Messages))
	}
	if poll.Messages[0].Text != "hello everyone" {
		t.Fatalf("text = %q", poll.Messages[0].Text)
	}

	msg := srv.doc.Trip("rome").Messages[0]
	if !msg.HasRead("ben") {
		t.Fatal("poll did not mark ben as reader")
	}
	// ben shows up in the online set after his poll heartbeat.
	found := false
	for _, u := range poll.Online {
		if u == "ben" {
			found = true
		}
	}
	if !found {
		t.Fatalf("ben missing from online set: %v", poll.Online)
	}
}

func TestSend_MultipartAttachment(t *testing.T) {
	srv := newTestServer(t)
	anna := login(t, srv, "anna", "anna-pw")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("text", "see attachment")
	mw.WriteField("recipient", "ALL")
	fw, _ := mw.CreateFormFile("file", "../../etc/passwd.png")
	fw.Write([]byte("imgdata"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/trips/rome/messages", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(sessionHeader, anna)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("send status %d: %s", w.Code, w.Body.String())
	}

	msg := srv.doc.Trip("rome").Messages[0]
	if msg.AttachmentPath == "" {
		t.Fatal("attachment not stored")
	}
	if filepath.Dir(msg.AttachmentPath) != srv.engine.UploadDir() {
		t.Fatalf("attachment escaped upload dir: %q", msg.AttachmentPath)
	}

	// The stored file is downloadable by name.
	name := filepath.Base(msg.AttachmentPath)
	w = doJSON(t, srv, http.MethodGet, "/api/trips/rome/uploads/"+name, anna, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("download status %d", w.Code)
	}
	if w.Body.String() != "imgdata" {
		t.Fatalf("download body = %q", w.Body.String())
	}
}

func TestAttachment_MissingIs404(t *testing.T) {
	srv := newTestServer(t)
	anna := login(t, srv, "anna", "anna-pw")
	w := doJSON(t, srv, http.MethodGet, "/api/trips/rome/uploads/nope.png", anna, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", w.Code)
	}
}

func TestAttachment_PrivateOnlyServedToParticipants(t *testing.T) {
	srv := newTestServer(t)
	anna := login(t, srv, "anna", "anna-pw")
	ben := login(t, srv, "ben", "ben-pw")
	cora := login(t, srv, "cora", "cora-pw")

	// anna sends ben a private message with an attachment.
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("text", "for your eyes only")
	mw.WriteField("recipient", "ben")
	fw, _ := mw.CreateFormFile("file", "ticket.pdf")
	fw.Write([]byte("pdfdata"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/trips/rome/messages", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(sessionHeader, anna)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("send status %d: %s", w.Code, w.Body.String())
	}
	name := filepath.Base(srv.doc.Trip("rome").Messages[0].AttachmentPath)

	// The recipient can fetch it, a third participant cannot.
	w = doJSON(t, srv, http.MethodGet, "/api/trips/rome/uploads/"+name, ben, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("recipient download status %d", w.Code)
	}
	w = doJSON(t, srv, http.MethodGet, "/api/trips/rome/uploads/"+name, cora, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("third-party download status %d, want 404", w.Code)
	}

	// A session bound to another trip never reaches the lookup.
	srv.doc.EnsureTrip("lisbon").Participants["dana"] = store.Participant{Password: "dana-pw"}
	body, _ := json.Marshal(protocol.LoginRequest{Trip: "lisbon", Name: "dana", Password: "dana-pw"})
	lw := httptest.NewRecorder()
	srv.Router().ServeHTTP(lw, httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body)))
	if lw.Code != http.StatusOK {
		t.Fatalf("lisbon login status %d", lw.Code)
	}
	var resp protocol.LoginResponse
	json.Unmarshal(lw.Body.Bytes(), &resp)
	w = doJSON(t, srv, http.MethodGet, "/api/trips/rome/uploads/"+name, resp.Token, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("cross-trip download status %d, want 403", w.Code)
	}
}

func TestSend_OversizedAttachmentRejected(t *testing.T) {
	srv := newTestServer(t)
	anna := login(t, srv, "anna", "anna-pw")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("text", "huge file")
	fw, _ := mw.CreateFormFile("file", "video.mp4")
	fw.Write(bytes.Repeat([]byte("x"), maxUploadBytes+100))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/trips/rome/messages", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(sessionHeader, anna)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status %d, want 413", w.Code)
	}
	if got := len(srv.doc.Trip("rome").Messages); got != 0 {
		t.Fatalf("oversized upload stored %d messages", got)
	}
}

func TestAction_ReactToggle(t *testing.T) {
	srv := newTestServer(t)
	anna := login(t, srv, "anna", "anna-pw")
	ben := login(t, srv, "ben", "ben-pw")

	req := httptest.NewRequest(http.MethodPost, "/api/trips/rome/messages",
		bytes.NewBufferString("text=hi"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(sessionHeader, anna)
	srv.Router().ServeHTTP(httptest.NewRecorder(), req)

	msgID := srv.doc.Trip("rome").Messages[0].ID
	react := map[string]string{"type": "react", "message_id": msgID, "emoji": "👍"}

	w := doJSON(t, srv, http.MethodPost, "/api/trips/rome/actions", ben, react)
	if w.Code != http.StatusOK {
		t.Fatalf("react status %d: %s", w.Code, w.Body.String())
	}
	if got := srv.doc.Trip("rome").Messages[0].Reactions["👍"]; len(got) != 1 {
		t.Fatalf("reaction not recorded: %v", got)
	}

	w = doJSON(t, srv, http.MethodPost, "/api/trips/rome/actions", ben, react)
	if w.Code != http.StatusOK {
		t.Fatalf("second react status %d", w.Code)
	}
	if _, ok := srv.doc.Trip("rome").Messages[0].Reactions["👍"]; ok {
		t.Fatal("toggle off did not delete the emoji key")
	}
}

func TestAction_DeleteForbiddenForOtherMember(t *testing.T) {
	srv := newTestServer(t)
	anna := login(t, srv, "anna", "anna-pw")
	ben := login(t, srv, "ben", "ben-pw")

	req := httptest.NewRequest(http.MethodPost, "/api/trips/rome/messages",
		bytes.NewBufferString("text=mine"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(sessionHeader, anna)
	srv.Router().ServeHTTP(httptest.NewRecorder(), req)
	msgID := srv.doc.Trip("rome").Messages[0].ID

	w := doJSON(t, srv, http.MethodPost, "/api/trips/rome/actions", ben,
		map[string]string{"type": "delete", "message_id": msgID})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status %d, want 403", w.Code)
	}
	if len(srv.doc.Trip("rome").Messages) != 1 {
		t.Fatal("message deleted despite missing permission")
	}
}

func TestAction_EditFlow(t *testing.T) {
	srv := newTestServer(t)
	anna := login(t, srv, "anna", "anna-pw")

	req := httptest.NewRequest(http.MethodPost, "/api/trips/rome/messages",
		bytes.NewBufferString("text=tpyo"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(sessionHeader, anna)
	srv.Router().ServeHTTP(httptest.NewRecorder(), req)
	msgID := srv.doc.Trip("rome").Messages[0].ID

	w := doJSON(t, srv, http.MethodPost, "/api/trips/rome/actions", anna,
		map[string]string{"type": "edit_start", "message_id": msgID})
	if w.Code != http.StatusOK {
		t.Fatalf("edit_start status %d", w.Code)
	}

	w = doJSON(t, srv, http.MethodPost, "/api/trips/rome/actions", anna,
		map[string]string{"type": "edit_save", "message_id": msgID, "text": " typo fixed "})
	if w.Code != http.StatusOK {
		t.Fatalf("edit_save status %d: %s", w.Code, w.Body.String())
	}
	if got := srv.doc.Trip("rome").Messages[0].Text; got != "typo fixed" {
		t.Fatalf("text = %q, want %q", got, "typo fixed")
	}
}

func TestAction_TypingShowsForOthers(t *testing.T) {
	srv := newTestServer(t)
	anna := login(t, srv, "anna", "anna-pw")
	ben := login(t, srv, "ben", "ben-pw")

	w := doJSON(t, srv, http.MethodPost, "/api/trips/rome/actions", anna,
		map[string]string{"type": "typing"})
	if w.Code != http.StatusOK {
		t.Fatalf("typing status %d", w.Code)
	}

	w = doJSON(t, srv, http.MethodGet, "/api/trips/rome/chat", ben, nil)
	var poll PollResponse
	json.Unmarshal(w.Body.Bytes(), &poll)
	if len(poll.Typing) != 1 || poll.Typing[0] != "anna" {
		t.Fatalf("Typing = %v, want [anna]", poll.Typing)
	}
}

func TestSend_RateLimited(t *testing.T) {
	srv := newTestServer(t)
	anna := login(t, srv, "anna", "anna-pw")

	limited := false
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/trips/rome/messages",
			bytes.NewBufferString(fmt.Sprintf("text=msg-%d", i)))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set(sessionHeader, anna)
		w := httptest.NewRecorder()
		srv.Router().ServeHTTP(w, req)
		if w.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Fatal("burst of sends was never rate limited")
	}
}

func TestSessionRegistry_Expiry(t *testing.T) {
	r := NewSessionRegistry(5 * time.Second)
	s := r.Create("rome", "anna", chat.RoleMember)

	if got := r.Get(s.Token); got == nil {
		t.Fatal("fresh session not found")
	}
	s.LastActive = time.Now().Add(-2 * sessionTTL)
	if got := r.Get(s.Token); got != nil {
		t.Fatal("expired session still resolvable")
	}
}
