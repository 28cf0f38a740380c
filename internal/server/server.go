package server

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/tripchat/chat-app/internal/chat"
	"github.com/tripchat/chat-app/internal/metrics"
	"github.com/tripchat/chat-app/internal/presence"
	"github.com/tripchat/chat-app/internal/ratelimit"
	"github.com/tripchat/chat-app/internal/store"
)

// Config holds server tuning parameters.
type Config struct {
	ListenAddr    string
	RefreshEvery  time.Duration
	AdminPassword string
}

// Server owns the in-memory copy of the shared document and serializes all
// access to it. Within the process every request is one atomic
// read-mutate-write cycle; across processes the file on disk remains
// last-write-wins at document granularity.
type Server struct {
	cfg      Config
	store    *store.Store
	engine   *chat.Engine
	tracker  *presence.Tracker
	sessions *SessionRegistry

	msgLimiter   *ratelimit.Limiter
	loginLimiter *ratelimit.Limiter

	mu  sync.Mutex
	doc *store.Document

	httpSrv *http.Server
}

// New creates a server and loads the document once from disk.
func New(cfg Config, st *store.Store, engine *chat.Engine) *Server {
	return &Server{
		cfg:          cfg,
		store:        st,
		engine:       engine,
		tracker:      presence.NewTracker(),
		sessions:     NewSessionRegistry(cfg.RefreshEvery),
		msgLimiter:   ratelimit.NewLimiter(ratelimit.RuleMessage),
		loginLimiter: ratelimit.NewLimiter(ratelimit.RuleLogin),
		doc:          st.Load(),
	}
}

// Router builds the HTTP route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/api/trips/{trip}/chat", s.withSession(s.handlePoll)).Methods(http.MethodGet)
	r.HandleFunc("/api/trips/{trip}/messages", s.withSession(s.handleSend)).Methods(http.MethodPost)
	r.HandleFunc("/api/trips/{trip}/actions", s.withSession(s.handleAction)).Methods(http.MethodPost)
	r.HandleFunc("/api/trips/{trip}/uploads/{name}", s.withSession(s.handleAttachment)).Methods(http.MethodGet)

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	return r
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	log.Printf("server: listening on %s", s.cfg.ListenAddr)
	s.httpSrv = &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: s.Router(),
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown stops accepting connections, drains in-flight requests, and
// flushes the document so nothing observed since the last save is lost.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpSrv != nil {
		err = s.httpSrv.Shutdown(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if saveErr := s.store.Save(s.doc); saveErr != nil {
		log.Printf("server: final save failed: %v", saveErr)
		if err == nil {
			err = saveErr
		}
	}
	return err
}
