// Package fakeapi is an in-process stand-in for the knowledge service. It
// serves every endpoint the client uses from in-memory fixtures, issues real
// HS256 tokens and can be told to fail individual routes. Tests mount
// Handler on an httptest server; `adaapt mock-server` runs it standalone.
package fakeapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kingrea/adaapt/internal/api"
)

// DropConnection as a failure status makes the route hang up without a
// response, which the client sees as a network error.
const DropConnection = -1

// Route names accepted by Fail.
const (
	RouteLogin    = "POST /auth/login"
	RouteRegister = "POST /auth/register"
	RouteMe       = "GET /auth/me"
	RouteDomains  = "GET /knowledge-base/domains"
	RouteUpload   = "POST /ingestion/upload"
	RouteQuery    = "POST /query"
)

// Upload is one document received by the fake service.
type Upload struct {
	DomainID string
	FileName string
	Size     int64
	Title    string
	Author   string
	Language string
	Email    string
	Received time.Time
}

type failure struct {
	status int
	detail string
}

// Server is the fake knowledge service.
type Server struct {
	settings Settings
	logger   *zap.Logger
	clock    func() time.Time
	answerer Answerer
	latency  time.Duration

	mu       sync.RWMutex
	accounts map[string]*Account
	catalog  []api.Domain
	uploads  []Upload
	failures map[string]failure

	lifecycle sync.Mutex
	server    *http.Server
	listener  net.Listener
}

// Option customizes server construction.
type Option func(*Server)

// WithLogger overrides the default no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock allows tests to control token timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithFixtures replaces the default accounts and catalog.
func WithFixtures(f Fixtures) Option {
	return func(s *Server) {
		s.load(f)
	}
}

// WithAnswerer overrides EchoAnswerer.
func WithAnswerer(a Answerer) Option {
	return func(s *Server) {
		if a != nil {
			s.answerer = a
		}
	}
}

// WithLatency delays every response by d.
func WithLatency(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.latency = d
		}
	}
}

// NewServer prepares a fake service seeded with DefaultFixtures.
func NewServer(settings Settings, opts ...Option) *Server {
	settings.normalize()
	s := &Server{
		settings: settings,
		logger:   zap.NewNop(),
		clock:    time.Now,
		answerer: EchoAnswerer,
		failures: map[string]failure{},
	}
	s.load(DefaultFixtures())
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Start binds the TCP listener and begins serving HTTP traffic.
func (s *Server) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.listener != nil {
		return fmt.Errorf("fakeapi: server already started")
	}
	addr := s.settings.Address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("fakeapi: listen %s: %w", addr, err)
	}
	server := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.settings.ReadTimeout,
		WriteTimeout: s.settings.WriteTimeout,
		IdleTimeout:  s.settings.IdleTimeout,
	}
	if ctx != nil {
		server.BaseContext = func(net.Listener) context.Context { return ctx }
	}
	s.listener = listener
	s.server = server
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("fakeapi: serve", zap.Error(err))
		}
	}()
	s.logger.Info("fakeapi: listening", zap.String("addr", listener.Addr().String()))
	return nil
}

// Shutdown stops accepting new connections and waits for in-flight requests to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.server == nil {
		return nil
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	s.listener = nil
	s.server = nil
	return nil
}

// BaseURL returns the API root (prefix included) of the running server.
func (s *Server) BaseURL() string {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.listener == nil {
		return s.settings.URL()
	}
	return "http://" + s.listener.Addr().String() + s.settings.Prefix
}

// Handler returns the routed handler, for mounting on httptest servers.
func (s *Server) Handler() http.Handler {
	p := s.settings.Prefix
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST "+p+"/auth/login", s.guard(RouteLogin, s.handleLogin))
	mux.HandleFunc("POST "+p+"/auth/register", s.guard(RouteRegister, s.handleRegister))
	mux.HandleFunc("GET "+p+"/auth/me", s.guard(RouteMe, s.authed(s.handleMe)))
	mux.HandleFunc("GET "+p+"/knowledge-base/domains", s.guard(RouteDomains, s.authed(s.handleDomains)))
	mux.HandleFunc("POST "+p+"/ingestion/upload", s.guard(RouteUpload, s.authed(s.handleUpload)))
	mux.HandleFunc("POST "+p+"/query", s.guard(RouteQuery, s.authed(s.handleQuery)))
	return s.logRequests(mux)
}

// Fail makes route answer with status and detail until Recover is called.
// Use DropConnection to simulate a transport failure.
func (s *Server) Fail(route string, status int, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = failure{status: status, detail: detail}
}

// Recover clears an injected failure.
func (s *Server) Recover(route string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, route)
}

// Uploads returns every document received so far.
func (s *Server) Uploads() []Upload {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Upload(nil), s.uploads...)
}

// Account returns the stored account for email.
func (s *Server) Account(email string) (Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[normalizeEmail(email)]
	if !ok {
		return Account{}, false
	}
	return *acct, true
}

// IssueToken signs an access token for email, for tests that skip login.
func (s *Server) IssueToken(email string) (string, error) {
	acct, ok := s.Account(email)
	if !ok {
		return "", fmt.Errorf("fakeapi: unknown account %s", email)
	}
	return s.sign(acct.User, "access", s.settings.TokenTTL)
}

func (s *Server) load(f Fixtures) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = make(map[string]*Account, len(f.Accounts))
	for i := range f.Accounts {
		acct := f.Accounts[i]
		acct.User.AllowedDomains = append([]string(nil), acct.User.AllowedDomains...)
		s.accounts[normalizeEmail(acct.User.Email)] = &acct
	}
	s.catalog = append(s.catalog[:0], f.Domains...)
}
