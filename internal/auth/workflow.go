// Package auth drives sign-in and sign-up. It exchanges credentials for a
// token pair, hands the pair to the session store and reports the message
// the user should see.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kingrea/adaapt/internal/api"
	"github.com/kingrea/adaapt/internal/session"
)

// User-facing messages.
const (
	MsgLoginSucceeded  = "Login successful! Verifying account..."
	MsgLoginFailed     = "Invalid credentials. Please try again."
	MsgSignupSucceeded = "Account created successfully! Please sign in."
	MsgSignupFailed    = "Sign-up failed. Please check your input."
	MsgLoggedOut       = "You have been signed out."
)

var (
	// ErrMissingCredentials blocks a login with a blank email or password.
	ErrMissingCredentials = errors.New("auth: email and password are required")
	// ErrBusy is returned while another sign-in or sign-up is running.
	ErrBusy = errors.New("auth: a request is already in progress")
)

// MissingFieldsError lists the sign-up fields left blank.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return "auth: missing required fields: " + strings.Join(e.Fields, ", ")
}

// State is the workflow's position.
type State int

const (
	StateAnonymous State = iota
	StateAuthenticating
	StateAuthenticated
	StateRegistering
	StateRegistered
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateRegistering:
		return "registering"
	case StateRegistered:
		return "registered"
	default:
		return "unknown"
	}
}

// View is which form is showing.
type View int

const (
	ViewLogin View = iota
	ViewSignup
)

// Service is the part of the API client used here.
type Service interface {
	Login(ctx context.Context, email, password string) (api.TokenResponse, error)
	Register(ctx context.Context, in api.RegisterRequest) error
}

// Sessions persists token pairs.
type Sessions interface {
	Create(accessToken, refreshToken string, expiresIn time.Duration) (session.Session, error)
	Clear() error
}

// Outcome is what a finished request reports to the user.
type Outcome struct {
	OK      bool
	Message string
}

// Signup is the sign-up form as typed.
type Signup struct {
	FullName     string
	Email        string
	Organization string
	Department   string
	Role         string
	Password     string
	// AllowedDomains is comma-separated.
	AllowedDomains string
}

// Workflow is safe for concurrent use.
type Workflow struct {
	service  Service
	sessions Sessions
	onLogin  func(session.Session)
	logger   *zap.Logger

	mu    sync.Mutex
	state State
	view  View
}

// Option customizes the workflow.
type Option func(*Workflow)

// WithOnLogin registers a callback run once per successful login.
func WithOnLogin(fn func(session.Session)) Option {
	return func(w *Workflow) {
		w.onLogin = fn
	}
}

// WithLogger attaches a structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Workflow) {
		if l != nil {
			w.logger = l
		}
	}
}

// New builds a workflow.
func New(service Service, sessions Sessions, opts ...Option) *Workflow {
	w := &Workflow{service: service, sessions: sessions, logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// State reports the current state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// View reports the form on display.
func (w *Workflow) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.view
}

// ShowLogin switches to the sign-in form.
func (w *Workflow) ShowLogin() { w.setView(ViewLogin) }

// ShowSignup switches to the sign-up form.
func (w *Workflow) ShowSignup() { w.setView(ViewSignup) }

func (w *Workflow) setView(v View) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.view = v
}

// Login signs in. Blank credentials are rejected without a request; a
// rejected login leaves no tokens behind.
func (w *Workflow) Login(ctx context.Context, email, password string) (Outcome, error) {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(password) == "" {
		return Outcome{}, ErrMissingCredentials
	}
	if err := w.enter(StateAuthenticating); err != nil {
		return Outcome{}, err
	}

	tok, err := w.service.Login(ctx, email, password)
	if err != nil {
		w.leave(StateAnonymous)
		w.logger.Warn("login rejected", zap.Error(err))
		return Outcome{Message: api.Describe(err, MsgLoginFailed)}, err
	}
	sess, err := w.sessions.Create(tok.AccessToken, tok.RefreshToken, tok.ExpiresAfter())
	if err != nil {
		w.leave(StateAnonymous)
		w.logger.Error("persist session", zap.Error(err))
		return Outcome{Message: MsgLoginFailed}, fmt.Errorf("auth: store session: %w", err)
	}
	w.leave(StateAuthenticated)
	w.logger.Info("signed in", zap.Time("expiry", sess.Expiry))
	if w.onLogin != nil {
		w.onLogin(sess)
	}
	return Outcome{OK: true, Message: MsgLoginSucceeded}, nil
}

// Register creates an account and, on success, returns to the sign-in form.
func (w *Workflow) Register(ctx context.Context, form Signup) (Outcome, error) {
	req, err := form.request()
	if err != nil {
		return Outcome{}, err
	}
	if err := w.enter(StateRegistering); err != nil {
		return Outcome{}, err
	}
	if err := w.service.Register(ctx, req); err != nil {
		w.leave(StateAnonymous)
		w.logger.Warn("sign-up rejected", zap.Error(err))
		return Outcome{Message: api.Describe(err, MsgSignupFailed)}, err
	}
	w.mu.Lock()
	w.state = StateRegistered
	w.view = ViewLogin
	w.mu.Unlock()
	w.logger.Info("account created", zap.Int("allowed_domains", len(req.AllowedDomains)))
	return Outcome{OK: true, Message: MsgSignupSucceeded}, nil
}

// Logout forgets the session and returns to the sign-in form.
func (w *Workflow) Logout() error {
	w.mu.Lock()
	w.state = StateAnonymous
	w.view = ViewLogin
	w.mu.Unlock()
	if err := w.sessions.Clear(); err != nil {
		return fmt.Errorf("auth: logout: %w", err)
	}
	w.logger.Info("signed out")
	return nil
}

func (w *Workflow) enter(s State) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == StateAuthenticating || w.state == StateRegistering {
		return ErrBusy
	}
	w.state = s
	return nil
}

func (w *Workflow) leave(s State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = s
}

func (f Signup) request() (api.RegisterRequest, error) {
	required := []struct{ name, value string }{
		{"full name", f.FullName},
		{"email", f.Email},
		{"organization", f.Organization},
		{"department", f.Department},
		{"role", f.Role},
		{"password", f.Password},
	}
	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return api.RegisterRequest{}, &MissingFieldsError{Fields: missing}
	}
	return api.RegisterRequest{
		Email:          strings.TrimSpace(f.Email),
		FullName:       strings.TrimSpace(f.FullName),
		Organization:   strings.TrimSpace(f.Organization),
		Department:     strings.TrimSpace(f.Department),
		Role:           strings.TrimSpace(f.Role),
		Password:       f.Password,
		AllowedDomains: SplitDomains(f.AllowedDomains),
	}, nil
}

// SplitDomains turns "a, b,,c" into [a b c]. The result is never nil.
func SplitDomains(raw string) []string {
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
