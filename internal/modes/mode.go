// internal/modes/mode.go
//
// Defines the Mode interface that every screen and overlay implements, the
// shared ModeContext they are initialized with, and the messages they use to
// talk to the App.

package modes

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/kingrea/adaapt/internal/api"
	"github.com/kingrea/adaapt/internal/auth"
	"github.com/kingrea/adaapt/internal/chat"
	"github.com/kingrea/adaapt/internal/config"
	"github.com/kingrea/adaapt/internal/directory"
	"github.com/kingrea/adaapt/internal/logbook"
	"github.com/kingrea/adaapt/internal/notify"
	"github.com/kingrea/adaapt/internal/selection"
	"github.com/kingrea/adaapt/internal/session"
)

// ModeContext provides shared collaborators for all modes.
type ModeContext struct {
	Config    *config.Config
	Logger    *zap.Logger
	Logbook   *logbook.Logbook
	Session   *session.Store
	Client    *api.Client
	Directory *directory.Client
	Auth      *auth.Workflow
	Chat      *chat.Orchestrator
}

// NewContext wires the client stack for cfg. The session file is loaded so
// a previous sign-in survives restarts.
func NewContext(cfg *config.Config, logger *zap.Logger, lb *logbook.Logbook) (*ModeContext, error) {
	if cfg == nil {
		return nil, fmt.Errorf("modes: config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	store := session.NewStore(cfg.SessionPath())
	if err := store.Load(); err != nil {
		lb.Warn("Discarding unreadable session: %v", err)
		_ = store.Clear()
	}
	client := api.New(api.Settings{
		BaseURL:   cfg.Client.API.BaseURL,
		QueryPath: cfg.Client.API.QueryPath,
		Timeout:   cfg.Client.API.Timeout,
	}, api.WithTokenSource(store), api.WithLogger(logger.Named("api")))
	ctx := &ModeContext{
		Config:    cfg,
		Logger:    logger,
		Logbook:   lb,
		Session:   store,
		Client:    client,
		Directory: directory.New(client, directory.WithLogger(logger.Named("directory"))),
	}
	ctx.Auth = auth.New(client, store,
		auth.WithLogger(logger.Named("auth")),
		auth.WithOnLogin(func(sess session.Session) {
			lb.Info("Signed in · session valid until %s", sess.Expiry.Format(time.RFC3339))
		}),
	)
	ctx.ResetChat()
	return ctx, nil
}

// ResetChat starts a fresh transcript, used after signing in again.
func (c *ModeContext) ResetChat() {
	c.Chat = chat.New(c.Client, chat.WithLogger(c.Logger.Named("chat")))
}

// RequestContext bounds one workflow step by the configured API timeout.
func (c *ModeContext) RequestContext() (context.Context, context.CancelFunc) {
	timeout := config.DefaultTimeout
	if c != nil && c.Config != nil && c.Config.Client.API.Timeout > 0 {
		timeout = c.Config.Client.API.Timeout
	}
	return context.WithTimeout(context.Background(), timeout)
}

// Mode defines the interface that all screens and overlays implement
type Mode interface {
	// Name returns the mode's display name
	Name() string

	// Init initializes the mode and returns a startup command
	Init(ctx *ModeContext) tea.Cmd

	// Update handles messages and returns the updated mode plus any commands
	Update(msg tea.Msg) (Mode, tea.Cmd)

	// View renders the mode's current state
	View() string

	// IsComplete returns true once an overlay has finished and should close
	IsComplete() bool
}

// ModeCompleteMsg signals that an overlay has finished
type ModeCompleteMsg struct {
	Error error
}

// NoticeMsg asks the App to show a timed notification.
type NoticeMsg struct {
	Level notify.Level
	Text  string
	TTL   time.Duration
}

// Overlay names the modal dialogs the Ask AI screen can open.
type Overlay int

const (
	OverlayUpload Overlay = iota
	OverlayDatasets
)

// OpenOverlayMsg asks the App to open an overlay above the current screen.
type OpenOverlayMsg struct {
	Overlay Overlay
}

// LoggedInMsg is emitted once per successful sign-in.
type LoggedInMsg struct {
	Session session.Session
}

// SessionExpiredMsg is emitted when the service rejects the session.
type SessionExpiredMsg struct{}

// SelectionCommittedMsg carries the datasets chosen in the overlay.
type SelectionCommittedMsg struct {
	Result selection.Result
}

// DomainsLoadedMsg delivers a directory listing to the mode that asked.
type DomainsLoadedMsg struct {
	Listing directory.Listing
}

// Notice returns a command that emits a NoticeMsg.
func Notice(level notify.Level, text string, ttl time.Duration) tea.Cmd {
	return func() tea.Msg {
		return NoticeMsg{Level: level, Text: text, TTL: ttl}
	}
}

// LoadDomains lists the accessible domains. It never fails; a degraded
// listing also emits the fallback warning.
func LoadDomains(ctx *ModeContext) tea.Cmd {
	return func() tea.Msg {
		reqCtx, cancel := ctx.RequestContext()
		defer cancel()
		listing := ctx.Directory.ListAccessible(reqCtx)
		if listing.Degraded {
			ctx.Logbook.Warn("Directory degraded: %v", listing.Cause)
		} else {
			ctx.Logbook.Info("Loaded %d accessible domains", len(listing.Domains))
		}
		return DomainsLoadedMsg{Listing: listing}
	}
}

// DomainNotices returns the follow-up command for a listing: the fallback
// warning when it is degraded, nothing otherwise.
func DomainNotices(listing directory.Listing) tea.Cmd {
	if !listing.Degraded {
		return nil
	}
	return Notice(notify.LevelWarning, listing.Warning, notify.ToastTTL)
}

// BaseMode provides common functionality for all modes
type BaseMode struct {
	ctx       *ModeContext
	name      string
	complete  bool
	statusMsg string
}

// NewBaseMode creates a new BaseMode with the given name
func NewBaseMode(name string) BaseMode {
	return BaseMode{name: name}
}

// Name returns the mode's display name
func (m *BaseMode) Name() string {
	return m.name
}

// IsComplete returns true if the mode has finished
func (m *BaseMode) IsComplete() bool {
	return m.complete
}

// SetComplete marks the mode as complete
func (m *BaseMode) SetComplete(complete bool) {
	m.complete = complete
}

// Context returns the mode context
func (m *BaseMode) Context() *ModeContext {
	return m.ctx
}

// SetContext sets the mode context
func (m *BaseMode) SetContext(ctx *ModeContext) {
	m.ctx = ctx
}

// StatusMsg returns the current status message
func (m *BaseMode) StatusMsg() string {
	return m.statusMsg
}

// SetStatusMsg sets the status message
func (m *BaseMode) SetStatusMsg(msg string) {
	m.statusMsg = msg
}

// LogInfo writes to the journey log when one is attached.
func (m *BaseMode) LogInfo(format string, args ...any) {
	if m.ctx == nil {
		return
	}
	m.ctx.Logbook.Info(format, args...)
}

// LogWarn writes a warning to the journey log when one is attached.
func (m *BaseMode) LogWarn(format string, args ...any) {
	if m.ctx == nil {
		return
	}
	m.ctx.Logbook.Warn(format, args...)
}
