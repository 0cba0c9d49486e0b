// internal/tui/app.go
//
// This is the main TUI (Terminal User Interface) for adaapt.
// It uses bubbletea, which follows The Elm Architecture:
//
// 1. Model: Your application state
// 2. Update: A function that updates state based on messages
// 3. View: A function that renders state to a string
//
// Signed out, the App shows the login mode. Signed in, it shows a sidebar of
// screens, with Ask AI first, and hosts the upload and datasets overlays.

package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/kingrea/adaapt/internal/auth"
	"github.com/kingrea/adaapt/internal/config"
	"github.com/kingrea/adaapt/internal/logbook"
	"github.com/kingrea/adaapt/internal/modes"
	"github.com/kingrea/adaapt/internal/modes/askai"
	"github.com/kingrea/adaapt/internal/modes/datasets"
	"github.com/kingrea/adaapt/internal/modes/login"
	"github.com/kingrea/adaapt/internal/modes/screens"
	"github.com/kingrea/adaapt/internal/modes/uploader"
	"github.com/kingrea/adaapt/internal/notify"
)

// appState represents which "screen" we're on
type appState int

const (
	stateLogin appState = iota // Sign in / sign up
	stateHome                  // Sidebar plus the selected screen
)

type focusArea int

const (
	focusContent focusArea = iota
	focusSidebar
)

const (
	sessionExpiredText = "Your session has expired. Please sign in again."
	logPanelLines      = 6
	sidebarWidth       = 24
	logoutTitle        = "Log Out"
)

// noticeExpiredMsg triggers a re-render once a notice's TTL has passed.
type noticeExpiredMsg struct{}

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithTray replaces the notification tray.
func WithTray(tray *notify.Tray) AppOption {
	return func(a *App) {
		if tray != nil {
			a.tray = tray
		}
	}
}

// App is the main application model. In bubbletea, this holds ALL your state.
type App struct {
	state   appState
	ctx     *modes.ModeContext
	config  *config.Config
	logbook *logbook.Logbook
	tray    *notify.Tray

	login   *login.Mode
	screens []modes.Mode
	active  int
	overlay modes.Mode

	sidebar   list.Model
	focus     focusArea
	statusMsg string

	// Window size (we get this from bubbletea)
	width  int
	height int
}

// menuItem implements list.Item interface for the sidebar
type menuItem struct {
	title string
	desc  string
}

func (i menuItem) Title() string       { return i.title }
func (i menuItem) Description() string { return i.desc }
func (i menuItem) FilterValue() string { return i.title }

// NewApp creates a new App instance
func NewApp(cfg *config.Config, logger *zap.Logger, lb *logbook.Logbook, opts ...AppOption) (*App, error) {
	ctx, err := modes.NewContext(cfg, logger, lb)
	if err != nil {
		return nil, err
	}

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = false
	delegate.SetSpacing(0)
	sidebar := list.New(nil, delegate, sidebarWidth, 12)
	sidebar.Title = "◆ ADAAPT"
	sidebar.SetShowStatusBar(false)
	sidebar.SetFilteringEnabled(false)
	sidebar.SetShowHelp(false)

	app := &App{
		state:   stateLogin,
		ctx:     ctx,
		config:  cfg,
		logbook: lb,
		tray:    notify.NewTray(),
		login:   login.New(),
		sidebar: sidebar,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	if ctx.Session.SignedIn() {
		app.state = stateHome
	}
	app.buildScreens()
	lb.Info("Session opened · signed in: %t", app.state == stateHome)
	return app, nil
}

func (a *App) buildScreens() {
	a.screens = []modes.Mode{
		askai.New(),
		screens.Insights(),
		screens.Discover(),
		screens.TeamChat(),
		screens.Administration(),
	}
	items := make([]list.Item, 0, len(a.screens)+1)
	for _, s := range a.screens {
		items = append(items, menuItem{title: s.Name()})
	}
	items = append(items, menuItem{title: logoutTitle})
	a.sidebar.SetItems(items)
	a.sidebar.Select(0)
	a.active = 0
	a.focus = focusContent
	a.overlay = nil
}

func (a *App) logInfo(format string, args ...any) {
	a.logbook.Info(format, args...)
}

func (a *App) logWarn(format string, args ...any) {
	a.logbook.Warn(format, args...)
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	if a.state == stateLogin {
		return a.login.Init(a.ctx)
	}
	return a.enterHome()
}

func (a *App) enterHome() tea.Cmd {
	a.state = stateHome
	cmds := make([]tea.Cmd, 0, len(a.screens)+1)
	for _, s := range a.screens {
		cmds = append(cmds, s.Init(a.ctx))
	}
	cmds = append(cmds, a.resize())
	return tea.Batch(cmds...)
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, a.resize()

	case modes.NoticeMsg:
		notice := a.tray.Push(msg.Level, msg.Text, msg.TTL)
		return a, tea.Tick(notice.TTL, func(time.Time) tea.Msg { return noticeExpiredMsg{} })

	case noticeExpiredMsg:
		return a, nil

	case modes.LoggedInMsg:
		a.ctx.ResetChat()
		a.buildScreens()
		a.logInfo("Opened home · session valid until %s", msg.Session.Expiry.Format(time.RFC3339))
		return a, a.enterHome()

	case modes.SessionExpiredMsg:
		a.logWarn("Session rejected by the service, signing out")
		return a, tea.Batch(
			a.signOut(),
			modes.Notice(notify.LevelWarning, sessionExpiredText, notify.ToastTTL),
		)

	case modes.OpenOverlayMsg:
		return a, a.openOverlay(msg.Overlay)

	case modes.SelectionCommittedMsg:
		a.ctx.Chat.SetSelection(msg.Result.Selection)
		return a, a.broadcast(msg)

	case modes.ModeCompleteMsg:
		if a.overlay != nil && a.overlay.IsComplete() {
			a.overlay = nil
		}
		return a, nil

	case tea.KeyMsg:
		return a, a.handleKey(msg)
	}

	if a.state == stateLogin {
		_, cmd := a.login.Update(msg)
		return a, cmd
	}
	return a, a.broadcast(msg)
}

func (a *App) handleKey(msg tea.KeyMsg) tea.Cmd {
	key := msg.String()
	if key == "ctrl+c" {
		return tea.Quit
	}
	if a.state == stateLogin {
		_, cmd := a.login.Update(msg)
		return cmd
	}
	if a.overlay != nil {
		_, cmd := a.overlay.Update(msg)
		if a.overlay.IsComplete() {
			a.overlay = nil
		}
		return cmd
	}
	if a.focus == focusSidebar {
		switch key {
		case "q":
			return tea.Quit
		case "enter":
			return a.selectSidebarItem()
		case "tab", "right", "l":
			a.focus = focusContent
			return nil
		}
		var cmd tea.Cmd
		a.sidebar, cmd = a.sidebar.Update(msg)
		return cmd
	}
	if key == "esc" {
		a.focus = focusSidebar
		return nil
	}
	_, cmd := a.screens[a.active].Update(msg)
	return cmd
}

// broadcast delivers non-key messages to the overlay and every screen, so
// replies started before an overlay opened still reach their screen.
func (a *App) broadcast(msg tea.Msg) tea.Cmd {
	var cmds []tea.Cmd
	if a.overlay != nil {
		_, cmd := a.overlay.Update(msg)
		cmds = append(cmds, cmd)
		if a.overlay.IsComplete() {
			a.overlay = nil
		}
	}
	for _, s := range a.screens {
		_, cmd := s.Update(msg)
		cmds = append(cmds, cmd)
	}
	return tea.Batch(cmds...)
}

func (a *App) selectSidebarItem() tea.Cmd {
	idx := a.sidebar.Index()
	if idx >= len(a.screens) {
		return a.logout()
	}
	a.active = idx
	a.focus = focusContent
	a.logInfo("Opened %s", a.screens[idx].Name())
	return nil
}

func (a *App) openOverlay(kind modes.Overlay) tea.Cmd {
	if a.state != stateHome {
		return nil
	}
	var overlay modes.Mode
	switch kind {
	case modes.OverlayUpload:
		overlay = uploader.New()
	case modes.OverlayDatasets:
		overlay = datasets.New()
	default:
		return nil
	}
	a.overlay = overlay
	cmd := overlay.Init(a.ctx)
	if a.width > 0 {
		_, sizeCmd := overlay.Update(a.contentSize())
		cmd = tea.Batch(cmd, sizeCmd)
	}
	return cmd
}

func (a *App) logout() tea.Cmd {
	a.logInfo("Signed out")
	return tea.Batch(
		a.signOut(),
		modes.Notice(notify.LevelInfo, auth.MsgLoggedOut, notify.ToastTTL),
	)
}

func (a *App) signOut() tea.Cmd {
	if err := a.ctx.Auth.Logout(); err != nil {
		a.logWarn("Could not remove session file: %v", err)
	}
	a.ctx.ResetChat()
	a.buildScreens()
	a.state = stateLogin
	a.login = login.New()
	cmd := a.login.Init(a.ctx)
	if a.width > 0 {
		_, sizeCmd := a.login.Update(tea.WindowSizeMsg{Width: a.width, Height: a.height})
		cmd = tea.Batch(cmd, sizeCmd)
	}
	return cmd
}

func (a *App) contentSize() tea.WindowSizeMsg {
	width := a.width - sidebarWidth - 6
	height := a.height - logPanelLines - 8
	return tea.WindowSizeMsg{Width: max(width, 20), Height: max(height, 10)}
}

func (a *App) resize() tea.Cmd {
	if a.width <= 0 {
		return nil
	}
	if a.state == stateLogin {
		_, cmd := a.login.Update(tea.WindowSizeMsg{Width: a.width, Height: a.height})
		return cmd
	}
	a.sidebar.SetSize(sidebarWidth, max(a.height-logPanelLines-8, 8))
	size := a.contentSize()
	cmds := []tea.Cmd{}
	for _, s := range a.screens {
		_, cmd := s.Update(size)
		cmds = append(cmds, cmd)
	}
	if a.overlay != nil {
		_, cmd := a.overlay.Update(size)
		cmds = append(cmds, cmd)
	}
	return tea.Batch(cmds...)
}

// View renders the current state to a string.
func (a *App) View() string {
	var body string
	if a.state == stateLogin {
		body = a.login.View()
	} else {
		body = a.renderHome()
	}
	sections := []string{body}
	if notices := a.renderNotices(); notices != "" {
		sections = append(sections, notices)
	}
	return strings.Join(sections, "\n")
}

func (a *App) renderHome() string {
	borderColor := func(focused bool) lipgloss.Color {
		if focused {
			return lipgloss.Color("#4D96FF")
		}
		return lipgloss.Color("#444444")
	}
	sidebar := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(borderColor(a.focus == focusSidebar && a.overlay == nil)).
		Padding(0, 1).
		Render(lipgloss.JoinVertical(lipgloss.Left, a.sidebar.View(), a.renderIdentity()))

	var content string
	if a.overlay != nil {
		content = a.overlay.View()
	} else {
		content = a.screens[a.active].View()
	}
	size := a.contentSize()
	contentBox := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(borderColor(a.focus == focusContent || a.overlay != nil)).
		Padding(0, 1).
		Width(size.Width).
		Render(content)

	sections := []string{lipgloss.JoinHorizontal(lipgloss.Top, sidebar, contentBox)}
	if logPanel := a.renderLogPanel(); logPanel != "" {
		sections = append(sections, logPanel)
	}
	help := "esc sidebar · enter open · q quit"
	if a.focus == focusContent {
		help = "esc sidebar · ctrl+c quit"
	}
	footer := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		Render(help)
	sections = append(sections, footer)
	return strings.Join(sections, "\n")
}

func (a *App) renderIdentity() string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).MarginTop(1)
	id, err := a.ctx.Session.Identity()
	if err != nil || id.Email == "" {
		return style.Render("signed in")
	}
	return style.Render(id.Email)
}

func (a *App) renderLogPanel() string {
	if a.logbook == nil {
		return ""
	}
	lines, total := a.logbook.Tail(logPanelLines)
	if len(lines) == 0 {
		return ""
	}
	fileName := filepath.Base(a.logbook.Path())
	if fileName == "." || fileName == "" {
		fileName = "log"
	}
	head := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render(fmt.Sprintf("LOG · %s · %d entries", fileName, total))
	body := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")).
		Render(strings.Join(lines, "\n"))
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Render(fmt.Sprintf("%s\n%s", head, body))
	return box
}

func (a *App) renderNotices() string {
	active := a.tray.Active()
	if len(active) == 0 {
		return ""
	}
	lines := make([]string, 0, len(active))
	for _, n := range active {
		lines = append(lines, noticeStyle(n.Level).Render(noticeIcon(n.Level)+" "+n.Text))
	}
	return strings.Join(lines, "\n")
}

func noticeStyle(level notify.Level) lipgloss.Style {
	style := lipgloss.NewStyle().Padding(0, 1)
	switch level {
	case notify.LevelSuccess:
		return style.Foreground(lipgloss.Color("#6BCB77"))
	case notify.LevelWarning:
		return style.Foreground(lipgloss.Color("#FFD93D"))
	case notify.LevelError:
		return style.Foreground(lipgloss.Color("#FF6B6B"))
	default:
		return style.Foreground(lipgloss.Color("#4D96FF"))
	}
}

func noticeIcon(level notify.Level) string {
	switch level {
	case notify.LevelSuccess:
		return "✓"
	case notify.LevelWarning:
		return "⚠"
	case notify.LevelError:
		return "✗"
	default:
		return "•"
	}
}
