package tui

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/kingrea/adaapt/internal/auth"
	"github.com/kingrea/adaapt/internal/chat"
	"github.com/kingrea/adaapt/internal/config"
	"github.com/kingrea/adaapt/internal/directory"
	"github.com/kingrea/adaapt/internal/fakeapi"
	"github.com/kingrea/adaapt/internal/logbook"
	"github.com/kingrea/adaapt/internal/modes"
	"github.com/kingrea/adaapt/internal/modes/datasets"
	"github.com/kingrea/adaapt/internal/modes/uploader"
	"github.com/kingrea/adaapt/internal/selection"
)

func TestStartsOnLoginWithoutSession(t *testing.T) {
	app, _ := newTestApp(t)
	app = runCommands(t, app, app.Init())
	if app.state != stateLogin {
		t.Fatalf("expected login state, got %v", app.state)
	}
	if !strings.Contains(app.View(), "SIGN IN") {
		t.Fatalf("login form not rendered")
	}
}

func TestStartsOnHomeWithSavedSession(t *testing.T) {
	home := newTestHome(t)
	srv := fakeapi.NewServer(fakeapi.Settings{Prefix: fakeapi.DefaultPrefix})
	first := newAppAt(t, home, srv)
	signIn(t, first, srv)

	second := newAppAt(t, home, srv)
	if second.state != stateHome {
		t.Fatalf("saved session should open home, got %v", second.state)
	}
}

func TestLoginThenAsk(t *testing.T) {
	app, _ := newTestApp(t)
	app = runCommands(t, app, app.Init())

	app = press(t, app, runes(fakeapi.DemoEmail))
	app = press(t, app, tea.KeyMsg{Type: tea.KeyTab})
	app = press(t, app, runes(fakeapi.DemoPassword))
	app = press(t, app, tea.KeyMsg{Type: tea.KeyEnter})

	if app.state != stateHome {
		t.Fatalf("expected home after login, got %v (error: %q)", app.state, app.login.Error())
	}
	if !app.ctx.Session.SignedIn() {
		t.Fatalf("session should be stored")
	}
	if !hasNotice(app, auth.MsgLoginSucceeded) {
		t.Fatalf("expected login notice")
	}

	app = press(t, app, runes("What is the leave policy?"))
	app = press(t, app, tea.KeyMsg{Type: tea.KeyEnter})

	transcript := app.ctx.Chat.Transcript()
	if len(transcript) != 2 {
		t.Fatalf("expected user and assistant turns, got %d", len(transcript))
	}
	if transcript[0].Kind != chat.KindUser || transcript[1].Kind != chat.KindAssistant {
		t.Fatalf("unexpected turn order: %v, %v", transcript[0].Kind, transcript[1].Kind)
	}
	if transcript[1].Failed() {
		t.Fatalf("answer failed: %s", transcript[1].Answer.Error)
	}
	if got := len(transcript[1].Answer.DomainsSearched); got != 2 {
		t.Fatalf("expected both allowed domains searched, got %d", got)
	}
}

func TestLoginFailureStaysOnForm(t *testing.T) {
	app, _ := newTestApp(t)
	app = runCommands(t, app, app.Init())
	app = press(t, app, runes(fakeapi.DemoEmail))
	app = press(t, app, tea.KeyMsg{Type: tea.KeyTab})
	app = press(t, app, runes("wrong"))
	app = press(t, app, tea.KeyMsg{Type: tea.KeyEnter})

	if app.state != stateLogin {
		t.Fatalf("expected to stay on login")
	}
	if app.login.Error() != "Invalid credentials" {
		t.Fatalf("unexpected inline error %q", app.login.Error())
	}
	if app.ctx.Session.SignedIn() {
		t.Fatalf("nothing should be stored on failure")
	}
}

func TestRejectedSessionReturnsToLogin(t *testing.T) {
	app, srv := newTestApp(t)
	app = signIn(t, app, srv)
	srv.Fail(fakeapi.RouteQuery, http.StatusUnauthorized, "Could not validate credentials")

	app = press(t, app, runes("Top regions?"))
	app = press(t, app, tea.KeyMsg{Type: tea.KeyEnter})

	if app.state != stateLogin {
		t.Fatalf("expected login after rejected session, got %v", app.state)
	}
	if app.ctx.Session.SignedIn() {
		t.Fatalf("session should be cleared")
	}
	if !hasNotice(app, sessionExpiredText) {
		t.Fatalf("expected expiry notice")
	}
	if app.ctx.Chat.Len() != 0 {
		t.Fatalf("transcript should start fresh after signing out")
	}
}

func TestDatasetsOverlayCommitsSelection(t *testing.T) {
	app, srv := newTestApp(t)
	app = signIn(t, app, srv)

	app = press(t, app, tea.KeyMsg{Type: tea.KeyCtrlO})
	overlay, ok := app.overlay.(*datasets.Mode)
	if !ok {
		t.Fatalf("expected datasets overlay, got %T", app.overlay)
	}
	if got := len(overlay.Workflow().Domains()); got != 2 {
		t.Fatalf("expected 2 accessible datasets, got %d", got)
	}

	app = press(t, app, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	app = press(t, app, tea.KeyMsg{Type: tea.KeyEnter})

	if app.overlay != nil {
		t.Fatalf("overlay should close on done")
	}
	if got := len(app.ctx.Chat.Selection()); got != 1 {
		t.Fatalf("expected one connected dataset, got %d", got)
	}
	if !hasNotice(app, selection.ConnectedMessage) {
		t.Fatalf("expected connected notice")
	}
}

func TestDatasetsOverlayCancelDiscardsDraft(t *testing.T) {
	app, srv := newTestApp(t)
	app = signIn(t, app, srv)

	app = press(t, app, tea.KeyMsg{Type: tea.KeyCtrlO})
	app = press(t, app, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	app = press(t, app, tea.KeyMsg{Type: tea.KeyEsc})

	if app.overlay != nil {
		t.Fatalf("overlay should close on cancel")
	}
	if got := len(app.ctx.Chat.Selection()); got != 0 {
		t.Fatalf("cancel must not change the selection, got %d", got)
	}
}

func TestDegradedDirectoryShowsFallback(t *testing.T) {
	app, srv := newTestApp(t)
	app = signIn(t, app, srv)
	srv.Fail(fakeapi.RouteDomains, http.StatusServiceUnavailable, "Catalog offline")

	app = press(t, app, tea.KeyMsg{Type: tea.KeyCtrlO})
	overlay, ok := app.overlay.(*datasets.Mode)
	if !ok {
		t.Fatalf("expected datasets overlay, got %T", app.overlay)
	}
	if !overlay.Workflow().Degraded() {
		t.Fatalf("expected degraded listing")
	}
	if got, want := len(overlay.Workflow().Domains()), len(directory.Fallback()); got != want {
		t.Fatalf("expected %d fallback datasets, got %d", want, got)
	}
	if !hasNotice(app, directory.FallbackWarning) {
		t.Fatalf("expected fallback warning")
	}
}

func TestUploadOverlaySendsFileAndCloses(t *testing.T) {
	app, srv := newTestApp(t)
	app = signIn(t, app, srv)

	path := filepath.Join(t.TempDir(), "q3.csv")
	if err := os.WriteFile(path, []byte("region,total\nnorth,10\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	app = press(t, app, tea.KeyMsg{Type: tea.KeyCtrlU})
	overlay, ok := app.overlay.(*uploader.Mode)
	if !ok {
		t.Fatalf("expected upload overlay, got %T", app.overlay)
	}
	app = press(t, app, tea.KeyMsg{Type: tea.KeyEnter})
	if overlay.Workflow().DomainID() == "" {
		t.Fatalf("expected a department to be selected")
	}
	overlay.Attach(path)
	if !overlay.Workflow().CanSubmit() {
		t.Fatalf("submit should be enabled")
	}
	app = press(t, app, tea.KeyMsg{Type: tea.KeyCtrlS})

	uploads := srv.Uploads()
	if len(uploads) != 1 || uploads[0].FileName != "q3.csv" {
		t.Fatalf("unexpected uploads: %+v", uploads)
	}
	if app.overlay != nil {
		t.Fatalf("overlay should close after a successful upload")
	}
}

func TestSidebarNavigationAndLogout(t *testing.T) {
	app, srv := newTestApp(t)
	app = signIn(t, app, srv)

	app = press(t, app, tea.KeyMsg{Type: tea.KeyEsc})
	if app.focus != focusSidebar {
		t.Fatalf("esc should focus the sidebar")
	}
	app = press(t, app, tea.KeyMsg{Type: tea.KeyDown})
	app = press(t, app, tea.KeyMsg{Type: tea.KeyEnter})
	if got := app.screens[app.active].Name(); got != "Insights" {
		t.Fatalf("expected Insights, got %s", got)
	}
	if !strings.Contains(app.View(), "Coming soon.") {
		t.Fatalf("placeholder screen not rendered")
	}

	app = press(t, app, tea.KeyMsg{Type: tea.KeyEsc})
	for i := 0; i < len(app.screens); i++ {
		app = press(t, app, tea.KeyMsg{Type: tea.KeyDown})
	}
	app = press(t, app, tea.KeyMsg{Type: tea.KeyEnter})
	if app.state != stateLogin {
		t.Fatalf("expected login after logout, got %v", app.state)
	}
	if app.ctx.Session.SignedIn() {
		t.Fatalf("logout should clear the session")
	}
	if !hasNotice(app, auth.MsgLoggedOut) {
		t.Fatalf("expected signed out notice")
	}
}

func newTestHome(t *testing.T) string {
	t.Helper()
	t.Setenv("ADAAPT_API_URL", "")
	home := t.TempDir()
	if err := config.InitHome(home); err != nil {
		t.Fatalf("init home: %v", err)
	}
	return home
}

func newTestApp(t *testing.T) (*App, *fakeapi.Server) {
	t.Helper()
	srv := fakeapi.NewServer(fakeapi.Settings{Prefix: fakeapi.DefaultPrefix})
	return newAppAt(t, newTestHome(t), srv), srv
}

func newAppAt(t *testing.T, home string, srv *fakeapi.Server) *App {
	t.Helper()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	cfg, err := config.Load(home)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if err := cfg.SetBaseURL(ts.URL + fakeapi.DefaultPrefix); err != nil {
		t.Fatalf("set base url: %v", err)
	}
	lb, err := logbook.New(cfg.JourneyPath(), zap.NewNop())
	if err != nil {
		t.Fatalf("logbook: %v", err)
	}
	app, err := NewApp(cfg, zap.NewNop(), lb)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return app
}

func signIn(t *testing.T, app *App, srv *fakeapi.Server) *App {
	t.Helper()
	token, err := srv.IssueToken(fakeapi.DemoEmail)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	sess, err := app.ctx.Session.Create(token, "", time.Hour)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	model, cmd := app.Update(modes.LoggedInMsg{Session: sess})
	return runCommands(t, model, cmd)
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, app *App, key tea.KeyMsg) *App {
	t.Helper()
	model, cmd := app.Update(key)
	return runCommands(t, model, cmd)
}

func hasNotice(app *App, text string) bool {
	for _, n := range app.tray.Active() {
		if n.Text == text {
			return true
		}
	}
	return false
}

// runCommands drives the update loop until no work is left. Commands that
// do not produce a message within cmdTimeout (long timers) are dropped, as
// are cursor blinks and spinner frames.
func runCommands(t *testing.T, model tea.Model, cmd tea.Cmd) *App {
	t.Helper()
	const cmdTimeout = 750 * time.Millisecond
	app, ok := model.(*App)
	if !ok {
		t.Fatalf("unexpected model type: %T", model)
	}
	queue := []tea.Cmd{cmd}
	for steps := 0; len(queue) > 0; steps++ {
		if steps > 1000 {
			t.Fatalf("update loop did not settle")
		}
		next := queue[0]
		queue = queue[1:]
		if next == nil {
			continue
		}
		msg, ok := await(next, cmdTimeout)
		if !ok || msg == nil {
			continue
		}
		switch msg := msg.(type) {
		case tea.BatchMsg:
			queue = append(queue, msg...)
			continue
		case tea.QuitMsg, spinner.TickMsg, cursor.BlinkMsg:
			continue
		}
		nextModel, nextCmd := app.Update(msg)
		app, ok = nextModel.(*App)
		if !ok {
			t.Fatalf("unexpected model type: %T", nextModel)
		}
		queue = append(queue, nextCmd)
	}
	return app
}

func await(cmd tea.Cmd, timeout time.Duration) (tea.Msg, bool) {
	out := make(chan tea.Msg, 1)
	go func() { out <- cmd() }()
	select {
	case msg := <-out:
		return msg, true
	case <-time.After(timeout):
		return nil, false
	}
}
