// internal/modes/login/login.go
//
// Login mode is the signed-out screen. It shows either the sign-in form or
// the sign-up form and drives the auth workflow from ModeContext.

package login

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/adaapt/internal/auth"
	"github.com/kingrea/adaapt/internal/modes"
	"github.com/kingrea/adaapt/internal/notify"
)

const msgMissingCredentials = "Please enter your email and password."

// Sign-up field order.
const (
	fieldFullName = iota
	fieldEmail
	fieldOrganization
	fieldDepartment
	fieldRole
	fieldPassword
	fieldDomains
)

// Mode handles sign-in and sign-up.
type Mode struct {
	modes.BaseMode
	loginInputs  []textinput.Model
	signupInputs []textinput.Model
	focus        int
	busy         bool
	spinner      spinner.Model
	errorMsg     string
	width        int
	height       int
}

type loginFinishedMsg struct {
	outcome auth.Outcome
	err     error
}

type signupFinishedMsg struct {
	outcome auth.Outcome
	err     error
}

// New creates the login mode.
func New() *Mode {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#4D96FF"))

	return &Mode{
		BaseMode: modes.NewBaseMode("Sign In"),
		loginInputs: []textinput.Model{
			newInput("Email", false),
			newInput("Password", true),
		},
		signupInputs: []textinput.Model{
			newInput("Full name", false),
			newInput("Email", false),
			newInput("Organization", false),
			newInput("Department", false),
			newInput("Role", false),
			newInput("Password", true),
			newInput("Allowed domains (comma-separated, optional)", false),
		},
		spinner: sp,
	}
}

func newInput(placeholder string, secret bool) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = 256
	ti.Width = 48
	if secret {
		ti.EchoMode = textinput.EchoPassword
		ti.EchoCharacter = '•'
	}
	return ti
}

// Init focuses the first field of the sign-in form.
func (m *Mode) Init(ctx *modes.ModeContext) tea.Cmd {
	m.SetContext(ctx)
	if ctx != nil && ctx.Auth != nil {
		ctx.Auth.ShowLogin()
	}
	m.focus = 0
	m.SetStatusMsg("Sign in to continue")
	return tea.Batch(m.focusCurrent(), textinput.Blink)
}

// Update handles messages for the login mode.
func (m *Mode) Update(msg tea.Msg) (modes.Mode, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "ctrl+n":
			return m, m.toggleView()
		case "tab", "down":
			return m, m.moveFocus(1)
		case "shift+tab", "up":
			return m, m.moveFocus(-1)
		case "enter":
			if m.focus < len(m.inputs())-1 {
				return m, m.moveFocus(1)
			}
			return m, m.submit()
		}

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case loginFinishedMsg:
		m.busy = false
		if msg.err != nil {
			m.errorMsg = loginError(msg)
			m.SetStatusMsg("Sign in failed")
			m.LogWarn("Sign in failed: %v", msg.err)
			return m, nil
		}
		m.errorMsg = ""
		m.loginInputs[1].SetValue("")
		m.SetStatusMsg(msg.outcome.Message)
		return m, tea.Batch(
			modes.Notice(notify.LevelSuccess, msg.outcome.Message, notify.ToastTTL),
			m.loggedIn(),
		)

	case signupFinishedMsg:
		m.busy = false
		if msg.err != nil {
			m.errorMsg = signupError(msg)
			m.SetStatusMsg("Sign up failed")
			m.LogWarn("Sign up failed: %v", msg.err)
			return m, nil
		}
		m.errorMsg = ""
		email := m.signupInputs[fieldEmail].Value()
		for i := range m.signupInputs {
			m.signupInputs[i].SetValue("")
		}
		m.loginInputs[0].SetValue(email)
		m.SetStatusMsg(msg.outcome.Message)
		m.LogInfo("Account created for %s", email)
		m.focus = 1
		return m, tea.Batch(
			m.focusCurrent(),
			modes.Notice(notify.LevelSuccess, msg.outcome.Message, notify.ToastTTL),
		)
	}

	inputs := m.inputs()
	var cmd tea.Cmd
	inputs[m.focus], cmd = inputs[m.focus].Update(msg)
	return m, cmd
}

// Signup reports whether the sign-up form is showing.
func (m *Mode) Signup() bool {
	ctx := m.Context()
	return ctx != nil && ctx.Auth != nil && ctx.Auth.View() == auth.ViewSignup
}

// Busy reports whether a request is running.
func (m *Mode) Busy() bool { return m.busy }

// Error returns the inline error, if any.
func (m *Mode) Error() string { return m.errorMsg }

func (m *Mode) inputs() []textinput.Model {
	if m.Signup() {
		return m.signupInputs
	}
	return m.loginInputs
}

func (m *Mode) focusCurrent() tea.Cmd {
	for i := range m.loginInputs {
		m.loginInputs[i].Blur()
	}
	for i := range m.signupInputs {
		m.signupInputs[i].Blur()
	}
	inputs := m.inputs()
	if m.focus >= len(inputs) {
		m.focus = 0
	}
	return inputs[m.focus].Focus()
}

func (m *Mode) moveFocus(delta int) tea.Cmd {
	n := len(m.inputs())
	m.focus = (m.focus + delta + n) % n
	return m.focusCurrent()
}

func (m *Mode) toggleView() tea.Cmd {
	ctx := m.Context()
	if ctx == nil || ctx.Auth == nil || m.busy {
		return nil
	}
	if m.Signup() {
		ctx.Auth.ShowLogin()
		m.SetStatusMsg("Sign in to continue")
	} else {
		ctx.Auth.ShowSignup()
		m.SetStatusMsg("Create an account")
	}
	m.errorMsg = ""
	m.focus = 0
	return m.focusCurrent()
}

func (m *Mode) submit() tea.Cmd {
	ctx := m.Context()
	if ctx == nil || ctx.Auth == nil || m.busy {
		return nil
	}
	m.busy = true
	m.errorMsg = ""
	if m.Signup() {
		form := auth.Signup{
			FullName:       m.signupInputs[fieldFullName].Value(),
			Email:          m.signupInputs[fieldEmail].Value(),
			Organization:   m.signupInputs[fieldOrganization].Value(),
			Department:     m.signupInputs[fieldDepartment].Value(),
			Role:           m.signupInputs[fieldRole].Value(),
			Password:       m.signupInputs[fieldPassword].Value(),
			AllowedDomains: m.signupInputs[fieldDomains].Value(),
		}
		m.SetStatusMsg("Creating account...")
		return tea.Batch(m.spinner.Tick, func() tea.Msg {
			reqCtx, cancel := ctx.RequestContext()
			defer cancel()
			out, err := ctx.Auth.Register(reqCtx, form)
			return signupFinishedMsg{outcome: out, err: err}
		})
	}
	email := m.loginInputs[0].Value()
	password := m.loginInputs[1].Value()
	m.SetStatusMsg("Signing in...")
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		reqCtx, cancel := ctx.RequestContext()
		defer cancel()
		out, err := ctx.Auth.Login(reqCtx, email, password)
		return loginFinishedMsg{outcome: out, err: err}
	})
}

func (m *Mode) loggedIn() tea.Cmd {
	ctx := m.Context()
	return func() tea.Msg {
		sess, _ := ctx.Session.Current()
		return modes.LoggedInMsg{Session: sess}
	}
}

func loginError(msg loginFinishedMsg) string {
	if errors.Is(msg.err, auth.ErrMissingCredentials) {
		return msgMissingCredentials
	}
	if msg.outcome.Message != "" {
		return msg.outcome.Message
	}
	return auth.MsgLoginFailed
}

func signupError(msg signupFinishedMsg) string {
	var missing *auth.MissingFieldsError
	if errors.As(msg.err, &missing) {
		return "Please fill in: " + strings.Join(missing.Fields, ", ")
	}
	if msg.outcome.Message != "" {
		return msg.outcome.Message
	}
	return auth.MsgSignupFailed
}

// View renders the active form.
func (m *Mode) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#4D96FF")).
		MarginBottom(1)
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	statusStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		MarginTop(1)
	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))

	var b strings.Builder
	labels := []string{"Email", "Password"}
	title := "◆ ADAAPT · SIGN IN"
	help := "enter sign in · tab next field · ctrl+n create account · ctrl+c quit"
	if m.Signup() {
		labels = []string{"Full name", "Email", "Organization", "Department", "Role", "Password", "Allowed domains"}
		title = "◆ ADAAPT · CREATE ACCOUNT"
		help = "enter create account · tab next field · ctrl+n back to sign in · ctrl+c quit"
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")
	for i, input := range m.inputs() {
		b.WriteString(labelStyle.Render(labels[i]))
		b.WriteString("\n")
		b.WriteString(input.View())
		b.WriteString("\n\n")
	}
	if m.errorMsg != "" {
		errBlock := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#FF6B6B")).
			Padding(0, 1).
			Render(fmt.Sprintf("⚠ %s", m.errorMsg))
		b.WriteString(errBlock)
		b.WriteString("\n")
	}
	status := m.StatusMsg()
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	b.WriteString(statusStyle.Render(status))
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(help))

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(1, 3).
		Render(b.String())
	if m.width > 0 && m.height > 0 {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
	}
	return box
}
