// internal/modes/askai/askai.go
//
// Ask AI mode is the chat screen. Questions go through the chat
// orchestrator in ModeContext; answers render as markdown in a scrolling
// transcript. The upload and dataset overlays are opened from here.

package askai

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/adaapt/internal/api"
	"github.com/kingrea/adaapt/internal/chat"
	"github.com/kingrea/adaapt/internal/modes"
)

// Mode is the chat screen.
type Mode struct {
	modes.BaseMode
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer
	wrap     int
	prompt   int
	width    int
	height   int
}

type answerMsg struct {
	pending chat.Pending
	answer  api.Answer
	err     error
}

// New creates the Ask AI mode.
func New() *Mode {
	input := textinput.New()
	input.Placeholder = "Ask a question about your data..."
	input.CharLimit = 2000
	input.Width = 60

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#4D96FF"))

	return &Mode{
		BaseMode: modes.NewBaseMode("Ask AI"),
		input:    input,
		viewport: viewport.New(80, 20),
		spinner:  sp,
		prompt:   -1,
	}
}

// Init focuses the prompt and renders any transcript already in memory.
func (m *Mode) Init(ctx *modes.ModeContext) tea.Cmd {
	m.SetContext(ctx)
	m.setWrap(80)
	m.refresh()
	m.SetStatusMsg("")
	return tea.Batch(m.input.Focus(), textinput.Blink)
}

// Update handles messages for the chat screen.
func (m *Mode) Update(msg tea.Msg) (modes.Mode, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(msg.Width-6, 20)
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-8, 5)
		m.setWrap(max(msg.Width-4, 20))
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "enter":
			return m, m.send()
		case "ctrl+u":
			return m, openOverlay(modes.OverlayUpload)
		case "ctrl+o":
			return m, openOverlay(modes.OverlayDatasets)
		case "tab", "ctrl+p":
			if m.chatting() {
				return m, nil
			}
			m.cyclePrompt()
			return m, nil
		case "pgup", "pgdown", "ctrl+up", "ctrl+down":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case spinner.TickMsg:
		if !m.sending() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		return m, cmd

	case answerMsg:
		return m, m.settle(msg)

	case modes.SelectionCommittedMsg:
		m.refresh()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func openOverlay(o modes.Overlay) tea.Cmd {
	return func() tea.Msg { return modes.OpenOverlayMsg{Overlay: o} }
}

func (m *Mode) send() tea.Cmd {
	ctx := m.Context()
	if ctx == nil || ctx.Chat == nil {
		return nil
	}
	p, err := ctx.Chat.Begin(m.input.Value())
	switch {
	case errors.Is(err, chat.ErrEmptyQuery), errors.Is(err, chat.ErrBusy):
		return nil
	case err != nil:
		m.SetStatusMsg(err.Error())
		return nil
	}
	m.input.Reset()
	m.prompt = -1
	m.SetStatusMsg("Thinking...")
	m.LogInfo("Asked: %s", p.Request.Query)
	m.refresh()
	orchestrator := ctx.Chat
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		reqCtx, cancel := ctx.RequestContext()
		defer cancel()
		answer, err := orchestrator.Ask(reqCtx, p)
		return answerMsg{pending: p, answer: answer, err: err}
	})
}

func (m *Mode) settle(msg answerMsg) tea.Cmd {
	ctx := m.Context()
	if ctx == nil || ctx.Chat == nil {
		return nil
	}
	reply, err := ctx.Chat.Settle(msg.pending, msg.answer, msg.err)
	if err != nil {
		// A reply for a transcript that was replaced after signing out.
		return nil
	}
	m.SetStatusMsg("")
	m.refresh()
	if reply.Failed() {
		m.LogWarn("Answer failed: %s", reply.Answer.Error)
	} else {
		m.LogInfo("Answered from %d sources", len(reply.Answer.Sources))
	}
	if api.IsUnauthorized(msg.err) {
		return func() tea.Msg { return modes.SessionExpiredMsg{} }
	}
	return nil
}

func (m *Mode) cyclePrompt() {
	ctx := m.Context()
	if ctx == nil || ctx.Config == nil {
		return
	}
	prompts := ctx.Config.SuggestedPrompts()
	if len(prompts) == 0 {
		return
	}
	m.prompt = (m.prompt + 1) % len(prompts)
	m.input.SetValue(prompts[m.prompt])
	m.input.CursorEnd()
}

// Input returns the current prompt text.
func (m *Mode) Input() string { return m.input.Value() }

func (m *Mode) chatting() bool {
	ctx := m.Context()
	return ctx != nil && ctx.Chat != nil && ctx.Chat.Chatting()
}

func (m *Mode) sending() bool {
	ctx := m.Context()
	return ctx != nil && ctx.Chat != nil && ctx.Chat.Sending()
}

func (m *Mode) setWrap(width int) {
	if width == m.wrap && m.renderer != nil {
		return
	}
	m.wrap = width
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		m.renderer = nil
		return
	}
	m.renderer = r
}

func (m *Mode) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m *Mode) renderTranscript() string {
	ctx := m.Context()
	if ctx == nil || ctx.Chat == nil {
		return ""
	}
	userStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4D96FF"))
	botStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#6BCB77"))
	errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	metaStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))

	var b strings.Builder
	for _, msg := range ctx.Chat.Transcript() {
		switch msg.Kind {
		case chat.KindUser:
			b.WriteString(userStyle.Render("You"))
			b.WriteString("\n")
			b.WriteString(msg.Text)
			b.WriteString("\n\n")
		case chat.KindAssistant:
			b.WriteString(botStyle.Render("ADAAPT"))
			b.WriteString("\n")
			if msg.Failed() {
				b.WriteString(errStyle.Render("⚠ " + msg.Answer.Error))
				b.WriteString("\n\n")
				continue
			}
			b.WriteString(m.markdown(msg.Answer.Answer))
			if len(msg.Answer.DomainsSearched) > 0 {
				b.WriteString(metaStyle.Render("Searched: " + strings.Join(msg.Answer.DomainsSearched, ", ")))
				b.WriteString("\n")
			}
			if n := len(msg.Answer.Sources); n > 0 {
				b.WriteString(metaStyle.Render(fmt.Sprintf("%d sources", n)))
				b.WriteString("\n")
			}
			b.WriteString("\n")
		}
	}
	if ctx.Chat.Sending() {
		b.WriteString(m.spinner.View() + " " + metaStyle.Render("Thinking..."))
	}
	return b.String()
}

func (m *Mode) markdown(text string) string {
	if m.renderer == nil {
		return text + "\n"
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return text + "\n"
	}
	return out
}

// View renders the chat screen.
func (m *Mode) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#4D96FF")).
		MarginBottom(1)
	statusStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
	inputStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1)

	header := titleStyle.Render("◆ ASK AI")
	scope := "All accessible datasets"
	if ctx := m.Context(); ctx != nil && ctx.Chat != nil {
		if n := len(ctx.Chat.Selection()); n > 0 {
			scope = fmt.Sprintf("%d dataset(s) connected", n)
		}
	}
	header = lipgloss.JoinHorizontal(lipgloss.Top, header, "  ", statusStyle.Render(scope))

	var body string
	if m.chatting() {
		body = m.viewport.View()
	} else {
		body = m.renderWelcome()
	}
	help := "enter send · ctrl+u upload · ctrl+o datasets · pgup/pgdown scroll"
	if !m.chatting() {
		help = "enter send · tab suggested prompt · ctrl+u upload · ctrl+o datasets"
	}
	parts := []string{header, body, inputStyle.Render(m.input.View())}
	if status := m.StatusMsg(); status != "" {
		parts = append(parts, statusStyle.Render(status))
	}
	parts = append(parts, helpStyle.Render(help))
	return strings.Join(parts, "\n")
}

func (m *Mode) renderWelcome() string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	promptStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6BCB77"))
	lines := []string{style.Render("How can I help with your data today?"), ""}
	if ctx := m.Context(); ctx != nil && ctx.Config != nil {
		for i, p := range ctx.Config.SuggestedPrompts() {
			marker := "  "
			if i == m.prompt {
				marker = "› "
			}
			lines = append(lines, promptStyle.Render(marker+p))
		}
	}
	return strings.Join(lines, "\n") + "\n"
}
