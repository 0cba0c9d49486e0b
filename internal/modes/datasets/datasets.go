// internal/modes/datasets/datasets.go
//
// Datasets overlay: choose which accessible domains Ask AI questions are
// scoped to. Edits apply to a draft until the user confirms.

package datasets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/adaapt/internal/api"
	"github.com/kingrea/adaapt/internal/modes"
	"github.com/kingrea/adaapt/internal/notify"
	"github.com/kingrea/adaapt/internal/selection"
)

// Mode is the datasets overlay.
type Mode struct {
	modes.BaseMode
	workflow *selection.Workflow
	list     list.Model
	width    int
	height   int
}

type domainItem struct {
	domain  api.Domain
	checked bool
}

func (i domainItem) Title() string {
	box := "[ ]"
	if i.checked {
		box = "[x]"
	}
	return box + " " + i.domain.Label()
}
func (i domainItem) Description() string { return i.domain.Description }
func (i domainItem) FilterValue() string { return i.domain.Label() }

// New creates the overlay.
func New() *Mode {
	delegate := list.NewDefaultDelegate()
	delegate.SetHeight(2)
	delegate.SetSpacing(0)
	l := list.New([]list.Item{}, delegate, 50, 12)
	l.Title = "Connect datasets"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)

	return &Mode{
		BaseMode: modes.NewBaseMode("Datasets"),
		list:     l,
	}
}

// Init starts a draft from the orchestrator's current scope and loads the
// accessible domains.
func (m *Mode) Init(ctx *modes.ModeContext) tea.Cmd {
	m.SetContext(ctx)
	var committed selection.Set
	if ctx != nil && ctx.Chat != nil {
		committed = ctx.Chat.Selection()
	}
	m.workflow = selection.New(committed)
	m.SetStatusMsg("Loading datasets...")
	return modes.LoadDomains(ctx)
}

// Workflow exposes the draft.
func (m *Mode) Workflow() *selection.Workflow { return m.workflow }

// Update handles messages for the overlay.
func (m *Mode) Update(msg tea.Msg) (modes.Mode, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(max(msg.Width-10, 30), max(msg.Height-12, 5))
		return m, nil

	case modes.DomainsLoadedMsg:
		m.workflow.DomainsLoaded(msg.Listing.Domains, msg.Listing.Degraded)
		m.syncItems()
		if len(msg.Listing.Domains) == 0 {
			m.SetStatusMsg("No accessible datasets found")
		} else {
			m.SetStatusMsg(fmt.Sprintf("%d dataset(s) available", len(msg.Listing.Domains)))
		}
		return m, modes.DomainNotices(msg.Listing)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "esc":
			m.LogInfo("Dataset selection cancelled")
			m.SetComplete(true)
			return m, func() tea.Msg { return modes.ModeCompleteMsg{} }
		case " ", "x":
			m.toggleCurrent()
			return m, nil
		case "enter":
			return m, m.done()
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *Mode) toggleCurrent() {
	if m.workflow == nil || m.workflow.Loading() {
		return
	}
	item, ok := m.list.SelectedItem().(domainItem)
	if !ok {
		return
	}
	m.workflow.Toggle(item.domain.ID)
	m.syncItems()
}

func (m *Mode) done() tea.Cmd {
	if m.workflow == nil || m.workflow.Loading() {
		return nil
	}
	result := m.workflow.Done()
	m.SetComplete(true)
	m.LogInfo("Connected %d dataset(s): %s", len(result.Selection), strings.Join(result.Selection.IDs(), ", "))
	cmds := []tea.Cmd{
		func() tea.Msg { return modes.SelectionCommittedMsg{Result: result} },
	}
	if result.Connected {
		cmds = append(cmds, modes.Notice(notify.LevelSuccess, selection.ConnectedMessage, notify.ConnectedTTL))
	}
	cmds = append(cmds, func() tea.Msg { return modes.ModeCompleteMsg{} })
	return tea.Batch(cmds...)
}

func (m *Mode) syncItems() {
	domains := m.workflow.Domains()
	items := make([]list.Item, len(domains))
	for i, d := range domains {
		items[i] = domainItem{domain: d, checked: m.workflow.Selected(d.ID)}
	}
	m.list.SetItems(items)
}

// View renders the overlay.
func (m *Mode) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#6BCB77")).
		MarginBottom(1)
	statusStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		MarginTop(1)
	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))

	header := titleStyle.Render("⛁ DATASETS")
	var body string
	if m.workflow == nil || m.workflow.Loading() {
		body = "Loading datasets..."
	} else {
		body = m.list.View()
	}
	selected := 0
	if m.workflow != nil {
		selected = len(m.workflow.Draft())
	}
	footer := statusStyle.Render(fmt.Sprintf("%s · %d selected", m.StatusMsg(), selected))
	help := helpStyle.Render("space toggle · enter done · esc cancel")
	return fmt.Sprintf("%s\n%s\n%s\n%s", header, body, footer, help)
}
