// internal/modes/uploader/uploader.go
//
// Upload overlay: pick an accessible department, pick a file, send it to
// the ingestion endpoint. Closes itself shortly after a successful upload.

package uploader

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/adaapt/internal/api"
	"github.com/kingrea/adaapt/internal/modes"
	"github.com/kingrea/adaapt/internal/notify"
	"github.com/kingrea/adaapt/internal/upload"
)

type pane int

const (
	paneDomains pane = iota
	paneFiles
)

// Mode is the upload overlay.
type Mode struct {
	modes.BaseMode
	workflow   *upload.Workflow
	domainList list.Model
	picker     filepicker.Model
	pane       pane
	width      int
	height     int
}

type domainItem struct {
	domain api.Domain
}

func (i domainItem) Title() string       { return i.domain.Label() }
func (i domainItem) Description() string { return i.domain.Description }
func (i domainItem) FilterValue() string { return i.domain.Label() }

type uploadFinishedMsg struct {
	name string
	err  error
}

type closeMsg struct{}

// New creates the upload overlay.
func New() *Mode {
	delegate := list.NewDefaultDelegate()
	delegate.SetHeight(2)
	delegate.SetSpacing(0)
	domainList := list.New([]list.Item{}, delegate, 40, 10)
	domainList.Title = "Department"
	domainList.SetShowStatusBar(false)
	domainList.SetFilteringEnabled(false)
	domainList.SetShowHelp(false)

	picker := filepicker.New()
	picker.Height = 10
	if wd, err := os.Getwd(); err == nil {
		picker.CurrentDirectory = wd
	}

	return &Mode{
		BaseMode:   modes.NewBaseMode("Upload"),
		workflow:   upload.New(),
		domainList: domainList,
		picker:     picker,
	}
}

// Init loads the departments and the starting directory.
func (m *Mode) Init(ctx *modes.ModeContext) tea.Cmd {
	m.SetContext(ctx)
	m.SetStatusMsg("Loading departments...")
	m.LogInfo("Opened upload dialog")
	return tea.Batch(modes.LoadDomains(ctx), m.picker.Init())
}

// Workflow exposes the form state.
func (m *Mode) Workflow() *upload.Workflow { return m.workflow }

// Update handles messages for the upload overlay.
func (m *Mode) Update(msg tea.Msg) (modes.Mode, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		h := max(msg.Height-14, 5)
		m.domainList.SetSize(max(msg.Width/2-4, 30), h)
		m.picker.Height = h
		return m, nil

	case modes.DomainsLoadedMsg:
		m.workflow.DomainsLoaded(msg.Listing.Domains, msg.Listing.Degraded)
		items := make([]list.Item, len(msg.Listing.Domains))
		for i, d := range msg.Listing.Domains {
			items[i] = domainItem{domain: d}
		}
		m.domainList.SetItems(items)
		m.SetStatusMsg(m.workflow.Message())
		return m, modes.DomainNotices(msg.Listing)

	case uploadFinishedMsg:
		m.workflow.Finish(msg.err)
		m.SetStatusMsg(m.workflow.Message())
		if msg.err != nil {
			m.LogWarn("Upload of %s failed: %v", msg.name, msg.err)
			if api.IsUnauthorized(msg.err) {
				return m, func() tea.Msg { return modes.SessionExpiredMsg{} }
			}
			return m, modes.Notice(notify.LevelError, m.workflow.Message(), notify.ToastTTL)
		}
		m.LogInfo("Uploaded %s", msg.name)
		return m, tea.Batch(
			modes.Notice(notify.LevelSuccess, upload.MsgSucceeded, notify.ToastTTL),
			tea.Tick(upload.CloseDelay, func(time.Time) tea.Msg { return closeMsg{} }),
		)

	case closeMsg:
		return m, m.close()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "esc":
			if m.workflow.Phase() == upload.PhaseUploading {
				return m, nil
			}
			m.LogInfo("Upload dialog cancelled")
			return m, m.close()
		case "tab":
			if m.pane == paneDomains {
				m.pane = paneFiles
			} else {
				m.pane = paneDomains
			}
			return m, nil
		case "ctrl+s":
			return m, m.submit()
		case "ctrl+x":
			m.workflow.DetachFile()
			return m, nil
		case "enter":
			if m.pane == paneDomains {
				m.selectDomain()
				return m, nil
			}
		}
	}

	_, isKey := msg.(tea.KeyMsg)
	var cmds []tea.Cmd
	if !isKey || m.pane == paneDomains {
		var cmd tea.Cmd
		m.domainList, cmd = m.domainList.Update(msg)
		cmds = append(cmds, cmd)
	}
	if !isKey || m.pane == paneFiles {
		var cmd tea.Cmd
		m.picker, cmd = m.picker.Update(msg)
		cmds = append(cmds, cmd)
		if didSelect, path := m.picker.DidSelectFile(msg); didSelect {
			m.Attach(path)
		}
	}
	return m, tea.Batch(cmds...)
}

func (m *Mode) selectDomain() {
	item, ok := m.domainList.SelectedItem().(domainItem)
	if !ok {
		return
	}
	if err := m.workflow.SelectDomain(item.domain.ID); err != nil {
		m.SetStatusMsg(err.Error())
		return
	}
	m.SetStatusMsg(fmt.Sprintf("Department: %s", item.domain.Label()))
	m.pane = paneFiles
}

// Attach makes path the file to upload.
func (m *Mode) Attach(path string) {
	f := upload.File{Path: path}
	if info, err := os.Stat(path); err == nil {
		f.Size = info.Size()
	}
	if err := m.workflow.AttachFile(f); err != nil {
		m.SetStatusMsg(err.Error())
		return
	}
	m.SetStatusMsg(fmt.Sprintf("Attached %s", f.Name()))
}

func (m *Mode) submit() tea.Cmd {
	req, err := m.workflow.Submit()
	if err != nil {
		m.SetStatusMsg(m.workflow.Message())
		return nil
	}
	ctx := m.Context()
	m.SetStatusMsg(fmt.Sprintf("Uploading %s...", req.File.Name()))
	return func() tea.Msg {
		reqCtx, cancel := ctx.RequestContext()
		defer cancel()
		return uploadFinishedMsg{name: req.File.Name(), err: upload.Send(reqCtx, ctx.Client, req)}
	}
}

func (m *Mode) close() tea.Cmd {
	m.SetComplete(true)
	return func() tea.Msg { return modes.ModeCompleteMsg{} }
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
	active := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#4D96FF")).
		Padding(0, 1)
	inactive := active.BorderForeground(lipgloss.Color("#444444"))

	header := titleStyle.Render("⬆ UPLOAD DOCUMENT")

	var domains string
	if m.workflow.Phase() == upload.PhaseLoading {
		domains = "Loading departments..."
	} else if len(m.workflow.Domains()) == 0 {
		domains = upload.MsgNoDomains
	} else {
		domains = m.domainList.View()
	}
	files := m.picker.View()
	if m.pane == paneDomains {
		domains = active.Render(domains)
		files = inactive.Render(files)
	} else {
		domains = inactive.Render(domains)
		files = active.Render(files)
	}
	content := lipgloss.JoinHorizontal(lipgloss.Top, domains, " ", files)

	summary := fmt.Sprintf("Department: %s   File: %s", m.domainLabel(), m.fileLabel())
	if m.workflow.CanSubmit() {
		summary += "   [ctrl+s] Upload"
	}
	status := m.StatusMsg()
	if status == "" {
		status = m.workflow.Phase().String()
	}
	help := helpStyle.Render("tab switch pane · enter choose · ctrl+s upload · ctrl+x remove file · esc close")
	return fmt.Sprintf("%s\n%s\n\n%s\n%s\n%s", header, content, summary, statusStyle.Render(status), help)
}

func (m *Mode) domainLabel() string {
	id := m.workflow.DomainID()
	for _, d := range m.workflow.Domains() {
		if d.ID == id {
			return d.Label()
		}
	}
	return "none"
}

func (m *Mode) fileLabel() string {
	f, ok := m.workflow.File()
	if !ok {
		return "none"
	}
	return fmt.Sprintf("%s (%d bytes)", f.Name(), f.Size)
}
