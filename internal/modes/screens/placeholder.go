// internal/modes/screens/placeholder.go
//
// Sidebar destinations that only show a heading for now.

package screens

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/adaapt/internal/modes"
)

// Placeholder is a static screen with a title and a short blurb.
type Placeholder struct {
	modes.BaseMode
	blurb string
}

// NewPlaceholder creates a static screen.
func NewPlaceholder(name, blurb string) *Placeholder {
	return &Placeholder{BaseMode: modes.NewBaseMode(name), blurb: blurb}
}

// Insights, Discover, TeamChat and Administration are the static screens in
// the sidebar.
func Insights() *Placeholder {
	return NewPlaceholder("Insights", "Dashboards built from your connected datasets will appear here.")
}

func Discover() *Placeholder {
	return NewPlaceholder("Discover", "Browse the knowledge available across departments.")
}

func TeamChat() *Placeholder {
	return NewPlaceholder("Team Chat", "Conversations with your team will appear here.")
}

func Administration() *Placeholder {
	return NewPlaceholder("Administration", "Account and organization settings.")
}

func (p *Placeholder) Init(ctx *modes.ModeContext) tea.Cmd {
	p.SetContext(ctx)
	return nil
}

func (p *Placeholder) Update(msg tea.Msg) (modes.Mode, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "ctrl+c" {
		return p, tea.Quit
	}
	return p, nil
}

func (p *Placeholder) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#4D96FF")).
		MarginBottom(1)
	blurbStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	return fmt.Sprintf("%s\n%s\n\n%s", titleStyle.Render(p.Name()), blurbStyle.Render(p.blurb), blurbStyle.Render("Coming soon."))
}
