package app

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	xansi "github.com/charmbracelet/x/ansi"

	"buildchat/internal/session"
)

var (
	headerStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	headerDetailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	statusInfoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	statusWarningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("179"))
	statusErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	keyHintStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

const keyHints = "enter send · ctrl+x abort · ctrl+n new · ctrl+y copy · ctrl+c quit"

func (m *Model) View() string {
	width := max(minViewportWidth, m.width)
	sections := []string{
		m.headerView(width),
		m.viewport.View(),
	}
	if m.prompt != nil {
		sections = append(sections, m.prompt.View(width))
	}
	sections = append(sections, m.statusView(width), m.input.View())
	return strings.Join(sections, "\n")
}

func (m *Model) headerView(width int) string {
	project := m.session.Directory
	if project == "" {
		project = "no project"
	}
	details := []string{}
	if m.session.SessionID != "" {
		details = append(details, m.session.SessionID)
	}
	if model := m.session.Model.String(); model != "" {
		details = append(details, model)
	}
	if m.session.Agent != "" {
		details = append(details, m.session.Agent)
	}
	line := headerStyle.Render(project)
	if len(details) > 0 {
		line += " " + headerDetailStyle.Render(strings.Join(details, " · "))
	}
	return xansi.Truncate(line, width, "…")
}

func (m *Model) statusView(width int) string {
	var line string
	switch m.session.InputMode() {
	case session.InputStreaming:
		line = m.loader.View() + " " + statusInfoStyle.Render("working")
	case session.InputQuestion:
		line = statusWarningStyle.Render("waiting for your answer")
	}
	if m.status != "" {
		style := statusInfoStyle
		switch m.statusLevel {
		case statusWarning:
			style = statusWarningStyle
		case statusError:
			style = statusErrorStyle
		}
		if line != "" {
			line += " "
		}
		line += style.Render(m.status)
	}
	if line == "" {
		line = keyHintStyle.Render(keyHints)
	}
	return xansi.Truncate(line, width, "…")
}
