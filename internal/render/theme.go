package render

import "github.com/charmbracelet/lipgloss"

var (
	userStyle         = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
	agentStyle        = lipgloss.NewStyle().Padding(0, 1)
	reasoningStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Faint(true).Padding(0, 1)
	toolTitleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("110")).Bold(true)
	toolDetailStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	toolBodyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("250")).PaddingLeft(4)
	questionStyle     = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("179")).Padding(0, 1)
	questionDoneStyle = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("108")).Foreground(lipgloss.Color("251")).Padding(0, 1)
	errorStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	footerStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Faint(true).PaddingLeft(1)
	streamingStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("117")).Italic(true).PaddingLeft(1)
	hintStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)

	statusStyles = map[string]lipgloss.Style{
		"pending":   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		"running":   lipgloss.NewStyle().Foreground(lipgloss.Color("179")),
		"completed": lipgloss.NewStyle().Foreground(lipgloss.Color("70")),
		"failed":    lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
		"open":      lipgloss.NewStyle().Foreground(lipgloss.Color("179")),
		"answered":  lipgloss.NewStyle().Foreground(lipgloss.Color("70")),
		"rejected":  lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
	}
)
