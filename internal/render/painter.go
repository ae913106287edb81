package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	xansi "github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"

	"buildchat/internal/types"
)

const (
	defaultWidth       = 80
	iconColumnWidth    = 3
	toolPreviewLines   = 8
	minimumPaintWidth  = 20
	streamingIndicator = "▍ generating…"
)

// Painter turns fragments into terminal text.
type Painter struct {
	Width int
	Dark  bool
}

func (p Painter) width() int {
	if p.Width <= 0 {
		return defaultWidth
	}
	if p.Width < minimumPaintWidth {
		return minimumPaintWidth
	}
	return p.Width
}

func (p Painter) Paint(fragments []Fragment) string {
	blocks := make([]string, 0, len(fragments))
	for _, frag := range fragments {
		if out := p.PaintFragment(frag); out != "" {
			blocks = append(blocks, out)
		}
	}
	return strings.Join(blocks, "\n\n")
}

func (p Painter) PaintFragment(frag Fragment) string {
	width := p.width()
	var out string
	switch frag.Kind {
	case FragmentText:
		out = p.paintText(frag, width)
	case FragmentReasoning:
		body := xansi.Hardwrap(strings.TrimSpace(frag.Body), width-2, true)
		out = reasoningStyle.Render(frag.Title + "\n" + body)
	case FragmentTool, FragmentSubagent, FragmentFile:
		out = p.paintTool(frag, width)
	case FragmentQuestion:
		out = p.paintQuestion(frag, width)
	case FragmentError:
		out = errorStyle.Render(xansi.Hardwrap("✗ "+frag.Body, width, true))
	case FragmentFooter:
		out = footerStyle.Render(xansi.Truncate(frag.Body, width-1, "…"))
	case FragmentPlaceholder:
		return streamingStyle.Render("… waiting for the agent")
	default:
		return ""
	}
	if frag.Streaming {
		out += "\n" + streamingStyle.Render(streamingIndicator)
	}
	return out
}

func (p Painter) paintText(frag Fragment, width int) string {
	if frag.Role == types.RoleUser {
		inner := width - 4
		body := xansi.Hardwrap(strings.TrimSpace(frag.Body), inner, true)
		return lipgloss.PlaceHorizontal(width, lipgloss.Right, userStyle.Render(body))
	}
	return agentStyle.Render(renderMarkdown(frag.Body, width-2, p.Dark))
}

func (p Painter) paintTool(frag Fragment, width int) string {
	header := iconColumn(frag.Icon) + toolTitleStyle.Render(frag.Title)
	if frag.Detail != "" {
		header += " " + toolDetailStyle.Render(frag.Detail)
	}
	if frag.Status != "" {
		header += " " + paintStatus(frag.Status)
	}
	lines := []string{xansi.Truncate(header, width, "…")}
	if body := previewLines(frag.Body, toolPreviewLines); body != "" {
		lines = append(lines, toolBodyStyle.Render(xansi.Hardwrap(body, width-4, true)))
	}
	return strings.Join(lines, "\n")
}

func (p Painter) paintQuestion(frag Fragment, width int) string {
	inner := width - 4
	lines := []string{iconColumn(frag.Icon) + toolTitleStyle.Render(frag.Title) + " " + paintStatus(frag.Status)}
	if frag.Detail != "" {
		lines = append(lines, xansi.Hardwrap(frag.Detail, inner, true))
	}
	for i, option := range frag.Options {
		lines = append(lines, xansi.Truncate(fmt.Sprintf("  %d. %s", i+1, option), inner, "…"))
	}
	if frag.Body != "" {
		lines = append(lines, xansi.Hardwrap("→ "+frag.Body, inner, true))
	}
	if frag.Interactive {
		lines = append(lines, hintStyle.Render("type an answer or an option number, enter to send"))
	}
	style := questionStyle
	if frag.Status != "open" {
		style = questionDoneStyle
	}
	return style.Render(strings.Join(lines, "\n"))
}

// iconColumn pads an icon to a fixed cell width.
func iconColumn(icon string) string {
	if icon == "" {
		return strings.Repeat(" ", iconColumnWidth)
	}
	if runewidth.StringWidth(icon) >= iconColumnWidth {
		return runewidth.Truncate(icon, iconColumnWidth-1, "") + " "
	}
	return runewidth.FillRight(icon, iconColumnWidth)
}

func paintStatus(status string) string {
	style, ok := statusStyles[status]
	if !ok {
		return toolDetailStyle.Render("[" + status + "]")
	}
	return style.Render("[" + status + "]")
}

func previewLines(text string, limit int) string {
	text = strings.TrimRight(text, "\n")
	if strings.TrimSpace(text) == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	if limit > 0 && len(lines) > limit {
		hidden := len(lines) - limit
		lines = append(lines[:limit], fmt.Sprintf("… %d more lines", hidden))
	}
	return strings.Join(lines, "\n")
}
