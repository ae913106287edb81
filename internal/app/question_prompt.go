package app

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"buildchat/internal/session"
	"buildchat/internal/types"
)

var (
	promptStyle       = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("179")).Padding(0, 1)
	promptHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("179"))
	promptHintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
)

// questionPrompt walks the user through one question request, one prompt
// at a time.
type questionPrompt struct {
	requestID string
	specs     []types.QuestionSpec
	index     int
	answers   session.Answers
}

func newQuestionPrompt(requestID string, specs []types.QuestionSpec) *questionPrompt {
	return &questionPrompt{
		requestID: requestID,
		specs:     specs,
		answers:   session.Answers{},
	}
}

func (p *questionPrompt) current() (types.QuestionSpec, bool) {
	if p == nil || p.index >= len(p.specs) {
		return types.QuestionSpec{}, false
	}
	return p.specs[p.index], true
}

// Answer records the input for the current prompt and reports whether every
// prompt has been answered.
func (p *questionPrompt) Answer(input string) bool {
	spec, ok := p.current()
	if !ok {
		return true
	}
	p.answers[strconv.Itoa(p.index)] = parseAnswer(spec, input)
	p.index++
	return p.index >= len(p.specs)
}

// parseAnswer maps option numbers to labels. Multi-select prompts accept a
// comma separated list.
func parseAnswer(spec types.QuestionSpec, input string) []string {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil
	}
	tokens := []string{input}
	if spec.AllowMultiple {
		tokens = strings.Split(input, ",")
	}
	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if n, err := strconv.Atoi(token); err == nil && n >= 1 && n <= len(spec.Options) {
			token = spec.Options[n-1].Label
		}
		out = append(out, token)
	}
	return out
}

func (p *questionPrompt) View(width int) string {
	spec, ok := p.current()
	if !ok {
		return ""
	}
	var b strings.Builder
	title := strings.TrimSpace(spec.Header)
	if title == "" {
		title = "Question"
	}
	if len(p.specs) > 1 {
		title = fmt.Sprintf("%s (%d/%d)", title, p.index+1, len(p.specs))
	}
	b.WriteString(promptHeaderStyle.Render(title))
	if text := strings.TrimSpace(spec.Text); text != "" {
		b.WriteString("\n")
		b.WriteString(text)
	}
	for i, option := range spec.Options {
		line := fmt.Sprintf("\n  %d. %s", i+1, option.Label)
		if desc := strings.TrimSpace(option.Description); desc != "" {
			line += " · " + desc
		}
		b.WriteString(line)
	}
	hint := "enter to answer · esc to dismiss"
	if spec.AllowMultiple {
		hint = "comma separated · " + hint
	}
	b.WriteString("\n")
	b.WriteString(promptHintStyle.Render(hint))
	return promptStyle.Width(max(minViewportWidth, width) - 2).Render(b.String())
}
