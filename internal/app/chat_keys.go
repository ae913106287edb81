package app

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"buildchat/internal/sanitizer"
	"buildchat/internal/session"
)

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "ctrl+c":
		return tea.Quit
	case "ctrl+x":
		if m.session.InputMode() == session.InputReady {
			m.setStatus(statusInfo, "nothing to abort")
			return nil
		}
		m.prompt = nil
		m.layout()
		return abortCmd(m.ctx, m.ctrl)
	case "ctrl+n":
		if m.session.InputMode() != session.InputReady {
			m.setStatus(statusWarning, streamingHintText)
			return nil
		}
		return newSessionCmd(m.ctx, m.ctrl)
	case "ctrl+y":
		m.copyLastReply()
		return nil
	case "pgup", "pgdown", "ctrl+u", "ctrl+d":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		m.follow = m.viewport.AtBottom()
		return cmd
	case "esc":
		if m.prompt != nil {
			requestID := m.prompt.requestID
			return rejectCmd(m.ctx, m.ctrl, requestID)
		}
		return nil
	case "enter":
		return m.submit()
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

func (m *Model) submit() tea.Cmd {
	text := strings.TrimSpace(sanitizer.Clean(m.input.Value(), sanitizer.Multiline))
	switch m.session.InputMode() {
	case session.InputQuestion:
		if m.prompt == nil {
			return nil
		}
		done := m.prompt.Answer(text)
		m.input.Reset()
		m.layout()
		if !done {
			return nil
		}
		return replyCmd(m.ctx, m.ctrl, m.prompt.requestID, m.prompt.answers)
	case session.InputStreaming:
		m.setStatus(statusWarning, streamingHintText)
		return nil
	}
	if text == "" {
		return nil
	}
	m.input.Reset()
	m.follow = true
	m.setStatus(statusInfo, "")
	return sendCmd(m.ctx, m.ctrl, text)
}

func (m *Model) copyLastReply() {
	text := strings.TrimSpace(m.ctrl.LastReply())
	if text == "" {
		m.setStatus(statusWarning, "nothing to copy")
		return
	}
	if _, err := copyTextToClipboard(text); err != nil {
		m.setStatus(statusError, "copy failed: "+err.Error())
		return
	}
	m.setStatus(statusInfo, "reply copied")
}
