package app

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"buildchat/internal/session"
)

type sessionUpdateMsg struct {
	update session.Update
}

type actionResultMsg struct {
	action string
	info   string
	err    error
	// restore is input text to put back after a failed send.
	restore string
}

func refreshCmd(ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		return sessionUpdateMsg{update: session.Update{
			Session:   ctrl.Snapshot(),
			Fragments: ctrl.Fragments(),
			Reset:     true,
		}}
	}
}

func resumeCmd(ctx context.Context, ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		found, err := ctrl.ResumeLast(ctx)
		if err != nil {
			return actionResultMsg{action: "resume", err: err}
		}
		if !found {
			return actionResultMsg{action: "resume", info: "new project · no sessions yet"}
		}
		return actionResultMsg{action: "resume", info: "resumed last session"}
	}
}

func sendCmd(ctx context.Context, ctrl Controller, text string) tea.Cmd {
	return func() tea.Msg {
		err := ctrl.Send(ctx, session.Draft{Text: text})
		return actionResultMsg{action: "send", err: err, restore: text}
	}
}

func abortCmd(ctx context.Context, ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		return actionResultMsg{action: "abort", info: "aborted", err: ctrl.Abort(ctx)}
	}
}

func newSessionCmd(ctx context.Context, ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		created, err := ctrl.NewSession(ctx)
		if err != nil {
			return actionResultMsg{action: "new session", err: err}
		}
		return actionResultMsg{action: "new session", info: "started session " + created.ID}
	}
}

func replyCmd(ctx context.Context, ctrl Controller, requestID string, answers session.Answers) tea.Cmd {
	return func() tea.Msg {
		return actionResultMsg{action: "answer", err: ctrl.ReplyQuestion(ctx, requestID, answers)}
	}
}

func rejectCmd(ctx context.Context, ctrl Controller, requestID string) tea.Cmd {
	return func() tea.Msg {
		return actionResultMsg{action: "dismiss", info: "question dismissed", err: ctrl.RejectQuestion(ctx, requestID)}
	}
}
