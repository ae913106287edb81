package session

import (
	"buildchat/internal/transcript"
	"buildchat/internal/types"
)

type InputMode string

const (
	InputReady     InputMode = "ready"
	InputStreaming InputMode = "streaming"
	InputQuestion  InputMode = "question"
)

// AppSession is the selection the controller acts on: which project and
// session are open, which model and agent new messages use, and whether a
// turn is in flight.
type AppSession struct {
	Directory string
	SessionID string
	Model     types.ModelRef
	Agent     string
	Pending   *transcript.PendingQuestion
	Streaming bool
}

// InputMode reports what the input area should accept. A pending question
// takes precedence over streaming.
func (s AppSession) InputMode() InputMode {
	switch {
	case s.Pending != nil:
		return InputQuestion
	case s.Streaming:
		return InputStreaming
	default:
		return InputReady
	}
}

func (s AppSession) clone() AppSession {
	out := s
	if s.Pending != nil {
		pending := *s.Pending
		out.Pending = &pending
	}
	return out
}
