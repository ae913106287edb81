package transcript

import "buildchat/internal/types"

type ChangeKind string

const (
	ChangeMessageAdded     ChangeKind = "message-added"
	ChangePartChanged      ChangeKind = "part-changed"
	ChangeMessageCompleted ChangeKind = "message-completed"
	ChangeQuestionOpened   ChangeKind = "question-opened"
	ChangeQuestionClosed   ChangeKind = "question-closed"
	ChangeError            ChangeKind = "error"
	ChangeStatus           ChangeKind = "status"
	ChangeFileEdited       ChangeKind = "file-edited"
	ChangeConnected        ChangeKind = "connected"
)

// Change describes one mutation the reconciler made. Message and Part are
// -1 when the change is not tied to a position.
type Change struct {
	Kind       ChangeKind
	Message    int
	Part       int
	Notice     string
	Err        error
	Completion *Completion
}

// Completion is the bookkeeping reported when an assistant message finishes.
type Completion struct {
	MessageID string
	Finish    string
	Tokens    *types.TokenUsage
	Cost      float64
}

// PendingQuestion identifies the question the agent is currently blocked on.
type PendingQuestion struct {
	RequestID string
	Message   int
}

func notice(kind ChangeKind, text string) Change {
	return Change{Kind: kind, Message: -1, Part: -1, Notice: text}
}

func partChange(kind ChangeKind, ref PartRef) Change {
	return Change{Kind: kind, Message: ref.Message, Part: ref.Part}
}

func messageChange(kind ChangeKind, idx int) Change {
	return Change{Kind: kind, Message: idx, Part: -1}
}
