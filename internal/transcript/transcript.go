package transcript

import (
	"strings"

	"buildchat/internal/types"
)

type PartKind string

const (
	KindText      PartKind = "text"
	KindReasoning PartKind = "reasoning"
	KindTool      PartKind = "tool"
	KindSubagent  PartKind = "subagent"
	KindQuestion  PartKind = "question"
	KindStep      PartKind = "step"
	KindFile      PartKind = "file"
)

type ToolStatus string

const (
	StatusPending   ToolStatus = "pending"
	StatusRunning   ToolStatus = "running"
	StatusCompleted ToolStatus = "completed"
	StatusFailed    ToolStatus = "failed"
)

func (s ToolStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type MessageStatus string

const (
	MessageEmpty            MessageStatus = "empty"
	MessageStreaming        MessageStatus = "streaming"
	MessageAwaitingQuestion MessageStatus = "awaiting-question"
	MessageComplete         MessageStatus = "complete"
	MessageInterrupted      MessageStatus = "interrupted"
)

// Part is one unit of message content. Kind selects which variant field is
// set; text and reasoning keep their content in Text.
type Part struct {
	ID       string
	Kind     PartKind
	Text     string
	Tool     *ToolCall
	Subagent *SubagentTask
	Question *Question
	Step     *StepMarker
	File     *Attachment
}

type ToolCall struct {
	Name     string
	CallID   string
	Status   ToolStatus
	Input    map[string]any
	Output   string
	Error    string
	Title    string
	Category string
}

type SubagentTask struct {
	ToolCall
	SubagentType string
	Description  string
	Summary      *types.TaskSummary
}

type Question struct {
	RequestID string
	CallID    string
	Questions []types.QuestionSpec
	Answered  bool
	Rejected  bool
	Output    string
}

type StepMarker struct {
	Finish bool
	Reason string
	Tokens *types.TokenUsage
	Cost   float64
}

type Attachment struct {
	Mime     string
	Filename string
	URL      string
}

type Message struct {
	ID     string
	Role   string
	Parts  []*Part
	Status MessageStatus
	Finish string
	Error  string
	Tokens *types.TokenUsage
	Cost   float64
	Model  types.ModelRef
	Agent  string
	// Local marks user messages created by this client; server echoes of
	// their parts are ignored.
	Local bool
}

func (m *Message) IsAssistant() bool {
	return m != nil && m.Role == types.RoleAssistant
}

func (m *Message) IsUser() bool {
	return m != nil && m.Role == types.RoleUser
}

// Streaming reports whether the message may still receive content.
func (m *Message) Streaming() bool {
	if m == nil {
		return false
	}
	return m.Status == MessageEmpty || m.Status == MessageStreaming || m.Status == MessageAwaitingQuestion
}

// Completed reports whether the message reached a final finish reason.
func (m *Message) Completed() bool {
	return m != nil && m.Status == MessageComplete && m.Finish != "" && m.Finish != types.FinishToolCalls
}

func (m *Message) findPart(id string) int {
	if id == "" {
		return -1
	}
	for i, part := range m.Parts {
		if part.ID == id {
			return i
		}
	}
	return -1
}

// OpenQuestion returns the index of the message's unanswered question part.
func (m *Message) OpenQuestion() int {
	if m == nil {
		return -1
	}
	for i, part := range m.Parts {
		if part.Kind == KindQuestion && part.Question != nil && !part.Question.Answered {
			return i
		}
	}
	return -1
}

// PlainText concatenates the message's text parts.
func (m *Message) PlainText() string {
	if m == nil {
		return ""
	}
	var texts []string
	for _, part := range m.Parts {
		if part.Kind == KindText && strings.TrimSpace(part.Text) != "" {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n\n")
}

// PartRef addresses a part by position. Messages and parts are only ever
// appended, so references stay valid for the transcript's lifetime.
type PartRef struct {
	Message int
	Part    int
}

// Transcript is the conversation of one session.
type Transcript struct {
	SessionID string
	Messages  []*Message
}

func New(sessionID string) *Transcript {
	return &Transcript{SessionID: sessionID}
}

func (t *Transcript) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Messages)
}

func (t *Transcript) Message(i int) *Message {
	if t == nil || i < 0 || i >= len(t.Messages) {
		return nil
	}
	return t.Messages[i]
}

func (t *Transcript) Last() *Message {
	return t.Message(t.Len() - 1)
}

func (t *Transcript) Part(ref PartRef) *Part {
	msg := t.Message(ref.Message)
	if msg == nil || ref.Part < 0 || ref.Part >= len(msg.Parts) {
		return nil
	}
	return msg.Parts[ref.Part]
}

// LastPart locates the final part of the final message.
func (t *Transcript) LastPart() (PartRef, bool) {
	idx := t.Len() - 1
	msg := t.Message(idx)
	if msg == nil || len(msg.Parts) == 0 {
		return PartRef{}, false
	}
	return PartRef{Message: idx, Part: len(msg.Parts) - 1}, true
}

func (t *Transcript) FindMessage(id string) int {
	if t == nil || id == "" {
		return -1
	}
	for i := len(t.Messages) - 1; i >= 0; i-- {
		if t.Messages[i].ID == id {
			return i
		}
	}
	return -1
}

// FindQuestion returns the question part raised by requestID.
func (t *Transcript) FindQuestion(requestID string) *Question {
	if t == nil || requestID == "" {
		return nil
	}
	for i := len(t.Messages) - 1; i >= 0; i-- {
		for _, part := range t.Messages[i].Parts {
			if part.Kind == KindQuestion && part.Question != nil && part.Question.RequestID == requestID {
				return part.Question
			}
		}
	}
	return nil
}

// LastAssistantText returns the text of the newest assistant message with
// any text.
func (t *Transcript) LastAssistantText() string {
	if t == nil {
		return ""
	}
	for i := len(t.Messages) - 1; i >= 0; i-- {
		msg := t.Messages[i]
		if !msg.IsAssistant() {
			continue
		}
		if text := msg.PlainText(); text != "" {
			return text
		}
	}
	return ""
}

func (t *Transcript) append(msg *Message) int {
	t.Messages = append(t.Messages, msg)
	return len(t.Messages) - 1
}
