package types

import (
	"encoding/json"
	"strings"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const (
	PartTypeText       = "text"
	PartTypeReasoning  = "reasoning"
	PartTypeTool       = "tool"
	PartTypeFile       = "file"
	PartTypeStepStart  = "step-start"
	PartTypeStepFinish = "step-finish"
)

const (
	ToolStatusPending   = "pending"
	ToolStatusRunning   = "running"
	ToolStatusCompleted = "completed"
	ToolStatusError     = "error"
)

// FinishToolCalls marks an assistant step that ends in tool use; the message
// keeps generating afterwards.
const FinishToolCalls = "tool-calls"

// Part is the wire shape of one message part as the agent server reports it.
type Part struct {
	ID        string      `json:"id,omitempty"`
	SessionID string      `json:"sessionID,omitempty"`
	MessageID string      `json:"messageID,omitempty"`
	Type      string      `json:"type"`
	Text      string      `json:"text,omitempty"`
	Tool      string      `json:"tool,omitempty"`
	CallID    string      `json:"callID,omitempty"`
	State     *ToolState  `json:"state,omitempty"`
	Mime      string      `json:"mime,omitempty"`
	Filename  string      `json:"filename,omitempty"`
	URL       string      `json:"url,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	Tokens    *TokenUsage `json:"tokens,omitempty"`
	Cost      float64     `json:"cost,omitempty"`
}

type ToolState struct {
	Status   string         `json:"status,omitempty"`
	Input    map[string]any `json:"input,omitempty"`
	Output   string         `json:"output,omitempty"`
	Error    string         `json:"error,omitempty"`
	Title    string         `json:"title,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type TokenUsage struct {
	Input     int `json:"input"`
	Output    int `json:"output"`
	Reasoning int `json:"reasoning"`
	Cache     struct {
		Read  int `json:"read"`
		Write int `json:"write"`
	} `json:"cache"`
}

type MessageError struct {
	Name string `json:"name,omitempty"`
	Data struct {
		Message string `json:"message,omitempty"`
	} `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func (e *MessageError) Text() string {
	if e == nil {
		return ""
	}
	if msg := strings.TrimSpace(e.Data.Message); msg != "" {
		return msg
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		return msg
	}
	return strings.TrimSpace(e.Name)
}

// Aborted reports whether the error is the server's user-abort marker.
func (e *MessageError) Aborted() bool {
	return e != nil && strings.EqualFold(strings.TrimSpace(e.Name), "MessageAbortedError")
}

type MessageTime struct {
	Created   int64 `json:"created,omitempty"`
	Completed int64 `json:"completed,omitempty"`
}

type MessageInfo struct {
	ID         string        `json:"id,omitempty"`
	SessionID  string        `json:"sessionID,omitempty"`
	Role       string        `json:"role,omitempty"`
	ModelID    string        `json:"modelID,omitempty"`
	ProviderID string        `json:"providerID,omitempty"`
	Mode       string        `json:"mode,omitempty"`
	Agent      string        `json:"agent,omitempty"`
	Finish     string        `json:"finish,omitempty"`
	Error      *MessageError `json:"error,omitempty"`
	Tokens     *TokenUsage   `json:"tokens,omitempty"`
	Cost       float64       `json:"cost,omitempty"`
	Time       MessageTime   `json:"time,omitempty"`
	// User messages report the selection under model.
	Model *ModelRef `json:"model,omitempty"`
}

// AgentName returns the agent recorded on the message; older servers call it mode.
func (i MessageInfo) AgentName() string {
	if agent := strings.TrimSpace(i.Agent); agent != "" {
		return agent
	}
	return strings.TrimSpace(i.Mode)
}

// ModelRef returns the model recorded on the message, if any.
func (i MessageInfo) ModelRef() ModelRef {
	ref := ModelRef{ProviderID: strings.TrimSpace(i.ProviderID), ModelID: strings.TrimSpace(i.ModelID)}
	if ref.ModelID == "" && i.Model != nil {
		ref = *i.Model
	}
	return ref
}

// WireMessage is one entry of the session message list.
type WireMessage struct {
	Info  MessageInfo `json:"info"`
	Parts []Part      `json:"parts"`
}

// UnmarshalJSON accepts both {info, parts} and the flat {role, parts} shape.
func (m *WireMessage) UnmarshalJSON(data []byte) error {
	var raw struct {
		Info  *MessageInfo `json:"info"`
		Parts []Part       `json:"parts"`
		MessageInfo
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Info != nil {
		m.Info = *raw.Info
	} else {
		m.Info = raw.MessageInfo
	}
	if m.Info.Role == "" {
		m.Info.Role = raw.MessageInfo.Role
	}
	m.Parts = raw.Parts
	return nil
}

func (m WireMessage) Role() string {
	return strings.ToLower(strings.TrimSpace(m.Info.Role))
}

// OutgoingPart is a part of a message the client sends.
type OutgoingPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Mime     string `json:"mime,omitempty"`
	Filename string `json:"filename,omitempty"`
	URL      string `json:"url,omitempty"`
}

type SendMessageRequest struct {
	Parts []OutgoingPart `json:"parts"`
	Model *ModelRef      `json:"model,omitempty"`
	Agent string         `json:"agent,omitempty"`
}
