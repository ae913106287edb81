package types

import (
	"encoding/json"
	"strings"
)

const (
	EventServerConnected    = "server.connected"
	EventServerHeartbeat    = "server.heartbeat"
	EventHeartbeat          = "heartbeat"
	EventMessagePartUpdated = "message.part.updated"
	EventMessageUpdated     = "message.updated"
	EventFileEdited         = "file.edited"
	EventSessionStatus      = "session.status"
	EventSessionError       = "session.error"
	EventSessionIdle        = "session.idle"
	EventConnectionError    = "connection.error"
	EventQuestionAsked      = "question.asked"
	EventQuestionReplied    = "question.replied"
	EventQuestionRejected   = "question.rejected"
)

// Event is one decoded stream frame. Properties stay raw; interpretation
// belongs to the reconciler.
type Event struct {
	Type       string          `json:"type"`
	Properties json.RawMessage `json:"properties,omitempty"`
	Enhancement
}

// Enhancement carries the optional proxy-added metadata. Every field may be
// absent.
type Enhancement struct {
	IsSubagent          bool         `json:"_is_subagent,omitempty"`
	SubagentType        string       `json:"_subagent_type,omitempty"`
	SubagentDescription string       `json:"_subagent_description,omitempty"`
	SubagentParsed      *TaskSummary `json:"_subagent_parsed,omitempty"`
	ToolCategory        string       `json:"_tool_category,omitempty"`
}

// TaskSummary is the digest of a sub-agent's textual output.
type TaskSummary struct {
	Tools        []string `json:"tools"`
	FilesRead    []string `json:"files_read"`
	FilesWritten []string `json:"files_written"`
	Summary      string   `json:"summary"`
	HasErrors    bool     `json:"has_errors"`
}

func (e Event) NormalizedType() string {
	return strings.ToLower(strings.TrimSpace(e.Type))
}

// DecodeProperties unmarshals the raw properties into out. Empty properties
// leave out untouched.
func (e Event) DecodeProperties(out any) error {
	if len(e.Properties) == 0 || string(e.Properties) == "null" {
		return nil
	}
	return json.Unmarshal(e.Properties, out)
}

// NewEvent builds an event with the given properties marshaled to JSON.
func NewEvent(eventType string, properties any) Event {
	event := Event{Type: eventType}
	if properties != nil {
		if raw, err := json.Marshal(properties); err == nil {
			event.Properties = raw
		}
	}
	return event
}

type PartUpdatedProperties struct {
	Part  Part    `json:"part"`
	Delta *string `json:"delta,omitempty"`
}

type MessageUpdatedProperties struct {
	Info MessageInfo `json:"info"`
}

type SessionStatusProperties struct {
	SessionID string `json:"sessionID"`
	Status    struct {
		Type    string `json:"type"`
		Message string `json:"message,omitempty"`
	} `json:"status"`
}

type SessionErrorProperties struct {
	SessionID string        `json:"sessionID"`
	Error     *MessageError `json:"error,omitempty"`
}

type SessionIdleProperties struct {
	SessionID string `json:"sessionID"`
}

type ConnectionErrorProperties struct {
	Error string `json:"error"`
}

type FileEditedProperties struct {
	File string `json:"file"`
}

type QuestionRepliedProperties struct {
	SessionID string     `json:"sessionID"`
	RequestID string     `json:"requestID"`
	Answers   [][]string `json:"answers,omitempty"`
}

type QuestionRejectedProperties struct {
	SessionID string `json:"sessionID"`
	RequestID string `json:"requestID"`
}
