package types

import (
	"encoding/json"
	"strings"
)

// QuestionRequest is an interactive prompt the agent is blocked on.
type QuestionRequest struct {
	ID        string           `json:"id"`
	SessionID string           `json:"sessionID,omitempty"`
	Questions []QuestionSpec   `json:"questions"`
	Tool      *QuestionToolRef `json:"tool,omitempty"`
}

// QuestionToolRef links a request to the tool call that raised it.
type QuestionToolRef struct {
	MessageID string `json:"messageID,omitempty"`
	CallID    string `json:"callID,omitempty"`
}

type QuestionSpec struct {
	Header        string           `json:"header,omitempty"`
	Text          string           `json:"question,omitempty"`
	Options       []QuestionOption `json:"options,omitempty"`
	AllowMultiple bool             `json:"multiple,omitempty"`
}

type QuestionOption struct {
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// UnmarshalJSON accepts text under "question" or "text" and the multi-select
// flag under "multiple" or "allowMultiple".
func (q *QuestionSpec) UnmarshalJSON(data []byte) error {
	var raw struct {
		Header        string           `json:"header"`
		Question      string           `json:"question"`
		Text          string           `json:"text"`
		Options       []QuestionOption `json:"options"`
		Multiple      bool             `json:"multiple"`
		AllowMultiple bool             `json:"allowMultiple"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	q.Header = raw.Header
	q.Text = raw.Question
	if strings.TrimSpace(q.Text) == "" {
		q.Text = raw.Text
	}
	q.Options = raw.Options
	q.AllowMultiple = raw.Multiple || raw.AllowMultiple
	return nil
}

// UnmarshalJSON accepts a bare string label or a {label, description} object.
func (o *QuestionOption) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err == nil {
		o.Label = label
		o.Description = ""
		return nil
	}
	var raw struct {
		Label       string `json:"label"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	o.Label = raw.Label
	o.Description = raw.Description
	return nil
}

// QuestionsFromInput extracts question specs from a question tool's input.
func QuestionsFromInput(input map[string]any) []QuestionSpec {
	if input == nil {
		return nil
	}
	raw, ok := input["questions"]
	if !ok {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var out []QuestionSpec
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
