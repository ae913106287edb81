package types

import (
	"strings"
	"time"
)

// Session is one conversation on the agent server.
type Session struct {
	ID         string      `json:"id"`
	Title      string      `json:"title,omitempty"`
	Directory  string      `json:"directory,omitempty"`
	ModelID    string      `json:"modelID,omitempty"`
	ProviderID string      `json:"providerID,omitempty"`
	Agent      string      `json:"agent,omitempty"`
	Time       SessionTime `json:"time,omitempty"`
}

type SessionTime struct {
	Created int64 `json:"created,omitempty"`
	Updated int64 `json:"updated,omitempty"`
}

func (s Session) CreatedAt() time.Time {
	if s.Time.Created <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(s.Time.Created).UTC()
}

func (s Session) Model() ModelRef {
	return ModelRef{ProviderID: strings.TrimSpace(s.ProviderID), ModelID: strings.TrimSpace(s.ModelID)}
}

func (s Session) DisplayTitle() string {
	if title := strings.TrimSpace(s.Title); title != "" {
		return title
	}
	return s.ID
}
