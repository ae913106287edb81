package opencode

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"buildchat/internal/types"
)

// ListSessions returns the project's sessions, newest first.
func (c *Client) ListSessions(ctx context.Context, directory string) ([]types.Session, error) {
	var sessions []types.Session
	if err := c.doJSON(ctx, http.MethodGet, appendDirectoryQuery("/session", directory), nil, &sessions); err != nil {
		return nil, err
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].Time.Created > sessions[j].Time.Created
	})
	return sessions, nil
}

func (c *Client) CreateSession(ctx context.Context, directory, title string) (*types.Session, error) {
	payload := map[string]any{}
	if title = strings.TrimSpace(title); title != "" {
		payload["title"] = title
	}
	var session types.Session
	if err := c.doJSON(ctx, http.MethodPost, appendDirectoryQuery("/session", directory), payload, &session); err != nil {
		return nil, err
	}
	if strings.TrimSpace(session.ID) == "" {
		return nil, fmt.Errorf("session id missing from server response")
	}
	return &session, nil
}

func (c *Client) ListMessages(ctx context.Context, directory, sessionID string) ([]types.WireMessage, error) {
	sessionID, err := requireID("session", sessionID)
	if err != nil {
		return nil, err
	}
	path := appendDirectoryQuery(fmt.Sprintf("/session/%s/message", url.PathEscape(sessionID)), directory)
	var messages []types.WireMessage
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// SendMessage posts a user message. The server either answers with the
// finished assistant message or acknowledges and streams the reply; the
// latter returns nil.
func (c *Client) SendMessage(ctx context.Context, directory, sessionID string, req types.SendMessageRequest) (*types.WireMessage, error) {
	sessionID, err := requireID("session", sessionID)
	if err != nil {
		return nil, err
	}
	path := appendDirectoryQuery(fmt.Sprintf("/session/%s/message", url.PathEscape(sessionID)), directory)
	var reply types.WireMessage
	if err := c.doJSON(ctx, http.MethodPost, path, req, &reply); err != nil {
		return nil, err
	}
	if strings.TrimSpace(reply.Info.ID) == "" && len(reply.Parts) == 0 {
		return nil, nil
	}
	return &reply, nil
}

func (c *Client) AbortSession(ctx context.Context, directory, sessionID string) error {
	sessionID, err := requireID("session", sessionID)
	if err != nil {
		return err
	}
	path := appendDirectoryQuery(fmt.Sprintf("/session/%s/abort", url.PathEscape(sessionID)), directory)
	return c.doJSON(ctx, http.MethodPost, path, map[string]any{}, nil)
}
