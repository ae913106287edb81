package opencode

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"buildchat/internal/types"
)

// ListQuestions returns the questions the agent is blocked on across the
// project's sessions.
func (c *Client) ListQuestions(ctx context.Context, directory string) ([]types.QuestionRequest, error) {
	var questions []types.QuestionRequest
	if err := c.doJSON(ctx, http.MethodGet, appendDirectoryQuery("/question", directory), nil, &questions); err != nil {
		return nil, err
	}
	return questions, nil
}

// ReplyQuestion answers positionally: one list of labels per asked question.
func (c *Client) ReplyQuestion(ctx context.Context, directory, requestID string, answers [][]string) error {
	requestID, err := requireID("question", requestID)
	if err != nil {
		return err
	}
	if answers == nil {
		answers = [][]string{}
	}
	for i := range answers {
		if answers[i] == nil {
			answers[i] = []string{}
		}
	}
	path := appendDirectoryQuery(fmt.Sprintf("/question/%s/reply", url.PathEscape(requestID)), directory)
	return c.doJSON(ctx, http.MethodPost, path, map[string]any{"answers": answers}, nil)
}

func (c *Client) RejectQuestion(ctx context.Context, directory, requestID string) error {
	requestID, err := requireID("question", requestID)
	if err != nil {
		return err
	}
	path := appendDirectoryQuery(fmt.Sprintf("/question/%s/reject", url.PathEscape(requestID)), directory)
	return c.doJSON(ctx, http.MethodPost, path, nil, nil)
}
