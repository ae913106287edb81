package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"buildchat/internal/types"
)

// Answers maps a question to the labels chosen for it. Keys are the
// question header, the question text or its zero-based index.
type Answers map[string][]string

// PositionalAnswers orders answers the way the questions were asked. A
// question with no answer gets an empty list.
func PositionalAnswers(questions []types.QuestionSpec, answers Answers) [][]string {
	out := make([][]string, len(questions))
	for i, q := range questions {
		out[i] = []string{}
		for _, key := range []string{strings.TrimSpace(q.Header), strings.TrimSpace(q.Text), strconv.Itoa(i)} {
			if key == "" {
				continue
			}
			values, ok := answers[key]
			if !ok {
				continue
			}
			for _, value := range values {
				if value = strings.TrimSpace(value); value != "" {
					out[i] = append(out[i], value)
				}
			}
			break
		}
	}
	return out
}

// ReplyQuestion answers the pending question. An empty requestID means the
// pending one.
func (c *Controller) ReplyQuestion(ctx context.Context, requestID string, answers Answers) error {
	target, err := c.pendingQuestion(requestID)
	if err != nil {
		return err
	}
	wire := PositionalAnswers(target.questions, answers)
	if err := c.api.ReplyQuestion(ctx, target.directory, target.requestID, wire); err != nil {
		return fmt.Errorf("reply question: %w", err)
	}
	return c.closeQuestion(ctx, target, wire, false)
}

// RejectQuestion declines the pending question.
func (c *Controller) RejectQuestion(ctx context.Context, requestID string) error {
	target, err := c.pendingQuestion(requestID)
	if err != nil {
		return err
	}
	if err := c.api.RejectQuestion(ctx, target.directory, target.requestID); err != nil {
		return fmt.Errorf("reject question: %w", err)
	}
	return c.closeQuestion(ctx, target, nil, true)
}

// PendingQuestion returns the request id and prompts of the open question.
func (c *Controller) PendingQuestion() (string, []types.QuestionSpec, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pending := c.rec.Pending()
	if pending == nil {
		return "", nil, false
	}
	q := c.tr.FindQuestion(pending.RequestID)
	if q == nil {
		return pending.RequestID, nil, true
	}
	return pending.RequestID, append([]types.QuestionSpec(nil), q.Questions...), true
}

type questionTarget struct {
	turn      uint64
	directory string
	requestID string
	questions []types.QuestionSpec
}

func (c *Controller) pendingQuestion(requestID string) (questionTarget, error) {
	requestID = strings.TrimSpace(requestID)
	c.mu.Lock()
	defer c.mu.Unlock()
	pending := c.rec.Pending()
	if pending == nil {
		return questionTarget{}, ErrNoPendingQuestion
	}
	if requestID == "" {
		requestID = pending.RequestID
	}
	if requestID != pending.RequestID {
		return questionTarget{}, ErrUnknownQuestion
	}
	q := c.tr.FindQuestion(requestID)
	if q == nil {
		return questionTarget{}, ErrUnknownQuestion
	}
	return questionTarget{
		turn:      c.turn,
		directory: c.session.Directory,
		requestID: requestID,
		questions: append([]types.QuestionSpec(nil), q.Questions...),
	}, nil
}

// closeQuestion records the reply locally and makes sure a stream is open
// to carry the agent's continuation.
func (c *Controller) closeQuestion(ctx context.Context, target questionTarget, answers [][]string, rejected bool) error {
	reopen := func() bool {
		defer c.flush()
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.turn != target.turn {
			return false
		}
		changes := c.rec.AnswerQuestion(target.requestID, answers, rejected)
		c.session.Pending = c.rec.Pending()
		c.session.Streaming = true
		c.publishLocked(changes, false)
		return !c.streamAliveLocked()
	}()
	if !reopen {
		return nil
	}
	if err := c.openStream(ctx, target.turn, target.directory); err != nil {
		c.stopResumed(target.turn, err)
		return fmt.Errorf("resume stream: %w", err)
	}
	return nil
}
