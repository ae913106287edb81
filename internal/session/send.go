package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"buildchat/internal/logging"
	"buildchat/internal/opencode"
	"buildchat/internal/transcript"
	"buildchat/internal/types"
)

// Draft is a message composed by the user.
type Draft struct {
	Text        string
	Attachments []transcript.Attachment
}

func (d Draft) empty() bool {
	return strings.TrimSpace(d.Text) == "" && len(d.Attachments) == 0
}

// Send posts a message to the open session, creating one if none is
// selected. The reply arrives on the stream, or synchronously when the
// server answers the request with the full message.
func (c *Controller) Send(ctx context.Context, draft Draft) error {
	if draft.empty() {
		return ErrEmptyMessage
	}
	turn, req, sessionID, directory, err := c.beginSend(ctx, draft)
	if err != nil {
		return err
	}

	if sessionID == "" {
		created, err := c.api.CreateSession(ctx, directory, "")
		if err != nil {
			return c.failSend(turn, fmt.Errorf("create session: %w", err))
		}
		if !c.bindSession(turn, created.ID) {
			return nil
		}
		sessionID = created.ID
		c.rememberSession(ctx, directory, sessionID)
	}

	if err := c.openStream(ctx, turn, directory); err != nil {
		c.logger.Warn("stream unavailable; waiting for the synchronous reply",
			logging.F("session_id", sessionID),
			logging.F("err", err),
		)
	}

	reply, err := c.api.SendMessage(ctx, directory, sessionID, req)
	return c.finishSend(turn, reply, err)
}

func (c *Controller) beginSend(ctx context.Context, draft Draft) (uint64, types.SendMessageRequest, string, string, error) {
	rules := c.personalRules(ctx)

	defer c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.Directory == "" {
		return 0, types.SendMessageRequest{}, "", "", ErrNoProject
	}
	if c.session.Streaming {
		return 0, types.SendMessageRequest{}, "", "", ErrStreamActive
	}

	first := !hasUserMessage(c.tr)
	req := types.SendMessageRequest{Agent: c.session.Agent}
	if !c.session.Model.IsZero() {
		model := c.session.Model
		req.Model = &model
	}
	text := strings.TrimSpace(draft.Text)
	if first && rules != "" {
		text = withPreamble(rules, text)
	}
	if text != "" {
		req.Parts = append(req.Parts, types.OutgoingPart{Type: types.PartTypeText, Text: text})
	}
	for _, file := range draft.Attachments {
		req.Parts = append(req.Parts, types.OutgoingPart{
			Type:     types.PartTypeFile,
			Mime:     file.Mime,
			Filename: file.Filename,
			URL:      file.URL,
		})
	}

	c.turn++
	c.rec.ClearPending()
	c.session.Pending = nil
	c.session.Streaming = true
	changes := c.rec.AppendUser(strings.TrimSpace(draft.Text), draft.Attachments)
	changes = append(changes, c.rec.BeginAssistant()...)
	c.publishLocked(changes, false)
	return c.turn, req, c.session.SessionID, c.session.Directory, nil
}

func (c *Controller) bindSession(turn uint64, sessionID string) bool {
	defer c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.turn != turn {
		return false
	}
	c.session.SessionID = sessionID
	c.tr.SessionID = sessionID
	c.publishLocked(nil, false)
	return true
}

func (c *Controller) finishSend(turn uint64, reply *types.WireMessage, err error) error {
	defer c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.turn != turn {
		return nil
	}
	if err != nil {
		if opencode.IsTimeout(err) && c.streamAliveLocked() {
			c.logger.Info("send timed out with the stream live; waiting for it", logging.F("err", err))
			return nil
		}
		return c.failSendLocked(fmt.Errorf("send message: %w", err))
	}
	if reply != nil {
		c.handleChangesLocked(c.rec.Replay([]types.WireMessage{*reply}))
		if c.session.Streaming && !c.streamAliveLocked() {
			c.endTurnLocked()
			c.publishLocked(nil, false)
		}
		return nil
	}
	if !c.streamAliveLocked() && c.session.Streaming {
		return c.failSendLocked(errors.New("no stream to deliver the reply"))
	}
	return nil
}

func (c *Controller) failSend(turn uint64, err error) error {
	defer c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.turn != turn {
		return err
	}
	return c.failSendLocked(err)
}

func (c *Controller) failSendLocked(err error) error {
	changes := []transcript.Change{{Kind: transcript.ChangeError, Message: -1, Part: -1, Notice: err.Error(), Err: err}}
	c.closeStreamLocked()
	changes = append(changes, c.rec.Interrupt()...)
	c.session.Streaming = false
	c.publishLocked(changes, false)
	return err
}

func hasUserMessage(t *transcript.Transcript) bool {
	for _, msg := range t.Messages {
		if msg.IsUser() {
			return true
		}
	}
	return false
}

func withPreamble(rules, text string) string {
	var b strings.Builder
	b.WriteString("Personal rules (follow these throughout this session):\n")
	b.WriteString(rules)
	if text != "" {
		b.WriteString("\n\n")
		b.WriteString(text)
	}
	return b.String()
}
