package session

import (
	"context"
	"fmt"

	"buildchat/internal/logging"
)

// Abort stops the running turn. The local stream is torn down and input is
// released whether or not the server acknowledges the cancellation. With
// nothing streaming it does nothing.
func (c *Controller) Abort(ctx context.Context) error {
	directory, sessionID, active := c.abortLocal()
	if !active || sessionID == "" {
		return nil
	}
	abortCtx, cancel := context.WithTimeout(ctx, c.opts.AbortTimeout)
	defer cancel()
	if err := c.api.AbortSession(abortCtx, directory, sessionID); err != nil {
		c.logger.Warn("remote abort failed", logging.F("session_id", sessionID), logging.F("err", err))
		return fmt.Errorf("abort session: %w", err)
	}
	return nil
}

func (c *Controller) abortLocal() (string, string, bool) {
	defer c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.session.Streaming {
		return "", "", false
	}
	c.turn++
	c.closeStreamLocked()
	changes := c.rec.Interrupt()
	c.rec.ClearPending()
	c.session.Pending = nil
	c.session.Streaming = false
	c.publishLocked(changes, false)
	return c.session.Directory, c.session.SessionID, true
}
