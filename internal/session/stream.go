package session

import (
	"context"

	"buildchat/internal/logging"
	"buildchat/internal/opencode"
	"buildchat/internal/stream"
	"buildchat/internal/transcript"
	"buildchat/internal/types"
)

type dialerStreams struct {
	dialer *opencode.Dialer
}

// DialerStreams adapts an opencode dialer to a StreamOpener.
func DialerStreams(dialer *opencode.Dialer) StreamOpener {
	return dialerStreams{dialer: dialer}
}

func (d dialerStreams) Open(ctx context.Context, directory string) (Stream, error) {
	conn, err := d.dialer.Open(ctx, directory)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// openStream connects for the operation identified by turn. The connection
// outlives ctx; only Close, a switch or the end of the turn stop it.
func (c *Controller) openStream(ctx context.Context, turn uint64, directory string) error {
	conn, err := c.streams.Open(context.WithoutCancel(ctx), directory)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.turn != turn {
		conn.Close()
		return nil
	}
	c.closeStreamLocked()
	c.conn = conn
	epoch := c.epoch
	go c.pump(epoch, conn)
	c.logger.Debug("stream opened", logging.F("epoch", epoch), logging.F("session_id", c.session.SessionID))
	return nil
}

// closeStreamLocked drops the live connection. Bumping the epoch makes any
// event still queued on it stale.
func (c *Controller) closeStreamLocked() {
	c.epoch++
	if c.conn == nil {
		return
	}
	c.conn.Close()
	c.conn = nil
}

func (c *Controller) streamAliveLocked() bool {
	if c.conn == nil {
		return false
	}
	select {
	case <-c.conn.Done():
		return false
	default:
		return true
	}
}

func (c *Controller) pump(epoch uint64, conn Stream) {
	for event := range conn.Events() {
		c.deliver(epoch, event)
	}
	c.streamEnded(epoch)
}

func (c *Controller) deliver(epoch uint64, event types.Event) {
	defer c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		c.stats.DiscardedEvents++
		c.logger.Debug("stale event discarded", logging.F("type", event.Type), logging.F("epoch", epoch))
		return
	}
	changes := c.rec.Apply(event)
	if len(changes) == 0 {
		return
	}
	c.handleChangesLocked(changes)
}

// streamEnded handles a connection whose channel closed without a
// connection error, which only happens when the server ends it cleanly.
func (c *Controller) streamEnded(epoch uint64) {
	defer c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		return
	}
	c.conn = nil
	if !c.session.Streaming {
		return
	}
	c.handleChangesLocked(c.rec.Apply(stream.ConnectionError(nil)))
}

// handleChangesLocked settles controller state after the reconciler moved
// and publishes the result. A turn ends on error, on idle, or when the
// newest message completes.
func (c *Controller) handleChangesLocked(changes []transcript.Change) {
	c.session.Pending = c.rec.Pending()
	for _, change := range changes {
		switch change.Kind {
		case transcript.ChangeError:
			c.logger.Warn("turn failed", logging.F("err", change.Notice))
			c.endTurnLocked()
		case transcript.ChangeStatus:
			if change.Notice == "idle" {
				c.endTurnLocked()
			}
		case transcript.ChangeMessageCompleted:
			if change.Message == c.tr.Len()-1 && c.session.Pending == nil {
				c.endTurnLocked()
			}
		}
	}
	c.publishLocked(changes, false)
}

func (c *Controller) endTurnLocked() {
	if !c.session.Streaming && c.conn == nil {
		return
	}
	c.closeStreamLocked()
	c.rec.Interrupt()
	c.session.Streaming = false
	c.session.Pending = c.rec.Pending()
}
