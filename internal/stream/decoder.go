package stream

import (
	"encoding/json"
	"errors"
	"io"
	"strings"

	"buildchat/internal/logging"
	"buildchat/internal/types"
)

const logPayloadPrefix = 120

// Decoder turns server-sent-event frames into domain events. It never
// interprets properties.
type Decoder struct {
	frames *FrameReader
	logger logging.Logger
	stats  Stats
}

type Stats struct {
	Frames  int
	Emitted int
	Dropped int
	Skipped int
}

type Option func(*Decoder)

func WithLogger(logger logging.Logger) Option {
	return func(d *Decoder) {
		d.logger = logging.OrNop(logger)
	}
}

func NewDecoder(r io.Reader, opts ...Option) *Decoder {
	d := &Decoder{
		frames: NewFrameReader(r),
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

func (d *Decoder) Stats() Stats {
	return d.stats
}

// Next returns the next forwardable event. It returns io.EOF once the
// underlying reader is exhausted, or the scanner's error if reading failed.
func (d *Decoder) Next() (types.Event, error) {
	for {
		frame, err := d.frames.Next()
		if err != nil {
			return types.Event{}, err
		}
		if frame.Empty() {
			continue
		}
		d.stats.Frames++
		if event, keep := d.decodeFrame(frame); keep {
			d.stats.Emitted++
			return event, nil
		}
	}
}

func (d *Decoder) decodeFrame(f Frame) (types.Event, bool) {
	payload := f.Payload()
	if payload == "" {
		d.stats.Skipped++
		return types.Event{}, false
	}
	var event types.Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		d.stats.Dropped++
		d.logger.Warn("stream frame dropped",
			logging.F("error", err),
			logging.F("payload", truncate(payload, logPayloadPrefix)))
		return types.Event{}, false
	}
	if strings.TrimSpace(event.Type) == "" {
		event.Type = f.Name
	}
	if strings.TrimSpace(event.Type) == "" {
		d.stats.Dropped++
		d.logger.Warn("stream frame without type", logging.F("payload", truncate(payload, logPayloadPrefix)))
		return types.Event{}, false
	}
	if IsHeartbeat(event.Type) {
		d.stats.Skipped++
		return types.Event{}, false
	}
	return event, true
}

// IsHeartbeat reports whether the event type is a keepalive that must not be
// forwarded.
func IsHeartbeat(eventType string) bool {
	switch strings.ToLower(strings.TrimSpace(eventType)) {
	case types.EventServerHeartbeat, types.EventHeartbeat:
		return true
	default:
		return false
	}
}

// ConnectionError builds the distinguished transport failure event.
func ConnectionError(err error) types.Event {
	msg := "connection lost"
	if err != nil && !errors.Is(err, io.EOF) {
		msg = err.Error()
	}
	return types.NewEvent(types.EventConnectionError, types.ConnectionErrorProperties{Error: msg})
}

func truncate(value string, limit int) string {
	if limit <= 0 || len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}
