package proxy

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"buildchat/internal/enhance"
	"buildchat/internal/logging"
	"buildchat/internal/stream"
	"buildchat/internal/types"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

const upstreamEventPath = "/event"

// handleStream relays the upstream event stream one frame at a time.
// Transport failures become a single connection.error frame.
func (s *Server) handleStream(c *fiber.Ctx) error {
	directory := strings.TrimSpace(c.Query("directory"))
	enhanced := parseFlag(c.Query("enhance"))

	target := s.upstream + upstreamEventPath
	if directory != "" {
		target += "?" + url.Values{"directory": {directory}}.Encode()
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	logger := s.logger.With(
		logging.F("directory", directory),
		logging.F("enhance", enhanced))
	client := s.client

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		relayed, err := relay(ctx, client, target, enhanced, w)
		if errors.Is(err, errClientGone) {
			logger.Debug("stream client gone", logging.F("frames", relayed))
			return
		}
		if err != nil {
			logger.Warn("stream relay ended", logging.F("error", err), logging.F("frames", relayed))
			writeConnectionError(w, err.Error())
			return
		}
		logger.Debug("stream relay closed", logging.F("frames", relayed))
	}))
	return nil
}

var errClientGone = errors.New("client disconnected")

func relay(ctx context.Context, client *http.Client, target string, enhanced bool, w *bufio.Writer) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("Status %d", resp.StatusCode)
	}

	frames := stream.NewFrameReader(resp.Body)
	relayed := 0
	for {
		frame, err := frames.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return relayed, nil
			}
			return relayed, err
		}
		if err := writeFrame(w, frame, enhanced); err != nil {
			return relayed, errClientGone
		}
		relayed++
	}
}

func writeFrame(w *bufio.Writer, frame stream.Frame, enhanced bool) error {
	if enhanced && !frame.Empty() {
		if data, ok := enhanceData(frame.Payload()); ok {
			if frame.Name != "" {
				fmt.Fprintf(w, "event: %s\n", frame.Name)
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			return w.Flush()
		}
	}
	for _, line := range frame.Lines {
		w.WriteString(line)
		w.WriteByte('\n')
	}
	w.WriteByte('\n')
	return w.Flush()
}

// enhanceData decodes a JSON event, enriches it and re-encodes it.
// Anything that is not a JSON object is left untouched.
func enhanceData(payload string) ([]byte, bool) {
	var event map[string]any
	if err := json.Unmarshal([]byte(payload), &event); err != nil || event == nil {
		return nil, false
	}
	data, err := json.Marshal(enhance.EnhanceEvent(event))
	if err != nil {
		return nil, false
	}
	return data, true
}

func writeConnectionError(w *bufio.Writer, msg string) {
	data, err := json.Marshal(types.NewEvent(types.EventConnectionError, types.ConnectionErrorProperties{Error: msg}))
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	_ = w.Flush()
}

func parseFlag(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
