package opencode

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"buildchat/internal/logging"
	"buildchat/internal/stream"
	"buildchat/internal/types"
)

const (
	defaultStreamPath  = "/stream"
	defaultBackoff     = 2 * time.Second
	defaultMaxBackoff  = 30 * time.Second
	streamBufferEvents = 256
)

type StreamConfig struct {
	Path          string
	Enhance       bool
	MaxReconnects int
	Backoff       time.Duration
	MaxBackoff    time.Duration
	// Logger overrides the client's logger for stream diagnostics.
	Logger logging.Logger
}

// Dialer opens event streams against the client's server.
type Dialer struct {
	client     *Client
	cfg        StreamConfig
	httpClient *http.Client
	logger     logging.Logger
}

func NewDialer(client *Client, cfg StreamConfig) *Dialer {
	if strings.TrimSpace(cfg.Path) == "" {
		cfg.Path = defaultStreamPath
	}
	cfg.Path = "/" + strings.TrimLeft(strings.TrimSpace(cfg.Path), "/")
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if cfg.MaxReconnects < 0 {
		cfg.MaxReconnects = 0
	}
	logger := client.logger
	if cfg.Logger != nil {
		logger = cfg.Logger
	}
	return &Dialer{
		client: client,
		cfg:    cfg,
		// Streams are long-lived; only the request context ends them.
		httpClient: &http.Client{Transport: client.httpClient.Transport},
		logger:     logger.With(logging.F("component", "stream")),
	}
}

// Connection is one live event stream. Events are delivered in server order
// until Close, or until reconnecting gives up, in which case the last event
// is a connection.error.
type Connection struct {
	events chan types.Event
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (c *Connection) Events() <-chan types.Event {
	return c.events
}

// Done is closed once the reader goroutine exits.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Close stops the stream. It is safe to call more than once.
func (c *Connection) Close() {
	c.once.Do(c.cancel)
}

// Open connects to the event stream for directory. A failure to connect the
// first time is returned; later failures are retried in the background.
func (d *Dialer) Open(ctx context.Context, directory string) (*Connection, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	body, err := d.connect(streamCtx, directory)
	if err != nil {
		cancel()
		return nil, err
	}
	conn := &Connection{
		events: make(chan types.Event, streamBufferEvents),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go d.run(streamCtx, conn, body, directory)
	return conn, nil
}

func (d *Dialer) endpoint(directory string) string {
	query := url.Values{}
	if dir := strings.TrimSpace(directory); dir != "" {
		query.Set("directory", dir)
	}
	if d.cfg.Enhance {
		query.Set("enhance", strconv.FormatBool(true))
	}
	endpoint := d.client.baseURL + d.cfg.Path
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	return endpoint
}

func (d *Dialer) connect(ctx context.Context, directory string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.endpoint(directory), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	d.client.authorize(req)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		_ = resp.Body.Close()
		return nil, &RequestError{
			Method:     http.MethodGet,
			Path:       d.cfg.Path,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(raw)),
		}
	}
	d.logger.Debug("stream connected", logging.F("directory", directory))
	return resp.Body, nil
}

func (d *Dialer) run(ctx context.Context, conn *Connection, body io.ReadCloser, directory string) {
	defer close(conn.done)
	defer close(conn.events)
	for {
		err := d.pump(ctx, conn, body)
		_ = body.Close()
		if ctx.Err() != nil {
			return
		}
		d.logger.Warn("stream interrupted", logging.F("err", err))
		body = d.reconnect(ctx, directory)
		if body == nil {
			if ctx.Err() == nil {
				d.deliver(ctx, conn, stream.ConnectionError(err))
			}
			return
		}
	}
}

func (d *Dialer) pump(ctx context.Context, conn *Connection, body io.Reader) error {
	decoder := stream.NewDecoder(body, stream.WithLogger(d.logger))
	for {
		event, err := decoder.Next()
		if err != nil {
			return err
		}
		if !d.deliver(ctx, conn, event) {
			return ctx.Err()
		}
	}
}

func (d *Dialer) deliver(ctx context.Context, conn *Connection, event types.Event) bool {
	select {
	case <-ctx.Done():
		return false
	case conn.events <- event:
		return true
	}
}

// reconnect retries with exponential backoff, returning nil once attempts
// run out or ctx ends.
func (d *Dialer) reconnect(ctx context.Context, directory string) io.ReadCloser {
	for attempt := 1; attempt <= d.cfg.MaxReconnects; attempt++ {
		wait := d.backoff(attempt)
		d.logger.Debug("stream reconnecting", logging.F("attempt", attempt), logging.F("wait", wait))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		body, err := d.connect(ctx, directory)
		if err == nil {
			return body
		}
		d.logger.Warn("stream reconnect failed", logging.F("attempt", attempt), logging.F("err", err))
	}
	return nil
}

func (d *Dialer) backoff(attempt int) time.Duration {
	wait := d.cfg.Backoff
	for i := 1; i < attempt; i++ {
		wait *= 2
		if wait >= d.cfg.MaxBackoff {
			return d.cfg.MaxBackoff
		}
	}
	if wait > d.cfg.MaxBackoff {
		return d.cfg.MaxBackoff
	}
	return wait
}
