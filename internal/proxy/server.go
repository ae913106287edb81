package proxy

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"buildchat/internal/logging"

	"github.com/gofiber/fiber/v2"
	fiberproxy "github.com/gofiber/fiber/v2/middleware/proxy"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

const defaultUpstreamTimeout = 5 * time.Minute

// Config describes the proxy in front of an agent server.
type Config struct {
	Upstream string
	Logger   logging.Logger
	// HTTPClient is used for the long-lived event relay. Nil uses a client
	// without a total timeout.
	HTTPClient *http.Client
	// Timeout bounds passthrough requests.
	Timeout time.Duration
}

// Server relays the agent server's API and event stream, enriching stream
// events with tool metadata on request.
type Server struct {
	app      *fiber.App
	upstream string
	client   *http.Client
	timeout  time.Duration
	logger   logging.Logger
}

func New(cfg Config) (*Server, error) {
	upstream := strings.TrimRight(strings.TrimSpace(cfg.Upstream), "/")
	if upstream == "" {
		return nil, errors.New("upstream is required")
	}
	if !strings.Contains(upstream, "://") {
		upstream = "http://" + upstream
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultUpstreamTimeout
	}
	s := &Server{
		upstream: upstream,
		client:   client,
		timeout:  timeout,
		logger:   logging.OrNop(cfg.Logger),
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "buildchat-proxy",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(recover.New())
	s.app.Use(requestLogger(s.logger))
	s.app.Get("/health", s.handleHealth)
	s.app.Get("/stream", s.handleStream)
	s.app.All("/*", s.handlePassthrough)
	return s, nil
}

// App exposes the fiber app for tests and embedding.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	s.logger.Info("proxy listening",
		logging.F("addr", addr),
		logging.F("upstream", s.upstream))
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "ok",
		"upstream": s.upstream,
	})
}

func (s *Server) handlePassthrough(c *fiber.Ctx) error {
	target := s.upstream + c.OriginalURL()
	if err := fiberproxy.DoTimeout(c, target, s.timeout); err != nil {
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
	c.Response().Header.Del(fiber.HeaderServer)
	return nil
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Warn("proxy request failed",
			logging.F("path", c.Path()),
			logging.F("error", err))
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func requestLogger(logger logging.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqID := c.Get(fiber.HeaderXRequestID)
		if reqID == "" {
			reqID = logging.NewRequestID()
		}
		c.Set(fiber.HeaderXRequestID, reqID)
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			}
		}
		logger.Info("http_request",
			logging.F("request_id", reqID),
			logging.F("method", c.Method()),
			logging.F("path", c.Path()),
			logging.F("status", status),
			logging.F("latency_ms", time.Since(start).Milliseconds()),
		)
		return err
	}
}
