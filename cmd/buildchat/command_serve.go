package main

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"buildchat/internal/logging"
	"buildchat/internal/proxy"
)

const proxyShutdownTimeout = 5 * time.Second

func newServeCommand(wiring commandWiring, opts *globalOptions) *cobra.Command {
	var listen, upstream string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the event-enhancing proxy in front of the agent server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(listen) == "" {
				listen = cfg.ProxyListen()
			}
			if strings.TrimSpace(upstream) == "" {
				upstream = cfg.ProxyUpstream()
			}
			logger := opts.logs(cfg, wiring.stderr).logger().With(logging.F("component", "proxy"))
			srv, err := proxy.New(proxy.Config{
				Upstream: upstream,
				Logger:   logger,
				Timeout:  cfg.RequestTimeout(),
			})
			if err != nil {
				return err
			}
			return serveUntilDone(cmd.Context(), srv, listen, logger)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "address to listen on (default from config)")
	cmd.Flags().StringVar(&upstream, "upstream", "", "agent server URL (default from config)")
	return cmd
}

func serveUntilDone(ctx context.Context, srv *proxy.Server, listen string, logger logging.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen(listen)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("proxy shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), proxyShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return <-errCh
}
