package main

import (
	"context"
	"errors"
	"io"

	"buildchat/internal/config"
	"buildchat/internal/logging"
	"buildchat/internal/opencode"
	"buildchat/internal/session"
	"buildchat/internal/store"
)

// chatEnv is everything a chat-facing command needs, wired from config.
type chatEnv struct {
	prefs      *store.BboltPreferenceStore
	controller *session.Controller
}

// logSetup describes where a command's structured logs go.
type logSetup struct {
	level  string
	pretty bool
	output io.Writer
}

func (l logSetup) logger() logging.Logger {
	return logging.New(logging.Config{Level: l.level, Pretty: l.pretty, Output: l.output})
}

func openChatEnv(cfg config.Config, directory string, logs logSetup, observer session.Observer) (*chatEnv, error) {
	logger := logs.logger()
	client, err := opencode.NewClient(opencode.Config{
		BaseURL:  cfg.ServerBaseURL(),
		Username: cfg.Server.Username,
		Token:    cfg.Server.Token,
		Timeout:  cfg.RequestTimeout(),
		Logger:   logger.With(logging.F("component", "api")),
	})
	if err != nil {
		return nil, err
	}
	var streamLogger logging.Logger
	if cfg.StreamDebugEnabled() {
		debugLogs := logs
		debugLogs.level = "debug"
		streamLogger = debugLogs.logger()
	}
	dialer := opencode.NewDialer(client, opencode.StreamConfig{
		Path:          cfg.StreamPath(),
		Enhance:       cfg.StreamEnhance(),
		MaxReconnects: cfg.MaxReconnects(),
		Backoff:       cfg.ReconnectBackoff(),
		MaxBackoff:    cfg.MaxBackoff(),
		Logger:        streamLogger,
	})

	prefs, err := openPreferences()
	if err != nil {
		return nil, err
	}

	controller, err := session.New(session.Deps{
		API:      client,
		Streams:  session.DialerStreams(dialer),
		Prefs:    prefs,
		Observer: observer,
		Logger:   logger,
	}, session.Options{
		Directory:      directory,
		PreferredModel: cfg.PreferredModel(),
		DefaultAgent:   cfg.DefaultAgent(),
		PersonalRules:  cfg.PersonalRules(),
		AbortTimeout:   cfg.AbortTimeout(),
	})
	if err != nil {
		_ = prefs.Close()
		return nil, err
	}
	return &chatEnv{prefs: prefs, controller: controller}, nil
}

// rememberProject records directory as the project to open by default.
func (e *chatEnv) rememberProject(ctx context.Context, directory string) error {
	if directory == "" {
		return nil
	}
	_, err := e.prefs.Update(ctx, func(p *store.Preferences) error {
		p.LastProject = directory
		return nil
	})
	return err
}

func (e *chatEnv) Close() error {
	if e == nil {
		return nil
	}
	var errs []error
	if e.controller != nil {
		e.controller.Close()
	}
	if e.prefs != nil {
		errs = append(errs, e.prefs.Close())
	}
	return errors.Join(errs...)
}
