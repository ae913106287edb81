package session

import (
	"context"
	"fmt"
	"strings"

	"buildchat/internal/logging"
	"buildchat/internal/transcript"
	"buildchat/internal/types"
)

// SwitchSession makes sessionID the open session. The previous stream is
// closed before the history is fetched, so nothing it still delivers can
// reach the new transcript.
func (c *Controller) SwitchSession(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	turn, directory, err := c.detach()
	if err != nil {
		return err
	}

	messages, err := c.api.ListMessages(ctx, directory, sessionID)
	if err != nil {
		return fmt.Errorf("load session %s: %w", sessionID, err)
	}
	tr := transcript.New(sessionID)
	rec := transcript.NewReconciler(tr, c.logger)
	rec.Replay(messages)

	questions, err := c.api.ListQuestions(ctx, directory)
	if err != nil {
		c.logger.Warn("pending questions unavailable", logging.F("session_id", sessionID), logging.F("err", err))
	}
	for _, req := range questions {
		if req.SessionID != "" && req.SessionID != sessionID {
			continue
		}
		if rec.RestorePending(req) {
			break
		}
	}

	catalog, err := c.api.Providers(ctx)
	catalogOK := err == nil
	if err != nil {
		c.logger.Warn("model catalog unavailable", logging.F("err", err))
	}
	recentModel, recentAgent := recentSelection(messages)
	preferred := c.preferredModel(ctx)

	resume := c.install(turn, sessionID, tr, rec, func(s *AppSession) {
		s.Model = resolveModel(recentModel, s.Model, preferred, catalog, catalogOK)
		if recentAgent != "" {
			s.Agent = recentAgent
		} else if s.Agent == "" {
			s.Agent = c.opts.DefaultAgent
		}
	})
	if !resume.ok {
		return nil
	}
	c.rememberSession(ctx, directory, sessionID)
	if resume.stream {
		if err := c.openStream(ctx, turn, directory); err != nil {
			c.stopResumed(turn, err)
			return fmt.Errorf("resume stream: %w", err)
		}
	}
	return nil
}

// NewSession creates an empty session and opens it.
func (c *Controller) NewSession(ctx context.Context) (*types.Session, error) {
	turn, directory, err := c.detach()
	if err != nil {
		return nil, err
	}
	created, err := c.api.CreateSession(ctx, directory, "")
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	tr := transcript.New(created.ID)
	if resume := c.install(turn, created.ID, tr, transcript.NewReconciler(tr, c.logger), nil); resume.ok {
		c.rememberSession(ctx, directory, created.ID)
	}
	return created, nil
}

// ResumeLast opens the session last used in the project, or the newest one.
// It reports false when the project has no sessions.
func (c *Controller) ResumeLast(ctx context.Context) (bool, error) {
	directory := c.Snapshot().Directory
	if directory == "" {
		return false, ErrNoProject
	}
	sessionID := ""
	if prefs, err := c.prefs.Load(ctx); err == nil {
		sessionID = prefs.LastSessionFor(directory)
	}
	if sessionID != "" {
		err := c.SwitchSession(ctx, sessionID)
		if err == nil {
			return true, nil
		}
		c.logger.Warn("last session unavailable", logging.F("session_id", sessionID), logging.F("err", err))
	}
	sessions, err := c.api.ListSessions(ctx, directory)
	if err != nil {
		return false, err
	}
	if len(sessions) == 0 {
		return false, nil
	}
	return true, c.SwitchSession(ctx, sessions[0].ID)
}

// detach tears down the open session's stream and claims a new turn.
func (c *Controller) detach() (uint64, string, error) {
	defer c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.Directory == "" {
		return 0, "", ErrNoProject
	}
	c.turn++
	wasStreaming := c.session.Streaming
	c.closeStreamLocked()
	if wasStreaming {
		changes := c.rec.Interrupt()
		c.session.Streaming = false
		c.publishLocked(changes, false)
	}
	return c.turn, c.session.Directory, nil
}

type resumeState struct {
	ok     bool
	stream bool
}

func (c *Controller) install(turn uint64, sessionID string, tr *transcript.Transcript, rec *transcript.Reconciler, selection func(*AppSession)) resumeState {
	defer c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.turn != turn {
		return resumeState{}
	}
	c.closeStreamLocked()
	c.tr = tr
	c.rec = rec
	c.session.SessionID = sessionID
	c.session.Pending = rec.Pending()
	if selection != nil {
		selection(&c.session)
	}
	last := tr.Last()
	incomplete := rec.Current() >= 0 && last != nil && last.IsAssistant() && last.Streaming()
	c.session.Streaming = incomplete || c.session.Pending != nil
	c.publishLocked(nil, true)
	return resumeState{ok: true, stream: c.session.Streaming}
}

func (c *Controller) stopResumed(turn uint64, err error) {
	defer c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.turn != turn {
		return
	}
	c.logger.Warn("stream resume failed", logging.F("err", err))
	c.session.Streaming = false
	c.publishLocked([]transcript.Change{{Kind: transcript.ChangeError, Message: -1, Part: -1, Notice: err.Error(), Err: err}}, false)
}

func (c *Controller) preferredModel(ctx context.Context) types.ModelRef {
	if prefs, err := c.prefs.Load(ctx); err == nil {
		if model := types.ParseModelRef(prefs.Model); !model.IsZero() {
			return model
		}
	}
	return types.ParseModelRef(c.opts.PreferredModel)
}

// recentSelection scans newest first for the model and agent last used.
func recentSelection(messages []types.WireMessage) (types.ModelRef, string) {
	var model types.ModelRef
	var agent string
	for i := len(messages) - 1; i >= 0; i-- {
		info := messages[i].Info
		if model.IsZero() {
			model = info.ModelRef()
		}
		if agent == "" {
			agent = info.AgentName()
		}
		if !model.IsZero() && agent != "" {
			break
		}
	}
	return model, agent
}

// resolveModel picks the active model: the session's own if still offered,
// then the current selection, the preferred default, the server default and
// finally the first model available.
func resolveModel(recent, current, preferred types.ModelRef, catalog types.ProviderCatalog, catalogOK bool) types.ModelRef {
	if !catalogOK {
		for _, candidate := range []types.ModelRef{recent, current, preferred} {
			if !candidate.IsZero() {
				return candidate
			}
		}
		return types.ModelRef{}
	}
	for _, candidate := range []types.ModelRef{recent, current, preferred} {
		if catalog.Contains(candidate) {
			return candidate
		}
	}
	if !catalog.Default.IsZero() {
		return catalog.Default
	}
	if len(catalog.Models) > 0 {
		return catalog.Models[0]
	}
	return types.ModelRef{}
}
