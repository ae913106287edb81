package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"buildchat/internal/logging"
	"buildchat/internal/render"
	"buildchat/internal/store"
	"buildchat/internal/transcript"
	"buildchat/internal/types"
)

var (
	ErrEmptyMessage      = errors.New("message is empty")
	ErrNoProject         = errors.New("no project selected")
	ErrStreamActive      = errors.New("a response is still streaming; abort it first")
	ErrNoPendingQuestion = errors.New("no question is pending")
	ErrUnknownQuestion   = errors.New("question is not pending")
)

const defaultAbortTimeout = 10 * time.Second

// API is the subset of the agent server the controller talks to.
type API interface {
	ListSessions(ctx context.Context, directory string) ([]types.Session, error)
	CreateSession(ctx context.Context, directory, title string) (*types.Session, error)
	ListMessages(ctx context.Context, directory, sessionID string) ([]types.WireMessage, error)
	SendMessage(ctx context.Context, directory, sessionID string, req types.SendMessageRequest) (*types.WireMessage, error)
	AbortSession(ctx context.Context, directory, sessionID string) error
	ListQuestions(ctx context.Context, directory string) ([]types.QuestionRequest, error)
	ReplyQuestion(ctx context.Context, directory, requestID string, answers [][]string) error
	RejectQuestion(ctx context.Context, directory, requestID string) error
	Providers(ctx context.Context) (types.ProviderCatalog, error)
}

// Stream is one open event connection.
type Stream interface {
	Events() <-chan types.Event
	Done() <-chan struct{}
	Close()
}

type StreamOpener interface {
	Open(ctx context.Context, directory string) (Stream, error)
}

// Update is published after every state change. Fragments are the current
// projection of the transcript; Reset is set when the transcript was
// replaced rather than modified.
type Update struct {
	Session   AppSession
	Fragments []render.Fragment
	Changes   []transcript.Change
	Reset     bool
}

// Observer receives updates in order. Implementations must not call
// mutating controller methods synchronously.
type Observer interface {
	SessionUpdated(Update)
}

type ObserverFunc func(Update)

func (f ObserverFunc) SessionUpdated(u Update) {
	f(u)
}

type Deps struct {
	API      API
	Streams  StreamOpener
	Prefs    store.PreferenceStore
	Observer Observer
	Logger   logging.Logger
}

type Options struct {
	Directory      string
	PreferredModel string
	DefaultAgent   string
	PersonalRules  string
	AbortTimeout   time.Duration
}

type Stats struct {
	Epoch           uint64
	DiscardedEvents int
}

// Controller owns the selected session's transcript and the stream feeding
// it. All transcript mutation happens under mu.
type Controller struct {
	api      API
	streams  StreamOpener
	prefs    store.PreferenceStore
	observer Observer
	logger   logging.Logger
	opts     Options

	mu      sync.Mutex
	session AppSession
	tr      *transcript.Transcript
	rec     *transcript.Reconciler
	conn    Stream
	// epoch identifies the live connection; turn identifies the operation
	// allowed to mutate state after its network calls return.
	epoch  uint64
	turn   uint64
	stats  Stats
	outbox []Update

	flushMu sync.Mutex
}

func New(deps Deps, opts Options) (*Controller, error) {
	if deps.API == nil {
		return nil, errors.New("api is required")
	}
	if deps.Streams == nil {
		return nil, errors.New("stream opener is required")
	}
	if deps.Prefs == nil {
		deps.Prefs = store.NewMemoryPreferenceStore(nil)
	}
	if deps.Observer == nil {
		deps.Observer = ObserverFunc(func(Update) {})
	}
	if opts.AbortTimeout <= 0 {
		opts.AbortTimeout = defaultAbortTimeout
	}
	opts.DefaultAgent = strings.TrimSpace(opts.DefaultAgent)
	logger := logging.OrNop(deps.Logger).With(logging.F("component", "session"))
	c := &Controller{
		api:      deps.API,
		streams:  deps.Streams,
		prefs:    deps.Prefs,
		observer: deps.Observer,
		logger:   logger,
		opts:     opts,
		session: AppSession{
			Directory: strings.TrimSpace(opts.Directory),
			Agent:     opts.DefaultAgent,
			Model:     types.ParseModelRef(opts.PreferredModel),
		},
	}
	c.resetLocked("")
	return c, nil
}

// Snapshot returns a copy of the current selection.
func (c *Controller) Snapshot() AppSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.clone()
}

func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := c.stats
	stats.Epoch = c.epoch
	return stats
}

// Fragments projects the current transcript.
func (c *Controller) Fragments() []render.Fragment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projectLocked()
}

// LastReply returns the text of the newest assistant message.
func (c *Controller) LastReply() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tr.LastAssistantText()
}

// Close drops the live stream. Late results of in-flight operations are
// discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turn++
	c.closeStreamLocked()
	c.session.Streaming = false
}

// SetDirectory selects a project. The open session and its stream are
// dropped.
func (c *Controller) SetDirectory(directory string) {
	defer c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turn++
	c.closeStreamLocked()
	c.session.Directory = strings.TrimSpace(directory)
	c.session.SessionID = ""
	c.resetLocked("")
	c.publishLocked(nil, true)
}

// SetModel changes the model used for the next message and remembers it.
func (c *Controller) SetModel(ctx context.Context, model types.ModelRef) error {
	func() {
		defer c.flush()
		c.mu.Lock()
		defer c.mu.Unlock()
		c.session.Model = model
		c.publishLocked(nil, false)
	}()
	_, err := c.prefs.Update(ctx, func(p *store.Preferences) error {
		p.Model = model.String()
		return nil
	})
	return err
}

func (c *Controller) SetAgent(ctx context.Context, agent string) error {
	agent = strings.TrimSpace(agent)
	func() {
		defer c.flush()
		c.mu.Lock()
		defer c.mu.Unlock()
		c.session.Agent = agent
		c.publishLocked(nil, false)
	}()
	_, err := c.prefs.Update(ctx, func(p *store.Preferences) error {
		p.Agent = agent
		return nil
	})
	return err
}

// Sessions lists the project's sessions, newest first.
func (c *Controller) Sessions(ctx context.Context) ([]types.Session, error) {
	directory := c.Snapshot().Directory
	if directory == "" {
		return nil, ErrNoProject
	}
	return c.api.ListSessions(ctx, directory)
}

func (c *Controller) resetLocked(sessionID string) {
	c.tr = transcript.New(sessionID)
	c.rec = transcript.NewReconciler(c.tr, c.logger)
	c.session.Pending = nil
	c.session.Streaming = false
}

func (c *Controller) projectLocked() []render.Fragment {
	opts := render.Options{Streaming: c.session.Streaming}
	if c.session.Pending != nil {
		opts.PendingQuestion = c.session.Pending.RequestID
	}
	return render.Project(c.tr, opts)
}

func (c *Controller) publishLocked(changes []transcript.Change, reset bool) {
	c.outbox = append(c.outbox, Update{
		Session:   c.session.clone(),
		Fragments: c.projectLocked(),
		Changes:   changes,
		Reset:     reset,
	})
}

// flush delivers queued updates in the order they were published. It must
// be called without mu held.
func (c *Controller) flush() {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()
	for {
		c.mu.Lock()
		if len(c.outbox) == 0 {
			c.mu.Unlock()
			return
		}
		update := c.outbox[0]
		c.outbox = c.outbox[1:]
		c.mu.Unlock()
		c.observer.SessionUpdated(update)
	}
}

func (c *Controller) personalRules(ctx context.Context) string {
	prefs, err := c.prefs.Load(ctx)
	if err != nil {
		c.logger.Warn("preferences unavailable", logging.F("err", err))
	} else if rules := strings.TrimSpace(prefs.PersonalRules); rules != "" {
		return rules
	}
	return strings.TrimSpace(c.opts.PersonalRules)
}

func (c *Controller) rememberSession(ctx context.Context, directory, sessionID string) {
	if _, err := c.prefs.Update(ctx, func(p *store.Preferences) error {
		p.RememberSession(directory, sessionID)
		return nil
	}); err != nil {
		c.logger.Warn("remember session failed", logging.F("session_id", sessionID), logging.F("err", err))
	}
}
