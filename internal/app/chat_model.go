package app

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"buildchat/internal/render"
	"buildchat/internal/session"
	"buildchat/internal/types"
)

const (
	minViewportWidth  = 20
	minContentHeight  = 4
	inputHeight       = 3
	headerHeight      = 1
	statusLineHeight  = 1
	emptyTranscript   = "No messages yet. Type below and press enter."
	streamingHintText = "agent is working · ctrl+x to abort"
)

// Controller is the slice of the session controller the chat view drives.
type Controller interface {
	Snapshot() session.AppSession
	Fragments() []render.Fragment
	LastReply() string
	PendingQuestion() (string, []types.QuestionSpec, bool)
	Send(ctx context.Context, draft session.Draft) error
	Abort(ctx context.Context) error
	ReplyQuestion(ctx context.Context, requestID string, answers session.Answers) error
	RejectQuestion(ctx context.Context, requestID string) error
	NewSession(ctx context.Context) (*types.Session, error)
	ResumeLast(ctx context.Context) (bool, error)
}

type Options struct {
	// Resume opens the last used session on start.
	Resume bool
	Dark   bool
}

type statusLevel int

const (
	statusInfo statusLevel = iota
	statusWarning
	statusError
)

// Model is the bubbletea model of the chat screen.
type Model struct {
	ctx     context.Context
	ctrl    Controller
	opts    Options
	painter render.Painter

	viewport viewport.Model
	input    textarea.Model
	loader   spinner.Model

	session   session.AppSession
	fragments []render.Fragment
	prompt    *questionPrompt

	width       int
	height      int
	follow      bool
	status      string
	statusLevel statusLevel
}

func NewModel(ctx context.Context, ctrl Controller, opts Options) Model {
	if ctx == nil {
		ctx = context.Background()
	}
	vp := viewport.New(minViewportWidth, minContentHeight)
	vp.SetContent(emptyTranscript)

	input := textarea.New()
	input.Placeholder = "Describe what to build…"
	input.ShowLineNumbers = false
	input.CharLimit = 0
	input.SetHeight(inputHeight)
	input.KeyMap.InsertNewline.SetKeys("alt+enter", "ctrl+j")
	input.Focus()

	loader := spinner.New()
	loader.Spinner = spinner.Line
	loader.Style = lipgloss.NewStyle()

	return Model{
		ctx:      ctx,
		ctrl:     ctrl,
		opts:     opts,
		painter:  render.Painter{Width: minViewportWidth, Dark: opts.Dark},
		viewport: vp,
		input:    input,
		loader:   loader,
		session:  ctrl.Snapshot(),
		follow:   true,
	}
}

func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textarea.Blink, m.loader.Tick, refreshCmd(m.ctrl)}
	if m.opts.Resume {
		cmds = append(cmds, resumeCmd(m.ctx, m.ctrl))
	}
	return tea.Batch(cmds...)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil
	case tea.KeyMsg:
		return m, m.handleKey(msg)
	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		m.follow = m.viewport.AtBottom()
		return m, cmd
	case sessionUpdateMsg:
		m.applyUpdate(msg.update)
		return m, nil
	case actionResultMsg:
		m.applyResult(msg)
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.loader, cmd = m.loader.Update(msg)
		return m, cmd
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) applyUpdate(update session.Update) {
	m.session = update.Session
	m.fragments = update.Fragments
	if update.Reset {
		m.follow = true
	}
	m.syncPrompt()
	m.renderTranscript()
}

func (m *Model) applyResult(msg actionResultMsg) {
	if msg.err == nil {
		if msg.info != "" {
			m.setStatus(statusInfo, msg.info)
		}
		return
	}
	switch {
	case errors.Is(msg.err, session.ErrStreamActive):
		m.setStatus(statusWarning, streamingHintText)
	case errors.Is(msg.err, session.ErrNoProject):
		m.setStatus(statusWarning, "no project selected · restart with --directory")
	case errors.Is(msg.err, context.Canceled):
		return
	default:
		m.setStatus(statusError, msg.action+" failed: "+msg.err.Error())
	}
	if msg.restore != "" && strings.TrimSpace(m.input.Value()) == "" {
		m.input.SetValue(msg.restore)
	}
}

// syncPrompt keeps the question prompt aligned with the open question.
func (m *Model) syncPrompt() {
	requestID, specs, ok := m.ctrl.PendingQuestion()
	if !ok {
		m.prompt = nil
		m.layout()
		return
	}
	if m.prompt != nil && m.prompt.requestID == requestID {
		return
	}
	m.prompt = newQuestionPrompt(requestID, specs)
	m.input.Reset()
	m.layout()
}

func (m *Model) renderTranscript() {
	if len(m.fragments) == 0 {
		m.viewport.SetContent(emptyTranscript)
		return
	}
	m.viewport.SetContent(m.painter.Paint(m.fragments))
	if m.follow {
		m.viewport.GotoBottom()
	}
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.layout()
	m.renderTranscript()
}

func (m *Model) layout() {
	width := max(minViewportWidth, m.width)
	promptLines := 0
	if m.prompt != nil {
		promptLines = lipgloss.Height(m.prompt.View(width))
	}
	contentHeight := m.height - headerHeight - statusLineHeight - inputHeight - promptLines - 1
	m.viewport.Width = width
	m.viewport.Height = max(minContentHeight, contentHeight)
	m.input.SetWidth(width)
	m.painter.Width = width
}

func (m *Model) setStatus(level statusLevel, text string) {
	m.statusLevel = level
	m.status = strings.TrimSpace(text)
}

// Snapshot is the selection the view last rendered.
func (m *Model) Snapshot() session.AppSession {
	return m.session
}
