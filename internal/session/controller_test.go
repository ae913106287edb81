package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buildchat/internal/opencode"
	"buildchat/internal/render"
	"buildchat/internal/store"
	"buildchat/internal/transcript"
	"buildchat/internal/types"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type recorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *recorder) SessionUpdated(u Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recorder) resets() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, u := range r.updates {
		if u.Reset {
			n++
		}
	}
	return n
}

type harness struct {
	api      *fakeAPI
	streams  *fakeStreams
	prefs    *store.MemoryPreferenceStore
	observer *recorder
	c        *Controller
}

func newHarness(t *testing.T, directory string) *harness {
	t.Helper()
	h := &harness{
		api:      newFakeAPI(),
		streams:  &fakeStreams{},
		prefs:    store.NewMemoryPreferenceStore(nil),
		observer: &recorder{},
	}
	c, err := New(Deps{API: h.api, Streams: h.streams, Prefs: h.prefs, Observer: h.observer}, Options{
		Directory:      directory,
		PreferredModel: "anthropic/claude-sonnet",
		DefaultAgent:   "build",
		AbortTimeout:   time.Second,
	})
	require.NoError(t, err)
	h.c = c
	return h
}

func (h *harness) waitMode(t *testing.T, mode InputMode) {
	t.Helper()
	require.Eventually(t, func() bool { return h.c.Snapshot().InputMode() == mode }, waitFor, tick)
}

func kinds(fragments []render.Fragment) []render.FragmentKind {
	out := make([]render.FragmentKind, 0, len(fragments))
	for _, frag := range fragments {
		out = append(out, frag.Kind)
	}
	return out
}

func TestSendValidatesBeforeNetwork(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()

	require.ErrorIs(t, h.c.Send(ctx, Draft{Text: "  "}), ErrEmptyMessage)
	require.ErrorIs(t, h.c.Send(ctx, Draft{Text: "make pong"}), ErrNoProject)
	assert.Empty(t, h.api.sent)
	assert.Zero(t, h.api.created)
	assert.Zero(t, h.streams.count())
	assert.Empty(t, h.c.Fragments())
	assert.Equal(t, InputReady, h.c.Snapshot().InputMode())

	h.c.SetDirectory("/tmp/game")
	require.NoError(t, h.c.Send(ctx, Draft{Attachments: []transcript.Attachment{{Mime: "image/png", Filename: "a.png", URL: "data:,"}}}))
	req := h.api.lastSent()
	require.Len(t, req.Parts, 1)
	assert.Equal(t, types.PartTypeFile, req.Parts[0].Type)
}

func TestSendStreamsReplyAndEndsTurn(t *testing.T) {
	h := newHarness(t, "/tmp/game")
	ctx := context.Background()
	_, err := h.prefs.Update(ctx, func(p *store.Preferences) error {
		p.PersonalRules = "Use pixel art."
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, h.c.Send(ctx, Draft{Text: "make snake"}))
	snap := h.c.Snapshot()
	assert.Equal(t, "ses_new", snap.SessionID)
	assert.Equal(t, InputStreaming, snap.InputMode())
	assert.Equal(t, 1, h.api.created)

	req := h.api.lastSent()
	require.Len(t, req.Parts, 1)
	assert.True(t, strings.HasPrefix(req.Parts[0].Text, "Personal rules"))
	assert.Contains(t, req.Parts[0].Text, "Use pixel art.")
	assert.True(t, strings.HasSuffix(req.Parts[0].Text, "make snake"))
	assert.Equal(t, &types.ModelRef{ProviderID: "anthropic", ModelID: "claude-sonnet"}, req.Model)
	assert.Equal(t, "build", req.Agent)
	assert.Equal(t, []render.FragmentKind{render.FragmentText, render.FragmentPlaceholder}, kinds(h.c.Fragments()))

	stream := h.streams.last()
	require.NotNil(t, stream)
	stream.events <- partEvent(types.Part{ID: "p1", SessionID: "ses_new", MessageID: "msg_a1", Type: "text", Text: "Here is snake"})
	stream.events <- infoEvent(types.MessageInfo{
		ID: "msg_a1", SessionID: "ses_new", Role: "assistant", Finish: "stop",
		ProviderID: "anthropic", ModelID: "claude-sonnet",
	})
	h.waitMode(t, InputReady)

	assert.Equal(t, "Here is snake", h.c.LastReply())
	assert.True(t, stream.closed())
	assert.Equal(t, []render.FragmentKind{render.FragmentText, render.FragmentText, render.FragmentFooter}, kinds(h.c.Fragments()))

	prefs, err := h.prefs.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ses_new", prefs.LastSessionFor("/tmp/game"))

	require.NoError(t, h.c.Send(ctx, Draft{Text: "faster"}))
	assert.Equal(t, "faster", h.api.lastSent().Parts[0].Text, "the preamble goes on the first message only")
	assert.Equal(t, 1, h.api.created)
	assert.Equal(t, 2, h.streams.count())
}

func TestSendWhileStreamingIsRejected(t *testing.T) {
	h := newHarness(t, "/tmp/game")
	ctx := context.Background()
	require.NoError(t, h.c.Send(ctx, Draft{Text: "one"}))
	require.ErrorIs(t, h.c.Send(ctx, Draft{Text: "two"}), ErrStreamActive)
	assert.Len(t, h.api.sent, 1)
}

func TestSynchronousReplyCompletesTurn(t *testing.T) {
	h := newHarness(t, "/tmp/game")
	h.api.sendReply = &types.WireMessage{
		Info:  types.MessageInfo{ID: "msg_a1", SessionID: "ses_new", Role: "assistant", Finish: "stop"},
		Parts: []types.Part{{ID: "p1", Type: "text", Text: "done synchronously"}},
	}

	require.NoError(t, h.c.Send(context.Background(), Draft{Text: "hi"}))
	assert.Equal(t, InputReady, h.c.Snapshot().InputMode())
	assert.Equal(t, "done synchronously", h.c.LastReply())
	assert.True(t, h.streams.last().closed())
}

func countKind(fragments []render.Fragment, kind render.FragmentKind) int {
	n := 0
	for _, frag := range fragments {
		if frag.Kind == kind {
			n++
		}
	}
	return n
}

func TestSynchronousReplyKeepsStreamedSubagentSingle(t *testing.T) {
	h := newHarness(t, "/tmp/game")
	task := func(status string) types.Part {
		return types.Part{ID: "prt_task", SessionID: "ses_new", MessageID: "msg_a1", Type: "tool", Tool: "task", CallID: "call_1",
			State: &types.ToolState{Status: status, Input: map[string]any{"description": "draw sprites"}, Output: "Using write tool"}}
	}
	text := types.Part{ID: "prt_text", SessionID: "ses_new", MessageID: "msg_a1", Type: "text", Text: "Sprites are ready."}
	h.api.sendHook = func() {
		stream := h.streams.last()
		for _, status := range []string{"pending", "running", "completed"} {
			stream.events <- partEvent(task(status))
		}
		stream.events <- partEvent(text)
		require.Eventually(t, func() bool { return h.c.LastReply() == "Sprites are ready." }, waitFor, tick)
	}
	h.api.sendReply = &types.WireMessage{
		Info:  types.MessageInfo{ID: "msg_a1", SessionID: "ses_new", Role: "assistant", Finish: "stop"},
		Parts: []types.Part{task("completed"), text},
	}

	require.NoError(t, h.c.Send(context.Background(), Draft{Text: "add sprites"}))
	assert.Equal(t, InputReady, h.c.Snapshot().InputMode())
	fragments := h.c.Fragments()
	assert.Equal(t, 1, countKind(fragments, render.FragmentSubagent), "kinds=%v", kinds(fragments))
	assert.Equal(t, 2, countKind(fragments, render.FragmentText))
}

func TestSwitchCompletesFlatHistoryFromStepFinish(t *testing.T) {
	h := newHarness(t, "/tmp/game")
	h.api.history["ses_flat"] = wireMessages(`[
		{"role":"user","parts":[{"type":"text","text":"make breakout"}]},
		{"role":"assistant","parts":[
			{"type":"step-start"},
			{"type":"tool","tool":"write","callID":"call_1","state":{"status":"completed","input":{"filePath":"index.html"}}},
			{"type":"step-finish","reason":"tool-calls"}
		]},
		{"role":"assistant","parts":[
			{"type":"step-start"},
			{"type":"text","text":"Breakout is ready."},
			{"type":"step-finish","reason":"stop"}
		]}
	]`)

	require.NoError(t, h.c.SwitchSession(context.Background(), "ses_flat"))
	assert.Equal(t, InputReady, h.c.Snapshot().InputMode())
	assert.Zero(t, h.streams.count())
	assert.Equal(t, "Breakout is ready.", h.c.LastReply())
	assert.Equal(t, 2, countKind(h.c.Fragments(), render.FragmentText))
	assert.Equal(t, 1, countKind(h.c.Fragments(), render.FragmentTool))
}

func TestSendTimeoutWithLiveStreamKeepsWaiting(t *testing.T) {
	h := newHarness(t, "/tmp/game")
	h.api.sendErr = &opencode.RequestError{Method: http.MethodPost, Path: "/session/ses_new/message", StatusCode: http.StatusGatewayTimeout}

	require.NoError(t, h.c.Send(context.Background(), Draft{Text: "slow build"}))
	assert.Equal(t, InputStreaming, h.c.Snapshot().InputMode())

	stream := h.streams.last()
	stream.events <- infoEvent(types.MessageInfo{ID: "msg_a1", SessionID: "ses_new", Role: "assistant", Finish: "stop"})
	h.waitMode(t, InputReady)
}

func TestSendTimeoutWithoutStreamFails(t *testing.T) {
	h := newHarness(t, "/tmp/game")
	h.streams.openErr = errors.New("connection refused")
	h.api.sendErr = &opencode.RequestError{Method: http.MethodPost, Path: "/session/ses_new/message", StatusCode: http.StatusGatewayTimeout}

	err := h.c.Send(context.Background(), Draft{Text: "slow build"})
	require.Error(t, err)
	assert.True(t, opencode.IsTimeout(err))
	assert.Equal(t, InputReady, h.c.Snapshot().InputMode())
}

func TestSendFailsWhenSessionCannotBeCreated(t *testing.T) {
	h := newHarness(t, "/tmp/game")
	h.api.createErr = errors.New("disk full")

	require.Error(t, h.c.Send(context.Background(), Draft{Text: "hi"}))
	assert.Equal(t, InputReady, h.c.Snapshot().InputMode())
	assert.Empty(t, h.api.sent)
	assert.Zero(t, h.streams.count())
}

func TestAbortIsIdempotentAndFailOpen(t *testing.T) {
	h := newHarness(t, "/tmp/game")
	ctx := context.Background()

	require.NoError(t, h.c.Abort(ctx))
	assert.Empty(t, h.api.aborts)

	require.NoError(t, h.c.Send(ctx, Draft{Text: "build tetris"}))
	stream := h.streams.last()
	h.api.abortErr = errors.New("server unreachable")

	err := h.c.Abort(ctx)
	require.Error(t, err)
	assert.Equal(t, []string{"ses_new"}, h.api.aborts)
	snap := h.c.Snapshot()
	assert.False(t, snap.Streaming)
	assert.Equal(t, InputReady, snap.InputMode())
	assert.True(t, stream.closed())

	require.NoError(t, h.c.Abort(ctx))
	assert.Len(t, h.api.aborts, 1)

	stream.events <- partEvent(types.Part{ID: "late", SessionID: "ses_new", MessageID: "msg_a1", Type: "text", Text: "late"})
	require.Eventually(t, func() bool { return h.c.Stats().DiscardedEvents == 1 }, waitFor, tick)

	h.api.abortErr = nil
	require.NoError(t, h.c.Send(ctx, Draft{Text: "again"}))
}

func TestSwitchSessionIsolatesStaleEvents(t *testing.T) {
	h := newHarness(t, "/tmp/game")
	ctx := context.Background()
	h.api.history["ses_a"] = nil
	h.api.history["ses_b"] = wireMessages(`[
		{"info":{"id":"msg_u1","role":"user","sessionID":"ses_b"},"parts":[{"id":"pu","type":"text","text":"hello"}]},
		{"info":{"id":"msg_b1","role":"assistant","sessionID":"ses_b","finish":"stop","providerID":"anthropic","modelID":"claude-sonnet"},"parts":[{"id":"pb","type":"text","text":"hi there"}]}
	]`)

	require.NoError(t, h.c.SwitchSession(ctx, "ses_a"))
	require.NoError(t, h.c.Send(ctx, Draft{Text: "add enemies"}))
	streamA := h.streams.last()
	streamA.events <- partEvent(types.Part{
		ID: "t1", SessionID: "ses_a", MessageID: "msg_a1", Type: "tool", Tool: "bash", CallID: "t1",
		State: &types.ToolState{Status: "running"},
	})
	require.Eventually(t, func() bool {
		for _, frag := range h.c.Fragments() {
			if frag.Kind == render.FragmentTool {
				return true
			}
		}
		return false
	}, waitFor, tick)

	var closedBeforeLoad bool
	h.api.listHook = func(sessionID string) {
		if sessionID == "ses_b" {
			closedBeforeLoad = streamA.closed()
		}
	}
	require.NoError(t, h.c.SwitchSession(ctx, "ses_b"))
	assert.True(t, closedBeforeLoad)

	streamA.events <- partEvent(types.Part{
		ID: "t1", SessionID: "ses_a", MessageID: "msg_a1", Type: "tool", Tool: "bash", CallID: "t1",
		State: &types.ToolState{Status: "completed", Output: "ok"},
	})
	require.Eventually(t, func() bool { return h.c.Stats().DiscardedEvents == 1 }, waitFor, tick)

	fragments := h.c.Fragments()
	assert.Equal(t, []render.FragmentKind{render.FragmentText, render.FragmentText, render.FragmentFooter}, kinds(fragments))
	for _, frag := range fragments {
		assert.NotEqual(t, "msg_a1", frag.MessageID)
	}
	snap := h.c.Snapshot()
	assert.Equal(t, "ses_b", snap.SessionID)
	assert.Equal(t, InputReady, snap.InputMode())
	assert.Equal(t, 1, h.streams.count(), "a finished session needs no stream")
	assert.Equal(t, 2, h.observer.resets())
}

func TestSwitchRestoresPendingQuestionAndResumesStream(t *testing.T) {
	h := newHarness(t, "/tmp/game")
	ctx := context.Background()
	h.api.catalog = types.ProviderCatalog{
		Models: []types.ModelRef{
			{ProviderID: "anthropic", ModelID: "claude-sonnet"},
			{ProviderID: "openai", ModelID: "gpt-5"},
		},
		Default: types.ModelRef{ProviderID: "anthropic", ModelID: "claude-sonnet"},
	}
	h.api.history["ses_q"] = wireMessages(`[
		{"info":{"id":"msg_u1","role":"user","sessionID":"ses_q"},"parts":[{"id":"pu","type":"text","text":"make a platformer"}]},
		{"info":{"id":"msg_a1","role":"assistant","sessionID":"ses_q","providerID":"openai","modelID":"gpt-5","agent":"plan"},"parts":[
			{"id":"pt","type":"text","text":"A few questions first."},
			{"id":"pq","type":"tool","tool":"question","callID":"call_q","state":{"status":"running","input":{"questions":[
				{"header":"Style","question":"Which art style?","options":["pixel","vector"]},
				{"header":"Levels","question":"How many levels?"}
			]}}}
		]}
	]`)
	h.api.questions = []types.QuestionRequest{
		{ID: "que_other", SessionID: "ses_other"},
		{ID: "que_1", SessionID: "ses_q", Tool: &types.QuestionToolRef{MessageID: "msg_a1", CallID: "call_q"}},
	}

	require.NoError(t, h.c.SwitchSession(ctx, "ses_q"))
	snap := h.c.Snapshot()
	require.NotNil(t, snap.Pending)
	assert.Equal(t, "que_1", snap.Pending.RequestID)
	assert.Equal(t, InputQuestion, snap.InputMode())
	assert.Equal(t, types.ModelRef{ProviderID: "openai", ModelID: "gpt-5"}, snap.Model)
	assert.Equal(t, "plan", snap.Agent)
	assert.Equal(t, 1, h.streams.count())

	fragments := h.c.Fragments()
	last := fragments[len(fragments)-1]
	assert.Equal(t, render.FragmentQuestion, last.Kind)
	assert.True(t, last.Interactive)

	requestID, specs, ok := h.c.PendingQuestion()
	require.True(t, ok)
	assert.Equal(t, "que_1", requestID)
	require.Len(t, specs, 2)
	assert.Equal(t, "Style", specs[0].Header)

	require.ErrorIs(t, h.c.ReplyQuestion(ctx, "que_nope", nil), ErrUnknownQuestion)
	require.ErrorIs(t, h.c.Send(ctx, Draft{Text: "skip"}), ErrStreamActive)

	require.NoError(t, h.c.ReplyQuestion(ctx, "", Answers{"Style": {"pixel"}}))
	assert.Equal(t, [][]string{{"pixel"}, {}}, h.api.replies["que_1"])
	snap = h.c.Snapshot()
	assert.Nil(t, snap.Pending)
	assert.Equal(t, InputStreaming, snap.InputMode())
	assert.Equal(t, 1, h.streams.count(), "the live stream carries the continuation")

	require.ErrorIs(t, h.c.ReplyQuestion(ctx, "que_1", nil), ErrNoPendingQuestion)
	_, _, ok = h.c.PendingQuestion()
	assert.False(t, ok)
}

func TestLiveQuestionRejectReopensStreamWhenClosed(t *testing.T) {
	h := newHarness(t, "/tmp/game")
	ctx := context.Background()
	require.NoError(t, h.c.Send(ctx, Draft{Text: "build"}))
	stream := h.streams.last()
	stream.events <- types.NewEvent(types.EventQuestionAsked, types.QuestionRequest{
		ID:        "que_live",
		SessionID: "ses_new",
		Questions: []types.QuestionSpec{{Header: "Go", Text: "Proceed?", Options: []types.QuestionOption{{Label: "yes"}}}},
		Tool:      &types.QuestionToolRef{MessageID: "msg_a1", CallID: "call_1"},
	})
	h.waitMode(t, InputQuestion)

	stream.events <- types.NewEvent(types.EventConnectionError, types.ConnectionErrorProperties{Error: "connection lost"})
	require.Eventually(t, func() bool { return !h.c.Snapshot().Streaming }, waitFor, tick)
	assert.Equal(t, InputQuestion, h.c.Snapshot().InputMode(), "the question outlives the connection")

	require.NoError(t, h.c.RejectQuestion(ctx, ""))
	assert.Equal(t, []string{"que_live"}, h.api.rejected)
	assert.Equal(t, 2, h.streams.count())
	assert.Equal(t, InputStreaming, h.c.Snapshot().InputMode())
}

func TestReplyWithoutPendingQuestion(t *testing.T) {
	h := newHarness(t, "/tmp/game")
	require.ErrorIs(t, h.c.ReplyQuestion(context.Background(), "", Answers{}), ErrNoPendingQuestion)
	require.ErrorIs(t, h.c.RejectQuestion(context.Background(), "que_1"), ErrNoPendingQuestion)
}

func TestSwitchKeepsPreferredModelWhenHistoryModelIsGone(t *testing.T) {
	h := newHarness(t, "/tmp/game")
	h.api.catalog = types.ProviderCatalog{
		Models:  []types.ModelRef{{ProviderID: "openai", ModelID: "gpt-5"}, {ProviderID: "anthropic", ModelID: "claude-sonnet"}},
		Default: types.ModelRef{ProviderID: "openai", ModelID: "gpt-5"},
	}
	h.api.history["ses_old"] = wireMessages(`[
		{"info":{"id":"msg_a1","role":"assistant","providerID":"retired","modelID":"old-model","finish":"stop"},"parts":[]}
	]`)

	require.NoError(t, h.c.SwitchSession(context.Background(), "ses_old"))
	snap := h.c.Snapshot()
	assert.Equal(t, types.ModelRef{ProviderID: "anthropic", ModelID: "claude-sonnet"}, snap.Model)
	assert.Equal(t, "build", snap.Agent)
}

func TestResolveModelPrecedence(t *testing.T) {
	sonnet := types.ModelRef{ProviderID: "anthropic", ModelID: "claude-sonnet"}
	gpt := types.ModelRef{ProviderID: "openai", ModelID: "gpt-5"}
	local := types.ModelRef{ProviderID: "ollama", ModelID: "llama"}
	gone := types.ModelRef{ProviderID: "retired", ModelID: "old"}
	catalog := types.ProviderCatalog{Models: []types.ModelRef{local, gpt, sonnet}, Default: gpt}
	noDefault := types.ProviderCatalog{Models: []types.ModelRef{local, sonnet}}

	cases := []struct {
		name      string
		recent    types.ModelRef
		current   types.ModelRef
		preferred types.ModelRef
		catalog   types.ProviderCatalog
		ok        bool
		want      types.ModelRef
	}{
		{"recent wins", sonnet, gpt, local, catalog, true, sonnet},
		{"keep current", gone, local, sonnet, catalog, true, local},
		{"preferred", gone, gone, sonnet, catalog, true, sonnet},
		{"server default", gone, types.ModelRef{}, gone, catalog, true, gpt},
		{"first available", gone, gone, gone, noDefault, true, local},
		{"nothing offered", gone, gone, gone, types.ProviderCatalog{}, true, types.ModelRef{}},
		{"catalog unavailable", types.ModelRef{}, gone, sonnet, types.ProviderCatalog{}, false, gone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, resolveModel(tc.recent, tc.current, tc.preferred, tc.catalog, tc.ok))
		})
	}
}

func TestPositionalAnswers(t *testing.T) {
	questions := []types.QuestionSpec{
		{Header: "Color", Text: "Pick a color"},
		{Text: "How big?"},
		{},
		{Header: "Unanswered"},
	}
	got := PositionalAnswers(questions, Answers{
		"Color":    {"red", " "},
		"How big?": {"large"},
		"2":        {"free text"},
	})
	assert.Equal(t, [][]string{{"red"}, {"large"}, {"free text"}, {}}, got)
	assert.Equal(t, [][]string{}, PositionalAnswers(nil, nil))
}

func TestResumeLastPrefersRememberedSession(t *testing.T) {
	h := newHarness(t, "/tmp/game")
	ctx := context.Background()
	h.api.sessions = []types.Session{{ID: "ses_newest"}, {ID: "ses_older"}}
	h.api.history["ses_newest"] = nil
	h.api.history["ses_older"] = nil

	ok, err := h.c.ResumeLast(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ses_newest", h.c.Snapshot().SessionID)

	require.NoError(t, h.prefs.Save(ctx, &store.Preferences{LastSession: map[string]string{"/tmp/game": "ses_older"}}))
	ok, err = h.c.ResumeLast(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ses_older", h.c.Snapshot().SessionID)
}

func TestNewSessionStartsEmpty(t *testing.T) {
	h := newHarness(t, "/tmp/game")
	ctx := context.Background()
	created, err := h.c.NewSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ses_new", created.ID)
	assert.Equal(t, "ses_new", h.c.Snapshot().SessionID)
	assert.Empty(t, h.c.Fragments())

	require.NoError(t, h.c.Send(ctx, Draft{Text: "hello"}))
	assert.Equal(t, 1, h.api.created, "an open session is reused")
	assert.Equal(t, []string{"ses_new"}, h.api.sentTo)
}
