package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"buildchat/internal/types"
)

type fakeAPI struct {
	mu sync.Mutex

	sessions  []types.Session
	history   map[string][]types.WireMessage
	questions []types.QuestionRequest
	catalog   types.ProviderCatalog

	catalogErr error
	createErr  error
	sendErr    error
	abortErr   error
	sendReply  *types.WireMessage
	// sendHook runs before SendMessage returns.
	sendHook func()
	// listHook runs when a session's history is fetched.
	listHook func(sessionID string)

	created  int
	sent     []types.SendMessageRequest
	sentTo   []string
	aborts   []string
	replies  map[string][][]string
	rejected []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{history: map[string][]types.WireMessage{}, replies: map[string][][]string{}}
}

func (f *fakeAPI) ListSessions(ctx context.Context, directory string) ([]types.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.Session(nil), f.sessions...), nil
}

func (f *fakeAPI) CreateSession(ctx context.Context, directory, title string) (*types.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created++
	return &types.Session{ID: "ses_new"}, nil
}

func (f *fakeAPI) ListMessages(ctx context.Context, directory, sessionID string) ([]types.WireMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listHook != nil {
		f.listHook(sessionID)
	}
	messages, ok := f.history[sessionID]
	if !ok {
		return nil, errors.New("session not found")
	}
	return messages, nil
}

func (f *fakeAPI) SendMessage(ctx context.Context, directory, sessionID string, req types.SendMessageRequest) (*types.WireMessage, error) {
	f.mu.Lock()
	f.sent = append(f.sent, req)
	f.sentTo = append(f.sentTo, sessionID)
	hook, reply, err := f.sendHook, f.sendReply, f.sendErr
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return reply, err
}

func (f *fakeAPI) AbortSession(ctx context.Context, directory, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborts = append(f.aborts, sessionID)
	return f.abortErr
}

func (f *fakeAPI) ListQuestions(ctx context.Context, directory string) ([]types.QuestionRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.QuestionRequest(nil), f.questions...), nil
}

func (f *fakeAPI) ReplyQuestion(ctx context.Context, directory, requestID string, answers [][]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[requestID] = answers
	return nil
}

func (f *fakeAPI) RejectQuestion(ctx context.Context, directory, requestID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejected = append(f.rejected, requestID)
	return nil
}

func (f *fakeAPI) Providers(ctx context.Context) (types.ProviderCatalog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.catalog, f.catalogErr
}

func (f *fakeAPI) lastSent() types.SendMessageRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

// fakeStream keeps its event channel open after Close, the way a reader
// that already pulled a frame off the wire would still hand it over.
type fakeStream struct {
	events chan types.Event
	done   chan struct{}
	once   sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{events: make(chan types.Event, 16), done: make(chan struct{})}
}

func (s *fakeStream) Events() <-chan types.Event { return s.events }
func (s *fakeStream) Done() <-chan struct{}      { return s.done }
func (s *fakeStream) Close()                     { s.once.Do(func() { close(s.done) }) }

func (s *fakeStream) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

type fakeStreams struct {
	mu      sync.Mutex
	opened  []*fakeStream
	openErr error
}

func (f *fakeStreams) Open(ctx context.Context, directory string) (Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	s := newFakeStream()
	f.opened = append(f.opened, s)
	return s, nil
}

func (f *fakeStreams) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.opened)
}

func (f *fakeStreams) last() *fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.opened) == 0 {
		return nil
	}
	return f.opened[len(f.opened)-1]
}

func partEvent(part types.Part) types.Event {
	return types.NewEvent(types.EventMessagePartUpdated, types.PartUpdatedProperties{Part: part})
}

func infoEvent(info types.MessageInfo) types.Event {
	return types.NewEvent(types.EventMessageUpdated, types.MessageUpdatedProperties{Info: info})
}

func wireMessages(raw string) []types.WireMessage {
	var out []types.WireMessage
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		panic(err)
	}
	return out
}
