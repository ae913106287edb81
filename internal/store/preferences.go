package store

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// Preferences are the settings the chat client remembers between runs.
type Preferences struct {
	PersonalRules string            `json:"personal_rules,omitempty"`
	Model         string            `json:"model,omitempty"`
	Agent         string            `json:"agent,omitempty"`
	LastSession   map[string]string `json:"last_session,omitempty"`
	// LastProject is the project directory selected most recently.
	LastProject string `json:"last_project,omitempty"`
}

// LastSessionFor returns the session last opened in directory.
func (p *Preferences) LastSessionFor(directory string) string {
	if p == nil || p.LastSession == nil {
		return ""
	}
	return p.LastSession[strings.TrimSpace(directory)]
}

// RememberSession records sessionID as the last session for directory. An
// empty sessionID forgets it.
func (p *Preferences) RememberSession(directory, sessionID string) {
	directory = strings.TrimSpace(directory)
	if p == nil || directory == "" {
		return
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		delete(p.LastSession, directory)
		return
	}
	if p.LastSession == nil {
		p.LastSession = map[string]string{}
	}
	p.LastSession[directory] = sessionID
}

func (p *Preferences) clone() *Preferences {
	if p == nil {
		return &Preferences{}
	}
	out := *p
	if p.LastSession != nil {
		out.LastSession = make(map[string]string, len(p.LastSession))
		for k, v := range p.LastSession {
			out.LastSession[k] = v
		}
	}
	return &out
}

type PreferenceStore interface {
	Load(ctx context.Context) (*Preferences, error)
	Save(ctx context.Context, prefs *Preferences) error
	// Update loads, applies fn and saves atomically. The saved value is
	// returned.
	Update(ctx context.Context, fn func(*Preferences) error) (*Preferences, error)
}

var errPreferencesRequired = errors.New("preferences are required")

// MemoryPreferenceStore keeps preferences in process.
type MemoryPreferenceStore struct {
	mu    sync.Mutex
	prefs *Preferences
}

func NewMemoryPreferenceStore(initial *Preferences) *MemoryPreferenceStore {
	return &MemoryPreferenceStore{prefs: initial.clone()}
}

func (s *MemoryPreferenceStore) Load(ctx context.Context) (*Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs.clone(), nil
}

func (s *MemoryPreferenceStore) Save(ctx context.Context, prefs *Preferences) error {
	if prefs == nil {
		return errPreferencesRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs = prefs.clone()
	return nil
}

func (s *MemoryPreferenceStore) Update(ctx context.Context, fn func(*Preferences) error) (*Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.prefs.clone()
	if fn != nil {
		if err := fn(next); err != nil {
			return nil, err
		}
	}
	s.prefs = next
	return next.clone(), nil
}
