package app

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"buildchat/internal/session"
)

// Bridge forwards controller updates into a running program. Updates that
// arrive before a program is attached are dropped; the model loads the
// current state on start.
type Bridge struct {
	mu      sync.RWMutex
	program *tea.Program
}

func NewBridge() *Bridge {
	return &Bridge{}
}

func (b *Bridge) Attach(p *tea.Program) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.program = p
}

func (b *Bridge) Detach() {
	b.Attach(nil)
}

func (b *Bridge) SessionUpdated(update session.Update) {
	b.mu.RLock()
	p := b.program
	b.mu.RUnlock()
	if p == nil {
		return
	}
	p.Send(sessionUpdateMsg{update: update})
}

// Run shows the chat screen until the user quits or ctx is cancelled.
func Run(ctx context.Context, ctrl Controller, bridge *Bridge, opts Options) error {
	model := NewModel(ctx, ctrl, opts)
	p := tea.NewProgram(&model, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	if bridge != nil {
		bridge.Attach(p)
		defer bridge.Detach()
	}
	_, err := p.Run()
	return err
}
