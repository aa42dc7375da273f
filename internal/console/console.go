// Package console renders a live session: a bubbletea dashboard for terminals
// and a line writer for everything else.
package console

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"droneops-console/internal/channel"
	"droneops-console/internal/command"
	"droneops-console/internal/viewmodel"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// TUI drives the dashboard. Its callbacks may be called from any goroutine.
type TUI struct {
	program teaProgram
	run     func() error
	done    chan struct{}
	err     error
}

// NewTUI builds the dashboard program. Nothing is drawn until Start.
func NewTUI(ctx context.Context, ctl Controller) *TUI {
	p := tea.NewProgram(newModel(ctl, time.Now), tea.WithAltScreen(), tea.WithContext(ctx))
	return &TUI{
		program: p,
		run:     func() error { _, err := p.Run(); return err },
		done:    make(chan struct{}),
	}
}

// Start runs the program in the background.
func (t *TUI) Start() {
	go func() {
		t.err = t.run()
		close(t.done)
	}()
}

// Wait blocks until the user quits.
func (t *TUI) Wait() error {
	<-t.done
	if errors.Is(t.err, tea.ErrProgramKilled) {
		return nil
	}
	return t.err
}

// StateChanged implements viewmodel.Listener.
func (t *TUI) StateChanged(s viewmodel.State) { t.program.Send(stateMsg{s}) }

// ChannelChanged implements channel.StateListener.
func (t *TUI) ChannelChanged(s channel.State, err error) {
	t.program.Send(channelMsg{state: s, err: err})
}

// Notify implements command.Notifier.
func (t *TUI) Notify(n command.Notice) { t.program.Send(noticeMsg{n}) }

// Close quits the program and waits for cleanup.
func (t *TUI) Close() error {
	t.program.Send(tea.Quit())
	return t.Wait()
}
