package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// stateChangedMsg is sent when the sandbox manager reports a state change.
type stateChangedMsg struct{}

// syncDoneMsg is sent when a project sync finishes.
type syncDoneMsg struct {
	files   int
	loadErr error
	err     error
}

// actionDoneMsg is sent when a manual restart or reinstall returns.
type actionDoneMsg struct {
	action string
	err    error
}

// statusTickMsg triggers a project poll.
type statusTickMsg time.Time

// tickCmd returns a command that sends a tick every 2 seconds.
func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return statusTickMsg(t)
	})
}

// waitForState blocks until the manager signals a change on ch.
func waitForState(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return stateChangedMsg{}
	}
}
