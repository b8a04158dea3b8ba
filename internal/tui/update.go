package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

const syncingMessage = "Syncing project files..."

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = msg.Width - 6 // account for "  > /" prefix
		m.resizeTerminal()
		return m, nil

	case stateChangedMsg:
		m.refresh()
		return m, waitForState(m.changes)

	case statusTickMsg:
		if m.syncing {
			return m, tickCmd()
		}
		m.syncing = true
		return m, tea.Batch(m.syncCmd(), tickCmd())

	case syncDoneMsg:
		m.syncing = false
		if msg.loadErr != nil {
			m.message = fmt.Sprintf("Reading project: %v", msg.loadErr)
			m.isError = true
		}
		// Manager failures are already in the terminal log and the state.
		if msg.err != nil {
			m.logger.Debug("sync finished with error", "err", msg.err)
		} else if msg.loadErr == nil && m.message == syncingMessage {
			m.message = fmt.Sprintf("Synced %d files", msg.files)
		}
		return m, nil

	case actionDoneMsg:
		if msg.err != nil {
			m.message = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
			m.isError = true
		}
		return m, nil

	case tea.KeyMsg:
		if m.commanding {
			return m.handleCommandMode(msg)
		}
		return m.handleNormalMode(msg)
	}

	// Forward to input if in command mode
	if m.commanding {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	var cmd tea.Cmd
	m.terminal, cmd = m.terminal.Update(msg)
	return m, cmd
}

// refresh pulls the latest manager state into the model and the terminal pane.
func (m *model) refresh() {
	m.state = m.manager.State()
	follow := m.terminal.AtBottom()
	m.terminal.SetContent(strings.Join(m.state.TerminalOutput, "\n"))
	if follow {
		m.terminal.GotoBottom()
	}
}

func (m *model) resizeTerminal() {
	m.terminal.Width = m.width
	m.terminal.Height = terminalHeight(m.height, m.commanding)
}

// handleNormalMode handles keys when the command bar is closed.
func (m model) handleNormalMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Dismiss help modal
	if m.showHelp {
		if msg.String() == "?" || msg.String() == "esc" {
			m.showHelp = false
			return m, nil
		}
		// While help is showing, ignore other keys
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	}

	switch msg.String() {
	case "ctrl+c", "q":
		m.quitting = true
		return m, tea.Quit

	case "/":
		m.commanding = true
		m.resizeTerminal()
		m.input.Focus()
		m.input.SetValue("")
		return m, textinput.Blink

	case "r":
		return m.restart()

	case "i":
		return m.reinstall()

	case "s":
		return m.syncNow()

	case "d":
		m.showDiff = !m.showDiff
		return m, nil

	case "?":
		m.showHelp = !m.showHelp
		return m, nil
	}

	// Scrolling keys go to the terminal pane
	var cmd tea.Cmd
	m.terminal, cmd = m.terminal.Update(msg)
	return m, cmd
}

// handleCommandMode handles keys when the command input is active.
func (m model) handleCommandMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "esc":
		m.closeInput()
		m.input.SetValue("")
		return m, nil

	case "enter":
		m.closeInput()
		return m.processInput()

	case "tab":
		if matches := Complete(m.input.Value()); len(matches) == 1 {
			m.input.SetValue(matches[0])
			m.input.CursorEnd()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) closeInput() {
	m.commanding = false
	m.input.Blur()
	m.resizeTerminal()
}

func (m model) processInput() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.input.Value())
	m.input.SetValue("")

	if input == "" {
		return m, nil
	}

	// Allow commands with or without the / prefix
	if input[0] != '/' {
		input = "/" + input
	}
	cmd := ParseCommand(input)
	if cmd == nil {
		return m, nil
	}

	switch cmd.Name {
	case "/restart":
		return m.restart()

	case "/reinstall":
		return m.reinstall()

	case "/sync":
		return m.syncNow()

	case "/diff":
		m.showDiff = !m.showDiff
		return m, nil

	case "/help":
		m.showHelp = true
		return m, nil

	case "/quit":
		m.quitting = true
		return m, tea.Quit

	default:
		m.message = fmt.Sprintf("Unknown command: %s", cmd.Name)
		m.isError = true
		return m, nil
	}
}

func (m model) restart() (tea.Model, tea.Cmd) {
	m.message = "Restarting development server..."
	m.isError = false
	return m, m.restartCmd()
}

func (m model) reinstall() (tea.Model, tea.Cmd) {
	m.message = "Reinstalling dependencies..."
	m.isError = false
	return m, m.reinstallCmd()
}

func (m model) syncNow() (tea.Model, tea.Cmd) {
	if m.syncing {
		m.message = "Sync already in progress"
		m.isError = false
		return m, nil
	}
	m.syncing = true
	m.message = syncingMessage
	m.isError = false
	return m, m.syncCmd()
}
