package tui

import (
	"testing"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

func testModel() model {
	return model{
		input:    textinput.New(),
		terminal: viewport.New(80, terminalHeight(24, false)),
		width:    80,
		height:   24,
	}
}

func press(m model, keys ...tea.KeyMsg) model {
	for _, k := range keys {
		next, _ := m.Update(k)
		m = next.(model)
	}
	return m
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestToggleDiff(t *testing.T) {
	m := press(testModel(), runes("d"))
	if !m.showDiff {
		t.Fatal("d should show the sync tree")
	}
	m = press(m, runes("d"))
	if m.showDiff {
		t.Fatal("second d should hide the sync tree")
	}
}

func TestCommandModeResizesTerminal(t *testing.T) {
	m := press(testModel(), runes("/"))
	if !m.commanding {
		t.Fatal("/ should open the command bar")
	}
	if got, want := m.terminal.Height, terminalHeight(24, true); got != want {
		t.Errorf("terminal height = %d, want %d", got, want)
	}

	m = press(m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.commanding {
		t.Fatal("esc should close the command bar")
	}
	if got, want := m.terminal.Height, terminalHeight(24, false); got != want {
		t.Errorf("terminal height = %d, want %d", got, want)
	}
}

func TestTabCompletesCommand(t *testing.T) {
	m := press(testModel(), runes("/"), runes("/rei"), tea.KeyMsg{Type: tea.KeyTab})
	if got := m.input.Value(); got != "/reinstall" {
		t.Errorf("input = %q, want /reinstall", got)
	}
}

func TestCommandWithoutSlash(t *testing.T) {
	m := press(testModel(), runes("/"), runes("diff"), tea.KeyMsg{Type: tea.KeyEnter})
	if !m.showDiff {
		t.Error("diff should toggle the sync tree")
	}
	if m.commanding {
		t.Error("enter should close the command bar")
	}
}

func TestUnknownCommand(t *testing.T) {
	m := press(testModel(), runes("/"), runes("/bogus"), tea.KeyMsg{Type: tea.KeyEnter})
	if m.message != "Unknown command: /bogus" || !m.isError {
		t.Errorf("message = %q, isError = %v", m.message, m.isError)
	}
}

func TestHelpSwallowsKeys(t *testing.T) {
	m := press(testModel(), runes("?"), runes("d"))
	if !m.showHelp {
		t.Fatal("? should open help")
	}
	if m.showDiff {
		t.Error("keys other than ? and esc should be ignored under help")
	}
	m = press(m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.showHelp {
		t.Error("esc should close help")
	}
}

func TestSyncInFlightIsNotDoubled(t *testing.T) {
	m := testModel()
	m.syncing = true
	m = press(m, runes("s"))
	if m.message != "Sync already in progress" {
		t.Errorf("message = %q", m.message)
	}
}
