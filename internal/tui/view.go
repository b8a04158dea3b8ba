package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/zpdzap/sandpit/internal/sandbox"
)

func (m model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	// Header: title, step badge and quip
	icon, iStyle := stepBadge(m.state.Step)
	title := "sandpit v0.1.0  " + iStyle.Render(icon+" "+string(m.state.Step))
	quip := quipStyle.Render(m.quip)
	gap := m.width - lipgloss.Width(title) - lipgloss.Width(quip) - 4
	if gap < 1 {
		gap = 1
	}
	b.WriteString(headerStyle.Width(m.width).Render(title + strings.Repeat(" ", gap) + quip))
	b.WriteString("\n")

	b.WriteString(m.renderStatusLine())
	b.WriteString("\n")
	b.WriteString(dividerStyle.Render(strings.Repeat("─", m.width)))
	b.WriteString("\n")

	b.WriteString(m.renderBody())
	b.WriteString("\n")

	b.WriteString(dividerStyle.Render(strings.Repeat("─", m.width)))
	b.WriteString("\n")

	// Hotkeys
	if m.commanding {
		b.WriteString(hotkeysStyle.Render("[enter] execute  [esc] cancel"))
	} else {
		b.WriteString(hotkeysStyle.Render("[r]estart  re[i]nstall  [s]ync  [d]iff  [↑↓] scroll  [/] command  [?] help  [q]uit"))
	}
	b.WriteString("\n")

	m.renderStatusAndInput(&b)

	if m.showHelp {
		return m.renderHelpOverlay(b.String())
	}
	return b.String()
}

func (m model) renderStatusLine() string {
	parts := []string{m.state.StatusMessage}
	if m.state.PreviewURL != "" {
		parts = append(parts, urlStyle.Render(m.state.PreviewURL))
	}
	if n := len(m.state.SyncErrors); n > 0 {
		parts = append(parts, errorStyle.UnsetPadding().Render(fmt.Sprintf("sync errors: %d", n)))
	}
	line := strings.Join(parts, "  ")
	if m.state.Step == sandbox.StepError {
		return errorStyle.Render(line)
	}
	return statsStyle.Render(line)
}

// renderBody fills exactly the terminal pane height with either the last
// sync tree or the sandbox terminal.
func (m model) renderBody() string {
	height := m.terminal.Height

	var content string
	switch {
	case m.showDiff:
		content = buildSyncTree(m.state.LastSync, m.state.SyncErrors)
	case len(m.state.TerminalOutput) == 0:
		content = emptyStyle.Render("Waiting for sandbox output...")
	default:
		return m.terminal.View()
	}

	lines := strings.Split(content, "\n")
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func (m model) renderStatusAndInput(b *strings.Builder) {
	if m.message != "" {
		if m.isError {
			b.WriteString(errorStyle.Render(m.message))
		} else {
			b.WriteString(messageStyle.Render(m.message))
		}
		b.WriteString("\n")
	}
	if m.commanding {
		b.WriteString("  ")
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}
}

func (m model) renderHelpOverlay(base string) string {
	help := strings.Join([]string{
		helpHeaderStyle.Render("Sandbox"),
		helpKeyStyle.Render("  r") + helpDescStyle.Render("           Restart the dev server"),
		helpKeyStyle.Render("  i") + helpDescStyle.Render("           Reinstall dependencies"),
		helpKeyStyle.Render("  s") + helpDescStyle.Render("           Sync project files now"),
		helpKeyStyle.Render("  d") + helpDescStyle.Render("           Toggle last sync tree"),
		helpKeyStyle.Render("  ↑/↓ pgup") + helpDescStyle.Render("   Scroll the terminal"),
		"",
		helpHeaderStyle.Render("Commands"),
		helpKeyStyle.Render("  /") + helpDescStyle.Render("           Open command bar"),
		helpDescStyle.Render("  /restart  /reinstall  /sync"),
		helpDescStyle.Render("  /diff  /help  /quit"),
		"",
		helpKeyStyle.Render("  q") + helpDescStyle.Render("  quit") + "     " + helpKeyStyle.Render("?") + helpDescStyle.Render("  close this help"),
	}, "\n")

	modal := helpStyle.Render(help)

	// Center the modal over the base view
	modalWidth := lipgloss.Width(modal)
	modalHeight := lipgloss.Height(modal)
	xOffset := max(0, (m.width-modalWidth)/2)
	yOffset := max(0, (m.height-modalHeight)/2)

	baseLines := strings.Split(base, "\n")
	for i, mLine := range strings.Split(modal, "\n") {
		row := yOffset + i
		if row < len(baseLines) {
			padding := strings.Repeat(" ", xOffset)
			baseLines[row] = padding + mLine + strings.Repeat(" ", max(0, m.width-xOffset-lipgloss.Width(mLine)))
		}
	}

	return strings.Join(baseLines, "\n")
}
