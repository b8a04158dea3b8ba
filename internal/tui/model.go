package tui

import (
	"context"
	"math/rand"
	"os"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/zpdzap/sandpit/internal/config"
	"github.com/zpdzap/sandpit/internal/project"
	"github.com/zpdzap/sandpit/internal/sandbox"
	"github.com/zpdzap/sandpit/internal/snapshot"
	"golang.org/x/term"
)

var quips = []string{
	"dig in",
	"no sand in the gears",
	"watching your files",
	"one pit, one server",
	"fresh from the pit",
}

// loadFunc reads the project into a snapshot.
type loadFunc func() (snapshot.Snapshot, error)

// model is the Bubble Tea model for the sandpit dashboard.
type model struct {
	ctx        context.Context
	manager    *sandbox.Manager
	cfg        *config.Config
	load       loadFunc
	logger     *log.Logger
	changes    <-chan struct{}
	input      textinput.Model
	terminal   viewport.Model
	state      sandbox.State
	message    string
	isError    bool
	commanding bool // true when in command mode (/ pressed)
	quitting   bool
	syncing    bool // a project sync is in flight
	width      int
	height     int
	quip       string

	showDiff bool
	showHelp bool
}

func newModel(ctx context.Context, mgr *sandbox.Manager, cfg *config.Config, projectDir string, changes <-chan struct{}, logger *log.Logger) model {
	ti := textinput.New()
	ti.Placeholder = "restart, reinstall, sync, diff | quit"
	ti.CharLimit = 256
	ti.Width = 80
	// Input starts unfocused; activated by pressing /
	ti.Blur()

	// Get initial terminal size so the first render isn't at width=0
	w, h, _ := term.GetSize(int(os.Stdout.Fd()))
	if w == 0 {
		w = 80
	}
	if h == 0 {
		h = 24
	}

	m := model{
		ctx:     ctx,
		manager: mgr,
		cfg:     cfg,
		load: func() (snapshot.Snapshot, error) {
			return project.Load(projectDir, cfg.Ignore)
		},
		logger:   logger.With("component", "tui"),
		changes:  changes,
		input:    ti,
		terminal: viewport.New(w, terminalHeight(h, false)),
		state:    mgr.State(),
		syncing:  true, // Init starts the first sync
		width:    w,
		height:   h,
		quip:     quips[rand.Intn(len(quips))],
	}
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.syncCmd(), tickCmd(), waitForState(m.changes))
}

// terminalHeight is the height left for the terminal pane once the header,
// status line, dividers and footer are drawn.
func terminalHeight(total int, commanding bool) int {
	footer := 3 // hotkeys + message + divider
	if commanding {
		footer++
	}
	return max(3, total-3-footer)
}

// syncCmd loads the project and hands it to the manager.
func (m model) syncCmd() tea.Cmd {
	return func() tea.Msg {
		snap, err := m.load()
		if err != nil {
			return syncDoneMsg{loadErr: err}
		}
		err = m.manager.UpdateProjectFiles(m.ctx, snap)
		return syncDoneMsg{files: len(snap), err: err}
	}
}

func (m model) restartCmd() tea.Cmd {
	return func() tea.Msg {
		return actionDoneMsg{action: "restart", err: m.manager.StartDevServer(m.ctx)}
	}
}

func (m model) reinstallCmd() tea.Cmd {
	return func() tea.Msg {
		return actionDoneMsg{action: "reinstall", err: m.manager.Reinstall(m.ctx)}
	}
}
