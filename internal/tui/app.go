package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/zpdzap/sandpit/internal/config"
	"github.com/zpdzap/sandpit/internal/sandbox"
)

// Run starts the dashboard and blocks until the user quits or ctx is
// cancelled. The project is synced on start and polled every two seconds.
func Run(ctx context.Context, mgr *sandbox.Manager, cfg *config.Config, projectDir string, logger *log.Logger) error {
	changes := make(chan struct{}, 1)
	cancel := mgr.Subscribe(func(sandbox.State) {
		select {
		case changes <- struct{}{}:
		default:
		}
	})
	defer cancel()

	m := newModel(ctx, mgr, cfg, projectDir, changes, logger)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
