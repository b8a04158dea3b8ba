package main

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/zpdzap/sandpit/internal/project"
	"github.com/zpdzap/sandpit/internal/sandbox"
)

// runHeadless polls the project and feeds each snapshot to the manager
// until ctx is cancelled. With --once it stops at the first ready or error.
func runHeadless(ctx context.Context, s *session, flags *runFlags) error {
	settled := make(chan sandbox.State, 1)
	cancel := s.manager.Subscribe(stateLogger(s.logger, settled))
	defer cancel()

	interval := flags.interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		err := syncProject(ctx, s)
		if flags.once {
			if err != nil {
				return err
			}
			return waitSettled(ctx, settled)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func syncProject(ctx context.Context, s *session) error {
	snap, err := project.Load(s.dir, s.cfg.Ignore)
	if err != nil {
		s.logger.Error("reading project", "err", err)
		return err
	}
	// Failures land in the sandbox state, which stateLogger reports.
	if err := s.manager.UpdateProjectFiles(ctx, snap); err != nil {
		s.logger.Debug("update finished with error", "err", err)
		return err
	}
	return nil
}

func waitSettled(ctx context.Context, settled <-chan sandbox.State) error {
	select {
	case <-ctx.Done():
		return nil
	case st := <-settled:
		if st.Step == sandbox.StepError {
			return exitCodeError{code: 1, msg: st.Error}
		}
		return nil
	}
}

// stateLogger reports step transitions and sync failures. The first ready or
// error state is also sent on settled.
func stateLogger(logger *log.Logger, settled chan<- sandbox.State) func(sandbox.State) {
	var (
		mu        sync.Mutex
		lastStep  sandbox.Step
		lastErrs  int
		lastLines []string
	)
	return func(st sandbox.State) {
		mu.Lock()
		defer mu.Unlock()

		for _, line := range newLines(lastLines, st.TerminalOutput) {
			logger.Print(line)
		}
		lastLines = st.TerminalOutput

		if st.Step != lastStep {
			lastStep = st.Step
			switch st.Step {
			case sandbox.StepReady:
				logger.Info(st.StatusMessage, "url", st.PreviewURL)
			case sandbox.StepError:
				logger.Error(st.StatusMessage, "err", st.Error)
			default:
				logger.Info(st.StatusMessage, "step", st.Step)
			}
			if st.Step == sandbox.StepReady || st.Step == sandbox.StepError {
				select {
				case settled <- st:
				default:
				}
			}
		}

		if n := len(st.SyncErrors); n != lastErrs {
			lastErrs = n
			if n > 0 {
				logger.Warn("files failed to sync", "count", n, "errors", st.SyncErrors)
			}
		}
	}
}

// newLines returns the lines of next that were not in prev. The terminal log
// is bounded, so next may have dropped lines from the front of prev.
func newLines(prev, next []string) []string {
	if len(prev) == 0 {
		return next
	}
	// Find the longest suffix of prev that is a prefix of next.
	for start := 0; start < len(prev); start++ {
		overlap := prev[start:]
		if len(overlap) > len(next) {
			continue
		}
		match := true
		for i := range overlap {
			if overlap[i] != next[i] {
				match = false
				break
			}
		}
		if match {
			return next[len(overlap):]
		}
	}
	return next
}
