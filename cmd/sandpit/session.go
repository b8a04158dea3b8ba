package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/gofrs/flock"
	"github.com/zpdzap/sandpit/internal/config"
	"github.com/zpdzap/sandpit/internal/runtime"
	"github.com/zpdzap/sandpit/internal/runtime/docker"
	"github.com/zpdzap/sandpit/internal/runtime/local"
	"github.com/zpdzap/sandpit/internal/sandbox"
)

// session is everything one orchestrator run holds open.
type session struct {
	dir     string
	cfg     *config.Config
	logger  *log.Logger
	lock    *flock.Flock
	shared  *runtime.Shared
	manager *sandbox.Manager
	logFile io.Closer
}

func openSession(projectDir string, flags *runFlags) (*session, error) {
	loaded, err := config.Load(projectDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.New("not a sandpit project (run `sandpit init` first)")
		}
		return nil, err
	}
	cfg := loaded.WithDefaults()
	if flags.backend != "" {
		cfg.Runtime.Backend = flags.backend
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	install, err := cfg.InstallCommand()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	dev, err := cfg.DevCommand()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	lock := flock.New(filepath.Join(projectDir, config.Dir, config.LockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking project: %w", err)
	}
	if !locked {
		return nil, errors.New("another sandpit is already running for this project")
	}

	s := &session{dir: projectDir, cfg: &cfg, lock: lock}
	if err := s.openLogger(projectDir, flags); err != nil {
		s.close()
		return nil, err
	}

	s.shared = runtime.NewShared(boot(projectDir, &cfg, s.logger), runtime.WithLogger(s.logger.With("component", "runtime")))
	s.manager = sandbox.NewManager(s.shared, sandbox.Options{
		ManifestPath: cfg.Commands.Manifest,
		Install:      install,
		Dev:          dev,
		MaxLines:     cfg.Terminal.MaxLines,
		Logger:       s.logger,
	})

	s.logger.Info("session started", "project", cfg.Project, "backend", cfg.Runtime.Backend)
	return s, nil
}

func (s *session) openLogger(projectDir string, flags *runFlags) error {
	if flags.headless {
		logger, err := newLogger(os.Stderr, flags.logLevel, stderrSupportsColor())
		if err != nil {
			return err
		}
		s.logger = logger
		return nil
	}

	// The dashboard owns the terminal, so diagnostics go to a file.
	path := filepath.Join(projectDir, config.Dir, config.LogFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	logger, err := newLogger(f, flags.logLevel, false)
	if err != nil {
		f.Close()
		return err
	}
	s.logger = logger
	s.logFile = f
	return nil
}

// boot picks the runtime backend named in cfg.
func boot(projectDir string, cfg *config.Config, logger *log.Logger) runtime.BootFunc {
	workDir := cfg.WorkDirPath(projectDir)
	rtLogger := logger.With("component", "runtime", "backend", cfg.Runtime.Backend)

	if cfg.Runtime.Backend == config.BackendDocker {
		return docker.Boot(docker.Options{
			Image:   cfg.Runtime.Image,
			WorkDir: workDir,
			Ports:   cfg.Runtime.Ports,
			Env:     cfg.Runtime.Env,
			Mounts:  cfg.Runtime.Mounts,
			Logger:  rtLogger,
		})
	}
	return local.Boot(local.Options{
		WorkDir: workDir,
		Ports:   cfg.Runtime.Ports,
		Env:     environ(cfg.Runtime.Env),
		Logger:  rtLogger,
	})
}

// environ renders env as KEY=VALUE pairs in key order.
func environ(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// close tears the sandbox down and releases the project lock.
func (s *session) close() {
	if s.manager != nil {
		s.manager.Teardown()
	}
	if s.shared != nil {
		if err := s.shared.Close(); err != nil {
			s.logger.Warn("closing runtime", "err", err)
		}
	}
	if s.logger != nil {
		s.logger.Info("session stopped")
	}
	if s.logFile != nil {
		s.logFile.Close()
	}
	if s.lock != nil {
		_ = s.lock.Unlock()
	}
}
