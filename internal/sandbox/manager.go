package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/zpdzap/sandpit/internal/runtime"
	"github.com/zpdzap/sandpit/internal/shim"
	"github.com/zpdzap/sandpit/internal/snapshot"
	"github.com/zpdzap/sandpit/internal/termlog"
)

// Options configures a Manager. Zero values fall back to an npm project.
type Options struct {
	ManifestPath string
	Install      []string
	Dev          []string
	MaxLines     int
	Logger       *log.Logger
}

func (o Options) withDefaults() Options {
	if o.ManifestPath == "" {
		o.ManifestPath = "package.json"
	}
	if len(o.Install) == 0 {
		o.Install = []string{"npm", "install"}
	}
	if len(o.Dev) == 0 {
		o.Dev = []string{"npm", "run", "dev"}
	}
	if o.MaxLines <= 0 {
		o.MaxLines = termlog.DefaultMaxLines
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	return o
}

// Manager owns the setup pipeline of one project: the applied snapshot, the
// live dev process, the terminal log and the observable state.
type Manager struct {
	shared *runtime.Shared
	opts   Options
	logger *log.Logger
	term   *termlog.Log

	// mounting drops cold-mount calls while one is in flight.
	mounting atomic.Bool
	// cycleMu serialises sync, install, start and teardown.
	cycleMu sync.Mutex

	observers observers

	mu         sync.Mutex
	rt         runtime.Runtime
	applied    snapshot.Snapshot
	hasApplied bool
	dev        runtime.Process
	unready    func()
	gen        uint64
	state      State
}

// NewManager creates a manager that boots its runtime from shared on first use.
func NewManager(shared *runtime.Shared, opts Options) *Manager {
	opts = opts.withDefaults()
	return &Manager{
		shared: shared,
		opts:   opts,
		logger: opts.Logger.With("component", "sandbox"),
		term:   termlog.New(opts.MaxLines),
		state:  initialState(),
	}
}

// UpdateProjectFiles brings the sandbox in line with snap. The first call
// mounts the whole tree and always installs; later calls write and remove
// only what changed and reinstall only when the manifest changed.
//
// Failures are reflected in State; the returned error is the same failure.
func (m *Manager) UpdateProjectFiles(ctx context.Context, snap snapshot.Snapshot) error {
	if !m.isApplied() {
		if !m.mounting.CompareAndSwap(false, true) {
			m.logger.Debug("mount already in flight, dropping update")
			return nil
		}
		defer m.mounting.Store(false)
	}

	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	if !m.isApplied() {
		return m.mount(ctx, snap)
	}
	return m.sync(ctx, snap)
}

// StartDevServer (re)starts the dev server. A running dev process is killed
// before the new one is spawned.
func (m *Manager) StartDevServer(ctx context.Context) error {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	rt, err := m.runtime(ctx)
	if err != nil {
		return m.fail(err)
	}
	return m.startDevServer(ctx, rt)
}

// Reinstall runs dependency installation again and starts the dev server
// when it succeeds.
func (m *Manager) Reinstall(ctx context.Context) error {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	rt, err := m.runtime(ctx)
	if err != nil {
		return m.fail(err)
	}
	return m.install(ctx, rt)
}

// Teardown kills the dev process, releases the runtime and forgets the
// applied snapshot. The next update performs a fresh cold mount.
func (m *Manager) Teardown() {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	m.mu.Lock()
	dev, unready, rt := m.dev, m.unready, m.rt
	m.dev, m.unready, m.rt = nil, nil, nil
	m.applied, m.hasApplied = nil, false
	m.gen++
	m.state = initialState()
	m.state.Generation = m.gen
	m.mu.Unlock()

	if unready != nil {
		unready()
	}
	if dev != nil {
		dev.Kill()
	}
	if rt != nil {
		m.shared.Release()
	}
	m.term.Reset()
	m.logger.Info("torn down")
	m.notify()
}

func (m *Manager) isApplied() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasApplied
}

func (m *Manager) record(snap snapshot.Snapshot) {
	m.mu.Lock()
	m.applied, m.hasApplied = snap, true
	m.mu.Unlock()
}

// runtime returns the acquired runtime, acquiring it on first use.
func (m *Manager) runtime(ctx context.Context) (runtime.Runtime, error) {
	m.mu.Lock()
	rt := m.rt
	m.mu.Unlock()
	if rt != nil {
		return rt, nil
	}

	rt, err := m.shared.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.rt = rt
	m.mu.Unlock()
	return rt, nil
}

func (m *Manager) mount(ctx context.Context, snap snapshot.Snapshot) error {
	m.update(func(s *State) {
		s.Step = StepMounting
		s.StatusMessage = "Mounting project files"
		s.PreviewURL = ""
		s.Error = ""
		s.SyncErrors = nil
	})

	rt, err := m.runtime(ctx)
	if err != nil {
		return m.fail(&MountError{Err: err})
	}
	tree, err := snapshot.BuildTree(snap, shim.Transform)
	if err != nil {
		return m.fail(&MountError{Err: err})
	}
	if err := rt.Mount(ctx, tree); err != nil {
		return m.fail(&MountError{Err: err})
	}

	m.record(snap)
	m.update(func(s *State) {
		s.LastSync = snapshot.Compare(nil, snap, m.opts.ManifestPath).Changes()
	})
	m.logLine(fmt.Sprintf("Mounted %d project files", tree.Count()))
	m.logger.Info("project mounted", "files", tree.Count())

	return m.install(ctx, rt)
}

func (m *Manager) sync(ctx context.Context, snap snapshot.Snapshot) error {
	m.mu.Lock()
	prev := m.applied
	m.mu.Unlock()

	d := snapshot.Compare(prev, snap, m.opts.ManifestPath)
	if d.Empty() {
		m.record(snap)
		return nil
	}

	rt, err := m.runtime(ctx)
	if err != nil {
		return m.fail(err)
	}

	failed, fileErrs := applyDiff(ctx, rt, d)
	m.record(retain(prev, snap, failed))

	syncErrs := make([]string, 0, len(fileErrs))
	for _, err := range fileErrs {
		syncErrs = append(syncErrs, err.Error())
		m.logLine(err.Error())
		m.logger.Warn("sync failed", "op", err.Op, "path", err.Path, "err", err.Err)
	}
	m.update(func(s *State) {
		s.LastSync = d.Changes()
		s.SyncErrors = syncErrs
	})
	m.logger.Debug("synced", "written", len(d.ChangedOrNew), "deleted", len(d.Deleted), "failed", len(fileErrs))

	var syncErr error
	if len(fileErrs) > 0 {
		errs := make([]error, len(fileErrs))
		for i, fe := range fileErrs {
			errs[i] = fe
		}
		syncErr = errors.Join(errs...)
	}

	// A manifest that failed to write keeps its old recorded content, so the
	// reinstall happens on the retry instead.
	if d.ManifestChanged && !failed[m.opts.ManifestPath] {
		m.logLine(fmt.Sprintf("%s changed, reinstalling dependencies", m.opts.ManifestPath))
		m.logger.Info("reinstall triggered", "manifest", m.opts.ManifestPath)
		if err := m.install(ctx, rt); err != nil {
			return errors.Join(syncErr, err)
		}
	}
	return syncErr
}

// install runs the install command and chains into the dev server. Any live
// dev server is stopped first: its dependencies are about to change.
func (m *Manager) install(ctx context.Context, rt runtime.Runtime) error {
	m.stopDev()
	m.update(func(s *State) {
		s.Step = StepInstalling
		s.StatusMessage = "Installing dependencies"
		s.PreviewURL = ""
		s.Error = ""
	})
	m.logLine("$ " + strings.Join(m.opts.Install, " "))

	proc, err := rt.Spawn(ctx, m.opts.Install[0], m.opts.Install[1:]...)
	if err != nil {
		return m.fail(&InstallError{ExitCode: -1, Err: err})
	}
	pumped := m.pipe(proc)
	code, err := proc.Wait()
	<-pumped
	if err != nil {
		return m.fail(&InstallError{ExitCode: -1, Err: err})
	}
	if code != 0 {
		return m.fail(&InstallError{ExitCode: code})
	}

	m.logLine("Dependencies installed")
	m.logger.Info("dependencies installed")
	return m.startDevServer(ctx, rt)
}

// stopDev kills the live dev process, if any, and retires its generation so
// its exit and readiness events are ignored. It returns the new generation.
func (m *Manager) stopDev() uint64 {
	m.mu.Lock()
	old, unready := m.dev, m.unready
	m.dev, m.unready = nil, nil
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	if unready != nil {
		unready()
	}
	if old != nil {
		m.logger.Debug("killing previous dev server", "generation", gen-1)
		old.Kill()
	}
	return gen
}

func (m *Manager) startDevServer(ctx context.Context, rt runtime.Runtime) error {
	gen := m.stopDev()

	m.update(func(s *State) {
		s.Step = StepStarting
		s.StatusMessage = "Starting development server"
		s.PreviewURL = ""
		s.Error = ""
		s.Generation = gen
	})
	m.logLine("$ " + strings.Join(m.opts.Dev, " "))
	m.logger.Info("starting dev server", "generation", gen)

	// Register before spawning so a fast server cannot be missed.
	var once sync.Once
	unsubscribe := rt.OnServerReady(func(port int, url string) {
		once.Do(func() { m.ready(gen, port, url) })
	})

	proc, err := rt.Spawn(ctx, m.opts.Dev[0], m.opts.Dev[1:]...)
	if err != nil {
		unsubscribe()
		return m.fail(&StartError{Err: err})
	}

	m.mu.Lock()
	m.dev = proc
	m.unready = unsubscribe
	m.mu.Unlock()

	m.pipe(proc)
	go m.watchDev(gen, proc)
	return nil
}

// ready handles the first server-ready event of generation gen. Events from
// a superseded generation, or after the attempt already failed, are ignored.
func (m *Manager) ready(gen uint64, port int, url string) {
	m.mu.Lock()
	if m.gen != gen || m.state.Step != StepStarting {
		m.mu.Unlock()
		m.logger.Debug("ignoring stale server-ready", "generation", gen, "port", port)
		return
	}
	unready := m.unready
	m.unready = nil
	m.state.Step = StepReady
	m.state.StatusMessage = "Development server ready"
	m.state.PreviewURL = url
	m.mu.Unlock()

	if unready != nil {
		unready()
	}
	m.logLine("Development server ready at " + url)
	m.logger.Info("dev server ready", "url", url, "port", port, "generation", gen)
	m.notify()
}

// watchDev moves to error when the current dev process exits on its own.
func (m *Manager) watchDev(gen uint64, proc runtime.Process) {
	code, err := proc.Wait()
	if err != nil {
		m.logger.Warn("waiting for dev server", "err", err)
	}
	exitErr := &ExitError{ExitCode: code}

	// The generation check and the transition share one critical section so
	// a restart racing with the exit cannot be overwritten.
	m.mu.Lock()
	if m.gen != gen || m.dev != proc {
		m.mu.Unlock()
		return
	}
	m.dev = nil
	unready := m.unready
	m.unready = nil
	m.state.Step = StepError
	m.state.StatusMessage = exitErr.Error()
	m.state.Error = exitErr.Error()
	m.state.PreviewURL = ""
	m.mu.Unlock()

	if unready != nil {
		unready()
	}
	m.logLine(exitErr.Error())
	m.logger.Error("dev server exited", "code", code, "generation", gen)
	m.notify()
}

// pipe streams proc output into the terminal log. The returned channel is
// closed once the output reaches EOF.
func (m *Manager) pipe(proc runtime.Process) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := m.term.Pipe(proc.Output(), m.notify); err != nil {
			m.logger.Warn("reading process output", "err", err)
		}
	}()
	return done
}

// fail surfaces err as the current error and moves to the error step.
func (m *Manager) fail(err error) error {
	m.logLine(err.Error())
	m.logger.Error("setup failed", "err", err)
	m.update(func(s *State) {
		s.Step = StepError
		s.StatusMessage = err.Error()
		s.Error = err.Error()
		s.PreviewURL = ""
	})
	return err
}
