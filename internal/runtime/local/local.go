// Package local runs the sandbox directly on the host: the workspace is a
// host directory and processes are host processes in their own process group.
package local

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/zpdzap/sandpit/internal/runtime"
	"github.com/zpdzap/sandpit/internal/snapshot"
)

// Options configures a local runtime.
type Options struct {
	WorkDir      string
	Ports        []int
	Host         string
	Env          []string
	KillGrace    time.Duration
	PollInterval time.Duration
	Logger       *log.Logger
}

// Runtime is a host-directory sandbox.
type Runtime struct {
	fs      runtime.HostFS
	opts    Options
	logger  *log.Logger
	watcher *runtime.PortWatcher
	cancel  context.CancelFunc

	mu     sync.Mutex
	procs  map[*Process]struct{}
	closed bool
}

// Boot returns a BootFunc for runtime.Shared.
func Boot(opts Options) runtime.BootFunc {
	return func(ctx context.Context) (runtime.Runtime, error) {
		return New(opts)
	}
}

// New creates the work directory and starts watching the dev ports.
func New(opts Options) (*Runtime, error) {
	if opts.WorkDir == "" {
		dir, err := os.MkdirTemp("", "sandpit-")
		if err != nil {
			return nil, fmt.Errorf("creating work dir: %w", err)
		}
		opts.WorkDir = dir
	}
	root, err := filepath.Abs(opts.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("resolving work dir: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating work dir: %w", err)
	}
	if opts.Host == "" {
		opts.Host = "localhost"
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runtime{
		fs:      runtime.HostFS{Root: root},
		opts:    opts,
		logger:  logger,
		watcher: runtime.NewPortWatcher(opts.Ports, runtime.TCPProbe(opts.Host, nil), opts.PollInterval),
		cancel:  cancel,
		procs:   make(map[*Process]struct{}),
	}
	go r.watcher.Run(ctx)

	logger.Debug("local runtime ready", "root", root, "ports", opts.Ports)
	return r, nil
}

// Root returns the absolute workspace directory.
func (r *Runtime) Root() string {
	return r.fs.Root
}

func (r *Runtime) checkOpen() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return runtime.ErrClosed
	}
	return nil
}

// Mount writes the tree into the workspace.
func (r *Runtime) Mount(ctx context.Context, tree snapshot.Tree) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	return r.fs.WriteTree(tree)
}

// WriteFile writes one workspace file.
func (r *Runtime) WriteFile(ctx context.Context, path string, content []byte) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	return r.fs.WriteFile(path, content)
}

// Remove deletes one workspace file.
func (r *Runtime) Remove(ctx context.Context, path string) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	return r.fs.Remove(path)
}

// Spawn starts command in the workspace.
func (r *Runtime) Spawn(ctx context.Context, command string, args ...string) (runtime.Process, error) {
	cmd := exec.Command(command, args...)
	cmd.Dir = r.fs.Root
	cmd.Env = append(os.Environ(), r.opts.Env...)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, runtime.ErrClosed
	}

	r.watcher.Reset()

	// OnExit takes r.mu, so it cannot observe p before it is assigned.
	var p *Process
	p, err := Start(cmd, ProcessOptions{
		Grace: r.opts.KillGrace,
		OnExit: func() {
			r.mu.Lock()
			delete(r.procs, p)
			r.mu.Unlock()
		},
	})
	if err != nil {
		return nil, err
	}
	r.procs[p] = struct{}{}

	r.logger.Debug("spawned", "cmd", command, "args", args, "pid", p.Pid())
	return p, nil
}

// OnServerReady registers fn for dev-port readiness.
func (r *Runtime) OnServerReady(fn runtime.ReadyFunc) func() {
	return r.watcher.OnServerReady(fn)
}

// Close stops the port watcher and kills every live process. The work
// directory is kept so installed dependencies survive the next session.
func (r *Runtime) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	procs := make([]*Process, 0, len(r.procs))
	for p := range r.procs {
		procs = append(procs, p)
	}
	r.mu.Unlock()

	r.cancel()
	for _, p := range procs {
		p.Kill()
	}
	return nil
}
