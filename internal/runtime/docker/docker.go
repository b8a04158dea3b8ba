// Package docker runs the sandbox in a long-lived container. The workspace
// is a host directory bind-mounted at /workspace, so file sync goes through
// the host filesystem and only processes cross the container boundary.
package docker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	shellquote "github.com/kballard/go-shellquote"
	"github.com/zpdzap/sandpit/internal/runtime"
	"github.com/zpdzap/sandpit/internal/runtime/local"
	"github.com/zpdzap/sandpit/internal/snapshot"
	"go.jetify.com/typeid"
)

// Workspace is the container path the work directory is mounted at.
const Workspace = "/workspace"

// Options configures a docker runtime.
type Options struct {
	Image        string
	WorkDir      string
	Ports        []int
	Env          map[string]string
	Mounts       []string
	KillGrace    time.Duration
	PollInterval time.Duration
	Logger       *log.Logger
}

// Runtime is a container-backed sandbox.
type Runtime struct {
	name    string
	fs      runtime.HostFS
	opts    Options
	logger  *log.Logger
	watcher *runtime.PortWatcher
	cancel  context.CancelFunc

	mu        sync.Mutex
	hostPorts map[int]int
	procs     map[*local.Process]struct{}
	seq       int
	closed    bool

	// listening reports whether something inside the container accepts on
	// port. The published host port is no signal: docker-proxy accepts
	// there whether or not the container listens.
	listening func(port int) bool
}

// Boot returns a BootFunc for runtime.Shared.
func Boot(opts Options) runtime.BootFunc {
	return func(ctx context.Context) (runtime.Runtime, error) {
		return New(ctx, opts)
	}
}

// New starts the sandbox container.
func New(ctx context.Context, opts Options) (*Runtime, error) {
	if opts.Image == "" {
		return nil, fmt.Errorf("docker runtime: no image configured")
	}
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
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	name := containerName()
	out, err := exec.CommandContext(ctx, "docker", runArgs(name, root, opts)...).CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("docker run failed: %s: %w", strings.TrimSpace(string(out)), err)
	}

	wctx, cancel := context.WithCancel(context.Background())
	r := &Runtime{
		name:      name,
		fs:        runtime.HostFS{Root: root},
		opts:      opts,
		logger:    logger.With("container", name),
		cancel:    cancel,
		hostPorts: queryPorts(name),
		procs:     make(map[*local.Process]struct{}),
	}
	r.listening = r.execListening
	interval := opts.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	r.watcher = runtime.NewPortWatcher(opts.Ports, r.probe, interval)
	go r.watcher.Run(wctx)

	r.logger.Info("container started", "image", opts.Image, "ports", r.hostPorts)
	return r, nil
}

// Name returns the container name.
func (r *Runtime) Name() string {
	return r.name
}

func (r *Runtime) hostPort(port int) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.hostPorts[port]
	return p, ok
}

// probe reports a dev port as ready once it listens inside the container,
// with the URL of its published host port.
func (r *Runtime) probe(port int) (string, bool) {
	hostPort, ok := r.hostPort(port)
	if !ok || !r.listening(port) {
		return "", false
	}
	return fmt.Sprintf("http://localhost:%d", hostPort), true
}

func (r *Runtime) execListening(port int) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return exec.CommandContext(ctx, "docker", listenArgs(r.name, port)...).Run() == nil
}

func (r *Runtime) checkOpen() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return runtime.ErrClosed
	}
	return nil
}

// Mount writes the tree into the bind-mounted workspace.
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

// Spawn runs command inside the container in its own session. The session
// leader records its pid so Kill can signal the whole group in the container;
// killing the docker exec client alone would leave it running.
func (r *Runtime) Spawn(ctx context.Context, command string, args ...string) (runtime.Process, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, runtime.ErrClosed
	}
	r.seq++
	pidFile := fmt.Sprintf("/tmp/sandpit-%d.pid", r.seq)

	cmd := exec.Command("docker", execArgs(r.name, pidFile, command, args)...)
	r.watcher.Reset()

	var p *local.Process
	p, err := local.Start(cmd, local.ProcessOptions{
		Grace: r.opts.KillGrace,
		Terminate: func(*exec.Cmd) error {
			return r.signal(pidFile, "TERM")
		},
		ForceKill: func(c *exec.Cmd) error {
			r.signal(pidFile, "KILL")
			return c.Process.Kill()
		},
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

	r.logger.Debug("spawned", "cmd", command, "args", args)
	return p, nil
}

func (r *Runtime) signal(pidFile, sig string) error {
	script := fmt.Sprintf("kill -%s -$(cat %s)", sig, shellquote.Join(pidFile))
	out, err := exec.Command("docker", "exec", r.name, "sh", "-c", script).CombinedOutput()
	if err != nil {
		return fmt.Errorf("signalling %s: %s: %w", pidFile, strings.TrimSpace(string(out)), err)
	}
	return nil
}

// OnServerReady registers fn for dev-port readiness on the published ports.
func (r *Runtime) OnServerReady(fn runtime.ReadyFunc) func() {
	return r.watcher.OnServerReady(fn)
}

// Close kills live processes and removes the container.
func (r *Runtime) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	procs := make([]*local.Process, 0, len(r.procs))
	for p := range r.procs {
		procs = append(procs, p)
	}
	r.mu.Unlock()

	r.cancel()
	for _, p := range procs {
		p.Kill()
	}

	out, err := exec.Command("docker", "rm", "-f", r.name).CombinedOutput()
	if err != nil {
		return fmt.Errorf("docker rm failed: %s: %w", strings.TrimSpace(string(out)), err)
	}
	r.logger.Info("container removed")
	return nil
}

// listenArgs checks a container port with bash's /dev/tcp, falling back to
// nc for images without bash.
func listenArgs(name string, port int) []string {
	script := fmt.Sprintf(
		"if command -v bash >/dev/null 2>&1; then exec bash -c 'exec 3<>/dev/tcp/127.0.0.1/%d'; else exec nc -z 127.0.0.1 %d; fi",
		port, port)
	return []string{"exec", name, "sh", "-c", script}
}

func runArgs(name, root string, opts Options) []string {
	args := []string{
		"run", "-d",
		"--name", name,
		"--label", "sandpit=1",
		"-v", fmt.Sprintf("%s:%s", root, Workspace),
		"-w", Workspace,
	}

	for _, port := range opts.Ports {
		args = append(args, "-p", fmt.Sprintf("0:%d", port))
	}

	keys := make([]string, 0, len(opts.Env))
	for k := range opts.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, opts.Env[k]))
	}

	for _, mount := range opts.Mounts {
		args = append(args, "-v", mount)
	}

	return append(args, opts.Image, "sleep", "infinity")
}

func execArgs(name, pidFile, command string, args []string) []string {
	script := fmt.Sprintf("echo $$ > %s; exec %s",
		shellquote.Join(pidFile), shellquote.Join(append([]string{command}, args...)...))
	return []string{"exec", "-w", Workspace, name, "setsid", "sh", "-c", script}
}

func queryPorts(containerName string) map[int]int {
	out, err := exec.Command("docker", "port", containerName).CombinedOutput()
	if err != nil {
		return map[int]int{}
	}
	return parsePorts(string(out))
}

// parsePorts reads `docker port` output such as "3000/tcp -> 0.0.0.0:49321".
func parsePorts(out string) map[int]int {
	ports := make(map[int]int)
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, " -> ", 2)
		if len(parts) != 2 {
			continue
		}
		container, err := strconv.Atoi(strings.SplitN(parts[0], "/", 2)[0])
		if err != nil {
			continue
		}
		i := strings.LastIndex(parts[1], ":")
		if i < 0 {
			continue
		}
		host, err := strconv.Atoi(parts[1][i+1:])
		if err != nil {
			continue
		}
		if _, seen := ports[container]; !seen {
			ports[container] = host
		}
	}
	return ports
}

func containerName() string {
	id, err := typeid.WithPrefix("sp")
	if err == nil && id.String() != "" {
		return id.String()
	}
	return fmt.Sprintf("sp-%d", time.Now().UTC().UnixNano())
}
