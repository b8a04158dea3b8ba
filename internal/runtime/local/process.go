package local

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultKillGrace is how long Kill waits after SIGTERM before SIGKILL.
const DefaultKillGrace = 5 * time.Second

// ProcessOptions controls how a host process is stopped.
type ProcessOptions struct {
	// Terminate asks the process to stop. Defaults to signalling its process group.
	Terminate func(cmd *exec.Cmd) error
	// ForceKill stops the process for good. Defaults to SIGKILL on its process group.
	ForceKill func(cmd *exec.Cmd) error
	// Grace is the wait between Terminate and ForceKill.
	Grace time.Duration
	// OnExit runs once after the process has exited.
	OnExit func()
}

// Process is a host process with merged output and a cached exit code.
type Process struct {
	cmd  *exec.Cmd
	opts ProcessOptions

	out  *io.PipeReader
	done chan struct{}
	code int
	err  error

	killOnce sync.Once
}

// Start runs cmd in its own process group and streams stdout and stderr
// into a single reader.
func Start(cmd *exec.Cmd, opts ProcessOptions) (*Process, error) {
	if opts.Terminate == nil {
		opts.Terminate = terminate
	}
	if opts.ForceKill == nil {
		opts.ForceKill = forceKill
	}
	if opts.Grace <= 0 {
		opts.Grace = DefaultKillGrace
	}

	setProcessGroup(cmd)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", cmd.Path, err)
	}

	pr, pw := io.Pipe()
	p := &Process{
		cmd:  cmd,
		opts: opts,
		out:  pr,
		done: make(chan struct{}),
	}

	go func() {
		var g errgroup.Group
		g.Go(func() error {
			_, err := io.Copy(pw, stdout)
			return err
		})
		g.Go(func() error {
			_, err := io.Copy(pw, stderr)
			return err
		})
		g.Wait()

		werr := cmd.Wait()
		p.code = exitCode(werr)
		var ee *exec.ExitError
		if werr != nil && !errors.As(werr, &ee) {
			p.err = werr
		}
		pw.Close()
		close(p.done)
		if opts.OnExit != nil {
			opts.OnExit()
		}
	}()

	return p, nil
}

// Pid returns the host pid.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Output streams merged stdout and stderr.
func (p *Process) Output() io.Reader {
	return p.out
}

// Wait blocks until the process exits.
func (p *Process) Wait() (int, error) {
	<-p.done
	return p.code, p.err
}

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Kill terminates the process tree, escalating after the grace period.
func (p *Process) Kill() {
	p.killOnce.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}

		p.opts.Terminate(p.cmd)
		select {
		case <-p.done:
			return
		case <-time.After(p.opts.Grace):
		}

		p.opts.ForceKill(p.cmd)
		select {
		case <-p.done:
		case <-time.After(p.opts.Grace):
		}
	})
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if code := ee.ExitCode(); code >= 0 {
			return code
		}
		return signalExitCode(ee)
	}
	return -1
}
