// Package runtime defines the sandbox runtime boundary the orchestrator
// drives: mounting a file tree, writing and removing files, spawning
// processes and reporting when a dev server starts listening.
//
// Backends live in subpackages (local, docker). Mock is an in-memory
// implementation for tests.
package runtime

import (
	"context"
	"errors"
	"io"

	"github.com/zpdzap/sandpit/internal/snapshot"
)

var (
	// ErrClosed is returned by operations on a runtime that has been disposed.
	ErrClosed = errors.New("runtime closed")

	// ErrPathOutsideRoot is returned when a project path resolves outside the sandbox root.
	ErrPathOutsideRoot = errors.New("path outside sandbox root")
)

// Runtime is a booted sandbox. Implementations must be safe for concurrent use.
type Runtime interface {
	// Mount writes a full file tree into the sandbox.
	Mount(ctx context.Context, tree snapshot.Tree) error

	// Spawn starts command inside the sandbox.
	Spawn(ctx context.Context, command string, args ...string) (Process, error)

	// WriteFile creates or replaces a single project file.
	WriteFile(ctx context.Context, path string, content []byte) error

	// Remove deletes a project file. Removing a missing file is not an error.
	Remove(ctx context.Context, path string) error

	// OnServerReady registers fn for every server-ready event and returns
	// a function that unregisters it.
	OnServerReady(fn ReadyFunc) (unsubscribe func())
}

// ReadyFunc receives the sandbox port a server bound and the URL it is reachable at.
type ReadyFunc func(port int, url string)

// Process is a spawned sandbox process.
type Process interface {
	// Output streams merged stdout and stderr; it reaches EOF once the process is gone.
	Output() io.Reader

	// Wait blocks until the process exits and returns its exit code. It may be called repeatedly.
	Wait() (int, error)

	// Kill terminates the process and returns once it has exited or the grace period ran out.
	Kill()
}

// BootFunc boots a new runtime.
type BootFunc func(ctx context.Context) (Runtime, error)
