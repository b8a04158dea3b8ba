// Package sandbox drives a project through mount, install, start and ready
// inside a sandbox runtime, and keeps the running sandbox in step with the
// project as its files change.
package sandbox

import (
	"fmt"

	"github.com/zpdzap/sandpit/internal/snapshot"
)

// Step is the current phase of the setup pipeline.
type Step string

const (
	StepMounting   Step = "mounting"
	StepInstalling Step = "installing"
	StepStarting   Step = "starting"
	StepReady      Step = "ready"
	StepError      Step = "error"
)

// State is the observable state of a Manager. Empty PreviewURL and Error
// mean no preview and no error.
type State struct {
	Step           Step              `json:"step"`
	StatusMessage  string            `json:"status_message"`
	TerminalOutput []string          `json:"terminal_output"`
	PreviewURL     string            `json:"preview_url,omitempty"`
	Error          string            `json:"error,omitempty"`
	SyncErrors     []string          `json:"sync_errors,omitempty"`
	LastSync       []snapshot.Change `json:"last_sync,omitempty"`
	Generation     uint64            `json:"generation"`
}

func (s State) clone() State {
	s.TerminalOutput = append([]string(nil), s.TerminalOutput...)
	s.SyncErrors = append([]string(nil), s.SyncErrors...)
	s.LastSync = append([]snapshot.Change(nil), s.LastSync...)
	return s
}

func initialState() State {
	return State{
		Step:          StepMounting,
		StatusMessage: "Waiting for project files",
	}
}

// MountError is returned when the initial file tree could not be mounted.
type MountError struct {
	Err error
}

func (e *MountError) Error() string {
	return fmt.Sprintf("Failed to mount project files: %v", e.Err)
}

func (e *MountError) Unwrap() error { return e.Err }

// InstallError is returned when dependency installation fails. ExitCode is
// -1 when the install command could not be run at all.
type InstallError struct {
	ExitCode int
	Err      error
}

func (e *InstallError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("Dependency installation failed: %v", e.Err)
	}
	return fmt.Sprintf("Dependency installation failed with exit code %d", e.ExitCode)
}

func (e *InstallError) Unwrap() error { return e.Err }

// StartError is returned when the dev server could not be spawned.
type StartError struct {
	Err error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("Failed to start development server: %v", e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// ExitError records a dev server that exited without being asked to.
type ExitError struct {
	ExitCode int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("Development server exited with code %d", e.ExitCode)
}

// FileError is a failed write or remove during incremental sync. It is
// reported but never fatal.
type FileError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }
