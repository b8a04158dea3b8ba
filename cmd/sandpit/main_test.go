package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/gofrs/flock"
	"github.com/zpdzap/sandpit/internal/config"
	"github.com/zpdzap/sandpit/internal/sandbox"
)

func TestUpdateGitignore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".gitignore")
	if err := os.WriteFile(path, []byte("node_modules/"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := updateGitignore(dir); err != nil {
		t.Fatalf("updateGitignore: %v", err)
	}
	if err := updateGitignore(dir); err != nil {
		t.Fatalf("second updateGitignore: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	if !strings.HasPrefix(got, "node_modules/\n") {
		t.Errorf("existing entries should be kept:\n%s", got)
	}
	for _, entry := range []string{".sandpit/work/", ".sandpit/sandpit.log", ".sandpit/sandpit.lock"} {
		if n := strings.Count(got, entry); n != 1 {
			t.Errorf("%s appears %d times:\n%s", entry, n, got)
		}
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"plain", fmt.Errorf("boom"), 1},
		{"explicit", exitCodeError{code: 3}, 3},
		{"install", fmt.Errorf("run: %w", &sandbox.InstallError{ExitCode: 127}), 127},
		{"install without code", &sandbox.InstallError{ExitCode: -1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNewLines(t *testing.T) {
	tests := []struct {
		name       string
		prev, next []string
		want       []string
	}{
		{"first", nil, []string{"a", "b"}, []string{"a", "b"}},
		{"appended", []string{"a", "b"}, []string{"a", "b", "c"}, []string{"c"}},
		{"unchanged", []string{"a", "b"}, []string{"a", "b"}, []string{}},
		{"rolled", []string{"a", "b", "c"}, []string{"b", "c", "d"}, []string{"d"}},
		{"reset", []string{"a", "b"}, []string{"x"}, []string{"x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newLines(tt.prev, tt.next)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("newLines = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewLoggerRejectsBadLevel(t *testing.T) {
	if _, err := newLogger(&bytes.Buffer{}, "loud", false); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestStateLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "info", false)
	if err != nil {
		t.Fatal(err)
	}
	settled := make(chan sandbox.State, 1)
	report := stateLogger(logger, settled)

	report(sandbox.State{Step: sandbox.StepInstalling, StatusMessage: "Installing dependencies", TerminalOutput: []string{"$ npm install"}})
	report(sandbox.State{Step: sandbox.StepReady, StatusMessage: "Development server ready", PreviewURL: "http://localhost:5173", TerminalOutput: []string{"$ npm install", "done"}})

	select {
	case st := <-settled:
		if st.Step != sandbox.StepReady {
			t.Errorf("settled step = %s, want ready", st.Step)
		}
	default:
		t.Fatal("ready state was not reported as settled")
	}

	out := buf.String()
	for _, want := range []string{"Installing dependencies", "$ npm install", "done", "http://localhost:5173"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}
	if n := strings.Count(out, "$ npm install"); n != 1 {
		t.Errorf("terminal line logged %d times:\n%s", n, out)
	}
}

func TestOpenSessionRejectsBadCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Config{Project: "demo"}
	cfg.Commands.Dev = `npm run "dev`
	if err := config.Save(dir, &cfg); err != nil {
		t.Fatal(err)
	}

	_, err := openSession(dir, &runFlags{headless: true, logLevel: "info"})
	if err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Fatalf("openSession error = %v, want invalid config", err)
	}

	// The project lock is never taken for a config that cannot run.
	lock := flock.New(filepath.Join(dir, config.Dir, config.LockFile))
	locked, err := lock.TryLock()
	if err != nil || !locked {
		t.Fatalf("lock should be free: locked=%v err=%v", locked, err)
	}
	_ = lock.Unlock()
}

func TestOpenSessionWithoutConfig(t *testing.T) {
	_, err := openSession(t.TempDir(), &runFlags{headless: true})
	if err == nil || !strings.Contains(err.Error(), "sandpit init") {
		t.Fatalf("openSession error = %v, want init hint", err)
	}
}
