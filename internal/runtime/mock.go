package runtime

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/zpdzap/sandpit/internal/snapshot"
)

// MockRuntime is an in-memory Runtime for testing.
type MockRuntime struct {
	mu sync.Mutex

	// Files holds the sandbox filesystem.
	Files map[string][]byte

	// Scripts maps a command line ("npm install") to its behaviour.
	// Commands without a script exit 0 immediately with no output.
	Scripts map[string]MockScript

	// Errors injects failures: "Mount", "Spawn", "WriteFile", "Remove",
	// or an operation narrowed to one target such as "WriteFile:src/a.ts"
	// or "Spawn:npm run dev".
	Errors map[string]error

	// CallLog records all method calls for verification.
	CallLog []MockCall

	// Processes holds every spawned process in spawn order.
	Processes []*MockProcess

	listeners ReadyListeners
}

// MockCall represents a recorded method call.
type MockCall struct {
	Method string
	Args   []any
}

// MockScript describes how a spawned mock command behaves.
type MockScript struct {
	Output   []string
	ExitCode int
	// Block keeps the process running until it is killed or finished.
	Block bool
}

// NewMockRuntime creates an empty mock runtime.
func NewMockRuntime() *MockRuntime {
	return &MockRuntime{
		Files:   make(map[string][]byte),
		Scripts: make(map[string]MockScript),
		Errors:  make(map[string]error),
	}
}

// Boot returns a BootFunc that hands out m.
func (m *MockRuntime) Boot() BootFunc {
	return func(context.Context) (Runtime, error) { return m, nil }
}

func (m *MockRuntime) record(method string, args ...any) {
	m.CallLog = append(m.CallLog, MockCall{Method: method, Args: args})
}

func (m *MockRuntime) errFor(op, target string) error {
	if err, ok := m.Errors[op+":"+target]; ok {
		return err
	}
	return m.Errors[op]
}

// SetScript sets the behaviour of a command line.
func (m *MockRuntime) SetScript(cmdline string, s MockScript) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Scripts[cmdline] = s
}

// SetError injects an error for an operation; a nil err clears it.
func (m *MockRuntime) SetError(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.Errors, op)
		return
	}
	m.Errors[op] = err
}

// GetCalls returns all recorded calls.
func (m *MockRuntime) GetCalls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]MockCall, len(m.CallLog))
	copy(calls, m.CallLog)
	return calls
}

// GetCallsFor returns all calls for a specific method.
func (m *MockRuntime) GetCallsFor(method string) []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var calls []MockCall
	for _, call := range m.CallLog {
		if call.Method == method {
			calls = append(calls, call)
		}
	}
	return calls
}

// ResetCalls clears the call log, keeping files, scripts and errors.
func (m *MockRuntime) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallLog = nil
}

// ProcessesFor returns the processes spawned for cmdline.
func (m *MockRuntime) ProcessesFor(cmdline string) []*MockProcess {
	m.mu.Lock()
	defer m.mu.Unlock()
	var procs []*MockProcess
	for _, p := range m.Processes {
		if p.Command == cmdline {
			procs = append(procs, p)
		}
	}
	return procs
}

// File returns the content of a sandbox file.
func (m *MockRuntime) File(path string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.Files[path]
	return data, ok
}

// EmitServerReady fires a server-ready event to every listener.
func (m *MockRuntime) EmitServerReady(port int, url string) {
	m.listeners.Emit(port, url)
}

// ListenerCount returns the number of registered server-ready listeners.
func (m *MockRuntime) ListenerCount() int {
	return m.listeners.Len()
}

// Mount records the tree and stores its files.
func (m *MockRuntime) Mount(ctx context.Context, tree snapshot.Tree) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Mount", tree.Count())
	if err := m.errFor("Mount", ""); err != nil {
		return err
	}
	return tree.Walk(func(path string, data []byte) error {
		m.Files[path] = data
		return nil
	})
}

// WriteFile stores a file.
func (m *MockRuntime) WriteFile(ctx context.Context, path string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("WriteFile", path, string(content))
	if err := m.errFor("WriteFile", path); err != nil {
		return err
	}
	m.Files[path] = content
	return nil
}

// Remove deletes a file.
func (m *MockRuntime) Remove(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Remove", path)
	if err := m.errFor("Remove", path); err != nil {
		return err
	}
	delete(m.Files, path)
	return nil
}

// Spawn starts a scripted process.
func (m *MockRuntime) Spawn(ctx context.Context, command string, args ...string) (Process, error) {
	cmdline := strings.Join(append([]string{command}, args...), " ")

	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Spawn", cmdline)
	if err := m.errFor("Spawn", cmdline); err != nil {
		return nil, err
	}

	p := newMockProcess(cmdline, m.Scripts[cmdline])
	m.Processes = append(m.Processes, p)
	return p, nil
}

// OnServerReady registers a server-ready listener.
func (m *MockRuntime) OnServerReady(fn ReadyFunc) func() {
	return m.listeners.Add(fn)
}

// MockProcess is a process spawned by MockRuntime.
type MockProcess struct {
	Command string

	pr *io.PipeReader
	pw *io.PipeWriter

	done     chan struct{}
	killed   chan struct{}
	finish   chan int
	killOnce sync.Once
	code     int

	mu    sync.Mutex
	kills int
}

func newMockProcess(cmdline string, script MockScript) *MockProcess {
	pr, pw := io.Pipe()
	p := &MockProcess{
		Command: cmdline,
		pr:      pr,
		pw:      pw,
		done:    make(chan struct{}),
		killed:  make(chan struct{}),
		finish:  make(chan int, 1),
	}

	go func() {
		for _, line := range script.Output {
			if _, err := io.WriteString(pw, line+"\n"); err != nil {
				break
			}
		}
		code := script.ExitCode
		if script.Block {
			select {
			case <-p.killed:
				code = 143
			case code = <-p.finish:
			}
		}
		p.code = code
		pw.Close()
		close(p.done)
	}()
	return p
}

// Output returns the process output stream.
func (p *MockProcess) Output() io.Reader {
	return p.pr
}

// Wait blocks until the process exits.
func (p *MockProcess) Wait() (int, error) {
	<-p.done
	return p.code, nil
}

// Kill stops the process and waits for it to exit.
func (p *MockProcess) Kill() {
	p.mu.Lock()
	p.kills++
	p.mu.Unlock()

	p.killOnce.Do(func() {
		close(p.killed)
		p.pw.Close()
	})
	<-p.done
}

// Finish makes a blocking process exit on its own with code.
func (p *MockProcess) Finish(code int) {
	select {
	case p.finish <- code:
	default:
	}
}

// Kills returns how many times Kill was called.
func (p *MockProcess) Kills() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.kills
}

// Exited reports whether the process has exited.
func (p *MockProcess) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}
