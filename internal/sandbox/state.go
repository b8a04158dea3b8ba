package sandbox

import (
	"sort"
	"sync"
)

// observers fans state changes out to subscribers. Callbacks run outside
// any lock and may call back into the Manager.
type observers struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]func(State)
}

func (o *observers) add(fn func(State)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fns == nil {
		o.fns = make(map[int]func(State))
	}
	id := o.nextID
	o.nextID++
	o.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.fns, id)
			o.mu.Unlock()
		})
	}
}

func (o *observers) snapshot() []func(State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]int, 0, len(o.fns))
	for id := range o.fns {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(State), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, o.fns[id])
	}
	return fns
}

// Subscribe calls fn with a copy of the state after every change. Events
// from concurrent sources may arrive out of order; callers that only render
// the latest state can re-read it with State.
func (m *Manager) Subscribe(fn func(State)) (cancel func()) {
	return m.observers.add(fn)
}

// State returns a copy of the current observable state.
func (m *Manager) State() State {
	m.mu.Lock()
	s := m.state.clone()
	m.mu.Unlock()
	s.TerminalOutput = m.term.Lines()
	return s
}

func (m *Manager) notify() {
	s := m.State()
	for _, fn := range m.observers.snapshot() {
		fn(s)
	}
}

// update mutates the state under the lock and notifies observers.
func (m *Manager) update(fn func(s *State)) {
	m.mu.Lock()
	fn(&m.state)
	m.mu.Unlock()
	m.notify()
}

// logLine appends a line to the terminal log and notifies observers.
func (m *Manager) logLine(line string) {
	if m.term.Append(line) > 0 {
		m.notify()
	}
}
