package runtime

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"
)

// ReadyListeners is a set of server-ready callbacks. Emit calls them outside
// the lock, so a callback may unsubscribe itself.
type ReadyListeners struct {
	mu   sync.Mutex
	next int
	fns  map[int]ReadyFunc
}

// Add registers fn and returns its unsubscribe function.
func (l *ReadyListeners) Add(fn ReadyFunc) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]ReadyFunc)
	}
	id := l.next
	l.next++
	l.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.fns, id)
			l.mu.Unlock()
		})
	}
}

// Len returns the number of registered callbacks.
func (l *ReadyListeners) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fns)
}

// Emit calls every registered callback in registration order.
func (l *ReadyListeners) Emit(port int, url string) {
	l.mu.Lock()
	ids := make([]int, 0, len(l.fns))
	for id := range l.fns {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]ReadyFunc, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, l.fns[id])
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(port, url)
	}
}

// ProbeFunc checks whether a sandbox port accepts connections and returns
// the URL it is reachable at from the host.
type ProbeFunc func(port int) (url string, ok bool)

// TCPProbe dials host at the port returned by mapPort (identity when nil).
func TCPProbe(host string, mapPort func(port int) (int, bool)) ProbeFunc {
	return func(port int) (string, bool) {
		hostPort := port
		if mapPort != nil {
			p, ok := mapPort(port)
			if !ok {
				return "", false
			}
			hostPort = p
		}
		addr := net.JoinHostPort(host, strconv.Itoa(hostPort))
		conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
		if err != nil {
			return "", false
		}
		conn.Close()
		return fmt.Sprintf("http://%s:%d", host, hostPort), true
	}
}

// PortWatcher turns "port started accepting connections" into server-ready
// events. Each closed-to-open transition of a watched port emits once.
type PortWatcher struct {
	ports     []int
	probe     ProbeFunc
	interval  time.Duration
	listeners ReadyListeners

	mu   sync.Mutex
	open map[int]bool
}

// NewPortWatcher watches ports using probe, polling every interval.
func NewPortWatcher(ports []int, probe ProbeFunc, interval time.Duration) *PortWatcher {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &PortWatcher{
		ports:    ports,
		probe:    probe,
		interval: interval,
		open:     make(map[int]bool),
	}
}

// OnServerReady registers fn for server-ready events.
func (w *PortWatcher) OnServerReady(fn ReadyFunc) func() {
	return w.listeners.Add(fn)
}

// Reset forgets which ports were open, so the next successful probe of each
// port emits again. Backends call it when spawning a process.
func (w *PortWatcher) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	clear(w.open)
}

// Poll probes every port once and emits for ports that just opened.
func (w *PortWatcher) Poll() {
	type ready struct {
		port int
		url  string
	}
	var fired []ready

	for _, port := range w.ports {
		url, ok := w.probe(port)
		w.mu.Lock()
		was := w.open[port]
		w.open[port] = ok
		w.mu.Unlock()
		if ok && !was {
			fired = append(fired, ready{port, url})
		}
	}

	for _, r := range fired {
		w.listeners.Emit(r.port, r.url)
	}
}

// Run polls until ctx is done.
func (w *PortWatcher) Run(ctx context.Context) {
	if len(w.ports) == 0 {
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Poll()
		}
	}
}
