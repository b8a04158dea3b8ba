package runtime

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"
)

// Shared hands out one booted runtime to any number of holders. Booting is
// expensive, so the first Acquire boots and later ones reuse the result;
// concurrent first acquires share a single boot.
type Shared struct {
	boot            BootFunc
	disposeWhenIdle bool
	logger          *log.Logger

	group singleflight.Group

	mu     sync.Mutex
	rt     Runtime
	refs   int
	closed bool
}

// SharedOption configures a Shared handle.
type SharedOption func(*Shared)

// DisposeWhenIdle closes the runtime as soon as the last holder releases it.
func DisposeWhenIdle() SharedOption {
	return func(s *Shared) { s.disposeWhenIdle = true }
}

// WithLogger sets the logger used for boot and dispose events.
func WithLogger(l *log.Logger) SharedOption {
	return func(s *Shared) { s.logger = l }
}

// NewShared returns a handle that boots with boot on first use.
func NewShared(boot BootFunc, opts ...SharedOption) *Shared {
	s := &Shared{boot: boot, logger: log.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Acquire returns the shared runtime, booting it if needed. Every successful
// Acquire must be paired with a Release.
func (s *Shared) Acquire(ctx context.Context) (Runtime, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.rt != nil {
		s.refs++
		rt := s.rt
		s.mu.Unlock()
		return rt, nil
	}
	s.mu.Unlock()

	v, err, _ := s.group.Do("boot", func() (any, error) {
		s.mu.Lock()
		if s.rt != nil {
			rt := s.rt
			s.mu.Unlock()
			return rt, nil
		}
		s.mu.Unlock()

		s.logger.Debug("booting runtime")
		rt, err := s.boot(ctx)
		if err != nil {
			return nil, fmt.Errorf("booting runtime: %w", err)
		}
		s.logger.Info("runtime booted")

		s.mu.Lock()
		s.rt = rt
		s.mu.Unlock()
		return rt, nil
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	s.refs++
	return v.(Runtime), nil
}

// Release gives back one reference obtained from Acquire.
func (s *Shared) Release() {
	s.mu.Lock()
	if s.refs > 0 {
		s.refs--
	}
	var idle Runtime
	if s.refs == 0 && s.disposeWhenIdle && s.rt != nil {
		idle = s.rt
		s.rt = nil
	}
	s.mu.Unlock()

	if idle != nil {
		if err := dispose(idle); err != nil {
			s.logger.Warn("disposing idle runtime", "err", err)
		}
	}
}

// Refs returns the number of outstanding references.
func (s *Shared) Refs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs
}

// Booted reports whether a runtime is currently held.
func (s *Shared) Booted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rt != nil
}

// Close disposes the runtime regardless of outstanding references. Later
// acquires fail with ErrClosed.
func (s *Shared) Close() error {
	s.mu.Lock()
	s.closed = true
	rt := s.rt
	s.rt = nil
	s.refs = 0
	s.mu.Unlock()

	if rt == nil {
		return nil
	}
	return dispose(rt)
}

func dispose(rt Runtime) error {
	if c, ok := rt.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
