package cli

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Shutdown is a context cancelled by the first termination signal. A second
// signal closes Forced so a draining server can be stopped hard.
type Shutdown struct {
	context.Context

	cancel  context.CancelFunc
	forced  chan struct{}
	stopped chan struct{}
	once    sync.Once

	mu  sync.Mutex
	sig os.Signal
}

// WatchSignals returns a Shutdown listening for sigs, SIGINT and SIGTERM by default.
func WatchSignals(parent context.Context, sigs ...os.Signal) *Shutdown {
	if len(sigs) == 0 {
		sigs = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	ctx, cancel := context.WithCancel(parent)
	s := &Shutdown{
		Context: ctx,
		cancel:  cancel,
		forced:  make(chan struct{}),
		stopped: make(chan struct{}),
	}

	ch := make(chan os.Signal, 2)
	signal.Notify(ch, sigs...)
	go s.watch(ch)
	return s
}

func (s *Shutdown) watch(ch chan os.Signal) {
	defer signal.Stop(ch)

	select {
	case sig := <-ch:
		s.mu.Lock()
		s.sig = sig
		s.mu.Unlock()
		s.cancel()
	case <-s.Done():
	}

	select {
	case <-ch:
		close(s.forced)
	case <-s.stopped:
	}
}

// Signal returns the signal that cancelled the context, or nil.
func (s *Shutdown) Signal() os.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sig
}

// Forced is closed when a second signal arrives.
func (s *Shutdown) Forced() <-chan struct{} {
	return s.forced
}

// Stop cancels the context and releases the signal handler.
func (s *Shutdown) Stop() {
	s.once.Do(func() {
		s.cancel()
		close(s.stopped)
	})
}
