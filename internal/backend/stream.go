package backend

import (
	"context"
	"io"
	"sync"
)

type fragmentStream struct {
	ctx    context.Context
	cancel context.CancelFunc
	frags  <-chan Fragment

	mu       sync.Mutex
	runErr   error
	finished bool
}

// newFragmentStream runs the producer in a goroutine and exposes its
// output as a Stream. The producer must honor ctx so Close releases the
// underlying connection promptly. An error returned by the producer is
// delivered after any fragments it already emitted, classified for the
// given backend.
func newFragmentStream(ctx context.Context, id ID, run func(context.Context, chan<- Fragment) error) Stream {
	streamCtx, cancel := context.WithCancel(ctx)
	ch := make(chan Fragment, 16)
	s := &fragmentStream{ctx: streamCtx, cancel: cancel, frags: ch}
	go func() {
		defer close(ch)
		if err := run(streamCtx, ch); err != nil {
			s.mu.Lock()
			s.runErr = WrapErr(id, StageTransport, "backend call failed", err)
			s.mu.Unlock()
		}
	}()
	return s
}

func (s *fragmentStream) Recv() (Fragment, error) {
	// Non-blocking drain: consume any buffered fragment before checking
	// ctx.Done() so a cancelled consumer still sees fragments that were
	// produced before cancellation.
	select {
	case frag, ok := <-s.frags:
		if !ok {
			return Fragment{}, s.done()
		}
		return frag, nil
	default:
	}

	select {
	case <-s.ctx.Done():
		return Fragment{}, s.ctx.Err()
	case frag, ok := <-s.frags:
		if !ok {
			return Fragment{}, s.done()
		}
		return frag, nil
	}
}

func (s *fragmentStream) done() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runErr != nil && !s.finished {
		s.finished = true
		return s.runErr
	}
	return io.EOF
}

func (s *fragmentStream) Close() error {
	s.cancel()
	return nil
}

// emit sends a fragment unless the stream context has been cancelled.
func emit(ctx context.Context, ch chan<- Fragment, frag Fragment) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case ch <- frag:
		return nil
	}
}
