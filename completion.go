package telehash

import (
	"context"
	"sync"
)

// CompletionHandler is notified when a line becomes established. Handlers
// queued on a line that closes first are never called.
type CompletionHandler interface {
	Completed(l *Line, attachment interface{})
}

// CompletionHandlerFunc adapts a function to CompletionHandler.
type CompletionHandlerFunc func(l *Line, attachment interface{})

func (f CompletionHandlerFunc) Completed(l *Line, attachment interface{}) { f(l, attachment) }

type completion struct {
	handler    CompletionHandler
	attachment interface{}
}

// OpenFuture resolves once: with the line when it becomes established, or
// with an error when it closes (or fails to open) first.
type OpenFuture struct {
	done chan struct{}
	once sync.Once
	line *Line
	err  error
}

func newOpenFuture() *OpenFuture {
	return &OpenFuture{done: make(chan struct{})}
}

func failedOpenFuture(err error) *OpenFuture {
	f := newOpenFuture()
	f.resolve(nil, err)
	return f
}

func (f *OpenFuture) resolve(l *Line, err error) {
	f.once.Do(func() {
		f.line = l
		f.err = err
		close(f.done)
	})
}

// Done is closed when the future is resolved.
func (f *OpenFuture) Done() <-chan struct{} {
	return f.done
}

// Line returns the established line or nil.
func (f *OpenFuture) Line() *Line {
	select {
	case <-f.done:
		return f.line
	default:
		return nil
	}
}

// Err returns the reason the line failed to open or nil.
func (f *OpenFuture) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Wait blocks until the future is resolved or ctx is done.
func (f *OpenFuture) Wait(ctx context.Context) (*Line, error) {
	select {
	case <-f.done:
		return f.line, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
