package cache

import (
	"context"
	"errors"
	"sync"
)

// ErrSuperseded is the cancellation cause of a request replaced by a newer
// one in the same scope.
var ErrSuperseded = errors.New("superseded by a newer request")

// Latest cancels an in-flight request when a newer one starts for the same
// scope, so only the most recent lookup runs to completion.
type Latest struct {
	mu       sync.Mutex
	inflight map[string]*latestCall
}

type latestCall struct {
	cancel context.CancelCauseFunc
}

// NewLatest creates a Latest.
func NewLatest() *Latest {
	return &Latest{inflight: make(map[string]*latestCall)}
}

// Begin cancels any earlier request for scope with ErrSuperseded and returns
// a context for the new one. done must be called when the request finishes.
func (l *Latest) Begin(ctx context.Context, scope string) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)
	call := &latestCall{cancel: cancel}

	l.mu.Lock()
	if prev, ok := l.inflight[scope]; ok {
		prev.cancel(ErrSuperseded)
	}
	l.inflight[scope] = call
	l.mu.Unlock()

	return ctx, func() {
		l.mu.Lock()
		if l.inflight[scope] == call {
			delete(l.inflight, scope)
		}
		l.mu.Unlock()
		cancel(nil)
	}
}

// Superseded reports whether ctx was cancelled by a newer Begin.
func Superseded(ctx context.Context) bool {
	return ctx.Err() != nil && errors.Is(context.Cause(ctx), ErrSuperseded)
}

// InFlight returns how many scopes have a running request.
func (l *Latest) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.inflight)
}
