// Package tasks is the engine-owned registry for background work (uploads,
// downloads, history writes, the poll loop). Work outlives the caller that
// triggered it but never the Group: Shutdown drains running tasks and
// cancels whatever is still running when its context expires.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dmitrijs2005/cloudchat/internal/logging"
	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned by Go/GoLimited after Shutdown has begun.
var ErrClosed = errors.New("task group is shut down")

// Group runs named background tasks under one cancellable context.
type Group struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger logging.Logger

	// transfers bounds tasks started with GoLimited.
	transfers *semaphore.Weighted

	mu      sync.Mutex
	closed  bool
	wg      sync.WaitGroup
	running atomic.Int64
}

// New creates a Group. maxTransfers <= 0 means one transfer at a time.
func New(logger logging.Logger, maxTransfers int64) *Group {
	if maxTransfers <= 0 {
		maxTransfers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Group{
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
		transfers: semaphore.NewWeighted(maxTransfers),
	}
}

// Context is cancelled when the group is force-stopped.
func (g *Group) Context() context.Context {
	return g.ctx
}

// Go starts fn in its own goroutine.
func (g *Group) Go(name string, fn func(ctx context.Context)) error {
	return g.start(name, false, fn)
}

// GoLimited is Go for network transfers: fn waits for a transfer slot first.
func (g *Group) GoLimited(name string, fn func(ctx context.Context)) error {
	return g.start(name, true, fn)
}

func (g *Group) start(name string, limited bool, fn func(ctx context.Context)) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrClosed
	}

	g.wg.Add(1)
	g.running.Add(1)
	go func() {
		defer g.wg.Done()
		defer g.running.Add(-1)
		defer func() {
			if p := recover(); p != nil {
				g.logger.Error(g.ctx, "background task panicked", "task", name, "panic", fmt.Sprint(p))
			}
		}()

		if limited {
			if err := g.transfers.Acquire(g.ctx, 1); err != nil {
				return
			}
			defer g.transfers.Release(1)
		}
		fn(g.ctx)
	}()
	return nil
}

// Running returns the number of tasks that have not finished yet.
func (g *Group) Running() int {
	return int(g.running.Load())
}

// Shutdown stops accepting work and waits for running tasks. If ctx ends
// first, the group context is cancelled and Shutdown waits for tasks to
// observe it, then returns ctx.Err().
func (g *Group) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		g.cancel()
		return nil
	case <-ctx.Done():
		g.cancel()
		<-done
		return ctx.Err()
	}
}
