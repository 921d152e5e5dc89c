package router

import (
	"context"
	"sync"

	"github.com/parleyhq/parley/pkg/message"
)

// DefaultWorkerCount bounds concurrent session processing when the
// config leaves worker_count unset.
const DefaultWorkerCount = 10

// envelope is one unit of router work: a session key and the inbound
// message addressed to it. It is what travels through the router inbox.
type envelope struct {
	Key     SessionKey
	Message message.InboundMessage
}

// handlerFunc processes one envelope. The pool calls it synchronously,
// so a slow handler occupies its worker until it returns.
type handlerFunc func(context.Context, envelope)

// WorkerPool fans the inbox out to a fixed number of goroutines.
type WorkerPool struct {
	workers int
	wg      sync.WaitGroup
}

// NewWorkerPool returns a pool of n workers, falling back to
// DefaultWorkerCount when n is zero or negative.
func NewWorkerPool(n int) *WorkerPool {
	if n <= 0 {
		n = DefaultWorkerCount
	}
	return &WorkerPool{workers: n}
}

// Start launches the workers. Each drains inbox until the channel is
// closed, passing every envelope to handler.
func (p *WorkerPool) Start(ctx context.Context, inbox <-chan envelope, handler handlerFunc) {
	p.wg.Add(p.workers)
	for range p.workers {
		go p.work(ctx, inbox, handler)
	}
}

func (p *WorkerPool) work(ctx context.Context, inbox <-chan envelope, handler handlerFunc) {
	defer p.wg.Done()
	for env := range inbox {
		handler(ctx, env)
	}
}

// Wait blocks until every worker has exited, which happens once the
// inbox is closed and drained.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}
