// Package workerpool runs functions on a fixed number of goroutines.
package workerpool

import (
	"sync"
)

// WorkerPool runs submitted functions on a fixed set of workers. Its queue is
// unbounded so Go never blocks the caller.
type WorkerPool struct {
	mtx     sync.Mutex
	cond    *sync.Cond
	queue   []func()
	closed  bool
	workers sync.WaitGroup
}

// New returns a WorkerPool with the given number of workers.
func New(numWorkers int) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	p := &WorkerPool{}
	p.cond = sync.NewCond(&p.mtx)
	p.workers.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go p.work()
	}
	return p
}

func (p *WorkerPool) work() {
	defer p.workers.Done()
	for {
		p.mtx.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mtx.Unlock()
			return
		}
		fn := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.mtx.Unlock()
		fn()
	}
}

// Go queues fn to run on a worker. It panics if called after Wait.
func (p *WorkerPool) Go(fn func()) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if p.closed {
		panic("workerpool: Go called after Wait")
	}
	p.queue = append(p.queue, fn)
	p.cond.Signal()
}

// Len returns the number of queued functions not yet picked up by a worker.
func (p *WorkerPool) Len() int {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return len(p.queue)
}

// Wait stops accepting work and blocks until every queued function has run.
// It panics if called more than once.
func (p *WorkerPool) Wait() {
	p.mtx.Lock()
	if p.closed {
		p.mtx.Unlock()
		panic("workerpool: Wait called twice")
	}
	p.closed = true
	p.cond.Broadcast()
	p.mtx.Unlock()
	p.workers.Wait()
}
