package events

import (
	"sync"
)

// workerPool runs jobs on a fixed number of workers with no internal queue.
// TryPost rejects when every worker is busy; that rejection is the
// backpressure mechanism for outbound I/O.
type workerPool struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

func newWorkerPool(size int) *workerPool {
	return &workerPool{sem: make(chan struct{}, size)}
}

// TryPost runs job on a free worker. Returns false without running anything
// when all workers are busy.
func (p *workerPool) TryPost(job func()) bool {
	select {
	case p.sem <- struct{}{}:
	default:
		return false
	}
	p.wg.Add(1)
	go func() {
		defer func() {
			<-p.sem
			p.wg.Done()
		}()
		job()
	}()
	return true
}

// Wait blocks until all outstanding jobs finish.
func (p *workerPool) Wait() {
	p.wg.Wait()
}
