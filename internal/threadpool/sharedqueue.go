package threadpool

import (
	"sync"

	"go.uber.org/zap"
)

// SharedQueuePool runs n worker goroutines draining one shared, buffered
// job channel - the Go analogue of a lock-free MPMC queue feeding a bounded
// worker set. Jobs queued before Close is called are never lost: Close
// closes the channel, and the workers keep draining every job still
// buffered in it before they exit.
type SharedQueuePool struct {
	jobs   chan func()
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewSharedQueue creates a SharedQueuePool with n workers.
func NewSharedQueue(n int, logger *zap.Logger) *SharedQueuePool {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &SharedQueuePool{
		jobs:   make(chan func(), 256),
		logger: logger,
	}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *SharedQueuePool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		runJobSafely(p.logger, job)
	}
}

// Spawn enqueues job. It blocks only if the shared queue's buffer is full,
// never waiting for the job itself to run.
func (p *SharedQueuePool) Spawn(job func()) {
	p.jobs <- job
}

// Close closes the job queue and joins every worker once it has drained.
func (p *SharedQueuePool) Close() {
	close(p.jobs)
	p.wg.Wait()
}

var _ ThreadPool = (*SharedQueuePool)(nil)
