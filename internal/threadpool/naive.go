package threadpool

import (
	"sync"

	"go.uber.org/zap"
)

// NaivePool spawns one goroutine per job - the simplest ThreadPool
// implementation spec section 4.8 names, with no bound on concurrency.
type NaivePool struct {
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewNaive creates a NaivePool. n is accepted for interface symmetry with
// the other variants but unused: every job gets its own goroutine.
func NewNaive(n int, logger *zap.Logger) *NaivePool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NaivePool{logger: logger}
}

func (p *NaivePool) Spawn(job func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		runJobSafely(p.logger, job)
	}()
}

// Close waits for every spawned job to finish. There are no standing
// workers to signal - each goroutine exits on its own after its job runs.
func (p *NaivePool) Close() {
	p.wg.Wait()
}

var _ ThreadPool = (*NaivePool)(nil)
