package threadpool

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// DelegatedPool is the "delegated external library pool" collaborator spec
// section 4.8/6 names - in the source project this wrapped rayon's work-
// stealing pool. No work-stealing pool library appears in the retrieved
// corpus, but golang.org/x/sync (already pulled in transitively by the
// teacher's hashicorp dependency closure) ships a weighted semaphore built
// for exactly this bounded-concurrency-over-goroutines pattern, so this
// variant delegates admission control to it rather than hand-rolling a
// worker/queue pair like SharedQueuePool does.
type DelegatedPool struct {
	sem    *semaphore.Weighted
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewDelegated creates a DelegatedPool allowing at most n jobs to run
// concurrently; further Spawn calls block until a slot frees up.
func NewDelegated(n int, logger *zap.Logger) *DelegatedPool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if n <= 0 {
		n = 1
	}
	return &DelegatedPool{sem: semaphore.NewWeighted(int64(n)), logger: logger}
}

// Spawn blocks until a concurrency slot is free, then runs job on its own
// goroutine.
func (p *DelegatedPool) Spawn(job func()) {
	_ = p.sem.Acquire(context.Background(), 1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		runJobSafely(p.logger, job)
	}()
}

func (p *DelegatedPool) Close() {
	p.wg.Wait()
}

var _ ThreadPool = (*DelegatedPool)(nil)
