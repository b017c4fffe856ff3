package threadpool

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNaivePoolRunsEveryJob(t *testing.T) {
	p := NewNaive(4, zaptest.NewLogger(t))
	var n atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		p.Spawn(func() {
			defer wg.Done()
			n.Add(1)
		})
	}
	wg.Wait()
	p.Close()
	require.EqualValues(t, 50, n.Load())
}

func TestNaivePoolJobPanicDoesNotKillOthers(t *testing.T) {
	p := NewNaive(4, zaptest.NewLogger(t))
	var ran atomic.Bool
	var wg sync.WaitGroup

	wg.Add(1)
	p.Spawn(func() {
		defer wg.Done()
		panic("boom")
	})
	wg.Add(1)
	p.Spawn(func() {
		defer wg.Done()
		ran.Store(true)
	})
	wg.Wait()
	p.Close()
	require.True(t, ran.Load())
}

func TestSharedQueuePoolRunsEveryJob(t *testing.T) {
	p := NewSharedQueue(4, zaptest.NewLogger(t))
	var n atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		p.Spawn(func() {
			defer wg.Done()
			n.Add(1)
		})
	}
	wg.Wait()
	p.Close()
	require.EqualValues(t, 100, n.Load())
}

func TestDelegatedPoolBoundsConcurrency(t *testing.T) {
	p := NewDelegated(2, zaptest.NewLogger(t))
	var cur, maxSeen atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		p.Spawn(func() {
			defer wg.Done()
			n := cur.Add(1)
			for {
				m := maxSeen.Load()
				if n <= m || maxSeen.CompareAndSwap(m, n) {
					break
				}
			}
			cur.Add(-1)
		})
	}
	wg.Wait()
	p.Close()
	require.LessOrEqual(t, maxSeen.Load(), int64(2))
}
