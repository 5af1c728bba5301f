package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/your-org/srv6-gtp-dataplane/common/buffer"
)

// countingEngine is a trivial Engine: it returns len(CurrentData) as each
// buffer's verdict and records how many frames it has seen.
type countingEngine struct {
	mu     sync.Mutex
	frames int
}

func (e *countingEngine) Name() string { return "counting" }

func (e *countingEngine) ProcessFrame(_ context.Context, f *Frame) []int {
	e.mu.Lock()
	e.frames++
	e.mu.Unlock()
	verdicts := make([]int, len(f.Buffers))
	for i, b := range f.Buffers {
		verdicts[i] = b.Len()
	}
	return verdicts
}

func TestSchedulerDispatchesEveryFrameToSink(t *testing.T) {
	eng := &countingEngine{}
	frames := make(chan *Frame, 2)

	var mu sync.Mutex
	var gotVerdicts [][]int
	sink := func(f *Frame, verdicts []int) {
		mu.Lock()
		defer mu.Unlock()
		gotVerdicts = append(gotVerdicts, verdicts)
	}

	sched := New(eng, 2, frames, sink, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	frames <- &Frame{Buffers: []*buffer.Buffer{buffer.New(0, make([]byte, 10))}}
	frames <- &Frame{Buffers: []*buffer.Buffer{buffer.New(0, make([]byte, 20)), buffer.New(0, make([]byte, 30))}}
	close(frames)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(gotVerdicts) == 2
	}, time.Second, time.Millisecond)

	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	total := 0
	for _, v := range gotVerdicts {
		total += len(v)
	}
	require.Equal(t, 3, total)
}

func TestSchedulerStopEndsWorkersWithoutDrainingChannel(t *testing.T) {
	eng := &countingEngine{}
	frames := make(chan *Frame)
	sched := New(eng, 1, frames, nil, nil)

	done := make(chan struct{})
	go func() {
		sched.Run(context.Background())
		close(done)
	}()

	sched.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestSchedulerDefaultsToOneWorkerWhenNonPositive(t *testing.T) {
	sched := New(&countingEngine{}, 0, make(chan *Frame), nil, nil)
	require.Equal(t, 1, sched.NumWorkers)
}
