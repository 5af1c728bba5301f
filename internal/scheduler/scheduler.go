// Package scheduler implements a batch-at-a-time frame dispatch model: a
// fixed pool of worker goroutines, each pulling one frame at a time (the
// scheduler does not bound a frame's size) and running it through a
// single engine's ProcessFrame, straight-line, with no blocking or yielding inside a
// packet's processing. One span is emitted per dispatched frame via
// OpenTelemetry — batch-level tracing, never per-packet, since
// per-packet spans on a line-rate path would be its own anti-pattern.
package scheduler

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/your-org/srv6-gtp-dataplane/common/buffer"
)

// Verdict mirrors engine.Verdict without importing the engine package,
// so this package stays usable by the GSO engine too (whose "verdict"
// is a slice of children rather than a next-hop symbol).
type Verdict int

// Frame is a fixed-capacity batch of buffer handles dispatched together.
type Frame struct {
	Buffers []*buffer.Buffer
}

// Engine is the per-frame callable a worker repeatedly invokes: process
// one frame and return one verdict per buffer, in order, as opaque ints (the caller's
// engine package defines what the ints mean). Implementations must not
// block, suspend, or call back into the scheduler.
type Engine interface {
	Name() string
	ProcessFrame(ctx context.Context, f *Frame) []int
}

// Scheduler runs NumWorkers goroutines, each looping "pull a frame, run
// it through Engine, hand the result to Sink" until Stop is called.
// Multiple workers never share a frame or a buffer.
type Scheduler struct {
	Engine     Engine
	NumWorkers int
	Frames     <-chan *Frame
	Sink       func(frame *Frame, verdicts []int)

	tracer trace.Tracer
	logger *zap.Logger

	wg   sync.WaitGroup
	stop chan struct{}
}

// New builds a Scheduler. logger may be nil, in which case a no-op
// logger is used; fast-path code never logs per packet regardless, so
// logger is only used for worker start/stop events.
func New(eng Engine, numWorkers int, frames <-chan *Frame, sink func(*Frame, []int), logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if numWorkers <= 0 {
		numWorkers = 1
	}
	return &Scheduler{
		Engine:     eng,
		NumWorkers: numWorkers,
		Frames:     frames,
		Sink:       sink,
		tracer:     otel.Tracer("srv6dp/scheduler"),
		logger:     logger.Named("scheduler").With(zap.String("engine", eng.Name())),
		stop:       make(chan struct{}),
	}
}

// Run starts NumWorkers worker goroutines and blocks until ctx is
// canceled, Stop is called, or Frames is closed and drained.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler starting", zap.Int("workers", s.NumWorkers))
	for i := 0; i < s.NumWorkers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// Stop signals every worker to exit after its current frame.
func (s *Scheduler) Stop() {
	close(s.stop)
}

func (s *Scheduler) worker(ctx context.Context, id int) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case f, ok := <-s.Frames:
			if !ok {
				return
			}
			s.dispatch(ctx, id, f)
		}
	}
}

// dispatch runs one frame through the engine inside a single span,
// never suspending partway through. Per-frame attributes carry the
// frame size and worker id for batch-level observability.
func (s *Scheduler) dispatch(ctx context.Context, workerID int, f *Frame) {
	spanCtx, span := s.tracer.Start(ctx, "frame.dispatch",
		trace.WithAttributes(
			attribute.Int("frame.size", len(f.Buffers)),
			attribute.Int("worker.id", workerID),
			attribute.String("engine", s.Engine.Name()),
		),
	)
	defer span.End()

	verdicts := s.Engine.ProcessFrame(spanCtx, f)
	if s.Sink != nil {
		s.Sink(f, verdicts)
	}
}
