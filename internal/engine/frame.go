package engine

import (
	"context"

	"github.com/your-org/srv6-gtp-dataplane/common/buffer"
	"github.com/your-org/srv6-gtp-dataplane/internal/scheduler"
)

// rewriter is the common shape of the four SRv6<->GTP-U transform
// engines' per-buffer entry point, letting one FrameAdapter drive any of
// them from the scheduler: the frame-level plumbing around them is
// identical, only the per-buffer rewrite differs.
type rewriter interface {
	Process(b *buffer.Buffer, sink CounterSink, trace TraceEmitter) Verdict
}

// FrameAdapter wraps one of GTP4E/GTP6E/GTP6D/GTP6DDI as a
// scheduler.Engine: it walks a frame's buffers in order, running each one through
// the wrapped engine straight-line with no suspension.
type FrameAdapter struct {
	EngineName string
	Rewriter   rewriter
	Sink       CounterSink
	Trace      TraceEmitter
}

func (a *FrameAdapter) Name() string { return a.EngineName }

// ProcessFrame satisfies scheduler.Engine. ctx is accepted for the span
// the scheduler already opened around the call; the engines themselves
// take no context, since they never block.
func (a *FrameAdapter) ProcessFrame(_ context.Context, f *scheduler.Frame) []int {
	verdicts := make([]int, len(f.Buffers))
	for i, b := range f.Buffers {
		verdicts[i] = int(a.Rewriter.Process(b, a.Sink, a.Trace))
	}
	return verdicts
}

// GSOFrameAdapter wraps GSO as a scheduler.Engine. Unlike the four
// transform engines, a GSO verdict is "how many children this parent
// produced" (0 meaning the parent was dropped for lack of buffers); the
// scheduler's Sink callback is responsible for actually enqueuing
// the adapter's Children and freeing the parent, since that needs the host
// allocator GSO itself only borrows.
type GSOFrameAdapter struct {
	GSO       *GSO
	Alloc     BufferAllocator
	ErrSink   GSOCounterSink
	Children  [][]*buffer.Buffer // indexed in parallel with the last ProcessFrame's input
}

func (a *GSOFrameAdapter) Name() string { return "GSO" }

func (a *GSOFrameAdapter) ProcessFrame(_ context.Context, f *scheduler.Frame) []int {
	verdicts := make([]int, len(f.Buffers))
	a.Children = make([][]*buffer.Buffer, len(f.Buffers))
	for i, b := range f.Buffers {
		children := a.GSO.Process(b, a.Alloc, a.ErrSink)
		a.Children[i] = children
		verdicts[i] = len(children)
	}
	return verdicts
}
