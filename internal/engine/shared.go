// Package engine implements the four SRv6<->GTP-U transformation engines:
// GTP4.E, GTP6.E, GTP6.D and GTP6.D.DI. Each engine's public contract is
// the same shape: take a buffer whose current pointer addresses the
// expected first header, rewrite it in place, and classify it to a
// Verdict.
package engine

import (
	"sync"
	"sync/atomic"
)

// Verdict is the symbolic next hop a buffer is classified to.
type Verdict int

const (
	VerdictDrop Verdict = iota
	VerdictLookupIPv4
	VerdictLookupIPv6
)

// Counters is the per-node PACKETS/BAD_PACKETS pair, plus a per-SID
// valid/invalid shard (§5: "sharded per thread; engines write only their
// own shard; the control plane sums shards when reporting"). It is a
// plain, dependency-free CounterSink, an alternative to internal/telemetry/
// metrics' Prometheus-backed sink. A caller can give each worker its own
// Counters and sum them when reporting; the counters are atomic and the
// SID map is mutex-guarded, so one Counters may also be shared.
type Counters struct {
	Packets    atomic.Uint64
	BadPackets atomic.Uint64

	mu  sync.Mutex
	sid map[uint32]*sidCounter
}

type sidCounter struct {
	valid, invalid atomic.Uint64
}

func (c *Counters) shard(adjIndex uint32) *sidCounter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sid == nil {
		c.sid = make(map[uint32]*sidCounter)
	}
	s, ok := c.sid[adjIndex]
	if !ok {
		s = &sidCounter{}
		c.sid[adjIndex] = s
	}
	return s
}

// BumpNode satisfies CounterSink.
func (c *Counters) BumpNode(good bool) {
	if good {
		c.Packets.Add(1)
	} else {
		c.BadPackets.Add(1)
	}
}

// BumpSID satisfies CounterSink.
func (c *Counters) BumpSID(adjIndex uint32, valid bool) {
	s := c.shard(adjIndex)
	if valid {
		s.valid.Add(1)
	} else {
		s.invalid.Add(1)
	}
}

// SIDCounts returns the valid/invalid counts recorded for one local SID.
func (c *Counters) SIDCounts(adjIndex uint32) (valid, invalid uint64) {
	s := c.shard(adjIndex)
	return s.valid.Load(), s.invalid.Load()
}

// CounterSink receives the per-SID valid/invalid bump and the per-node
// good/bad bump an engine makes for every packet it processes.
// FrameAdapter passes its one Sink to every buffer, so with several
// workers an implementation is called concurrently.
type CounterSink interface {
	BumpSID(adjIndex uint32, valid bool)
	BumpNode(good bool)
}

// TraceEmitter receives a TraceRecord for any buffer with FlagTrace set
// that completes a rewrite. A buffer that fails validation never emits
// a trace record — only successful rewrites trace.
type TraceEmitter interface {
	Emit(rec TraceRecord)
}

// TraceRecord captures enough of a completed rewrite to reconstruct what
// an engine did, for the optional telemetry sink.
type TraceRecord struct {
	Engine   string
	AdjIndex uint32
	TEID     uint32
	Src      [16]byte
	Dst      [16]byte
	IsIPv4   bool
	SrcV4    [4]byte
	DstV4    [4]byte
}

// noopSink discards all counter updates; useful for tests that only care
// about the rewritten bytes and verdict.
type noopSink struct{}

func (noopSink) BumpSID(uint32, bool) {}
func (noopSink) BumpNode(bool)        {}

// NoopSink is a CounterSink that discards every update.
var NoopSink CounterSink = noopSink{}
