package engine

import (
	"encoding/binary"
	"fmt"

	"github.com/your-org/srv6-gtp-dataplane/common/buffer"
	"github.com/your-org/srv6-gtp-dataplane/internal/wire"
)

// gsoMaxIterations bounds the payload-copy loop. Exceeding
// it means the header template or chain length is corrupt, not that the
// packet is merely large; the guard aborts rather than spin.
const gsoMaxIterations = 2000

// BufferAllocator is the host collaborator GSO uses to acquire child
// buffers. It is the one place in this module's fast path that
// allocates; every other engine
// only advances/retreats into existing headroom.
type BufferAllocator interface {
	// Alloc returns a zeroed buffer with headroom bytes of reserved
	// prepend space and dataCap bytes of usable length, or nil if the
	// host is out of buffers.
	Alloc(headroom, dataCap int) *buffer.Buffer
	// Free returns b to the host allocator.
	Free(b *buffer.Buffer)
}

// GSOCounterSink receives the interface-level error bump GSO makes when
// it cannot allocate enough children for a segmentation
// (NO_BUFFERS_FOR_GSO, an interface counter rather than a per-SID one).
type GSOCounterSink interface {
	BumpNoBuffersForGSO()
}

// GSO implements Generic Segmentation Offload: it splits one
// oversized TCP segment into a train of MTU-sized children, re-deriving
// TCP sequence numbers and FIN/PSH placement across the train and fixing
// up each child's IP length field.
type GSO struct {
	// BufferDataCap is the data-room capacity of a single buffer the
	// host allocator hands back; it bounds how much header-plus-payload
	// a child buffer can carry.
	BufferDataCap int
}

// chainCursor walks forward through a buffer chain's linked fragments,
// streaming payload from the parent's linked chain and draining bytes
// as each source fragment is exhausted.
type chainCursor struct {
	frag *buffer.Buffer
	off  int
}

func (c *chainCursor) read(n int) []byte {
	out := make([]byte, 0, n)
	for n > 0 && c.frag != nil {
		data := c.frag.CurrentData()
		avail := len(data) - c.off
		if avail <= 0 {
			c.frag = c.frag.Next()
			c.off = 0
			continue
		}
		take := avail
		if take > n {
			take = n
		}
		out = append(out, data[c.off:c.off+take]...)
		c.off += take
		n -= take
	}
	return out
}

// Segment rewrites parent (a buffer flagged GSO-present) into a
// chain of child buffers. On success it returns the children in wire
// order and the total payload bytes emitted; the caller enqueues the
// children downstream and frees parent. On allocator
// exhaustion it returns ok=false, having freed any buffers it had
// already allocated; the caller then drops parent and bumps
// NO_BUFFERS_FOR_GSO instead of calling this again.
func (g *GSO) Segment(parent *buffer.Buffer, alloc BufferAllocator) (children []*buffer.Buffer, payloadBytes int, ok bool) {
	l2 := parent.L2Offset
	l234sz := parent.L4Offset + parent.L4HdrSize - l2
	if l234sz <= 0 || l234sz > parent.Len() {
		return nil, 0, false
	}
	l3rel := parent.L3Offset - l2
	l4rel := parent.L4Offset - l2

	originalSeq := parent.TCPSeq
	originalFlags := parent.TCPFlags
	tailFlags := originalFlags
	bodyFlags := originalFlags &^ (wire.TCPFlagFIN | wire.TCPFlagPSH)

	// Zero the original TCP checksum once, on the parent, before any
	// child is derived from it — the first child clones these bytes
	// directly, so the zeroed checksum carries forward for free.
	zeroTCPChecksum(parent.CurrentData(), l4rel)
	hdrTemplate := append([]byte(nil), parent.CurrentData()[:l234sz]...)

	chainLen := parent.ChainLen()
	totalBody := chainLen - l234sz
	if totalBody < 0 {
		return nil, 0, false
	}

	bufCap := g.BufferDataCap - l234sz
	if bufCap <= 0 {
		return nil, 0, false
	}
	perChild := bufCap
	if gsoSize := int(parent.GSOSize); gsoSize > 0 && gsoSize < perChild {
		perChild = gsoSize
	}

	firstData := perChild
	if remain := parent.Len() - l234sz; remain < firstData {
		firstData = remain
	}
	if firstData < 0 {
		firstData = 0
	}

	numChildren := 1
	if totalBody > firstData {
		numChildren += (totalBody - firstData + perChild - 1) / perChild
	}

	// built is kept apart from the named result: a failing `return nil,
	// ...` clears children before the deferred free runs.
	built := make([]*buffer.Buffer, 0, numChildren)
	ok = false
	defer func() {
		if !ok {
			for _, c := range built {
				alloc.Free(c)
			}
		}
	}()

	// Step 5: seed the first child by cloning the parent's own
	// current_data — not a fresh allocation — carrying its flags
	// (minus GSO/next-present), opaque metadata and trace handle along.
	first := parent.Clone(buffer.DefaultHeadroom, l234sz+firstData)
	first.L2Offset, first.L3Offset, first.L4Offset, first.L4HdrSize = 0, l3rel, l4rel, parent.L4HdrSize
	first.TCPSeq = originalSeq
	built = append(built, first)
	emitted := firstData

	cur := &chainCursor{frag: parent, off: l234sz + firstData}
	iterations := 0
	for emitted < totalBody {
		iterations++
		if iterations > gsoMaxIterations {
			panic(fmt.Sprintf("engine: GSO payload-copy loop exceeded %d iterations, header template corrupt", gsoMaxIterations))
		}

		want := perChild
		if totalBody-emitted < want {
			want = totalBody - emitted
		}

		child := alloc.Alloc(buffer.DefaultHeadroom, l234sz+want)
		if child == nil {
			return nil, 0, false
		}
		out := child.CurrentData()
		copy(out[:l234sz], hdrTemplate)
		payload := cur.read(want)
		copy(out[l234sz:l234sz+len(payload)], payload)
		if err := child.Truncate(l234sz + len(payload)); err != nil {
			alloc.Free(child)
			return nil, 0, false
		}

		child.AdjIndex, child.SwIfIndex = parent.AdjIndex, parent.SwIfIndex
		child.Flags = parent.Flags &^ (buffer.FlagGSO | buffer.FlagNextPresent)
		child.L2Offset, child.L3Offset, child.L4Offset, child.L4HdrSize = 0, l3rel, l4rel, parent.L4HdrSize
		child.IsIPv6 = parent.IsIPv6
		child.Opaque = parent.Opaque
		child.TCPSeq = originalSeq + uint32(emitted)

		built = append(built, child)
		emitted += len(payload)
	}

	// Steps 7-8: per-child TCP flags (tail keeps FIN/PSH, the rest
	// don't) and IP length fixup, now that every child's final size is
	// known.
	for i, c := range built {
		if i == len(built)-1 {
			c.TCPFlags = tailFlags
		} else {
			c.TCPFlags = bodyFlags
		}
		writeTCPFlags(c.CurrentData(), l4rel, c.TCPFlags)
		writeTCPSeq(c.CurrentData(), l4rel, c.TCPSeq)
		fixupIPLength(c.CurrentData(), l3rel, c.IsIPv6)
	}

	ok = true
	return built, emitted, true
}

// Process runs Segment and translates the result into the caller's
// enqueue/drop contract: on success it returns the
// children to forward downstream; on failure it bumps the interface
// error counter and returns nil, signaling the caller to drop parent.
func (g *GSO) Process(parent *buffer.Buffer, alloc BufferAllocator, sink GSOCounterSink) []*buffer.Buffer {
	children, _, ok := g.Segment(parent, alloc)
	if !ok {
		sink.BumpNoBuffersForGSO()
		return nil
	}
	return children
}

func zeroTCPChecksum(data []byte, l4rel int) {
	off := l4rel + wire.TCPChecksumOffset
	if off+2 > len(data) {
		return
	}
	binary.BigEndian.PutUint16(data[off:off+2], 0)
}

func writeTCPFlags(data []byte, l4rel int, flags uint8) {
	off := l4rel + wire.TCPFlagsOffset
	if off >= len(data) {
		return
	}
	data[off] = flags
}

func writeTCPSeq(data []byte, l4rel int, seq uint32) {
	off := l4rel + wire.TCPSeqOffset
	if off+4 > len(data) {
		return
	}
	binary.BigEndian.PutUint32(data[off:off+4], seq)
}

// fixupIPLength recomputes IPv4 total_length or IPv6 payload_length from
// a child's actual final size.
func fixupIPLength(data []byte, l3rel int, isIPv6 bool) {
	if l3rel >= len(data) {
		return
	}
	ipBytes := data[l3rel:]
	if isIPv6 {
		if len(ipBytes) < wire.IPv6HeaderLen {
			return
		}
		payloadLen := len(ipBytes) - wire.IPv6HeaderLen
		binary.BigEndian.PutUint16(ipBytes[4:6], uint16(payloadLen))
		return
	}
	if len(ipBytes) < wire.IPv4HeaderLen {
		return
	}
	binary.BigEndian.PutUint16(ipBytes[2:4], uint16(len(ipBytes)))
}
