package engine

import (
	"github.com/your-org/srv6-gtp-dataplane/common/bitfield"
	"github.com/your-org/srv6-gtp-dataplane/common/buffer"
	"github.com/your-org/srv6-gtp-dataplane/internal/srv6"
	"github.com/your-org/srv6-gtp-dataplane/internal/wire"
)

// GTP6DDITemplate carries the constant fields of the bare-SRH header
// GTP6.D.DI synthesizes when no policy matches, plus the configured
// encapsulation source address that branch uses as the outer IPv6
// source.
type GTP6DDITemplate struct {
	VersionTCFlow uint32
	HopLimit      uint8
	EncapSource   [16]byte
}

func NewGTP6DDITemplate(encapSource [16]byte) GTP6DDITemplate {
	return GTP6DDITemplate{VersionTCFlow: wire.DefaultIPv6VersionTCFlow, HopLimit: 64, EncapSource: encapSource}
}

// GTP6DDI is the GTP-U/IPv6 -> SRv6 decap-and-insert engine: like
// GTP6.D, but it always produces an SRH led by two segments (the original
// outer destination, then the TEID-spliced segment), followed by the
// policy's segments when one matches; with no policy it is exactly those
// two, instead of GTP6.D's bare-IPv6 fallback.
//
// The no-policy branch here builds its SRH explicitly from scratch rather
// than incrementing segments_left/last_entry/hdr_ext_len on top of a
// reused buffer the way the decap-without-insert path does for the
// with-policy case: there is no existing SRH to grow from in this branch,
// so there is nothing to increment onto.
type GTP6DDI struct {
	Table    *srv6.Table
	Template GTP6DDITemplate
}

func (e *GTP6DDI) Process(b *buffer.Buffer, sink CounterSink, trace TraceEmitter) Verdict {
	sid, ok := e.Table.LookupLocalSID(b.AdjIndex)
	if !ok {
		sink.BumpNode(false)
		sink.BumpSID(b.AdjIndex, false)
		return VerdictDrop
	}

	chainLen := b.ChainLen()
	cur := b.CurrentData()
	if len(cur) < gtp6dInHeaderLen {
		sink.BumpNode(false)
		sink.BumpSID(b.AdjIndex, false)
		return VerdictDrop
	}
	ip6, _ := wire.ParseIPv6Header(cur)
	udp, _ := wire.ParseUDPHeader(cur[wire.IPv6HeaderLen:])
	if ip6.NextHeader != wire.ProtoUDP || udp.DstPort != wire.GTPUPort || chainLen < gtp6dInHeaderLen {
		sink.BumpNode(false)
		sink.BumpSID(b.AdjIndex, false)
		return VerdictDrop
	}
	gtpu, _ := wire.ParseGTPUHeader(cur[wire.IPv6HeaderLen+wire.UDPHeaderLen:])

	seg0 := sid.SRPrefix
	if sid.SRPrefixLen != 0 {
		bitfield.WriteBits(seg0[:], sid.SRPrefixLen+8, gtpu.TEID[:])
	}
	origDst := ip6.Dst

	if err := b.Advance(gtp6dInHeaderLen); err != nil {
		sink.BumpNode(false)
		sink.BumpSID(b.AdjIndex, false)
		return VerdictDrop
	}
	innerLen := b.ChainLen()
	innerIsIPv6 := wire.InnerFirstNibbleIsIPv6(b.CurrentData())

	var sl *srv6.SegmentList
	if policy, ok := e.Table.LookupPolicy(seg0); ok {
		sl = policy.FirstSegmentList()
	}

	var newIP6 wire.IPv6Header
	var newSRH wire.SRH
	if sl != nil {
		newIP6, newSRH = buildSRHFromPolicy(sl, [][16]byte{origDst, seg0}, innerIsIPv6)
	} else {
		newIP6 = wire.IPv6Header{
			VersionTCFlow: e.Template.VersionTCFlow,
			HopLimit:      e.Template.HopLimit,
			NextHeader:    wire.ProtoIPv6Route,
			Src:           e.Template.EncapSource,
			Dst:           seg0,
		}
		newSRH = wire.SRH{
			NextHeader:   protoForInner(innerIsIPv6),
			HdrExtLen:    4,
			RoutingType:  wire.SRHRoutingType,
			SegmentsLeft: 1,
			LastEntry:    1,
			Segments:     [][16]byte{origDst, seg0},
		}
	}
	hdrLen := wire.IPv6HeaderLen + newSRH.MarshalLen()

	if err := b.Retreat(hdrLen); err != nil {
		sink.BumpNode(false)
		sink.BumpSID(b.AdjIndex, false)
		return VerdictDrop
	}
	out := b.CurrentData()[:hdrLen]
	newIP6.PayloadLength = uint16(innerLen + hdrLen - wire.IPv6HeaderLen)
	newIP6.MarshalTo(out[:wire.IPv6HeaderLen])
	newSRH.MarshalTo(out[wire.IPv6HeaderLen:])

	sink.BumpNode(true)
	sink.BumpSID(b.AdjIndex, true)
	if b.Flags&buffer.FlagTrace != 0 && trace != nil {
		var teid [4]byte
		copy(teid[:], gtpu.TEID[:])
		trace.Emit(TraceRecord{
			Engine:   "GTP6.D.DI",
			AdjIndex: b.AdjIndex,
			TEID:     beUint32(teid),
			Src:      newIP6.Src,
			Dst:      newIP6.Dst,
		})
	}
	return VerdictLookupIPv6
}
