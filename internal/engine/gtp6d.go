package engine

import (
	"github.com/your-org/srv6-gtp-dataplane/common/bitfield"
	"github.com/your-org/srv6-gtp-dataplane/common/buffer"
	"github.com/your-org/srv6-gtp-dataplane/internal/srv6"
	"github.com/your-org/srv6-gtp-dataplane/internal/wire"
)

// GTP6DTemplate carries the constant fields of the bare-IPv6 header GTP6.D
// builds when no policy matches the TEID-spliced prefix.
type GTP6DTemplate struct {
	VersionTCFlow uint32
	HopLimit      uint8
}

func NewGTP6DTemplate() GTP6DTemplate {
	return GTP6DTemplate{VersionTCFlow: wire.DefaultIPv6VersionTCFlow, HopLimit: 64}
}

// GTP6D is the GTP-U/IPv6 -> SRv6 decap engine. Unlike the encap
// engines, it does not prepend a fixed-size template: the outer header it
// builds is either a bare IPv6 header (no policy) or an IPv6+SRH header
// whose segment count depends on the matched policy's segment list, so it
// is built fresh per packet.
type GTP6D struct {
	Table    *srv6.Table
	Template GTP6DTemplate
}

func (e *GTP6D) Process(b *buffer.Buffer, sink CounterSink, trace TraceEmitter) Verdict {
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
	var newSRH *wire.SRH
	var hdrLen int
	if sl != nil {
		ip6h, srh := buildSRHFromPolicy(sl, [][16]byte{seg0}, innerIsIPv6)
		newIP6, newSRH = ip6h, &srh
		hdrLen = wire.IPv6HeaderLen + srh.MarshalLen()
	} else {
		newIP6 = wire.IPv6Header{VersionTCFlow: e.Template.VersionTCFlow, HopLimit: e.Template.HopLimit, Src: origDst, Dst: seg0}
		if innerIsIPv6 {
			newIP6.NextHeader = wire.ProtoIPv6
		} else {
			newIP6.NextHeader = wire.ProtoIPv4
		}
		hdrLen = wire.IPv6HeaderLen
	}

	if err := b.Retreat(hdrLen); err != nil {
		sink.BumpNode(false)
		sink.BumpSID(b.AdjIndex, false)
		return VerdictDrop
	}
	out := b.CurrentData()[:hdrLen]
	newIP6.PayloadLength = uint16(innerLen + hdrLen - wire.IPv6HeaderLen)
	newIP6.MarshalTo(out[:wire.IPv6HeaderLen])
	if newSRH != nil {
		newSRH.MarshalTo(out[wire.IPv6HeaderLen:])
	}

	sink.BumpNode(true)
	sink.BumpSID(b.AdjIndex, true)
	if b.Flags&buffer.FlagTrace != 0 && trace != nil {
		var teid [4]byte
		copy(teid[:], gtpu.TEID[:])
		trace.Emit(TraceRecord{
			Engine:   "GTP6.D",
			AdjIndex: b.AdjIndex,
			TEID:     beUint32(teid),
			Src:      newIP6.Src,
			Dst:      newIP6.Dst,
		})
	}
	return VerdictLookupIPv6
}
