package engine

import (
	"encoding/binary"

	"github.com/your-org/srv6-gtp-dataplane/common/bitfield"
	"github.com/your-org/srv6-gtp-dataplane/common/buffer"
	"github.com/your-org/srv6-gtp-dataplane/internal/srv6"
	"github.com/your-org/srv6-gtp-dataplane/internal/wire"
)

// gtp4eHeaderLen is sizeof(IPv4+UDP+GTP-U): the outer header GTP4.E
// prepends.
const gtp4eHeaderLen = wire.IPv4HeaderLen + wire.UDPHeaderLen + wire.GTPUHeaderLen

// GTP4ETemplate is a fully formed IPv4+UDP+GTP-U skeleton built once at
// registration, with every field that does not vary per packet already
// set.
type GTP4ETemplate struct {
	bytes [gtp4eHeaderLen]byte
}

// NewGTP4ETemplate builds the immutable per-engine header template.
func NewGTP4ETemplate() GTP4ETemplate {
	var t GTP4ETemplate
	ip := wire.IPv4Header{VersionIHL: 0x45, TTL: 64, Protocol: wire.ProtoUDP}
	ip.MarshalTo(t.bytes[0:wire.IPv4HeaderLen])
	udp := wire.UDPHeader{DstPort: wire.GTPUPort}
	udp.MarshalTo(t.bytes[wire.IPv4HeaderLen : wire.IPv4HeaderLen+wire.UDPHeaderLen])
	gtpu := wire.GTPUHeader{Flags: wire.GTPUFlags, MsgType: wire.GTPUMsgTPDU}
	gtpu.MarshalTo(t.bytes[wire.IPv4HeaderLen+wire.UDPHeaderLen:])
	return t
}

// GTP4E is the SRv6 (IPv6+SRH) -> GTP-U/IPv4 encap engine.
type GTP4E struct {
	Table    *srv6.Table
	Template GTP4ETemplate
}

// Process rewrites b in place and returns its verdict. trace may be nil.
func (e *GTP4E) Process(b *buffer.Buffer, sink CounterSink, trace TraceEmitter) Verdict {
	sid, ok := e.Table.LookupLocalSID(b.AdjIndex)
	if !ok {
		sink.BumpNode(false)
		sink.BumpSID(b.AdjIndex, false)
		return VerdictDrop
	}

	chainLen := b.ChainLen()
	cur := b.CurrentData()
	if len(cur) < wire.IPv6HeaderLen {
		sink.BumpNode(false)
		sink.BumpSID(b.AdjIndex, false)
		return VerdictDrop
	}
	ip6, _ := wire.ParseIPv6Header(cur)

	advance := wire.IPv6HeaderLen
	hasSRH := ip6.NextHeader == wire.ProtoIPv6Route
	if hasSRH {
		if len(cur) < wire.IPv6HeaderLen+wire.SRHFixedLen {
			sink.BumpNode(false)
			sink.BumpSID(b.AdjIndex, false)
			return VerdictDrop
		}
		srh, _ := wire.ParseSRH(cur[wire.IPv6HeaderLen:])
		advance = wire.IPv6HeaderLen + wire.SRHFixedLen + int(srh.HdrExtLen)*8
	}
	// Reject if SRH-declared length exceeds chain length, or chain is
	// smaller than a bare IPv6 header.
	if (hasSRH && chainLen < advance) || chainLen < wire.IPv6HeaderLen {
		sink.BumpNode(false)
		sink.BumpSID(b.AdjIndex, false)
		return VerdictDrop
	}

	dst := ip6.Dst
	src := ip6.Src

	if err := b.Advance(advance); err != nil {
		sink.BumpNode(false)
		sink.BumpSID(b.AdjIndex, false)
		return VerdictDrop
	}
	innerLen := b.ChainLen()

	if err := b.Retreat(gtp4eHeaderLen); err != nil {
		sink.BumpNode(false)
		sink.BumpSID(b.AdjIndex, false)
		return VerdictDrop
	}
	b.Blit(e.Template.bytes[:])

	hdr := b.CurrentData()[:gtp4eHeaderLen]
	ipv4 := hdr[0:wire.IPv4HeaderLen]
	udp := hdr[wire.IPv4HeaderLen : wire.IPv4HeaderLen+wire.UDPHeaderLen]
	gtpu := hdr[wire.IPv4HeaderLen+wire.UDPHeaderLen:]

	// TEID extraction: bit_offset = prefix_len+8, stored without
	// byte-swap — the raw extracted window goes
	// straight into the wire header.
	bitOffset := sid.PrefixLen + 8
	teid := bitfield.ReadBits(dst[:], bitOffset, 4)
	copy(gtpu[4:8], teid)
	binary.BigEndian.PutUint16(gtpu[2:4], uint16(innerLen))

	binary.BigEndian.PutUint16(udp[0:2], binary.BigEndian.Uint16(dst[12:14])) // dst.u16[6]
	binary.BigEndian.PutUint16(udp[4:6], uint16(innerLen+16))

	var ipv4Src, ipv4Dst [4]byte
	copy(ipv4Src[:], src[8:12]) // src.u32[2]
	copy(ipv4Dst[:], dst[4:8])  // dst.u32[1]
	copy(ipv4[12:16], ipv4Src[:])
	copy(ipv4[16:20], ipv4Dst[:])
	binary.BigEndian.PutUint16(ipv4[2:4], uint16(innerLen+28))
	cksum := wire.IPv4Checksum(ipv4)
	binary.BigEndian.PutUint16(ipv4[10:12], cksum)

	sink.BumpNode(true)
	sink.BumpSID(b.AdjIndex, true)
	if b.Flags&buffer.FlagTrace != 0 && trace != nil {
		var teidArr [4]byte
		copy(teidArr[:], teid)
		trace.Emit(TraceRecord{
			Engine:   "GTP4.E",
			AdjIndex: b.AdjIndex,
			TEID:     binary.BigEndian.Uint32(teidArr[:]),
			IsIPv4:   true,
			SrcV4:    ipv4Src,
			DstV4:    ipv4Dst,
		})
	}
	return VerdictLookupIPv4
}
