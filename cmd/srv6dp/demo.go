package main

import (
	"encoding/binary"

	"github.com/your-org/srv6-gtp-dataplane/common/buffer"
	"github.com/your-org/srv6-gtp-dataplane/internal/control"
	"github.com/your-org/srv6-gtp-dataplane/internal/scheduler"
	"github.com/your-org/srv6-gtp-dataplane/internal/srv6"
	"github.com/your-org/srv6-gtp-dataplane/internal/wire"
)

// Local-SID indices reserved for the in-process traffic generator, kept
// well above any adj_index a real config file is expected to use so the
// demo never collides with operator-configured bindings.
const (
	demoAdjGTP4E   uint32 = 9001
	demoAdjGTP6E   uint32 = 9002
	demoAdjGTP6D   uint32 = 9003
	demoAdjGTP6DDI uint32 = 9004
)

var demoSRPrefix = [16]byte{0xfd, 0x00}

// seedDemoLocalSIDs registers one local SID per engine so demoFrame can
// build a buffer the engine will actually forward instead of drop,
// without requiring the operator's config file to define one.
func seedDemoLocalSIDs(plane *control.Plane) {
	_ = plane.RegisterLocalSID(demoAdjGTP4E, 64, srv6.EngineGTP4E, [16]byte{}, 0)
	_ = plane.RegisterLocalSID(demoAdjGTP6E, 64, srv6.EngineGTP6E, [16]byte{}, 0)
	_ = plane.RegisterLocalSID(demoAdjGTP6D, 64, srv6.EngineGTP6D, demoSRPrefix, 64)
	_ = plane.RegisterLocalSID(demoAdjGTP6DDI, 64, srv6.EngineGTP6DDI, demoSRPrefix, 64)
}

// demoFrame builds one synthetic packet per named engine, wrapped in a
// single-buffer Frame, so the scheduler has something to dispatch on
// startup.
func demoFrame(engineName string, headroom int) *scheduler.Frame {
	var b *buffer.Buffer
	switch engineName {
	case "GTP4.E":
		b = demoSRv6Buffer(headroom, demoAdjGTP4E, false)
	case "GTP6.E":
		b = demoSRv6Buffer(headroom, demoAdjGTP6E, true)
	case "GTP6.D":
		b = demoGTPUBuffer(headroom, demoAdjGTP6D)
	case "GTP6.D.DI":
		b = demoGTPUBuffer(headroom, demoAdjGTP6DDI)
	default:
		b = buffer.New(headroom, make([]byte, wire.IPv6HeaderLen))
	}
	return &scheduler.Frame{Buffers: []*buffer.Buffer{b}}
}

// demoSRv6Buffer builds an IPv6(+SRH) packet with a 32-bit TEID encoded
// at bit offset prefix_len+8 of the destination address, wrapping a
// small inner UDP-like payload.
func demoSRv6Buffer(headroom int, adjIndex uint32, withSRH bool) *buffer.Buffer {
	inner := make([]byte, 64)
	for i := range inner {
		inner[i] = byte(i)
	}

	var dst [16]byte
	copy(dst[:], []byte{0x20, 0x01, 0x0d, 0xb8})
	copy(dst[9:13], []byte{0xaa, 0xbb, 0xcc, 0xdd}) // TEID window at bit offset 64+8

	var src [16]byte
	copy(src[:], []byte{0x20, 0x01, 0x0d, 0xb9})

	outerLen := wire.IPv6HeaderLen
	if withSRH {
		outerLen += wire.SRHFixedLen + wire.SegmentLen
	}
	raw := make([]byte, outerLen+len(inner))

	ip6 := wire.IPv6Header{VersionTCFlow: wire.DefaultIPv6VersionTCFlow, HopLimit: 64, Src: src, Dst: dst}
	if withSRH {
		ip6.NextHeader = wire.ProtoIPv6Route
		ip6.MarshalTo(raw[:wire.IPv6HeaderLen])
		srh := wire.SRH{
			RoutingType:  wire.SRHRoutingType,
			SegmentsLeft: 0,
			LastEntry:    0,
			HdrExtLen:    2,
			Segments:     [][16]byte{dst},
		}
		srh.MarshalTo(raw[wire.IPv6HeaderLen:])
	} else {
		ip6.NextHeader = wire.ProtoUDP
		ip6.MarshalTo(raw[:wire.IPv6HeaderLen])
	}
	copy(raw[outerLen:], inner)

	b := buffer.New(headroom, raw)
	b.AdjIndex = adjIndex
	return b
}

// demoGTPUBuffer builds an IPv6+UDP+GTP-U packet with TEID 0x01020304,
// carrying an inner IPv4 datagram.
func demoGTPUBuffer(headroom int, adjIndex uint32) *buffer.Buffer {
	inner := make([]byte, wire.IPv4HeaderLen)
	innerIP := wire.IPv4Header{VersionIHL: 0x45, TTL: 64, Protocol: 6, TotalLength: uint16(len(inner))}
	innerIP.MarshalTo(inner)

	raw := make([]byte, wire.IPv6HeaderLen+wire.UDPHeaderLen+wire.GTPUHeaderLen+len(inner))
	ip6 := wire.IPv6Header{VersionTCFlow: wire.DefaultIPv6VersionTCFlow, HopLimit: 64, NextHeader: wire.ProtoUDP}
	ip6.MarshalTo(raw[:wire.IPv6HeaderLen])
	udp := wire.UDPHeader{DstPort: wire.GTPUPort}
	udp.MarshalTo(raw[wire.IPv6HeaderLen : wire.IPv6HeaderLen+wire.UDPHeaderLen])
	gtpu := wire.GTPUHeader{Flags: wire.GTPUFlags, MsgType: wire.GTPUMsgTPDU, TEID: [4]byte{0x01, 0x02, 0x03, 0x04}}
	gtpu.MarshalTo(raw[wire.IPv6HeaderLen+wire.UDPHeaderLen : wire.IPv6HeaderLen+wire.UDPHeaderLen+wire.GTPUHeaderLen])
	copy(raw[wire.IPv6HeaderLen+wire.UDPHeaderLen+wire.GTPUHeaderLen:], inner)

	b := buffer.New(headroom, raw)
	b.AdjIndex = adjIndex
	return b
}

// demoGSOFrame builds one oversized TCP/IPv4 segment (FIN+PSH set,
// bigger than the configured gso_size) flagged for segmentation.
func demoGSOFrame(headroom int) *scheduler.Frame {
	const payloadLen = 5000
	const l234 = wire.IPv4HeaderLen + wire.TCPHeaderMinLen
	raw := make([]byte, l234+payloadLen)
	ip := wire.IPv4Header{VersionIHL: 0x45, TTL: 64, Protocol: 6, TotalLength: uint16(len(raw))}
	ip.MarshalTo(raw[0:wire.IPv4HeaderLen])
	raw[wire.IPv4HeaderLen+wire.TCPFlagsOffset] = wire.TCPFlagFIN | wire.TCPFlagPSH | wire.TCPFlagACK
	binary.BigEndian.PutUint32(raw[wire.IPv4HeaderLen+wire.TCPSeqOffset:], 1000)

	b := buffer.New(headroom, raw)
	b.Flags |= buffer.FlagGSO
	b.GSOSize = 1460
	b.L2Offset, b.L3Offset, b.L4Offset, b.L4HdrSize = 0, 0, wire.IPv4HeaderLen, wire.TCPHeaderMinLen
	b.TCPSeq = 1000
	b.TCPFlags = raw[wire.IPv4HeaderLen+wire.TCPFlagsOffset]
	return &scheduler.Frame{Buffers: []*buffer.Buffer{b}}
}
