package engine

import (
	"encoding/binary"

	"github.com/your-org/srv6-gtp-dataplane/internal/srv6"
	"github.com/your-org/srv6-gtp-dataplane/internal/wire"
)

// beUint32 reads a 4-byte big-endian window as a plain integer for trace
// records; the wire-level TEID itself is never reinterpreted this way.
func beUint32(b [4]byte) uint32 {
	return binary.BigEndian.Uint32(b[:])
}

// gtp6dInHeaderLen is sizeof(IPv6+UDP+GTP-U): the outer header GTP6.D and
// GTP6.D.DI strip before re-encapsulating.
const gtp6dInHeaderLen = wire.IPv6HeaderLen + wire.UDPHeaderLen + wire.GTPUHeaderLen

// protoForInner returns the SRH's own next_header (the protocol of the
// payload that follows the routing header) based on the inner datagram's
// version nibble.
func protoForInner(innerIsIPv6 bool) uint8 {
	if innerIsIPv6 {
		return wire.ProtoIPv6
	}
	return wire.ProtoIPv4
}

// buildSRHFromPolicy splices leading onto the front of a policy segment
// list's on-wire segments and grows segments_left/last_entry/hdr_ext_len
// accordingly: segments[0] becomes leading's first entry, the policy's
// tail segments follow at segments[1:], generalized to GTP6.D.DI's two
// leading segments. The outer IPv6 header (version/traffic-class/
// hop-limit, source and destination) comes from the policy's own rewrite
// template; the outer next_header is set to IPv6-Route, the SRH's own
// next_header is derived from innerIsIPv6, and the SRH fields that grow
// are overridden here.
func buildSRHFromPolicy(sl *srv6.SegmentList, leading [][16]byte, innerIsIPv6 bool) (wire.IPv6Header, wire.SRH) {
	ip6tmpl, err := wire.ParseIPv6Header(sl.Rewrite)
	if err != nil {
		panic("srv6: malformed segment list rewrite: " + err.Error())
	}
	srhtmpl, err := wire.ParseSRH(sl.Rewrite[wire.IPv6HeaderLen:])
	if err != nil {
		panic("srv6: malformed segment list rewrite: " + err.Error())
	}

	grown := uint8(len(leading))
	srh := wire.SRH{
		NextHeader:   protoForInner(innerIsIPv6),
		HdrExtLen:    srhtmpl.HdrExtLen + grown*2,
		RoutingType:  wire.SRHRoutingType,
		SegmentsLeft: srhtmpl.SegmentsLeft + grown,
		LastEntry:    srhtmpl.LastEntry + grown,
		Flags:        srhtmpl.Flags,
		Tag:          srhtmpl.Tag,
		Segments:     append(append([][16]byte{}, leading...), srhtmpl.Segments...),
	}
	ip6tmpl.NextHeader = wire.ProtoIPv6Route
	return ip6tmpl, srh
}
