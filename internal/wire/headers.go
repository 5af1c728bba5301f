// Package wire implements on-the-wire marshaling for the header types the
// engines construct and parse: IPv4, IPv6, UDP, the GTP-U encapsulation
// header, and the SRv6 Segment Routing Header. Every MarshalTo/Parse pair
// here is bit-exact with §6's wire-format contract; nothing is
// interpreted beyond what an engine needs to patch.
package wire

import (
	"encoding/binary"
	"fmt"
)

// Fixed header lengths in bytes.
const (
	IPv4HeaderLen = 20
	IPv6HeaderLen = 40
	UDPHeaderLen  = 8
	GTPUHeaderLen = 8
	SRHFixedLen   = 8 // everything in an SRH before the segment list
	SegmentLen    = 16
)

// GTPUPort is the fixed GTP-U destination port.
const GTPUPort = 2152

// IP protocol numbers referenced by the engines.
const (
	ProtoIPv4     = 4  // "IPv4-in-IPv6" next header
	ProtoIPv6     = 41 // "IPv6-in-IPv6" next header, used by GTP6.D/.DI when the inner datagram is IPv6
	ProtoUDP      = 17
	ProtoIPv6Route = 43
)

// GTPU flag/type constants: version=1, PT=1, no extensions; message
// type T-PDU.
const (
	GTPUFlags   = 0x30
	GTPUMsgTPDU = 0xFF
)

// IPv4Header is the 20-byte fixed IPv4 header (no options).
type IPv4Header struct {
	VersionIHL  uint8
	TOS         uint8
	TotalLength uint16
	ID          uint16
	FlagsFrag   uint16
	TTL         uint8
	Protocol    uint8
	Checksum    uint16
	Src         [4]byte
	Dst         [4]byte
}

// ParseIPv4Header reads a 20-byte IPv4 header from b.
func ParseIPv4Header(b []byte) (IPv4Header, error) {
	if len(b) < IPv4HeaderLen {
		return IPv4Header{}, fmt.Errorf("wire: short IPv4 header (%d bytes)", len(b))
	}
	var h IPv4Header
	h.VersionIHL = b[0]
	h.TOS = b[1]
	h.TotalLength = binary.BigEndian.Uint16(b[2:4])
	h.ID = binary.BigEndian.Uint16(b[4:6])
	h.FlagsFrag = binary.BigEndian.Uint16(b[6:8])
	h.TTL = b[8]
	h.Protocol = b[9]
	h.Checksum = binary.BigEndian.Uint16(b[10:12])
	copy(h.Src[:], b[12:16])
	copy(h.Dst[:], b[16:20])
	return h, nil
}

// MarshalTo writes the header into b[:20].
func (h IPv4Header) MarshalTo(b []byte) {
	b[0] = h.VersionIHL
	b[1] = h.TOS
	binary.BigEndian.PutUint16(b[2:4], h.TotalLength)
	binary.BigEndian.PutUint16(b[4:6], h.ID)
	binary.BigEndian.PutUint16(b[6:8], h.FlagsFrag)
	b[8] = h.TTL
	b[9] = h.Protocol
	binary.BigEndian.PutUint16(b[10:12], h.Checksum)
	copy(b[12:16], h.Src[:])
	copy(b[16:20], h.Dst[:])
}

// IPv4Checksum computes the internet checksum (RFC 791 §3.1) over a
// 20-byte IPv4 header, treating the checksum field itself as zero.
func IPv4Checksum(hdr []byte) uint16 {
	var sum uint32
	for i := 0; i < len(hdr); i += 2 {
		if i == 10 { // checksum field
			continue
		}
		sum += uint32(binary.BigEndian.Uint16(hdr[i : i+2]))
	}
	for sum > 0xFFFF {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return ^uint16(sum)
}

// IPv6Header is the 40-byte fixed IPv6 header.
type IPv6Header struct {
	VersionTCFlow uint32 // version(4) | traffic class(8) | flow label(20)
	PayloadLength uint16
	NextHeader    uint8
	HopLimit      uint8
	Src           [16]byte
	Dst           [16]byte
}

func ParseIPv6Header(b []byte) (IPv6Header, error) {
	if len(b) < IPv6HeaderLen {
		return IPv6Header{}, fmt.Errorf("wire: short IPv6 header (%d bytes)", len(b))
	}
	var h IPv6Header
	h.VersionTCFlow = binary.BigEndian.Uint32(b[0:4])
	h.PayloadLength = binary.BigEndian.Uint16(b[4:6])
	h.NextHeader = b[6]
	h.HopLimit = b[7]
	copy(h.Src[:], b[8:24])
	copy(h.Dst[:], b[24:40])
	return h, nil
}

func (h IPv6Header) MarshalTo(b []byte) {
	binary.BigEndian.PutUint32(b[0:4], h.VersionTCFlow)
	binary.BigEndian.PutUint16(b[4:6], h.PayloadLength)
	b[6] = h.NextHeader
	b[7] = h.HopLimit
	copy(b[8:24], h.Src[:])
	copy(b[24:40], h.Dst[:])
}

// DefaultIPv6VersionTCFlow is version 6, zero traffic class, zero flow label.
const DefaultIPv6VersionTCFlow = uint32(6) << 28

// UDPHeader is the 8-byte UDP header.
type UDPHeader struct {
	SrcPort  uint16
	DstPort  uint16
	Length   uint16
	Checksum uint16
}

func ParseUDPHeader(b []byte) (UDPHeader, error) {
	if len(b) < UDPHeaderLen {
		return UDPHeader{}, fmt.Errorf("wire: short UDP header (%d bytes)", len(b))
	}
	return UDPHeader{
		SrcPort:  binary.BigEndian.Uint16(b[0:2]),
		DstPort:  binary.BigEndian.Uint16(b[2:4]),
		Length:   binary.BigEndian.Uint16(b[4:6]),
		Checksum: binary.BigEndian.Uint16(b[6:8]),
	}, nil
}

func (h UDPHeader) MarshalTo(b []byte) {
	binary.BigEndian.PutUint16(b[0:2], h.SrcPort)
	binary.BigEndian.PutUint16(b[2:4], h.DstPort)
	binary.BigEndian.PutUint16(b[4:6], h.Length)
	binary.BigEndian.PutUint16(b[6:8], h.Checksum)
}

// GTPUHeader is the 8-byte GTP-U encapsulation header (§3, §6). TEID is
// kept as a raw 4-byte window rather than a uint32 so that callers who
// fill it via bitfield.ReadBits never accidentally reinterpret it in host
// byte order — see §9 open question 1.
type GTPUHeader struct {
	Flags   uint8
	MsgType uint8
	Length  uint16
	TEID    [4]byte
}

func ParseGTPUHeader(b []byte) (GTPUHeader, error) {
	if len(b) < GTPUHeaderLen {
		return GTPUHeader{}, fmt.Errorf("wire: short GTP-U header (%d bytes)", len(b))
	}
	var h GTPUHeader
	h.Flags = b[0]
	h.MsgType = b[1]
	h.Length = binary.BigEndian.Uint16(b[2:4])
	copy(h.TEID[:], b[4:8])
	return h, nil
}

func (h GTPUHeader) MarshalTo(b []byte) {
	b[0] = h.Flags
	b[1] = h.MsgType
	binary.BigEndian.PutUint16(b[2:4], h.Length)
	copy(b[4:8], h.TEID[:])
}

// SRH is a Segment Routing Header: the fixed 8-byte part plus a segment
// list stored in on-wire (reverse traversal) order: Segments[0] is the
// last segment of the path and Segments[SegmentsLeft] the active one.
type SRH struct {
	NextHeader   uint8
	HdrExtLen    uint8
	RoutingType  uint8
	SegmentsLeft uint8
	LastEntry    uint8
	Flags        uint8
	Tag          uint16
	Segments     [][16]byte
}

const SRHRoutingType = 4

// MarshalLen returns the total on-wire size of the header including segments.
func (h SRH) MarshalLen() int {
	return SRHFixedLen + len(h.Segments)*SegmentLen
}

func (h SRH) MarshalTo(b []byte) {
	b[0] = h.NextHeader
	b[1] = h.HdrExtLen
	b[2] = h.RoutingType
	b[3] = h.SegmentsLeft
	b[4] = h.LastEntry
	b[5] = h.Flags
	binary.BigEndian.PutUint16(b[6:8], h.Tag)
	for i, seg := range h.Segments {
		copy(b[SRHFixedLen+i*SegmentLen:], seg[:])
	}
}

// ParseSRH parses an SRH whose segment count is derived from hdr_ext_len
// (2 eight-octet units per segment, per §3).
func ParseSRH(b []byte) (SRH, error) {
	if len(b) < SRHFixedLen {
		return SRH{}, fmt.Errorf("wire: short SRH (%d bytes)", len(b))
	}
	h := SRH{
		NextHeader:   b[0],
		HdrExtLen:    b[1],
		RoutingType:  b[2],
		SegmentsLeft: b[3],
		LastEntry:    b[4],
		Flags:        b[5],
		Tag:          binary.BigEndian.Uint16(b[6:8]),
	}
	n := int(h.HdrExtLen) / 2
	need := SRHFixedLen + n*SegmentLen
	if len(b) < need {
		return SRH{}, fmt.Errorf("wire: SRH declares %d segments but only %d bytes present", n, len(b))
	}
	h.Segments = make([][16]byte, n)
	for i := 0; i < n; i++ {
		copy(h.Segments[i][:], b[SRHFixedLen+i*SegmentLen:SRHFixedLen+(i+1)*SegmentLen])
	}
	return h, nil
}

// InnerFirstNibbleIsIPv6 reports whether the first nibble of payload marks
// it as an IPv6 datagram (version 6), used by GTP6.D/.DI to pick the SRH
// next_header / upper-layer protocol per §4.3.
func InnerFirstNibbleIsIPv6(payload []byte) bool {
	return len(payload) > 0 && payload[0]>>4 == 6
}
