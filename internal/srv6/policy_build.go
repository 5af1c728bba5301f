package srv6

import "github.com/your-org/srv6-gtp-dataplane/internal/wire"

// BuildSegmentList constructs a SegmentList's precomputed rewrite (§3:
// "IPv6 header || SRH || segments in on-wire order") from the logical
// segment list a control plane would configure. This is what
// register_policy is expected to call before handing a SegmentList to
// Table.RegisterPolicy; GTP6.D/.DI only ever read the resulting Rewrite
// bytes back apart at the same offsets this function uses to build them.
func BuildSegmentList(ip6 wire.IPv6Header, srh wire.SRH) *SegmentList {
	segs := append([][16]byte(nil), srh.Segments...)
	srh.Segments = segs
	buf := make([]byte, wire.IPv6HeaderLen+srh.MarshalLen())
	ip6.MarshalTo(buf[:wire.IPv6HeaderLen])
	srh.MarshalTo(buf[wire.IPv6HeaderLen:])
	return &SegmentList{Segments: segs, Rewrite: buf}
}
