package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/your-org/srv6-gtp-dataplane/internal/srv6"
	"github.com/your-org/srv6-gtp-dataplane/internal/wire"
)

func TestGTP6DDIWithoutPolicyInsertsTwoSegments(t *testing.T) {
	tbl := srv6.NewTable()
	var srPrefix [16]byte
	srPrefix[0] = 0xfd
	tbl.RegisterLocalSID(3, srv6.LocalSID{PrefixLen: 64, Engine: srv6.EngineGTP6DDI, SRPrefix: srPrefix, SRPrefixLen: 64})

	var encapSrc [16]byte
	encapSrc[0] = 0xfe
	e := &GTP6DDI{Table: tbl, Template: NewGTP6DDITemplate(encapSrc)}

	var outerDst [16]byte
	outerDst[0] = 0x20
	inner := make([]byte, 40)
	inner[0] = 0x60
	b := buildGTPUPacket(t, [16]byte{}, outerDst, [4]byte{1, 2, 3, 4}, inner)
	b.AdjIndex = 3

	v := e.Process(b, NoopSink, nil)
	require.Equal(t, VerdictLookupIPv6, v)

	out := b.CurrentData()
	ip6, err := wire.ParseIPv6Header(out)
	require.NoError(t, err)
	require.Equal(t, uint8(wire.ProtoIPv6Route), ip6.NextHeader)
	require.Equal(t, encapSrc, ip6.Src)

	srh, err := wire.ParseSRH(out[wire.IPv6HeaderLen:])
	require.NoError(t, err)
	require.Len(t, srh.Segments, 2)
	require.Equal(t, outerDst, srh.Segments[0])

	wantSeg1 := srPrefix
	wantSeg1[9], wantSeg1[10], wantSeg1[11], wantSeg1[12] = 1, 2, 3, 4
	require.Equal(t, wantSeg1, srh.Segments[1])
	require.Equal(t, ip6.Dst, wantSeg1)
	require.Equal(t, uint8(1), srh.SegmentsLeft)
	require.Equal(t, uint8(1), srh.LastEntry)
	require.Equal(t, uint8(4), srh.HdrExtLen)
}

func TestGTP6DDIWithPolicyInsertsThreeSegments(t *testing.T) {
	tbl := srv6.NewTable()
	var srPrefix [16]byte
	srPrefix[0] = 0xfd
	tbl.RegisterLocalSID(5, srv6.LocalSID{PrefixLen: 64, Engine: srv6.EngineGTP6DDI, SRPrefix: srPrefix, SRPrefixLen: 64})

	bsid := srPrefix
	bsid[9], bsid[10], bsid[11], bsid[12] = 1, 2, 3, 4

	tail := [16]byte{0x20, 0x01}
	slIP6 := wire.IPv6Header{VersionTCFlow: wire.DefaultIPv6VersionTCFlow, HopLimit: 64}
	slSRH := wire.SRH{RoutingType: wire.SRHRoutingType, HdrExtLen: 2, Segments: [][16]byte{tail}}
	sl := srv6.BuildSegmentList(slIP6, slSRH)
	tbl.RegisterPolicy(&srv6.SRPolicy{BindingSID: bsid, SegmentLists: []*srv6.SegmentList{sl}})

	e := &GTP6DDI{Table: tbl, Template: NewGTP6DDITemplate([16]byte{0xfe})}

	var outerDst [16]byte
	outerDst[0] = 0x20
	inner := make([]byte, 40)
	inner[0] = 0x60
	b := buildGTPUPacket(t, [16]byte{}, outerDst, [4]byte{1, 2, 3, 4}, inner)
	b.AdjIndex = 5

	v := e.Process(b, NoopSink, nil)
	require.Equal(t, VerdictLookupIPv6, v)

	out := b.CurrentData()
	srh, err := wire.ParseSRH(out[wire.IPv6HeaderLen:])
	require.NoError(t, err)
	require.Len(t, srh.Segments, 3)
	require.Equal(t, outerDst, srh.Segments[0])
	require.Equal(t, bsid, srh.Segments[1])
	require.Equal(t, tail, srh.Segments[2])
	require.Equal(t, uint8(2), srh.SegmentsLeft)
	require.Equal(t, uint8(2), srh.LastEntry)
	require.Equal(t, uint8(6), srh.HdrExtLen)
}
