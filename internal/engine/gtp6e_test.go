package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/your-org/srv6-gtp-dataplane/common/bitfield"
	"github.com/your-org/srv6-gtp-dataplane/common/buffer"
	"github.com/your-org/srv6-gtp-dataplane/internal/srv6"
	"github.com/your-org/srv6-gtp-dataplane/internal/wire"
)

func TestGTP6ERewritesOuterAndSplicesPort(t *testing.T) {
	tbl := srv6.NewTable()
	tbl.RegisterLocalSID(1, srv6.LocalSID{PrefixLen: 64, Engine: srv6.EngineGTP6E})
	e := &GTP6E{Table: tbl, Template: NewGTP6ETemplate()}

	var dst [16]byte
	dst[0] = 0x20
	dst[9], dst[10], dst[11], dst[12] = 0xAA, 0xBB, 0xCC, 0xDD

	var seg0 [16]byte
	seg0[0] = 0x30

	srh := &wire.SRH{RoutingType: wire.SRHRoutingType, HdrExtLen: 2, Segments: [][16]byte{seg0}}

	inner := make([]byte, 40)
	for i := range inner {
		inner[i] = byte(i)
	}
	b := buildSRv6Packet([16]byte{}, dst, inner, srh)
	b.AdjIndex = 1

	v := e.Process(b, NoopSink, nil)
	require.Equal(t, VerdictLookupIPv6, v)

	out := b.CurrentData()
	require.Len(t, out, gtp6eHeaderLen+len(inner))

	ip6, err := wire.ParseIPv6Header(out[:wire.IPv6HeaderLen])
	require.NoError(t, err)
	require.Equal(t, dst, ip6.Src)
	require.Equal(t, seg0, ip6.Dst)
	require.Equal(t, uint16(len(inner)+16), ip6.PayloadLength)
	require.Equal(t, uint8(wire.ProtoUDP), ip6.NextHeader)

	udp, err := wire.ParseUDPHeader(out[wire.IPv6HeaderLen : wire.IPv6HeaderLen+wire.UDPHeaderLen])
	require.NoError(t, err)
	require.Equal(t, uint16(wire.GTPUPort), udp.DstPort)
	require.Equal(t, uint16(len(inner)+16), udp.Length)

	wantPort := srv6.FoldHashToPort(srv6.JenkinsHash64(inner))
	require.Equal(t, wantPort, udp.SrcPort)

	gtpu, err := wire.ParseGTPUHeader(out[wire.IPv6HeaderLen+wire.UDPHeaderLen : gtp6eHeaderLen])
	require.NoError(t, err)
	want := bitfield.ReadBits(dst[:], 64+8, 4)
	require.Equal(t, want, gtpu.TEID[:])
	require.Equal(t, uint16(len(inner)), gtpu.Length)

	require.Equal(t, inner, out[gtp6eHeaderLen:])
}

// The inner payload can arrive split across a buffer chain (GSO builds
// chains, and nothing in the buffer model promises a single fragment).
// The UDP source port hash must be computed over the whole chain, not
// just whatever bytes happen to sit in the first fragment.
func TestGTP6EHashesAcrossChainedFragments(t *testing.T) {
	tbl := srv6.NewTable()
	tbl.RegisterLocalSID(4, srv6.LocalSID{PrefixLen: 64, Engine: srv6.EngineGTP6E})
	e := &GTP6E{Table: tbl, Template: NewGTP6ETemplate()}

	var dst [16]byte
	dst[0] = 0x20
	dst[9], dst[10], dst[11], dst[12] = 0xAA, 0xBB, 0xCC, 0xDD
	var seg0 [16]byte
	seg0[0] = 0x30
	srh := &wire.SRH{RoutingType: wire.SRHRoutingType, HdrExtLen: 2, Segments: [][16]byte{seg0}}

	inner := make([]byte, 60)
	for i := range inner {
		inner[i] = byte(i)
	}
	// Split the inner payload across two fragments: the first carries the
	// outer IPv6+SRH plus the first third of inner, the rest trails in a
	// second, separately allocated fragment linked via SetNext.
	split := 20
	first := buildSRv6Packet([16]byte{}, dst, inner[:split], srh)
	second := buffer.New(buffer.DefaultHeadroom, inner[split:])
	first.SetNext(second)
	first.AdjIndex = 4

	v := e.Process(first, NoopSink, nil)
	require.Equal(t, VerdictLookupIPv6, v)

	out := first.CurrentData()
	udp, err := wire.ParseUDPHeader(out[wire.IPv6HeaderLen : wire.IPv6HeaderLen+wire.UDPHeaderLen])
	require.NoError(t, err)

	wantPort := srv6.FoldHashToPort(srv6.JenkinsHash64(inner))
	require.Equal(t, wantPort, udp.SrcPort)

	gtpu, err := wire.ParseGTPUHeader(out[wire.IPv6HeaderLen+wire.UDPHeaderLen : gtp6eHeaderLen])
	require.NoError(t, err)
	require.Equal(t, uint16(len(inner)), gtpu.Length)
}

func TestGTP6ERejectsNonSRHOuter(t *testing.T) {
	tbl := srv6.NewTable()
	tbl.RegisterLocalSID(2, srv6.LocalSID{PrefixLen: 64, Engine: srv6.EngineGTP6E})
	e := &GTP6E{Table: tbl, Template: NewGTP6ETemplate()}

	b := buildSRv6Packet([16]byte{}, [16]byte{}, make([]byte, 16), nil) // bare IPv6, no SRH
	b.AdjIndex = 2
	require.Equal(t, VerdictDrop, e.Process(b, NoopSink, nil))
}

func TestGTP6EShortSRHDeclaredLengthDrops(t *testing.T) {
	tbl := srv6.NewTable()
	tbl.RegisterLocalSID(3, srv6.LocalSID{PrefixLen: 64, Engine: srv6.EngineGTP6E})
	e := &GTP6E{Table: tbl, Template: NewGTP6ETemplate()}

	srh := &wire.SRH{RoutingType: wire.SRHRoutingType, HdrExtLen: 4, Segments: [][16]byte{{}, {}}}
	b := buildSRv6Packet([16]byte{}, [16]byte{}, make([]byte, 8), srh)
	// Truncate the chain so it is shorter than the SRH's declared size
	// (IPv6+SRH-fixed+2*16 = 80 bytes).
	require.NoError(t, b.Truncate(70))
	b.AdjIndex = 3
	require.Equal(t, VerdictDrop, e.Process(b, NoopSink, nil))
}

func TestGTP6EUnknownAdjIndexDrops(t *testing.T) {
	tbl := srv6.NewTable()
	e := &GTP6E{Table: tbl, Template: NewGTP6ETemplate()}
	srh := &wire.SRH{RoutingType: wire.SRHRoutingType, HdrExtLen: 2, Segments: [][16]byte{{}}}
	b := buildSRv6Packet([16]byte{}, [16]byte{}, make([]byte, 8), srh)
	b.AdjIndex = 123
	require.Equal(t, VerdictDrop, e.Process(b, NoopSink, nil))
}
