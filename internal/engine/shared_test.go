package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/your-org/srv6-gtp-dataplane/common/buffer"
	"github.com/your-org/srv6-gtp-dataplane/internal/srv6"
	"github.com/your-org/srv6-gtp-dataplane/internal/wire"
)

// TestCountersInvariantValidPlusInvalidEqualsProcessed exercises spec
// §8 invariant 1 (valid_counter + invalid_counter == packets_processed)
// against the plain Counters sink, driving it with a mix of forwarded
// and dropped packets through a real engine rather than bumping the
// sink directly.
func TestCountersInvariantValidPlusInvalidEqualsProcessed(t *testing.T) {
	tbl := srv6.NewTable()
	tbl.RegisterLocalSID(1, srv6.LocalSID{PrefixLen: 64, Engine: srv6.EngineGTP4E})
	e := &GTP4E{Table: tbl, Template: NewGTP4ETemplate()}

	var counters Counters

	good := func() *buffer.Buffer {
		raw := make([]byte, wire.IPv6HeaderLen+16)
		ip6 := wire.IPv6Header{VersionTCFlow: wire.DefaultIPv6VersionTCFlow, HopLimit: 64}
		ip6.MarshalTo(raw[0:wire.IPv6HeaderLen])
		b := buffer.New(buffer.DefaultHeadroom, raw)
		b.AdjIndex = 1
		return b
	}
	bad := func() *buffer.Buffer {
		b := good()
		b.AdjIndex = 999 // unregistered local SID
		return b
	}

	for i := 0; i < 3; i++ {
		e.Process(good(), &counters, nil)
	}
	for i := 0; i < 2; i++ {
		e.Process(bad(), &counters, nil)
	}

	require.Equal(t, uint64(3), counters.Packets.Load())
	require.Equal(t, uint64(2), counters.BadPackets.Load())

	validSID1, invalidSID1 := counters.SIDCounts(1)
	require.Equal(t, uint64(3), validSID1)
	require.Equal(t, uint64(0), invalidSID1)

	validSID999, invalidSID999 := counters.SIDCounts(999)
	require.Equal(t, uint64(0), validSID999)
	require.Equal(t, uint64(2), invalidSID999)

	processed := counters.Packets.Load() + counters.BadPackets.Load()
	require.Equal(t, uint64(5), processed)
}
