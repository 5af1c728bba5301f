// Package control implements the two consumed-not-defined control-plane
// binding calls from §6 (register_local_sid, register_policy) plus
// their deregister companions — the host-side surface the engines read
// from, not a control protocol implementation. Modeled on the
// RWMutex-guarded session-map shape of nf/upf/internal/context's
// UPFContext, but backed by srv6.Table's own RCU-snapshot discipline
// instead of a bare mutex, since the data this module's control plane
// mutates is read lock-free on every packet.
package control

import (
	"fmt"
	"net"

	"go.uber.org/zap"

	"github.com/your-org/srv6-gtp-dataplane/internal/config"
	"github.com/your-org/srv6-gtp-dataplane/internal/srv6"
	"github.com/your-org/srv6-gtp-dataplane/internal/wire"
)

// Plane is the control-plane-facing binding surface backing one Table.
// A real deployment's configuration loader or management API calls
// these; the data-plane engines never do.
type Plane struct {
	Table  *srv6.Table
	logger *zap.Logger
}

func NewPlane(table *srv6.Table, logger *zap.Logger) *Plane {
	return &Plane{Table: table, logger: logger}
}

// RegisterLocalSID is register_local_sid(prefix, prefixlen, engine, params).
func (p *Plane) RegisterLocalSID(adjIndex uint32, prefixLen int, kind srv6.EngineKind, srPrefix [16]byte, srPrefixLen int) error {
	if prefixLen < 0 || prefixLen > 128 {
		return fmt.Errorf("control: prefix_len %d out of range", prefixLen)
	}
	p.Table.RegisterLocalSID(adjIndex, srv6.LocalSID{
		PrefixLen:   prefixLen,
		Engine:      kind,
		SRPrefix:    srPrefix,
		SRPrefixLen: srPrefixLen,
	})
	p.logger.Info("local SID registered", zap.Uint32("adj_index", adjIndex), zap.Int("prefix_len", prefixLen))
	return nil
}

// DeregisterLocalSID removes a binding.
func (p *Plane) DeregisterLocalSID(adjIndex uint32) {
	p.Table.DeregisterLocalSID(adjIndex)
	p.logger.Info("local SID deregistered", zap.Uint32("adj_index", adjIndex))
}

// RegisterPolicy is register_policy(binding_sid, segment_lists[]).
func (p *Plane) RegisterPolicy(bindingSID [16]byte, segmentLists []*srv6.SegmentList) {
	p.Table.RegisterPolicy(&srv6.SRPolicy{BindingSID: bindingSID, SegmentLists: segmentLists})
	p.logger.Info("SR policy registered", zap.Int("segment_lists", len(segmentLists)))
}

// DeregisterPolicy removes a binding SID's policy.
func (p *Plane) DeregisterPolicy(bindingSID [16]byte) {
	p.Table.DeregisterPolicy(bindingSID)
	p.logger.Info("SR policy deregistered")
}

// engineKindByName maps the config file's string engine tag to the
// EngineKind a LocalSID is bound to (§6's register_local_sid takes the
// engine as a parameter; the YAML config stands in for that call per
// SPEC_FULL.md §10.3).
func engineKindByName(name string) (srv6.EngineKind, error) {
	switch name {
	case "gtp4e":
		return srv6.EngineGTP4E, nil
	case "gtp6e":
		return srv6.EngineGTP6E, nil
	case "gtp6d":
		return srv6.EngineGTP6D, nil
	case "gtp6ddi":
		return srv6.EngineGTP6DDI, nil
	default:
		return 0, fmt.Errorf("control: unknown engine %q", name)
	}
}

func parseIPv6(s string) ([16]byte, error) {
	var out [16]byte
	if s == "" {
		return out, nil
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return out, fmt.Errorf("control: invalid IPv6 address %q", s)
	}
	ip16 := ip.To16()
	if ip16 == nil {
		return out, fmt.Errorf("control: %q is not a valid IPv6 address", s)
	}
	copy(out[:], ip16)
	return out, nil
}

// LoadFromConfig seeds the table from a TableConfig, standing in for the
// individual register_local_sid/register_policy calls a real control
// plane would make one at a time. Intended for process startup
// only; ordinary mutation after that should go through
// RegisterLocalSID/RegisterPolicy directly.
func (p *Plane) LoadFromConfig(cfg config.TableConfig) error {
	for _, ls := range cfg.LocalSIDs {
		kind, err := engineKindByName(ls.Engine)
		if err != nil {
			return err
		}
		srPrefix, err := parseIPv6(ls.SRPrefix)
		if err != nil {
			return fmt.Errorf("control: local sid %d: %w", ls.AdjIndex, err)
		}
		if err := p.RegisterLocalSID(ls.AdjIndex, ls.PrefixLen, kind, srPrefix, ls.SRPrefixLen); err != nil {
			return fmt.Errorf("control: local sid %d: %w", ls.AdjIndex, err)
		}
	}

	for _, pol := range cfg.Policies {
		bsid, err := parseIPv6(pol.BindingSID)
		if err != nil {
			return fmt.Errorf("control: policy %q: %w", pol.BindingSID, err)
		}
		lists := make([]*srv6.SegmentList, 0, len(pol.SegmentLists))
		for _, sl := range pol.SegmentLists {
			segs := make([][16]byte, 0, len(sl.Segments))
			for _, s := range sl.Segments {
				seg, err := parseIPv6(s)
				if err != nil {
					return fmt.Errorf("control: policy %q segment: %w", pol.BindingSID, err)
				}
				segs = append(segs, seg)
			}
			if len(segs) == 0 {
				lists = append(lists, nil)
				continue
			}
			ip6 := wire.IPv6Header{
				VersionTCFlow: wire.DefaultIPv6VersionTCFlow,
				HopLimit:      64,
				NextHeader:    wire.ProtoIPv6Route,
			}
			srh := wire.SRH{
				RoutingType:  wire.SRHRoutingType,
				SegmentsLeft: uint8(len(segs) - 1),
				LastEntry:    uint8(len(segs) - 1),
				HdrExtLen:    uint8(len(segs) * 2),
				Segments:     segs,
			}
			lists = append(lists, srv6.BuildSegmentList(ip6, srh))
		}
		p.RegisterPolicy(bsid, lists)
	}
	return nil
}
