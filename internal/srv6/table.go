// Package srv6 implements the shared control-plane-facing state the four
// engines read from: the local-SID table (endpoint bindings) and the SR
// policy table (binding SID -> segment lists), plus the per-engine hash
// helper GTP6.E needs for its UDP source port.
//
// Per §5, these tables are mutated only by the control plane and read
// without locking by data-plane workers; this package models that with an
// atomic snapshot swap (RCU-style) rather than a reader/writer mutex on
// the hot path — writers serialize on a mutex, readers never block.
package srv6

import (
	"sync"
	"sync/atomic"
)

// EngineKind identifies which of the four transformation engines a local
// SID is bound to.
type EngineKind int

const (
	EngineGTP4E EngineKind = iota
	EngineGTP6E
	EngineGTP6D
	EngineGTP6DDI
)

// LocalSID is an endpoint binding: a prefix length used to locate
// the TEID bit-window, plus per-engine parameters. SRPrefix/SRPrefixLen
// are only meaningful for GTP6.D and GTP6.D.DI.
type LocalSID struct {
	PrefixLen   int
	Engine      EngineKind
	SRPrefix    [16]byte
	SRPrefixLen int
}

// SegmentList is a precomputed rewrite template plus the logical segment
// list it was built from.
type SegmentList struct {
	Segments [][16]byte
	Rewrite  []byte
}

// SRPolicy is a binding SID bound to one or more segment lists.
type SRPolicy struct {
	BindingSID   [16]byte
	SegmentLists []*SegmentList
}

// FirstSegmentList returns the first non-nil segment list, matching
// GTP6.D's "take the first non-null segment list" lookup rule.
func (p *SRPolicy) FirstSegmentList() *SegmentList {
	for _, sl := range p.SegmentLists {
		if sl != nil {
			return sl
		}
	}
	return nil
}

type snapshot struct {
	localSIDs map[uint32]LocalSID
	policies  map[[16]byte]*SRPolicy
}

func (s *snapshot) clone() *snapshot {
	n := &snapshot{
		localSIDs: make(map[uint32]LocalSID, len(s.localSIDs)),
		policies:  make(map[[16]byte]*SRPolicy, len(s.policies)),
	}
	for k, v := range s.localSIDs {
		n.localSIDs[k] = v
	}
	for k, v := range s.policies {
		n.policies[k] = v
	}
	return n
}

// Table holds the local-SID table and the SR policy table together, since
// both share the same lifecycle and mutation discipline.
type Table struct {
	mu  sync.Mutex // serializes writers only; readers never take it
	cur atomic.Pointer[snapshot]
}

// NewTable returns an empty table.
func NewTable() *Table {
	t := &Table{}
	t.cur.Store(&snapshot{
		localSIDs: make(map[uint32]LocalSID),
		policies:  make(map[[16]byte]*SRPolicy),
	})
	return t
}

// LookupLocalSID is the hot-path read used by every engine to resolve a
// buffer's adj_index to its endpoint binding.
func (t *Table) LookupLocalSID(adjIndex uint32) (LocalSID, bool) {
	s := t.cur.Load()
	sid, ok := s.localSIDs[adjIndex]
	return sid, ok
}

// LookupPolicy is the hot-path read GTP6.D/.DI use to resolve the
// TEID-spliced prefix to an SR policy.
func (t *Table) LookupPolicy(bindingSID [16]byte) (*SRPolicy, bool) {
	s := t.cur.Load()
	p, ok := s.policies[bindingSID]
	return p, ok
}

// LenLocalSIDs reports the current size of the local-SID table, for the
// admin/stats surface only — never read on the packet fast path.
func (t *Table) LenLocalSIDs() int {
	return len(t.cur.Load().localSIDs)
}

// LenPolicies reports the current size of the SR policy table, for the
// admin/stats surface only.
func (t *Table) LenPolicies() int {
	return len(t.cur.Load().policies)
}

// RegisterLocalSID is part of the consumed-not-defined control-plane
// binding: register_local_sid(prefix, prefixlen, engine, params).
func (t *Table) RegisterLocalSID(adjIndex uint32, sid LocalSID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	next := t.cur.Load().clone()
	next.localSIDs[adjIndex] = sid
	t.cur.Store(next)
}

// DeregisterLocalSID removes a binding; a no-op if it does not exist.
func (t *Table) DeregisterLocalSID(adjIndex uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	next := t.cur.Load().clone()
	delete(next.localSIDs, adjIndex)
	t.cur.Store(next)
}

// RegisterPolicy is register_policy(binding_sid, segment_lists[]).
func (t *Table) RegisterPolicy(p *SRPolicy) {
	t.mu.Lock()
	defer t.mu.Unlock()
	next := t.cur.Load().clone()
	next.policies[p.BindingSID] = p
	t.cur.Store(next)
}

// DeregisterPolicy removes a policy binding.
func (t *Table) DeregisterPolicy(bindingSID [16]byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	next := t.cur.Load().clone()
	delete(next.policies, bindingSID)
	t.cur.Store(next)
}
