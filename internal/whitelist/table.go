// Package whitelist implements the role-partitioned allow tables the
// classifier consults on every frame.
//
// Reads are lock-free and may run concurrently with control-plane
// writes; a lookup observes either the old mask or the new mask for a
// key, never a torn value. Capacity is fixed at construction and an
// upsert past capacity is rejected without disturbing existing entries.
package whitelist

import (
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/nivex/fastgate/internal/core"
)

// Default table capacities, matching the fixed map sizes of the
// dataplane this feeds.
const (
	DefaultSrcCapacity  = 1024
	DefaultPortCapacity = 128
)

// table is a fixed-capacity concurrent map from key to a non-zero
// protocol mask. The control plane is the single writer; the data
// path only calls Lookup.
type table[K comparable] struct {
	capacity int
	entries  sync.Map // K -> uint8
	size     atomic.Int64

	mu sync.Mutex // serializes writers; readers never take it
}

// Lookup returns the stored mask for key. ok is false when the key is
// absent; a stored mask is never zero.
func (t *table[K]) Lookup(key K) (mask uint8, ok bool) {
	v, ok := t.entries.Load(key)
	if !ok {
		return 0, false
	}
	return v.(uint8), true
}

// Upsert inserts or overwrites the mask for key. A zero mask is
// rejected (zero encodes absence), and an insert that would exceed
// capacity fails with ErrTableFull while leaving the table untouched.
func (t *table[K]) Upsert(key K, mask uint8) error {
	if mask == 0 {
		return core.ErrZeroMask
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries.Load(key); exists {
		t.entries.Store(key, mask)
		return nil
	}
	if t.size.Load() >= int64(t.capacity) {
		return core.ErrTableFull
	}
	t.entries.Store(key, mask)
	t.size.Add(1)
	return nil
}

// Remove deletes the entry for key, if present.
func (t *table[K]) Remove(key K) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries.Load(key); exists {
		t.entries.Delete(key)
		t.size.Add(-1)
	}
}

// Len returns the current entry count.
func (t *table[K]) Len() int {
	return int(t.size.Load())
}

// Capacity returns the fixed capacity.
func (t *table[K]) Capacity() int {
	return t.capacity
}

// AddrTable maps source addresses to allowed-protocol masks.
type AddrTable struct {
	table[netip.Addr]
}

// PortTable maps destination ports to allowed-protocol masks.
type PortTable struct {
	table[uint16]
}

// AddrEntry is one listed source address.
type AddrEntry struct {
	Addr netip.Addr
	Mask uint8
}

// PortEntry is one listed destination port.
type PortEntry struct {
	Port uint16
	Mask uint8
}

// List returns a snapshot of all entries. Order is unspecified.
func (t *AddrTable) List() []AddrEntry {
	var out []AddrEntry
	t.entries.Range(func(k, v any) bool {
		out = append(out, AddrEntry{Addr: k.(netip.Addr), Mask: v.(uint8)})
		return true
	})
	return out
}

// List returns a snapshot of all entries. Order is unspecified.
func (t *PortTable) List() []PortEntry {
	var out []PortEntry
	t.entries.Range(func(k, v any) bool {
		out = append(out, PortEntry{Port: k.(uint16), Mask: v.(uint8)})
		return true
	})
	return out
}

// Tables bundles the three role-scoped whitelist tables.
// SrcV4 and SrcV6 hold the "client" role (matched against a frame's
// source address); DstPort holds the "listener" role (matched against
// a frame's destination port).
type Tables struct {
	SrcV4   *AddrTable
	SrcV6   *AddrTable
	DstPort *PortTable
}

// New creates the three tables with the given capacities. Zero or
// negative capacities fall back to the defaults.
func New(srcV4Cap, srcV6Cap, portCap int) *Tables {
	if srcV4Cap <= 0 {
		srcV4Cap = DefaultSrcCapacity
	}
	if srcV6Cap <= 0 {
		srcV6Cap = DefaultSrcCapacity
	}
	if portCap <= 0 {
		portCap = DefaultPortCapacity
	}
	return &Tables{
		SrcV4:   &AddrTable{table[netip.Addr]{capacity: srcV4Cap}},
		SrcV6:   &AddrTable{table[netip.Addr]{capacity: srcV6Cap}},
		DstPort: &PortTable{table[uint16]{capacity: portCap}},
	}
}

// UpsertSrc routes an address upsert to the v4 or v6 table based on
// the address family. v4-mapped v6 addresses are unmapped first so a
// rule written either way matches the same packets.
func (t *Tables) UpsertSrc(addr netip.Addr, mask uint8) error {
	addr = addr.Unmap()
	if addr.Is4() {
		return t.SrcV4.Upsert(addr, mask)
	}
	return t.SrcV6.Upsert(addr, mask)
}

// RemoveSrc removes an address from the table matching its family.
func (t *Tables) RemoveSrc(addr netip.Addr) {
	addr = addr.Unmap()
	if addr.Is4() {
		t.SrcV4.Remove(addr)
		return
	}
	t.SrcV6.Remove(addr)
}
