package whitelist

import (
	"fmt"
	"net/netip"
	"sync"
	"testing"

	"github.com/nivex/fastgate/internal/core"
)

func TestUpsertLookup(t *testing.T) {
	tables := New(4, 4, 4)

	addr := netip.MustParseAddr("10.0.0.1")
	if err := tables.UpsertSrc(addr, core.MaskTCP|core.MaskUDP); err != nil {
		t.Fatalf("UpsertSrc failed: %v", err)
	}

	mask, ok := tables.SrcV4.Lookup(addr)
	if !ok {
		t.Fatal("expected lookup hit")
	}
	if mask != core.MaskTCP|core.MaskUDP {
		t.Errorf("mask = %#x, want %#x", mask, core.MaskTCP|core.MaskUDP)
	}

	if _, ok := tables.SrcV4.Lookup(netip.MustParseAddr("10.0.0.2")); ok {
		t.Error("expected lookup miss for unlisted address")
	}
}

func TestUpsertOverwrite(t *testing.T) {
	tables := New(1, 1, 1)

	addr := netip.MustParseAddr("10.0.0.1")
	if err := tables.UpsertSrc(addr, core.MaskTCP); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}

	// Overwriting the same key must succeed even at capacity.
	if err := tables.UpsertSrc(addr, core.MaskUDP); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}

	mask, _ := tables.SrcV4.Lookup(addr)
	if mask != core.MaskUDP {
		t.Errorf("mask = %#x, want %#x", mask, core.MaskUDP)
	}
	if tables.SrcV4.Len() != 1 {
		t.Errorf("len = %d, want 1", tables.SrcV4.Len())
	}
}

func TestZeroMaskRejected(t *testing.T) {
	tables := New(4, 4, 4)

	if err := tables.UpsertSrc(netip.MustParseAddr("10.0.0.1"), 0); err != core.ErrZeroMask {
		t.Errorf("expected ErrZeroMask, got %v", err)
	}
	if err := tables.DstPort.Upsert(80, 0); err != core.ErrZeroMask {
		t.Errorf("expected ErrZeroMask, got %v", err)
	}
}

func TestCapacityEnforced(t *testing.T) {
	tables := New(2, 2, 2)

	for i := 0; i < 2; i++ {
		addr := netip.MustParseAddr(fmt.Sprintf("10.0.0.%d", i+1))
		if err := tables.UpsertSrc(addr, core.MaskAll); err != nil {
			t.Fatalf("upsert %d failed: %v", i, err)
		}
	}

	err := tables.UpsertSrc(netip.MustParseAddr("10.0.0.3"), core.MaskAll)
	if err != core.ErrTableFull {
		t.Errorf("expected ErrTableFull, got %v", err)
	}

	// Existing entries must be untouched by the rejected insert.
	if tables.SrcV4.Len() != 2 {
		t.Errorf("len = %d, want 2", tables.SrcV4.Len())
	}
	if _, ok := tables.SrcV4.Lookup(netip.MustParseAddr("10.0.0.1")); !ok {
		t.Error("existing entry lost after rejected insert")
	}
}

func TestRemove(t *testing.T) {
	tables := New(4, 4, 4)

	addr := netip.MustParseAddr("10.0.0.1")
	if err := tables.UpsertSrc(addr, core.MaskICMP); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	tables.RemoveSrc(addr)

	if _, ok := tables.SrcV4.Lookup(addr); ok {
		t.Error("entry still present after remove")
	}
	if tables.SrcV4.Len() != 0 {
		t.Errorf("len = %d, want 0", tables.SrcV4.Len())
	}

	// Removing an absent key is a no-op.
	tables.RemoveSrc(addr)
	if tables.SrcV4.Len() != 0 {
		t.Errorf("len = %d after double remove, want 0", tables.SrcV4.Len())
	}
}

func TestFamilyRouting(t *testing.T) {
	tables := New(4, 4, 4)

	v6 := netip.MustParseAddr("2001:db8::1")
	if err := tables.UpsertSrc(v6, core.MaskTCP); err != nil {
		t.Fatalf("v6 upsert failed: %v", err)
	}
	if _, ok := tables.SrcV6.Lookup(v6); !ok {
		t.Error("v6 address not routed to SrcV6")
	}
	if tables.SrcV4.Len() != 0 {
		t.Error("v6 address leaked into SrcV4")
	}

	// v4-mapped v6 addresses land in the v4 table, unmapped.
	mapped := netip.MustParseAddr("::ffff:10.0.0.9")
	if err := tables.UpsertSrc(mapped, core.MaskUDP); err != nil {
		t.Fatalf("mapped upsert failed: %v", err)
	}
	if _, ok := tables.SrcV4.Lookup(netip.MustParseAddr("10.0.0.9")); !ok {
		t.Error("v4-mapped address not found under plain v4 key")
	}
}

func TestPortTable(t *testing.T) {
	tables := New(4, 4, 2)

	if err := tables.DstPort.Upsert(5060, core.MaskUDP); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	mask, ok := tables.DstPort.Lookup(5060)
	if !ok || mask != core.MaskUDP {
		t.Errorf("lookup = (%#x, %v), want (%#x, true)", mask, ok, core.MaskUDP)
	}

	entries := tables.DstPort.List()
	if len(entries) != 1 || entries[0].Port != 5060 {
		t.Errorf("unexpected list snapshot: %+v", entries)
	}
}

func TestConcurrentReadsAndWrites(t *testing.T) {
	tables := New(DefaultSrcCapacity, DefaultSrcCapacity, DefaultPortCapacity)

	addrs := make([]netip.Addr, 64)
	for i := range addrs {
		addrs[i] = netip.MustParseAddr(fmt.Sprintf("10.1.0.%d", i+1))
	}

	var readers, writers sync.WaitGroup
	stop := make(chan struct{})

	// Readers hammer Lookup while writers churn the same keys.
	for r := 0; r < 4; r++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				for _, a := range addrs {
					if mask, ok := tables.SrcV4.Lookup(a); ok && mask == 0 {
						t.Error("observed zero mask from lookup")
						return
					}
				}
			}
		}()
	}

	for w := 0; w < 2; w++ {
		writers.Add(1)
		go func(seed uint8) {
			defer writers.Done()
			for i := 0; i < 500; i++ {
				a := addrs[i%len(addrs)]
				tables.UpsertSrc(a, core.MaskTCP|seed<<1)
				if i%3 == 0 {
					tables.RemoveSrc(a)
				}
			}
		}(uint8(w + 1))
	}

	writers.Wait()
	close(stop)
	readers.Wait()
}
