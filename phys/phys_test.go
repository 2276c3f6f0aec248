package phys

import (
	"testing"

	"coremem/pgtable"
)

func TestAllocFreeFrame(t *testing.T) {
	p, err := New(0x200000, 4)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	if got := p.FreeFrames(); got != 4 {
		t.Fatalf("expected 4 free frames, got %d", got)
	}
	pa, ok := p.Alloc()
	if !ok || pa != 0x200000 {
		t.Fatalf("expected first alloc at base, got %#x (%v)", pa, ok)
	}
	if got := p.FreeFrames(); got != 3 {
		t.Fatalf("expected 3 free frames after alloc, got %d", got)
	}
	if err := p.FreeFrame(pa); err != 0 {
		t.Fatalf("FreeFrame failed: %v", err)
	}
	if got := p.FreeFrames(); got != 4 {
		t.Fatalf("expected 4 free frames after free, got %d", got)
	}
}

func TestAllocExhaustion(t *testing.T) {
	p, err := New(0x200000, 2)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	if _, ok := p.Alloc(); !ok {
		t.Fatal("expected first alloc to succeed")
	}
	if _, ok := p.Alloc(); !ok {
		t.Fatal("expected second alloc to succeed")
	}
	if _, ok := p.Alloc(); ok {
		t.Fatal("expected third alloc to fail, pool exhausted")
	}
}

func TestFreeFrameRejectsForeignAddress(t *testing.T) {
	p, err := New(0x200000, 2)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()
	if err := p.FreeFrame(0x900000); err == 0 {
		t.Fatal("expected EINVAL for out-of-pool address")
	}
}

func TestTableRoundTripsEntries(t *testing.T) {
	p, err := New(0x200000, 1)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()
	tbl := p.Table(0x200000)
	tbl[5] = pgtable.Entry(0xdeadb000) | pgtable.Flags
	tbl2 := p.Table(0x200000)
	if tbl2[5] != tbl[5] {
		t.Fatal("expected Table to expose the same underlying frame bytes")
	}
}
