package pagealloc

import (
	"testing"

	"coremem/phys"
	"coremem/pgtable"
	"coremem/virt"
)

func newTestDomain(t *testing.T, nframes, npages int) *Domain {
	t.Helper()
	ph, err := phys.New(0x200000, nframes)
	if err != nil {
		t.Fatalf("phys.New: %v", err)
	}
	t.Cleanup(func() { ph.Close() })
	vs := virt.New(0xC0100000, npages)
	alloc := func() (pgtable.Pa_t, bool) { return ph.Alloc() }
	dirFrame, ok := ph.Alloc()
	if !ok {
		t.Fatal("failed to allocate directory frame")
	}
	pt := pgtable.NewSpace(ph, dirFrame, alloc)
	return &Domain{Virt: vs, Phys: ph, PT: pt}
}

func TestAllocPagesMapsAndZeroes(t *testing.T) {
	dom := newTestDomain(t, 16, 16)
	va, err := AllocPages(dom, 3)
	if err != 0 {
		t.Fatalf("AllocPages failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		page := va + pgtable.Va_t(i*pgtable.PageSize)
		if _, ok := dom.PT.Translate(page); !ok {
			t.Fatalf("page %d not mapped", i)
		}
	}
	if err := Zero(dom, va, 3); err != 0 {
		t.Fatalf("Zero failed: %v", err)
	}
}

func TestAllocPagesExhaustsPhysPool(t *testing.T) {
	dom := newTestDomain(t, 2, 16)
	// one frame already spent on the directory in newTestDomain.
	if _, err := AllocPages(dom, 5); err == 0 {
		t.Fatal("expected ENOMEM when physical pool can't back the whole run")
	}
}

func TestFreePagesReleasesFrameAndVirt(t *testing.T) {
	dom := newTestDomain(t, 16, 16)
	va, err := AllocPages(dom, 2)
	if err != 0 {
		t.Fatalf("AllocPages failed: %v", err)
	}
	before := dom.Phys.FreeFrames()
	if err := FreePages(dom, va, 2); err != 0 {
		t.Fatalf("FreePages failed: %v", err)
	}
	if dom.Phys.FreeFrames() != before+2 {
		t.Fatalf("expected 2 frames returned, got %d -> %d", before, dom.Phys.FreeFrames())
	}
	if dom.Virt.Test(va) {
		t.Fatal("expected virtual page to be released")
	}
}
