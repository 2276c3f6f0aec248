package virt

import (
	"testing"

	"coremem/pgtable"
)

func TestAllocFreeRoundtrip(t *testing.T) {
	s := New(0xC0100000, 16)
	va, ok := s.Alloc(3)
	if !ok || va != 0xC0100000 {
		t.Fatalf("expected alloc at base, got %#x (%v)", va, ok)
	}
	if !s.Test(va) {
		t.Fatal("allocated page should test reserved")
	}
	if err := s.Free(va, 3); err != 0 {
		t.Fatalf("Free failed: %v", err)
	}
	if s.Test(va) {
		t.Fatal("freed page should no longer test reserved")
	}
}

func TestAllocAtConflict(t *testing.T) {
	s := New(0xC0100000, 16)
	if err := s.AllocAt(0xC0100000, 2); err != 0 {
		t.Fatalf("AllocAt failed: %v", err)
	}
	if err := s.AllocAt(0xC0100000+pgtable.PageSize, 2); err == 0 {
		t.Fatal("expected EEXIST for overlapping AllocAt")
	}
}

func TestBackDerefContiguousAcrossPages(t *testing.T) {
	s := New(0xC0100000, 4)
	va, ok := s.Alloc(2)
	if !ok {
		t.Fatal("alloc failed")
	}
	buf, err := s.Back(va, 2)
	if err != 0 {
		t.Fatalf("Back failed: %v", err)
	}
	if len(buf) != 2*pgtable.PageSize {
		t.Fatalf("expected contiguous 2-page buffer, got %d bytes", len(buf))
	}
	p0 := s.Deref(va)
	p1 := s.Deref(va + pgtable.PageSize)
	if uintptr(p1)-uintptr(p0) != pgtable.PageSize {
		t.Fatal("expected second page's backing to sit exactly one page after the first")
	}
}

func TestDerefUnbackedPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic dereferencing unbacked address")
		}
	}()
	s := New(0xC0100000, 4)
	s.Alloc(1)
	s.Deref(0xC0100000)
}

func TestUnbackThenDerefPanics(t *testing.T) {
	s := New(0xC0100000, 4)
	va, _ := s.Alloc(1)
	s.Back(va, 1)
	s.Unback(va, 1)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic after unback")
		}
	}()
	s.Deref(va)
}
