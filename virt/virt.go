// Package virt implements the bitmap-backed virtual address space
// allocator, plus the shadow-memory registry that lets a synthetic
// 32-bit address behave like real, directly addressable memory inside a
// hosted Go process.
//
// A literal address like 0xC0100000 cannot be dereferenced as a host
// pointer without crashing the process it runs in, so no code in this
// package ever casts a Va_t straight to unsafe.Pointer. Instead, Back
// registers real host-backed storage for a run of pages and Deref
// resolves a synthetic address back to that storage.
//
// Back allocates one contiguous []byte per call so that pointer
// arithmetic spanning several pages of a single run stays valid in real
// memory: a virtually contiguous range stays addressable as one span
// regardless of how its physical backing is organized.
package virt

import (
	"sync"
	"unsafe"

	"coremem/bitmap"
	"coremem/defs"
	"coremem/pgtable"
)

// Space is one address space's virtual page allocator: a bitmap over the
// page-granular range [Base, Base+npages*PageSize), plus whatever
// backing storage has been registered for pages currently in use.
type Space struct {
	mu      sync.Mutex
	Base    pgtable.Va_t
	npages  int
	bm      *bitmap.Bitmap
	backing map[int][]byte // page index -> owning buffer
	offset  map[int]int    // page index -> byte offset into its buffer
}

// New creates a virtual address space spanning npages pages starting at
// base.
func New(base pgtable.Va_t, npages int) *Space {
	return &Space{
		Base:    base,
		npages:  npages,
		bm:      bitmap.New(npages),
		backing: make(map[int][]byte),
		offset:  make(map[int]int),
	}
}

func (s *Space) pageIndex(va pgtable.Va_t) (int, bool) {
	if va < s.Base {
		return 0, false
	}
	off := va - s.Base
	if off%pgtable.PageSize != 0 {
		return 0, false
	}
	idx := int(off / pgtable.PageSize)
	if idx >= s.npages {
		return 0, false
	}
	return idx, true
}

// IndexOf returns va's page index within this space.
func (s *Space) IndexOf(va pgtable.Va_t) (int, bool) {
	return s.pageIndex(va)
}

// Len returns the number of pages this space spans.
func (s *Space) Len() int { return s.npages }

// Lock and Unlock expose the space's mutex. Every other Space method
// takes this mutex itself, so none of them may be called while it is
// held; no caller in this module takes it.
func (s *Space) Lock()   { s.mu.Lock() }
func (s *Space) Unlock() { s.mu.Unlock() }

// Alloc reserves the first fitting run of npages free pages and returns
// its base virtual address.
func (s *Space) Alloc(npages int) (pgtable.Va_t, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.bm.ScanZeroRun(npages)
	if !ok {
		return 0, false
	}
	s.bm.SetRange(idx, npages)
	return s.Base + pgtable.Va_t(idx*pgtable.PageSize), true
}

// AllocAt reserves a specific run of npages pages starting at va,
// failing if any page in the run is already reserved.
func (s *Space) AllocAt(va pgtable.Va_t, npages int) defs.Err_t {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.pageIndex(va)
	if !ok || idx+npages > s.npages {
		return defs.EINVAL
	}
	for i := idx; i < idx+npages; i++ {
		if s.bm.Test(i) {
			return defs.EEXIST
		}
	}
	s.bm.SetRange(idx, npages)
	return defs.EOK
}

// Free releases the run of npages pages starting at va.
func (s *Space) Free(va pgtable.Va_t, npages int) defs.Err_t {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.pageIndex(va)
	if !ok || idx+npages > s.npages {
		return defs.EINVAL
	}
	s.bm.ClearRange(idx, npages)
	return defs.EOK
}

// Test reports whether va's page is currently reserved.
func (s *Space) Test(va pgtable.Va_t) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.pageIndex(va)
	return ok && s.bm.Test(idx)
}

// Back allocates one contiguous host buffer of npages*PageSize bytes and
// registers it as the storage for the page run starting at va, so that
// Deref on any address in the run resolves into the same buffer.
func (s *Space) Back(va pgtable.Va_t, npages int) ([]byte, defs.Err_t) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.pageIndex(va)
	if !ok || idx+npages > s.npages {
		return nil, defs.EINVAL
	}
	buf := make([]byte, npages*pgtable.PageSize)
	for i := 0; i < npages; i++ {
		s.backing[idx+i] = buf
		s.offset[idx+i] = i * pgtable.PageSize
	}
	return buf, defs.EOK
}

// Unback drops the backing storage registered for the page run starting
// at va. It does not clear the allocation bitmap; callers combine it
// with Free when a run is being returned entirely.
func (s *Space) Unback(va pgtable.Va_t, npages int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.pageIndex(va)
	if !ok {
		return
	}
	for i := idx; i < idx+npages && i < s.npages; i++ {
		delete(s.backing, i)
		delete(s.offset, i)
	}
}

// Deref resolves a synthetic virtual address to the host memory backing
// it. It panics if the address has no registered backing, since every
// caller in this design only dereferences addresses it has itself
// Back'd.
func (s *Space) Deref(va pgtable.Va_t) unsafe.Pointer {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.pageIndex(va)
	if !ok {
		panic("virt: Deref of address outside space")
	}
	buf, ok := s.backing[idx]
	if !ok {
		panic("virt: Deref of unbacked address")
	}
	pageOff := int(va-s.Base) % pgtable.PageSize
	total := s.offset[idx] + pageOff
	return unsafe.Pointer(&buf[total])
}

// DerefU32 adapts Deref to flist.Deref's uint32-keyed signature.
func (s *Space) DerefU32(addr uint32) unsafe.Pointer {
	return s.Deref(pgtable.Va_t(addr))
}
