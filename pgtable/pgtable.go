// Package pgtable implements the two-level page table walker and the
// PteAddr/PdeAddr recursive-mapping formulas: the last page directory
// entry points back at the directory's own physical frame, so every
// table and the directory itself are reachable through ordinary virtual
// addresses without a separate identity map.
package pgtable

import (
	"sync/atomic"

	"coremem/defs"
)

// Pa_t is a physical frame address.
type Pa_t uint32

// Va_t is a virtual address.
type Va_t uint32

// Entry is a raw page directory or page table entry.
type Entry uint32

const (
	// PteP marks an entry present.
	PteP Entry = 1 << 0
	// PteW marks an entry writable.
	PteW Entry = 1 << 1
	// PteU marks an entry user-accessible.
	PteU Entry = 1 << 2

	// Flags is the fixed present|writable|user combination every mapping
	// in this design uses; there is no finer-grained permission model.
	Flags = PteP | PteW | PteU
)

const (
	// PageSize is the size in bytes of one frame or page.
	PageSize = 4096
	// PageShift is log2(PageSize).
	PageShift = 12
	// PdeShift is the bit offset of the directory index within a Va_t.
	PdeShift = 22
	// RecursiveSlot is the page-directory index mapped back onto the
	// directory itself, enabling PteAddr/PdeAddr to resolve any table
	// or the directory through ordinary virtual addressing.
	RecursiveSlot = 1023

	// pteBase and pdeBase are the fixed virtual windows the recursive
	// slot opens onto every table, respectively the directory.
	pteBase Va_t = 0xFFC00000
	pdeBase Va_t = 0xFFFFF000
)

func dirIndex(va Va_t) uint32  { return uint32(va>>PdeShift) & 0x3FF }
func tblIndex(va Va_t) uint32  { return uint32(va>>PageShift) & 0x3FF }
func pageOffset(va Va_t) Va_t { return va & (PageSize - 1) }

// PteAddr computes the virtual address of the page table entry
// describing va, via the recursive self-map.
func PteAddr(va Va_t) Va_t {
	return pteBase + Va_t(uint32(va>>PageShift)*4)
}

// PdeAddr computes the virtual address of the page directory entry
// describing va, via the recursive self-map.
func PdeAddr(va Va_t) Va_t {
	return pdeBase + Va_t(dirIndex(va)*4)
}

// Memory gives a Space access to raw frame storage without ever
// dereferencing a synthetic address as a host pointer: a frame's bytes
// are reached by physical address, reinterpreted as 1024 page-table
// entries.
type Memory interface {
	Table(pa Pa_t) *[1024]Entry
}

// Space is one address space's page directory plus however many page
// tables it has populated. Page tables are always allocated from
// whichever allocFrame closure the caller supplies; every call site in
// kmem wires this to the kernel physical pool, so page tables always
// live in kernel memory regardless of which domain is being mapped.
type Space struct {
	mem       Memory
	dir       Pa_t
	allocFrame func() (Pa_t, bool)
	invlpg    atomic.Int64
}

// NewSpace creates a page table driver over an already-allocated,
// zeroed directory frame and installs the recursive self-map entry.
func NewSpace(mem Memory, dir Pa_t, allocFrame func() (Pa_t, bool)) *Space {
	s := &Space{mem: mem, dir: dir, allocFrame: allocFrame}
	d := mem.Table(dir)
	d[RecursiveSlot] = Entry(dir) | Flags
	return s
}

// Dir returns the physical address of this space's page directory.
func (s *Space) Dir() Pa_t { return s.dir }

// Map installs a mapping from va to pa with the given flags, allocating
// and zeroing an intermediate page table on demand.
func (s *Space) Map(va Va_t, pa Pa_t, flags Entry) defs.Err_t {
	d := s.mem.Table(s.dir)
	di := dirIndex(va)
	if d[di]&PteP == 0 {
		frame, ok := s.allocFrame()
		if !ok {
			return defs.ENOMEM
		}
		t := s.mem.Table(frame)
		for i := range t {
			t[i] = 0
		}
		d[di] = Entry(frame) | Flags
	}
	tbl := s.mem.Table(Pa_t(d[di] &^ (PageSize - 1)))
	ti := tblIndex(va)
	if tbl[ti]&PteP != 0 {
		return defs.EEXIST
	}
	tbl[ti] = Entry(pa) | flags | PteP
	return defs.EOK
}

// Unmap clears the mapping for va, if any.
func (s *Space) Unmap(va Va_t) defs.Err_t {
	d := s.mem.Table(s.dir)
	di := dirIndex(va)
	if d[di]&PteP == 0 {
		return defs.EFAULT
	}
	tbl := s.mem.Table(Pa_t(d[di] &^ (PageSize - 1)))
	ti := tblIndex(va)
	if tbl[ti]&PteP == 0 {
		return defs.EFAULT
	}
	tbl[ti] = 0
	s.invlpg.Add(1)
	return defs.EOK
}

// Translate walks the directory and table for va, returning the
// physical address it maps to.
func (s *Space) Translate(va Va_t) (Pa_t, bool) {
	d := s.mem.Table(s.dir)
	di := dirIndex(va)
	if d[di]&PteP == 0 {
		return 0, false
	}
	tbl := s.mem.Table(Pa_t(d[di] &^ (PageSize - 1)))
	ti := tblIndex(va)
	if tbl[ti]&PteP == 0 {
		return 0, false
	}
	base := Pa_t(tbl[ti] &^ (PageSize - 1))
	return base + Pa_t(pageOffset(va)), true
}

// Invlpg reports how many Unmap calls have invalidated a mapping on
// this space, standing in for a TLB shootdown counter.
func (s *Space) Invlpg() int64 { return s.invlpg.Load() }
