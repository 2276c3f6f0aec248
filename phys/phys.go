// Package phys implements the bitmap-backed physical frame pool: one
// mutex per pool, one bit per frame, first-fit scanning. Each pool's
// frame storage is backed by a real anonymous mapping rather than a
// plain Go slice, so Table can hand out pointers that behave like real
// frame-local memory, including surviving reinterpretation as an array
// of page table entries.
package phys

import (
	"sync"

	"golang.org/x/sys/unix"

	"coremem/bitmap"
	"coremem/defs"
	"coremem/pgtable"
)

// Pool is one physical frame pool: the kernel pool or the user pool.
// Frame 0 of the pool is at physical address Base; frame i is at
// Base + i*PageSize.
type Pool struct {
	mu      sync.Mutex
	Base    pgtable.Pa_t
	nframes int
	bm      *bitmap.Bitmap
	backing []byte
}

// New reserves nframes frames worth of real host memory starting at the
// symbolic physical address base, via an anonymous mmap so that Table
// can return genuinely addressable, page-table-shaped storage.
func New(base pgtable.Pa_t, nframes int) (*Pool, error) {
	backing, err := unix.Mmap(-1, 0, nframes*pgtable.PageSize,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, err
	}
	return &Pool{
		Base:    base,
		nframes: nframes,
		bm:      bitmap.New(nframes),
		backing: backing,
	}, nil
}

// Close releases the pool's backing mapping.
func (p *Pool) Close() error {
	return unix.Munmap(p.backing)
}

// Lock and Unlock expose the pool's mutex directly, so that kmem's
// GetKernelPages, GetUserPages and GetAPage can hold it across an
// operation that also touches a virtual space and a page table. The
// other kmem entry points (SysMalloc, SysFree, MfreePage, FreeAPhyPage)
// do not hold it; they rely on the heap's own mutex and on Alloc and
// FreeFrame locking the pool for each single call.
func (p *Pool) Lock()   { p.mu.Lock() }
func (p *Pool) Unlock() { p.mu.Unlock() }

// NumFrames returns the pool's total frame capacity.
func (p *Pool) NumFrames() int { return p.nframes }

// Size returns the pool's total byte capacity.
func (p *Pool) Size() int { return p.nframes * pgtable.PageSize }

// FreeFrames returns the number of currently unallocated frames.
func (p *Pool) FreeFrames() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nframes - p.bm.Count()
}

// index converts a physical address into this pool's frame index.
func (p *Pool) index(pa pgtable.Pa_t) (int, bool) {
	if pa < p.Base {
		return 0, false
	}
	off := pa - p.Base
	if off%pgtable.PageSize != 0 {
		return 0, false
	}
	idx := int(off / pgtable.PageSize)
	if idx >= p.nframes {
		return 0, false
	}
	return idx, true
}

// Contains reports whether pa names a frame belonging to this pool.
func (p *Pool) Contains(pa pgtable.Pa_t) bool {
	_, ok := p.index(pa)
	return ok
}

// allocLocked is Alloc's body without locking; AllocLocked exposes it to
// callers that hold the pool lock across a larger operation.
func (p *Pool) allocLocked() (pgtable.Pa_t, bool) {
	idx, ok := p.bm.ScanZero()
	if !ok {
		return 0, false
	}
	p.bm.Set(idx)
	return p.Base + pgtable.Pa_t(idx*pgtable.PageSize), true
}

// Alloc reserves and returns one free frame.
func (p *Pool) Alloc() (pgtable.Pa_t, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocLocked()
}

// AllocLocked is Alloc for a caller already holding the pool's lock.
func (p *Pool) AllocLocked() (pgtable.Pa_t, bool) {
	return p.allocLocked()
}

// FreeFrame releases frame pa back to the pool.
func (p *Pool) FreeFrame(pa pgtable.Pa_t) defs.Err_t {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx, ok := p.index(pa)
	if !ok {
		return defs.EINVAL
	}
	if !p.bm.Test(idx) {
		return defs.EINVAL
	}
	p.bm.Clear(idx)
	return defs.EOK
}

// Table reinterprets the frame at pa as 1024 page table entries,
// satisfying pgtable.Memory.
func (p *Pool) Table(pa pgtable.Pa_t) *[1024]pgtable.Entry {
	idx, ok := p.index(pa)
	if !ok {
		panic("phys: Table called on out-of-pool address")
	}
	off := idx * pgtable.PageSize
	return (*[1024]pgtable.Entry)(
		unsafeSliceToArrayPtr(p.backing[off : off+pgtable.PageSize]),
	)
}

// Bytes returns n raw bytes of pool storage starting at frame pa, for
// byte-level access rather than a page-table view.
func (p *Pool) Bytes(pa pgtable.Pa_t, n int) []byte {
	idx, ok := p.index(pa)
	if !ok {
		panic("phys: Bytes called on out-of-pool address")
	}
	off := idx * pgtable.PageSize
	return p.backing[off : off+n]
}
