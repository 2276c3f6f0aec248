// Package heap implements a two-tier allocator: slab arenas carved into
// fixed-size blocks for small requests, whole page runs for anything too
// big to fit a slab class. Each arena is one page's worth of same-sized
// blocks threaded onto a free list (see flist); once every block in an
// arena has been freed, the arena's page is unmapped and its frame
// returned to the domain's physical pool rather than held onto forever.
// Populating a freshly carved arena's free list is bracketed by an
// interrupt-disable/restore pair (see intr) instead of the heap's own
// mutex, which is already held by the caller across the whole operation.
package heap

import (
	"sync"

	"coremem/defs"
	"coremem/flist"
	"coremem/intr"
	"coremem/pagealloc"
	"coremem/pgtable"
	"coremem/util"
)

// classSizes are the seven slab size classes, doubling from 16 to 1024
// bytes. Requests larger than the last class fall through to the large
// allocator.
var classSizes = [7]int{16, 32, 64, 128, 256, 512, 1024}

// MaxSlabSize is the largest request size served by a slab class.
const MaxSlabSize = 1024

// Arena is one page's worth of same-sized blocks belonging to a single
// BlockDesc, with its own free list and free-block count so the heap
// knows exactly when the whole page can be handed back.
type Arena struct {
	base      pgtable.Va_t
	free      *flist.List
	freeCount int
	capacity  int
}

// BlockDesc describes one slab size class: the block size, how many
// blocks fit in one page-sized arena, and the set of arenas currently
// carved for that class.
type BlockDesc struct {
	size           int
	blocksPerArena int
	arenas         map[pgtable.Va_t]*Arena
}

// Heap is one domain's slab+large allocator. kmem keeps one Heap per
// pool (kernel, user) and one per user task.
type Heap struct {
	mu         sync.Mutex
	dom        *pagealloc.Domain
	descs      [len(classSizes)]*BlockDesc
	blockClass map[pgtable.Va_t]int
	largeRuns  map[pgtable.Va_t]int
}

// New creates a heap over dom with all slab classes empty.
func New(dom *pagealloc.Domain) *Heap {
	h := &Heap{
		dom:        dom,
		blockClass: make(map[pgtable.Va_t]int),
		largeRuns:  make(map[pgtable.Va_t]int),
	}
	for i, sz := range classSizes {
		h.descs[i] = &BlockDesc{
			size:           sz,
			blocksPerArena: pgtable.PageSize / sz,
			arenas:         make(map[pgtable.Va_t]*Arena),
		}
	}
	return h
}

func classFor(size int) (int, bool) {
	for i, sz := range classSizes {
		if size <= sz {
			return i, true
		}
	}
	return 0, false
}

// arenaBase recovers the page-aligned arena a block belongs to. Every
// virtual base this heap ever allocates from is page-aligned, and every
// block offset within an arena is a multiple of the arena's block size,
// so masking off the page bits always lands on the arena's own base.
func arenaBase(va pgtable.Va_t) pgtable.Va_t {
	return va &^ pgtable.Va_t(pgtable.PageSize-1)
}

// growArena carves one freshly allocated page into blocks of the given
// class and threads them onto a new Arena's free list.
func (h *Heap) growArena(idx int) (*Arena, defs.Err_t) {
	desc := h.descs[idx]
	va, err := pagealloc.AllocPages(h.dom, 1)
	if err != defs.EOK {
		return nil, err
	}
	n := desc.blocksPerArena
	arena := &Arena{
		base:     va,
		free:     flist.New(h.dom.Virt.DerefU32),
		capacity: n,
	}

	s := intr.Disable()
	for i := 0; i < n; i++ {
		blk := va + pgtable.Va_t(i*desc.size)
		arena.free.Push(uint32(blk))
	}
	arena.freeCount = n
	intr.Restore(s)

	desc.arenas[va] = arena
	return arena, defs.EOK
}

func (h *Heap) pickArenaWithFree(idx int) *Arena {
	for _, a := range h.descs[idx].arenas {
		if a.freeCount > 0 {
			return a
		}
	}
	return nil
}

// SysMalloc allocates size bytes, rounding up to the nearest slab class
// or, past MaxSlabSize, to a whole number of pages.
func (h *Heap) SysMalloc(size int) (pgtable.Va_t, defs.Err_t) {
	if size <= 0 {
		return 0, defs.EINVAL
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	idx, ok := classFor(size)
	if !ok {
		npages := util.DivRoundUp(size, pgtable.PageSize)
		va, err := pagealloc.AllocPages(h.dom, npages)
		if err != defs.EOK {
			return 0, err
		}
		h.largeRuns[va] = npages
		return va, defs.EOK
	}

	arena := h.pickArenaWithFree(idx)
	if arena == nil {
		var err defs.Err_t
		arena, err = h.growArena(idx)
		if err != defs.EOK {
			return 0, err
		}
	}
	blk := pgtable.Va_t(arena.free.Pop())
	arena.freeCount--
	h.blockClass[blk] = idx
	return blk, defs.EOK
}

// SysFree releases a block or large run previously returned by
// SysMalloc. Freeing an address SysMalloc never returned is EINVAL.
// When every block in a slab arena has been freed, the arena's page is
// unmapped and its frame returned to the pool.
func (h *Heap) SysFree(va pgtable.Va_t) defs.Err_t {
	h.mu.Lock()
	defer h.mu.Unlock()

	if idx, ok := h.blockClass[va]; ok {
		delete(h.blockClass, va)
		desc := h.descs[idx]
		base := arenaBase(va)
		arena, ok := desc.arenas[base]
		if !ok {
			return defs.EINVAL
		}
		arena.free.Push(uint32(va))
		arena.freeCount++
		if arena.freeCount == arena.capacity {
			delete(desc.arenas, base)
			return pagealloc.FreePages(h.dom, base, 1)
		}
		return defs.EOK
	}
	if npages, ok := h.largeRuns[va]; ok {
		delete(h.largeRuns, va)
		return pagealloc.FreePages(h.dom, va, npages)
	}
	return defs.EINVAL
}

// MemBlock identifies one block currently handed out by SysMalloc from a
// slab class: its address and the size of the class it was carved from.
type MemBlock struct {
	Addr pgtable.Va_t
	Size int
}

// InUse lists every slab block SysMalloc has handed out and SysFree has
// not yet reclaimed, for diagnostics.
func (h *Heap) InUse() []MemBlock {
	h.mu.Lock()
	defer h.mu.Unlock()
	blocks := make([]MemBlock, 0, len(h.blockClass))
	for va, idx := range h.blockClass {
		blocks = append(blocks, MemBlock{Addr: va, Size: h.descs[idx].size})
	}
	return blocks
}

// Stats reports, for diagnostics, the number of free and carved blocks
// per slab class, how many arenas back each class, and the number and
// size of live large runs.
type Stats struct {
	ClassSizes     [len(classSizes)]int
	ClassFreeLen   [len(classSizes)]int
	ClassCarvedLen [len(classSizes)]int
	ClassArenas    [len(classSizes)]int
	LargeRunCount  int
	LargeRunPages  int
}

// Stat snapshots the heap's current bookkeeping.
func (h *Heap) Stat() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	var st Stats
	for i, d := range h.descs {
		st.ClassSizes[i] = d.size
		st.ClassArenas[i] = len(d.arenas)
		for _, a := range d.arenas {
			st.ClassFreeLen[i] += a.freeCount
			st.ClassCarvedLen[i] += a.capacity
		}
	}
	st.LargeRunCount = len(h.largeRuns)
	for _, n := range h.largeRuns {
		st.LargeRunPages += n
	}
	return st
}
