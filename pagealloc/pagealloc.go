// Package pagealloc implements the alloc_pages/free_pages family:
// reserve a run of virtual pages, back each one with a freshly allocated
// physical frame, and map it into the domain's page table. This is the
// layer kmem.GetKernelPages and kmem.GetUserPages both reduce to,
// parameterized over which Domain (kernel or user) they operate on.
//
// AllocPages deliberately does not roll back frames and mappings
// already installed when a later page in the run fails to allocate a
// physical frame: a partial run is left mapped and the caller sees
// ENOMEM, rather than paying for a rollback path that only fires on an
// already-exceptional allocator state.
package pagealloc

import (
	"coremem/defs"
	"coremem/phys"
	"coremem/pgtable"
	"coremem/virt"
)

// Domain bundles one address space's virtual allocator, physical pool,
// and page table driver into the triple every operation here needs.
// IsUser marks which side of the cross-domain invariant this domain sits
// on: a kernel caller (no live page directory) may only touch a domain
// with IsUser false, and a user task (live page directory) may only
// touch one with IsUser true.
type Domain struct {
	Virt   *virt.Space
	Phys   *phys.Pool
	PT     *pgtable.Space
	IsUser bool
}

// CurrentHasPageTable reports whether the calling context is a user task
// with a live page directory, as opposed to the kernel. pagealloc cannot
// import the task package directly without an import cycle (a Task
// holds a *heap.Heap, and heap already imports pagealloc), so kmem wires
// this up once at startup instead. A nil CurrentHasPageTable disables
// the cross-domain check entirely, which is what every test in this
// package relies on.
var CurrentHasPageTable func() bool

// CheckCrossDomain panics if the calling context's domain (kernel or
// user, per CurrentHasPageTable) does not match dom.IsUser: a kernel
// caller asking for a user domain's pages, or vice versa, is a fatal
// programming error rather than a recoverable one.
func CheckCrossDomain(dom *Domain) {
	if CurrentHasPageTable == nil {
		return
	}
	if CurrentHasPageTable() != dom.IsUser {
		panic("pagealloc: cross-domain page request")
	}
}

// AllocPages reserves npages virtual pages, backs each with a new
// physical frame, and maps it present|writable|user. On a mid-run
// failure to obtain a frame, the pages already mapped are left mapped
// and backed: the caller observes ENOMEM but the domain's accounting
// reflects the partial allocation.
func AllocPages(dom *Domain, npages int) (pgtable.Va_t, defs.Err_t) {
	return allocPages(dom, npages, false)
}

// AllocPagesLocked is AllocPages for a caller that already holds
// dom.Phys's lock for the entire operation, such as GetKernelPages and
// GetUserPages zeroing the range before release.
func AllocPagesLocked(dom *Domain, npages int) (pgtable.Va_t, defs.Err_t) {
	return allocPages(dom, npages, true)
}

func allocPages(dom *Domain, npages int, poolLocked bool) (pgtable.Va_t, defs.Err_t) {
	va, ok := dom.Virt.Alloc(npages)
	if !ok {
		return 0, defs.ENOMEM
	}
	if _, err := dom.Virt.Back(va, npages); err != 0 {
		return 0, err
	}
	for i := 0; i < npages; i++ {
		page := va + pgtable.Va_t(i*pgtable.PageSize)
		var pa pgtable.Pa_t
		var ok bool
		if poolLocked {
			pa, ok = dom.Phys.AllocLocked()
		} else {
			pa, ok = dom.Phys.Alloc()
		}
		if !ok {
			return 0, defs.ENOMEM
		}
		if err := dom.PT.Map(page, pa, pgtable.Flags); err != 0 {
			return 0, err
		}
	}
	return va, defs.EOK
}

// AllocPageAt maps a single already-reserved virtual page to a freshly
// allocated physical frame, without touching the virtual bitmap. It is
// used for pages whose virtual slot is fixed by convention (the boot
// page tables, the bitmap's own backing store) rather than chosen by
// the allocator.
func AllocPageAt(dom *Domain, va pgtable.Va_t) defs.Err_t {
	CheckCrossDomain(dom)
	if _, err := dom.Virt.Back(va, 1); err != 0 {
		return err
	}
	pa, ok := dom.Phys.Alloc()
	if !ok {
		return defs.ENOMEM
	}
	return dom.PT.Map(va, pa, pgtable.Flags)
}

// AllocPageAtNoBitmap maps va directly to a caller-supplied physical
// frame pa, touching neither the virtual bitmap nor the physical pool's
// bitmap. This mirrors get_a_page_without_opvaddrbitmap: the frame has
// already been accounted for by the caller (e.g. reusing a frame during
// page-table bootstrap).
func AllocPageAtNoBitmap(dom *Domain, va pgtable.Va_t, pa pgtable.Pa_t) defs.Err_t {
	if _, err := dom.Virt.Back(va, 1); err != 0 {
		return err
	}
	return dom.PT.Map(va, pa, pgtable.Flags)
}

// FreePages unmaps and releases npages pages starting at va, freeing
// both their physical frames and their virtual reservation.
func FreePages(dom *Domain, va pgtable.Va_t, npages int) defs.Err_t {
	for i := 0; i < npages; i++ {
		page := va + pgtable.Va_t(i*pgtable.PageSize)
		pa, ok := dom.PT.Translate(page)
		if !ok {
			continue
		}
		dom.PT.Unmap(page)
		dom.Phys.FreeFrame(pa)
	}
	dom.Virt.Unback(va, npages)
	return dom.Virt.Free(va, npages)
}

// Zero overwrites npages pages starting at va with zero bytes.
func Zero(dom *Domain, va pgtable.Va_t, npages int) defs.Err_t {
	for i := 0; i < npages; i++ {
		page := va + pgtable.Va_t(i*pgtable.PageSize)
		if !dom.Virt.Test(page) {
			return defs.EFAULT
		}
		buf := unsafeBytes(dom.Virt.Deref(page), pgtable.PageSize)
		for j := range buf {
			buf[j] = 0
		}
	}
	return defs.EOK
}
