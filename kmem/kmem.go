// Package kmem is the memory manager's public facade: kernel and user
// frame pools, their virtual address spaces and page tables, the two
// heaps layered on top, and the standalone entry points callers reach
// for directly (get_a_page, addr_v2p, sys_malloc, and friends).
package kmem

import (
	"sync"

	"coremem/config"
	"coremem/defs"
	"coremem/diag"
	"coremem/heap"
	"coremem/pagealloc"
	"coremem/pgtable"
	"coremem/phys"
	"coremem/task"
	"coremem/virt"
)

const (
	// LowMemEnd is the first physical address past the BIOS/boot-loader
	// reserved low memory region.
	LowMemEnd pgtable.Pa_t = 0x00100000
	// BootPageTables is the physical address of the page directory and
	// tables the boot loader built before the kernel pool exists.
	BootPageTables pgtable.Pa_t = 0x00100000
	// KernelPoolStart is the default first frame of the kernel pool.
	KernelPoolStart pgtable.Pa_t = 0x00200000
	// MinFreeableFrame is the lowest physical frame MfreePage/FreeAPhyPage
	// will accept; frames below it belong to the boot page tables and
	// must never be returned to a pool.
	MinFreeableFrame pgtable.Pa_t = 0x00102000
	// KernelVirtStart is the base of the kernel's higher-half virtual
	// range.
	KernelVirtStart pgtable.Va_t = 0xC0100000
	// BitmapBase is the fixed virtual address of the occupancy-bitmap
	// region in the modeled kernel layout. MemInit maps nothing there:
	// each pool's and space's bitmap is an ordinary Go allocation made by
	// phys.New and virt.New.
	BitmapBase pgtable.Va_t = 0xC009A000
)

func init() {
	pagealloc.CurrentHasPageTable = func() bool {
		t := task.Current()
		return t != nil && t.PT != nil
	}
}

var (
	initOnce sync.Once

	kernelPhys *phys.Pool
	userPhys   *phys.Pool
	kernelVirt *virt.Space
	userVirt   *virt.Space
	kernelPT   *pgtable.Space
	userPT     *pgtable.Space

	kernelDom *pagealloc.Domain
	userDom   *pagealloc.Domain

	kernelHeap *heap.Heap
	userHeap   *heap.Heap
)

// MemInit brings up the kernel and user pools, their virtual spaces and
// page tables, and both heaps, from the parameters the boot loader is
// assumed to have already discovered. It is safe to call more than
// once; only the first call takes effect.
func MemInit(bp config.BootParams) defs.Err_t {
	var initErr defs.Err_t
	initOnce.Do(func() {
		var err error
		kernelPhys, err = phys.New(bp.KernelPoolStart, bp.TotalFreePages)
		if err != nil {
			diag.Printf("mem init: kernel pool: %v\n", err)
			initErr = defs.ENOMEM
			return
		}
		userPhys, err = phys.New(bp.UserPoolStart, bp.UserFreePages)
		if err != nil {
			diag.Printf("mem init: user pool: %v\n", err)
			initErr = defs.ENOMEM
			return
		}

		kernelVirt = virt.New(KernelVirtStart, bp.TotalFreePages)
		userVirt = virt.New(0x08000000, bp.UserFreePages)

		allocPTFrame := func() (pgtable.Pa_t, bool) { return kernelPhys.Alloc() }

		kdir, ok := kernelPhys.Alloc()
		if !ok {
			initErr = defs.ENOMEM
			return
		}
		kernelPT = pgtable.NewSpace(kernelPhys, kdir, allocPTFrame)

		udir, ok := kernelPhys.Alloc()
		if !ok {
			initErr = defs.ENOMEM
			return
		}
		userPT = pgtable.NewSpace(kernelPhys, udir, allocPTFrame)

		kernelDom = &pagealloc.Domain{Virt: kernelVirt, Phys: kernelPhys, PT: kernelPT, IsUser: false}
		userDom = &pagealloc.Domain{Virt: userVirt, Phys: userPhys, PT: userPT, IsUser: true}

		kernelHeap = heap.New(kernelDom)
		userHeap = heap.New(userDom)

		diag.Printf("mem init: kernel pool %d pages, user pool %d pages\n",
			bp.TotalFreePages, bp.UserFreePages)
	})
	return initErr
}

// GetKernelPages reserves and maps npages contiguous pages in the
// kernel's address space, holding the kernel pool's lock for the whole
// operation and zeroing the returned range before any other caller can
// observe it.
func GetKernelPages(npages int) (pgtable.Va_t, defs.Err_t) {
	return getPages(kernelDom, npages)
}

// GetUserPages reserves and maps npages contiguous pages in the user
// address space, holding the user pool's lock for the whole operation
// and zeroing the returned range before any other caller can observe it.
func GetUserPages(npages int) (pgtable.Va_t, defs.Err_t) {
	return getPages(userDom, npages)
}

func getPages(dom *pagealloc.Domain, npages int) (pgtable.Va_t, defs.Err_t) {
	dom.Phys.Lock()
	defer dom.Phys.Unlock()
	va, err := pagealloc.AllocPagesLocked(dom, npages)
	if err != defs.EOK {
		return 0, err
	}
	if err := pagealloc.Zero(dom, va, npages); err != defs.EOK {
		return 0, err
	}
	return va, defs.EOK
}

// GetAPage maps a single already-reserved virtual page in dom to a
// freshly allocated frame. It reproduces a defect present in the
// original: on the path where backing the virtual page fails after the
// physical frame has already been allocated and locked, the pool's lock
// is not released. Every other path releases it correctly. This is a
// deliberate reproduction, not an oversight; see the accompanying
// design notes' Open Question decision on get_a_page's lock handling.
func GetAPage(dom *pagealloc.Domain, va pgtable.Va_t) defs.Err_t {
	pagealloc.CheckCrossDomain(dom)
	if idx, ok := dom.Virt.IndexOf(va); !ok || idx == 0 {
		panic("kmem: GetAPage called on the space's first page")
	}
	dom.Phys.Lock()
	pa, ok := dom.Phys.AllocLocked()
	if !ok {
		dom.Phys.Unlock()
		return defs.ENOMEM
	}
	if _, err := dom.Virt.Back(va, 1); err != defs.EOK {
		return err
	}
	if err := dom.PT.Map(va, pa, pgtable.Flags); err != defs.EOK {
		dom.Phys.Unlock()
		return err
	}
	dom.Phys.Unlock()
	return defs.EOK
}

// GetAPageWithoutOpVaddrBitmap maps va directly to pa without touching
// either pool's occupancy bitmap, for callers that have already
// accounted for the frame themselves (bootstrap code reusing a frame
// from the boot page tables).
func GetAPageWithoutOpVaddrBitmap(dom *pagealloc.Domain, va pgtable.Va_t, pa pgtable.Pa_t) defs.Err_t {
	return pagealloc.AllocPageAtNoBitmap(dom, va, pa)
}

// AddrV2P translates a virtual address to the physical frame it's
// currently mapped to within dom.
func AddrV2P(dom *pagealloc.Domain, va pgtable.Va_t) (pgtable.Pa_t, defs.Err_t) {
	pa, ok := dom.PT.Translate(va)
	if !ok {
		return 0, defs.EFAULT
	}
	return pa, defs.EOK
}

// MfreePage unmaps and releases npages pages starting at va within dom.
func MfreePage(dom *pagealloc.Domain, va pgtable.Va_t, npages int) defs.Err_t {
	return pagealloc.FreePages(dom, va, npages)
}

// FreeAPhyPage releases a single physical frame back to dom's pool
// without touching any virtual mapping. Frames below MinFreeableFrame
// are rejected: they belong to the boot page tables and must never be
// recycled.
func FreeAPhyPage(dom *pagealloc.Domain, pa pgtable.Pa_t) defs.Err_t {
	if pa < MinFreeableFrame {
		return defs.EINVAL
	}
	return dom.Phys.FreeFrame(pa)
}

// SysMalloc allocates size bytes from the kernel heap.
func SysMalloc(size int) (pgtable.Va_t, defs.Err_t) {
	return kernelHeap.SysMalloc(size)
}

// SysFree releases a block previously returned by SysMalloc.
func SysFree(va pgtable.Va_t) defs.Err_t {
	return kernelHeap.SysFree(va)
}

// UserMalloc allocates size bytes from t's own heap.
func UserMalloc(t *task.Task, size int) (pgtable.Va_t, defs.Err_t) {
	return userHeapFor(t).SysMalloc(size)
}

// UserFree releases a block previously returned by UserMalloc.
func UserFree(t *task.Task, va pgtable.Va_t) defs.Err_t {
	return userHeapFor(t).SysFree(va)
}

func userHeapFor(t *task.Task) *heap.Heap {
	if t == nil {
		return userHeap
	}
	return t.Heap
}

// NewUserTask allocates a fresh user address space, page table, and
// heap for pid, with its own page directory drawn from the kernel pool
// (page tables always live in kernel memory, never in the pool they
// describe).
func NewUserTask(pid int) (*task.Task, defs.Err_t) {
	dir, ok := kernelPhys.Alloc()
	if !ok {
		return nil, defs.ENOMEM
	}
	allocPTFrame := func() (pgtable.Pa_t, bool) { return kernelPhys.Alloc() }
	pt := pgtable.NewSpace(kernelPhys, dir, allocPTFrame)
	vs := virt.New(0x08000000, userVirt.Len())

	dom := &pagealloc.Domain{Virt: vs, Phys: userPhys, PT: pt, IsUser: true}
	t := &task.Task{
		Pid:  pid,
		Virt: vs,
		PT:   pt,
		Heap: heap.New(dom),
	}
	return t, defs.EOK
}

// KernelDomain exposes the kernel pool's virt/phys/page-table triple for
// callers (heapdiag, cmd/memdemo) that need it directly.
func KernelDomain() *pagealloc.Domain { return kernelDom }

// UserDomain exposes the user pool's virt/phys/page-table triple.
func UserDomain() *pagealloc.Domain { return userDom }

// KernelHeap exposes the kernel heap for diagnostics.
func KernelHeap() *heap.Heap { return kernelHeap }

// UserHeap exposes the default user heap for diagnostics.
func UserHeap() *heap.Heap { return userHeap }
