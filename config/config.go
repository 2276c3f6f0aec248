// Package config holds the boot-time parameters the memory manager
// needs before it can initialize: how much RAM the loader detected and
// where the kernel and user frame pools begin. Grouping them into one
// struct lets kmem.MemInit take an explicit, testable argument instead
// of reading package-level mutable state.
package config

import "coremem/pgtable"

// BootParams are the values the boot loader is assumed to have already
// established before the memory manager initializes.
type BootParams struct {
	// TotalFreePages is the number of 4KiB pages available for the
	// kernel pool once the kernel image and low-memory reservations are
	// subtracted.
	TotalFreePages int
	// UserFreePages is the number of pages available for the user pool.
	UserFreePages int
	// KernelPoolStart is the first physical address the kernel frame
	// pool may hand out.
	KernelPoolStart pgtable.Pa_t
	// UserPoolStart is the first physical address the user frame pool
	// may hand out.
	UserPoolStart pgtable.Pa_t
}

// ParseBootWord derives a BootParams from a single 32-bit memory-size
// word (total installed RAM in bytes) such as a multiboot-style boot
// record would report, splitting it into a kernel pool and a user pool:
// the first 2MiB (low memory and the boot page tables) is reserved, the
// kernel pool starts at 2MiB and gets at most 4MiB of the remaining RAM,
// and the user pool starts right after that 4MiB slot and gets the rest.
func ParseBootWord(totalMemBytes uint32) BootParams {
	const (
		lowMemEnd       = 0x00100000
		kernelPoolStart = 0x00200000
		kernelPoolCap   = 0x00400000
	)
	totalPages := int(totalMemBytes / pgtable.PageSize)
	freePages := totalPages - int(kernelPoolStart/pgtable.PageSize)
	if freePages < 0 {
		freePages = 0
	}
	kernelPages := int(kernelPoolCap / pgtable.PageSize)
	if kernelPages > freePages {
		kernelPages = freePages
	}
	userPages := freePages - kernelPages
	if userPages < 0 {
		userPages = 0
	}
	return BootParams{
		TotalFreePages:  kernelPages,
		UserFreePages:   userPages,
		KernelPoolStart: kernelPoolStart,
		UserPoolStart:   kernelPoolStart + pgtable.Pa_t(kernelPoolCap),
	}
}
