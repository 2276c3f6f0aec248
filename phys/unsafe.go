package phys

import "unsafe"

// unsafeSliceToArrayPtr reinterprets a page-sized byte slice's backing
// array as a pointer to the start of that memory, for Table's cast into
// [1024]pgtable.Entry. The slice is guaranteed page-sized and page-
// aligned since it always comes from a single frame's mmap region.
func unsafeSliceToArrayPtr(b []byte) unsafe.Pointer {
	return unsafe.Pointer(unsafe.SliceData(b))
}
