package pagealloc

import "unsafe"

// unsafeBytes views n bytes of host memory starting at p as a slice,
// for Zero's bulk clear of a backed page.
func unsafeBytes(p unsafe.Pointer, n int) []byte {
	return unsafe.Slice((*byte)(p), n)
}
