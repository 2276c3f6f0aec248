// Package heapdiag renders a heap.Heap's bookkeeping as a pprof heap
// profile, so the allocator's slab occupancy can be inspected with the
// same tooling (go tool pprof) used to inspect a real Go process's heap.
package heapdiag

import (
	"fmt"
	"io"

	"github.com/google/pprof/profile"

	"coremem/heap"
)

// Snapshot builds a pprof Profile describing h's current slab occupancy:
// one sample per size class reporting its in-use object count and
// in-use byte count, one sample for the large-object tier, and one
// sample per live slab block labeled with its address.
func Snapshot(h *heap.Heap) *profile.Profile {
	st := h.Stat()

	objType := &profile.ValueType{Type: "objects", Unit: "count"}
	spaceType := &profile.ValueType{Type: "space", Unit: "bytes"}

	classLoc := &profile.Location{ID: 1}
	largeLoc := &profile.Location{ID: 2}
	blockLoc := &profile.Location{ID: 3}

	p := &profile.Profile{
		SampleType: []*profile.ValueType{objType, spaceType},
		Location:   []*profile.Location{classLoc, largeLoc, blockLoc},
	}

	for i, size := range st.ClassSizes {
		inUse := st.ClassCarvedLen[i] - st.ClassFreeLen[i]
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{classLoc},
			Value:    []int64{int64(inUse), int64(inUse * size)},
			Label: map[string][]string{
				"class": {fmt.Sprintf("%d", size)},
			},
		})
	}

	p.Sample = append(p.Sample, &profile.Sample{
		Location: []*profile.Location{largeLoc},
		Value:    []int64{int64(st.LargeRunCount), int64(st.LargeRunPages * 4096)},
		Label: map[string][]string{
			"class": {"large"},
		},
	})

	for _, b := range h.InUse() {
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{blockLoc},
			Value:    []int64{1, int64(b.Size)},
			Label: map[string][]string{
				"addr": {fmt.Sprintf("%#x", b.Addr)},
			},
		})
	}

	return p
}

// Write serializes a snapshot of h to w in pprof's gzip'd protobuf
// format.
func Write(w io.Writer, h *heap.Heap) error {
	return Snapshot(h).Write(w)
}
