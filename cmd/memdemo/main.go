// Command memdemo boots the memory manager with a configurable amount
// of simulated RAM, runs a short allocate/free workload against both
// the page allocator and the heap, and optionally writes a pprof heap
// snapshot to disk.
package main

import (
	"flag"
	"fmt"
	"os"

	"coremem/config"
	"coremem/defs"
	"coremem/diag"
	"coremem/heapdiag"
	"coremem/kmem"
	"coremem/pgtable"
)

func main() {
	memMB := flag.Int("mem-mb", 16, "simulated total RAM in megabytes")
	verbose := flag.Bool("v", true, "print diagnostic boot trace")
	pprofOut := flag.String("pprof-out", "", "write a pprof heap snapshot to this path")
	flag.Parse()

	diag.Verbose = *verbose

	bp := config.ParseBootWord(uint32(*memMB) * 1024 * 1024)
	if err := kmem.MemInit(bp); err != defs.EOK {
		fmt.Fprintf(os.Stderr, "mem init failed: %v\n", err)
		os.Exit(1)
	}

	runWorkload()

	if *pprofOut != "" {
		f, err := os.Create(*pprofOut)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pprof-out: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		if err := heapdiag.Write(f, kmem.KernelHeap()); err != nil {
			fmt.Fprintf(os.Stderr, "pprof write: %v\n", err)
			os.Exit(1)
		}
		diag.Printf("wrote heap snapshot to %s\n", *pprofOut)
	}
}

func runWorkload() {
	var live []pgtable.Va_t
	sizes := []int{16, 48, 200, 900, 4096, 16384}
	for _, sz := range sizes {
		va, err := kmem.SysMalloc(sz)
		if err != defs.EOK {
			diag.Printf("sys_malloc(%d) failed: %v\n", sz, err)
			continue
		}
		diag.Printf("sys_malloc(%d) -> %#x\n", sz, va)
		live = append(live, va)
	}
	for i, va := range live {
		if i%2 == 0 {
			continue
		}
		if err := kmem.SysFree(va); err != defs.EOK {
			diag.Printf("sys_free(%#x) failed: %v\n", va, err)
		}
	}
}
