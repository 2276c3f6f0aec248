// Package task models the minimal per-task memory state kmem needs from
// the currently running task: its virtual address space, page table
// driver, and heap.
package task

import (
	"sync/atomic"

	"coremem/heap"
	"coremem/pgtable"
	"coremem/virt"
)

// Task is one user task's memory context.
type Task struct {
	Pid  int
	Virt *virt.Space
	PT   *pgtable.Space
	Heap *heap.Heap
}

var current atomic.Pointer[Task]

// Current returns the task presently scheduled on this (simulated) CPU,
// or nil if none is set.
func Current() *Task {
	return current.Load()
}

// SetCurrent installs t as the currently scheduled task.
func SetCurrent(t *Task) {
	current.Store(t)
}
