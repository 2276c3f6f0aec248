// Package flist implements an intrusive singly-linked free list: the
// link for a free block lives inside the block's own bytes rather than
// in a separately allocated node, by casting the freed block's first
// machine word into a next-pointer.
//
// Because blocks here are addressed by synthetic uint32 virtual addresses
// rather than host pointers (see virt.Space), the list stores the next
// link as a uint32 and resolves it to host bytes through an injected
// Deref, instead of reading an unsafe.Pointer directly out of memory.
package flist

import "unsafe"

// Null is the list terminator. No real allocation in this design ever
// lives at virtual address zero, so it is safe to reuse as "empty".
const Null uint32 = 0

// Deref resolves a synthetic virtual address to the host memory backing
// it, matching virt.Space.Deref's signature.
type Deref func(addr uint32) unsafe.Pointer

// List is a LIFO free list of fixed-size blocks threaded through the
// blocks' own storage.
type List struct {
	head  uint32
	deref Deref
}

// New returns an empty list that resolves addresses via deref.
func New(deref Deref) *List {
	return &List{head: Null, deref: deref}
}

// Empty reports whether the list has no blocks.
func (l *List) Empty() bool { return l.head == Null }

// Push threads addr onto the front of the list, overwriting the first
// four bytes of the block at addr with the previous head.
func (l *List) Push(addr uint32) {
	if addr == Null {
		panic("flist: cannot push null address")
	}
	*l.linkAt(addr) = l.head
	l.head = addr
}

// Pop removes and returns the block at the front of the list, or Null
// if the list is empty.
func (l *List) Pop() uint32 {
	if l.head == Null {
		return Null
	}
	addr := l.head
	l.head = *l.linkAt(addr)
	return addr
}

// Peek returns the block at the front of the list without removing it.
func (l *List) Peek() uint32 { return l.head }

func (l *List) linkAt(addr uint32) *uint32 {
	return (*uint32)(l.deref(addr))
}
