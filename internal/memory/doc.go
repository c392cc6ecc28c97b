// Package memory provides hosted reference implementations of the memory
// collaborators the IPC core consumes: a physical page allocator backed by
// one anonymous mapping (Arena) and a per-page-table virtual memory
// bookkeeper (AddressSpace).
//
// On a real machine these roles belong to the kernel's physical frame
// allocator and page table walker; the hosted versions keep the same
// contracts so the IPC core is exercised end to end.
package memory
