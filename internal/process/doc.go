// Package process provides the process-facing collaborators of the IPC
// core: a process table resolving pids to page table handles, and a wake
// scheduler queuing wakeup requests for the host scheduler loop.
package process
