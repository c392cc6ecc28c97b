//go:build linux

package memory

import "golang.org/x/sys/unix"

// arenaBuffer reserves the arena backing as an anonymous private mapping so
// hosted "physical" memory stays out of the Go heap.
func arenaBuffer(size int) ([]byte, func() error, error) {
	data, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, err
	}
	return data, func() error { return unix.Munmap(data) }, nil
}
