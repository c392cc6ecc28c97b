//go:build !linux

package memory

// arenaBuffer falls back to heap memory on platforms without the mmap path.
func arenaBuffer(size int) ([]byte, func() error, error) {
	return make([]byte, size), nil, nil
}
