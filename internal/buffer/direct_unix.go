//go:build unix

package buffer

import (
	"golang.org/x/sys/unix"
)

// AllocDirect maps n zeroed bytes outside the Go heap and returns the function that unmaps them.
func AllocDirect(n int) ([]byte, func([]byte) error, error) {
	if n == 0 {
		return []byte{}, nil, nil
	}
	data, err := unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, err
	}
	return data, unix.Munmap, nil
}
