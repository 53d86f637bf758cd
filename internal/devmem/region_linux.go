//go:build linux

package devmem

import "golang.org/x/sys/unix"

func alloc(n int) ([]byte, bool, error) {
	b, err := unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func release(b []byte) error {
	return unix.Munmap(b)
}
