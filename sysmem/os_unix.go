//go:build unix

package sysmem

import "golang.org/x/sys/unix"

func osMapAnon(size int) ([]byte, func([]byte) error, error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, err
	}
	return data, unix.Munmap, nil
}

func adviceFor(pattern AccessPattern) int {
	switch pattern {
	case AccessSequential:
		return unix.MADV_SEQUENTIAL
	case AccessRandom:
		return unix.MADV_RANDOM
	case AccessWillNeed:
		return unix.MADV_WILLNEED
	case AccessDontNeed:
		return unix.MADV_DONTNEED
	}
	return unix.MADV_NORMAL
}

func osAdvise(data []byte, pattern AccessPattern) error {
	if len(data) == 0 {
		return nil
	}

	// The hint is advisory. Linux rejects addresses that are not
	// page-aligned with EINVAL; treat that as a no-op rather than a
	// failure.
	if err := unix.Madvise(data, adviceFor(pattern)); err != nil && err != unix.EINVAL {
		return err
	}
	return nil
}
