//go:build windows

package sysmem

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

func osMapAnon(size int) ([]byte, func([]byte) error, error) {
	// MEM_RESERVE|MEM_COMMIT demand-pages like anonymous mmap: physical
	// memory is attached on first touch, not upfront. A pagefile-backed
	// CreateFileMapping would charge the whole region immediately.
	base, err := windows.VirtualAlloc(0, uintptr(size),
		windows.MEM_RESERVE|windows.MEM_COMMIT, windows.PAGE_READWRITE)
	if err != nil {
		return nil, nil, err
	}

	unmap := func([]byte) error {
		return windows.VirtualFree(base, 0, windows.MEM_RELEASE)
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(base)), size), unmap, nil
}

func osAdvise([]byte, AccessPattern) error {
	// No madvise counterpart. PrefetchVirtualMemory would cover the
	// will-need case on Windows 8+, but the hint is optional, so skip it.
	return nil
}
