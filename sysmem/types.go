package sysmem

import "errors"

// AccessPattern provides hints to the kernel about how the memory will be accessed.
type AccessPattern int

const (
	// AccessDefault is the default access pattern (no specific advice).
	AccessDefault AccessPattern = iota
	// AccessSequential expects memory to be accessed sequentially.
	AccessSequential
	// AccessRandom expects memory to be accessed randomly.
	AccessRandom
	// AccessWillNeed expects memory to be accessed in the near future.
	AccessWillNeed
	// AccessDontNeed expects memory to not be accessed in the near future.
	AccessDontNeed
)

var (
	// ErrUnknownBlock is returned when a block was not handed out by this allocator.
	ErrUnknownBlock = errors.New("sysmem: unknown block")
	// ErrInvalidSize is returned when the requested size cannot be page-rounded.
	ErrInvalidSize = errors.New("sysmem: invalid size")
)
