package transmux

import "errors"

var (
	// ErrRegionOutOfBounds is returned at construction when
	// physical_start+physical_size exceeds the byte source's size.
	ErrRegionOutOfBounds = errors.New("transmux: physical region out of bounds")

	// ErrInvalidChannels is returned at construction for channel counts
	// outside the supported mono/stereo range (channel mapping family
	// > 0 is out of scope).
	ErrInvalidChannels = errors.New("transmux: only 1 or 2 channels are supported")

	// ErrStalledWalk is returned when a packet entry advances the
	// physical cursor by zero bytes, which would otherwise loop forever.
	ErrStalledWalk = errors.New("transmux: packet walk did not advance, source likely truncated or table entry corrupt")
)
