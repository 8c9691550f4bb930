package transmux

import (
	"fmt"

	"github.com/nexusradio/gameopus/pkg/transmux/bitio"
	"github.com/nexusradio/gameopus/pkg/transmux/oggpage"
	"github.com/nexusradio/gameopus/pkg/transmux/variant"
)

// computeLogicalSize walks the physical region once, accumulating the
// total logical (Ogg-Opus) stream size and the packet count, without
// materializing any page.
func computeLogicalSize(src bitio.Source, tag variant.Tag, physicalStart, physicalSize int64, headSize int) (logicalSize int64, packetCount int, err error) {
	physicalEnd := physicalStart + physicalSize
	if physicalEnd > src.Size() {
		return 0, 0, fmt.Errorf("transmux: physical region [%d,%d) exceeds source size %d: %w", physicalStart, physicalEnd, src.Size(), ErrRegionOutOfBounds)
	}

	logicalSize = int64(headSize)
	cursor := physicalStart
	packet := 0

	for cursor < physicalEnd {
		payloadSize, skipSize, nerr := variant.NextPacket(src, tag, cursor, packet)
		if nerr != nil {
			return 0, 0, fmt.Errorf("transmux: size precompute: %w", nerr)
		}

		if payloadSize+skipSize == 0 {
			return 0, 0, fmt.Errorf("transmux: size precompute at packet %d, offset %d: %w", packet, cursor, ErrStalledWalk)
		}

		logicalSize += int64(oggpage.Overhead(int(payloadSize))) + payloadSize
		cursor += payloadSize + skipSize
		packet++
	}

	return logicalSize, packet, nil
}
