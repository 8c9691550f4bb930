// Package variant reads the per-packet framing of the four supported
// game-specific custom Opus containers.
package variant

import (
	"fmt"

	"github.com/nexusradio/gameopus/pkg/transmux/bitio"
)

// Tag selects which per-packet framing a container uses.
type Tag int

const (
	// Switch packets are framed as a big-endian uint32 payload size
	// followed by 8 bytes of size+state to skip before the payload.
	Switch Tag = iota
	// UE4 packets are framed as a little-endian uint16 payload size
	// followed by 2 bytes to skip.
	UE4
	// EA packets are framed as a big-endian uint16 payload size
	// followed by 2 bytes to skip.
	EA
	// X packets carry no per-packet framing at all: payload sizes live
	// in a little-endian uint16 table at offset 0x20, one entry per
	// packet index, and payloads are contiguous.
	X
)

func (t Tag) String() string {
	switch t {
	case Switch:
		return "switch"
	case UE4:
		return "ue4"
	case EA:
		return "ea"
	case X:
		return "x"
	default:
		return fmt.Sprintf("variant.Tag(%d)", int(t))
	}
}

// ParseTag maps a lowercase variant name to its Tag.
func ParseTag(s string) (Tag, error) {
	switch s {
	case "switch":
		return Switch, nil
	case "ue4":
		return UE4, nil
	case "ea":
		return EA, nil
	case "x":
		return X, nil
	default:
		return 0, fmt.Errorf("variant: unknown tag %q", s)
	}
}

// xTableOffset is where the X variant's packet size table begins.
const xTableOffset = 0x20

// NextPacket returns the payload size and the number of bytes to skip
// before the payload, for the packet at packetIndex starting at
// physicalOffset.
func NextPacket(src bitio.Source, tag Tag, physicalOffset int64, packetIndex int) (payloadSize, skipSize int64, err error) {
	switch tag {
	case Switch:
		return int64(bitio.U32BE(src, physicalOffset)), 8, nil
	case UE4:
		return int64(bitio.U16LE(src, physicalOffset)), 2, nil
	case EA:
		return int64(bitio.U16BE(src, physicalOffset)), 2, nil
	case X:
		entryOffset := int64(xTableOffset + packetIndex*2)
		return int64(bitio.U16LE(src, entryOffset)), 0, nil
	default:
		return 0, 0, fmt.Errorf("variant: invalid tag %v", tag)
	}
}
