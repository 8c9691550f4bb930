// Package oggpage lays out a single Ogg page (RFC 3533) into a
// caller-provided buffer and synthesizes the two Ogg-Opus identification
// header pages (RFC 7845).
package oggpage

import (
	"fmt"

	"github.com/nexusradio/gameopus/pkg/transmux/bitio"
	"github.com/nexusradio/gameopus/pkg/transmux/oggcrc"
)

// StreamSerial is the fixed, arbitrary logical bitstream serial number
// stamped into every page this package builds.
const StreamSerial = 0x7667

const (
	headerSize  = 27
	maxSegments = 255
)

// Overhead returns the number of bytes an Ogg page needs beyond its
// payload for a payload of size n: the 27-byte header plus the lacing
// table (floor(n/255)+1 entries, so a positive multiple of 255 gets a
// trailing 0 lacing value).
func Overhead(n int) int {
	return headerSize + segmentCount(n)
}

func segmentCount(n int) int {
	return n/maxSegments + 1
}

// Build lays out a full Ogg page into dst: capture pattern, header
// flags, granule, serial, sequence, lacing table, then the payload
// (already present at dst[Overhead(len(payload)):]), followed by the
// CRC computed over the whole page with the checksum field zeroed.
// dst must be at least Overhead(len(payload))+len(payload) bytes; the
// payload bytes must already have been copied into place by the caller
// before calling Build.
func Build(dst []byte, payloadLen int, sequence uint32, granule uint64) (int, error) {
	total := Overhead(payloadLen) + payloadLen
	if len(dst) < total {
		return 0, fmt.Errorf("oggpage: buffer too small for page: need %d, have %d", total, len(dst))
	}

	headerFlags := byte(0)
	if sequence == 0 {
		headerFlags = 0x02 // BoS
	}

	dst[0], dst[1], dst[2], dst[3] = 'O', 'g', 'g', 'S'
	bitio.PutU8(dst, 4, 0) // stream structure version
	bitio.PutU8(dst, 5, headerFlags)
	bitio.PutU64LE(dst, 6, granule)
	bitio.PutU32LE(dst, 14, StreamSerial)
	bitio.PutU32LE(dst, 18, sequence)
	bitio.PutU32LE(dst, 22, 0) // checksum placeholder

	segN := segmentCount(payloadLen)
	bitio.PutU8(dst, 26, byte(segN))

	off := headerSize
	remaining := payloadLen
	for remaining >= maxSegments {
		bitio.PutU8(dst, off, maxSegments)
		off++
		remaining -= maxSegments
	}
	bitio.PutU8(dst, off, byte(remaining))
	off++

	if off != headerSize+segN {
		return 0, fmt.Errorf("oggpage: internal lacing mismatch: wrote %d segments, expected %d", off-headerSize, segN)
	}

	checksum := oggcrc.Checksum(dst[:total])
	bitio.PutU32LE(dst, 22, checksum)

	return total, nil
}
