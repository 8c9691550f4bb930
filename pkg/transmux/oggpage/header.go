package oggpage

import (
	"encoding/binary"
	"fmt"
)

const (
	// VendorString and CommentString are the implementation-chosen
	// constants stamped into the OpusTags comment packet.
	VendorString  = "gameopus"
	CommentString = "gameopus transmuxer"

	// MaxHeaderSize bounds the prelude buffer (head_size <= 256 per the
	// data model).
	MaxHeaderSize = 256
)

var (
	opusHeadMagic = [8]byte{'O', 'p', 'u', 's', 'H', 'e', 'a', 'd'}
	opusTagsMagic = [8]byte{'O', 'p', 'u', 's', 'T', 'a', 'g', 's'}
)

// SynthesizeHeader builds the two initial Ogg pages (sequence 0 and 1:
// OpusHead identification, then OpusTags comment) into dst, returning
// the total number of bytes written (head_size).
func SynthesizeHeader(dst []byte, channels uint8, preSkip uint16, sampleRate uint32) (int, error) {
	if len(dst) < MaxHeaderSize {
		return 0, fmt.Errorf("oggpage: header buffer too small: need >= %d, have %d", MaxHeaderSize, len(dst))
	}

	idPacket := make([]byte, 19)
	copy(idPacket[0:8], opusHeadMagic[:])
	idPacket[8] = 1 // version
	idPacket[9] = channels
	binary.LittleEndian.PutUint16(idPacket[10:12], preSkip)
	binary.LittleEndian.PutUint32(idPacket[12:16], sampleRate)
	binary.LittleEndian.PutUint16(idPacket[16:18], 0) // output gain
	idPacket[18] = 0                                  // channel mapping family

	commentPacket := buildCommentPacket()

	off := 0
	n, err := buildPrelude(dst[off:], idPacket, 0)
	if err != nil {
		return 0, fmt.Errorf("oggpage: identification page: %w", err)
	}
	off += n

	n, err = buildPrelude(dst[off:], commentPacket, 1)
	if err != nil {
		return 0, fmt.Errorf("oggpage: comment page: %w", err)
	}
	off += n

	return off, nil
}

func buildCommentPacket() []byte {
	vendor := []byte(VendorString)
	comment := []byte(CommentString)

	buf := make([]byte, 8+4+len(vendor)+4+4+len(comment))
	copy(buf[0:8], opusTagsMagic[:])
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(vendor)))
	copy(buf[12:12+len(vendor)], vendor)

	off := 12 + len(vendor)
	binary.LittleEndian.PutUint32(buf[off:off+4], 1) // user comment list length
	off += 4
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(len(comment)))
	off += 4
	copy(buf[off:off+len(comment)], comment)

	return buf
}

// buildPrelude copies payload into dst at the page's payload offset and
// emits the page around it via Build.
func buildPrelude(dst []byte, payload []byte, sequence uint32) (int, error) {
	overhead := Overhead(len(payload))
	total := overhead + len(payload)
	if len(dst) < total {
		return 0, fmt.Errorf("buffer too small: need %d, have %d", total, len(dst))
	}
	copy(dst[overhead:total], payload)
	return Build(dst, len(payload), sequence, 0)
}
