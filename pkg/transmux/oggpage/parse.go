package oggpage

import "encoding/binary"

// Parsed describes one page read back out of a raw Ogg byte stream:
// the header fields plus slices into the caller's buffer for the
// lacing table and payload.
type Parsed struct {
	HeaderType byte
	Serial     uint32
	Sequence   uint32
	Granule    uint64
	Segments   []byte
	Payload    []byte
	// Size is the total page length in bytes (header + lacing table + payload).
	Size int
}

// Parse reads one page starting at the beginning of buf. ok is false
// if buf does not start with the Ogg capture pattern, or doesn't yet
// hold a complete page — in both cases the caller should buffer more
// bytes (or resync past the bad prefix) and retry; Parse never
// allocates or consumes a partial page.
func Parse(buf []byte) (page Parsed, ok bool) {
	if len(buf) < headerSize {
		return Parsed{}, false
	}
	if buf[0] != 'O' || buf[1] != 'g' || buf[2] != 'g' || buf[3] != 'S' {
		return Parsed{}, false
	}

	segN := int(buf[26])
	if len(buf) < headerSize+segN {
		return Parsed{}, false
	}

	segTable := buf[headerSize : headerSize+segN]
	payloadLen := 0
	for _, s := range segTable {
		payloadLen += int(s)
	}

	size := headerSize + segN + payloadLen
	if len(buf) < size {
		return Parsed{}, false
	}

	return Parsed{
		HeaderType: buf[5],
		Granule:    binary.LittleEndian.Uint64(buf[6:14]),
		Serial:     binary.LittleEndian.Uint32(buf[14:18]),
		Sequence:   binary.LittleEndian.Uint32(buf[18:22]),
		Segments:   segTable,
		Payload:    buf[headerSize+segN : size],
		Size:       size,
	}, true
}
