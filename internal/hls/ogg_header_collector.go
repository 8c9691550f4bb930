package hls

import (
	"bytes"

	"github.com/nexusradio/gameopus/pkg/transmux/oggpage"
)

var (
	opusHeadSig = [8]byte{'O', 'p', 'u', 's', 'H', 'e', 'a', 'd'}
	opusTagsSig = [8]byte{'O', 'p', 'u', 's', 'T', 'a', 'g', 's'}
)

// opusHeaderCollector watches the live Ogg Opus byte stream coming out
// of internal/station and caches the current logical bitstream's
// OpusHead + OpusTags pages, so they can be replayed at the front of
// ffmpeg's stdin whenever the transcoder restarts mid-track.
type opusHeaderCollector struct {
	buf     bytes.Buffer // raw bytes for the cached header pages
	scratch []byte       // partial data that doesn't yet form a full page

	carry      []byte // packet continuation across pages
	seenHead   bool
	seenTags   bool
	headerDone bool
	serial     uint32
}

func newOpusHeaderCollector() *opusHeaderCollector {
	return &opusHeaderCollector{}
}

// Feed consumes a chunk of the stream. If it finishes caching the header for
// the current logical bitstream, it returns a copy of the header bytes.
func (c *opusHeaderCollector) Feed(chunk []byte) []byte {
	if len(chunk) == 0 {
		return nil
	}
	c.scratch = append(c.scratch, chunk...)

	for {
		// need at least the fixed 27-byte page header.
		if len(c.scratch) < 27 {
			return nil
		}

		page, ok := oggpage.Parse(c.scratch)
		if !ok {
			if bytes.HasPrefix(c.scratch, []byte("OggS")) {
				// capture pattern matches, just waiting on the rest of the page.
				return nil
			}
			// not aligned on a page — discard until we find one.
			if idx := bytes.Index(c.scratch[1:], []byte("OggS")); idx >= 0 {
				c.scratch = c.scratch[idx+1:]
			} else {
				c.scratch = c.scratch[:0]
			}
			continue
		}

		raw := c.scratch[:page.Size]
		c.scratch = c.scratch[page.Size:]

		if page.HeaderType&0x02 != 0 {
			c.buf.Reset()
			c.carry = nil
			c.seenHead = false
			c.seenTags = false
			c.headerDone = false
			c.serial = page.Serial
		}

		if c.headerDone {
			continue
		}

		c.buf.Write(raw)

		pkt := c.carry
		offset := 0

		for _, lace := range page.Segments {
			size := int(lace)
			if size > 0 {
				pkt = append(pkt, page.Payload[offset:offset+size]...)
				offset += size
			}

			if lace < 255 {
				if len(pkt) >= 8 {
					prefix := pkt[:8]
					switch {
					case !c.seenHead && bytes.Equal(prefix, opusHeadSig[:]):
						c.seenHead = true
					case !c.seenTags && bytes.Equal(prefix, opusTagsSig[:]):
						c.seenTags = true
					}
				}
				pkt = nil

				if c.seenHead && c.seenTags {
					c.headerDone = true
					hdr := make([]byte, c.buf.Len())
					copy(hdr, c.buf.Bytes())
					return hdr
				}
			}
		}

		c.carry = pkt
	}
}
