// Package transmux reframes Opus audio stored in one of four
// game-specific container framings into a virtual, random-access
// Ogg-Opus byte stream. It is the core of gameopus: it never decodes
// audio, it repackages the same raw Opus packets behind a standard
// Ogg transport so any Opus decoder can consume them.
package transmux

import (
	"fmt"

	"github.com/nexusradio/gameopus/pkg/transmux/bitio"
	"github.com/nexusradio/gameopus/pkg/transmux/oggpage"
	"github.com/nexusradio/gameopus/pkg/transmux/opusframe"
	"github.com/nexusradio/gameopus/pkg/transmux/variant"
)

// Source is the random-access byte source the reframer is built on
// top of. It is an external collaborator: the reframer borrows it and
// never closes it.
type Source = bitio.Source

// pageBufferSize is the scratch size for one synthesized Ogg page. The
// worst observed payload plus Ogg overhead fits comfortably within
// this; a page that doesn't fit is treated as a truncation (§4.8).
const pageBufferSize = 8192

// firstPageSequence is the page sequence number of the first audio
// page; sequence 0 and 1 are consumed by the OpusHead/OpusTags prelude.
const firstPageSequence = 2

// Config is the immutable, per-reframer construction configuration.
type Config struct {
	Variant       variant.Tag
	PhysicalStart int64
	PhysicalSize  int64
	Channels      uint8
	SampleRate    uint32
	PreSkip       uint16
}

// Reframer is a virtual byte stream whose logical bytes are a
// reconstructed Ogg-Opus bitstream, backed lazily by the physical
// container bytes of a single source. It is single-threaded and
// cooperative: a call to Read must complete before the next begins.
type Reframer struct {
	src    Source
	cfg         Config
	header      [oggpage.MaxHeaderSize]byte
	headSize    int
	logicalSize int64

	physicalCursor      int64
	logicalCursor       int64
	currentPage         [pageBufferSize]byte
	currentPageLen      int64
	currentBlockAdvance int64
	sequence            uint32
	granuleAccum        uint64
}

// New constructs a reframer over src for the given configuration.
// logicalSize is computed immediately (one pass over the physical
// region).
func New(src Source, cfg Config) (*Reframer, error) {
	if cfg.Channels != 1 && cfg.Channels != 2 {
		return nil, ErrInvalidChannels
	}

	r := &Reframer{src: src, cfg: cfg}

	headSize, err := oggpage.SynthesizeHeader(r.header[:], cfg.Channels, cfg.PreSkip, cfg.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("transmux: header synthesis failed: %w", err)
	}
	r.headSize = headSize

	logicalSize, _, err := computeLogicalSize(src, cfg.Variant, cfg.PhysicalStart, cfg.PhysicalSize, headSize)
	if err != nil {
		return nil, err
	}
	r.logicalSize = logicalSize

	r.resetCursors()
	r.logicalCursor = int64(headSize)
	return r, nil
}

func (r *Reframer) resetCursors() {
	r.physicalCursor = r.cfg.PhysicalStart
	r.logicalCursor = 0
	r.currentPageLen = 0
	r.granuleAccum = 0
	r.sequence = firstPageSequence
}

// Size returns the precomputed total logical stream length, including
// the header prelude.
func (r *Reframer) Size() int64 {
	return r.logicalSize
}

// HeaderSize returns the byte length of the synthesized OpusHead/OpusTags
// prelude, i.e. the logical offset at which the first audio page begins.
// A live consumer pacing itself packet-by-packet (see internal/station)
// uses this to know how many bytes to drain before the per-packet page
// loop starts.
func (r *Reframer) HeaderSize() int {
	return r.headSize
}

// EncoderDelay reports the heuristic encoder lookahead for this
// stream: samples-per-frame of the very first packet, divided by 8.
// This hook exists because the heuristic is unverified (see spec's
// open question) — callers opt in explicitly rather than having it
// baked into construction or playback.
func (r *Reframer) EncoderDelay() (int, error) {
	payloadSize, skipSize, err := variant.NextPacket(r.src, r.cfg.Variant, r.cfg.PhysicalStart, 0)
	if err != nil {
		return 0, fmt.Errorf("transmux: encoder delay probe: %w", err)
	}
	if payloadSize <= 0 {
		return 0, nil
	}
	var toc [1]byte
	if got, _ := r.src.ReadAt(toc[:], r.cfg.PhysicalStart+skipSize); got < 1 {
		return 0, nil
	}
	return opusframe.SamplesPerFrame(toc[0]) / 8, nil
}

// Read implements the random-access contract: it copies up to length
// bytes of the virtual Ogg-Opus stream starting at logicalOffset into
// dest, returning the number of bytes served. It returns 0 for
// negative/out-of-range offsets and at EOF; short reads are the sole
// failure signal (§7).
func (r *Reframer) Read(dest []byte, logicalOffset int64, length int) int {
	if logicalOffset < 0 || logicalOffset >= r.logicalSize || length <= 0 {
		return 0
	}

	if logicalOffset < r.logicalCursor {
		r.resetCursors()
		if logicalOffset >= int64(r.headSize) {
			r.logicalCursor = int64(r.headSize)
		}
	}

	served := 0

	// Serve the header prelude directly.
	for logicalOffset < int64(r.headSize) && length > 0 {
		avail := int64(r.headSize) - logicalOffset
		n := int64(length)
		if n > avail {
			n = avail
		}
		copy(dest[served:served+int(n)], r.header[logicalOffset:logicalOffset+n])

		served += int(n)
		logicalOffset += n
		length -= int(n)
		if r.logicalCursor < int64(r.headSize) {
			r.logicalCursor = int64(r.headSize)
		}
	}

	for length > 0 && r.logicalCursor < r.logicalSize {
		if r.currentPageLen == 0 {
			if !r.buildCurrentPage() {
				break
			}
		}

		if logicalOffset >= r.logicalCursor+r.currentPageLen {
			r.physicalCursor += r.currentBlockAdvance
			r.logicalCursor += r.currentPageLen
			r.currentPageLen = 0
			continue
		}

		pageOff := logicalOffset - r.logicalCursor
		avail := r.currentPageLen - pageOff
		n := int64(length)
		if n > avail {
			n = avail
		}
		if n <= 0 {
			break
		}
		copy(dest[served:served+int(n)], r.currentPage[pageOff:pageOff+n])

		served += int(n)
		logicalOffset += n
		length -= int(n)
	}

	return served
}

// buildCurrentPage synthesizes the Ogg page for the packet at
// r.physicalCursor into r.currentPage. It returns false if the page
// could not be built (oversized page or truncated source), leaving
// state pointed at the start of the offending page.
func (r *Reframer) buildCurrentPage() bool {
	packetIndex := int(r.sequence - firstPageSequence)
	payloadSize, skipSize, err := variant.NextPacket(r.src, r.cfg.Variant, r.physicalCursor, packetIndex)
	if err != nil {
		return false
	}

	overhead := oggpage.Overhead(int(payloadSize))
	total := overhead + int(payloadSize)
	if total > len(r.currentPage) {
		return false
	}

	payloadStart := r.physicalCursor + skipSize
	got, _ := r.src.ReadAt(r.currentPage[overhead:total], payloadStart)
	if got < int(payloadSize) {
		// Truncated source: the claimed payload isn't fully available.
		// No partial page is ever emitted — the read stops cleanly at
		// the last fully-built page (§7).
		return false
	}

	r.granuleAccum += uint64(opusframe.SamplesInPacket(r.currentPage[overhead:total]))

	n, err := oggpage.Build(r.currentPage[:], int(payloadSize), r.sequence, r.granuleAccum)
	if err != nil {
		return false
	}

	r.currentPageLen = int64(n)
	r.currentBlockAdvance = payloadSize + skipSize
	r.sequence++
	return true
}
