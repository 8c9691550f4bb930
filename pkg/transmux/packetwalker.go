package transmux

import (
	"io"
	"time"

	"github.com/nexusradio/gameopus/pkg/transmux/opusframe"
	"github.com/nexusradio/gameopus/pkg/transmux/variant"
)

// PacketWalker yields the individual Opus packets of a container in
// order, with each packet's playback duration, without synthesizing
// any Ogg framing around them. It shares the variant-framing and
// packet-inspection primitives with Reframer but is a much thinner,
// forward-only iterator — the natural shape for feeding a live
// WebRTC track one sample at a time (a consumer that wants raw Opus
// packets, not Ogg bytes).
type PacketWalker struct {
	src       Source
	cfg       Config
	cursor    int64
	packetIdx int
}

// NewPacketWalker builds a forward-only Opus packet iterator over the
// same physical region a Reframer would use.
func NewPacketWalker(src Source, cfg Config) *PacketWalker {
	return &PacketWalker{src: src, cfg: cfg, cursor: cfg.PhysicalStart}
}

// Next returns the next Opus packet's payload and its playback
// duration. It returns io.EOF once the physical region is exhausted.
func (w *PacketWalker) Next() ([]byte, time.Duration, error) {
	physicalEnd := w.cfg.PhysicalStart + w.cfg.PhysicalSize
	if w.cursor >= physicalEnd {
		return nil, 0, io.EOF
	}

	payloadSize, skipSize, err := variant.NextPacket(w.src, w.cfg.Variant, w.cursor, w.packetIdx)
	if err != nil {
		return nil, 0, err
	}

	payload := make([]byte, payloadSize)
	got, _ := w.src.ReadAt(payload, w.cursor+skipSize)
	if int64(got) < payloadSize {
		return nil, 0, io.EOF
	}

	if payloadSize+skipSize == 0 {
		return nil, 0, ErrStalledWalk
	}

	samples := opusframe.SamplesInPacket(payload)
	dur := time.Duration(samples) * time.Second / opusframe.Fs

	w.cursor += payloadSize + skipSize
	w.packetIdx++

	return payload, dur, nil
}
