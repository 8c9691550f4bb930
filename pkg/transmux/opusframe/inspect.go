// Package opusframe inspects the first 1-2 bytes of an Opus packet (the
// TOC byte and, for VBR code-3 packets, the frame-count byte) to
// determine how many frames the packet carries and how many samples
// each frame decodes to. Fs is fixed at 48kHz, matching the rest of
// this repo.
package opusframe

// Fs is the fixed sample rate (Hz) this inspector assumes, matching
// the Ogg-Opus output of the transmuxer.
const Fs = 48000

// FramesPerPacket returns how many Opus frames are packed into a
// packet whose first two TOC-adjacent bytes are b0 and b1. b1 is only
// consulted for code-3 packets (arbitrary frame count); pass
// haveB1=false if the packet is fewer than 2 bytes, in which case code-3
// packets report 0 frames (malformed/truncated packet).
func FramesPerPacket(b0, b1 byte, haveB1 bool) int {
	switch b0 & 0x03 {
	case 0:
		return 1
	case 1, 2:
		return 2
	default: // 3
		if !haveB1 {
			return 0
		}
		return int(b1 & 0x3F)
	}
}

// SamplesPerFrame returns the number of 48kHz samples a single frame of
// the packet whose TOC byte is b0 decodes to.
func SamplesPerFrame(b0 byte) int {
	switch {
	case b0&0x80 != 0:
		audiosize := (b0 >> 3) & 0x3
		return (Fs << audiosize) / 400
	case b0&0x60 == 0x60:
		if b0&0x08 != 0 {
			return Fs / 50
		}
		return Fs / 100
	default:
		audiosize := (b0 >> 3) & 0x3
		if audiosize == 3 {
			return Fs * 60 / 1000
		}
		return (Fs << audiosize) / 100
	}
}

// SamplesInPacket returns the total number of samples contained in a
// packet, given its first 1-2 bytes. packet must have at least 1 byte;
// a 0-length packet yields 0 samples.
func SamplesInPacket(packet []byte) int {
	if len(packet) == 0 {
		return 0
	}
	var b1 byte
	haveB1 := len(packet) >= 2
	if haveB1 {
		b1 = packet[1]
	}
	frames := FramesPerPacket(packet[0], b1, haveB1)
	return frames * SamplesPerFrame(packet[0])
}
