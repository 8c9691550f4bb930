package opusframe

import "testing"

func TestFramesPerPacket(t *testing.T) {
	cases := []struct {
		name        string
		b0, b1      byte
		haveB1      bool
		wantsFrames int
	}{
		{"code0", 0x04, 0, false, 1},
		{"code1", 0x01, 0, false, 2},
		{"code2", 0x02, 0, false, 2},
		{"code3_with_count", 0x03, 0x05, true, 5},
		{"code3_truncated", 0x03, 0, false, 0},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := FramesPerPacket(c.b0, c.b1, c.haveB1); got != c.wantsFrames {
				t.Fatalf("FramesPerPacket(%#x,%#x,%v) = %d, want %d", c.b0, c.b1, c.haveB1, got, c.wantsFrames)
			}
		})
	}
}

func TestSamplesPerFrame(t *testing.T) {
	cases := []struct {
		name string
		b0   byte
		want int
	}{
		{"celt_only_audiosize0", 0x80, 120},   // (48000<<0)/400
		{"celt_only_audiosize3", 0x80 | 0x18, 960}, // (48000<<3)/400
		{"hybrid_10ms", 0x60, 480},             // Fs/100
		{"hybrid_20ms_hybrid_flag", 0x60 | 0x08, 960}, // Fs/50
		{"silk_audiosize0", 0x00, 480},         // (48000<<0)/100
		{"silk_audiosize3_60ms", 0x18, 2880},   // Fs*60/1000
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := SamplesPerFrame(c.b0); got != c.want {
				t.Fatalf("SamplesPerFrame(%#x) = %d, want %d", c.b0, got, c.want)
			}
		})
	}
}

func TestSamplesInPacket(t *testing.T) {
	if got := SamplesInPacket(nil); got != 0 {
		t.Fatalf("SamplesInPacket(nil) = %d, want 0", got)
	}

	// TOC 0x04: code 0 (1 frame), audiosize=(0x04>>3)&3=0 -> SILK NB 10ms -> 480 samples.
	if got := SamplesInPacket([]byte{0x04}); got != 480 {
		t.Fatalf("SamplesInPacket([0x04]) = %d, want 480", got)
	}

	// TOC 0x01: code 1 (2 frames), audiosize=(0x01>>3)&3=0 -> 480/frame -> 960 total.
	if got := SamplesInPacket([]byte{0x01, 0x00}); got != 960 {
		t.Fatalf("SamplesInPacket([0x01,0x00]) = %d, want 960", got)
	}
}
