package bitio

import "testing"

type sliceSource []byte

func (s sliceSource) ReadAt(dest []byte, offset int64) (int, error) {
	if offset < 0 || offset >= int64(len(s)) {
		return 0, nil
	}
	n := copy(dest, s[offset:])
	return n, nil
}

func (s sliceSource) Size() int64 { return int64(len(s)) }

func TestReadsWithinBounds(t *testing.T) {
	src := sliceSource{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07}

	if got := U8(src, 1); got != 0x01 {
		t.Fatalf("U8 = %#x, want 0x01", got)
	}
	if got := U16BE(src, 0); got != 0x0001 {
		t.Fatalf("U16BE = %#x, want 0x0001", got)
	}
	if got := U16LE(src, 0); got != 0x0100 {
		t.Fatalf("U16LE = %#x, want 0x0100", got)
	}
	if got := U32BE(src, 0); got != 0x00010203 {
		t.Fatalf("U32BE = %#x, want 0x00010203", got)
	}
	if got := U32LE(src, 0); got != 0x03020100 {
		t.Fatalf("U32LE = %#x, want 0x03020100", got)
	}
}

func TestOutOfRangeReadsReturnZero(t *testing.T) {
	src := sliceSource{0xAA, 0xBB}

	if got := U32BE(src, 0); got != 0xAABB0000 {
		t.Fatalf("truncated U32BE = %#x, want 0xaabb0000", got)
	}
	if got := U8(src, 100); got != 0 {
		t.Fatalf("far out-of-range U8 = %#x, want 0", got)
	}
	if got := U32LE(src, -5); got != 0 {
		t.Fatalf("negative-offset U32LE = %#x, want 0", got)
	}
}

func TestPutRoundTrip(t *testing.T) {
	buf := make([]byte, 20)
	PutU8(buf, 0, 0x7F)
	PutU16LE(buf, 1, 0x1234)
	PutU32BE(buf, 4, 0xDEADBEEF)
	PutU32LE(buf, 8, 0xCAFEF00D)
	PutU64LE(buf, 12, 0x0102030405060708)

	if buf[0] != 0x7F {
		t.Fatalf("PutU8 failed")
	}
	if U16LE(sliceSource(buf), 1) != 0x1234 {
		t.Fatalf("PutU16LE round-trip failed")
	}
	if U32BE(sliceSource(buf), 4) != 0xDEADBEEF {
		t.Fatalf("PutU32BE round-trip failed")
	}
	if U32LE(sliceSource(buf), 8) != 0xCAFEF00D {
		t.Fatalf("PutU32LE round-trip failed")
	}
	if got := U32LE(sliceSource(buf), 12); got != 0x05060708 {
		t.Fatalf("PutU64LE low word = %#x, want 0x05060708", got)
	}
	if got := U32LE(sliceSource(buf), 16); got != 0x01020304 {
		t.Fatalf("PutU64LE high word = %#x, want 0x01020304", got)
	}
}
