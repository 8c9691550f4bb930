package variant

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

func TestNextPacketSwitch(t *testing.T) {
	src := sliceSource{0x00, 0x00, 0x00, 0x02, 1, 2, 3, 4, 5, 6, 7, 8, 0xAA, 0xBB}
	size, skip, err := NextPacket(src, Switch, 0, 0)
	if err != nil {
		t.Fatalf("NextPacket: %v", err)
	}
	if size != 2 || skip != 8 {
		t.Fatalf("got size=%d skip=%d, want size=2 skip=8", size, skip)
	}
}

func TestNextPacketUE4(t *testing.T) {
	src := sliceSource{0x04, 0x00, 1, 2, 3, 4}
	size, skip, err := NextPacket(src, UE4, 0, 0)
	if err != nil {
		t.Fatalf("NextPacket: %v", err)
	}
	if size != 4 || skip != 2 {
		t.Fatalf("got size=%d skip=%d, want size=4 skip=2", size, skip)
	}
}

func TestNextPacketEA(t *testing.T) {
	src := sliceSource{0x00, 0x08, 1, 2, 3, 4, 5, 6, 7, 8}
	size, skip, err := NextPacket(src, EA, 0, 0)
	if err != nil {
		t.Fatalf("NextPacket: %v", err)
	}
	if size != 8 || skip != 2 {
		t.Fatalf("got size=%d skip=%d, want size=8 skip=2", size, skip)
	}
}

func TestNextPacketX(t *testing.T) {
	src := make(sliceSource, 0x20+4)
	src[0x20] = 0x02
	src[0x21] = 0x00
	src[0x22] = 0x03
	src[0x23] = 0x00

	size, skip, err := NextPacket(src, X, 0, 0)
	if err != nil {
		t.Fatalf("NextPacket: %v", err)
	}
	if size != 2 || skip != 0 {
		t.Fatalf("packet 0: got size=%d skip=%d, want size=2 skip=0", size, skip)
	}

	size, _, err = NextPacket(src, X, 0, 1)
	if err != nil {
		t.Fatalf("NextPacket: %v", err)
	}
	if size != 3 {
		t.Fatalf("packet 1: got size=%d, want 3", size)
	}
}

func TestParseTag(t *testing.T) {
	for name, want := range map[string]Tag{"switch": Switch, "ue4": UE4, "ea": EA, "x": X} {
		got, err := ParseTag(name)
		if err != nil || got != want {
			t.Fatalf("ParseTag(%q) = (%v, %v), want (%v, nil)", name, got, err, want)
		}
	}
	if _, err := ParseTag("bogus"); err == nil {
		t.Fatalf("expected error for unknown tag")
	}
}
