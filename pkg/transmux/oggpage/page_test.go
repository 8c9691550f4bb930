package oggpage

import (
	"encoding/binary"
	"testing"

	"github.com/nexusradio/gameopus/pkg/transmux/oggcrc"
)

func verifyCRC(t *testing.T, page []byte) {
	t.Helper()
	stored := binary.LittleEndian.Uint32(page[22:26])
	cp := make([]byte, len(page))
	copy(cp, page)
	binary.LittleEndian.PutUint32(cp[22:26], 0)
	if got := oggcrc.Checksum(cp); got != stored {
		t.Fatalf("CRC mismatch: stored %#x, computed %#x", stored, got)
	}
}

func buildPage(t *testing.T, payload []byte, sequence uint32, granule uint64) []byte {
	t.Helper()
	overhead := Overhead(len(payload))
	buf := make([]byte, overhead+len(payload))
	copy(buf[overhead:], payload)
	n, err := Build(buf, len(payload), sequence, granule)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return buf[:n]
}

func TestBuildZeroLengthPayload(t *testing.T) {
	page := buildPage(t, nil, 2, 0)
	if len(page) != 28 {
		t.Fatalf("len = %d, want 28 (27+1 lacing+0 payload)", len(page))
	}
	if page[26] != 1 || page[27] != 0 {
		t.Fatalf("segment table = %v, want [1 seg, value 0]", page[26:28])
	}
	verifyCRC(t, page)
}

func TestBuildPayload255HasTrailingZeroLacing(t *testing.T) {
	payload := make([]byte, 255)
	page := buildPage(t, payload, 2, 100)
	if page[26] != 2 {
		t.Fatalf("segment count = %d, want 2", page[26])
	}
	if page[27] != 255 || page[28] != 0 {
		t.Fatalf("lacing = %v, want [255 0]", page[27:29])
	}
	if len(page) != 27+2+255 {
		t.Fatalf("len = %d, want %d", len(page), 27+2+255)
	}
	verifyCRC(t, page)
}

func TestBuildPayload256TwoLacings(t *testing.T) {
	payload := make([]byte, 256)
	page := buildPage(t, payload, 2, 100)
	if page[26] != 2 {
		t.Fatalf("segment count = %d, want 2", page[26])
	}
	if page[27] != 255 || page[28] != 1 {
		t.Fatalf("lacing = %v, want [255 1]", page[27:29])
	}
	verifyCRC(t, page)
}

func TestBuildFirstPageHasBoSFlag(t *testing.T) {
	page := buildPage(t, []byte{0x01}, 0, 0)
	if page[5]&0x02 == 0 {
		t.Fatalf("first page missing BoS flag: %#x", page[5])
	}
	pageNonFirst := buildPage(t, []byte{0x01}, 1, 0)
	if pageNonFirst[5]&0x02 != 0 {
		t.Fatalf("non-first page has BoS flag set: %#x", pageNonFirst[5])
	}
}

func TestBuildTooSmallBuffer(t *testing.T) {
	buf := make([]byte, 5)
	if _, err := Build(buf, 10, 0, 0); err == nil {
		t.Fatalf("expected error for undersized buffer")
	}
}

func TestSynthesizeHeaderProducesTwoValidPages(t *testing.T) {
	buf := make([]byte, MaxHeaderSize)
	n, err := SynthesizeHeader(buf, 2, 312, 48000)
	if err != nil {
		t.Fatalf("SynthesizeHeader: %v", err)
	}
	header := buf[:n]

	if string(header[0:4]) != "OggS" {
		t.Fatalf("identification page missing OggS capture pattern")
	}

	// Walk both pages, verifying CRC and capture pattern.
	off := 0
	for i := 0; i < 2; i++ {
		if string(header[off:off+4]) != "OggS" {
			t.Fatalf("page %d: missing OggS at offset %d", i, off)
		}
		segCount := int(header[off+26])
		segTable := header[off+27 : off+27+segCount]
		total := 0
		for _, s := range segTable {
			total += int(s)
		}
		pageLen := 27 + segCount + total
		verifyCRC(t, header[off:off+pageLen])
		off += pageLen
	}
	if off != n {
		t.Fatalf("consumed %d bytes, header is %d bytes", off, n)
	}
}

func TestSynthesizeHeaderTooSmallBuffer(t *testing.T) {
	buf := make([]byte, 10)
	if _, err := SynthesizeHeader(buf, 2, 0, 48000); err == nil {
		t.Fatalf("expected error for undersized header buffer")
	}
}
