// Command gameopus-transmux reframes a single game-container Opus
// stream into a standalone, standard Ogg-Opus file, without involving
// any of the radio server's live-broadcast machinery. It exists for
// batch conversion and for inspecting a container's framing offline.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/nexusradio/gameopus/internal/bytesource"
	"github.com/nexusradio/gameopus/pkg/transmux"
	"github.com/nexusradio/gameopus/pkg/transmux/variant"
)

const readChunk = 64 * 1024

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "gameopus-transmux:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		variantName   = flag.String("variant", "", "container framing: switch, ue4, ea, or x")
		channels      = flag.Uint("channels", 2, "Opus channel count (1 or 2)")
		sampleRate    = flag.Uint("samplerate", 48000, "Opus sample rate")
		preSkip       = flag.Uint("preskip", 0, "Opus pre-skip sample count")
		physicalStart = flag.Int64("start", 0, "byte offset where the Opus container begins")
		physicalSize  = flag.Int64("size", 0, "byte length of the Opus container region (0 = rest of file)")
		output        = flag.String("o", "", "output path (default: stdout)")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s -variant=<switch|ue4|ea|x> [flags] <input-file>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		return fmt.Errorf("expected exactly one input file")
	}
	input := flag.Arg(0)

	tag, err := variant.ParseTag(*variantName)
	if err != nil {
		return err
	}

	src, err := bytesource.Open(input)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	size := *physicalSize
	if size == 0 {
		size = src.Size() - *physicalStart
	}

	reframer, err := transmux.New(src, transmux.Config{
		Variant:       tag,
		PhysicalStart: *physicalStart,
		PhysicalSize:  size,
		Channels:      uint8(*channels),
		SampleRate:    uint32(*sampleRate),
		PreSkip:       uint16(*preSkip),
	})
	if err != nil {
		return fmt.Errorf("build reframer: %w", err)
	}

	out := io.Writer(os.Stdout)
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	return drain(reframer, out)
}

func drain(r *transmux.Reframer, w io.Writer) error {
	buf := make([]byte, readChunk)
	var offset int64

	for offset < r.Size() {
		n := r.Read(buf, offset, len(buf))
		if n == 0 {
			return fmt.Errorf("reframe stalled at offset %d of %d (truncated or oversized source)", offset, r.Size())
		}
		if _, err := w.Write(buf[:n]); err != nil {
			return err
		}
		offset += int64(n)
	}

	return nil
}
