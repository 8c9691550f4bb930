// Package pipesink implements the bounded, drop-tolerant io.Writer
// both internal/hls and internal/icecast use as the AudioWriter side
// of a station.AudioWriter: writes are copied into a buffered channel
// and drained on their own goroutine, so a stalled or restarting
// ffmpeg stdin never blocks internal/station's real-time pacing loop.
package pipesink

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// ErrSilentDrop tells Sink to count a delivery as dropped without
// logging — used when there is currently no downstream writer at all
// (e.g. the transcoder is mid-restart), which is routine rather than
// noteworthy.
var ErrSilentDrop = errors.New("pipesink: no writer available")

// ErrSkip tells Sink to discard a chunk without counting it as a drop
// at all — used while resynchronizing to the next page boundary,
// where the data was never meant to reach the writer in the first
// place.
var ErrSkip = errors.New("pipesink: chunk intentionally skipped")

// Sink is a bounded, drop-tolerant io.Writer.
type Sink struct {
	label string
	buf   chan []byte

	dropCnt uint64
	closed  uint32

	closeOnce sync.Once
	warnOnce  sync.Once
	dropOnce  sync.Once

	// OnWrite, if set, runs synchronously inside Write before the
	// chunk is buffered — internal/hls uses this to feed its Ogg
	// header cache.
	OnWrite func(b []byte)

	// Deliver hands one buffered chunk to the real downstream writer.
	// It must return ErrSilentDrop / ErrSkip for those specific cases
	// and any other error for a genuine write failure.
	Deliver func(b []byte) error
}

// New creates a Sink with bufferSlots of buffering capacity and
// starts its drain goroutine. deliver is required.
func New(label string, bufferSlots int, deliver func(b []byte) error) *Sink {
	s := &Sink{
		label:   label,
		buf:     make(chan []byte, bufferSlots),
		Deliver: deliver,
	}
	go s.drain()
	return s
}

// DropCount returns the total number of writes dropped so far.
func (s *Sink) DropCount() uint64 {
	return atomic.LoadUint64(&s.dropCnt)
}

// Close stops accepting writes and lets the drain goroutine exit once
// anything already buffered has drained.
func (s *Sink) Close() {
	s.closeOnce.Do(func() {
		atomic.StoreUint32(&s.closed, 1)
		close(s.buf)
	})
}

func (s *Sink) Write(b []byte) (n int, err error) {
	if len(b) == 0 {
		return 0, nil
	}
	n = len(b)
	if atomic.LoadUint32(&s.closed) != 0 {
		atomic.AddUint64(&s.dropCnt, 1)
		return n, nil
	}

	buf := make([]byte, len(b))
	copy(buf, b)

	if s.OnWrite != nil {
		s.OnWrite(buf)
	}

	defer func() {
		if r := recover(); r != nil {
			atomic.AddUint64(&s.dropCnt, 1)
		}
	}()

	select {
	case s.buf <- buf:
		return n, nil
	default:
		atomic.AddUint64(&s.dropCnt, 1)
		s.dropOnce.Do(func() {
			log.Printf("%s sink dropping audio: buffer full", s.label)
		})
		return n, nil
	}
}

func (s *Sink) drain() {
	for b := range s.buf {
		switch err := s.Deliver(b); {
		case err == nil:
		case errors.Is(err, ErrSkip):
		case errors.Is(err, ErrSilentDrop):
			atomic.AddUint64(&s.dropCnt, 1)
		default:
			atomic.AddUint64(&s.dropCnt, 1)
			s.warnOnce.Do(func() {
				log.Printf("%s sink dropped audio: %v", s.label, err)
			})
		}
	}
}
