// Package station runs the playback loop that turns a catalog of
// game-container audio files into the single continuously-playing
// broadcast every listener shares: it paces raw Opus packets into the
// shared WebRTC track and the equivalent reframed Ogg-Opus bytes into
// the HLS/Icecast transcoders from one loop, the same way the
// original broadcast server's autoplay loop paced pre-recorded Ogg
// files into its WebRTC track.
package station

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nexusradio/gameopus/internal/audio"
	"github.com/nexusradio/gameopus/internal/bytesource"
	"github.com/nexusradio/gameopus/internal/catalog"
	"github.com/nexusradio/gameopus/pkg/transmux"
	"github.com/nexusradio/gameopus/pkg/transmux/oggpage"
)

// defaultFrameDuration is substituted whenever a packet's own duration
// can't be computed (silence, malformed TOC byte) so pacing never
// stalls.
const defaultFrameDuration = 20 * time.Millisecond

// AudioWriter is the narrow interface the HLS and Icecast transcoders
// expose for receiving live Ogg-Opus bytes.
type AudioWriter interface {
	AudioWriter() io.Writer
}

// Track is the subset of *webrtc.TrackLocalStaticSample the station
// writes samples into.
type Track interface {
	WriteSample(s media.Sample) error
}

// Station owns the playlist and the shared cursor, and runs the
// single pacing loop that feeds every output.
type Station struct {
	entries []catalog.Entry
	cursor  *audio.Cursor
	track   Track
	sinks   []AudioWriter

	nowPlaying func(title string, artists []string)

	once sync.Once
}

// New builds a Station over a loaded catalog. nowPlaying is called
// once per track change (wired to webrtc.PublishNowPlaying by the
// caller); it may be nil.
func New(entries []catalog.Entry, track Track, cursor *audio.Cursor, sinks []AudioWriter, nowPlaying func(string, []string)) (*Station, error) {
	if len(entries) == 0 {
		return nil, errors.New("station: catalog has no entries")
	}
	if track == nil {
		return nil, errors.New("station: track is required")
	}
	if cursor == nil {
		cursor = audio.NewCursor()
	}

	return &Station{
		entries:    entries,
		cursor:     cursor,
		track:      track,
		sinks:      sinks,
		nowPlaying: nowPlaying,
	}, nil
}

// Run starts the playlist loop in the background. It is idempotent:
// calling it more than once has no additional effect.
func (s *Station) Run() {
	s.once.Do(func() {
		go s.loop()
	})
}

func (s *Station) loop() {
	i := 0
	resumeOffset := getResumeOffset()

	for {
		entry := s.entries[i]

		log.Info().Str("path", filepath.Base(entry.Path)).Str("title", entry.Title).Msg("station: now playing")
		if s.nowPlaying != nil {
			s.nowPlaying(entry.Title, entry.Artists)
		}

		if err := s.playOnce(entry, resumeOffset); err != nil {
			log.Error().Err(err).Str("path", entry.Path).Msg("station: track playback failed")
			time.Sleep(time.Second)
		}
		resumeOffset = 0

		i++
		if i >= len(s.entries) {
			i = 0
		}
	}
}

// playOnce streams one catalog entry end to end: it builds a Reframer
// (for the byte-accurate Ogg-Opus sinks) and a PacketWalker (for the
// WebRTC track) over the same physical region, and drains both in
// lock-step so a single packet's duration paces both outputs.
func (s *Station) playOnce(entry catalog.Entry, skip time.Duration) error {
	src, err := bytesource.Open(entry.Path)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	tag, err := entry.VariantTag()
	if err != nil {
		return fmt.Errorf("station: %q: %w", entry.Path, err)
	}

	physicalSize := entry.PhysicalSize
	if physicalSize == 0 {
		physicalSize = src.Size() - entry.PhysicalStart
	}

	cfg := transmux.Config{
		Variant:       tag,
		PhysicalStart: entry.PhysicalStart,
		PhysicalSize:  physicalSize,
		Channels:      entry.Channels,
		SampleRate:    entry.SampleRate,
		PreSkip:       entry.PreSkip,
	}

	reframer, err := transmux.New(src, cfg)
	if err != nil {
		return fmt.Errorf("station: build reframer for %q: %w", entry.Path, err)
	}
	walker := transmux.NewPacketWalker(src, cfg)

	logicalCursor := int64(reframer.HeaderSize())
	header := make([]byte, logicalCursor)
	if n := reframer.Read(header, 0, len(header)); n > 0 {
		s.writeAudio(header[:n])
	}

	nextSend := time.Now()
	remaining := skip
	started := skip <= 0

	for {
		packet, dur, err := walker.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("station: packet walk: %w", err)
		}
		if dur <= 0 {
			dur = defaultFrameDuration
		}

		pageLen := oggpage.Overhead(len(packet)) + len(packet)
		page := make([]byte, pageLen)
		reframer.Read(page, logicalCursor, pageLen)
		logicalCursor += int64(pageLen)

		if !started {
			remaining -= dur
			s.cursor.Advance(dur)
			if remaining <= 0 {
				started = true
			}
			continue
		}

		s.writeAudio(page)
		if err := s.track.WriteSample(media.Sample{Data: packet, Duration: dur}); err != nil {
			return err
		}
		s.cursor.Advance(dur)

		nextSend = nextSend.Add(dur)
		if sleep := time.Until(nextSend); sleep > 0 {
			time.Sleep(sleep)
		} else {
			nextSend = time.Now()
		}
	}
}

func (s *Station) writeAudio(b []byte) {
	for _, sink := range s.sinks {
		if w := sink.AudioWriter(); w != nil {
			_, _ = w.Write(b)
		}
	}
}

func getResumeOffset() time.Duration {
	raw := strings.TrimSpace(os.Getenv("RESUME_OFFSET"))
	if raw == "" {
		return 0
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return 0
}

// ConfigureLogger sets the package-wide zerolog console writer, kept
// as an explicit call (rather than an init()) so cmd/gameopus-radio
// controls log formatting the same way main.go controls everything
// else about process startup.
func ConfigureLogger(debug bool) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}
