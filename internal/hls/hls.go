package hls

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/nexusradio/gameopus/internal/audio"
	"github.com/nexusradio/gameopus/internal/ffmpegproc"
	"github.com/nexusradio/gameopus/internal/pipesink"
	"github.com/nexusradio/gameopus/internal/viewers"
)

type Config struct {
	OutputDir           string
	FfmpegPath          string
	SegmentCacheControl string
	Cursor              *audio.Cursor
}

type Streamer struct {
	dir    string
	proc   *ffmpegproc.Process
	sink   *hlsSink
	cursor *audio.Cursor

	handler http.Handler
}

const (
	playlistCacheControl   = "no-store, max-age=0"
	playlistFilename       = "live.m3u8"
	hlsPipeBufferSlots     = 256
	ffmpegStaleCheckEvery  = 10 * time.Second
	ffmpegStalePlaylistAge = 45 * time.Second
	// at 48kHz this muxer overflows past 12h so restart before we get close
	ffmpegMaxUptime = 8 * time.Hour
)

// Start spawns an ffmpeg process that consumes a live Ogg Opus stream from stdin
// and emits HLS (fMP4) fragments + manifests in OutputDir.
func Start(cfg Config) (*Streamer, error) {
	if cfg.Cursor == nil {
		return nil, errors.New("cursor is required to start HLS")
	}

	dir := cfg.OutputDir
	if strings.TrimSpace(dir) == "" {
		dir = "hls"
	}

	ffmpegPath := cfg.FfmpegPath
	if strings.TrimSpace(ffmpegPath) == "" {
		ffmpegPath = "ffmpeg"
	}

	ffmpegBin, err := exec.LookPath(ffmpegPath)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found (required for HLS/AAC): %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create hls output dir: %w", err)
	}
	if err := wipeDir(dir); err != nil {
		return nil, err
	}

	segmentCacheControl := strings.TrimSpace(cfg.SegmentCacheControl)
	if segmentCacheControl == "" {
		segmentCacheControl = playlistCacheControl
	}

	streamer := &Streamer{
		dir:     dir,
		proc:    ffmpegproc.New("hls"),
		cursor:  cfg.Cursor,
		handler: newFileHandler(dir, playlistCacheControl, segmentCacheControl),
	}
	streamer.sink = newHLSSink(streamer)

	cmd, pw, err := streamer.startTranscoder(ffmpegBin)
	if err != nil {
		return nil, err
	}
	streamer.proc.SetTranscoder(cmd, pw)
	streamer.sink.primeWriter(pw, false)

	go streamer.proc.Supervise(cmd, pw, func() (*exec.Cmd, *io.PipeWriter, error) {
		return streamer.startTranscoder(ffmpegBin)
	}, func(cmd *exec.Cmd, stdin *io.PipeWriter) {
		streamer.sink.primeWriter(stdin, true)
	})
	go streamer.monitorPlaylist()

	snap := cfg.Cursor.Snapshot()
	log.Printf(
		"HLS ready at /api/hls/ (output: %s, cursor start=%s, offset=%s)",
		dir,
		snap.StartedAt.Format(time.RFC3339),
		snap.Position,
	)

	return streamer, nil
}

// AudioWriter returns a best-effort writer for the live Opus/Ogg stream.
func (s *Streamer) AudioWriter() io.Writer {
	return s.sink
}

// DropCount returns the total number of dropped HLS audio writes.
func (s *Streamer) DropCount() uint64 {
	if s == nil || s.sink == nil {
		return 0
	}
	return s.sink.DropCount()
}

// Handler serves the generated HLS outputs with cache headers.
func (s *Streamer) Handler() http.Handler {
	return s.handler
}

// Restart forces the ffmpeg transcoder to restart.
func (s *Streamer) Restart() {
	if s == nil {
		return
	}
	s.proc.Restart()
}

// Close stops the transcoder and background goroutines.
func (s *Streamer) Close() {
	if s == nil {
		return
	}
	if s.proc.Close() && s.sink != nil {
		s.sink.Close()
	}
}

// hlsSink wraps pipesink.Sink with the header priming/resync behavior
// ffmpeg restarts need: the first bytes written to a freshly started
// transcoder must be the cached OpusHead/OpusTags pages, and any
// partial page straddling the restart must be dropped until the next
// page boundary.
type hlsSink struct {
	*pipesink.Sink
	parent *Streamer

	headerMu  sync.RWMutex
	header    []byte
	collector *opusHeaderCollector

	primeMu       sync.Mutex
	primeFor      *io.PipeWriter
	primeWarnOnce sync.Once
	syncNeeded    uint32
	primeHeaders  bool
}

func newHLSSink(parent *Streamer) *hlsSink {
	s := &hlsSink{parent: parent, collector: newOpusHeaderCollector()}
	s.Sink = pipesink.New("hls", hlsPipeBufferSlots, s.deliver)
	s.Sink.OnWrite = s.observe
	return s
}

func (s *hlsSink) observe(b []byte) {
	if header := s.collector.Feed(b); header != nil {
		s.headerMu.Lock()
		s.header = header
		s.headerMu.Unlock()
	}
}

func (s *hlsSink) primeWriter(w *io.PipeWriter, allowHeader bool) {
	if w == nil {
		return
	}
	s.primeMu.Lock()
	s.primeFor = w
	s.primeHeaders = allowHeader
	s.primeMu.Unlock()
	if allowHeader {
		atomic.StoreUint32(&s.syncNeeded, 1)
	} else {
		atomic.StoreUint32(&s.syncNeeded, 0)
	}
}

func (s *hlsSink) primeIfNeeded(w *io.PipeWriter) {
	s.primeMu.Lock()
	if s.primeFor != w {
		s.primeMu.Unlock()
		return
	}
	allowHeader := s.primeHeaders
	s.primeMu.Unlock()

	if !allowHeader {
		s.primeMu.Lock()
		if s.primeFor == w {
			s.primeFor = nil
		}
		s.primeMu.Unlock()
		return
	}

	header := s.headerCopy()
	if len(header) == 0 {
		return
	}

	s.primeMu.Lock()
	if s.primeFor == w {
		s.primeFor = nil
	}
	s.primeMu.Unlock()

	if _, err := w.Write(header); err != nil {
		s.primeWarnOnce.Do(func() {
			log.Printf("hls sink dropped header: %v", err)
		})
		s.parent.proc.DropStdin(w)
	}
}

func (s *hlsSink) headerCopy() []byte {
	s.headerMu.RLock()
	defer s.headerMu.RUnlock()
	if len(s.header) == 0 {
		return nil
	}
	cp := make([]byte, len(s.header))
	copy(cp, s.header)
	return cp
}

func (s *hlsSink) deliver(b []byte) error {
	w := s.parent.proc.Stdin()
	if w == nil {
		return pipesink.ErrSilentDrop
	}

	s.primeIfNeeded(w)

	if atomic.LoadUint32(&s.syncNeeded) != 0 {
		idx := bytes.Index(b, []byte("OggS"))
		if idx < 0 {
			return pipesink.ErrSkip
		}
		b = b[idx:]
		atomic.StoreUint32(&s.syncNeeded, 0)
	}

	if _, err := w.Write(b); err != nil {
		s.parent.proc.DropStdin(w)
		return err
	}
	return nil
}

func newFileHandler(dir, playlistCacheControl, segmentCacheControl string) http.Handler {
	fileServer := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		viewers.TrackRequest(viewers.ProtocolHLS, r)

		cacheControl := playlistCacheControl
		switch {
		case strings.HasSuffix(r.URL.Path, ".m3u8"):
			w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")

		case strings.HasSuffix(r.URL.Path, ".m4s"):
			w.Header().Set("Content-Type", "video/iso.segment")
			cacheControl = segmentCacheControl

		case strings.HasSuffix(r.URL.Path, ".mp4"):
			w.Header().Set("Content-Type", "video/mp4")
			cacheControl = segmentCacheControl
		}

		if cacheControl != "" {
			w.Header().Set("Cache-Control", cacheControl)
		}

		fileServer.ServeHTTP(w, r)
	})
}

func wipeDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read hls dir: %w", err)
	}

	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("remove %q: %w", path, err)
		}
	}

	return nil
}

func buildArgs(segmentPrefix string) []string {
	logLevel := strings.TrimSpace(os.Getenv("FFMPEG_LOGLEVEL_HLS"))
	if logLevel == "" {
		logLevel = "warning"
	}

	common := []string{
		"-hide_banner",
		"-loglevel", logLevel,
		"-fflags", "+igndts+genpts",
		"-use_wallclock_as_timestamps", "1",
		"-f", "ogg",
		"-i", "pipe:0",
		"-map", "0:a:0",
		"-c:a", "aac",
		"-ac", "2",
		"-ar", "48000",
		"-b:a", "192k",
		"-profile:a", "aac_low",
		"-af", "asetpts=N/SR/TB",
	}

	segmentPrefix = strings.TrimSuffix(strings.TrimSpace(segmentPrefix), "/")
	segmentPattern := "segment_%05d.m4s"
	initFilename := "init.mp4"
	if segmentPrefix != "" {
		segmentPattern = segmentPrefix + "/segment_%05d.m4s"
		initFilename = segmentPrefix + "/init.mp4"
	}
	segmentDuration := "3"
	hlsFlags := strings.Join([]string{
		"delete_segments",
		"independent_segments",
		"omit_endlist",
		"program_date_time",
		"temp_file",
	}, "+")

	args := append(common,
		"-f", "hls",
		"-hls_time", segmentDuration,
		"-hls_init_time", segmentDuration,
		"-hls_list_size", "32",
		"-hls_delete_threshold", "200",
		"-hls_flags", hlsFlags,
		"-strftime_mkdir", "1",
		"-hls_segment_type", "fmp4",
		"-hls_fmp4_init_filename", initFilename,
		"-hls_segment_filename", segmentPattern,
		"-master_pl_name", "master.m3u8",
		"-hls_allow_cache", "0",
		playlistFilename,
	)

	return args
}

func (s *Streamer) startTranscoder(ffmpegBin string) (*exec.Cmd, *io.PipeWriter, error) {
	segmentPrefix := filepath.Join("segments", uuid.New().String())
	segmentDir := filepath.Join(s.dir, segmentPrefix)
	if err := os.MkdirAll(segmentDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create hls segment dir: %w", err)
	}

	pr, pw := io.Pipe()
	args := buildArgs(filepath.ToSlash(segmentPrefix))

	cmd := exec.Command(ffmpegBin, args...)
	cmd.Dir = s.dir
	cmd.Stdin = pr
	cmd.Stdout = io.Discard
	cmd.Stderr = &ffmpegproc.LineLogger{Prefix: "ffmpeg (hls): "}

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return nil, nil, fmt.Errorf("start ffmpeg for hls: %w", err)
	}

	return cmd, pw, nil
}

func (s *Streamer) monitorPlaylist() {
	ticker := time.NewTicker(ffmpegStaleCheckEvery)
	defer ticker.Stop()

	playlistPath := filepath.Join(s.dir, playlistFilename)

	for {
		select {
		case <-ticker.C:
		case <-s.proc.Closed():
			return
		}

		cmd := s.proc.Cmd()
		startedAt := s.proc.StartedAt()

		if cmd == nil || cmd.Process == nil {
			continue
		}

		if time.Since(startedAt) > ffmpegMaxUptime {
			log.Printf("hls transcoder uptime exceeded; restarting to wrap timestamps")
			_ = cmd.Process.Kill()
			continue
		}

		info, err := os.Stat(playlistPath)
		if err != nil {
			if time.Since(startedAt) > ffmpegStalePlaylistAge {
				log.Printf("hls playlist missing; restarting ffmpeg")
				_ = cmd.Process.Kill()
			}
			continue
		}

		if time.Since(info.ModTime()) > ffmpegStalePlaylistAge && time.Since(startedAt) > ffmpegStalePlaylistAge {
			log.Printf("hls playlist stale; restarting ffmpeg")
			_ = cmd.Process.Kill()
		}
	}
}
