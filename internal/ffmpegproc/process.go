// Package ffmpegproc supervises a long-running ffmpeg child process
// that reads a live byte stream from a stdin pipe we own, restarting
// it with backoff whenever it exits unexpectedly. internal/hls and
// internal/icecast each wire their own ffmpeg arguments and stdout
// handling around one of these; only the restart/backoff bookkeeping
// and stderr logging is shared here.
package ffmpegproc

import (
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultRestartDelay    = 2 * time.Second
	DefaultRestartMaxDelay = 30 * time.Second
)

// Process tracks the currently running child process and its stdin
// pipe, guarded by a mutex since the supervisor goroutine swaps them
// out from under whatever else is writing to or inspecting them.
type Process struct {
	Label           string
	RestartDelay    time.Duration
	RestartMaxDelay time.Duration

	mu        sync.RWMutex
	cmd       *exec.Cmd
	stdin     *io.PipeWriter
	startedAt time.Time

	closed    chan struct{}
	closeOnce sync.Once
}

// New creates a Process. label prefixes its log lines (e.g. "hls",
// "icecast").
func New(label string) *Process {
	return &Process{
		Label:           label,
		RestartDelay:    DefaultRestartDelay,
		RestartMaxDelay: DefaultRestartMaxDelay,
		closed:          make(chan struct{}),
	}
}

// Stdin returns the pipe currently wired to the child's stdin, or nil
// between a crash and the next successful restart.
func (p *Process) Stdin() *io.PipeWriter {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stdin
}

// Cmd returns the currently supervised child process, or nil.
func (p *Process) Cmd() *exec.Cmd {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cmd
}

// StartedAt returns when the current child process was started.
func (p *Process) StartedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.startedAt
}

// SetTranscoder installs a freshly started child process, closing
// whichever stdin pipe it replaces.
func (p *Process) SetTranscoder(cmd *exec.Cmd, stdin *io.PipeWriter) {
	p.mu.Lock()
	old := p.stdin
	p.stdin = stdin
	p.cmd = cmd
	p.startedAt = time.Now()
	p.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
}

func (p *Process) clearTranscoder(cmd *exec.Cmd, stdin *io.PipeWriter) {
	p.mu.Lock()
	if p.cmd == cmd {
		p.cmd = nil
	}
	if p.stdin == stdin {
		p.stdin = nil
	}
	p.mu.Unlock()

	if stdin != nil {
		_ = stdin.Close()
	}
}

// DropStdin discards stdin if it is still the active pipe, e.g. after
// a failed write; Supervise's own exit detection restarts the process
// shortly after.
func (p *Process) DropStdin(stdin *io.PipeWriter) {
	p.mu.Lock()
	if p.stdin == stdin {
		p.stdin = nil
	}
	p.mu.Unlock()
	if stdin != nil {
		_ = stdin.Close()
	}
}

// Restart kills the current child process; Supervise restarts it.
func (p *Process) Restart() {
	if p.IsClosed() {
		return
	}
	if cmd := p.Cmd(); cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

// Close marks the process closed, stopping the supervisor loop and
// killing the current child. It reports whether this call performed
// the close (false if already closed).
func (p *Process) Close() bool {
	did := false
	p.closeOnce.Do(func() {
		did = true
		close(p.closed)

		p.mu.Lock()
		cmd := p.cmd
		stdin := p.stdin
		p.cmd = nil
		p.stdin = nil
		p.mu.Unlock()

		if stdin != nil {
			_ = stdin.Close()
		}
		if cmd != nil && cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	})
	return did
}

// Closed returns a channel that's closed once Close has been called.
func (p *Process) Closed() <-chan struct{} {
	return p.closed
}

// IsClosed reports whether Close has been called.
func (p *Process) IsClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

// Supervise waits for the already-running cmd/stdin to exit, then
// restarts it with exponential backoff by calling restart, invoking
// onRestart after each successful restart, until Close is called.
func (p *Process) Supervise(cmd *exec.Cmd, stdin *io.PipeWriter, restart func() (*exec.Cmd, *io.PipeWriter, error), onRestart func(cmd *exec.Cmd, stdin *io.PipeWriter)) {
	backoff := p.RestartDelay

	for {
		if err := cmd.Wait(); err != nil {
			log.Printf("%s transcoder exited: %v", p.Label, err)
		} else {
			log.Printf("%s transcoder exited cleanly", p.Label)
		}

		// Exit cleanly when the process is closed; otherwise keep trying with backoff.
		if p.IsClosed() {
			return
		}

		p.clearTranscoder(cmd, stdin)

		for {
			if p.IsClosed() {
				return
			}

			timer := time.NewTimer(backoff)
			select {
			case <-timer.C:
			case <-p.closed:
				timer.Stop()
				return
			}

			nextCmd, nextStdin, err := restart()
			if err != nil {
				log.Printf("%s transcoder restart failed: %v", p.Label, err)
				backoff *= 2
				if backoff > p.RestartMaxDelay {
					backoff = p.RestartMaxDelay
				}
				continue
			}

			p.SetTranscoder(nextCmd, nextStdin)
			if onRestart != nil {
				onRestart(nextCmd, nextStdin)
			}

			cmd = nextCmd
			stdin = nextStdin
			backoff = p.RestartDelay
			break
		}
	}
}

// LineLogger adapts ffmpeg's line-oriented stderr into one log line
// per non-blank line, prefixed for the owning transcoder.
type LineLogger struct {
	Prefix string
}

func (l *LineLogger) Write(p []byte) (int, error) {
	lines := strings.Split(strings.TrimSpace(string(p)), "\n")
	for _, ln := range lines {
		ln = strings.TrimSpace(ln)
		if ln != "" {
			log.Printf("%s%s", l.Prefix, ln)
		}
	}

	return len(p), nil
}
