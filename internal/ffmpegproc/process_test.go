package ffmpegproc

import (
	"io"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSetTranscoderReplacesStdin(t *testing.T) {
	p := New("test")

	cmd1 := exec.Command("sleep", "5")
	require.NoError(t, cmd1.Start())
	defer func() { _ = cmd1.Process.Kill() }()
	_, pw1 := io.Pipe()
	p.SetTranscoder(cmd1, pw1)

	require.Equal(t, cmd1, p.Cmd())
	require.Equal(t, pw1, p.Stdin())
	require.WithinDuration(t, time.Now(), p.StartedAt(), time.Second)

	cmd2 := exec.Command("sleep", "5")
	require.NoError(t, cmd2.Start())
	defer func() { _ = cmd2.Process.Kill() }()
	_, pw2 := io.Pipe()
	p.SetTranscoder(cmd2, pw2)

	require.Equal(t, cmd2, p.Cmd())
	require.Equal(t, pw2, p.Stdin())
}

func TestDropStdinOnlyClearsCurrent(t *testing.T) {
	p := New("test")
	_, pwOld := io.Pipe()
	_, pwCurrent := io.Pipe()

	cmd := exec.Command("sleep", "5")
	require.NoError(t, cmd.Start())
	defer func() { _ = cmd.Process.Kill() }()
	p.SetTranscoder(cmd, pwCurrent)

	p.DropStdin(pwOld)
	require.Equal(t, pwCurrent, p.Stdin())

	p.DropStdin(pwCurrent)
	require.Nil(t, p.Stdin())
}

func TestCloseIsIdempotentAndClearsStdin(t *testing.T) {
	p := New("test")
	cmd := exec.Command("sleep", "5")
	require.NoError(t, cmd.Start())
	_, pw := io.Pipe()
	p.SetTranscoder(cmd, pw)

	require.True(t, p.Close())
	require.False(t, p.Close())
	require.True(t, p.IsClosed())
	require.Nil(t, p.Stdin())
}

func TestSuperviseRestartsUntilClosed(t *testing.T) {
	p := New("test")
	p.RestartDelay = time.Millisecond
	p.RestartMaxDelay = 5 * time.Millisecond

	cmd := exec.Command("true")
	require.NoError(t, cmd.Start())
	_, pw := io.Pipe()
	p.SetTranscoder(cmd, pw)

	var restartsSeen int
	restart := func() (*exec.Cmd, *io.PipeWriter, error) {
		restartsSeen++
		next := exec.Command("true")
		if err := next.Start(); err != nil {
			return nil, nil, err
		}
		_, nextPw := io.Pipe()
		return next, nextPw, nil
	}

	done := make(chan struct{})
	go func() {
		p.Supervise(cmd, pw, restart, nil)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return restartsSeen >= 3
	}, 2*time.Second, time.Millisecond)

	p.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervise did not stop after Close")
	}
}
