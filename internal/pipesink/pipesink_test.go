package pipesink

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWriteDeliversInOrder(t *testing.T) {
	var mu sync.Mutex
	var got []byte

	s := New("test", 8, func(b []byte) error {
		mu.Lock()
		got = append(got, b...)
		mu.Unlock()
		return nil
	})
	defer s.Close()

	_, err := s.Write([]byte("hello "))
	require.NoError(t, err)
	_, err = s.Write([]byte("world"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return string(got) == "hello world"
	}, time.Second, time.Millisecond)
}

func TestErrSkipDoesNotCountAsDrop(t *testing.T) {
	s := New("test", 8, func(b []byte) error {
		return ErrSkip
	})
	defer s.Close()

	_, err := s.Write([]byte("x"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return true
	}, 50*time.Millisecond, time.Millisecond)
	require.Equal(t, uint64(0), s.DropCount())
}

func TestErrSilentDropCountsWithoutWarning(t *testing.T) {
	s := New("test", 8, func(b []byte) error {
		return ErrSilentDrop
	})
	defer s.Close()

	_, err := s.Write([]byte("x"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return s.DropCount() == 1
	}, time.Second, time.Millisecond)
}

func TestGenericErrorCountsAsDrop(t *testing.T) {
	s := New("test", 8, func(b []byte) error {
		return errors.New("boom")
	})
	defer s.Close()

	_, err := s.Write([]byte("x"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return s.DropCount() == 1
	}, time.Second, time.Millisecond)
}

func TestBufferFullDropsWithoutBlocking(t *testing.T) {
	block := make(chan struct{})
	s := New("test", 1, func(b []byte) error {
		<-block
		return nil
	})
	defer func() {
		close(block)
		s.Close()
	}()

	for i := 0; i < 10; i++ {
		_, err := s.Write([]byte{byte(i)})
		require.NoError(t, err)
	}

	require.Greater(t, s.DropCount(), uint64(0))
}

func TestWriteAfterCloseDrops(t *testing.T) {
	s := New("test", 8, func(b []byte) error { return nil })
	s.Close()

	_, err := s.Write([]byte("x"))
	require.NoError(t, err)
	require.Equal(t, uint64(1), s.DropCount())
}

func TestOnWriteHookRunsBeforeBuffering(t *testing.T) {
	var seen []byte
	s := New("test", 8, func(b []byte) error { return nil })
	s.OnWrite = func(b []byte) { seen = append(seen, b...) }
	defer s.Close()

	_, err := s.Write([]byte("abc"))
	require.NoError(t, err)
	require.Equal(t, "abc", string(seen))
}
