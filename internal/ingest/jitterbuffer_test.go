package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJitterBufferDropsOldestWhenFull(t *testing.T) {
	jb := NewJitterBuffer(2)
	require.Nil(t, jb.Push(SegmentInfo{Sequence: 1}))
	require.Nil(t, jb.Push(SegmentInfo{Sequence: 2}))

	dropped := jb.Push(SegmentInfo{Sequence: 3})
	require.NotNil(t, dropped)
	require.Equal(t, uint64(1), dropped.Sequence)

	first, ok := jb.Pop()
	require.True(t, ok)
	require.Equal(t, uint64(2), first.Sequence)

	second, ok := jb.Pop()
	require.True(t, ok)
	require.Equal(t, uint64(3), second.Sequence)
}

func TestJitterBufferPopBlocksUntilPush(t *testing.T) {
	jb := NewJitterBuffer(4)
	done := make(chan SegmentInfo, 1)

	go func() {
		item, ok := jb.Pop()
		if ok {
			done <- item
		}
	}()

	time.Sleep(10 * time.Millisecond)
	jb.Push(SegmentInfo{Sequence: 42})

	select {
	case item := <-done:
		require.Equal(t, uint64(42), item.Sequence)
	case <-time.After(time.Second):
		t.Fatal("pop did not unblock after push")
	}
}

func TestJitterBufferCloseUnblocksPop(t *testing.T) {
	jb := NewJitterBuffer(2)
	done := make(chan bool, 1)

	go func() {
		_, ok := jb.Pop()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	jb.Close()

	select {
	case ok := <-done:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("pop did not unblock after close")
	}
}
