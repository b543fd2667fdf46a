package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRingBufferOverwritesOldest(t *testing.T) {
	rb := NewRingBuffer[int](3)
	require.True(t, rb.IsEmpty())

	require.Nil(t, rb.Push(1))
	require.Nil(t, rb.Push(2))
	require.Nil(t, rb.Push(3))
	require.Equal(t, 3, rb.Len())
	require.Equal(t, []int{1, 2, 3}, rb.Values())

	overwritten := rb.Push(4)
	require.NotNil(t, overwritten)
	require.Equal(t, 1, *overwritten)
	require.Equal(t, []int{2, 3, 4}, rb.Values())
}

func TestRingBufferGetOutOfRange(t *testing.T) {
	rb := NewRingBuffer[string](2)
	rb.Push("a")
	require.NotNil(t, rb.Get(0))
	require.Nil(t, rb.Get(1))
	require.Nil(t, rb.Get(-1))
}

func TestRingBufferPopFrontDequeuesOldestFirst(t *testing.T) {
	rb := NewRingBuffer[int](2)
	rb.Push(1)
	rb.Push(2)

	v, ok := rb.PopFront()
	require.True(t, ok)
	require.Equal(t, 1, v)
	require.Equal(t, 1, rb.Len())

	rb.Push(3)
	v, ok = rb.PopFront()
	require.True(t, ok)
	require.Equal(t, 2, v)

	v, ok = rb.PopFront()
	require.True(t, ok)
	require.Equal(t, 3, v)

	_, ok = rb.PopFront()
	require.False(t, ok)
}
