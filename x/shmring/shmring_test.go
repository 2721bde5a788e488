package shmring

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderAcrossWrapWithPartialProgress(t *testing.T) {
	r := New[byte](64)

	const N = 2000
	src := make([]byte, N)
	for i := range src {
		src[i] = byte(i)
	}

	p := src
	dst := make([]byte, 0, N)
	for len(dst) < N {
		if len(p) > 0 {
			step := min(len(p), 7)
			step = r.WriteFrom(p[:step])
			p = p[step:]
		}
		var tmp [17]byte
		n := r.ReadInto(tmp[:])
		dst = append(dst, tmp[:n]...)
	}
	assert.Equal(t, src, dst)
}

func TestTryWriteFullAndTryRead(t *testing.T) {
	r := New[int](4)
	for i := 0; i < 4; i++ {
		require.True(t, r.TryWrite(i))
	}
	assert.False(t, r.TryWrite(99))
	assert.Equal(t, 4, r.Available())
	assert.Equal(t, 0, r.Space())

	for i := 0; i < 4; i++ {
		v, ok := r.TryRead()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	_, ok := r.TryRead()
	assert.False(t, ok)
}

func TestDiscard(t *testing.T) {
	r := New[int](8)
	assert.Equal(t, 0, r.Discard())
	r.WriteFrom([]int{1, 2, 3})
	assert.Equal(t, 3, r.Discard())
	assert.Equal(t, 0, r.Available())
	assert.Equal(t, 8, r.Space())

	require.True(t, r.TryWrite(4))
	v, ok := r.TryRead()
	require.True(t, ok)
	assert.Equal(t, 4, v)
}

func TestReadableWritableEdges(t *testing.T) {
	r := New[byte](4)
	select {
	case <-r.Readable():
		t.Fatal("unexpected Readable on empty ring")
	default:
	}

	require.Equal(t, 3, r.WriteFrom([]byte{1, 2, 3}))
	select {
	case <-r.Readable():
	default:
		t.Fatal("expected Readable")
	}
	require.True(t, r.TryWrite(4))
	select {
	case <-r.Readable():
		t.Fatal("unexpected extra Readable")
	default:
	}

	// full -> non-full
	_, ok := r.TryRead()
	require.True(t, ok)
	select {
	case <-r.Writable():
	default:
		t.Fatal("expected Writable")
	}

	// full again, discard also signals space
	require.True(t, r.TryWrite(5))
	r.Discard()
	select {
	case <-r.Writable():
	default:
		t.Fatal("expected Writable after Discard")
	}
}

func TestConcurrentProducerConsumer(t *testing.T) {
	r := New[uint32](16)
	const N = 100_000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := uint32(0); i < N; {
			if r.TryWrite(i) {
				i++
				continue
			}
			<-r.Writable()
		}
	}()

	next := uint32(0)
	for next < N {
		v, ok := r.TryRead()
		if !ok {
			<-r.Readable()
			continue
		}
		if v != next {
			t.Fatalf("got %d want %d", v, next)
		}
		next++
	}
	wg.Wait()
}

func TestNewRejectsBadSize(t *testing.T) {
	assert.Panics(t, func() { New[byte](3) })
	assert.Panics(t, func() { New[byte](1) })
}
