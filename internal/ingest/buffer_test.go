// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/ManuGH/liverelay/internal/domain/session/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestBuffer_PreservesOrder(t *testing.T) {
	b := New("lecture-1", 4)
	ctx := context.Background()

	var want bytes.Buffer
	done := make(chan []byte)
	go func() {
		got, _ := io.ReadAll(b)
		done <- got
	}()

	for i := 0; i < 100; i++ {
		chunk := []byte(fmt.Sprintf("chunk-%03d|", i))
		want.Write(chunk)
		require.NoError(t, b.Write(ctx, chunk))
	}
	b.End()

	select {
	case got := <-done:
		assert.Equal(t, want.String(), string(got))
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not finish")
	}

	written, read := b.Stats()
	assert.Equal(t, int64(want.Len()), written)
	assert.Equal(t, written, read)
}

func TestBuffer_CopiesChunk(t *testing.T) {
	b := New("lecture-1", 2)
	chunk := []byte("abc")
	require.NoError(t, b.Write(context.Background(), chunk))
	chunk[0] = 'x'
	b.End()

	got, err := io.ReadAll(b)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestBuffer_EndDrainsQueuedChunks(t *testing.T) {
	b := New("lecture-1", 8)
	ctx := context.Background()
	require.NoError(t, b.Write(ctx, []byte("one")))
	require.NoError(t, b.Write(ctx, []byte("two")))
	b.End()

	got, err := io.ReadAll(b)
	require.NoError(t, err)
	assert.Equal(t, "onetwo", string(got))
	assert.True(t, b.Closed())
}

func TestBuffer_WriteAfterEnd(t *testing.T) {
	b := New("lecture-1", 1)
	b.End()
	b.End() // idempotent

	err := b.Write(context.Background(), []byte("late"))
	assert.ErrorIs(t, err, ports.ErrStreamClosed)
}

func TestBuffer_WriteAfterFailCarriesCause(t *testing.T) {
	b := New("lecture-1", 1)
	cause := errors.New("ffmpeg exited with status 1")
	b.Fail(cause)

	err := b.Write(context.Background(), []byte("late"))
	assert.ErrorIs(t, err, ports.ErrStreamClosed)
	assert.ErrorIs(t, err, cause)
}

func TestBuffer_BackpressureTimesOut(t *testing.T) {
	b := New("lecture-1", 1)
	require.NoError(t, b.Write(context.Background(), []byte("fill")))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := b.Write(ctx, []byte("blocked"))
	assert.ErrorIs(t, err, ports.ErrWriteTimeout)
	b.End()
}

func TestBuffer_BlockedWriterReleasedByEnd(t *testing.T) {
	b := New("lecture-1", 1)
	require.NoError(t, b.Write(context.Background(), []byte("fill")))

	errCh := make(chan error, 1)
	go func() {
		errCh <- b.Write(context.Background(), []byte("blocked"))
	}()

	time.Sleep(20 * time.Millisecond)
	b.End()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ports.ErrStreamClosed)
	case <-time.After(time.Second):
		t.Fatal("blocked writer was not released")
	}

	got, err := io.ReadAll(b)
	require.NoError(t, err)
	assert.Equal(t, "fill", string(got))
}

func TestBuffer_BlockedWriterResumesWhenReaderDrains(t *testing.T) {
	b := New("lecture-1", 1)
	ctx := context.Background()
	require.NoError(t, b.Write(ctx, []byte("a")))

	errCh := make(chan error, 1)
	go func() { errCh <- b.Write(ctx, []byte("b")) }()

	p := make([]byte, 1)
	n, err := b.Read(p)
	require.NoError(t, err)
	assert.Equal(t, "a", string(p[:n]))

	require.NoError(t, <-errCh)
	b.End()
	rest, err := io.ReadAll(b)
	require.NoError(t, err)
	assert.Equal(t, "b", string(rest))
}
