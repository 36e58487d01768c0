// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ingest implements the per-session media sink that sits between the
// real-time channel and the transcode process.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/ManuGH/liverelay/internal/domain/session/ports"
	"github.com/ManuGH/liverelay/internal/metrics"
)

// DefaultCapacity is the number of chunks queued before Write blocks.
const DefaultCapacity = 256

// Buffer is a bounded FIFO of media chunks. Write blocks while the queue is
// full; chunks are never dropped. Read drains queued chunks and returns io.EOF
// once the buffer has been ended and emptied.
//
// Writers hold wmu (shared) for the whole enqueue; End closes closing first to
// release blocked writers, then takes wmu exclusively before closing closed.
// Every accepted chunk is therefore queued before the reader can observe EOF.
type Buffer struct {
	sessionID string
	chunks    chan []byte

	wmu     sync.RWMutex
	ended   bool
	closing chan struct{}
	closed  chan struct{}
	endOnce sync.Once
	failErr atomic.Pointer[error]

	// reader side, single consumer
	rmu  sync.Mutex
	cur  []byte
	read atomic.Int64

	written atomic.Int64
}

var _ ports.MediaBuffer = (*Buffer)(nil)

// New creates a buffer for sessionID holding up to capacity chunks.
func New(sessionID string, capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		sessionID: sessionID,
		chunks:    make(chan []byte, capacity),
		closing:   make(chan struct{}),
		closed:    make(chan struct{}),
	}
}

// Write enqueues a copy of chunk. It returns ports.ErrStreamClosed after End or
// Fail, and ports.ErrWriteTimeout if ctx expires while the queue is full.
func (b *Buffer) Write(ctx context.Context, chunk []byte) error {
	b.wmu.RLock()
	defer b.wmu.RUnlock()

	if b.ended {
		metrics.IngestWriteErrors.WithLabelValues("closed").Inc()
		return b.closedErr()
	}
	if len(chunk) == 0 {
		return nil
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)

	select {
	case b.chunks <- cp:
		b.accept(len(cp))
		return nil
	default:
	}

	metrics.IngestBackpressure.Inc()
	select {
	case b.chunks <- cp:
		b.accept(len(cp))
		return nil
	case <-b.closing:
		metrics.IngestWriteErrors.WithLabelValues("closed").Inc()
		return b.closedErr()
	case <-ctx.Done():
		metrics.IngestWriteErrors.WithLabelValues("timeout").Inc()
		return fmt.Errorf("%w: %w", ports.ErrWriteTimeout, ctx.Err())
	}
}

func (b *Buffer) accept(n int) {
	b.written.Add(int64(n))
	metrics.IngestBytes.Add(float64(n))
}

func (b *Buffer) closedErr() error {
	if p := b.failErr.Load(); p != nil {
		return fmt.Errorf("%w: %w", ports.ErrStreamClosed, *p)
	}
	return ports.ErrStreamClosed
}

// End stops accepting writes. Chunks already queued are still delivered to the reader.
func (b *Buffer) End() {
	b.endOnce.Do(func() {
		close(b.closing)
		b.wmu.Lock()
		b.ended = true
		close(b.closed)
		b.wmu.Unlock()
	})
}

// Fail ends the buffer and records the cause reported to later writers.
func (b *Buffer) Fail(err error) {
	if err == nil {
		err = errors.New("ingest failed")
	}
	b.failErr.CompareAndSwap(nil, &err)
	b.End()
}

// Read implements io.Reader for the transcode process.
func (b *Buffer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	b.rmu.Lock()
	defer b.rmu.Unlock()

	if len(b.cur) == 0 {
		select {
		case c := <-b.chunks:
			b.cur = c
		case <-b.closed:
			// Drain whatever was queued before End.
			select {
			case c := <-b.chunks:
				b.cur = c
			default:
				return 0, io.EOF
			}
		}
	}
	n := copy(p, b.cur)
	b.cur = b.cur[n:]
	b.read.Add(int64(n))
	return n, nil
}

// Stats returns bytes accepted by Write and bytes handed out by Read.
func (b *Buffer) Stats() (written, read int64) {
	return b.written.Load(), b.read.Load()
}

// Closed reports whether End or Fail has been called.
func (b *Buffer) Closed() bool {
	select {
	case <-b.closed:
		return true
	default:
		return false
	}
}
