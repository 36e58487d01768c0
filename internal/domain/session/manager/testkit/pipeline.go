// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package testkit

import (
	"bytes"
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/liverelay/internal/domain/session/ports"
)

// Pipeline is a ports.TranscodePipeline that copies its source into memory
// instead of running a process.
type Pipeline struct {
	mu       sync.Mutex
	StartErr error
	handles  []*Handle
	sinks    []string
}

func NewPipeline() *Pipeline { return &Pipeline{} }

func (p *Pipeline) Start(_ context.Context, source io.Reader, sinkURL string) (ports.PipelineHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.StartErr != nil {
		return nil, p.StartErr
	}
	h := &Handle{
		pid:    1000 + len(p.handles),
		events: make(chan ports.PipelineEvent, 8),
		eof:    make(chan struct{}),
	}
	h.events <- ports.PipelineEvent{Type: ports.PipelineStarted, At: time.Now()}
	go h.consume(source)

	p.handles = append(p.handles, h)
	p.sinks = append(p.sinks, sinkURL)
	return h, nil
}

// Last returns the most recently started handle, or nil.
func (p *Pipeline) Last() *Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.handles) == 0 {
		return nil
	}
	return p.handles[len(p.handles)-1]
}

// Sinks returns the sink URL of every start.
func (p *Pipeline) Sinks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.sinks...)
}

// Handle is one fake pipeline run.
type Handle struct {
	pid    int
	events chan ports.PipelineEvent
	once   sync.Once
	kills  atomic.Int32

	mu   sync.Mutex
	data bytes.Buffer
	eof  chan struct{}
}

func (h *Handle) consume(source io.Reader) {
	defer close(h.eof)
	buf := make([]byte, 4096)
	for {
		n, err := source.Read(buf)
		if n > 0 {
			h.mu.Lock()
			h.data.Write(buf[:n])
			h.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

func (h *Handle) finish(ev ports.PipelineEvent) {
	h.once.Do(func() {
		h.events <- ev
		close(h.events)
	})
}

func (h *Handle) Events() <-chan ports.PipelineEvent { return h.events }

func (h *Handle) Kill(context.Context) error {
	h.kills.Add(1)
	h.finish(ports.PipelineEvent{Type: ports.PipelineEnded, At: time.Now()})
	return nil
}

func (h *Handle) PID() int { return h.pid }

// Crash simulates the process failing on its own.
func (h *Handle) Crash(err error) {
	h.finish(ports.PipelineEvent{Type: ports.PipelineError, At: time.Now(), Err: err, Line: "simulated crash"})
}

// Kills returns how many times Kill was called.
func (h *Handle) Kills() int { return int(h.kills.Load()) }

// Received returns every byte read from the source so far.
func (h *Handle) Received() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]byte(nil), h.data.Bytes()...)
}

// SourceDone is closed once the source returned EOF or an error.
func (h *Handle) SourceDone() <-chan struct{} { return h.eof }
