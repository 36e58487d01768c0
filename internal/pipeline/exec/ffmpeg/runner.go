// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/liverelay/internal/domain/session/ports"
	"github.com/ManuGH/liverelay/internal/log"
	"github.com/ManuGH/liverelay/internal/metrics"
	"github.com/ManuGH/liverelay/internal/procgroup"
	"github.com/rs/zerolog"
)

const (
	eventBuffer      = 32
	stderrTailLines  = 20
	defaultKillGrace = 5 * time.Second
)

// CommandFunc resolves the binary and arguments for one pipeline.
type CommandFunc func(sinkURL string, p Params) (bin string, args []string, err error)

// Runner starts one ffmpeg process per session. It is safe for concurrent use;
// all per-process state lives in the returned Handle.
type Runner struct {
	BinPath   string
	Params    Params
	KillGrace time.Duration

	// Command overrides argument construction (tests substitute a stand-in encoder).
	Command CommandFunc
}

var _ ports.TranscodePipeline = (*Runner)(nil)

// NewRunner creates a runner for the given encode profile.
func NewRunner(binPath string, params Params, killGrace time.Duration) *Runner {
	if binPath == "" {
		binPath = "ffmpeg"
	}
	if killGrace <= 0 {
		killGrace = defaultKillGrace
	}
	return &Runner{
		BinPath:   binPath,
		Params:    params,
		KillGrace: killGrace,
	}
}

func (r *Runner) command(sinkURL string) (string, []string, error) {
	if r.Command != nil {
		return r.Command(sinkURL, r.Params)
	}
	args, err := BuildRTMPArgs(sinkURL, r.Params)
	return r.BinPath, args, err
}

// Start launches ffmpeg reading source on stdin and publishing to sinkURL.
// Cancelling ctx kills the process. The caller must eventually end source
// (EOF or error) so the stdin copier can exit.
func (r *Runner) Start(ctx context.Context, source io.Reader, sinkURL string) (ports.PipelineHandle, error) {
	logger := log.WithContext(ctx, log.WithComponent("ffmpeg"))

	bin, args, err := r.command(sinkURL)
	if err != nil {
		metrics.PipelineStarts.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: %w", ports.ErrPipeline, err)
	}

	cmd := exec.Command(bin, args...) // #nosec G204 -- args are built without a shell
	procgroup.Set(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		metrics.PipelineStarts.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: stdin pipe: %w", ports.ErrPipeline, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		metrics.PipelineStarts.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: stderr pipe: %w", ports.ErrPipeline, err)
	}

	if err := cmd.Start(); err != nil {
		metrics.PipelineStarts.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: start %s: %w", ports.ErrPipeline, bin, err)
	}
	metrics.PipelineStarts.WithLabelValues("ok").Inc()

	h := &Handle{
		cmd:    cmd,
		ring:   NewLineRing(256),
		events: make(chan ports.PipelineEvent, eventBuffer),
		done:   make(chan struct{}),
		grace:  r.KillGrace,
		logger: logger.With().Int(log.FieldPID, cmd.Process.Pid).Logger(),
	}
	h.events <- ports.PipelineEvent{Type: ports.PipelineStarted, At: time.Now()}
	h.logger.Info().Str(log.FieldURL, redactSink(sinkURL)).Msg("ffmpeg started")

	go h.copyInput(stdin, source)

	var ioWg sync.WaitGroup
	ioWg.Add(1)
	go func() {
		defer ioWg.Done()
		h.consumeStderr(stderr)
	}()

	go h.supervise(&ioWg)

	go func() {
		select {
		case <-ctx.Done():
			_ = h.Kill(context.Background())
		case <-h.done:
		}
	}()

	return h, nil
}

// Handle is one running ffmpeg process.
type Handle struct {
	cmd    *exec.Cmd
	ring   *LineRing
	events chan ports.PipelineEvent
	grace  time.Duration
	logger zerolog.Logger

	done     chan struct{}
	exitErr  error
	killed   atomic.Bool
	killOnce sync.Once
}

var _ ports.PipelineHandle = (*Handle)(nil)

// Events delivers started, progress and exactly one terminal event, then closes.
func (h *Handle) Events() <-chan ports.PipelineEvent { return h.events }

// PID returns the process id (also the process group id).
func (h *Handle) PID() int { return h.cmd.Process.Pid }

// Done is closed once the process has been reaped.
func (h *Handle) Done() <-chan struct{} { return h.done }

// LastLogLines returns up to n trailing stderr lines.
func (h *Handle) LastLogLines(n int) []string { return h.ring.LastN(n) }

// Kill stops the process group: SIGTERM, then SIGKILL after the grace period
// (shortened to ctx's deadline if that is sooner). Repeated calls wait for the
// first one to finish.
func (h *Handle) Kill(ctx context.Context) error {
	h.killOnce.Do(func() {
		h.killed.Store(true)
		select {
		case <-h.done:
			return
		default:
		}

		grace := h.grace
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < grace {
				grace = max(rem, 0)
			}
		}

		waitCh := make(chan error, 1)
		go func() {
			<-h.done
			waitCh <- h.exitErr
		}()
		err := procgroup.Terminate(h.cmd, waitCh, grace)
		h.logger.Debug().Err(err).Msg("ffmpeg terminated")
	})

	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) copyInput(stdin io.WriteCloser, source io.Reader) {
	n, err := io.Copy(stdin, source)
	_ = stdin.Close()
	if err != nil && !errors.Is(err, ports.ErrStreamClosed) {
		h.logger.Debug().Err(err).Int64("bytes", n).Msg("stdin copy stopped")
	}
}

func (h *Handle) consumeStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Split(scanStatLines)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "frame=") || strings.HasPrefix(line, "size=") {
			// Keep one slot free so the terminal event never blocks.
			if len(h.events) < cap(h.events)-1 {
				select {
				case h.events <- ports.PipelineEvent{Type: ports.PipelineProgress, At: time.Now(), Line: line}:
				default:
				}
			}
			continue
		}
		_, _ = h.ring.Write([]byte(line))
	}
}

func (h *Handle) supervise(ioWg *sync.WaitGroup) {
	// All pipe reads must finish before Wait.
	ioWg.Wait()
	h.exitErr = h.cmd.Wait()
	close(h.done)

	ev := ports.PipelineEvent{Type: ports.PipelineEnded, At: time.Now()}
	switch {
	case h.killed.Load():
		metrics.PipelineExits.WithLabelValues("killed").Inc()
		h.logger.Info().Msg("ffmpeg stopped")
	case h.exitErr == nil:
		metrics.PipelineExits.WithLabelValues("ended").Inc()
		h.logger.Info().Msg("ffmpeg finished")
	default:
		metrics.PipelineExits.WithLabelValues("error").Inc()
		tail := h.ring.LastN(stderrTailLines)
		ev.Type = ports.PipelineError
		ev.Line = strings.Join(tail, "\n")
		ev.Err = fmt.Errorf("%w: %w", ports.ErrPipeline, h.exitErr)
		h.logger.Error().Err(h.exitErr).Strs("stderr", tail).Msg("ffmpeg exited with error")
	}
	h.events <- ev
	close(h.events)
}

// scanStatLines splits on \n or \r; ffmpeg redraws its stats line with \r.
func scanStatLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
