// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/liverelay/internal/domain/session/manager/testkit"
	"github.com/ManuGH/liverelay/internal/domain/session/model"
	"github.com/ManuGH/liverelay/internal/domain/session/ports"
	"github.com/ManuGH/liverelay/internal/domain/session/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	sessionID = "lecture-42"
	teacher   = "teacher-1"
)

// countingStore records every status write on top of the memory store.
type countingStore struct {
	*store.MemoryStore
	mu     sync.Mutex
	writes []model.LectureStatus
	// failOn makes writes of that status fail.
	failOn model.LectureStatus
}

var errStoreDown = errors.New("store unavailable")

func (c *countingStore) SetLectureStatus(ctx context.Context, id string, status model.LectureStatus) error {
	c.mu.Lock()
	c.writes = append(c.writes, status)
	fail := c.failOn != "" && c.failOn == status
	c.mu.Unlock()
	if fail {
		return errStoreDown
	}
	return c.MemoryStore.SetLectureStatus(ctx, id, status)
}

func (c *countingStore) count(status model.LectureStatus) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, w := range c.writes {
		if w == status {
			n++
		}
	}
	return n
}

type allowAll struct{}

func (allowAll) AuthorizePublisher(context.Context, model.Lecture, string) error { return nil }

type fixture struct {
	m        *Manager
	store    *countingStore
	platform *testkit.Platform
	pipeline *testkit.Pipeline
	notifier *testkit.Notifier
}

func newFixture(t *testing.T, auth ports.Authorizer) *fixture {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemoryStore()
	for _, id := range []string{"42", "43"} {
		require.NoError(t, mem.PutLecture(ctx, model.Lecture{
			ID:        id,
			TeacherID: teacher,
			Title:     "Lecture " + id,
			Status:    model.LectureScheduled,
		}))
	}

	f := &fixture{
		store:    &countingStore{MemoryStore: mem},
		platform: testkit.NewPlatform(),
		pipeline: testkit.NewPipeline(),
		notifier: testkit.NewNotifier(),
	}
	m, err := New(Deps{
		Lectures:   f.store,
		Authorizer: auth,
		Platform:   f.platform,
		Pipeline:   f.pipeline,
		Notifier:   f.notifier,
	}, Config{IngestCapacity: 4, WriteTimeout: time.Second})
	require.NoError(t, err)
	f.m = m
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return f
}

func (f *fixture) lecture(t *testing.T, id string) model.Lecture {
	t.Helper()
	l, err := f.store.FindLecture(context.Background(), id)
	require.NoError(t, err)
	return l
}

func waitLive(t *testing.T, act *Activation) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url, err := act.Wait(ctx)
	require.NoError(t, err)
	return url
}

func TestLecture42Scenario(t *testing.T) {
	f := newFixture(t, nil)
	f.platform.ActiveOnAttempt = 3
	ctx := context.Background()

	act, err := f.m.StartSession(ctx, sessionID, teacher)
	require.NoError(t, err)
	assert.Equal(t, model.LectureInProgress, f.lecture(t, "42").Status)
	assert.Equal(t, []string{"rtmp://a.rtmp.youtube.com/live2/key-123"}, f.pipeline.Sinks())
	require.Len(t, f.notifier.Events(model.EventSessionStarted), 1)

	var want bytes.Buffer
	for i := range 10 {
		chunk := []byte(fmt.Sprintf("chunk-%02d;", i))
		want.Write(chunk)
		require.NoError(t, f.m.PushMedia(ctx, sessionID, teacher, chunk))
	}

	url := waitLive(t, act)
	assert.Equal(t, "https://www.youtube.com/watch?v=b1", url)
	assert.Equal(t, 3, f.platform.Attempts())
	assert.Equal(t, url, f.lecture(t, "42").LiveBroadcastURL)
	assert.Equal(t, []ports.BroadcastLifecycle{ports.BroadcastTesting, ports.BroadcastLive}, f.platform.Transitions())

	started := f.notifier.Events(model.EventStreamingStarted)
	require.Len(t, started, 1)
	assert.Equal(t, teacher, started[0].User)
	assert.Equal(t, model.StreamingStartedPayload{SessionID: sessionID, WatchURL: url}, started[0].Payload)

	handle := f.pipeline.Last()
	require.NoError(t, f.m.StopSession(ctx, sessionID, teacher))

	select {
	case <-handle.SourceDone():
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline source was not closed")
	}
	assert.Equal(t, want.Bytes(), handle.Received())
	assert.Equal(t, 1, handle.Kills())
	assert.Equal(t, model.LectureCompleted, f.lecture(t, "42").Status)
	assert.Equal(t, ports.BroadcastComplete, f.platform.Transitions()[2])
	assert.Equal(t, 0, f.m.Registry().Len())
	assert.Len(t, f.notifier.Events(model.EventSessionEnded), 1)
	assert.Len(t, f.notifier.Events(model.EventStreamingStopped), 1)
}

func TestStartSession_SecondPublisherIsRejected(t *testing.T) {
	f := newFixture(t, allowAll{})
	f.platform.ActivationGate = make(chan struct{})
	ctx := context.Background()

	_, err := f.m.StartSession(ctx, sessionID, teacher)
	require.NoError(t, err)

	_, err = f.m.StartSession(ctx, sessionID, "intruder")
	require.ErrorIs(t, err, ports.ErrAlreadyPublishing)

	s, ok := f.m.Registry().Get(sessionID)
	require.True(t, ok)
	info := s.Info()
	assert.Equal(t, teacher, info.Publisher)
	assert.Equal(t, model.StateAwaitingActivation, info.State)
	assert.Equal(t, "b1", info.BroadcastID)
	assert.Equal(t, 1, f.platform.Creates())

	require.ErrorIs(t, f.m.PushMedia(ctx, sessionID, "intruder", []byte("x")), ports.ErrAuthorization)
	require.ErrorIs(t, f.m.StopSession(ctx, sessionID, "intruder"), ports.ErrAuthorization)
	require.NoError(t, f.m.StopSession(ctx, sessionID, teacher))
}

func TestStartSession_SamePublisherWhileRunning(t *testing.T) {
	f := newFixture(t, nil)
	f.platform.ActivationGate = make(chan struct{})
	ctx := context.Background()

	_, err := f.m.StartSession(ctx, sessionID, teacher)
	require.NoError(t, err)
	_, err = f.m.StartSession(ctx, sessionID, teacher)
	require.ErrorIs(t, err, ports.ErrAlreadyPublishing)
	assert.Equal(t, 1, f.platform.Creates())
	require.NoError(t, f.m.StopSession(ctx, sessionID, teacher))
}

func TestStartSession_RejectsNonTeacher(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.m.StartSession(context.Background(), sessionID, "student-7")
	require.ErrorIs(t, err, ports.ErrAuthorization)
	assert.Equal(t, 0, f.m.Registry().Len())
	assert.Equal(t, 0, f.platform.Creates())
}

func TestStartSession_UnknownOrCompletedLecture(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.m.StartSession(ctx, "lecture-404", teacher)
	require.ErrorIs(t, err, ports.ErrLectureNotFound)

	_, err = f.m.StartSession(ctx, "not-a-session", teacher)
	require.ErrorIs(t, err, ports.ErrLectureNotFound)

	require.NoError(t, f.store.SetLectureStatus(ctx, "42", model.LectureCompleted))
	_, err = f.m.StartSession(ctx, sessionID, teacher)
	require.ErrorIs(t, err, ports.ErrInvalidStatusTransition)
	assert.Equal(t, 0, f.m.Registry().Len())
}

func TestStartSession_CreateStreamFailureLeavesNoEntry(t *testing.T) {
	f := newFixture(t, nil)
	f.platform.CreateErr = fmt.Errorf("%w: quota", ports.ErrBroadcastCreateFailed)

	_, err := f.m.StartSession(context.Background(), sessionID, teacher)
	require.ErrorIs(t, err, ports.ErrBroadcastCreateFailed)

	_, ok := f.m.Registry().Get(sessionID)
	assert.False(t, ok)
	assert.Equal(t, model.LectureScheduled, f.lecture(t, "42").Status)
	assert.Nil(t, f.pipeline.Last())
	assert.Empty(t, f.notifier.Events(model.EventStreamingError))
	assert.Empty(t, f.notifier.Events(model.EventSessionEnded))
}

func TestStartSession_PipelineStartFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.pipeline.StartErr = fmt.Errorf("%w: ffmpeg missing", ports.ErrPipeline)

	_, err := f.m.StartSession(context.Background(), sessionID, teacher)
	require.ErrorIs(t, err, ports.ErrPipeline)
	assert.Equal(t, 0, f.m.Registry().Len())
	assert.Equal(t, model.LectureScheduled, f.lecture(t, "42").Status)
}

func TestStopSession_IsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	act, err := f.m.StartSession(ctx, sessionID, teacher)
	require.NoError(t, err)
	waitLive(t, act)

	require.NoError(t, f.m.StopSession(ctx, sessionID, teacher))
	require.NoError(t, f.m.StopSession(ctx, sessionID, teacher))

	assert.Equal(t, 1, f.store.count(model.LectureCompleted))
	assert.Len(t, f.notifier.Events(model.EventSessionEnded), 1)
}

func TestStopSession_AfterDisconnect(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	act, err := f.m.StartSession(ctx, sessionID, teacher)
	require.NoError(t, err)
	waitLive(t, act)

	f.m.HandleDisconnect(ctx, teacher)
	require.NoError(t, f.m.StopSession(ctx, sessionID, teacher))

	assert.Equal(t, 1, f.store.count(model.LectureCompleted))
	assert.Equal(t, 0, f.m.Registry().Len())
}

func TestStopSession_UnknownSession(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.m.StopSession(context.Background(), "lecture-99", teacher))
}

func TestDisconnectDuringLiveMatchesStop(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	act, err := f.m.StartSession(ctx, sessionID, teacher)
	require.NoError(t, err)
	waitLive(t, act)
	handle := f.pipeline.Last()

	f.m.HandleDisconnect(ctx, teacher)

	assert.Equal(t, 0, f.m.Registry().Len())
	assert.Equal(t, 1, handle.Kills())
	assert.Equal(t, model.LectureCompleted, f.lecture(t, "42").Status)
	assert.Equal(t, ports.BroadcastComplete, f.platform.Transitions()[2])
	assert.Len(t, f.notifier.Events(model.EventSessionEnded), 1)
	assert.Empty(t, f.notifier.Events(model.EventStreamingError))
	assert.ErrorIs(t, f.m.PushMedia(ctx, sessionID, teacher, []byte("late")), ports.ErrNoSession)
}

func TestActivationTimeout(t *testing.T) {
	f := newFixture(t, nil)
	f.platform.ActiveOnAttempt = 100

	act, err := f.m.StartSession(context.Background(), sessionID, teacher)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = act.Wait(ctx)
	require.ErrorIs(t, err, ports.ErrActivationTimeout)

	l := f.lecture(t, "42")
	assert.Equal(t, model.LectureInProgress, l.Status)
	assert.Empty(t, l.LiveBroadcastURL)
	assert.Equal(t, 0, f.store.count(model.LectureCompleted))
	assert.Equal(t, 0, f.m.Registry().Len())
	assert.Empty(t, f.platform.Transitions(), "no remote transition before activation")
	assert.Equal(t, 1, f.pipeline.Last().Kills())

	errs := f.notifier.Events(model.EventStreamingError)
	require.Len(t, errs, 1)
	assert.Equal(t, teacher, errs[0].User)
	assert.Equal(t, ports.CodeActivation, errs[0].Payload.(model.StreamingErrorPayload).Code)
}

func TestPipelineCrashDuringLive(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	act, err := f.m.StartSession(ctx, sessionID, teacher)
	require.NoError(t, err)
	waitLive(t, act)

	f.pipeline.Last().Crash(fmt.Errorf("%w: exit status 1", ports.ErrPipeline))

	require.Eventually(t, func() bool { return f.m.Registry().Len() == 0 }, 5*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(f.notifier.Events(model.EventStreamingError)) == 1 }, time.Second, 5*time.Millisecond)
	errs := f.notifier.Events(model.EventStreamingError)
	assert.Equal(t, ports.CodePipeline, errs[0].Payload.(model.StreamingErrorPayload).Code)
	assert.Equal(t, model.LectureCompleted, f.lecture(t, "42").Status)
}

func TestPipelineCrashBeforeLive(t *testing.T) {
	f := newFixture(t, nil)
	f.platform.ActivationGate = make(chan struct{})
	ctx := context.Background()

	act, err := f.m.StartSession(ctx, sessionID, teacher)
	require.NoError(t, err)
	f.pipeline.Last().Crash(fmt.Errorf("%w: exit status 1", ports.ErrPipeline))

	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err = act.Wait(wctx)
	require.ErrorIs(t, err, ports.ErrSessionAborted)

	require.Eventually(t, func() bool { return f.m.Registry().Len() == 0 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, model.LectureInProgress, f.lecture(t, "42").Status)
	assert.Empty(t, f.lecture(t, "42").LiveBroadcastURL)
}

func TestStopWhileCreating(t *testing.T) {
	f := newFixture(t, nil)
	f.platform.CreateGate = make(chan struct{})
	ctx := context.Background()

	errCh := make(chan error, 1)
	go func() {
		_, err := f.m.StartSession(ctx, sessionID, teacher)
		errCh <- err
	}()
	require.Eventually(t, func() bool { return f.platform.Creates() == 1 }, 5*time.Second, time.Millisecond)

	require.NoError(t, f.m.StopSession(ctx, sessionID, teacher))

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("StartSession did not return after stop")
	}
	assert.Equal(t, 0, f.m.Registry().Len())
	assert.Nil(t, f.pipeline.Last())
	assert.Equal(t, model.LectureScheduled, f.lecture(t, "42").Status)
}

func TestStopDuringActivationCancelsTheWait(t *testing.T) {
	f := newFixture(t, nil)
	f.platform.ActivationGate = make(chan struct{})
	defer close(f.platform.ActivationGate)
	ctx := context.Background()

	act, err := f.m.StartSession(ctx, sessionID, teacher)
	require.NoError(t, err)
	s, ok := f.m.Registry().Get(sessionID)
	require.True(t, ok)
	require.Equal(t, model.StateAwaitingActivation, s.Info().State)

	require.NoError(t, f.m.StopSession(ctx, sessionID, teacher))

	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err = act.Wait(wctx)
	require.ErrorIs(t, err, ports.ErrSessionAborted)

	require.Eventually(t, f.platform.ActivationCanceled, 5*time.Second, 5*time.Millisecond)
	assert.Empty(t, f.platform.Transitions(), "no remote transition after stop")
	assert.Empty(t, f.notifier.Events(model.EventStreamingStarted))
	assert.Empty(t, f.notifier.Events(model.EventStreamingError))
	assert.Len(t, f.notifier.Events(model.EventSessionEnded), 1)
	assert.Empty(t, f.lecture(t, "42").LiveBroadcastURL)
	assert.Equal(t, 1, f.pipeline.Last().Kills())
}

func TestStoreFailureBeforeAnnounceSendsNoSessionEnded(t *testing.T) {
	f := newFixture(t, nil)
	f.store.failOn = model.LectureInProgress

	_, err := f.m.StartSession(context.Background(), sessionID, teacher)
	require.ErrorIs(t, err, errStoreDown)

	assert.Equal(t, 0, f.m.Registry().Len())
	assert.Equal(t, 1, f.pipeline.Last().Kills())
	assert.Empty(t, f.notifier.Events(model.EventSessionStarted))
	assert.Empty(t, f.notifier.Events(model.EventSessionEnded))
	assert.Equal(t, model.LectureScheduled, f.lecture(t, "42").Status)
}

func TestRetryAfterActivationTimeout(t *testing.T) {
	f := newFixture(t, nil)
	f.platform.ActiveOnAttempt = 100

	act, err := f.m.StartSession(context.Background(), sessionID, teacher)
	require.NoError(t, err)
	wctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = act.Wait(wctx)
	require.ErrorIs(t, err, ports.ErrActivationTimeout)

	// The error reaches the publisher only once the session is idle again.
	require.Eventually(t, func() bool { return len(f.notifier.Events(model.EventStreamingError)) == 1 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, model.StateIdle, f.m.SessionStatus(sessionID).State)

	f.platform.ActiveOnAttempt = 1
	act, err = f.m.StartSession(context.Background(), sessionID, teacher)
	require.NoError(t, err)
	waitLive(t, act)
	assert.Equal(t, 2, f.platform.Creates())
}

func TestPushMedia_Errors(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.ErrorIs(t, f.m.PushMedia(ctx, sessionID, teacher, []byte("x")), ports.ErrNoSession)

	act, err := f.m.StartSession(ctx, sessionID, teacher)
	require.NoError(t, err)
	waitLive(t, act)
	require.ErrorIs(t, f.m.PushMedia(ctx, sessionID, "someone-else", []byte("x")), ports.ErrAuthorization)
	require.NoError(t, f.m.StopSession(ctx, sessionID, teacher))
	require.ErrorIs(t, f.m.PushMedia(ctx, sessionID, teacher, []byte("x")), ports.ErrNoSession)
}

func TestRestartAfterStop(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	act, err := f.m.StartSession(ctx, sessionID, teacher)
	require.NoError(t, err)
	waitLive(t, act)
	require.NoError(t, f.m.StopSession(ctx, sessionID, teacher))

	// Completed lectures cannot go live again.
	_, err = f.m.StartSession(ctx, sessionID, teacher)
	require.ErrorIs(t, err, ports.ErrInvalidStatusTransition)

	act, err = f.m.StartSession(ctx, "lecture-43", teacher)
	require.NoError(t, err)
	waitLive(t, act)
}

func TestSessionStatus(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	assert.Equal(t, model.StateIdle, f.m.SessionStatus(sessionID).State)

	act, err := f.m.StartSession(ctx, sessionID, teacher)
	require.NoError(t, err)
	url := waitLive(t, act)

	st := f.m.SessionStatus(sessionID)
	assert.Equal(t, model.StateLive, st.State)
	assert.Equal(t, url, st.WatchURL)
}

func TestShutdownTearsDownEverySession(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for _, id := range []string{"lecture-42", "lecture-43"} {
		act, err := f.m.StartSession(ctx, id, teacher)
		require.NoError(t, err)
		waitLive(t, act)
	}

	sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, f.m.Shutdown(sctx))

	assert.Equal(t, 0, f.m.Registry().Len())
	assert.Equal(t, model.LectureCompleted, f.lecture(t, "42").Status)
	assert.Equal(t, model.LectureCompleted, f.lecture(t, "43").Status)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Deps{}, Config{})
	require.Error(t, err)
}
