package live

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wifirtt/internal/logging"
	"wifirtt/internal/model"
)

const interval = 3 * time.Second

type fakeBuilder struct {
	calls   atomic.Int32
	failing atomic.Bool

	mu   sync.Mutex
	gate chan struct{}
}

func (b *fakeBuilder) Build(ctx context.Context) (model.Snapshot, error) {
	n := b.calls.Add(1)
	b.mu.Lock()
	gate := b.gate
	b.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return model.Snapshot{}, ctx.Err()
		}
	}
	if b.failing.Load() {
		return model.Snapshot{}, errors.New("scan unavailable: scanner failed")
	}
	return model.Snapshot{ScanResult: model.ScanResult{Timestamp: float64(n), Networks: []model.NetworkInfo{}}}, nil
}

func (b *fakeBuilder) hold() chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gate = make(chan struct{})
	return b.gate
}

func (b *fakeBuilder) release(gate chan struct{}) {
	b.mu.Lock()
	b.gate = nil
	b.mu.Unlock()
	close(gate)
}

func startScheduler(t *testing.T, b Builder) (*Scheduler, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	s := NewScheduler(b, interval, WithClock(mock), WithLogger(logging.Discard()))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return s, mock
}

func recv(t *testing.T, q *Queue) []byte {
	t.Helper()
	select {
	case msg := <-q.C():
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func assertQuiet(t *testing.T, q *Queue) {
	t.Helper()
	select {
	case msg := <-q.C():
		t.Fatalf("unexpected message: %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func status(t *testing.T, s *Scheduler) Status {
	t.Helper()
	st, err := s.Status()
	require.NoError(t, err)
	return st
}

func TestScheduler_StartsIdle(t *testing.T) {
	t.Parallel()

	s, _ := startScheduler(t, &fakeBuilder{})
	st := status(t, s)
	assert.Equal(t, StateIdle, st.State)
	assert.False(t, st.TickerRunning)
	assert.Zero(t, st.Viewers)
}

func TestScheduler_NewViewerGetsImmediateSnapshot(t *testing.T) {
	t.Parallel()

	b := &fakeBuilder{}
	s, _ := startScheduler(t, b)

	q := NewQueue(4)
	require.NoError(t, s.Connect(q))

	msg := recv(t, q)
	var snap model.Snapshot
	require.NoError(t, json.Unmarshal(msg, &snap))
	assert.Equal(t, int32(1), b.calls.Load())

	st := status(t, s)
	assert.Equal(t, StateActive, st.State)
	assert.True(t, st.TickerRunning)
	assert.Equal(t, 1, st.Viewers)
	assert.Zero(t, st.TicksBuilt)
}

func TestScheduler_TickBuildsOnceForAllViewers(t *testing.T) {
	t.Parallel()

	b := &fakeBuilder{}
	s, mock := startScheduler(t, b)

	queues := []*Queue{NewQueue(4), NewQueue(4), NewQueue(4)}
	for _, q := range queues {
		require.NoError(t, s.Connect(q))
		recv(t, q)
	}
	require.Equal(t, int32(3), b.calls.Load())

	mock.Add(interval)

	var first []byte
	for i, q := range queues {
		msg := recv(t, q)
		if i == 0 {
			first = msg
			continue
		}
		assert.Equal(t, first, msg)
	}
	assert.Equal(t, int32(4), b.calls.Load())
	assert.Equal(t, 1, status(t, s).TicksBuilt)
}

func TestScheduler_LastDisconnectStopsTicker(t *testing.T) {
	t.Parallel()

	b := &fakeBuilder{}
	s, mock := startScheduler(t, b)

	a, c := NewQueue(4), NewQueue(4)
	require.NoError(t, s.Connect(a))
	require.NoError(t, s.Connect(c))
	recv(t, a)
	recv(t, c)

	require.NoError(t, s.Disconnect(a))
	st := status(t, s)
	assert.Equal(t, StateActive, st.State)
	assert.True(t, st.TickerRunning)

	require.NoError(t, s.Disconnect(c))
	st = status(t, s)
	assert.Equal(t, StateIdle, st.State)
	assert.False(t, st.TickerRunning)

	calls := b.calls.Load()
	mock.Add(3 * interval)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, b.calls.Load(), "built while idle")

	third := NewQueue(4)
	require.NoError(t, s.Connect(third))
	recv(t, third)
	assert.Equal(t, calls+1, b.calls.Load())
	st = status(t, s)
	assert.Equal(t, StateActive, st.State)
	assert.True(t, st.TickerRunning)

	mock.Add(interval)
	recv(t, third)
}

func TestScheduler_TickerIffViewers(t *testing.T) {
	t.Parallel()

	s, _ := startScheduler(t, &fakeBuilder{})
	queues := []*Queue{NewQueue(8), NewQueue(8), NewQueue(8)}

	steps := []struct {
		connect bool
		q       int
	}{
		{true, 0}, {true, 1}, {false, 0}, {true, 0}, {false, 1},
		{false, 0}, {true, 2}, {true, 2}, {false, 2}, {false, 2},
	}
	for i, step := range steps {
		if step.connect {
			require.NoError(t, s.Connect(queues[step.q]))
		} else {
			require.NoError(t, s.Disconnect(queues[step.q]))
		}
		st := status(t, s)
		assert.Equal(t, st.Viewers > 0, st.TickerRunning, "step %d: %+v", i, st)
		assert.Equal(t, st.Viewers > 0, st.State == StateActive, "step %d: %+v", i, st)
	}
}

func TestScheduler_TickFailureSendsErrorAndContinues(t *testing.T) {
	t.Parallel()

	b := &fakeBuilder{}
	s, mock := startScheduler(t, b)

	q := NewQueue(4)
	require.NoError(t, s.Connect(q))
	recv(t, q)

	b.failing.Store(true)
	mock.Add(interval)
	var errMsg model.ErrorMessage
	require.NoError(t, json.Unmarshal(recv(t, q), &errMsg))
	assert.Contains(t, errMsg.Error, "scan unavailable")

	st := status(t, s)
	assert.True(t, st.TickerRunning)
	assert.Equal(t, 1, st.Viewers)

	b.failing.Store(false)
	mock.Add(interval)
	var snap map[string]any
	require.NoError(t, json.Unmarshal(recv(t, q), &snap))
	assert.NotContains(t, snap, "error")
}

func TestScheduler_SkipsTickWhileBuilding(t *testing.T) {
	t.Parallel()

	b := &fakeBuilder{}
	s, mock := startScheduler(t, b)

	q := NewQueue(4)
	require.NoError(t, s.Connect(q))
	recv(t, q)

	gate := b.hold()
	mock.Add(interval)
	require.Eventually(t, func() bool { return status(t, s).Building }, time.Second, 5*time.Millisecond)

	mock.Add(interval)
	require.Eventually(t, func() bool { return status(t, s).TicksSkipped == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), b.calls.Load())

	b.release(gate)
	recv(t, q)
	assertQuiet(t, q)

	st := status(t, s)
	assert.False(t, st.Building)
	assert.Equal(t, 1, st.TicksBuilt)
}

func TestScheduler_BusyViewerSkippedNotDropped(t *testing.T) {
	t.Parallel()

	b := &fakeBuilder{}
	s, mock := startScheduler(t, b)

	busy := NewQueue(1)
	require.NoError(t, s.Connect(busy))
	require.Eventually(t, func() bool { return len(busy.C()) == 1 }, time.Second, 5*time.Millisecond)

	mock.Add(interval)
	require.Eventually(t, func() bool {
		st := status(t, s)
		return st.TicksBuilt == 1 && !st.Building
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, status(t, s).Viewers)

	recv(t, busy)
	assertQuiet(t, busy)

	mock.Add(interval)
	recv(t, busy)
}

func TestScheduler_DisconnectMidBuildDoesNotCancel(t *testing.T) {
	t.Parallel()

	b := &fakeBuilder{}
	s, _ := startScheduler(t, b)

	gate := b.hold()
	q := NewQueue(4)
	require.NoError(t, s.Connect(q))
	require.NoError(t, s.Disconnect(q))

	b.release(gate)
	assertQuiet(t, q)
	assert.Equal(t, StateIdle, status(t, s).State)
}

func TestScheduler_StoppedRejectsCalls(t *testing.T) {
	t.Parallel()

	s := NewScheduler(&fakeBuilder{}, interval, WithClock(clock.NewMock()), WithLogger(logging.Discard()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, s.Run(ctx), context.Canceled)

	assert.ErrorIs(t, s.Connect(NewQueue(1)), ErrStopped)
	_, err := s.Status()
	assert.ErrorIs(t, err, ErrStopped)
}

func TestQueue_OfferAfterClose(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	assert.True(t, q.Offer([]byte("a")))
	assert.False(t, q.Offer([]byte("b")))
	q.Close()
	q.Close()
	assert.False(t, q.Offer([]byte("c")))
}
