package host

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Engine/internal/core"
	"github.com/dkeye/Engine/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type event struct {
	connect bool
	worker  domain.WorkerName
	handle  core.ControlHandle
}

type recordingTarget struct {
	id      string
	events  chan event
	entered chan struct{}
	block   chan struct{}
}

func newTarget() *recordingTarget {
	return &recordingTarget{id: uuid.NewString(), events: make(chan event, 16)}
}

func (r *recordingTarget) ID() string { return r.id }

func (r *recordingTarget) OnConnected(name domain.WorkerName, handle core.ControlHandle) {
	if r.block != nil {
		close(r.entered)
		<-r.block
	}
	r.events <- event{connect: true, worker: name, handle: handle}
}

func (r *recordingTarget) OnDisconnected(name domain.WorkerName) {
	r.events <- event{worker: name}
}

func (r *recordingTarget) next(t *testing.T) event {
	t.Helper()
	select {
	case ev := <-r.events:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no callback delivered")
		return event{}
	}
}

func (r *recordingTarget) requireQuiet(t *testing.T) {
	t.Helper()
	select {
	case ev := <-r.events:
		t.Fatalf("unexpected callback %+v", ev)
	case <-time.After(30 * time.Millisecond):
	}
}

type handle struct{ name domain.WorkerName }

func (h *handle) Worker() domain.WorkerName { return h.name }

type fakeWorker struct {
	name     domain.WorkerName
	handle   *handle
	fail     chan error
	mu       sync.Mutex
	priority domain.Priority
	stopped  chan struct{}
}

func (w *fakeWorker) Run(ctx context.Context) error {
	defer close(w.stopped)
	select {
	case <-ctx.Done():
		return nil
	case err := <-w.fail:
		if err != nil && err.Error() == "panic" {
			panic("boom")
		}
		return err
	}
}

func (w *fakeWorker) Control() core.ControlHandle { return w.handle }

func (w *fakeWorker) SetPriority(p domain.Priority) {
	w.mu.Lock()
	w.priority = p
	w.mu.Unlock()
}

func (w *fakeWorker) Priority() domain.Priority {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.priority
}

type fakeFactory struct {
	mu      sync.Mutex
	created []*fakeWorker
	err     error
}

func (f *fakeFactory) build(name domain.WorkerName) (core.Worker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	w := &fakeWorker{name: name, handle: &handle{name: name}, fail: make(chan error, 1), stopped: make(chan struct{})}
	f.created = append(f.created, w)
	return w, nil
}

func (f *fakeFactory) last(t *testing.T) *fakeWorker {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.created)
	return f.created[len(f.created)-1]
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func newHost(t *testing.T) (*Host, *fakeFactory) {
	t.Helper()
	h := New(context.Background(), nil)
	t.Cleanup(h.Close)
	f := &fakeFactory{}
	require.NoError(t, h.Register("engine", f.build))
	return h, f
}

const createAndAdjust = domain.CreateIfAbsent | domain.AdjustWithRequester

func TestBindCreatesWorkerAndConnects(t *testing.T) {
	h, f := newHost(t)
	target := newTarget()

	require.NoError(t, h.Bind("engine", createAndAdjust, target))

	ev := target.next(t)
	require.True(t, ev.connect)
	require.Equal(t, domain.WorkerName("engine"), ev.worker)
	require.Same(t, f.last(t).handle, ev.handle)
	require.Equal(t, 1, f.count())

	workers := h.Workers()
	require.Len(t, workers, 1)
	require.True(t, workers[0].Running)
	require.Equal(t, 1, workers[0].Bindings)
}

func TestBindErrors(t *testing.T) {
	h, _ := newHost(t)
	target := newTarget()

	require.ErrorIs(t, h.Bind("missing", createAndAdjust, target), ErrUnknownWorker)
	require.NoError(t, h.Bind("engine", createAndAdjust, target))
	require.ErrorIs(t, h.Bind("engine", createAndAdjust, target), ErrAlreadyBound)
	require.ErrorIs(t, h.Unbind(newTarget()), ErrNotBound)
	require.ErrorIs(t, h.Register("engine", (&fakeFactory{}).build), ErrWorkerExists)
}

func TestBindFactoryFailureLeavesNoBinding(t *testing.T) {
	h := New(context.Background(), nil)
	t.Cleanup(h.Close)
	f := &fakeFactory{err: errors.New("no resources")}
	require.NoError(t, h.Register("engine", f.build))
	target := newTarget()

	require.Error(t, h.Bind("engine", createAndAdjust, target))
	require.ErrorIs(t, h.Unbind(target), ErrNotBound)
	target.requireQuiet(t)
}

func TestBindWithoutCreateWaitsForStart(t *testing.T) {
	h, f := newHost(t)
	target := newTarget()

	require.NoError(t, h.Bind("engine", domain.AdjustWithRequester, target))
	target.requireQuiet(t)
	require.Equal(t, 0, f.count())

	require.NoError(t, h.StartWorker("engine"))
	ev := target.next(t)
	require.True(t, ev.connect)
}

func TestUnbindStopsAutoCreatedWorker(t *testing.T) {
	h, f := newHost(t)
	a, b := newTarget(), newTarget()
	require.NoError(t, h.Bind("engine", createAndAdjust, a))
	require.NoError(t, h.Bind("engine", createAndAdjust, b))
	a.next(t)
	b.next(t)
	require.Equal(t, 1, f.count(), "second bind reuses the running worker")

	require.NoError(t, h.Unbind(a))
	a.requireQuiet(t)
	require.True(t, h.Workers()[0].Running)

	require.NoError(t, h.Unbind(b))
	b.requireQuiet(t)
	select {
	case <-f.last(t).stopped:
	case <-time.After(time.Second):
		t.Fatal("worker still running after last unbind")
	}
	require.False(t, h.Workers()[0].Running)
}

func TestExplicitWorkerOutlivesBindings(t *testing.T) {
	h, f := newHost(t)
	require.NoError(t, h.StartWorker("engine"))
	target := newTarget()
	require.NoError(t, h.Bind("engine", createAndAdjust, target))
	target.next(t)

	require.NoError(t, h.Unbind(target))
	require.True(t, h.Workers()[0].Running)
	require.Equal(t, 1, f.count())

	require.NoError(t, h.StopWorker("engine"))
	require.ErrorIs(t, h.StopWorker("engine"), ErrNotRunning)
}

func TestStopWorkerDisconnectsAndRebindReconnects(t *testing.T) {
	h, f := newHost(t)
	target := newTarget()
	require.NoError(t, h.Bind("engine", createAndAdjust, target))
	first := target.next(t)

	require.NoError(t, h.StopWorker("engine"))
	ev := target.next(t)
	require.False(t, ev.connect)

	other := newTarget()
	require.NoError(t, h.Bind("engine", createAndAdjust, other))
	require.Equal(t, 2, f.count())

	again := target.next(t)
	require.True(t, again.connect)
	require.NotSame(t, first.handle, again.handle)
	require.True(t, other.next(t).connect)
}

func TestWorkerFailureDisconnects(t *testing.T) {
	h, f := newHost(t)
	target := newTarget()
	require.NoError(t, h.Bind("engine", createAndAdjust, target))
	target.next(t)

	f.last(t).fail <- errors.New("crashed")
	ev := target.next(t)
	require.False(t, ev.connect)
	require.False(t, h.Workers()[0].Running)
}

func TestWorkerPanicDisconnects(t *testing.T) {
	h, f := newHost(t)
	target := newTarget()
	require.NoError(t, h.Bind("engine", createAndAdjust, target))
	target.next(t)

	f.last(t).fail <- errors.New("panic")
	require.False(t, target.next(t).connect)
}

func TestCallbacksAreOrdered(t *testing.T) {
	h, _ := newHost(t)
	target := newTarget()
	require.NoError(t, h.Bind("engine", createAndAdjust, target))
	require.NoError(t, h.StopWorker("engine"))
	require.NoError(t, h.StartWorker("engine"))
	require.NoError(t, h.StopWorker("engine"))

	require.True(t, target.next(t).connect)
	require.False(t, target.next(t).connect)
	require.True(t, target.next(t).connect)
	require.False(t, target.next(t).connect)
}

func TestUnbindDropsQueuedCallbacks(t *testing.T) {
	h, _ := newHost(t)
	blocker := newTarget()
	blocker.entered = make(chan struct{})
	blocker.block = make(chan struct{})
	require.NoError(t, h.Bind("engine", createAndAdjust, blocker))
	<-blocker.entered

	// blocker holds the dispatcher, so target's connect stays queued.
	target := newTarget()
	require.NoError(t, h.Bind("engine", createAndAdjust, target))

	unbound := make(chan error, 1)
	go func() { unbound <- h.Unbind(target) }()
	time.Sleep(20 * time.Millisecond)

	close(blocker.block)
	require.True(t, blocker.next(t).connect)
	require.NoError(t, <-unbound)
	target.requireQuiet(t)
}

func TestVisibilityAdjustsPriority(t *testing.T) {
	h, f := newHost(t)
	a, b := newTarget(), newTarget()
	require.NoError(t, h.Bind("engine", createAndAdjust, a))
	a.next(t)
	w := f.last(t)
	require.Equal(t, domain.PriorityVisible, w.Priority())

	require.NoError(t, h.SetVisibility(a.ID(), domain.Foreground))
	require.Equal(t, domain.PriorityForeground, w.Priority())

	require.NoError(t, h.Bind("engine", domain.CreateIfAbsent, b))
	require.NoError(t, h.SetVisibility(b.ID(), domain.Foreground))
	require.NoError(t, h.SetVisibility(a.ID(), domain.Hidden))
	require.Equal(t, domain.PriorityBackground, w.Priority(), "bindings without the adjust flag do not raise priority")

	require.ErrorIs(t, h.SetVisibility("nobody", domain.Visible), ErrNotBound)
}

func TestRestartedWorkerKeepsRequesterPriority(t *testing.T) {
	h, f := newHost(t)
	target := newTarget()
	require.NoError(t, h.Bind("engine", createAndAdjust, target))
	target.next(t)

	require.NoError(t, h.StopWorker("engine"))
	require.False(t, target.next(t).connect)
	require.NoError(t, h.StartWorker("engine"))
	require.True(t, target.next(t).connect)

	require.Equal(t, 2, f.count())
	require.Equal(t, domain.PriorityVisible, f.last(t).Priority())
	require.Equal(t, domain.PriorityVisible.String(), h.Workers()[0].Priority)
}

func TestPendingBindingSetsPriorityOnStart(t *testing.T) {
	h, f := newHost(t)
	target := newTarget()
	require.NoError(t, h.Bind("engine", domain.AdjustWithRequester, target))
	require.NoError(t, h.SetVisibility(target.ID(), domain.Foreground))

	require.NoError(t, h.StartWorker("engine"))
	require.True(t, target.next(t).connect)
	require.Equal(t, domain.PriorityForeground, f.last(t).Priority())
}

func TestCloseDisconnectsAndRejects(t *testing.T) {
	h := New(context.Background(), nil)
	f := &fakeFactory{}
	require.NoError(t, h.Register("engine", f.build))
	target := newTarget()
	require.NoError(t, h.Bind("engine", createAndAdjust, target))
	target.next(t)

	h.Close()
	require.False(t, target.next(t).connect)
	require.ErrorIs(t, h.Bind("engine", createAndAdjust, newTarget()), ErrClosed)
	require.ErrorIs(t, h.StartWorker("engine"), ErrClosed)
	h.Close()
}
