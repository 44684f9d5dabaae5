package objbus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/robot-util/log2"
)

func testContext(t testing.TB) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestLoopRefcount(t *testing.T) {
	t.Parallel()

	mock := NewMock()
	loop := NewLoop(mock, log2.NewTest(t, log2.LDebug))
	assert.False(t, loop.Running())
	assert.False(t, loop.Post(func(context.Context) {}))

	require.NoError(t, loop.Acquire())
	require.NoError(t, loop.Acquire())
	assert.Equal(t, 2, loop.Refs())
	assert.Equal(t, 1, mock.Subscribers())

	loop.Release()
	assert.True(t, loop.Running())
	require.NoError(t, loop.Sync(testContext(t)))

	loop.Release()
	assert.False(t, loop.Running())
	assert.Error(t, loop.Sync(testContext(t)))
	assert.Panics(t, loop.Release)
}

func TestLoopRestart(t *testing.T) {
	t.Parallel()

	mock := NewMock()
	loop := NewLoop(mock, log2.NewTest(t, log2.LDebug))
	var count int32
	loop.Handle(func(ctx context.Context, s Signal) { atomic.AddInt32(&count, 1) })

	for i := 0; i < 3; i++ {
		require.NoError(t, loop.Acquire())
		mock.Emit(Signal{Kind: SignalInterfacesAdded, Path: Path(fmt.Sprintf("/obj%d", i))})
		require.NoError(t, loop.Sync(testContext(t)))
		loop.Release()
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&count))
}

func TestLoopHandleRemove(t *testing.T) {
	t.Parallel()

	mock := NewMock()
	loop := NewLoop(mock, log2.NewTest(t, log2.LDebug))
	var a, b int32
	removeA := loop.Handle(func(ctx context.Context, s Signal) { atomic.AddInt32(&a, 1) })
	loop.Handle(func(ctx context.Context, s Signal) { atomic.AddInt32(&b, 1) })
	require.NoError(t, loop.Acquire())
	defer loop.Release()

	mock.Emit(Signal{Kind: SignalInterfacesAdded, Path: "/x"})
	require.NoError(t, loop.Sync(testContext(t)))
	removeA()
	mock.Emit(Signal{Kind: SignalInterfacesAdded, Path: "/y"})
	require.NoError(t, loop.Sync(testContext(t)))
	assert.Equal(t, int32(1), atomic.LoadInt32(&a))
	assert.Equal(t, int32(2), atomic.LoadInt32(&b))
}

func TestLoopOrder(t *testing.T) {
	t.Parallel()

	mock := NewMock()
	loop := NewLoop(mock, log2.NewTest(t, log2.LDebug))
	var mu sync.Mutex
	seen := []string{}
	record := func(s string) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	}
	loop.Handle(func(ctx context.Context, s Signal) { record(string(s.Path)) })
	require.NoError(t, loop.Acquire())
	defer loop.Release()

	mock.Emit(Signal{Kind: SignalInterfacesAdded, Path: "/a"})
	mock.Emit(Signal{Kind: SignalInterfacesRemoved, Path: "/b"})
	require.True(t, loop.Post(func(context.Context) { record("task") }))
	require.NoError(t, loop.Sync(testContext(t)))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"/a", "/b", "task"}, seen)
}

func TestLoopReleaseStopsBlockedCall(t *testing.T) {
	t.Parallel()

	mock := NewMock()
	mock.CallBlock["org.test.Slow"] = true
	loop := NewLoop(mock, log2.NewTest(t, log2.LDebug))
	require.NoError(t, loop.Acquire())
	started := make(chan struct{})
	result := make(chan error, 1)
	loop.Post(func(ctx context.Context) {
		close(started)
		result <- mock.Call(ctx, "/slow", "org.test.Slow")
	})
	<-started
	done := make(chan struct{})
	go func() {
		loop.Release()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Release did not join worker")
	}
	assert.Error(t, <-result)
}

func TestLoopAcquireWaitsStoppingWorker(t *testing.T) {
	t.Parallel()

	mock := NewMock()
	loop := NewLoop(mock, log2.NewTest(t, log2.LDebug))
	require.NoError(t, loop.Acquire())
	started := make(chan struct{})
	unblock := make(chan struct{})
	require.True(t, loop.Post(func(context.Context) {
		close(started)
		<-unblock
	}))
	<-started

	released := make(chan struct{})
	go func() {
		loop.Release()
		close(released)
	}()
	require.Eventually(t, func() bool { return loop.Refs() == 0 }, 3*time.Second, time.Millisecond)

	acquired := make(chan error, 1)
	go func() { acquired <- loop.Acquire() }()
	select {
	case <-acquired:
		t.Fatal("Acquire must wait until previous worker exits")
	case <-time.After(50 * time.Millisecond):
	}

	close(unblock)
	select {
	case err := <-acquired:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Acquire did not return after join")
	}
	<-released
	assert.True(t, loop.Running())
	require.NoError(t, loop.Sync(testContext(t)))
	loop.Release()
	assert.False(t, loop.Running())
}

func TestLoopSubscribeError(t *testing.T) {
	t.Parallel()

	mock := NewMock()
	mock.SubscribeErr = fmt.Errorf("bus down")
	loop := NewLoop(mock, log2.NewTest(t, log2.LDebug))
	err := loop.Acquire()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bus down")
	assert.Equal(t, 0, loop.Refs())
}

func TestObjectRelease(t *testing.T) {
	t.Parallel()

	mock := NewMock()
	mock.Seed("/dev", Interfaces{"org.test.Iface": {"Name": "x"}})
	obj := NewObject(mock, "/dev")
	props, err := obj.GetAll(testContext(t), "org.test.Iface")
	require.NoError(t, err)
	name, _ := props.String("Name")
	assert.Equal(t, "x", name)
	require.NoError(t, obj.Call(testContext(t), "org.test.Iface.Ping"))

	obj.Release()
	obj.Release()
	assert.True(t, obj.IsReleased())
	assert.Error(t, obj.Call(testContext(t), "org.test.Iface.Ping"))
	_, err = obj.GetAll(testContext(t), "org.test.Iface")
	assert.Error(t, err)
	assert.Len(t, mock.CallsTo("org.test.Iface.Ping"), 1)
}
