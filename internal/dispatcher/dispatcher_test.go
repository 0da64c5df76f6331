package dispatcher

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("DEBUG: %s %v", msg, keysAndValues))
}

func (l *testLogger) Info(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("INFO: %s %v", msg, keysAndValues))
}

func (l *testLogger) Error(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("ERROR: %s %v", msg, keysAndValues))
}

func (l *testLogger) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.messages...)
}

func newTestDispatcher(t *testing.T, opts ...Option) (*Dispatcher, *testLogger) {
	logger := &testLogger{}

	d, err := New(logger, opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	d.Start(ctx)

	return d, logger
}

func TestDispatcher_DispatchWait(t *testing.T) {
	d, _ := newTestDispatcher(t)

	d.Register("init", func(e Event) (any, error) {
		return string(e.Payload), nil
	})

	result, err := d.DispatchWait(context.Background(), Event{Command: "init", Payload: []byte("hello")})
	require.NoError(t, err)
	assert.Equal(t, "hello", result)
}

func TestDispatcher_HandlerError(t *testing.T) {
	d, _ := newTestDispatcher(t)

	d.Register("update", func(e Event) (any, error) {
		return nil, fmt.Errorf("test error")
	})

	_, err := d.DispatchWait(context.Background(), Event{Command: "update"})
	assert.EqualError(t, err, "test error")
}

func TestDispatcher_UnknownCommand(t *testing.T) {
	d, _ := newTestDispatcher(t)

	_, err := d.Dispatch(Event{Command: "nope"})
	assert.ErrorIs(t, err, ErrUnknownCommand)

	_, err = d.DispatchWait(context.Background(), Event{Command: "nope"})
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestDispatcher_SerialOrder(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var order []string
	record := func(e Event) (any, error) {
		order = append(order, e.Command+":"+string(e.Payload))
		return nil, nil
	}
	d.Register("update", record)
	d.Register("activate", record)

	for i := 0; i < 20; i++ {
		cmd := "update"
		if i%3 == 0 {
			cmd = "activate"
		}
		_, err := d.Dispatch(Event{Command: cmd, Payload: []byte(fmt.Sprint(i))})
		require.NoError(t, err)
	}

	d.Register("save", func(e Event) (any, error) { return len(order), nil })
	n, err := d.DispatchWait(context.Background(), Event{Command: "save"})
	require.NoError(t, err)
	assert.Equal(t, 20, n)

	for i, entry := range order {
		assert.True(t, strings.HasSuffix(entry, ":"+fmt.Sprint(i)), "entry %d out of order: %s", i, entry)
	}
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	d, _ := newTestDispatcher(t, Buffered(1))

	started := make(chan struct{})
	block := make(chan struct{})
	var once sync.Once
	d.Register("update", func(e Event) (any, error) {
		once.Do(func() { close(started) })
		<-block
		return nil, nil
	})
	defer close(block)

	_, err := d.Dispatch(Event{Command: "update"})
	require.NoError(t, err)
	<-started

	_, err = d.Dispatch(Event{Command: "update"})
	require.NoError(t, err)
	assert.Equal(t, 1, d.Len())

	_, err = d.Dispatch(Event{Command: "update"})
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestDispatcher_Blocking(t *testing.T) {
	d, _ := newTestDispatcher(t, Buffered(1), Blocking())

	started := make(chan struct{})
	block := make(chan struct{})
	var once sync.Once
	d.Register("update", func(e Event) (any, error) {
		once.Do(func() { close(started) })
		<-block
		return nil, nil
	})

	_, _ = d.Dispatch(Event{Command: "update"})
	<-started
	_, _ = d.Dispatch(Event{Command: "update"})

	done := make(chan struct{})
	go func() {
		_, _ = d.Dispatch(Event{Command: "update"})
		close(done)
	}()

	select {
	case <-done:
		t.Error("dispatch should have blocked")
	case <-time.After(50 * time.Millisecond):
	}

	close(block)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("dispatch did not unblock")
	}
}

func TestDispatcher_EnqueueWaitsForRoom(t *testing.T) {
	d, _ := newTestDispatcher(t, Buffered(1))

	started := make(chan struct{})
	block := make(chan struct{})
	var once sync.Once
	var mu sync.Mutex
	var handled int
	d.Register("update", func(e Event) (any, error) {
		once.Do(func() { close(started) })
		<-block
		mu.Lock()
		handled++
		mu.Unlock()
		return nil, nil
	})

	ctx := context.Background()
	require.NoError(t, d.Enqueue(ctx, Event{Command: "update"}))
	<-started
	require.NoError(t, d.Enqueue(ctx, Event{Command: "update"}))

	// inbox is full: a short deadline expires instead of dropping silently
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Enqueue(short, Event{Command: "update"}), context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() { done <- d.Enqueue(ctx, Event{Command: "update"}) }()
	select {
	case <-done:
		t.Fatal("enqueue should wait while the inbox is full")
	case <-time.After(30 * time.Millisecond):
	}

	close(block)
	require.NoError(t, <-done)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return handled == 3
	}, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, d.Enqueue(ctx, Event{Command: "save"}), ErrUnknownCommand)
}

func TestDispatcher_DispatchWaitContextCancelled(t *testing.T) {
	d, _ := newTestDispatcher(t)

	block := make(chan struct{})
	defer close(block)
	d.Register("update", func(e Event) (any, error) {
		<-block
		return nil, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := d.DispatchWait(ctx, Event{Command: "update"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDispatcher_StopClosesDone(t *testing.T) {
	d, err := New(&testLogger{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	d.Start(ctx)
	cancel()

	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestDispatcher_Logged(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register("update", func(e Event) (any, error) {
		return "ok", nil
	}, Logged())
	d.Register("broken", func(e Event) (any, error) {
		return nil, fmt.Errorf("test error")
	}, Logged())

	_, err := d.DispatchWait(context.Background(), Event{Command: "update", Payload: []byte("{}")})
	require.NoError(t, err)
	assert.Len(t, logger.snapshot(), 2)

	_, err = d.DispatchWait(context.Background(), Event{Command: "broken"})
	require.Error(t, err)

	hasError := false
	for _, msg := range logger.snapshot() {
		if strings.HasPrefix(msg, "ERROR") {
			hasError = true
		}
	}
	assert.True(t, hasError, "expected error log message")
}

func TestDispatcher_HasHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	d.Register("init", func(e Event) (any, error) { return nil, nil })

	assert.True(t, d.HasHandler("init"))
	assert.False(t, d.HasHandler("save"))
}

func TestDispatcher_TimestampDefaulted(t *testing.T) {
	d, _ := newTestDispatcher(t)

	d.Register("init", func(e Event) (any, error) { return e.Timestamp, nil })

	got, err := d.DispatchWait(context.Background(), Event{Command: "init"})
	require.NoError(t, err)
	assert.False(t, got.(time.Time).IsZero())
}
