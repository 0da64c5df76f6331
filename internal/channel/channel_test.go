package channel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffered(t *testing.T) {
	ch := NewBuffered[int](2)

	assert.True(t, ch.TrySend(1))
	ch.Send(2)
	assert.False(t, ch.TrySend(3))
	assert.Equal(t, 2, ch.Len())

	assert.Equal(t, 1, <-ch.Receive())
	assert.Equal(t, 2, <-ch.Receive())

	ch.Close()
	_, ok := <-ch.Receive()
	assert.False(t, ok)
}

func TestUnbuffered(t *testing.T) {
	ch := NewUnbuffered[string]()
	assert.False(t, ch.TrySend("nobody waiting"))
	assert.Equal(t, 0, ch.Len())

	go ch.Send("hello")
	select {
	case v := <-ch.Receive():
		assert.Equal(t, "hello", v)
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
	ch.Close()
}

func TestFanout_Publish(t *testing.T) {
	f := NewFanout[int]()

	a, cancelA := f.Subscribe(4)
	b, cancelB := f.Subscribe(1)
	defer cancelA()
	require.Equal(t, 2, f.Subscribers())

	assert.Equal(t, 2, f.Publish(1))
	// b is full now
	assert.Equal(t, 1, f.Publish(2))
	assert.Equal(t, uint64(1), f.Dropped())

	assert.Equal(t, 1, <-a.Receive())
	assert.Equal(t, 2, <-a.Receive())
	assert.Equal(t, 1, <-b.Receive())

	cancelB()
	cancelB()
	assert.Equal(t, 1, f.Subscribers())
	_, ok := <-b.Receive()
	assert.False(t, ok)
}

func TestFanout_Close(t *testing.T) {
	f := NewFanout[int]()
	a, cancel := f.Subscribe(1)

	f.Close()
	f.Close()
	_, ok := <-a.Receive()
	assert.False(t, ok)
	assert.Equal(t, 0, f.Subscribers())

	// cancel after close must not double-close
	cancel()

	late, _ := f.Subscribe(1)
	_, ok = <-late.Receive()
	assert.False(t, ok)
	assert.Equal(t, 0, f.Publish(5))
}
