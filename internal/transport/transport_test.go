package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadowhunters/boardview/internal/dispatcher"
	"github.com/shadowhunters/boardview/pkg/streaming"
)

type recorder struct {
	mu     sync.Mutex
	events []dispatcher.Event
}

func (r *recorder) Enqueue(_ context.Context, e dispatcher.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Command
	}
	return out
}

// pushServer sends msgs on every connection, then closes it.
func pushServer(t *testing.T, msgs ...string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var conns atomic.Int32
	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		conns.Add(1)
		for _, m := range msgs {
			if err := c.WriteMessage(ws.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		// keep the socket open until the client goes away
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	return srv, &conns
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestRun_ForwardsInOrder(t *testing.T) {
	srv, _ := pushServer(t,
		`{"type": "init", "payload": {"private": {}}}`,
		`not json`,
		`{"type": "unknown", "payload": {}}`,
		`{"type": "activate", "payload": {"entityId": "1"}}`,
		`{"type": "update", "payload": {"players": {}}}`,
		`{"type": "save", "payload": {}}`,
		`{"type": "update", "payload": {"players": {"1": {}}}}`,
	)
	defer srv.Close()

	rec := &recorder{}
	c := New(Config{URL: wsURL(srv)}, rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	assert.Eventually(t, func() bool { return len(rec.commands()) == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"init", "update", "update"}, rec.commands())

	rec.mu.Lock()
	assert.JSONEq(t, `{"players": {"1": {}}}`, string(rec.events[2].Payload))
	rec.mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_GivesUp(t *testing.T) {
	c := New(Config{
		URL:            "ws://127.0.0.1:1/socket",
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}, &recorder{})

	err := c.Run(context.Background())
	require.ErrorIs(t, err, ErrGaveUp)
}

func TestRun_Reconnects(t *testing.T) {
	var conns atomic.Int32
	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns.Add(1)
		_ = c.WriteMessage(ws.TextMessage, []byte(`{"type": "update", "payload": {}}`))
		// drop the connection right away
		_ = c.Close()
	}))
	defer srv.Close()

	rec := &recorder{}
	c := New(Config{URL: wsURL(srv), InitialBackoff: 5 * time.Millisecond, MaxAttempts: 100}, rec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	assert.Eventually(t, func() bool { return conns.Load() >= 3 }, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, len(rec.commands()), 2)
}

func TestForward_OnlyServerCommands(t *testing.T) {
	rec := &recorder{}
	c := New(Config{}, rec)

	for _, typ := range []string{streaming.TypeActivate, "save", streaming.TypeInit, streaming.TypeUpdate} {
		c.forward(context.Background(), []byte(`{"type": "`+typ+`", "payload": {}}`))
	}
	assert.Equal(t, []string{streaming.TypeInit, streaming.TypeUpdate}, rec.commands())
}

func TestForward_WaitsForFullInbox(t *testing.T) {
	d, err := dispatcher.New(nil, dispatcher.Buffered(1))
	require.NoError(t, err)

	block := make(chan struct{})
	var handled atomic.Int32
	d.Register(streaming.TypeUpdate, func(dispatcher.Event) (any, error) {
		<-block
		handled.Add(1)
		return nil, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	c := New(Config{}, d)
	forwarded := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			c.forward(ctx, []byte(`{"type": "update", "payload": {"players": {}}}`))
		}
		close(forwarded)
	}()

	select {
	case <-forwarded:
		t.Fatal("forward returned while the inbox was full")
	case <-time.After(50 * time.Millisecond):
	}

	close(block)
	<-forwarded
	assert.Eventually(t, func() bool { return handled.Load() == 5 }, 2*time.Second, 10*time.Millisecond)
}
