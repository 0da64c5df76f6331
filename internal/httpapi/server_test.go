package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadowhunters/boardview/internal/cache"
	"github.com/shadowhunters/boardview/internal/channel"
	"github.com/shadowhunters/boardview/internal/dispatcher"
	"github.com/shadowhunters/boardview/internal/popup"
	"github.com/shadowhunters/boardview/internal/worker"
	"github.com/shadowhunters/boardview/pkg/core"
	"github.com/shadowhunters/boardview/pkg/streaming"
)

type fakeDispatcher struct {
	last dispatcher.Event
	res  any
	err  error
}

func (f *fakeDispatcher) DispatchWait(_ context.Context, e dispatcher.Event) (any, error) {
	f.last = e
	return f.res, f.err
}

func sampleView() core.BoardView {
	return core.BoardView{
		Seq:       3,
		SelfID:    "1",
		Self:      &core.SelfInfo{Name: "Allie", Team: "Neutral", MaxDamage: 8, Special: "none"},
		SelfSlots: []string{"Slot 1"},
		Players: []core.PlayerViewState{
			{ID: "1", Slot: 0, LocationName: "Church", Alive: true},
			{ID: "2", Slot: 1, Alive: true},
		},
		Zones:  []core.ZoneCardState{{ID: "zone:0:0", Name: "Church"}},
		Popups: map[string]bool{"1": true, "2": false},
	}
}

func newTestServer(t *testing.T, d Dispatcher, feed *channel.Fanout[core.ChangeSet], publish bool) (*httptest.Server, *cache.ViewCache) {
	t.Helper()
	c := cache.NewViewCache()
	if publish {
		c.Publish(sampleView(), core.ChangeSet{Seq: 3, Changes: []core.Change{{EntityID: "1", Kind: core.ChangeMoved}}})
	}
	srv := httptest.NewServer(New(Dependencies{Cache: c, Dispatcher: d, Feed: feed}).Router())
	t.Cleanup(srv.Close)
	return srv, c
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestReads_BeforeFirstBoard(t *testing.T) {
	srv, _ := newTestServer(t, &fakeDispatcher{}, nil, false)

	var health map[string]any
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/healthcheck", &health))
	assert.Equal(t, false, health["ready"])

	for _, path := range []string{"/view", "/players", "/zones", "/popups", "/self", "/changes"} {
		assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, srv.URL+path, nil), path)
	}
}

func TestReads(t *testing.T) {
	srv, _ := newTestServer(t, &fakeDispatcher{}, nil, true)

	var view core.BoardView
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/view", &view))
	assert.Equal(t, uint64(3), view.Seq)

	var players []core.PlayerViewState
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/players", &players))
	assert.Len(t, players, 2)

	var p core.PlayerViewState
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/players/1", &p))
	assert.Equal(t, "Church", p.LocationName)
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/players/9", nil))

	var zones []core.ZoneCardState
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/zones", &zones))
	assert.Equal(t, "zone:0:0", zones[0].ID)

	var popups map[string]bool
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/popups", &popups))
	assert.Equal(t, map[string]bool{"1": true, "2": false}, popups)

	var self struct {
		ID    string        `json:"id"`
		Info  core.SelfInfo `json:"info"`
		Slots []string      `json:"slots"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/self", &self))
	assert.Equal(t, "1", self.ID)
	assert.Equal(t, "Allie", self.Info.Name)

	var cs core.ChangeSet
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/changes", &cs))
	assert.Equal(t, []core.ChangeKind{core.ChangeMoved}, cs.Kinds("1"))
}

func TestSelf_Spectator(t *testing.T) {
	srv, c := newTestServer(t, &fakeDispatcher{}, nil, false)
	c.Publish(core.BoardView{Seq: 1}, core.ChangeSet{Seq: 1})
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/self", nil))
}

func TestActivate(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"ok", nil, http.StatusOK},
		{"unknown entity", fmt.Errorf("activate: %w", popup.ErrUnknownEntity), http.StatusNotFound},
		{"not initialized", worker.ErrNotInitialized, http.StatusConflict},
		{"queue full", dispatcher.ErrQueueFull, http.StatusServiceUnavailable},
		{"other", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDispatcher{
				res: core.ChangeSet{Seq: 4, Changes: []core.Change{{EntityID: "2", Kind: core.ChangePopupToggled, Visible: true}}},
				err: tt.err,
			}
			srv, _ := newTestServer(t, d, nil, true)

			resp, err := http.Post(srv.URL+"/entities/2/activate", "application/json", nil)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, streaming.TypeActivate, d.last.Command)
			assert.JSONEq(t, `{"entityId": "2"}`, string(d.last.Payload))

			if tt.err == nil {
				var cs core.ChangeSet
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&cs))
				assert.Equal(t, uint64(4), cs.Seq)
			}
		})
	}
}

func TestStream(t *testing.T) {
	feed := channel.NewFanout[core.ChangeSet]()
	srv, _ := newTestServer(t, &fakeDispatcher{}, feed, true)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return feed.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	feed.Publish(core.ChangeSet{Seq: 7})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var env streaming.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, streaming.TypeChangeSet, env.Type)
	assert.JSONEq(t, `{"seq": 7, "changes": null}`, string(env.Payload))

	conn.Close()
	assert.Eventually(t, func() bool { return feed.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}
