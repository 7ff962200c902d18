package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"reaction_timer_backend/internal/model"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hubMessage struct {
	Type string   `json:"type"`
	Data Snapshot `json:"data"`
}

func readHubMessage(t *testing.T, conn *websocket.Conn) hubMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg hubMessage
	require.NoError(t, json.Unmarshal(payload, &msg))
	return msg
}

func TestLeaderboardHubBroadcastsOnRunCompletion(t *testing.T) {
	e := newTestEnv(t, testCooldown)
	alice := e.createUser(t, "alice")

	hub := NewLeaderboardHub(e.ranking, nil)
	go hub.Run()
	t.Cleanup(hub.Stop)
	e.challenge.SetNotifier(hub)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWs(w, r, model.ModeSingle)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	initial := readHubMessage(t, conn)
	assert.Equal(t, "LEADERBOARD", initial.Type)
	assert.Empty(t, initial.Data.Leaderboard)

	_, err = e.play(t, alice, "class", 240*time.Millisecond, nil, nil)
	require.NoError(t, err)

	update := readHubMessage(t, conn)
	require.Len(t, update.Data.Leaderboard, 1)
	assert.Equal(t, "alice", update.Data.Leaderboard[0].Username)
	assert.Equal(t, 240, update.Data.Leaderboard[0].BestTime)
}

// gatedSnapshots holds its first query until release is closed.
type gatedSnapshots struct {
	release chan struct{}
	calls   atomic.Int32
}

func (g *gatedSnapshots) Snapshot(ctx context.Context, mode model.GameMode, _ *uint) (*Snapshot, error) {
	if g.calls.Add(1) == 1 {
		select {
		case <-g.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &Snapshot{Mode: mode, Leaderboard: []model.RankingEntry{}}, nil
}

func dialHub(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestLeaderboardHubSlowSnapshotDoesNotBlockOthers(t *testing.T) {
	source := &gatedSnapshots{release: make(chan struct{})}
	hub := NewLeaderboardHub(source, nil)
	go hub.Run()
	t.Cleanup(hub.Stop)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWs(w, r, model.ModeSingle)
	}))
	t.Cleanup(srv.Close)

	first := dialHub(t, srv.URL)
	require.Eventually(t, func() bool { return source.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	// The first query is still held, yet a second subscriber registers and
	// gets its snapshot.
	second := dialHub(t, srv.URL)
	msg := readHubMessage(t, second)
	assert.Equal(t, "LEADERBOARD", msg.Type)
	assert.Equal(t, model.ModeSingle, msg.Data.Mode)

	close(source.release)
	msg = readHubMessage(t, first)
	assert.Equal(t, "LEADERBOARD", msg.Type)
}

func TestLeaderboardHubRejectsForeignOrigin(t *testing.T) {
	e := newTestEnv(t, testCooldown)
	hub := NewLeaderboardHub(e.ranking, []string{"https://game.example"})
	go hub.Run()
	t.Cleanup(hub.Stop)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWs(w, r, model.ModeSingle)
	}))
	t.Cleanup(srv.Close)

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
