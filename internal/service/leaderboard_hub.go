package service

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"reaction_timer_backend/internal/model"
	"reaction_timer_backend/pkg/logger"
	"reaction_timer_backend/pkg/monitoring"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 16
)

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Subscriber is one live leaderboard connection.
type Subscriber struct {
	Hub  *LeaderboardHub
	Conn *websocket.Conn
	Send chan []byte
	Mode model.GameMode
}

// readPump only watches for close and pong frames; subscribers never send
// anything meaningful.
func (s *Subscriber) readPump() {
	defer func() {
		select {
		case s.Hub.unregister <- s:
		case <-s.Hub.done:
		}
		s.Conn.Close()
	}()
	s.Conn.SetReadLimit(maxMessageSize)
	s.Conn.SetReadDeadline(time.Now().Add(pongWait))
	s.Conn.SetPongHandler(func(string) error { s.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		if _, _, err := s.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.Warn("leaderboard websocket closed unexpectedly", zap.Error(err))
			}
			return
		}
	}
}

func (s *Subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-s.Send:
			s.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			s.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SnapshotSource builds the ranking views pushed to subscribers.
type SnapshotSource interface {
	Snapshot(ctx context.Context, mode model.GameMode, userID *uint) (*Snapshot, error)
}

// snapshotReady carries a built payload back to the hub loop. A nil target
// means a broadcast to every subscriber of mode.
type snapshotReady struct {
	mode    model.GameMode
	target  *Subscriber
	payload []byte
	err     error
}

// LeaderboardHub pushes a fresh ranking snapshot to every subscriber of a
// mode whenever a run in that mode completes. Snapshots are queried off the
// hub loop so a slow database never holds up register and unregister.
type LeaderboardHub struct {
	ranking     SnapshotSource
	upgrader    websocket.Upgrader
	subscribers map[model.GameMode]map[*Subscriber]struct{}
	register    chan *Subscriber
	unregister  chan *Subscriber
	updates     chan model.GameMode
	snapshots   chan snapshotReady
	done        chan struct{}

	// Owned by Run: one broadcast query per mode in flight, and whether
	// another completion arrived meanwhile.
	building map[model.GameMode]bool
	stale    map[model.GameMode]bool
}

func NewLeaderboardHub(ranking SnapshotSource, allowedOrigins []string) *LeaderboardHub {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	return &LeaderboardHub{
		ranking: ranking,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origins[origin]
			},
		},
		subscribers: make(map[model.GameMode]map[*Subscriber]struct{}),
		register:    make(chan *Subscriber),
		unregister:  make(chan *Subscriber),
		updates:     make(chan model.GameMode, 16),
		snapshots:   make(chan snapshotReady),
		done:        make(chan struct{}),
		building:    make(map[model.GameMode]bool),
		stale:       make(map[model.GameMode]bool),
	}
}

// RunCompleted queues a refresh for mode. It never blocks; a burst of
// completions collapses into fewer broadcasts.
func (h *LeaderboardHub) RunCompleted(mode model.GameMode) {
	select {
	case h.updates <- mode:
	default:
	}
}

func (h *LeaderboardHub) Run() {
	for {
		select {
		case sub := <-h.register:
			set, ok := h.subscribers[sub.Mode]
			if !ok {
				set = make(map[*Subscriber]struct{})
				h.subscribers[sub.Mode] = set
			}
			set[sub] = struct{}{}
			monitoring.LeaderboardSubscribers.Inc()
			go h.buildSnapshot(sub.Mode, sub)

		case sub := <-h.unregister:
			if h.isSubscribed(sub) {
				delete(h.subscribers[sub.Mode], sub)
				close(sub.Send)
				monitoring.LeaderboardSubscribers.Dec()
			}

		case mode := <-h.updates:
			if len(h.subscribers[mode]) == 0 {
				continue
			}
			if h.building[mode] {
				h.stale[mode] = true
				continue
			}
			h.building[mode] = true
			go h.buildSnapshot(mode, nil)

		case ready := <-h.snapshots:
			h.deliver(ready)

		case <-h.done:
			h.closeAll()
			return
		}
	}
}

func (h *LeaderboardHub) deliver(ready snapshotReady) {
	if ready.target != nil {
		// The subscriber may have left while its snapshot was built.
		if ready.err == nil && h.isSubscribed(ready.target) {
			h.send(ready.target, ready.payload)
		}
		return
	}

	h.building[ready.mode] = false
	if ready.err == nil {
		for sub := range h.subscribers[ready.mode] {
			h.send(sub, ready.payload)
		}
	}
	if h.stale[ready.mode] {
		h.stale[ready.mode] = false
		if len(h.subscribers[ready.mode]) > 0 {
			h.building[ready.mode] = true
			go h.buildSnapshot(ready.mode, nil)
		}
	}
}

func (h *LeaderboardHub) isSubscribed(sub *Subscriber) bool {
	_, ok := h.subscribers[sub.Mode][sub]
	return ok
}

// buildSnapshot runs the ranking query and hands the payload back to Run.
func (h *LeaderboardHub) buildSnapshot(mode model.GameMode, target *Subscriber) {
	payload, err := h.snapshotMessage(mode)
	select {
	case h.snapshots <- snapshotReady{mode: mode, target: target, payload: payload, err: err}:
	case <-h.done:
	}
}

// Stop closes every subscriber and ends Run.
func (h *LeaderboardHub) Stop() {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
}

func (h *LeaderboardHub) send(sub *Subscriber, payload []byte) {
	select {
	case sub.Send <- payload:
	default:
		// Slow consumer; it will get the next snapshot.
	}
}

func (h *LeaderboardHub) closeAll() {
	closed := 0
	for mode, set := range h.subscribers {
		for sub := range set {
			close(sub.Send)
			closed++
		}
		delete(h.subscribers, mode)
	}
	monitoring.LeaderboardSubscribers.Set(0)
	logger.Log.Info("leaderboard hub stopped", zap.Int("closedConnections", closed))
}

func (h *LeaderboardHub) snapshotMessage(mode model.GameMode) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snap, err := h.ranking.Snapshot(ctx, mode, nil)
	if err != nil {
		logger.Log.Error("leaderboard snapshot failed", zap.String("mode", string(mode)), zap.Error(err))
		return nil, err
	}
	return json.Marshal(WSMessage{Type: "LEADERBOARD", Data: snap})
}

// ServeWs upgrades the request and subscribes it to mode.
func (h *LeaderboardHub) ServeWs(w http.ResponseWriter, r *http.Request, mode model.GameMode) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Warn("leaderboard websocket upgrade failed", zap.Error(err))
		return
	}
	sub := &Subscriber{
		Hub:  h,
		Conn: conn,
		Send: make(chan []byte, sendBuffer),
		Mode: mode,
	}

	select {
	case h.register <- sub:
	case <-h.done:
		conn.Close()
		return
	}

	go sub.writePump()
	go sub.readPump()
}
