package ws

import (
	"encoding/json"
	nethttp "net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"rallypoint/server/internal/sim"
	"rallypoint/server/internal/telemetry"
)

// DefaultStatsInterval spaces the periodic stats frames pushed to
// subscribers.
const DefaultStatsInterval = 2 * time.Second

const clientSendBuffer = 64

// FeedConfig tunes the event feed.
type FeedConfig struct {
	Logger        telemetry.Logger
	StatsInterval time.Duration
}

type frame struct {
	Type  string          `json:"type"`
	Event *sim.Event      `json:"event,omitempty"`
	Stats *sim.Statistics `json:"stats,omitempty"`
}

// Feed streams gameplay events and periodic stats snapshots to websocket
// subscribers. Slow subscribers drop frames rather than stalling the tick.
type Feed struct {
	engine   *sim.Engine
	logger   telemetry.Logger
	upgrader websocket.Upgrader
	interval time.Duration

	mu      sync.Mutex
	clients map[*feedClient]struct{}
}

type feedClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewFeed constructs the feed and subscribes it to the engine outbox.
func NewFeed(engine *sim.Engine, cfg FeedConfig) *Feed {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.LoggerFunc(func(string, ...any) {})
	}
	interval := cfg.StatsInterval
	if interval <= 0 {
		interval = DefaultStatsInterval
	}
	feed := &Feed{
		engine:   engine,
		logger:   logger,
		interval: interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *nethttp.Request) bool {
				return true
			},
		},
		clients: make(map[*feedClient]struct{}),
	}
	engine.Subscribe(sim.SubscriberFunc(feed.handleEvent))
	return feed
}

// ServeHTTP upgrades the connection and streams frames until the client
// disconnects.
func (f *Feed) ServeHTTP(w nethttp.ResponseWriter, r *nethttp.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Printf("feed upgrade failed: %v", err)
		return
	}
	client := &feedClient{conn: conn, send: make(chan []byte, clientSendBuffer)}

	f.mu.Lock()
	f.clients[client] = struct{}{}
	f.mu.Unlock()

	go f.writePump(client)
	f.readPump(client)
}

// Run pushes periodic stats frames until the stop channel closes.
func (f *Feed) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			stats := f.engine.Statistics()
			f.broadcast(frame{Type: "stats", Stats: &stats})
		}
	}
}

func (f *Feed) handleEvent(event sim.Event) {
	f.broadcast(frame{Type: "event", Event: &event})
}

func (f *Feed) broadcast(fr frame) {
	data, err := json.Marshal(fr)
	if err != nil {
		f.logger.Printf("failed to marshal feed frame: %v", err)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for client := range f.clients {
		select {
		case client.send <- data:
		default:
			// Slow consumer: drop the frame, keep the tick moving.
		}
	}
}

func (f *Feed) writePump(client *feedClient) {
	for data := range client.send {
		if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			f.disconnect(client)
			return
		}
	}
}

func (f *Feed) readPump(client *feedClient) {
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			f.disconnect(client)
			return
		}
	}
}

func (f *Feed) disconnect(client *feedClient) {
	f.mu.Lock()
	if _, ok := f.clients[client]; ok {
		delete(f.clients, client)
		close(client.send)
	}
	f.mu.Unlock()
	client.conn.Close()
}
