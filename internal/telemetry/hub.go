package telemetry

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Subscriber receives every published event. Slow subscribers drop
// events rather than block the publisher.
type Subscriber chan Event

// Hub fans engine events out to in-process subscribers and connected
// websocket clients.
type Hub struct {
	mu          sync.Mutex
	clients     map[*websocket.Conn]bool
	subscribers map[Subscriber]bool
	broadcast   chan Event
	done        chan struct{}
	logger      *slog.Logger
}

// NewHub creates a new telemetry hub
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:     make(map[*websocket.Conn]bool),
		subscribers: make(map[Subscriber]bool),
		broadcast:   make(chan Event, 256),
		done:        make(chan struct{}),
		logger:      logger.With("component", "telemetry"),
	}
}

// Run delivers events until Stop is called. Intended to be run in its
// own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case event := <-h.broadcast:
			h.dispatch(event)
		case <-h.done:
			return
		}
	}
}

// Stop terminates the delivery loop and closes every client connection.
func (h *Hub) Stop() {
	close(h.done)
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		client.Close()
		delete(h.clients, client)
	}
}

// Publish enqueues an event for delivery, dropping it when the hub's
// buffer is full so the engine hot path never blocks.
func (h *Hub) Publish(event Event) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("telemetry buffer full, event dropped", "type", event.Type)
	}
}

// Subscribe registers an in-process event channel.
func (h *Hub) Subscribe(buffer int) Subscriber {
	sub := make(Subscriber, buffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subscribers[sub] {
		delete(h.subscribers, sub)
		close(sub)
	}
}

func (h *Hub) dispatch(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subscribers {
		select {
		case sub <- event:
		default:
		}
	}

	if len(h.clients) == 0 {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal telemetry event", "error", err)
		return
	}
	for client := range h.clients {
		if err := client.WriteMessage(websocket.TextMessage, payload); err != nil {
			client.Close()
			delete(h.clients, client)
		}
	}
}

// ServeHTTP upgrades the request to a websocket and attaches the client
// to the broadcast set.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()
}
