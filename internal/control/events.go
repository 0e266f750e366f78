package control

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/famish99/vidstated/internal/playback"
)

const (
	// Events a slow client may fall behind before new ones are dropped
	eventBacklog = 32
	writeWait    = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// eventClient is one websocket subscriber
type eventClient struct {
	id   string
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *eventClient) close() {
	c.once.Do(func() { close(c.done) })
}

// eventHub fans state changes out to websocket clients
type eventHub struct {
	mu      sync.Mutex
	clients map[*eventClient]struct{}
}

func newEventHub() *eventHub {
	return &eventHub{clients: make(map[*eventClient]struct{})}
}

func (h *eventHub) add(c *eventClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	log.Printf("Events client connected [%s] (total: %d)", c.id, len(h.clients))
}

func (h *eventHub) remove(c *eventClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
	log.Printf("Events client disconnected [%s] (total: %d)", c.id, len(h.clients))
}

func (h *eventHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// broadcast queues ev for every client without blocking the engine
func (h *eventHub) broadcast(ev playback.StateChangeEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("Failed to encode state change: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			log.Printf("Warning: events client [%s] is behind, dropping event", c.id)
		}
	}
}

func (h *eventHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.close()
	}
}

// Handler returns the HTTP handler serving the events feed at /events
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", s.handleEvents)
	return mux
}

// handleEvents upgrades to a websocket and streams every state change as JSON
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	client := &eventClient{
		id:   uuid.New().String()[:8],
		send: make(chan []byte, eventBacklog),
		done: make(chan struct{}),
	}
	s.hub.add(client)
	defer s.hub.remove(client)

	// The feed is one-way; reading only notices the client going away
	go func() {
		defer client.close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case data := <-client.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("Events client [%s] write failed: %v", client.id, err)
				return
			}
		case <-client.done:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
