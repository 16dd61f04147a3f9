package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/rs/zerolog"

	"github.com/attensys/upload-relay/internal/model"
)

// Client represents a WebSocket client subscribed to one upload's events
type Client struct {
	UploadID string
	Conn     *websocket.Conn
	Send     chan []byte
}

// Hub maintains active WebSocket connections and fans upload lifecycle
// events out to the subscribers of each upload id. It implements the
// drain worker's Notifier, so events emitted from the background pass
// reach any foreground listener still connected.
type Hub struct {
	// Clients grouped by upload ID
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMessage

	log zerolog.Logger
	mu  sync.RWMutex
}

type broadcastMessage struct {
	UploadID string
	Message  []byte
}

// NewHub creates a new Hub
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *broadcastMessage, 256),
		log:        log.With().Str("component", "ws-hub").Logger(),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.UploadID] == nil {
				h.clients[client.UploadID] = make(map[*Client]bool)
			}
			h.clients[client.UploadID][client] = true
			h.mu.Unlock()
			h.log.Debug().Str("upload_id", client.UploadID).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.UploadID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.Send)
					if len(clients) == 0 {
						delete(h.clients, client.UploadID)
					}
				}
			}
			h.mu.Unlock()
			h.log.Debug().Str("upload_id", client.UploadID).Msg("client unregistered")

		case msg := <-h.broadcast:
			h.mu.RLock()
			if clients, ok := h.clients[msg.UploadID]; ok {
				for client := range clients {
					select {
					case client.Send <- msg.Message:
					default:
						close(client.Send)
						delete(clients, client)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a new client
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// UploadStarted notifies subscribers that the transfer has begun
func (h *Hub) UploadStarted(uploadID string) {
	h.send(uploadID, model.WSStartedMessage{
		Type:     model.WSMessageTypeStarted,
		UploadID: uploadID,
	})
}

// UploadCompleted delivers the remote endpoint's result to subscribers
func (h *Hub) UploadCompleted(uploadID string, result json.RawMessage) {
	h.send(uploadID, model.WSCompletedMessage{
		Type:     model.WSMessageTypeCompleted,
		UploadID: uploadID,
		Result:   result,
	})
}

// UploadFailed delivers the recorded error to subscribers
func (h *Hub) UploadFailed(uploadID string, errMsg string) {
	h.send(uploadID, model.WSFailedMessage{
		Type:     model.WSMessageTypeFailed,
		UploadID: uploadID,
		Error:    errMsg,
	})
}

func (h *Hub) send(uploadID string, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error().Err(err).Str("upload_id", uploadID).Msg("marshal ws message")
		return
	}
	h.broadcast <- &broadcastMessage{UploadID: uploadID, Message: data}
}

// HandleConnection handles a WebSocket connection
func (h *Hub) HandleConnection(c *websocket.Conn, uploadID string) {
	client := &Client{
		UploadID: uploadID,
		Conn:     c,
		Send:     make(chan []byte, 256),
	}

	h.Register(client)
	defer h.Unregister(client)

	// Start writer goroutine
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				// Send ping for keep-alive
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Debug().Err(err).Msg("websocket read error")
			}
			break
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			pong := model.WSMessage{Type: model.WSMessageTypePong}
			data, _ := json.Marshal(pong)
			client.Send <- data
		}
	}
}
