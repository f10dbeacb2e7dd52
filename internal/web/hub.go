package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pingInterval   = 30 * time.Second
	readTimeout    = 60 * time.Second
	maxFrameSize   = 16 * 1024
	sendBufferSize = 16
)

// WebSocket upgrader configuration
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client represents a WebSocket chat connection. Its context lives as long
// as the connection, so in-flight turns stop when the peer goes away.
type Client struct {
	ID     string
	Conn   *websocket.Conn
	Send   chan []byte
	Hub    *ChatHub
	frames chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
}

// ChatHub tracks websocket chat clients and answers their frames through the pipeline
type ChatHub struct {
	chat    ChatService
	clients map[string]*Client
	mu      sync.RWMutex
}

// NewChatHub creates a new chat hub
func NewChatHub(chat ChatService) *ChatHub {
	return &ChatHub{
		chat:    chat,
		clients: make(map[string]*Client),
	}
}

// ServeWS upgrades the request and serves chat frames until the peer goes away
func (h *ChatHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Hub] Upgrade failed: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		ID:     generateClientID(),
		Conn:   conn,
		Send:   make(chan []byte, sendBufferSize),
		Hub:    h,
		frames: make(chan []byte, sendBufferSize),
		ctx:    ctx,
		cancel: cancel,
	}
	h.register(client)

	go client.writePump()
	go client.answerPump()
	client.readPump()
}

func (h *ChatHub) register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	log.Printf("[Hub] Client connected: %s (total: %d)", client.ID, len(h.clients))
}

func (h *ChatHub) unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		log.Printf("[Hub] Client disconnected: %s (total: %d)", client.ID, len(h.clients))
	}
}

// GetClientCount returns the number of connected clients
func (h *ChatHub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// answer runs one frame through the pipeline. Replies are never dropped.
func (h *ChatHub) answer(ctx context.Context, frame []byte) []byte {
	var reply interface{}

	var req ChatRequest
	if err := json.Unmarshal(frame, &req); err != nil {
		reply = map[string]string{"error": "invalid request body: " + err.Error()}
	} else if result, err := h.chat.Chat(ctx, req.UserID, req.UserInput); err != nil {
		reply = map[string]string{"error": err.Error()}
	} else {
		reply = result
	}

	data, err := json.Marshal(reply)
	if err != nil {
		data = []byte(`{"error":"failed to encode reply"}`)
	}
	return data
}

func generateClientID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return time.Now().Format("20060102150405.000000")
	}
	return hex.EncodeToString(b)
}

// writePump pumps replies to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.mu.Lock()
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				c.mu.Unlock()
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("[Client] Error writing to %s: %v", c.ID, err)
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()

		case <-ticker.C:
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				return
			}
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("[Client] Error sending ping to %s: %v", c.ID, err)
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()
		}
	}
}

// Close closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	c.cancel()
	c.Conn.Close()
}

// answerPump answers queued frames in arrival order. It owns Send.
func (c *Client) answerPump() {
	defer close(c.Send)

	for frame := range c.frames {
		reply := c.Hub.answer(c.ctx, frame)
		select {
		case c.Send <- reply:
		case <-c.ctx.Done():
			return
		}
	}
}

// readPump queues each text frame until the connection fails
func (c *Client) readPump() {
	defer func() {
		c.cancel()
		close(c.frames)
		c.Hub.unregister(c)
		c.Close()
	}()

	c.Conn.SetReadLimit(maxFrameSize)
	c.Conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		_, frame, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[Client] Unexpected close from %s: %v", c.ID, err)
			}
			return
		}
		c.Conn.SetReadDeadline(time.Now().Add(readTimeout))

		select {
		case c.frames <- frame:
		case <-c.ctx.Done():
			return
		}
	}
}
