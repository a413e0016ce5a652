package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"procurement/internal/middleware"
	"procurement/internal/workflow"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Event is one message on the live feed.
type Event struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
	At    time.Time   `json:"at"`
}

// visibleTo reports whether a client with role should receive the event. Suppliers only follow tenders.
func (e Event) visibleTo(role workflow.Role) bool {
	if role == workflow.RoleSupplier {
		return strings.HasPrefix(e.Event, "tender.")
	}
	return true
}

// Client represents a single connected WebSocket client
type Client struct {
	Hub    *Hub
	Conn   *websocket.Conn
	Send   chan []byte
	UserID uuid.UUID
	Role   workflow.Role
}

// Hub maintains the set of active clients and broadcasts events to them
type Hub struct {
	clients    map[*Client]bool
	Broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	mu         sync.Mutex
	upgrader   websocket.Upgrader
}

// NewHub initializes a new WS Hub instance. An empty allowedOrigins accepts any origin.
func NewHub(allowedOrigins ...string) *Hub {
	h := &Hub{
		Broadcast:  make(chan Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, o := range allowedOrigins {
				if o == "*" || o == origin {
					return true
				}
			}
			return false
		},
	}
	return h
}

// Publish queues an event for every connected client. It never blocks the caller.
func (h *Hub) Publish(event string, data interface{}) {
	select {
	case h.Broadcast <- Event{Event: event, Data: data, At: time.Now()}:
	default:
		log.Printf("[ws] broadcast queue full, dropped %s", event)
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Run starts the core dispatch loop for WebSocket events
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("[ws] client connected: user %s (%s)", client.UserID, client.Role)
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				log.Printf("[ws] client disconnected: user %s", client.UserID)
			}
			h.mu.Unlock()
		case event := <-h.Broadcast:
			message, err := json.Marshal(event)
			if err != nil {
				log.Printf("[ws] failed to encode %s: %v", event.Event, err)
				continue
			}
			h.mu.Lock()
			for client := range h.clients {
				if !event.visibleTo(client.Role) {
					continue
				}
				select {
				case client.Send <- message:
				default:
					close(client.Send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// writePump handles writing messages from the Hub to the WebSocket connection
func (c *Client) writePump() {
	defer func() {
		_ = c.Conn.Close()
	}()
	for message := range c.Send {
		if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readPump drains the connection so close frames are noticed, then unregisters the client
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		_ = c.Conn.Close()
	}()
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[ws] read error: %v", err)
			}
			break
		}
	}
}

// ServeWs authenticates the peer with the access token from ?token= or the auth cookie and
// attaches it to the hub.
func ServeWs(hub *Hub, c *gin.Context) {
	tokenString := c.Query("token")
	if tokenString == "" {
		tokenString, _ = middleware.TokenFromRequest(c)
	}
	if tokenString == "" {
		log.Println("[ws] connection rejected: missing token")
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	userID, role, err := middleware.ParseToken(tokenString)
	if err != nil {
		log.Println("[ws] connection rejected: invalid token:", err)
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	conn, err := hub.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Println("[ws] upgrade failed:", err)
		return
	}
	client := &Client{Hub: hub, Conn: conn, Send: make(chan []byte, 256), UserID: userID, Role: role}
	client.Hub.register <- client

	go client.writePump()
	go client.readPump()
}
