package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Message is the JSON frame sent to websocket clients.
type Message struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// Hub broadcasts notifications to connected websocket clients. It is a Sink
// and an http.Handler; Run must be running for messages to go out.
type Hub struct {
	log       *slog.Logger
	now       func() time.Time
	broadcast chan Message

	lock    sync.Mutex
	clients map[*websocket.Conn]bool
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:       log,
		now:       time.Now,
		broadcast: make(chan Message, 64),
		clients:   make(map[*websocket.Conn]bool),
	}
}

// Notify queues msg for broadcast, dropping it when the queue is full.
func (h *Hub) Notify(msg string) {
	select {
	case h.broadcast <- Message{Time: h.now(), Message: msg}:
	default:
		h.log.Warn("notification dropped", "message", msg)
	}
}

// Run writes queued messages to every client until ctx is done, then closes
// all connections. Clients that fail a write are dropped.
func (h *Hub) Run(ctx context.Context) {
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-h.broadcast:
			data, err := json.Marshal(m)
			if err != nil {
				h.log.Error("encode notification", "err", err)
				continue
			}
			h.lock.Lock()
			for client := range h.clients {
				client.SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
					client.Close()
					delete(h.clients, client)
				}
			}
			h.lock.Unlock()
		}
	}
}

// Clients is the number of connected clients.
func (h *Hub) Clients() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.clients)
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade", "err", err)
		return
	}
	h.lock.Lock()
	h.clients[conn] = true
	h.lock.Unlock()
	h.log.Debug("websocket client connected", "remote", r.RemoteAddr)

	// read until the client goes away so close frames are handled
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				h.remove(conn)
				return
			}
		}
	}()
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.clients[conn] {
		conn.Close()
		delete(h.clients, conn)
	}
}

func (h *Hub) closeAll() {
	h.lock.Lock()
	defer h.lock.Unlock()
	for client := range h.clients {
		client.Close()
		delete(h.clients, client)
	}
}

// Serve runs the hub and an HTTP server exposing it at /ws until ctx is done.
func Serve(ctx context.Context, hub *Hub, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go hub.Run(ctx)
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), writeWait)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	hub.log.Info("notification server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
