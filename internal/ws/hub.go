package ws

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Conn is the write side of a client connection. *websocket.Conn satisfies
// it; tests use fakes.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Client is one registered connection. A user may hold several (multiple
// tabs); each gets its own Client.
type Client struct {
	ID     string
	UserID int64

	conn Conn
	mu   sync.Mutex // serializes writes to the connection
}

func (c *Client) send(payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(payload)
}

// Hub manages active connections keyed two ways: per user for personal
// notifications and per thread for clients currently viewing that thread.
type Hub struct {
	mu       sync.RWMutex
	byUser   map[int64]map[*Client]struct{}
	byThread map[int64]map[*Client]struct{}
	threads  map[*Client]map[int64]struct{}
	log      *zap.SugaredLogger
}

func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		byUser:   make(map[int64]map[*Client]struct{}),
		byThread: make(map[int64]map[*Client]struct{}),
		threads:  make(map[*Client]map[int64]struct{}),
		log:      log,
	}
}

// Register adds a connection for the given user.
func (h *Hub) Register(userID int64, conn Conn) *Client {
	cl := &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		conn:   conn,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.byUser[userID] == nil {
		h.byUser[userID] = make(map[*Client]struct{})
	}
	h.byUser[userID][cl] = struct{}{}
	h.threads[cl] = make(map[int64]struct{})
	return cl
}

// Unregister removes the client from the user index and every thread
// channel it joined. It reports whether this was the user's last
// connection, so callers know when the user actually went offline.
func (h *Hub) Unregister(cl *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	last := false
	if conns, ok := h.byUser[cl.UserID]; ok {
		delete(conns, cl)
		if len(conns) == 0 {
			delete(h.byUser, cl.UserID)
			last = true
		}
	}
	for tid := range h.threads[cl] {
		h.leaveLocked(cl, tid)
	}
	delete(h.threads, cl)
	return last
}

// JoinThread subscribes the client to a thread channel.
func (h *Hub) JoinThread(cl *Client, threadID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.byThread[threadID] == nil {
		h.byThread[threadID] = make(map[*Client]struct{})
	}
	h.byThread[threadID][cl] = struct{}{}
	h.threads[cl][threadID] = struct{}{}
}

// LeaveThread unsubscribes the client from a thread channel.
func (h *Hub) LeaveThread(cl *Client, threadID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(cl, threadID)
	delete(h.threads[cl], threadID)
}

func (h *Hub) leaveLocked(cl *Client, threadID int64) {
	if conns, ok := h.byThread[threadID]; ok {
		delete(conns, cl)
		if len(conns) == 0 {
			delete(h.byThread, threadID)
		}
	}
}

// BroadcastToThread sends the payload to every client currently subscribed
// to the thread channel. Delivery is best-effort.
func (h *Hub) BroadcastToThread(threadID int64, payload any) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.byThread[threadID]))
	for cl := range h.byThread[threadID] {
		clients = append(clients, cl)
	}
	h.mu.RUnlock()

	for _, cl := range clients {
		if err := cl.send(payload); err != nil {
			h.log.Debugw("thread broadcast failed", "client_id", cl.ID, "thread_id", threadID, "error", err)
			cl.conn.Close()
		}
	}
}

// BroadcastToUsers sends the payload to all active connections of the
// given users.
func (h *Hub) BroadcastToUsers(userIDs []int64, payload any) {
	h.mu.RLock()
	var clients []*Client
	for _, uid := range userIDs {
		for cl := range h.byUser[uid] {
			clients = append(clients, cl)
		}
	}
	h.mu.RUnlock()

	for _, cl := range clients {
		if err := cl.send(payload); err != nil {
			h.log.Debugw("user broadcast failed", "client_id", cl.ID, "user_id", cl.UserID, "error", err)
			cl.conn.Close()
		}
	}
}

// BroadcastAll sends the payload to every connected client.
func (h *Hub) BroadcastAll(payload any) {
	h.mu.RLock()
	var clients []*Client
	for _, conns := range h.byUser {
		for cl := range conns {
			clients = append(clients, cl)
		}
	}
	h.mu.RUnlock()

	for _, cl := range clients {
		if err := cl.send(payload); err != nil {
			cl.conn.Close()
		}
	}
}

// ThreadSubscriberIDs returns the user ids with at least one client
// subscribed to the thread channel.
func (h *Hub) ThreadSubscriberIDs(threadID int64) map[int64]struct{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make(map[int64]struct{}, len(h.byThread[threadID]))
	for cl := range h.byThread[threadID] {
		ids[cl.UserID] = struct{}{}
	}
	return ids
}
