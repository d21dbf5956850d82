// Package realtime tracks live client connections and pushes JSON messages
// to them. The Hub is an injected registry; there is no package state.
package realtime

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/earnhub/backend/internal/metrics"
	"github.com/earnhub/backend/internal/models"
)

// Message is the envelope every push uses.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Message types.
const (
	TypeNotification = "new_notification"
	TypeAdminStats   = "admin_stats_update"
	TypeBalance      = "balance_update"
)

// Pusher delivers messages to users wherever they are connected.
type Pusher interface {
	Push(ctx context.Context, userID uuid.UUID, msg Message) error
	PushAdmins(ctx context.Context, msg Message) error
}

// Conn is the part of *websocket.Conn the hub writes through.
type Conn interface {
	WriteJSON(v any) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// sendBuffer is how many messages a client may fall behind before it is
// dropped.
const sendBuffer = 16

// Client is one registered connection. Its pump goroutine is the only
// writer of data frames; pushes only queue onto send.
type Client struct {
	UserID uuid.UUID
	Role   string

	conn     Conn
	writeMu  sync.Mutex
	send     chan Message
	done     chan struct{}
	lastSeen atomic.Int64 // unix nanos
}

func (c *Client) write(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

// Touch records activity from the peer.
func (c *Client) Touch() { c.lastSeen.Store(time.Now().UnixNano()) }

func (c *Client) idle() time.Duration { return time.Since(time.Unix(0, c.lastSeen.Load())) }

type Hub struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]map[*Client]struct{}
	log   *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{conns: make(map[uuid.UUID]map[*Client]struct{}), log: log}
}

// Register adds a connection for a user. A user may hold several.
func (h *Hub) Register(userID uuid.UUID, role string, conn Conn) *Client {
	c := &Client{
		UserID: userID,
		Role:   role,
		conn:   conn,
		send:   make(chan Message, sendBuffer),
		done:   make(chan struct{}),
	}
	c.Touch()
	h.mu.Lock()
	set, ok := h.conns[userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.conns[userID] = set
	}
	set[c] = struct{}{}
	n := len(set)
	h.mu.Unlock()

	go h.pump(c)
	metrics.OnlineConnections.Inc()
	h.log.Info("ws connected", "user_id", userID, "connections", n)
	return c
}

// Unregister removes and closes a connection. Unknown clients are ignored.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	set, ok := h.conns[c.UserID]
	if ok {
		if _, ok = set[c]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(h.conns, c.UserID)
			}
			close(c.done)
		}
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	_ = c.conn.Close()
	metrics.OnlineConnections.Dec()
	h.log.Info("ws disconnected", "user_id", c.UserID)
}

// SendToUser queues msg for every connection of the user and returns how
// many accepted it. It never waits on a peer.
func (h *Hub) SendToUser(userID uuid.UUID, msg Message) int {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.conns[userID]))
	for c := range h.conns[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	return h.deliver(targets, msg)
}

// Broadcast queues msg for every connection whose role matches.
func (h *Hub) Broadcast(match func(role string) bool, msg Message) int {
	h.mu.RLock()
	var targets []*Client
	for _, set := range h.conns {
		for c := range set {
			if match(c.Role) {
				targets = append(targets, c)
			}
		}
	}
	h.mu.RUnlock()
	return h.deliver(targets, msg)
}

// deliver drops a client whose queue is full rather than wait for it.
func (h *Hub) deliver(targets []*Client, msg Message) int {
	queued := 0
	for _, c := range targets {
		select {
		case <-c.done:
		case c.send <- msg:
			queued++
		default:
			h.log.Warn("ws client too slow, dropping", "user_id", c.UserID, "type", msg.Type)
			metrics.NotificationsPushed.WithLabelValues("dropped").Inc()
			h.Unregister(c)
		}
	}
	return queued
}

// pump writes queued messages until the client is unregistered or a write
// fails.
func (h *Hub) pump(c *Client) {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				select {
				case <-c.done:
				default:
					h.log.Warn("ws send failed", "user_id", c.UserID, "type", msg.Type, "error", err)
					metrics.NotificationsPushed.WithLabelValues("failed").Inc()
					h.Unregister(c)
				}
				return
			}
			metrics.NotificationsPushed.WithLabelValues("sent").Inc()
		}
	}
}

// Push implements Pusher for a single process.
func (h *Hub) Push(_ context.Context, userID uuid.UUID, msg Message) error {
	h.SendToUser(userID, msg)
	return nil
}

func (h *Hub) PushAdmins(_ context.Context, msg Message) error {
	h.Broadcast(models.IsAdminRole, msg)
	return nil
}

// Online reports whether the user has at least one live connection.
func (h *Hub) Online(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID]) > 0
}

func (h *Hub) OnlineUsers() []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(h.conns))
	for id := range h.conns {
		ids = append(ids, id)
	}
	return ids
}

// Reap drops connections silent for longer than maxIdle.
func (h *Hub) Reap(maxIdle time.Duration) int {
	h.mu.RLock()
	var stale []*Client
	for _, set := range h.conns {
		for c := range set {
			if c.idle() > maxIdle {
				stale = append(stale, c)
			}
		}
	}
	h.mu.RUnlock()
	for _, c := range stale {
		h.Unregister(c)
	}
	return len(stale)
}
