package realtime

import (
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/rs/zerolog/log"
)

// Connection is one WebSocket client. Outbound frames go through a buffered
// send queue drained by a single writer goroutine, so the dispatcher never
// blocks on a slow socket.
type Connection struct {
	ID     string
	UserID *int64
	Email  string
	Role   string

	ws            *websocket.Conn
	send          chan ServerFrame
	done          chan struct{}
	closeOnce     sync.Once
	mu            sync.RWMutex
	subscriptions map[string]*SubscriptionData
	connectedAt   time.Time
}

// NewConnection wraps an upgraded socket. UserID is nil for anonymous clients.
func NewConnection(id string, ws *websocket.Conn, userID *int64, email, role string, queueSize int) *Connection {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Connection{
		ID:            id,
		UserID:        userID,
		Email:         email,
		Role:          role,
		ws:            ws,
		send:          make(chan ServerFrame, queueSize),
		done:          make(chan struct{}),
		subscriptions: make(map[string]*SubscriptionData),
		connectedAt:   time.Now(),
	}
}

// Subscribe registers a subscription, replacing any with the same id
func (c *Connection) Subscribe(sub *SubscriptionData) {
	c.mu.Lock()
	c.subscriptions[sub.ID] = sub
	c.mu.Unlock()
}

// Unsubscribe removes a subscription; false if the id was unknown
func (c *Connection) Unsubscribe(subscriptionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subscriptions[subscriptionID]; !ok {
		return false
	}
	delete(c.subscriptions, subscriptionID)
	return true
}

// Subscriptions returns a snapshot of the registered subscriptions
func (c *Connection) Subscriptions() []SubscriptionData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]SubscriptionData, 0, len(c.subscriptions))
	for _, sub := range c.subscriptions {
		out = append(out, *sub)
	}
	return out
}

// SubscribedCollections returns the distinct collection names subscribed to
func (c *Connection) SubscribedCollections() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[string]struct{}, len(c.subscriptions))
	var names []string
	for _, sub := range c.subscriptions {
		if _, ok := seen[sub.Collection]; ok {
			continue
		}
		seen[sub.Collection] = struct{}{}
		names = append(names, sub.Collection)
	}
	return names
}

// TrySend queues a frame without blocking. A full queue drops the frame.
func (c *Connection) TrySend(frame ServerFrame) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// WriteLoop drains the send queue onto the socket with a per-write deadline.
// It exits when Close is called or a write fails.
func (c *Connection) WriteLoop(writeTimeout time.Duration) {
	for {
		select {
		case <-c.done:
			// Flush whatever is already queued, best effort.
			for {
				select {
				case frame := <-c.send:
					_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := c.ws.WriteJSON(frame); err != nil {
						return
					}
				default:
					return
				}
			}
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteJSON(frame); err != nil {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("WebSocket write failed")
				c.Close()
				return
			}
		}
	}
}

// Close signals the writer to stop and closes the socket
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// Done is closed when the connection is shutting down
func (c *Connection) Done() <-chan struct{} {
	return c.done
}
