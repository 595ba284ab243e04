package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nexabase-io/nexabase/internal/config"
	"github.com/nexabase-io/nexabase/internal/observability"
	"github.com/nexabase-io/nexabase/internal/records"
)

// PermissionChecker answers whether a user may read a collection right now.
// The bus re-checks on every fan-out so revocations take effect immediately.
type PermissionChecker interface {
	CanReadCollection(ctx context.Context, userID int64, role, collectionName string) (bool, error)
}

// Bus owns the connection map and the bounded broadcast channel. A single
// dispatcher goroutine consumes events and fans them out; per-connection
// writers drain their own queues.
type Bus struct {
	cfg     config.RealtimeConfig
	checker PermissionChecker

	mu          sync.RWMutex
	connections map[string]*Connection

	events   chan records.Event
	activity *activityLog
	metrics  *observability.Metrics
}

// NewBus creates the event bus
func NewBus(cfg config.RealtimeConfig, checker PermissionChecker) *Bus {
	buffer := cfg.BroadcastBuffer
	if buffer < 1000 {
		buffer = 1000
	}
	logSize := cfg.ActivityLogSize
	if logSize <= 0 {
		logSize = 500
	}
	return &Bus{
		cfg:         cfg,
		checker:     checker,
		connections: make(map[string]*Connection),
		events:      make(chan records.Event, buffer),
		activity:    newActivityLog(logSize),
	}
}

// SetMetrics attaches the metrics registry
func (b *Bus) SetMetrics(m *observability.Metrics) {
	b.metrics = m
}

// Publish enqueues an event for fan-out. A full broadcast channel drops the
// event rather than blocking the write path.
func (b *Bus) Publish(e records.Event) {
	select {
	case b.events <- e:
	default:
		log.Warn().
			Str("collection", e.Collection).
			Int64("record_id", e.RecordID).
			Msg("Broadcast channel full, event dropped")
		if b.metrics != nil {
			b.metrics.RealtimeEventDropped("broadcast_full")
		}
	}
}

// Run consumes the broadcast channel until ctx is cancelled
func (b *Bus) Run(ctx context.Context) {
	log.Info().Int("buffer", cap(b.events)).Msg("Realtime dispatcher started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Realtime dispatcher stopped")
			return
		case e := <-b.events:
			b.dispatch(ctx, e)
		}
	}
}

// dispatch visits every connection and every subscription. The read
// permission is checked at most once per connection per event.
func (b *Bus) dispatch(ctx context.Context, e records.Event) {
	b.mu.RLock()
	conns := make([]*Connection, 0, len(b.connections))
	for _, c := range b.connections {
		conns = append(conns, c)
	}
	b.mu.RUnlock()

	delivered := 0
	for _, conn := range conns {
		var allowed *bool
		for _, sub := range conn.Subscriptions() {
			sub := sub
			if !sub.Matches(e) {
				continue
			}
			if allowed == nil {
				ok := b.canRead(ctx, conn, e.Collection)
				allowed = &ok
			}
			if !*allowed {
				continue
			}
			if conn.TrySend(eventFrame(sub.ID, e)) {
				delivered++
			} else {
				log.Warn().
					Str("connection_id", conn.ID).
					Str("subscription_id", sub.ID).
					Str("collection", e.Collection).
					Msg("Send queue full, event dropped for subscription")
				if b.metrics != nil {
					b.metrics.RealtimeEventDropped("queue_full")
				}
			}
		}
	}

	if b.metrics != nil {
		b.metrics.RealtimeEventDispatched(e.Collection, string(e.Action))
	}
	b.activity.add(ActivityEntry{
		Time:       time.Now().UTC(),
		Kind:       "event",
		Collection: e.Collection,
		Detail:     string(e.Action),
		Count:      delivered,
	})
}

func (b *Bus) canRead(ctx context.Context, conn *Connection, collection string) bool {
	if conn.UserID == nil {
		return false
	}
	ok, err := b.checker.CanReadCollection(ctx, *conn.UserID, conn.Role, collection)
	if err != nil {
		log.Error().Err(err).
			Str("connection_id", conn.ID).
			Str("collection", collection).
			Msg("Permission re-check failed")
		return false
	}
	return ok
}

// Register adds a connection to the map
func (b *Bus) Register(conn *Connection) {
	b.mu.Lock()
	b.connections[conn.ID] = conn
	total := len(b.connections)
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.RealtimeConnectionsSet(total)
	}
	b.activity.add(ActivityEntry{
		Time:   time.Now().UTC(),
		Kind:   "connect",
		ConnID: conn.ID,
		UserID: conn.UserID,
	})
	log.Info().Str("connection_id", conn.ID).Int("total", total).Msg("WebSocket connected")
}

// Unregister removes a connection and closes it
func (b *Bus) Unregister(connectionID string) {
	b.mu.Lock()
	conn, ok := b.connections[connectionID]
	if ok {
		delete(b.connections, connectionID)
	}
	total := len(b.connections)
	b.mu.Unlock()

	if !ok {
		return
	}
	conn.Close()

	if b.metrics != nil {
		b.metrics.RealtimeConnectionsSet(total)
	}
	b.activity.add(ActivityEntry{
		Time:   time.Now().UTC(),
		Kind:   "disconnect",
		ConnID: conn.ID,
		UserID: conn.UserID,
	})
	log.Info().Str("connection_id", connectionID).Int("total", total).Msg("WebSocket disconnected")
}

// HandleSubscribe validates and registers a subscription, replying with a
// confirmation or an error frame on the connection's own queue.
func (b *Bus) HandleSubscribe(ctx context.Context, conn *Connection, sub *SubscriptionData) {
	if err := sub.Validate(); err != nil {
		conn.TrySend(errorFrame(sub.ID, err.Error()))
		return
	}

	// Authenticated subscribers must hold read on the target collection;
	// anonymous ones register freely and are filtered at fan-out.
	if conn.UserID != nil {
		ok, err := b.checker.CanReadCollection(ctx, *conn.UserID, conn.Role, sub.Collection)
		if err != nil {
			conn.TrySend(errorFrame(sub.ID, "permission check failed"))
			return
		}
		if !ok {
			conn.TrySend(errorFrame(sub.ID, "read permission denied on collection "+sub.Collection))
			return
		}
	}

	conn.Subscribe(sub)
	conn.TrySend(confirmedFrame(sub))

	b.activity.add(ActivityEntry{
		Time:       time.Now().UTC(),
		Kind:       "subscribe",
		ConnID:     conn.ID,
		UserID:     conn.UserID,
		Collection: sub.Collection,
		Detail:     string(sub.Type),
	})
	if b.metrics != nil {
		b.metrics.RealtimeSubscriptionsSet(b.subscriptionCount())
	}
}

// HandleUnsubscribe removes a subscription by id
func (b *Bus) HandleUnsubscribe(conn *Connection, subscriptionID string) {
	if conn.Unsubscribe(subscriptionID) {
		b.activity.add(ActivityEntry{
			Time:   time.Now().UTC(),
			Kind:   "unsubscribe",
			ConnID: conn.ID,
			UserID: conn.UserID,
			Detail: subscriptionID,
		})
	}
	if b.metrics != nil {
		b.metrics.RealtimeSubscriptionsSet(b.subscriptionCount())
	}
}

func (b *Bus) subscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, conn := range b.connections {
		n += len(conn.Subscriptions())
	}
	return n
}

// Status is the public connection summary
type Status struct {
	Enabled       bool `json:"enabled"`
	Connections   int  `json:"connections"`
	Subscriptions int  `json:"subscriptions"`
}

// Status returns public counts for the unauthenticated status endpoint
func (b *Bus) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	subs := 0
	for _, conn := range b.connections {
		subs += len(conn.Subscriptions())
	}
	return Status{Enabled: b.cfg.Enabled, Connections: len(b.connections), Subscriptions: subs}
}

// Stats is the admin view of bus load
type Stats struct {
	Enabled             bool           `json:"enabled"`
	Connections         int            `json:"connections"`
	Authenticated       int            `json:"authenticated"`
	Anonymous           int            `json:"anonymous"`
	Subscriptions       int            `json:"subscriptions"`
	SubscriptionsByType map[string]int `json:"subscriptions_by_type"`
	QueueDepth          int            `json:"queue_depth"`
	QueueCapacity       int            `json:"queue_capacity"`
}

// Stats returns the detailed counts behind the admin stats endpoint
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := Stats{
		Enabled:             b.cfg.Enabled,
		Connections:         len(b.connections),
		SubscriptionsByType: make(map[string]int),
		QueueDepth:          len(b.events),
		QueueCapacity:       cap(b.events),
	}
	for _, conn := range b.connections {
		if conn.UserID != nil {
			s.Authenticated++
		} else {
			s.Anonymous++
		}
		for _, sub := range conn.Subscriptions() {
			s.Subscriptions++
			s.SubscriptionsByType[string(sub.Type)]++
		}
	}
	return s
}

// ConnectionInfo is the admin view of one connection
type ConnectionInfo struct {
	ConnectionID  string             `json:"connection_id"`
	UserID        *int64             `json:"user_id,omitempty"`
	Email         string             `json:"email,omitempty"`
	Role          string             `json:"role,omitempty"`
	ConnectedAt   time.Time          `json:"connected_at"`
	Subscriptions []SubscriptionData `json:"subscriptions"`
}

// ListConnections returns the admin view of every connection
func (b *Bus) ListConnections() []ConnectionInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]ConnectionInfo, 0, len(b.connections))
	for _, conn := range b.connections {
		out = append(out, ConnectionInfo{
			ConnectionID:  conn.ID,
			UserID:        conn.UserID,
			Email:         conn.Email,
			Role:          conn.Role,
			ConnectedAt:   conn.connectedAt,
			Subscriptions: conn.Subscriptions(),
		})
	}
	return out
}

// Disconnect force-closes one connection; false if unknown
func (b *Bus) Disconnect(connectionID string) bool {
	b.mu.RLock()
	_, ok := b.connections[connectionID]
	b.mu.RUnlock()
	if !ok {
		return false
	}
	b.Unregister(connectionID)
	return true
}

// Broadcast pushes an admin message to connections, optionally restricted to
// user ids or to subscribers of named collections. Empty filters mean all.
func (b *Bus) Broadcast(message interface{}, userIDs []int64, collections []string) int {
	users := make(map[int64]struct{}, len(userIDs))
	for _, id := range userIDs {
		users[id] = struct{}{}
	}
	wanted := make(map[string]struct{}, len(collections))
	for _, name := range collections {
		wanted[name] = struct{}{}
	}

	b.mu.RLock()
	conns := make([]*Connection, 0, len(b.connections))
	for _, c := range b.connections {
		conns = append(conns, c)
	}
	b.mu.RUnlock()

	frame := ServerFrame{Type: MessageAdminBroadcast, Data: message}
	sent := 0
	for _, conn := range conns {
		if len(users) > 0 {
			if conn.UserID == nil {
				continue
			}
			if _, ok := users[*conn.UserID]; !ok {
				continue
			}
		}
		if len(wanted) > 0 {
			match := false
			for _, name := range conn.SubscribedCollections() {
				if _, ok := wanted[name]; ok {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		if conn.TrySend(frame) {
			sent++
		}
	}

	b.activity.add(ActivityEntry{
		Time:   time.Now().UTC(),
		Kind:   "broadcast",
		Detail: "admin",
		Count:  sent,
	})
	return sent
}

// Activity returns the recent activity entries, newest first
func (b *Bus) Activity() []ActivityEntry {
	return b.activity.snapshot()
}

// ActivityEntry is one row of the bounded recent-activity log
type ActivityEntry struct {
	Time       time.Time `json:"time"`
	Kind       string    `json:"kind"`
	ConnID     string    `json:"connection_id,omitempty"`
	UserID     *int64    `json:"user_id,omitempty"`
	Collection string    `json:"collection,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	Count      int       `json:"count,omitempty"`
}

// activityLog is a fixed-size ring; writers overwrite the oldest entry
type activityLog struct {
	mu      sync.Mutex
	entries []ActivityEntry
	next    int
	filled  bool
}

func newActivityLog(size int) *activityLog {
	return &activityLog{entries: make([]ActivityEntry, size)}
}

func (l *activityLog) add(e ActivityEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[l.next] = e
	l.next++
	if l.next == len(l.entries) {
		l.next = 0
		l.filled = true
	}
}

func (l *activityLog) snapshot() []ActivityEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	size := l.next
	if l.filled {
		size = len(l.entries)
	}
	out := make([]ActivityEntry, 0, size)
	// Walk backwards from the most recent entry.
	for i := 0; i < size; i++ {
		idx := l.next - 1 - i
		if idx < 0 {
			idx += len(l.entries)
		}
		out = append(out, l.entries[idx])
	}
	return out
}
