package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/nexabase-io/nexabase/internal/auth"
	"github.com/nexabase-io/nexabase/internal/config"
)

// TokenValidator validates access tokens for WebSocket upgrades
type TokenValidator interface {
	ValidateAccess(ctx context.Context, token string) (*auth.TokenClaims, error)
}

// Handler upgrades HTTP requests to WebSocket connections and runs the
// per-connection reader loop.
type Handler struct {
	bus       *Bus
	validator TokenValidator
	cfg       config.RealtimeConfig
}

// NewHandler creates the WebSocket handler
func NewHandler(bus *Bus, validator TokenValidator, cfg config.RealtimeConfig) *Handler {
	return &Handler{bus: bus, validator: validator, cfg: cfg}
}

type wsIdentity struct {
	userID *int64
	email  string
	role   string
}

// Upgrade authenticates (optionally) and upgrades to a WebSocket. The token
// comes from the `token` query parameter, the access cookie, or the
// Authorization header; connections without a valid token stay anonymous
// only when no token was presented at all.
func (h *Handler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	token := c.Query("token")
	if token == "" {
		token = auth.ExtractToken(c.Cookies(auth.AccessCookieName), c.Get(fiber.HeaderAuthorization))
	}

	ident := wsIdentity{}
	if token != "" {
		claims, err := h.validator.ValidateAccess(c.UserContext(), token)
		if err != nil {
			log.Debug().Err(err).Msg("WebSocket token rejected")
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
		}
		userID, err := claims.UserID()
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token subject")
		}
		ident.userID = &userID
		ident.email = claims.Email
		ident.role = claims.Role
	}

	c.Locals("ws_identity", ident)
	return websocket.New(h.serve)(c)
}

// serve runs the connection lifecycle: register, writer goroutine, keepalive,
// reader loop, unregister.
func (h *Handler) serve(ws *websocket.Conn) {
	ident, _ := ws.Locals("ws_identity").(wsIdentity)

	conn := NewConnection(uuid.New().String(), ws, ident.userID, ident.email, ident.role, h.cfg.SendQueueSize)
	h.bus.Register(conn)
	defer h.bus.Unregister(conn.ID)

	writeTimeout := h.cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	go conn.WriteLoop(writeTimeout)

	if h.cfg.PingInterval > 0 {
		go h.keepalive(conn)
	}

	h.readLoop(conn, ws)
}

// keepalive nudges idle clients so intermediaries keep the socket open
func (h *Handler) keepalive(conn *Connection) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-conn.Done():
			return
		case <-ticker.C:
			conn.TrySend(ServerFrame{Type: MessagePong})
		}
	}
}

func (h *Handler) readLoop(conn *Connection, ws *websocket.Conn) {
	ctx := context.Background()
	for {
		var frame ClientFrame
		if err := ws.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("connection_id", conn.ID).Msg("WebSocket read failed")
			}
			return
		}

		switch frame.Type {
		case MessageSubscribe:
			var sub SubscriptionData
			if err := json.Unmarshal(frame.Data, &sub); err != nil {
				conn.TrySend(errorFrame("", "malformed subscribe payload"))
				continue
			}
			h.bus.HandleSubscribe(ctx, conn, &sub)

		case MessageUnsubscribe:
			var data UnsubscribeData
			if err := json.Unmarshal(frame.Data, &data); err != nil {
				conn.TrySend(errorFrame("", "malformed unsubscribe payload"))
				continue
			}
			h.bus.HandleUnsubscribe(conn, data.SubscriptionID)

		case MessagePing:
			conn.TrySend(ServerFrame{Type: MessagePong})

		default:
			log.Warn().
				Str("connection_id", conn.ID).
				Str("type", string(frame.Type)).
				Msg("Unknown WebSocket frame type ignored")
		}
	}
}
