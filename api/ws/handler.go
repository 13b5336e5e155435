package ws

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/kasuganosora/questforge/config"
	"github.com/kasuganosora/questforge/game/npc"
	"github.com/kasuganosora/questforge/game/player"
	"github.com/kasuganosora/questforge/game/quest"
	mw "github.com/kasuganosora/questforge/middleware"
	"github.com/kasuganosora/questforge/plugin/hook"
	"go.uber.org/zap"
)

// Handler is the Gin handler for GET /ws/host, the host game server's link.
// One host is connected at a time; a new connection displaces the old one.
type Handler struct {
	adminKey string
	players  *player.Manager
	npcs     *npc.Directory
	svc      *quest.Service
	hooks    *hook.HookCenter
	router   *Router
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	current *Conn
}

// NewHandler creates the host bridge and registers its packet handlers.
// sec.AllowedOrigins controls which WebSocket origins are accepted.
// An empty slice permits all origins.
func NewHandler(
	srv config.ServerConfig,
	sec config.SecurityConfig,
	players *player.Manager,
	npcs *npc.Directory,
	svc *quest.Service,
	hooks *hook.HookCenter,
	logger *zap.Logger,
) *Handler {
	h := &Handler{
		adminKey: srv.AdminKey,
		players:  players,
		npcs:     npcs,
		svc:      svc,
		hooks:    hooks,
		router:   NewRouter(logger),
		logger:   logger,
	}
	allowed := sec.AllowedOrigins
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, o := range allowed {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
	h.routes()
	return h
}

// Router exposes the packet router.
func (h *Handler) Router() *Router { return h.router }

// ServeWS handles GET /ws/host with the admin key in the X-Admin-Key header
// or the key query parameter.
func (h *Handler) ServeWS(c *gin.Context) {
	key := c.GetHeader(mw.AdminKeyHeader)
	if key == "" {
		key = c.Query("key")
	}
	if !mw.CheckAdminKey(h.adminKey, key) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid admin key"})
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", zap.Error(err))
		return
	}
	ws.SetReadLimit(maxPacketSize)

	conn := newConn(uuid.NewString(), ws, h.logger)
	h.attach(conn)
	h.readPump(conn)
}

func (h *Handler) attach(conn *Conn) {
	h.mu.Lock()
	prev := h.current
	h.current = conn
	h.mu.Unlock()
	if prev != nil {
		h.logger.Warn("host link displaced", zap.String("old", prev.ID), zap.String("new", conn.ID))
		prev.Close()
	}
	h.players.SetLink(conn)
	h.logger.Info("host connected", zap.String("conn", conn.ID))
}

// readPump reads packets until the connection closes.
func (h *Handler) readPump(conn *Conn) {
	defer h.detach(conn)

	conn.setReadDeadline()
	conn.conn.SetPongHandler(func(string) error {
		conn.setReadDeadline()
		return nil
	})
	for {
		_, raw, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				h.logger.Warn("ws unexpected close", zap.String("conn", conn.ID), zap.Error(err))
			}
			return
		}
		conn.setReadDeadline()
		h.router.Dispatch(conn, raw)
	}
}

// detach drops the link. When conn was the current host every mirrored
// player is saved and unloaded: the host owns their session.
func (h *Handler) detach(conn *Conn) {
	conn.Close()
	h.mu.Lock()
	current := h.current == conn
	if current {
		h.current = nil
	}
	h.mu.Unlock()
	if !current {
		return
	}
	h.players.SetLink(nil)
	ctx := context.Background()
	for _, p := range h.players.Clear() {
		h.svc.Leave(ctx, p.UUID())
	}
	h.logger.Info("host disconnected", zap.String("conn", conn.ID))
}

// Connected reports whether a host is linked.
func (h *Handler) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current != nil
}
