package hub

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/weiawesome/wes-io-sync/internal/domain"
	pkglog "github.com/weiawesome/wes-io-sync/pkg/log"
	"github.com/weiawesome/wes-io-sync/pkg/middleware"
	"github.com/weiawesome/wes-io-sync/pkg/response"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler exposes the hub over HTTP.
type Handler struct {
	hub  *Hub
	auth *middleware.AuthMiddleware
}

// NewHandler creates a handler. Connections are authenticated with v.
func NewHandler(h *Hub, v middleware.TokenValidator) *Handler {
	return &Handler{hub: h, auth: middleware.NewAuthMiddleware(v)}
}

// RegisterRoutes registers the websocket endpoint and the room API.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", h.auth.RequireAuth(), h.ServeWS)

	api := r.Group("/api/v1")
	{
		api.GET("/rooms/:id", h.GetRoom)
	}
}

// NewRouter builds the hub's gin engine with logging, recovery and a
// health probe.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(pkglog.L()))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	h.RegisterRoutes(r)
	return r
}

// ServeWS upgrades an authenticated request and joins the room named by
// the room query parameter.
func (h *Handler) ServeWS(c *gin.Context) {
	logger := pkglog.Ctx(c.Request.Context())

	roomID := c.Query("room")
	if roomID == "" {
		response.BadRequest(c, "room is required")
		return
	}
	role := Role(c.Query("role"))
	if role != RoleHost && role != RolePeer {
		response.BadRequest(c, "role must be host or peer")
		return
	}
	name := middleware.GetUsername(c)
	if name == "" {
		response.Unauthorized(c, "token carries no username")
		return
	}

	if !h.admissible(c, roomID, role) {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error().Err(err).Msg("failed to upgrade connection")
		return
	}

	client := NewClient(h.hub, conn, uuid.New().String(), name, roomID, role)
	if err := h.hub.Admit(client); err != nil {
		// The room changed between the check and the upgrade.
		client.logger.Warn().Err(err).Msg("admission failed after upgrade")
		if env, eerr := domain.NewEnvelope(domain.EventError, domain.ErrCodeForbidden, err.Error()); eerr == nil {
			if data, merr := env.Marshal(); merr == nil {
				conn.WriteMessage(websocket.TextMessage, data)
			}
		}
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

func (h *Handler) admissible(c *gin.Context, roomID string, role Role) bool {
	err := h.hub.CanJoin(roomID, role)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrHostTaken):
		response.Conflict(c, err.Error())
	case errors.Is(err, ErrRoomNotFound):
		response.NotFound(c, err.Error())
	default:
		response.Error(c, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error())
	}
	return false
}

// GetRoom returns the room's membership and readiness.
func (h *Handler) GetRoom(c *gin.Context) {
	info, ok := h.hub.Room(c.Param("id"))
	if !ok {
		response.NotFound(c, ErrRoomNotFound.Error())
		return
	}
	response.Success(c, info)
}
