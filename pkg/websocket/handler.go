package websocket

import (
	"net/http"
	"time"

	"Raksha/pkg/errors"

	"github.com/gin-gonic/gin"
)

// Authorizer admits a caller to a room in the given role and names it.
type Authorizer func(c *gin.Context, alertID string, role Role) (actor string, err error)

// Handler exposes the relay over gin.
type Handler struct {
	hub       *Hub
	authorize Authorizer
}

func NewHandler(hub *Hub, authorize Authorizer) *Handler {
	return &Handler{hub: hub, authorize: authorize}
}

// RegisterRoutes mounts the stream endpoint and the hub diagnostics.
func RegisterRoutes(r gin.IRoutes, handler *Handler) {
	r.GET(RouteStream, handler.HandleStream)
	r.GET(RouteWebSocketStats, handler.GetStats)
	r.GET(RouteWebSocketHealth, handler.HealthCheck)
}

// HandleStream joins an alert room: /ws/stream/:alertID?role=viewer&token=...
func (h *Handler) HandleStream(c *gin.Context) {
	alertID := c.Param("alertID")
	if alertID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "alert id required"})
		return
	}
	role, err := ParseRole(c.DefaultQuery("role", string(RoleViewer)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	actor := string(role)
	if h.authorize != nil {
		actor, err = h.authorize(c, alertID, role)
		if err != nil {
			status := http.StatusUnauthorized
			if errors.IsKind(err, errors.KindPermissionDenied) {
				status = http.StatusForbidden
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
	}

	HandleWebSocket(h.hub, c.Writer, c.Request, alertID, role, actor)
}

// GetStats reports rooms and the effective config.
func (h *Handler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"total_connections": h.hub.GetConnectionCount(),
		"rooms":             h.hub.Rooms(),
		"config":            GetConfigSummary(h.hub.config),
	})
}

// HealthCheck reports whether the hub loop is running and how full it is.
func (h *Handler) HealthCheck(c *gin.Context) {
	if h.hub.ctx.Err() != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"error":   "relay hub closed",
			"details": h.hub.ctx.Err().Error(),
		})
		return
	}

	totalConnections := h.hub.GetConnectionCount()
	maxConnections := h.hub.config.MaxConnections

	status := "healthy"
	if totalConnections >= maxConnections*9/10 {
		status = "warning"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":            status,
		"total_connections": totalConnections,
		"max_connections":   maxConnections,
		"connection_usage":  float64(totalConnections) / float64(maxConnections) * 100,
		"rooms":             len(h.hub.Rooms()),
		"timestamp":         time.Now().Unix(),
	})
}
