package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthCheck reports database reachability and the emergency state.
func (h *Handlers) HealthCheck(c *gin.Context) {
	body := gin.H{"status": "healthy"}
	if h.DB != nil {
		sqlDB, err := h.DB.DB()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database connection failed"})
			return
		}
		if err := sqlDB.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database ping failed"})
			return
		}
	}
	if h.Emergency != nil {
		body["emergency"] = h.Emergency.Status().State
	}
	if h.Hub != nil {
		body["relayConnections"] = h.Hub.GetConnectionCount()
	}
	c.JSON(http.StatusOK, body)
}
