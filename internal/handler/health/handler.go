package health

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Connectivity reports whether the live feed is up.
type Connectivity interface {
	IsConnected() bool
}

type Handler struct {
	feed Connectivity
}

func NewHandler(feed Connectivity) *Handler {
	return &Handler{
		feed: feed,
	}
}

func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/health/live", h.LivenessCheck)
	r.GET("/health/ready", h.ReadinessCheck)
}

func (h *Handler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

func (h *Handler) ReadinessCheck(c *gin.Context) {
	if h.feed == nil || !h.feed.IsConnected() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "DOWN",
			"reason": "Event feed disconnected",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}
