package dashboard

import (
	"context"
	"errors"
	"net/http"
	"time"

	"heating_controller/internal/logger"
	"heating_controller/internal/syncproto"

	"github.com/gin-gonic/gin"
)

const (
	errZoneNotCached  = "zone not in cache"
	errCacheExpired   = "no recent data from controller"
	errNoDataYet      = "no data from controller yet"
	errInvalidBodyPfx = "invalid body: "
)

// Commander relays commands to the controller over the sync link.
type Commander interface {
	SendCommand(ctx context.Context, commandType, zoneName string, commandData any) (*syncproto.CommandResponse, error)
	Connected() bool
	SequenceGaps() uint64
	LastSequence() uint64
	ReconnectBackoff() time.Duration
}

// Handler serves mirrored zone state and proxies writes to the
// controller.
type Handler struct {
	mirror *Mirror
	client Commander
	log    *logger.Logger
}

func NewHandler(mirror *Mirror, client Commander, log *logger.Logger) *Handler {
	return &Handler{mirror: mirror, client: client, log: log}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", h.health)

	api := router.Group("/api")
	{
		api.GET("/zones", h.listZones)
		api.GET("/zones/:zone", h.getZone)
		api.PUT("/zones/:zone", h.updateZone)
		api.PATCH("/zones/:zone", h.updateZone)
		api.POST("/zones/:zone/command", h.commandZone)
		api.POST("/zones/setpoint/uniform", h.uniformSetpoint)
		api.GET("/connection/status", h.connectionStatus)
	}

	return router
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"connected": h.client.Connected(),
		"cache":     h.mirror.Freshness(),
	})
}

// serveCache reports whether the mirror may answer reads right now,
// writing the error response when it may not.
func (h *Handler) serveCache(c *gin.Context) bool {
	switch h.mirror.Freshness() {
	case CacheEmpty:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": errNoDataYet})
		return false
	case CacheExpired:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": errCacheExpired})
		return false
	}
	return true
}

func (h *Handler) listZones(c *gin.Context) {
	if !h.serveCache(c) {
		return
	}
	c.JSON(http.StatusOK, h.mirror.Zones())
}

func (h *Handler) getZone(c *gin.Context) {
	if !h.serveCache(c) {
		return
	}
	zone, ok := h.mirror.Zone(c.Param("zone"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": errZoneNotCached})
		return
	}
	c.JSON(http.StatusOK, zone)
}

// Write requests are relayed to the controller; the cached state
// catches up through the sync stream.

type zoneUpdateBody struct {
	TargetSetpointF *float64 `json:"target_setpoint_f"`
	ControlMode     *string  `json:"control_mode"`
	OverrideMode    string   `json:"override_mode,omitempty"`
	OverrideUntil   string   `json:"override_until,omitempty"`
}

type zoneCommandBody struct {
	Command string `json:"command" binding:"required"`
}

type uniformSetpointBody struct {
	SetpointF *float64 `json:"setpoint_f" binding:"required"`
}

func (h *Handler) updateZone(c *gin.Context) {
	var body zoneUpdateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPfx + err.Error()})
		return
	}
	h.relay(c, syncproto.CommandZoneUpdate, c.Param("zone"), body)
}

func (h *Handler) commandZone(c *gin.Context) {
	var body zoneCommandBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPfx + err.Error()})
		return
	}
	h.relay(c, syncproto.CommandZoneCommand, c.Param("zone"), body)
}

func (h *Handler) uniformSetpoint(c *gin.Context) {
	var body uniformSetpointBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPfx + err.Error()})
		return
	}
	h.relay(c, syncproto.CommandUniformSetpoint, "", body)
}

// relay sends one command over the sync link and maps the in-band
// outcome onto HTTP.
func (h *Handler) relay(c *gin.Context, commandType, zoneName string, body any) {
	resp, err := h.client.SendCommand(c.Request.Context(), commandType, zoneName, body)
	switch {
	case errors.Is(err, ErrNotConnected):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	case errors.Is(err, syncproto.ErrCommandTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "controller did not answer in time"})
		return
	case err != nil:
		if h.log != nil {
			h.log.Errorw("command_relay_failed", "err", err, "command_type", commandType, "zone", zoneName)
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to reach controller"})
		return
	}
	if !resp.Success {
		c.JSON(http.StatusBadRequest, gin.H{"error": resp.Error})
		return
	}
	if len(resp.Result) == 0 {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	c.Data(http.StatusOK, "application/json", resp.Result)
}

func (h *Handler) connectionStatus(c *gin.Context) {
	status := gin.H{
		"connected":                 h.client.Connected(),
		"sequence_gaps":             h.client.SequenceGaps(),
		"last_sequence":             h.client.LastSequence(),
		"reconnect_backoff_seconds": h.client.ReconnectBackoff().Seconds(),
		"cache":                     h.mirror.Freshness(),
	}
	if age, ok := h.mirror.Age(); ok {
		status["last_update_age_seconds"] = age.Seconds()
	}
	c.JSON(http.StatusOK, status)
}
