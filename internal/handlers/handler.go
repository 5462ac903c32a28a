package handlers

import (
	"net/http"

	"heating_controller/internal/logger"
	"heating_controller/internal/service"
	"heating_controller/internal/syncproto"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires the controller's HTTP layer to services, the sync
// publisher, and logging.
type Handler struct {
	services  *service.Service
	publisher *syncproto.Publisher
	log       *logger.Logger
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, publisher *syncproto.Publisher, log *logger.Logger) *Handler {
	return &Handler{services: services, publisher: publisher, log: log}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", h.health)

	// Dashboard sync subscription (HTTP upgrade) on the same port.
	router.GET("/ws", h.wsConnect)

	api := router.Group("/api/v1")
	{
		h.registerZoneRoutes(api)
		h.registerScheduleRoutes(api)
		h.registerEventRoutes(api)
	}

	return router
}

func (h *Handler) registerZoneRoutes(api *gin.RouterGroup) {
	zones := api.Group("/zones")
	{
		zones.GET("", h.listZones)
		zones.GET("/stats", h.zoneStats)
		zones.POST("/setpoint/uniform", h.uniformSetpoint)
		zones.POST("/mode/schedule", h.resumeSchedules)
		zones.POST("/history/batch", h.zoneHistoryBatch)

		zones.GET("/:zone", h.getZone)
		zones.PUT("/:zone", h.updateZone)
		zones.PATCH("/:zone", h.updateZone)
		zones.POST("/:zone/command", h.commandZone)
		zones.GET("/:zone/history", h.zoneHistory)

		zones.GET("/:zone/schedule", h.getZoneSchedule)
		zones.PUT("/:zone/schedule", h.updateZoneSchedule)
		zones.POST("/:zone/schedule/clone", h.cloneZoneSchedule)
	}
}

func (h *Handler) registerScheduleRoutes(api *gin.RouterGroup) {
	sched := api.Group("/schedule")
	{
		sched.GET("/default", h.getDefaultSchedule)
		sched.PUT("/default", h.updateDefaultSchedule)

		sched.GET("/presets", h.listPresets)
		sched.POST("/presets", h.createPreset)
		sched.GET("/presets/:id", h.getPreset)
		sched.PUT("/presets/:id", h.updatePreset)
		sched.DELETE("/presets/:id", h.deletePreset)
		sched.POST("/presets/:id/apply", h.applyPreset)
	}
}

func (h *Handler) registerEventRoutes(api *gin.RouterGroup) {
	api.GET("/events", h.getEvents)
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	resp := gin.H{"status": "ok"}
	if h.publisher != nil {
		resp["connected_clients"] = h.publisher.ClientCount()
		resp["batch_queue_size"] = h.publisher.QueueDepth()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) wsConnect(c *gin.Context) {
	if h.publisher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sync publisher not running"})
		return
	}
	h.publisher.Serve(c.Writer, c.Request)
}
