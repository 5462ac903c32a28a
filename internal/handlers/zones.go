package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"heating_controller/internal/repository"
	"heating_controller/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	errZoneNotFound   = "zone not found"
	errListZones      = "failed to load zones"
	errInvalidBodyPfx = "invalid body: "
)

// Centralized error logging and response. Not-found maps to 404,
// duplicate names to 409, everything else surfaces as a bad request the
// way the service phrased it.
func (h *Handler) respondServiceError(c *gin.Context, logKey string, err error, kv ...interface{}) {
	if h.log != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": errZoneNotFound})
	case errors.Is(err, repository.ErrNameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

// Request DTO for setpoint and mode changes.
type zoneUpdateRequest struct {
	TargetSetpointF *float64 `json:"target_setpoint_f"`
	ControlMode     *string  `json:"control_mode"` // AUTO | MANUAL | THERMOSTAT
	OverrideMode    string   `json:"override_mode,omitempty"`
	OverrideUntil   string   `json:"override_until,omitempty"` // RFC3339, timed mode only
}

type zoneCommandRequest struct {
	Command string `json:"command" binding:"required"` // FORCE_ON | FORCE_OFF | AUTO | THERMOSTAT
}

type uniformSetpointRequest struct {
	SetpointF *float64 `json:"setpoint_f" binding:"required"`
}

type historyBatchRequest struct {
	Zones []string `json:"zones"`
}

// @Summary      List zones
// @Tags         zones
// @Produce      json
// @Param        include_boiler  query  bool  false  "Include the boiler pseudo-zone (default true)"
// @Success      200  {array}   models.ZoneState
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/zones [get]
func (h *Handler) listZones(c *gin.Context) {
	includeBoiler := c.DefaultQuery("include_boiler", "true") != "false"
	zones, err := h.services.Zones.ListZones(c.Request.Context(), includeBoiler)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("zones_list_failed", "err", err)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": errListZones})
		return
	}
	c.JSON(http.StatusOK, zones)
}

// @Summary      Get one zone
// @Tags         zones
// @Produce      json
// @Param        zone  path  string  true  "Zone name"
// @Success      200  {object}  models.ZoneState
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/zones/{zone} [get]
func (h *Handler) getZone(c *gin.Context) {
	zone, err := h.services.Zones.GetZone(c.Request.Context(), c.Param("zone"), true)
	if err != nil {
		h.respondServiceError(c, "zone_get_failed", err, "zone", c.Param("zone"))
		return
	}
	c.JSON(http.StatusOK, zone)
}

// @Summary      Update setpoint or control mode
// @Tags         zones
// @Accept       json
// @Produce      json
// @Param        zone  path  string             true  "Zone name"
// @Param        body  body  zoneUpdateRequest  true  "Fields to change"
// @Success      200   {object}  models.ZoneState
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/v1/zones/{zone} [put]
func (h *Handler) updateZone(c *gin.Context) {
	var req zoneUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPfx + err.Error()})
		return
	}
	zone, err := h.services.Zones.UpdateZone(c.Request.Context(), c.Param("zone"), service.ZoneUpdateRequest{
		TargetSetpoint: req.TargetSetpointF,
		ControlMode:    req.ControlMode,
		OverrideMode:   req.OverrideMode,
		OverrideUntil:  req.OverrideUntil,
	})
	if err != nil {
		h.respondServiceError(c, "zone_update_failed", err, "zone", c.Param("zone"))
		return
	}
	c.JSON(http.StatusOK, zone)
}

// @Summary      Run a manual zone command
// @Tags         zones
// @Accept       json
// @Produce      json
// @Param        zone  path  string              true  "Zone name"
// @Param        body  body  zoneCommandRequest  true  "Command"
// @Success      200   {object}  models.ZoneState
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/v1/zones/{zone}/command [post]
func (h *Handler) commandZone(c *gin.Context) {
	var req zoneCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPfx + err.Error()})
		return
	}
	zone, err := h.services.Zones.CommandZone(c.Request.Context(), c.Param("zone"), req.Command)
	if err != nil {
		h.respondServiceError(c, "zone_command_failed", err, "zone", c.Param("zone"), "command", req.Command)
		return
	}
	c.JSON(http.StatusOK, zone)
}

// @Summary      Set every zone to one setpoint
// @Tags         zones
// @Accept       json
// @Produce      json
// @Param        body  body  uniformSetpointRequest  true  "Setpoint"
// @Success      200   {array}   models.ZoneState
// @Failure      400   {object}  map[string]string
// @Router       /api/v1/zones/setpoint/uniform [post]
func (h *Handler) uniformSetpoint(c *gin.Context) {
	var req uniformSetpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPfx + err.Error()})
		return
	}
	zones, err := h.services.Zones.UniformSetpoint(c.Request.Context(), *req.SetpointF)
	if err != nil {
		h.respondServiceError(c, "uniform_setpoint_failed", err, "setpoint", *req.SetpointF)
		return
	}
	c.JSON(http.StatusOK, zones)
}

// @Summary      Resume saved weekly schedules
// @Tags         zones
// @Produce      json
// @Success      200  {array}   models.ZoneState
// @Failure      400  {object}  map[string]string
// @Router       /api/v1/zones/mode/schedule [post]
func (h *Handler) resumeSchedules(c *gin.Context) {
	zones, err := h.services.Zones.ResumeSchedules(c.Request.Context())
	if err != nil {
		h.respondServiceError(c, "resume_schedules_failed", err)
		return
	}
	c.JSON(http.StatusOK, zones)
}

// @Summary      Zone run statistics
// @Tags         zones
// @Produce      json
// @Param        window  query  string  false  "day, week, or month (default day)"
// @Param        day     query  string  false  "Anchor day YYYY-MM-DD (default now)"
// @Success      200  {array}   service.ZoneStatistics
// @Failure      400  {object}  map[string]string
// @Router       /api/v1/zones/stats [get]
func (h *Handler) zoneStats(c *gin.Context) {
	stats, err := h.services.History.Statistics(c.Request.Context(), c.DefaultQuery("window", "day"), c.Query("day"))
	if err != nil {
		h.respondServiceError(c, "zone_stats_failed", err, "window", c.Query("window"))
		return
	}
	c.JSON(http.StatusOK, stats)
}

// @Summary      Zone history for graphing
// @Tags         zones
// @Produce      json
// @Param        zone         path   string  true   "Zone name"
// @Param        hours        query  int     false  "Trailing window in hours (default 24)"
// @Param        limit        query  int     false  "Raw row fetch cap"
// @Param        day          query  string  false  "Calendar day YYYY-MM-DD"
// @Param        tz           query  string  false  "Timezone for day anchoring"
// @Param        span_days    query  int     false  "Days from the anchor day (1-31)"
// @Param        max_samples  query  int     false  "Downsampling ceiling"
// @Success      200  {array}   models.EventLogEntry
// @Failure      400  {object}  map[string]string
// @Router       /api/v1/zones/{zone}/history [get]
func (h *Handler) zoneHistory(c *gin.Context) {
	q, err := historyQueryFromContext(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	history, err := h.services.History.ZoneHistory(c.Request.Context(), c.Param("zone"), q)
	if err != nil {
		h.respondServiceError(c, "zone_history_failed", err, "zone", c.Param("zone"))
		return
	}
	c.JSON(http.StatusOK, history)
}

// @Summary      History for several zones at once
// @Tags         zones
// @Accept       json
// @Produce      json
// @Param        body  body  historyBatchRequest  true  "Zones to fetch (empty = all)"
// @Success      200   {object}  map[string]interface{}  "histories"
// @Failure      400   {object}  map[string]string
// @Router       /api/v1/zones/history/batch [post]
func (h *Handler) zoneHistoryBatch(c *gin.Context) {
	var req historyBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPfx + err.Error()})
		return
	}
	q, err := historyQueryFromContext(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	histories, err := h.services.History.BatchHistory(c.Request.Context(), req.Zones, q)
	if err != nil {
		h.respondServiceError(c, "zone_history_batch_failed", err, "zones", req.Zones)
		return
	}
	c.JSON(http.StatusOK, gin.H{"histories": histories})
}

// historyQueryFromContext collects the shared history query params.
// Absent values stay zero; the history service applies its defaults.
func historyQueryFromContext(c *gin.Context) (service.HistoryQuery, error) {
	q := service.HistoryQuery{
		Day:      c.Query("day"),
		Timezone: c.Query("tz"),
	}
	var err error
	if q.Hours, err = intQuery(c, "hours"); err != nil {
		return q, err
	}
	if q.Limit, err = intQuery(c, "limit"); err != nil {
		return q, err
	}
	if q.SpanDays, err = intQuery(c, "span_days"); err != nil {
		return q, err
	}
	if q.MaxSamples, err = intQuery(c, "max_samples"); err != nil {
		return q, err
	}
	return q, nil
}

func intQuery(c *gin.Context, name string) (int, error) {
	s := c.Query(name)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, errors.New("invalid '" + name + "': must be a non-negative integer")
	}
	return v, nil
}
