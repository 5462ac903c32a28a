package handlers

import (
	"net/http"
	"strconv"

	"heating_controller/internal/models"

	"github.com/gin-gonic/gin"
)

const errInvalidPresetID = "invalid preset id"

// Schedule entry as it appears in request bodies.
type scheduleEntryInput struct {
	DayOfWeek int     `json:"day_of_week"` // 0 = Monday
	StartTime string  `json:"start_time"`  // "HH:MM"
	EndTime   string  `json:"end_time"`    // "HH:MM"; equal to start for all-day
	SetpointF float64 `json:"setpoint_f"`
	Enabled   *bool   `json:"enabled,omitempty"` // default true
}

type scheduleUpdateRequest struct {
	Entries []scheduleEntryInput `json:"entries"`
}

type scheduleCloneRequest struct {
	TargetZones []string `json:"target_zones"`
}

type presetCreateRequest struct {
	Name        string               `json:"name" binding:"required"`
	Description string               `json:"description"`
	Entries     []scheduleEntryInput `json:"entries"`
}

type presetUpdateRequest struct {
	Name        *string              `json:"name"`
	Description *string              `json:"description"`
	Entries     []scheduleEntryInput `json:"entries"`
}

type presetApplyRequest struct {
	ZoneName string `json:"zone_name" binding:"required"`
}

func toScheduleEntries(inputs []scheduleEntryInput) []models.ScheduleEntry {
	entries := make([]models.ScheduleEntry, 0, len(inputs))
	for _, in := range inputs {
		enabled := true
		if in.Enabled != nil {
			enabled = *in.Enabled
		}
		entries = append(entries, models.ScheduleEntry{
			DayOfWeek: in.DayOfWeek,
			StartTime: in.StartTime,
			EndTime:   in.EndTime,
			Setpoint:  in.SetpointF,
			Enabled:   enabled,
		})
	}
	return entries
}

// @Summary      Get a zone's weekly schedule
// @Tags         schedule
// @Produce      json
// @Param        zone            path   string  true   "Zone name"
// @Param        include_global  query  bool    false  "Fall back to the global schedule when the zone has none"
// @Success      200  {array}   models.ScheduleEntry
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/zones/{zone}/schedule [get]
func (h *Handler) getZoneSchedule(c *gin.Context) {
	includeGlobal := c.Query("include_global") == "true"
	entries, err := h.services.Schedules.ZoneSchedule(c.Request.Context(), c.Param("zone"), includeGlobal)
	if err != nil {
		h.respondServiceError(c, "zone_schedule_get_failed", err, "zone", c.Param("zone"))
		return
	}
	c.JSON(http.StatusOK, entries)
}

// @Summary      Replace a zone's weekly schedule
// @Tags         schedule
// @Accept       json
// @Produce      json
// @Param        zone  path  string                 true  "Zone name"
// @Param        body  body  scheduleUpdateRequest  true  "Schedule entries"
// @Success      200   {array}   models.ScheduleEntry
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/v1/zones/{zone}/schedule [put]
func (h *Handler) updateZoneSchedule(c *gin.Context) {
	var req scheduleUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPfx + err.Error()})
		return
	}
	entries, err := h.services.Schedules.ReplaceZoneSchedule(c.Request.Context(), c.Param("zone"), toScheduleEntries(req.Entries))
	if err != nil {
		h.respondServiceError(c, "zone_schedule_update_failed", err, "zone", c.Param("zone"))
		return
	}
	c.JSON(http.StatusOK, entries)
}

// @Summary      Copy a zone's schedule onto other zones
// @Tags         schedule
// @Accept       json
// @Produce      json
// @Param        zone  path  string                true  "Source zone"
// @Param        body  body  scheduleCloneRequest  true  "Target zones"
// @Success      200   {array}   string  "Zones actually updated"
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/v1/zones/{zone}/schedule/clone [post]
func (h *Handler) cloneZoneSchedule(c *gin.Context) {
	var req scheduleCloneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPfx + err.Error()})
		return
	}
	updated, err := h.services.Schedules.CloneZoneSchedule(c.Request.Context(), c.Param("zone"), req.TargetZones)
	if err != nil {
		h.respondServiceError(c, "zone_schedule_clone_failed", err, "zone", c.Param("zone"))
		return
	}
	if updated == nil {
		updated = []string{}
	}
	c.JSON(http.StatusOK, updated)
}

// @Summary      Get the global fallback schedule
// @Tags         schedule
// @Produce      json
// @Success      200  {array}  models.ScheduleEntry
// @Router       /api/v1/schedule/default [get]
func (h *Handler) getDefaultSchedule(c *gin.Context) {
	entries, err := h.services.Schedules.GlobalSchedule(c.Request.Context())
	if err != nil {
		if h.log != nil {
			h.log.Errorw("default_schedule_get_failed", "err", err)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load schedule"})
		return
	}
	c.JSON(http.StatusOK, entries)
}

// @Summary      Replace the global fallback schedule
// @Tags         schedule
// @Accept       json
// @Produce      json
// @Param        body  body  scheduleUpdateRequest  true  "Schedule entries"
// @Success      200   {array}   models.ScheduleEntry
// @Failure      400   {object}  map[string]string
// @Router       /api/v1/schedule/default [put]
func (h *Handler) updateDefaultSchedule(c *gin.Context) {
	var req scheduleUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPfx + err.Error()})
		return
	}
	entries, err := h.services.Schedules.ReplaceGlobalSchedule(c.Request.Context(), toScheduleEntries(req.Entries))
	if err != nil {
		h.respondServiceError(c, "default_schedule_update_failed", err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// @Summary      List schedule presets
// @Tags         schedule
// @Produce      json
// @Success      200  {array}  models.SchedulePreset
// @Router       /api/v1/schedule/presets [get]
func (h *Handler) listPresets(c *gin.Context) {
	presets, err := h.services.Schedules.ListPresets(c.Request.Context())
	if err != nil {
		if h.log != nil {
			h.log.Errorw("presets_list_failed", "err", err)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load presets"})
		return
	}
	c.JSON(http.StatusOK, presets)
}

// @Summary      Create a schedule preset
// @Tags         schedule
// @Accept       json
// @Produce      json
// @Param        body  body  presetCreateRequest  true  "Preset"
// @Success      201   {object}  models.SchedulePreset
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /api/v1/schedule/presets [post]
func (h *Handler) createPreset(c *gin.Context) {
	var req presetCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPfx + err.Error()})
		return
	}
	preset, err := h.services.Schedules.CreatePreset(c.Request.Context(), req.Name, req.Description, toScheduleEntries(req.Entries))
	if err != nil {
		h.respondServiceError(c, "preset_create_failed", err, "name", req.Name)
		return
	}
	c.JSON(http.StatusCreated, preset)
}

// @Summary      Get one schedule preset
// @Tags         schedule
// @Produce      json
// @Param        id  path  int  true  "Preset id"
// @Success      200  {object}  models.SchedulePreset
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/schedule/presets/{id} [get]
func (h *Handler) getPreset(c *gin.Context) {
	id, ok := presetID(c)
	if !ok {
		return
	}
	preset, err := h.services.Schedules.GetPreset(c.Request.Context(), id)
	if err != nil {
		h.respondServiceError(c, "preset_get_failed", err, "id", id)
		return
	}
	c.JSON(http.StatusOK, preset)
}

// @Summary      Update a schedule preset
// @Tags         schedule
// @Accept       json
// @Produce      json
// @Param        id    path  int                  true  "Preset id"
// @Param        body  body  presetUpdateRequest  true  "Fields to change"
// @Success      200   {object}  models.SchedulePreset
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/v1/schedule/presets/{id} [put]
func (h *Handler) updatePreset(c *gin.Context) {
	id, ok := presetID(c)
	if !ok {
		return
	}
	var req presetUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPfx + err.Error()})
		return
	}
	var entries []models.ScheduleEntry
	if req.Entries != nil {
		entries = toScheduleEntries(req.Entries)
	}
	preset, err := h.services.Schedules.UpdatePreset(c.Request.Context(), id, req.Name, req.Description, entries)
	if err != nil {
		h.respondServiceError(c, "preset_update_failed", err, "id", id)
		return
	}
	c.JSON(http.StatusOK, preset)
}

// @Summary      Delete a schedule preset
// @Tags         schedule
// @Produce      json
// @Param        id  path  int  true  "Preset id"
// @Success      200  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/schedule/presets/{id} [delete]
func (h *Handler) deletePreset(c *gin.Context) {
	id, ok := presetID(c)
	if !ok {
		return
	}
	if err := h.services.Schedules.DeletePreset(c.Request.Context(), id); err != nil {
		h.respondServiceError(c, "preset_delete_failed", err, "id", id)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// @Summary      Apply a preset to one zone's schedule
// @Tags         schedule
// @Accept       json
// @Produce      json
// @Param        id    path  int                 true  "Preset id"
// @Param        body  body  presetApplyRequest  true  "Target zone"
// @Success      200   {array}   models.ScheduleEntry
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/v1/schedule/presets/{id}/apply [post]
func (h *Handler) applyPreset(c *gin.Context) {
	id, ok := presetID(c)
	if !ok {
		return
	}
	var req presetApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPfx + err.Error()})
		return
	}
	entries, err := h.services.Schedules.ApplyPreset(c.Request.Context(), id, req.ZoneName)
	if err != nil {
		h.respondServiceError(c, "preset_apply_failed", err, "id", id, "zone", req.ZoneName)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func presetID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidPresetID})
		return 0, false
	}
	return id, true
}
