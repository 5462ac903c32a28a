package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"heating_controller/internal/repository"

	"github.com/gin-gonic/gin"
)

const (
	errSinceInvalid = "invalid 'since' time; use RFC3339 or YYYY-MM-DD"
	errUntilInvalid = "invalid 'until' time; use RFC3339 or YYYY-MM-DD"

	layoutDateTime = "2006-01-02 15:04:05"
	layoutDate     = "2006-01-02"

	defaultEventLimit = 200
	maxEventLimit     = 2000
)

// isDateOnly reports whether the query string represents a date without time component.
func isDateOnly(s string) bool {
	return !strings.ContainsAny(s, "T ")
}

// @Summary      List event log entries
// @Description  Filter by source zone and time range (RFC3339, 'YYYY-MM-DD HH:MM:SS', or 'YYYY-MM-DD'). A date-only 'until' is treated as end-of-day inclusive. SAMPLE rows are excluded unless include_samples=true.
// @Tags         events
// @Produce      json
// @Param        source           query  string  false  "Zone name"
// @Param        since            query  string  false  "Start of range"  example(2025-08-01)
// @Param        until            query  string  false  "End of range"    example(2025-08-31)
// @Param        limit            query  int     false  "Max rows (default 200, cap 2000)"
// @Param        include_samples  query  bool    false  "Include SAMPLE rows"
// @Success      200   {object}  map[string]interface{}  "count, events"
// @Failure      400   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/events [get]
func (h *Handler) getEvents(c *gin.Context) {
	filter := repository.EventFilter{
		Source:         c.Query("source"),
		Limit:          defaultEventLimit,
		IncludeSamples: c.Query("include_samples") == "true",
	}

	if qs := c.Query("since"); qs != "" {
		t, err := parseQueryTime(qs)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errSinceInvalid})
			return
		}
		filter.Since = &t
	}
	if qs := c.Query("until"); qs != "" {
		t, err := parseQueryTime(qs)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errUntilInvalid})
			return
		}
		// A bare date means the whole of that day.
		if isDateOnly(qs) {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		filter.Until = &t
	}
	if qs := c.Query("limit"); qs != "" {
		v, err := strconv.Atoi(qs)
		if err != nil || v < 1 || v > maxEventLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid 'limit': must be 1-%d", maxEventLimit)})
			return
		}
		filter.Limit = v
	}

	events, err := h.services.EventLog.List(c.Request.Context(), filter)
	if err != nil {
		h.respondServiceError(c, "events_list_failed", err, "source", filter.Source)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":  len(events),
		"events": events,
	})
}

func parseQueryTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, layoutDateTime, layoutDate} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf(
		"invalid time format %q, expected RFC3339, 'YYYY-MM-DD HH:MM:SS', or 'YYYY-MM-DD'", s)
}
