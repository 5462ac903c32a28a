package handlers

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"heating_controller/internal/models"
	"heating_controller/internal/service"
)

func TestGetEvents_Defaults(t *testing.T) {
	me := &mockEventLog{events: []models.EventLogEntry{
		{ID: 1, Source: "Z1", Event: models.EventOn},
		{ID: 2, Source: "Z1", Event: models.EventOff},
	}}
	router := newTestRouter(&service.Service{EventLog: me})

	w := doRequest(t, router, http.MethodGet, "/api/v1/events", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Count  int                    `json:"count"`
		Events []models.EventLogEntry `json:"events"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 2 {
		t.Fatalf("count = %d, want 2", resp.Count)
	}
	if me.lastFilter.Limit != defaultEventLimit || me.lastFilter.IncludeSamples {
		t.Fatalf("filter = %+v, want default limit without samples", me.lastFilter)
	}
}

func TestGetEvents_Filters(t *testing.T) {
	me := &mockEventLog{}
	router := newTestRouter(&service.Service{EventLog: me})

	w := doRequest(t, router, http.MethodGet,
		"/api/v1/events?source=Z2&since=2026-08-01&until=2026-08-31&limit=50&include_samples=true", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d, body %s", w.Code, w.Body.String())
	}
	f := me.lastFilter
	if f.Source != "Z2" || f.Limit != 50 || !f.IncludeSamples {
		t.Fatalf("filter = %+v", f)
	}
	if f.Since == nil || !f.Since.Equal(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("since = %v", f.Since)
	}
	// Date-only until runs to the end of that day.
	if f.Until == nil || f.Until.Before(time.Date(2026, 8, 31, 23, 59, 59, 0, time.UTC)) {
		t.Fatalf("until = %v, want end of day", f.Until)
	}
}

func TestGetEvents_BadQuery(t *testing.T) {
	router := newTestRouter(&service.Service{EventLog: &mockEventLog{}})

	for _, target := range []string{
		"/api/v1/events?since=not-a-time",
		"/api/v1/events?until=31/08/2026",
		"/api/v1/events?limit=0",
		"/api/v1/events?limit=9999",
	} {
		if w := doRequest(t, router, http.MethodGet, target, nil); w.Code != http.StatusBadRequest {
			t.Errorf("%s: code = %d, want 400", target, w.Code)
		}
	}
}
