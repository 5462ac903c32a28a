package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"heating_controller/internal/models"
)

func newTestHistoryService(zones ...models.ZoneState) (*HistoryService, *fakeRepos) {
	repos, fakes := newFakeRepos(zones...)
	svc := NewHistoryService(repos, testConfig(), zap.NewNop().Sugar())
	return svc, fakes
}

func seedEvents(f *fakeRepos, zone string, base time.Time, samples int) {
	ctx := context.Background()
	for i := 0; i < samples; i++ {
		_ = f.events.Append(ctx, models.EventLogEntry{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Source:    zone,
			Event:     models.EventSample,
			RoomTemp:  f64(65 + float64(i%10)/10),
		})
	}
}

func TestDownsampleHistory(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var history []models.EventLogEntry
	for i := 0; i < 100; i++ {
		history = append(history, models.EventLogEntry{
			ID: int64(i), Timestamp: base.Add(time.Duration(i) * time.Minute), Event: models.EventSample,
		})
		if i%25 == 10 {
			history = append(history, models.EventLogEntry{
				ID: int64(1000 + i), Timestamp: base.Add(time.Duration(i)*time.Minute + time.Second), Event: models.EventOn,
			})
		}
	}

	const maxSamples = 20
	got := downsampleHistory(history, maxSamples)

	var keptSamples, keptTransitions int
	for _, e := range got {
		if e.Event == models.EventSample {
			keptSamples++
		} else {
			keptTransitions++
		}
	}

	if keptTransitions != 4 {
		t.Fatalf("transitions kept = %d, want all 4", keptTransitions)
	}
	if keptSamples > maxSamples+2 {
		t.Fatalf("samples kept = %d, want <= %d", keptSamples, maxSamples+2)
	}
	if got[0].ID != 0 {
		t.Errorf("first SAMPLE dropped, got id %d", got[0].ID)
	}
	if got[len(got)-1].ID != 99 {
		t.Errorf("last SAMPLE dropped, got id %d", got[len(got)-1].ID)
	}
}

func TestDownsampleHistory_UnderLimitUntouched(t *testing.T) {
	base := time.Now().UTC()
	var history []models.EventLogEntry
	for i := 0; i < 10; i++ {
		history = append(history, models.EventLogEntry{Timestamp: base, Event: models.EventSample})
	}
	if got := downsampleHistory(history, 50); len(got) != 10 {
		t.Fatalf("len = %d, want 10 untouched", len(got))
	}
}

func TestZoneHistory_AppendsSyntheticCurrentSample(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	z := autoZone("Z1", f64(68.5), f64(70))
	z.UpdatedAt = now.Add(-time.Minute)
	svc, fakes := newTestHistoryService(z)
	seedEvents(fakes, "Z1", now.Add(-2*time.Hour), 5)

	got, err := svc.ZoneHistory(ctx, "Z1", HistoryQuery{Hours: 3})
	if err != nil {
		t.Fatalf("ZoneHistory: %v", err)
	}
	if len(got) != 6 {
		t.Fatalf("rows = %d, want 5 stored + 1 synthetic", len(got))
	}
	last := got[len(got)-1]
	if last.ID != -1 || last.Event != models.EventSample {
		t.Fatalf("last row = %+v, want synthetic SAMPLE with id -1", last)
	}
	if last.RoomTemp == nil || *last.RoomTemp != 68.5 {
		t.Errorf("synthetic temp = %v, want 68.5", last.RoomTemp)
	}
}

func TestZoneHistory_SyntheticSampleSkippedOutsideWindow(t *testing.T) {
	ctx := context.Background()
	z := autoZone("Z1", f64(68.5), f64(70))
	z.UpdatedAt = time.Now().UTC().Add(-48 * time.Hour)
	svc, fakes := newTestHistoryService(z)
	seedEvents(fakes, "Z1", time.Now().UTC().Add(-2*time.Hour), 3)

	got, err := svc.ZoneHistory(ctx, "Z1", HistoryQuery{Hours: 3})
	if err != nil {
		t.Fatalf("ZoneHistory: %v", err)
	}
	for _, e := range got {
		if e.ID == -1 {
			t.Fatal("synthetic sample leaked into window it does not belong to")
		}
	}
}

func TestZoneHistory_RollingWindowCacheHit(t *testing.T) {
	ctx := context.Background()
	z := autoZone("Z1", f64(68.5), f64(70))
	z.UpdatedAt = time.Now().UTC().Add(-30 * time.Minute)
	svc, fakes := newTestHistoryService(z)
	seedEvents(fakes, "Z1", time.Now().UTC().Add(-5*time.Hour), 10)

	first, err := svc.ZoneHistory(ctx, "Z1", HistoryQuery{Hours: 24})
	if err != nil {
		t.Fatalf("ZoneHistory: %v", err)
	}

	// New events do not show up while the 24h window is cached.
	seedEvents(fakes, "Z1", time.Now().UTC().Add(-time.Hour), 10)
	second, err := svc.ZoneHistory(ctx, "Z1", HistoryQuery{Hours: 24})
	if err != nil {
		t.Fatalf("ZoneHistory: %v", err)
	}
	if len(second) != len(first) {
		t.Fatalf("cached rows = %d, want %d", len(second), len(first))
	}
}

func TestZoneHistory_OddHoursNotCached(t *testing.T) {
	ctx := context.Background()
	z := autoZone("Z1", f64(68.5), f64(70))
	z.UpdatedAt = time.Now().UTC().Add(-30 * time.Minute)
	svc, fakes := newTestHistoryService(z)
	seedEvents(fakes, "Z1", time.Now().UTC().Add(-5*time.Hour), 4)

	first, err := svc.ZoneHistory(ctx, "Z1", HistoryQuery{Hours: 7})
	if err != nil {
		t.Fatalf("ZoneHistory: %v", err)
	}
	seedEvents(fakes, "Z1", time.Now().UTC().Add(-90*time.Minute), 4)
	second, err := svc.ZoneHistory(ctx, "Z1", HistoryQuery{Hours: 7})
	if err != nil {
		t.Fatalf("ZoneHistory: %v", err)
	}
	if len(second) <= len(first) {
		t.Fatalf("odd-hours window must not be cached: %d then %d rows", len(first), len(second))
	}
}

func TestZoneHistory_CacheExpiry(t *testing.T) {
	ctx := context.Background()
	z := autoZone("Z1", f64(68.5), f64(70))
	z.UpdatedAt = time.Now().UTC().Add(-30 * time.Minute)
	svc, fakes := newTestHistoryService(z)
	seedEvents(fakes, "Z1", time.Now().UTC().Add(-5*time.Hour), 5)

	if _, err := svc.ZoneHistory(ctx, "Z1", HistoryQuery{Hours: 24}); err != nil {
		t.Fatalf("ZoneHistory: %v", err)
	}

	// Move the clock past the rolling-window TTL.
	offset := historyCacheHoursTTL + time.Minute
	svc.now = func() time.Time { return time.Now().Add(offset) }

	seedEvents(fakes, "Z1", time.Now().UTC().Add(-time.Hour), 5)
	got, err := svc.ZoneHistory(ctx, "Z1", HistoryQuery{Hours: 24})
	if err != nil {
		t.Fatalf("ZoneHistory: %v", err)
	}
	if len(got) <= 5 {
		t.Fatalf("rows = %d, want refreshed data after TTL", len(got))
	}
}

func TestDayCacheEligibility(t *testing.T) {
	svc, _ := newTestHistoryService()
	loc := time.UTC
	today := time.Now().In(loc)
	day := func(offset int) time.Time {
		return time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, -offset)
	}

	tests := []struct {
		name     string
		dayStart time.Time
		span     int
		want     bool
	}{
		{"yesterday single day", day(1), 1, true},
		{"a week ago single day", day(7), 1, true},
		{"eight days ago single day", day(8), 1, false},
		{"future day", day(-1), 1, false},
		{"ten days ago week span", day(10), 7, true},
		{"fifteen days ago week span", day(15), 7, false},
		{"two months ago month span", day(60), 28, true},
		{"too old month span", day(63), 28, false},
		{"span between nine and twenty-eight", day(1), 15, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := svc.dayCacheEligible(tt.dayStart, tt.span, loc); got != tt.want {
				t.Errorf("dayCacheEligible(%v, %d) = %v, want %v", tt.dayStart, tt.span, got, tt.want)
			}
		})
	}
}

func TestBatchHistory_SharesCacheAndSkipsBoiler(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	z1 := autoZone("Z1", f64(68.5), f64(70))
	z1.UpdatedAt = now.Add(-time.Minute)
	z2 := autoZone("Z2", f64(66.0), f64(70))
	z2.UpdatedAt = now.Add(-time.Minute)
	svc, fakes := newTestHistoryService(z1, z2)
	seedEvents(fakes, "Z1", now.Add(-2*time.Hour), 3)
	seedEvents(fakes, "Z2", now.Add(-2*time.Hour), 3)

	got, err := svc.BatchHistory(ctx, []string{"Z1", "Boiler", "Z2", "Z1"}, HistoryQuery{Hours: 24})
	if err != nil {
		t.Fatalf("BatchHistory: %v", err)
	}
	if _, ok := got["Boiler"]; ok {
		t.Fatal("boiler pseudo-zone must be excluded from batches")
	}
	if len(got) != 2 {
		t.Fatalf("zones in batch = %d, want 2", len(got))
	}

	// Same query again comes from the batch cache.
	seedEvents(fakes, "Z1", now.Add(-time.Hour), 3)
	again, err := svc.BatchHistory(ctx, []string{"Z1", "Z2"}, HistoryQuery{Hours: 24})
	if err != nil {
		t.Fatalf("BatchHistory: %v", err)
	}
	if len(again["Z1"]) != len(got["Z1"]) {
		t.Fatalf("batch cache miss: %d then %d rows", len(got["Z1"]), len(again["Z1"]))
	}
}

func TestEstimateLimits(t *testing.T) {
	tests := []struct {
		q    HistoryQuery
		want int
	}{
		{HistoryQuery{Hours: 24}, 4000},
		{HistoryQuery{Hours: 72}, 6000},
		{HistoryQuery{Hours: 24 * 7}, 8000},
		{HistoryQuery{Hours: 24 * 30}, 12000},
		{HistoryQuery{Day: "2026-03-01", SpanDays: 2}, 6000},
		{HistoryQuery{Day: "2026-03-01", SpanDays: 31}, 12000},
	}
	for _, tt := range tests {
		if got := estimateLimit(tt.q); got != tt.want {
			t.Errorf("estimateLimit(%+v) = %d, want %d", tt.q, got, tt.want)
		}
	}

	if got := estimateMaxSamples(HistoryQuery{Hours: 24}); got != 800 {
		t.Errorf("estimateMaxSamples(24h) = %d, want floor 800", got)
	}
	if got := estimateMaxSamples(HistoryQuery{Day: "2026-03-01", SpanDays: 31}); got != 4000 {
		t.Errorf("estimateMaxSamples(31d) = %d, want ceiling 4000", got)
	}
	if got := estimateMaxSamples(HistoryQuery{Day: "2026-03-01", SpanDays: 7}); got != 1750 {
		t.Errorf("estimateMaxSamples(7d) = %d, want 1750", got)
	}
}
