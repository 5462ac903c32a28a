package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"heating_controller/internal/models"
	"heating_controller/internal/repository"
)

// ----------- Cache tuning -----------
const (
	historyCacheTTL      = 5 * time.Minute  // generic windows
	historyCacheDayTTL   = 6 * time.Hour    // finished days change slowly
	historyCacheHoursTTL = 10 * time.Minute // rolling windows
	historyBatchTTL      = 3 * time.Minute

	historyCacheCeiling = 200
	batchCacheCeiling   = 50

	maxSpanDays = 31
)

// HistoryQuery selects an event window for one or more zones. Day-anchored
// queries ("Day" set) take a local calendar day plus a span; otherwise the
// window is the trailing Hours.
type HistoryQuery struct {
	Hours      int
	Limit      int
	Day        string // "YYYY-MM-DD" in Timezone, empty for rolling window
	Timezone   string
	SpanDays   int
	MaxSamples int
}

func (q HistoryQuery) withDefaults(cfgTZ string) HistoryQuery {
	if q.Hours <= 0 {
		q.Hours = 24
	}
	if q.Timezone == "" {
		q.Timezone = cfgTZ
	}
	if q.SpanDays < 1 {
		q.SpanDays = 1
	}
	if q.SpanDays > maxSpanDays {
		q.SpanDays = maxSpanDays
	}
	if q.Limit <= 0 {
		q.Limit = estimateLimit(q)
	}
	if q.MaxSamples <= 0 {
		q.MaxSamples = estimateMaxSamples(q)
	}
	return q
}

type historyCacheEntry struct {
	expiresAt time.Time
	events    []models.EventLogEntry
}

type batchCacheEntry struct {
	expiresAt time.Time
	histories map[string][]models.EventLogEntry
}

// HistoryService answers history queries from TTL caches, falling back
// to the event log with downsampling on a miss.
type HistoryService struct {
	repos *repository.Repository
	cfg   Config
	log   *zap.SugaredLogger

	mu    sync.Mutex
	cache map[string]historyCacheEntry

	batchMu sync.Mutex
	batch   map[string]batchCacheEntry

	now func() time.Time
}

func NewHistoryService(repos *repository.Repository, cfg Config, log *zap.SugaredLogger) *HistoryService {
	return &HistoryService{
		repos: repos,
		cfg:   cfg,
		log:   log,
		cache: make(map[string]historyCacheEntry),
		batch: make(map[string]batchCacheEntry),
		now:   time.Now,
	}
}

// ZoneHistory returns the zone's events for the requested window,
// chronological and downsampled, with a synthetic SAMPLE for the
// current snapshot when it falls inside the window.
func (s *HistoryService) ZoneHistory(ctx context.Context, zoneName string, q HistoryQuery) ([]models.EventLogEntry, error) {
	q = q.withDefaults(s.cfg.Timezone)

	var (
		since, until time.Time
		hasUntil     bool
		cacheKey     string
		cacheTTL     time.Duration
	)

	if q.Day != "" {
		loc, err := time.LoadLocation(q.Timezone)
		if err != nil {
			return nil, fmt.Errorf("unknown timezone %q", q.Timezone)
		}
		dayStart, err := time.ParseInLocation("2006-01-02", q.Day, loc)
		if err != nil {
			return nil, fmt.Errorf("day must be formatted as YYYY-MM-DD")
		}

		if s.dayCacheEligible(dayStart, q.SpanDays, loc) {
			cacheKey = fmt.Sprintf("%s:D:%s:%d:%d:%d", zoneName, q.Day, q.SpanDays, q.Limit, q.MaxSamples)
			cacheTTL = historyCacheDayTTL
			if cached, ok := s.cachedHistory(cacheKey); ok {
				s.log.Infow("history fetch", "zone", zoneName, "day", q.Day, "span", q.SpanDays, "rows", len(cached), "cache", "hit")
				return cached, nil
			}
		}
		since = dayStart.UTC()
		until = dayStart.AddDate(0, 0, q.SpanDays).UTC()
		hasUntil = true
	} else {
		if hoursCacheEligible(q.Hours) {
			cacheKey = fmt.Sprintf("%s:H:%d", zoneName, q.Hours)
			cacheTTL = historyCacheHoursTTL
			if cached, ok := s.cachedHistory(cacheKey); ok {
				s.log.Infow("history fetch", "zone", zoneName, "hours", q.Hours, "rows", len(cached), "cache", "hit")
				return cached, nil
			}
		}
		since = s.now().UTC().Add(-time.Duration(q.Hours) * time.Hour).Truncate(time.Second)
	}

	filter := repository.EventFilter{
		Source:         zoneName,
		Since:          &since,
		Limit:          q.Limit,
		IncludeSamples: true,
	}
	if hasUntil {
		filter.Until = &until
	}
	history, err := s.repos.Events.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	if snap := s.syntheticCurrentSample(ctx, zoneName, since, until, hasUntil); snap != nil {
		history = append(history, *snap)
	}
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Timestamp.Before(history[j].Timestamp)
	})

	result := downsampleHistory(history, q.MaxSamples)
	if cacheKey != "" {
		s.storeHistory(cacheKey, result, cacheTTL)
	}
	s.log.Infow("history fetch",
		"zone", zoneName, "day", q.Day, "hours", q.Hours,
		"rows_raw", len(history), "rows_sent", len(result), "cache", "miss")
	return result, nil
}

// BatchHistory answers one query for several zones from its own cache.
func (s *HistoryService) BatchHistory(ctx context.Context, zones []string, q HistoryQuery) (map[string][]models.EventLogEntry, error) {
	q = q.withDefaults(s.cfg.Timezone)

	normalized := make([]string, 0, len(zones))
	seen := make(map[string]struct{}, len(zones))
	for _, z := range zones {
		z = strings.TrimSpace(z)
		if z == "" || strings.EqualFold(z, models.BoilerZone) {
			continue
		}
		if _, dup := seen[z]; dup {
			continue
		}
		seen[z] = struct{}{}
		normalized = append(normalized, z)
	}
	if len(normalized) == 0 {
		for _, z := range s.cfg.ZoneNames {
			if !strings.EqualFold(z, models.BoilerZone) {
				normalized = append(normalized, z)
			}
		}
	}
	sort.Strings(normalized)

	key := fmt.Sprintf("%s|%d|%d|%s|%s|%d|%d",
		strings.Join(normalized, ","), q.Hours, q.Limit, q.Day, q.Timezone, q.SpanDays, q.MaxSamples)

	s.batchMu.Lock()
	if entry, ok := s.batch[key]; ok {
		if entry.expiresAt.After(s.now()) {
			s.batchMu.Unlock()
			return entry.histories, nil
		}
		delete(s.batch, key)
	}
	s.batchMu.Unlock()

	histories := make(map[string][]models.EventLogEntry, len(normalized))
	for _, zone := range normalized {
		h, err := s.ZoneHistory(ctx, zone, q)
		if err != nil {
			return nil, err
		}
		histories[zone] = h
	}

	s.batchMu.Lock()
	s.batch[key] = batchCacheEntry{expiresAt: s.now().Add(historyBatchTTL), histories: histories}
	if len(s.batch) > batchCacheCeiling {
		now := s.now()
		for k, e := range s.batch {
			if e.expiresAt.Before(now) {
				delete(s.batch, k)
			}
		}
	}
	s.batchMu.Unlock()

	return histories, nil
}

// syntheticCurrentSample turns the zone's live snapshot into a SAMPLE
// row so charts reach the present moment, when UpdatedAt is inside the
// window.
func (s *HistoryService) syntheticCurrentSample(ctx context.Context, zoneName string, since, until time.Time, hasUntil bool) *models.EventLogEntry {
	z, err := s.repos.Zones.Get(ctx, zoneName)
	if err != nil {
		return nil
	}
	ts := z.UpdatedAt
	if ts.IsZero() {
		ts = s.now().UTC()
	}
	if ts.Before(since) {
		return nil
	}
	if hasUntil && !ts.Before(until) {
		return nil
	}

	var outside *float64
	if status, err := s.repos.System.Get(ctx); err == nil {
		outside = status.OutsideTemp
	}
	return &models.EventLogEntry{
		ID:          -1,
		Timestamp:   ts,
		Source:      zoneName,
		Event:       models.EventSample,
		RoomTemp:    z.RoomTemp,
		PipeTemp:    z.PipeTemp,
		OutsideTemp: outside,
	}
}

func (s *HistoryService) cachedHistory(key string) ([]models.EventLogEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[key]
	if !ok {
		return nil, false
	}
	if entry.expiresAt.Before(s.now()) {
		delete(s.cache, key)
		return nil, false
	}
	return entry.events, true
}

func (s *HistoryService) storeHistory(key string, events []models.EventLogEntry, ttl time.Duration) {
	if ttl <= 0 {
		ttl = historyCacheTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[key] = historyCacheEntry{expiresAt: s.now().Add(ttl), events: events}
	if len(s.cache) > historyCacheCeiling {
		now := s.now()
		for k, e := range s.cache {
			if e.expiresAt.Before(now) {
				delete(s.cache, k)
			}
		}
	}
}

// dayCacheEligible limits caching to windows that can no longer grow:
// recent finished days, scaled out with the span.
func (s *HistoryService) dayCacheEligible(dayStart time.Time, spanDays int, loc *time.Location) bool {
	today := s.now().In(loc)
	todayStart := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, loc)
	diffDays := int(todayStart.Sub(dayStart).Hours() / 24)
	switch {
	case diffDays < 0:
		return false
	case spanDays <= 1:
		return diffDays <= 7
	case spanDays >= 2 && spanDays <= 9:
		return diffDays <= 14
	case spanDays >= 28:
		return diffDays <= 62
	default:
		return false
	}
}

func hoursCacheEligible(hours int) bool {
	switch hours {
	case 24, 24 * 7, 24 * 14, 24 * 30:
		return true
	}
	return false
}

// downsampleHistory thins SAMPLE rows to at most maxSamples with an
// even stride, always keeping the first and last sample. ON/OFF rows
// are never dropped.
func downsampleHistory(history []models.EventLogEntry, maxSamples int) []models.EventLogEntry {
	if maxSamples <= 0 {
		return history
	}
	sampleIndices := make([]int, 0, len(history))
	for idx, e := range history {
		if e.Event == models.EventSample {
			sampleIndices = append(sampleIndices, idx)
		}
	}
	if len(sampleIndices) <= maxSamples {
		return history
	}

	selected := make(map[int]struct{}, maxSamples+2)
	step := float64(len(sampleIndices)) / float64(maxSamples)
	position := 0.0
	for i := 0; i < maxSamples; i++ {
		listIndex := int(position)
		if listIndex > len(sampleIndices)-1 {
			listIndex = len(sampleIndices) - 1
		}
		selected[sampleIndices[listIndex]] = struct{}{}
		position += step
	}
	selected[sampleIndices[0]] = struct{}{}
	selected[sampleIndices[len(sampleIndices)-1]] = struct{}{}

	filtered := make([]models.EventLogEntry, 0, len(history))
	for idx, e := range history {
		if e.Event == models.EventSample {
			if _, keep := selected[idx]; !keep {
				continue
			}
		}
		filtered = append(filtered, e)
	}
	return filtered
}

// estimateLimit scales the raw row fetch with the window size.
func estimateLimit(q HistoryQuery) int {
	hours := q.Hours
	if q.Day != "" {
		hours = q.SpanDays * 24
	}
	if hours < 1 {
		hours = 1
	}
	switch {
	case hours > 24 && hours < 168:
		return 6000
	case hours >= 168 && hours < 720:
		return 8000
	case hours >= 720:
		return 12000
	default:
		return 4000
	}
}

// estimateMaxSamples targets roughly 250 kept samples per day, clamped
// to a chart-friendly range.
func estimateMaxSamples(q HistoryQuery) int {
	days := 1.0
	if q.Day != "" {
		days = float64(q.SpanDays)
	} else if q.Hours > 0 {
		days = float64(q.Hours) / 24.0
	}
	if days < 1 {
		days = 1
	}
	est := int(days*250 + 0.5)
	if est < 800 {
		est = 800
	}
	if est > 4000 {
		est = 4000
	}
	return est
}
