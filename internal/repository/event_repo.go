package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"heating_controller/internal/models"
)

type EventSQLite struct {
	db *sql.DB
}

func NewEventSQLite(conn *sql.DB) *EventSQLite { return &EventSQLite{db: conn} }

// Append inserts an event. A zero Timestamp is replaced with now (UTC).
func (r *EventSQLite) Append(ctx context.Context, e models.EventLogEntry) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	} else {
		ts = ts.UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO EventLog (Timestamp, Source, Event, ZoneRoomTemp_F, PipeTemp_F, OutsideTemp_F, DurationSeconds)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ts,
		e.Source,
		string(e.Event),
		e.RoomTemp,
		e.PipeTemp,
		e.OutsideTemp,
		e.DurationSeconds,
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// List queries the event log with optional filters, newest first up to
// the limit, then returns rows in chronological order.
func (r *EventSQLite) List(ctx context.Context, f EventFilter) ([]models.EventLogEntry, error) {
	var (
		conds []string
		args  []any
	)
	if f.Source != "" {
		conds = append(conds, "Source = ?")
		args = append(args, f.Source)
	}
	if f.Since != nil {
		conds = append(conds, "Timestamp >= ?")
		args = append(args, f.Since.UTC())
	}
	if f.Until != nil {
		conds = append(conds, "Timestamp <= ?")
		args = append(args, f.Until.UTC())
	}
	if !f.IncludeSamples {
		conds = append(conds, "Event != 'SAMPLE'")
	}

	q := `SELECT Id, Timestamp, Source, Event, ZoneRoomTemp_F, PipeTemp_F, OutsideTemp_F, DurationSeconds
		FROM EventLog`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY Timestamp DESC"

	limit := f.Limit
	if limit <= 0 {
		limit = 500
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	out := make([]models.EventLogEntry, 0, 64)
	for rows.Next() {
		var (
			ev    models.EventLogEntry
			event string
		)
		if err := rows.Scan(
			&ev.ID,
			&ev.Timestamp,
			&ev.Source,
			&event,
			&ev.RoomTemp,
			&ev.PipeTemp,
			&ev.OutsideTemp,
			&ev.DurationSeconds,
		); err != nil {
			return nil, err
		}
		ev.Event = models.EventType(event)
		ev.Timestamp = ev.Timestamp.UTC()
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into ascending order for callers that chart the window.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// AppendSample persists a periodic temperature snapshot.
func (r *EventSQLite) AppendSample(ctx context.Context, s models.TemperatureSample) error {
	ts := s.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	} else {
		ts = ts.UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO TemperatureSamples (Timestamp, ZoneName, RoomTemp_F, PipeTemp_F, OutsideTemp_F)
		VALUES (?, ?, ?, ?, ?)`,
		ts, s.ZoneName, s.RoomTemp, s.PipeTemp, s.OutsideTemp,
	)
	if err != nil {
		return fmt.Errorf("append sample: %w", err)
	}
	return nil
}
