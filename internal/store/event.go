package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ayusman/facecue/internal/gesture"
)

// Event is a persisted gesture record.
type Event struct {
	ID          int64     `json:"id"`
	SessionID   string    `json:"session"`
	Type        string    `json:"type"`
	EAR         *float64  `json:"ear,omitempty"`
	MAR         *float64  `json:"mar,omitempty"`
	YawDeg      *float64  `json:"yawDeg,omitempty"`
	Direction   string    `json:"direction,omitempty"`
	TimestampMS int64     `json:"timestamp"`
	CreatedAt   time.Time `json:"createdAt"`
}

// EventFromRecord converts a transport record into a row.
func EventFromRecord(r gesture.Record) *Event {
	return &Event{
		SessionID:   r.Session,
		Type:        r.Type,
		EAR:         r.EAR,
		MAR:         r.MAR,
		YawDeg:      r.YawDeg,
		Direction:   r.Direction,
		TimestampMS: r.Timestamp,
	}
}

// Record converts the row back into a transport record.
func (e *Event) Record() gesture.Record {
	return gesture.Record{
		Type:      e.Type,
		EAR:       e.EAR,
		MAR:       e.MAR,
		YawDeg:    e.YawDeg,
		Direction: e.Direction,
		Timestamp: e.TimestampMS,
		Session:   e.SessionID,
	}
}

// EventFilter narrows List results. Zero values do not filter.
type EventFilter struct {
	Type      string
	SessionID string
	Since     int64 // epoch-ms, inclusive
	Until     int64 // epoch-ms, exclusive
	Limit     int
}

// DefaultEventLimit caps List when the filter sets no limit.
const DefaultEventLimit = 100

// EventRepository provides access to the events table.
type EventRepository struct {
	db *sql.DB
}

// Events returns the event repository for this store.
func (s *Store) Events() *EventRepository {
	return &EventRepository{db: s.db}
}

// Create inserts e and sets its ID and CreatedAt.
func (r *EventRepository) Create(ctx context.Context, e *Event) error {
	e.CreatedAt = time.Now()

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO events (session_id, type, ear, mar, yaw_deg, direction, timestamp_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.Type, nullFloat(e.EAR), nullFloat(e.MAR), nullFloat(e.YawDeg),
		e.Direction, e.TimestampMS, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = id
	return nil
}

// List returns matching events, newest first.
func (r *EventRepository) List(ctx context.Context, f EventFilter) ([]*Event, error) {
	where, args := f.where()
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, type, ear, mar, yaw_deg, direction, timestamp_ms, created_at
		 FROM events`+where+` ORDER BY timestamp_ms DESC, id DESC LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		var ear, mar, yaw sql.NullFloat64

		err := rows.Scan(&e.ID, &e.SessionID, &e.Type, &ear, &mar, &yaw, &e.Direction, &e.TimestampMS, &e.CreatedAt)
		if err != nil {
			return nil, err
		}

		e.EAR = floatPtr(ear)
		e.MAR = floatPtr(mar)
		e.YawDeg = floatPtr(yaw)
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

// CountByType returns the number of events per type matching f. Limit is ignored.
func (r *EventRepository) CountByType(ctx context.Context, f EventFilter) (map[string]int, error) {
	where, args := f.where()

	rows, err := r.db.QueryContext(ctx,
		`SELECT type, COUNT(*) FROM events`+where+` GROUP BY type`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		counts[typ] = n
	}

	return counts, rows.Err()
}

func (f EventFilter) where() (string, []any) {
	var clauses []string
	var args []any

	if f.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, f.Type)
	}
	if f.SessionID != "" {
		clauses = append(clauses, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.Since > 0 {
		clauses = append(clauses, "timestamp_ms >= ?")
		args = append(args, f.Since)
	}
	if f.Until > 0 {
		clauses = append(clauses, "timestamp_ms < ?")
		args = append(args, f.Until)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
