package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Session is the persisted summary of one landmark stream.
type Session struct {
	ID         string     `json:"id"`
	Source     string     `json:"source"`
	StartedAt  time.Time  `json:"startedAt"`
	EndedAt    *time.Time `json:"endedAt,omitempty"`
	Frames     int        `json:"frames"`
	Skipped    int        `json:"skipped"`
	Blinks     int        `json:"blinks"`
	MouthOpens int        `json:"mouthOpens"`
	HeadTurns  int        `json:"headTurns"`
}

// SessionRepository provides access to the sessions table.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

const sessionColumns = `id, source, started_at, ended_at, frames, skipped, blinks, mouth_opens, head_turns`

// Create inserts a new session row.
func (r *SessionRepository) Create(ctx context.Context, s *Session) error {
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Source, s.StartedAt, nullTime(s.EndedAt), s.Frames, s.Skipped, s.Blinks, s.MouthOpens, s.HeadTurns,
	)
	return err
}

// Update overwrites the counters and end time of an existing session.
func (r *SessionRepository) Update(ctx context.Context, s *Session) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ?, frames = ?, skipped = ?, blinks = ?, mouth_opens = ?, head_turns = ?
		 WHERE id = ?`,
		nullTime(s.EndedAt), s.Frames, s.Skipped, s.Blinks, s.MouthOpens, s.HeadTurns, s.ID,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)

	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s, nil
}

// List returns the most recent sessions first. A non-positive limit returns all.
func (r *SessionRepository) List(ctx context.Context, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	s := &Session{}
	var ended sql.NullTime

	err := row.Scan(&s.ID, &s.Source, &s.StartedAt, &ended, &s.Frames, &s.Skipped, &s.Blinks, &s.MouthOpens, &s.HeadTurns)
	if err != nil {
		return nil, err
	}

	if ended.Valid {
		t := ended.Time
		s.EndedAt = &t
	}
	return s, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
