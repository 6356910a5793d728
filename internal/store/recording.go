package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Session is a recording session of pose samples.
type Session struct {
	ID          string
	Graph       string
	CameraFront bool
	StartedAt   time.Time
	EndedAt     *time.Time

	// SampleCount is filled by ListSessions.
	SampleCount int
}

// PoseSample is a stored turn/tilt/nod reading.
type PoseSample struct {
	ID          int64
	SessionID   string
	Seq         uint64
	Turn        float64
	Tilt        float64
	Nod         float64
	TimestampMs int64
}

// RecordingRepository stores sessions and their pose samples.
type RecordingRepository struct {
	db *sql.DB
}

// Recordings returns the recording repository for this store.
func (s *Store) Recordings() *RecordingRepository {
	return &RecordingRepository{db: s.db}
}

// StartSession creates a new session with a fresh id.
func (r *RecordingRepository) StartSession(graph string, cameraFront bool) (*Session, error) {
	sess := &Session{
		ID:          uuid.New().String(),
		Graph:       graph,
		CameraFront: cameraFront,
		StartedAt:   time.Now(),
	}

	_, err := r.db.Exec(
		`INSERT INTO sessions (id, graph, camera_front, started_at) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.Graph, sess.CameraFront, sess.StartedAt,
	)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// EndSession marks a session as finished.
func (r *RecordingRepository) EndSession(id string) error {
	result, err := r.db.Exec(`UPDATE sessions SET ended_at = ? WHERE id = ?`, time.Now(), id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetSession retrieves a session by id.
func (r *RecordingRepository) GetSession(id string) (*Session, error) {
	sess := &Session{}
	var ended sql.NullTime

	err := r.db.QueryRow(
		`SELECT id, graph, camera_front, started_at, ended_at FROM sessions WHERE id = ?`,
		id,
	).Scan(&sess.ID, &sess.Graph, &sess.CameraFront, &sess.StartedAt, &ended)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if ended.Valid {
		sess.EndedAt = &ended.Time
	}
	return sess, nil
}

// ListSessions returns all sessions, newest first, with their sample counts.
func (r *RecordingRepository) ListSessions() ([]*Session, error) {
	rows, err := r.db.Query(
		`SELECT s.id, s.graph, s.camera_front, s.started_at, s.ended_at, COUNT(p.id)
		 FROM sessions s
		 LEFT JOIN pose_samples p ON p.session_id = s.id
		 GROUP BY s.id
		 ORDER BY s.started_at DESC, s.rowid DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess := &Session{}
		var ended sql.NullTime

		err := rows.Scan(&sess.ID, &sess.Graph, &sess.CameraFront, &sess.StartedAt, &ended, &sess.SampleCount)
		if err != nil {
			return nil, err
		}

		if ended.Valid {
			sess.EndedAt = &ended.Time
		}
		sessions = append(sessions, sess)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

// AddSamples appends samples to a session in a single transaction.
func (r *RecordingRepository) AddSamples(sessionID string, samples []PoseSample) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO pose_samples (session_id, seq, turn, tilt, nod, timestamp_ms) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range samples {
		if _, err := stmt.Exec(sessionID, int64(s.Seq), s.Turn, s.Tilt, s.Nod, s.TimestampMs); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Samples returns all samples of a session in sequence order.
func (r *RecordingRepository) Samples(sessionID string) ([]PoseSample, error) {
	rows, err := r.db.Query(
		`SELECT id, session_id, seq, turn, tilt, nod, timestamp_ms
		 FROM pose_samples
		 WHERE session_id = ?
		 ORDER BY seq`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []PoseSample
	for rows.Next() {
		var s PoseSample
		var seq int64
		if err := rows.Scan(&s.ID, &s.SessionID, &seq, &s.Turn, &s.Tilt, &s.Nod, &s.TimestampMs); err != nil {
			return nil, err
		}
		s.Seq = uint64(seq)
		samples = append(samples, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return samples, nil
}
