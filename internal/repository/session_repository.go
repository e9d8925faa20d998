package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jengzang/fleet-records-backend-go/internal/database"
	"github.com/jengzang/fleet-records-backend-go/internal/models"
)

// SessionRepository handles database operations for sessions and their
// per-session artifacts
type SessionRepository struct {
	db  *database.DB
	now func() time.Time
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{db: db, now: time.Now}
}

const sessionColumns = `id, vehicle_id, organization_id, sequence, start_ms, end_ms,
		gps_missing, beacon_missing, valid, invalid_reason, files_json, samples_json, created_ms`

// Exists reports whether a session with the key is already stored
func (r *SessionRepository) Exists(ctx context.Context, key models.SessionKey) (bool, error) {
	query := r.db.Rebind(`SELECT 1 FROM sessions WHERE vehicle_id = ? AND start_ms = ? AND sequence = ?`)
	var one int
	err := r.db.QueryRowContext(ctx, query, key.VehicleID, toMillis(key.Start), key.Sequence).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up session: %w", err)
	}
	return true, nil
}

// Save stores a session with its segments, events and track in one
// transaction. It returns false without writing anything when the session
// key already exists.
func (r *SessionRepository) Save(ctx context.Context, s models.Session, segments []models.StateSegment, events []models.StabilityEvent, track []models.GPSSample) (bool, error) {
	files, err := json.Marshal(s.Files)
	if err != nil {
		return false, fmt.Errorf("failed to encode session files: %w", err)
	}
	samples, err := json.Marshal(s.SampleCounts)
	if err != nil {
		return false, fmt.Errorf("failed to encode sample counts: %w", err)
	}
	created := s.CreatedAt
	if created.IsZero() {
		created = r.now()
	}

	inserted := false
	err = r.db.Transaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, r.db.Rebind(`INSERT INTO sessions (`+sessionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING`),
			s.ID, s.VehicleID, s.OrganizationID, s.Sequence, toMillis(s.StartTime), toMillis(s.EndTime),
			boolInt(s.GPSMissing), boolInt(s.BeaconMissing), boolInt(s.Valid), s.InvalidReason,
			string(files), string(samples), toMillis(created),
		)
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if n == 0 {
			return nil
		}
		inserted = true

		if err := insertSegments(ctx, r.db, tx, segments); err != nil {
			return err
		}
		if err := insertEvents(ctx, r.db, tx, events); err != nil {
			return err
		}
		return insertTrack(ctx, r.db, tx, s.ID, track)
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

func insertSegments(ctx context.Context, db *database.DB, tx *sql.Tx, segments []models.StateSegment) error {
	if len(segments) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, db.Rebind(`INSERT INTO state_segments
		(session_id, ordinal, state, source, start_ms, end_ms, start_lat, start_lon, end_lat, end_lon, distance_km)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`))
	if err != nil {
		return fmt.Errorf("failed to prepare segment insert: %w", err)
	}
	defer stmt.Close()

	for _, seg := range segments {
		startLat, startLon := pointArgs(seg.StartLocation)
		endLat, endLon := pointArgs(seg.EndLocation)
		if _, err := stmt.ExecContext(ctx,
			seg.SessionID, seg.Ordinal, int(seg.State), string(seg.Source),
			toMillis(seg.StartTime), toMillis(seg.EndTime),
			startLat, startLon, endLat, endLon, seg.DistanceKm,
		); err != nil {
			return fmt.Errorf("failed to insert segment %d: %w", seg.Ordinal, err)
		}
	}
	return nil
}

func insertEvents(ctx context.Context, db *database.DB, tx *sql.Tx, events []models.StabilityEvent) error {
	if len(events) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, db.Rebind(`INSERT INTO stability_events
		(id, session_id, vehicle_id, ts_ms, end_ms, severity, severity_rank, stability_index, sample_count,
		 roll, pitch, acc_mag, lat, lon, speed_kmh)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`))
	if err != nil {
		return fmt.Errorf("failed to prepare event insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		lat, lon := pointArgs(e.Location)
		var speed any
		if e.SpeedKmh != nil {
			speed = *e.SpeedKmh
		}
		if _, err := stmt.ExecContext(ctx,
			e.ID, e.SessionID, e.VehicleID, toMillis(e.Timestamp), toMillis(e.EndTime),
			string(e.Severity), e.Severity.Rank(), e.StabilityIndex, e.SampleCount,
			e.Roll, e.Pitch, e.AccMag, lat, lon, speed,
		); err != nil {
			return fmt.Errorf("failed to insert event %s: %w", e.ID, err)
		}
	}
	return nil
}

func insertTrack(ctx context.Context, db *database.DB, tx *sql.Tx, sessionID string, track []models.GPSSample) error {
	if len(track) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, db.Rebind(`INSERT INTO gps_points
		(session_id, ts_ms, lat, lon, speed_kmh, satellites)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`))
	if err != nil {
		return fmt.Errorf("failed to prepare track insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range track {
		if _, err := stmt.ExecContext(ctx, sessionID, toMillis(f.Timestamp), f.Latitude, f.Longitude, f.SpeedKmh, f.Satellites); err != nil {
			return fmt.Errorf("failed to insert gps point: %w", err)
		}
	}
	return nil
}

// GetSessions retrieves sessions with filtering and pagination
func (r *SessionRepository) GetSessions(ctx context.Context, filter models.SessionFilter) ([]models.Session, int64, error) {
	var conditions []string
	var args []interface{}

	if filter.VehicleID != "" {
		conditions = append(conditions, "vehicle_id = ?")
		args = append(args, filter.VehicleID)
	}
	if filter.OrganizationID != "" {
		conditions = append(conditions, "organization_id = ?")
		args = append(args, filter.OrganizationID)
	}
	if filter.StartTime > 0 {
		conditions = append(conditions, "end_ms > ?")
		args = append(args, filter.StartTime*1000)
	}
	if filter.EndTime > 0 {
		conditions = append(conditions, "start_ms < ?")
		args = append(args, filter.EndTime*1000)
	}
	if filter.OnlyValid {
		conditions = append(conditions, "valid = 1")
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, r.db.Rebind("SELECT COUNT(*) FROM sessions"+where), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count sessions: %w", err)
	}

	// Add pagination
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 100
	}
	if filter.PageSize > 1000 {
		filter.PageSize = 1000
	}
	offset := (filter.Page - 1) * filter.PageSize

	query := "SELECT " + sessionColumns + " FROM sessions" + where + " ORDER BY start_ms DESC, sequence DESC LIMIT ? OFFSET ?"
	args = append(args, filter.PageSize, offset)

	sessions, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return sessions, total, nil
}

// GetSessionByID retrieves a single session, nil when absent
func (r *SessionRepository) GetSessionByID(ctx context.Context, id string) (*models.Session, error) {
	sessions, err := r.query(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	return &sessions[0], nil
}

// FindForKPI returns every valid session overlapping the filter range
func (r *SessionRepository) FindForKPI(ctx context.Context, filter models.KPIFilter) ([]models.Session, error) {
	conditions := []string{"valid = 1"}
	var args []interface{}

	if len(filter.VehicleIDs) > 0 {
		conditions = append(conditions, "vehicle_id IN ("+placeholders(len(filter.VehicleIDs))+")")
		for _, v := range filter.VehicleIDs {
			args = append(args, v)
		}
	}
	if filter.OrganizationID != "" {
		conditions = append(conditions, "organization_id = ?")
		args = append(args, filter.OrganizationID)
	}
	if filter.StartTime > 0 {
		conditions = append(conditions, "end_ms > ?")
		args = append(args, filter.StartTime*1000)
	}
	if filter.EndTime > 0 {
		conditions = append(conditions, "start_ms < ?")
		args = append(args, filter.EndTime*1000)
	}

	query := "SELECT " + sessionColumns + " FROM sessions WHERE " + strings.Join(conditions, " AND ") + " ORDER BY start_ms"
	return r.query(ctx, query, args...)
}

func (r *SessionRepository) query(ctx context.Context, query string, args ...interface{}) ([]models.Session, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var (
			s                         models.Session
			startMs, endMs, createdMs int64
			gpsMissing, beaconMissing int
			valid                     int
			files, samples            string
		)
		if err := rows.Scan(
			&s.ID, &s.VehicleID, &s.OrganizationID, &s.Sequence, &startMs, &endMs,
			&gpsMissing, &beaconMissing, &valid, &s.InvalidReason, &files, &samples, &createdMs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		s.StartTime, s.EndTime, s.CreatedAt = fromMillis(startMs), fromMillis(endMs), fromMillis(createdMs)
		s.GPSMissing, s.BeaconMissing, s.Valid = gpsMissing != 0, beaconMissing != 0, valid != 0
		if err := json.Unmarshal([]byte(files), &s.Files); err != nil {
			return nil, fmt.Errorf("failed to decode files of session %s: %w", s.ID, err)
		}
		if err := json.Unmarshal([]byte(samples), &s.SampleCounts); err != nil {
			return nil, fmt.Errorf("failed to decode sample counts of session %s: %w", s.ID, err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}
