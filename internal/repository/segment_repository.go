package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jengzang/fleet-records-backend-go/internal/database"
	"github.com/jengzang/fleet-records-backend-go/internal/models"
)

// SegmentRepository reads state segments
type SegmentRepository struct {
	db *database.DB
}

// NewSegmentRepository creates a new segment repository
func NewSegmentRepository(db *database.DB) *SegmentRepository {
	return &SegmentRepository{db: db}
}

// GetBySessions returns the segments of the given sessions ordered by session and ordinal
func (r *SegmentRepository) GetBySessions(ctx context.Context, sessionIDs []string) ([]models.StateSegment, error) {
	var out []models.StateSegment
	err := chunked(sessionIDs, func(ids []string) error {
		query := r.db.Rebind(`SELECT session_id, ordinal, state, source, start_ms, end_ms,
			start_lat, start_lon, end_lat, end_lon, distance_km
			FROM state_segments WHERE session_id IN (` + placeholders(len(ids)) + `)
			ORDER BY session_id, ordinal`)
		rows, err := r.db.QueryContext(ctx, query, stringArgs(ids)...)
		if err != nil {
			return fmt.Errorf("failed to query segments: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				seg                                models.StateSegment
				state                              int
				source                             string
				startMs, endMs                     int64
				startLat, startLon, endLat, endLon sql.NullFloat64
			)
			if err := rows.Scan(&seg.SessionID, &seg.Ordinal, &state, &source, &startMs, &endMs,
				&startLat, &startLon, &endLat, &endLon, &seg.DistanceKm); err != nil {
				return fmt.Errorf("failed to scan segment: %w", err)
			}
			seg.State = models.OperationalState(state)
			seg.Source = models.SegmentSource(source)
			seg.StartTime, seg.EndTime = fromMillis(startMs), fromMillis(endMs)
			seg.StartLocation = nullPoint(startLat, startLon)
			seg.EndLocation = nullPoint(endLat, endLon)
			out = append(out, seg)
		}
		return rows.Err()
	})
	return out, err
}
