package repository

import (
	"context"
	"fmt"

	"github.com/jengzang/fleet-records-backend-go/internal/database"
	"github.com/jengzang/fleet-records-backend-go/internal/models"
)

// TrackRepository reads stored GPS tracks
type TrackRepository struct {
	db *database.DB
}

// NewTrackRepository creates a new track repository
func NewTrackRepository(db *database.DB) *TrackRepository {
	return &TrackRepository{db: db}
}

// GetBySessions returns the time-ordered track of each session
func (r *TrackRepository) GetBySessions(ctx context.Context, sessionIDs []string) (map[string][]models.GPSSample, error) {
	out := make(map[string][]models.GPSSample, len(sessionIDs))
	err := chunked(sessionIDs, func(ids []string) error {
		query := r.db.Rebind(`SELECT session_id, ts_ms, lat, lon, speed_kmh, satellites
			FROM gps_points WHERE session_id IN (` + placeholders(len(ids)) + `)
			ORDER BY session_id, ts_ms`)
		rows, err := r.db.QueryContext(ctx, query, stringArgs(ids)...)
		if err != nil {
			return fmt.Errorf("failed to query gps points: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				sessionID string
				tsMs      int64
				f         models.GPSSample
			)
			if err := rows.Scan(&sessionID, &tsMs, &f.Latitude, &f.Longitude, &f.SpeedKmh, &f.Satellites); err != nil {
				return fmt.Errorf("failed to scan gps point: %w", err)
			}
			f.Timestamp = fromMillis(tsMs)
			f.FixQuality = 1 // Only valid fixes are stored
			out[sessionID] = append(out[sessionID], f)
		}
		return rows.Err()
	})
	return out, err
}
