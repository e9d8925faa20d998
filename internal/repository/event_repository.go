package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jengzang/fleet-records-backend-go/internal/database"
	"github.com/jengzang/fleet-records-backend-go/internal/models"
)

// EventRepository reads stability events
type EventRepository struct {
	db *database.DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *database.DB) *EventRepository {
	return &EventRepository{db: db}
}

const eventColumns = `e.id, e.session_id, e.vehicle_id, e.ts_ms, e.end_ms, e.severity, e.stability_index,
		e.sample_count, e.roll, e.pitch, e.acc_mag, e.lat, e.lon, e.speed_kmh`

// GetEvents retrieves events matching the filter, oldest first
func (r *EventRepository) GetEvents(ctx context.Context, filter models.EventFilter) ([]models.StabilityEvent, error) {
	var conditions []string
	var args []interface{}

	if filter.VehicleID != "" {
		conditions = append(conditions, "e.vehicle_id = ?")
		args = append(args, filter.VehicleID)
	}
	if filter.OrganizationID != "" {
		conditions = append(conditions, "s.organization_id = ?")
		args = append(args, filter.OrganizationID)
	}
	if filter.SessionID != "" {
		conditions = append(conditions, "e.session_id = ?")
		args = append(args, filter.SessionID)
	}
	if sev, ok := models.ParseSeverity(filter.MinSeverity); ok {
		conditions = append(conditions, "e.severity_rank >= ?")
		args = append(args, sev.Rank())
	}
	if filter.StartTime > 0 {
		conditions = append(conditions, "e.ts_ms >= ?")
		args = append(args, filter.StartTime*1000)
	}
	if filter.EndTime > 0 {
		conditions = append(conditions, "e.ts_ms < ?")
		args = append(args, filter.EndTime*1000)
	}
	if filter.Geotagged {
		conditions = append(conditions, "e.lat IS NOT NULL AND e.lon IS NOT NULL")
	}

	query := "SELECT " + eventColumns + " FROM stability_events e JOIN sessions s ON s.id = e.session_id"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY e.ts_ms, e.id"

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	if limit > 100000 {
		limit = 100000
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// GetBySessions returns every event of the given sessions
func (r *EventRepository) GetBySessions(ctx context.Context, sessionIDs []string) ([]models.StabilityEvent, error) {
	var out []models.StabilityEvent
	err := chunked(sessionIDs, func(ids []string) error {
		query := r.db.Rebind("SELECT " + eventColumns + " FROM stability_events e WHERE e.session_id IN (" +
			placeholders(len(ids)) + ") ORDER BY e.ts_ms, e.id")
		rows, err := r.db.QueryContext(ctx, query, stringArgs(ids)...)
		if err != nil {
			return fmt.Errorf("failed to query events: %w", err)
		}
		defer rows.Close()
		events, err := scanEvents(rows)
		out = append(out, events...)
		return err
	})
	return out, err
}

func scanEvents(rows *sql.Rows) ([]models.StabilityEvent, error) {
	var events []models.StabilityEvent
	for rows.Next() {
		var (
			e             models.StabilityEvent
			tsMs, endMs   int64
			severity      string
			lat, lon, spd sql.NullFloat64
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.VehicleID, &tsMs, &endMs, &severity, &e.StabilityIndex,
			&e.SampleCount, &e.Roll, &e.Pitch, &e.AccMag, &lat, &lon, &spd); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Timestamp, e.EndTime = fromMillis(tsMs), fromMillis(endMs)
		e.Severity = models.Severity(severity)
		e.Location = nullPoint(lat, lon)
		if spd.Valid {
			v := spd.Float64
			e.SpeedKmh = &v
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}
