package repository

import (
	"database/sql"
	"strings"
	"time"

	"github.com/jengzang/fleet-records-backend-go/internal/models"
)

// Times are stored as unix milliseconds
func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func pointArgs(p *models.GeoPoint) (any, any) {
	if p == nil {
		return nil, nil
	}
	return p.Lat, p.Lon
}

func nullPoint(lat, lon sql.NullFloat64) *models.GeoPoint {
	if !lat.Valid || !lon.Valid {
		return nil
	}
	return &models.GeoPoint{Lat: lat.Float64, Lon: lon.Float64}
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

// maxInArgs bounds the size of one IN (...) list
const maxInArgs = 500

func chunked(ids []string, fn func([]string) error) error {
	for start := 0; start < len(ids); start += maxInArgs {
		end := min(start+maxInArgs, len(ids))
		if err := fn(ids[start:end]); err != nil {
			return err
		}
	}
	return nil
}
