package ingest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jengzang/fleet-records-backend-go/internal/models"
)

// TimestampLayout is the date-time layout used by stability, CAN and beacon rows
// and by identity headers. Fractional seconds are accepted on parse.
const TimestampLayout = "2006-01-02 15:04:05"

var (
	// ErrUnknownHeader is returned when the first line is not a recognised identity header
	ErrUnknownHeader = errors.New("unrecognised source header")
	// ErrModalityMismatch is returned when a file is opened as the wrong modality
	ErrModalityMismatch = errors.New("file modality does not match reader")
	// ErrEmptyFile is returned when a file has no header line
	ErrEmptyFile = errors.New("empty file")
)

// headerTags maps identity-header tags to modalities
var headerTags = map[string]models.Modality{
	"ESTABILIDAD": models.ModalityStability,
	"STABILITY":   models.ModalityStability,
	"GPS":         models.ModalityGPS,
	"CAN":         models.ModalityCAN,
	"ROTATIVO":    models.ModalityBeacon,
	"BEACON":      models.ModalityBeacon,
}

// Header is the source identity line of a log file:
// TAG;YYYY-MM-DD HH:MM:SS;VEHICLE;extra...
type Header struct {
	Tag       string
	Modality  models.Modality
	Start     time.Time
	VehicleID string
	Extra     []string
}

// Day returns the calendar day of the header start in its own location
func (h Header) Day() string {
	return h.Start.Format("2006-01-02")
}

// ParseHeader parses an identity header line
func ParseHeader(line string, loc *time.Location) (Header, error) {
	line = strings.TrimSpace(strings.TrimPrefix(line, "\ufeff"))
	fields := splitFields(line, headerDelimiter(line))
	if len(fields) < 3 {
		return Header{}, fmt.Errorf("%w: expected at least 3 fields, got %d", ErrUnknownHeader, len(fields))
	}

	tag := strings.ToUpper(fields[0])
	modality, ok := headerTags[tag]
	if !ok {
		return Header{}, fmt.Errorf("%w: tag %q", ErrUnknownHeader, fields[0])
	}

	start, err := parseTimestamp(fields[1], loc)
	if err != nil {
		return Header{}, fmt.Errorf("failed to parse header timestamp: %w", err)
	}

	vehicle := fields[2]
	if vehicle == "" {
		return Header{}, fmt.Errorf("%w: missing vehicle identifier", ErrUnknownHeader)
	}

	return Header{
		Tag:       tag,
		Modality:  modality,
		Start:     start,
		VehicleID: vehicle,
		Extra:     fields[3:],
	}, nil
}

// isHeaderLine reports whether a line repeats an identity header
func isHeaderLine(line string) bool {
	fields := splitFields(line, headerDelimiter(line))
	if len(fields) == 0 {
		return false
	}
	_, ok := headerTags[strings.ToUpper(fields[0])]
	return ok
}

// columnLeaders lists the first column name of each modality's column line
var columnLeaders = map[models.Modality][]string{
	models.ModalityStability: {"timestamp", "fecha", "time"},
	models.ModalityCAN:       {"timestamp", "fecha", "time"},
	models.ModalityGPS:       {"hora", "time"},
	models.ModalityBeacon:    {"fecha", "timestamp", "time"},
}

// isColumnLine reports whether a line is the column-name line of modality.
// Other rows that fail to parse are malformed, not metadata.
func isColumnLine(line string, delim rune, modality models.Modality) bool {
	fields := splitFields(line, delim)
	if len(fields) == 0 {
		return false
	}
	first := strings.ToLower(fields[0])
	for _, name := range columnLeaders[modality] {
		if first == name {
			return true
		}
	}
	return false
}

func headerDelimiter(line string) rune {
	if strings.ContainsRune(line, ';') {
		return ';'
	}
	return ','
}

func splitFields(line string, delim rune) []string {
	if strings.TrimSpace(line) == "" {
		return nil
	}
	raw := strings.Split(line, string(delim))
	fields := make([]string, len(raw))
	for i, f := range raw {
		fields[i] = strings.TrimSpace(f)
	}
	// Trailing delimiter leaves an empty last field
	if len(fields) > 1 && fields[len(fields)-1] == "" {
		fields = fields[:len(fields)-1]
	}
	return fields
}

func parseTimestamp(v string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(TimestampLayout, strings.TrimSpace(v), loc)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}
