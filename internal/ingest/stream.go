package ingest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jengzang/fleet-records-backend-go/internal/models"
)

// DefaultMaxReasons bounds the malformed-row reasons retained per file
const DefaultMaxReasons = 20

// maxLineBytes bounds a single input line
const maxLineBytes = 1 << 20

// Options configure how files are read
type Options struct {
	Location   *time.Location // Timezone of the logger clock, UTC when nil
	MaxReasons int            // Malformed-row reasons kept in ParseStats
	Logger     *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.MaxReasons <= 0 {
		o.MaxReasons = DefaultMaxReasons
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// ParseStats counts what happened to each line of a file
type ParseStats struct {
	Lines     int      `json:"lines"`     // Lines after the identity header
	Samples   int      `json:"samples"`   // Rows turned into samples
	Malformed int      `json:"malformed"` // Rows dropped as structurally invalid
	Metadata  int      `json:"metadata"`  // Repeated headers and column lines
	NoFix     int      `json:"no_fix"`    // GPS no-fix markers
	Resorted  bool     `json:"resorted"`  // Source was out of order
	Reasons   []string `json:"reasons,omitempty"`
}

// Add folds other into s
func (s *ParseStats) Add(other ParseStats) {
	s.Lines += other.Lines
	s.Samples += other.Samples
	s.Malformed += other.Malformed
	s.Metadata += other.Metadata
	s.NoFix += other.NoFix
	s.Resorted = s.Resorted || other.Resorted
	s.Reasons = append(s.Reasons, other.Reasons...)
}

// Stream is a lazily parsed, time-ordered sample sequence of one file.
// Open reads only the identity header; rows are parsed on first access.
type Stream[T models.RawSample] struct {
	Path   string
	Header Header

	parse rowParser[T]
	delim rune
	opts  Options

	once    sync.Once
	samples []T
	stats   ParseStats
	err     error
}

// OpenStability opens a stability log
func OpenStability(path string, opts Options) (*Stream[models.StabilitySample], error) {
	return open(path, models.ModalityStability, ';', parseStabilityRow, opts)
}

// OpenGPS opens a GPS log
func OpenGPS(path string, opts Options) (*Stream[models.GPSSample], error) {
	return open(path, models.ModalityGPS, ',', parseGPSRow, opts)
}

// OpenCAN opens a CAN log
func OpenCAN(path string, opts Options) (*Stream[models.CANSample], error) {
	return open(path, models.ModalityCAN, ';', parseCANRow, opts)
}

// OpenBeacon opens a rotating-beacon log
func OpenBeacon(path string, opts Options) (*Stream[models.BeaconSample], error) {
	return open(path, models.ModalityBeacon, ';', parseBeaconRow, opts)
}

func open[T models.RawSample](path string, want models.Modality, delim rune, parse rowParser[T], opts Options) (*Stream[T], error) {
	opts = opts.withDefaults()

	header, err := ReadHeader(path, opts.Location)
	if err != nil {
		return nil, err
	}
	if header.Modality != want {
		return nil, fmt.Errorf("%w: %s is %s, not %s", ErrModalityMismatch, path, header.Modality, want)
	}

	return &Stream[T]{
		Path:   path,
		Header: header,
		parse:  parse,
		delim:  delim,
		opts:   opts,
	}, nil
}

// ReadHeader reads and parses only the first line of a file
func ReadHeader(path string, loc *time.Location) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		header, err := ParseHeader(line, loc)
		if err != nil {
			return Header{}, fmt.Errorf("failed to parse header of %s: %w", path, err)
		}
		return header, nil
	}
	if err := scanner.Err(); err != nil {
		return Header{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Header{}, fmt.Errorf("%w: %s", ErrEmptyFile, path)
}

// Modality returns the stream modality
func (s *Stream[T]) Modality() models.Modality {
	return s.Header.Modality
}

// Samples returns every sample in time order, parsing the file on first call
func (s *Stream[T]) Samples() ([]T, error) {
	s.load()
	return s.samples, s.err
}

// All yields every sample in time order. Read errors are reported by Err.
func (s *Stream[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		s.load()
		for _, sample := range s.samples {
			if !yield(sample) {
				return
			}
		}
	}
}

// Stats returns the parse statistics, parsing the file on first call
func (s *Stream[T]) Stats() ParseStats {
	s.load()
	return s.stats
}

// Err returns the I/O error of the parse, if any
func (s *Stream[T]) Err() error {
	s.load()
	return s.err
}

func (s *Stream[T]) load() {
	s.once.Do(func() {
		f, err := os.Open(s.Path)
		if err != nil {
			s.err = fmt.Errorf("failed to open %s: %w", s.Path, err)
			return
		}
		defer f.Close()

		s.samples, s.stats, s.err = readRows(f, s.Path, s.delim, s.parse, s.opts)
		if s.stats.Malformed > 0 {
			s.opts.Logger.Warn("dropped malformed rows",
				"component", "ingest",
				"path", s.Path,
				"malformed", s.stats.Malformed,
				"lines", s.stats.Lines)
		}
	})
}

// readRows parses every data row after the identity header
func readRows[T models.RawSample](r io.Reader, path string, delim rune, parse rowParser[T], opts Options) ([]T, ParseStats, error) {
	var stats ParseStats
	var samples []T

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var zero T
	modality := zero.Modality()

	headerSeen := false
	lineNo := 0
	var last time.Time
	ordered := true

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !headerSeen {
			headerSeen = true
			continue
		}
		stats.Lines++

		if isHeaderLine(line) || isColumnLine(line, delim, modality) {
			stats.Metadata++
			continue
		}

		if modality == models.ModalityGPS && isNoFixRow(line) {
			stats.NoFix++
			continue
		}

		sample, err := parse(splitFields(line, delim), opts.Location)
		if err != nil {
			stats.Malformed++
			reason := fmt.Sprintf("line %d: %v", lineNo, err)
			if len(stats.Reasons) < opts.MaxReasons {
				stats.Reasons = append(stats.Reasons, reason)
			}
			opts.Logger.Debug("skipping malformed row", "component", "ingest", "path", path, "reason", reason)
			continue
		}

		if t := sample.Time(); t.Before(last) {
			ordered = false
		} else {
			last = t
		}
		samples = append(samples, sample)
	}
	if err := scanner.Err(); err != nil {
		return nil, stats, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if !ordered {
		stats.Resorted = true
		slices.SortStableFunc(samples, func(a, b T) int {
			return a.Time().Compare(b.Time())
		})
	}
	stats.Samples = len(samples)
	return samples, stats, nil
}

// Merge combines several streams of one modality into one time-ordered slice.
// Files that fail to read are skipped and their errors joined.
func Merge[T models.RawSample](streams ...*Stream[T]) ([]T, ParseStats, error) {
	var merged []T
	var stats ParseStats
	var errs []error

	for _, s := range streams {
		samples, err := s.Samples()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		merged = append(merged, samples...)
		stats.Add(s.Stats())
	}

	slices.SortStableFunc(merged, func(a, b T) int {
		return a.Time().Compare(b.Time())
	})
	return merged, stats, errors.Join(errs...)
}
