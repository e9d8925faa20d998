package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"time"

	"github.com/jengzang/fleet-records-backend-go/internal/models"
)

// FileInfo describes one log file without retaining its samples
type FileInfo struct {
	Path      string          `json:"path"`
	Modality  models.Modality `json:"modality"`
	VehicleID string          `json:"vehicle_id"`
	Day       string          `json:"day"`
	Start     time.Time       `json:"start"` // First sample, header time when the file is empty
	End       time.Time       `json:"end"`   // Last sample
	Samples   int             `json:"samples"`
	Stats     ParseStats      `json:"stats"`
}

// Ref converts the description into a session file reference
func (f FileInfo) Ref() models.FileRef {
	return models.FileRef{
		Path:     f.Path,
		Modality: f.Modality,
		Start:    f.Start,
		End:      f.End,
		Samples:  f.Samples,
	}
}

// SkippedFile is a file Scan could not describe
type SkippedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// VehicleDay groups the files of one vehicle on one calendar day
type VehicleDay struct {
	VehicleID string
	Day       string
}

// Catalog is the result of scanning an input directory
type Catalog struct {
	Files   []FileInfo
	Skipped []SkippedFile
}

// Groups partitions the catalog by vehicle and day, in a stable order
func (c *Catalog) Groups() ([]VehicleDay, map[VehicleDay][]FileInfo) {
	groups := make(map[VehicleDay][]FileInfo)
	for _, f := range c.Files {
		key := VehicleDay{VehicleID: f.VehicleID, Day: f.Day}
		groups[key] = append(groups[key], f)
	}

	keys := make([]VehicleDay, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].VehicleID != keys[j].VehicleID {
			return keys[i].VehicleID < keys[j].VehicleID
		}
		return keys[i].Day < keys[j].Day
	})
	return keys, groups
}

// Describe reads a file once and reports its modality, range and sample count
func Describe(path string, opts Options) (FileInfo, error) {
	opts = opts.withDefaults()

	header, err := ReadHeader(path, opts.Location)
	if err != nil {
		return FileInfo{}, err
	}

	info := FileInfo{
		Path:      path,
		Modality:  header.Modality,
		VehicleID: header.VehicleID,
		Day:       header.Day(),
	}

	switch header.Modality {
	case models.ModalityStability:
		err = describe(&info, OpenStability, opts)
	case models.ModalityGPS:
		err = describe(&info, OpenGPS, opts)
	case models.ModalityCAN:
		err = describe(&info, OpenCAN, opts)
	case models.ModalityBeacon:
		err = describe(&info, OpenBeacon, opts)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownHeader, header.Modality)
	}
	if err != nil {
		return FileInfo{}, err
	}

	if info.Samples == 0 {
		info.Start = header.Start
		info.End = header.Start
	}
	return info, nil
}

func describe[T models.RawSample](info *FileInfo, openFn func(string, Options) (*Stream[T], error), opts Options) error {
	stream, err := openFn(info.Path, opts)
	if err != nil {
		return err
	}
	samples, err := stream.Samples()
	if err != nil {
		return err
	}

	info.Stats = stream.Stats()
	info.Samples = len(samples)
	if len(samples) > 0 {
		info.Start = samples[0].Time()
		info.End = samples[len(samples)-1].Time()
	}
	return nil
}

// Scan walks dir and describes every regular file with a recognised header.
// Unreadable or unrecognised files are reported in Catalog.Skipped.
func Scan(ctx context.Context, dir string, opts Options) (*Catalog, error) {
	opts = opts.withDefaults()
	catalog := &Catalog{}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if name := d.Name(); name[0] == '.' {
			return nil
		}

		info, err := Describe(path, opts)
		if err != nil {
			catalog.Skipped = append(catalog.Skipped, SkippedFile{Path: path, Reason: err.Error()})
			opts.Logger.Warn("skipping file", "component", "ingest", "path", path, "error", err)
			return nil
		}
		catalog.Files = append(catalog.Files, info)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	opts.Logger.Info("scanned input directory",
		"component", "ingest",
		"dir", dir,
		"files", len(catalog.Files),
		"skipped", len(catalog.Skipped))
	return catalog, nil
}
