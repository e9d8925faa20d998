package ingest

import (
	"errors"

	"github.com/jengzang/fleet-records-backend-go/internal/models"
)

// Bundle holds the merged samples of every modality of one session
type Bundle struct {
	Stability []models.StabilitySample
	GPS       []models.GPSSample
	CAN       []models.CANSample
	Beacon    []models.BeaconSample

	Stats map[models.Modality]ParseStats
}

// LoadBundle opens and merges the files referenced by a session
func LoadBundle(files map[models.Modality][]models.FileRef, opts Options) (*Bundle, error) {
	b := &Bundle{Stats: make(map[models.Modality]ParseStats)}
	var errs []error

	var err error
	if b.Stability, err = loadModality(b, models.ModalityStability, files, OpenStability, opts); err != nil {
		errs = append(errs, err)
	}
	if b.GPS, err = loadModality(b, models.ModalityGPS, files, OpenGPS, opts); err != nil {
		errs = append(errs, err)
	}
	if b.CAN, err = loadModality(b, models.ModalityCAN, files, OpenCAN, opts); err != nil {
		errs = append(errs, err)
	}
	if b.Beacon, err = loadModality(b, models.ModalityBeacon, files, OpenBeacon, opts); err != nil {
		errs = append(errs, err)
	}

	return b, errors.Join(errs...)
}

func loadModality[T models.RawSample](b *Bundle, m models.Modality, files map[models.Modality][]models.FileRef, openFn func(string, Options) (*Stream[T], error), opts Options) ([]T, error) {
	refs := files[m]
	if len(refs) == 0 {
		return nil, nil
	}

	streams := make([]*Stream[T], 0, len(refs))
	var errs []error
	for _, ref := range refs {
		s, err := openFn(ref.Path, opts)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		streams = append(streams, s)
	}

	samples, stats, err := Merge(streams...)
	if err != nil {
		errs = append(errs, err)
	}
	b.Stats[m] = stats
	return samples, errors.Join(errs...)
}
