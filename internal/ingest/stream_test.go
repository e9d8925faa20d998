package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jengzang/fleet-records-backend-go/internal/models"
)

func writeFile(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestOpenStabilityParsesLazily(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "estabilidad.txt",
		"ESTABILIDAD;2024-03-05 08:00:00;DOBACK024;fw1.2",
		"timestamp;ax;ay;az;gx;gy;gz;roll;pitch;yaw;si;accmag",
		"2024-03-05 08:00:00;0.1;0.2;9.8;0;0;0;1.5;-0.5;180;0.95;9.81",
		"2024-03-05 08:00:01;0.1;0.2;9.8;0;0;0;1.5;-0.5;180;0.15;9.81",
	)

	stream, err := OpenStability(path, Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if stream.Header.VehicleID != "DOBACK024" {
		t.Fatalf("unexpected vehicle %q", stream.Header.VehicleID)
	}
	if len(stream.Header.Extra) != 1 || stream.Header.Extra[0] != "fw1.2" {
		t.Fatalf("unexpected extra fields %v", stream.Header.Extra)
	}

	// The body is only read on first access.
	if err := os.WriteFile(path, []byte(strings.Join([]string{
		"ESTABILIDAD;2024-03-05 08:00:00;DOBACK024",
		"2024-03-05 08:00:00;0.1;0.2;9.8;0;0;0;1.5;-0.5;180;0.42;9.81",
	}, "\n")), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	var got []models.StabilitySample
	for s := range stream.All() {
		got = append(got, s)
	}
	if len(got) != 1 || got[0].SI != 0.42 {
		t.Fatalf("expected lazily parsed rewritten body, got %+v", got)
	}
}

func TestStabilityStreamCountsMalformedAndMetadata(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "estabilidad.txt",
		"ESTABILIDAD;2024-03-05 08:00:00;DOBACK024",
		"timestamp;ax;ay;az;gx;gy;gz;roll;pitch;yaw;si;accmag",
		"2024-03-05 08:00:00;0.1;0.2;9.8;0;0;0;1.5;-0.5;180;0.95;9.81",
		"2024-03-05 08:00:01;0.1;0.2;9.8;0;0;0;1.5;-0.5;180",
		"ESTABILIDAD;2024-03-05 08:00:01;DOBACK024",
		"timestamp;ax;ay;az;gx;gy;gz;roll;pitch;yaw;si;accmag",
		"2024-03-05 08:00:02;0.1;abc;9.8;0;0;0;1.5;-0.5;180;0.95;9.81",
		"2024-03-05 08:00:03;0.1;0.2;9.8;0;0;0;1.5;-0.5;180;1.75;9.81",
		"",
	)

	stream, err := OpenStability(path, Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	samples, err := stream.Samples()
	if err != nil {
		t.Fatalf("samples: %v", err)
	}

	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
	// Out-of-range values pass through untouched.
	if samples[1].SI != 1.75 {
		t.Fatalf("expected SI 1.75 to pass through, got %v", samples[1].SI)
	}

	stats := stream.Stats()
	if stats.Malformed != 2 {
		t.Fatalf("expected 2 malformed rows, got %d", stats.Malformed)
	}
	if stats.Metadata != 3 {
		t.Fatalf("expected 3 metadata lines, got %d", stats.Metadata)
	}
	if len(stats.Reasons) != 2 || !strings.Contains(stats.Reasons[1], "column ay") {
		t.Fatalf("unexpected reasons %v", stats.Reasons)
	}
}

func TestGarbledTimestampIsMalformedNotMetadata(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "estabilidad.txt",
		"ESTABILIDAD;2024-03-05 08:00:00;DOBACK024",
		"Timestamp;ax;ay;az;gx;gy;gz;roll;pitch;yaw;si;accmag",
		"??-??-?? ??:??:??;0.1;0.2;9.8;0;0;0;1.5;-0.5;180;0.95;9.81",
		"2024-03-05 08:00:01;0.1;0.2;9.8;0;0;0;1.5;-0.5;180;0.95;9.81",
	)

	stream, err := OpenStability(path, Options{MaxReasons: 5})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	samples, err := stream.Samples()
	if err != nil {
		t.Fatalf("samples: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(samples))
	}

	stats := stream.Stats()
	if stats.Metadata != 1 || stats.Malformed != 1 {
		t.Fatalf("expected 1 metadata and 1 malformed line, got %+v", stats)
	}
	if len(stats.Reasons) != 1 || !strings.Contains(stats.Reasons[0], "column timestamp") {
		t.Fatalf("unexpected reasons %v", stats.Reasons)
	}
}

func TestColumnLineBelongsToModality(t *testing.T) {
	cases := []struct {
		line     string
		delim    rune
		modality models.Modality
		want     bool
	}{
		{"timestamp;ax;ay;az", ';', models.ModalityStability, true},
		{"fecha;estado", ';', models.ModalityBeacon, true},
		{"hora,fecha,latitud,longitud", ',', models.ModalityGPS, true},
		{"timestamp;ax;ay;az", ';', models.ModalityGPS, false},
		{"garbage;0.1;0.2", ';', models.ModalityStability, false},
		{"", ';', models.ModalityStability, false},
	}
	for _, c := range cases {
		if got := isColumnLine(c.line, c.delim, c.modality); got != c.want {
			t.Fatalf("isColumnLine(%q, %s) = %v, want %v", c.line, c.modality, got, c.want)
		}
	}
}

func TestStreamResortsStably(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "rotativo.txt",
		"ROTATIVO;2024-03-05 08:00:00;DOBACK024",
		"fecha;estado",
		"2024-03-05 08:00:05;1",
		"2024-03-05 08:00:01;0",
		"2024-03-05 08:00:05;2",
		"2024-03-05 08:00:03;1",
	)

	stream, err := OpenBeacon(path, Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	samples, err := stream.Samples()
	if err != nil {
		t.Fatalf("samples: %v", err)
	}
	if !stream.Stats().Resorted {
		t.Fatalf("expected resorted flag")
	}

	want := []models.BeaconCode{0, 1, 1, 2}
	for i, s := range samples {
		if s.Code != want[i] {
			t.Fatalf("sample %d: expected code %d, got %d", i, want[i], s.Code)
		}
		if i > 0 && s.Timestamp.Before(samples[i-1].Timestamp) {
			t.Fatalf("samples not ordered at %d", i)
		}
	}
}

func TestGPSStreamNoFixMarkers(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "gps.txt",
		"GPS;2024-03-05 08:00:00;DOBACK024",
		"hora,fecha,latitud,longitud,altitud,hdop,fix,satelites,velocidad",
		"08:00:00,05/03/2024,sin datos GPS",
		"08:00:01,05/03/2024,40.4168,-3.7038,650.0,0.9,1,9,35.2",
		"08:00:02,05/03/2024,40.4169,-3.7038,650.0,0.9,1,x,35.2",
	)

	stream, err := OpenGPS(path, Options{Location: time.UTC})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	samples, err := stream.Samples()
	if err != nil {
		t.Fatalf("samples: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("expected 1 fix, got %d", len(samples))
	}
	want := time.Date(2024, 3, 5, 8, 0, 1, 0, time.UTC)
	if !samples[0].Timestamp.Equal(want) {
		t.Fatalf("expected %v, got %v", want, samples[0].Timestamp)
	}
	if samples[0].Satellites != 9 || !samples[0].HasFix() {
		t.Fatalf("unexpected fix %+v", samples[0])
	}

	stats := stream.Stats()
	if stats.NoFix != 1 || stats.Malformed != 1 {
		t.Fatalf("expected 1 no-fix and 1 malformed, got %+v", stats)
	}
}

func TestOpenRejectsWrongModality(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "can.txt",
		"CAN;2024-03-05 08:00:00;DOBACK024",
		"2024-03-05 08:00:00;900;10;2.5;14",
	)

	if _, err := OpenStability(path, Options{}); !errors.Is(err, ErrModalityMismatch) {
		t.Fatalf("expected ErrModalityMismatch, got %v", err)
	}

	stream, err := OpenCAN(path, Options{})
	if err != nil {
		t.Fatalf("open can: %v", err)
	}
	samples, err := stream.Samples()
	if err != nil || len(samples) != 1 || !samples[0].EngineRunning() {
		t.Fatalf("unexpected can samples %+v (err %v)", samples, err)
	}
}

func TestScanDescribesFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ESTABILIDAD_DOBACK024_20240305.txt",
		"ESTABILIDAD;2024-03-05 08:00:00;DOBACK024",
		"2024-03-05 08:00:00;0.1;0.2;9.8;0;0;0;1.5;-0.5;180;0.95;9.81",
		"2024-03-05 08:10:00;0.1;0.2;9.8;0;0;0;1.5;-0.5;180;0.95;9.81",
	)
	writeFile(t, dir, "GPS_DOBACK024_20240305.txt",
		"GPS;2024-03-05 08:00:00;DOBACK024",
		"08:00:05,05/03/2024,40.4168,-3.7038,650.0,0.9,1,9,35.2",
	)
	writeFile(t, dir, "notes.txt", "not a log file")
	writeFile(t, dir, ".hidden", "ESTABILIDAD;2024-03-05 08:00:00;DOBACK024")

	catalog, err := Scan(context.Background(), dir, Options{})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(catalog.Files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(catalog.Files))
	}
	if len(catalog.Skipped) != 1 || !strings.HasSuffix(catalog.Skipped[0].Path, "notes.txt") {
		t.Fatalf("unexpected skipped %+v", catalog.Skipped)
	}

	keys, groups := catalog.Groups()
	if len(keys) != 1 || keys[0] != (VehicleDay{VehicleID: "DOBACK024", Day: "2024-03-05"}) {
		t.Fatalf("unexpected groups %+v", keys)
	}
	for _, f := range groups[keys[0]] {
		if f.Modality == models.ModalityStability {
			if f.Samples != 2 || f.End.Sub(f.Start) != 10*time.Minute {
				t.Fatalf("unexpected stability description %+v", f)
			}
		}
	}
}

func TestLoadBundleMergesFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "gps_a.txt",
		"GPS;2024-03-05 08:00:00;DOBACK024",
		"08:00:03,05/03/2024,40.4168,-3.7038,650.0,0.9,1,9,35.2",
	)
	b := writeFile(t, dir, "gps_b.txt",
		"GPS;2024-03-05 08:00:00;DOBACK024",
		"08:00:01,05/03/2024,40.4168,-3.7038,650.0,0.9,1,9,35.2",
	)

	bundle, err := LoadBundle(map[models.Modality][]models.FileRef{
		models.ModalityGPS: {{Path: a}, {Path: b}},
	}, Options{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(bundle.GPS) != 2 || bundle.GPS[0].Timestamp.Second() != 1 {
		t.Fatalf("expected merged ordered fixes, got %+v", bundle.GPS)
	}
	if bundle.Stats[models.ModalityGPS].Samples != 2 {
		t.Fatalf("unexpected stats %+v", bundle.Stats)
	}
	if len(bundle.Stability) != 0 {
		t.Fatalf("expected no stability samples")
	}
}
