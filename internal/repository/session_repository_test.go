package repository

import (
	"context"
	"math"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/jengzang/fleet-records-backend-go/internal/database"
	"github.com/jengzang/fleet-records-backend-go/internal/models"
)

var start = time.Date(2024, 5, 20, 7, 30, 0, 0, time.UTC)

func testSession() models.Session {
	return models.Session{
		ID:             "sess-1",
		VehicleID:      "V1",
		OrganizationID: "org-1",
		Sequence:       1,
		StartTime:      start,
		EndTime:        start.Add(10 * time.Minute),
		Files: map[models.Modality][]models.FileRef{
			models.ModalityStability: {{Path: "/data/V1/est.txt", Modality: models.ModalityStability, Start: start, End: start.Add(10 * time.Minute), Samples: 600}},
		},
		SampleCounts: map[models.Modality]int{models.ModalityStability: 600},
		GPSMissing:   true,
		Valid:        true,
		CreatedAt:    start.Add(time.Hour),
	}
}

func TestExistsUsesSessionKey(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewSessionRepository(database.Wrap(db, database.DriverPostgres))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM sessions WHERE vehicle_id = $1 AND start_ms = $2 AND sequence = $3")).
		WithArgs("V1", start.UnixMilli(), 2).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM sessions")).
		WithArgs("V1", start.UnixMilli(), 3).
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	ok, err := repo.Exists(context.Background(), models.SessionKey{VehicleID: "V1", Start: start, Sequence: 2})
	if err != nil || !ok {
		t.Fatalf("expected key to exist, got %v (%v)", ok, err)
	}
	ok, err = repo.Exists(context.Background(), models.SessionKey{VehicleID: "V1", Start: start, Sequence: 3})
	if err != nil || ok {
		t.Fatalf("expected key to be absent, got %v (%v)", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSaveSkipsChildrenOfDuplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewSessionRepository(database.Wrap(db, database.DriverSQLite))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sessions")).
		WithArgs("sess-1", "V1", "org-1", 1, start.UnixMilli(), start.Add(10*time.Minute).UnixMilli(),
			1, 0, 1, "", sqlmock.AnyArg(), sqlmock.AnyArg(), start.Add(time.Hour).UnixMilli()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	segments := []models.StateSegment{{SessionID: "sess-1", Ordinal: 1, State: models.StateAtStation, StartTime: start, EndTime: start.Add(10 * time.Minute)}}
	inserted, err := repo.Save(context.Background(), testSession(), segments, nil, nil)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if inserted {
		t.Fatalf("duplicate session must not be reported as inserted")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSaveRollsBackOnChildFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewSessionRepository(database.Wrap(db, database.DriverSQLite))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sessions")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO state_segments")).
		ExpectExec().WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	segments := []models.StateSegment{{SessionID: "sess-1", Ordinal: 1, State: models.StateAtStation, StartTime: start, EndTime: start.Add(time.Minute)}}
	if _, err := repo.Save(context.Background(), testSession(), segments, nil, nil); err == nil {
		t.Fatalf("expected the segment failure to surface")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func openMemory(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Driver: database.DriverSQLite, DSN: ":memory:"}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.NewMigrationManager(db, nil).RunMigrations(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestRoundTripSQLite(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	sessions := NewSessionRepository(db)

	s := testSession()
	loc := models.GeoPoint{Lat: 40.1, Lon: -3.2}
	speed := 42.5
	segments := []models.StateSegment{
		{SessionID: s.ID, Ordinal: 1, State: models.StateAtStation, Source: models.SourceGPS, StartTime: s.StartTime, EndTime: start.Add(time.Minute), StartLocation: &loc, EndLocation: &loc},
		{SessionID: s.ID, Ordinal: 2, State: models.StateEmergencyDeparture, Source: models.SourceBeacon, StartTime: start.Add(time.Minute), EndTime: s.EndTime, DistanceKm: 1.5},
	}
	events := []models.StabilityEvent{
		{ID: "ev-1", SessionID: s.ID, VehicleID: "V1", Timestamp: start.Add(2 * time.Minute), EndTime: start.Add(2*time.Minute + 3*time.Second), Severity: models.SeverityGrave, StabilityIndex: 0.15, SampleCount: 3, Location: &loc, SpeedKmh: &speed},
		{ID: "ev-2", SessionID: s.ID, VehicleID: "V1", Timestamp: start.Add(5 * time.Minute), EndTime: start.Add(5 * time.Minute), Severity: models.SeverityLight, StabilityIndex: 0.45, SampleCount: 1},
	}
	track := []models.GPSSample{
		{Timestamp: start, Latitude: 40.1, Longitude: -3.2, FixQuality: 1, Satellites: 8},
		{Timestamp: start.Add(time.Second), Latitude: 40.1001, Longitude: -3.2, FixQuality: 1, Satellites: 8},
		{Timestamp: start.Add(time.Second), Latitude: 40.1001, Longitude: -3.2, FixQuality: 1, Satellites: 8},
	}

	inserted, err := sessions.Save(ctx, s, segments, events, track)
	if err != nil || !inserted {
		t.Fatalf("expected insert, got %v (%v)", inserted, err)
	}
	inserted, err = sessions.Save(ctx, s, segments, events, track)
	if err != nil || inserted {
		t.Fatalf("expected second save to be skipped, got %v (%v)", inserted, err)
	}

	exists, err := sessions.Exists(ctx, s.Key())
	if err != nil || !exists {
		t.Fatalf("expected key to exist after save")
	}

	got, err := sessions.GetSessionByID(ctx, s.ID)
	if err != nil || got == nil {
		t.Fatalf("get: %v", err)
	}
	if !got.StartTime.Equal(s.StartTime) || !got.GPSMissing || got.SampleCounts[models.ModalityStability] != 600 {
		t.Fatalf("unexpected session %+v", got)
	}
	if len(got.Files[models.ModalityStability]) != 1 {
		t.Fatalf("expected file refs to round trip")
	}

	list, total, err := sessions.GetSessions(ctx, models.SessionFilter{OrganizationID: "org-1"})
	if err != nil || total != 1 || len(list) != 1 {
		t.Fatalf("expected one listed session, got %d/%d (%v)", len(list), total, err)
	}

	segs, err := NewSegmentRepository(db).GetBySessions(ctx, []string{s.ID})
	if err != nil || len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d (%v)", len(segs), err)
	}
	if segs[0].StartLocation == nil || segs[1].StartLocation != nil || segs[1].Source != models.SourceBeacon {
		t.Fatalf("unexpected segment round trip %+v", segs)
	}

	evs, err := NewEventRepository(db).GetEvents(ctx, models.EventFilter{OrganizationID: "org-1", MinSeverity: "moderate"})
	if err != nil || len(evs) != 1 {
		t.Fatalf("expected only the grave event, got %d (%v)", len(evs), err)
	}
	if evs[0].SpeedKmh == nil || math.Abs(*evs[0].SpeedKmh-speed) > 1e-9 || !evs[0].Geotagged() {
		t.Fatalf("unexpected event round trip %+v", evs[0])
	}

	tracks, err := NewTrackRepository(db).GetBySessions(ctx, []string{s.ID})
	if err != nil || len(tracks[s.ID]) != 2 {
		t.Fatalf("expected 2 stored fixes, got %d (%v)", len(tracks[s.ID]), err)
	}

	kpiSessions, err := sessions.FindForKPI(ctx, models.KPIFilter{VehicleIDs: []string{"V1", "V9"}, StartTime: start.Add(5 * time.Minute).Unix()})
	if err != nil || len(kpiSessions) != 1 {
		t.Fatalf("expected the overlapping session, got %d (%v)", len(kpiSessions), err)
	}
}
