package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jengzang/fleet-records-backend-go/internal/service"
)

const namespace = "fleet_records"

// Session results
const (
	ResultStored        = "stored"
	ResultInvalid       = "invalid"
	ResultAlreadyStored = "already_stored"
	ResultDuplicate     = "duplicate"
	ResultFailed        = "failed"
)

var (
	batchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Total number of ingest batches, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	batchDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_seconds",
			Help:      "Ingest batch latency in seconds.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	sessionAnalysisSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_analysis_seconds",
			Help:      "Per-session detection and classification latency in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		},
	)

	sessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Sessions handled by the pipeline, partitioned by result.",
		},
		[]string{"result"},
	)

	rejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_rejections_total",
			Help:      "Candidate sessions rejected by the segmenter, partitioned by reason.",
		},
		[]string{"reason"},
	)

	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stability_events_total",
			Help:      "Stability events stored, partitioned by severity.",
		},
		[]string{"severity"},
	)

	malformedRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_rows_total",
			Help:      "Rows dropped by the stream readers, partitioned by modality.",
		},
		[]string{"modality"},
	)

	skippedFilesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_files_total",
			Help:      "Input files without a recognised header.",
		},
	)

	geofenceLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geofence_loads_total",
			Help:      "Geofence snapshots loaded per organization, partitioned by origin.",
		},
		[]string{"origin"},
	)
)

// Register attaches the pipeline collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		batchesTotal,
		batchDurationSeconds,
		sessionAnalysisSeconds,
		sessionsTotal,
		rejectionsTotal,
		eventsTotal,
		malformedRowsTotal,
		skippedFilesTotal,
		geofenceLoadsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveBatch records a finished batch report. runErr is the error Run returned.
func ObserveBatch(report *service.BatchReport, runErr error) {
	outcome := "success"
	if runErr != nil {
		outcome = "error"
	}
	batchesTotal.WithLabelValues(outcome).Inc()
	if report == nil {
		return
	}

	duration := report.Duration()
	if duration < 0 {
		duration = 0
	}
	batchDurationSeconds.Observe(duration.Seconds())
	for _, d := range report.AnalysisTimes {
		sessionAnalysisSeconds.Observe(max(d, time.Duration(0)).Seconds())
	}

	sessionsTotal.WithLabelValues(ResultStored).Add(float64(report.Stored - report.Invalid))
	sessionsTotal.WithLabelValues(ResultInvalid).Add(float64(report.Invalid))
	sessionsTotal.WithLabelValues(ResultAlreadyStored).Add(float64(report.AlreadyStored))
	sessionsTotal.WithLabelValues(ResultDuplicate).Add(float64(len(report.Duplicates)))
	sessionsTotal.WithLabelValues(ResultFailed).Add(float64(len(report.Failures)))

	for reason, n := range report.RejectionsByReason() {
		rejectionsTotal.WithLabelValues(string(reason)).Add(float64(n))
	}
	for severity, n := range report.EventsBySeverity {
		eventsTotal.WithLabelValues(string(severity)).Add(float64(n))
	}
	for modality, stats := range report.Parse {
		malformedRowsTotal.WithLabelValues(string(modality)).Add(float64(stats.Malformed))
	}
	skippedFilesTotal.Add(float64(len(report.Skipped)))
	for _, origin := range report.Geofences {
		geofenceLoadsTotal.WithLabelValues(string(origin)).Inc()
	}
}
