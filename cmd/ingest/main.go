package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/jengzang/fleet-records-backend-go/internal/app"
	"github.com/jengzang/fleet-records-backend-go/internal/config"
	"github.com/jengzang/fleet-records-backend-go/internal/logging"
	"github.com/jengzang/fleet-records-backend-go/internal/segment"
	"github.com/jengzang/fleet-records-backend-go/internal/service"
)

func main() {
	var (
		configPath string
		dir        string
		preset     string
		workers    int
		asJSON     bool
	)
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&dir, "dir", "", "Input directory (defaults to ingest.dir)")
	flag.StringVar(&preset, "policy", "", "Segmentation preset: permissive, standard or strict")
	flag.IntVar(&workers, "workers", 0, "Concurrent session workers (defaults to ingest.workers)")
	flag.BoolVar(&asJSON, "json", false, "Print the batch report as JSON")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "path", configPath, "error", err)
		os.Exit(1)
	}
	if preset != "" {
		policy, err := segment.Preset(preset)
		if err != nil {
			slog.Error("invalid policy", "error", err)
			os.Exit(2)
		}
		cfg.Segmentation.Preset = preset
		cfg.Segmentation.Policy = policy
	}
	if workers > 0 {
		cfg.Ingest.Workers = workers
	}
	if dir == "" {
		dir = cfg.Ingest.Dir
	}
	if dir == "" {
		fmt.Fprintln(os.Stderr, "usage: ingest -dir <input directory> [-policy strict] [-config config.yaml]")
		os.Exit(2)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.JSON)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	report, runErr := a.Ingest(ctx, dir)
	if report != nil {
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(report)
		} else {
			printReport(os.Stdout, report)
		}
	}
	if runErr != nil {
		logger.Error("batch failed", "dir", dir, "error", runErr)
		a.Close()
		os.Exit(1)
	}
}

func printReport(w io.Writer, r *service.BatchReport) {
	fmt.Fprintf(w, "Batch %s finished in %s\n", r.Directory, r.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "  files:           %d (%d skipped)\n", r.Files, len(r.Skipped))
	fmt.Fprintf(w, "  vehicle-days:    %d\n", r.Groups)
	fmt.Fprintf(w, "  sessions:        %d accepted, %d rejected, %d duplicate\n", r.Accepted, len(r.Rejections), len(r.Duplicates))
	fmt.Fprintf(w, "  stored:          %d (%d invalid, %d already stored)\n", r.Stored, r.Invalid, r.AlreadyStored)
	fmt.Fprintf(w, "  events:          %d\n", r.Events)
	fmt.Fprintf(w, "  state segments:  %d\n", r.Segments)

	reasons := r.RejectionsByReason()
	keys := make([]segment.RejectReason, 0, len(reasons))
	for k := range reasons {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, k := range keys {
		fmt.Fprintf(w, "    rejected %-24s %d\n", k, reasons[k])
	}
	for sev, n := range r.EventsBySeverity {
		if n > 0 {
			fmt.Fprintf(w, "    events %-26s %d\n", sev, n)
		}
	}
	for org, origin := range r.Geofences {
		fmt.Fprintf(w, "    geofences %-23s %s\n", org, origin)
	}
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  FAILED %s (%s): %s\n", f.Key, f.Stage, f.Reason)
	}
	for _, path := range r.Orphans {
		fmt.Fprintf(w, "  orphan %s\n", path)
	}
}
