package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"obscore/internal/cache"
	"obscore/internal/core"
)

func rebuildCmd(flags *globalFlags) *cobra.Command {
	var (
		offerings   []string
		warmStart   bool
		metricsFile string
		metricsJSON string
		traceFile   string
		summary     bool
	)
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the content cache from the observation store",
		Long: `Rebuild recomputes every cache facet, or only the offerings named with
--offering. Failed tasks are reported together once all tasks finished; the
facets whose tasks succeeded are still updated.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx, flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			reg := prometheus.NewRegistry()
			prom, err := core.NewPrometheusMetricsRecorder(reg)
			if err != nil {
				return fmt.Errorf("register metrics: %w", err)
			}
			timings := core.NewExpvarMetricsRecorder("")
			opts := []core.Option{
				core.WithLogger(core.NewSlogLogger(a.logger)),
				core.WithMetricsRecorder(core.MultiMetricsRecorder{prom, timings}),
				core.WithEventPublisher(a.publisher),
			}
			if traceFile != "" {
				f, err := os.Create(traceFile)
				if err != nil {
					return fmt.Errorf("open trace file: %w", err)
				}
				defer f.Close()
				opts = append(opts, core.WithTracer(core.NewJSONTracer(f)))
			}
			if a.snapshots != nil {
				opts = append(opts, core.WithSnapshotStore(a.snapshots, a.cfg.Snapshot.Key))
			}
			feeder, err := core.NewCacheFeeder(a.backend, a.backend, core.Config{ThreadCount: a.cfg.Cache.ThreadCount}, opts...)
			if err != nil {
				return err
			}

			c := cache.New(cache.WithDefaultLocale(a.cfg.Cache.DefaultLocale))
			if warmStart {
				savedAt, err := feeder.WarmStart(ctx, c)
				switch {
				case errors.Is(err, core.ErrSnapshotNotFound):
					a.logger.Info("no cache snapshot to warm start from")
				case err != nil:
					return err
				default:
					a.logger.Info("cache warm started", "saved_at", savedAt)
				}
			}

			if len(offerings) > 0 {
				err = feeder.RebuildOfferings(ctx, c, offerings)
			} else {
				err = feeder.RebuildAll(ctx, c)
			}
			if metricsFile != "" {
				if werr := prometheus.WriteToTextfile(metricsFile, reg); werr != nil {
					a.logger.Warn("metrics not written", "path", metricsFile, "error", werr)
				}
			}
			if metricsJSON != "" {
				if werr := writeJSON(metricsJSON, timings.Snapshot()); werr != nil {
					a.logger.Warn("timings not written", "path", metricsJSON, "error", werr)
				}
			}
			if summary {
				printSummary(cmd, c)
			}
			return err
		},
	}
	cmd.Flags().StringSliceVar(&offerings, "offering", nil, "Rebuild only these offering ids (repeatable)")
	cmd.Flags().BoolVar(&warmStart, "warm-start", false, "Restore the last persisted snapshot before rebuilding")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics in text format to this file")
	cmd.Flags().StringVar(&metricsJSON, "metrics-json", "", "Write per-operation timings and outcome counts as JSON to this file")
	cmd.Flags().StringVar(&traceFile, "trace-file", "", "Write one JSON line per rebuild span to this file")
	cmd.Flags().BoolVar(&summary, "summary", true, "Print a per-facet summary of the cache")
	return cmd
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

func printSummary(cmd *cobra.Command, c *cache.Cache) {
	s := c.Snapshot()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "offerings:  %d\n", len(s.Offerings))
	fmt.Fprintf(out, "procedures: %d\n", len(s.Procedures))
	fmt.Fprintf(out, "features:   %d\n", len(s.Features))
	fmt.Fprintf(out, "phenomena:  %d\n", len(s.Phenomena))
	if p := s.Global.PhenomenonTime; p != nil {
		fmt.Fprintf(out, "phenomenon time: %s/%s\n", p.Start.Format("2006-01-02T15:04:05.000Z07:00"), p.End.Format("2006-01-02T15:04:05.000Z07:00"))
	}
}
