package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"obscore/internal/datastore"
	"obscore/internal/stream"
	"obscore/pkg/domain"
)

func seriesCmd(flags *globalFlags) *cobra.Command {
	var (
		begin, end string
		dedup      bool
		chunkSize  int
		maxSeries  int
		query      datastore.SeriesQuery
	)
	cmd := &cobra.Command{
		Use:   "series [series-id]",
		Short: "Stream observations as JSON lines",
		Long: `Series streams one series by id, or every series matching the given
--procedure, --feature, --phenomenon, --offering and --identifier values.
Values of one flag are alternatives; different flags must all match. A query
matching more than stream.maxSeries series is rejected before any
observation is read.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			byQuery := len(query.Procedures)+len(query.Features)+len(query.Phenomena)+len(query.Offerings)+len(query.Identifiers) > 0
			var id int64
			switch {
			case len(args) == 1 && byQuery:
				return errors.New("a series id cannot be combined with query flags")
			case len(args) == 1:
				var err error
				if id, err = strconv.ParseInt(args[0], 10, 64); err != nil {
					return fmt.Errorf("series id %q: %w", args[0], err)
				}
			case !byQuery:
				return errors.New("a series id or at least one query flag is required")
			}
			filter, err := parseWindow(begin, end)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := loadApp(ctx, flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			cfg := stream.Config{ChunkSize: a.cfg.Stream.ChunkSize, Dedup: a.cfg.Stream.Dedup, MaxSeries: a.cfg.Stream.MaxSeries}
			if cmd.Flags().Changed("dedup") {
				cfg.Dedup = dedup
			}
			if cmd.Flags().Changed("chunk-size") {
				cfg.ChunkSize = chunkSize
			}
			if cmd.Flags().Changed("max-series") {
				cfg.MaxSeries = maxSeries
			}
			src, err := stream.NewSource(a.backend, a.backend, cfg, stream.WithLogger(a.logger))
			if err != nil {
				return err
			}
			var seq stream.SequenceCloser
			if byQuery {
				seq, err = src.OpenQuery(ctx, query, filter)
			} else {
				seq, err = src.OpenSeries(ctx, domain.SeriesID(id), filter)
			}
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			var n int
			for obs, err := range stream.Iterate(ctx, seq) {
				if err != nil {
					return fmt.Errorf("stream failed after %d observations: %w", n, err)
				}
				if err := enc.Encode(obs); err != nil {
					return err
				}
				n++
			}
			if byQuery {
				a.logger.Info("series query streamed", "observations", n)
			} else {
				a.logger.Info("series streamed", "series", id, "observations", n)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&begin, "begin", "", "Inclusive phenomenon time lower bound (RFC 3339)")
	cmd.Flags().StringVar(&end, "end", "", "Exclusive phenomenon time upper bound (RFC 3339)")
	cmd.Flags().BoolVar(&dedup, "dedup", false, "Drop observations with an already emitted identifier")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Override stream.chunkSize")
	cmd.Flags().IntVar(&maxSeries, "max-series", 0, "Override stream.maxSeries (0 disables the cap)")
	cmd.Flags().StringSliceVar(&query.Procedures, "procedure", nil, "Match series of these procedures (repeatable)")
	cmd.Flags().StringSliceVar(&query.Features, "feature", nil, "Match series of these features of interest (repeatable)")
	cmd.Flags().StringSliceVar(&query.Phenomena, "phenomenon", nil, "Match series of these observed properties (repeatable)")
	cmd.Flags().StringSliceVar(&query.Offerings, "offering", nil, "Match series of these offerings (repeatable)")
	cmd.Flags().StringSliceVar(&query.Identifiers, "identifier", nil, "Match series holding these observation identifiers and stream only those observations (repeatable)")
	return cmd
}

func parseWindow(begin, end string) (datastore.SeriesFilter, error) {
	var f datastore.SeriesFilter
	var err error
	if begin != "" {
		if f.Begin, err = time.Parse(time.RFC3339, begin); err != nil {
			return f, fmt.Errorf("--begin: %w", err)
		}
	}
	if end != "" {
		if f.End, err = time.Parse(time.RFC3339, end); err != nil {
			return f, fmt.Errorf("--end: %w", err)
		}
	}
	return f, nil
}
