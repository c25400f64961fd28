package internal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/starford/demanda/internal/exporter"
	"github.com/starford/demanda/internal/index"
	"github.com/starford/demanda/internal/ingest"
	"github.com/starford/demanda/internal/mcpserver"
	"github.com/starford/demanda/internal/progress"
	"github.com/starford/demanda/internal/storage"
)

// RunIngest brings the SQLite index up to date with the input directory and
// prints the outcome, including every file that failed to parse.
func RunIngest(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	cfg, logger, err := app.setup()
	if err != nil {
		return err
	}

	store, db, err := openIndex(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	entries, err := store.List(cfg.Input.Extension)
	if err != nil {
		return fmt.Errorf("list input: %w", err)
	}

	tracker := progress.NewTracker(app.status)
	tracker.Start(len(entries))
	stats, err := index.Sync(ctx, db, store, cfg.Input.Extension, logger, func(ev index.Event) {
		if ev.Kind == index.EventRemoved {
			return
		}
		tracker.Step(ev.Rows, ev.Kind == index.EventFailed)
	})
	elapsed := tracker.Elapsed()
	tracker.Finish()
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	fmt.Fprintf(app.out, "indexed %d, unchanged %d, failed %d, removed %d in %s\n",
		stats.Indexed, stats.Unchanged, stats.Failed, stats.Removed, elapsed.Round(time.Millisecond))

	failures, err := db.Failures()
	if err != nil {
		return fmt.Errorf("list failures: %w", err)
	}
	for _, f := range failures {
		if f.Line > 0 {
			fmt.Fprintf(app.out, "  %s:%d: %s\n", f.Name, f.Line, f.Error)
			continue
		}
		fmt.Fprintf(app.out, "  %s: %s\n", f.Name, f.Error)
	}
	return nil
}

// RunExport builds the dataset from the input directory in memory,
// normalizes it and writes it to the configured export path.
func RunExport(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	cfg, logger, err := app.setup()
	if err != nil {
		return err
	}

	format, err := exporter.ParseFormat(cfg.Export.Format)
	if err != nil {
		return err
	}

	tracker := progress.NewTracker(app.status)
	buildOpts := []ingest.Option{
		ingest.WithExtension(cfg.Input.Extension),
		ingest.WithProgress(tracker.Observe),
		ingest.WithLogger(logger),
	}
	if cfg.Input.Workers > 0 {
		buildOpts = append(buildOpts, ingest.WithWorkers(cfg.Input.Workers))
	}

	res, err := ingest.Build(ctx, cfg.Input.Path, buildOpts...)
	elapsed := tracker.Elapsed()
	tracker.Finish()
	if err != nil {
		return err
	}
	ds := ingest.Normalize(res.Dataset)

	dir := filepath.Dir(cfg.Export.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	out, err := storage.NewFS(dir)
	if err != nil {
		return fmt.Errorf("init export storage: %w", err)
	}
	if err := exporter.Save(out, filepath.Base(cfg.Export.Path), format, ds); err != nil {
		return err
	}

	logger.Info("Export written",
		slog.String("path", cfg.Export.Path),
		slog.String("format", string(format)),
		slog.Int("records", len(ds)),
		slog.Int("failures", len(res.Failures)))

	fmt.Fprintf(app.out, "exported %d records from %d files to %s in %s\n",
		len(ds), len(res.Sources)-len(res.Failures), cfg.Export.Path, elapsed.Round(time.Millisecond))
	for _, f := range res.Failures {
		fmt.Fprintf(app.out, "  skipped %s\n", f.Error())
	}
	return nil
}

// RunReport prints the descriptive summary and the hourly demand profile of
// the indexed dataset.
func RunReport(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	cfg, _, err := app.setup()
	if err != nil {
		return err
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	defer db.Close()

	sum, err := db.Summary(app.region)
	if err != nil {
		return err
	}
	hourly, err := db.Profile(index.ProfileHourly, app.region)
	if err != nil {
		return err
	}
	return writeReport(app.out, app.region, sum, hourly)
}

func writeReport(w io.Writer, region string, sum *index.Summary, hourly []index.Bucket) error {
	scope := "all regions"
	if region != "" {
		scope = "region " + region
	}
	fmt.Fprintf(w, "Dataset (%s): %d records from %d sources, %d failed files\n",
		scope, sum.Records, sum.Sources, sum.Failures)
	fmt.Fprintf(w, "Regions: %d, sub-areas: %d", sum.Regions, sum.SubAreas)
	if sum.FirstDate != "" {
		fmt.Fprintf(w, ", dates %s to %s", sum.FirstDate, sum.LastDate)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "column\tcount\tmean\tmin\tmax\t")
	for _, c := range []struct {
		name  string
		stats index.ColumnStats
	}{
		{"generation", sum.Generation},
		{"imports", sum.Imports},
		{"exports", sum.Exports},
		{"net_exchange", sum.NetExchange},
		{"demand", sum.Demand},
	} {
		fmt.Fprintf(tw, "%s\t%d\t%.2f\t%.2f\t%.2f\t\n", c.name, c.stats.Count, c.stats.Mean, c.stats.Min, c.stats.Max)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "net_exchange missing: %d\n\n", sum.MissingNetExch)

	if len(hourly) == 0 {
		return nil
	}
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "hour\tcount\tmean demand\tmin\tmax\t")
	for _, b := range hourly {
		fmt.Fprintf(tw, "%s\t%d\t%.2f\t%.2f\t%.2f\t\n", b.Label, b.Count, b.Mean, b.Min, b.Max)
	}
	return tw.Flush()
}

// RunMCP serves the MCP tools over stdin/stdout. Logs go to stderr so the
// protocol stream stays clean.
func RunMCP(ctx context.Context, opts ...Option) error {
	opts = append(opts, WithLogOutput(os.Stderr))
	app := newApplication(opts)
	cfg, logger, err := app.setup()
	if err != nil {
		return err
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	defer db.Close()

	logger.Info("MCP server starting", slog.String("version", app.version))
	return mcpserver.New(db, app.version).ServeStdio()
}
