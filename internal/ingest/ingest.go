// Package ingest turns a directory of per-day source files into one Dataset.
//
// The pipeline is a composition of plain functions:
//
//	Discover -> Parse (per file) -> Build (concatenate + diagnostics) -> Normalize
//
// Only a missing input directory is fatal. A file that fails to parse is
// excluded from the Dataset and reported as a models.Failure.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/starford/demanda/internal/models"
	"github.com/starford/demanda/internal/parser"
	"github.com/starford/demanda/internal/storage"
)

// DefaultExtension is the file extension Discover matches when none is configured.
const DefaultExtension = ".csv"

// Progress is passed to a ProgressFunc once per processed file.
type Progress struct {
	Done  int // files processed so far, including this one
	Total int
	File  models.SourceFile
	Rows  int
	Err   error // non-nil when the file failed to parse
}

// ProgressFunc observes Build. Calls are serialised.
type ProgressFunc func(Progress)

// Result is the output of Build.
type Result struct {
	Sources  []models.SourceFile // every discovered file, in discovery order
	Dataset  models.Dataset
	Failures []models.Failure
}

type options struct {
	ext      string
	workers  int
	progress ProgressFunc
	logger   *slog.Logger
}

// Option configures Discover and Build.
type Option func(*options)

// WithExtension sets the extension filter, e.g. ".csv".
func WithExtension(ext string) Option {
	return func(o *options) {
		if ext != "" {
			o.ext = ext
		}
	}
}

// WithWorkers sets how many files are parsed concurrently. Values below 1 mean 1.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n < 1 {
			n = 1
		}
		o.workers = n
	}
}

// WithProgress installs a callback invoked once per processed file.
func WithProgress(fn ProgressFunc) Option {
	return func(o *options) { o.progress = fn }
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func newOptions(opts []Option) *options {
	workers := runtime.NumCPU() / 2
	if workers < 1 {
		workers = 1
	}
	o := &options{ext: DefaultExtension, workers: workers, logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Discover lists the matching files directly under dir, sorted by name.
// It fails with apperr.ErrDirectoryNotFound when dir does not exist or cannot
// be read, and returns an empty slice when nothing matches.
func Discover(dir string, opts ...Option) ([]models.SourceFile, error) {
	o := newOptions(opts)
	store, err := storage.NewFS(dir)
	if err != nil {
		return nil, fmt.Errorf("ingest: discover: %w", err)
	}
	return discover(store, o.ext)
}

func discover(store storage.Provider, ext string) ([]models.SourceFile, error) {
	entries, err := store.List(ext)
	if err != nil {
		return nil, fmt.Errorf("ingest: discover: %w", err)
	}
	out := make([]models.SourceFile, 0, len(entries))
	for _, e := range entries {
		out = append(out, SourceFileFor(e))
	}
	return out, nil
}

// SourceFileFor builds the SourceFile for a listed entry.
func SourceFileFor(e storage.Entry) models.SourceFile {
	sf := models.SourceFile{Name: e.Name, Path: e.Path}
	if d, ok := parser.ReportDate(e.Name); ok {
		sf.ReportDate = d
	}
	return sf
}

// ParseFile reads and parses one source file. Every returned record is tagged
// with the file's name. Errors other than read failures are *parser.ParseError.
func ParseFile(store storage.Provider, file models.SourceFile) (*parser.Result, error) {
	data, err := store.Read(file.Name)
	if err != nil {
		return nil, &parser.ParseError{File: file.Name, Err: err}
	}
	return parser.Parse(file.Name, data)
}

// Build discovers and parses every file under dir and concatenates the
// records in discovery order. Per-file failures are collected in
// Result.Failures; the returned error is non-nil only when dir is missing or
// ctx is cancelled.
func Build(ctx context.Context, dir string, opts ...Option) (*Result, error) {
	o := newOptions(opts)
	store, err := storage.NewFS(dir)
	if err != nil {
		return nil, fmt.Errorf("ingest: build: %w", err)
	}
	files, err := discover(store, o.ext)
	if err != nil {
		return nil, err
	}
	return build(ctx, store, files, o)
}

type slot struct {
	records []models.Record
	err     error
}

func build(ctx context.Context, store storage.Provider, files []models.SourceFile, o *options) (*Result, error) {
	// Each worker fills only its own slot; the merge below walks slots in
	// discovery order, so output order never depends on scheduling.
	slots := make([]slot, len(files))

	var (
		mu   sync.Mutex
		done int
	)
	report := func(i int) {
		if o.progress == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		done++
		o.progress(Progress{
			Done:  done,
			Total: len(files),
			File:  files[i],
			Rows:  len(slots[i].records),
			Err:   slots[i].err,
		})
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for i := range files {
		if gCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			res, err := ParseFile(store, files[i])
			if err != nil {
				slots[i].err = err
				o.logger.Warn("ingest: parse failed",
					slog.String("file", files[i].Name),
					slog.String("error", err.Error()))
			} else {
				slots[i].records = res.Records
				o.logger.Debug("ingest: parsed",
					slog.String("file", files[i].Name),
					slog.Int("rows", len(res.Records)))
			}
			report(i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("ingest: build: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("ingest: build: %w", err)
	}

	total := 0
	for _, s := range slots {
		total += len(s.records)
	}
	out := &Result{
		Sources: files,
		Dataset: make(models.Dataset, 0, total),
	}
	for i, s := range slots {
		if s.err != nil {
			out.Failures = append(out.Failures, models.Failure{File: files[i].Name, Err: s.err})
			continue
		}
		out.Dataset = append(out.Dataset, s.records...)
	}

	o.logger.Info("ingest: build complete",
		slog.Int("files", len(files)),
		slog.Int("failed", len(out.Failures)),
		slog.Int("records", len(out.Dataset)))
	return out, nil
}

// Normalize returns a copy of ds with every net-exchange sentinel replaced by
// the missing marker. All other fields are left untouched.
func Normalize(ds models.Dataset) models.Dataset {
	if ds == nil {
		return nil
	}
	out := make(models.Dataset, len(ds))
	copy(out, ds)
	NormalizeInPlace(out)
	return out
}

// NormalizeInPlace applies Normalize to records without copying.
func NormalizeInPlace(records []models.Record) {
	for i := range records {
		if records[i].NetExchange.State == models.ExchangePlaceholder {
			records[i].NetExchange = models.Exchange{State: models.ExchangeMissing}
		}
	}
}
