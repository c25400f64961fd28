package index

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/starford/demanda/internal/ingest"
	"github.com/starford/demanda/internal/models"
	"github.com/starford/demanda/internal/parser"
	"github.com/starford/demanda/internal/storage"
)

// Event kinds reported to an EventCallback. EventUnchanged comes from Sync
// only, for files whose checksum matched the stored one.
const (
	EventIndexed   = "indexed"
	EventFailed    = "failed"
	EventRemoved   = "removed"
	EventUnchanged = "unchanged"
)

// Event describes one index mutation.
type Event struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
	Rows int    `json:"rows,omitempty"`
	Line int    `json:"line,omitempty"`
	Err  string `json:"error,omitempty"`
}

// EventCallback is called for every file Sync or Watch processes.
type EventCallback func(Event)

// SyncStats counts what a Sync pass did.
type SyncStats struct {
	Indexed   int `json:"indexed"`
	Failed    int `json:"failed"`
	Removed   int `json:"removed"`
	Unchanged int `json:"unchanged"`
}

// Sync brings the index up to date with the input directory:
//   - new/changed files are parsed, normalized and replaced
//   - files that fail to parse are recorded as failures
//   - files removed from disk are deleted from the index
func Sync(ctx context.Context, db Store, store storage.Provider, ext string, logger *slog.Logger, cb EventCallback) (SyncStats, error) {
	var stats SyncStats

	entries, err := store.List(ext)
	if err != nil {
		return stats, err
	}
	checksums, err := db.AllChecksums()
	if err != nil {
		return stats, err
	}

	disk := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		disk[e.Name] = struct{}{}

		var ev Event
		data, err := store.Read(e.Name)
		if err != nil {
			ev, err = recordFailure(db, e.Name, unreadableChecksum, &parser.ParseError{File: e.Name, Err: err})
		} else if checksums[e.Name] == storage.Checksum(data) {
			stats.Unchanged++
			emit(cb, Event{Kind: EventUnchanged, Name: e.Name})
			continue
		} else {
			ev, err = indexFile(db, ingest.SourceFileFor(e), data)
		}
		if err != nil {
			logger.Warn("sync: store failed", slog.String("file", e.Name), slog.String("error", err.Error()))
			continue
		}
		switch ev.Kind {
		case EventIndexed:
			stats.Indexed++
			logger.Debug("sync: indexed", slog.String("file", e.Name), slog.Int("rows", ev.Rows))
		case EventFailed:
			stats.Failed++
			logger.Warn("sync: failed", slog.String("file", e.Name), slog.String("error", ev.Err))
		}
		emit(cb, ev)
	}

	// Remove stale entries.
	for name := range checksums {
		if _, ok := disk[name]; ok {
			continue
		}
		if err := db.DeleteSource(name); err != nil {
			logger.Warn("sync: delete failed", slog.String("file", name), slog.String("error", err.Error()))
			continue
		}
		stats.Removed++
		logger.Debug("sync: removed stale", slog.String("file", name))
		emit(cb, Event{Kind: EventRemoved, Name: name})
	}

	logger.Info("sync: complete",
		slog.Int("indexed", stats.Indexed),
		slog.Int("failed", stats.Failed),
		slog.Int("removed", stats.Removed),
		slog.Int("unchanged", stats.Unchanged))
	return stats, nil
}

// unreadableChecksum marks a failure for a file whose content could not be
// read. It never matches a content checksum, so the file is retried.
const unreadableChecksum = "unreadable"

// indexFile parses data and stores either its records or the failure.
// Parse errors and rejected writes become EventFailed; the returned error
// means not even the failure could be stored.
func indexFile(db Store, file models.SourceFile, data []byte) (Event, error) {
	cs := storage.Checksum(data)

	res, perr := parser.Parse(file.Name, data)
	if perr != nil {
		return recordFailure(db, file.Name, cs, perr)
	}

	ingest.NormalizeInPlace(res.Records)
	row := SourceRow{
		Name:       file.Name,
		Checksum:   cs,
		ReportDate: file.ReportDate,
		Header:     res.Header,
		IndexedAt:  time.Now().UTC(),
	}
	if err := db.ReplaceSource(row, res.Records); err != nil {
		return recordFailure(db, file.Name, cs, err)
	}
	return Event{Kind: EventIndexed, Name: file.Name, Rows: len(res.Records)}, nil
}

// recordFailure stores cause as the file's failure, taking the line from a
// *parser.ParseError when there is one.
func recordFailure(db Store, name, checksum string, cause error) (Event, error) {
	f := FailureRow{Name: name, Checksum: checksum, Error: cause.Error(), FailedAt: time.Now().UTC()}
	var pe *parser.ParseError
	if errors.As(cause, &pe) {
		f.Line = pe.Line
	}
	if err := db.RecordFailure(f); err != nil {
		return Event{}, err
	}
	return Event{Kind: EventFailed, Name: name, Line: f.Line, Err: f.Error}, nil
}

func emit(cb EventCallback, ev Event) {
	if cb != nil {
		cb(ev)
	}
}
