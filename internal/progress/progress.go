// Package progress prints a single-line terminal progress report for
// long ingestion runs.
package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/starford/demanda/internal/ingest"
)

// Tracker tracks and reports per-file progress.
type Tracker struct {
	writer    io.Writer
	total     int
	current   int
	rows      int
	failed    int
	startTime time.Time
	started   bool
	mu        sync.Mutex
}

// NewTracker creates a tracker writing to w (typically os.Stderr).
func NewTracker(w io.Writer) *Tracker {
	return &Tracker{writer: w}
}

// Start begins tracking total files.
func (p *Tracker) Start(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = total
	p.current, p.rows, p.failed = 0, 0, 0
	p.startTime = time.Now()
	p.started = true
}

// Step records one processed file.
func (p *Tracker) Step(rows int, failed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	if p.current < p.total {
		p.current++
	}
	p.rows += rows
	if failed {
		p.failed++
	}
	p.report()
}

// Observe implements ingest.ProgressFunc. The first call starts the tracker.
func (p *Tracker) Observe(pr ingest.Progress) {
	p.mu.Lock()
	if !p.started {
		p.total = pr.Total
		p.startTime = time.Now()
		p.started = true
	}
	p.mu.Unlock()
	p.Step(pr.Rows, pr.Err != nil)
}

// Finish prints the final line followed by a newline.
func (p *Tracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	p.current = p.total
	p.report()
	fmt.Fprintln(p.writer)
	p.started = false
}

// Elapsed returns the time since Start.
func (p *Tracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return 0
	}
	return time.Since(p.startTime)
}

// report prints the current progress. Must be called with lock held.
func (p *Tracker) report() {
	pct := 0.0
	if p.total > 0 {
		pct = float64(p.current) / float64(p.total) * 100.0
	}
	rate := 0.0
	if s := time.Since(p.startTime).Seconds(); s > 0 {
		rate = float64(p.current) / s
	}
	fmt.Fprintf(p.writer, "\rFiles: %d/%d (%.1f%%) - %d records, %d failed - %.1f files/s",
		p.current, p.total, pct, p.rows, p.failed, rate)
}
