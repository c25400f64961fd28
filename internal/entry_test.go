package internal

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/starford/demanda/internal/exporter"
	"github.com/starford/demanda/internal/index"
	"github.com/starford/demanda/internal/metrics"
	"github.com/starford/demanda/internal/sse"
	"github.com/starford/demanda/internal/testutil"
)

// testConfig returns a validated config over a seeded input directory.
func testConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	testutil.WriteSource(t, dir, "2023-01-15.csv", testutil.DayRows("SIN", "CENTRAL"))
	testutil.WriteSource(t, dir, "2023-07-04.csv", testutil.DayRows("BCA", "MEXICALI"))
	testutil.WriteFile(t, dir, "broken.csv", []byte(testutil.Malformed))

	cfg := NewDefaultConfig()
	cfg.Input.Path = dir
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "demanda.db")
	cfg.Export.Path = filepath.Join(t.TempDir(), "out", "dataset.csv")
	require.NoError(t, cfg.Validate())
	return cfg
}

func run(t *testing.T, fn func(context.Context, ...Option) error, cfg *Config, opts ...Option) string {
	t.Helper()
	var out bytes.Buffer
	opts = append([]Option{
		WithConfig(cfg),
		WithOutput(&out),
		WithLogOutput(io.Discard),
		WithStatusOutput(io.Discard),
	}, opts...)
	require.NoError(t, fn(context.Background(), opts...))
	return out.String()
}

func TestRun_RequiresConfig(t *testing.T) {
	err := RunIngest(context.Background(), WithLogOutput(io.Discard))
	assert.EqualError(t, err, "config is required")
}

func TestRunIngest(t *testing.T) {
	cfg := testConfig(t)

	out := run(t, RunIngest, cfg)
	assert.Contains(t, out, "indexed 2, unchanged 0, failed 1, removed 0")
	assert.Regexp(t, `removed 0 in [0-9.]+[µnm]?s\n`, out)
	assert.Contains(t, out, "  broken.csv")

	out = run(t, RunIngest, cfg)
	assert.Contains(t, out, "indexed 0, unchanged 3, failed 0, removed 0")

	require.NoError(t, os.Remove(filepath.Join(cfg.Input.Path, "2023-07-04.csv")))
	out = run(t, RunIngest, cfg)
	assert.Contains(t, out, "removed 1")
}

func TestRunIngest_MissingInput(t *testing.T) {
	cfg := testConfig(t)
	cfg.Input.Path = filepath.Join(t.TempDir(), "absent")

	err := RunIngest(context.Background(), WithConfig(cfg), WithLogOutput(io.Discard))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init storage")
}

func TestRunExport_CSV(t *testing.T) {
	cfg := testConfig(t)

	out := run(t, RunExport, cfg)
	assert.Contains(t, out, "exported 48 records from 2 files")
	assert.Regexp(t, `dataset\.csv in [0-9.]+[µnm]?s\n`, out)
	assert.Contains(t, out, "skipped broken.csv")

	data, err := os.ReadFile(cfg.Export.Path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 49)
	assert.Equal(t, strings.Join(exporter.Columns, ","), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "2023-01-15.csv,SIN,CENTRAL,1,"), lines[1])
	assert.True(t, strings.HasPrefix(lines[25], "2023-07-04.csv,BCA,MEXICALI,1,"), lines[25])
}

func TestRunExport_XLSX(t *testing.T) {
	cfg := testConfig(t)
	cfg.Export.Path = filepath.Join(filepath.Dir(cfg.Export.Path), "dataset.xlsx")
	cfg.Export.Format = ""
	require.NoError(t, cfg.Export.Validate())

	run(t, RunExport, cfg)

	f, err := excelize.OpenFile(cfg.Export.Path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(exporter.SheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 49)
}

func TestRunReport(t *testing.T) {
	cfg := testConfig(t)
	run(t, RunIngest, cfg)

	out := run(t, RunReport, cfg)
	assert.Contains(t, out, "Dataset (all regions): 48 records from 2 sources, 1 failed files")
	assert.Contains(t, out, "dates 2023-01-15 to 2023-07-04")
	assert.Contains(t, out, "net_exchange missing: 24")
	assert.Contains(t, out, "mean demand")

	out = run(t, RunReport, cfg, WithRegion("BCA"))
	assert.Contains(t, out, "Dataset (region BCA): 24 records")
}

func TestObserve_DrivesMetrics(t *testing.T) {
	cfg := testConfig(t)
	store, db, err := openIndex(cfg)
	require.NoError(t, err)
	defer db.Close()

	broker := sse.NewBroker(time.Second)
	defer broker.Close()
	m := metrics.New(broker.ClientCount)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	cb := observe(db, broker, m, logger)

	_, err = index.Sync(context.Background(), db, store, cfg.Input.Extension, logger, cb)
	require.NoError(t, err)
	assert.Equal(t, 2.0, promtest.ToFloat64(m.FilesParsed))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.FilesFailed))
	assert.Equal(t, 48.0, promtest.ToFloat64(m.RecordsIngested))
	assert.Equal(t, 48.0, promtest.ToFloat64(m.DatasetRecords))

	// Unchanged files leave the counters alone.
	_, err = index.Sync(context.Background(), db, store, cfg.Input.Extension, logger, cb)
	require.NoError(t, err)
	assert.Equal(t, 2.0, promtest.ToFloat64(m.FilesParsed))

	require.NoError(t, os.Remove(filepath.Join(cfg.Input.Path, "2023-01-15.csv")))
	_, err = index.Sync(context.Background(), db, store, cfg.Input.Extension, logger, cb)
	require.NoError(t, err)
	assert.Equal(t, 1.0, promtest.ToFloat64(m.FilesRemoved))
	assert.Equal(t, 24.0, promtest.ToFloat64(m.DatasetRecords))
}

func TestHandler_HealthAndMetrics(t *testing.T) {
	cfg := testConfig(t)
	_, db, err := openIndex(cfg)
	require.NoError(t, err)
	defer db.Close()

	broker := sse.NewBroker(time.Second)
	defer broker.Close()
	h := newHandler(cfg, db, nil, broker, metrics.New(broker.ClientCount))

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	w := get("/health/live")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = get("/health/ready")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","records":0}`, w.Body.String())

	w = get("/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "demanda_dataset_records")
	assert.Contains(t, w.Body.String(), "demanda_sse_clients 0")

	w = get("/api/summary")
	assert.Equal(t, http.StatusOK, w.Code)
}
