package progress

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/demanda/internal/ingest"
	"github.com/starford/demanda/internal/testutil"
)

func TestTracker_Steps(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTracker(&buf)

	tr.Start(4)
	tr.Step(24, false)
	tr.Step(0, true)

	out := buf.String()
	assert.Contains(t, out, "\rFiles: 1/4 (25.0%) - 24 records, 0 failed")
	assert.Contains(t, out, "\rFiles: 2/4 (50.0%) - 24 records, 1 failed")
	assert.NotContains(t, out, "\n")
}

func TestTracker_FinishSetsTotal(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTracker(&buf)

	tr.Start(3)
	tr.Step(5, false)
	tr.Finish()

	out := buf.String()
	assert.Contains(t, out, "3/3 (100.0%)")
	assert.True(t, strings.HasSuffix(out, "\n"))
	assert.Zero(t, tr.Elapsed())
}

func TestTracker_CapsAtTotal(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTracker(&buf)

	tr.Start(1)
	tr.Step(1, false)
	tr.Step(1, false)
	assert.NotContains(t, buf.String(), "2/1")
}

func TestTracker_ZeroTotal(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTracker(&buf)
	tr.Start(0)
	tr.Finish()
	assert.Contains(t, buf.String(), "0/0 (0.0%)")
}

func TestTracker_NotStarted(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTracker(&buf)
	tr.Step(1, false)
	tr.Finish()
	assert.Empty(t, buf.String())
}

func TestTracker_ObserveStartsFromProgress(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTracker(&buf)

	tr.Observe(ingest.Progress{Done: 1, Total: 2, Rows: 24})
	tr.Observe(ingest.Progress{Done: 2, Total: 2, Err: errors.New("bad")})
	assert.Contains(t, buf.String(), "2/2 (100.0%) - 24 records, 1 failed")
}

func TestTracker_WithBuild(t *testing.T) {
	dir, _ := testutil.InputDir(t)
	testutil.WriteSource(t, dir, "a.csv", testutil.DayRows("SIN", "CENTRAL"))
	testutil.WriteSource(t, dir, "b.csv", testutil.DayRows("SIN", "NORTE"))

	var buf bytes.Buffer
	tr := NewTracker(&buf)
	_, err := ingest.Build(context.Background(), dir, ingest.WithWorkers(2), ingest.WithProgress(tr.Observe))
	require.NoError(t, err)
	tr.Finish()

	assert.Contains(t, buf.String(), "2/2 (100.0%) - 48 records, 0 failed")
}
