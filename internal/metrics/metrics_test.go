package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New(nil)
	m.Parsed(24)
	m.Parsed(10)
	m.Failed()
	m.Removed()
	m.SetDatasetSize(34)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FilesParsed))
	assert.Equal(t, 34.0, testutil.ToFloat64(m.RecordsIngested))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FilesFailed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FilesRemoved))
	assert.Equal(t, 34.0, testutil.ToFloat64(m.DatasetRecords))
	assert.Nil(t, m.SSEClients)
}

func TestSSEClientsGauge(t *testing.T) {
	n := 3
	m := New(func() int { return n })
	require.NotNil(t, m.SSEClients)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SSEClients))
	n = 5
	assert.Equal(t, 5.0, testutil.ToFloat64(m.SSEClients))
}

func TestHandler(t *testing.T) {
	m := New(func() int { return 1 })
	m.Parsed(7)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "demanda_files_parsed_total 1")
	assert.Contains(t, string(body), "demanda_records_ingested_total 7")
	assert.Contains(t, string(body), "demanda_sse_clients 1")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestSeparateRegistries(t *testing.T) {
	a, b := New(nil), New(nil)
	a.Failed()
	assert.Zero(t, testutil.ToFloat64(b.FilesFailed))
	assert.NotSame(t, a.Registry(), b.Registry())
}
