package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/demanda/internal/apperr"
	"github.com/starford/demanda/internal/index"
	"github.com/starford/demanda/internal/storage"
	"github.com/starford/demanda/internal/testutil"
)

type testEnv struct {
	dir    string
	store  storage.Provider
	db     *index.DB
	router http.Handler
}

// newTestEnv sets up a temp input dir, SQLite DB and router.
// An empty token means auth disabled.
func newTestEnv(t *testing.T, token string) *testEnv {
	t.Helper()
	dir, store := testutil.InputDir(t)
	db, err := index.Open(filepath.Join(t.TempDir(), "api-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	sync := func(ctx context.Context) (index.SyncStats, error) {
		return index.Sync(ctx, db, store, ".csv", logger, nil)
	}
	return &testEnv{
		dir:    dir,
		store:  store,
		db:     db,
		router: NewRouter(db, sync, token != "", token, nil),
	}
}

func (e *testEnv) seed(t *testing.T) {
	t.Helper()
	testutil.WriteSource(t, e.dir, "2023-01-15.csv", testutil.DayRows("SIN", "CENTRAL"))
	testutil.WriteSource(t, e.dir, "2023-07-04.csv", testutil.DayRows("BCA", "MEXICALI"))
	testutil.WriteFile(t, e.dir, "broken.csv", []byte(testutil.Malformed))
	w := e.do(t, http.MethodPost, "/sync", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func (e *testEnv) do(t *testing.T, method, target, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestSyncEndpoint(t *testing.T) {
	e := newTestEnv(t, "")
	testutil.WriteSource(t, e.dir, "a.csv", testutil.DayRows("SIN", "CENTRAL"))
	testutil.WriteFile(t, e.dir, "b.csv", []byte("junk"))

	w := e.do(t, http.MethodPost, "/sync", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, index.SyncStats{Indexed: 1, Failed: 1}, decode[SyncResponse](t, w))

	w = e.do(t, http.MethodPost, "/sync", "")
	assert.Equal(t, index.SyncStats{Unchanged: 2}, decode[SyncResponse](t, w))
}

func TestSyncUnavailable(t *testing.T) {
	db, err := index.Open(filepath.Join(t.TempDir(), "x.db"))
	require.NoError(t, err)
	defer db.Close()

	w := httptest.NewRecorder()
	NewRouter(db, nil, false, "", nil).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sync", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestListSourcesAndFailures(t *testing.T) {
	e := newTestEnv(t, "")

	w := e.do(t, http.MethodGet, "/sources", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"sources":[],"total":0}`, w.Body.String())

	e.seed(t)

	w = e.do(t, http.MethodGet, "/sources", "")
	srcs := decode[SourceListResponse](t, w)
	require.Equal(t, 2, srcs.Total)
	assert.Equal(t, "2023-01-15.csv", srcs.Sources[0].Name)
	assert.Equal(t, 24, srcs.Sources[0].Rows)

	w = e.do(t, http.MethodGet, "/failures", "")
	fails := decode[FailureListResponse](t, w)
	require.Equal(t, 1, fails.Total)
	assert.Equal(t, "broken.csv", fails.Failures[0].Name)
	assert.NotEmpty(t, fails.Failures[0].Error)
}

func TestGetSource(t *testing.T) {
	e := newTestEnv(t, "")
	e.seed(t)

	w := e.do(t, http.MethodGet, "/sources/2023-07-04.csv", "")
	require.Equal(t, http.StatusOK, w.Code)
	src := decode[SourceRow](t, w)
	assert.Equal(t, 2023, src.ReportDate.Year())
	assert.Len(t, src.Header, 8)

	w = e.do(t, http.MethodGet, "/sources/nope.csv", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListRecords(t *testing.T) {
	e := newTestEnv(t, "")
	e.seed(t)

	w := e.do(t, http.MethodGet, "/records?region=SIN&limit=5&offset=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[RecordListResponse](t, w)
	assert.Equal(t, 24, page.Total)
	assert.Equal(t, 5, page.Limit)
	require.Len(t, page.Records, 5)
	assert.Equal(t, 3, page.Records[0].Hour)
	assert.Equal(t, "2023-01-15.csv", page.Records[0].Source)

	// Raw JSON carries null for normalized sentinel cells.
	var raw struct {
		Records []map[string]any `json:"records"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.Nil(t, raw.Records[0]["net_exchange"])
	assert.Equal(t, 20.0, raw.Records[1]["net_exchange"])

	w = e.do(t, http.MethodGet, "/records?limit=5000", "")
	assert.Equal(t, maxLimit, decode[RecordListResponse](t, w).Limit)

	w = e.do(t, http.MethodGet, "/records?sub_area=NOWHERE", "")
	assert.JSONEq(t, `{"records":[],"total":0,"limit":100,"offset":0}`, w.Body.String())
}

func TestListRecords_BadPaging(t *testing.T) {
	e := newTestEnv(t, "")
	for _, q := range []string{"limit=abc", "offset=-1"} {
		w := e.do(t, http.MethodGet, "/records?"+q, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestSummaryEndpoint(t *testing.T) {
	e := newTestEnv(t, "")
	e.seed(t)

	w := e.do(t, http.MethodGet, "/summary", "")
	require.Equal(t, http.StatusOK, w.Code)
	s := decode[index.Summary](t, w)
	assert.Equal(t, 48, s.Records)
	assert.Equal(t, 1, s.Failures)
	assert.InDelta(t, 1125.0, s.Demand.Mean, 1e-9)

	w = e.do(t, http.MethodGet, "/summary?region=BCA", "")
	assert.Equal(t, 24, decode[index.Summary](t, w).Records)
}

func TestProfileEndpoint(t *testing.T) {
	e := newTestEnv(t, "")
	e.seed(t)

	for kind, buckets := range map[string]int{"hourly": 24, "weekly": 2, "monthly": 2, "seasonal": 2} {
		t.Run(kind, func(t *testing.T) {
			w := e.do(t, http.MethodGet, "/profiles/"+kind, "")
			require.Equal(t, http.StatusOK, w.Code)
			p := decode[ProfileResponse](t, w)
			assert.Equal(t, index.ProfileKind(kind), p.Kind)
			assert.Len(t, p.Buckets, buckets)
		})
	}

	w := e.do(t, http.MethodGet, "/profiles/hourly?region=SIN", "")
	p := decode[ProfileResponse](t, w)
	assert.Equal(t, "SIN", p.Region)
	assert.Equal(t, 1, p.Buckets[0].Count)

	w = e.do(t, http.MethodGet, "/profiles/yearly", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthToken(t *testing.T) {
	e := newTestEnv(t, "secret")

	w := e.do(t, http.MethodGet, "/sources", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"unauthorized"}`, w.Body.String())

	w = e.do(t, http.MethodGet, "/sources", "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(t, http.MethodGet, "/sources", "secret")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthDisabled(t *testing.T) {
	e := newTestEnv(t, "")
	w := e.do(t, http.MethodGet, "/failures", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMountedUnderAPI(t *testing.T) {
	e := newTestEnv(t, "")
	root := chi.NewRouter()
	root.Mount("/api", e.router)

	w := httptest.NewRecorder()
	root.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/summary", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWriteError(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{apperr.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("wrap: %w", apperr.ErrInvalidArgument), http.StatusBadRequest},
		{apperr.ErrDirectoryNotFound, http.StatusServiceUnavailable},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, c := range cases {
		w := httptest.NewRecorder()
		writeError(w, "test", c.err)
		assert.Equal(t, c.code, w.Code, c.err.Error())
	}
}
