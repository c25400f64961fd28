package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/demanda/internal/apperr"
	"github.com/starford/demanda/internal/index"
	"github.com/starford/demanda/internal/models"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// SyncFunc runs one sync pass of the input directory.
type SyncFunc func(ctx context.Context) (index.SyncStats, error)

// Handler holds API route handlers.
type Handler struct {
	db   index.Reader
	sync SyncFunc
}

// NewHandler creates a new Handler.
func NewHandler(db index.Reader, sync SyncFunc) *Handler {
	return &Handler{db: db, sync: sync}
}

// queryInt reads a non-negative integer query parameter.
func queryInt(q url.Values, key string, def int) (int, error) {
	raw := q.Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", apperr.ErrInvalidArgument, key)
	}
	return n, nil
}

// ListSources handles GET /api/sources.
//
//	@Summary		List indexed input files in discovery order
//	@Tags			sources
//	@Produce		json
//	@Success		200	{object}	SourceListResponse
//	@Security		BearerAuth
//	@Router			/sources [get]
func (h *Handler) ListSources(w http.ResponseWriter, r *http.Request) {
	rows, err := h.db.Sources()
	if err != nil {
		writeError(w, "list sources", err)
		return
	}
	if rows == nil {
		rows = []SourceRow{}
	}
	writeJSON(w, http.StatusOK, SourceListResponse{Sources: rows, Total: len(rows)})
}

// GetSource handles GET /api/sources/{name}.
//
//	@Summary		Get one indexed input file
//	@Tags			sources
//	@Produce		json
//	@Param			name	path		string	true	"File name"
//	@Success		200		{object}	SourceRow
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sources/{name} [get]
func (h *Handler) GetSource(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil || name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name is required"))
		return
	}
	src, err := h.db.GetSource(name)
	if err != nil {
		writeError(w, "get source", err)
		return
	}
	writeJSON(w, http.StatusOK, src)
}

// ListFailures handles GET /api/failures.
//
//	@Summary		List input files rejected by the parser
//	@Tags			sources
//	@Produce		json
//	@Success		200	{object}	FailureListResponse
//	@Security		BearerAuth
//	@Router			/failures [get]
func (h *Handler) ListFailures(w http.ResponseWriter, r *http.Request) {
	rows, err := h.db.Failures()
	if err != nil {
		writeError(w, "list failures", err)
		return
	}
	if rows == nil {
		rows = []FailureRow{}
	}
	writeJSON(w, http.StatusOK, FailureListResponse{Failures: rows, Total: len(rows)})
}

// ListRecords handles GET /api/records.
//
//	@Summary		List dataset records with optional filtering and pagination
//	@Tags			dataset
//	@Produce		json
//	@Param			region		query		string	false	"Region code"
//	@Param			sub_area	query		string	false	"Sub-area code"
//	@Param			source		query		string	false	"Source file name"
//	@Param			limit		query		int		false	"Page size (max 1000)"
//	@Param			offset		query		int		false	"Page offset"
//	@Success		200			{object}	RecordListResponse
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records [get]
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(q, "limit", defaultLimit)
	if err != nil {
		writeError(w, "list records", err)
		return
	}
	offset, err := queryInt(q, "offset", 0)
	if err != nil {
		writeError(w, "list records", err)
		return
	}
	if limit == 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)

	recs, total, err := h.db.Records(index.RecordFilter{
		Region:  q.Get("region"),
		SubArea: q.Get("sub_area"),
		Source:  q.Get("source"),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		writeError(w, "list records", err)
		return
	}
	if recs == nil {
		recs = []models.Record{}
	}
	writeJSON(w, http.StatusOK, RecordListResponse{Records: recs, Total: total, Limit: limit, Offset: offset})
}

// Summary handles GET /api/summary.
//
//	@Summary		Descriptive statistics of the dataset
//	@Tags			dataset
//	@Produce		json
//	@Param			region	query		string	false	"Region code"
//	@Success		200		{object}	index.Summary
//	@Security		BearerAuth
//	@Router			/summary [get]
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	s, err := h.db.Summary(r.URL.Query().Get("region"))
	if err != nil {
		writeError(w, "summary", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Profile handles GET /api/profiles/{kind}.
//
//	@Summary		Mean demand grouped by hour, weekday, month or season
//	@Tags			dataset
//	@Produce		json
//	@Param			kind	path		string	true	"Profile kind"	Enums(hourly, weekly, monthly, seasonal)
//	@Param			region	query		string	false	"Region code"
//	@Success		200		{object}	ProfileResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/profiles/{kind} [get]
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	kind, err := index.ParseProfileKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, "profile", err)
		return
	}
	region := r.URL.Query().Get("region")
	buckets, err := h.db.Profile(kind, region)
	if err != nil {
		writeError(w, "profile", err)
		return
	}
	if buckets == nil {
		buckets = []index.Bucket{}
	}
	writeJSON(w, http.StatusOK, ProfileResponse{Kind: kind, Region: region, Buckets: buckets})
}

// Sync handles POST /api/sync.
//
//	@Summary		Re-scan the input directory now
//	@Tags			sources
//	@Produce		json
//	@Success		200	{object}	SyncResponse
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sync [post]
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	if h.sync == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("sync unavailable"))
		return
	}
	stats, err := h.sync(r.Context())
	if err != nil {
		writeError(w, "sync", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
