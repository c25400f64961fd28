package api

import (
	"github.com/starford/demanda/internal/index"
	"github.com/starford/demanda/internal/models"
)

// SourceRow is an indexed input file (aliased from the index layer).
type SourceRow = index.SourceRow

// FailureRow is a rejected input file (aliased from the index layer).
type FailureRow = index.FailureRow

// SourceListResponse wraps the list of indexed files.
type SourceListResponse struct {
	Sources []SourceRow `json:"sources" validate:"required"`
	Total   int         `json:"total" example:"365" validate:"required"`
}

// FailureListResponse wraps the list of rejected files.
type FailureListResponse struct {
	Failures []FailureRow `json:"failures" validate:"required"`
	Total    int          `json:"total" example:"2" validate:"required"`
}

// RecordListResponse wraps a page of dataset records.
type RecordListResponse struct {
	Records []models.Record `json:"records" validate:"required"`
	Total   int             `json:"total" example:"8760" validate:"required"`
	Limit   int             `json:"limit" example:"100"`
	Offset  int             `json:"offset" example:"0"`
}

// ProfileResponse is a grouped demand profile.
type ProfileResponse struct {
	Kind    index.ProfileKind `json:"kind" example:"hourly" validate:"required"`
	Region  string            `json:"region,omitempty" example:"SIN"`
	Buckets []index.Bucket    `json:"buckets" validate:"required"`
}

// SyncResponse reports what a sync pass did.
type SyncResponse = index.SyncStats
