package index

import "github.com/starford/demanda/internal/models"

// Store defines the read and write operations on the indexed dataset.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type Store interface {
	ReplaceSource(src SourceRow, records []models.Record) error
	RecordFailure(f FailureRow) error
	DeleteSource(name string) error
	GetChecksum(name string) (string, error)
	AllChecksums() (map[string]string, error)
	CountRecords() (int, error)

	Reader
}

// Reader is the read-only query surface used by the HTTP API and MCP tools.
type Reader interface {
	GetSource(name string) (*SourceRow, error)
	Sources() ([]SourceRow, error)
	Failures() ([]FailureRow, error)
	Records(f RecordFilter) ([]models.Record, int, error)
	Summary(region string) (*Summary, error)
	Profile(kind ProfileKind, region string) ([]Bucket, error)
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)
