package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/demanda/internal/apperr"
	"github.com/starford/demanda/internal/models"
)

const dateLayout = "2006-01-02"

// SourceRow represents a row in the sources table.
type SourceRow struct {
	Name       string    `json:"name"`
	Checksum   string    `json:"checksum"`
	ReportDate time.Time `json:"report_date"`
	Header     []string  `json:"header"`
	Rows       int       `json:"rows"`
	IndexedAt  time.Time `json:"indexed_at"`
}

// FailureRow represents a row in the failures table.
type FailureRow struct {
	Name     string    `json:"name"`
	Checksum string    `json:"checksum"`
	Line     int       `json:"line"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

// RecordFilter narrows a Records query. Empty strings match everything.
type RecordFilter struct {
	Region  string
	SubArea string
	Source  string
	Limit   int
	Offset  int
}

// ReplaceSource stores a successfully parsed file and its records within a
// transaction, replacing any previous version and clearing a recorded failure.
func (db *DB) ReplaceSource(src SourceRow, records []models.Record) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	headerJSON, _ := json.Marshal(src.Header)
	indexedAt := src.IndexedAt
	if indexedAt.IsZero() {
		indexedAt = time.Now().UTC()
	}

	_, err = tx.Exec(`
		INSERT INTO sources (name, checksum, report_date, header, rows, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			checksum    = excluded.checksum,
			report_date = excluded.report_date,
			header      = excluded.header,
			rows        = excluded.rows,
			indexed_at  = excluded.indexed_at
	`, src.Name, src.Checksum, nullDate(src.ReportDate), string(headerJSON), len(records), indexedAt)
	if err != nil {
		return fmt.Errorf("index: upsert source: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM records WHERE source = ?`, src.Name); err != nil {
		return fmt.Errorf("index: clear records: %w", err)
	}
	if len(records) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO records (source, line, region, sub_area, hour, generation, imports, exports, net_exchange, demand)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("index: prepare record insert: %w", err)
		}
		defer stmt.Close()
		for _, r := range records {
			if _, err := stmt.Exec(src.Name, r.Line, r.Region, r.SubArea, r.Hour,
				r.Generation, r.Imports, r.Exports, r.NetExchange.Pointer(), r.Demand); err != nil {
				return fmt.Errorf("index: insert record %s:%d: %w", src.Name, r.Line, err)
			}
		}
	}

	if _, err := tx.Exec(`DELETE FROM failures WHERE name = ?`, src.Name); err != nil {
		return fmt.Errorf("index: clear failure: %w", err)
	}
	return tx.Commit()
}

// RecordFailure stores a parse failure for a file and drops any previously
// indexed version of it, so a broken file never contributes stale rows.
func (db *DB) RecordFailure(f FailureRow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	failedAt := f.FailedAt
	if failedAt.IsZero() {
		failedAt = time.Now().UTC()
	}
	if _, err := tx.Exec(`DELETE FROM sources WHERE name = ?`, f.Name); err != nil {
		return fmt.Errorf("index: drop source: %w", err)
	}
	_, err = tx.Exec(`
		INSERT INTO failures (name, checksum, line, error, failed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			checksum  = excluded.checksum,
			line      = excluded.line,
			error     = excluded.error,
			failed_at = excluded.failed_at
	`, f.Name, f.Checksum, f.Line, f.Error, failedAt)
	if err != nil {
		return fmt.Errorf("index: upsert failure: %w", err)
	}
	return tx.Commit()
}

// DeleteSource removes a file, its records and any failure entry.
func (db *DB) DeleteSource(name string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, _ = tx.Exec(`DELETE FROM records WHERE source = ?`, name)
	_, _ = tx.Exec(`DELETE FROM sources WHERE name = ?`, name)
	_, _ = tx.Exec(`DELETE FROM failures WHERE name = ?`, name)

	return tx.Commit()
}

// GetChecksum returns the stored checksum for a file (indexed or failed), or
// empty string if the file is unknown.
func (db *DB) GetChecksum(name string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`
		SELECT checksum FROM sources WHERE name = ?
		UNION ALL
		SELECT checksum FROM failures WHERE name = ?
		LIMIT 1
	`, name, name).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

// AllChecksums returns name → checksum for every indexed or failed file.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`
		SELECT name, checksum FROM sources
		UNION ALL
		SELECT name, checksum FROM failures
	`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var name, cs string
		if err := rows.Scan(&name, &cs); err != nil {
			return nil, err
		}
		out[name] = cs
	}
	return out, rows.Err()
}

// GetSource returns one indexed file or apperr.ErrNotFound.
func (db *DB) GetSource(name string) (*SourceRow, error) {
	rows, err := db.querySources(`WHERE name = ?`, name)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperr.ErrNotFound
	}
	return &rows[0], nil
}

// Sources returns every indexed file ordered by name, which is discovery order.
func (db *DB) Sources() ([]SourceRow, error) {
	return db.querySources("")
}

func (db *DB) querySources(where string, args ...any) ([]SourceRow, error) {
	rows, err := db.conn.Query(`
		SELECT name, checksum, report_date, header, rows, indexed_at
		FROM sources `+where+`
		ORDER BY name
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("index: sources: %w", err)
	}
	defer rows.Close()

	var out []SourceRow
	for rows.Next() {
		var (
			s          SourceRow
			reportDate sql.NullString
			header     string
		)
		if err := rows.Scan(&s.Name, &s.Checksum, &reportDate, &header, &s.Rows, &s.IndexedAt); err != nil {
			return nil, err
		}
		if reportDate.Valid {
			s.ReportDate, _ = time.Parse(dateLayout, reportDate.String)
		}
		_ = json.Unmarshal([]byte(header), &s.Header)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Failures returns every recorded parse failure ordered by name.
func (db *DB) Failures() ([]FailureRow, error) {
	rows, err := db.conn.Query(`
		SELECT name, checksum, line, error, failed_at
		FROM failures
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("index: failures: %w", err)
	}
	defer rows.Close()

	var out []FailureRow
	for rows.Next() {
		var f FailureRow
		if err := rows.Scan(&f.Name, &f.Checksum, &f.Line, &f.Error, &f.FailedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Records returns records matching f in dataset order (file name, then line)
// and the total number of matches ignoring Limit and Offset.
func (db *DB) Records(f RecordFilter) ([]models.Record, int, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	const where = `
		WHERE (? = '' OR region = ?)
		  AND (? = '' OR sub_area = ?)
		  AND (? = '' OR source = ?)`
	args := []any{f.Region, f.Region, f.SubArea, f.SubArea, f.Source, f.Source}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM records`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count records: %w", err)
	}

	rows, err := db.conn.Query(`
		SELECT source, line, region, sub_area, hour, generation, imports, exports, net_exchange, demand
		FROM records`+where+`
		ORDER BY source, line
		LIMIT ? OFFSET ?
	`, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: records: %w", err)
	}
	defer rows.Close()

	var out []models.Record
	for rows.Next() {
		var (
			r  models.Record
			ex sql.NullFloat64
		)
		if err := rows.Scan(&r.Source, &r.Line, &r.Region, &r.SubArea, &r.Hour,
			&r.Generation, &r.Imports, &r.Exports, &ex, &r.Demand); err != nil {
			return nil, 0, err
		}
		if ex.Valid {
			r.NetExchange = models.SomeExchange(ex.Float64)
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

// CountRecords returns the number of stored records.
func (db *DB) CountRecords() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT count(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: count records: %w", err)
	}
	return n, nil
}

func nullDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(dateLayout)
}
