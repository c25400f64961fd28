// Package parser decodes per-day demand CSV files into typed records.
//
// A source file starts with MetadataLines lines of free-form report metadata,
// followed by a header row of Columns names and then one data row per
// region, sub-area and hour.
package parser

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/starford/demanda/internal/models"
)

// MetadataLines is the number of leading non-tabular lines in every source file.
const MetadataLines = 8

// Columns is the fixed column order of the data rows.
var Columns = [...]string{
	"region",
	"sub_area",
	"hour",
	"generation",
	"imports",
	"exports",
	"net_exchange",
	"demand",
}

const (
	colRegion = iota
	colSubArea
	colHour
	colGeneration
	colImports
	colExports
	colNetExchange
	colDemand
)

var (
	// ErrMissingHeader means the file ended before the header row.
	ErrMissingHeader = errors.New("missing header row")
	// ErrColumnCount means the header or a data row does not have len(Columns) fields.
	ErrColumnCount = errors.New("unexpected column count")
	// ErrInvalidValue means a cell could not be converted to its field type.
	ErrInvalidValue = errors.New("invalid value")
)

// ParseError reports why a single file could not be parsed.
type ParseError struct {
	File string
	Line int // 1-based; 0 when unknown
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parser: %s:%d: %v", e.File, e.Line, e.Err)
	}
	return fmt.Sprintf("parser: %s: %v", e.File, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Result holds the output of parsing one source file.
type Result struct {
	Header  []string // trimmed column names as found in the file
	Records []models.Record
}

// Parse decodes data from the file named source. The net-exchange sentinel is
// kept as models.ExchangePlaceholder; see ingest.Normalize.
func Parse(source string, data []byte) (*Result, error) {
	br := bufio.NewReader(bytes.NewReader(data))
	for i := 1; i <= MetadataLines; i++ {
		if _, err := br.ReadString('\n'); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, &ParseError{File: source, Line: i, Err: ErrMissingHeader}
			}
			return nil, &ParseError{File: source, Line: i, Err: err}
		}
	}

	header, err := readHeader(br)
	if err != nil {
		return nil, &ParseError{File: source, Line: MetadataLines + 1, Err: err}
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	out := &Result{Header: header}
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			line := 0
			var csvErr *csv.ParseError
			if errors.As(err, &csvErr) {
				line = csvErr.Line + MetadataLines + 1
			}
			return nil, &ParseError{File: source, Line: line, Err: err}
		}
		line, _ := cr.FieldPos(0)
		line += MetadataLines + 1
		if len(row) != len(Columns) {
			return nil, &ParseError{
				File: source,
				Line: line,
				Err:  fmt.Errorf("%w: row has %d, want %d", ErrColumnCount, len(row), len(Columns)),
			}
		}
		rec, err := parseRow(row)
		if err != nil {
			return nil, &ParseError{File: source, Line: line, Err: err}
		}
		rec.Source = source
		rec.Line = line
		out.Records = append(out.Records, rec)
	}
	return out, nil
}

// readHeader reads the line right after the metadata block. That line must
// be the header; a blank line there is a missing header.
func readHeader(br *bufio.Reader) ([]string, error) {
	raw, err := br.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	raw = strings.TrimRight(raw, "\r\n")
	if strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff")) == "" {
		return nil, ErrMissingHeader
	}

	cr := csv.NewReader(strings.NewReader(raw))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, err
	}
	if len(header) != len(Columns) {
		return nil, fmt.Errorf("%w: header has %d, want %d", ErrColumnCount, len(header), len(Columns))
	}
	for i, name := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
	}
	return header, nil
}

func parseRow(row []string) (models.Record, error) {
	var (
		rec models.Record
		err error
	)
	rec.Region = strings.TrimSpace(row[colRegion])
	if rec.Region == "" {
		return rec, fmt.Errorf("%w: empty %s", ErrInvalidValue, Columns[colRegion])
	}
	rec.SubArea = strings.TrimSpace(row[colSubArea])
	if rec.SubArea == "" {
		return rec, fmt.Errorf("%w: empty %s", ErrInvalidValue, Columns[colSubArea])
	}

	hour, err := strconv.Atoi(strings.TrimSpace(row[colHour]))
	if err != nil {
		return rec, fmt.Errorf("%w: %s %q", ErrInvalidValue, Columns[colHour], row[colHour])
	}
	if hour < 1 || hour > 24 {
		return rec, fmt.Errorf("%w: %s %d out of range [1,24]", ErrInvalidValue, Columns[colHour], hour)
	}
	rec.Hour = hour

	if rec.Generation, err = parseAmount(row, colGeneration); err != nil {
		return rec, err
	}
	if rec.Imports, err = parseAmount(row, colImports); err != nil {
		return rec, err
	}
	if rec.Exports, err = parseAmount(row, colExports); err != nil {
		return rec, err
	}
	if rec.NetExchange, err = parseExchange(row[colNetExchange]); err != nil {
		return rec, err
	}
	if rec.Demand, err = parseAmount(row, colDemand); err != nil {
		return rec, err
	}
	return rec, nil
}

func parseAmount(row []string, col int) (float64, error) {
	raw := row[col]
	v, err := parseNumber(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", ErrInvalidValue, Columns[col], raw)
	}
	return v, nil
}

func parseExchange(raw string) (models.Exchange, error) {
	s := strings.TrimSpace(raw)
	switch s {
	case "":
		return models.Exchange{State: models.ExchangeMissing}, nil
	case models.Sentinel:
		return models.Exchange{State: models.ExchangePlaceholder}, nil
	}
	v, err := parseNumber(s)
	if err != nil {
		return models.Exchange{}, fmt.Errorf("%w: %s %q", ErrInvalidValue, Columns[colNetExchange], raw)
	}
	return models.SomeExchange(v), nil
}

// parseNumber accepts thousands separators ("1,234.5") as emitted by quoted
// cells. NaN and infinities are rejected.
func parseNumber(raw string) (float64, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if s == "" {
		return 0, errors.New("empty")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("not a finite number")
	}
	return v, nil
}
