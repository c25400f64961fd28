// Package exporter writes a consolidated dataset as CSV or XLSX.
package exporter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/starford/demanda/internal/apperr"
	"github.com/starford/demanda/internal/models"
	"github.com/starford/demanda/internal/storage"
)

// Format is an output file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// SheetName is the worksheet holding the dataset in XLSX output.
const SheetName = "dataset"

// Columns is the header row of every export.
var Columns = []string{
	"source", "region", "sub_area", "hour",
	"generation", "imports", "exports", "net_exchange", "demand",
}

// ParseFormat validates a format name, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatXLSX:
		return f, nil
	}
	return "", fmt.Errorf("%w: unknown export format %q", apperr.ErrInvalidArgument, s)
}

// FormatFor picks the format from a file name's extension, defaulting to CSV.
func FormatFor(name string) Format {
	if strings.EqualFold(filepath.Ext(name), ".xlsx") {
		return FormatXLSX
	}
	return FormatCSV
}

// Write renders ds in format f to w.
func Write(w io.Writer, f Format, ds models.Dataset) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, ds)
	case FormatXLSX:
		return WriteXLSX(w, ds)
	}
	return fmt.Errorf("%w: unknown export format %q", apperr.ErrInvalidArgument, f)
}

// Save renders ds and writes it atomically to name inside store.
func Save(store storage.Provider, name string, f Format, ds models.Dataset) error {
	var buf bytes.Buffer
	if err := Write(&buf, f, ds); err != nil {
		return err
	}
	if err := store.Write(name, buf.Bytes()); err != nil {
		return fmt.Errorf("export: save %s: %w", name, err)
	}
	return nil
}

// WriteCSV writes ds as comma-separated values. A missing net exchange is
// written as an empty cell.
func WriteCSV(w io.Writer, ds models.Dataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("export: csv header: %w", err)
	}
	row := make([]string, len(Columns))
	for _, r := range ds {
		row[0] = r.Source
		row[1] = r.Region
		row[2] = r.SubArea
		row[3] = strconv.Itoa(r.Hour)
		row[4] = formatFloat(r.Generation)
		row[5] = formatFloat(r.Imports)
		row[6] = formatFloat(r.Exports)
		row[7] = ""
		if v := r.NetExchange.Pointer(); v != nil {
			row[7] = formatFloat(*v)
		}
		row[8] = formatFloat(r.Demand)
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("export: csv %s:%d: %w", r.Source, r.Line, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("export: csv flush: %w", err)
	}
	return nil
}

// WriteXLSX writes ds as a single-sheet workbook using the streaming writer.
// Datasets beyond the sheet row limit are rejected.
func WriteXLSX(w io.Writer, ds models.Dataset) error {
	if len(ds)+1 > excelize.TotalRows {
		return fmt.Errorf("%w: %d records exceed the xlsx row limit", apperr.ErrInvalidArgument, len(ds))
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("export: xlsx sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return fmt.Errorf("export: xlsx stream: %w", err)
	}

	header := make([]any, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("export: xlsx header: %w", err)
	}

	row := make([]any, len(Columns))
	for i, r := range ds {
		row[0] = r.Source
		row[1] = r.Region
		row[2] = r.SubArea
		row[3] = r.Hour
		row[4] = r.Generation
		row[5] = r.Imports
		row[6] = r.Exports
		row[7] = nil
		if v := r.NetExchange.Pointer(); v != nil {
			row[7] = *v
		}
		row[8] = r.Demand

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("export: xlsx cell: %w", err)
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("export: xlsx %s:%d: %w", r.Source, r.Line, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("export: xlsx flush: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("export: xlsx write: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
