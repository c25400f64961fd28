// Package testutil provides shared test helpers for building input directories
// of source files.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/starford/demanda/internal/storage"
)

// Header is a header row as emitted by the publisher, stray whitespace included.
const Header = ` Sistema , Gerencia ,Hora, Generacion (MWh) , Importacion total (MWh),Exportacion total (MWh) ,  Intercambio neto entre Gerencias (MWh), Estimacion de Demanda por Balance (MWh) `

// Malformed is a source file that ends inside the metadata block.
const Malformed = "\"CENACE\"\n\"Reporte truncado\"\n\n"

// Row is one data row of a fixture file. NetExchange is written verbatim.
type Row struct {
	Region      string
	SubArea     string
	Hour        int
	Generation  float64
	Imports     float64
	Exports     float64
	NetExchange string
	Demand      float64
}

// DayRows returns 24 hourly rows for one sub-area. Demand is 1000+10*hour,
// odd hours carry the "---" sentinel in the net-exchange column.
func DayRows(region, subArea string) []Row {
	rows := make([]Row, 0, 24)
	for h := 1; h <= 24; h++ {
		ex := strconv.Itoa(h * 5)
		if h%2 == 1 {
			ex = "---"
		}
		rows = append(rows, Row{
			Region:      region,
			SubArea:     subArea,
			Hour:        h,
			Generation:  float64(900 + 10*h),
			Imports:     150,
			Exports:     50,
			NetExchange: ex,
			Demand:      float64(1000 + 10*h),
		})
	}
	return rows
}

// Content renders rows as a complete source file: metadata block, header, rows.
func Content(rows []Row) []byte {
	var b strings.Builder
	b.WriteString("\"CENACE\"\n")
	b.WriteString("\"Centro Nacional de Control de Energia\"\n")
	b.WriteString("\"Demanda, Generacion y Enlaces de Intercambio Netos en MWh por Hora\"\n")
	b.WriteString("\"Sistema Interconectado Nacional\"\n")
	b.WriteString("\n")
	b.WriteString("\"Fecha de operacion, 2023\"\n")
	b.WriteString("\"Valores preliminares\"\n")
	b.WriteString("\n")
	b.WriteString(Header)
	b.WriteString("\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%s,%s,%d,%s,%s,%s,%s,%s\n",
			r.Region, r.SubArea, r.Hour,
			formatFloat(r.Generation), formatFloat(r.Imports), formatFloat(r.Exports),
			r.NetExchange, formatFloat(r.Demand))
	}
	return []byte(b.String())
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteFile writes raw content to dir/name and returns the full path.
func WriteFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, content, 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

// WriteSource writes a well-formed source file holding rows.
func WriteSource(t *testing.T, dir, name string, rows []Row) string {
	t.Helper()
	return WriteFile(t, dir, name, Content(rows))
}

// InputDir creates a temporary input directory with a storage.Provider.
func InputDir(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}
