// Package models defines the domain types for demanda.
package models

import (
	"encoding/json"
	"time"
)

// Sentinel is the token source files use for "no value" in the net-exchange column.
const Sentinel = "---"

// ExchangeState describes what a net-exchange cell holds.
type ExchangeState uint8

const (
	// ExchangeMissing means the cell carries no value.
	ExchangeMissing ExchangeState = iota
	// ExchangeValue means Value holds a parsed number.
	ExchangeValue
	// ExchangePlaceholder means the cell held the Sentinel and has not been normalized yet.
	ExchangePlaceholder
)

// Exchange is the net inter-region exchange cell of a Record.
type Exchange struct {
	Value float64
	State ExchangeState
}

// Known reports whether the exchange carries a numeric value.
func (e Exchange) Known() bool { return e.State == ExchangeValue }

// Pointer returns the value as a *float64, nil unless Known.
func (e Exchange) Pointer() *float64 {
	if !e.Known() {
		return nil
	}
	v := e.Value
	return &v
}

// SomeExchange returns a known exchange value.
func SomeExchange(v float64) Exchange { return Exchange{Value: v, State: ExchangeValue} }

// SourceFile is one CSV file on disk.
type SourceFile struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	ReportDate time.Time `json:"report_date,omitempty"`
}

// Record is one row of the cleaned dataset.
type Record struct {
	Region      string   `json:"region"`
	SubArea     string   `json:"sub_area"`
	Hour        int      `json:"hour"`
	Generation  float64  `json:"generation"`
	Imports     float64  `json:"imports"`
	Exports     float64  `json:"exports"`
	NetExchange Exchange `json:"-"`
	Demand      float64  `json:"demand"`
	Source      string   `json:"source"`
	Line        int      `json:"line"`
}

// MarshalJSON encodes NetExchange as a number, or null when it is not known.
func (r Record) MarshalJSON() ([]byte, error) {
	type plain Record
	return json.Marshal(struct {
		plain
		NetExchange *float64 `json:"net_exchange"`
	}{plain(r), r.NetExchange.Pointer()})
}

// Dataset is the ordered concatenation of all parsed records:
// discovery order first, then row order within each file.
type Dataset []Record

// Failure records a file that could not be parsed.
type Failure struct {
	File string `json:"file"`
	Err  error  `json:"-"`
}

// Error returns the failure message.
func (f Failure) Error() string {
	if f.Err == nil {
		return f.File
	}
	return f.File + ": " + f.Err.Error()
}
