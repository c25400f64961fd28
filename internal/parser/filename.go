package parser

import (
	"regexp"
	"time"
)

// Filename date layouts, tried in order. Day-first names are common in the
// published reports, ISO dates in re-downloaded batches.
var dateLayouts = []struct {
	re     *regexp.Regexp
	layout string
}{
	{regexp.MustCompile(`(?:^|\D)(\d{4}-\d{2}-\d{2})(?:\D|$)`), "2006-01-02"},
	{regexp.MustCompile(`(?:^|\D)(\d{4}_\d{2}_\d{2})(?:\D|$)`), "2006_01_02"},
	{regexp.MustCompile(`(?:^|\D)(\d{2}-\d{2}-\d{4})(?:\D|$)`), "02-01-2006"},
	{regexp.MustCompile(`(?:^|\D)(\d{2}_\d{2}_\d{4})(?:\D|$)`), "02_01_2006"},
	{regexp.MustCompile(`(?:^|\D)(\d{8})(?:\D|$)`), "20060102"},
}

// ReportDate extracts the reporting date embedded in a source file name.
// It returns false when no recognised, valid date is present.
func ReportDate(name string) (time.Time, bool) {
	for _, d := range dateLayouts {
		m := d.re.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		t, err := time.Parse(d.layout, m[1])
		if err != nil {
			continue
		}
		return t, true
	}
	return time.Time{}, false
}
