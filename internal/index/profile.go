package index

import (
	"fmt"
	"strings"
	"time"

	"github.com/starford/demanda/internal/apperr"
)

// ProfileKind selects the grouping of a demand profile.
type ProfileKind string

const (
	ProfileHourly   ProfileKind = "hourly"
	ProfileWeekly   ProfileKind = "weekly"
	ProfileMonthly  ProfileKind = "monthly"
	ProfileSeasonal ProfileKind = "seasonal"
)

// ProfileKinds lists every supported kind.
var ProfileKinds = []ProfileKind{ProfileHourly, ProfileWeekly, ProfileMonthly, ProfileSeasonal}

// ParseProfileKind validates a kind name, case-insensitively.
func ParseProfileKind(s string) (ProfileKind, error) {
	k := ProfileKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range ProfileKinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: unknown profile %q", apperr.ErrInvalidArgument, s)
}

// Season indexes as returned in seasonal profiles.
var seasonNames = [...]string{"winter", "spring", "summer", "autumn"}

// ColumnStats describes one numeric column.
type ColumnStats struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Summary is the descriptive overview of the stored dataset.
type Summary struct {
	Sources        int         `json:"sources"`
	Failures       int         `json:"failures"`
	Records        int         `json:"records"`
	Regions        int         `json:"regions"`
	SubAreas       int         `json:"sub_areas"`
	FirstDate      string      `json:"first_date,omitempty"`
	LastDate       string      `json:"last_date,omitempty"`
	Generation     ColumnStats `json:"generation"`
	Imports        ColumnStats `json:"imports"`
	Exports        ColumnStats `json:"exports"`
	NetExchange    ColumnStats `json:"net_exchange"`
	MissingNetExch int         `json:"net_exchange_missing"`
	Demand         ColumnStats `json:"demand"`
}

// Bucket is one group of a demand profile.
type Bucket struct {
	Key   int     `json:"key"`
	Label string  `json:"label"`
	Count int     `json:"count"`
	Mean  float64 `json:"mean_demand"`
	Min   float64 `json:"min_demand"`
	Max   float64 `json:"max_demand"`
}

// Summary computes column statistics, optionally restricted to one region.
func (db *DB) Summary(region string) (*Summary, error) {
	s := &Summary{}
	err := db.conn.QueryRow(`
		SELECT count(*), count(DISTINCT region), count(DISTINCT region || '/' || sub_area)
		FROM records WHERE (? = '' OR region = ?)
	`, region, region).Scan(&s.Records, &s.Regions, &s.SubAreas)
	if err != nil {
		return nil, fmt.Errorf("index: summary counts: %w", err)
	}
	if err := db.conn.QueryRow(`SELECT count(*) FROM sources`).Scan(&s.Sources); err != nil {
		return nil, fmt.Errorf("index: summary sources: %w", err)
	}
	if err := db.conn.QueryRow(`SELECT count(*) FROM failures`).Scan(&s.Failures); err != nil {
		return nil, fmt.Errorf("index: summary failures: %w", err)
	}

	var first, last *string
	if err := db.conn.QueryRow(`SELECT min(report_date), max(report_date) FROM sources`).Scan(&first, &last); err != nil {
		return nil, fmt.Errorf("index: summary dates: %w", err)
	}
	if first != nil {
		s.FirstDate = *first
	}
	if last != nil {
		s.LastDate = *last
	}

	cols := []struct {
		name string
		dst  *ColumnStats
	}{
		{"generation", &s.Generation},
		{"imports", &s.Imports},
		{"exports", &s.Exports},
		{"net_exchange", &s.NetExchange},
		{"demand", &s.Demand},
	}
	for _, c := range cols {
		// count(col) skips NULLs, which is how missing net exchange is stored.
		q := fmt.Sprintf(`
			SELECT count(%[1]s), coalesce(avg(%[1]s), 0), coalesce(min(%[1]s), 0), coalesce(max(%[1]s), 0)
			FROM records WHERE (? = '' OR region = ?)`, c.name)
		if err := db.conn.QueryRow(q, region, region).Scan(&c.dst.Count, &c.dst.Mean, &c.dst.Min, &c.dst.Max); err != nil {
			return nil, fmt.Errorf("index: summary %s: %w", c.name, err)
		}
	}
	s.MissingNetExch = s.Records - s.NetExchange.Count
	return s, nil
}

// Profile groups demand by kind, optionally restricted to one region.
// Weekly, monthly and seasonal profiles only include records whose source
// file carries a report date. Weekday keys follow time.Weekday (Sunday = 0).
func (db *DB) Profile(kind ProfileKind, region string) ([]Bucket, error) {
	var keyExpr string
	switch kind {
	case ProfileHourly:
		keyExpr = `r.hour`
	case ProfileWeekly:
		keyExpr = `CAST(strftime('%w', s.report_date) AS INTEGER)`
	case ProfileMonthly:
		keyExpr = `CAST(strftime('%m', s.report_date) AS INTEGER)`
	case ProfileSeasonal:
		keyExpr = `CASE CAST(strftime('%m', s.report_date) AS INTEGER)
			WHEN 12 THEN 0 WHEN 1 THEN 0 WHEN 2 THEN 0
			WHEN 3 THEN 1 WHEN 4 THEN 1 WHEN 5 THEN 1
			WHEN 6 THEN 2 WHEN 7 THEN 2 WHEN 8 THEN 2
			ELSE 3 END`
	default:
		return nil, fmt.Errorf("%w: unknown profile %q", apperr.ErrInvalidArgument, kind)
	}

	dated := ""
	if kind != ProfileHourly {
		dated = `AND s.report_date IS NOT NULL`
	}

	rows, err := db.conn.Query(`
		SELECT `+keyExpr+` AS k, count(*), avg(r.demand), min(r.demand), max(r.demand)
		FROM records r JOIN sources s ON s.name = r.source
		WHERE (? = '' OR r.region = ?) `+dated+`
		GROUP BY k
		ORDER BY k
	`, region, region)
	if err != nil {
		return nil, fmt.Errorf("index: profile %s: %w", kind, err)
	}
	defer rows.Close()

	var out []Bucket
	for rows.Next() {
		var b Bucket
		if err := rows.Scan(&b.Key, &b.Count, &b.Mean, &b.Min, &b.Max); err != nil {
			return nil, err
		}
		b.Label = bucketLabel(kind, b.Key)
		out = append(out, b)
	}
	return out, rows.Err()
}

func bucketLabel(kind ProfileKind, key int) string {
	switch kind {
	case ProfileWeekly:
		if key >= 0 && key <= 6 {
			return time.Weekday(key).String()
		}
	case ProfileMonthly:
		if key >= 1 && key <= 12 {
			return time.Month(key).String()
		}
	case ProfileSeasonal:
		if key >= 0 && key < len(seasonNames) {
			return seasonNames[key]
		}
	}
	return fmt.Sprintf("%02d", key)
}
