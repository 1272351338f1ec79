// Package dataprep turns raw service-request records into a dense daily table
// with calendar, lag and rolling features.
package dataprep

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/HatiCode/demandcast/pkg/adapters"
	"github.com/HatiCode/demandcast/pkg/calendar"
	"github.com/HatiCode/demandcast/pkg/features"
	"github.com/HatiCode/demandcast/pkg/tabular"
)

// DailyRecord is one prepared calendar day. Every feature is defined.
type DailyRecord struct {
	Date         time.Time `json:"date"`
	RequestCount float64   `json:"requestCount"`
	TotalValue   float64   `json:"totalValue"`
	features.Vector
}

// Options configures Prepare.
type Options struct {
	// Holidays overrides the holiday calendar. When nil the Indonesian
	// calendar for every year spanned by the data is used.
	Holidays features.HolidayChecker

	// Location converts zoned timestamps before taking the calendar date.
	// Timestamps without a zone are wall-clock times and keep their date.
	// Nil keeps each timestamp's own wall clock.
	Location *time.Location
}

// ParseError reports a cell that could not be coerced.
type ParseError struct {
	Row    int // 1-based data row
	Column string
	Value  any
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("row %d: column %q: cannot parse %v: %v", e.Row, e.Column, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// DailyTotal is an aggregated day before feature construction.
type DailyTotal struct {
	Date         time.Time
	RequestCount float64
	TotalValue   float64
}

// Load collects raw records from an adapter and prepares them.
func Load(ctx context.Context, a adapters.Adapter, opts Options) ([]DailyRecord, error) {
	df, err := a.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("collect from %s: %w", a.Name(), err)
	}
	return Prepare(df, opts)
}

// Prepare aggregates raw records by calendar date and builds the feature table.
// Rolling statistics exclude the current day. The first features.MaxLag days
// never have a full feature set and are dropped. An input that aggregates to
// no days yields an empty slice and a nil error.
func Prepare(df *adapters.DataFrame, opts Options) ([]DailyRecord, error) {
	totals, err := Aggregate(df, opts.Location)
	if err != nil {
		return nil, err
	}
	if len(totals) == 0 {
		return []DailyRecord{}, nil
	}

	holidays := opts.Holidays
	if holidays == nil {
		holidays = calendar.Indonesia(spannedYears(totals)...)
	}
	b := features.NewBuilder(holidays, true)

	dates := make([]time.Time, len(totals))
	counts := make([]float64, len(totals))
	for i, t := range totals {
		dates[i] = t.Date
		counts[i] = t.RequestCount
	}

	out := make([]DailyRecord, 0, max(len(totals)-features.MaxLag, 0))
	for i, t := range totals {
		v, ok := b.At(dates, counts, i)
		if !ok {
			continue
		}
		out = append(out, DailyRecord{
			Date:         t.Date,
			RequestCount: t.RequestCount,
			TotalValue:   t.TotalValue,
			Vector:       v,
		})
	}
	return out, nil
}

// Aggregate detects the input layout, coerces each record and sums count and
// value per calendar date. Output is sorted by date. Records with an empty
// timestamp are skipped; empty numeric cells count as zero.
func Aggregate(df *adapters.DataFrame, loc *time.Location) ([]DailyTotal, error) {
	if df == nil || (len(df.Columns) == 0 && len(df.Rows) == 0) {
		return []DailyTotal{}, nil
	}
	columns := df.Columns
	if len(columns) == 0 && len(df.Rows) > 0 {
		for k := range df.Rows[0] {
			columns = append(columns, k)
		}
		slices.Sort(columns)
	}

	layout, err := DetectLayout(columns)
	if err != nil {
		return nil, err
	}

	byDate := make(map[time.Time]*DailyTotal)
	for i, row := range df.Rows {
		rawTS := row[layout.Timestamp]
		if isEmpty(rawTS) {
			continue
		}
		ts, zoned, err := parseTime(rawTS)
		if err != nil {
			return nil, &ParseError{Row: i + 1, Column: layout.Timestamp, Value: rawTS, Err: err}
		}
		if loc != nil && zoned {
			ts = ts.In(loc)
		}
		count, err := ParseNumber(row[layout.Count])
		if err != nil {
			return nil, &ParseError{Row: i + 1, Column: layout.Count, Value: row[layout.Count], Err: err}
		}
		value, err := ParseNumber(row[layout.Value])
		if err != nil {
			return nil, &ParseError{Row: i + 1, Column: layout.Value, Value: row[layout.Value], Err: err}
		}

		day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
		t, ok := byDate[day]
		if !ok {
			t = &DailyTotal{Date: day}
			byDate[day] = t
		}
		t.RequestCount += count
		t.TotalValue += value
	}

	out := make([]DailyTotal, 0, len(byDate))
	for _, t := range byDate {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func spannedYears(totals []DailyTotal) []int {
	first, last := totals[0].Date.Year(), totals[len(totals)-1].Date.Year()
	years := make([]int, 0, last-first+1)
	for y := first; y <= last; y++ {
		years = append(years, y)
	}
	return years
}

// zonedLayouts carry an offset; timeLayouts are wall-clock only.
var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05 -0700",
}

var timeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04",
	time.DateOnly,
	"2006/01/02",
	"2006/01/02 15:04:05",
	"01/02/2006",
	"1/2/2006",
	"1/2/2006 15:04",
	"1/2/2006 15:04:05",
	"1/2/06 15:04",
	"01-02-06",
	"02-01-2006",
	"02/01/2006",
}

// ParseTime coerces a timestamp cell. Strings are tried against common export
// layouts with month-first precedence for slash dates. Bare numbers in string
// cells are read as Excel date serials.
func ParseTime(v any) (time.Time, error) {
	t, _, err := parseTime(v)
	return t, err
}

// parseTime also reports whether the value carried a zone. Wall-clock strings,
// Excel serials and UTC time values (timestamp without time zone) do not.
func parseTime(v any) (time.Time, bool, error) {
	switch x := v.(type) {
	case time.Time:
		return x, x.Location() != time.UTC, nil
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range zonedLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true, nil
			}
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, false, nil
			}
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			t, err := excelize.ExcelDateToTime(f, false)
			return t, false, err
		}
		return time.Time{}, false, fmt.Errorf("unrecognized timestamp %q", s)
	case float64:
		t, err := excelize.ExcelDateToTime(x, false)
		return t, false, err
	case int64:
		t, err := excelize.ExcelDateToTime(float64(x), false)
		return t, false, err
	default:
		return time.Time{}, false, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

// ParseNumber coerces a numeric cell. Empty cells are zero.
func ParseNumber(v any) (float64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, err
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("non-finite value %q", s)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", v)
	}
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

// Series splits records into parallel date and count slices.
func Series(records []DailyRecord) ([]time.Time, []float64) {
	dates := make([]time.Time, len(records))
	counts := make([]float64, len(records))
	for i, r := range records {
		dates[i] = r.Date
		counts[i] = r.RequestCount
	}
	return dates, counts
}

// TableColumns is the column order of ToTable.
var TableColumns = append([]string{"tanggal", "jumlah_permohonan", "total_harga"}, features.Names...)

// ToTable renders records for CSV/XLSX export.
func ToTable(records []DailyRecord) *tabular.Table {
	t := &tabular.Table{Columns: TableColumns, Records: make([][]string, 0, len(records))}
	for _, r := range records {
		rec := make([]string, 0, len(TableColumns))
		rec = append(rec,
			r.Date.Format(time.DateOnly),
			formatFloat(r.RequestCount),
			formatFloat(r.TotalValue),
		)
		for _, v := range r.Values() {
			rec = append(rec, formatFloat(v))
		}
		t.Records = append(t.Records, rec)
	}
	return t
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
