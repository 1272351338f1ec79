// Package analytics computes display-only statistics over the prepared daily
// history. Every function is pure and never modifies its input.
package analytics

import (
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/HatiCode/demandcast/pkg/dataprep"
)

// Float is a float64 that encodes NaN and ±Inf as JSON null.
type Float float64

func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
}

// Defined reports whether f is a finite number.
func (f Float) Defined() bool {
	return !math.IsNaN(float64(f)) && !math.IsInf(float64(f), 0)
}

// Summary mirrors a describe() table plus range and the mean day-over-day
// change. Undefined values are NaN.
type Summary struct {
	Count          int   `json:"count"`
	Mean           Float `json:"mean"`
	Std            Float `json:"std"`
	Min            Float `json:"min"`
	Q25            Float `json:"q25"`
	Q50            Float `json:"q50"`
	Q75            Float `json:"q75"`
	Max            Float `json:"max"`
	Range          Float `json:"range"`
	MeanDailyDelta Float `json:"meanDailyDelta"`
}

// Describe summarizes the request counts of history in date order.
func Describe(history []dataprep.DailyRecord) Summary {
	return DescribeValues(counts(sortedByDate(history)))
}

// DescribeValues summarizes an ordered sample. The delta uses the given order.
func DescribeValues(values []float64) Summary {
	nan := Float(math.NaN())
	s := Summary{
		Count: len(values),
		Mean:  nan, Std: nan, Min: nan, Q25: nan, Q50: nan, Q75: nan, Max: nan,
		Range: nan, MeanDailyDelta: nan,
	}
	if len(values) == 0 {
		return s
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	s.Mean = Float(mean)
	s.Min = Float(sorted[0])
	s.Max = Float(sorted[len(sorted)-1])
	s.Q25 = Float(quantile(sorted, 0.25))
	s.Q50 = Float(quantile(sorted, 0.50))
	s.Q75 = Float(quantile(sorted, 0.75))
	s.Range = s.Max - s.Min

	if len(values) > 1 {
		var ss float64
		for _, v := range values {
			d := v - mean
			ss += d * d
		}
		s.Std = Float(math.Sqrt(ss / float64(len(values)-1)))

		var deltas float64
		for i := 1; i < len(values); i++ {
			deltas += values[i] - values[i-1]
		}
		s.MeanDailyDelta = Float(deltas / float64(len(values)-1))
	}
	return s
}

// quantile uses linear interpolation between closest ranks on sorted data.
func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// MonthTotal is the request count summed over one calendar month.
type MonthTotal struct {
	Year  int     `json:"year"`
	Month int     `json:"month"`
	Name  string  `json:"name"`
	Total float64 `json:"total"`
}

// MonthlyTotals sums request counts per month of year. Months without data
// are omitted. Results are in month order.
func MonthlyTotals(history []dataprep.DailyRecord, year int) []MonthTotal {
	var byMonth [13]float64
	var seen [13]bool
	for _, r := range history {
		if r.Date.Year() != year {
			continue
		}
		m := int(r.Date.Month())
		byMonth[m] += r.RequestCount
		seen[m] = true
	}

	out := []MonthTotal{}
	for m := 1; m <= 12; m++ {
		if !seen[m] {
			continue
		}
		out = append(out, MonthTotal{
			Year:  year,
			Month: m,
			Name:  time.Month(m).String()[:3],
			Total: byMonth[m],
		})
	}
	return out
}

// Years lists the distinct years in history, ascending.
func Years(history []dataprep.DailyRecord) []int {
	seen := make(map[int]bool)
	years := []int{}
	for _, r := range history {
		y := r.Date.Year()
		if !seen[y] {
			seen[y] = true
			years = append(years, y)
		}
	}
	sort.Ints(years)
	return years
}

// TrendPoint is one day of the trend chart.
type TrendPoint struct {
	Date      time.Time `json:"date"`
	Count     float64   `json:"count"`
	MovingAvg Float     `json:"movingAvg"`
}

// MovingAverage returns each day's count with the trailing window-day mean.
// The first window-1 points have an undefined average.
func MovingAverage(history []dataprep.DailyRecord, window int) []TrendPoint {
	sorted := sortedByDate(history)
	out := make([]TrendPoint, len(sorted))
	var sum float64
	for i, r := range sorted {
		sum += r.RequestCount
		if window > 0 && i >= window {
			sum -= sorted[i-window].RequestCount
		}
		ma := Float(math.NaN())
		if window > 0 && i >= window-1 {
			ma = Float(sum / float64(window))
		}
		out[i] = TrendPoint{Date: r.Date, Count: r.RequestCount, MovingAvg: ma}
	}
	return out
}

// RecentActual returns the records of the latest year within days of the
// latest date. When that selects nothing it falls back to the last days rows.
func RecentActual(history []dataprep.DailyRecord, days int) []dataprep.DailyRecord {
	sorted := sortedByDate(history)
	if len(sorted) == 0 || days <= 0 {
		return []dataprep.DailyRecord{}
	}
	last := sorted[len(sorted)-1].Date
	cutoff := last.AddDate(0, 0, -days)

	out := []dataprep.DailyRecord{}
	for _, r := range sorted {
		if r.Date.Year() == last.Year() && !r.Date.Before(cutoff) {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return Tail(sorted, days)
	}
	return out
}

// Tail returns the last n records in date order.
func Tail(history []dataprep.DailyRecord, n int) []dataprep.DailyRecord {
	sorted := sortedByDate(history)
	if n < 0 {
		n = 0
	}
	if n > len(sorted) {
		n = len(sorted)
	}
	return append([]dataprep.DailyRecord{}, sorted[len(sorted)-n:]...)
}

func sortedByDate(history []dataprep.DailyRecord) []dataprep.DailyRecord {
	less := func(i, j int) bool { return history[i].Date.Before(history[j].Date) }
	if sort.SliceIsSorted(history, less) {
		return history
	}
	out := append([]dataprep.DailyRecord(nil), history...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func counts(history []dataprep.DailyRecord) []float64 {
	out := make([]float64, len(history))
	for i, r := range history {
		out[i] = r.RequestCount
	}
	return out
}
