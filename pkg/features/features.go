// Package features builds the lag, rolling and calendar features the demand
// regressor was trained on.
//
// The same Builder is used when preparing the historical table and inside the
// forecast loop, so both paths produce vectors with identical names and order.
// The only difference between the two is the rolling window alignment, which is
// an explicit option (ExcludeCurrent) rather than a second implementation.
package features

import (
	"fmt"
	"math"
	"time"
)

// Names is the ordered list of feature names expected by the model artifacts.
// Vector.Values returns values in exactly this order.
var Names = []string{
	"jumlah_permohonan_lag10", "jumlah_permohonan_lag20", "jumlah_permohonan_lag30",
	"permohonan_mean10", "permohonan_std10",
	"permohonan_mean20", "permohonan_std20",
	"permohonan_mean30", "permohonan_std30",
	"hari", "bulan", "tahun", "dayofweek", "quarter",
	"is_holiday", "is_weekend",
}

// Lags are the lag offsets, in rows.
var Lags = []int{10, 20, 30}

// Windows are the trailing rolling window sizes, in rows.
var Windows = []int{10, 20, 30}

// MaxLag is the largest lag; the first MaxLag rows of a series never have a full feature set.
const MaxLag = 30

// HolidayChecker reports whether a date is a public holiday.
type HolidayChecker interface {
	IsHoliday(t time.Time) bool
}

// Calendar holds the date-derived features of a single day.
type Calendar struct {
	Day       int  `json:"day"`
	Month     int  `json:"month"`
	Year      int  `json:"year"`
	DayOfWeek int  `json:"dayOfWeek"` // Monday=0 ... Sunday=6
	Quarter   int  `json:"quarter"`
	IsWeekend bool `json:"isWeekend"`
	IsHoliday bool `json:"isHoliday"`
}

// Vector is a complete feature set for one day.
type Vector struct {
	Lag10  float64 `json:"lag10"`
	Lag20  float64 `json:"lag20"`
	Lag30  float64 `json:"lag30"`
	Mean10 float64 `json:"mean10"`
	Std10  float64 `json:"std10"`
	Mean20 float64 `json:"mean20"`
	Std20  float64 `json:"std20"`
	Mean30 float64 `json:"mean30"`
	Std30  float64 `json:"std30"`
	Calendar
}

// Values returns the vector in Names order.
func (v Vector) Values() []float64 {
	return []float64{
		v.Lag10, v.Lag20, v.Lag30,
		v.Mean10, v.Std10,
		v.Mean20, v.Std20,
		v.Mean30, v.Std30,
		float64(v.Day), float64(v.Month), float64(v.Year), float64(v.DayOfWeek), float64(v.Quarter),
		boolToFloat(v.IsHoliday), boolToFloat(v.IsWeekend),
	}
}

// Builder computes feature vectors over a date-ordered series.
type Builder struct {
	// Holidays flags public holidays. Nil means no holidays.
	Holidays HolidayChecker

	// ExcludeCurrent shifts rolling windows back by one row so a day's own
	// value never contributes to its rolling mean/std.
	ExcludeCurrent bool
}

// NewBuilder creates a Builder.
func NewBuilder(holidays HolidayChecker, excludeCurrent bool) *Builder {
	return &Builder{Holidays: holidays, ExcludeCurrent: excludeCurrent}
}

// CalendarOf derives the calendar features for t.
func (b *Builder) CalendarOf(t time.Time) Calendar {
	dow := (int(t.Weekday()) + 6) % 7
	c := Calendar{
		Day:       t.Day(),
		Month:     int(t.Month()),
		Year:      t.Year(),
		DayOfWeek: dow,
		Quarter:   (int(t.Month())-1)/3 + 1,
		IsWeekend: dow == 5 || dow == 6,
	}
	if b.Holidays != nil {
		c.IsHoliday = b.Holidays.IsHoliday(t)
	}
	return c
}

// At computes the features of row i. values and dates must be the same length
// and ordered by date. ok is false when any lag or rolling feature is undefined
// because there are not enough earlier rows.
func (b *Builder) At(dates []time.Time, values []float64, i int) (Vector, bool) {
	if i < 0 || i >= len(values) || len(dates) != len(values) {
		return Vector{}, false
	}
	if len(b.Missing(i)) > 0 {
		return Vector{}, false
	}

	v := Vector{
		Lag10:    values[i-10],
		Lag20:    values[i-20],
		Lag30:    values[i-30],
		Calendar: b.CalendarOf(dates[i]),
	}
	v.Mean10, v.Std10 = meanStd(b.window(values, i, 10))
	v.Mean20, v.Std20 = meanStd(b.window(values, i, 20))
	v.Mean30, v.Std30 = meanStd(b.window(values, i, 30))

	for _, x := range v.Values() {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return Vector{}, false
		}
	}
	return v, true
}

// Missing lists the features that are undefined at row i.
func (b *Builder) Missing(i int) []string {
	var missing []string
	for _, k := range Lags {
		if i-k < 0 {
			missing = append(missing, fmt.Sprintf("jumlah_permohonan_lag%d", k))
		}
	}
	for _, w := range Windows {
		if b.windowStart(i, w) < 0 {
			missing = append(missing,
				fmt.Sprintf("permohonan_mean%d", w),
				fmt.Sprintf("permohonan_std%d", w),
			)
		}
	}
	return missing
}

func (b *Builder) windowStart(i, w int) int {
	if b.ExcludeCurrent {
		return i - w
	}
	return i - w + 1
}

func (b *Builder) window(values []float64, i, w int) []float64 {
	start := b.windowStart(i, w)
	return values[start : start+w]
}

// meanStd returns the mean and the sample (n-1) standard deviation.
func meanStd(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return math.NaN(), math.NaN()
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	if len(xs) < 2 {
		return mean, math.NaN()
	}
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(len(xs)-1))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
