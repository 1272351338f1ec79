// Package calendar provides country holiday calendars used to flag
// non-working days in the daily feature table.
package calendar

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed holidays_id.yaml
var indonesiaLunar []byte

// Calendar is a set of holiday dates. The zero value is not usable; use New.
type Calendar struct {
	days map[date]string
}

type date struct {
	year  int
	month time.Month
	day   int
}

func dateOf(t time.Time) date {
	y, m, d := t.Date()
	return date{y, m, d}
}

// File is the YAML layout accepted by LoadFile and used by the embedded tables.
type File struct {
	Country  string  `yaml:"country"`
	Holidays []Entry `yaml:"holidays"`
}

// Entry names a holiday and lists the dates (YYYY-MM-DD) it falls on.
type Entry struct {
	Name  string   `yaml:"name"`
	Dates []string `yaml:"dates"`
}

// New returns an empty calendar.
func New() *Calendar {
	return &Calendar{days: make(map[date]string)}
}

// Add marks t as a holiday called name. An existing name for the same date is kept.
func (c *Calendar) Add(t time.Time, name string) {
	k := dateOf(t)
	if _, ok := c.days[k]; ok {
		return
	}
	c.days[k] = name
}

// IsHoliday reports whether the calendar date of t is a holiday.
func (c *Calendar) IsHoliday(t time.Time) bool {
	if c == nil {
		return false
	}
	_, ok := c.days[dateOf(t)]
	return ok
}

// Name returns the holiday name for t.
func (c *Calendar) Name(t time.Time) (string, bool) {
	if c == nil {
		return "", false
	}
	n, ok := c.days[dateOf(t)]
	return n, ok
}

// Len returns the number of holiday dates.
func (c *Calendar) Len() int {
	return len(c.days)
}

// Dates returns all holiday dates in ascending order.
func (c *Calendar) Dates() []time.Time {
	out := make([]time.Time, 0, len(c.days))
	for k := range c.days {
		out = append(out, time.Date(k.year, k.month, k.day, 0, 0, 0, 0, time.UTC))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Merge adds every date of other into c.
func (c *Calendar) Merge(other *Calendar) {
	if other == nil {
		return
	}
	for k, name := range other.days {
		if _, ok := c.days[k]; !ok {
			c.days[k] = name
		}
	}
}

// Indonesia builds the Indonesian national holiday calendar for the given years:
// fixed-date holidays, Easter-derived holidays and the embedded lunar table.
// Lunar holidays are only known for the years present in the table.
func Indonesia(years ...int) *Calendar {
	c := New()
	want := make(map[int]bool, len(years))
	for _, y := range years {
		want[y] = true

		c.Add(time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC), "New Year's Day")
		c.Add(time.Date(y, time.May, 1, 0, 0, 0, 0, time.UTC), "International Labor Day")
		if y >= 2017 {
			c.Add(time.Date(y, time.June, 1, 0, 0, 0, 0, time.UTC), "Pancasila Day")
		}
		c.Add(time.Date(y, time.August, 17, 0, 0, 0, 0, time.UTC), "Independence Day")
		c.Add(time.Date(y, time.December, 25, 0, 0, 0, 0, time.UTC), "Christmas Day")

		easter := Easter(y)
		c.Add(easter.AddDate(0, 0, -2), "Good Friday")
		c.Add(easter.AddDate(0, 0, 39), "Ascension Day")
	}

	lunar, err := parse(indonesiaLunar)
	if err != nil {
		// embedded table is validated by tests
		panic(fmt.Sprintf("calendar: embedded table: %v", err))
	}
	for k, name := range lunar.days {
		if want[k.year] {
			c.days[k] = name
		}
	}
	return c
}

// LoadFile reads a YAML holiday file (see File).
func LoadFile(path string) (*Calendar, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read holiday file: %w", err)
	}
	return parse(b)
}

func parse(b []byte) (*Calendar, error) {
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode holiday file: %w", err)
	}
	c := New()
	for _, e := range f.Holidays {
		for _, s := range e.Dates {
			t, err := time.Parse(time.DateOnly, s)
			if err != nil {
				return nil, fmt.Errorf("holiday %q: invalid date %q: %w", e.Name, s, err)
			}
			c.Add(t, e.Name)
		}
	}
	return c, nil
}

// IndonesiaWithFile builds the Indonesian calendar for years and merges the
// holidays listed in path over it.
func IndonesiaWithFile(path string, years ...int) (*Calendar, error) {
	extra, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	c := Indonesia(years...)
	c.Merge(extra)
	return c, nil
}

// YearRange returns from..to inclusive.
func YearRange(from, to int) []int {
	if to < from {
		return nil
	}
	years := make([]int, 0, to-from+1)
	for y := from; y <= to; y++ {
		years = append(years, y)
	}
	return years
}

// Easter returns Easter Sunday of the given year (Gregorian computus).
func Easter(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}
