package forecast

import (
	"time"
)

// State tags where a working-series value came from.
type State int

const (
	// Observed values come from history.
	Observed State = iota
	// Provisional values are placeholders copied from the previous point so
	// features can be computed for a date that has no value yet.
	Provisional
	// Predicted values were produced by the model.
	Predicted
)

func (s State) String() string {
	switch s {
	case Observed:
		return "observed"
	case Provisional:
		return "provisional"
	case Predicted:
		return "predicted"
	default:
		return "unknown"
	}
}

// Point is one day of a WorkingSeries.
type Point struct {
	Date  time.Time
	Value float64
	State State
}

// WorkingSeries is the per-call extension of history used by the forecast
// loop. Dates are strictly increasing. At most one point is Provisional and it
// is always the last.
type WorkingSeries struct {
	dates  []time.Time
	values []float64
	states []State
}

// NewWorkingSeries copies dates and values as Observed points. The inputs must
// be the same length and sorted by date.
func NewWorkingSeries(dates []time.Time, values []float64, extra int) *WorkingSeries {
	n := len(dates)
	ws := &WorkingSeries{
		dates:  make([]time.Time, n, n+extra),
		values: make([]float64, n, n+extra),
		states: make([]State, n, n+extra),
	}
	copy(ws.dates, dates)
	copy(ws.values, values)
	return ws
}

// Len returns the number of points.
func (ws *WorkingSeries) Len() int { return len(ws.dates) }

// At returns point i.
func (ws *WorkingSeries) At(i int) Point {
	return Point{Date: ws.dates[i], Value: ws.values[i], State: ws.states[i]}
}

// Last returns the final point. The series must not be empty.
func (ws *WorkingSeries) Last() Point { return ws.At(ws.Len() - 1) }

// Dates exposes the date column. Callers must not modify it.
func (ws *WorkingSeries) Dates() []time.Time { return ws.dates }

// Values exposes the value column. Callers must not modify it.
func (ws *WorkingSeries) Values() []float64 { return ws.values }

// AppendProvisional adds the day after the last point, holding the last
// value, and returns its index.
func (ws *WorkingSeries) AppendProvisional() int {
	last := ws.Last()
	ws.dates = append(ws.dates, last.Date.AddDate(0, 0, 1))
	ws.values = append(ws.values, last.Value)
	ws.states = append(ws.states, Provisional)
	return ws.Len() - 1
}

// Promote replaces the provisional value at i with a model prediction.
// It panics if point i is not provisional.
func (ws *WorkingSeries) Promote(i int, v float64) {
	if ws.states[i] != Provisional {
		panic("forecast: promote of non-provisional point")
	}
	ws.values[i] = v
	ws.states[i] = Predicted
}

// DropProvisional removes a trailing provisional point, if any.
func (ws *WorkingSeries) DropProvisional() {
	n := ws.Len()
	if n > 0 && ws.states[n-1] == Provisional {
		ws.dates = ws.dates[:n-1]
		ws.values = ws.values[:n-1]
		ws.states = ws.states[:n-1]
	}
}

// Count returns how many points are in state s.
func (ws *WorkingSeries) Count(s State) int {
	n := 0
	for _, st := range ws.states {
		if st == s {
			n++
		}
	}
	return n
}
