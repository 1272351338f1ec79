package forecast

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/HatiCode/demandcast/pkg/dataprep"
	"github.com/HatiCode/demandcast/pkg/models"
	"github.com/HatiCode/demandcast/pkg/models/modelstest"
)

var day0 = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func history(n int, f func(i int) float64) []dataprep.DailyRecord {
	out := make([]dataprep.DailyRecord, n)
	for i := range out {
		out[i] = dataprep.DailyRecord{Date: day0.AddDate(0, 0, i), RequestCount: f(i)}
	}
	return out
}

type recordingPredictor struct {
	vectors [][]float64
	value   func(x []float64) float64
	err     error
}

func (p *recordingPredictor) Predict(ctx context.Context, x []float64) (float64, error) {
	p.vectors = append(p.vectors, append([]float64(nil), x...))
	if p.err != nil {
		return 0, p.err
	}
	return p.value(x), nil
}

func constant(v float64) *recordingPredictor {
	return &recordingPredictor{value: func([]float64) float64 { return v }}
}

func TestForecast_ZeroHorizon(t *testing.T) {
	for _, h := range []int{0, -3} {
		res, err := New(constant(1), Options{}).Forecast(context.Background(), history(40, func(int) float64 { return 1 }), h)
		if err != nil {
			t.Fatalf("Forecast(h=%d) error = %v", h, err)
		}
		if len(res.Rows) != 0 || res.Truncated() {
			t.Errorf("Forecast(h=%d) = %+v, want empty and not truncated", h, res)
		}
	}
}

func TestForecast_ConstantHistory(t *testing.T) {
	arts, err := models.LoadArtifacts(modelstest.MeanDir(t), models.LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	hist := history(40, func(int) float64 { return 100 })
	f := New(arts, Options{})

	first, err := f.Forecast(context.Background(), hist, 3)
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}
	if len(first.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(first.Rows))
	}

	wantStart := day0.AddDate(0, 0, 40)
	for i, r := range first.Rows {
		if !r.Date.Equal(wantStart.AddDate(0, 0, i)) {
			t.Errorf("row %d date = %s, want %s", i, r.Date, wantStart.AddDate(0, 0, i))
		}
		if r.PredictedCount != 100 {
			t.Errorf("row %d = %v, want 100", i, r.PredictedCount)
		}
	}

	second, err := f.Forecast(context.Background(), hist, 3)
	if err != nil {
		t.Fatal(err)
	}
	for i := range first.Rows {
		if math.Float64bits(first.Rows[i].PredictedCount) != math.Float64bits(second.Rows[i].PredictedCount) {
			t.Errorf("row %d differs between calls", i)
		}
	}
}

func TestForecast_InsufficientHistory(t *testing.T) {
	tests := []struct {
		name     string
		rows     int
		wantRows int
	}{
		{"empty", 0, 0},
		{"29 days", 29, 0},
		{"30 days", 30, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := New(constant(7), Options{}).Forecast(context.Background(), history(tt.rows, func(int) float64 { return 5 }), 5)
			if err != nil {
				t.Fatalf("Forecast() error = %v", err)
			}
			if len(res.Rows) != tt.wantRows {
				t.Errorf("rows = %d, want %d", len(res.Rows), tt.wantRows)
			}
			if (tt.wantRows < 5) != res.Truncated() {
				t.Errorf("Truncated() = %v", res.Truncated())
			}
			if res.Truncated() && !strings.Contains(res.StopReason(), "jumlah_permohonan_lag30") {
				t.Errorf("StopReason() = %q, want missing lag30", res.StopReason())
			}
		})
	}
}

func TestForecast_FeedsPredictionsBack(t *testing.T) {
	hist := history(40, func(i int) float64 { return float64(i) })
	p := constant(1000)

	res, err := New(p, Options{}).Forecast(context.Background(), hist, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rows) != 2 || len(p.vectors) != 2 {
		t.Fatalf("rows=%d calls=%d, want 2/2", len(res.Rows), len(p.vectors))
	}

	// step 1: window rows 31..40 where row 40 holds the provisional copy of 39
	if got := p.vectors[0][3]; math.Abs(got-35.4) > 1e-9 {
		t.Errorf("step 1 mean10 = %v, want 35.4", got)
	}
	// lag10 of row 40 is row 30
	if got := p.vectors[0][0]; got != 30 {
		t.Errorf("step 1 lag10 = %v, want 30", got)
	}
	// step 2: rows 32..39, row 40 predicted 1000, row 41 provisional 1000
	if got := p.vectors[1][3]; math.Abs(got-228.4) > 1e-9 {
		t.Errorf("step 2 mean10 = %v, want 228.4", got)
	}
}

func TestForecast_RollingExcludeCurrent(t *testing.T) {
	hist := history(40, func(i int) float64 { return float64(i) })
	p := constant(0)

	if _, err := New(p, Options{RollingExcludeCurrent: true}).Forecast(context.Background(), hist, 1); err != nil {
		t.Fatal(err)
	}
	if got := p.vectors[0][3]; got != 34.5 {
		t.Errorf("mean10 = %v, want 34.5", got)
	}
}

func TestForecast_DefaultCalendarCoversForecastYear(t *testing.T) {
	start := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
	hist := make([]dataprep.DailyRecord, 61)
	for i := range hist {
		hist[i] = dataprep.DailyRecord{Date: start.AddDate(0, 0, i), RequestCount: 5}
	}
	p := constant(5)

	res, err := New(p, Options{}).Forecast(context.Background(), hist, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rows) != 2 || !res.Rows[0].Date.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("rows = %+v, want 2026-01-01 and 2026-01-02", res.Rows)
	}
	// is_holiday is the fifteenth feature.
	if got := p.vectors[0][14]; got != 1 {
		t.Errorf("is_holiday on New Year = %v, want 1", got)
	}
	if got := p.vectors[1][14]; got != 0 {
		t.Errorf("is_holiday on 2026-01-02 = %v, want 0", got)
	}
}

func TestForecast_DoesNotMutateHistory(t *testing.T) {
	hist := history(35, func(i int) float64 { return float64(i) })
	hist[0], hist[1] = hist[1], hist[0]
	snapshot := append([]dataprep.DailyRecord(nil), hist...)

	res, err := New(constant(1), Options{}).Forecast(context.Background(), hist, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != len(snapshot) {
		t.Fatal("history length changed")
	}
	for i := range hist {
		if hist[i] != snapshot[i] {
			t.Fatalf("history[%d] changed", i)
		}
	}
	if !res.Rows[0].Date.Equal(day0.AddDate(0, 0, 35)) {
		t.Errorf("first date = %s", res.Rows[0].Date)
	}
}

func TestForecast_PredictorError(t *testing.T) {
	p := &recordingPredictor{err: errors.New("model unavailable")}
	_, err := New(p, Options{}).Forecast(context.Background(), history(40, func(int) float64 { return 1 }), 3)
	if err == nil || !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected predictor error, got %v", err)
	}
}

func TestForecast_ArtifactMissing(t *testing.T) {
	h := models.NewArtifactHandle(t.TempDir(), models.LoadOptions{})
	_, err := New(h, Options{}).Forecast(context.Background(), history(40, func(int) float64 { return 1 }), 1)
	var missing *models.ArtifactMissingError
	if !errors.As(err, &missing) {
		t.Fatalf("expected ArtifactMissingError, got %v", err)
	}
}

func TestForecast_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(constant(1), Options{}).Forecast(ctx, history(40, func(int) float64 { return 1 }), 3); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestForecast_WritesOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output", "prediksi.csv")
	res, err := New(constant(12.5), Options{OutputPath: path}).Forecast(context.Background(), history(30, func(int) float64 { return 1 }), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("rows = %d", len(res.Rows))
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	want := "date,predicted_count\n2025-07-01,12.5\n2025-07-02,12.5\n"
	if string(b) != want {
		t.Errorf("output = %q, want %q", b, want)
	}
}

func TestWorkingSeries(t *testing.T) {
	ws := NewWorkingSeries([]time.Time{day0, day0.AddDate(0, 0, 1)}, []float64{3, 4}, 2)

	i := ws.AppendProvisional()
	p := ws.At(i)
	if p.State != Provisional || p.Value != 4 || !p.Date.Equal(day0.AddDate(0, 0, 2)) {
		t.Fatalf("provisional point = %+v", p)
	}

	ws.Promote(i, 9)
	if got := ws.Last(); got.State != Predicted || got.Value != 9 {
		t.Errorf("promoted point = %+v", got)
	}
	if ws.Count(Observed) != 2 || ws.Count(Predicted) != 1 {
		t.Errorf("counts = %d observed, %d predicted", ws.Count(Observed), ws.Count(Predicted))
	}

	ws.AppendProvisional()
	ws.DropProvisional()
	if ws.Len() != 3 || ws.Last().State != Predicted {
		t.Errorf("DropProvisional left %d points, last %v", ws.Len(), ws.Last().State)
	}

	defer func() {
		if recover() == nil {
			t.Error("Promote of observed point should panic")
		}
	}()
	ws.Promote(0, 1)
}
