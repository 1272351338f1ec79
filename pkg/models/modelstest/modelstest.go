// Package modelstest writes small model artifact directories for tests.
package modelstest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/HatiCode/demandcast/pkg/features"
	"github.com/HatiCode/demandcast/pkg/models"
)

// WriteJSON writes v with a "type" field into dir/name.
func WriteJSON(t testing.TB, dir, name, kind string, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal %s: %v", name, err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal %s: %v", name, err)
	}
	m["type"] = kind
	b, err = json.MarshalIndent(m, "", "  ")
	if err != nil {
		t.Fatalf("marshal %s: %v", name, err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), b, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

// LinearDir writes a linear regressor with identity-like standard scalers.
// The prediction is the sum of coef[i]*x[i] plus intercept, in raw units.
func LinearDir(t testing.TB, coef []float64, intercept float64) string {
	t.Helper()
	dir := t.TempDir()
	n := len(features.Names)

	mean := make([]float64, n)
	scale := make([]float64, n)
	for i := range scale {
		scale[i] = 1
	}

	WriteJSON(t, dir, models.RegressorFile, "linear", models.LinearRegressor{
		Coef:         coef,
		Intercept:    intercept,
		FeatureNames: features.Names,
	})
	WriteJSON(t, dir, models.ScalerXFile, "standard", models.StandardScaler{Mean: mean, Scale: scale})
	WriteJSON(t, dir, models.ScalerYFile, "standard", models.StandardScaler{Mean: []float64{0}, Scale: []float64{1}})
	return dir
}

// MeanDir returns an artifact directory whose prediction is the rolling
// 10-day mean feature.
func MeanDir(t testing.TB) string {
	t.Helper()
	coef := make([]float64, len(features.Names))
	coef[3] = 1 // permohonan_mean10
	return LinearDir(t, coef, 0)
}
