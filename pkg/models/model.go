// Package models evaluates the exported demand regressor and its feature and
// target scalers.
//
// Training happens offline. The artifacts directory holds three JSON files:
//
//	svr_model.json  regressor (svr, linear or byom)
//	scaler_x.json   feature scaler (standard or minmax)
//	scaler_y.json   target scaler (standard or minmax)
//
// Each file carries a "type" field that selects the decoder.
package models

import (
	"context"
	"fmt"
	"strings"
)

// Regressor predicts a scaled target from a scaled feature vector.
type Regressor interface {
	Name() string
	Predict(ctx context.Context, x []float64) (float64, error)
}

// Scaler maps between raw and scaled values.
type Scaler interface {
	Transform(x []float64) ([]float64, error)
	InverseTransform(x []float64) ([]float64, error)
}

// ArtifactMissingError lists required artifact files that are absent.
type ArtifactMissingError struct {
	Dir     string
	Missing []string
}

func (e *ArtifactMissingError) Error() string {
	return fmt.Sprintf("model artifacts missing in %s: %s", e.Dir, strings.Join(e.Missing, ", "))
}

// FeatureMismatchError reports an artifact trained on a different feature list.
type FeatureMismatchError struct {
	Artifact string
	Want     []string
	Got      []string
}

func (e *FeatureMismatchError) Error() string {
	return fmt.Sprintf("%s: feature names do not match: want %v, got %v", e.Artifact, e.Want, e.Got)
}

func checkDim(name string, want, got int) error {
	if want != got {
		return fmt.Errorf("%s: expected %d values, got %d", name, want, got)
	}
	return nil
}
