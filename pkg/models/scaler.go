package models

import (
	"errors"
	"fmt"
)

// StandardScaler standardizes each column: (x - mean) / scale.
type StandardScaler struct {
	Mean         []float64 `json:"mean"`
	Scale        []float64 `json:"scale"`
	FeatureNames []string  `json:"feature_names,omitempty"`
}

func (s *StandardScaler) Validate() error {
	if len(s.Mean) == 0 || len(s.Mean) != len(s.Scale) {
		return fmt.Errorf("standard scaler: mean has %d values, scale has %d", len(s.Mean), len(s.Scale))
	}
	for i, v := range s.Scale {
		if v == 0 {
			return fmt.Errorf("standard scaler: scale[%d] is zero", i)
		}
	}
	return nil
}

func (s *StandardScaler) Transform(x []float64) ([]float64, error) {
	if err := checkDim("standard scaler", len(s.Mean), len(x)); err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = (v - s.Mean[i]) / s.Scale[i]
	}
	return out, nil
}

func (s *StandardScaler) InverseTransform(x []float64) ([]float64, error) {
	if err := checkDim("standard scaler", len(s.Mean), len(x)); err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v*s.Scale[i] + s.Mean[i]
	}
	return out, nil
}

// MinMaxScaler follows the fitted min_/scale_ attributes: x*scale + min.
type MinMaxScaler struct {
	Min          []float64 `json:"min"`
	Scale        []float64 `json:"scale"`
	FeatureNames []string  `json:"feature_names,omitempty"`
}

func (s *MinMaxScaler) Validate() error {
	if len(s.Min) == 0 || len(s.Min) != len(s.Scale) {
		return fmt.Errorf("minmax scaler: min has %d values, scale has %d", len(s.Min), len(s.Scale))
	}
	for i, v := range s.Scale {
		if v == 0 {
			return fmt.Errorf("minmax scaler: scale[%d] is zero", i)
		}
	}
	return nil
}

func (s *MinMaxScaler) Transform(x []float64) ([]float64, error) {
	if err := checkDim("minmax scaler", len(s.Min), len(x)); err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v*s.Scale[i] + s.Min[i]
	}
	return out, nil
}

func (s *MinMaxScaler) InverseTransform(x []float64) ([]float64, error) {
	if err := checkDim("minmax scaler", len(s.Min), len(x)); err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = (v - s.Min[i]) / s.Scale[i]
	}
	return out, nil
}

// IdentityScaler passes values through unchanged.
type IdentityScaler struct{}

func (IdentityScaler) Transform(x []float64) ([]float64, error) {
	if len(x) == 0 {
		return nil, errors.New("identity scaler: empty input")
	}
	return append([]float64(nil), x...), nil
}

func (IdentityScaler) InverseTransform(x []float64) ([]float64, error) {
	return IdentityScaler{}.Transform(x)
}
