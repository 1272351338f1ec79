package models

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Kernel names accepted by SVR.
const (
	KernelRBF     = "rbf"
	KernelLinear  = "linear"
	KernelPoly    = "poly"
	KernelSigmoid = "sigmoid"
)

// SVR evaluates an epsilon support-vector regressor from its support vectors
// and dual coefficients:
//
//	f(x) = sum_i dual_i * K(sv_i, x) + intercept
//
// Gamma must be the resolved numeric value used at fit time.
type SVR struct {
	Kernel         string      `json:"kernel"`
	Gamma          float64     `json:"gamma"`
	Coef0          float64     `json:"coef0"`
	Degree         int         `json:"degree"`
	SupportVectors [][]float64 `json:"support_vectors"`
	DualCoef       []float64   `json:"dual_coef"`
	Intercept      float64     `json:"intercept"`
	FeatureNames   []string    `json:"feature_names,omitempty"`
}

func (m *SVR) Name() string { return "svr" }

// Dim returns the feature vector length.
func (m *SVR) Dim() int {
	if len(m.SupportVectors) == 0 {
		return 0
	}
	return len(m.SupportVectors[0])
}

// Validate checks shapes and kernel parameters.
func (m *SVR) Validate() error {
	if len(m.SupportVectors) == 0 {
		return errors.New("svr: no support vectors")
	}
	if len(m.DualCoef) != len(m.SupportVectors) {
		return fmt.Errorf("svr: %d dual coefficients for %d support vectors", len(m.DualCoef), len(m.SupportVectors))
	}
	dim := m.Dim()
	for i, sv := range m.SupportVectors {
		if len(sv) != dim {
			return fmt.Errorf("svr: support vector %d has %d values, want %d", i, len(sv), dim)
		}
	}
	switch m.Kernel {
	case KernelLinear:
	case KernelRBF, KernelSigmoid:
		if m.Gamma <= 0 {
			return fmt.Errorf("svr: %s kernel requires gamma > 0", m.Kernel)
		}
	case KernelPoly:
		if m.Gamma <= 0 || m.Degree < 1 {
			return errors.New("svr: poly kernel requires gamma > 0 and degree >= 1")
		}
	default:
		return fmt.Errorf("svr: unsupported kernel %q", m.Kernel)
	}
	return nil
}

// Predict implements Regressor.
func (m *SVR) Predict(ctx context.Context, x []float64) (float64, error) {
	if err := checkDim("svr", m.Dim(), len(x)); err != nil {
		return 0, err
	}
	y := m.Intercept
	for i, sv := range m.SupportVectors {
		y += m.DualCoef[i] * m.kernel(sv, x)
	}
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return 0, errors.New("svr: non-finite prediction")
	}
	return y, nil
}

func (m *SVR) kernel(a, b []float64) float64 {
	switch m.Kernel {
	case KernelRBF:
		var d2 float64
		for i := range a {
			d := a[i] - b[i]
			d2 += d * d
		}
		return math.Exp(-m.Gamma * d2)
	case KernelPoly:
		return math.Pow(m.Gamma*dot(a, b)+m.Coef0, float64(m.Degree))
	case KernelSigmoid:
		return math.Tanh(m.Gamma*dot(a, b) + m.Coef0)
	default:
		return dot(a, b)
	}
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// LinearRegressor is y = coef·x + intercept.
type LinearRegressor struct {
	Coef         []float64 `json:"coef"`
	Intercept    float64   `json:"intercept"`
	FeatureNames []string  `json:"feature_names,omitempty"`
}

func (m *LinearRegressor) Name() string { return "linear" }

// Predict implements Regressor.
func (m *LinearRegressor) Predict(ctx context.Context, x []float64) (float64, error) {
	if err := checkDim("linear", len(m.Coef), len(x)); err != nil {
		return 0, err
	}
	return dot(m.Coef, x) + m.Intercept, nil
}
