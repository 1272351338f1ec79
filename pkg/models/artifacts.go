package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/tidwall/gjson"

	"github.com/HatiCode/demandcast/pkg/features"
)

// Artifact file names inside the model directory.
const (
	RegressorFile = "svr_model.json"
	ScalerXFile   = "scaler_x.json"
	ScalerYFile   = "scaler_y.json"
)

// Artifacts is a loaded regressor with its feature and target scalers.
type Artifacts struct {
	Regressor Regressor
	ScalerX   Scaler
	ScalerY   Scaler
	Dir       string
	LoadedAt  time.Time
}

// Predict scales a raw feature vector, runs the regressor and returns the
// inverse-scaled target.
func (a *Artifacts) Predict(ctx context.Context, x []float64) (float64, error) {
	xs, err := a.ScalerX.Transform(x)
	if err != nil {
		return 0, fmt.Errorf("scale features: %w", err)
	}
	ys, err := a.Regressor.Predict(ctx, xs)
	if err != nil {
		return 0, fmt.Errorf("%s predict: %w", a.Regressor.Name(), err)
	}
	y, err := a.ScalerY.InverseTransform([]float64{ys})
	if err != nil {
		return 0, fmt.Errorf("inverse-scale target: %w", err)
	}
	return y[0], nil
}

// LoadOptions configures LoadArtifacts.
type LoadOptions struct {
	// Endpoint serves the regressor over HTTP. When set, RegressorFile is
	// not required and any file present is ignored.
	Endpoint string

	// Timeout for BYOM calls.
	Timeout time.Duration

	// HTTPClient is used for BYOM calls when set, e.g. an mTLS client.
	HTTPClient *http.Client
}

func (o LoadOptions) byom(endpoint string) *BYOMRegressor {
	r := NewBYOMRegressor(endpoint, features.Names, o.Timeout)
	if o.HTTPClient != nil {
		r.client = o.HTTPClient
	}
	return r
}

// LoadArtifacts reads the regressor and scalers from dir. Missing files are
// reported together as an *ArtifactMissingError. Artifacts that declare
// feature names must match features.Names exactly.
func LoadArtifacts(dir string, opts LoadOptions) (*Artifacts, error) {
	required := []string{ScalerXFile, ScalerYFile}
	if opts.Endpoint == "" {
		required = append([]string{RegressorFile}, required...)
	}

	var missing []string
	for _, name := range required {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				missing = append(missing, name)
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", name, err)
		}
	}
	if len(missing) > 0 {
		return nil, &ArtifactMissingError{Dir: dir, Missing: missing}
	}

	arts := &Artifacts{Dir: dir, LoadedAt: time.Now()}

	var err error
	if opts.Endpoint != "" {
		arts.Regressor = opts.byom(opts.Endpoint)
	} else {
		arts.Regressor, err = readRegressor(filepath.Join(dir, RegressorFile), opts)
		if err != nil {
			return nil, err
		}
	}

	if arts.ScalerX, err = readScaler(filepath.Join(dir, ScalerXFile), len(features.Names), true); err != nil {
		return nil, err
	}
	if arts.ScalerY, err = readScaler(filepath.Join(dir, ScalerYFile), 1, false); err != nil {
		return nil, err
	}
	return arts, nil
}

func readRegressor(path string, opts LoadOptions) (Regressor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read regressor: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%s: invalid JSON", filepath.Base(path))
	}
	if err := checkFeatureNames(path, data); err != nil {
		return nil, err
	}

	name := filepath.Base(path)
	switch kind := gjson.GetBytes(data, "type").String(); kind {
	case "svr", "":
		var m SVR
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%s: decode svr: %w", name, err)
		}
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if err := checkDim(name, len(features.Names), m.Dim()); err != nil {
			return nil, err
		}
		return &m, nil

	case "linear":
		var m LinearRegressor
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%s: decode linear: %w", name, err)
		}
		if err := checkDim(name, len(features.Names), len(m.Coef)); err != nil {
			return nil, err
		}
		return &m, nil

	case "byom":
		endpoint := gjson.GetBytes(data, "endpoint").String()
		if endpoint == "" {
			return nil, fmt.Errorf("%s: byom regressor requires endpoint", name)
		}
		return opts.byom(endpoint), nil

	default:
		return nil, fmt.Errorf("%s: unsupported regressor type %q", name, kind)
	}
}

func readScaler(path string, dim int, checkNames bool) (Scaler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scaler: %w", err)
	}
	name := filepath.Base(path)
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%s: invalid JSON", name)
	}
	if checkNames {
		if err := checkFeatureNames(path, data); err != nil {
			return nil, err
		}
	}

	switch kind := gjson.GetBytes(data, "type").String(); kind {
	case "standard":
		var s StandardScaler
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("%s: decode standard scaler: %w", name, err)
		}
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if err := checkDim(name, dim, len(s.Mean)); err != nil {
			return nil, err
		}
		return &s, nil

	case "minmax":
		var s MinMaxScaler
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("%s: decode minmax scaler: %w", name, err)
		}
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if err := checkDim(name, dim, len(s.Min)); err != nil {
			return nil, err
		}
		return &s, nil

	case "identity":
		return IdentityScaler{}, nil

	default:
		return nil, fmt.Errorf("%s: unsupported scaler type %q", name, kind)
	}
}

// checkFeatureNames compares a declared feature_names (or feature_names_in)
// array with the canonical order.
func checkFeatureNames(path string, data []byte) error {
	declared := gjson.GetBytes(data, "feature_names")
	if !declared.Exists() {
		declared = gjson.GetBytes(data, "feature_names_in")
	}
	if !declared.Exists() {
		return nil
	}
	var got []string
	for _, v := range declared.Array() {
		got = append(got, v.String())
	}
	if !slices.Equal(got, features.Names) {
		return &FeatureMismatchError{Artifact: filepath.Base(path), Want: features.Names, Got: got}
	}
	return nil
}
