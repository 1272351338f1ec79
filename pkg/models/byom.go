package models

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

// BYOMRegressor delegates predictions to an external HTTP service. This allows
// serving the regressor from any runtime (scikit-learn, ONNX, a notebook
// server) as long as the service accepts the scaled feature vector and returns
// one scaled prediction.
//
// Request:
//
//	{"now": "...", "featureNames": [...], "features": [[...]]}
//
// Response: {"values": [y]}. A bare {"value": y} is also accepted.
type BYOMRegressor struct {
	endpoint     string
	featureNames []string
	client       *http.Client
}

type byomRequest struct {
	Now          string      `json:"now"`
	FeatureNames []string    `json:"featureNames,omitempty"`
	Features     [][]float64 `json:"features"`
}

// NewBYOMRegressor creates a regressor that calls endpoint for every prediction.
func NewBYOMRegressor(endpoint string, featureNames []string, timeout time.Duration) *BYOMRegressor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &BYOMRegressor{
		endpoint:     endpoint,
		featureNames: featureNames,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConnsPerHost: 2,
			},
		},
	}
}

// Name returns the model identifier.
func (m *BYOMRegressor) Name() string {
	return "byom"
}

// Endpoint returns the service URL.
func (m *BYOMRegressor) Endpoint() string {
	return m.endpoint
}

// Predict calls the external service with one scaled feature vector.
func (m *BYOMRegressor) Predict(ctx context.Context, x []float64) (float64, error) {
	if len(x) == 0 {
		return 0, fmt.Errorf("byom: features cannot be empty")
	}
	if len(m.featureNames) > 0 {
		if err := checkDim("byom", len(m.featureNames), len(x)); err != nil {
			return 0, err
		}
	}

	body, err := json.Marshal(byomRequest{
		Now:          time.Now().UTC().Format(time.RFC3339),
		FeatureNames: m.featureNames,
		Features:     [][]float64{x},
	})
	if err != nil {
		return 0, fmt.Errorf("byom: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("byom: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("byom: http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("byom: http %d: %s", resp.StatusCode, string(bodyBytes))
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("byom: read response: %w", err)
	}
	if !gjson.ValidBytes(respBody) {
		return 0, fmt.Errorf("byom: decode response: invalid JSON")
	}

	var y gjson.Result
	if values := gjson.GetBytes(respBody, "values"); values.IsArray() {
		arr := values.Array()
		if len(arr) != 1 {
			return 0, fmt.Errorf("byom: expected 1 prediction, got %d", len(arr))
		}
		y = arr[0]
	} else {
		y = gjson.GetBytes(respBody, "value")
	}
	if y.Type != gjson.Number {
		return 0, fmt.Errorf("byom: response has no numeric prediction")
	}

	v := y.Float()
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("byom: non-finite prediction")
	}
	return v, nil
}
