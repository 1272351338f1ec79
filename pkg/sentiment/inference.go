package sentiment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

// InferenceClient classifies text through an HTTP text-classification server
// that serves the model directory. The server receives
//
//	{"inputs": "...", "model_dir": "/abs/path"}
//
// and may answer with pipeline output ([{"label","score"}], possibly nested
// once), raw {"logits": [...]}, or {"scores": [...]} probabilities by index.
type InferenceClient struct {
	endpoint string
	dir      *ModelDir
	client   *resty.Client
}

// NewInferenceClient creates a client for endpoint. dir supplies the index to
// label mapping.
func NewInferenceClient(endpoint string, dir *ModelDir, timeout time.Duration) *InferenceClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Content-Type", "application/json")
	client.SetHeader("Accept", "application/json")

	return &InferenceClient{endpoint: endpoint, dir: dir, client: client}
}

// Endpoint returns the server URL.
func (c *InferenceClient) Endpoint() string {
	return c.endpoint
}

// Classify sends one text to the server.
func (c *InferenceClient) Classify(ctx context.Context, text string) (Prediction, error) {
	body := map[string]any{"inputs": text}
	if c.dir != nil {
		body["model_dir"] = c.dir.Path
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		Post(c.endpoint)
	if err != nil {
		return Prediction{}, fmt.Errorf("inference request: %w", err)
	}
	if resp.IsError() {
		return Prediction{}, fmt.Errorf("inference server returned %s", resp.Status())
	}
	return c.parse(resp.Body())
}

func (c *InferenceClient) parse(body []byte) (Prediction, error) {
	if !gjson.ValidBytes(body) {
		return Prediction{}, errors.New("invalid JSON response")
	}
	root := gjson.ParseBytes(body)

	if logits := root.Get("logits"); logits.IsArray() {
		values, err := numbers("logits", logits)
		if err != nil {
			return Prediction{}, err
		}
		return fromScores(c.byIndex(softmax(values)))
	}
	if scores := root.Get("scores"); scores.IsArray() {
		values, err := numbers("scores", scores)
		if err != nil {
			return Prediction{}, err
		}
		return fromScores(c.byIndex(values))
	}

	if root.IsArray() {
		items := root.Array()
		if len(items) == 1 && items[0].IsArray() {
			items = items[0].Array()
		}
		scores := make(map[Label]float64, len(items))
		for _, item := range items {
			label, err := ParseLabel(item.Get("label").String())
			if err != nil {
				return Prediction{}, err
			}
			score := item.Get("score")
			if score.Type != gjson.Number {
				return Prediction{}, fmt.Errorf("score for %s must be numeric", label)
			}
			scores[label] = score.Float()
		}
		return fromScores(scores)
	}

	return Prediction{}, errors.New("unrecognized response shape")
}

// byIndex maps per-index values to labels using the model's id2label.
func (c *InferenceClient) byIndex(values []float64) map[Label]float64 {
	scores := make(map[Label]float64, len(values))
	for i, v := range values {
		l := Label(i)
		if c.dir != nil {
			mapped, ok := c.dir.Labels[i]
			if !ok {
				continue
			}
			l = mapped
		}
		if l.Valid() {
			scores[l] = v
		}
	}
	return scores
}

func numbers(field string, arr gjson.Result) ([]float64, error) {
	items := arr.Array()
	// pipelines called with a batch of one nest the vector
	if len(items) == 1 && items[0].IsArray() {
		items = items[0].Array()
	}
	out := make([]float64, len(items))
	for i, item := range items {
		if item.Type != gjson.Number {
			return nil, fmt.Errorf("%s[%d] must be numeric", field, i)
		}
		out[i] = item.Float()
	}
	return out, nil
}
