// Package sentiment classifies free-text feedback as Negative, Neutral or
// Positive using a pretrained sequence-classification model served by an
// inference backend.
package sentiment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Label is a sentiment class. The numeric values match the model head.
type Label int

const (
	Negative Label = iota
	Neutral
	Positive
)

// Labels lists every class in model-head order.
var Labels = []Label{Negative, Neutral, Positive}

// ErrorLabel is written in place of a label for rows that failed.
const ErrorLabel = "Error"

func (l Label) String() string {
	switch l {
	case Negative:
		return "Negative"
	case Neutral:
		return "Neutral"
	case Positive:
		return "Positive"
	default:
		return "Label(" + strconv.Itoa(int(l)) + ")"
	}
}

// Valid reports whether l is one of the three classes.
func (l Label) Valid() bool {
	return l >= Negative && l <= Positive
}

func (l Label) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid label %d", int(l))
	}
	return []byte(l.String()), nil
}

func (l *Label) UnmarshalText(b []byte) error {
	parsed, err := ParseLabel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLabel accepts English and Indonesian class names, their common
// abbreviations, model-head indices and LABEL_n names.
func ParseLabel(s string) (Label, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.Trim(v, ".\"'`")
	v = strings.TrimPrefix(v, "label_")

	switch v {
	case "negative", "negatif", "neg", "0":
		return Negative, nil
	case "neutral", "netral", "neu", "1":
		return Neutral, nil
	case "positive", "positif", "pos", "2":
		return Positive, nil
	}
	return 0, fmt.Errorf("unknown sentiment label %q", s)
}

// Prediction is the outcome of classifying one text.
type Prediction struct {
	Label      Label             `json:"label"`
	Confidence float64           `json:"confidence"`
	Scores     map[Label]float64 `json:"scores,omitempty"`
}

// Classifier maps one text to a Prediction.
type Classifier interface {
	Classify(ctx context.Context, text string) (Prediction, error)
}

// ErrEmptyText is returned for blank input.
var ErrEmptyText = errors.New("text is empty")

// ArtifactMissingError lists required model files that are absent.
type ArtifactMissingError struct {
	Dir     string
	Missing []string
}

func (e *ArtifactMissingError) Error() string {
	return fmt.Sprintf("sentiment model files missing in %s: %s", e.Dir, strings.Join(e.Missing, ", "))
}

// ClassificationError is the failure of one row in a batch.
type ClassificationError struct {
	Row int
	Err error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// fromScores picks the highest-scoring class. Ties keep the lower index.
func fromScores(scores map[Label]float64) (Prediction, error) {
	if len(scores) == 0 {
		return Prediction{}, errors.New("no scores")
	}
	p := Prediction{Label: -1, Confidence: math.Inf(-1), Scores: scores}
	for _, l := range Labels {
		s, ok := scores[l]
		if !ok {
			continue
		}
		if math.IsNaN(s) {
			return Prediction{}, fmt.Errorf("score for %s is NaN", l)
		}
		if s > p.Confidence {
			p.Label, p.Confidence = l, s
		}
	}
	if !p.Label.Valid() {
		return Prediction{}, errors.New("no score for a known label")
	}
	return p, nil
}

// softmax converts logits to probabilities.
func softmax(logits []float64) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	hi := logits[0]
	for _, v := range logits[1:] {
		if v > hi {
			hi = v
		}
	}
	var sum float64
	for i, v := range logits {
		out[i] = math.Exp(v - hi)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
