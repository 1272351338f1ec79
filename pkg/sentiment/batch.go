package sentiment

import (
	"context"
	"fmt"

	"github.com/HatiCode/demandcast/pkg/tabular"
)

// LabelColumn is the column appended by LabelTable. Exported files keep the
// Indonesian header their consumers read.
const LabelColumn = "Sentimen"

// Result is the outcome for one text of a batch. Exactly one of Prediction
// and Err is meaningful.
type Result struct {
	Prediction Prediction
	Err        error
}

// OK reports whether the text was classified.
func (r Result) OK() bool { return r.Err == nil }

// Text renders the label, or ErrorLabel for a failed row.
func (r Result) Text() string {
	if r.Err != nil {
		return ErrorLabel
	}
	return r.Prediction.Label.String()
}

// ClassifyBatch classifies texts one at a time, in order. Blank cells are
// classified like any other text. A failing or
// panicking row yields a *ClassificationError in its Result and does not stop
// the batch. Only cancellation of ctx ends the loop early; the remaining rows
// then carry ctx.Err().
func ClassifyBatch(ctx context.Context, c Classifier, texts []string) []Result {
	out := make([]Result, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(texts); j++ {
				out[j] = Result{Err: &ClassificationError{Row: j, Err: err}}
			}
			break
		}
		p, err := classifyOne(ctx, c, text)
		if err != nil {
			out[i] = Result{Err: &ClassificationError{Row: i, Err: err}}
			continue
		}
		out[i] = Result{Prediction: p}
	}
	return out
}

func classifyOne(ctx context.Context, c Classifier, text string) (p Prediction, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	p, err = c.Classify(ctx, text)
	if err == nil && !p.Label.Valid() {
		err = fmt.Errorf("classifier returned invalid label %d", int(p.Label))
	}
	return p, err
}

// LabelTable returns t with column appended, holding each row's label or
// ErrorLabel. An empty column name means LabelColumn. t is not modified.
func LabelTable(t *tabular.Table, column string, results []Result) (*tabular.Table, error) {
	if column == "" {
		column = LabelColumn
	}
	values := make([]string, len(results))
	for i, r := range results {
		values[i] = r.Text()
	}
	return t.AppendColumn(column, values)
}

// ClassifyTable classifies every value of textColumn and returns the labeled
// table with the per-row results.
func ClassifyTable(ctx context.Context, c Classifier, t *tabular.Table, textColumn string) (*tabular.Table, []Result, error) {
	texts, err := t.Column(textColumn)
	if err != nil {
		return nil, nil, err
	}
	results := ClassifyBatch(ctx, c, texts)
	labeled, err := LabelTable(t, LabelColumn, results)
	if err != nil {
		return nil, nil, err
	}
	return labeled, results, nil
}

// Counts tallies labels in results. Failed rows are counted under ErrorLabel.
func Counts(results []Result) map[string]int {
	out := make(map[string]int, len(Labels)+1)
	for _, r := range results {
		out[r.Text()]++
	}
	return out
}
