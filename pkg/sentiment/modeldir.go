package sentiment

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/tidwall/gjson"
)

// RequiredFiles must be present in a model directory.
var RequiredFiles = []string{
	"model.safetensors",
	"config.json",
	"tokenizer_config.json",
	"vocab.txt",
}

// ModelDir is a validated sequence-classification model directory.
type ModelDir struct {
	Path string

	// Labels maps output indices to classes, from config.json id2label.
	Labels map[int]Label
}

// OpenModelDir checks that dir holds every required file and reads the label
// mapping. Absent files are reported together as *ArtifactMissingError.
func OpenModelDir(dir string) (*ModelDir, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	var missing []string
	for _, name := range RequiredFiles {
		if _, err := os.Stat(filepath.Join(abs, name)); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				missing = append(missing, name)
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", name, err)
		}
	}
	if len(missing) > 0 {
		return nil, &ArtifactMissingError{Dir: abs, Missing: missing}
	}

	cfg, err := os.ReadFile(filepath.Join(abs, "config.json"))
	if err != nil {
		return nil, fmt.Errorf("read config.json: %w", err)
	}
	labels, err := parseID2Label(cfg)
	if err != nil {
		return nil, fmt.Errorf("config.json: %w", err)
	}
	return &ModelDir{Path: abs, Labels: labels}, nil
}

// parseID2Label reads id2label. A config without one uses the head order.
func parseID2Label(cfg []byte) (map[int]Label, error) {
	if !gjson.ValidBytes(cfg) {
		return nil, errors.New("invalid JSON")
	}
	labels := make(map[int]Label, len(Labels))
	id2label := gjson.GetBytes(cfg, "id2label")
	if !id2label.Exists() {
		for _, l := range Labels {
			labels[int(l)] = l
		}
		return labels, nil
	}

	var err error
	id2label.ForEach(func(key, value gjson.Result) bool {
		var idx int
		idx, err = strconv.Atoi(key.String())
		if err != nil {
			err = fmt.Errorf("id2label key %q: %w", key.String(), err)
			return false
		}
		var l Label
		l, err = ParseLabel(value.String())
		if err != nil {
			return false
		}
		labels[idx] = l
		return true
	})
	if err != nil {
		return nil, err
	}
	if len(labels) == 0 {
		return nil, errors.New("id2label is empty")
	}
	return labels, nil
}

// Indices returns the output indices in ascending order.
func (d *ModelDir) Indices() []int {
	out := make([]int, 0, len(d.Labels))
	for i := range d.Labels {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
