package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HatiCode/demandcast/pkg/models"
	"github.com/HatiCode/demandcast/pkg/models/modelstest"
	"github.com/HatiCode/demandcast/pkg/sentiment"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return out.String(), err
}

// writeHistory writes days of constant demand starting 2025-01-01.
func writeHistory(t *testing.T, days int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("tanggal_permohonan,jumlah_permohonan,total_harga\n")
	start := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < days; i++ {
		fmt.Fprintf(&b, "%s,10,50000\n", start.AddDate(0, 0, i).Format(time.DateTime))
	}
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestPrepare(t *testing.T) {
	data := writeHistory(t, 60)

	out, err := runCmd(t, "prepare", "--data", data, "-n", "3")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 4)
	assert.Contains(t, lines[1], "2025-01-31")

	dest := filepath.Join(t.TempDir(), "out", "prepared.csv")
	out, err = runCmd(t, "prepare", "--data", data, "--out", dest)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 30 days")
	assert.Len(t, readCSV(t, dest), 31)
}

func TestPrepare_UnsupportedOutput(t *testing.T) {
	data := writeHistory(t, 60)
	_, err := runCmd(t, "prepare", "--data", data, "--out", filepath.Join(t.TempDir(), "x.pdf"))
	assert.Error(t, err)
}

func TestDescribe_JSON(t *testing.T) {
	data := writeHistory(t, 60)

	out, err := runCmd(t, "describe", "--data", data, "--json")
	require.NoError(t, err)

	var got struct {
		Summary struct {
			Count int      `json:"count"`
			Mean  float64  `json:"mean"`
			Std   *float64 `json:"std"`
		} `json:"summary"`
		Year    int `json:"year"`
		Monthly []struct {
			Name  string  `json:"name"`
			Total float64 `json:"total"`
		} `json:"monthly"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 30, got.Summary.Count)
	assert.InDelta(t, 10, got.Summary.Mean, 1e-9)
	assert.Equal(t, 2025, got.Year)
	require.Len(t, got.Monthly, 3)
	assert.Equal(t, "Jan", got.Monthly[0].Name)
	assert.Equal(t, 280.0, got.Monthly[1].Total)
}

func TestDescribe_Text(t *testing.T) {
	data := writeHistory(t, 60)
	out, err := runCmd(t, "describe", "--data", data)
	require.NoError(t, err)
	assert.Contains(t, out, "count")
	assert.Contains(t, out, "monthly totals 2025")
}

func TestForecast(t *testing.T) {
	data := writeHistory(t, 60)
	dir := modelstest.MeanDir(t)

	out, err := runCmd(t, "forecast", "--data", data, "--model-dir", dir, "--horizon", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "2025-03-02")
	assert.Contains(t, out, "2025-03-04")
	assert.NotContains(t, out, "2025-03-05")
	assert.Contains(t, out, "10.00")

	dest := filepath.Join(t.TempDir(), "prediksi.csv")
	_, err = runCmd(t, "forecast", "--data", data, "--model-dir", dir, "--out", dest)
	require.NoError(t, err)
	assert.Len(t, readCSV(t, dest), 8)
}

func TestForecast_Errors(t *testing.T) {
	data := writeHistory(t, 60)

	_, err := runCmd(t, "forecast", "--data", data, "--model-dir", modelstest.MeanDir(t), "--horizon", "8")
	assert.ErrorContains(t, err, "--horizon")

	_, err = runCmd(t, "forecast", "--data", data, "--model-dir", t.TempDir())
	var missing *models.ArtifactMissingError
	assert.ErrorAs(t, err, &missing)
}

// inferenceServer answers logits in Negative, Neutral, Positive order.
func inferenceServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Inputs string `json:"inputs"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		switch {
		case strings.Contains(req.Inputs, "rusak"):
			http.Error(w, "boom", http.StatusInternalServerError)
		case strings.Contains(req.Inputs, "lambat"):
			w.Write([]byte(`{"logits":[3.0, 0.1, 0.1]}`))
		case strings.Contains(req.Inputs, "bagus"):
			w.Write([]byte(`{"logits":[0.1, 0.1, 3.0]}`))
		default:
			w.Write([]byte(`{"logits":[0.1, 3.0, 0.1]}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func sentimentModelDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range sentiment.RequiredFiles {
		content := "x"
		if name == "config.json" {
			content = `{"id2label": {"0": "negative", "1": "neutral", "2": "positive"}}`
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestClassify(t *testing.T) {
	srv := inferenceServer(t)
	out, err := runCmd(t, "classify", "--sentiment-model-dir", sentimentModelDir(t), "--sentiment-url", srv.URL,
		"pelayanan", "bagus")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Positive"))
}

func TestClassifyBatch(t *testing.T) {
	srv := inferenceServer(t)
	in := filepath.Join(t.TempDir(), "ulasan.csv")
	require.NoError(t, os.WriteFile(in, []byte("id,komentar\n1,pelayanan bagus\n2,antrian lambat\n3,\n4,server rusak\n5,biasa saja\n"), 0o644))

	out, err := runCmd(t, "classify-batch", in, "--column", "komentar",
		"--sentiment-model-dir", sentimentModelDir(t), "--sentiment-url", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 5 rows")

	rows := readCSV(t, strings.TrimSuffix(in, ".csv")+"_labeled.csv")
	require.Len(t, rows, 6)
	assert.Equal(t, []string{"id", "komentar", sentiment.LabelColumn}, rows[0])
	labels := make([]string, 0, 5)
	for _, r := range rows[1:] {
		labels = append(labels, r[2])
	}
	assert.Equal(t, []string{"Positive", "Negative", "Neutral", sentiment.ErrorLabel, "Neutral"}, labels)
}

func TestClassifyBatch_MissingColumn(t *testing.T) {
	in := filepath.Join(t.TempDir(), "ulasan.csv")
	require.NoError(t, os.WriteFile(in, []byte("id,komentar\n1,bagus\n"), 0o644))

	_, err := runCmd(t, "classify-batch", in, "--column", "ulasan")
	assert.ErrorContains(t, err, "komentar")

	_, err = runCmd(t, "classify-batch", in)
	assert.Error(t, err)
}

func TestAssetsFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("weights"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	manifest := filepath.Join(dir, "assets.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte(fmt.Sprintf(
		"dir: model_nlp\nfiles:\n  - name: model.safetensors\n    url: %s/model\n  - name: vocab.txt\n    url: %s/missing\n",
		srv.URL, srv.URL)), 0o644))

	out, err := runCmd(t, "assets", "fetch", "--manifest", manifest)
	assert.Error(t, err)
	assert.Contains(t, out, "model.safetensors  downloaded  7")
	assert.Contains(t, out, "vocab.txt")

	b, err := os.ReadFile(filepath.Join(dir, "model_nlp", "model.safetensors"))
	require.NoError(t, err)
	assert.Equal(t, "weights", string(b))

	out, err = runCmd(t, "assets", "fetch", "--assets", manifest)
	assert.Error(t, err)
	assert.Contains(t, out, "model.safetensors  skipped")
}
