package assets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	m, err := Parse(strings.NewReader(`
dir: model_nlp
files:
  - name: config.json
    url: https://example.com/config.json
  - name: model.safetensors
    drive_id: abc123
`))
	require.NoError(t, err)
	assert.Equal(t, "model_nlp", m.Dir)
	require.Len(t, m.Files, 2)
	assert.Equal(t, "https://example.com/config.json", m.Files[0].Source())
	assert.Equal(t, driveURL+"abc123", m.Files[1].Source())
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"no dir":        "files: []",
		"no source":     "dir: d\nfiles:\n  - name: a",
		"path name":     "dir: d\nfiles:\n  - name: ../a\n    url: http://x",
		"duplicate":     "dir: d\nfiles:\n  - name: a\n    url: http://x\n  - name: a\n    url: http://y",
		"unknown field": "dir: d\nchecksum: x",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadManifest_RelativeDir(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "assets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dir: model_nlp\nfiles: []\n"), 0o644))

	m, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "model_nlp"), m.Dir)
}

func TestFetcher_Ensure(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/vocab.txt":
			w.Write([]byte("[PAD]\n[UNK]\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte("{}"), 0o644))

	m := &Manifest{Dir: dir, Files: []File{
		{Name: "config.json", URL: server.URL + "/config.json"},
		{Name: "vocab.txt", URL: server.URL + "/vocab.txt"},
		{Name: "model.safetensors", URL: server.URL + "/missing"},
	}}

	outcomes, err := NewFetcher(0, nil).Ensure(context.Background(), m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model.safetensors")
	require.Len(t, outcomes, 3)

	assert.Equal(t, Skipped, outcomes[0].Status)
	assert.Equal(t, Downloaded, outcomes[1].Status)
	assert.Equal(t, int64(len("[PAD]\n[UNK]\n")), outcomes[1].Bytes)
	assert.Equal(t, Failed, outcomes[2].Status)
	assert.Equal(t, int32(2), hits.Load(), "existing file must not be requested")

	b, err := os.ReadFile(filepath.Join(dir, "vocab.txt"))
	require.NoError(t, err)
	assert.Equal(t, "[PAD]\n[UNK]\n", string(b))

	_, err = os.Stat(filepath.Join(dir, "model.safetensors"))
	assert.True(t, os.IsNotExist(err), "failed download must not leave a file")
	_, err = os.Stat(filepath.Join(dir, ".model.safetensors.part"))
	assert.True(t, os.IsNotExist(err), "partial file must be removed")

	// second run only retries the failed file
	outcomes, _ = NewFetcher(0, nil).Ensure(context.Background(), m)
	assert.Equal(t, Skipped, outcomes[1].Status)
	assert.Equal(t, int32(3), hits.Load())
}
