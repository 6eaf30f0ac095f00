package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// kserve answers every inference request with one occupied space.
func kserve(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		output := make([]float32, 300*6)
		copy(output, []float32{100, 100, 300, 400, 0.92, 1})

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model_name": "parking",
			"outputs": []map[string]any{
				{"name": "output0", "shape": []int{1, 300, 6}, "datatype": "FP32", "data": output},
			},
		})
	}))
}

func TestRun_BatchMode(t *testing.T) {
	srv := kserve(t)
	defer srv.Close()

	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	out := filepath.Join(dir, "out")
	require.NoError(t, os.Mkdir(in, 0o755))

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 120, 90))))
	require.NoError(t, os.WriteFile(filepath.Join(in, "lot-1.png"), buf.Bytes(), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(in, "lot-2.jpg"), []byte("corrupt"), 0o600))

	configFile := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(`
inference:
  backend: remote
remote:
  url: `+srv.URL+`
  modelName: parking
annotation:
  frame: original
log:
  level: error
`), 0o600))

	require.NoError(t, run(configFile, modeBatch, in, out))

	data, err := os.ReadFile(filepath.Join(out, "lot-1.annotated.jpg"))
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 120, 90), img.Bounds(), "the original frame keeps the input size")

	_, err = os.Stat(filepath.Join(out, "lot-2.annotated.jpg"))
	assert.True(t, os.IsNotExist(err), "a failed image should not produce output")
}

func TestRun_Errors(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("inference:\n  backend: remote\nremote:\n  url: http://127.0.0.1:1\n"), 0o600))

	assert.Error(t, run(filepath.Join(dir, "missing.yaml"), modeBatch, dir, dir))
	assert.Error(t, run(configFile, "stream", dir, dir), "unknown modes should be rejected")
	assert.Error(t, run(configFile, modeBatch, "", dir), "batch mode needs an input directory")
	assert.Error(t, run(configFile, modeBatch, dir, dir), "a directory without images is an error")
}
