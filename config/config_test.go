package config

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/parking-occupancy/annotate"
	"github.com/nvr-ai/parking-occupancy/models"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, float32(0.7), cfg.Detection.ConfidenceThreshold)
	assert.Equal(t, float32(0.9), cfg.Detection.IoUThreshold)
	assert.Equal(t, 300, cfg.DecodeConfig().Slots)
	assert.Equal(t, BackendONNX, cfg.Inference.Backend)
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
inference:
  backend: remote
remote:
  url: http://triton:8000
  timeout: 5s
detection:
  iouThreshold: 0.5
  classAware: true
annotation:
  frame: original
  colors:
    space-occupied: "#00ff00"
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, int64(32), cfg.Server.MaxUploadMB, "unset keys should keep their defaults")
	assert.Equal(t, BackendRemote, cfg.Inference.Backend)
	assert.Equal(t, 5*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, float32(0.7), cfg.Detection.ConfidenceThreshold)

	nms := cfg.NMSConfig()
	assert.Equal(t, float32(0.5), nms.IoUThreshold)
	assert.True(t, nms.ClassAware)

	remote := cfg.RemoteInvokerConfig()
	assert.Equal(t, "http://triton:8000", remote.URL)
	assert.Equal(t, "images", remote.InputName)

	style, err := cfg.AnnotationStyle()
	require.NoError(t, err)
	assert.Equal(t, annotate.FrameOriginal, style.Frame)
	assert.Equal(t, color.RGBA{G: 0xff, A: 0xff}, style.Colors[models.ClassSpaceOccupied])
	assert.Equal(t, color.RGBA{R: 0xff, A: 0xff}, style.Colors[models.ClassSpaceEmpty], "unlisted classes should keep the default color")

	assert.Equal(t, "debug", cfg.LoggerOptions().Level)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "server: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Inference.Backend = "tpu" }},
		{"missing model path", func(c *Config) { c.Model.Path = "" }},
		{"unknown provider", func(c *Config) { c.Model.Provider = "quantum" }},
		{"remote without url", func(c *Config) { c.Inference.Backend = BackendRemote }},
		{"confidence above one", func(c *Config) { c.Detection.ConfidenceThreshold = 1.5 }},
		{"zero iou threshold", func(c *Config) { c.Detection.IoUThreshold = 0 }},
		{"jpeg quality", func(c *Config) { c.Annotation.JPEGQuality = 0 }},
		{"bad frame", func(c *Config) { c.Annotation.Frame = "sideways" }},
		{"bad color", func(c *Config) { c.Annotation.Colors["space-empty"] = "red" }},
		{"unknown class color", func(c *Config) { c.Annotation.Colors["space-reserved"] = "#ffffff" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
