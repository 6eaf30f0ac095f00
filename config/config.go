// Package config loads the service configuration from YAML.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/parking-occupancy/annotate"
	"github.com/nvr-ai/parking-occupancy/inference"
	"github.com/nvr-ai/parking-occupancy/logger"
	"github.com/nvr-ai/parking-occupancy/models"
	"github.com/nvr-ai/parking-occupancy/models/postprocess"
)

// Backend selects the inference implementation.
type Backend string

const (
	// BackendONNX runs the model in-process with onnxruntime.
	BackendONNX Backend = "onnx"
	// BackendRemote sends tensors to a KServe v2 inference server.
	BackendRemote Backend = "remote"
)

// Config is the root of the YAML document.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Inference  InferenceConfig  `yaml:"inference"`
	Model      ModelConfig      `yaml:"model"`
	Remote     RemoteConfig     `yaml:"remote"`
	Detection  DetectionConfig  `yaml:"detection"`
	Annotation AnnotationConfig `yaml:"annotation"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr        string        `yaml:"addr"`
	MaxUploadMB int64         `yaml:"maxUploadMB"`
	ReadTimeout time.Duration `yaml:"readTimeout"`
}

// InferenceConfig selects the backend.
type InferenceConfig struct {
	Backend Backend `yaml:"backend"`
}

// ModelConfig configures the in-process ONNX backend.
type ModelConfig struct {
	Path           string `yaml:"path"`
	SharedLibrary  string `yaml:"sharedLibrary"`
	Provider       string `yaml:"provider"`
	DeviceID       int    `yaml:"deviceID"`
	IntraOpThreads int    `yaml:"intraOpThreads"`
	InterOpThreads int    `yaml:"interOpThreads"`
	PoolSize       int    `yaml:"poolSize"`
	InputName      string `yaml:"inputName"`
	OutputName     string `yaml:"outputName"`
	InputSize      int    `yaml:"inputSize"`
	Slots          int    `yaml:"slots"`
}

// RemoteConfig configures the remote backend.
type RemoteConfig struct {
	URL       string        `yaml:"url"`
	ModelName string        `yaml:"modelName"`
	Timeout   time.Duration `yaml:"timeout"`
}

// DetectionConfig configures decoding and suppression.
type DetectionConfig struct {
	ConfidenceThreshold float32 `yaml:"confidenceThreshold"`
	IoUThreshold        float32 `yaml:"iouThreshold"`
	ClassAware          bool    `yaml:"classAware"`
}

// AnnotationConfig configures rendering.
type AnnotationConfig struct {
	Frame       string            `yaml:"frame"`
	StrokeWidth int               `yaml:"strokeWidth"`
	FontSize    float64           `yaml:"fontSize"`
	JPEGQuality int               `yaml:"jpegQuality"`
	TextColor   string            `yaml:"textColor"`
	Colors      map[string]string `yaml:"colors"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Development bool   `yaml:"development"`
	Level       string `yaml:"level"`
}

// Default returns a configuration with every field set to its default.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:        ":8080",
			MaxUploadMB: 32,
			ReadTimeout: 30 * time.Second,
		},
		Inference: InferenceConfig{Backend: BackendONNX},
		Model: ModelConfig{
			Path:       "./models/parking.onnx",
			Provider:   string(inference.CPUExecutionProvider),
			PoolSize:   inference.DefaultPoolSize,
			InputName:  "images",
			OutputName: "output0",
			InputSize:  640,
			Slots:      postprocess.DefaultSlots,
		},
		Remote: RemoteConfig{
			ModelName: "parking",
			Timeout:   inference.DefaultRemoteTimeout,
		},
		Detection: DetectionConfig{
			ConfidenceThreshold: postprocess.DefaultConfidenceThreshold,
			IoUThreshold:        postprocess.DefaultIoUThreshold,
		},
		Annotation: AnnotationConfig{
			Frame:       string(annotate.FrameModel),
			StrokeWidth: 4,
			FontSize:    20,
			JPEGQuality: 80,
			TextColor:   "#ffffff",
			Colors: map[string]string{
				models.ClassSpaceEmpty.String():    "#ff0000",
				models.ClassSpaceOccupied.String(): "#0000ff",
			},
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path and overlays it onto Default(). Keys missing from the file keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config file")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(err, "parse config file")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects values the pipeline cannot run with.
func (c Config) Validate() error {
	switch c.Inference.Backend {
	case BackendONNX:
		if c.Model.Path == "" {
			return errors.New("model.path is required for the onnx backend")
		}
		if _, err := inference.ParseProvider(c.Model.Provider); err != nil {
			return errors.Wrap(err, "model.provider")
		}
	case BackendRemote:
		if c.Remote.URL == "" {
			return errors.New("remote.url is required for the remote backend")
		}
	default:
		return errors.Errorf("inference.backend must be %q or %q, got %q", BackendONNX, BackendRemote, c.Inference.Backend)
	}

	if c.Detection.ConfidenceThreshold < 0 || c.Detection.ConfidenceThreshold > 1 {
		return errors.Errorf("detection.confidenceThreshold must be in [0, 1], got %v", c.Detection.ConfidenceThreshold)
	}
	if c.Detection.IoUThreshold <= 0 || c.Detection.IoUThreshold > 1 {
		return errors.Errorf("detection.iouThreshold must be in (0, 1], got %v", c.Detection.IoUThreshold)
	}
	if c.Annotation.JPEGQuality < 1 || c.Annotation.JPEGQuality > 100 {
		return errors.Errorf("annotation.jpegQuality must be in [1, 100], got %d", c.Annotation.JPEGQuality)
	}
	if _, err := c.AnnotationStyle(); err != nil {
		return err
	}
	return nil
}

// InferenceConfig converts the model section into an inference.Config.
func (c Config) InferenceConfig() inference.Config {
	return inference.Config{
		ModelPath:         c.Model.Path,
		SharedLibraryPath: c.Model.SharedLibrary,
		Provider:          inference.Provider(c.Model.Provider),
		DeviceID:          c.Model.DeviceID,
		IntraOpThreads:    c.Model.IntraOpThreads,
		InterOpThreads:    c.Model.InterOpThreads,
		InputName:         c.Model.InputName,
		OutputName:        c.Model.OutputName,
		InputSize:         c.Model.InputSize,
		Slots:             c.Model.Slots,
	}
}

// RemoteInvokerConfig converts the remote section into an inference.RemoteConfig.
func (c Config) RemoteInvokerConfig() inference.RemoteConfig {
	return inference.RemoteConfig{
		URL:        c.Remote.URL,
		ModelName:  c.Remote.ModelName,
		InputName:  c.Model.InputName,
		OutputName: c.Model.OutputName,
		Timeout:    c.Remote.Timeout,
	}
}

// DecodeConfig returns the decoder settings.
func (c Config) DecodeConfig() postprocess.DecodeConfig {
	return postprocess.DecodeConfig{
		ConfidenceThreshold: c.Detection.ConfidenceThreshold,
		Slots:               c.Model.Slots,
	}
}

// NMSConfig returns the suppression settings.
func (c Config) NMSConfig() postprocess.NMSConfig {
	return postprocess.NMSConfig{
		IoUThreshold: c.Detection.IoUThreshold,
		ClassAware:   c.Detection.ClassAware,
	}
}

// AnnotationStyle parses the annotation section into an annotate.Style.
func (c Config) AnnotationStyle() (annotate.Style, error) {
	style := annotate.DefaultStyle()

	frame, err := annotate.ParseFrame(c.Annotation.Frame)
	if err != nil {
		return style, errors.Wrap(err, "annotation.frame")
	}
	style.Frame = frame
	style.StrokeWidth = c.Annotation.StrokeWidth
	style.FontSize = c.Annotation.FontSize
	style.JPEGQuality = c.Annotation.JPEGQuality

	if c.Annotation.TextColor != "" {
		if style.TextColor, err = annotate.ParseColor(c.Annotation.TextColor); err != nil {
			return style, errors.Wrap(err, "annotation.textColor")
		}
	}
	for name, hex := range c.Annotation.Colors {
		var class models.ClassLabel
		if err := class.UnmarshalText([]byte(name)); err != nil {
			return style, errors.Wrap(err, "annotation.colors")
		}
		col, err := annotate.ParseColor(hex)
		if err != nil {
			return style, errors.Wrapf(err, "annotation.colors.%s", name)
		}
		style.Colors[class] = col
	}
	return style, nil
}

// LoggerOptions returns the logger settings.
func (c Config) LoggerOptions() logger.Options {
	return logger.Options{Development: c.Log.Development, Level: c.Log.Level}
}
