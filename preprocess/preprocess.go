// Package preprocess converts encoded images into the detector's input tensor.
package preprocess

import (
	"image"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/parking-occupancy/images"
)

const (
	// DefaultInputSize is the square input resolution of the occupancy model.
	DefaultInputSize = 640
	// Channels is the number of color planes in the input tensor (R, G, B).
	Channels = 3
)

var (
	// ErrDecode is returned when the input bytes cannot be decoded as an image.
	ErrDecode = errors.New("cannot decode image")
	// ErrEmptyImage is returned when the input has zero width or height.
	ErrEmptyImage = errors.New("image has no pixels")
)

// ModelConfig defines the input geometry of the model.
type ModelConfig struct {
	// InputWidth is the expected width of the model input.
	InputWidth int
	// InputHeight is the expected height of the model input.
	InputHeight int
}

// DefaultModelConfig returns the 640x640 configuration.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{InputWidth: DefaultInputSize, InputHeight: DefaultInputSize}
}

// Result contains the preprocessed tensor and metadata.
type Result struct {
	// Tensor is the [1, 3, H, W] float32 input, channel planar, normalized to [0, 1].
	Tensor *tensor.Dense
	// OriginalWidth is the image width before resizing.
	OriginalWidth int
	// OriginalHeight is the image height before resizing.
	OriginalHeight int
	// Original is the decoded source image, alpha stripped.
	Original *image.NRGBA
	// Resized is the stretched InputWidth x InputHeight copy the tensor was built from.
	Resized *image.NRGBA
}

// Shape returns the tensor shape as [batch, channels, height, width].
func (r *Result) Shape() []int {
	return []int(r.Tensor.Shape())
}

// Preprocessor handles image preprocessing for the occupancy model.
type Preprocessor struct {
	config ModelConfig
}

// NewPreprocessor creates a new preprocessor with the given configuration.
// Zero dimensions fall back to DefaultInputSize.
func NewPreprocessor(config ModelConfig) *Preprocessor {
	if config.InputWidth <= 0 {
		config.InputWidth = DefaultInputSize
	}
	if config.InputHeight <= 0 {
		config.InputHeight = DefaultInputSize
	}
	return &Preprocessor{config: config}
}

// Config returns the model configuration in use.
func (p *Preprocessor) Config() ModelConfig {
	return p.config
}

// Preprocess performs all preprocessing steps on an encoded image:
//   - decode and record the original size
//   - strip the alpha channel
//   - stretch to the model input size (no letterboxing)
//   - write R, G and B planes into a [1, 3, H, W] tensor, dividing every byte by 255
//
// Arguments:
//   - data: The encoded image. It is never modified.
//
// Returns:
//   - *Result: The tensor and metadata.
//   - error: ErrDecode or ErrEmptyImage, wrapped with the underlying cause.
func (p *Preprocessor) Preprocess(data []byte) (*Result, error) {
	img, meta, err := images.Decode(data)
	if err != nil {
		if errors.Is(err, images.ErrNoData) || errors.Is(err, images.ErrZeroSize) {
			return nil, errors.Wrap(ErrEmptyImage, err.Error())
		}
		return nil, errors.Wrap(ErrDecode, err.Error())
	}
	return p.PreprocessImage(img, meta.Width, meta.Height)
}

// PreprocessImage runs the same steps as Preprocess on an already decoded image.
func (p *Preprocessor) PreprocessImage(img image.Image, width, height int) (*Result, error) {
	if img == nil || width <= 0 || height <= 0 {
		return nil, errors.Wrapf(ErrEmptyImage, "%dx%d", width, height)
	}

	opaque := images.StripAlpha(img)
	resized := images.Stretch(opaque, p.config.InputWidth, p.config.InputHeight)

	return &Result{
		Tensor:         p.toTensor(resized),
		OriginalWidth:  width,
		OriginalHeight: height,
		Original:       opaque,
		Resized:        resized,
	}, nil
}

// toTensor writes the image into a channel-planar float32 tensor.
func (p *Preprocessor) toTensor(img *image.NRGBA) *tensor.Dense {
	w, h := p.config.InputWidth, p.config.InputHeight
	plane := w * h
	data := make([]float32, Channels*plane)

	red := data[0:plane]
	green := data[plane : plane*2]
	blue := data[plane*2 : plane*3]

	i := 0
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			red[i] = float32(row[x*4]) / 255.0
			green[i] = float32(row[x*4+1]) / 255.0
			blue[i] = float32(row[x*4+2]) / 255.0
			i++
		}
	}

	return tensor.New(
		tensor.WithShape(1, Channels, h, w),
		tensor.WithBacking(data),
	)
}
