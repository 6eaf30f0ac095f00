// Package images - Image definition and decoding.
package images

import (
	"bytes"
	"image"

	// Registered decoders for image.Decode.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/pkg/errors"
)

// ImageFormat represents supported image formats
type ImageFormat string

// ImageFormat constants
const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatWebP is the WebP image format.
	FormatWebP ImageFormat = "webp"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
	// FormatGIF is the GIF image format. Only the first frame is used.
	FormatGIF ImageFormat = "gif"
)

var (
	// ErrNoData is returned when an empty buffer is passed to Decode.
	ErrNoData = errors.New("image buffer is empty")
	// ErrZeroSize is returned when the decoded image has no pixels.
	ErrZeroSize = errors.New("image has zero width or height")
)

// Image represents an image with a format, data, width, and height.
type Image struct {
	// The format of the image.
	Format ImageFormat `json:"format" yaml:"format"`
	// The data of the image.
	Data []byte `json:"data" yaml:"data"`
	// The width of the image.
	Width int `json:"width" yaml:"width"`
	// The height of the image.
	Height int `json:"height" yaml:"height"`
}

// Decode decodes an encoded image buffer.
//
// Arguments:
//   - data: Encoded JPEG, PNG, GIF or WebP bytes. The buffer is only read.
//
// Returns:
//   - image.Image: The decoded image.
//   - *Image: Metadata for the buffer (format and dimensions; Data aliases the input).
//   - error: ErrNoData, ErrZeroSize, or the wrapped decoder error.
func Decode(data []byte) (image.Image, *Image, error) {
	if len(data) == 0 {
		return nil, nil, ErrNoData
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, nil, errors.Wrap(err, "decode image")
	}

	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, nil, ErrZeroSize
	}

	return img, &Image{
		Format: ImageFormat(format),
		Data:   data,
		Width:  b.Dx(),
		Height: b.Dy(),
	}, nil
}
