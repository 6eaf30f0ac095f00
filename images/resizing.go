package images

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
)

// StripAlpha returns an opaque NRGBA copy of img.
//
// The color channels keep their straight (non-premultiplied) values and the alpha byte of
// every pixel is forced to 255, which drops the channel instead of compositing it against
// a background. The source image is not modified.
//
// Arguments:
//   - img: The source image.
//
// Returns:
//   - *image.NRGBA: A new opaque image with bounds starting at (0, 0).
func StripAlpha(img image.Image) *image.NRGBA {
	dst := imaging.Clone(img)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

// Stretch resizes img to exactly width x height without preserving the aspect ratio.
//
// Arguments:
//   - img: The image to resize.
//   - width: Target width in pixels.
//   - height: Target height in pixels.
//
// Returns:
//   - *image.NRGBA: The resized image.
func Stretch(img image.Image, width, height int) *image.NRGBA {
	resized := resize.Resize(uint(width), uint(height), img, resize.Lanczos3)
	if nrgba, ok := resized.(*image.NRGBA); ok && nrgba.Rect.Min == (image.Point{}) {
		return nrgba
	}
	return imaging.Clone(resized)
}
