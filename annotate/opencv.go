//go:build gocv

package annotate

import (
	"image"
	"image/color"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/parking-occupancy/models/postprocess"
	"github.com/nvr-ai/parking-occupancy/preprocess"
)

// OpenCVAnnotator renders detections with OpenCV. Build with -tags gocv.
//
// Outlines and labels are drawn onto a black overlay and a matching mask, and the overlay
// is copied onto the source through the mask in one call.
type OpenCVAnnotator struct {
	style Style
}

// NewOpenCV creates an OpenCV-backed annotator.
func NewOpenCV(style Style) *OpenCVAnnotator {
	return &OpenCVAnnotator{style: style.withDefaults()}
}

// Render projects dets into the configured frame and annotates the matching image.
func (a *OpenCVAnnotator) Render(pre *preprocess.Result, dets []postprocess.Detection) ([]byte, error) {
	if pre == nil {
		return nil, ErrNilImage
	}
	src, projected := Project(pre, dets, a.style.Frame)
	return a.Annotate(src, projected)
}

// Annotate draws dets onto a copy of src and encodes it as JPEG.
func (a *OpenCVAnnotator) Annotate(src image.Image, dets []postprocess.Detection) ([]byte, error) {
	if src == nil {
		return nil, ErrNilImage
	}

	mat, err := gocv.ImageToMatRGB(src)
	if err != nil {
		return nil, errors.Wrap(ErrEncode, err.Error())
	}
	defer mat.Close()

	overlay := gocv.Zeros(mat.Rows(), mat.Cols(), gocv.MatTypeCV8UC3)
	defer overlay.Close()
	mask := gocv.Zeros(mat.Rows(), mat.Cols(), gocv.MatTypeCV8UC1)
	defer mask.Close()

	opaque := color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	text := toRGBA(a.style.TextColor)
	scale := a.style.FontSize / 30.0

	for _, d := range dets {
		r := image.Rect(round(d.Box.X1), round(d.Box.Y1), round(d.Box.X2), round(d.Box.Y2))
		c := toRGBA(a.style.colorFor(d.Class))
		gocv.Rectangle(&overlay, r, c, a.style.StrokeWidth)
		gocv.Rectangle(&mask, r, opaque, a.style.StrokeWidth)

		org := image.Pt(r.Min.X, r.Max.Y+a.style.LabelOffset)
		gocv.PutText(&overlay, d.Class.DisplayName(), org, gocv.FontHersheyDuplex, scale, text, 2)
		gocv.PutText(&mask, d.Class.DisplayName(), org, gocv.FontHersheyDuplex, scale, opaque, 2)
	}

	overlay.CopyToWithMask(&mat, mask)

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, a.style.JPEGQuality})
	if err != nil {
		return nil, errors.Wrap(ErrEncode, err.Error())
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

func toRGBA(c color.Color) color.RGBA {
	return color.RGBAModel.Convert(c).(color.RGBA)
}
