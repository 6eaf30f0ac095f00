package annotate

import (
	"bytes"
	"image"
	"image/draw"

	"github.com/chewxy/math32"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/nvr-ai/parking-occupancy/models/postprocess"
	"github.com/nvr-ai/parking-occupancy/preprocess"
)

var (
	// ErrNilImage is returned when there is no source image to draw on.
	ErrNilImage = errors.New("annotate: source image is nil")
	// ErrEncode is returned when the composited image cannot be encoded.
	ErrEncode = errors.New("annotate: cannot encode image")
	// ErrFont is returned when the label font cannot be loaded.
	ErrFont = errors.New("annotate: cannot load label font")
)

// Annotator renders detections with the pure-Go drawing stack.
// It holds no per-call state and is safe for concurrent use.
type Annotator struct {
	style Style
	font  *opentype.Font
}

// New creates an annotator with the Go Bold label font.
func New(style Style) (*Annotator, error) {
	f, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, errors.Wrap(ErrFont, err.Error())
	}
	return &Annotator{style: style.withDefaults(), font: f}, nil
}

// Style returns the effective style.
func (a *Annotator) Style() Style {
	return a.style
}

// Render projects dets into the configured frame and annotates the matching image.
func (a *Annotator) Render(pre *preprocess.Result, dets []postprocess.Detection) ([]byte, error) {
	if pre == nil {
		return nil, ErrNilImage
	}
	src, projected := Project(pre, dets, a.style.Frame)
	return a.Annotate(src, projected)
}

// Annotate draws every detection onto one overlay, composites it over a copy of src,
// and encodes the result as JPEG.
//
// Arguments:
//   - src: The image to draw on. It is not modified.
//   - dets: Detections in src's pixel coordinates.
//
// Returns:
//   - []byte: The JPEG bytes.
//   - error: ErrNilImage, ErrFont or ErrEncode.
func (a *Annotator) Annotate(src image.Image, dets []postprocess.Detection) ([]byte, error) {
	if src == nil {
		return nil, ErrNilImage
	}
	bounds := src.Bounds()
	if bounds.Empty() {
		return nil, errors.Wrap(ErrNilImage, "empty bounds")
	}

	face, err := opentype.NewFace(a.font, &opentype.FaceOptions{
		Size:    a.style.FontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, errors.Wrap(ErrFont, err.Error())
	}
	defer face.Close()

	overlay := image.NewRGBA(bounds)
	label := &font.Drawer{
		Dst:  overlay,
		Src:  image.NewUniform(a.style.TextColor),
		Face: face,
	}

	for _, d := range dets {
		box := d.Box
		strokeRect(overlay, box.X1, box.Y1, box.X2, box.Y2, float32(a.style.StrokeWidth),
			image.NewUniform(a.style.colorFor(d.Class)))

		label.Dot = fixed.P(round(box.X1), round(box.Y2)+a.style.LabelOffset)
		label.DrawString(d.Class.DisplayName())
	}

	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, src, bounds.Min, draw.Src)
	draw.Draw(dst, bounds, overlay, bounds.Min, draw.Over)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, dst, imaging.JPEG, imaging.JPEGQuality(a.style.JPEGQuality)); err != nil {
		return nil, errors.Wrap(ErrEncode, err.Error())
	}
	return buf.Bytes(), nil
}

// strokeRect paints an unfilled rectangle whose outline of the given width is centered on
// the box edge. Boxes thinner than the stroke are painted solid.
func strokeRect(dst draw.Image, x1, y1, x2, y2, width float32, c image.Image) {
	half := width / 2
	outer := image.Rectangle{
		Min: image.Pt(round(math32.Min(x1, x2)-half), round(math32.Min(y1, y2)-half)),
		Max: image.Pt(round(math32.Max(x1, x2)+half), round(math32.Max(y1, y2)+half)),
	}
	inner := image.Rectangle{
		Min: image.Pt(outer.Min.X+int(width), outer.Min.Y+int(width)),
		Max: image.Pt(outer.Max.X-int(width), outer.Max.Y-int(width)),
	}

	if inner.Empty() {
		draw.Draw(dst, outer, c, image.Point{}, draw.Over)
		return
	}

	bands := []image.Rectangle{
		{Min: outer.Min, Max: image.Pt(outer.Max.X, inner.Min.Y)},                          // top
		{Min: image.Pt(outer.Min.X, inner.Max.Y), Max: outer.Max},                          // bottom
		{Min: image.Pt(outer.Min.X, inner.Min.Y), Max: image.Pt(inner.Min.X, inner.Max.Y)}, // left
		{Min: image.Pt(inner.Max.X, inner.Min.Y), Max: image.Pt(outer.Max.X, inner.Max.Y)}, // right
	}
	for _, b := range bands {
		draw.Draw(dst, b, c, image.Point{}, draw.Over)
	}
}

// round rounds half up to the nearest pixel.
func round(v float32) int {
	return int(math32.Floor(v + 0.5))
}
