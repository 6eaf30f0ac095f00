package annotate

import (
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"

	"github.com/nvr-ai/parking-occupancy/models"
)

// Frame selects the coordinate frame annotations are drawn in.
type Frame string

const (
	// FrameModel draws on the 640x640 stretched input image.
	FrameModel Frame = "model"
	// FrameOriginal rescales boxes and draws on the original image.
	FrameOriginal Frame = "original"
)

// ParseFrame validates a frame name. An empty name selects FrameModel.
func ParseFrame(name string) (Frame, error) {
	switch Frame(name) {
	case "", FrameModel:
		return FrameModel, nil
	case FrameOriginal:
		return FrameOriginal, nil
	}
	return "", errors.Errorf("unknown annotation frame %q", name)
}

// Style controls how detections are rendered.
type Style struct {
	// Frame is the coordinate frame to draw in.
	Frame Frame
	// StrokeWidth is the outline width in pixels, centered on the box edge.
	StrokeWidth int
	// FontSize is the label size in pixels.
	FontSize float64
	// LabelOffset is the distance from the bottom edge of the box to the label baseline.
	LabelOffset int
	// JPEGQuality is the output quality, 1 to 100.
	JPEGQuality int
	// TextColor is the label color.
	TextColor color.Color
	// Colors maps each class to its outline color.
	Colors map[models.ClassLabel]color.Color
}

// DefaultStyle returns red outlines for empty spaces, blue for occupied ones, and
// white 20px bold labels.
func DefaultStyle() Style {
	return Style{
		Frame:       FrameModel,
		StrokeWidth: 4,
		FontSize:    20,
		LabelOffset: 20,
		JPEGQuality: 80,
		TextColor:   color.White,
		Colors: map[models.ClassLabel]color.Color{
			models.ClassSpaceEmpty:    color.RGBA{R: 0xff, A: 0xff},
			models.ClassSpaceOccupied: color.RGBA{B: 0xff, A: 0xff},
		},
	}
}

// ParseColor parses a "#rrggbb" hex color.
func ParseColor(hex string) (color.Color, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid color %q", hex)
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 0xff}, nil
}

func (s Style) colorFor(class models.ClassLabel) color.Color {
	if c, ok := s.Colors[class]; ok {
		return c
	}
	return DefaultStyle().Colors[models.ClassSpaceOccupied]
}

func (s Style) withDefaults() Style {
	d := DefaultStyle()
	if s.Frame == "" {
		s.Frame = d.Frame
	}
	if s.StrokeWidth <= 0 {
		s.StrokeWidth = d.StrokeWidth
	}
	if s.FontSize <= 0 {
		s.FontSize = d.FontSize
	}
	if s.LabelOffset == 0 {
		s.LabelOffset = d.LabelOffset
	}
	if s.JPEGQuality <= 0 || s.JPEGQuality > 100 {
		s.JPEGQuality = d.JPEGQuality
	}
	if s.TextColor == nil {
		s.TextColor = d.TextColor
	}
	if s.Colors == nil {
		s.Colors = d.Colors
	}
	return s
}
