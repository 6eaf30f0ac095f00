package images

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestIoU_Correctness validates the IoU implementation against known test cases
func TestIoU_Correctness(t *testing.T) {
	tests := []struct {
		name     string
		r1       Rect
		r2       Rect
		expected float32
	}{
		{
			name:     "Identical rectangles",
			r1:       Rect{0, 0, 100, 100},
			r2:       Rect{0, 0, 100, 100},
			expected: 1.0,
		},
		{
			name:     "No overlap",
			r1:       Rect{0, 0, 100, 100},
			r2:       Rect{200, 200, 300, 300},
			expected: 0.0,
		},
		{
			name:     "Touching edges",
			r1:       Rect{0, 0, 100, 100},
			r2:       Rect{100, 0, 200, 100},
			expected: 0.0,
		},
		{
			name:     "Quarter overlap",
			r1:       Rect{0, 0, 100, 100},
			r2:       Rect{50, 50, 150, 150},
			expected: 0.142857, // 2500 / (10000 + 10000 - 2500)
		},
		{
			name:     "One inside other",
			r1:       Rect{0, 0, 100, 100},
			r2:       Rect{25, 25, 75, 75},
			expected: 0.25,
		},
		{
			name:     "Fractional parking stall boxes",
			r1:       Rect{10, 10, 50, 50},
			r2:       Rect{12, 12, 48, 48},
			expected: 0.81, // 1296 / 1600
		},
		{
			name:     "Disjoint on one axis only",
			r1:       Rect{0, 0, 10, 10},
			r2:       Rect{20, 0, 30, 10},
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CalculateIoU(tt.r1, tt.r2)
			assert.InDelta(t, tt.expected, result, 0.001, "IoU should match the expected value")

			reverse := CalculateIoU(tt.r2, tt.r1)
			assert.InDelta(t, result, reverse, 1e-6, "IoU should be symmetric")
		})
	}
}

// TestIoU_vs_ImageRectangle compares the float implementation against image.Rectangle on integer boxes.
func TestIoU_vs_ImageRectangle(t *testing.T) {
	testCases := []struct {
		name string
		r1   image.Rectangle
		r2   image.Rectangle
	}{
		{"No overlap", image.Rect(0, 0, 100, 100), image.Rect(200, 200, 300, 300)},
		{"Partial overlap", image.Rect(0, 0, 100, 100), image.Rect(50, 50, 150, 150)},
		{"Full overlap", image.Rect(50, 50, 150, 150), image.Rect(50, 50, 150, 150)},
		{"One inside other", image.Rect(0, 0, 100, 100), image.Rect(25, 25, 75, 75)},
		{"Large boxes", image.Rect(0, 0, 1920, 1080), image.Rect(960, 540, 1920, 1080)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			custom := CalculateIoU(rectFrom(tc.r1), rectFrom(tc.r2))
			reference := imageRectangleIoU(tc.r1, tc.r2)
			assert.InDelta(t, reference, custom, 0.0001, "float IoU should agree with image.Rectangle IoU")
		})
	}
}

// TestIoU_EdgeCases checks that degenerate and inverted boxes stay within [0, 1].
func TestIoU_EdgeCases(t *testing.T) {
	tests := []struct {
		name string
		r1   Rect
		r2   Rect
	}{
		{"Zero area rectangle 1", Rect{0, 0, 0, 0}, Rect{0, 0, 100, 100}},
		{"Zero area rectangle 2", Rect{0, 0, 100, 100}, Rect{50, 50, 50, 50}},
		{"Both zero area", Rect{0, 0, 0, 0}, Rect{10, 10, 10, 10}},
		{"Negative coordinates", Rect{-100, -100, 0, 0}, Rect{-50, -50, 50, 50}},
		{"Inverted box", Rect{100, 100, 0, 0}, Rect{0, 0, 100, 100}},
		{"Very large coordinates", Rect{0, 0, 999999, 999999}, Rect{500000, 500000, 999999, 999999}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CalculateIoU(tt.r1, tt.r2)
			assert.GreaterOrEqual(t, result, float32(0), "IoU must not be negative")
			assert.LessOrEqual(t, result, float32(1), "IoU must not exceed 1")

			reverse := CalculateIoU(tt.r2, tt.r1)
			assert.GreaterOrEqual(t, reverse, float32(0), "reverse IoU must not be negative")
			assert.LessOrEqual(t, reverse, float32(1), "reverse IoU must not exceed 1")
		})
	}
}

func TestRect_Intersection(t *testing.T) {
	a := Rect{0, 0, 10, 10}

	assert.Equal(t, float32(25), a.Intersection(Rect{5, 5, 15, 15}))
	assert.Equal(t, float32(0), a.Intersection(Rect{20, 20, 30, 30}), "disjoint boxes clamp to zero")
	assert.Equal(t, float32(0), a.Intersection(Rect{-30, 2, -20, 8}), "negative spans clamp to zero")
}

func TestRect_Scale(t *testing.T) {
	r := Rect{64, 32, 320, 640}.Scale(2, 0.5)
	assert.Equal(t, Rect{128, 16, 640, 320}, r)
	assert.Equal(t, float32(512), r.Width())
	assert.Equal(t, float32(304), r.Height())
}

func rectFrom(r image.Rectangle) Rect {
	return Rect{float32(r.Min.X), float32(r.Min.Y), float32(r.Max.X), float32(r.Max.Y)}
}

func imageRectangleIoU(r1, r2 image.Rectangle) float32 {
	intersect := r1.Intersect(r2)
	if intersect.Empty() {
		return 0.0
	}

	intersectArea := intersect.Dx() * intersect.Dy()
	union := r1.Dx()*r1.Dy() + r2.Dx()*r2.Dy() - intersectArea

	return float32(intersectArea) / float32(union)
}
