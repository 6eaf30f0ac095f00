// Package images - Image geometry, decoding and resizing utilities.
package images

import (
	"github.com/chewxy/math32"
)

// Rect is an axis-aligned bounding box in pixel coordinates.
//
// Coordinates are float32 because model outputs are fractional pixel positions in
// the processing frame. X2,Y2 are the right and bottom edges.
type Rect struct {
	X1, Y1, X2, Y2 float32
}

// Width returns the horizontal extent of the box. Inverted boxes report a negative width.
func (r Rect) Width() float32 {
	return r.X2 - r.X1
}

// Height returns the vertical extent of the box. Inverted boxes report a negative height.
func (r Rect) Height() float32 {
	return r.Y2 - r.Y1
}

// Area returns Width * Height.
func (r Rect) Area() float32 {
	return r.Width() * r.Height()
}

// Scale multiplies the horizontal coordinates by sx and the vertical ones by sy.
//
// Arguments:
//   - sx: Horizontal factor, e.g. originalWidth / 640.
//   - sy: Vertical factor, e.g. originalHeight / 640.
//
// Returns:
//   - Rect: The scaled box.
func (r Rect) Scale(sx, sy float32) Rect {
	return Rect{
		X1: r.X1 * sx,
		Y1: r.Y1 * sy,
		X2: r.X2 * sx,
		Y2: r.Y2 * sy,
	}
}

// Intersection returns the area shared by r and o, clamped to zero.
//
// The overlap starts at the larger of the two left/top edges and ends at the smaller of
// the two right/bottom edges. Disjoint or touching boxes yield a zero or negative extent,
// which is clamped so the result is never negative.
func (r Rect) Intersection(o Rect) float32 {
	w := math32.Min(r.X2, o.X2) - math32.Max(r.X1, o.X1)
	h := math32.Min(r.Y2, o.Y2) - math32.Max(r.Y1, o.Y1)
	return math32.Max(w, 0) * math32.Max(h, 0)
}

// CalculateIoU returns the Intersection over Union of two boxes, a value in [0, 1].
//
// IoU answers "how much do these two boxes overlap?" and is the similarity measure used
// by non-maximum suppression to decide whether two detections describe the same object:
//
//	IoU = Area(A ∩ B) / Area(A ∪ B)
//
//	- 1.0 means the boxes are identical.
//	- 0.0 means the boxes share no area (including boxes that only touch along an edge).
//
// **Intersection**
//
//	The overlap rectangle runs from max(left edges) to min(right edges) horizontally and
//	from max(top edges) to min(bottom edges) vertically. When the boxes do not overlap,
//	one of those spans is zero or negative. Both spans are clamped to zero before being
//	multiplied, so a negative "area" can never leak into the union.
//
// **Union**
//
//	Adding both areas counts the shared region twice, so it is subtracted once
//	(inclusion-exclusion):
//
//	  Area(A ∪ B) = Area(A) + Area(B) - Area(A ∩ B)
//
//	A non-positive union only happens for degenerate boxes; the IoU is 0 in that case.
//
// Arguments:
//   - r: The first box.
//   - o: The box to compare against.
//
// Returns:
//   - float32: The IoU score. The function is symmetric in its arguments.
//
// Example Usage:
// ```go
//
//	a := Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}
//	b := Rect{X1: 5, Y1: 5, X2: 15, Y2: 15}
//	iou := CalculateIoU(a, b) // 25 / (100 + 100 - 25) = 0.142857
//
// ```
func CalculateIoU(r, o Rect) float32 {
	inter := r.Intersection(o)
	if inter <= 0 {
		return 0
	}

	union := r.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}

	return math32.Min(inter/union, 1)
}
