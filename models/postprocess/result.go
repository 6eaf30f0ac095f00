// Package postprocess - Decoding and suppression of raw detector output.
package postprocess

import (
	"github.com/nvr-ai/parking-occupancy/images"
	"github.com/nvr-ai/parking-occupancy/models"
)

// Detection represents a single detection in the 640x640 processing frame.
type Detection struct {
	// The bounding box of the detection.
	Box images.Rect `json:"box"`
	// The confidence score of the detection, in [0, 1].
	Confidence float32 `json:"confidence"`
	// The parking-space state predicted for the box.
	Class models.ClassLabel `json:"class"`
	// Slot is the index of the output row the detection was read from.
	Slot int `json:"slot"`
}
