package annotate

import (
	"image"

	"github.com/nvr-ai/parking-occupancy/models/postprocess"
	"github.com/nvr-ai/parking-occupancy/preprocess"
)

// Project returns the image to draw on and the detections expressed in that image's
// coordinates, according to frame.
//
// Arguments:
//   - pre: The preprocessing result for the image.
//   - dets: Detections in the model's processing frame.
//   - frame: The target frame.
//
// Returns:
//   - image.Image: pre.Resized for FrameModel, pre.Original for FrameOriginal.
//   - []postprocess.Detection: The detections, rescaled for FrameOriginal. The input slice is not modified.
func Project(pre *preprocess.Result, dets []postprocess.Detection, frame Frame) (image.Image, []postprocess.Detection) {
	if frame != FrameOriginal || pre.Original == nil {
		return pre.Resized, dets
	}

	in := pre.Resized.Bounds()
	sx := float32(pre.OriginalWidth) / float32(in.Dx())
	sy := float32(pre.OriginalHeight) / float32(in.Dy())

	scaled := make([]postprocess.Detection, len(dets))
	for i, d := range dets {
		d.Box = d.Box.Scale(sx, sy)
		scaled[i] = d
	}
	return pre.Original, scaled
}
