// Package annotate draws kept detections onto an image and encodes the result as JPEG.
//
// Every box outline and label of an image is drawn onto a single transparent overlay,
// which is then composited onto a copy of the source in one pass. The source image is
// never modified.
//
// Boxes come out of the decoder in the model's 640x640 processing frame. Frame selects
// where they are drawn:
//
//   - FrameModel draws them unchanged on the stretched 640x640 copy the model saw.
//   - FrameOriginal scales them by originalWidth/640 and originalHeight/640 and draws them
//     on the full-resolution source.
package annotate
