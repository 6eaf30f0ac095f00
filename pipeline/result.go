package pipeline

import (
	"encoding/json"
	"time"

	"github.com/nvr-ai/parking-occupancy/models"
	"github.com/nvr-ai/parking-occupancy/models/postprocess"
)

// DetectionResult is the output for one successfully processed image.
type DetectionResult struct {
	// Index is the position of the image in the batch.
	Index int `json:"index"`
	// Detections are the kept boxes in descending confidence order.
	Detections []postprocess.Detection `json:"detections"`
	// Classes holds the display label of each detection, aligned with Detections.
	Classes []string `json:"classes"`
	// Counts is the number of kept detections per class.
	Counts models.ClassCounts `json:"counts"`
	// Image is the annotated JPEG.
	Image []byte `json:"-"`
}

// Item is the outcome of one image. Exactly one of Result and Err is set.
type Item struct {
	Index  int              `json:"index"`
	State  State            `json:"state"`
	Result *DetectionResult `json:"result,omitempty"`
	Err    *StageError      `json:"error,omitempty"`
}

// OK reports whether the image was processed successfully.
func (i Item) OK() bool { return i.Err == nil && i.Result != nil }

// BatchResult is the outcome of one RunBatch call. Items are in input order.
type BatchResult struct {
	ID        string             `json:"id"`
	CreatedAt time.Time          `json:"createdAt"`
	Items     []Item             `json:"items"`
	Counts    models.ClassCounts `json:"counts"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
}

// Results returns the successful results in input order.
func (b *BatchResult) Results() []*DetectionResult {
	out := make([]*DetectionResult, 0, b.Succeeded)
	for _, item := range b.Items {
		if item.OK() {
			out = append(out, item.Result)
		}
	}
	return out
}

// Errors returns the failures in input order.
func (b *BatchResult) Errors() []*StageError {
	out := make([]*StageError, 0, b.Failed)
	for _, item := range b.Items {
		if item.Err != nil {
			out = append(out, item.Err)
		}
	}
	return out
}

func marshalStageError(e *StageError) ([]byte, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return json.Marshal(struct {
		Index   int    `json:"index"`
		Kind    Kind   `json:"kind"`
		Stage   State  `json:"stage"`
		Message string `json:"message"`
	}{e.Index, e.Kind, e.Stage, msg})
}
