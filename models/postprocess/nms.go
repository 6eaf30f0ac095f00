package postprocess

import (
	"sort"

	"github.com/nvr-ai/parking-occupancy/images"
	"github.com/nvr-ai/parking-occupancy/models"
)

// DefaultIoUThreshold merges only near-duplicate boxes. Adjacent parking spaces overlap
// slightly and must both survive.
const DefaultIoUThreshold = 0.9

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	IoUThreshold float32 `json:"iouThreshold" yaml:"iouThreshold"` // Candidates with IoU >= threshold are suppressed.
	ClassAware   bool    `json:"classAware"   yaml:"classAware"`   // If true, suppress only within the same class.
}

// DefaultNMSConfig returns the class-agnostic configuration with a 0.9 threshold.
func DefaultNMSConfig() NMSConfig {
	return NMSConfig{IoUThreshold: DefaultIoUThreshold}
}

// SortByConfidence returns a copy of detections ordered by descending confidence.
// The sort is stable, so equal confidences keep their slot order.
func SortByConfidence(detections []Detection) []Detection {
	sorted := make([]Detection, len(detections))
	copy(sorted, detections)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})
	return sorted
}

// Suppress performs greedy Non-Maximum Suppression.
//
// Candidates are visited highest confidence first. The head of the remaining candidates is
// kept and its class counted; every remaining candidate whose IoU with the head is at or
// above the threshold is discarded along with it. The loop repeats until no candidates remain.
//
// Arguments:
//   - detections: Decoded detections in any order. The slice is not modified.
//   - config: NMS configuration.
//
// Returns:
//   - []Detection: The kept detections, highest confidence first.
//   - models.ClassCounts: Number of kept detections per class.
func Suppress(detections []Detection, config NMSConfig) ([]Detection, models.ClassCounts) {
	counts := models.ClassCounts{}
	n := len(detections)
	if n == 0 {
		return []Detection{}, counts
	}

	candidates := SortByConfidence(detections)
	kept := make([]Detection, 0, n)
	used := make([]bool, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}

		anchor := candidates[i]
		kept = append(kept, anchor)
		counts[anchor.Class]++
		used[i] = true

		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}
			if config.ClassAware && candidates[j].Class != anchor.Class {
				continue
			}
			if images.CalculateIoU(anchor.Box, candidates[j].Box) >= config.IoUThreshold {
				used[j] = true
			}
		}
	}

	return kept, counts
}
