package postprocess

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"

	"github.com/nvr-ai/parking-occupancy/images"
	"github.com/nvr-ai/parking-occupancy/models"
)

// RowSize is the number of floats per output slot: x1, y1, x2, y2, confidence, class id.
const RowSize = 6

const (
	// DefaultSlots is the fixed number of detection slots emitted by the model.
	DefaultSlots = 300
	// DefaultConfidenceThreshold is the minimum confidence for a slot to be kept.
	DefaultConfidenceThreshold = 0.7
)

// ErrOutputShape is returned when the output tensor does not hold exactly Slots rows.
var ErrOutputShape = errors.New("unexpected output tensor length")

// DecodeConfig defines how the flat output tensor is read.
type DecodeConfig struct {
	// ConfidenceThreshold discards slots whose confidence is below it.
	ConfidenceThreshold float32 `json:"confidenceThreshold" yaml:"confidenceThreshold"`
	// Slots is the fixed capacity of the output tensor.
	Slots int `json:"slots" yaml:"slots"`
}

// DefaultDecodeConfig returns the 300-slot, 0.7-confidence configuration.
func DefaultDecodeConfig() DecodeConfig {
	return DecodeConfig{
		ConfidenceThreshold: DefaultConfidenceThreshold,
		Slots:               DefaultSlots,
	}
}

// Decode transforms the flat model output into detections by:
//   - Validating that the tensor holds exactly cfg.Slots rows of RowSize floats.
//   - Dropping every slot whose confidence is below cfg.ConfidenceThreshold (NaN included).
//   - Resolving the class id of every remaining slot against models.ParkingClasses.
//
// Coordinates are copied as-is; they stay in the model's 640x640 frame.
//
// Arguments:
//   - output: The flat output tensor, row-major [slots][6].
//   - cfg: The decode configuration.
//
// Returns:
//   - []Detection: Surviving detections in slot order.
//   - error: ErrOutputShape on a length mismatch, models.ErrClassOutOfRange for an invalid class id.
func Decode(output []float32, cfg DecodeConfig) ([]Detection, error) {
	if cfg.Slots <= 0 {
		cfg.Slots = DefaultSlots
	}
	if len(output) != cfg.Slots*RowSize {
		return nil, errors.Wrapf(ErrOutputShape, "got %d floats, want %d (%d slots x %d)",
			len(output), cfg.Slots*RowSize, cfg.Slots, RowSize)
	}

	detections := make([]Detection, 0, cfg.Slots)
	for i := 0; i < cfg.Slots; i++ {
		row := output[i*RowSize : (i+1)*RowSize]

		confidence := row[4]
		if !(confidence >= cfg.ConfidenceThreshold) {
			continue
		}

		rawClass := row[5]
		if math32.IsNaN(rawClass) || math32.IsInf(rawClass, 0) || rawClass != math32.Trunc(rawClass) {
			return nil, errors.Wrapf(models.ErrClassOutOfRange, "slot %d: class id %v is not an index", i, rawClass)
		}
		class, err := models.LookupClass(int(rawClass))
		if err != nil {
			return nil, errors.Wrapf(err, "slot %d", i)
		}

		detections = append(detections, Detection{
			Box: images.Rect{
				X1: row[0],
				Y1: row[1],
				X2: row[2],
				Y2: row[3],
			},
			Confidence: confidence,
			Class:      class,
			Slot:       i,
		})
	}

	return detections, nil
}
