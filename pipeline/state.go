package pipeline

// State is the progress of one image through the pipeline.
type State int

const (
	// StatePending has not started.
	StatePending State = iota
	// StatePreprocessed has a model input tensor.
	StatePreprocessed
	// StateInferred has raw model output.
	StateInferred
	// StateDecoded has candidate detections.
	StateDecoded
	// StateSuppressed has the kept detections.
	StateSuppressed
	// StateAnnotated has an encoded annotated image.
	StateAnnotated
	// StateDone has a finished result.
	StateDone
	// StateFailed stopped with a StageError.
	StateFailed
)

var stateNames = [...]string{
	StatePending:      "pending",
	StatePreprocessed: "preprocessed",
	StateInferred:     "inferred",
	StateDecoded:      "decoded",
	StateSuppressed:   "suppressed",
	StateAnnotated:    "annotated",
	StateDone:         "done",
	StateFailed:       "failed",
}

// String returns the lower-case state name.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
