package pipeline

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies the stage an image failed in.
type Kind string

// Error kinds.
const (
	PreprocessError Kind = "PreprocessError"
	InferenceError  Kind = "InferenceError"
	DecodeError     Kind = "DecodeError"
	AnnotationError Kind = "AnnotationError"
)

var (
	// ErrNoImages is returned when RunBatch is called with an empty batch.
	ErrNoImages = errors.New("no images to process")
	// ErrNilInvoker is returned by New when no invoker is configured.
	ErrNilInvoker = errors.New("pipeline requires an invoker")
	// ErrNilRenderer is returned by New when no renderer is configured.
	ErrNilRenderer = errors.New("pipeline requires a renderer")
)

// StageError records why a single image in a batch failed.
type StageError struct {
	// Index is the position of the image in the batch.
	Index int `json:"index"`
	// Kind is the error classification.
	Kind Kind `json:"kind"`
	// Stage is the last state the image reached before failing.
	Stage State `json:"stage"`
	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements error.
func (e *StageError) Error() string {
	return fmt.Sprintf("image %d: %s after %s: %v", e.Index, e.Kind, e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error { return e.Err }

// Cause returns the underlying error for github.com/pkg/errors.Cause.
func (e *StageError) Cause() error { return e.Err }

// MarshalJSON adds the error message to the encoded form.
func (e *StageError) MarshalJSON() ([]byte, error) {
	return marshalStageError(e)
}
