package inference

import "errors"

var (
	// ErrNilInput is returned when Run is called without a tensor.
	ErrNilInput = errors.New("input tensor is nil")
	// ErrInputType is returned when the input tensor is not backed by float32 values.
	ErrInputType = errors.New("input tensor must hold float32 values")
	// ErrInputShape is returned when the input tensor size does not match the session.
	ErrInputShape = errors.New("input tensor size does not match the model input")
	// ErrPoolClosed is returned by Acquire after Close.
	ErrPoolClosed = errors.New("session pool is closed")
	// ErrAcquireTimeout is returned when no session frees up within the acquire timeout.
	ErrAcquireTimeout = errors.New("timeout waiting for an available session")
)
