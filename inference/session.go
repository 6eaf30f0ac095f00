package inference

import (
	"context"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"gorgonia.org/tensor"
)

// Config describes how the ONNX model is loaded.
type Config struct {
	// ModelPath is the path to the .onnx file.
	ModelPath string
	// SharedLibraryPath overrides the onnxruntime library location (see GetSharedLibPath).
	SharedLibraryPath string
	// Provider selects the execution provider.
	Provider Provider
	// DeviceID selects the GPU for the CUDA provider.
	DeviceID int
	// IntraOpThreads parallelizes execution within graph nodes; 0 uses the onnxruntime default.
	IntraOpThreads int
	// InterOpThreads parallelizes execution across graph nodes; 0 uses the onnxruntime default.
	InterOpThreads int
	// InputName is the model's input tensor name.
	InputName string
	// OutputName is the model's output tensor name.
	OutputName string
	// InputSize is the square input resolution.
	InputSize int
	// Slots is the number of detection rows in the output tensor.
	Slots int
}

// DefaultConfig returns the configuration of the parking-space YOLO export.
func DefaultConfig() Config {
	return Config{
		Provider:   CPUExecutionProvider,
		InputName:  "images",
		OutputName: "output0",
		InputSize:  640,
		Slots:      300,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Provider == "" {
		c.Provider = d.Provider
	}
	if c.InputName == "" {
		c.InputName = d.InputName
	}
	if c.OutputName == "" {
		c.OutputName = d.OutputName
	}
	if c.InputSize <= 0 {
		c.InputSize = d.InputSize
	}
	if c.Slots <= 0 {
		c.Slots = d.Slots
	}
	return c
}

var (
	runtimeOnce sync.Once
	runtimeErr  error
)

// InitializeRuntime loads the onnxruntime shared library and initializes the environment.
// Only the first call has an effect; later calls return the first call's result.
//
// Arguments:
//   - libPath: Location of the shared library. Empty selects GetSharedLibPath().
//
// Returns:
//   - error: An error if the library is missing or the environment fails to initialize.
func InitializeRuntime(libPath string) error {
	runtimeOnce.Do(func() {
		if libPath == "" {
			libPath, runtimeErr = GetSharedLibPath()
			if runtimeErr != nil {
				return
			}
		}
		if _, err := os.Stat(libPath); err != nil {
			runtimeErr = fmt.Errorf("ONNX Runtime library not found at %s: %w", libPath, err)
			return
		}

		ort.SetSharedLibraryPath(libPath)
		if err := ort.InitializeEnvironment(); err != nil {
			runtimeErr = fmt.Errorf("error initializing ORT environment: %w", err)
		}
	})
	return runtimeErr
}

// DestroyRuntime tears down the onnxruntime environment.
func DestroyRuntime() error {
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// Session represents a model session from the onnxruntime with its bound tensors.
//
// The input and output tensors are bound to the session, so Run serializes callers.
// Use a SessionPool to serve concurrent requests.
type Session struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// NewSession creates an ONNX session for the occupancy model.
//
// Arguments:
//   - cfg: The model configuration. InitializeRuntime must have succeeded.
//
// Returns:
//   - *Session: The session with preallocated [1,3,S,S] input and [1,slots,6] output tensors.
//   - error: An error if the session creation fails.
func NewSession(cfg Config) (*Session, error) {
	cfg = cfg.withDefaults()
	if err := InitializeRuntime(cfg.SharedLibraryPath); err != nil {
		return nil, err
	}

	size := int64(cfg.InputSize)
	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(cfg.Slots), 6))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	options, err := sessionOptions(cfg)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("error creating ORT session: %w", err)
	}

	return &Session{
		session: session,
		input:   inputTensor,
		output:  outputTensor,
	}, nil
}

// Run copies input into the bound input tensor, executes the model, and returns a copy of
// the output tensor.
func (s *Session) Run(ctx context.Context, input *tensor.Dense) ([]float32, error) {
	data, err := float32Data(input)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, fmt.Errorf("session is closed")
	}

	dst := s.input.GetData()
	if len(dst) != len(data) {
		return nil, fmt.Errorf("%w: got %d values, want %d", ErrInputShape, len(data), len(dst))
	}
	copy(dst, data)

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("error running ORT session: %w", err)
	}

	out := s.output.GetData()
	result := make([]float32, len(out))
	copy(result, out)
	return result, nil
}

// Close releases the resources associated with the Session.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.input != nil {
		s.input.Destroy()
		s.input = nil
	}
	if s.output != nil {
		s.output.Destroy()
		s.output = nil
	}
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
}
