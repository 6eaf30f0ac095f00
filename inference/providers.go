package inference

import (
	"fmt"
	"runtime"
	"strconv"

	ort "github.com/yalue/onnxruntime_go"
)

// Provider represents an ONNX Runtime execution provider.
type Provider string

const (
	// CPUExecutionProvider uses the default CPU kernels.
	CPUExecutionProvider Provider = "cpu"
	// CUDAExecutionProvider uses NVIDIA CUDA for GPU acceleration.
	CUDAExecutionProvider Provider = "cuda"
	// CoreMLExecutionProvider uses Apple CoreML for macOS acceleration.
	CoreMLExecutionProvider Provider = "coreml"
	// OpenVINOExecutionProvider uses Intel OpenVINO.
	OpenVINOExecutionProvider Provider = "openvino"
)

// Providers lists every supported execution provider.
var Providers = []Provider{CPUExecutionProvider, CUDAExecutionProvider, CoreMLExecutionProvider, OpenVINOExecutionProvider}

// ParseProvider validates a provider name. An empty name selects the CPU provider.
func ParseProvider(name string) (Provider, error) {
	if name == "" {
		return CPUExecutionProvider, nil
	}
	for _, p := range Providers {
		if string(p) == name {
			return p, nil
		}
	}
	return "", fmt.Errorf("unsupported execution provider: %q", name)
}

// GetSharedLibPath returns the default location of the onnxruntime shared library for the
// current platform.
//
// Returns:
//   - string: A path relative to the working directory.
//   - error: An error if no library is known for this GOOS/GOARCH.
func GetSharedLibPath() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if runtime.GOARCH == "amd64" {
			return "./third_party/onnxruntime.dll", nil
		}
	case "darwin":
		return "./third_party/libonnxruntime.dylib", nil
	case "linux":
		if runtime.GOARCH == "arm64" {
			return "./third_party/onnxruntime_arm64.so", nil
		}
		return "./third_party/onnxruntime.so", nil
	}
	return "", fmt.Errorf("no onnxruntime library for %s/%s", runtime.GOOS, runtime.GOARCH)
}

// sessionOptions builds ORT session options for cfg. The caller owns the result.
func sessionOptions(cfg Config) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating ORT session options: %w", err)
	}

	// A value of 0 lets onnxruntime pick the thread count.
	if err := options.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
		options.Destroy()
		return nil, fmt.Errorf("error setting intra-op threads: %w", err)
	}
	if err := options.SetInterOpNumThreads(cfg.InterOpThreads); err != nil {
		options.Destroy()
		return nil, fmt.Errorf("error setting inter-op threads: %w", err)
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		options.Destroy()
		return nil, fmt.Errorf("error setting graph optimization level: %w", err)
	}

	if err := appendProvider(options, cfg); err != nil {
		options.Destroy()
		return nil, err
	}
	return options, nil
}

func appendProvider(options *ort.SessionOptions, cfg Config) error {
	switch cfg.Provider {
	case CPUExecutionProvider, "":
		return nil

	case CUDAExecutionProvider:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return fmt.Errorf("error creating CUDA provider options: %w", err)
		}
		defer cuda.Destroy()
		if err := cuda.Update(map[string]string{"device_id": strconv.Itoa(cfg.DeviceID)}); err != nil {
			return fmt.Errorf("error configuring CUDA: %w", err)
		}
		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			return fmt.Errorf("error enabling CUDA: %w", err)
		}

	case CoreMLExecutionProvider:
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			return fmt.Errorf("error enabling CoreML: %w", err)
		}

	case OpenVINOExecutionProvider:
		threads := cfg.IntraOpThreads
		if threads <= 0 {
			threads = runtime.NumCPU()
		}
		err := options.AppendExecutionProviderOpenVINO(map[string]string{
			"device_type":    "CPU",
			"precision":      "FP32",
			"num_of_threads": strconv.Itoa(threads),
		})
		if err != nil {
			return fmt.Errorf("error enabling OpenVINO: %w", err)
		}

	default:
		return fmt.Errorf("unsupported execution provider: %s", cfg.Provider)
	}
	return nil
}
