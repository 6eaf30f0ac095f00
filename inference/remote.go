package inference

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"gorgonia.org/tensor"
)

// DefaultRemoteTimeout bounds a single remote inference request.
const DefaultRemoteTimeout = 30 * time.Second

// RemoteConfig configures a RemoteInvoker.
type RemoteConfig struct {
	// URL is the base URL of the inference server, e.g. http://triton:8000.
	URL string
	// ModelName is the model name registered on the server.
	ModelName string
	// InputName is the model's input tensor name.
	InputName string
	// OutputName is the model's output tensor name.
	OutputName string
	// Timeout bounds each request.
	Timeout time.Duration
}

// inferTensor is a tensor in the KServe v2 (Open Inference Protocol) JSON encoding.
type inferTensor struct {
	Name     string    `json:"name"`
	Shape    []int     `json:"shape,omitempty"`
	Datatype string    `json:"datatype,omitempty"`
	Data     []float32 `json:"data,omitempty"`
}

type inferRequest struct {
	Inputs  []inferTensor `json:"inputs"`
	Outputs []inferTensor `json:"outputs,omitempty"`
}

type inferResponse struct {
	ModelName string        `json:"model_name"`
	Outputs   []inferTensor `json:"outputs"`
}

type inferError struct {
	Error string `json:"error"`
}

// RemoteInvoker runs the model on a KServe v2 compatible server (Triton, OpenVINO Model
// Server, MLServer) over HTTP/JSON. The underlying resty client is safe for concurrent use.
type RemoteInvoker struct {
	client *resty.Client
	config RemoteConfig
}

// NewRemoteInvoker creates a remote invoker.
func NewRemoteInvoker(cfg RemoteConfig) (*RemoteInvoker, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("remote inference URL is required")
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("remote inference model name is required")
	}
	d := DefaultConfig()
	if cfg.InputName == "" {
		cfg.InputName = d.InputName
	}
	if cfg.OutputName == "" {
		cfg.OutputName = d.OutputName
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRemoteTimeout
	}

	client := resty.New().
		SetBaseURL(cfg.URL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")

	return &RemoteInvoker{client: client, config: cfg}, nil
}

// Run posts the input tensor to /v2/models/{model}/infer and returns the named output.
func (r *RemoteInvoker) Run(ctx context.Context, input *tensor.Dense) ([]float32, error) {
	data, err := float32Data(input)
	if err != nil {
		return nil, err
	}

	req := inferRequest{
		Inputs: []inferTensor{{
			Name:     r.config.InputName,
			Shape:    []int(input.Shape()),
			Datatype: "FP32",
			Data:     data,
		}},
		Outputs: []inferTensor{{Name: r.config.OutputName}},
	}

	var (
		res     inferResponse
		errBody inferError
	)
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&res).
		SetError(&errBody).
		SetPathParam("model", r.config.ModelName).
		Post("/v2/models/{model}/infer")
	if err != nil {
		return nil, fmt.Errorf("remote inference request failed: %w", err)
	}
	if resp.IsError() {
		if errBody.Error != "" {
			return nil, fmt.Errorf("remote inference returned %s: %s", resp.Status(), errBody.Error)
		}
		return nil, fmt.Errorf("remote inference returned %s", resp.Status())
	}

	for _, out := range res.Outputs {
		if out.Name == r.config.OutputName {
			return out.Data, nil
		}
	}
	return nil, fmt.Errorf("remote inference response has no output %q", r.config.OutputName)
}
