package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/parking-occupancy/annotate"
	"github.com/nvr-ai/parking-occupancy/inference"
	"github.com/nvr-ai/parking-occupancy/metrics"
	"github.com/nvr-ai/parking-occupancy/models"
	"github.com/nvr-ai/parking-occupancy/models/postprocess"
	"github.com/nvr-ai/parking-occupancy/preprocess"
)

var errBackend = errors.New("backend unavailable")

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// modelOutput returns a 300-slot output with one overlapping pair and one low-confidence slot.
func modelOutput() []float32 {
	out := make([]float32, postprocess.DefaultSlots*postprocess.RowSize)
	rows := [][postprocess.RowSize]float32{
		{10, 10, 50, 50, 0.95, 1},
		{10, 10, 50, 49, 0.80, 1},
		{100, 100, 150, 150, 0.5, 0},
		{200, 200, 260, 240, 0.75, 0},
	}
	for i, row := range rows {
		copy(out[i*postprocess.RowSize:], row[:])
	}
	return out
}

// scriptedInvoker returns one scripted response per call, in order.
type scriptedInvoker struct {
	responses []func() ([]float32, error)
	calls     int
}

func (s *scriptedInvoker) Run(_ context.Context, input *tensor.Dense) ([]float32, error) {
	if input == nil {
		return nil, errors.New("nil input")
	}
	resp := s.responses[s.calls]
	s.calls++
	return resp()
}

func ok() ([]float32, error)   { return modelOutput(), nil }
func fail() ([]float32, error) { return nil, errBackend }

type stubRenderer struct {
	err   error
	calls int
}

func (s *stubRenderer) Render(pre *preprocess.Result, dets []postprocess.Detection) ([]byte, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []byte{byte(len(dets))}, nil
}

func newRunner(t *testing.T, invoker inference.Invoker, renderer Renderer, m *metrics.Collector) *Runner {
	t.Helper()
	r, err := New(Options{
		Preprocessor: preprocess.NewPreprocessor(preprocess.ModelConfig{InputWidth: 64, InputHeight: 64}),
		Invoker:      invoker,
		Renderer:     renderer,
		Logger:       zap.NewNop(),
		Metrics:      m,
	})
	require.NoError(t, err)
	return r
}

func TestRunBatch_AllSucceed(t *testing.T) {
	invoker := &scriptedInvoker{responses: []func() ([]float32, error){ok, ok}}
	r := newRunner(t, invoker, &stubRenderer{}, nil)

	batch, err := r.RunBatch(context.Background(), [][]byte{encodePNG(t, 80, 40), encodePNG(t, 40, 80)})
	require.NoError(t, err)

	assert.NotEmpty(t, batch.ID)
	assert.False(t, batch.CreatedAt.IsZero())
	assert.Equal(t, 2, batch.Succeeded)
	assert.Equal(t, 0, batch.Failed)
	require.Len(t, batch.Items, 2)

	for i, item := range batch.Items {
		assert.Equal(t, i, item.Index, "items should keep input order")
		assert.Equal(t, StateDone, item.State)
		require.True(t, item.OK())

		res := item.Result
		require.Len(t, res.Detections, 2, "the near-duplicate and the 0.5 slot should be dropped")
		assert.InDelta(t, 0.95, res.Detections[0].Confidence, 1e-6)
		assert.Equal(t, []string{"Space Occupied", "Space Empty"}, res.Classes)
		assert.Equal(t, models.ClassCounts{models.ClassSpaceOccupied: 1, models.ClassSpaceEmpty: 1}, res.Counts)
		assert.Equal(t, []byte{2}, res.Image)
	}

	assert.Equal(t, models.ClassCounts{models.ClassSpaceOccupied: 2, models.ClassSpaceEmpty: 2}, batch.Counts)
	assert.Len(t, batch.Results(), 2)
	assert.Empty(t, batch.Errors())
}

func TestRunBatch_SecondImageInferenceFails(t *testing.T) {
	m := metrics.New()
	invoker := &scriptedInvoker{responses: []func() ([]float32, error){ok, fail}}
	r := newRunner(t, invoker, &stubRenderer{}, m)

	batch, err := r.RunBatch(context.Background(), [][]byte{encodePNG(t, 32, 32), encodePNG(t, 32, 32)})
	require.NoError(t, err, "a per-image failure should not fail the batch")

	assert.Equal(t, 1, batch.Succeeded)
	assert.Equal(t, 1, batch.Failed)
	require.Len(t, batch.Items, 2)
	assert.True(t, batch.Items[0].OK())

	failed := batch.Items[1]
	assert.Equal(t, StateFailed, failed.State)
	assert.Nil(t, failed.Result, "a failed image should not carry a partial result")
	require.NotNil(t, failed.Err)
	assert.Equal(t, 1, failed.Err.Index)
	assert.Equal(t, InferenceError, failed.Err.Kind)
	assert.Equal(t, StatePreprocessed, failed.Err.Stage)
	assert.ErrorIs(t, failed.Err, errBackend)
	assert.Equal(t, errBackend, errors.Cause(failed.Err))

	assert.Equal(t, models.ClassCounts{models.ClassSpaceOccupied: 1, models.ClassSpaceEmpty: 1}, batch.Counts,
		"aggregate counts should only include successes")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StageFailures.WithLabelValues(string(InferenceError))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ImagesProcessed.WithLabelValues(metrics.OutcomeSuccess)))
}

func TestRunBatch_ErrorKinds(t *testing.T) {
	badClass := func() ([]float32, error) {
		out := modelOutput()
		out[5] = 7
		return out, nil
	}
	shortOutput := func() ([]float32, error) { return make([]float32, 10), nil }

	tests := []struct {
		name      string
		data      []byte
		response  func() ([]float32, error)
		renderErr error
		kind      Kind
		stage     State
		target    error
	}{
		{"undecodable bytes", []byte("not an image"), ok, nil, PreprocessError, StatePending, nil},
		{"empty buffer", []byte{}, ok, nil, PreprocessError, StatePending, nil},
		{"class out of range", nil, badClass, nil, DecodeError, StateInferred, models.ErrClassOutOfRange},
		{"wrong output length", nil, shortOutput, nil, DecodeError, StateInferred, postprocess.ErrOutputShape},
		{"render failure", nil, ok, annotate.ErrEncode, AnnotationError, StateSuppressed, annotate.ErrEncode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.data
			if data == nil {
				data = encodePNG(t, 16, 16)
			}
			invoker := &scriptedInvoker{responses: []func() ([]float32, error){tt.response}}
			r := newRunner(t, invoker, &stubRenderer{err: tt.renderErr}, nil)

			batch, err := r.RunBatch(context.Background(), [][]byte{data})
			require.NoError(t, err)
			require.Len(t, batch.Errors(), 1)

			serr := batch.Errors()[0]
			assert.Equal(t, tt.kind, serr.Kind)
			assert.Equal(t, tt.stage, serr.Stage)
			if tt.target != nil {
				assert.ErrorIs(t, serr, tt.target)
			}
			if tt.kind == PreprocessError {
				assert.Equal(t, 0, invoker.calls, "inference should not run after a preprocess failure")
			}
		})
	}
}

func TestRunBatch_Empty(t *testing.T) {
	r := newRunner(t, &scriptedInvoker{}, &stubRenderer{}, nil)

	_, err := r.RunBatch(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoImages)
}

func TestRunBatch_CancelledContext(t *testing.T) {
	invoker := &scriptedInvoker{responses: []func() ([]float32, error){ok}}
	r := newRunner(t, invoker, &stubRenderer{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.RunBatch(ctx, [][]byte{encodePNG(t, 8, 8)})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, invoker.calls)
}

func TestRunBatch_LogsFailures(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r, err := New(Options{
		Preprocessor: preprocess.NewPreprocessor(preprocess.ModelConfig{InputWidth: 32, InputHeight: 32}),
		Invoker:      &scriptedInvoker{responses: []func() ([]float32, error){fail}},
		Renderer:     &stubRenderer{},
		Logger:       zap.New(core),
	})
	require.NoError(t, err)

	_, err = r.RunBatch(context.Background(), [][]byte{encodePNG(t, 8, 8)})
	require.NoError(t, err)

	failures := logs.FilterMessage("image failed").All()
	require.Len(t, failures, 1)
	assert.Equal(t, string(InferenceError), failures[0].ContextMap()["kind"])
	assert.Equal(t, 1, logs.FilterMessage("batch finished").Len())
}

func TestRunBatch_WithAnnotator(t *testing.T) {
	annotator, err := annotate.New(annotate.DefaultStyle())
	require.NoError(t, err)

	r, err := New(Options{
		Invoker:  inference.InvokerFunc(func(context.Context, *tensor.Dense) ([]float32, error) { return modelOutput(), nil }),
		Renderer: annotator,
		Logger:   zap.NewNop(),
	})
	require.NoError(t, err)

	batch, err := r.RunBatch(context.Background(), [][]byte{encodePNG(t, 320, 180)})
	require.NoError(t, err)
	require.Len(t, batch.Results(), 1)

	img, err := jpeg.Decode(bytes.NewReader(batch.Results()[0].Image))
	require.NoError(t, err, "the annotated image should be a JPEG")
	assert.Equal(t, image.Rect(0, 0, 640, 640), img.Bounds(), "the model frame draws on the 640x640 copy")
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{Renderer: &stubRenderer{}})
	assert.ErrorIs(t, err, ErrNilInvoker)

	_, err = New(Options{Invoker: &scriptedInvoker{}})
	assert.ErrorIs(t, err, ErrNilRenderer)
}

func TestStageError_JSON(t *testing.T) {
	serr := &StageError{Index: 3, Kind: DecodeError, Stage: StateInferred, Err: postprocess.ErrOutputShape}
	data, err := serr.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"index":3,"kind":"DecodeError","stage":"inferred","message":"`+postprocess.ErrOutputShape.Error()+`"}`, string(data))
	assert.Contains(t, serr.Error(), "image 3")
}
