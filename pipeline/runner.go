// Package pipeline runs batches of images through preprocessing, inference, decoding,
// suppression and annotation.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/parking-occupancy/inference"
	"github.com/nvr-ai/parking-occupancy/logger"
	"github.com/nvr-ai/parking-occupancy/metrics"
	"github.com/nvr-ai/parking-occupancy/models"
	"github.com/nvr-ai/parking-occupancy/models/postprocess"
	"github.com/nvr-ai/parking-occupancy/preprocess"
)

// Renderer draws kept detections onto a preprocessed image and encodes the result.
type Renderer interface {
	Render(pre *preprocess.Result, dets []postprocess.Detection) ([]byte, error)
}

// Options configures a Runner. Invoker and Renderer are required.
type Options struct {
	Preprocessor *preprocess.Preprocessor
	Invoker      inference.Invoker
	Renderer     Renderer
	Decode       postprocess.DecodeConfig
	NMS          postprocess.NMSConfig
	Logger       *zap.Logger
	Metrics      *metrics.Collector
}

// Runner processes batches. It is safe for concurrent use when its Invoker is.
type Runner struct {
	preprocessor *preprocess.Preprocessor
	invoker      inference.Invoker
	renderer     Renderer
	decode       postprocess.DecodeConfig
	nms          postprocess.NMSConfig
	log          *zap.Logger
	metrics      *metrics.Collector
}

// New creates a Runner.
//
// Arguments:
//   - opts: The stage implementations and thresholds. Zero thresholds select the defaults,
//     a nil Preprocessor uses the 640x640 model input, and a nil Logger uses logger.Log().
//
// Returns:
//   - *Runner: The runner.
//   - error: ErrNilInvoker or ErrNilRenderer.
func New(opts Options) (*Runner, error) {
	if opts.Invoker == nil {
		return nil, ErrNilInvoker
	}
	if opts.Renderer == nil {
		return nil, ErrNilRenderer
	}
	if opts.Preprocessor == nil {
		opts.Preprocessor = preprocess.NewPreprocessor(preprocess.DefaultModelConfig())
	}
	if opts.Decode.ConfidenceThreshold == 0 && opts.Decode.Slots == 0 {
		opts.Decode = postprocess.DefaultDecodeConfig()
	}
	if opts.NMS.IoUThreshold == 0 {
		opts.NMS.IoUThreshold = postprocess.DefaultIoUThreshold
	}
	if opts.Logger == nil {
		opts.Logger = logger.Log()
	}

	return &Runner{
		preprocessor: opts.Preprocessor,
		invoker:      opts.Invoker,
		renderer:     opts.Renderer,
		decode:       opts.Decode,
		nms:          opts.NMS,
		log:          opts.Logger,
		metrics:      opts.Metrics,
	}, nil
}

// RunBatch processes images sequentially in input order.
//
// A failing image is recorded as a StageError on its Item and the batch continues with the
// next image. The returned error is reserved for batch-level problems.
//
// Arguments:
//   - ctx: Checked before each image and passed to the invoker.
//   - images: Encoded image buffers. They are only read.
//
// Returns:
//   - *BatchResult: One Item per input image, in order, with aggregate counts.
//   - error: ErrNoImages, or the context error when ctx ends before an image starts.
func (r *Runner) RunBatch(ctx context.Context, images [][]byte) (*BatchResult, error) {
	if len(images) == 0 {
		return nil, ErrNoImages
	}

	batch := &BatchResult{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Items:     make([]Item, 0, len(images)),
		Counts:    models.ClassCounts{},
	}
	log := r.log.With(zap.String("batch", batch.ID), zap.Int("images", len(images)))
	log.Debug("batch started")

	for i, data := range images {
		if err := ctx.Err(); err != nil {
			log.Warn("batch cancelled", zap.Int("index", i), zap.Error(err))
			return nil, errors.Wrapf(err, "batch cancelled before image %d", i)
		}

		item := r.processImage(ctx, log.With(zap.Int("index", i)), i, data)
		batch.Items = append(batch.Items, item)

		if item.OK() {
			batch.Succeeded++
			batch.Counts.Add(item.Result.Counts)
			r.metrics.RecordSuccess(item.Result.Counts)
		} else {
			batch.Failed++
			r.metrics.RecordFailure(string(item.Err.Kind))
		}
	}

	log.Info("batch finished",
		zap.Int("succeeded", batch.Succeeded),
		zap.Int("failed", batch.Failed),
		zap.Int("detections", batch.Counts.Total()),
	)
	return batch, nil
}

// processImage runs one image through every stage and never returns a partial result.
func (r *Runner) processImage(ctx context.Context, log *zap.Logger, index int, data []byte) Item {
	state := StatePending
	fail := func(kind Kind, err error) Item {
		serr := &StageError{Index: index, Kind: kind, Stage: state, Err: err}
		log.Warn("image failed", zap.String("kind", string(kind)), zap.Stringer("stage", state), zap.Error(err))
		return Item{Index: index, State: StateFailed, Err: serr}
	}

	start := time.Now()
	pre, err := r.preprocessor.Preprocess(data)
	r.metrics.ObserveStage("preprocess", start)
	if err != nil {
		return fail(PreprocessError, err)
	}
	state = StatePreprocessed

	start = time.Now()
	output, err := r.invoker.Run(ctx, pre.Tensor)
	r.metrics.ObserveStage("inference", start)
	if err != nil {
		return fail(InferenceError, err)
	}
	state = StateInferred

	start = time.Now()
	candidates, err := postprocess.Decode(output, r.decode)
	r.metrics.ObserveStage("decode", start)
	if err != nil {
		return fail(DecodeError, err)
	}
	state = StateDecoded

	start = time.Now()
	kept, counts := postprocess.Suppress(candidates, r.nms)
	r.metrics.ObserveStage("nms", start)
	state = StateSuppressed
	log.Debug("detections kept", zap.Int("candidates", len(candidates)), zap.Int("kept", len(kept)))

	start = time.Now()
	encoded, err := r.renderer.Render(pre, kept)
	r.metrics.ObserveStage("annotate", start)
	if err != nil {
		return fail(AnnotationError, err)
	}

	classes := make([]string, len(kept))
	for i, d := range kept {
		classes[i] = d.Class.DisplayName()
	}

	return Item{
		Index: index,
		State: StateDone,
		Result: &DetectionResult{
			Index:      index,
			Detections: kept,
			Classes:    classes,
			Counts:     counts,
			Image:      encoded,
		},
	}
}
