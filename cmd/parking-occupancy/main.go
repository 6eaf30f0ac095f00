// Command parking-occupancy detects empty and occupied parking spaces in still images.
//
// In serve mode it exposes POST /parking-lot over HTTP. In batch mode it annotates every
// image in a directory and writes the annotated JPEGs to an output directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/parking-occupancy/annotate"
	"github.com/nvr-ai/parking-occupancy/config"
	"github.com/nvr-ai/parking-occupancy/inference"
	"github.com/nvr-ai/parking-occupancy/logger"
	"github.com/nvr-ai/parking-occupancy/metrics"
	"github.com/nvr-ai/parking-occupancy/pipeline"
	"github.com/nvr-ai/parking-occupancy/preprocess"
	"github.com/nvr-ai/parking-occupancy/server"
	"github.com/nvr-ai/parking-occupancy/util"
)

const (
	modeServe = "serve"
	modeBatch = "batch"

	shutdownTimeout = 15 * time.Second
)

func main() {
	var (
		configFile = flag.String("config", "", "Path to the YAML configuration file")
		mode       = flag.String("mode", modeServe, "Run mode: serve or batch")
		inputDir   = flag.String("dir", "", "Directory of images to process in batch mode")
		outputDir  = flag.String("out", "./annotated", "Output directory for annotated images in batch mode")
	)
	flag.Parse()

	if err := run(*configFile, *mode, *inputDir, *outputDir); err != nil {
		fmt.Fprintf(os.Stderr, "parking-occupancy: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile, mode, inputDir, outputDir string) error {
	cfg := config.Default()
	if configFile != "" {
		var err error
		if cfg, err = config.Load(configFile); err != nil {
			return err
		}
	} else if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logger.Init(cfg.LoggerOptions()); err != nil {
		return errors.Wrap(err, "init logger")
	}
	defer logger.Sync()
	log := logger.Log()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	invoker, closeInvoker, err := newInvoker(cfg, log)
	if err != nil {
		return err
	}
	defer closeInvoker()

	style, err := cfg.AnnotationStyle()
	if err != nil {
		return err
	}
	annotator, err := annotate.New(style)
	if err != nil {
		return err
	}

	collector := metrics.New()
	runner, err := pipeline.New(pipeline.Options{
		Preprocessor: preprocess.NewPreprocessor(preprocess.ModelConfig{
			InputWidth:  cfg.Model.InputSize,
			InputHeight: cfg.Model.InputSize,
		}),
		Invoker:  invoker,
		Renderer: annotator,
		Decode:   cfg.DecodeConfig(),
		NMS:      cfg.NMSConfig(),
		Logger:   log,
		Metrics:  collector,
	})
	if err != nil {
		return err
	}

	switch mode {
	case modeServe:
		return serve(ctx, cfg, runner, collector, log)
	case modeBatch:
		return batch(ctx, runner, inputDir, outputDir, log)
	default:
		return errors.Errorf("unknown mode %q, want %q or %q", mode, modeServe, modeBatch)
	}
}

// newInvoker builds the configured inference backend and a function that releases it.
func newInvoker(cfg config.Config, log *zap.Logger) (inference.Invoker, func(), error) {
	switch cfg.Inference.Backend {
	case config.BackendRemote:
		remote, err := inference.NewRemoteInvoker(cfg.RemoteInvokerConfig())
		if err != nil {
			return nil, nil, err
		}
		log.Info("using remote inference", zap.String("url", cfg.Remote.URL), zap.String("model", cfg.Remote.ModelName))
		return remote, func() {}, nil

	default:
		if err := inference.InitializeRuntime(cfg.Model.SharedLibrary); err != nil {
			return nil, nil, err
		}
		pool, err := inference.NewSessionPool(cfg.InferenceConfig(), cfg.Model.PoolSize)
		if err != nil {
			_ = inference.DestroyRuntime()
			return nil, nil, err
		}
		log.Info("using onnxruntime",
			zap.String("model", cfg.Model.Path),
			zap.String("provider", cfg.Model.Provider),
			zap.Int("sessions", cfg.Model.PoolSize),
		)
		return pool, func() {
			pool.Close()
			if err := inference.DestroyRuntime(); err != nil {
				log.Warn("destroy onnxruntime", zap.Error(err))
			}
		}, nil
	}
}

func serve(ctx context.Context, cfg config.Config, runner *pipeline.Runner, collector *metrics.Collector, log *zap.Logger) error {
	srv := server.New(server.Config{
		Addr:        cfg.Server.Addr,
		MaxUploadMB: cfg.Server.MaxUploadMB,
		ReadTimeout: cfg.Server.ReadTimeout,
	}, runner, collector, log)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return <-errCh
}

func batch(ctx context.Context, runner *pipeline.Runner, inputDir, outputDir string, log *zap.Logger) error {
	if inputDir == "" {
		return errors.New("batch mode requires -dir")
	}

	files, err := util.LoadDirectoryImageFiles(inputDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.Errorf("no images found in %s", inputDir)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return errors.Wrap(err, "create output directory")
	}

	data := make([][]byte, len(files))
	for i, f := range files {
		data[i] = f.Data
	}

	result, err := runner.RunBatch(ctx, data)
	if err != nil {
		return err
	}

	for _, item := range result.Items {
		file := files[item.Index]
		if !item.OK() {
			log.Warn("image skipped", zap.String("path", file.Path), zap.Error(item.Err))
			continue
		}
		out := filepath.Join(outputDir, file.Name()+".annotated.jpg")
		if err := os.WriteFile(out, item.Result.Image, 0o644); err != nil {
			return errors.Wrapf(err, "write %s", out)
		}
		log.Info("image annotated",
			zap.String("path", file.Path),
			zap.String("output", out),
			zap.Any("counts", item.Result.Counts),
		)
	}

	log.Info("batch complete",
		zap.String("id", result.ID),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Any("counts", result.Counts),
	)
	if result.Succeeded == 0 {
		return errors.New("every image failed")
	}
	return nil
}
