// Package server exposes the parking pipeline over HTTP.
package server

import (
	"context"
	"encoding/base64"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/parking-occupancy/metrics"
	"github.com/nvr-ai/parking-occupancy/models"
	"github.com/nvr-ai/parking-occupancy/pipeline"
)

const (
	// UploadField is the multipart field carrying the images.
	UploadField = "image"

	defaultMaxUploadMB = 32
)

// BatchRunner runs a batch of encoded images.
type BatchRunner interface {
	RunBatch(ctx context.Context, images [][]byte) (*pipeline.BatchResult, error)
}

// Config configures the HTTP server.
type Config struct {
	Addr        string
	MaxUploadMB int64
	ReadTimeout time.Duration
}

// Server is the HTTP front end of a BatchRunner.
type Server struct {
	config  Config
	runner  BatchRunner
	metrics *metrics.Collector
	log     *zap.Logger
	engine  *gin.Engine
	http    *http.Server
}

// New builds the gin engine and registers the routes.
//
// Arguments:
//   - config: Listen address and upload limits.
//   - runner: Processes uploaded batches.
//   - collector: Served on /metrics. May be nil.
//   - log: Request and error logger.
//
// Returns:
//   - *Server: The server, not yet listening.
func New(config Config, runner BatchRunner, collector *metrics.Collector, log *zap.Logger) *Server {
	if config.MaxUploadMB <= 0 {
		config.MaxUploadMB = defaultMaxUploadMB
	}
	if log == nil {
		log = zap.NewNop()
	}

	engine := gin.New()
	engine.MaxMultipartMemory = config.MaxUploadMB << 20
	engine.Use(gin.Recovery(), requestLogger(log))

	s := &Server{
		config:  config,
		runner:  runner,
		metrics: collector,
		log:     log,
		engine:  engine,
	}

	engine.GET("/healthz", s.health)
	engine.POST("/parking-lot", s.limitBody(), s.parkingLot)
	if collector != nil {
		engine.GET("/metrics", gin.WrapH(collector.Handler()))
	}

	s.http = &http.Server{
		Addr:              config.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       config.ReadTimeout,
	}
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe blocks until the server stops. It returns nil after Shutdown.
func (s *Server) ListenAndServe() error {
	s.log.Info("http server listening", zap.String("addr", s.config.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "listen")
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// limitBody caps the request body at MaxUploadMB.
func (s *Server) limitBody() gin.HandlerFunc {
	limit := s.config.MaxUploadMB << 20
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

func (s *Server) parkingLot(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, errorResponse("Upload too large"))
			return
		}
		if !errors.Is(err, http.ErrNotMultipart) && !errors.Is(err, http.ErrMissingBoundary) {
			s.log.Warn("parse multipart form", zap.Error(err))
		}
		c.JSON(http.StatusBadRequest, errorResponse("No files uploaded"))
		return
	}

	files := form.File[UploadField]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, errorResponse("No files uploaded"))
		return
	}

	images := make([][]byte, 0, len(files))
	for _, fh := range files {
		data, err := readUpload(fh)
		if err != nil {
			s.log.Error("read upload", zap.String("filename", fh.Filename), zap.Error(err))
			c.JSON(http.StatusInternalServerError, errorResponse("Failed to process images"))
			return
		}
		images = append(images, data)
	}

	batch, err := s.runner.RunBatch(c.Request.Context(), images)
	if err != nil {
		s.log.Error("run batch", zap.Int("images", len(images)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse("Failed to process images"))
		return
	}
	if batch.Succeeded == 0 {
		c.JSON(http.StatusInternalServerError, errorResponse("Failed to process images"))
		return
	}

	c.JSON(http.StatusCreated, newBatchResponse(batch))
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, errors.Wrap(err, "open upload")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrap(err, "read upload")
	}
	return data, nil
}

// Response is the JSON envelope of every /parking-lot reply.
type Response struct {
	Error   bool        `json:"error"`
	Message string      `json:"message"`
	Data    *BatchReply `json:"data,omitempty"`
}

// BatchReply is the data of a successful /parking-lot reply.
type BatchReply struct {
	ID        string             `json:"id"`
	Result    []ItemReply        `json:"result"`
	Counts    models.ClassCounts `json:"counts"`
	CreatedAt time.Time          `json:"createdAt"`
}

// ItemReply is one image of a batch. Failed images only set Error, Kind and Message.
type ItemReply struct {
	Index          int                `json:"index"`
	ObjectDetected []string           `json:"objectDetected,omitempty"`
	Counts         models.ClassCounts `json:"counts,omitempty"`
	Image          string             `json:"image,omitempty"`
	Error          bool               `json:"error,omitempty"`
	Kind           pipeline.Kind      `json:"kind,omitempty"`
	Message        string             `json:"message,omitempty"`
}

func errorResponse(message string) Response {
	return Response{Error: true, Message: message}
}

func newBatchResponse(batch *pipeline.BatchResult) Response {
	reply := &BatchReply{
		ID:        batch.ID,
		Result:    make([]ItemReply, 0, len(batch.Items)),
		Counts:    batch.Counts,
		CreatedAt: batch.CreatedAt,
	}

	for _, item := range batch.Items {
		if !item.OK() {
			reply.Result = append(reply.Result, ItemReply{
				Index:   item.Index,
				Error:   true,
				Kind:    item.Err.Kind,
				Message: item.Err.Error(),
			})
			continue
		}
		res := item.Result
		reply.Result = append(reply.Result, ItemReply{
			Index:          item.Index,
			ObjectDetected: res.Classes,
			Counts:         res.Counts,
			Image:          "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(res.Image),
		})
	}

	return Response{Message: "success", Data: reply}
}
