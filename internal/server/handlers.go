package server

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"yashubustudio/reviewlens/sentiment"
)

// Multipart part names accepted by /evaluate, preferred name first.
var (
	predictionParts  = []string{"predictions_file", "pred_file", "predictions"}
	groundTruthParts = []string{"ground_truth_file", "gt_file", "ground_truth"}
)

const predictionsFilename = "predictions.csv"

// Handler serves the inference API on top of a sentiment.Service.
type Handler struct {
	svc       *sentiment.Service
	logger    *zap.Logger
	tempDir   string
	maxUpload int64
}

// NewHandler creates the API handler.
func NewHandler(svc *sentiment.Service, cfg sentiment.ServerConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	maxMB := cfg.MaxUploadMB
	if maxMB <= 0 {
		maxMB = 64
	}
	return &Handler{
		svc:       svc,
		logger:    logger,
		tempDir:   tempDir,
		maxUpload: int64(maxMB) << 20,
	}
}

// RegisterRoutes registers the inference routes.
func (h *Handler) RegisterRoutes(router gin.IRoutes) {
	router.GET("/health", h.Health)
	router.POST("/predict", h.limitBody, h.Predict)
	router.POST("/evaluate", h.limitBody, h.Evaluate)
}

func (h *Handler) limitBody(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	c.Next()
}

// Health reports liveness and the model lifecycle.
// GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Health())
}

// Predict labels every row of an uploaded CSV and returns it as an attachment.
// POST /predict
func (h *Handler) Predict(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		h.uploadError(c, err, "missing multipart field 'file'")
		return
	}
	if !sentiment.HasCSVExtension(fh.Filename) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only CSV files are supported"})
		return
	}

	table, err := readUpload(fh)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.svc.PredictTable(c.Request.Context(), table, nil); err != nil {
		h.respondError(c, err)
		return
	}

	tmp := filepath.Join(h.tempDir, "predictions-"+uuid.NewString()+".csv")
	if err := table.WriteFile(tmp); err != nil {
		h.respondError(c, fmt.Errorf("write predictions: %w", err))
		return
	}
	defer os.Remove(tmp)

	h.logger.Info("predicted upload",
		zap.String("file", fh.Filename),
		zap.Int("rows", table.Len()),
		zap.String("request_id", requestID(c)))
	c.FileAttachment(tmp, predictionsFilename)
}

// Evaluate scores an uploaded predictions CSV against a ground-truth CSV.
// POST /evaluate
func (h *Handler) Evaluate(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		h.uploadError(c, err, "invalid multipart form")
		return
	}
	predFH := firstFile(form, predictionParts)
	truthFH := firstFile(form, groundTruthParts)
	if predFH == nil || truthFH == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "both predictions_file and ground_truth_file are required"})
		return
	}
	if !sentiment.HasCSVExtension(predFH.Filename) || !sentiment.HasCSVExtension(truthFH.Filename) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only CSV files are supported"})
		return
	}

	var pred, truth *sentiment.Table
	var g errgroup.Group
	g.Go(func() error {
		t, err := readUpload(predFH)
		if err != nil {
			return fmt.Errorf("predictions: %w", err)
		}
		pred = t
		return nil
	})
	g.Go(func() error {
		t, err := readUpload(truthFH)
		if err != nil {
			return fmt.Errorf("ground truth: %w", err)
		}
		truth = t
		return nil
	})
	if err := g.Wait(); err != nil {
		h.respondError(c, err)
		return
	}

	res, err := h.svc.Evaluate(c.Request.Context(), pred, truth)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) uploadError(c *gin.Context, err error, msg string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit)})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", requestID(c)),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// statusFor maps the sentiment error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case sentiment.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, sentiment.ErrNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func firstFile(form *multipart.Form, names []string) *multipart.FileHeader {
	for _, name := range names {
		if files := form.File[name]; len(files) > 0 {
			return files[0]
		}
	}
	return nil
}

func readUpload(fh *multipart.FileHeader) (*sentiment.Table, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()
	return sentiment.ReadTable(f)
}
