package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"organoid-qc/internal/analyzer"
	"organoid-qc/internal/config"
	apperrors "organoid-qc/internal/errors"
	"organoid-qc/internal/logger"
	"organoid-qc/internal/observer"
	"organoid-qc/internal/service"
	"organoid-qc/pkg/models"
	"organoid-qc/pkg/validation"
)

// Dependencies are the services behind the HTTP surface. Metrics, Scorer
// and RateLimit are optional.
type Dependencies struct {
	QC        service.QCService
	Reports   service.ReportService
	Metrics   *observer.MetricsObserver
	Scorer    analyzer.QualityScorer
	RateLimit redis.Cmdable
}

type handler struct {
	deps Dependencies
	cfg  *config.Config
}

func NewHandler(deps Dependencies, cfg *config.Config) http.Handler {
	r := gin.New()
	trustProxies(r, cfg.TrustedProxies)

	r.Use(
		gin.Recovery(),
		requestID(),
		cors(),
		requestSizeLimiter(cfg.MaxRequestBodySize),
		errorHandler(),
	)

	h := &handler{deps: deps, cfg: cfg}

	r.GET("/health", healthCheck)

	debug := r.Group("/debug")
	debug.GET("/health", h.debugHealth)
	debug.GET("/images/:id", h.debugImage)
	debug.POST("/clear-images", h.clearImages)

	r.POST("/experiments", h.createExperiment)
	r.GET("/experiments", h.listExperiments)
	r.DELETE("/experiments/:id", h.deleteExperiment)
	r.GET("/experiments/:id/images", h.listImages)
	r.GET("/experiments/:id/batch-report", h.batchReport)
	r.GET("/experiments/:id/equipment-health", h.equipmentHealth)
	r.GET("/experiments/:id/export-ml-ready", h.exportMLReady)
	r.GET("/experiments/:id/export", h.exportAll)
	r.GET("/experiments/:id/generate-copy-script", h.copyScript)

	upload := []gin.HandlerFunc{h.uploadImage}
	if deps.RateLimit != nil && cfg.Limit.Limit > 0 {
		upload = append([]gin.HandlerFunc{rateLimiter(RateLimiterConfig{
			Client: deps.RateLimit,
			Limit:  cfg.Limit.Limit,
			Window: cfg.Limit.Window,
		})}, upload...)
	}
	r.POST("/upload/:experiment_id", upload...)

	r.GET("/images/:id", h.serveImage)
	r.GET("/images/:id/metadata", h.imageMetadata)
	r.GET("/images/:id/thumbnail", h.serveThumbnail)

	return r
}

// trustProxies limits which peers may set X-Forwarded-For and X-Real-IP.
// With no list, ClientIP is always the connection's remote address.
func trustProxies(r *gin.Engine, proxies []string) {
	if err := r.SetTrustedProxies(proxies); err != nil {
		logger.WithError(err).Warn("Ignoring invalid trusted proxies")
		_ = r.SetTrustedProxies(nil)
	}
}

func (h *handler) context(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), h.cfg.RequestTimeout)
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "available",
		"version": "1.0.0",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *handler) debugHealth(c *gin.Context) {
	ctx, cancel := h.context(c)
	defer cancel()

	body := gin.H{"status": "healthy", "database": "connected"}
	if h.deps.Scorer != nil {
		body["scoring"] = h.deps.Scorer.Stats()
	}
	if h.deps.Metrics != nil {
		body["pipeline"] = h.deps.Metrics.GetMetrics()
	}
	if err := h.deps.QC.Health(ctx); err != nil {
		logger.WithError(err).Error("Database health check failed")
		body["status"] = "unhealthy"
		body["database"] = "unavailable"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}

func (h *handler) debugImage(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx, cancel := h.context(c)
	defer cancel()

	info, err := h.deps.QC.DebugImage(ctx, id)
	if err != nil {
		respondAppError(c, "failed to inspect image", err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *handler) clearImages(c *gin.Context) {
	ctx, cancel := h.context(c)
	defer cancel()

	n, err := h.deps.QC.ClearImages(ctx)
	if err != nil {
		respondAppError(c, "failed to clear images", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

func (h *handler) createExperiment(c *gin.Context) {
	var req models.CreateExperimentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request format", err)
		return
	}
	ctx, cancel := h.context(c)
	defer cancel()

	exp, err := h.deps.QC.CreateExperiment(ctx, req.Name)
	if err != nil {
		respondAppError(c, "failed to create experiment", err)
		return
	}
	c.JSON(http.StatusCreated, exp)
}

func (h *handler) listExperiments(c *gin.Context) {
	ctx, cancel := h.context(c)
	defer cancel()

	list, err := h.deps.QC.ListExperiments(ctx)
	if err != nil {
		respondAppError(c, "failed to list experiments", err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *handler) deleteExperiment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx, cancel := h.context(c)
	defer cancel()

	if err := h.deps.QC.DeleteExperiment(ctx, id); err != nil {
		respondAppError(c, "failed to delete experiment", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) uploadImage(c *gin.Context) {
	expID, ok := pathID(c, "experiment_id")
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondError(c, determineUploadStatus(err), "file is required", err)
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, "cannot read upload", err)
		return
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		respondError(c, determineUploadStatus(err), "cannot read upload", err)
		return
	}

	ctx, cancel := h.context(c)
	defer cancel()

	rec, err := h.deps.QC.UploadImage(ctx, service.UploadRequest{
		ExperimentID:     expID,
		Filename:         fileHeader.Filename,
		Data:             data,
		ImagingSessionID: c.PostForm("imaging_session_id"),
		MicroscopeID:     c.PostForm("microscope_id"),
		OperatorID:       c.PostForm("operator_id"),
	})
	if err != nil {
		respondAppError(c, "upload failed", err)
		return
	}

	logger.WithFields(logrus.Fields{
		"experiment_id": expID,
		"image_id":      rec.ID,
		"filename":      rec.Filename,
		"is_ml_ready":   rec.Verdict.IsReady,
	}).Info("Image uploaded")

	c.JSON(http.StatusCreated, toUploadResponse(rec))
}

func determineUploadStatus(err error) int {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func (h *handler) listImages(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx, cancel := h.context(c)
	defer cancel()

	images, err := h.deps.QC.ListImages(ctx, id)
	if err != nil {
		respondAppError(c, "failed to list images", err)
		return
	}
	out := make([]models.ImageSummary, len(images))
	for i, rec := range images {
		out[i] = toImageSummary(rec)
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) imageMetadata(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx, cancel := h.context(c)
	defer cancel()

	rec, err := h.deps.QC.GetImage(ctx, id)
	if err != nil {
		respondAppError(c, "failed to load image", err)
		return
	}
	c.JSON(http.StatusOK, toImageSummary(*rec))
}

func (h *handler) serveImage(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx, cancel := h.context(c)
	defer cancel()

	rec, rc, err := h.deps.QC.OpenOriginal(ctx, id)
	if err != nil {
		respondAppError(c, "failed to open image", err)
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(path.Ext(rec.Filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, -1, contentType, rc, nil)
}

func (h *handler) serveThumbnail(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx, cancel := h.context(c)
	defer cancel()

	rc, err := h.deps.QC.OpenThumbnail(ctx, id)
	if err != nil {
		respondAppError(c, "failed to open thumbnail", err)
		return
	}
	defer rc.Close()
	c.DataFromReader(http.StatusOK, -1, "image/jpeg", rc, nil)
}

func queryThresholds(c *gin.Context) (validation.QualityThresholds, bool) {
	t, err := validation.ParseThresholds(validation.ReportThresholds(),
		c.Query("focus_threshold"),
		c.Query("contrast_threshold"),
		c.Query("exposure_min"),
		c.Query("exposure_max"),
	)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid thresholds", err)
		return t, false
	}
	return t, true
}

func (h *handler) batchReport(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	thresholds, ok := queryThresholds(c)
	if !ok {
		return
	}
	ctx, cancel := h.context(c)
	defer cancel()

	r, err := h.deps.Reports.BatchReport(ctx, id, thresholds)
	if err != nil {
		respondAppError(c, "failed to build batch report", err)
		return
	}
	c.JSON(http.StatusOK, presentBatch(r))
}

func (h *handler) equipmentHealth(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx, cancel := h.context(c)
	defer cancel()

	r, err := h.deps.Reports.EquipmentHealth(ctx, id, c.Query("grouping"))
	if err != nil {
		respondAppError(c, "failed to analyze equipment health", err)
		return
	}
	c.JSON(http.StatusOK, presentTrends(r))
}

func (h *handler) exportMLReady(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx, cancel := h.context(c)
	defer cancel()

	out, err := h.deps.Reports.ExportMLReady(ctx, id)
	if err != nil {
		respondAppError(c, "failed to export", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) exportAll(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx, cancel := h.context(c)
	defer cancel()

	out, err := h.deps.Reports.ExportAll(ctx, id)
	if err != nil {
		respondAppError(c, "failed to export", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) copyScript(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	thresholds, ok := queryThresholds(c)
	if !ok {
		return
	}
	ctx, cancel := h.context(c)
	defer cancel()

	script, err := h.deps.Reports.CopyScript(ctx, id, thresholds)
	if err != nil {
		respondAppError(c, "failed to generate copy script", err)
		return
	}
	c.JSON(http.StatusOK, models.ScriptResponse{
		Script:      script.Script,
		ReadyImages: script.ReadyImages,
		TotalImages: script.TotalImages,
		Filename:    script.Filename,
	})
}

// pathID parses a positive integer path parameter and responds 400
// otherwise.
func pathID(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "invalid "+name,
			apperrors.NewValidationError(fmt.Sprintf("%q is not a valid id", raw), err))
		return 0, false
	}
	return id, true
}

func respondAppError(c *gin.Context, message string, err error) {
	respondError(c, determineStatusCode(err), message, err)
}

func respondError(c *gin.Context, code int, message string, err error) {
	entry := logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"message":     message,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
		"request_id":  c.GetString("request_id"),
	})
	if code >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request rejected")
	}

	detail := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		detail = appErr.Message
	}
	c.AbortWithStatusJSON(code, models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: fmt.Sprintf("%s: %s", message, detail),
	})
}
