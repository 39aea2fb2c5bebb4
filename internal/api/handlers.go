package api

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/lensshot/internal/fetcher"
	"github.com/shehryarbajwa/lensshot/internal/metrics"
	"github.com/shehryarbajwa/lensshot/pkg/models"
)

const (
	msgInvalidURL    = "Invalid Image URL provided."
	msgProcessFailed = "Failed to process the image."

	maxBodyBytes = 1 << 20
)

// ImageFetcher downloads an image and returns its local path
type ImageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// Uploader runs a local image through the visual-search page
type Uploader interface {
	Upload(ctx context.Context, imagePath string) (*models.ScreenshotArtifact, error)
}

// SessionReporter exposes the browser session state for health checks
type SessionReporter interface {
	Info() (models.SessionInfo, bool)
	Running() bool
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	fetcher  ImageFetcher
	uploader Uploader
	session  SessionReporter
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(f ImageFetcher, u Uploader, s SessionReporter, collector *metrics.Collector, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Handler{
		fetcher:  f,
		uploader: u,
		session:  s,
		metrics:  collector,
		logger:   logger.With(zap.String("component", "api")),
	}
}

// ProcessImage handles POST /api/process-image
func (h *Handler) ProcessImage(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(zap.String("request_id", RequestID(r.Context())))

	imageURL, err := readImageURL(w, r)
	if err == nil {
		_, err = fetcher.ValidateURL(imageURL)
	}
	if err != nil {
		logger.Info("invalid image url", zap.String("image_url", imageURL), zap.Error(err))
		h.metrics.RecordRequest(metrics.OutcomeInvalid)
		writeJSON(w, http.StatusBadRequest, models.ProcessImageResponse{Success: false, Message: msgInvalidURL})
		return
	}

	logger.Info("received image url", zap.String("image_url", imageURL))
	start := time.Now()

	imagePath, err := h.fetcher.Fetch(r.Context(), imageURL)
	if err != nil {
		logger.Error("failed to download image", zap.String("image_url", imageURL), zap.Error(err))
		h.metrics.RecordRequest(metrics.OutcomeDownloadError)
		writeJSON(w, http.StatusInternalServerError, models.ProcessImageResponse{Success: false, Message: msgProcessFailed})
		return
	}

	artifact, err := h.uploader.Upload(r.Context(), imagePath)
	if err != nil {
		logger.Error("failed to process image", zap.String("image_path", imagePath), zap.Error(err))
		h.metrics.RecordRequest(metrics.OutcomeUploadError)
		writeJSON(w, http.StatusInternalServerError, models.ProcessImageResponse{Success: false, Message: msgProcessFailed})
		return
	}

	logger.Info("image processed",
		zap.String("screenshot", artifact.URL),
		zap.Duration("elapsed", time.Since(start)))
	h.metrics.RecordRequest(metrics.OutcomeSuccess)

	writeJSON(w, http.StatusOK, models.ProcessImageResponse{Success: true, ScreenshotURL: artifact.URL})
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]interface{}{"status": "ok"}

	if h.session == nil || !h.session.Running() {
		status = http.StatusServiceUnavailable
		body["status"] = "unavailable"
	}
	if h.session != nil {
		if info, ok := h.session.Info(); ok {
			body["browser"] = info
		}
	}

	writeJSON(w, status, body)
}

// readImageURL accepts a JSON body or a url-encoded form
func readImageURL(w http.ResponseWriter, r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return "", err
		}
		v := r.PostForm.Get("imageUrl")
		if v == "" {
			return "", errors.New("imageUrl is required")
		}
		return v, nil
	}

	var req models.ProcessImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", err
	}
	if req.ImageURL == "" {
		return "", errors.New("imageUrl is required")
	}
	return req.ImageURL, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
