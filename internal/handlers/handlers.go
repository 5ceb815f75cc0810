package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v4/mem"

	"github.com/Brownie44l1/tree-api/internal/classify"
	"github.com/Brownie44l1/tree-api/internal/metrics"
	"github.com/Brownie44l1/tree-api/internal/preprocess"
)

const defaultMaxUpload = 10 << 20

type Config struct {
	// MaxUploadBytes bounds multipart parsing of /predict/image.
	MaxUploadBytes int64
	// MaxImagePixels bounds width*height of decoded uploads.
	MaxImagePixels int
	Logger         *slog.Logger
	// MemoryUsedPercent reports host memory pressure for /health. Defaults
	// to gopsutil's virtual memory statistics.
	MemoryUsedPercent func() (float64, error)
}

type Handler struct {
	pipeline  *classify.Pipeline
	metrics   *metrics.Metrics
	logger    *slog.Logger
	maxUpload int64
	maxPixels int
	memUsed   func() (float64, error)
}

func NewHandler(pipeline *classify.Pipeline, cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	maxPixels := cfg.MaxImagePixels
	if maxPixels <= 0 {
		maxPixels = preprocess.DefaultMaxPixels
	}
	memUsed := cfg.MemoryUsedPercent
	if memUsed == nil {
		memUsed = hostMemoryUsedPercent
	}
	return &Handler{
		pipeline:  pipeline,
		metrics:   &metrics.Metrics{},
		logger:    logger,
		maxUpload: maxUpload,
		maxPixels: maxPixels,
		memUsed:   memUsed,
	}
}

func hostMemoryUsedPercent() (float64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/metrics", h.Metrics)
	mux.HandleFunc("/predict", h.Predict)
	mux.HandleFunc("/predict/image", h.PredictFromImage)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := HealthResponse{
		Status:    "healthy",
		Classes:   len(h.pipeline.Labels()),
		ImageSize: h.pipeline.ImageSize(),
		Threshold: h.pipeline.Threshold(),
	}
	if used, err := h.memUsed(); err == nil {
		resp.MemoryUsedPercent = used
	} else {
		h.logger.Warn("memory_stats_unavailable", "error", err.Error())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_, _ = w.Write([]byte(h.metrics.Snapshot().PrometheusText()))
}

// Predict classifies a raw, already preprocessed tensor.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	reqID := RequestIDFrom(r.Context())

	var req PredictionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxUpload)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{RequestID: reqID, Error: "Invalid JSON"})
		return
	}

	start := time.Now()
	h.metrics.RecordStart()
	res := h.pipeline.PredictTensor(r.Context(), req.Image)
	h.finish(w, reqID, res, start)
}

// PredictFromImage classifies an uploaded image sent as multipart field "image".
func (h *Handler) PredictFromImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	reqID := RequestIDFrom(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{RequestID: reqID, Error: "Failed to parse form"})
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{
			RequestID: reqID,
			Error:     "No image file provided. Use 'image' as the form field name",
		})
		return
	}
	defer file.Close()

	h.logger.Info("image_received",
		"request_id", reqID,
		"filename", header.Filename,
		"size", header.Size,
	)

	img, format, err := preprocess.Decode(file, h.maxPixels)
	if err != nil {
		msg := "Invalid image format. Supported: JPEG, PNG, GIF, WebP, BMP, TIFF"
		if errors.Is(err, preprocess.ErrTooLarge) {
			msg = err.Error()
		}
		h.logger.Warn("image_rejected", "request_id", reqID, "error", err.Error())
		writeError(w, http.StatusBadRequest, ErrorResponse{RequestID: reqID, Error: msg})
		return
	}

	h.logger.Debug("image_decoded",
		"request_id", reqID,
		"format", format,
		"width", img.Bounds().Dx(),
		"height", img.Bounds().Dy(),
	)

	start := time.Now()
	h.metrics.RecordStart()
	res := <-h.pipeline.PredictAsync(r.Context(), img)
	h.finish(w, reqID, res, start)
}

func (h *Handler) finish(w http.ResponseWriter, reqID string, res classify.Result, start time.Time) {
	h.metrics.RecordDone(outcomeOf(res), time.Since(start))

	if !res.OK() {
		status := statusFor(res)
		h.logger.Error("predict_request_failed",
			"request_id", reqID,
			"kind", res.Kind.String(),
			"status", status,
			"error", res.Err.Error(),
		)
		msg := "Prediction failed"
		if status == http.StatusBadRequest {
			msg = res.Err.Error()
		}
		writeError(w, status, ErrorResponse{RequestID: reqID, Error: msg, Kind: res.Kind.String()})
		return
	}

	h.logger.Info("predict_request_done",
		"request_id", reqID,
		"label", res.Prediction.Label,
		"confidence", res.Prediction.Confidence,
		"unsure", res.Prediction.Unsure,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	writeJSON(w, http.StatusOK, newPredictionResponse(reqID, res.Prediction))
}

func statusFor(res classify.Result) int {
	switch {
	case res.Kind == classify.KindLoadError:
		return http.StatusServiceUnavailable
	case errors.Is(res.Err, classify.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func outcomeOf(res classify.Result) metrics.Outcome {
	switch {
	case res.Kind == classify.KindLoadError:
		return metrics.OutcomeLoadError
	case res.Kind == classify.KindInferenceError:
		return metrics.OutcomeInferenceError
	case res.Prediction.Unsure:
		return metrics.OutcomeUnsure
	default:
		return metrics.OutcomeConfident
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, resp ErrorResponse) {
	writeJSON(w, statusCode, resp)
}
