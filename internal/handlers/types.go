package handlers

import "github.com/Brownie44l1/tree-api/internal/classify"

type PredictionRequest struct {
	Image []float32 `json:"image"`
}

type PredictionResponse struct {
	RequestID   string             `json:"request_id"`
	Label       string             `json:"label"`
	Index       int                `json:"index"`
	Confidence  float32            `json:"confidence"`
	Unsure      bool               `json:"unsure"`
	Display     string             `json:"display"`
	Predictions map[string]float32 `json:"predictions"`
}

type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty"`
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
}

type HealthResponse struct {
	Status            string  `json:"status"`
	Classes           int     `json:"classes"`
	ImageSize         int     `json:"image_size"`
	Threshold         float32 `json:"threshold"`
	MemoryUsedPercent float64 `json:"memory_used_percent,omitempty"`
}

func newPredictionResponse(requestID string, p classify.Prediction) PredictionResponse {
	return PredictionResponse{
		RequestID:   requestID,
		Label:       p.Label,
		Index:       p.Index,
		Confidence:  p.Confidence,
		Unsure:      p.Unsure,
		Display:     p.String(),
		Predictions: p.Scores,
	}
}
