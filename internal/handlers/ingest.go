package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"alertcache/internal/alerts"
	"alertcache/internal/cache"
	"alertcache/internal/logger"
	"alertcache/internal/metrics"
	"alertcache/internal/models"
)

// Dispatcher evaluates a data point against the condition cache and returns
// the number of match signals it queued
type Dispatcher interface {
	Dispatch(ctx context.Context, dp *models.DataPoint) (int, error)
}

// IngestHandler handles data point ingestion via HTTP
type IngestHandler struct {
	dispatcher  Dispatcher
	maxBodySize int64
}

// IngestConfig holds configuration for the ingest handler
type IngestConfig struct {
	Dispatcher  Dispatcher
	MaxBodySize int64
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(cfg IngestConfig) *IngestHandler {
	maxBodySize := cfg.MaxBodySize
	if maxBodySize == 0 {
		maxBodySize = 10 * 1024 * 1024 // 10MB default
	}
	return &IngestHandler{
		dispatcher:  cfg.Dispatcher,
		maxBodySize: maxBodySize,
	}
}

// IngestRequest represents the incoming JSON payload (single or batch)
type IngestRequest struct {
	DataPoint  *DataPointInput  `json:"data_point,omitempty"`
	DataPoints []DataPointInput `json:"data_points,omitempty"`
}

// DataPointInput is the input format for data points (with string timestamp
// and enum names)
type DataPointInput struct {
	ID           string                `json:"id"`
	Kind         string                `json:"kind"`
	Source       string                `json:"source"`
	ResourceID   int                   `json:"resource_id"`
	Timestamp    string                `json:"timestamp"` // String for flexible parsing
	Number       *float64              `json:"number,omitempty"`
	Text         *string               `json:"text,omitempty"`
	Availability string                `json:"availability,omitempty"`
	Severity     string                `json:"severity,omitempty"`
	Detail       string                `json:"detail,omitempty"`
	CallTime     *alerts.CallTimeValue `json:"call_time,omitempty"`
	Config       map[string]any        `json:"config,omitempty"`
}

// IngestResponse is the response returned to clients
type IngestResponse struct {
	Success  bool          `json:"success"`
	Accepted int           `json:"accepted"`
	Rejected int           `json:"rejected"`
	Matched  int           `json:"matched"`
	Errors   []IngestError `json:"errors,omitempty"`
}

// IngestError describes a problem with a specific data point. Data points
// whose conditions failed to evaluate are still accepted.
type IngestError struct {
	Index       int    `json:"index"`
	DataPointID string `json:"data_point_id,omitempty"`
	Error       string `json:"error"`
}

// ServeHTTP handles the ingest HTTP request
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	inputs, err := parseBody(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	metrics.IngestBatchSize.Observe(float64(len(inputs)))

	response, err := h.process(r.Context(), inputs)
	if errors.Is(err, cache.ErrClosed) {
		writeError(w, http.StatusServiceUnavailable, "shutting down")
		return
	}

	status := http.StatusOK
	if response.Rejected > 0 && response.Accepted == 0 {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, response)
}

// parseBody accepts a request object, an array of data points or a single
// data point
func parseBody(body []byte) ([]DataPointInput, error) {
	var req IngestRequest
	if err := json.Unmarshal(body, &req); err == nil {
		if len(req.DataPoints) > 0 {
			return req.DataPoints, nil
		}
		if req.DataPoint != nil {
			return []DataPointInput{*req.DataPoint}, nil
		}
	}

	var batch []DataPointInput
	if err := json.Unmarshal(body, &batch); err == nil && len(batch) > 0 {
		return batch, nil
	}

	var single DataPointInput
	if err := json.Unmarshal(body, &single); err == nil && single.ID != "" {
		return []DataPointInput{single}, nil
	}

	return nil, errors.New("invalid JSON format: expected data point object or array of data points")
}

func (h *IngestHandler) process(ctx context.Context, inputs []DataPointInput) (IngestResponse, error) {
	log := logger.WithComponent("ingest")
	response := IngestResponse{Errors: make([]IngestError, 0)}

	reject := func(i int, id string, err error) {
		response.Errors = append(response.Errors, IngestError{Index: i, DataPointID: id, Error: err.Error()})
		response.Rejected++
		metrics.IngestDataPointsTotal.WithLabelValues("http", "rejected").Inc()
	}

	for i, input := range inputs {
		dp, err := input.toDataPoint()
		if err != nil {
			reject(i, input.ID, err)
			continue
		}

		dp.Normalize()
		if err := dp.Validate(); err != nil {
			reject(i, dp.ID, err)
			continue
		}

		queued, err := h.dispatcher.Dispatch(ctx, dp)
		if errors.Is(err, cache.ErrClosed) {
			return response, err
		}
		response.Accepted++
		response.Matched += queued
		metrics.IngestDataPointsTotal.WithLabelValues("http", "accepted").Inc()
		if err != nil {
			log.Warn().Err(err).Str("data_point_id", dp.ID).Msg("condition evaluation failed")
			response.Errors = append(response.Errors, IngestError{Index: i, DataPointID: dp.ID, Error: err.Error()})
		}
	}

	response.Success = response.Rejected == 0
	return response, nil
}

func (in DataPointInput) toDataPoint() (*models.DataPoint, error) {
	ts, err := models.ParseTimestamp(in.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("timestamp: %w", err)
	}

	dp := &models.DataPoint{
		ID:         in.ID,
		Kind:       models.DataKind(in.Kind),
		Source:     in.Source,
		ResourceID: in.ResourceID,
		Timestamp:  ts,
		Number:     in.Number,
		Text:       in.Text,
		Detail:     in.Detail,
		CallTime:   in.CallTime,
		Config:     in.Config,
	}
	if in.Availability != "" {
		a, err := alerts.ParseAvailability(in.Availability)
		if err != nil {
			return nil, err
		}
		dp.Availability = &a
	}
	if in.Severity != "" {
		s, err := alerts.ParseSeverity(in.Severity)
		if err != nil {
			return nil, err
		}
		dp.Severity = &s
	}
	return dp, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log := logger.WithError(err)
		log.Warn().Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   message,
	})
}
