package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/vaidashi/apparel-order-pipeline/internal/audit"
	"github.com/vaidashi/apparel-order-pipeline/internal/repository"
	"github.com/vaidashi/apparel-order-pipeline/internal/service"
	"github.com/vaidashi/apparel-order-pipeline/internal/workflow"
	apperrors "github.com/vaidashi/apparel-order-pipeline/pkg/errors"
)

// ApiResponse is the envelope of every response
type ApiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Health represents the health check response
type Health struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Storage   string `json:"storage"`
	Kafka     bool   `json:"kafka"`
	Timestamp string `json:"timestamp"`
}

// healthCheckHandler reports liveness and whether the database answers
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	health := Health{
		Status:    "ok",
		Version:   "0.1.0",
		Storage:   s.db.Driver,
		Kafka:     s.kafkaHandler != nil,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if err := s.db.Ping(r.Context()); err != nil {
		s.logger.Error("Health check failed", "error", err)
		health.Status = "degraded"
		s.respondWithJSON(w, http.StatusServiceUnavailable, ApiResponse{Success: false, Data: health, Error: "database unavailable"})
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    health,
	})
}

// decodeBody decodes a JSON request body, rejecting unknown fields
func decodeBody(r *http.Request, dst interface{}) error {
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	return decoder.Decode(dst)
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrOrderNotFound), errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrInvalidOrder), errors.Is(err, workflow.ErrUnknownStatus):
		return http.StatusBadRequest
	case errors.Is(err, workflow.ErrGateNotMet), errors.Is(err, workflow.ErrNotClosed),
		errors.Is(err, repository.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, audit.ErrHistoryRewritten):
		return http.StatusInternalServerError
	default:
		return apperrors.StatusCode(err)
	}
}

// respondWithServiceError logs server-side failures and hides their detail
func (s *Server) respondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)

	if code >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "error", err, "method", r.Method, "path", r.URL.Path)
		s.respondWithError(w, code, http.StatusText(code))
		return
	}

	s.respondWithError(w, code, err.Error())
}

// respondWithError sends a JSON response with an error message
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, ApiResponse{
		Success: false,
		Error:   message,
	})
}

// respondWithJSON sends a JSON response
func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)

	if err != nil {
		s.logger.Error("Failed to marshal response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
