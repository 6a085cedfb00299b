package api

import (
	"net/http"

	"github.com/vaidashi/apparel-order-pipeline/internal/handlers"
	"github.com/vaidashi/apparel-order-pipeline/internal/models"
	"github.com/vaidashi/apparel-order-pipeline/pkg/circuitbreaker"
	apperrors "github.com/vaidashi/apparel-order-pipeline/pkg/errors"
)

// PublisherStatus describes where order events are going
type PublisherStatus struct {
	Sink     string                      `json:"sink"`
	Breaker  *circuitbreaker.Snapshot    `json:"breaker,omitempty"`
	Outbox   map[models.OutboxStatus]int `json:"outbox"`
	Consumer *handlers.EventStats        `json:"consumer,omitempty"`
}

// getPublisherStatusHandler returns the breaker state and outbox backlog
func (s *Server) getPublisherStatusHandler(w http.ResponseWriter, r *http.Request) {
	counts, err := s.outboxRepo.CountByStatus(r.Context())

	if err != nil {
		s.logger.Error("Failed to count outbox messages", "error", err)
		s.respondWithError(w, http.StatusInternalServerError, "Failed to read outbox")
		return
	}

	status := PublisherStatus{Sink: "log", Outbox: counts}

	if s.kafkaHandler != nil {
		snap := s.kafkaHandler.Breaker().Snapshot()
		status.Sink = "kafka"
		status.Breaker = &snap
	}

	if s.eventsHandler != nil {
		stats := s.eventsHandler.Stats()
		status.Consumer = &stats
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: status})
}

// resetPublisherHandler resets the circuit breaker to closed state
func (s *Server) resetPublisherHandler(w http.ResponseWriter, r *http.Request) {
	if s.kafkaHandler == nil {
		s.respondWithServiceError(w, r, apperrors.NewConflictError("Kafka publishing is disabled"))
		return
	}

	s.kafkaHandler.Breaker().Reset()
	s.logger.Info("Publisher circuit breaker reset", "by", currentUser(r).ID)

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]string{
			"message": "Circuit breaker reset successfully",
		},
	})
}
