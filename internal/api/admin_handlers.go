package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/vaidashi/apparel-order-pipeline/internal/repository"
	apperrors "github.com/vaidashi/apparel-order-pipeline/pkg/errors"
)

// validationHandler returns the consistency report over every order
func (s *Server) validationHandler(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: s.orderService.Validate()})
}

// getFailedMessagesHandler lists outbox messages that ran out of retries
func (s *Server) getFailedMessagesHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))

	if err != nil || limit < 1 || limit > 100 {
		limit = 20
	}

	messages, err := s.outboxRepo.ListFailed(r.Context(), limit)

	if err != nil {
		s.logger.Error("Failed to fetch failed outbox messages", "error", err)
		s.respondWithError(w, http.StatusInternalServerError, "Failed to fetch failed outbox messages")
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: messages})
}

// retryFailedMessageHandler puts a failed message back in the queue
func (s *Server) retryFailedMessageHandler(w http.ResponseWriter, r *http.Request) {
	idStr := mux.Vars(r)["id"]

	id, err := strconv.ParseInt(idStr, 10, 64)

	if err != nil {
		s.respondWithServiceError(w, r, apperrors.NewInvalidInputError("Invalid message ID"))
		return
	}

	if err := s.outboxRepo.ResetToPending(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.respondWithServiceError(w, r, apperrors.NewNotFoundError("No failed message with that ID").WithContext("messageID", id))
			return
		}
		s.logger.Error("Failed to requeue outbox message", "error", err, "messageID", id)
		s.respondWithError(w, http.StatusInternalServerError, "Failed to requeue message")
		return
	}

	s.logger.Info("Outbox message requeued", "messageID", id, "by", currentUser(r).ID)

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]string{
			"message": "Outbox message requeued",
			"id":      idStr,
		},
	})
}
