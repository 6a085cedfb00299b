package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/apparel-order-pipeline/internal/config"
	"github.com/vaidashi/apparel-order-pipeline/internal/database"
	"github.com/vaidashi/apparel-order-pipeline/internal/models"
	"github.com/vaidashi/apparel-order-pipeline/internal/outbox"
	"github.com/vaidashi/apparel-order-pipeline/internal/repository"
	"github.com/vaidashi/apparel-order-pipeline/internal/service"
	"github.com/vaidashi/apparel-order-pipeline/internal/workflow"
	apperrors "github.com/vaidashi/apparel-order-pipeline/pkg/errors"
	"github.com/vaidashi/apparel-order-pipeline/pkg/logger"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	log := logger.NewNop()

	db, err := database.Open(config.DriverSQLite, ":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.RunMigrations())

	orderRepo := repository.NewOrderRepository(db, log)
	outboxRepo := repository.NewOutboxRepository(db, log)

	s := &Server{
		config:       &config.Config{Port: 8080},
		logger:       log,
		db:           db,
		orderService: service.NewOrderService(workflow.NewEngine(), orderRepo, outboxRepo, log),
		outboxRepo:   outboxRepo,
		outboxProcessor: outbox.NewProcessor(outboxRepo, outbox.ProcessorConfig{
			PollingInterval: time.Second,
			BatchSize:       10,
			MaxRetries:      1,
		}, log),
	}
	s.router = s.setupRoutes()

	return s
}

type caller struct {
	id   string
	role models.Role
}

var (
	admin  = caller{id: "u-1", role: models.RoleAdmin}
	staff  = caller{id: "u-2", role: models.RoleStaff}
	viewer = caller{id: "u-3", role: models.RoleViewer}
)

func (s *Server) do(t *testing.T, who *caller, method, path string, body interface{}) (*httptest.ResponseRecorder, ApiResponse) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if who != nil {
		req.Header.Set(HeaderUserID, who.id)
		req.Header.Set(HeaderUserRole, string(who.role))
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var resp ApiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())

	return rec, resp
}

// decodeData re-decodes the envelope's data into dst
func decodeData(t *testing.T, resp ApiResponse, dst interface{}) {
	t.Helper()

	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, dst))
}

func createOrder(t *testing.T, s *Server) models.Order {
	t.Helper()

	rec, resp := s.do(t, &staff, http.MethodPost, "/api/v1/orders", workflow.OrderFields{
		Customer:      "Harbor Coffee",
		CustomerEmail: "ops@harbor.example",
	})
	require.Equal(t, http.StatusCreated, rec.Code, resp.Error)

	var order models.Order
	decodeData(t, resp, &order)
	return order
}

func TestHealthNeedsNoIdentity(t *testing.T) {
	s := newTestServer(t)

	rec, resp := s.do(t, nil, http.MethodGet, "/api/v1/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
}

func TestMissingIdentityIsUnauthorized(t *testing.T) {
	s := newTestServer(t)

	rec, resp := s.do(t, nil, http.MethodGet, "/api/v1/orders", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, resp.Success)
}

func TestIdentityErrorsCarryTheirMessage(t *testing.T) {
	s := newTestServer(t)

	rec, resp := s.do(t, nil, http.MethodGet, "/api/v1/board", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, resp.Error, HeaderUserID)

	rec, resp = s.do(t, &viewer, http.MethodPost, "/api/v1/orders", workflow.OrderFields{Customer: "X"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "role viewer may not do this", resp.Error)
}

func TestStatusForAppErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unauthorized", apperrors.NewUnauthorizedError("who"), http.StatusUnauthorized},
		{"forbidden", apperrors.NewForbiddenError("no"), http.StatusForbidden},
		{"conflict", apperrors.NewConflictError("busy"), http.StatusConflict},
		{"not found", apperrors.NewNotFoundError("gone"), http.StatusNotFound},
		{"invalid input", apperrors.NewInvalidInputError("bad"), http.StatusBadRequest},
		{"version conflict", fmt.Errorf("save: %w", repository.ErrVersionConflict), http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	order := createOrder(t, s)

	assert.Equal(t, models.StatusLead, order.Status)

	rec, resp := s.do(t, &staff, http.MethodGet, "/api/v1/orders/"+order.ID+"/gate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var gate workflow.GateResult
	decodeData(t, resp, &gate)
	assert.True(t, gate.Met)

	rec, resp = s.do(t, &staff, http.MethodPatch, "/api/v1/orders/"+order.ID+"/status", StatusUpdateRequest{Status: models.StatusQuote})
	require.Equal(t, http.StatusOK, rec.Code, resp.Error)

	rec, resp = s.do(t, &staff, http.MethodPut, "/api/v1/orders/"+order.ID+"/line-items?reprice=true", LineItemsRequest{
		LineItems: []models.LineItem{{ItemNumber: "5000", Name: "Tee", Qty: 12, DecorationType: models.DecorationDTF, DTFSize: models.DTFSizeLarge, Cost: 3}},
	})
	require.Equal(t, http.StatusOK, rec.Code, resp.Error)

	var updated models.Order
	decodeData(t, resp, &updated)
	require.Len(t, updated.LineItems, 1)
	assert.Equal(t, 14.0, updated.LineItems[0].Price)

	rec, resp = s.do(t, &staff, http.MethodPatch, "/api/v1/orders/"+order.ID+"/status", StatusUpdateRequest{Status: "Shipped"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, resp.Error)

	rec, _ = s.do(t, &staff, http.MethodPost, "/api/v1/orders/"+order.ID+"/reopen", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "only closed orders reopen")

	rec, resp = s.do(t, &staff, http.MethodPost, "/api/v1/orders/"+order.ID+"/dead-opportunity", DeadOpportunityRequest{CreateLead: true})
	require.Equal(t, http.StatusOK, rec.Code, resp.Error)

	var dead workflow.DeadOpportunityResult
	decodeData(t, resp, &dead)
	assert.Equal(t, models.StatusClosed, dead.Dead.Status)
	require.NotNil(t, dead.NewLead)

	rec, resp = s.do(t, &viewer, http.MethodGet, "/api/v1/board", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var board []workflow.BoardColumn
	decodeData(t, resp, &board)
	require.Len(t, board, 12)
	assert.Len(t, board[0].Orders, 1, "new lead on the Lead column")
	assert.Len(t, board[11].Orders, 1, "dead order on the Closed column")
}

func TestUnknownOrderIsNotFound(t *testing.T) {
	s := newTestServer(t)

	rec, _ := s.do(t, &viewer, http.MethodGet, "/api/v1/orders/ord-missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = s.do(t, &staff, http.MethodPatch, "/api/v1/orders/ord-missing/prep", models.PrepStatus{ScreensBurned: true})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoleGating(t *testing.T) {
	s := newTestServer(t)
	order := createOrder(t, s)

	rec, _ := s.do(t, &viewer, http.MethodPost, "/api/v1/orders", workflow.OrderFields{Customer: "X"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = s.do(t, &viewer, http.MethodPatch, "/api/v1/orders/"+order.ID+"/status", StatusUpdateRequest{Status: models.StatusQuote})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = s.do(t, &staff, http.MethodGet, "/api/v1/admin/validation", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = s.do(t, &staff, http.MethodDelete, "/api/v1/orders", DeleteOrdersRequest{IDs: []string{order.ID}, Confirmation: DeleteConfirmation})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = s.do(t, &viewer, http.MethodGet, "/api/v1/orders", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeleteNeedsTypedConfirmation(t *testing.T) {
	s := newTestServer(t)
	order := createOrder(t, s)

	rec, _ := s.do(t, &admin, http.MethodDelete, "/api/v1/orders", DeleteOrdersRequest{IDs: []string{order.ID}, Confirmation: "delete"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, err := s.orderService.Get(order.ID)
	require.NoError(t, err, "nothing deleted without confirmation")

	rec, resp := s.do(t, &admin, http.MethodDelete, "/api/v1/orders", DeleteOrdersRequest{IDs: []string{order.ID}, Confirmation: DeleteConfirmation})
	require.Equal(t, http.StatusOK, rec.Code, resp.Error)

	_, err = s.orderService.Get(order.ID)
	assert.ErrorIs(t, err, service.ErrOrderNotFound)
}

func TestPriceBreakdownEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec, resp := s.do(t, &viewer, http.MethodPost, "/api/v1/pricing/breakdown", models.LineItem{
		DecorationType:       models.DecorationScreenPrint,
		DecorationPlacements: 2,
		ScreenPrintColors:    3,
		IsPlusSize:           true,
		Cost:                 5,
	})
	require.Equal(t, http.StatusOK, rec.Code, resp.Error)

	var b struct {
		Total float64 `json:"total"`
	}
	decodeData(t, resp, &b)
	assert.Equal(t, 19.0, b.Total)
}

func TestAdminOutboxRetry(t *testing.T) {
	s := newTestServer(t)
	order := createOrder(t, s)

	// nothing is registered, so the created event fails straight away
	result, err := s.outboxProcessor.ProcessBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Failed)

	rec, resp := s.do(t, &admin, http.MethodGet, "/api/v1/admin/outbox/failed", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var failed []models.OutboxMessage
	decodeData(t, resp, &failed)
	require.Len(t, failed, 1)
	assert.Equal(t, order.ID, failed[0].AggregateID)

	path := "/api/v1/admin/outbox/" + jsonNumber(failed[0].ID) + "/retry"

	rec, resp = s.do(t, &admin, http.MethodPost, path, nil)
	require.Equal(t, http.StatusOK, rec.Code, resp.Error)

	rec, _ = s.do(t, &admin, http.MethodPost, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "already requeued")

	rec, resp = s.do(t, &admin, http.MethodGet, "/api/v1/admin/publisher", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status PublisherStatus
	decodeData(t, resp, &status)
	assert.Equal(t, "log", status.Sink)
	assert.Nil(t, status.Breaker)
	assert.Equal(t, 1, status.Outbox[models.OutboxStatusPending])

	rec, resp = s.do(t, &admin, http.MethodPost, "/api/v1/admin/publisher/reset", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Kafka publishing is disabled", resp.Error)
}

func TestValidationReport(t *testing.T) {
	s := newTestServer(t)
	createOrder(t, s)

	rec, resp := s.do(t, &admin, http.MethodGet, "/api/v1/admin/validation", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var report struct {
		Valid    bool     `json:"valid"`
		Warnings []string `json:"warnings"`
	}
	decodeData(t, resp, &report)
	assert.True(t, report.Valid)
}

func jsonNumber(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
