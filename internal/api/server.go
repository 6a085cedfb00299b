package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/vaidashi/apparel-order-pipeline/internal/config"
	"github.com/vaidashi/apparel-order-pipeline/internal/database"
	"github.com/vaidashi/apparel-order-pipeline/internal/handlers"
	"github.com/vaidashi/apparel-order-pipeline/internal/models"
	"github.com/vaidashi/apparel-order-pipeline/internal/outbox"
	"github.com/vaidashi/apparel-order-pipeline/internal/repository"
	"github.com/vaidashi/apparel-order-pipeline/internal/service"
	"github.com/vaidashi/apparel-order-pipeline/internal/workflow"
	"github.com/vaidashi/apparel-order-pipeline/pkg/circuitbreaker"
	"github.com/vaidashi/apparel-order-pipeline/pkg/kafka"
	"github.com/vaidashi/apparel-order-pipeline/pkg/logger"
)

// Server is the HTTP front of the order pipeline plus the background
// workers that publish its events
type Server struct {
	config     *config.Config
	logger     logger.Logger
	router     *mux.Router
	httpServer *http.Server
	db         *database.Database

	orderService    *service.OrderService
	outboxRepo      *repository.OutboxRepository
	outboxProcessor *outbox.Processor

	// nil unless kafka is enabled
	kafkaProducer *kafka.Producer
	kafkaConsumer *kafka.Consumer
	kafkaHandler  *outbox.KafkaHandler
	eventsHandler *handlers.OrderEventsHandler
}

// NewServer wires storage, the order service, the outbox publisher and,
// when enabled, the Kafka producer and consumer
func NewServer(cfg *config.Config, logger logger.Logger) (*Server, error) {
	db, err := database.New(cfg, logger)

	if err != nil {
		return nil, err
	}

	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	orderRepo := repository.NewOrderRepository(db, logger)
	outboxRepo := repository.NewOutboxRepository(db, logger)

	var engineOpts []workflow.Option
	if cfg.Workflow.StrictGates {
		engineOpts = append(engineOpts, workflow.WithStrictGates())
	}

	orderService := service.NewOrderService(workflow.NewEngine(engineOpts...), orderRepo, outboxRepo, logger)

	if err := orderService.Load(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	outboxProcessor := outbox.NewProcessor(outboxRepo, outbox.ProcessorConfig{
		PollingInterval: cfg.Outbox.PollingInterval,
		BatchSize:       cfg.Outbox.BatchSize,
		MaxRetries:      cfg.Outbox.MaxRetries,
	}, logger)

	s := &Server{
		config:          cfg,
		logger:          logger,
		db:              db,
		orderService:    orderService,
		outboxRepo:      outboxRepo,
		outboxProcessor: outboxProcessor,
	}

	var publisher outbox.MessageHandler = outbox.NewLoggingHandler(logger)

	if cfg.Kafka.Enabled {
		kafkaProducer, err := kafka.NewProducer(cfg.Kafka.Brokers, logger)

		if err != nil {
			db.Close()
			return nil, err
		}

		breaker := circuitbreaker.New(circuitbreaker.Config{
			Name:             "kafka-publisher",
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
			HalfOpenMaxCalls: 1,
		})

		s.kafkaProducer = kafkaProducer
		s.kafkaHandler = outbox.NewKafkaHandler(kafkaProducer, cfg.Kafka.OrdersTopic, breaker, logger)
		publisher = s.kafkaHandler

		kafkaConsumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:       cfg.Kafka.Brokers,
			Topics:        []string{cfg.Kafka.OrdersTopic},
			ConsumerGroup: cfg.Kafka.ConsumerGroup,
		}, logger)

		if err != nil {
			// publishing still works without the projection
			logger.Error("Failed to create Kafka consumer", "error", err)
		} else {
			s.eventsHandler = handlers.NewOrderEventsHandler(logger)
			kafkaConsumer.RegisterHandler(cfg.Kafka.OrdersTopic, s.eventsHandler)
			s.kafkaConsumer = kafkaConsumer
		}
	}

	for _, eventType := range models.EventTypes() {
		outboxProcessor.RegisterHandler(eventType, publisher)
	}

	s.router = s.setupRoutes()
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Start starts the background workers and then serves HTTP until shutdown
func (s *Server) Start() error {
	s.outboxProcessor.Start()

	if s.kafkaConsumer != nil {
		if err := s.kafkaConsumer.Start(); err != nil {
			s.logger.Error("Failed to start Kafka consumer", "error", err)
		}
	}

	s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)

	s.outboxProcessor.Stop()

	if s.kafkaConsumer != nil {
		if err := s.kafkaConsumer.Stop(); err != nil {
			s.logger.Error("Error stopping Kafka consumer", "error", err)
		}
	}

	if s.kafkaProducer != nil {
		if err := s.kafkaProducer.Close(); err != nil {
			s.logger.Error("Error closing Kafka producer", "error", err)
		}
	}

	if err := s.db.Close(); err != nil {
		s.logger.Error("Error closing database connection", "error", err)
	}

	return err
}

// setupRoutes configures all the routes for our API
func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.loggingMiddleware)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", s.healthCheckHandler).Methods(http.MethodGet)

	// everything else needs a caller identity
	authed := api.NewRoute().Subrouter()
	authed.Use(s.userMiddleware)

	authed.HandleFunc("/orders", s.getOrdersHandler).Methods(http.MethodGet)
	authed.HandleFunc("/orders", s.require(canCreate, s.createOrderHandler)).Methods(http.MethodPost)
	authed.HandleFunc("/orders", s.require(canDelete, s.deleteOrdersHandler)).Methods(http.MethodDelete)
	authed.HandleFunc("/board", s.getBoardHandler).Methods(http.MethodGet)
	authed.HandleFunc("/pricing/breakdown", s.priceBreakdownHandler).Methods(http.MethodPost)

	authed.HandleFunc("/orders/{id}", s.getOrderByIDHandler).Methods(http.MethodGet)
	authed.HandleFunc("/orders/{id}/gate", s.getGateHandler).Methods(http.MethodGet)
	authed.HandleFunc("/orders/{id}/status", s.require(canAdvance, s.updateOrderStatusHandler)).Methods(http.MethodPatch)
	authed.HandleFunc("/orders/{id}/reopen", s.require(canAdvance, s.reopenOrderHandler)).Methods(http.MethodPost)
	authed.HandleFunc("/orders/{id}/dead-opportunity", s.require(canAdvance, s.deadOpportunityHandler)).Methods(http.MethodPost)

	authed.HandleFunc("/orders/{id}/line-items", s.require(canEdit, s.updateLineItemsHandler)).Methods(http.MethodPut)
	authed.HandleFunc("/orders/{id}/line-items/progress", s.require(canEdit, s.lineItemProgressHandler)).Methods(http.MethodPost)
	authed.HandleFunc("/orders/{id}/lead-info", s.require(canEdit, s.updateLeadInfoHandler)).Methods(http.MethodPatch)
	authed.HandleFunc("/orders/{id}/contact", s.require(canEdit, s.updateContactHandler)).Methods(http.MethodPatch)
	authed.HandleFunc("/orders/{id}/approval", s.require(canEdit, s.updateApprovalHandler)).Methods(http.MethodPatch)
	authed.HandleFunc("/orders/{id}/art", s.require(canEdit, s.updateArtHandler)).Methods(http.MethodPatch)
	authed.HandleFunc("/orders/{id}/art/bypass", s.require(canEdit, s.bypassArtHandler)).Methods(http.MethodPost)
	authed.HandleFunc("/orders/{id}/prep", s.require(canEdit, s.updatePrepHandler)).Methods(http.MethodPatch)
	authed.HandleFunc("/orders/{id}/fulfillment", s.require(canEdit, s.updateFulfillmentHandler)).Methods(http.MethodPatch)
	authed.HandleFunc("/orders/{id}/invoice", s.require(canEdit, s.updateInvoiceHandler)).Methods(http.MethodPatch)
	authed.HandleFunc("/orders/{id}/closeout", s.require(canEdit, s.updateCloseoutHandler)).Methods(http.MethodPatch)
	authed.HandleFunc("/orders/{id}/archive", s.require(canEdit, s.archiveHandler)).Methods(http.MethodPost)

	admin := authed.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/validation", s.require(canViewReports, s.validationHandler)).Methods(http.MethodGet)
	admin.HandleFunc("/outbox/failed", s.require(canViewReports, s.getFailedMessagesHandler)).Methods(http.MethodGet)
	admin.HandleFunc("/outbox/{id}/retry", s.require(canDelete, s.retryFailedMessageHandler)).Methods(http.MethodPost)
	admin.HandleFunc("/publisher", s.require(canViewReports, s.getPublisherStatusHandler)).Methods(http.MethodGet)
	admin.HandleFunc("/publisher/reset", s.require(canDelete, s.resetPublisherHandler)).Methods(http.MethodPost)

	return r
}
