package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/vaidashi/apparel-order-pipeline/internal/audit"
	"github.com/vaidashi/apparel-order-pipeline/internal/models"
	"github.com/vaidashi/apparel-order-pipeline/internal/pricing"
	"github.com/vaidashi/apparel-order-pipeline/internal/repository"
	"github.com/vaidashi/apparel-order-pipeline/internal/validation"
	"github.com/vaidashi/apparel-order-pipeline/internal/workflow"
	"github.com/vaidashi/apparel-order-pipeline/pkg/logger"
)

// ErrOrderNotFound is returned for ids that are not in the collection
var ErrOrderNotFound = errors.New("order not found")

// OrderService owns the shared order collection. Mutations are serialized;
// each one is persisted together with its outbox event before the new
// collection replaces the old one, so readers never see unsaved state.
type OrderService struct {
	engine     *workflow.Engine
	orderRepo  *repository.OrderRepository
	outboxRepo *repository.OutboxRepository
	logger     logger.Logger

	mu     sync.RWMutex
	orders workflow.Collection
}

// NewOrderService creates a new OrderService with an empty collection
func NewOrderService(
	engine *workflow.Engine,
	orderRepo *repository.OrderRepository,
	outboxRepo *repository.OutboxRepository,
	logger logger.Logger,
) *OrderService {
	return &OrderService{
		engine:     engine,
		orderRepo:  orderRepo,
		outboxRepo: outboxRepo,
		logger:     logger,
		orders:     workflow.NewCollection(nil),
	}
}

// Load replaces the in-memory collection with what is persisted
func (s *OrderService) Load(ctx context.Context) error {
	orders, err := s.orderRepo.LoadAll(ctx)

	if err != nil {
		return fmt.Errorf("failed to load orders: %w", err)
	}

	s.mu.Lock()
	s.orders = workflow.NewCollection(orders)
	s.mu.Unlock()

	s.logger.Info("Order collection loaded", "count", len(orders))
	return nil
}

// StrictGates reports whether unmet gates block forward moves
func (s *OrderService) StrictGates() bool {
	return s.engine.StrictGates()
}

// List returns orders in creation order; archived ones only on request
func (s *OrderService) List(includeArchived bool) []models.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if includeArchived {
		return s.orders.All()
	}
	return s.orders.Active()
}

// Board returns the kanban view
func (s *OrderService) Board() []workflow.BoardColumn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.orders.Board()
}

// Get returns one order
func (s *OrderService) Get(id string) (models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders.Get(id)

	if !ok {
		return models.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}

	return order, nil
}

// Gate evaluates the gate to leave the order's current stage
func (s *OrderService) Gate(id string) (workflow.GateResult, error) {
	order, err := s.Get(id)

	if err != nil {
		return workflow.GateResult{}, err
	}

	return workflow.Gate(order), nil
}

// Validate runs the consistency report over every order
func (s *OrderService) Validate() validation.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return validation.ValidateOrders(s.orders.All())
}

// PriceBreakdown prices one line item without touching any order
func (s *OrderService) PriceBreakdown(item models.LineItem) pricing.Breakdown {
	return pricing.PriceBreakdown(pricing.AttributesOf(item))
}

// CreateOrder creates a new order and records an order_created event
func (s *OrderService) CreateOrder(ctx context.Context, fields workflow.OrderFields, actor models.CurrentUser) (models.Order, error) {
	order, err := s.engine.CreateOrder(fields, actor)

	if err != nil {
		return models.Order{}, err
	}

	outboxMsg, err := models.NewOrderCreatedEvent(order)

	if err != nil {
		return models.Order{}, fmt.Errorf("failed to create outbox message: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.orderRepo.CreateInTx(tx, order); err != nil {
			return err
		}
		return s.outboxRepo.CreateInTx(tx, outboxMsg)
	})

	if err != nil {
		return models.Order{}, err
	}

	s.orders = s.orders.Add(order)

	s.logger.Info("Order created",
		"orderID", order.ID,
		"orderNumber", order.OrderNumber,
		"status", order.Status,
		"by", actor.ID)

	return order, nil
}

// AdvanceStage moves an order to newStatus. Asking for the stage the order
// is already at changes nothing.
func (s *OrderService) AdvanceStage(
	ctx context.Context,
	id string,
	newStatus models.OrderStatus,
	actor models.CurrentUser,
	notes string,
) (models.Order, error) {
	var oldStatus models.OrderStatus

	return s.update(ctx, id,
		func(current models.Order) (models.Order, error) {
			oldStatus = current.Status
			if current.Status == newStatus {
				return current, errUnchanged
			}
			return s.engine.AdvanceStage(current, newStatus, actor, notes)
		},
		func(next models.Order) (*models.OutboxMessage, error) {
			return models.NewOrderStatusChangedEvent(next, oldStatus, actor)
		})
}

// UpdateLineItems replaces an order's line items, repricing them first when
// reprice is set
func (s *OrderService) UpdateLineItems(
	ctx context.Context,
	id string,
	items []models.LineItem,
	reprice bool,
	actor models.CurrentUser,
) (models.Order, error) {
	if reprice {
		items = pricing.ApplyPrices(items)
	}

	return s.updateSimple(ctx, id, models.ActionLineItemsUpdated, func(current models.Order) (models.Order, error) {
		return s.engine.UpdateLineItems(current, items, actor), nil
	})
}

// SetLineItemProgress sets one production milestone on some or all items
func (s *OrderService) SetLineItemProgress(
	ctx context.Context,
	id string,
	itemNumbers []string,
	step workflow.ProgressStep,
	done bool,
	actor models.CurrentUser,
) (models.Order, error) {
	return s.updateSimple(ctx, id, models.ActionLineItemProgress, func(current models.Order) (models.Order, error) {
		return s.engine.SetLineItemProgress(current, itemNumbers, step, done, actor)
	})
}

// UpdateLeadInfo replaces the lead info
func (s *OrderService) UpdateLeadInfo(ctx context.Context, id string, info models.LeadInfo, actor models.CurrentUser) (models.Order, error) {
	return s.updateSimple(ctx, id, models.ActionLeadInfoUpdated, func(current models.Order) (models.Order, error) {
		return s.engine.UpdateLeadInfo(current, info, actor), nil
	})
}

// UpdateContact replaces the customer identity block
func (s *OrderService) UpdateContact(ctx context.Context, id string, c workflow.Contact, actor models.CurrentUser) (models.Order, error) {
	return s.updateSimple(ctx, id, models.ActionContactUpdated, func(current models.Order) (models.Order, error) {
		return s.engine.UpdateContact(current, c, actor)
	})
}

// SetCustomerApproval records the customer's sign-off
func (s *OrderService) SetCustomerApproval(
	ctx context.Context,
	id string,
	approved bool,
	actor models.CurrentUser,
	notes string,
) (models.Order, error) {
	return s.updateSimple(ctx, id, models.ActionCustomerApproval, func(current models.Order) (models.Order, error) {
		return s.engine.SetCustomerApproval(current, approved, actor, notes), nil
	})
}

// UpdateArtConfirmation replaces the proof record and art status
func (s *OrderService) UpdateArtConfirmation(
	ctx context.Context,
	id string,
	art models.ArtConfirmation,
	status models.ArtStatus,
	actor models.CurrentUser,
) (models.Order, error) {
	return s.updateSimple(ctx, id, models.ActionArtUpdated, func(current models.Order) (models.Order, error) {
		return s.engine.UpdateArtConfirmation(current, art, status, actor)
	})
}

// BypassArt skips art confirmation
func (s *OrderService) BypassArt(ctx context.Context, id, reason string, actor models.CurrentUser) (models.Order, error) {
	return s.updateSimple(ctx, id, models.ActionArtBypassed, func(current models.Order) (models.Order, error) {
		return s.engine.BypassArt(current, reason, actor), nil
	})
}

// UpdatePrepStatus replaces the prep checklist
func (s *OrderService) UpdatePrepStatus(ctx context.Context, id string, prep models.PrepStatus, actor models.CurrentUser) (models.Order, error) {
	return s.updateSimple(ctx, id, models.ActionPrepUpdated, func(current models.Order) (models.Order, error) {
		return s.engine.UpdatePrepStatus(current, prep, actor), nil
	})
}

// UpdateFulfillment replaces the fulfillment record
func (s *OrderService) UpdateFulfillment(ctx context.Context, id string, f models.Fulfillment, actor models.CurrentUser) (models.Order, error) {
	return s.updateSimple(ctx, id, models.ActionFulfillmentUpdated, func(current models.Order) (models.Order, error) {
		return s.engine.UpdateFulfillment(current, f, actor)
	})
}

// UpdateInvoiceStatus replaces the invoice flags
func (s *OrderService) UpdateInvoiceStatus(ctx context.Context, id string, inv models.InvoiceStatus, actor models.CurrentUser) (models.Order, error) {
	return s.updateSimple(ctx, id, models.ActionInvoiceUpdated, func(current models.Order) (models.Order, error) {
		return s.engine.UpdateInvoiceStatus(current, inv, actor), nil
	})
}

// UpdateCloseoutChecklist replaces the closeout checklist
func (s *OrderService) UpdateCloseoutChecklist(
	ctx context.Context,
	id string,
	c models.CloseoutChecklist,
	actor models.CurrentUser,
) (models.Order, error) {
	return s.updateSimple(ctx, id, models.ActionCloseoutUpdated, func(current models.Order) (models.Order, error) {
		return s.engine.UpdateCloseoutChecklist(current, c, actor), nil
	})
}

// SetArchived hides or restores an order on the board
func (s *OrderService) SetArchived(ctx context.Context, id string, archived bool, actor models.CurrentUser) (models.Order, error) {
	action := models.ActionArchived
	if !archived {
		action = models.ActionUnarchived
	}

	return s.updateSimple(ctx, id, action, func(current models.Order) (models.Order, error) {
		return s.engine.SetArchived(current, archived, actor), nil
	})
}

// ReopenOrder returns a closed order to work
func (s *OrderService) ReopenOrder(ctx context.Context, id string, actor models.CurrentUser, notes string) (models.Order, error) {
	return s.update(ctx, id,
		func(current models.Order) (models.Order, error) {
			return s.engine.ReopenOrder(current, actor, notes)
		},
		func(next models.Order) (*models.OutboxMessage, error) {
			return models.NewOrderStatusChangedEvent(next, models.StatusClosed, actor)
		})
}

// MoveToDeadOpportunity closes an order as dead and optionally opens a new
// lead for the same customer. Both are saved in one transaction.
func (s *OrderService) MoveToDeadOpportunity(
	ctx context.Context,
	id string,
	alsoCreateLead bool,
	actor models.CurrentUser,
) (workflow.DeadOpportunityResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.orders.Get(id)

	if !ok {
		return workflow.DeadOpportunityResult{}, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}

	res := s.engine.MoveToDeadOpportunity(current, actor, alsoCreateLead)

	if err := audit.VerifyAppendOnly(current.History, res.Dead.History); err != nil {
		return workflow.DeadOpportunityResult{}, err
	}

	deadMsg, err := models.NewDeadOpportunityEvent(res.Dead, res.NewLead)

	if err != nil {
		return workflow.DeadOpportunityResult{}, fmt.Errorf("failed to create outbox message: %w", err)
	}

	var leadMsg *models.OutboxMessage
	if res.NewLead != nil {
		if leadMsg, err = models.NewOrderCreatedEvent(*res.NewLead); err != nil {
			return workflow.DeadOpportunityResult{}, fmt.Errorf("failed to create outbox message: %w", err)
		}
	}

	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.orderRepo.UpdateInTx(tx, res.Dead); err != nil {
			return err
		}
		if err := s.outboxRepo.CreateInTx(tx, deadMsg); err != nil {
			return err
		}
		if res.NewLead == nil {
			return nil
		}
		if err := s.orderRepo.CreateInTx(tx, *res.NewLead); err != nil {
			return err
		}
		return s.outboxRepo.CreateInTx(tx, leadMsg)
	})

	if err != nil {
		return workflow.DeadOpportunityResult{}, err
	}

	next := s.orders.Upsert(res.Dead)
	if res.NewLead != nil {
		next = next.Add(*res.NewLead)
	}
	s.orders = next

	s.logger.Info("Order moved to dead opportunity",
		"orderID", res.Dead.ID,
		"from", res.Dead.ReopenedFrom,
		"newLead", res.NewLead != nil,
		"by", actor.ID)

	return res, nil
}

// DeleteOrders removes orders permanently and returns the ids that existed.
// Unknown ids are ignored.
func (s *OrderService) DeleteOrders(ctx context.Context, ids []string, actor models.CurrentUser) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, removed := s.orders.Delete(ids)

	if len(removed) == 0 {
		return removed, nil
	}

	outboxMsg, err := models.NewOrdersDeletedEvent(removed, actor)

	if err != nil {
		return nil, fmt.Errorf("failed to create outbox message: %w", err)
	}

	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.orderRepo.DeleteInTx(tx, removed); err != nil {
			return err
		}
		return s.outboxRepo.CreateInTx(tx, outboxMsg)
	})

	if err != nil {
		return nil, err
	}

	s.orders = next

	s.logger.Warn("Orders deleted", "count", len(removed), "ids", removed, "by", actor.ID)
	return removed, nil
}

var errUnchanged = errors.New("order unchanged")

// updateSimple is update with an order_updated event named by action
func (s *OrderService) updateSimple(
	ctx context.Context,
	id, action string,
	op func(models.Order) (models.Order, error),
) (models.Order, error) {
	return s.update(ctx, id, op, func(next models.Order) (*models.OutboxMessage, error) {
		return models.NewOrderUpdatedEvent(next, action)
	})
}

// update applies op to one order under the write lock, checks that history
// was only appended to, persists the order and its event atomically and
// then swaps the collection
func (s *OrderService) update(
	ctx context.Context,
	id string,
	op func(models.Order) (models.Order, error),
	event func(models.Order) (*models.OutboxMessage, error),
) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.orders.Get(id)

	if !ok {
		return models.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}

	next, err := op(current)

	if errors.Is(err, errUnchanged) {
		return current, nil
	}

	if err != nil {
		return models.Order{}, err
	}

	if err := audit.VerifyAppendOnly(current.History, next.History); err != nil {
		s.logger.Error("Refusing to save order with rewritten history", "error", err, "orderID", id)
		return models.Order{}, err
	}

	outboxMsg, err := event(next)

	if err != nil {
		return models.Order{}, fmt.Errorf("failed to create outbox message: %w", err)
	}

	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.orderRepo.UpdateInTx(tx, next); err != nil {
			return err
		}
		return s.outboxRepo.CreateInTx(tx, outboxMsg)
	})

	if err != nil {
		return models.Order{}, err
	}

	s.orders = s.orders.Upsert(next)

	s.logger.Debug("Order updated",
		"orderID", next.ID,
		"eventType", outboxMsg.EventType,
		"version", next.Version)

	return next, nil
}

// inTx runs fn in a transaction, rolling back on any error
func (s *OrderService) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.orderRepo.BeginTx(ctx)

	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				s.logger.Error("Failed to rollback transaction", "error", rollbackErr)
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		s.logger.Error("Failed to commit transaction", "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
