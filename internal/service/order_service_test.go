package service

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/apparel-order-pipeline/internal/config"
	"github.com/vaidashi/apparel-order-pipeline/internal/database"
	"github.com/vaidashi/apparel-order-pipeline/internal/models"
	"github.com/vaidashi/apparel-order-pipeline/internal/repository"
	"github.com/vaidashi/apparel-order-pipeline/internal/workflow"
	"github.com/vaidashi/apparel-order-pipeline/pkg/logger"
)

var staff = models.CurrentUser{ID: "u-7", DisplayName: "Sam", Role: models.RoleStaff}

type fixture struct {
	svc    *OrderService
	db     *database.Database
	orders *repository.OrderRepository
	outbox *repository.OutboxRepository
	clock  *time.Time
}

func newFixture(t *testing.T, opts ...workflow.Option) *fixture {
	t.Helper()

	db, err := database.Open(config.DriverSQLite, ":memory:", logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.RunMigrations())

	now := time.Date(2026, 10, 15, 8, 30, 0, 0, time.UTC)
	clock := &now

	opts = append([]workflow.Option{
		workflow.WithClock(func() time.Time { return *clock }),
		workflow.WithRand(rand.New(rand.NewSource(7))),
	}, opts...)

	orders := repository.NewOrderRepository(db, logger.NewNop())
	outbox := repository.NewOutboxRepository(db, logger.NewNop())

	return &fixture{
		svc:    NewOrderService(workflow.NewEngine(opts...), orders, outbox, logger.NewNop()),
		db:     db,
		orders: orders,
		outbox: outbox,
		clock:  clock,
	}
}

func (f *fixture) createLead(t *testing.T) models.Order {
	t.Helper()

	order, err := f.svc.CreateOrder(context.Background(), workflow.OrderFields{
		Customer:      "Riverside Rowing Club",
		CustomerEmail: "coach@riverside.example",
	}, staff)
	require.NoError(t, err)

	return order
}

func (f *fixture) pendingEvents(t *testing.T) []string {
	t.Helper()

	msgs, err := f.outbox.GetPendingMessages(context.Background(), 100)
	require.NoError(t, err)

	types := make([]string, 0, len(msgs))
	for _, m := range msgs {
		types = append(types, m.EventType)
	}
	return types
}

func TestCreateAndAdvancePersists(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	order := f.createLead(t)

	gate, err := f.svc.Gate(order.ID)
	require.NoError(t, err)
	assert.True(t, gate.Met)

	advanced, err := f.svc.AdvanceStage(ctx, order.ID, models.StatusQuote, staff, "called back")
	require.NoError(t, err)
	assert.Equal(t, models.StatusQuote, advanced.Status)
	assert.Equal(t, 2, advanced.Version)
	require.Len(t, advanced.History, 2)

	stored, err := f.orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusQuote, stored.Status)
	assert.Equal(t, 2, stored.Version)

	assert.Equal(t, []string{models.EventOrderCreated, models.EventOrderStatusChanged}, f.pendingEvents(t))

	reloaded := NewOrderService(workflow.NewEngine(), f.orders, f.outbox, logger.NewNop())
	require.NoError(t, reloaded.Load(ctx))

	got, err := reloaded.Get(order.ID)
	require.NoError(t, err)
	assert.Equal(t, advanced.Version, got.Version)
	assert.Len(t, got.History, 2)
}

func TestAdvanceToSameStageIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order := f.createLead(t)

	same, err := f.svc.AdvanceStage(ctx, order.ID, models.StatusLead, staff, "")
	require.NoError(t, err)
	assert.Equal(t, order.Version, same.Version)
	assert.Equal(t, []string{models.EventOrderCreated}, f.pendingEvents(t))
}

func TestStrictGatesBlockForwardMove(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, workflow.WithStrictGates())
	assert.True(t, f.svc.StrictGates())

	order := f.createLead(t)
	_, err := f.svc.AdvanceStage(ctx, order.ID, models.StatusQuote, staff, "")
	require.NoError(t, err)

	_, err = f.svc.AdvanceStage(ctx, order.ID, models.StatusApproval, staff, "")
	assert.ErrorIs(t, err, workflow.ErrGateNotMet)

	got, err := f.svc.Get(order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusQuote, got.Status, "failed move leaves the collection untouched")

	_, err = f.svc.UpdateLineItems(ctx, order.ID, []models.LineItem{
		{ItemNumber: "G500", Name: "Heavy tee", Qty: 24, DecorationType: models.DecorationScreenPrint, Cost: 4},
	}, true, staff)
	require.NoError(t, err)

	moved, err := f.svc.AdvanceStage(ctx, order.ID, models.StatusApproval, staff, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproval, moved.Status)
	assert.Equal(t, 11.0, moved.LineItems[0].Price)
}

func TestSupplementedOperationsReachCloseout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, workflow.WithStrictGates())
	id := f.createLead(t).ID

	step := func(o models.Order, err error) models.Order {
		t.Helper()
		require.NoError(t, err)
		return o
	}
	advance := func(to models.OrderStatus) {
		t.Helper()
		step(f.svc.AdvanceStage(ctx, id, to, staff, ""))
	}

	advance(models.StatusQuote)
	step(f.svc.UpdateLineItems(ctx, id, []models.LineItem{
		{ItemNumber: "G500", Name: "Heavy tee", Qty: 24, DecorationType: models.DecorationDTF, Cost: 4},
	}, true, staff))
	advance(models.StatusApproval)
	step(f.svc.SetCustomerApproval(ctx, id, true, staff, "signed"))
	advance(models.StatusArtConfirmation)
	step(f.svc.BypassArt(ctx, id, "repeat job", staff))
	advance(models.StatusInventoryOrder)
	step(f.svc.SetLineItemProgress(ctx, id, nil, workflow.StepOrdered, true, staff))
	advance(models.StatusProductionPrep)
	step(f.svc.UpdatePrepStatus(ctx, id, models.PrepStatus{GangSheetCreated: true}, staff))
	advance(models.StatusInventoryReceived)
	step(f.svc.SetLineItemProgress(ctx, id, []string{"G500"}, workflow.StepReceived, true, staff))
	advance(models.StatusProduction)
	step(f.svc.SetLineItemProgress(ctx, id, nil, workflow.StepDecorated, true, staff))
	step(f.svc.SetLineItemProgress(ctx, id, nil, workflow.StepPacked, true, staff))
	advance(models.StatusFulfillment)
	step(f.svc.UpdateFulfillment(ctx, id, models.Fulfillment{Method: models.FulfillmentPickup, CustomerPickedUp: true}, staff))
	advance(models.StatusInvoice)
	step(f.svc.UpdateInvoiceStatus(ctx, id, models.InvoiceStatus{InvoiceCreated: true, InvoiceSent: true}, staff))
	advance(models.StatusCloseout)
	step(f.svc.UpdateCloseoutChecklist(ctx, id, models.CloseoutChecklist{FilesSaved: true, CanvaArchived: true, SummaryUploaded: true}, staff))
	advance(models.StatusClosed)

	closed, err := f.svc.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.ClosedReasonCompleted, closed.ClosedReason)
	assert.NotNil(t, closed.ClosedAt)

	report := f.svc.Validate()
	assert.True(t, report.Valid)
	assert.Empty(t, report.Warnings)

	reopened, err := f.svc.ReopenOrder(ctx, id, staff, "customer wants more")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCloseout, reopened.Status)
	assert.Nil(t, reopened.ClosedAt)

	stored, err := f.orders.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, reopened.Version, stored.Version)
	assert.Len(t, stored.History, len(reopened.History))
}

func TestMoveToDeadOpportunityWithLead(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order := f.createLead(t)

	res, err := f.svc.MoveToDeadOpportunity(ctx, order.ID, true, staff)
	require.NoError(t, err)
	require.NotNil(t, res.NewLead)

	assert.Equal(t, models.StatusClosed, res.Dead.Status)
	assert.Equal(t, models.ClosedReasonDeadOpportunity, res.Dead.ClosedReason)
	assert.Equal(t, models.StatusLead, res.NewLead.Status)

	assert.Len(t, f.svc.List(false), 2)

	count, err := f.orders.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	assert.Equal(t, []string{
		models.EventOrderCreated,
		models.EventOrderDeadOpportunity,
		models.EventOrderCreated,
	}, f.pendingEvents(t))
}

func TestDeleteOrders(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.createLead(t)
	b := f.createLead(t)

	removed, err := f.svc.DeleteOrders(ctx, []string{a.ID, "ord-missing"}, staff)
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, removed)

	_, err = f.svc.Get(a.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)
	_, err = f.svc.Get(b.ID)
	assert.NoError(t, err)

	count, err := f.orders.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	removed, err = f.svc.DeleteOrders(ctx, []string{"ord-missing"}, staff)
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestArchiveHidesFromBoard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order := f.createLead(t)

	_, err := f.svc.SetArchived(ctx, order.ID, true, staff)
	require.NoError(t, err)

	assert.Empty(t, f.svc.List(false))
	assert.Len(t, f.svc.List(true), 1)
	for _, col := range f.svc.Board() {
		assert.Empty(t, col.Orders)
	}
}

func TestVersionConflictKeepsCollection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order := f.createLead(t)

	// another writer saves version 2 behind the service's back
	other := order.Clone()
	other.Version = 2
	tx, err := f.orders.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, f.orders.UpdateInTx(tx, other))
	require.NoError(t, tx.Commit())

	_, err = f.svc.UpdateContact(ctx, order.ID, workflow.Contact{Customer: "Riverside RC", CustomerEmail: "a@b.example"}, staff)
	assert.ErrorIs(t, err, repository.ErrVersionConflict)

	got, err := f.svc.Get(order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.Version, got.Version)
	assert.Equal(t, []string{models.EventOrderCreated}, f.pendingEvents(t), "rolled back with the order")
}

func TestUnknownOrder(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.UpdatePrepStatus(context.Background(), "ord-nope", models.PrepStatus{}, staff)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = f.svc.Gate("ord-nope")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestPriceBreakdown(t *testing.T) {
	f := newFixture(t)

	b := f.svc.PriceBreakdown(models.LineItem{DecorationType: models.DecorationEmbroidery, StitchCountTier: models.StitchTierOver12k, Cost: 5})
	assert.Equal(t, 30.0, b.Total)
}
