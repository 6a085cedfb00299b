// Package workflow implements the twelve-stage order lifecycle. Every
// operation takes an order value and returns a new one; inputs are never
// modified.
package workflow

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/vaidashi/apparel-order-pipeline/internal/audit"
	"github.com/vaidashi/apparel-order-pipeline/internal/models"
)

var (
	ErrInvalidOrder  = errors.New("invalid order")
	ErrUnknownStatus = errors.New("unknown status")
	ErrGateNotMet    = errors.New("stage gate not met")
	ErrNotClosed     = errors.New("order is not closed")
)

// Engine applies workflow operations. The zero value is not usable; call
// NewEngine.
type Engine struct {
	now    func() time.Time
	strict bool

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the time source used for timestamps
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithRand overrides the source of order-number digits
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) {
		e.rng = rng
	}
}

// WithStrictGates rejects a single-step forward advance whose gate is unmet.
// Backward moves and skips are still allowed.
func WithStrictGates() Option {
	return func(e *Engine) {
		e.strict = true
	}
}

// NewEngine creates a new Engine
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		now: models.GetCurrentTime,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// StrictGates reports whether gates block forward advances
func (e *Engine) StrictGates() bool {
	return e.strict
}

// OrderFields are the caller-supplied values for a new order
type OrderFields struct {
	Customer      string             `json:"customer"`
	CustomerEmail string             `json:"customerEmail,omitempty"`
	CustomerPhone string             `json:"customerPhone,omitempty"`
	Company       string             `json:"company,omitempty"`
	ProjectName   string             `json:"projectName,omitempty"`
	Status        models.OrderStatus `json:"status,omitempty"`
	ArtStatus     models.ArtStatus   `json:"artStatus,omitempty"`
	DueDate       *time.Time         `json:"dueDate,omitempty"`
	RushOrder     bool               `json:"rushOrder"`
	LeadInfo      *models.LeadInfo   `json:"leadInfo,omitempty"`
	LineItems     []models.LineItem  `json:"lineItems,omitempty"`
}

// Contact is the customer identity block of an order
type Contact struct {
	Customer      string `json:"customer"`
	CustomerEmail string `json:"customerEmail,omitempty"`
	CustomerPhone string `json:"customerPhone,omitempty"`
	Company       string `json:"company,omitempty"`
	ProjectName   string `json:"projectName,omitempty"`
}

// DeadOpportunityResult is the abandoned order plus the optional lead that
// keeps the contact alive
type DeadOpportunityResult struct {
	Dead    models.Order  `json:"dead"`
	NewLead *models.Order `json:"newLead,omitempty"`
}

// CreateOrder builds a new order at fields.Status (Lead when empty)
func (e *Engine) CreateOrder(fields OrderFields, actor models.CurrentUser) (models.Order, error) {
	if strings.TrimSpace(fields.Customer) == "" {
		return models.Order{}, fmt.Errorf("%w: customer name is required", ErrInvalidOrder)
	}

	status := fields.Status
	if status == "" {
		status = models.StatusLead
	}

	if !status.IsValid() {
		return models.Order{}, fmt.Errorf("%w: unknown status %q", ErrInvalidOrder, status)
	}

	artStatus := fields.ArtStatus
	if artStatus == "" {
		artStatus = models.ArtStatusNotStarted
	}

	if !artStatus.IsValid() {
		return models.Order{}, fmt.Errorf("%w: unknown art status %q", ErrInvalidOrder, artStatus)
	}

	now := e.now()

	order := e.newOrder(status, now)
	order.Customer = strings.TrimSpace(fields.Customer)
	order.CustomerEmail = fields.CustomerEmail
	order.CustomerPhone = fields.CustomerPhone
	order.Company = fields.Company
	order.ProjectName = fields.ProjectName
	order.ArtStatus = artStatus
	order.RushOrder = fields.RushOrder
	order.LineItems = models.CloneLineItems(fields.LineItems)
	if order.LineItems == nil {
		order.LineItems = []models.LineItem{}
	}

	if fields.DueDate != nil {
		d := *fields.DueDate
		order.DueDate = &d
	}

	if fields.LeadInfo != nil {
		li := fields.LeadInfo.Clone()
		order.LeadInfo = &li
	} else if status == models.StatusLead {
		order.LeadInfo = &models.LeadInfo{InquiryDate: &now}
	}

	if status == models.StatusClosed {
		order.ClosedAt = &now
		order.ClosedReason = models.ClosedReasonCompleted
	}

	order = audit.AppendEntry(order, models.ActionOrderCreated, models.NoValue(), models.StageValue(status), actor, "", now)
	order.Version = 1

	return order, nil
}

// AdvanceStage moves order to newStatus. History is only written when the
// status actually changes, but the version and UpdatedAt always move.
func (e *Engine) AdvanceStage(order models.Order, newStatus models.OrderStatus, actor models.CurrentUser, notes string) (models.Order, error) {
	if !newStatus.IsValid() {
		return models.Order{}, fmt.Errorf("%w: %q", ErrUnknownStatus, newStatus)
	}

	if e.strict {
		if next, ok := NextStage(order.Status); ok && next == newStatus {
			if gate := Gate(order); !gate.Met {
				return models.Order{}, fmt.Errorf("%w: leaving %s: %s", ErrGateNotMet, order.Status, strings.Join(gate.Unmet, "; "))
			}
		}
	}

	now := e.now()
	oldStatus := order.Status

	out := order.Clone()
	out.Status = newStatus

	if newStatus == models.StatusClosed && oldStatus != models.StatusClosed {
		if out.ClosedAt == nil {
			out.ClosedAt = &now
		}
		if out.ClosedReason == "" {
			out.ClosedReason = models.ClosedReasonCompleted
		}
	}

	if oldStatus == models.StatusClosed && newStatus != models.StatusClosed {
		out.ClosedAt = nil
		out.ClosedReason = ""
		out.ReopenedFrom = ""
	}

	if newStatus != oldStatus {
		out = audit.AppendEntry(out, models.ActionStatusChanged, models.StageValue(oldStatus), models.StageValue(newStatus), actor, notes, now)
	} else {
		out.UpdatedAt = now
	}

	out.Version++
	return out, nil
}

// UpdateLineItems replaces the line items as given. Prices are not
// recomputed.
func (e *Engine) UpdateLineItems(order models.Order, items []models.LineItem, actor models.CurrentUser) models.Order {
	next := models.CloneLineItems(items)
	if next == nil {
		next = []models.LineItem{}
	}

	return e.mutate(order, models.ActionLineItemsUpdated,
		models.SnapshotValue(order.LineItems), models.SnapshotValue(next), actor, "",
		func(o *models.Order, _ time.Time) {
			o.LineItems = next
		})
}

// MoveToDeadOpportunity closes order as a dead opportunity. With
// alsoCreateLead a fresh Lead carrying the same contact is returned too.
func (e *Engine) MoveToDeadOpportunity(order models.Order, actor models.CurrentUser, alsoCreateLead bool) DeadOpportunityResult {
	from := order.Status

	dead := e.mutate(order, models.ActionDeadOpportunity,
		models.StageValue(from), models.StageValue(models.StatusClosed), actor, "",
		func(o *models.Order, now time.Time) {
			o.Status = models.StatusClosed
			o.ClosedAt = &now
			o.ClosedReason = models.ClosedReasonDeadOpportunity
			o.ReopenedFrom = from
		})

	res := DeadOpportunityResult{Dead: dead}

	if !alsoCreateLead {
		return res
	}

	now := e.now()
	backRef := fmt.Sprintf("Created from dead opportunity %s", order.OrderNumber)

	lead := e.newOrder(models.StatusLead, now)
	lead.Customer = order.Customer
	lead.CustomerEmail = order.CustomerEmail
	lead.CustomerPhone = order.CustomerPhone
	lead.Company = order.Company
	lead.LeadInfo = &models.LeadInfo{
		InquiryDate:  &now,
		ContactNotes: backRef,
	}

	lead = audit.AppendEntry(lead, models.ActionCreatedFromDead, models.StringValue(order.OrderNumber), models.StageValue(models.StatusLead), actor, backRef, now)
	lead.Version = 1

	res.NewLead = &lead
	return res
}

// ReopenOrder returns a dead opportunity to the stage it left, and any other
// closed order to Closeout
func (e *Engine) ReopenOrder(order models.Order, actor models.CurrentUser, notes string) (models.Order, error) {
	if order.Status != models.StatusClosed {
		return models.Order{}, fmt.Errorf("%w: %s is %s", ErrNotClosed, order.OrderNumber, order.Status)
	}

	target := models.StatusCloseout
	if order.ClosedReason == models.ClosedReasonDeadOpportunity &&
		order.ReopenedFrom.IsValid() && order.ReopenedFrom != models.StatusClosed {
		target = order.ReopenedFrom
	}

	return e.mutate(order, models.ActionOrderReopened,
		models.StageValue(models.StatusClosed), models.StageValue(target), actor, notes,
		func(o *models.Order, _ time.Time) {
			o.Status = target
			o.ClosedAt = nil
			o.ClosedReason = ""
			o.ReopenedFrom = ""
		}), nil
}

// UpdateLeadInfo replaces the lead info
func (e *Engine) UpdateLeadInfo(order models.Order, info models.LeadInfo, actor models.CurrentUser) models.Order {
	prev := models.NoValue()
	if order.LeadInfo != nil {
		prev = models.SnapshotValue(order.LeadInfo)
	}

	next := info.Clone()

	return e.mutate(order, models.ActionLeadInfoUpdated, prev, models.SnapshotValue(next), actor, "",
		func(o *models.Order, _ time.Time) {
			o.LeadInfo = &next
		})
}

// UpdateContact replaces the customer identity. The customer name may not
// be blank.
func (e *Engine) UpdateContact(order models.Order, c Contact, actor models.CurrentUser) (models.Order, error) {
	c.Customer = strings.TrimSpace(c.Customer)

	if c.Customer == "" {
		return models.Order{}, fmt.Errorf("%w: customer name is required", ErrInvalidOrder)
	}

	prev := Contact{
		Customer:      order.Customer,
		CustomerEmail: order.CustomerEmail,
		CustomerPhone: order.CustomerPhone,
		Company:       order.Company,
		ProjectName:   order.ProjectName,
	}

	return e.mutate(order, models.ActionContactUpdated, models.SnapshotValue(prev), models.SnapshotValue(c), actor, "",
		func(o *models.Order, _ time.Time) {
			o.Customer = c.Customer
			o.CustomerEmail = c.CustomerEmail
			o.CustomerPhone = c.CustomerPhone
			o.Company = c.Company
			o.ProjectName = c.ProjectName
		}), nil
}

// SetCustomerApproval records or withdraws the customer's approval
func (e *Engine) SetCustomerApproval(order models.Order, approved bool, actor models.CurrentUser, notes string) models.Order {
	return e.mutate(order, models.ActionCustomerApproval,
		models.BoolValue(order.CustomerApproved), models.BoolValue(approved), actor, notes,
		func(o *models.Order, now time.Time) {
			o.CustomerApproved = approved
			if approved {
				o.CustomerApprovedAt = &now
			} else {
				o.CustomerApprovedAt = nil
			}
		})
}

type artState struct {
	ArtStatus       models.ArtStatus       `json:"artStatus"`
	ArtConfirmation models.ArtConfirmation `json:"artConfirmation"`
}

// UpdateArtConfirmation replaces the proof record and art status. Moving to
// Approved stamps the approval when it is not already set.
func (e *Engine) UpdateArtConfirmation(
	order models.Order,
	art models.ArtConfirmation,
	status models.ArtStatus,
	actor models.CurrentUser,
) (models.Order, error) {
	if !status.IsValid() {
		return models.Order{}, fmt.Errorf("%w: unknown art status %q", ErrInvalidOrder, status)
	}

	next := art.Clone()
	prev := artState{ArtStatus: order.ArtStatus, ArtConfirmation: order.ArtConfirmation}

	return e.mutate(order, models.ActionArtUpdated,
		models.SnapshotValue(prev), models.NoValue(), actor, "",
		func(o *models.Order, now time.Time) {
			if status == models.ArtStatusApproved && next.ApprovedAt == nil {
				next.ApprovedAt = &now
				next.ApprovedBy = actor.DisplayName
			}
			o.ArtStatus = status
			o.ArtConfirmation = next
		},
		withSnapshotAfter(func(o models.Order) models.AuditValue {
			return models.SnapshotValue(artState{ArtStatus: o.ArtStatus, ArtConfirmation: o.ArtConfirmation})
		})), nil
}

// BypassArt skips art confirmation, for repeat jobs or customer-supplied
// print-ready art
func (e *Engine) BypassArt(order models.Order, reason string, actor models.CurrentUser) models.Order {
	return e.mutate(order, models.ActionArtBypassed,
		models.StringValue(string(order.ArtStatus)), models.StringValue(string(models.ArtStatusBypassed)), actor, reason,
		func(o *models.Order, _ time.Time) {
			o.ArtStatus = models.ArtStatusBypassed
			o.ArtConfirmation.Bypassed = true
			o.ArtConfirmation.BypassReason = reason
		})
}

// UpdatePrepStatus replaces the prep checklist
func (e *Engine) UpdatePrepStatus(order models.Order, prep models.PrepStatus, actor models.CurrentUser) models.Order {
	return e.mutate(order, models.ActionPrepUpdated,
		models.SnapshotValue(order.PrepStatus), models.SnapshotValue(prep), actor, "",
		func(o *models.Order, _ time.Time) {
			o.PrepStatus = prep
		})
}

// ProgressStep is one of the per-line-item production milestones
type ProgressStep string

const (
	StepOrdered   ProgressStep = "ordered"
	StepReceived  ProgressStep = "received"
	StepDecorated ProgressStep = "decorated"
	StepPacked    ProgressStep = "packed"
)

// SetLineItemProgress sets one milestone on the named items, or on every
// item when itemNumbers is empty. Setting stamps the matching timestamp and
// clearing removes it.
func (e *Engine) SetLineItemProgress(
	order models.Order,
	itemNumbers []string,
	step ProgressStep,
	done bool,
	actor models.CurrentUser,
) (models.Order, error) {
	switch step {
	case StepOrdered, StepReceived, StepDecorated, StepPacked:
	default:
		return models.Order{}, fmt.Errorf("%w: unknown progress step %q", ErrInvalidOrder, step)
	}

	want := make(map[string]bool, len(itemNumbers))
	for _, n := range itemNumbers {
		want[n] = false
	}

	for _, li := range order.LineItems {
		if _, ok := want[li.ItemNumber]; ok {
			want[li.ItemNumber] = true
		}
	}

	for _, n := range itemNumbers {
		if !want[n] {
			return models.Order{}, fmt.Errorf("%w: no line item %q", ErrInvalidOrder, n)
		}
	}

	notes := fmt.Sprintf("%s=%t", step, done)

	return e.mutate(order, models.ActionLineItemProgress,
		models.SnapshotValue(order.LineItems), models.NoValue(), actor, notes,
		func(o *models.Order, now time.Time) {
			for i := range o.LineItems {
				if len(itemNumbers) > 0 {
					if _, ok := want[o.LineItems[i].ItemNumber]; !ok {
						continue
					}
				}
				setProgress(&o.LineItems[i], step, done, now)
			}
		},
		withSnapshotAfter(func(o models.Order) models.AuditValue {
			return models.SnapshotValue(o.LineItems)
		})), nil
}

func setProgress(li *models.LineItem, step ProgressStep, done bool, now time.Time) {
	var stamp *time.Time
	if done {
		stamp = &now
	}

	switch step {
	case StepOrdered:
		li.Ordered, li.OrderedAt = done, stamp
	case StepReceived:
		li.Received, li.ReceivedAt = done, stamp
	case StepDecorated:
		li.Decorated, li.DecoratedAt = done, stamp
	case StepPacked:
		li.Packed, li.PackedAt = done, stamp
	}
}

// UpdateFulfillment replaces the fulfillment record. CompletedAt is stamped
// once a method is set and the goods are labelled or picked up.
func (e *Engine) UpdateFulfillment(order models.Order, f models.Fulfillment, actor models.CurrentUser) (models.Order, error) {
	switch f.Method {
	case "", models.FulfillmentShip, models.FulfillmentPickup, models.FulfillmentDelivery:
	default:
		return models.Order{}, fmt.Errorf("%w: unknown fulfillment method %q", ErrInvalidOrder, f.Method)
	}

	next := f.Clone()

	return e.mutate(order, models.ActionFulfillmentUpdated,
		models.SnapshotValue(order.Fulfillment), models.NoValue(), actor, "",
		func(o *models.Order, now time.Time) {
			complete := next.Method != "" && (next.ShippingLabelPrinted || next.CustomerPickedUp)
			if complete && next.CompletedAt == nil {
				next.CompletedAt = &now
			}
			if !complete {
				next.CompletedAt = nil
			}
			o.Fulfillment = next
		},
		withSnapshotAfter(func(o models.Order) models.AuditValue {
			return models.SnapshotValue(o.Fulfillment)
		})), nil
}

// UpdateInvoiceStatus replaces the invoice flags. SentAt is stamped the first
// time the invoice is marked sent.
func (e *Engine) UpdateInvoiceStatus(order models.Order, inv models.InvoiceStatus, actor models.CurrentUser) models.Order {
	next := inv.Clone()

	return e.mutate(order, models.ActionInvoiceUpdated,
		models.SnapshotValue(order.InvoiceStatus), models.NoValue(), actor, "",
		func(o *models.Order, now time.Time) {
			if next.InvoiceSent && next.SentAt == nil {
				next.SentAt = &now
			}
			if !next.InvoiceSent {
				next.SentAt = nil
			}
			o.InvoiceStatus = next
		},
		withSnapshotAfter(func(o models.Order) models.AuditValue {
			return models.SnapshotValue(o.InvoiceStatus)
		}))
}

// UpdateCloseoutChecklist replaces the closeout checklist
func (e *Engine) UpdateCloseoutChecklist(order models.Order, c models.CloseoutChecklist, actor models.CurrentUser) models.Order {
	return e.mutate(order, models.ActionCloseoutUpdated,
		models.SnapshotValue(order.CloseoutChecklist), models.SnapshotValue(c), actor, "",
		func(o *models.Order, _ time.Time) {
			o.CloseoutChecklist = c
		})
}

// SetArchived hides or restores the order on the stage board
func (e *Engine) SetArchived(order models.Order, archived bool, actor models.CurrentUser) models.Order {
	action := models.ActionArchived
	if !archived {
		action = models.ActionUnarchived
	}

	return e.mutate(order, action, models.BoolValue(order.IsArchived), models.BoolValue(archived), actor, "",
		func(o *models.Order, _ time.Time) {
			o.IsArchived = archived
		})
}

type mutateOptions struct {
	after func(models.Order) models.AuditValue
}

type mutateOption func(*mutateOptions)

// withSnapshotAfter computes the history's new value from the mutated order,
// for operations that stamp timestamps while applying
func withSnapshotAfter(f func(models.Order) models.AuditValue) mutateOption {
	return func(m *mutateOptions) {
		m.after = f
	}
}

// mutate clones order, applies fn, appends one history entry and bumps the
// version
func (e *Engine) mutate(
	order models.Order,
	action string,
	prev, next models.AuditValue,
	actor models.CurrentUser,
	notes string,
	fn func(o *models.Order, now time.Time),
	opts ...mutateOption,
) models.Order {
	var mo mutateOptions
	for _, opt := range opts {
		opt(&mo)
	}

	now := e.now()

	out := order.Clone()
	fn(&out, now)

	if mo.after != nil {
		next = mo.after(out)
	}

	out = audit.AppendEntry(out, action, prev, next, actor, notes, now)
	out.Version++

	return out
}

func (e *Engine) newOrder(status models.OrderStatus, now time.Time) models.Order {
	prefix := models.OrderNumberPrefix
	if status == models.StatusLead {
		prefix = models.LeadNumberPrefix
	}

	e.mu.Lock()
	number := models.RandomOrderNumber(prefix, now, e.rng)
	e.mu.Unlock()

	return models.Order{
		ID:          models.GenerateID("ord"),
		OrderNumber: number,
		Status:      status,
		ArtStatus:   models.ArtStatusNotStarted,
		CreatedAt:   now,
		UpdatedAt:   now,
		ArtConfirmation: models.ArtConfirmation{
			Placements: []models.ArtPlacement{},
		},
		LineItems: []models.LineItem{},
		History:   []models.StatusChangeLog{},
	}
}
