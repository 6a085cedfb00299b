package models

import (
	"time"
)

// Order is the aggregate root of the pipeline. Values are treated as
// immutable: every mutation produces a new Order via Clone.
type Order struct {
	ID            string `json:"id"`
	OrderNumber   string `json:"orderNumber"`
	Customer      string `json:"customer"`
	CustomerEmail string `json:"customerEmail,omitempty"`
	CustomerPhone string `json:"customerPhone,omitempty"`
	Company       string `json:"company,omitempty"`
	ProjectName   string `json:"projectName,omitempty"`

	Status    OrderStatus `json:"status"`
	ArtStatus ArtStatus   `json:"artStatus"`
	DueDate   *time.Time  `json:"dueDate,omitempty"`
	RushOrder bool        `json:"rushOrder"`

	Version    int       `json:"version"`
	IsArchived bool      `json:"isArchived"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`

	ClosedAt     *time.Time   `json:"closedAt,omitempty"`
	ClosedReason ClosedReason `json:"closedReason,omitempty"`
	ReopenedFrom OrderStatus  `json:"reopenedFrom,omitempty"`

	CustomerApproved   bool       `json:"customerApproved"`
	CustomerApprovedAt *time.Time `json:"customerApprovedAt,omitempty"`

	LeadInfo          *LeadInfo         `json:"leadInfo,omitempty"`
	PrepStatus        PrepStatus        `json:"prepStatus"`
	Fulfillment       Fulfillment       `json:"fulfillment"`
	InvoiceStatus     InvoiceStatus     `json:"invoiceStatus"`
	CloseoutChecklist CloseoutChecklist `json:"closeoutChecklist"`
	ArtConfirmation   ArtConfirmation   `json:"artConfirmation"`

	LineItems []LineItem        `json:"lineItems"`
	History   []StatusChangeLog `json:"history"`
}

// LeadInfo is captured while an order is an inquiry
type LeadInfo struct {
	Source            string     `json:"source,omitempty"`
	InquiryDate       *time.Time `json:"inquiryDate,omitempty"`
	EstimatedQuantity int        `json:"estimatedQuantity,omitempty"`
	EstimatedBudget   float64    `json:"estimatedBudget,omitempty"`
	ContactNotes      string     `json:"contactNotes,omitempty"`
}

// PrepStatus is the decoration-specific pre-production checklist
type PrepStatus struct {
	GangSheetCreated bool `json:"gangSheetCreated"`
	ArtworkDigitized bool `json:"artworkDigitized"`
	ScreensBurned    bool `json:"screensBurned"`
}

// Fulfillment tracks how and whether goods left the shop
type Fulfillment struct {
	Method               FulfillmentMethod `json:"method,omitempty"`
	Carrier              string            `json:"carrier,omitempty"`
	TrackingNumber       string            `json:"trackingNumber,omitempty"`
	ShippingLabelPrinted bool              `json:"shippingLabelPrinted"`
	CustomerPickedUp     bool              `json:"customerPickedUp"`
	CompletedAt          *time.Time        `json:"completedAt,omitempty"`
}

// InvoiceStatus holds invoicing flags; no payment processing happens here
type InvoiceStatus struct {
	InvoiceNumber   string     `json:"invoiceNumber,omitempty"`
	InvoiceCreated  bool       `json:"invoiceCreated"`
	InvoiceSent     bool       `json:"invoiceSent"`
	PaymentReceived bool       `json:"paymentReceived"`
	SentAt          *time.Time `json:"sentAt,omitempty"`
}

// CloseoutChecklist must be complete before an order is closed
type CloseoutChecklist struct {
	FilesSaved      bool `json:"filesSaved"`
	CanvaArchived   bool `json:"canvaArchived"`
	SummaryUploaded bool `json:"summaryUploaded"`
}

// ArtConfirmation records proofs per placement; files live elsewhere
type ArtConfirmation struct {
	Bypassed     bool           `json:"bypassed"`
	BypassReason string         `json:"bypassReason,omitempty"`
	ApprovedAt   *time.Time     `json:"approvedAt,omitempty"`
	ApprovedBy   string         `json:"approvedBy,omitempty"`
	Placements   []ArtPlacement `json:"placements"`
}

// ArtPlacement is one decorated location on the garment
type ArtPlacement struct {
	Location string         `json:"location"`
	Notes    string         `json:"notes,omitempty"`
	Proofs   []ProofVersion `json:"proofs"`
}

// ProofVersion is one proof sent to the customer
type ProofVersion struct {
	Version    int         `json:"version"`
	URL        string      `json:"url"`
	UploadedAt time.Time   `json:"uploadedAt"`
	Status     ProofStatus `json:"status"`
	Feedback   string      `json:"feedback,omitempty"`
}

// LineItem is one ordered SKU variant within an order
type LineItem struct {
	ItemNumber string `json:"itemNumber"`
	Name       string `json:"name"`
	Color      string `json:"color,omitempty"`
	Size       string `json:"size,omitempty"`
	Qty        int    `json:"qty"`

	DecorationType       DecorationType  `json:"decorationType"`
	DecorationPlacements int             `json:"decorationPlacements,omitempty"`
	ScreenPrintColors    int             `json:"screenPrintColors,omitempty"`
	StitchCountTier      StitchCountTier `json:"stitchCountTier,omitempty"`
	DTFSize              DTFSize         `json:"dtfSize,omitempty"`
	IsPlusSize           bool            `json:"isPlusSize"`

	Cost  float64 `json:"cost"`
	Price float64 `json:"price"`

	Ordered     bool       `json:"ordered"`
	OrderedAt   *time.Time `json:"orderedAt,omitempty"`
	Received    bool       `json:"received"`
	ReceivedAt  *time.Time `json:"receivedAt,omitempty"`
	Decorated   bool       `json:"decorated"`
	DecoratedAt *time.Time `json:"decoratedAt,omitempty"`
	Packed      bool       `json:"packed"`
	PackedAt    *time.Time `json:"packedAt,omitempty"`
}

// Clone returns a deep copy of the order. History entries are shared by
// value; their snapshots are never written after creation.
func (o Order) Clone() Order {
	c := o
	c.DueDate = cloneTime(o.DueDate)
	c.ClosedAt = cloneTime(o.ClosedAt)
	c.CustomerApprovedAt = cloneTime(o.CustomerApprovedAt)

	if o.LeadInfo != nil {
		li := o.LeadInfo.Clone()
		c.LeadInfo = &li
	}

	c.Fulfillment = o.Fulfillment.Clone()
	c.InvoiceStatus = o.InvoiceStatus.Clone()
	c.ArtConfirmation = o.ArtConfirmation.Clone()
	c.LineItems = CloneLineItems(o.LineItems)

	if o.History != nil {
		c.History = make([]StatusChangeLog, len(o.History))
		copy(c.History, o.History)
	}

	return c
}

// Clone deep-copies the lead info
func (l LeadInfo) Clone() LeadInfo {
	l.InquiryDate = cloneTime(l.InquiryDate)
	return l
}

// Clone deep-copies the fulfillment record
func (f Fulfillment) Clone() Fulfillment {
	f.CompletedAt = cloneTime(f.CompletedAt)
	return f
}

// Clone deep-copies the invoice record
func (i InvoiceStatus) Clone() InvoiceStatus {
	i.SentAt = cloneTime(i.SentAt)
	return i
}

// Clone deep-copies the art confirmation including proofs
func (a ArtConfirmation) Clone() ArtConfirmation {
	a.ApprovedAt = cloneTime(a.ApprovedAt)

	if a.Placements != nil {
		placements := make([]ArtPlacement, len(a.Placements))
		for i, p := range a.Placements {
			if p.Proofs != nil {
				proofs := make([]ProofVersion, len(p.Proofs))
				copy(proofs, p.Proofs)
				p.Proofs = proofs
			}
			placements[i] = p
		}
		a.Placements = placements
	}

	return a
}

// Clone deep-copies the line item
func (li LineItem) Clone() LineItem {
	li.OrderedAt = cloneTime(li.OrderedAt)
	li.ReceivedAt = cloneTime(li.ReceivedAt)
	li.DecoratedAt = cloneTime(li.DecoratedAt)
	li.PackedAt = cloneTime(li.PackedAt)
	return li
}

// CloneLineItems deep-copies a line item slice, preserving nil
func CloneLineItems(items []LineItem) []LineItem {
	if items == nil {
		return nil
	}

	out := make([]LineItem, len(items))
	for i, li := range items {
		out[i] = li.Clone()
	}
	return out
}

// DecorationTypes returns the distinct decoration types among the line items
// in first-seen order
func (o Order) DecorationTypes() []DecorationType {
	seen := make(map[DecorationType]bool)
	var out []DecorationType

	for _, li := range o.LineItems {
		if !seen[li.DecorationType] {
			seen[li.DecorationType] = true
			out = append(out, li.DecorationType)
		}
	}
	return out
}

// IsDeadOpportunity reports whether the order was closed without fulfilment
func (o Order) IsDeadOpportunity() bool {
	return o.Status == StatusClosed && o.ClosedReason == ClosedReasonDeadOpportunity
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
