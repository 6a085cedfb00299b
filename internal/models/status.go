package models

// OrderStatus is the workflow stage an order occupies
type OrderStatus string

const (
	StatusLead              OrderStatus = "Lead"
	StatusQuote             OrderStatus = "Quote"
	StatusApproval          OrderStatus = "Approval"
	StatusArtConfirmation   OrderStatus = "Art Confirmation"
	StatusInventoryOrder    OrderStatus = "Inventory Order"
	StatusProductionPrep    OrderStatus = "Production Prep"
	StatusInventoryReceived OrderStatus = "Inventory Received"
	StatusProduction        OrderStatus = "Production"
	StatusFulfillment       OrderStatus = "Fulfillment"
	StatusInvoice           OrderStatus = "Invoice"
	StatusCloseout          OrderStatus = "Closeout"
	StatusClosed            OrderStatus = "Closed"
)

var stageOrder = []OrderStatus{
	StatusLead,
	StatusQuote,
	StatusApproval,
	StatusArtConfirmation,
	StatusInventoryOrder,
	StatusProductionPrep,
	StatusInventoryReceived,
	StatusProduction,
	StatusFulfillment,
	StatusInvoice,
	StatusCloseout,
	StatusClosed,
}

var stageNumbers = func() map[OrderStatus]int {
	m := make(map[OrderStatus]int, len(stageOrder))
	for i, s := range stageOrder {
		m[s] = i
	}
	return m
}()

// AllStatuses returns the twelve stages in workflow order
func AllStatuses() []OrderStatus {
	out := make([]OrderStatus, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// StageNumber returns the 0-based position of status in the workflow
func StageNumber(status OrderStatus) (int, bool) {
	n, ok := stageNumbers[status]
	return n, ok
}

// StatusAt returns the stage at position n
func StatusAt(n int) (OrderStatus, bool) {
	if n < 0 || n >= len(stageOrder) {
		return "", false
	}
	return stageOrder[n], true
}

// IsValid reports whether s is one of the twelve stages
func (s OrderStatus) IsValid() bool {
	_, ok := stageNumbers[s]
	return ok
}

// ArtStatus tracks artwork progress independently of the stage
type ArtStatus string

const (
	ArtStatusNotStarted        ArtStatus = "Not Started"
	ArtStatusInProgress        ArtStatus = "In Progress"
	ArtStatusProofSent         ArtStatus = "Proof Sent"
	ArtStatusRevisionRequested ArtStatus = "Revision Requested"
	ArtStatusApproved          ArtStatus = "Approved"
	ArtStatusBypassed          ArtStatus = "Bypassed"
)

// IsValid reports whether a is a known art status
func (a ArtStatus) IsValid() bool {
	switch a {
	case ArtStatusNotStarted, ArtStatusInProgress, ArtStatusProofSent,
		ArtStatusRevisionRequested, ArtStatusApproved, ArtStatusBypassed:
		return true
	}
	return false
}

// ClosedReason distinguishes normal completion from an abandoned opportunity
type ClosedReason string

const (
	ClosedReasonCompleted       ClosedReason = "Completed"
	ClosedReasonDeadOpportunity ClosedReason = "Dead Opportunity"
)

// DecorationType selects the fee rules and prep flag of a line item
type DecorationType string

const (
	DecorationScreenPrint DecorationType = "ScreenPrint"
	DecorationEmbroidery  DecorationType = "Embroidery"
	DecorationDTF         DecorationType = "DTF"
	DecorationOther       DecorationType = "Other"
)

// StitchCountTier buckets embroidery stitch counts
type StitchCountTier string

const (
	StitchTierUnder8k StitchCountTier = "<8k"
	StitchTier8kTo12k StitchCountTier = "8k-12k"
	StitchTierOver12k StitchCountTier = "12k+"
)

// DTFSize is the transfer size of a DTF print
type DTFSize string

const (
	DTFSizeStandard DTFSize = "Standard"
	DTFSizeLarge    DTFSize = "Large"
)

// FulfillmentMethod is how finished goods reach the customer
type FulfillmentMethod string

const (
	FulfillmentShip     FulfillmentMethod = "Ship"
	FulfillmentPickup   FulfillmentMethod = "Pickup"
	FulfillmentDelivery FulfillmentMethod = "Delivery"
)

// ProofStatus is the customer's verdict on one proof version
type ProofStatus string

const (
	ProofPending  ProofStatus = "Pending"
	ProofApproved ProofStatus = "Approved"
	ProofRejected ProofStatus = "Rejected"
)
