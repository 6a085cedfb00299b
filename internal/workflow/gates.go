package workflow

import (
	"fmt"
	"strings"

	"github.com/vaidashi/apparel-order-pipeline/internal/models"
)

// GateResult reports whether an order may leave its current stage
type GateResult struct {
	Stage models.OrderStatus `json:"stage"`
	Next  models.OrderStatus `json:"next,omitempty"`
	Met   bool               `json:"met"`
	Unmet []string           `json:"unmet,omitempty"`
}

// PrepFlag names one pre-production checklist flag
type PrepFlag string

const (
	PrepGangSheetCreated PrepFlag = "gangSheetCreated"
	PrepArtworkDigitized PrepFlag = "artworkDigitized"
	PrepScreensBurned    PrepFlag = "screensBurned"
)

// IsSet reports whether the flag is true in p
func (f PrepFlag) IsSet(p models.PrepStatus) bool {
	switch f {
	case PrepGangSheetCreated:
		return p.GangSheetCreated
	case PrepArtworkDigitized:
		return p.ArtworkDigitized
	case PrepScreensBurned:
		return p.ScreensBurned
	}
	return false
}

// Missing describes the flag when it is not set
func (f PrepFlag) Missing() string {
	switch f {
	case PrepGangSheetCreated:
		return "gang sheet not created"
	case PrepArtworkDigitized:
		return "artwork not digitized"
	case PrepScreensBurned:
		return "screens not burned"
	}
	return string(f) + " not set"
}

// prepFlagFor maps a decoration type to the flag it needs; Other needs none
func prepFlagFor(t models.DecorationType) (PrepFlag, bool) {
	switch t {
	case models.DecorationDTF:
		return PrepGangSheetCreated, true
	case models.DecorationEmbroidery:
		return PrepArtworkDigitized, true
	case models.DecorationScreenPrint:
		return PrepScreensBurned, true
	}
	return "", false
}

// RequiredPrepFlags returns the prep flags the decoration types among items
// call for, in the order the types first appear
func RequiredPrepFlags(items []models.LineItem) []PrepFlag {
	seen := make(map[PrepFlag]bool)
	var flags []PrepFlag

	for _, li := range items {
		f, ok := prepFlagFor(li.DecorationType)
		if !ok || seen[f] {
			continue
		}
		seen[f] = true
		flags = append(flags, f)
	}

	return flags
}

// MissingPrepFlags returns the required flags that are not yet set
func MissingPrepFlags(order models.Order) []PrepFlag {
	var missing []PrepFlag

	for _, f := range RequiredPrepFlags(order.LineItems) {
		if !f.IsSet(order.PrepStatus) {
			missing = append(missing, f)
		}
	}

	return missing
}

// NextStage returns the single forward neighbour of status. Closed has none.
func NextStage(status models.OrderStatus) (models.OrderStatus, bool) {
	n, ok := models.StageNumber(status)

	if !ok {
		return "", false
	}

	return models.StatusAt(n + 1)
}

// Gate evaluates the condition for leaving the order's current stage
func Gate(order models.Order) GateResult {
	res := GateResult{Stage: order.Status}
	res.Next, _ = NextStage(order.Status)

	switch order.Status {
	case models.StatusLead:
		if strings.TrimSpace(order.Customer) == "" {
			res.Unmet = append(res.Unmet, "customer name missing")
		}
		if order.CustomerEmail == "" && order.CustomerPhone == "" {
			res.Unmet = append(res.Unmet, "no email or phone captured")
		}

	case models.StatusQuote:
		if len(order.LineItems) == 0 {
			res.Unmet = append(res.Unmet, "no line items")
		}

	case models.StatusApproval:
		if !order.CustomerApproved {
			res.Unmet = append(res.Unmet, "customer has not approved")
		}

	case models.StatusArtConfirmation:
		if !artCleared(order) {
			res.Unmet = append(res.Unmet, "art not approved or bypassed")
		}

	case models.StatusInventoryOrder:
		res.Unmet = appendPending(res.Unmet, "not ordered", order.LineItems, func(li models.LineItem) bool {
			return li.Ordered
		})

	case models.StatusProductionPrep:
		for _, f := range MissingPrepFlags(order) {
			res.Unmet = append(res.Unmet, f.Missing())
		}

	case models.StatusInventoryReceived:
		res.Unmet = appendPending(res.Unmet, "not received", order.LineItems, func(li models.LineItem) bool {
			return li.Received
		})

	case models.StatusProduction:
		res.Unmet = appendPending(res.Unmet, "not decorated", order.LineItems, func(li models.LineItem) bool {
			return li.Decorated
		})
		res.Unmet = appendPending(res.Unmet, "not packed", order.LineItems, func(li models.LineItem) bool {
			return li.Packed
		})

	case models.StatusFulfillment:
		f := order.Fulfillment
		if f.Method == "" {
			res.Unmet = append(res.Unmet, "fulfillment method not set")
		}
		if !f.ShippingLabelPrinted && !f.CustomerPickedUp {
			res.Unmet = append(res.Unmet, "shipping label not printed and not picked up")
		}

	case models.StatusInvoice:
		if !order.InvoiceStatus.InvoiceCreated {
			res.Unmet = append(res.Unmet, "invoice not created")
		}
		if !order.InvoiceStatus.InvoiceSent {
			res.Unmet = append(res.Unmet, "invoice not sent")
		}

	case models.StatusCloseout:
		c := order.CloseoutChecklist
		if !c.FilesSaved {
			res.Unmet = append(res.Unmet, "files not saved")
		}
		if !c.CanvaArchived {
			res.Unmet = append(res.Unmet, "canva not archived")
		}
		if !c.SummaryUploaded {
			res.Unmet = append(res.Unmet, "summary not uploaded")
		}

	case models.StatusClosed:
		// terminal

	default:
		res.Unmet = append(res.Unmet, fmt.Sprintf("unknown stage %q", order.Status))
	}

	res.Met = len(res.Unmet) == 0
	return res
}

func artCleared(order models.Order) bool {
	return order.ArtStatus == models.ArtStatusApproved ||
		order.ArtStatus == models.ArtStatusBypassed ||
		order.ArtConfirmation.Bypassed
}

func appendPending(unmet []string, what string, items []models.LineItem, done func(models.LineItem) bool) []string {
	var pending []string

	for _, li := range items {
		if !done(li) {
			pending = append(pending, li.ItemNumber)
		}
	}

	if len(pending) == 0 {
		return unmet
	}

	return append(unmet, fmt.Sprintf("line items %s: %s", what, strings.Join(pending, ", ")))
}
