package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vaidashi/apparel-order-pipeline/internal/models"
)

func TestGate(t *testing.T) {
	done := models.LineItem{ItemNumber: "G500", Ordered: true, Received: true, Decorated: true, Packed: true}
	pending := models.LineItem{ItemNumber: "PC61"}

	tests := []struct {
		name  string
		order models.Order
		met   bool
	}{
		{"lead with email", models.Order{Status: models.StatusLead, Customer: "A", CustomerEmail: "a@example.com"}, true},
		{"lead with phone", models.Order{Status: models.StatusLead, Customer: "A", CustomerPhone: "555"}, true},
		{"lead without contact", models.Order{Status: models.StatusLead, Customer: "A"}, false},
		{"lead without name", models.Order{Status: models.StatusLead, CustomerEmail: "a@example.com"}, false},

		{"quote with items", models.Order{Status: models.StatusQuote, LineItems: []models.LineItem{pending}}, true},
		{"quote empty", models.Order{Status: models.StatusQuote}, false},

		{"approval approved", models.Order{Status: models.StatusApproval, CustomerApproved: true}, true},
		{"approval pending", models.Order{Status: models.StatusApproval}, false},

		{"art approved", models.Order{Status: models.StatusArtConfirmation, ArtStatus: models.ArtStatusApproved}, true},
		{"art status bypassed", models.Order{Status: models.StatusArtConfirmation, ArtStatus: models.ArtStatusBypassed}, true},
		{"art flag bypassed", models.Order{Status: models.StatusArtConfirmation, ArtStatus: models.ArtStatusProofSent, ArtConfirmation: models.ArtConfirmation{Bypassed: true}}, true},
		{"art proof sent", models.Order{Status: models.StatusArtConfirmation, ArtStatus: models.ArtStatusProofSent}, false},

		{"inventory all ordered", models.Order{Status: models.StatusInventoryOrder, LineItems: []models.LineItem{done}}, true},
		{"inventory one pending", models.Order{Status: models.StatusInventoryOrder, LineItems: []models.LineItem{done, pending}}, false},

		{"prep no decoration needs nothing", models.Order{Status: models.StatusProductionPrep, LineItems: []models.LineItem{{DecorationType: models.DecorationOther}}}, true},
		{"prep screens burned", models.Order{
			Status:     models.StatusProductionPrep,
			LineItems:  []models.LineItem{{DecorationType: models.DecorationScreenPrint}},
			PrepStatus: models.PrepStatus{ScreensBurned: true},
		}, true},
		{"prep dtf missing gang sheet", models.Order{
			Status:     models.StatusProductionPrep,
			LineItems:  []models.LineItem{{DecorationType: models.DecorationScreenPrint}, {DecorationType: models.DecorationDTF}},
			PrepStatus: models.PrepStatus{ScreensBurned: true},
		}, false},

		{"received", models.Order{Status: models.StatusInventoryReceived, LineItems: []models.LineItem{done}}, true},
		{"not received", models.Order{Status: models.StatusInventoryReceived, LineItems: []models.LineItem{pending}}, false},

		{"production complete", models.Order{Status: models.StatusProduction, LineItems: []models.LineItem{done}}, true},
		{"decorated not packed", models.Order{Status: models.StatusProduction, LineItems: []models.LineItem{{Decorated: true}}}, false},

		{"shipped", models.Order{Status: models.StatusFulfillment, Fulfillment: models.Fulfillment{Method: models.FulfillmentShip, ShippingLabelPrinted: true}}, true},
		{"picked up", models.Order{Status: models.StatusFulfillment, Fulfillment: models.Fulfillment{Method: models.FulfillmentPickup, CustomerPickedUp: true}}, true},
		{"no method", models.Order{Status: models.StatusFulfillment, Fulfillment: models.Fulfillment{ShippingLabelPrinted: true}}, false},
		{"method only", models.Order{Status: models.StatusFulfillment, Fulfillment: models.Fulfillment{Method: models.FulfillmentShip}}, false},

		{"invoice sent", models.Order{Status: models.StatusInvoice, InvoiceStatus: models.InvoiceStatus{InvoiceCreated: true, InvoiceSent: true}}, true},
		{"invoice created only", models.Order{Status: models.StatusInvoice, InvoiceStatus: models.InvoiceStatus{InvoiceCreated: true}}, false},

		{"closeout complete", models.Order{Status: models.StatusCloseout, CloseoutChecklist: models.CloseoutChecklist{FilesSaved: true, CanvaArchived: true, SummaryUploaded: true}}, true},
		{"closeout partial", models.Order{Status: models.StatusCloseout, CloseoutChecklist: models.CloseoutChecklist{FilesSaved: true}}, false},

		{"closed", models.Order{Status: models.StatusClosed}, true},
		{"unknown", models.Order{Status: "Shipped"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Gate(tt.order)

			assert.Equal(t, tt.met, res.Met)
			assert.Equal(t, tt.order.Status, res.Stage)
			if tt.met {
				assert.Empty(t, res.Unmet)
			} else {
				assert.NotEmpty(t, res.Unmet)
			}
		})
	}
}

func TestGateUnmetMessages(t *testing.T) {
	res := Gate(models.Order{
		Status:    models.StatusInventoryOrder,
		LineItems: []models.LineItem{{ItemNumber: "G500"}, {ItemNumber: "PC61", Ordered: true}, {ItemNumber: "5000"}},
	})

	assert.Equal(t, []string{"line items not ordered: G500, 5000"}, res.Unmet)
	assert.Equal(t, models.StatusProductionPrep, res.Next)
}

func TestRequiredPrepFlags(t *testing.T) {
	items := []models.LineItem{
		{DecorationType: models.DecorationEmbroidery},
		{DecorationType: models.DecorationOther},
		{DecorationType: models.DecorationDTF},
		{DecorationType: models.DecorationEmbroidery},
	}

	assert.Equal(t, []PrepFlag{PrepArtworkDigitized, PrepGangSheetCreated}, RequiredPrepFlags(items))
	assert.Empty(t, RequiredPrepFlags(nil))

	order := models.Order{LineItems: items, PrepStatus: models.PrepStatus{ArtworkDigitized: true}}
	assert.Equal(t, []PrepFlag{PrepGangSheetCreated}, MissingPrepFlags(order))

	assert.Equal(t, "screens not burned", PrepScreensBurned.Missing())
	assert.Equal(t, "gang sheet not created", PrepGangSheetCreated.Missing())
	assert.Equal(t, "artwork not digitized", PrepArtworkDigitized.Missing())
}

func TestNextStage(t *testing.T) {
	next, ok := NextStage(models.StatusLead)
	assert.True(t, ok)
	assert.Equal(t, models.StatusQuote, next)

	_, ok = NextStage(models.StatusClosed)
	assert.False(t, ok)

	_, ok = NextStage("Shipped")
	assert.False(t, ok)
}
