// Package validation reports consistency problems across an order
// collection. It never blocks a mutation; unknown stages and duplicate ids
// are errors, everything else is a warning.
package validation

import (
	"fmt"

	"github.com/vaidashi/apparel-order-pipeline/internal/models"
	"github.com/vaidashi/apparel-order-pipeline/internal/workflow"
)

// Result is the report for a whole collection
type Result struct {
	Valid        bool          `json:"valid"`
	Errors       []string      `json:"errors"`
	Warnings     []string      `json:"warnings"`
	OrderResults []OrderResult `json:"orderResults"`
}

// OrderResult is the report for one order
type OrderResult struct {
	OrderNumber string   `json:"orderNumber"`
	Valid       bool     `json:"valid"`
	Errors      []string `json:"errors"`
	Warnings    []string `json:"warnings"`
}

// ValidateOrders checks every order and the collection as a whole
func ValidateOrders(orders []models.Order) Result {
	res := Result{
		Errors:       []string{},
		Warnings:     []string{},
		OrderResults: make([]OrderResult, 0, len(orders)),
	}

	seen := make(map[string]bool, len(orders))

	for _, order := range orders {
		or := checkOrder(order)

		if seen[order.ID] {
			or.Errors = append(or.Errors, fmt.Sprintf("%s: duplicate id %q", label(order), order.ID))
		}
		seen[order.ID] = true

		or.Valid = len(or.Errors) == 0

		res.Errors = append(res.Errors, or.Errors...)
		res.Warnings = append(res.Warnings, or.Warnings...)
		res.OrderResults = append(res.OrderResults, or)
	}

	res.Valid = len(res.Errors) == 0
	return res
}

func checkOrder(order models.Order) OrderResult {
	or := OrderResult{
		OrderNumber: order.OrderNumber,
		Errors:      []string{},
		Warnings:    []string{},
	}
	name := label(order)

	warn := func(format string, args ...interface{}) {
		or.Warnings = append(or.Warnings, name+": "+fmt.Sprintf(format, args...))
	}

	stage, ok := models.StageNumber(order.Status)
	if !ok {
		or.Errors = append(or.Errors, fmt.Sprintf("%s: invalid status %q", name, order.Status))
		return or
	}

	if order.Status == models.StatusLead && order.LeadInfo == nil {
		warn("lead has no lead info")
	}

	if stage > 1 && len(order.LineItems) == 0 {
		warn("no line items at %s", order.Status)
	}

	if stage >= stageOf(models.StatusArtConfirmation) && order.ArtStatus == models.ArtStatusNotStarted {
		warn("art not started at %s", order.Status)
	}

	if stage >= stageOf(models.StatusProduction) {
		for _, f := range workflow.MissingPrepFlags(order) {
			warn("%s", f.Missing())
		}
	}

	if stage >= stageOf(models.StatusFulfillment) && order.Fulfillment.Method == "" {
		warn("fulfillment method not set")
	}

	if stage >= stageOf(models.StatusInvoice) && !order.InvoiceStatus.InvoiceCreated {
		warn("invoice not created")
	}

	if order.Status == models.StatusClosed {
		if order.ClosedAt == nil {
			warn("closed without closedAt")
		}
		if order.ClosedReason == "" {
			warn("closed without closedReason")
		}
	}

	return or
}

func stageOf(s models.OrderStatus) int {
	n, _ := models.StageNumber(s)
	return n
}

func label(order models.Order) string {
	if order.OrderNumber != "" {
		return order.OrderNumber
	}
	return order.ID
}
