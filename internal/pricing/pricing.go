// Package pricing turns line-item attributes into a sale price.
//
// Amounts are computed in whole cents and converted back to dollars once,
// so ComputePrice and PriceBreakdown agree exactly for the same input.
package pricing

import (
	"fmt"
	"math"

	"github.com/vaidashi/apparel-order-pipeline/internal/models"
)

// Markup applied to the wholesale cost before decoration fees
const Markup = 2

// Fee amounts in cents
const (
	dtfLargeFee          = 800
	dtfStandardFee       = 500
	screenPlacementFee   = 200
	screenColorFee       = 100
	screenPlusSizeFee    = 200
	embroideryOver12kFee = 2000
	embroidery8to12kFee  = 1000
)

// Attributes are the line-item fields the price depends on. For ScreenPrint a
// DecorationPlacements or ScreenPrintColors of zero or less is charged as one,
// so a print always carries at least one placement fee and one color fee.
type Attributes struct {
	Cost                 float64
	DecorationType       models.DecorationType
	DecorationPlacements int
	ScreenPrintColors    int
	StitchCountTier      models.StitchCountTier
	DTFSize              models.DTFSize
	IsPlusSize           bool
}

// Fee is one labelled surcharge
type Fee struct {
	Label  string  `json:"label"`
	Amount float64 `json:"amount"`
}

// Breakdown is the price decomposed for display
type Breakdown struct {
	Base  float64 `json:"base"`
	Fees  []Fee   `json:"fees"`
	Total float64 `json:"total"`
}

// AttributesOf extracts pricing attributes from a line item
func AttributesOf(item models.LineItem) Attributes {
	return Attributes{
		Cost:                 item.Cost,
		DecorationType:       item.DecorationType,
		DecorationPlacements: item.DecorationPlacements,
		ScreenPrintColors:    item.ScreenPrintColors,
		StitchCountTier:      item.StitchCountTier,
		DTFSize:              item.DTFSize,
		IsPlusSize:           item.IsPlusSize,
	}
}

// ComputePrice returns the unit sale price for attrs
func ComputePrice(attrs Attributes) float64 {
	return PriceBreakdown(attrs).Total
}

// PriceBreakdown returns the base price, each surcharge and their total
func PriceBreakdown(attrs Attributes) Breakdown {
	base := Markup * toCents(attrs.Cost)
	fees := feesFor(attrs)

	total := base
	out := make([]Fee, 0, len(fees))

	for _, f := range fees {
		total += f.cents
		out = append(out, Fee{Label: f.label, Amount: toDollars(f.cents)})
	}

	return Breakdown{
		Base:  toDollars(base),
		Fees:  out,
		Total: toDollars(total),
	}
}

// ApplyPrice returns a copy of item with Price recomputed
func ApplyPrice(item models.LineItem) models.LineItem {
	c := item.Clone()
	c.Price = ComputePrice(AttributesOf(item))
	return c
}

// ApplyPrices reprices every item
func ApplyPrices(items []models.LineItem) []models.LineItem {
	if items == nil {
		return nil
	}

	out := make([]models.LineItem, len(items))
	for i, item := range items {
		out[i] = ApplyPrice(item)
	}
	return out
}

type centFee struct {
	label string
	cents int64
}

func feesFor(attrs Attributes) []centFee {
	switch attrs.DecorationType {
	case models.DecorationDTF:
		if attrs.DTFSize == models.DTFSizeLarge {
			return []centFee{{"DTF large transfer", dtfLargeFee}}
		}
		return []centFee{{"DTF standard transfer", dtfStandardFee}}

	case models.DecorationScreenPrint:
		placements := atLeastOne(attrs.DecorationPlacements)
		colors := atLeastOne(attrs.ScreenPrintColors)

		fees := []centFee{
			{fmt.Sprintf("Placements (%d x $2)", placements), int64(placements) * screenPlacementFee},
			{fmt.Sprintf("Ink colors (%d x $1)", colors), int64(colors) * screenColorFee},
		}
		if attrs.IsPlusSize {
			fees = append(fees, centFee{"Plus size", screenPlusSizeFee})
		}
		return fees

	case models.DecorationEmbroidery:
		switch attrs.StitchCountTier {
		case models.StitchTierOver12k:
			return []centFee{{"Stitch count 12k+", embroideryOver12kFee}}
		case models.StitchTier8kTo12k:
			return []centFee{{"Stitch count 8k-12k", embroidery8to12kFee}}
		}
		return nil

	default:
		return nil
	}
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

func toCents(dollars float64) int64 {
	if dollars <= 0 || math.IsNaN(dollars) || math.IsInf(dollars, 0) {
		return 0
	}
	return int64(math.Round(dollars * 100))
}

func toDollars(cents int64) float64 {
	return float64(cents) / 100
}
