// Package pricing computes customer-facing prices and vendor costs for
// dental cases. All functions are pure; amounts are plain float64 dollars
// rendered at two decimals by the presentation layer.
package pricing

import (
	"strings"

	"github.com/vduzgezen/lumera-dental-api/internal/platform/apperr"
)

// Tier selects which price list applies to a clinic.
type Tier string

const (
	TierStandard Tier = "STANDARD"
	TierInHouse  Tier = "IN_HOUSE"
)

// BillingType on a case. Warranty remakes are never billed.
type BillingType string

const (
	BillingBillable BillingType = "BILLABLE"
	BillingWarranty BillingType = "WARRANTY"
)

// ProductKey is the canonical price-list key a (productType, material) pair
// resolves to.
type ProductKey string

const (
	ZirconiaHT     ProductKey = "ZIRCONIA_HT"
	ZirconiaML     ProductKey = "ZIRCONIA_ML"
	Emax           ProductKey = "EMAX"
	NightguardHard ProductKey = "NIGHTGUARD_HARD"
	NightguardSoft ProductKey = "NIGHTGUARD_SOFT"
)

// Per-unit revenue price by tier and product.
var clientPricing = map[Tier]map[ProductKey]float64{
	TierStandard: {
		ZirconiaHT:     65.00,
		ZirconiaML:     75.00,
		Emax:           90.00,
		NightguardHard: 85.00,
		NightguardSoft: 75.00,
	},
	TierInHouse: {
		ZirconiaHT:     45.00,
		ZirconiaML:     55.00,
		Emax:           70.00,
		NightguardHard: 65.00,
		NightguardSoft: 55.00,
	},
}

// Per-unit vendor milling fee by product.
var millingCost = map[ProductKey]float64{
	ZirconiaHT:     18.00,
	ZirconiaML:     22.00,
	Emax:           30.00,
	NightguardHard: 28.00,
	NightguardSoft: 24.00,
}

// Per-unit design fee by product. Nightguards carry no design fee.
var designFee = map[ProductKey]float64{
	ZirconiaHT:     12.00,
	ZirconiaML:     12.00,
	Emax:           15.00,
	NightguardHard: 0,
	NightguardSoft: 0,
}

// ResolveProductKey maps a free-form product type and material to one
// canonical price-list key. Missing or unknown material falls back to the
// HT or HARD variant; an unrecognized product type falls back to zirconia HT.
func ResolveProductKey(productType, material string) ProductKey {
	pt := strings.ToUpper(strings.TrimSpace(productType))
	mat := strings.ToUpper(strings.TrimSpace(material))

	switch {
	case strings.Contains(pt, "NIGHTGUARD") || strings.Contains(pt, "NIGHT_GUARD") || strings.Contains(pt, "NIGHT GUARD"):
		if strings.Contains(mat, "SOFT") {
			return NightguardSoft
		}
		return NightguardHard
	case strings.Contains(pt, "EMAX") || strings.Contains(mat, "EMAX") || strings.Contains(mat, "E.MAX"):
		return Emax
	case strings.Contains(mat, "ML") || strings.Contains(mat, "MULTILAYER") || strings.Contains(mat, "MULTI-LAYER"):
		return ZirconiaML
	default:
		return ZirconiaHT
	}
}

// CostBreakdown is the vendor-side cost of producing a case.
type CostBreakdown struct {
	Milling float64 `json:"milling"`
	Design  float64 `json:"design"`
	Total   float64 `json:"total"`
}

func validateUnits(units int) error {
	if units <= 0 {
		return apperr.Invalid("unit count must be a positive integer, got %d", units)
	}
	return nil
}

// Price returns the customer price for a case. Warranty-billed cases always
// price at zero regardless of tier or product.
func Price(tier Tier, billing BillingType, productType, material string, units int) (float64, error) {
	if err := validateUnits(units); err != nil {
		return 0, err
	}
	if billing == BillingWarranty {
		return 0, nil
	}

	table, ok := clientPricing[tier]
	if !ok {
		table = clientPricing[TierStandard]
	}
	key := ResolveProductKey(productType, material)
	return table[key] * float64(units), nil
}

// Cost returns the vendor cost breakdown for producing a case.
func Cost(productType, material string, units int) (CostBreakdown, error) {
	if err := validateUnits(units); err != nil {
		return CostBreakdown{}, err
	}

	key := ResolveProductKey(productType, material)
	milling := millingCost[key] * float64(units)
	design := designFee[key] * float64(units)
	return CostBreakdown{
		Milling: milling,
		Design:  design,
		Total:   milling + design,
	}, nil
}
