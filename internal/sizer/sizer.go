// Package sizer collapses a detected opportunity into the single integer
// contract size every leg can satisfy, given the current cash balance,
// minted inventory, and an operator-configured cap.
package sizer

import (
	"math"

	"github.com/nvh2205/poly-ab-sub001/internal/domain"
)

// Inventory looks up the available minted balance of a token within a
// group, used to cap SELL leg sizes. Implementations back this with
// domain.InventoryLedger.Available.
type Inventory func(tokenID string) float64

// shareScale quantizes contract sizes to two decimal places.
const shareScale = 100.0

// Size implements the sizing algorithm from the detector's downstream
// stage: partition legs into BUY/SELL, budget cash evenly across BUY legs,
// cap every leg by its top-of-book depth (and SELL legs additionally by
// minted inventory), take the minimum across all legs, cap by defaultSize,
// then quantize to two decimal places. Returns 0 if any leg is missing a
// usable price or depth, or if the quantized result rounds below one
// contract.
func Size(legs []domain.OppLeg, usdcBalance float64, inv Inventory, defaultSize float64) float64 {
	if len(legs) == 0 {
		return 0
	}

	var buys []domain.OppLeg
	for _, l := range legs {
		if l.Side == domain.OrderSideBuy {
			buys = append(buys, l)
		}
	}
	if len(buys) == 0 {
		return 0
	}
	cashBudgetPerLeg := usdcBalance / float64(len(buys))

	size := math.Inf(1)
	for _, l := range legs {
		if l.Price <= 0 || l.BookSize <= 0 {
			return 0
		}
		var legSize float64
		switch l.Side {
		case domain.OrderSideBuy:
			legSize = cashBudgetPerLeg / l.Price
			legSize = math.Min(legSize, l.BookSize)
		case domain.OrderSideSell:
			available := l.BookSize
			if inv != nil {
				if minted := inv(l.TokenID); minted < available {
					available = minted
				}
			}
			legSize = available
		default:
			return 0
		}
		if legSize < size {
			size = legSize
		}
	}
	if math.IsInf(size, 1) {
		return 0
	}

	size = math.Min(size, defaultSize)
	size = math.Floor(size*shareScale) / shareScale
	if size < 1 {
		return 0
	}
	return size
}

// RequiredCash computes the cash reservation for a sized opportunity: the
// sum of BUY leg price*size only, matching the standardized
// "BUY legs only" reservation method.
func RequiredCash(legs []domain.OppLeg, size float64) float64 {
	var total float64
	for _, l := range legs {
		if l.Side == domain.OrderSideBuy {
			total += l.Price * size
		}
	}
	return QuantizeCollateral(total)
}

// collateralScale quantizes collateral amounts to four decimal places.
const collateralScale = 10000.0

// QuantizeCollateral rounds a collateral amount to four decimal places.
func QuantizeCollateral(v float64) float64 {
	return math.Round(v*collateralScale) / collateralScale
}

// QuantizeShares rounds a contract size to two decimal places.
func QuantizeShares(v float64) float64 {
	return math.Round(v*shareScale) / shareScale
}
