// Package pnl computes realized profit and loss for trade exits.
package pnl

import (
	"tvhook/internal/types"

	"github.com/shopspring/decimal"
)

const percentPlaces = 8

var hundred = decimal.NewFromInt(100)

// Exit is the realized result of a single exit.
type Exit struct {
	Percent  float64 `json:"pnl_percent"`
	Absolute float64 `json:"pnl_absolute"`
	Quantity float64 `json:"quantity"`
}

// ExitInput describes one exit fed into Weighted.
type ExitInput struct {
	Price    *float64
	Quantity float64
}

// Summary is the quantity-weighted result over a group's exits.
type Summary struct {
	TotalPercent  *float64 `json:"total_pnl_percent,omitempty"`
	TotalAbsolute float64  `json:"total_pnl_absolute"`
	TotalQuantity float64  `json:"total_quantity"`
	Exits         []Exit   `json:"exits"`
}

// ExitPnL returns the realized result of one exit. ok is false when the
// entry price is missing or zero, the exit price is missing, or the
// direction is unknown.
func ExitPnL(entry, exit *float64, direction types.Direction, quantity float64) (Exit, bool) {
	if entry == nil || exit == nil || *entry == 0 {
		return Exit{}, false
	}
	e := decimal.NewFromFloat(*entry)
	x := decimal.NewFromFloat(*exit)
	var diff decimal.Decimal
	switch direction {
	case types.DirectionLong:
		diff = x.Sub(e)
	case types.DirectionShort:
		diff = e.Sub(x)
	default:
		return Exit{}, false
	}
	pct, _ := diff.Div(e).Mul(hundred).Round(percentPlaces).Float64()
	abs, _ := diff.Mul(decimal.NewFromFloat(quantity)).Float64()
	return Exit{Percent: pct, Absolute: abs, Quantity: quantity}, true
}

// Weighted returns Σ(pct × qty) / Σqty over valid exits. Exits with a
// missing price or non-positive quantity are skipped. TotalPercent is nil
// when no exit qualifies or the entry price is unusable.
func Weighted(entry *float64, direction types.Direction, exits []ExitInput) Summary {
	out := Summary{Exits: []Exit{}}
	weighted := decimal.Zero
	totalQty := decimal.Zero
	totalAbs := decimal.Zero
	for _, in := range exits {
		if in.Price == nil || in.Quantity <= 0 {
			continue
		}
		res, ok := ExitPnL(entry, in.Price, direction, in.Quantity)
		if !ok {
			continue
		}
		qty := decimal.NewFromFloat(in.Quantity)
		out.Exits = append(out.Exits, res)
		weighted = weighted.Add(decimal.NewFromFloat(res.Percent).Mul(qty))
		totalQty = totalQty.Add(qty)
		totalAbs = totalAbs.Add(decimal.NewFromFloat(res.Absolute))
	}
	out.TotalQuantity, _ = totalQty.Float64()
	out.TotalAbsolute, _ = totalAbs.Float64()
	if totalQty.IsZero() {
		return out
	}
	pct, _ := weighted.Div(totalQty).Round(percentPlaces).Float64()
	out.TotalPercent = &pct
	return out
}
