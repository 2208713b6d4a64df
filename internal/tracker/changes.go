// Package tracker flags stop-loss and take-profit revisions within a trade
// group.
package tracker

import (
	"time"

	"tvhook/internal/types"
)

// Point is the resolved risk state after one record.
type Point struct {
	RecordID          uint64    `json:"record_id"`
	Timestamp         time.Time `json:"timestamp"`
	StopLoss          *float64  `json:"stop_loss,omitempty"`
	TakeProfit        *float64  `json:"take_profit,omitempty"`
	StopLossChanged   bool      `json:"stop_loss_changed"`
	TakeProfitChanged bool      `json:"take_profit_changed"`
}

// Annotate returns a timestamp-ordered copy of records with change flags
// recomputed. A record is flagged when it carries a value that differs from
// the last known value before it; the first record is never flagged and a
// record without a value never raises a flag.
func Annotate(records []types.WebhookRecord) []types.WebhookRecord {
	out := append([]types.WebhookRecord(nil), records...)
	types.SortRecords(out)
	for i, p := range walk(out) {
		out[i].StopLossChanged = p.StopLossChanged
		out[i].TakeProfitChanged = p.TakeProfitChanged
	}
	return out
}

// Timeline returns the resolved SL/TP after each record, in timestamp order.
func Timeline(records []types.WebhookRecord) []Point {
	sorted := append([]types.WebhookRecord(nil), records...)
	types.SortRecords(sorted)
	return walk(sorted)
}

// Current returns the latest non-nil stop loss and take profit.
func Current(records []types.WebhookRecord) (sl, tp *float64) {
	points := Timeline(records)
	if len(points) == 0 {
		return nil, nil
	}
	last := points[len(points)-1]
	return last.StopLoss, last.TakeProfit
}

func walk(sorted []types.WebhookRecord) []Point {
	points := make([]Point, 0, len(sorted))
	var sl, tp *float64
	for i, rec := range sorted {
		p := Point{RecordID: rec.ID, Timestamp: rec.Timestamp()}
		curSL, curTP := rec.Webhook.StopLossPrice, rec.Webhook.TakeProfitPrice
		if i > 0 {
			p.StopLossChanged = differs(sl, curSL)
			p.TakeProfitChanged = differs(tp, curTP)
		}
		if curSL != nil {
			sl = curSL
		}
		if curTP != nil {
			tp = curTP
		}
		p.StopLoss, p.TakeProfit = sl, tp
		points = append(points, p)
	}
	return points
}

func differs(prev, cur *float64) bool {
	if cur == nil {
		return false
	}
	if prev == nil {
		return true
	}
	return *prev != *cur
}
