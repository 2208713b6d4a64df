package query

import (
	"fmt"
	"time"

	"tvhook/internal/pnl"
	"tvhook/internal/tracker"
	"tvhook/internal/types"
)

// ExitSummary is one exit in a group's chronology.
type ExitSummary struct {
	RecordID    uint64          `json:"record_id"`
	Kind        types.AlertKind `json:"kind"`
	Price       *float64        `json:"price,omitempty"`
	Quantity    *float64        `json:"quantity,omitempty"`
	PnLPercent  *float64        `json:"pnl_percent,omitempty"`
	PnLAbsolute *float64        `json:"pnl_absolute,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// GroupSummary 是交易分组的展示视图。
type GroupSummary struct {
	ID              string            `json:"id"`
	OwnerID         string            `json:"owner_id"`
	Instrument      string            `json:"instrument"`
	DisplayName     string            `json:"display_name,omitempty"`
	Broker          string            `json:"broker,omitempty"`
	BrokerSymbol    string            `json:"broker_symbol,omitempty"`
	Direction       types.Direction   `json:"direction"`
	Status          types.GroupStatus `json:"status"`
	Orphan          bool              `json:"orphan"`
	EntryPrice      *float64          `json:"entry_price,omitempty"`
	EntryQuantity   *float64          `json:"entry_quantity,omitempty"`
	Leverage        *float64          `json:"leverage,omitempty"`
	StopLossAtEntry *float64          `json:"stop_loss_at_entry,omitempty"`
	OpenedAt        time.Time         `json:"opened_at"`
	LastActivityAt  time.Time         `json:"last_activity_at"`
	ClosedAt        *time.Time        `json:"closed_at,omitempty"`

	Exits            []ExitSummary   `json:"exits"`
	TotalPnLPercent  *float64        `json:"total_pnl_percent,omitempty"`
	TotalPnLAbsolute float64         `json:"total_pnl_absolute"`
	TPHit            map[string]bool `json:"tp_hit"`
	SLHit            bool            `json:"sl_hit"`
	ExitType         types.ExitType  `json:"exit_type,omitempty"`
	Duration         time.Duration   `json:"-"`
	DurationSeconds  int64           `json:"duration_seconds"`

	CurrentStopLoss   *float64 `json:"current_stop_loss,omitempty"`
	CurrentTakeProfit *float64 `json:"current_take_profit,omitempty"`
	RecordCount       int      `json:"record_count"`
}

// Summarize builds the summary for one group. records may be unordered;
// tpCount is the number of TP levels to report (at least one).
func Summarize(g types.TradeGroup, records []types.WebhookRecord, tpCount int) GroupSummary {
	sorted := append([]types.WebhookRecord(nil), records...)
	types.SortRecords(sorted)
	if tpCount <= 0 {
		tpCount = 1
	}

	sum := GroupSummary{
		ID:              g.ID,
		OwnerID:         g.OwnerID,
		Instrument:      g.Instrument,
		Broker:          g.Broker,
		Direction:       g.Direction,
		Status:          g.Status,
		Orphan:          g.Orphan,
		EntryPrice:      g.EntryPrice,
		EntryQuantity:   g.EntryQuantity,
		Leverage:        g.Leverage,
		StopLossAtEntry: g.StopLossAtEntry,
		OpenedAt:        g.OpenedAt,
		LastActivityAt:  g.LastActivityAt,
		ClosedAt:        g.ClosedAt,
		Exits:           []ExitSummary{},
		TPHit:           make(map[string]bool, tpCount),
		RecordCount:     len(sorted),
	}
	for level := 1; level <= tpCount; level++ {
		sum.TPHit[fmt.Sprintf("TP%d", level)] = false
	}

	entry := g.EntryPrice
	inputs := make([]pnl.ExitInput, 0, len(sorted))
	var last *types.WebhookRecord
	for i := range sorted {
		rec := sorted[i]
		if sum.BrokerSymbol == "" {
			sum.BrokerSymbol = rec.BrokerSymbol
		}
		if sum.Broker == "" {
			sum.Broker = rec.Broker
		}
		if entry == nil && rec.EntryPriceCached != nil {
			entry = rec.EntryPriceCached
		}
		if !rec.Kind.IsExit() {
			continue
		}
		last = &sorted[i]
		exit := ExitSummary{
			RecordID:    rec.ID,
			Kind:        rec.Kind,
			Price:       rec.Webhook.OrderPrice,
			Quantity:    rec.Webhook.Quantity,
			PnLPercent:  rec.RealizedPnLPercent,
			PnLAbsolute: rec.RealizedPnLAbsolute,
			Timestamp:   rec.Timestamp(),
		}
		if exit.PnLPercent == nil && rec.Webhook.Quantity != nil {
			exitEntry := rec.EntryPriceCached
			if exitEntry == nil {
				exitEntry = entry
			}
			if res, ok := pnl.ExitPnL(exitEntry, rec.Webhook.OrderPrice, g.Direction, *rec.Webhook.Quantity); ok {
				exit.PnLPercent = &res.Percent
				exit.PnLAbsolute = &res.Absolute
			}
		}
		sum.Exits = append(sum.Exits, exit)

		if level := rec.Kind.TakeProfitLevel(); level > 0 && level <= tpCount {
			sum.TPHit[fmt.Sprintf("TP%d", level)] = true
		}
		if rec.Kind == types.AlertStopLoss {
			sum.SLHit = true
		}
		if rec.Webhook.Quantity != nil {
			inputs = append(inputs, pnl.ExitInput{Price: rec.Webhook.OrderPrice, Quantity: *rec.Webhook.Quantity})
		}
	}
	if sum.EntryPrice == nil {
		sum.EntryPrice = entry
	}

	total := pnl.Weighted(entry, g.Direction, inputs)
	sum.TotalPnLPercent = total.TotalPercent
	sum.TotalPnLAbsolute = total.TotalAbsolute

	if g.Status == types.GroupClosed {
		sum.ExitType = exitType(last)
	}
	end := g.LastActivityAt
	if g.ClosedAt != nil {
		end = *g.ClosedAt
	}
	if end.After(g.OpenedAt) {
		sum.Duration = end.Sub(g.OpenedAt)
	}
	sum.DurationSeconds = int64(sum.Duration / time.Second)
	sum.CurrentStopLoss, sum.CurrentTakeProfit = tracker.Current(sorted)
	return sum
}

func exitType(last *types.WebhookRecord) types.ExitType {
	if last == nil {
		return types.ExitManual
	}
	return last.Kind.ExitType()
}
