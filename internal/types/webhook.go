package types

import (
	"sort"
	"time"
)

// ParseWarning 记录单个字段的解析失败，不会中断整条告警的规范化。
type ParseWarning struct {
	Field  string `json:"field"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

// NormalizedWebhook 是 TradingView 告警规范化后的统一结构。
type NormalizedWebhook struct {
	Instrument string        `json:"instrument"`
	Side       Side          `json:"side"`
	OrderKind  string        `json:"order_kind"`
	State      PositionState `json:"position_state"`

	OrderPrice      *float64 `json:"order_price,omitempty"`
	EntryPrice      *float64 `json:"entry_price,omitempty"`
	StopLossPrice   *float64 `json:"stop_loss_price,omitempty"`
	TakeProfitPrice *float64 `json:"take_profit_price,omitempty"`

	Quantity              *float64 `json:"quantity,omitempty"`
	RemainingPositionSize *float64 `json:"remaining_position_size,omitempty"`
	IsPositionClosed      bool     `json:"is_position_closed"`

	Leverage   *float64 `json:"leverage,omitempty"`
	Pyramiding *int     `json:"pyramiding,omitempty"`

	ExitStop        *float64 `json:"exit_stop,omitempty"`
	ExitLimit       *float64 `json:"exit_limit,omitempty"`
	ExitLossTicks   *float64 `json:"exit_loss_ticks,omitempty"`
	ExitProfitTicks *float64 `json:"exit_profit_ticks,omitempty"`
	TrailPrice      *float64 `json:"trail_price,omitempty"`
	TrailOffset     *float64 `json:"trail_offset,omitempty"`

	CustomIndicators map[string]float64 `json:"custom_indicators,omitempty"`

	Timestamp       time.Time `json:"timestamp"`
	ExternalOrderID string    `json:"external_order_id,omitempty"`
	Comment         string    `json:"comment,omitempty"`

	Raw      map[string]any `json:"-"`
	Warnings []ParseWarning `json:"warnings,omitempty"`
}

// WebhookRecord 是一条告警经过分类、分组、盈亏计算后的持久化单元。
type WebhookRecord struct {
	ID           uint64    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	Broker       string    `json:"broker"`
	BrokerSymbol string    `json:"broker_symbol,omitempty"`
	ReceivedAt   time.Time `json:"received_at"`

	Webhook NormalizedWebhook `json:"webhook"`

	Kind                AlertKind `json:"alert_kind"`
	TradeGroupID        string    `json:"trade_group_id,omitempty"`
	Direction           Direction `json:"direction,omitempty"`
	PositionSizeAfter   *float64  `json:"position_size_after,omitempty"`
	EntryPriceCached    *float64  `json:"entry_price_cached,omitempty"`
	RealizedPnLPercent  *float64  `json:"realized_pnl_percent,omitempty"`
	RealizedPnLAbsolute *float64  `json:"realized_pnl_absolute,omitempty"`
	StopLossChanged     bool      `json:"stop_loss_changed"`
	TakeProfitChanged   bool      `json:"take_profit_changed"`
}

// Timestamp is the alert time, falling back to receive time.
func (r WebhookRecord) Timestamp() time.Time {
	if !r.Webhook.Timestamp.IsZero() {
		return r.Webhook.Timestamp
	}
	return r.ReceivedAt
}

// SortRecords orders records by alert timestamp, then by id for stable ties.
func SortRecords(records []WebhookRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		ti, tj := records[i].Timestamp(), records[j].Timestamp()
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return records[i].ID < records[j].ID
	})
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
