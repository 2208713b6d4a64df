package model

import (
	"time"

	"gorm.io/datatypes"
)

// TradeGroupModel maps to 'trade_groups' table.
type TradeGroupModel struct {
	ID               string   `gorm:"column:id;primaryKey"`
	OwnerID          string   `gorm:"column:owner_id;index:idx_group_lookup,priority:1"`
	Instrument       string   `gorm:"column:instrument;index:idx_group_lookup,priority:2"`
	Status           string   `gorm:"column:status;index:idx_group_lookup,priority:3"`
	Direction        string   `gorm:"column:direction"`
	Broker           string   `gorm:"column:broker"`
	Orphan           bool     `gorm:"column:orphan"`
	EntryPrice       *float64 `gorm:"column:entry_price"`
	EntryQuantity    *float64 `gorm:"column:entry_quantity"`
	Leverage         *float64 `gorm:"column:leverage"`
	StopLossAtEntry  *float64 `gorm:"column:stop_loss_at_entry"`
	LastPositionSize *float64 `gorm:"column:last_position_size"`
	OpenedAtUnix     int64    `gorm:"column:opened_at;index"`
	LastActivityUnix int64    `gorm:"column:last_activity_at"`
	ClosedAtUnix     *int64   `gorm:"column:closed_at"`
	CreatedAtUnix    int64    `gorm:"column:created_at"`
	UpdatedAtUnix    int64    `gorm:"column:updated_at"`

	CreatedAt time.Time `gorm:"-"`
	UpdatedAt time.Time `gorm:"-"`
}

func (TradeGroupModel) TableName() string { return "trade_groups" }

// WebhookRecordModel maps to 'webhook_records' table. 时间字段均为毫秒。
type WebhookRecordModel struct {
	ID           uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	OwnerID      string `gorm:"column:owner_id;index:idx_record_order,priority:1;index:idx_record_owner_ts,priority:1"`
	Instrument   string `gorm:"column:instrument;index:idx_record_order,priority:2"`
	Broker       string `gorm:"column:broker"`
	BrokerSymbol string `gorm:"column:broker_symbol"`
	TradeGroupID string `gorm:"column:trade_group_id;index"`
	AlertKind    string `gorm:"column:alert_kind"`
	Direction    string `gorm:"column:direction"`

	Side          string   `gorm:"column:side"`
	OrderKind     string   `gorm:"column:order_kind"`
	PositionState string   `gorm:"column:position_state"`
	OrderPrice    *float64 `gorm:"column:order_price"`
	EntryPrice    *float64 `gorm:"column:entry_price"`
	StopLoss      *float64 `gorm:"column:stop_loss_price"`
	TakeProfit    *float64 `gorm:"column:take_profit_price"`
	Quantity      *float64 `gorm:"column:quantity"`
	RemainingSize *float64 `gorm:"column:remaining_position_size"`
	Closed        bool     `gorm:"column:is_position_closed"`
	Leverage      *float64 `gorm:"column:leverage"`
	Pyramiding    *int     `gorm:"column:pyramiding"`
	ExitStop      *float64 `gorm:"column:exit_stop"`
	ExitLimit     *float64 `gorm:"column:exit_limit"`
	ExitLossTicks *float64 `gorm:"column:exit_loss_ticks"`
	ExitProfit    *float64 `gorm:"column:exit_profit_ticks"`
	TrailPrice    *float64 `gorm:"column:trail_price"`
	TrailOffset   *float64 `gorm:"column:trail_offset"`

	Indicators      datatypes.JSON `gorm:"column:custom_indicators;type:TEXT"`
	Warnings        datatypes.JSON `gorm:"column:warnings;type:TEXT"`
	RawPayload      datatypes.JSON `gorm:"column:raw_payload;type:TEXT"`
	ExternalOrderID string         `gorm:"column:external_order_id;index:idx_record_order,priority:3"`
	Comment         string         `gorm:"column:comment"`

	TimestampUnix  int64 `gorm:"column:ts;index:idx_record_owner_ts,priority:2"`
	ReceivedAtUnix int64 `gorm:"column:received_at"`

	PositionSizeAfter   *float64 `gorm:"column:position_size_after"`
	EntryPriceCached    *float64 `gorm:"column:entry_price_cached"`
	RealizedPnLPercent  *float64 `gorm:"column:realized_pnl_percent"`
	RealizedPnLAbsolute *float64 `gorm:"column:realized_pnl_absolute"`
	StopLossChanged     bool     `gorm:"column:stop_loss_changed"`
	TakeProfitChanged   bool     `gorm:"column:take_profit_changed"`

	CreatedAtUnix int64 `gorm:"column:created_at"`
}

func (WebhookRecordModel) TableName() string { return "webhook_records" }
