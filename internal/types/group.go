package types

import "time"

type GroupStatus string

const (
	GroupActive GroupStatus = "ACTIVE"
	GroupClosed GroupStatus = "CLOSED"
)

// TradeGroup 描述一笔从开仓到平仓的完整交易生命周期。
type TradeGroup struct {
	ID               string      `json:"id"`
	OwnerID          string      `json:"owner_id"`
	Instrument       string      `json:"instrument"`
	Broker           string      `json:"broker,omitempty"`
	Direction        Direction   `json:"direction"`
	Status           GroupStatus `json:"status"`
	Orphan           bool        `json:"orphan"`
	EntryPrice       *float64    `json:"entry_price,omitempty"`
	EntryQuantity    *float64    `json:"entry_quantity,omitempty"`
	Leverage         *float64    `json:"leverage,omitempty"`
	StopLossAtEntry  *float64    `json:"stop_loss_at_entry,omitempty"`
	LastPositionSize *float64    `json:"last_position_size,omitempty"`
	OpenedAt         time.Time   `json:"opened_at"`
	LastActivityAt   time.Time   `json:"last_activity_at"`
	ClosedAt         *time.Time  `json:"closed_at,omitempty"`

	Records []WebhookRecord `json:"records,omitempty"`
}

func (g TradeGroup) IsActive() bool {
	return g.Status == GroupActive
}

// Close marks the group closed at ts. Closing twice keeps the first close time.
func (g *TradeGroup) Close(ts time.Time) {
	if g == nil || g.Status == GroupClosed {
		return
	}
	g.Status = GroupClosed
	closed := ts
	g.ClosedAt = &closed
}
