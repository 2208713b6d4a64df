package query

import (
	"testing"
	"time"

	"tvhook/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func record(id uint64, kind types.AlertKind, minute int, price, qty float64) types.WebhookRecord {
	return types.WebhookRecord{
		ID:           id,
		Kind:         kind,
		Broker:       "blofin",
		BrokerSymbol: "BTC-USDT",
		Webhook: types.NormalizedWebhook{
			Instrument: "BTCUSDT",
			OrderPrice: types.Float(price),
			Quantity:   types.Float(qty),
			Timestamp:  t0.Add(time.Duration(minute) * time.Minute),
		},
	}
}

func closedGroup(minutes int) types.TradeGroup {
	closed := t0.Add(time.Duration(minutes) * time.Minute)
	return types.TradeGroup{
		ID:             "BTCUSDT-LONG-1",
		OwnerID:        "alice",
		Instrument:     "BTCUSDT",
		Direction:      types.DirectionLong,
		Status:         types.GroupClosed,
		EntryPrice:     types.Float(100),
		EntryQuantity:  types.Float(1),
		OpenedAt:       t0,
		LastActivityAt: closed,
		ClosedAt:       &closed,
	}
}

func TestSummarizeTwoTargetsHit(t *testing.T) {
	records := []types.WebhookRecord{
		record(3, types.AlertTakeProfit2, 20, 110, 0.6),
		record(1, types.AlertEntry, 0, 100, 1),
		record(2, types.AlertTakeProfit1, 10, 105, 0.4),
	}
	sum := Summarize(closedGroup(20), records, 3)

	require.Len(t, sum.Exits, 2)
	assert.Equal(t, types.AlertTakeProfit1, sum.Exits[0].Kind)
	assert.Equal(t, types.AlertTakeProfit2, sum.Exits[1].Kind)
	assert.InDelta(t, 5.0, *sum.Exits[0].PnLPercent, 1e-9)
	assert.InDelta(t, 10.0, *sum.Exits[1].PnLPercent, 1e-9)

	require.NotNil(t, sum.TotalPnLPercent)
	assert.InDelta(t, 8.0, *sum.TotalPnLPercent, 1e-9)
	assert.InDelta(t, 8.0, sum.TotalPnLAbsolute, 1e-9)
	assert.Equal(t, map[string]bool{"TP1": true, "TP2": true, "TP3": false}, sum.TPHit)
	assert.False(t, sum.SLHit)
	assert.Equal(t, types.ExitTakeProfit, sum.ExitType)
	assert.Equal(t, 20*time.Minute, sum.Duration)
	assert.Equal(t, int64(1200), sum.DurationSeconds)
	assert.Equal(t, "BTC-USDT", sum.BrokerSymbol)
	assert.Equal(t, 3, sum.RecordCount)
}

func TestSummarizeStopLossAndTPCount(t *testing.T) {
	records := []types.WebhookRecord{
		record(1, types.AlertEntry, 0, 100, 1),
		record(2, types.AlertTakeProfit3, 5, 120, 0.5),
		record(3, types.AlertStopLoss, 10, 90, 0.5),
	}
	sum := Summarize(closedGroup(10), records, 2)
	assert.Equal(t, map[string]bool{"TP1": false, "TP2": false}, sum.TPHit, "levels beyond tp_count are not reported")
	assert.True(t, sum.SLHit)
	assert.Equal(t, types.ExitStopLoss, sum.ExitType)
	require.NotNil(t, sum.TotalPnLPercent)
	assert.InDelta(t, 5.0, *sum.TotalPnLPercent, 1e-9)
}

func TestSummarizeExitTypes(t *testing.T) {
	partial := []types.WebhookRecord{
		record(1, types.AlertEntry, 0, 100, 1),
		record(2, types.AlertPartialClose, 5, 101, 1),
	}
	assert.Equal(t, types.ExitManual, Summarize(closedGroup(5), partial, 3).ExitType)
	assert.Equal(t, types.ExitManual, Summarize(closedGroup(5), partial[:1], 3).ExitType)

	active := closedGroup(5)
	active.Status = types.GroupActive
	active.ClosedAt = nil
	sum := Summarize(active, partial, 3)
	assert.Empty(t, sum.ExitType)
	assert.Equal(t, 5*time.Minute, sum.Duration, "active groups run to last activity")
}

func TestSummarizePrefersStoredPnL(t *testing.T) {
	rec := record(2, types.AlertTakeProfit1, 5, 105, 1)
	rec.RealizedPnLPercent = types.Float(4.2)
	rec.RealizedPnLAbsolute = types.Float(4.2)
	sum := Summarize(closedGroup(5), []types.WebhookRecord{rec}, 3)
	require.Len(t, sum.Exits, 1)
	assert.Equal(t, 4.2, *sum.Exits[0].PnLPercent)
}

func TestSummarizeOrphanWithoutEntry(t *testing.T) {
	g := closedGroup(5)
	g.Orphan = true
	g.EntryPrice = nil
	sum := Summarize(g, []types.WebhookRecord{record(1, types.AlertStopLoss, 5, 90, 1)}, 3)
	assert.True(t, sum.Orphan)
	assert.Nil(t, sum.TotalPnLPercent)
	require.Len(t, sum.Exits, 1)
	assert.Nil(t, sum.Exits[0].PnLPercent)
	assert.True(t, sum.SLHit)
}

func TestSummarizeCurrentRiskLevels(t *testing.T) {
	entry := record(1, types.AlertEntry, 0, 100, 1)
	entry.Webhook.StopLossPrice = types.Float(95)
	entry.Webhook.TakeProfitPrice = types.Float(110)
	moved := record(2, types.AlertUnknown, 3, 100, 0)
	moved.Webhook.StopLossPrice = types.Float(100)
	sum := Summarize(closedGroup(5), []types.WebhookRecord{entry, moved}, 3)
	assert.Equal(t, 100.0, *sum.CurrentStopLoss)
	assert.Equal(t, 110.0, *sum.CurrentTakeProfit)
}
