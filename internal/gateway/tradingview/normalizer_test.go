package tradingview

import (
	"encoding/json"
	"testing"
	"time"

	"tvhook/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payload(t *testing.T, raw string) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}

func TestNormalizeTradingViewStrategyAlert(t *testing.T) {
	raw := payload(t, `{
		"ticker": "XBTUSD",
		"symbol": "btcusdt",
		"order_action": "sell",
		"order_contracts": "301.333",
		"order_price": "64250.5",
		"order_id": "Take 1st Target long",
		"order_comment": "TP1",
		"position_size": "0.6",
		"market_position": "long",
		"timestamp": "2024-03-01T10:15:00Z",
		"plot_0": "1.5",
		"order_alert_message": "\"order_type\": \"reduce_long\", \"leverage\": \"10\", \"pyramiding\": 2, \"exit_stop\": 61000, \"plot_0\": 9, \"plot_1\": 2.25,"
	}`)

	n := Normalize(raw)

	assert.Equal(t, "BTCUSDT", n.Instrument)
	assert.Equal(t, types.SideSell, n.Side)
	assert.Equal(t, "reduce_long", n.OrderKind)
	require.NotNil(t, n.Quantity)
	assert.InDelta(t, 301.333, *n.Quantity, 1e-9)
	require.NotNil(t, n.OrderPrice)
	assert.Equal(t, 64250.5, *n.OrderPrice)
	require.NotNil(t, n.RemainingPositionSize)
	assert.Equal(t, 0.6, *n.RemainingPositionSize)
	assert.Equal(t, types.PositionLong, n.State)
	assert.False(t, n.IsPositionClosed)
	require.NotNil(t, n.Leverage)
	assert.Equal(t, 10.0, *n.Leverage)
	require.NotNil(t, n.Pyramiding)
	assert.Equal(t, 2, *n.Pyramiding)
	require.NotNil(t, n.StopLossPrice)
	assert.Equal(t, 61000.0, *n.StopLossPrice, "exit_stop backs stop loss")
	assert.Nil(t, n.TakeProfitPrice)
	assert.Equal(t, map[string]float64{"0": 1.5, "1": 2.25}, n.CustomIndicators)
	assert.Equal(t, "Take 1st Target long", n.ExternalOrderID)
	assert.Equal(t, "TP1", n.Comment)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC), n.Timestamp)
	assert.Empty(t, n.Warnings)
}

func TestNormalizeFieldPrecedence(t *testing.T) {
	t.Run("symbol wins over ticker", func(t *testing.T) {
		n := Normalize(map[string]any{"symbol": "BTCUSDT", "ticker": "XBTUSD"})
		assert.Equal(t, "BTCUSDT", n.Instrument)
	})

	t.Run("ticker used when symbol is a template", func(t *testing.T) {
		n := Normalize(map[string]any{"symbol": "{{ticker}}", "ticker": "ethusdt"})
		assert.Equal(t, "ETHUSDT", n.Instrument)
	})

	t.Run("explicit stop and target win over exit fields", func(t *testing.T) {
		n := Normalize(map[string]any{
			"order_alert_message": `{"stop_loss_price": 90, "exit_stop": 80, "exit_limit": 130}`,
			"take_profit_price":   "120",
		})
		require.NotNil(t, n.StopLossPrice)
		assert.Equal(t, 90.0, *n.StopLossPrice)
		require.NotNil(t, n.TakeProfitPrice)
		assert.Equal(t, 120.0, *n.TakeProfitPrice)
		assert.Equal(t, 80.0, *n.ExitStop)
		assert.Equal(t, 130.0, *n.ExitLimit)
	})

	t.Run("entry price wins over average price", func(t *testing.T) {
		n := Normalize(map[string]any{"entry_price": "100", "position_avg_price": 99})
		require.NotNil(t, n.EntryPrice)
		assert.Equal(t, 100.0, *n.EntryPrice)

		n = Normalize(map[string]any{"position_avg_price": 99})
		assert.Equal(t, 99.0, *n.EntryPrice)
	})

	t.Run("zero quantity is a value not a miss", func(t *testing.T) {
		n := Normalize(map[string]any{"order_contracts": 0, "quantity": 5})
		require.NotNil(t, n.Quantity)
		assert.Equal(t, 0.0, *n.Quantity)
	})
}

func TestNormalizeTrailingFieldsAreIndependent(t *testing.T) {
	n := Normalize(map[string]any{"order_alert_message": `"exit_trail_offset": "0.75"`})
	assert.Nil(t, n.TrailPrice)
	require.NotNil(t, n.TrailOffset)
	assert.Equal(t, 0.75, *n.TrailOffset)

	n = Normalize(map[string]any{"exit_trail_price": 101.5})
	require.NotNil(t, n.TrailPrice)
	assert.Nil(t, n.TrailOffset)
}

func TestNormalizeClosureDetection(t *testing.T) {
	n := Normalize(map[string]any{"position_size": "0", "market_position": "flat"})
	assert.True(t, n.IsPositionClosed)

	n = Normalize(map[string]any{"position_size": "0", "market_position": "long"})
	assert.False(t, n.IsPositionClosed)

	n = Normalize(map[string]any{"market_position": "flat"})
	assert.False(t, n.IsPositionClosed, "missing size is not zero")
}

func TestNormalizeBadNumbersBecomeWarnings(t *testing.T) {
	n := Normalize(map[string]any{
		"symbol":          "BTCUSDT",
		"order_price":     "{{close}}",
		"order_contracts": "1.5",
		"leverage":        "ten",
	})
	assert.Nil(t, n.OrderPrice)
	assert.Nil(t, n.Leverage)
	require.NotNil(t, n.Quantity)
	assert.Equal(t, 1.5, *n.Quantity)
	require.Len(t, n.Warnings, 2)
	fields := []string{n.Warnings[0].Field, n.Warnings[1].Field}
	assert.ElementsMatch(t, []string{"order_price", "leverage"}, fields)
}

func TestNormalizeNeverPanics(t *testing.T) {
	inputs := []map[string]any{
		nil,
		{},
		{"order_alert_message": 42},
		{"order_alert_message": map[string]any{"order_type": "ENTER_LONG"}},
		{"symbol": 7, "timestamp": []any{1}, "plot_x": "1", "plot_2": "nope"},
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() { Normalize(in) })
	}
	n := Normalize(inputs[3])
	assert.Equal(t, "enter_long", n.OrderKind)
}

func TestNormalizeTimestampFallback(t *testing.T) {
	fallback := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	n := NormalizeAt(map[string]any{"timestamp": "{{timenow}}"}, fallback)
	assert.Equal(t, fallback, n.Timestamp)

	n = NormalizeAt(map[string]any{"timestamp": 1709288100}, fallback)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC), n.Timestamp)

	n = NormalizeAt(map[string]any{"timestamp": "1709288100000"}, fallback)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC), n.Timestamp)
}
