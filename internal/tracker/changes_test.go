package tracker

import (
	"testing"
	"time"

	"tvhook/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func rec(id uint64, minute int, sl, tp *float64) types.WebhookRecord {
	return types.WebhookRecord{
		ID: id,
		Webhook: types.NormalizedWebhook{
			Timestamp:       base.Add(time.Duration(minute) * time.Minute),
			StopLossPrice:   sl,
			TakeProfitPrice: tp,
		},
	}
}

func TestAnnotate(t *testing.T) {
	records := []types.WebhookRecord{
		rec(1, 0, types.Float(95), types.Float(110)),
		rec(2, 5, types.Float(95), nil),
		rec(3, 10, types.Float(98), types.Float(110)),
		rec(4, 15, nil, types.Float(115)),
	}

	out := Annotate(records)
	require.Len(t, out, 4)

	assert.False(t, out[0].StopLossChanged, "first record never flagged")
	assert.False(t, out[0].TakeProfitChanged)
	assert.False(t, out[1].StopLossChanged)
	assert.False(t, out[1].TakeProfitChanged, "missing value is not a change")
	assert.True(t, out[2].StopLossChanged)
	assert.False(t, out[2].TakeProfitChanged, "compared with last known value")
	assert.False(t, out[3].StopLossChanged)
	assert.True(t, out[3].TakeProfitChanged)
}

func TestAnnotateOrdersByTimestamp(t *testing.T) {
	records := []types.WebhookRecord{
		rec(3, 10, types.Float(98), nil),
		rec(1, 0, types.Float(95), nil),
	}
	out := Annotate(records)
	assert.Equal(t, uint64(1), out[0].ID)
	assert.Equal(t, uint64(3), out[1].ID)
	assert.True(t, out[1].StopLossChanged)
	assert.Equal(t, uint64(3), records[0].ID, "input slice is untouched")
}

func TestCurrentUsesLatestNonNil(t *testing.T) {
	records := []types.WebhookRecord{
		rec(1, 0, types.Float(95), types.Float(110)),
		rec(2, 5, types.Float(97), nil),
		rec(3, 10, nil, nil),
	}
	sl, tp := Current(records)
	require.NotNil(t, sl)
	require.NotNil(t, tp)
	assert.Equal(t, 97.0, *sl)
	assert.Equal(t, 110.0, *tp)

	sl, tp = Current(nil)
	assert.Nil(t, sl)
	assert.Nil(t, tp)
}

func TestTimeline(t *testing.T) {
	points := Timeline([]types.WebhookRecord{
		rec(1, 0, nil, nil),
		rec(2, 1, types.Float(90), nil),
	})
	require.Len(t, points, 2)
	assert.Nil(t, points[0].StopLoss)
	assert.True(t, points[1].StopLossChanged)
	assert.Equal(t, 90.0, *points[1].StopLoss)
}
