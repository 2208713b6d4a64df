package gormstore

import (
	"encoding/json"
	"fmt"
	"time"

	"tvhook/internal/types"

	"gorm.io/datatypes"
)

func newGroupModel(g types.TradeGroup, now time.Time) groupModel {
	model := groupModel{
		ID:               g.ID,
		OwnerID:          g.OwnerID,
		Instrument:       g.Instrument,
		Status:           string(g.Status),
		Direction:        string(g.Direction),
		Broker:           g.Broker,
		Orphan:           g.Orphan,
		EntryPrice:       g.EntryPrice,
		EntryQuantity:    g.EntryQuantity,
		Leverage:         g.Leverage,
		StopLossAtEntry:  g.StopLossAtEntry,
		LastPositionSize: g.LastPositionSize,
		OpenedAtUnix:     g.OpenedAt.UnixMilli(),
		LastActivityUnix: g.LastActivityAt.UnixMilli(),
		CreatedAtUnix:    now.UnixMilli(),
		UpdatedAtUnix:    now.UnixMilli(),
	}
	if g.ClosedAt != nil && !g.ClosedAt.IsZero() {
		val := g.ClosedAt.UnixMilli()
		model.ClosedAtUnix = &val
	}
	return model
}

func groupModelToType(m groupModel) types.TradeGroup {
	g := types.TradeGroup{
		ID:               m.ID,
		OwnerID:          m.OwnerID,
		Instrument:       m.Instrument,
		Broker:           m.Broker,
		Direction:        types.ParseDirection(m.Direction),
		Status:           types.GroupStatus(m.Status),
		Orphan:           m.Orphan,
		EntryPrice:       m.EntryPrice,
		EntryQuantity:    m.EntryQuantity,
		Leverage:         m.Leverage,
		StopLossAtEntry:  m.StopLossAtEntry,
		LastPositionSize: m.LastPositionSize,
		OpenedAt:         time.UnixMilli(m.OpenedAtUnix).UTC(),
		LastActivityAt:   time.UnixMilli(m.LastActivityUnix).UTC(),
	}
	if m.ClosedAtUnix != nil && *m.ClosedAtUnix > 0 {
		ts := time.UnixMilli(*m.ClosedAtUnix).UTC()
		g.ClosedAt = &ts
	}
	return g
}

func groupModelsToTypes(models []groupModel) []types.TradeGroup {
	out := make([]types.TradeGroup, 0, len(models))
	for _, m := range models {
		out = append(out, groupModelToType(m))
	}
	return out
}

func newRecordModel(rec types.WebhookRecord, now time.Time) (recordModel, error) {
	hook := rec.Webhook
	indicators, err := jsonColumn(hook.CustomIndicators)
	if err != nil {
		return recordModel{}, fmt.Errorf("encode custom indicators: %w", err)
	}
	warnings, err := jsonColumn(hook.Warnings)
	if err != nil {
		return recordModel{}, fmt.Errorf("encode warnings: %w", err)
	}
	raw, err := jsonColumn(hook.Raw)
	if err != nil {
		return recordModel{}, fmt.Errorf("encode raw payload: %w", err)
	}
	received := rec.ReceivedAt
	if received.IsZero() {
		received = now
	}
	return recordModel{
		ID:                  rec.ID,
		OwnerID:             rec.OwnerID,
		Instrument:          hook.Instrument,
		Broker:              rec.Broker,
		BrokerSymbol:        rec.BrokerSymbol,
		TradeGroupID:        rec.TradeGroupID,
		AlertKind:           string(rec.Kind),
		Direction:           string(rec.Direction),
		Side:                string(hook.Side),
		OrderKind:           hook.OrderKind,
		PositionState:       string(hook.State),
		OrderPrice:          hook.OrderPrice,
		EntryPrice:          hook.EntryPrice,
		StopLoss:            hook.StopLossPrice,
		TakeProfit:          hook.TakeProfitPrice,
		Quantity:            hook.Quantity,
		RemainingSize:       hook.RemainingPositionSize,
		Closed:              hook.IsPositionClosed,
		Leverage:            hook.Leverage,
		Pyramiding:          hook.Pyramiding,
		ExitStop:            hook.ExitStop,
		ExitLimit:           hook.ExitLimit,
		ExitLossTicks:       hook.ExitLossTicks,
		ExitProfit:          hook.ExitProfitTicks,
		TrailPrice:          hook.TrailPrice,
		TrailOffset:         hook.TrailOffset,
		Indicators:          indicators,
		Warnings:            warnings,
		RawPayload:          raw,
		ExternalOrderID:     hook.ExternalOrderID,
		Comment:             hook.Comment,
		TimestampUnix:       rec.Timestamp().UnixMilli(),
		ReceivedAtUnix:      received.UnixMilli(),
		PositionSizeAfter:   rec.PositionSizeAfter,
		EntryPriceCached:    rec.EntryPriceCached,
		RealizedPnLPercent:  rec.RealizedPnLPercent,
		RealizedPnLAbsolute: rec.RealizedPnLAbsolute,
		StopLossChanged:     rec.StopLossChanged,
		TakeProfitChanged:   rec.TakeProfitChanged,
		CreatedAtUnix:       now.UnixMilli(),
	}, nil
}

func recordModelToType(m recordModel) types.WebhookRecord {
	hook := types.NormalizedWebhook{
		Instrument:            m.Instrument,
		Side:                  types.ParseSide(m.Side),
		OrderKind:             m.OrderKind,
		State:                 types.ParsePositionState(m.PositionState),
		OrderPrice:            m.OrderPrice,
		EntryPrice:            m.EntryPrice,
		StopLossPrice:         m.StopLoss,
		TakeProfitPrice:       m.TakeProfit,
		Quantity:              m.Quantity,
		RemainingPositionSize: m.RemainingSize,
		IsPositionClosed:      m.Closed,
		Leverage:              m.Leverage,
		Pyramiding:            m.Pyramiding,
		ExitStop:              m.ExitStop,
		ExitLimit:             m.ExitLimit,
		ExitLossTicks:         m.ExitLossTicks,
		ExitProfitTicks:       m.ExitProfit,
		TrailPrice:            m.TrailPrice,
		TrailOffset:           m.TrailOffset,
		Timestamp:             time.UnixMilli(m.TimestampUnix).UTC(),
		ExternalOrderID:       m.ExternalOrderID,
		Comment:               m.Comment,
	}
	decodeColumn(m.Indicators, &hook.CustomIndicators)
	decodeColumn(m.Warnings, &hook.Warnings)
	decodeColumn(m.RawPayload, &hook.Raw)
	return types.WebhookRecord{
		ID:                  m.ID,
		OwnerID:             m.OwnerID,
		Broker:              m.Broker,
		BrokerSymbol:        m.BrokerSymbol,
		ReceivedAt:          time.UnixMilli(m.ReceivedAtUnix).UTC(),
		Webhook:             hook,
		Kind:                types.ParseAlertKind(m.AlertKind),
		TradeGroupID:        m.TradeGroupID,
		Direction:           types.ParseDirection(m.Direction),
		PositionSizeAfter:   m.PositionSizeAfter,
		EntryPriceCached:    m.EntryPriceCached,
		RealizedPnLPercent:  m.RealizedPnLPercent,
		RealizedPnLAbsolute: m.RealizedPnLAbsolute,
		StopLossChanged:     m.StopLossChanged,
		TakeProfitChanged:   m.TakeProfitChanged,
	}
}

func jsonColumn(v any) (datatypes.JSON, error) {
	switch val := v.(type) {
	case map[string]float64:
		if len(val) == 0 {
			return nil, nil
		}
	case map[string]any:
		if len(val) == 0 {
			return nil, nil
		}
	case []types.ParseWarning:
		if len(val) == 0 {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

func decodeColumn(col datatypes.JSON, out any) {
	if len(col) == 0 {
		return
	}
	_ = json.Unmarshal(col, out)
}
