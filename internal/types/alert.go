package types

import "strings"

// AlertKind 是单条告警的分类结果。
type AlertKind string

const (
	AlertEntry        AlertKind = "ENTRY"
	AlertTakeProfit1  AlertKind = "TP1"
	AlertTakeProfit2  AlertKind = "TP2"
	AlertTakeProfit3  AlertKind = "TP3"
	AlertStopLoss     AlertKind = "SL"
	AlertPartialClose AlertKind = "PARTIAL"
	AlertUnknown      AlertKind = "UNKNOWN"
)

// IsExit 报告该类型是否会减少持仓。
func (k AlertKind) IsExit() bool {
	switch k {
	case AlertTakeProfit1, AlertTakeProfit2, AlertTakeProfit3, AlertStopLoss, AlertPartialClose:
		return true
	default:
		return false
	}
}

// TakeProfitLevel returns 1..3 for TP kinds and 0 otherwise.
func (k AlertKind) TakeProfitLevel() int {
	switch k {
	case AlertTakeProfit1:
		return 1
	case AlertTakeProfit2:
		return 2
	case AlertTakeProfit3:
		return 3
	default:
		return 0
	}
}

func ParseAlertKind(raw string) AlertKind {
	switch AlertKind(strings.ToUpper(strings.TrimSpace(raw))) {
	case AlertEntry:
		return AlertEntry
	case AlertTakeProfit1:
		return AlertTakeProfit1
	case AlertTakeProfit2:
		return AlertTakeProfit2
	case AlertTakeProfit3:
		return AlertTakeProfit3
	case AlertStopLoss:
		return AlertStopLoss
	case AlertPartialClose:
		return AlertPartialClose
	default:
		return AlertUnknown
	}
}

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

func ParseSide(raw string) Side {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "buy", "long":
		return SideBuy
	case "sell", "short":
		return SideSell
	default:
		return ""
	}
}

type PositionState string

const (
	PositionLong  PositionState = "long"
	PositionShort PositionState = "short"
	PositionFlat  PositionState = "flat"
)

func ParsePositionState(raw string) PositionState {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "long":
		return PositionLong
	case "short":
		return PositionShort
	case "flat":
		return PositionFlat
	default:
		return ""
	}
}

type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

func ParseDirection(raw string) Direction {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "long":
		return DirectionLong
	case "short":
		return DirectionShort
	default:
		return ""
	}
}

// ExitType 描述一组交易最终以何种方式结束。
type ExitType string

const (
	ExitTakeProfit ExitType = "TakeProfit"
	ExitStopLoss   ExitType = "StopLoss"
	ExitManual     ExitType = "Manual"
)

// ExitType maps the kind of a group's final exit to how the group ended.
func (k AlertKind) ExitType() ExitType {
	switch {
	case k.TakeProfitLevel() > 0:
		return ExitTakeProfit
	case k == AlertStopLoss:
		return ExitStopLoss
	default:
		return ExitManual
	}
}
