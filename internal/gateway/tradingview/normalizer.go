package tradingview

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"tvhook/internal/logger"
	"tvhook/internal/pkg/convert"
	"tvhook/internal/pkg/maputil"
	"tvhook/internal/types"
)

const alertMessageKey = "order_alert_message"

var plotKey = regexp.MustCompile(`^plot_?(\d+)$`)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.000",
}

// Normalize 将 TradingView 原始 payload 与嵌入参数合并为 NormalizedWebhook。
// 任何输入都会得到一个结果，无法解析的字段置空并记录 warning。
func Normalize(raw map[string]any) types.NormalizedWebhook {
	return NormalizeAt(raw, time.Time{})
}

// NormalizeAt is Normalize with a fallback timestamp for payloads that carry
// none or an unparseable one.
func NormalizeAt(raw map[string]any, fallback time.Time) types.NormalizedWebhook {
	if raw == nil {
		raw = map[string]any{}
	}
	embedded := embeddedParams(raw)
	n := &normalizer{raw: raw, embedded: embedded}

	out := types.NormalizedWebhook{Raw: raw}
	out.Instrument = strings.ToUpper(maputil.FirstString(raw, isTemplate, "symbol", "instrument", "ticker"))
	out.Side = types.ParseSide(maputil.FirstString(raw, isTemplate, "action", "side", "order_action"))

	orderKind := maputil.FirstString(embedded, nil, "order_type")
	if orderKind == "" {
		orderKind = maputil.FirstString(raw, nil, "order_type")
	}
	out.OrderKind = strings.ToLower(orderKind)

	out.Quantity = n.float("quantity",
		n.top("order_contracts"), n.top("contracts"), n.top("quantity"),
		n.emb("order_contracts"), n.emb("contracts"), n.emb("quantity"))
	out.RemainingPositionSize = n.float("position_size", n.top("position_size"), n.emb("position_size"))

	state := maputil.String(raw, "market_position")
	if state == "" {
		state = maputil.String(embedded, "market_position")
	}
	out.State = types.ParsePositionState(state)
	out.IsPositionClosed = out.RemainingPositionSize != nil && *out.RemainingPositionSize == 0 &&
		out.State == types.PositionFlat

	out.OrderPrice = n.float("order_price", n.top("order_price"), n.top("price"))
	out.EntryPrice = n.float("entry_price", n.top("entry_price"), n.top("position_avg_price"), n.emb("entry_price"))

	out.ExitStop = n.float("exit_stop", n.top("exit_stop"), n.emb("exit_stop"))
	out.ExitLimit = n.float("exit_limit", n.top("exit_limit"), n.emb("exit_limit"))
	out.ExitLossTicks = n.float("exit_loss_ticks", n.top("exit_loss_ticks"), n.emb("exit_loss_ticks"))
	out.ExitProfitTicks = n.float("exit_profit_ticks", n.top("exit_profit_ticks"), n.emb("exit_profit_ticks"))
	out.TrailPrice = n.float("exit_trail_price", n.top("exit_trail_price"), n.emb("exit_trail_price"))
	out.TrailOffset = n.float("exit_trail_offset", n.top("exit_trail_offset"), n.emb("exit_trail_offset"))

	out.StopLossPrice = n.float("stop_loss_price",
		n.emb("stop_loss_price"), n.top("stop_loss_price"), n.top("stop_loss"))
	if out.StopLossPrice == nil {
		out.StopLossPrice = out.ExitStop
	}
	out.TakeProfitPrice = n.float("take_profit_price",
		n.emb("take_profit_price"), n.top("take_profit_price"), n.top("take_profit"))
	if out.TakeProfitPrice == nil {
		out.TakeProfitPrice = out.ExitLimit
	}

	out.Leverage = n.float("leverage", n.emb("leverage"), n.top("leverage"))
	if v, key := maputil.FirstRef(n.emb("pyramiding"), n.top("pyramiding")); v != nil {
		p, err := convert.ParseInt(v)
		if err != nil {
			n.warn(key, v, err)
		}
		out.Pyramiding = p
	}

	out.CustomIndicators = n.plots()

	out.ExternalOrderID = maputil.String(raw, "order_id")
	out.Comment = maputil.String(raw, "order_comment")
	out.Timestamp = n.timestamp(fallback)
	out.Warnings = n.warnings
	return out
}

type normalizer struct {
	raw      map[string]any
	embedded map[string]any
	warnings []types.ParseWarning
}

func (n *normalizer) top(key string) maputil.Ref { return maputil.Ref{Src: n.raw, Key: key} }
func (n *normalizer) emb(key string) maputil.Ref { return maputil.Ref{Src: n.embedded, Key: key} }

func (n *normalizer) float(field string, refs ...maputil.Ref) *float64 {
	v, key := maputil.FirstRef(refs...)
	if v == nil {
		return nil
	}
	f, err := convert.ParseFloat(v)
	if err != nil {
		if key == "" {
			key = field
		}
		n.warn(key, v, err)
		return nil
	}
	return f
}

func (n *normalizer) warn(field string, value any, err error) {
	w := types.ParseWarning{Field: field, Value: fmt.Sprintf("%v", value), Reason: err.Error()}
	logger.Warnf("tradingview: could not parse %s=%q: %v", w.Field, w.Value, err)
	n.warnings = append(n.warnings, w)
}

func (n *normalizer) plots() map[string]float64 {
	out := make(map[string]float64)
	// raw payload is applied last so it wins over embedded values
	collect := func(src map[string]any) {
		for key, val := range src {
			m := plotKey.FindStringSubmatch(key)
			if m == nil {
				continue
			}
			f, err := convert.ParseFloat(val)
			if err != nil {
				n.warn(key, val, err)
				continue
			}
			if f != nil {
				out[m[1]] = *f
			}
		}
	}
	collect(n.embedded)
	collect(n.raw)
	if len(out) == 0 {
		return nil
	}
	return out
}

func (n *normalizer) timestamp(fallback time.Time) time.Time {
	v := n.raw["timestamp"]
	if v == nil {
		v = n.raw["time"]
	}
	if v == nil {
		return fallback
	}
	if ts, ok := parseTimestamp(v); ok {
		return ts
	}
	n.warn("timestamp", v, fmt.Errorf("unrecognised time format"))
	return fallback
}

func parseTimestamp(v any) (time.Time, bool) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" || isTemplate(s) {
			return time.Time{}, false
		}
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), true
			}
		}
	}
	f, err := convert.ParseFloat(v)
	if err != nil || f == nil || *f <= 0 {
		return time.Time{}, false
	}
	unix := int64(*f)
	if unix > 1e12 {
		return time.UnixMilli(unix).UTC(), true
	}
	return time.Unix(unix, 0).UTC(), true
}

func embeddedParams(raw map[string]any) map[string]any {
	switch v := raw[alertMessageKey].(type) {
	case string:
		return DecodeAlertMessage(v)
	case map[string]any:
		return v
	default:
		return map[string]any{}
	}
}

func isTemplate(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), "{{")
}
