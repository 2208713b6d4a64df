// Package classifier maps a normalized webhook to an AlertKind using an
// ordered rule table. The first matching rule wins.
package classifier

import (
	"strings"

	"tvhook/internal/types"
)

// Rule is one row of the classification table.
type Rule struct {
	Name  string
	Match func(types.NormalizedWebhook) bool
	Kind  types.AlertKind
}

// Classifier evaluates its rules in order.
type Classifier struct {
	rules []Rule
}

// New builds a classifier over rules. With no rules it uses Rules().
func New(rules ...Rule) *Classifier {
	if len(rules) == 0 {
		rules = Rules()
	}
	return &Classifier{rules: rules}
}

func (c *Classifier) Classify(n types.NormalizedWebhook) types.AlertKind {
	kind, _ := c.Explain(n)
	return kind
}

// Explain returns the kind together with the name of the rule that produced
// it; the name is empty when nothing matched.
func (c *Classifier) Explain(n types.NormalizedWebhook) (types.AlertKind, string) {
	for _, r := range c.rules {
		if r.Match != nil && r.Match(n) {
			return r.Kind, r.Name
		}
	}
	return types.AlertUnknown, ""
}

var defaultClassifier = New()

// Classify uses the default rule table.
func Classify(n types.NormalizedWebhook) types.AlertKind {
	return defaultClassifier.Classify(n)
}

// Rules returns a fresh copy of the default table.
func Rules() []Rule {
	return []Rule{
		{Name: "entry", Match: isEntry, Kind: types.AlertEntry},

		{Name: "comment_tp1", Match: exitWith(commentHas("tp1")), Kind: types.AlertTakeProfit1},
		{Name: "comment_tp2", Match: exitWith(commentHas("tp2")), Kind: types.AlertTakeProfit2},
		{Name: "comment_tp3", Match: exitWith(commentHas("tp3")), Kind: types.AlertTakeProfit3},
		{Name: "comment_sl", Match: exitWith(commentIsStop), Kind: types.AlertStopLoss},

		{Name: "order_id_tp1", Match: exitWith(orderIDHas("1st target")), Kind: types.AlertTakeProfit1},
		{Name: "order_id_tp2", Match: exitWith(orderIDHas("2nd target")), Kind: types.AlertTakeProfit2},
		{Name: "order_id_tp3", Match: exitWith(orderIDHas("3rd target")), Kind: types.AlertTakeProfit3},
		{Name: "order_id_sl", Match: exitWith(orderIDHas("stop loss")), Kind: types.AlertStopLoss},

		{Name: "reduce", Match: exitWith(orderKindHas("reduce")), Kind: types.AlertPartialClose},
		{Name: "exit_without_target", Match: exitWith(orderKindHas("exit")), Kind: types.AlertStopLoss},
	}
}

func isEntry(n types.NormalizedWebhook) bool {
	kind := strings.ToLower(n.OrderKind)
	return strings.Contains(kind, "enter_") || strings.Contains(kind, "entry_")
}

func isExit(n types.NormalizedWebhook) bool {
	kind := strings.ToLower(n.OrderKind)
	return strings.Contains(kind, "reduce_") || strings.Contains(kind, "exit_")
}

func exitWith(match func(types.NormalizedWebhook) bool) func(types.NormalizedWebhook) bool {
	return func(n types.NormalizedWebhook) bool {
		return isExit(n) && match(n)
	}
}

func commentHas(token string) func(types.NormalizedWebhook) bool {
	return func(n types.NormalizedWebhook) bool {
		return strings.Contains(strings.ToLower(n.Comment), token)
	}
}

// commentIsStop matches "sl" or "stop" anywhere in the comment, so "TSL hit"
// and "SLHit" count as stops.
func commentIsStop(n types.NormalizedWebhook) bool {
	c := strings.ToLower(n.Comment)
	return strings.Contains(c, "sl") || strings.Contains(c, "stop")
}

func orderIDHas(token string) func(types.NormalizedWebhook) bool {
	return func(n types.NormalizedWebhook) bool {
		return strings.Contains(strings.ToLower(n.ExternalOrderID), token)
	}
}

func orderKindHas(token string) func(types.NormalizedWebhook) bool {
	return func(n types.NormalizedWebhook) bool {
		return strings.Contains(strings.ToLower(n.OrderKind), token)
	}
}
