package symbol

type BlofinConverter struct{}

// ToExchange renders BTCUSDT as BTC-USDT. Symbols without a known quote are
// split after the third character.
func (BlofinConverter) ToExchange(canonical string) string {
	clean := Canonical(canonical)
	if clean == "" {
		return ""
	}
	for _, quote := range []string{"USDT", "USDC", "BTC", "ETH"} {
		if len(clean) > len(quote) && clean[len(clean)-len(quote):] == quote {
			return clean[:len(clean)-len(quote)] + "-" + quote
		}
	}
	if len(clean) <= 3 {
		return clean
	}
	return clean[:3] + "-" + clean[3:]
}

func (BlofinConverter) FromExchange(raw string) string {
	return Canonical(raw)
}

var Blofin = BlofinConverter{}
